package presence

import (
	"context"
	"sort"
	"sync"
	"testing"

	chatcli "github.com/chatline-io/chatline/chat-cli"
	chatgql "github.com/chatline-io/chatline/chat-gql"
	chatws "github.com/chatline-io/chatline/chat-ws"
	"github.com/chatline-io/chatline/chat-ws/connectiondao"
	"github.com/chatline-io/chatline/chat-ws/userdao"
	"github.com/graph-gophers/graphql-go"
	"github.com/rs/zerolog"
	"github.com/tj/assert"
)

type memConns struct {
	mu    sync.Mutex
	conns map[string]connectiondao.Connection
}

func (s *memConns) PutNew(_ context.Context, conn connectiondao.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conns[conn.ConnectionID]; ok {
		return connectiondao.ErrConnectionExists
	}
	s.conns[conn.ConnectionID] = conn
	return nil
}

func (s *memConns) Get(_ context.Context, connectionID string) (*connectiondao.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.conns[connectionID]
	if !ok {
		return nil, nil
	}
	return &conn, nil
}

func (s *memConns) Delete(_ context.Context, connectionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.conns[connectionID]
	delete(s.conns, connectionID)
	return ok, nil
}

func (s *memConns) Scan(_ context.Context) ([]connectiondao.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var conns []connectiondao.Connection
	for _, conn := range s.conns {
		conns = append(conns, conn)
	}
	return conns, nil
}

func (s *memConns) QueryByUsername(_ context.Context, username string) ([]connectiondao.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var conns []connectiondao.Connection
	for _, conn := range s.conns {
		if conn.Username == username {
			conns = append(conns, conn)
		}
	}
	return conns, nil
}

func (s *memConns) DeleteByUsername(_ context.Context, username string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for id, conn := range s.conns {
		if conn.Username == username {
			delete(s.conns, id)
			count++
		}
	}
	return count, nil
}

type memUsers struct{}

func (memUsers) Ensure(context.Context, string) error { return nil }

type memProfiles struct {
	profiles map[string]userdao.User
}

func (s memProfiles) Get(_ context.Context, username string) (*userdao.User, error) {
	user, ok := s.profiles[username]
	if !ok {
		return nil, nil
	}
	return &user, nil
}

func testResolver(t *testing.T) (*Resolver, *chatws.Registry) {
	registry := chatws.NewRegistry(&memConns{conns: map[string]connectiondao.Connection{}}, memUsers{}, zerolog.Nop())
	profiles := memProfiles{profiles: map[string]userdao.User{
		"alice": {Username: "alice", Attributes: map[string]string{"displayName": "Alice"}},
	}}

	config := chatgql.NewConfig(chatcli.NewService("presence-api"))
	return NewResolver(registry, profiles, &config), registry
}

func TestResolver(t *testing.T) {
	ctx := context.Background()

	t.Run("schema parses", func(t *testing.T) {
		resolver, _ := testResolver(t)
		_, err := graphql.ParseSchema(resolver.Schema(), resolver, graphql.UseFieldResolvers())
		assert.NoError(t, err)
	})

	t.Run("users lists one entry per connection", func(t *testing.T) {
		resolver, registry := testResolver(t)
		assert.NoError(t, registry.Register(ctx, "c1", "alice", "ep"))
		assert.NoError(t, registry.Register(ctx, "c2", "alice", "ep"))
		assert.NoError(t, registry.Register(ctx, "c3", "bob", "ep"))

		users, err := resolver.Users(ctx)
		assert.NoError(t, err)
		assert.Len(t, users, 3)
	})

	t.Run("connections by username", func(t *testing.T) {
		resolver, registry := testResolver(t)
		assert.NoError(t, registry.Register(ctx, "c1", "alice", "ep"))
		assert.NoError(t, registry.Register(ctx, "c2", "alice", "ep"))

		ids, err := resolver.Connections(ctx, struct{ Username string }{Username: "alice"})
		assert.NoError(t, err)
		sort.Strings(ids)
		assert.Equal(t, []string{"c1", "c2"}, ids)
	})

	t.Run("user profile", func(t *testing.T) {
		resolver, _ := testResolver(t)

		profile, err := resolver.User(ctx, struct{ Username string }{Username: "alice"})
		assert.NoError(t, err)
		assert.NotNil(t, profile)
		assert.Equal(t, "alice", profile.Username)
		assert.NotNil(t, profile.Attributes)

		profile, err = resolver.User(ctx, struct{ Username string }{Username: "nobody"})
		assert.NoError(t, err)
		assert.Nil(t, profile)
	})

	t.Run("disconnect user kicks every device", func(t *testing.T) {
		resolver, registry := testResolver(t)
		assert.NoError(t, registry.Register(ctx, "c1", "alice", "ep"))
		assert.NoError(t, registry.Register(ctx, "c2", "alice", "ep"))
		assert.NoError(t, registry.Register(ctx, "c3", "bob", "ep"))

		removed, err := resolver.DisconnectUser(ctx, struct{ Username string }{Username: "alice"})
		assert.NoError(t, err)
		assert.EqualValues(t, 2, removed)

		ids, err := registry.Lookup(ctx, "alice")
		assert.NoError(t, err)
		assert.Empty(t, ids)
	})
}
