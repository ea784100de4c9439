package chatws

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/chatline-io/chatline/chat-ws/connectiondao"
	"github.com/rs/zerolog"
	"github.com/tj/assert"
)

// memStore is an in-memory ConnectionStore with the same semantics as the
// DynamoDB-backed DAO.
type memStore struct {
	mu    sync.Mutex
	conns map[string]connectiondao.Connection

	scanErr error
}

func newMemStore() *memStore {
	return &memStore{conns: map[string]connectiondao.Connection{}}
}

func (s *memStore) PutNew(_ context.Context, conn connectiondao.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conns[conn.ConnectionID]; ok {
		return fmt.Errorf("connection %v: %w", conn.ConnectionID, connectiondao.ErrConnectionExists)
	}
	s.conns[conn.ConnectionID] = conn
	return nil
}

func (s *memStore) Get(_ context.Context, connectionID string) (*connectiondao.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.conns[connectionID]
	if !ok {
		return nil, nil
	}
	return &conn, nil
}

func (s *memStore) Delete(_ context.Context, connectionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.conns[connectionID]
	delete(s.conns, connectionID)
	return ok, nil
}

func (s *memStore) Scan(_ context.Context) ([]connectiondao.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scanErr != nil {
		return nil, s.scanErr
	}
	var conns []connectiondao.Connection
	for _, conn := range s.conns {
		conns = append(conns, conn)
	}
	return conns, nil
}

func (s *memStore) QueryByUsername(_ context.Context, username string) ([]connectiondao.Connection, error) {
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

func (s *memStore) DeleteByUsername(_ context.Context, username string) (int, error) {
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

type memUsers struct {
	mu        sync.Mutex
	usernames map[string]int

	err error
}

func newMemUsers() *memUsers {
	return &memUsers{usernames: map[string]int{}}
}

func (s *memUsers) Ensure(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.usernames[username]++
	return nil
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()

	t.Run("register and resolve", func(t *testing.T) {
		store := newMemStore()
		registry := NewRegistry(store, newMemUsers(), zerolog.Nop())

		err := registry.Register(ctx, "c1", "alice", "https://example.com/dev")
		assert.NoError(t, err)

		conn, err := registry.Resolve(ctx, "c1")
		assert.NoError(t, err)
		assert.NotNil(t, conn)
		assert.Equal(t, "alice", conn.Username)
		assert.Equal(t, "https://example.com/dev", conn.Endpoint)
		assert.NotZero(t, conn.ConnectedAt)
		assert.True(t, conn.TTL > conn.ConnectedAt)
	})

	t.Run("duplicate connection id fails and keeps original", func(t *testing.T) {
		store := newMemStore()
		registry := NewRegistry(store, newMemUsers(), zerolog.Nop())

		assert.NoError(t, registry.Register(ctx, "c1", "alice", "ep"))

		err := registry.Register(ctx, "c1", "bob", "ep")
		assert.Error(t, err)
		assert.True(t, IsAlreadyExists(err))

		conn, err := registry.Resolve(ctx, "c1")
		assert.NoError(t, err)
		assert.Equal(t, "alice", conn.Username)
	})

	t.Run("register ensures user profile", func(t *testing.T) {
		users := newMemUsers()
		registry := NewRegistry(newMemStore(), users, zerolog.Nop())

		assert.NoError(t, registry.Register(ctx, "c1", "alice", "ep"))
		assert.Equal(t, 1, users.usernames["alice"])
	})

	t.Run("profile failure does not fail register", func(t *testing.T) {
		users := newMemUsers()
		users.err = fmt.Errorf("users table down")
		store := newMemStore()
		registry := NewRegistry(store, users, zerolog.Nop())

		assert.NoError(t, registry.Register(ctx, "c1", "alice", "ep"))

		conn, err := registry.Resolve(ctx, "c1")
		assert.NoError(t, err)
		assert.NotNil(t, conn)
	})

	t.Run("deregister is idempotent", func(t *testing.T) {
		store := newMemStore()
		registry := NewRegistry(store, newMemUsers(), zerolog.Nop())

		assert.NoError(t, registry.Register(ctx, "c1", "alice", "ep"))
		assert.NoError(t, registry.Deregister(ctx, "c1"))
		assert.NoError(t, registry.Deregister(ctx, "c1"))
		assert.NoError(t, registry.Deregister(ctx, "never-registered"))
	})

	t.Run("list active returns the full set", func(t *testing.T) {
		store := newMemStore()
		registry := NewRegistry(store, newMemUsers(), zerolog.Nop())

		assert.NoError(t, registry.Register(ctx, "c1", "alice", "ep"))
		assert.NoError(t, registry.Register(ctx, "c2", "alice", "ep"))
		assert.NoError(t, registry.Register(ctx, "c3", "bob", "ep"))
		assert.NoError(t, registry.Deregister(ctx, "c2"))

		conns, err := registry.ListActive(ctx)
		assert.NoError(t, err)

		var ids []string
		for _, conn := range conns {
			ids = append(ids, conn.ConnectionID)
		}
		sort.Strings(ids)
		assert.Equal(t, []string{"c1", "c3"}, ids)
	})

	t.Run("lookup by username", func(t *testing.T) {
		store := newMemStore()
		registry := NewRegistry(store, newMemUsers(), zerolog.Nop())

		assert.NoError(t, registry.Register(ctx, "c1", "alice", "ep"))
		assert.NoError(t, registry.Register(ctx, "c2", "alice", "ep"))
		assert.NoError(t, registry.Register(ctx, "c3", "bob", "ep"))

		ids, err := registry.Lookup(ctx, "alice")
		assert.NoError(t, err)
		sort.Strings(ids)
		assert.Equal(t, []string{"c1", "c2"}, ids)

		ids, err = registry.Lookup(ctx, "carol")
		assert.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("deregister user removes every device", func(t *testing.T) {
		store := newMemStore()
		registry := NewRegistry(store, newMemUsers(), zerolog.Nop())

		assert.NoError(t, registry.Register(ctx, "c1", "alice", "ep"))
		assert.NoError(t, registry.Register(ctx, "c2", "alice", "ep"))
		assert.NoError(t, registry.Register(ctx, "c3", "bob", "ep"))

		removed, err := registry.DeregisterUser(ctx, "alice")
		assert.NoError(t, err)
		assert.Equal(t, 2, removed)

		conns, err := registry.ListActive(ctx)
		assert.NoError(t, err)
		assert.Len(t, conns, 1)
		assert.Equal(t, "c3", conns[0].ConnectionID)
	})

	t.Run("resolve unknown returns nil", func(t *testing.T) {
		registry := NewRegistry(newMemStore(), newMemUsers(), zerolog.Nop())

		conn, err := registry.Resolve(ctx, "nope")
		assert.NoError(t, err)
		assert.Nil(t, conn)
	})
}
