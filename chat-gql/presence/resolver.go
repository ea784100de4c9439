// Package presence exposes the connection registry over GraphQL: who is
// online, which devices a user holds, and an admin kick mutation.
package presence

import (
	"context"
	_ "embed"
	"time"

	chatgql "github.com/chatline-io/chatline/chat-gql"
	chatws "github.com/chatline-io/chatline/chat-ws"
	"github.com/chatline-io/chatline/chat-ws/userdao"
)

//go:embed presence.gql
var schema string

// ProfileStore is the slice of the users table the resolver needs.
// Implemented by userdao.DAO.
type ProfileStore interface {
	Get(ctx context.Context, username string) (*userdao.User, error)
}

type Resolver struct {
	registry *chatws.Registry
	profiles ProfileStore
	config   *chatgql.BaseConfig
}

func NewResolver(registry *chatws.Registry, profiles ProfileStore, config *chatgql.BaseConfig) *Resolver {
	return &Resolver{
		registry: registry,
		profiles: profiles,
		config:   config,
	}
}

func (r *Resolver) Schema() string {
	return schema
}

func (r *Resolver) Config() *chatgql.BaseConfig {
	return r.config
}

type ActiveUser struct {
	Username     string
	ConnectionID string
	ConnectedAt  string
}

type Profile struct {
	Username   string
	Attributes *chatgql.JSON
}

func (r *Resolver) Users(ctx context.Context) ([]ActiveUser, error) {
	conns, err := r.registry.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	users := make([]ActiveUser, 0, len(conns))
	for _, conn := range conns {
		users = append(users, ActiveUser{
			Username:     conn.Username,
			ConnectionID: conn.ConnectionID,
			ConnectedAt:  time.Unix(conn.ConnectedAt, 0).UTC().Format(time.RFC3339),
		})
	}
	return users, nil
}

func (r *Resolver) Connections(ctx context.Context, args struct{ Username string }) ([]string, error) {
	return r.registry.Lookup(ctx, args.Username)
}

func (r *Resolver) User(ctx context.Context, args struct{ Username string }) (*Profile, error) {
	user, err := r.profiles.Get(ctx, args.Username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}

	profile := Profile{Username: user.Username}
	if len(user.Attributes) > 0 {
		attrs := map[string]interface{}{}
		for k, v := range user.Attributes {
			attrs[k] = v
		}
		profile.Attributes = &chatgql.JSON{Data: attrs}
	}
	return &profile, nil
}

func (r *Resolver) DisconnectUser(ctx context.Context, args struct{ Username string }) (int32, error) {
	removed, err := r.registry.DeregisterUser(ctx, args.Username)
	if err != nil {
		return 0, err
	}
	return int32(removed), nil
}
