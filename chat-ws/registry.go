// Package chatws implements the chat backend behind the WebSocket gateway:
// the connection registry over the durable stores, the broadcast fanout
// engine, and the Lambda route dispatcher.
package chatws

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chatline-io/chatline/chat-ws/connectiondao"
	"github.com/rs/zerolog"
)

// ErrAlreadyExists indicates a Register call for a connection id that is
// already present. Connection ids are unique per the gateway contract, so
// this is a contract violation, not a retryable condition.
var ErrAlreadyExists = connectiondao.ErrConnectionExists

// ConnectionStore is the slice of the connections table the registry needs.
// Implemented by connectiondao.DAO.
type ConnectionStore interface {
	PutNew(ctx context.Context, conn connectiondao.Connection) error
	Get(ctx context.Context, connectionID string) (*connectiondao.Connection, error)
	Delete(ctx context.Context, connectionID string) (bool, error)
	Scan(ctx context.Context) ([]connectiondao.Connection, error)
	QueryByUsername(ctx context.Context, username string) ([]connectiondao.Connection, error)
	DeleteByUsername(ctx context.Context, username string) (int, error)
}

// UserStore is the slice of the users table the registry needs. Implemented
// by userdao.DAO.
type UserStore interface {
	Ensure(ctx context.Context, username string) error
}

// Registry is the single writer of connection records. Its read view is a
// best-effort snapshot: connections can vanish without a disconnect event,
// so membership never implies deliverability.
type Registry struct {
	connections ConnectionStore
	users       UserStore
	logger      zerolog.Logger
	connTTL     time.Duration
}

// NewRegistry creates a Registry over the two durable stores.
func NewRegistry(connections ConnectionStore, users UserStore, logger zerolog.Logger) *Registry {
	return &Registry{
		connections: connections,
		users:       users,
		logger:      logger,
		connTTL:     2 * time.Hour,
	}
}

// WithConnTTL overrides the TTL stamped onto connection records.
func (r *Registry) WithConnTTL(ttl time.Duration) *Registry {
	r.connTTL = ttl
	return r
}

// Register persists a new connection record and makes sure a minimal user
// profile exists for the username. A duplicate connection id fails with
// ErrAlreadyExists and leaves the existing record untouched.
func (r *Registry) Register(ctx context.Context, connectionID, username, endpoint string) error {
	now := time.Now()
	conn := connectiondao.Connection{
		ConnectionID: connectionID,
		Username:     username,
		Endpoint:     endpoint,
		ConnectedAt:  now.Unix(),
		TTL:          now.Add(r.connTTL).Unix(),
	}

	if err := r.connections.PutNew(ctx, conn); err != nil {
		return fmt.Errorf("failed to register connection %v: %w", connectionID, err)
	}

	if err := r.users.Ensure(ctx, username); err != nil {
		// The connection record is already live; a missing profile is not
		// worth tearing it down for.
		r.logger.Warn().Err(err).Str("username", username).Msg("failed to ensure user profile")
	}
	return nil
}

// Deregister removes a connection record. Deregistering an already absent
// connection is a success: disconnect events are delivered at-least-once by
// the gateway, and overlapping broadcasts may prune the same connection.
func (r *Registry) Deregister(ctx context.Context, connectionID string) error {
	found, err := r.connections.Delete(ctx, connectionID)
	if err != nil {
		return fmt.Errorf("failed to deregister connection %v: %w", connectionID, err)
	}
	if !found {
		r.logger.Debug().Str("connection_id", connectionID).Msg("connection already removed")
	}
	return nil
}

// DeregisterUser removes every connection for a username and returns how
// many were removed.
func (r *Registry) DeregisterUser(ctx context.Context, username string) (int, error) {
	removed, err := r.connections.DeleteByUsername(ctx, username)
	if err != nil {
		return 0, fmt.Errorf("failed to deregister user %v: %w", username, err)
	}
	return removed, nil
}

// ListActive returns a snapshot of the registered connections, with no
// ordering guarantee. The set may be stale by the time a caller acts on it.
func (r *Registry) ListActive(ctx context.Context) ([]connectiondao.Connection, error) {
	conns, err := r.connections.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active connections: %w", err)
	}
	return conns, nil
}

// Lookup returns the connection ids currently held by a username.
func (r *Registry) Lookup(ctx context.Context, username string) ([]string, error) {
	conns, err := r.connections.QueryByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to look up connections for %v: %w", username, err)
	}
	ids := make([]string, 0, len(conns))
	for _, conn := range conns {
		ids = append(ids, conn.ConnectionID)
	}
	return ids, nil
}

// Resolve returns the connection record for an id, or nil when unknown.
func (r *Registry) Resolve(ctx context.Context, connectionID string) (*connectiondao.Connection, error) {
	conn, err := r.connections.Get(ctx, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve connection %v: %w", connectionID, err)
	}
	return conn, nil
}

// IsAlreadyExists reports whether err wraps ErrAlreadyExists.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}
