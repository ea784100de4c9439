package chatws

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/apigatewaymanagementapi"
	"github.com/aws/aws-sdk-go/service/apigatewaymanagementapi/apigatewaymanagementapiiface"
)

// ErrGone indicates the target connection no longer exists at the transport.
// Implementations wrap it so callers can distinguish a dead connection from
// a transient delivery fault.
var ErrGone = errors.New("connection gone")

// IsGone reports whether err wraps ErrGone.
func IsGone(err error) bool {
	return errors.Is(err, ErrGone)
}

// Transport is the push-delivery primitive of the WebSocket gateway: a
// server-initiated send to an already-open client connection.
type Transport interface {
	Send(ctx context.Context, endpoint, connectionID string, data []byte) error
}

// ManagementAPI delivers frames through the API Gateway Management API.
type ManagementAPI struct {
	// clients caches management API clients by endpoint
	mu      sync.RWMutex
	clients map[string]apigatewaymanagementapiiface.ApiGatewayManagementApiAPI
}

// NewManagementAPI creates a ManagementAPI transport.
func NewManagementAPI() *ManagementAPI {
	return &ManagementAPI{
		clients: map[string]apigatewaymanagementapiiface.ApiGatewayManagementApiAPI{},
	}
}

// Send posts data to a connection via the management API endpoint the
// connection was registered under.
func (t *ManagementAPI) Send(ctx context.Context, endpoint, connectionID string, data []byte) error {
	client := t.client(endpoint)
	_, err := client.PostToConnectionWithContext(ctx, &apigatewaymanagementapi.PostToConnectionInput{
		ConnectionId: aws.String(connectionID),
		Data:         data,
	})
	if err != nil {
		if isGoneException(err) {
			return fmt.Errorf("connection %v: %w", connectionID, ErrGone)
		}
		return fmt.Errorf("posting to connection %v: %w", connectionID, err)
	}
	return nil
}

func (t *ManagementAPI) client(endpoint string) apigatewaymanagementapiiface.ApiGatewayManagementApiAPI {
	t.mu.RLock()
	if client, ok := t.clients[endpoint]; ok {
		t.mu.RUnlock()
		return client
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()

	// Double-check after acquiring write lock
	if client, ok := t.clients[endpoint]; ok {
		return client
	}

	if t.clients == nil {
		t.clients = map[string]apigatewaymanagementapiiface.ApiGatewayManagementApiAPI{}
	}

	sess := session.Must(session.NewSession(aws.NewConfig().WithEndpoint(endpoint)))
	client := apigatewaymanagementapi.New(sess)
	t.clients[endpoint] = client
	return client
}

// isGoneException checks if the error is a GoneException (HTTP 410),
// indicating the WebSocket connection no longer exists. Only the typed code
// and the exception name count; anything looser risks misreading a
// transient error as gone and pruning a live connection.
func isGoneException(err error) bool {
	if aerr, ok := err.(awserr.Error); ok && aerr.Code() == apigatewaymanagementapi.ErrCodeGoneException {
		return true
	}
	return strings.Contains(err.Error(), "GoneException")
}
