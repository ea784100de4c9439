// Package local emulates the WebSocket gateway for console-mode runs: it
// terminates client connections in-process, feeds the same proxy events to
// the handler that API Gateway would, and serves as the push-delivery
// transport for fanout.
package local

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	chatws "github.com/chatline-io/chatline/chat-ws"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// EventHandler consumes a synthesized gateway event.
type EventHandler func(ctx context.Context, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error)

type conn struct {
	ws *websocket.Conn
	mu sync.Mutex // serializes writes; fanout sends are concurrent
}

func (c *conn) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Gateway is an in-process stand-in for the API Gateway WebSocket transport.
type Gateway struct {
	logger   zerolog.Logger
	stage    string
	events   EventHandler
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[string]*conn
}

// NewGateway creates a local gateway. The event handler is attached
// afterwards via SetEventHandler, since the handler in turn needs the
// gateway as its transport.
func NewGateway(logger zerolog.Logger) *Gateway {
	return &Gateway{
		logger: logger,
		stage:  "local",
		conns:  map[string]*conn{},
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// SetEventHandler attaches the consumer of synthesized gateway events.
func (g *Gateway) SetEventHandler(events EventHandler) {
	g.events = events
}

// Send implements chatws.Transport over the in-process connections.
func (g *Gateway) Send(ctx context.Context, endpoint, connectionID string, data []byte) error {
	g.mu.RLock()
	c, ok := g.conns[connectionID]
	g.mu.RUnlock()
	if !ok {
		return fmt.Errorf("connection %v: %w", connectionID, chatws.ErrGone)
	}

	if err := c.write(data); err != nil {
		g.drop(connectionID)
		return fmt.Errorf("connection %v: %w", connectionID, chatws.ErrGone)
	}
	return nil
}

// ServeHTTP upgrades an incoming websocket client and pumps its messages
// through the event handler until it disconnects.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if username == "" {
		http.Error(w, "missing username", http.StatusBadRequest)
		return
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn().Err(err).Msg("upgrade failed")
		return
	}

	connID := uuid.NewString()
	logger := g.logger.With().Str("connection_id", connID).Str("username", username).Logger()

	// Register the socket before dispatching $connect: once the handler
	// persists the connection a concurrent fanout may target it, and a
	// Send miss here would wrongly prune a brand-new connection.
	g.mu.Lock()
	g.conns[connID] = &conn{ws: ws}
	g.mu.Unlock()

	resp, err := g.dispatch(r.Context(), connID, "$connect", "", map[string]string{"username": username})
	if err != nil || resp.StatusCode != http.StatusOK {
		logger.Warn().Err(err).Int("status", resp.StatusCode).Msg("connect rejected")
		g.drop(connID)
		return
	}
	logger.Info().Msg("client connected")

	for {
		kind, data, err := ws.ReadMessage()
		if err != nil {
			break
		}
		if kind != websocket.TextMessage {
			continue
		}
		if _, err := g.dispatch(context.Background(), connID, "$default", string(data), nil); err != nil {
			logger.Warn().Err(err).Msg("event handler failed")
		}
	}

	g.drop(connID)
	if _, err := g.dispatch(context.Background(), connID, "$disconnect", "", nil); err != nil {
		logger.Warn().Err(err).Msg("disconnect handler failed")
	}
	logger.Info().Msg("client disconnected")
}

// ListenAndServe registers the /ws route and blocks serving clients.
func (g *Gateway) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", g)
	g.logger.Info().Str("addr", addr).Msg("local gateway listening")
	return http.ListenAndServe(addr, mux)
}

func (g *Gateway) dispatch(ctx context.Context, connID, routeKey, body string, query map[string]string) (events.APIGatewayProxyResponse, error) {
	if g.events == nil {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError}, fmt.Errorf("no event handler attached")
	}
	return g.events(ctx, events.APIGatewayWebsocketProxyRequest{
		Body:                  body,
		QueryStringParameters: query,
		RequestContext: events.APIGatewayWebsocketProxyRequestContext{
			ConnectionID: connID,
			RouteKey:     routeKey,
			DomainName:   "localhost",
			Stage:        g.stage,
		},
	})
}

func (g *Gateway) drop(connID string) {
	g.mu.Lock()
	c, ok := g.conns[connID]
	if ok {
		delete(g.conns, connID)
	}
	g.mu.Unlock()
	if ok {
		c.ws.Close()
	}
}
