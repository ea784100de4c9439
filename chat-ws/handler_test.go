package chatws

import (
	"context"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"
	"github.com/tj/assert"
)

func testHandler() (*Handler, *fakeTransport) {
	transport := newFakeTransport()
	registry := NewRegistry(newMemStore(), newMemUsers(), zerolog.Nop())
	engine := NewEngine(registry, transport, zerolog.Nop())
	return &Handler{
		Registry:  registry,
		Engine:    engine,
		Transport: transport,
		Logger:    zerolog.Nop(),
	}, transport
}

func wsEvent(routeKey, connectionID, body string) events.APIGatewayWebsocketProxyRequest {
	return events.APIGatewayWebsocketProxyRequest{
		Body: body,
		RequestContext: events.APIGatewayWebsocketProxyRequestContext{
			RouteKey:     routeKey,
			ConnectionID: connectionID,
			DomainName:   "ws.example.com",
			Stage:        "dev",
		},
	}
}

func connectEvent(connectionID, username string) events.APIGatewayWebsocketProxyRequest {
	event := wsEvent("$connect", connectionID, "")
	if username != "" {
		event.QueryStringParameters = map[string]string{"username": username}
	}
	return event
}

func TestHandleEvent(t *testing.T) {
	ctx := context.Background()

	t.Run("connect registers the connection", func(t *testing.T) {
		handler, _ := testHandler()

		resp, err := handler.HandleEvent(ctx, connectEvent("c1", "alice"))
		assert.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)

		conn, err := handler.Registry.Resolve(ctx, "c1")
		assert.NoError(t, err)
		assert.NotNil(t, conn)
		assert.Equal(t, "alice", conn.Username)
		assert.Equal(t, "https://ws.example.com/dev", conn.Endpoint)
	})

	t.Run("connect without username is rejected", func(t *testing.T) {
		handler, _ := testHandler()

		resp, err := handler.HandleEvent(ctx, connectEvent("c1", ""))
		assert.NoError(t, err)
		assert.Equal(t, 400, resp.StatusCode)

		conn, err := handler.Registry.Resolve(ctx, "c1")
		assert.NoError(t, err)
		assert.Nil(t, conn)
	})

	t.Run("duplicate connect fails without overwriting", func(t *testing.T) {
		handler, _ := testHandler()

		resp, err := handler.HandleEvent(ctx, connectEvent("c1", "alice"))
		assert.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)

		resp, err = handler.HandleEvent(ctx, connectEvent("c1", "bob"))
		assert.NoError(t, err)
		assert.Equal(t, 500, resp.StatusCode)

		conn, err := handler.Registry.Resolve(ctx, "c1")
		assert.NoError(t, err)
		assert.Equal(t, "alice", conn.Username)
	})

	t.Run("disconnect removes the connection", func(t *testing.T) {
		handler, _ := testHandler()

		_, err := handler.HandleEvent(ctx, connectEvent("c1", "alice"))
		assert.NoError(t, err)

		resp, err := handler.HandleEvent(ctx, wsEvent("$disconnect", "c1", ""))
		assert.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)

		conn, err := handler.Registry.Resolve(ctx, "c1")
		assert.NoError(t, err)
		assert.Nil(t, conn)
	})

	t.Run("disconnect for an unknown connection still succeeds", func(t *testing.T) {
		handler, _ := testHandler()

		resp, err := handler.HandleEvent(ctx, wsEvent("$disconnect", "never-seen", ""))
		assert.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
	})

	t.Run("broadcast reaches everyone but the sender", func(t *testing.T) {
		handler, transport := testHandler()

		for _, c := range []struct{ id, user string }{{"c1", "alice"}, {"c2", "bob"}, {"c3", "carol"}} {
			_, err := handler.HandleEvent(ctx, connectEvent(c.id, c.user))
			assert.NoError(t, err)
		}

		resp, err := handler.HandleEvent(ctx, wsEvent("broadcast", "c1", `{"action":"broadcast","payload":"hi all"}`))
		assert.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)

		assert.Equal(t, 0, transport.sentTo("c1"))
		assert.Equal(t, 1, transport.sentTo("c2"))
		assert.Equal(t, 1, transport.sentTo("c3"))

		frame, err := ParseFrame(transport.sent["c2"][0])
		assert.NoError(t, err)
		assert.Equal(t, FrameMessage, frame.Type)
		assert.Equal(t, "alice", frame.Sender)
	})

	t.Run("broadcast with malformed body is rejected", func(t *testing.T) {
		handler, _ := testHandler()

		resp, err := handler.HandleEvent(ctx, wsEvent("broadcast", "c1", `not json`))
		assert.NoError(t, err)
		assert.Equal(t, 400, resp.StatusCode)
	})

	t.Run("default route dispatches on body action", func(t *testing.T) {
		handler, transport := testHandler()

		_, err := handler.HandleEvent(ctx, connectEvent("c1", "alice"))
		assert.NoError(t, err)
		_, err = handler.HandleEvent(ctx, connectEvent("c2", "bob"))
		assert.NoError(t, err)

		resp, err := handler.HandleEvent(ctx, wsEvent("$default", "c1", `{"action":"broadcast","payload":"hey"}`))
		assert.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, 1, transport.sentTo("c2"))

		resp, err = handler.HandleEvent(ctx, wsEvent("$default", "c1", `{"action":"selfDestruct"}`))
		assert.NoError(t, err)
		assert.Equal(t, 400, resp.StatusCode)
	})

	t.Run("getUsers answers the requester only", func(t *testing.T) {
		handler, transport := testHandler()

		_, err := handler.HandleEvent(ctx, connectEvent("c1", "alice"))
		assert.NoError(t, err)
		_, err = handler.HandleEvent(ctx, connectEvent("c2", "alice"))
		assert.NoError(t, err)
		_, err = handler.HandleEvent(ctx, connectEvent("c3", "bob"))
		assert.NoError(t, err)

		resp, err := handler.HandleEvent(ctx, wsEvent("getUsers", "c3", `{"action":"getUsers"}`))
		assert.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, 1, transport.sentTo("c3"))
		assert.Equal(t, 0, transport.sentTo("c1"))

		frame, err := ParseFrame(transport.sent["c3"][0])
		assert.NoError(t, err)
		assert.Equal(t, FrameUsers, frame.Type)
		// one entry per connection, multi-device users appear per device
		assert.Len(t, frame.Users, 3)
	})

	t.Run("getUsers to a gone requester returns 410", func(t *testing.T) {
		handler, transport := testHandler()
		transport.gone["c1"] = true

		_, err := handler.HandleEvent(ctx, connectEvent("c2", "bob"))
		assert.NoError(t, err)

		resp, err := handler.HandleEvent(ctx, wsEvent("getUsers", "c1", `{"action":"getUsers"}`))
		assert.NoError(t, err)
		assert.Equal(t, 410, resp.StatusCode)
	})

	t.Run("unknown route is rejected", func(t *testing.T) {
		handler, _ := testHandler()

		resp, err := handler.HandleEvent(ctx, wsEvent("teleport", "c1", ""))
		assert.NoError(t, err)
		assert.Equal(t, 400, resp.StatusCode)
	})
}
