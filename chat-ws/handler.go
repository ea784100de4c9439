package chatws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	chatcli "github.com/chatline-io/chatline/chat-cli"
	"github.com/rs/zerolog"
)

// Handler routes API Gateway WebSocket events to the registry and the
// broadcast engine. Every invocation is an independent unit of work: no
// state survives between events except through the durable stores.
type Handler struct {
	Registry  *Registry
	Engine    *Engine
	Transport Transport
	Logger    zerolog.Logger
	Metrics   *chatcli.Metrics
}

// HandleEvent routes an API Gateway WebSocket event to the appropriate handler.
func (h *Handler) HandleEvent(ctx context.Context, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	logger := h.Logger.With().
		Str("connection_id", req.RequestContext.ConnectionID).
		Str("route", req.RequestContext.RouteKey).
		Logger()

	if h.Metrics != nil {
		defer h.Metrics.Timing(ctx, chatcli.ResponseTimeMetric, time.Now(), map[chatcli.DimensionName]string{
			chatcli.RouteKeyDimension: req.RequestContext.RouteKey,
		})
	}

	switch req.RequestContext.RouteKey {
	case "$connect":
		return h.handleConnect(ctx, logger, req)
	case "$disconnect":
		return h.handleDisconnect(ctx, logger, req)
	case ActionBroadcast:
		return h.handleBroadcast(ctx, logger, req)
	case ActionGetUsers:
		return h.handleGetUsers(ctx, logger, req)
	case "$default":
		return h.handleDefault(ctx, logger, req)
	default:
		logger.Warn().Msg("unknown route")
		return events.APIGatewayProxyResponse{StatusCode: 400}, nil
	}
}

// handleDefault covers deployments without per-action routes: the action is
// read from the body instead of the route key.
func (h *Handler) handleDefault(ctx context.Context, logger zerolog.Logger, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	request, err := ParseRequest(req.Body)
	if err != nil {
		logger.Warn().Err(err).Msg("invalid request")
		return events.APIGatewayProxyResponse{StatusCode: 400}, nil
	}

	switch request.Action {
	case ActionBroadcast:
		return h.handleBroadcast(ctx, logger, req)
	case ActionGetUsers:
		return h.handleGetUsers(ctx, logger, req)
	default:
		logger.Warn().Str("action", request.Action).Msg("unknown action")
		return events.APIGatewayProxyResponse{StatusCode: 400}, nil
	}
}

func (h *Handler) handleConnect(ctx context.Context, logger zerolog.Logger, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	username := req.QueryStringParameters["username"]
	if username == "" {
		logger.Warn().Msg("connect without username")
		return events.APIGatewayProxyResponse{StatusCode: 400}, nil
	}

	connID := req.RequestContext.ConnectionID
	endpoint := callbackEndpoint(req)

	if err := h.Registry.Register(ctx, connID, username, endpoint); err != nil {
		if IsAlreadyExists(err) {
			// The gateway promised unique connection ids; surface the
			// violation rather than overwrite the live record.
			logger.Error().Err(err).Msg("duplicate connection id")
			return events.APIGatewayProxyResponse{StatusCode: 500}, nil
		}
		logger.Error().Err(err).Msg("failed to store connection")
		return events.APIGatewayProxyResponse{StatusCode: 500}, nil
	}

	logger.Info().Str("username", username).Msg("connection established")
	return events.APIGatewayProxyResponse{StatusCode: 200}, nil
}

func (h *Handler) handleDisconnect(ctx context.Context, logger zerolog.Logger, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	if err := h.Registry.Deregister(ctx, req.RequestContext.ConnectionID); err != nil {
		logger.Error().Err(err).Msg("failed to delete connection")
		return events.APIGatewayProxyResponse{StatusCode: 500}, nil
	}

	logger.Info().Msg("connection closed")
	return events.APIGatewayProxyResponse{StatusCode: 200}, nil
}

func (h *Handler) handleBroadcast(ctx context.Context, logger zerolog.Logger, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	request, err := ParseRequest(req.Body)
	if err != nil {
		logger.Warn().Err(err).Msg("invalid broadcast request")
		return events.APIGatewayProxyResponse{StatusCode: 400}, nil
	}

	connID := req.RequestContext.ConnectionID

	// Sender identity comes from the claimed connection id; a sender that is
	// no longer (or never was) registered still broadcasts, just anonymously.
	var username string
	if conn, err := h.Registry.Resolve(ctx, connID); err != nil {
		logger.Warn().Err(err).Msg("failed to resolve sender")
	} else if conn != nil {
		username = conn.Username
	}

	result, err := h.Engine.Broadcast(ctx, Message{
		SenderConnectionID: connID,
		SenderUsername:     username,
		Payload:            request.Payload,
		SentAt:             time.Now(),
	})
	if err != nil {
		logger.Error().Err(err).Msg("broadcast failed")
		return events.APIGatewayProxyResponse{StatusCode: 500}, nil
	}

	logger.Info().
		Int("delivered", result.Delivered).
		Int("pruned", len(result.Pruned)).
		Int("failed", len(result.Failed)).
		Msg("broadcast complete")

	if h.Metrics != nil {
		h.Metrics.Count(ctx, chatcli.MessagesDeliveredMetric, float64(result.Delivered))
		if len(result.Pruned) > 0 {
			h.Metrics.Count(ctx, chatcli.ConnectionsPrunedMetric, float64(len(result.Pruned)))
		}
	}

	return events.APIGatewayProxyResponse{StatusCode: 200}, nil
}

func (h *Handler) handleGetUsers(ctx context.Context, logger zerolog.Logger, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	conns, err := h.Registry.ListActive(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("failed to list connections")
		return events.APIGatewayProxyResponse{StatusCode: 500}, nil
	}

	users := make([]UserEntry, 0, len(conns))
	for _, conn := range conns {
		users = append(users, UserEntry{
			Username:     conn.Username,
			ConnectionID: conn.ConnectionID,
		})
	}

	frame, err := UsersFrame(users)
	if err != nil {
		logger.Error().Err(err).Msg("failed to build users frame")
		return events.APIGatewayProxyResponse{StatusCode: 500}, nil
	}

	if err := h.Transport.Send(ctx, callbackEndpoint(req), req.RequestContext.ConnectionID, frame); err != nil {
		logger.Error().Err(err).Msg("failed to send users frame")
		if IsGone(err) {
			// The requester disappeared between asking and answering.
			return events.APIGatewayProxyResponse{StatusCode: 410}, nil
		}
		return events.APIGatewayProxyResponse{StatusCode: 500}, nil
	}

	logger.Debug().Int("users", len(users)).Msg("users frame sent")
	return events.APIGatewayProxyResponse{StatusCode: 200}, nil
}

func callbackEndpoint(req events.APIGatewayWebsocketProxyRequest) string {
	return fmt.Sprintf("https://%s/%s", req.RequestContext.DomainName, req.RequestContext.Stage)
}
