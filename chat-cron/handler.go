// Package chatcron provides utilities for building scheduled Lambda functions.
package chatcron

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-lambda-go/lambda"
	chatcli "github.com/chatline-io/chatline/chat-cli"
	"github.com/rs/zerolog"
)

type RunCallback func(ctx context.Context) error

type Handler struct {
	service chatcli.Service
	logger  zerolog.Logger

	runOnce RunCallback
}

func NewHandler(
	service chatcli.Service,
	runOnce RunCallback,
) *Handler {
	return &Handler{
		service: service,
		logger:  chatcli.Logger(service),
		runOnce: runOnce,
	}
}

func (h *Handler) RunOnce(ctx context.Context, _ json.RawMessage) error {
	h.logger.Info().Msg("running scheduled task")
	return h.runOnce(ctx)
}

func (h *Handler) Start() error {
	if chatcli.CommonOpts.Console {
		return h.runOnce(context.Background())
	}
	lambda.Start(h.RunOnce)
	return nil
}
