package chatannounce

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	chatcli "github.com/chatline-io/chatline/chat-cli"
	chatws "github.com/chatline-io/chatline/chat-ws"
	consumer "github.com/harlow/kinesis-consumer"
	"github.com/rs/zerolog"
)

// Handler drains the announcements stream and fans each envelope out to
// every registered connection. Announcements have no sender, so nothing is
// excluded from the fanout.
type Handler struct {
	Service chatcli.Service
	Logger  zerolog.Logger
	Engine  *chatws.Engine
}

// NewHandler creates an announcements Handler over the given engine.
func NewHandler(service chatcli.Service, engine *chatws.Engine) *Handler {
	return &Handler{
		Service: service,
		Logger:  chatcli.Logger(service),
		Engine:  engine,
	}
}

// Start runs as a Lambda Kinesis consumer, or scans the stream live in
// console mode.
func (h *Handler) Start() error {
	if !chatcli.CommonOpts.Console {
		lambda.Start(h.HandleKinesisEvent)
		return nil
	}
	return h.handleRealtime()
}

// HandleKinesisEvent processes a batch of Kinesis records, broadcasting each
// announcement to the active connection set.
func (h *Handler) HandleKinesisEvent(ctx context.Context, event events.KinesisEvent) error {
	for _, record := range event.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.Logger.Error().Err(err).
				Str("event_id", record.EventID).
				Msg("failed to process kinesis record")
			// Continue processing other records rather than failing the whole batch
		}
	}
	return nil
}

func (h *Handler) processRecord(ctx context.Context, record events.KinesisEventRecord) error {
	var envelope Envelope
	if err := json.Unmarshal(record.Kinesis.Data, &envelope); err != nil {
		return fmt.Errorf("unmarshalling kinesis record: %w", err)
	}

	frame, err := chatws.AnnouncementFrame(envelope.Payload, envelope.PublishedAt)
	if err != nil {
		return fmt.Errorf("building announcement frame: %w", err)
	}

	result, err := h.Engine.FanOut(ctx, "", frame)
	if err != nil {
		return fmt.Errorf("broadcasting announcement: %w", err)
	}

	h.Logger.Info().
		Str("channel", envelope.Channel).
		Int("delivered", result.Delivered).
		Int("pruned", len(result.Pruned)).
		Int("failed", len(result.Failed)).
		Msg("announcement broadcast")
	return nil
}

func (h *Handler) handleRealtime() error {
	streamName := AnnounceOpts.StreamName
	if streamName == "" {
		streamName = StreamName(chatcli.CommonOpts.Env)
	}

	var options []consumer.Option
	if AnnounceOpts.Replay {
		options = append(options, consumer.WithShardIteratorType("TRIM_HORIZON"))
	} else {
		options = append(options, consumer.WithShardIteratorType("LATEST"))
	}
	c, err := consumer.New(streamName, options...)
	if err != nil {
		return err
	}

	ctx := h.Logger.WithContext(context.Background())
	callback := func(record *consumer.Record) error {
		er := events.KinesisEventRecord{
			Kinesis: events.KinesisRecord{Data: record.Data},
		}
		return h.processRecord(ctx, er)
	}
	fmt.Println("Listening...")
	return c.Scan(ctx, callback)
}
