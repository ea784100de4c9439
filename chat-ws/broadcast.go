package chatws

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Message is one logical chat message to fan out. It exists only for the
// duration of one Broadcast call and is never persisted.
type Message struct {
	SenderConnectionID string
	SenderUsername     string
	Payload            string
	SentAt             time.Time
}

// FailedDelivery records a recipient whose delivery attempts were exhausted.
type FailedDelivery struct {
	ConnectionID string
	Err          error
}

// Result summarizes the per-recipient outcomes of one broadcast.
type Result struct {
	Delivered int
	Pruned    []string
	Failed    []FailedDelivery
}

// Engine fans a message out to every registered connection. Delivery
// attempts are independent and unordered; a recipient failure never fails
// the broadcast as a whole. Connections the transport reports gone are
// pruned from the registry on the way through, converging the registry
// toward truth without a sweep process.
type Engine struct {
	Registry  *Registry
	Transport Transport
	Logger    zerolog.Logger

	Concurrency   int           // max concurrent sends (default 50)
	MaxAttempts   int           // delivery attempts per recipient (default 3)
	RetryBackoff  time.Duration // base backoff, doubled per attempt (default 100ms)
	SendTimeout   time.Duration // per-attempt timeout (default 5s)
	IncludeSender bool          // deliver to the sender's own connection too
}

// NewEngine creates an Engine with the default delivery policy.
func NewEngine(registry *Registry, transport Transport, logger zerolog.Logger) *Engine {
	return &Engine{
		Registry:  registry,
		Transport: transport,
		Logger:    logger,
	}
}

// Broadcast delivers a chat message to every registered connection except,
// by default, the sender's own. The sender does not have to be registered
// itself; identity comes from the claimed connection id.
func (e *Engine) Broadcast(ctx context.Context, msg Message) (Result, error) {
	data, err := MessageFrame(msg.SenderUsername, msg.Payload, msg.SentAt)
	if err != nil {
		return Result{}, err
	}

	exclude := msg.SenderConnectionID
	if e.IncludeSender {
		exclude = ""
	}
	return e.FanOut(ctx, exclude, data)
}

// FanOut delivers an already-encoded frame to every registered connection
// except excludeConnectionID (empty means no exclusion). It fails only when
// the registry snapshot cannot be obtained; everything past that point is
// reported per recipient in the Result.
func (e *Engine) FanOut(ctx context.Context, excludeConnectionID string, data []byte) (Result, error) {
	conns, err := e.Registry.ListActive(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("broadcast snapshot: %w", err)
	}

	concurrency := e.Concurrency
	if concurrency <= 0 {
		concurrency = 50
	}

	var (
		mu     sync.Mutex
		result Result
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, conn := range conns {
		if conn.ConnectionID == excludeConnectionID {
			continue
		}
		conn := conn
		g.Go(func() error {
			switch err := e.deliver(ctx, conn.Endpoint, conn.ConnectionID, data); {
			case err == nil:
				mu.Lock()
				result.Delivered++
				mu.Unlock()

			case IsGone(err):
				e.Logger.Info().
					Str("connection_id", conn.ConnectionID).
					Msg("connection gone, pruning")
				if err := e.Registry.Deregister(ctx, conn.ConnectionID); err != nil {
					e.Logger.Error().Err(err).
						Str("connection_id", conn.ConnectionID).
						Msg("failed to prune gone connection")
				}
				mu.Lock()
				result.Pruned = append(result.Pruned, conn.ConnectionID)
				mu.Unlock()

			default:
				mu.Lock()
				result.Failed = append(result.Failed, FailedDelivery{
					ConnectionID: conn.ConnectionID,
					Err:          err,
				})
				mu.Unlock()
			}
			return nil
		})
	}

	g.Wait()
	return result, nil
}

// deliver attempts one recipient, retrying transient faults with bounded
// exponential backoff. A timed-out attempt counts as transient; only an
// explicit gone signal short-circuits the retries.
func (e *Engine) deliver(ctx context.Context, endpoint, connectionID string, data []byte) error {
	maxAttempts := e.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	backoff := e.RetryBackoff
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	timeout := e.SendTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		sendCtx, cancel := context.WithTimeout(ctx, timeout)
		err := e.Transport.Send(sendCtx, endpoint, connectionID, data)
		cancel()

		if err == nil {
			return nil
		}
		if IsGone(err) {
			return err
		}
		lastErr = err

		if attempt < maxAttempts-1 {
			timer := time.NewTimer(backoff << attempt)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("delivery to %v cancelled: %w", connectionID, ctx.Err())
			case <-timer.C:
			}
		}
	}
	return fmt.Errorf("delivery to %v failed after %d attempts: %w", connectionID, maxAttempts, lastErr)
}
