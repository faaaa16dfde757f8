package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/kinoroom/server/internal/domain"
)

const (
	immediateRetries = 3
	retryBase        = time.Second
	viewerRetryCap   = 30 * time.Minute
	maxAttempts      = 10
)

// EventHandler re-emits a relayed event to the instance's local
// connections, excluding the origin connection.
type EventHandler func(ctx context.Context, event domain.Event, excludedConnId string) error

// Consumer is this replica's subscriber on the room-event stream. Each
// replica owns a dedicated consumer group, so every replica receives
// every message; events originating on this instance are discarded
// because local dispatch already delivered them.
type Consumer struct {
	broker     *Broker
	instanceId string
	handler    EventHandler
	logger     *slog.Logger
	now        func() time.Time
}

func NewConsumer(broker *Broker, instanceId string, handler EventHandler, logger *slog.Logger) *Consumer {
	return &Consumer{
		broker:     broker,
		instanceId: instanceId,
		handler:    handler,
		logger:     logger,
		now:        time.Now,
	}
}

func (c *Consumer) group() string {
	return "relay:" + c.instanceId
}

func (c *Consumer) Run(ctx context.Context) error {
	if err := c.broker.EnsureGroup(ctx, StreamRoomEvents, c.group()); err != nil {
		return err
	}
	// The group is per-instance; drop it on shutdown so restarted
	// replicas do not leave dead groups behind.
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.broker.DestroyGroup(cleanupCtx, StreamRoomEvents, c.group()); err != nil {
			c.logger.WarnContext(cleanupCtx, "failed to destroy consumer group", "error", err)
		}
	}()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := c.consumeDueRetries(ctx); err != nil {
			c.logger.WarnContext(ctx, "failed to consume due retries", "error", err)
		}

		messages, err := c.broker.ReadGroup(ctx, StreamRoomEvents, c.group(), c.instanceId, time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.WarnContext(ctx, "failed to read room events", "error", err)
			time.Sleep(time.Second)
			continue
		}

		for _, message := range messages {
			env, err := envelopeFromValues(message.Values)
			if err != nil {
				c.logger.WarnContext(ctx, "dropping malformed relay message", "message_id", message.Id, "error", err)
			} else {
				c.process(ctx, env)
			}

			if err := c.broker.Ack(ctx, StreamRoomEvents, c.group(), message.Id); err != nil {
				c.logger.WarnContext(ctx, "failed to ack relay message", "message_id", message.Id, "error", err)
			}
		}
	}
}

func (c *Consumer) process(ctx context.Context, env *Envelope) {
	// Echo suppression: local dispatch already delivered our own
	// events during the commit.
	if env.InstanceId == c.instanceId {
		return
	}

	event, err := env.Event()
	if err != nil {
		c.logger.WarnContext(ctx, "dropping undecodable relay event", "event_type", env.EventType, "error", err)
		return
	}

	var lastErr error
	for attempt := 0; attempt < immediateRetries; attempt++ {
		lastErr = c.handler(ctx, event, env.ExcludedConnId)
		if lastErr == nil {
			return
		}
		if isTerminal(lastErr) {
			c.logger.InfoContext(ctx, "dropping relay event", "event_type", env.EventType, "room_id", env.RoomId, "error", lastErr)
			return
		}
	}

	c.scheduleRetry(ctx, env, lastErr)
}

func (c *Consumer) scheduleRetry(ctx context.Context, env *Envelope, cause error) {
	env.Attempt++
	if env.Attempt > maxAttempts {
		c.park(ctx, env, cause)
		return
	}

	backoff := retryBase << (env.Attempt - 1)
	if backoff > viewerRetryCap || backoff <= 0 {
		backoff = viewerRetryCap
	}

	payload, err := json.Marshal(env)
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to marshal retry envelope", "error", err)
		return
	}

	due := c.now().Add(backoff)
	if err := c.broker.ScheduleRetry(ctx, StreamRoomEvents, c.group(), payload, due); err != nil {
		c.logger.ErrorContext(ctx, "failed to schedule retry", "error", err)
		return
	}

	c.logger.InfoContext(ctx, "relay event scheduled for retry",
		"event_type", env.EventType,
		"room_id", env.RoomId,
		"attempt", env.Attempt,
		"backoff", backoff.String(),
		"error", cause,
	)
}

// park moves an envelope that exhausted its retries onto the group's
// parked list for manual inspection.
func (c *Consumer) park(ctx context.Context, env *Envelope, cause error) {
	payload, err := json.Marshal(env)
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to marshal parked envelope", "error", err)
		return
	}

	if err := c.broker.Park(ctx, StreamRoomEvents, c.group(), payload); err != nil {
		c.logger.ErrorContext(ctx, "failed to park relay event", "error", err)
		return
	}

	c.logger.ErrorContext(ctx, "relay event parked after exhausting retries",
		"event_type", env.EventType,
		"room_id", env.RoomId,
		"attempt", env.Attempt,
		"error", cause,
	)
}

func (c *Consumer) consumeDueRetries(ctx context.Context) error {
	payloads, err := c.broker.PopDueRetries(ctx, StreamRoomEvents, c.group(), c.now())
	if err != nil {
		return err
	}

	for _, payload := range payloads {
		var env Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			c.logger.WarnContext(ctx, "dropping malformed retry payload", "error", err)
			continue
		}

		c.process(ctx, &env)
	}

	return nil
}

// isTerminal reports errors excluded from retry: the room or viewer is
// gone, redelivery can never succeed.
func isTerminal(err error) bool {
	return errors.Is(err, domain.ErrRoomNotFound) || errors.Is(err, domain.ErrViewerNotFound)
}
