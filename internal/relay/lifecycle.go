package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kinoroom/server/internal/domain"
)

// Upstream lifecycle message contracts.
const (
	MessageRoomCreated      = "room.created"
	MessageRoomDeleted      = "room.deleted"
	MessageRoomViewerJoined = "room.viewer.joined"
	MessageRoomViewerKicked = "room.viewer.kicked"
	MessageRoomViewerLeaved = "room.viewer.leaved"
	MessageCleanMessages    = "room.clean_messages"
)

type RoomCreated struct {
	Id       string        `json:"id"`
	Owner    domain.Viewer `json:"owner"`
	FilmId   string        `json:"film_id"`
	IsSerial bool          `json:"is_serial"`
}

type RoomDeleted struct {
	Id string `json:"id"`
}

type RoomViewerJoined struct {
	RoomId string        `json:"room_id"`
	Viewer domain.Viewer `json:"viewer"`
}

type RoomViewerKicked struct {
	RoomId   string `json:"room_id"`
	ViewerId string `json:"viewer_id"`
}

type RoomViewerLeaved struct {
	RoomId   string `json:"room_id"`
	ViewerId string `json:"viewer_id"`
}

type CleanMessages struct {
	RoomId string `json:"room_id"`
}

const cleanupRetryCap = 2 * time.Hour

// iLifecycleHandler applies upstream notifications. MessageId carries
// the broker message id for inbox-scoped dedupe.
type iLifecycleHandler interface {
	HandleRoomCreated(ctx context.Context, messageId string, params *RoomCreated) error
	HandleRoomDeleted(ctx context.Context, messageId string, params *RoomDeleted) error
	HandleViewerJoined(ctx context.Context, messageId string, params *RoomViewerJoined) error
	HandleViewerKicked(ctx context.Context, messageId string, params *RoomViewerKicked) error
	HandleViewerLeaved(ctx context.Context, messageId string, params *RoomViewerLeaved) error
	HandleCleanMessages(ctx context.Context, params *CleanMessages) error
}

// LifecycleConsumer processes the shared lifecycle stream. Unlike the
// relay group, the group here is one per deployment: replicas compete
// for messages and the inbox marker dedupes redeliveries.
type LifecycleConsumer struct {
	broker     *Broker
	handler    iLifecycleHandler
	instanceId string
	logger     *slog.Logger
	now        func() time.Time
}

const lifecycleGroup = "server"

func NewLifecycleConsumer(broker *Broker, handler iLifecycleHandler, instanceId string, logger *slog.Logger) *LifecycleConsumer {
	return &LifecycleConsumer{
		broker:     broker,
		handler:    handler,
		instanceId: instanceId,
		logger:     logger,
		now:        time.Now,
	}
}

type lifecycleMessage struct {
	MessageId string          `json:"message_id"`
	Type      string          `json:"type"`
	Attempt   int             `json:"attempt"`
	Payload   json.RawMessage `json:"payload"`
}

func (c *LifecycleConsumer) Run(ctx context.Context) error {
	if err := c.broker.EnsureGroup(ctx, StreamLifecycle, lifecycleGroup); err != nil {
		return err
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := c.consumeDueRetries(ctx); err != nil {
			c.logger.WarnContext(ctx, "failed to consume due retries", "error", err)
		}

		messages, err := c.broker.ReadGroup(ctx, StreamLifecycle, lifecycleGroup, c.instanceId, time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.WarnContext(ctx, "failed to read lifecycle messages", "error", err)
			time.Sleep(time.Second)
			continue
		}

		for _, message := range messages {
			msg := lifecycleMessage{MessageId: message.Id}
			msg.Type, _ = message.Values["type"].(string)
			if payload, ok := message.Values["payload"].(string); ok {
				msg.Payload = json.RawMessage(payload)
			}

			c.process(ctx, &msg)

			if err := c.broker.Ack(ctx, StreamLifecycle, lifecycleGroup, message.Id); err != nil {
				c.logger.WarnContext(ctx, "failed to ack lifecycle message", "message_id", message.Id, "error", err)
			}
		}
	}
}

func (c *LifecycleConsumer) process(ctx context.Context, msg *lifecycleMessage) {
	var lastErr error
	for attempt := 0; attempt < immediateRetries; attempt++ {
		lastErr = c.handle(ctx, msg)
		if lastErr == nil {
			return
		}
		if isTerminal(lastErr) {
			c.logger.InfoContext(ctx, "dropping lifecycle message", "type", msg.Type, "message_id", msg.MessageId, "error", lastErr)
			return
		}
	}

	c.scheduleRetry(ctx, msg, lastErr)
}

func (c *LifecycleConsumer) handle(ctx context.Context, msg *lifecycleMessage) error {
	switch msg.Type {
	case MessageRoomCreated:
		var params RoomCreated
		if err := json.Unmarshal(msg.Payload, &params); err != nil {
			return fmt.Errorf("failed to unmarshal payload: %w", err)
		}
		return c.handler.HandleRoomCreated(ctx, msg.MessageId, &params)
	case MessageRoomDeleted:
		var params RoomDeleted
		if err := json.Unmarshal(msg.Payload, &params); err != nil {
			return fmt.Errorf("failed to unmarshal payload: %w", err)
		}
		return c.handler.HandleRoomDeleted(ctx, msg.MessageId, &params)
	case MessageRoomViewerJoined:
		var params RoomViewerJoined
		if err := json.Unmarshal(msg.Payload, &params); err != nil {
			return fmt.Errorf("failed to unmarshal payload: %w", err)
		}
		return c.handler.HandleViewerJoined(ctx, msg.MessageId, &params)
	case MessageRoomViewerKicked:
		var params RoomViewerKicked
		if err := json.Unmarshal(msg.Payload, &params); err != nil {
			return fmt.Errorf("failed to unmarshal payload: %w", err)
		}
		return c.handler.HandleViewerKicked(ctx, msg.MessageId, &params)
	case MessageRoomViewerLeaved:
		var params RoomViewerLeaved
		if err := json.Unmarshal(msg.Payload, &params); err != nil {
			return fmt.Errorf("failed to unmarshal payload: %w", err)
		}
		return c.handler.HandleViewerLeaved(ctx, msg.MessageId, &params)
	case MessageCleanMessages:
		var params CleanMessages
		if err := json.Unmarshal(msg.Payload, &params); err != nil {
			return fmt.Errorf("failed to unmarshal payload: %w", err)
		}
		return c.handler.HandleCleanMessages(ctx, &params)
	default:
		c.logger.WarnContext(ctx, "dropping unknown lifecycle message", "type", msg.Type)
		return nil
	}
}

func (c *LifecycleConsumer) scheduleRetry(ctx context.Context, msg *lifecycleMessage, cause error) {
	msg.Attempt++
	if msg.Attempt > maxAttempts {
		c.park(ctx, msg, cause)
		return
	}

	backoff := retryBase << (msg.Attempt - 1)

	retryCap := viewerRetryCap
	if msg.Type == MessageCleanMessages {
		retryCap = cleanupRetryCap
	}
	if backoff > retryCap || backoff <= 0 {
		backoff = retryCap
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to marshal retry payload", "error", err)
		return
	}

	if err := c.broker.ScheduleRetry(ctx, StreamLifecycle, lifecycleGroup, payload, c.now().Add(backoff)); err != nil {
		c.logger.ErrorContext(ctx, "failed to schedule retry", "error", err)
		return
	}

	c.logger.InfoContext(ctx, "lifecycle message scheduled for retry",
		"type", msg.Type,
		"message_id", msg.MessageId,
		"attempt", msg.Attempt,
		"backoff", backoff.String(),
		"error", cause,
	)
}

// park moves a message that exhausted its retries onto the group's
// parked list for manual inspection.
func (c *LifecycleConsumer) park(ctx context.Context, msg *lifecycleMessage, cause error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to marshal parked payload", "error", err)
		return
	}

	if err := c.broker.Park(ctx, StreamLifecycle, lifecycleGroup, payload); err != nil {
		c.logger.ErrorContext(ctx, "failed to park lifecycle message", "error", err)
		return
	}

	c.logger.ErrorContext(ctx, "lifecycle message parked after exhausting retries",
		"type", msg.Type,
		"message_id", msg.MessageId,
		"attempt", msg.Attempt,
		"error", cause,
	)
}

func (c *LifecycleConsumer) consumeDueRetries(ctx context.Context) error {
	payloads, err := c.broker.PopDueRetries(ctx, StreamLifecycle, lifecycleGroup, c.now())
	if err != nil {
		return err
	}

	for _, payload := range payloads {
		var msg lifecycleMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			c.logger.WarnContext(ctx, "dropping malformed retry payload", "error", err)
			continue
		}

		c.process(ctx, &msg)
	}

	return nil
}
