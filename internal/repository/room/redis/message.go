package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kinoroom/server/internal/domain"
	"github.com/kinoroom/server/internal/repository/room"
)

// GetMessages returns up to Count messages ending just before FromId,
// newest last. An empty FromId means the tail of the log.
func (r repo) GetMessages(ctx context.Context, params *room.GetMessagesParams) ([]domain.Message, error) {
	r.logger.DebugContext(ctx, "called", "params", params)
	raw, err := r.rc.LRange(ctx, r.getMessagesKey(params.RoomId), 0, -1).Result()
	if err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return nil, err
	}

	messages := make([]domain.Message, 0, len(raw))
	for _, item := range raw {
		var message domain.Message
		if err := json.Unmarshal([]byte(item), &message); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message: %w", err)
		}

		messages = append(messages, message)
	}

	end := len(messages)
	if params.FromId != "" {
		for i, message := range messages {
			if message.Id == params.FromId {
				end = i
				break
			}
		}
	}

	start := end - params.Count
	if start < 0 {
		start = 0
	}

	return messages[start:end], nil
}

// TrimMessages keeps only the newest keep messages of a room's log.
func (r repo) TrimMessages(ctx context.Context, roomId string, keep int) error {
	r.logger.DebugContext(ctx, "called", "room_id", roomId, "keep", keep)
	key := r.getMessagesKey(roomId)

	if keep <= 0 {
		if err := r.rc.Del(ctx, key).Err(); err != nil {
			r.logger.DebugContext(ctx, "returned", "error", err)
			return err
		}
		return nil
	}

	if err := r.rc.LTrim(ctx, key, int64(-keep), -1).Err(); err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return err
	}

	return nil
}
