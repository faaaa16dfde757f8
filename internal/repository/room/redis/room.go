package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/kinoroom/server/internal/domain"
	"github.com/kinoroom/server/internal/repository/room"
)

func (r repo) GetRoom(ctx context.Context, roomId string) (domain.RoomSnapshot, int64, error) {
	r.logger.DebugContext(ctx, "called", "room_id", roomId)
	res, err := r.rc.HMGet(ctx, r.getRoomKey(roomId), "data", "version").Result()
	if err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return domain.RoomSnapshot{}, 0, err
	}

	data, ok := res[0].(string)
	if !ok {
		r.logger.DebugContext(ctx, "returned", "error", room.ErrRoomNotFound)
		return domain.RoomSnapshot{}, 0, room.ErrRoomNotFound
	}

	var snapshot domain.RoomSnapshot
	if err := json.Unmarshal([]byte(data), &snapshot); err != nil {
		return domain.RoomSnapshot{}, 0, fmt.Errorf("failed to unmarshal room document: %w", err)
	}

	versionStr, _ := res[1].(string)
	version, err := strconv.ParseInt(versionStr, 10, 64)
	if err != nil {
		return domain.RoomSnapshot{}, 0, fmt.Errorf("failed to parse room version: %w", err)
	}

	return snapshot, version, nil
}

// Commit issues the whole unit as a single script evaluation, so every
// document write, the inbox marker and the outbox records apply
// atomically or not at all.
func (r repo) Commit(ctx context.Context, params *room.CommitParams) error {
	r.logger.DebugContext(ctx, "called",
		"upserts", len(params.Upserts),
		"deletes", len(params.Deletes),
		"messages", len(params.Messages),
		"outbox", len(params.Outbox),
		"inbox_message_id", params.InboxMessageId,
	)

	inboxKey := ""
	if params.InboxMessageId != "" {
		inboxKey = r.getInboxKey(params.InboxMessageId)
	}

	keys := make([]string, 0, len(params.Upserts)+len(params.Deletes)+len(params.Messages)+1)
	args := make([]any, 0, 7+len(params.Upserts)*2+len(params.Messages)+len(params.Outbox))
	args = append(args,
		len(params.Upserts),
		len(params.Deletes),
		len(params.Messages),
		len(params.Outbox),
		inboxKey,
		r.inboxTTL.Milliseconds(),
		r.roomTTL.Milliseconds(),
	)

	for _, upsert := range params.Upserts {
		doc, err := json.Marshal(upsert.Snapshot)
		if err != nil {
			return fmt.Errorf("failed to marshal room document: %w", err)
		}

		keys = append(keys, r.getRoomKey(upsert.RoomId))
		args = append(args, upsert.ExpectedVersion, doc)
	}

	for _, roomId := range params.Deletes {
		keys = append(keys, r.getRoomKey(roomId))
	}

	for _, message := range params.Messages {
		doc, err := json.Marshal(message)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}

		keys = append(keys, r.getMessagesKey(message.RoomId))
		args = append(args, doc)
	}

	keys = append(keys, outboxQueueKey)
	for _, record := range params.Outbox {
		args = append(args, record)
	}

	res, err := r.commitScript.Run(ctx, r.rc, keys, args...).Int64()
	if err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return err
	}

	switch res {
	case -1:
		r.logger.DebugContext(ctx, "returned", "error", room.ErrVersionConflict)
		return room.ErrVersionConflict
	case -2:
		r.logger.DebugContext(ctx, "returned", "error", room.ErrMessageAlreadyProcessed)
		return room.ErrMessageAlreadyProcessed
	}

	return nil
}
