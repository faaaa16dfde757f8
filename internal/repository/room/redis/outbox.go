package redis

import (
	"context"
	"time"
)

// ClaimOutbox moves the next queued outbox record into the instance's
// processing list and returns it, blocking up to timeout. The record
// stays in the processing list until AckOutbox, so a crash between
// claim and publish leaves it recoverable. redis.Nil is returned on
// timeout.
func (r repo) ClaimOutbox(ctx context.Context, instanceId string, timeout time.Duration) ([]byte, error) {
	res, err := r.rc.BLMove(ctx, outboxQueueKey, r.getOutboxProcessingKey(instanceId), "LEFT", "RIGHT", timeout).Result()
	if err != nil {
		return nil, err
	}

	return []byte(res), nil
}

// AckOutbox drops a delivered record from the processing list.
func (r repo) AckOutbox(ctx context.Context, instanceId string, record []byte) error {
	return r.rc.LRem(ctx, r.getOutboxProcessingKey(instanceId), 1, record).Err()
}

// PendingOutbox returns the records a previous run claimed but never
// acked, oldest first.
func (r repo) PendingOutbox(ctx context.Context, instanceId string) ([][]byte, error) {
	res, err := r.rc.LRange(ctx, r.getOutboxProcessingKey(instanceId), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	records := make([][]byte, 0, len(res))
	for _, item := range res {
		records = append(records, []byte(item))
	}

	return records, nil
}
