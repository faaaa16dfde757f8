package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Broker is a thin durable-messaging client over redis streams:
// publish, consume with ack per consumer group, and scheduled
// redelivery through a per-group delay queue.
type Broker struct {
	rc     *redis.Client
	logger *slog.Logger
}

func NewBroker(rc *redis.Client, logger *slog.Logger) *Broker {
	return &Broker{rc: rc, logger: logger}
}

// streamMaxLen caps stream length on publish, trimmed approximately.
const streamMaxLen = 100_000

func (b *Broker) Publish(ctx context.Context, stream string, values map[string]any) error {
	return b.rc.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: values,
	}).Err()
}

func (b *Broker) EnsureGroup(ctx context.Context, stream, group string) error {
	err := b.rc.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	return nil
}

// DestroyGroup removes a consumer group from a stream. Per-instance
// groups are destroyed on shutdown so dead replicas do not accumulate.
func (b *Broker) DestroyGroup(ctx context.Context, stream, group string) error {
	return b.rc.XGroupDestroy(ctx, stream, group).Err()
}

type Message struct {
	Id     string
	Values map[string]any
}

// ReadGroup blocks up to block for new entries of the group. A nil
// slice with nil error means the block timed out.
func (b *Broker) ReadGroup(ctx context.Context, stream, group, consumer string, block time.Duration) ([]Message, error) {
	streams, err := b.rc.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    16,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var messages []Message
	for _, s := range streams {
		for _, m := range s.Messages {
			messages = append(messages, Message{Id: m.ID, Values: m.Values})
		}
	}

	return messages, nil
}

func (b *Broker) Ack(ctx context.Context, stream, group, id string) error {
	return b.rc.XAck(ctx, stream, group, id).Err()
}

func (b *Broker) getRetryKey(stream, group string) string {
	return "retry:" + stream + ":" + group
}

// ScheduleRetry holds a payload in the group's delay queue until due.
func (b *Broker) ScheduleRetry(ctx context.Context, stream, group string, payload []byte, due time.Time) error {
	return b.rc.ZAdd(ctx, b.getRetryKey(stream, group), redis.Z{
		Score:  float64(due.UnixMilli()),
		Member: string(payload),
	}).Err()
}

// PopDueRetries claims every payload of the group's delay queue that
// is due. The ZREM acts as the claim: with a shared group, exactly one
// caller wins each member.
func (b *Broker) PopDueRetries(ctx context.Context, stream, group string, now time.Time) ([][]byte, error) {
	key := b.getRetryKey(stream, group)
	members, err := b.rc.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now.UnixMilli()),
	}).Result()
	if err != nil {
		return nil, err
	}

	claimed := make([][]byte, 0, len(members))
	for _, member := range members {
		removed, err := b.rc.ZRem(ctx, key, member).Result()
		if err != nil {
			return claimed, err
		}
		if removed == 1 {
			claimed = append(claimed, []byte(member))
		}
	}

	return claimed, nil
}

func (b *Broker) getParkedKey(stream, group string) string {
	return "parked:" + stream + ":" + group
}

// Park stores a payload that exhausted its retries for manual
// inspection.
func (b *Broker) Park(ctx context.Context, stream, group string, payload []byte) error {
	return b.rc.RPush(ctx, b.getParkedKey(stream, group), payload).Err()
}
