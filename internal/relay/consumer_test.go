package relay

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kinoroom/server/internal/domain"
)

func newTestBroker(t *testing.T) *Broker {
	t.Helper()

	s := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { rc.Close() })

	return NewBroker(rc, slog.Default())
}

func TestConsumerSkipsOwnInstance(t *testing.T) {
	broker := newTestBroker(t)

	handled := 0
	consumer := NewConsumer(broker, "instance-1", func(ctx context.Context, event domain.Event, excludedConnId string) error {
		handled++
		return nil
	}, slog.Default())

	env, err := NewEnvelope(domain.ViewerTyped{RoomId: "room1", InitiatorId: "v1"}, "instance-1", "")
	require.NoError(t, err)

	consumer.process(context.Background(), env)
	assert.Zero(t, handled, "own-instance messages must be discarded")

	env.InstanceId = "instance-2"
	consumer.process(context.Background(), env)
	assert.Equal(t, 1, handled)
}

func TestConsumerPassesExcludedConn(t *testing.T) {
	broker := newTestBroker(t)

	var gotExcluded string
	consumer := NewConsumer(broker, "instance-1", func(ctx context.Context, event domain.Event, excludedConnId string) error {
		gotExcluded = excludedConnId
		return nil
	}, slog.Default())

	env, err := NewEnvelope(domain.ViewerTyped{RoomId: "room1", InitiatorId: "v1"}, "instance-2", "conn-42")
	require.NoError(t, err)

	consumer.process(context.Background(), env)
	assert.Equal(t, "conn-42", gotExcluded)
}

func TestConsumerTerminalErrorDropped(t *testing.T) {
	broker := newTestBroker(t)

	attempts := 0
	consumer := NewConsumer(broker, "instance-1", func(ctx context.Context, event domain.Event, excludedConnId string) error {
		attempts++
		return domain.ErrRoomNotFound
	}, slog.Default())

	env, err := NewEnvelope(domain.ViewerTyped{RoomId: "gone", InitiatorId: "v1"}, "instance-2", "")
	require.NoError(t, err)

	consumer.process(context.Background(), env)
	assert.Equal(t, 1, attempts, "a terminal error must not be retried")

	due, err := broker.PopDueRetries(context.Background(), StreamRoomEvents, consumer.group(), time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, due, "a terminal error must not be scheduled for retry")
}

func TestConsumerRetrySchedule(t *testing.T) {
	broker := newTestBroker(t)

	now := time.Unix(1000, 0)

	attempts := 0
	consumer := NewConsumer(broker, "instance-1", func(ctx context.Context, event domain.Event, excludedConnId string) error {
		attempts++
		return assert.AnError
	}, slog.Default())
	consumer.now = func() time.Time { return now }

	env, err := NewEnvelope(domain.ViewerTyped{RoomId: "room1", InitiatorId: "v1"}, "instance-2", "")
	require.NoError(t, err)

	consumer.process(context.Background(), env)
	assert.Equal(t, immediateRetries, attempts)

	// Not due yet at the moment of failure.
	due, err := broker.PopDueRetries(context.Background(), StreamRoomEvents, consumer.group(), now)
	require.NoError(t, err)
	assert.Empty(t, due)

	// Due after the first backoff.
	due, err = broker.PopDueRetries(context.Background(), StreamRoomEvents, consumer.group(), now.Add(retryBase))
	require.NoError(t, err)
	require.Len(t, due, 1)

	// The claim removed it.
	due, err = broker.PopDueRetries(context.Background(), StreamRoomEvents, consumer.group(), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestConsumerParksAfterMaxAttempts(t *testing.T) {
	broker := newTestBroker(t)

	consumer := NewConsumer(broker, "instance-1", func(ctx context.Context, event domain.Event, excludedConnId string) error {
		return assert.AnError
	}, slog.Default())

	env, err := NewEnvelope(domain.ViewerTyped{RoomId: "room1", InitiatorId: "v1"}, "instance-2", "")
	require.NoError(t, err)
	env.Attempt = maxAttempts

	consumer.process(context.Background(), env)

	due, err := broker.PopDueRetries(context.Background(), StreamRoomEvents, consumer.group(), time.Now().Add(24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, due, "an exhausted envelope must not be rescheduled")

	parked, err := broker.rc.LRange(context.Background(), broker.getParkedKey(StreamRoomEvents, consumer.group()), 0, -1).Result()
	require.NoError(t, err)
	assert.Len(t, parked, 1)
}

func TestConsumerDestroysGroupOnStop(t *testing.T) {
	broker := newTestBroker(t)

	consumer := NewConsumer(broker, "instance-1", func(ctx context.Context, event domain.Event, excludedConnId string) error {
		return nil
	}, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := consumer.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	_, err = broker.ReadGroup(context.Background(), StreamRoomEvents, consumer.group(), "c1", time.Millisecond)
	assert.Error(t, err, "the group must be gone after shutdown")
}

func TestEnvelopeValuesRoundTrip(t *testing.T) {
	event := domain.ViewerPauseChanged{
		RoomId:   "room1",
		ViewerId: "v1",
		OnPause:  true,
		TimeLine: 12 * time.Second,
		IsSync:   true,
	}

	env, err := NewEnvelope(event, "instance-1", "conn-1")
	require.NoError(t, err)

	broker := newTestBroker(t)
	ctx := context.Background()

	require.NoError(t, broker.EnsureGroup(ctx, StreamRoomEvents, "relay:test"))
	require.NoError(t, broker.Publish(ctx, StreamRoomEvents, env.Values()))

	messages, err := broker.ReadGroup(ctx, StreamRoomEvents, "relay:test", "consumer-1", time.Millisecond)
	require.NoError(t, err)
	require.Len(t, messages, 1)

	decoded, err := envelopeFromValues(messages[0].Values)
	require.NoError(t, err)
	assert.Equal(t, env.EventType, decoded.EventType)
	assert.Equal(t, env.RoomId, decoded.RoomId)
	assert.Equal(t, env.InstanceId, decoded.InstanceId)
	assert.Equal(t, env.ExcludedConnId, decoded.ExcludedConnId)

	got, err := decoded.Event()
	require.NoError(t, err)
	assert.Equal(t, event, got)
}
