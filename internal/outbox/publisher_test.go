package outbox

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
	"github.com/kinoroom/server/internal/relay"
	roomredis "github.com/kinoroom/server/internal/repository/room/redis"
	"github.com/kinoroom/server/internal/uow"
)

type testEnv struct {
	factory *uow.Factory
	repo    iOutboxRepo
	broker *relay.Broker
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	s := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { rc.Close() })

	repo := roomredis.NewRepo(rc, slog.Default(), time.Hour)
	dispatcher := uow.NewDispatcher(slog.Default())
	dispatcher.Subscribe(NewPublisher("instance-1").HandleEvent)

	return &testEnv{
		factory: uow.NewFactory(repo, dispatcher, slog.Default()),
		repo:    repo,
		broker:  relay.NewBroker(rc, slog.Default()),
	}
}

func TestPublisherStagesEnvelopeIntoCommit(t *testing.T) {
	env := newTestEnv(t)
	ctx := relay.WithExcludedConn(context.Background(), "conn-1")

	u := env.factory.New(uow.Session{Kind: uow.SessionOutbox})
	room := domain.NewRoom("room1", "film1", "owner1", false)
	require.NoError(t, room.Join(domain.Viewer{Id: "owner1"}))
	u.AddRoom(room)
	require.NoError(t, u.SaveChanges(ctx))

	record, err := env.repo.ClaimOutbox(ctx, "drain-1", time.Second)
	require.NoError(t, err)

	drainer := NewDrainer(env.repo, env.broker, "drain-1", slog.Default())
	require.NoError(t, env.broker.EnsureGroup(ctx, relay.StreamRoomEvents, "relay:test"))
	require.NoError(t, drainer.publish(ctx, record))

	messages, err := env.broker.ReadGroup(ctx, relay.StreamRoomEvents, "relay:test", "c1", time.Millisecond)
	require.NoError(t, err)
	require.Len(t, messages, 1)

	eventType, _ := messages[0].Values["event_type"].(string)
	assert.Equal(t, domain.EventViewerJoined, eventType)
	instanceId, _ := messages[0].Values["instance_id"].(string)
	assert.Equal(t, "instance-1", instanceId)
	excluded, _ := messages[0].Values["excluded_connection_id"].(string)
	assert.Equal(t, "conn-1", excluded)
}

func TestPublisherSkipsTransactionalSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u := env.factory.New(uow.Session{Kind: uow.SessionTransactional})
	room := domain.NewRoom("room1", "film1", "owner1", false)
	require.NoError(t, room.Join(domain.Viewer{Id: "owner1"}))
	u.AddRoom(room)
	require.NoError(t, u.SaveChanges(ctx))

	_, err := env.repo.ClaimOutbox(ctx, "drain-1", 10*time.Millisecond)
	assert.ErrorIs(t, err, redis.Nil, "transactional sessions publish nothing")
}

func TestDrainerRecoversClaimedRecords(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u := env.factory.New(uow.Session{Kind: uow.SessionOutbox})
	room := domain.NewRoom("room1", "film1", "owner1", false)
	require.NoError(t, room.Join(domain.Viewer{Id: "owner1"}))
	u.AddRoom(room)
	require.NoError(t, u.SaveChanges(ctx))

	// A previous run claimed the record and died before publishing.
	_, err := env.repo.ClaimOutbox(ctx, "drain-1", time.Second)
	require.NoError(t, err)

	require.NoError(t, env.broker.EnsureGroup(ctx, relay.StreamRoomEvents, "relay:test"))

	drainer := NewDrainer(env.repo, env.broker, "drain-1", slog.Default())
	require.NoError(t, drainer.recoverPending(ctx))

	messages, err := env.broker.ReadGroup(ctx, relay.StreamRoomEvents, "relay:test", "c1", time.Millisecond)
	require.NoError(t, err)
	require.Len(t, messages, 1)

	pending, err := env.repo.PendingOutbox(ctx, "drain-1")
	require.NoError(t, err)
	assert.Empty(t, pending, "a delivered record must leave the processing list")
}
