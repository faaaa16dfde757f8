package uow

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
	roomredis "github.com/kinoroom/server/internal/repository/room/redis"
)

func newTestFactory(t *testing.T) (*Factory, *Dispatcher) {
	t.Helper()

	s := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { rc.Close() })

	repo := roomredis.NewRepo(rc, slog.Default(), time.Hour)
	dispatcher := NewDispatcher(slog.Default())

	return NewFactory(repo, dispatcher, slog.Default()), dispatcher
}

func newTestRoom(t *testing.T, f *Factory, roomId string) {
	t.Helper()

	u := f.New(Session{Kind: SessionTransactional})
	room := domain.NewRoom(roomId, "film1", "owner1", false)
	require.NoError(t, room.Join(domain.Viewer{Id: "owner1", Name: "owner"}))
	u.AddRoom(room)
	require.NoError(t, u.SaveChanges(context.Background()))
}

func TestUnitOfWorkTwoPhaseDispatch(t *testing.T) {
	f, dispatcher := newTestFactory(t)

	type call struct {
		eventType  string
		beforeSave bool
	}
	var calls []call
	dispatcher.Subscribe(func(ctx context.Context, event domain.Event, beforeSave bool) error {
		calls = append(calls, call{event.EventType(), beforeSave})
		return nil
	})

	newTestRoom(t, f, "room1")

	require.Len(t, calls, 2)
	assert.Equal(t, call{domain.EventViewerJoined, true}, calls[0])
	assert.Equal(t, call{domain.EventViewerJoined, false}, calls[1])
}

func TestUnitOfWorkBeforeSaveAbort(t *testing.T) {
	f, dispatcher := newTestFactory(t)

	dispatcher.Subscribe(func(ctx context.Context, event domain.Event, beforeSave bool) error {
		if beforeSave {
			return assert.AnError
		}
		t.Fatal("after-save dispatch must not run for an aborted unit")
		return nil
	})

	u := f.New(Session{Kind: SessionTransactional})
	room := domain.NewRoom("room1", "film1", "owner1", false)
	require.NoError(t, room.Join(domain.Viewer{Id: "owner1"}))
	u.AddRoom(room)

	err := u.SaveChanges(context.Background())
	require.Error(t, err)

	read := f.New(Session{Kind: SessionDefault})
	_, err = read.GetRoom(context.Background(), "room1")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound, "aborted unit must write nothing")
}

func TestUnitOfWorkVersionConflict(t *testing.T) {
	f, _ := newTestFactory(t)
	newTestRoom(t, f, "room1")

	ctx := context.Background()

	u1 := f.New(Session{Kind: SessionTransactional})
	room1, err := u1.GetRoom(ctx, "room1")
	require.NoError(t, err)

	u2 := f.New(Session{Kind: SessionTransactional})
	room2, err := u2.GetRoom(ctx, "room1")
	require.NoError(t, err)

	require.NoError(t, room1.SetOnline("owner1", true))
	require.NoError(t, u1.SaveChanges(ctx))

	require.NoError(t, room2.SetOnline("owner1", false))
	err = u2.SaveChanges(ctx)
	assert.ErrorIs(t, err, ErrVersionConflict)
}

func TestUnitOfWorkRetry(t *testing.T) {
	f, _ := newTestFactory(t)
	newTestRoom(t, f, "room1")

	ctx := context.Background()

	stale := f.New(Session{Kind: SessionTransactional})
	staleRoom, err := stale.GetRoom(ctx, "room1")
	require.NoError(t, err)

	// Interleave a commit so the first attempt conflicts.
	interleaved := false
	err = Retry(ctx, 3, func(ctx context.Context) error {
		if !interleaved {
			interleaved = true

			other := f.New(Session{Kind: SessionTransactional})
			otherRoom, err := other.GetRoom(ctx, "room1")
			require.NoError(t, err)
			require.NoError(t, otherRoom.SetOnline("owner1", true))
			require.NoError(t, other.SaveChanges(ctx))

			require.NoError(t, staleRoom.SetMuted("owner1", true))
			return stale.SaveChanges(ctx)
		}

		u := f.New(Session{Kind: SessionTransactional})
		room, err := u.GetRoom(ctx, "room1")
		if err != nil {
			return err
		}
		if err := room.SetMuted("owner1", true); err != nil {
			return err
		}
		return u.SaveChanges(ctx)
	})
	require.NoError(t, err)

	read := f.New(Session{Kind: SessionDefault})
	room, err := read.GetRoom(ctx, "room1")
	require.NoError(t, err)
	viewer, ok := room.Viewer("owner1")
	require.True(t, ok)
	assert.True(t, viewer.Player.Muted)
}

func TestUnitOfWorkInboxDedupe(t *testing.T) {
	f, dispatcher := newTestFactory(t)
	newTestRoom(t, f, "room1")

	ctx := context.Background()

	afterSaves := 0
	dispatcher.Subscribe(func(ctx context.Context, event domain.Event, beforeSave bool) error {
		if !beforeSave {
			afterSaves++
		}
		return nil
	})

	apply := func(online bool) error {
		u := f.New(Session{Kind: SessionInbox, MessageId: "msg-1"})
		room, err := u.GetRoom(ctx, "room1")
		if err != nil {
			return err
		}
		if err := room.SetOnline("owner1", online); err != nil {
			return err
		}
		return u.SaveChanges(ctx)
	}

	require.NoError(t, apply(true))
	require.Equal(t, 1, afterSaves)

	// Redelivery: the commit is skipped and nothing is dispatched
	// again.
	require.NoError(t, apply(false))
	assert.Equal(t, 1, afterSaves)

	read := f.New(Session{Kind: SessionDefault})
	room, err := read.GetRoom(ctx, "room1")
	require.NoError(t, err)
	viewer, ok := room.Viewer("owner1")
	require.True(t, ok)
	assert.True(t, viewer.Online, "the duplicate delivery must not overwrite the first")
}

func TestUnitOfWorkReadOnlySession(t *testing.T) {
	f, _ := newTestFactory(t)
	newTestRoom(t, f, "room1")

	ctx := context.Background()

	u := f.New(Session{Kind: SessionDefault})
	room, err := u.GetRoom(ctx, "room1")
	require.NoError(t, err)
	require.NoError(t, room.SetOnline("owner1", true))

	err = u.SaveChanges(ctx)
	assert.ErrorIs(t, err, ErrReadOnlySession)
}

func TestUnitOfWorkOutboxSessionOnly(t *testing.T) {
	f, _ := newTestFactory(t)

	u := f.New(Session{Kind: SessionTransactional})
	err := u.StageOutbox([]byte("{}"))
	assert.ErrorIs(t, err, ErrNoOutboxSession)

	u = f.New(Session{Kind: SessionOutbox})
	assert.NoError(t, u.StageOutbox([]byte("{}")))
}
