package redis

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
	"github.com/kinoroom/server/internal/repository/room"
)

func newTestRepo(t *testing.T) *repo {
	t.Helper()

	s := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { rc.Close() })

	return NewRepo(rc, slog.Default(), time.Hour)
}

func testSnapshot(roomId string) domain.RoomSnapshot {
	return domain.RoomSnapshot{
		Id:      roomId,
		FilmId:  "film1",
		OwnerId: "owner1",
		Viewers: map[string]domain.Viewer{
			"owner1": {Id: "owner1", Name: "owner"},
		},
	}
}

func TestCommitAndGetRoom(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	err := r.Commit(ctx, &room.CommitParams{
		Upserts: []room.RoomWrite{{RoomId: "room1", Snapshot: testSnapshot("room1"), ExpectedVersion: 0}},
	})
	require.NoError(t, err)

	snapshot, version, err := r.GetRoom(ctx, "room1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
	assert.Equal(t, "film1", snapshot.FilmId)
	assert.Len(t, snapshot.Viewers, 1)
}

func TestCommitVersionConflict(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, r.Commit(ctx, &room.CommitParams{
		Upserts: []room.RoomWrite{{RoomId: "room1", Snapshot: testSnapshot("room1"), ExpectedVersion: 0}},
	}))

	// Stale expected version.
	err := r.Commit(ctx, &room.CommitParams{
		Upserts: []room.RoomWrite{{RoomId: "room1", Snapshot: testSnapshot("room1"), ExpectedVersion: 0}},
	})
	assert.ErrorIs(t, err, room.ErrVersionConflict)

	// Current version commits and bumps.
	require.NoError(t, r.Commit(ctx, &room.CommitParams{
		Upserts: []room.RoomWrite{{RoomId: "room1", Snapshot: testSnapshot("room1"), ExpectedVersion: 1}},
	}))

	_, version, err := r.GetRoom(ctx, "room1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)
}

func TestCommitConflictWritesNothing(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, r.Commit(ctx, &room.CommitParams{
		Upserts: []room.RoomWrite{{RoomId: "room1", Snapshot: testSnapshot("room1"), ExpectedVersion: 0}},
	}))

	// One fresh room plus one stale write: the whole commit fails.
	err := r.Commit(ctx, &room.CommitParams{
		Upserts: []room.RoomWrite{
			{RoomId: "room2", Snapshot: testSnapshot("room2"), ExpectedVersion: 0},
			{RoomId: "room1", Snapshot: testSnapshot("room1"), ExpectedVersion: 5},
		},
		Outbox: [][]byte{[]byte("record")},
	})
	require.ErrorIs(t, err, room.ErrVersionConflict)

	_, _, err = r.GetRoom(ctx, "room2")
	assert.ErrorIs(t, err, room.ErrRoomNotFound)

	_, claimErr := r.ClaimOutbox(ctx, "drain-1", 10*time.Millisecond)
	assert.ErrorIs(t, claimErr, redis.Nil, "a failed commit must not enqueue outbox records")
}

func TestCommitInboxDedupe(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	params := &room.CommitParams{
		Upserts:        []room.RoomWrite{{RoomId: "room1", Snapshot: testSnapshot("room1"), ExpectedVersion: 0}},
		InboxMessageId: "msg-1",
	}
	require.NoError(t, r.Commit(ctx, params))

	err := r.Commit(ctx, &room.CommitParams{
		Upserts:        []room.RoomWrite{{RoomId: "room1", Snapshot: testSnapshot("room1"), ExpectedVersion: 1}},
		InboxMessageId: "msg-1",
	})
	assert.ErrorIs(t, err, room.ErrMessageAlreadyProcessed)

	_, version, err := r.GetRoom(ctx, "room1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), version, "the duplicate must not write")
}

func TestCommitDelete(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, r.Commit(ctx, &room.CommitParams{
		Upserts: []room.RoomWrite{{RoomId: "room1", Snapshot: testSnapshot("room1"), ExpectedVersion: 0}},
	}))

	require.NoError(t, r.Commit(ctx, &room.CommitParams{Deletes: []string{"room1"}}))

	_, _, err := r.GetRoom(ctx, "room1")
	assert.ErrorIs(t, err, room.ErrRoomNotFound)
}

func TestCommitOutboxClaimAndAck(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, r.Commit(ctx, &room.CommitParams{
		Upserts: []room.RoomWrite{{RoomId: "room1", Snapshot: testSnapshot("room1"), ExpectedVersion: 0}},
		Outbox:  [][]byte{[]byte("first"), []byte("second")},
	}))

	record, err := r.ClaimOutbox(ctx, "drain-1", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "first", string(record))

	pending, err := r.PendingOutbox(ctx, "drain-1")
	require.NoError(t, err)
	require.Len(t, pending, 1, "a claimed record stays pending until acked")
	assert.Equal(t, "first", string(pending[0]))

	require.NoError(t, r.AckOutbox(ctx, "drain-1", record))

	pending, err = r.PendingOutbox(ctx, "drain-1")
	require.NoError(t, err)
	assert.Empty(t, pending)

	record, err = r.ClaimOutbox(ctx, "drain-1", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "second", string(record))
}

func TestMessages(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	messages := []domain.Message{
		{Id: "m1", RoomId: "room1", ViewerId: "owner1", Text: "first"},
		{Id: "m2", RoomId: "room1", ViewerId: "owner1", Text: "second"},
		{Id: "m3", RoomId: "room1", ViewerId: "owner1", Text: "third"},
	}
	require.NoError(t, r.Commit(ctx, &room.CommitParams{
		Upserts:  []room.RoomWrite{{RoomId: "room1", Snapshot: testSnapshot("room1"), ExpectedVersion: 0}},
		Messages: messages,
	}))

	got, err := r.GetMessages(ctx, &room.GetMessagesParams{RoomId: "room1", Count: 10})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "m1", got[0].Id)

	got, err = r.GetMessages(ctx, &room.GetMessagesParams{RoomId: "room1", FromId: "m3", Count: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "m2", got[0].Id)

	require.NoError(t, r.TrimMessages(ctx, "room1", 1))
	got, err = r.GetMessages(ctx, &room.GetMessagesParams{RoomId: "room1", Count: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "m3", got[0].Id)

	require.NoError(t, r.TrimMessages(ctx, "room1", 0))
	got, err = r.GetMessages(ctx, &room.GetMessagesParams{RoomId: "room1", Count: 10})
	require.NoError(t, err)
	assert.Empty(t, got)
}
