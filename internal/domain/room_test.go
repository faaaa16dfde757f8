package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testViewer(id string) Viewer {
	return Viewer{
		Id:        id,
		Name:      "viewer-" + id,
		CanKick:   true,
		CanBeep:   true,
		CanScream: true,
		CanSync:   true,
		Player:    Player{Speed: 1},
	}
}

func TestRoomJoinLeave(t *testing.T) {
	room := NewRoom("room1", "film1", "owner1", false)

	require.NoError(t, room.Join(testViewer("owner1")))
	require.NoError(t, room.Join(testViewer("viewer2")))
	assert.Equal(t, 2, room.ViewerCount())

	err := room.Join(testViewer("viewer2"))
	assert.ErrorIs(t, err, ErrViewerAlreadyExists)
	assert.Equal(t, 2, room.ViewerCount(), "failed join must not mutate the room")

	require.NoError(t, room.Leave("viewer2"))
	assert.Equal(t, 1, room.ViewerCount())

	err = room.Leave("viewer2")
	assert.ErrorIs(t, err, ErrViewerNotFound)

	events := room.PullEvents()
	require.Len(t, events, 3)
	assert.Equal(t, EventViewerJoined, events[0].EventType())
	assert.Equal(t, EventViewerJoined, events[1].EventType())
	assert.Equal(t, EventViewerLeaved, events[2].EventType())
}

func TestRoomKick(t *testing.T) {
	room := NewRoom("room1", "film1", "owner1", false)
	require.NoError(t, room.Join(testViewer("owner1")))
	require.NoError(t, room.Join(testViewer("viewer2")))
	room.PullEvents()

	require.NoError(t, room.Kick("viewer2"))
	_, ok := room.Viewer("viewer2")
	assert.False(t, ok)

	events := room.PullEvents()
	require.Len(t, events, 1)
	kicked, ok := events[0].(ViewerKicked)
	require.True(t, ok)
	assert.Equal(t, "viewer2", kicked.ViewerId)
}

func TestRoomSetEpisodeNotSerial(t *testing.T) {
	room := NewRoom("room1", "film1", "owner1", false)
	require.NoError(t, room.Join(testViewer("owner1")))
	room.PullEvents()

	err := room.SetEpisode("owner1", 1, 2, false)
	assert.ErrorIs(t, err, ErrRoomNotSerial)
	assert.Empty(t, room.PullEvents(), "failed operation must not raise events")
}

func TestRoomSetEpisodeSerial(t *testing.T) {
	room := NewRoom("room1", "film1", "owner1", true)
	require.NoError(t, room.Join(testViewer("owner1")))
	room.PullEvents()

	require.NoError(t, room.SetEpisode("owner1", 2, 5, true))

	viewer, ok := room.Viewer("owner1")
	require.True(t, ok)
	require.NotNil(t, viewer.Player.Season)
	require.NotNil(t, viewer.Player.Episode)
	assert.Equal(t, 2, *viewer.Player.Season)
	assert.Equal(t, 5, *viewer.Player.Episode)

	events := room.PullEvents()
	require.Len(t, events, 1)
	changed, ok := events[0].(ViewerEpisodeChanged)
	require.True(t, ok)
	assert.True(t, changed.IsSync)
}

func TestRoomSetPause(t *testing.T) {
	room := NewRoom("room1", "film1", "owner1", false)
	require.NoError(t, room.Join(testViewer("owner1")))
	room.PullEvents()

	require.NoError(t, room.SetPause("owner1", true, 12*time.Second, false, false))

	viewer, _ := room.Viewer("owner1")
	assert.True(t, viewer.Player.OnPause)
	assert.Equal(t, 12*time.Second, viewer.Player.TimeLine)

	events := room.PullEvents()
	require.Len(t, events, 1)
	paused, ok := events[0].(ViewerPauseChanged)
	require.True(t, ok)
	assert.Equal(t, 12*time.Second, paused.TimeLine)
	assert.False(t, paused.IsSync)
}

func TestRoomBeepCounters(t *testing.T) {
	room := NewRoom("room1", "film1", "owner1", false)
	require.NoError(t, room.Join(testViewer("owner1")))
	require.NoError(t, room.Join(testViewer("viewer2")))
	room.PullEvents()

	require.NoError(t, room.Beep("owner1", "viewer2"))
	require.NoError(t, room.Beep("owner1", "viewer2"))
	require.NoError(t, room.Scream("viewer2", "owner1"))

	target, _ := room.Viewer("viewer2")
	assert.Equal(t, int64(2), target.Stats["beeps"])
	owner, _ := room.Viewer("owner1")
	assert.Equal(t, int64(1), owner.Stats["screams"])

	events := room.PullEvents()
	require.Len(t, events, 3)
	second, ok := events[1].(ViewerBeeped)
	require.True(t, ok)
	assert.Equal(t, int64(2), second.Beeps, "event must carry the incremented counter")

	err := room.Beep("owner1", "ghost")
	assert.ErrorIs(t, err, ErrViewerNotFound)
}

func TestRoomSnapshotRoundTrip(t *testing.T) {
	room := NewRoom("room1", "film1", "owner1", true)
	require.NoError(t, room.Join(testViewer("owner1")))
	require.NoError(t, room.SetEpisode("owner1", 1, 3, false))
	room.PullEvents()

	restored := NewRoomFromSnapshot(room.Snapshot(), 7)
	assert.Equal(t, int64(7), restored.Version())
	assert.Equal(t, room.Id(), restored.Id())
	assert.Equal(t, room.ViewerCount(), restored.ViewerCount())
	assert.Empty(t, restored.PullEvents(), "rehydration must not raise events")

	viewer, ok := restored.Viewer("owner1")
	require.True(t, ok)
	assert.Equal(t, 3, *viewer.Player.Episode)
}
