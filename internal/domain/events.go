package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	EventViewerJoined            = "viewer.joined"
	EventViewerLeaved            = "viewer.leaved"
	EventViewerKicked            = "viewer.kicked"
	EventViewerOnlineChanged     = "viewer.online_changed"
	EventViewerMuteChanged       = "viewer.mute_changed"
	EventViewerPauseChanged      = "viewer.pause_changed"
	EventViewerSpeedChanged      = "viewer.speed_changed"
	EventViewerTimeLineChanged   = "viewer.time_line_changed"
	EventViewerEpisodeChanged    = "viewer.episode_changed"
	EventViewerFullScreenChanged = "viewer.full_screen_changed"
	EventViewerBeeped            = "viewer.beeped"
	EventViewerScreamed          = "viewer.screamed"
	EventViewerSettingsChanged   = "viewer.settings_changed"
	EventViewerNameChanged       = "viewer.name_changed"
	EventViewerPhotoChanged      = "viewer.photo_changed"
	EventViewerTyped             = "viewer.typed"
	EventMessageSent             = "message.sent"
)

// Event is an immutable record of a state change raised by the Room
// aggregate, dispatched locally before and after its owning commit.
type Event interface {
	EventType() string
	EventRoomId() string
}

type ViewerJoined struct {
	RoomId string `json:"room_id"`
	Viewer Viewer `json:"viewer"`
}

func (e ViewerJoined) EventType() string   { return EventViewerJoined }
func (e ViewerJoined) EventRoomId() string { return e.RoomId }

type ViewerLeaved struct {
	RoomId   string `json:"room_id"`
	ViewerId string `json:"viewer_id"`
}

func (e ViewerLeaved) EventType() string   { return EventViewerLeaved }
func (e ViewerLeaved) EventRoomId() string { return e.RoomId }

type ViewerKicked struct {
	RoomId   string `json:"room_id"`
	ViewerId string `json:"viewer_id"`
}

func (e ViewerKicked) EventType() string   { return EventViewerKicked }
func (e ViewerKicked) EventRoomId() string { return e.RoomId }

type ViewerOnlineChanged struct {
	RoomId   string `json:"room_id"`
	ViewerId string `json:"viewer_id"`
	Online   bool   `json:"online"`
}

func (e ViewerOnlineChanged) EventType() string   { return EventViewerOnlineChanged }
func (e ViewerOnlineChanged) EventRoomId() string { return e.RoomId }

type ViewerMuteChanged struct {
	RoomId   string `json:"room_id"`
	ViewerId string `json:"viewer_id"`
	Muted    bool   `json:"muted"`
}

func (e ViewerMuteChanged) EventType() string   { return EventViewerMuteChanged }
func (e ViewerMuteChanged) EventRoomId() string { return e.RoomId }

type ViewerPauseChanged struct {
	RoomId    string        `json:"room_id"`
	ViewerId  string        `json:"viewer_id"`
	OnPause   bool          `json:"on_pause"`
	TimeLine  time.Duration `json:"time_line"`
	Buffering bool          `json:"buffering"`
	IsSync    bool          `json:"is_sync"`
}

func (e ViewerPauseChanged) EventType() string   { return EventViewerPauseChanged }
func (e ViewerPauseChanged) EventRoomId() string { return e.RoomId }

type ViewerSpeedChanged struct {
	RoomId   string  `json:"room_id"`
	ViewerId string  `json:"viewer_id"`
	Speed    float64 `json:"speed"`
	IsSync   bool    `json:"is_sync"`
}

func (e ViewerSpeedChanged) EventType() string   { return EventViewerSpeedChanged }
func (e ViewerSpeedChanged) EventRoomId() string { return e.RoomId }

type ViewerTimeLineChanged struct {
	RoomId   string        `json:"room_id"`
	ViewerId string        `json:"viewer_id"`
	TimeLine time.Duration `json:"time_line"`
	IsSync   bool          `json:"is_sync"`
}

func (e ViewerTimeLineChanged) EventType() string   { return EventViewerTimeLineChanged }
func (e ViewerTimeLineChanged) EventRoomId() string { return e.RoomId }

type ViewerEpisodeChanged struct {
	RoomId   string `json:"room_id"`
	ViewerId string `json:"viewer_id"`
	Season   int    `json:"season"`
	Episode  int    `json:"episode"`
	IsSync   bool   `json:"is_sync"`
}

func (e ViewerEpisodeChanged) EventType() string   { return EventViewerEpisodeChanged }
func (e ViewerEpisodeChanged) EventRoomId() string { return e.RoomId }

type ViewerFullScreenChanged struct {
	RoomId     string `json:"room_id"`
	ViewerId   string `json:"viewer_id"`
	FullScreen bool   `json:"full_screen"`
	IsSync     bool   `json:"is_sync"`
}

func (e ViewerFullScreenChanged) EventType() string   { return EventViewerFullScreenChanged }
func (e ViewerFullScreenChanged) EventRoomId() string { return e.RoomId }

type ViewerBeeped struct {
	RoomId      string `json:"room_id"`
	InitiatorId string `json:"initiator_id"`
	TargetId    string `json:"target_id"`
	Beeps       int64  `json:"beeps"`
}

func (e ViewerBeeped) EventType() string   { return EventViewerBeeped }
func (e ViewerBeeped) EventRoomId() string { return e.RoomId }

type ViewerScreamed struct {
	RoomId      string `json:"room_id"`
	InitiatorId string `json:"initiator_id"`
	TargetId    string `json:"target_id"`
	Screams     int64  `json:"screams"`
}

func (e ViewerScreamed) EventType() string   { return EventViewerScreamed }
func (e ViewerScreamed) EventRoomId() string { return e.RoomId }

type ViewerSettingsChanged struct {
	RoomId   string   `json:"room_id"`
	ViewerId string   `json:"viewer_id"`
	Settings Settings `json:"settings"`
}

func (e ViewerSettingsChanged) EventType() string   { return EventViewerSettingsChanged }
func (e ViewerSettingsChanged) EventRoomId() string { return e.RoomId }

type ViewerNameChanged struct {
	RoomId   string `json:"room_id"`
	ViewerId string `json:"viewer_id"`
	Name     string `json:"name"`
}

func (e ViewerNameChanged) EventType() string   { return EventViewerNameChanged }
func (e ViewerNameChanged) EventRoomId() string { return e.RoomId }

type ViewerPhotoChanged struct {
	RoomId   string `json:"room_id"`
	ViewerId string `json:"viewer_id"`
	PhotoKey string `json:"photo_key"`
}

func (e ViewerPhotoChanged) EventType() string   { return EventViewerPhotoChanged }
func (e ViewerPhotoChanged) EventRoomId() string { return e.RoomId }

// ViewerTyped has no server-side clear counterpart; receivers time the
// indicator out locally after 5 seconds of silence.
type ViewerTyped struct {
	RoomId      string `json:"room_id"`
	InitiatorId string `json:"initiator_id"`
}

func (e ViewerTyped) EventType() string   { return EventViewerTyped }
func (e ViewerTyped) EventRoomId() string { return e.RoomId }

type MessageSent struct {
	RoomId  string  `json:"room_id"`
	Message Message `json:"message"`
}

func (e MessageSent) EventType() string   { return EventMessageSent }
func (e MessageSent) EventRoomId() string { return e.RoomId }

func decodeEvent[T Event](data []byte) (Event, error) {
	var e T
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}

	return e, nil
}

// UnmarshalEvent decodes a relayed event payload back into its typed
// form by event type.
func UnmarshalEvent(eventType string, data []byte) (Event, error) {
	var (
		event Event
		err   error
	)

	switch eventType {
	case EventViewerJoined:
		event, err = decodeEvent[ViewerJoined](data)
	case EventViewerLeaved:
		event, err = decodeEvent[ViewerLeaved](data)
	case EventViewerKicked:
		event, err = decodeEvent[ViewerKicked](data)
	case EventViewerOnlineChanged:
		event, err = decodeEvent[ViewerOnlineChanged](data)
	case EventViewerMuteChanged:
		event, err = decodeEvent[ViewerMuteChanged](data)
	case EventViewerPauseChanged:
		event, err = decodeEvent[ViewerPauseChanged](data)
	case EventViewerSpeedChanged:
		event, err = decodeEvent[ViewerSpeedChanged](data)
	case EventViewerTimeLineChanged:
		event, err = decodeEvent[ViewerTimeLineChanged](data)
	case EventViewerEpisodeChanged:
		event, err = decodeEvent[ViewerEpisodeChanged](data)
	case EventViewerFullScreenChanged:
		event, err = decodeEvent[ViewerFullScreenChanged](data)
	case EventViewerBeeped:
		event, err = decodeEvent[ViewerBeeped](data)
	case EventViewerScreamed:
		event, err = decodeEvent[ViewerScreamed](data)
	case EventViewerSettingsChanged:
		event, err = decodeEvent[ViewerSettingsChanged](data)
	case EventViewerNameChanged:
		event, err = decodeEvent[ViewerNameChanged](data)
	case EventViewerPhotoChanged:
		event, err = decodeEvent[ViewerPhotoChanged](data)
	case EventViewerTyped:
		event, err = decodeEvent[ViewerTyped](data)
	case EventMessageSent:
		event, err = decodeEvent[MessageSent](data)
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", eventType, err)
	}

	return event, nil
}
