package controller

import (
	"context"
	"time"

	"github.com/kinoroom/server/internal/domain"
	"github.com/kinoroom/server/internal/relay"
	"github.com/kinoroom/server/internal/service/room"
)

type Output struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// The wire timeline unit is the tick: 100_000_000 ticks per second.
const tickInterval = 10 * time.Nanosecond

func toTicks(d time.Duration) int64 {
	return int64(d / tickInterval)
}

func fromTicks(ticks int64) time.Duration {
	return time.Duration(ticks) * tickInterval
}

func ptr[T any](v T) *T {
	return &v
}

type playerView struct {
	OnPause    bool    `json:"on_pause"`
	FullScreen bool    `json:"full_screen"`
	Muted      bool    `json:"muted"`
	Speed      float64 `json:"speed"`
	TimeLine   int64   `json:"time_line"`
	Season     *int    `json:"season,omitempty"`
	Episode    *int    `json:"episode,omitempty"`
}

type viewerView struct {
	Id            string           `json:"id"`
	Name          string           `json:"name"`
	PhotoKey      string           `json:"photo_key,omitempty"`
	CanKick       bool             `json:"can_kick"`
	CanBeep       bool             `json:"can_beep"`
	CanScream     bool             `json:"can_scream"`
	CanSync       bool             `json:"can_sync"`
	CanChangeName bool             `json:"can_change_name"`
	Online        bool             `json:"online"`
	Player        playerView       `json:"player"`
	Tags          []string         `json:"tags,omitempty"`
	Stats         map[string]int64 `json:"stats,omitempty"`
	Settings      domain.Settings  `json:"settings"`
}

type roomView struct {
	Id       string       `json:"id"`
	FilmId   string       `json:"film_id"`
	OwnerId  string       `json:"owner_id"`
	IsSerial bool         `json:"is_serial"`
	Viewers  []viewerView `json:"viewers"`
}

type connectPayload struct {
	ConnId string   `json:"connection_id"`
	Room   roomView `json:"room"`
}

type messageView struct {
	Id        string `json:"id"`
	ViewerId  string `json:"viewer_id"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"created_at"`
}

type messagesPayload struct {
	Messages []messageView `json:"messages"`
}

type leavePayload struct {
	ViewerId string `json:"viewer_id"`
}

// typingPayload carries no clear counterpart; receivers drop the
// indicator after 5 seconds of silence.
type typingPayload struct {
	ViewerId string `json:"viewer_id"`
}

// updateViewerPayload carries only the fields the event changed;
// receivers merge it over their copy of the viewer.
type updateViewerPayload struct {
	ViewerId string           `json:"viewer_id"`
	Name     *string          `json:"name,omitempty"`
	PhotoKey *string          `json:"photo_key,omitempty"`
	Online   *bool            `json:"online,omitempty"`
	Beeps    *int64           `json:"beeps,omitempty"`
	Screams  *int64           `json:"screams,omitempty"`
	Settings *domain.Settings `json:"settings,omitempty"`
}

type updateViewerPlayerPayload struct {
	ViewerId   string   `json:"viewer_id"`
	IsSync     bool     `json:"is_sync"`
	OnPause    *bool    `json:"on_pause,omitempty"`
	TimeLine   *int64   `json:"time_line,omitempty"`
	Buffering  *bool    `json:"buffering,omitempty"`
	Speed      *float64 `json:"speed,omitempty"`
	Season     *int     `json:"season,omitempty"`
	Episode    *int     `json:"episode,omitempty"`
	FullScreen *bool    `json:"full_screen,omitempty"`
	Muted      *bool    `json:"muted,omitempty"`
}

func toPlayerView(player domain.Player) playerView {
	return playerView{
		OnPause:    player.OnPause,
		FullScreen: player.FullScreen,
		Muted:      player.Muted,
		Speed:      player.Speed,
		TimeLine:   toTicks(player.TimeLine),
		Season:     player.Season,
		Episode:    player.Episode,
	}
}

func toViewerView(viewer domain.Viewer) viewerView {
	return viewerView{
		Id:            viewer.Id,
		Name:          viewer.Name,
		PhotoKey:      viewer.PhotoKey,
		CanKick:       viewer.CanKick,
		CanBeep:       viewer.CanBeep,
		CanScream:     viewer.CanScream,
		CanSync:       viewer.CanSync,
		CanChangeName: viewer.CanChangeName,
		Online:        viewer.Online,
		Player:        toPlayerView(viewer.Player),
		Tags:          viewer.Tags,
		Stats:         viewer.Stats,
		Settings:      viewer.Settings,
	}
}

func toRoomView(resp room.GetRoomResponse) roomView {
	viewers := make([]viewerView, 0, len(resp.Viewers))
	for _, viewer := range resp.Viewers {
		viewers = append(viewers, toViewerView(viewer))
	}

	return roomView{
		Id:       resp.Id,
		FilmId:   resp.FilmId,
		OwnerId:  resp.OwnerId,
		IsSerial: resp.IsSerial,
		Viewers:  viewers,
	}
}

func toMessageView(message domain.Message) messageView {
	return messageView{
		Id:        message.Id,
		ViewerId:  message.ViewerId,
		Text:      message.Text,
		CreatedAt: message.CreatedAt.UnixMilli(),
	}
}

// DispatchEvent is the after-save subscriber: it fans a committed
// event out to the local sockets of its room, skipping the connection
// the command arrived on.
func (c controller) DispatchEvent(ctx context.Context, event domain.Event, beforeSave bool) error {
	if beforeSave {
		return nil
	}

	c.pushEvent(ctx, event, relay.ExcludedConnFromCtx(ctx))

	return nil
}

// HandleRelayed fans an event relayed from another instance out to the
// local sockets of its room.
func (c controller) HandleRelayed(ctx context.Context, event domain.Event, excludedConnId string) error {
	c.pushEvent(ctx, event, excludedConnId)

	return nil
}

func (c controller) pushEvent(ctx context.Context, event domain.Event, excludedConnId string) {
	output := outputForEvent(event)
	if output == nil {
		return
	}

	for _, conn := range c.connRepo.GetByRoomId(event.EventRoomId()) {
		if conn.Id == excludedConnId {
			continue
		}
		if err := conn.Send(output); err != nil {
			c.logger.DebugContext(ctx, "failed to push", "connection_id", conn.Id, "type", output.Type, "error", err)
		}
	}

	if kicked, ok := event.(domain.ViewerKicked); ok {
		for _, conn := range c.connRepo.GetByUserId(kicked.RoomId, kicked.ViewerId) {
			conn.CloseWithCode(closeCodeKicked, "kicked")
		}
	}
}

const closeCodeKicked = 4001

func outputForEvent(event domain.Event) *Output {
	switch e := event.(type) {
	case domain.ViewerJoined:
		return &Output{Type: "JOIN", Payload: toViewerView(e.Viewer)}
	case domain.ViewerLeaved:
		return &Output{Type: "LEAVE", Payload: leavePayload{ViewerId: e.ViewerId}}
	case domain.ViewerKicked:
		return &Output{Type: "LEAVE", Payload: leavePayload{ViewerId: e.ViewerId}}
	case domain.ViewerOnlineChanged:
		return &Output{Type: "UPDATE_VIEWER", Payload: updateViewerPayload{
			ViewerId: e.ViewerId,
			Online:   ptr(e.Online),
		}}
	case domain.ViewerNameChanged:
		return &Output{Type: "UPDATE_VIEWER", Payload: updateViewerPayload{
			ViewerId: e.ViewerId,
			Name:     ptr(e.Name),
		}}
	case domain.ViewerPhotoChanged:
		return &Output{Type: "UPDATE_VIEWER", Payload: updateViewerPayload{
			ViewerId: e.ViewerId,
			PhotoKey: ptr(e.PhotoKey),
		}}
	case domain.ViewerSettingsChanged:
		return &Output{Type: "UPDATE_VIEWER", Payload: updateViewerPayload{
			ViewerId: e.ViewerId,
			Settings: ptr(e.Settings),
		}}
	case domain.ViewerBeeped:
		return &Output{Type: "UPDATE_VIEWER", Payload: updateViewerPayload{
			ViewerId: e.TargetId,
			Beeps:    ptr(e.Beeps),
		}}
	case domain.ViewerScreamed:
		return &Output{Type: "UPDATE_VIEWER", Payload: updateViewerPayload{
			ViewerId: e.TargetId,
			Screams:  ptr(e.Screams),
		}}
	case domain.ViewerPauseChanged:
		return &Output{Type: "UPDATE_VIEWER_PLAYER", Payload: updateViewerPlayerPayload{
			ViewerId:  e.ViewerId,
			IsSync:    e.IsSync,
			OnPause:   ptr(e.OnPause),
			TimeLine:  ptr(toTicks(e.TimeLine)),
			Buffering: ptr(e.Buffering),
		}}
	case domain.ViewerTimeLineChanged:
		return &Output{Type: "UPDATE_VIEWER_PLAYER", Payload: updateViewerPlayerPayload{
			ViewerId: e.ViewerId,
			IsSync:   e.IsSync,
			TimeLine: ptr(toTicks(e.TimeLine)),
		}}
	case domain.ViewerSpeedChanged:
		return &Output{Type: "UPDATE_VIEWER_PLAYER", Payload: updateViewerPlayerPayload{
			ViewerId: e.ViewerId,
			IsSync:   e.IsSync,
			Speed:    ptr(e.Speed),
		}}
	case domain.ViewerEpisodeChanged:
		return &Output{Type: "UPDATE_VIEWER_PLAYER", Payload: updateViewerPlayerPayload{
			ViewerId: e.ViewerId,
			IsSync:   e.IsSync,
			Season:   ptr(e.Season),
			Episode:  ptr(e.Episode),
		}}
	case domain.ViewerFullScreenChanged:
		return &Output{Type: "UPDATE_VIEWER_PLAYER", Payload: updateViewerPlayerPayload{
			ViewerId:   e.ViewerId,
			IsSync:     e.IsSync,
			FullScreen: ptr(e.FullScreen),
		}}
	case domain.ViewerMuteChanged:
		return &Output{Type: "UPDATE_VIEWER_PLAYER", Payload: updateViewerPlayerPayload{
			ViewerId: e.ViewerId,
			Muted:    ptr(e.Muted),
		}}
	case domain.ViewerTyped:
		return &Output{Type: "TYPING", Payload: typingPayload{ViewerId: e.InitiatorId}}
	case domain.MessageSent:
		return &Output{Type: "MESSAGE", Payload: toMessageView(e.Message)}
	default:
		return nil
	}
}
