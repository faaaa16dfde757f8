package controller

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/kinoroom/server/internal/repository/connection"
	"github.com/kinoroom/server/internal/service/room"
	"github.com/kinoroom/server/pkg/validator"
	"github.com/kinoroom/server/pkg/wsrouter"
)

type iRoomService interface {
	ParseToken(tokenString string) (*room.Claims, error)
	ConnectViewer(context.Context, *room.ConnectViewerParams) error
	DisconnectViewer(context.Context, *room.DisconnectViewerParams) error
	GetRoom(context.Context, *room.GetRoomParams) (room.GetRoomResponse, error)
	Sync(context.Context, *room.SyncParams) error
	SetPause(context.Context, *room.SetPauseParams) error
	SetTimeLine(context.Context, *room.SetTimeLineParams) error
	SetSpeed(context.Context, *room.SetSpeedParams) error
	SetEpisode(context.Context, *room.SetEpisodeParams) error
	SetFullScreen(context.Context, *room.SetFullScreenParams) error
	SetMuted(context.Context, *room.SetMutedParams) error
	SetSettings(context.Context, *room.SetSettingsParams) error
	SetName(context.Context, *room.SetNameParams) error
	SetPhoto(context.Context, *room.SetPhotoParams) error
	Type(context.Context, *room.TypeParams) error
	SendMessage(context.Context, *room.SendMessageParams) (room.SendMessageResponse, error)
	GetMessages(context.Context, *room.GetMessagesParams) (room.GetMessagesResponse, error)
	Beep(context.Context, *room.BeepParams) error
	Scream(context.Context, *room.ScreamParams) error
	KickViewer(context.Context, *room.KickViewerParams) error
	LeaveRoom(context.Context, *room.LeaveRoomParams) error
}

type iConnRepo interface {
	Get(connId string) (*connection.Connection, error)
	GetByRoomId(roomId string) []*connection.Connection
	GetByUserId(roomId, userId string) []*connection.Connection
}

type controller struct {
	roomService iRoomService
	connRepo    iConnRepo
	upgrader    websocket.Upgrader
	validate    *validator.Validator
	wsmux       *wsrouter.Router
	logger      *slog.Logger
}

func NewController(roomService iRoomService, connRepo iConnRepo, logger *slog.Logger) *controller {
	c := controller{
		roomService: roomService,
		connRepo:    connRepo,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		validate: validator.New(),
		logger:   logger,
	}
	c.wsmux = c.getWSRouter()

	return &c
}
