package controller

import (
	"context"
	"errors"
	"math"

	"github.com/gorilla/websocket"

	"github.com/kinoroom/server/internal/domain"
	"github.com/kinoroom/server/pkg/validator"
	"github.com/kinoroom/server/pkg/wsrouter"
)

func (c controller) getWSRouter() *wsrouter.Router {
	mux := wsrouter.New()
	mux.OnError(c.onWSError)

	// room
	wsrouter.Handle(mux, "GET_ROOM", c.handleGetRoom)
	wsrouter.Handle(mux, "KICK", c.handleKick)
	wsrouter.Handle(mux, "LEAVE", c.handleLeave)

	// player
	wsrouter.Handle(mux, "SYNC", c.handleSync)
	wsrouter.Handle(mux, "SET_PAUSE", c.handleSetPause)
	wsrouter.Handle(mux, "SET_TIMELINE", c.handleSetTimeLine)
	wsrouter.Handle(mux, "SET_SPEED", c.handleSetSpeed)
	wsrouter.Handle(mux, "SET_EPISODE", c.handleSetEpisode)
	wsrouter.Handle(mux, "SET_FULLSCREEN", c.handleSetFullScreen)
	wsrouter.Handle(mux, "SET_MUTED", c.handleSetMuted)

	// profile
	wsrouter.Handle(mux, "SET_SETTINGS", c.handleSetSettings)
	wsrouter.Handle(mux, "SET_NAME", c.handleSetName)
	wsrouter.Handle(mux, "SET_PHOTO", c.handleSetPhoto)

	// chat
	wsrouter.Handle(mux, "TYPE", c.handleType)
	wsrouter.Handle(mux, "SEND_MESSAGE", c.handleSendMessage)
	wsrouter.Handle(mux, "GET_MESSAGES", c.handleGetMessages)

	// social
	wsrouter.Handle(mux, "BEEP", c.handleBeep)
	wsrouter.Handle(mux, "SCREAM", c.handleScream)

	return mux
}

type errorPayload struct {
	MessageType      string                      `json:"message_type,omitempty"`
	Message          string                      `json:"message"`
	RemainingSeconds *int64                      `json:"remaining_seconds,omitempty"`
	Errors           []validator.ValidationError `json:"errors,omitempty"`
}

// onWSError reports a failed command back to its caller only; nothing
// is broadcast and the connection stays open.
func (c controller) onWSError(ctx context.Context, _ *websocket.Conn, err error) {
	c.logger.DebugContext(ctx, "command failed", "type", wsrouter.GetMessageTypeFromCtx(ctx), "error", err)

	payload := errorPayload{
		MessageType: wsrouter.GetMessageTypeFromCtx(ctx),
		Message:     "internal error",
	}

	var cooldownErr domain.CooldownError
	var validationErr validationError

	switch {
	case errors.As(err, &cooldownErr):
		payload.Message = "cooldown"
		remaining := int64(math.Ceil(cooldownErr.Remaining.Seconds()))
		payload.RemainingSeconds = &remaining
	case errors.As(err, &validationErr):
		payload.Message = "validation error"
		payload.Errors = validationErr.errors
	case errors.Is(err, domain.ErrRoomNotFound):
		payload.Message = "room not found"
	case errors.Is(err, domain.ErrViewerNotFound):
		payload.Message = "viewer not found"
	case errors.Is(err, domain.ErrRoomNotSerial):
		payload.Message = "room is not serial"
	case errors.Is(err, domain.ErrPermissionDenied):
		payload.Message = "permission denied"
	}

	// Writes go through the registered connection so they serialize
	// with concurrent pushes.
	if err := c.sendToCaller(ctx, &Output{Type: "ERROR", Payload: payload}); err != nil {
		c.logger.DebugContext(ctx, "failed to send error", "error", err)
	}
}
