package controller

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"
	o "github.com/skewb1k/optional"

	"github.com/kinoroom/server/internal/service/room"
	"github.com/kinoroom/server/pkg/validator"
)

type EmptyInput struct{}

// validationError carries field errors back to the caller through the
// router's error func.
type validationError struct {
	errors []validator.ValidationError
}

func (e validationError) Error() string {
	return "validation error"
}

func (c controller) validateInput(input any) error {
	if errors, ok := c.validate.Validate(input); !ok {
		return validationError{errors: errors}
	}

	return nil
}

func (c controller) handleGetRoom(ctx context.Context, _ *websocket.Conn, _ EmptyInput) error {
	roomState, err := c.roomService.GetRoom(ctx, &room.GetRoomParams{RoomId: c.getRoomIdFromCtx(ctx)})
	if err != nil {
		return fmt.Errorf("failed to get room: %w", err)
	}

	return c.sendToCaller(ctx, &Output{Type: "ROOM", Payload: toRoomView(roomState)})
}

type SyncInput struct {
	OnPause  bool    `json:"on_pause"`
	TimeLine int64   `json:"time_line" validate:"min=0"`
	Speed    float64 `json:"speed" validate:"gt=0"`
	Season   int     `json:"season" validate:"min=0"`
	Episode  int     `json:"episode" validate:"min=0"`
}

func (c controller) handleSync(ctx context.Context, _ *websocket.Conn, input SyncInput) error {
	if err := c.validateInput(input); err != nil {
		return err
	}

	if err := c.roomService.Sync(ctx, &room.SyncParams{
		RoomId:   c.getRoomIdFromCtx(ctx),
		ViewerId: c.getUserIdFromCtx(ctx),
		OnPause:  input.OnPause,
		TimeLine: fromTicks(input.TimeLine),
		Speed:    input.Speed,
		Season:   input.Season,
		Episode:  input.Episode,
	}); err != nil {
		return fmt.Errorf("failed to sync: %w", err)
	}

	return nil
}

type GetMessagesInput struct {
	FromId string `json:"from_id"`
	Count  int    `json:"count" validate:"min=0"`
}

func (c controller) handleGetMessages(ctx context.Context, _ *websocket.Conn, input GetMessagesInput) error {
	resp, err := c.roomService.GetMessages(ctx, &room.GetMessagesParams{
		RoomId: c.getRoomIdFromCtx(ctx),
		FromId: input.FromId,
		Count:  input.Count,
	})
	if err != nil {
		return fmt.Errorf("failed to get messages: %w", err)
	}

	messages := make([]messageView, 0, len(resp.Messages))
	for _, message := range resp.Messages {
		messages = append(messages, toMessageView(message))
	}

	return c.sendToCaller(ctx, &Output{Type: "MESSAGES", Payload: messagesPayload{Messages: messages}})
}

type SetPauseInput struct {
	OnPause   bool  `json:"on_pause"`
	TimeLine  int64 `json:"time_line" validate:"min=0"`
	Buffering bool  `json:"buffering"`
}

func (c controller) handleSetPause(ctx context.Context, _ *websocket.Conn, input SetPauseInput) error {
	if err := c.validateInput(input); err != nil {
		return err
	}

	if err := c.roomService.SetPause(ctx, &room.SetPauseParams{
		RoomId:    c.getRoomIdFromCtx(ctx),
		ViewerId:  c.getUserIdFromCtx(ctx),
		OnPause:   input.OnPause,
		TimeLine:  fromTicks(input.TimeLine),
		Buffering: input.Buffering,
	}); err != nil {
		return fmt.Errorf("failed to set pause: %w", err)
	}

	return nil
}

type SetTimeLineInput struct {
	TimeLine int64 `json:"time_line" validate:"min=0"`
}

func (c controller) handleSetTimeLine(ctx context.Context, _ *websocket.Conn, input SetTimeLineInput) error {
	if err := c.validateInput(input); err != nil {
		return err
	}

	if err := c.roomService.SetTimeLine(ctx, &room.SetTimeLineParams{
		RoomId:   c.getRoomIdFromCtx(ctx),
		ViewerId: c.getUserIdFromCtx(ctx),
		TimeLine: fromTicks(input.TimeLine),
	}); err != nil {
		return fmt.Errorf("failed to set time line: %w", err)
	}

	return nil
}

type SetSpeedInput struct {
	Speed float64 `json:"speed" validate:"gt=0"`
}

func (c controller) handleSetSpeed(ctx context.Context, _ *websocket.Conn, input SetSpeedInput) error {
	if err := c.validateInput(input); err != nil {
		return err
	}

	if err := c.roomService.SetSpeed(ctx, &room.SetSpeedParams{
		RoomId:   c.getRoomIdFromCtx(ctx),
		ViewerId: c.getUserIdFromCtx(ctx),
		Speed:    input.Speed,
	}); err != nil {
		return fmt.Errorf("failed to set speed: %w", err)
	}

	return nil
}

type SetEpisodeInput struct {
	Season  int `json:"season" validate:"min=0"`
	Episode int `json:"episode" validate:"min=0"`
}

func (c controller) handleSetEpisode(ctx context.Context, _ *websocket.Conn, input SetEpisodeInput) error {
	if err := c.validateInput(input); err != nil {
		return err
	}

	if err := c.roomService.SetEpisode(ctx, &room.SetEpisodeParams{
		RoomId:   c.getRoomIdFromCtx(ctx),
		ViewerId: c.getUserIdFromCtx(ctx),
		Season:   input.Season,
		Episode:  input.Episode,
	}); err != nil {
		return fmt.Errorf("failed to set episode: %w", err)
	}

	return nil
}

type SetFullScreenInput struct {
	FullScreen bool `json:"full_screen"`
}

func (c controller) handleSetFullScreen(ctx context.Context, _ *websocket.Conn, input SetFullScreenInput) error {
	if err := c.roomService.SetFullScreen(ctx, &room.SetFullScreenParams{
		RoomId:     c.getRoomIdFromCtx(ctx),
		ViewerId:   c.getUserIdFromCtx(ctx),
		FullScreen: input.FullScreen,
	}); err != nil {
		return fmt.Errorf("failed to set full screen: %w", err)
	}

	return nil
}

type SetMutedInput struct {
	Muted bool `json:"muted"`
}

func (c controller) handleSetMuted(ctx context.Context, _ *websocket.Conn, input SetMutedInput) error {
	if err := c.roomService.SetMuted(ctx, &room.SetMutedParams{
		RoomId:   c.getRoomIdFromCtx(ctx),
		ViewerId: c.getUserIdFromCtx(ctx),
		Muted:    input.Muted,
	}); err != nil {
		return fmt.Errorf("failed to set muted: %w", err)
	}

	return nil
}

type SetSettingsInput struct {
	Notifications o.Field[bool] `json:"notifications"`
	AutoSync      o.Field[bool] `json:"auto_sync"`
}

func (c controller) handleSetSettings(ctx context.Context, _ *websocket.Conn, input SetSettingsInput) error {
	if !input.Notifications.Defined && !input.AutoSync.Defined {
		return validationError{errors: []validator.ValidationError{{
			Field:   "settings",
			Code:    "REQUIRED",
			Message: "at least one setting is required",
		}}}
	}

	if err := c.roomService.SetSettings(ctx, &room.SetSettingsParams{
		RoomId:        c.getRoomIdFromCtx(ctx),
		ViewerId:      c.getUserIdFromCtx(ctx),
		Notifications: input.Notifications,
		AutoSync:      input.AutoSync,
	}); err != nil {
		return fmt.Errorf("failed to set settings: %w", err)
	}

	return nil
}

type SetNameInput struct {
	Name string `json:"name" validate:"required,min=1,max=64"`
}

func (c controller) handleSetName(ctx context.Context, _ *websocket.Conn, input SetNameInput) error {
	if err := c.validateInput(input); err != nil {
		return err
	}

	if err := c.roomService.SetName(ctx, &room.SetNameParams{
		RoomId:   c.getRoomIdFromCtx(ctx),
		ViewerId: c.getUserIdFromCtx(ctx),
		Name:     input.Name,
	}); err != nil {
		return fmt.Errorf("failed to set name: %w", err)
	}

	return nil
}

type SetPhotoInput struct {
	PhotoKey string `json:"photo_key" validate:"max=256"`
}

func (c controller) handleSetPhoto(ctx context.Context, _ *websocket.Conn, input SetPhotoInput) error {
	if err := c.validateInput(input); err != nil {
		return err
	}

	if err := c.roomService.SetPhoto(ctx, &room.SetPhotoParams{
		RoomId:   c.getRoomIdFromCtx(ctx),
		ViewerId: c.getUserIdFromCtx(ctx),
		PhotoKey: input.PhotoKey,
	}); err != nil {
		return fmt.Errorf("failed to set photo: %w", err)
	}

	return nil
}

func (c controller) handleType(ctx context.Context, _ *websocket.Conn, _ EmptyInput) error {
	if err := c.roomService.Type(ctx, &room.TypeParams{
		RoomId:   c.getRoomIdFromCtx(ctx),
		ViewerId: c.getUserIdFromCtx(ctx),
	}); err != nil {
		return fmt.Errorf("failed to type: %w", err)
	}

	return nil
}

type SendMessageInput struct {
	Text string `json:"text" validate:"required,min=1,max=1000"`
}

func (c controller) handleSendMessage(ctx context.Context, _ *websocket.Conn, input SendMessageInput) error {
	if err := c.validateInput(input); err != nil {
		return err
	}

	resp, err := c.roomService.SendMessage(ctx, &room.SendMessageParams{
		RoomId:   c.getRoomIdFromCtx(ctx),
		ViewerId: c.getUserIdFromCtx(ctx),
		Text:     input.Text,
	})
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	// The caller is excluded from the broadcast, so echo the stored
	// message back directly.
	return c.sendToCaller(ctx, &Output{Type: "MESSAGE", Payload: toMessageView(resp.Message)})
}

type BeepInput struct {
	TargetId string `json:"target_id" validate:"required"`
}

func (c controller) handleBeep(ctx context.Context, _ *websocket.Conn, input BeepInput) error {
	if err := c.validateInput(input); err != nil {
		return err
	}

	if err := c.roomService.Beep(ctx, &room.BeepParams{
		RoomId:   c.getRoomIdFromCtx(ctx),
		ViewerId: c.getUserIdFromCtx(ctx),
		ConnId:   c.getConnIdFromCtx(ctx),
		TargetId: input.TargetId,
	}); err != nil {
		return fmt.Errorf("failed to beep: %w", err)
	}

	return nil
}

type ScreamInput struct {
	TargetId string `json:"target_id" validate:"required"`
}

func (c controller) handleScream(ctx context.Context, _ *websocket.Conn, input ScreamInput) error {
	if err := c.validateInput(input); err != nil {
		return err
	}

	if err := c.roomService.Scream(ctx, &room.ScreamParams{
		RoomId:   c.getRoomIdFromCtx(ctx),
		ViewerId: c.getUserIdFromCtx(ctx),
		ConnId:   c.getConnIdFromCtx(ctx),
		TargetId: input.TargetId,
	}); err != nil {
		return fmt.Errorf("failed to scream: %w", err)
	}

	return nil
}

type KickInput struct {
	TargetId string `json:"target_id" validate:"required"`
}

func (c controller) handleKick(ctx context.Context, _ *websocket.Conn, input KickInput) error {
	if err := c.validateInput(input); err != nil {
		return err
	}

	if err := c.roomService.KickViewer(ctx, &room.KickViewerParams{
		RoomId:      c.getRoomIdFromCtx(ctx),
		InitiatorId: c.getUserIdFromCtx(ctx),
		TargetId:    input.TargetId,
	}); err != nil {
		return fmt.Errorf("failed to kick viewer: %w", err)
	}

	return nil
}

func (c controller) handleLeave(ctx context.Context, _ *websocket.Conn, _ EmptyInput) error {
	if err := c.roomService.LeaveRoom(ctx, &room.LeaveRoomParams{
		RoomId:   c.getRoomIdFromCtx(ctx),
		ViewerId: c.getUserIdFromCtx(ctx),
	}); err != nil {
		return fmt.Errorf("failed to leave room: %w", err)
	}

	// Close through the registered connection so the close frame goes
	// out under its write lock.
	if conn, err := c.connRepo.Get(c.getConnIdFromCtx(ctx)); err == nil {
		conn.CloseWithCode(websocket.CloseNormalClosure, "left room")
	}

	return nil
}

func (c controller) sendToCaller(ctx context.Context, output *Output) error {
	conn, err := c.connRepo.Get(c.getConnIdFromCtx(ctx))
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}

	return conn.Send(output)
}
