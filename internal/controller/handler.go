package controller

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kinoroom/server/internal/relay"
	"github.com/kinoroom/server/internal/repository/connection"
	"github.com/kinoroom/server/internal/service/room"
)

// attach upgrades the request, registers the connection and serves its
// message loop until the socket closes.
func (c controller) attach(w http.ResponseWriter, r *http.Request) {
	roomId := chi.URLParam(r, "room-id")
	if roomId == "" {
		http.Error(w, "room id is required", http.StatusBadRequest)
		return
	}

	claims, err := c.roomService.ParseToken(c.getToken(r))
	if err != nil {
		c.logger.DebugContext(r.Context(), "failed to parse token", "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	wsConn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.WarnContext(r.Context(), "failed to upgrade to websocket", "error", err)
		return
	}
	defer wsConn.Close()

	conn := connection.New(uuid.NewString(), claims.UserId, roomId, wsConn)

	ctx := context.WithValue(r.Context(), roomIdCtxKey, roomId)
	ctx = context.WithValue(ctx, userIdCtxKey, claims.UserId)
	ctx = context.WithValue(ctx, connIdCtxKey, conn.Id)
	ctx = relay.WithExcludedConn(ctx, conn.Id)

	if err := c.roomService.ConnectViewer(ctx, &room.ConnectViewerParams{Conn: conn}); err != nil {
		c.logger.DebugContext(ctx, "failed to connect viewer", "error", err)
		return
	}
	defer func() {
		if err := c.roomService.DisconnectViewer(ctx, &room.DisconnectViewerParams{ConnId: conn.Id}); err != nil {
			c.logger.WarnContext(ctx, "failed to disconnect viewer", "error", err)
		}
	}()

	roomState, err := c.roomService.GetRoom(ctx, &room.GetRoomParams{RoomId: roomId})
	if err != nil {
		c.logger.WarnContext(ctx, "failed to get room", "error", err)
		return
	}

	if err := conn.Send(&Output{
		Type: "CONNECT",
		Payload: connectPayload{
			ConnId: conn.Id,
			Room:   toRoomView(roomState),
		},
	}); err != nil {
		c.logger.WarnContext(ctx, "failed to send connect ack", "error", err)
		return
	}

	if err := c.wsmux.ServeConn(ctx, wsConn); err != nil {
		c.logger.DebugContext(ctx, "connection closed", "error", err)
	}
}

// getToken reads the bearer token from the Authorization header, or
// from the token query param for clients that cannot set headers on
// the websocket handshake.
func (c controller) getToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return token
	}

	return r.URL.Query().Get("token")
}
