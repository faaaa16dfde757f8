package room

import (
	"context"
	"errors"
	"fmt"

	"github.com/kinoroom/server/internal/domain"
	"github.com/kinoroom/server/internal/repository/connection"
)

type ConnectViewerParams struct {
	Conn *connection.Connection
}

// ConnectViewer registers the socket and flips the viewer online. The
// viewer must already be in the room; joining happens upstream.
func (s *service) ConnectViewer(ctx context.Context, params *ConnectViewerParams) error {
	conn := params.Conn

	if err := s.mutate(ctx, conn.RoomId, func(room *domain.Room) error {
		return room.SetOnline(conn.UserId, true)
	}); err != nil {
		return fmt.Errorf("failed to set viewer online: %w", err)
	}

	if err := s.connRepo.Add(conn); err != nil {
		return fmt.Errorf("failed to add connection: %w", err)
	}

	return nil
}

type DisconnectViewerParams struct {
	ConnId string
}

// DisconnectViewer removes the socket and, when it was the viewer's
// last one, flips them offline. The room may already be gone.
func (s *service) DisconnectViewer(ctx context.Context, params *DisconnectViewerParams) error {
	conn, err := s.connRepo.Remove(params.ConnId)
	if err != nil {
		if errors.Is(err, connection.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to remove connection: %w", err)
	}

	if len(s.connRepo.GetByUserId(conn.RoomId, conn.UserId)) > 0 {
		return nil
	}

	err = s.mutate(ctx, conn.RoomId, func(room *domain.Room) error {
		return room.SetOnline(conn.UserId, false)
	})
	if err != nil && !errors.Is(err, domain.ErrRoomNotFound) && !errors.Is(err, domain.ErrViewerNotFound) {
		return fmt.Errorf("failed to set viewer offline: %w", err)
	}

	return nil
}
