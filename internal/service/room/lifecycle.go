package room

import (
	"context"
	"errors"
	"fmt"

	"github.com/kinoroom/server/internal/domain"
	"github.com/kinoroom/server/internal/relay"
	"github.com/kinoroom/server/internal/uow"
)

// Handlers for the upstream lifecycle stream. Each runs in an inbox
// session keyed by the broker message id, so a redelivered message is
// committed at most once.

func (s *service) HandleRoomCreated(ctx context.Context, messageId string, params *relay.RoomCreated) error {
	return uow.Retry(ctx, commitAttempts, func(ctx context.Context) error {
		u := s.uow.New(uow.Session{Kind: uow.SessionInbox, MessageId: messageId})

		room := domain.NewRoom(params.Id, params.FilmId, params.Owner.Id, params.IsSerial)
		if err := room.Join(params.Owner); err != nil {
			return err
		}
		u.AddRoom(room)

		return u.SaveChanges(ctx)
	})
}

func (s *service) HandleRoomDeleted(ctx context.Context, messageId string, params *relay.RoomDeleted) error {
	err := uow.Retry(ctx, commitAttempts, func(ctx context.Context) error {
		u := s.uow.New(uow.Session{Kind: uow.SessionInbox, MessageId: messageId})
		u.DeleteRoom(params.Id)

		return u.SaveChanges(ctx)
	})
	if err != nil {
		return err
	}

	for _, conn := range s.connRepo.GetByRoomId(params.Id) {
		if _, err := s.connRepo.Remove(conn.Id); err != nil {
			s.logger.WarnContext(ctx, "failed to remove connection", "connection_id", conn.Id, "error", err)
		}
		conn.CloseWithCode(closeCodeRoomDeleted, "room deleted")
	}

	return nil
}

func (s *service) HandleViewerJoined(ctx context.Context, messageId string, params *relay.RoomViewerJoined) error {
	return uow.Retry(ctx, commitAttempts, func(ctx context.Context) error {
		u := s.uow.New(uow.Session{Kind: uow.SessionInbox, MessageId: messageId})

		room, err := u.GetRoom(ctx, params.RoomId)
		if err != nil {
			return err
		}

		if err := room.Join(params.Viewer); err != nil {
			if errors.Is(err, domain.ErrViewerAlreadyExists) {
				return nil
			}
			return err
		}

		return u.SaveChanges(ctx)
	})
}

func (s *service) HandleViewerKicked(ctx context.Context, messageId string, params *relay.RoomViewerKicked) error {
	return uow.Retry(ctx, commitAttempts, func(ctx context.Context) error {
		u := s.uow.New(uow.Session{Kind: uow.SessionInbox, MessageId: messageId})

		room, err := u.GetRoom(ctx, params.RoomId)
		if err != nil {
			return err
		}

		if err := room.Kick(params.ViewerId); err != nil {
			return err
		}

		return u.SaveChanges(ctx)
	})
}

func (s *service) HandleViewerLeaved(ctx context.Context, messageId string, params *relay.RoomViewerLeaved) error {
	return uow.Retry(ctx, commitAttempts, func(ctx context.Context) error {
		u := s.uow.New(uow.Session{Kind: uow.SessionInbox, MessageId: messageId})

		room, err := u.GetRoom(ctx, params.RoomId)
		if err != nil {
			return err
		}

		if err := room.Leave(params.ViewerId); err != nil {
			return err
		}

		return u.SaveChanges(ctx)
	})
}

func (s *service) HandleCleanMessages(ctx context.Context, params *relay.CleanMessages) error {
	if err := s.msgRepo.TrimMessages(ctx, params.RoomId, 0); err != nil {
		return fmt.Errorf("failed to trim messages: %w", err)
	}

	return nil
}
