package room

import (
	"context"
	"fmt"
	"time"

	"github.com/kinoroom/server/internal/domain"
	"github.com/kinoroom/server/internal/uow"
)

type BeepParams struct {
	RoomId   string
	ViewerId string
	ConnId   string
	TargetId string
}

func (s *service) Beep(ctx context.Context, params *BeepParams) error {
	conn, err := s.connRepo.Get(params.ConnId)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}

	if remaining := s.remainingCooldown(conn.LastBeep); remaining > 0 {
		return domain.CooldownError{Remaining: remaining}
	}

	err = s.mutate(ctx, params.RoomId, func(room *domain.Room) error {
		viewer, ok := room.Viewer(params.ViewerId)
		if !ok {
			return domain.ErrViewerNotFound
		}
		if !viewer.CanBeep {
			return fmt.Errorf("%w: viewer cannot beep", domain.ErrPermissionDenied)
		}

		return room.Beep(params.ViewerId, params.TargetId)
	})
	if err != nil {
		return err
	}

	conn.LastBeep = s.now()

	return nil
}

type ScreamParams struct {
	RoomId   string
	ViewerId string
	ConnId   string
	TargetId string
}

func (s *service) Scream(ctx context.Context, params *ScreamParams) error {
	conn, err := s.connRepo.Get(params.ConnId)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}

	if remaining := s.remainingCooldown(conn.LastScream); remaining > 0 {
		return domain.CooldownError{Remaining: remaining}
	}

	err = s.mutate(ctx, params.RoomId, func(room *domain.Room) error {
		viewer, ok := room.Viewer(params.ViewerId)
		if !ok {
			return domain.ErrViewerNotFound
		}
		if !viewer.CanScream {
			return fmt.Errorf("%w: viewer cannot scream", domain.ErrPermissionDenied)
		}

		return room.Scream(params.ViewerId, params.TargetId)
	})
	if err != nil {
		return err
	}

	conn.LastScream = s.now()

	return nil
}

// remainingCooldown returns how long is left of the cooldown started
// at last, or zero when the action is allowed again.
func (s *service) remainingCooldown(last time.Time) time.Duration {
	if last.IsZero() {
		return 0
	}

	elapsed := s.now().Sub(last)
	if elapsed >= s.cooldown {
		return 0
	}

	return s.cooldown - elapsed
}

type TypeParams struct {
	RoomId   string
	ViewerId string
}

// Type broadcasts a typing indicator. It writes no state, so the event
// is raised on the unit directly and the commit carries only the
// outbox record.
func (s *service) Type(ctx context.Context, params *TypeParams) error {
	u := s.uow.New(uow.Session{Kind: uow.SessionOutbox})

	if _, err := u.GetRoom(ctx, params.RoomId); err != nil {
		return err
	}

	u.RaiseEvent(domain.ViewerTyped{RoomId: params.RoomId, InitiatorId: params.ViewerId})

	return u.SaveChanges(ctx)
}
