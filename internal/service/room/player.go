package room

import (
	"context"
	"fmt"
	"time"

	"github.com/kinoroom/server/internal/domain"
)

type SetPauseParams struct {
	RoomId    string
	ViewerId  string
	OnPause   bool
	TimeLine  time.Duration
	Buffering bool
}

func (s *service) SetPause(ctx context.Context, params *SetPauseParams) error {
	return s.mutate(ctx, params.RoomId, func(room *domain.Room) error {
		return room.SetPause(params.ViewerId, params.OnPause, params.TimeLine, params.Buffering, false)
	})
}

type SetTimeLineParams struct {
	RoomId   string
	ViewerId string
	TimeLine time.Duration
}

func (s *service) SetTimeLine(ctx context.Context, params *SetTimeLineParams) error {
	return s.mutate(ctx, params.RoomId, func(room *domain.Room) error {
		return room.SetTimeLine(params.ViewerId, params.TimeLine, false)
	})
}

type SetSpeedParams struct {
	RoomId   string
	ViewerId string
	Speed    float64
}

func (s *service) SetSpeed(ctx context.Context, params *SetSpeedParams) error {
	return s.mutate(ctx, params.RoomId, func(room *domain.Room) error {
		return room.SetSpeed(params.ViewerId, params.Speed, false)
	})
}

type SetEpisodeParams struct {
	RoomId   string
	ViewerId string
	Season   int
	Episode  int
}

func (s *service) SetEpisode(ctx context.Context, params *SetEpisodeParams) error {
	return s.mutate(ctx, params.RoomId, func(room *domain.Room) error {
		return room.SetEpisode(params.ViewerId, params.Season, params.Episode, false)
	})
}

type SetFullScreenParams struct {
	RoomId     string
	ViewerId   string
	FullScreen bool
}

func (s *service) SetFullScreen(ctx context.Context, params *SetFullScreenParams) error {
	return s.mutate(ctx, params.RoomId, func(room *domain.Room) error {
		return room.SetFullScreen(params.ViewerId, params.FullScreen, false)
	})
}

type SetMutedParams struct {
	RoomId   string
	ViewerId string
	Muted    bool
}

func (s *service) SetMuted(ctx context.Context, params *SetMutedParams) error {
	return s.mutate(ctx, params.RoomId, func(room *domain.Room) error {
		return room.SetMuted(params.ViewerId, params.Muted)
	})
}

type SyncParams struct {
	RoomId   string
	ViewerId string
	OnPause  bool
	TimeLine time.Duration
	Speed    float64
	Season   int
	Episode  int
}

// Sync pushes the initiator's full playback position to the room as
// one unit. Event order inside the commit is fixed so every replica
// applies episode first and speed last.
func (s *service) Sync(ctx context.Context, params *SyncParams) error {
	return s.mutate(ctx, params.RoomId, func(room *domain.Room) error {
		viewer, ok := room.Viewer(params.ViewerId)
		if !ok {
			return domain.ErrViewerNotFound
		}
		if !viewer.CanSync {
			return fmt.Errorf("%w: viewer cannot sync", domain.ErrPermissionDenied)
		}

		if room.IsSerial() {
			if err := room.SetEpisode(params.ViewerId, params.Season, params.Episode, true); err != nil {
				return err
			}
		}
		if err := room.SetPause(params.ViewerId, params.OnPause, params.TimeLine, false, true); err != nil {
			return err
		}
		if err := room.SetTimeLine(params.ViewerId, params.TimeLine, true); err != nil {
			return err
		}

		return room.SetSpeed(params.ViewerId, params.Speed, true)
	})
}
