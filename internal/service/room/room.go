package room

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/kinoroom/server/internal/domain"
	"github.com/kinoroom/server/internal/uow"
)

type GetRoomParams struct {
	RoomId string
}

type GetRoomResponse struct {
	Id       string
	FilmId   string
	OwnerId  string
	IsSerial bool
	Viewers  []domain.Viewer
}

// GetRoom returns the full room state with viewers in a stable order.
func (s *service) GetRoom(ctx context.Context, params *GetRoomParams) (GetRoomResponse, error) {
	u := s.uow.New(uow.Session{Kind: uow.SessionDefault})

	room, err := u.GetRoom(ctx, params.RoomId)
	if err != nil {
		return GetRoomResponse{}, err
	}

	snapshot := room.Snapshot()

	viewers := make([]domain.Viewer, 0, len(snapshot.Viewers))
	for _, viewer := range snapshot.Viewers {
		viewers = append(viewers, viewer)
	}
	slices.SortFunc(viewers, func(a, b domain.Viewer) int {
		return strings.Compare(a.Id, b.Id)
	})

	return GetRoomResponse{
		Id:       snapshot.Id,
		FilmId:   snapshot.FilmId,
		OwnerId:  snapshot.OwnerId,
		IsSerial: snapshot.IsSerial,
		Viewers:  viewers,
	}, nil
}

type KickViewerParams struct {
	RoomId      string
	InitiatorId string
	TargetId    string
}

func (s *service) KickViewer(ctx context.Context, params *KickViewerParams) error {
	return s.mutate(ctx, params.RoomId, func(room *domain.Room) error {
		initiator, ok := room.Viewer(params.InitiatorId)
		if !ok {
			return domain.ErrViewerNotFound
		}
		if !initiator.CanKick {
			return fmt.Errorf("%w: viewer cannot kick", domain.ErrPermissionDenied)
		}
		if params.TargetId == room.OwnerId() {
			return fmt.Errorf("%w: owner cannot be kicked", domain.ErrPermissionDenied)
		}

		return room.Kick(params.TargetId)
	})
}

type LeaveRoomParams struct {
	RoomId   string
	ViewerId string
}

func (s *service) LeaveRoom(ctx context.Context, params *LeaveRoomParams) error {
	return s.mutate(ctx, params.RoomId, func(room *domain.Room) error {
		return room.Leave(params.ViewerId)
	})
}
