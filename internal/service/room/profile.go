package room

import (
	"context"
	"fmt"

	o "github.com/skewb1k/optional"

	"github.com/kinoroom/server/internal/domain"
)

type SetSettingsParams struct {
	RoomId        string
	ViewerId      string
	Notifications o.Field[bool]
	AutoSync      o.Field[bool]
}

// SetSettings merges the defined fields over the viewer's current
// settings.
func (s *service) SetSettings(ctx context.Context, params *SetSettingsParams) error {
	return s.mutate(ctx, params.RoomId, func(room *domain.Room) error {
		viewer, ok := room.Viewer(params.ViewerId)
		if !ok {
			return domain.ErrViewerNotFound
		}

		settings := viewer.Settings
		if params.Notifications.Defined {
			settings.Notifications = *params.Notifications.Value
		}
		if params.AutoSync.Defined {
			settings.AutoSync = *params.AutoSync.Value
		}

		return room.SetSettings(params.ViewerId, settings)
	})
}

type SetNameParams struct {
	RoomId   string
	ViewerId string
	Name     string
}

func (s *service) SetName(ctx context.Context, params *SetNameParams) error {
	return s.mutate(ctx, params.RoomId, func(room *domain.Room) error {
		viewer, ok := room.Viewer(params.ViewerId)
		if !ok {
			return domain.ErrViewerNotFound
		}
		if !viewer.CanChangeName {
			return fmt.Errorf("%w: viewer cannot change name", domain.ErrPermissionDenied)
		}

		return room.SetName(params.ViewerId, params.Name)
	})
}

type SetPhotoParams struct {
	RoomId   string
	ViewerId string
	PhotoKey string
}

func (s *service) SetPhoto(ctx context.Context, params *SetPhotoParams) error {
	return s.mutate(ctx, params.RoomId, func(room *domain.Room) error {
		return room.SetPhoto(params.ViewerId, params.PhotoKey)
	})
}
