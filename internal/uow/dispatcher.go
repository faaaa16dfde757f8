package uow

import (
	"context"
	"log/slog"

	"github.com/kinoroom/server/internal/domain"
)

// HandlerFunc receives every dispatched event twice: once with
// beforeSave=true ahead of the commit (an error aborts the whole
// unit), and once with beforeSave=false after it (errors are logged
// and swallowed by the unit of work).
type HandlerFunc func(ctx context.Context, event domain.Event, beforeSave bool) error

// Dispatcher fans domain events out to local subscribers,
// sequentially, in registration order.
type Dispatcher struct {
	logger   *slog.Logger
	handlers []HandlerFunc
}

func NewDispatcher(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{logger: logger}
}

func (d *Dispatcher) Subscribe(handler HandlerFunc) {
	d.handlers = append(d.handlers, handler)
}

func (d *Dispatcher) Dispatch(ctx context.Context, event domain.Event, beforeSave bool) error {
	for _, handler := range d.handlers {
		if err := handler(ctx, event, beforeSave); err != nil {
			return err
		}
	}

	return nil
}
