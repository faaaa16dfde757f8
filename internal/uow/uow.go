package uow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kinoroom/server/internal/domain"
	roomrepo "github.com/kinoroom/server/internal/repository/room"
)

var (
	ErrVersionConflict = errors.New("version conflict")
	ErrReadOnlySession = errors.New("session kind does not allow writes")
	ErrNoOutboxSession = errors.New("session kind does not allow outbox records")
)

type iRoomStore interface {
	GetRoom(ctx context.Context, roomId string) (domain.RoomSnapshot, int64, error)
	Commit(ctx context.Context, params *roomrepo.CommitParams) error
}

type Factory struct {
	store      iRoomStore
	dispatcher *Dispatcher
	logger     *slog.Logger
}

func NewFactory(store iRoomStore, dispatcher *Dispatcher, logger *slog.Logger) *Factory {
	return &Factory{
		store:      store,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

func (f *Factory) New(session Session) *UnitOfWork {
	return &UnitOfWork{
		store:      f.store,
		dispatcher: f.dispatcher,
		logger:     f.logger,
		session:    session,
		rooms:      make(map[string]*trackedRoom),
		deleted:    make(map[string]struct{}),
	}
}

type trackedRoom struct {
	room          *domain.Room
	loadedVersion int64
	isNew         bool
	dirty         bool
}

// UnitOfWork buffers all mutations of one logical request and applies
// them in a single atomic commit, dispatching the buffered events
// before and after it.
type UnitOfWork struct {
	store      iRoomStore
	dispatcher *Dispatcher
	logger     *slog.Logger
	session    Session

	rooms    map[string]*trackedRoom
	order    []string
	deleted  map[string]struct{}
	messages []domain.Message
	events   []domain.Event
	outbox   [][]byte
}

// GetRoom loads an aggregate into the identity map; repeated calls for
// the same id return the same instance.
func (u *UnitOfWork) GetRoom(ctx context.Context, roomId string) (*domain.Room, error) {
	if tracked, ok := u.rooms[roomId]; ok {
		return tracked.room, nil
	}

	snapshot, version, err := u.store.GetRoom(ctx, roomId)
	if err != nil {
		if errors.Is(err, roomrepo.ErrRoomNotFound) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to get room: %w", err)
	}

	room := domain.NewRoomFromSnapshot(snapshot, version)
	u.rooms[roomId] = &trackedRoom{room: room, loadedVersion: version}
	u.order = append(u.order, roomId)

	return room, nil
}

// AddRoom tracks a freshly created aggregate for insertion.
func (u *UnitOfWork) AddRoom(room *domain.Room) {
	u.rooms[room.Id()] = &trackedRoom{room: room, isNew: true}
	u.order = append(u.order, room.Id())
}

func (u *UnitOfWork) DeleteRoom(roomId string) {
	u.deleted[roomId] = struct{}{}
}

func (u *UnitOfWork) AddMessage(message domain.Message) {
	u.messages = append(u.messages, message)
}

// RaiseEvent buffers a service-level event that is not owned by an
// aggregate (typing, chat messages).
func (u *UnitOfWork) RaiseEvent(event domain.Event) {
	u.events = append(u.events, event)
}

// PublishesOutbox reports whether this session kind carries durable
// integration events.
func (u *UnitOfWork) PublishesOutbox() bool {
	return u.session.Kind == SessionOutbox || u.session.Kind == SessionInbox
}

// StageOutbox records a durable integration event to be committed
// together with the documents. Only outbox- and inbox-scoped sessions
// may publish.
func (u *UnitOfWork) StageOutbox(record []byte) error {
	if u.session.Kind != SessionOutbox && u.session.Kind != SessionInbox {
		return ErrNoOutboxSession
	}

	u.outbox = append(u.outbox, record)

	return nil
}

// SaveChanges applies the whole unit: before-save dispatch (any error
// aborts, nothing is written), one atomic multi-document commit, then
// after-save dispatch (errors logged, never rolled back).
func (u *UnitOfWork) SaveChanges(ctx context.Context) error {
	ctx = withUnit(ctx, u)

	events := u.pullEvents()

	for _, event := range events {
		if err := u.dispatcher.Dispatch(ctx, event, true); err != nil {
			return fmt.Errorf("before-save dispatch failed: %w", err)
		}
	}

	params, err := u.buildCommit()
	if err != nil {
		return err
	}

	if params != nil {
		if err := u.store.Commit(ctx, params); err != nil {
			switch {
			case errors.Is(err, roomrepo.ErrVersionConflict):
				return ErrVersionConflict
			case errors.Is(err, roomrepo.ErrMessageAlreadyProcessed):
				// Duplicate delivery: the first processing already
				// dispatched and published everything.
				u.logger.InfoContext(ctx, "skipping duplicate message", "message_id", u.session.MessageId)
				return nil
			}
			return fmt.Errorf("failed to commit: %w", err)
		}
	}

	for _, event := range events {
		if err := u.dispatcher.Dispatch(ctx, event, false); err != nil {
			u.logger.WarnContext(ctx, "after-save dispatch failed", "event", event.EventType(), "error", err)
		}
	}

	return nil
}

func (u *UnitOfWork) pullEvents() []domain.Event {
	events := make([]domain.Event, 0, len(u.events))
	for _, roomId := range u.order {
		tracked := u.rooms[roomId]
		pulled := tracked.room.PullEvents()
		if len(pulled) > 0 {
			tracked.dirty = true
		}
		events = append(events, pulled...)
	}
	events = append(events, u.events...)
	u.events = nil

	return events
}

func (u *UnitOfWork) buildCommit() (*roomrepo.CommitParams, error) {
	params := roomrepo.CommitParams{
		Messages:       u.messages,
		Outbox:         u.outbox,
		InboxMessageId: "",
	}

	if u.session.Kind == SessionInbox {
		params.InboxMessageId = u.session.MessageId
	}

	for _, roomId := range u.order {
		tracked := u.rooms[roomId]
		if _, deleted := u.deleted[roomId]; deleted {
			continue
		}
		if !tracked.isNew && !tracked.dirty {
			continue
		}

		params.Upserts = append(params.Upserts, roomrepo.RoomWrite{
			RoomId:          roomId,
			Snapshot:        tracked.room.Snapshot(),
			ExpectedVersion: tracked.loadedVersion,
		})
	}

	for roomId := range u.deleted {
		params.Deletes = append(params.Deletes, roomId)
	}

	if len(params.Upserts) == 0 && len(params.Deletes) == 0 &&
		len(params.Messages) == 0 && len(params.Outbox) == 0 {
		return nil, nil
	}

	if u.session.Kind == SessionDefault {
		return nil, ErrReadOnlySession
	}

	return &params, nil
}
