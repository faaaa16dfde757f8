package room

import (
	"context"
	"log/slog"
	"time"

	"github.com/skewb1k/goutils/randstr"

	"github.com/kinoroom/server/internal/domain"
	"github.com/kinoroom/server/internal/repository/connection"
	roomrepo "github.com/kinoroom/server/internal/repository/room"
	"github.com/kinoroom/server/internal/uow"
)

const (
	commitAttempts = 3

	defaultHistoryCount = 20
	maxHistoryCount     = 50

	closeCodeRoomDeleted = 4000

	messageIdLength = 16
)

type iConnRepo interface {
	Add(conn *connection.Connection) error
	Remove(connId string) (*connection.Connection, error)
	Get(connId string) (*connection.Connection, error)
	GetByRoomId(roomId string) []*connection.Connection
	GetByUserId(roomId, userId string) []*connection.Connection
}

type iGenerator interface {
	GenerateRandomString(length int) string
}

type iMessageRepo interface {
	GetMessages(ctx context.Context, params *roomrepo.GetMessagesParams) ([]domain.Message, error)
	TrimMessages(ctx context.Context, roomId string, keep int) error
}

type service struct {
	uow       *uow.Factory
	connRepo  iConnRepo
	msgRepo   iMessageRepo
	generator iGenerator
	logger    *slog.Logger

	secret   []byte
	cooldown time.Duration

	now func() time.Time
}

func NewService(uowFactory *uow.Factory, connRepo iConnRepo, msgRepo iMessageRepo, secret string, cooldown time.Duration, logger *slog.Logger) *service {
	letterBytes := []byte("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")

	return &service{
		uow:       uowFactory,
		connRepo:  connRepo,
		msgRepo:   msgRepo,
		generator: randstr.New(letterBytes),
		logger:    logger,
		secret:    []byte(secret),
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// mutate runs fn against the room inside a fresh outbox session,
// retrying the whole unit on version conflicts.
func (s *service) mutate(ctx context.Context, roomId string, fn func(room *domain.Room) error) error {
	return uow.Retry(ctx, commitAttempts, func(ctx context.Context) error {
		u := s.uow.New(uow.Session{Kind: uow.SessionOutbox})

		room, err := u.GetRoom(ctx, roomId)
		if err != nil {
			return err
		}

		if err := fn(room); err != nil {
			return err
		}

		return u.SaveChanges(ctx)
	})
}
