package room

import (
	"context"
	"fmt"

	"github.com/kinoroom/server/internal/domain"
	roomrepo "github.com/kinoroom/server/internal/repository/room"
	"github.com/kinoroom/server/internal/uow"
)

type SendMessageParams struct {
	RoomId   string
	ViewerId string
	Text     string
}

type SendMessageResponse struct {
	Message domain.Message
}

func (s *service) SendMessage(ctx context.Context, params *SendMessageParams) (SendMessageResponse, error) {
	message := domain.Message{
		Id:        s.generator.GenerateRandomString(messageIdLength),
		RoomId:    params.RoomId,
		ViewerId:  params.ViewerId,
		Text:      params.Text,
		CreatedAt: s.now(),
	}

	err := uow.Retry(ctx, commitAttempts, func(ctx context.Context) error {
		u := s.uow.New(uow.Session{Kind: uow.SessionOutbox})

		room, err := u.GetRoom(ctx, params.RoomId)
		if err != nil {
			return err
		}
		if _, ok := room.Viewer(params.ViewerId); !ok {
			return domain.ErrViewerNotFound
		}

		u.AddMessage(message)
		u.RaiseEvent(domain.MessageSent{RoomId: params.RoomId, Message: message})

		return u.SaveChanges(ctx)
	})
	if err != nil {
		return SendMessageResponse{}, err
	}

	return SendMessageResponse{Message: message}, nil
}

type GetMessagesParams struct {
	RoomId string
	FromId string
	Count  int
}

type GetMessagesResponse struct {
	Messages []domain.Message
}

// GetMessages pages the room history backwards from FromId, newest
// page first when FromId is empty.
func (s *service) GetMessages(ctx context.Context, params *GetMessagesParams) (GetMessagesResponse, error) {
	count := params.Count
	if count <= 0 {
		count = defaultHistoryCount
	}
	if count > maxHistoryCount {
		count = maxHistoryCount
	}

	messages, err := s.msgRepo.GetMessages(ctx, &roomrepo.GetMessagesParams{
		RoomId: params.RoomId,
		FromId: params.FromId,
		Count:  count,
	})
	if err != nil {
		return GetMessagesResponse{}, fmt.Errorf("failed to get messages: %w", err)
	}

	return GetMessagesResponse{Messages: messages}, nil
}
