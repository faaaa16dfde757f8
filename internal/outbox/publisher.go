package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kinoroom/server/internal/domain"
	"github.com/kinoroom/server/internal/relay"
	"github.com/kinoroom/server/internal/uow"
)

// Publisher stages domain events as relay envelopes inside the commit
// that produced them. It runs in the before-save phase so a staging
// failure aborts the whole unit.
type Publisher struct {
	instanceId string
}

func NewPublisher(instanceId string) *Publisher {
	return &Publisher{instanceId: instanceId}
}

func (p *Publisher) HandleEvent(ctx context.Context, event domain.Event, beforeSave bool) error {
	if !beforeSave {
		return nil
	}

	u, ok := uow.FromCtx(ctx)
	if !ok {
		return fmt.Errorf("no unit of work in context")
	}
	if !u.PublishesOutbox() {
		return nil
	}

	envelope, err := relay.NewEnvelope(event, p.instanceId, relay.ExcludedConnFromCtx(ctx))
	if err != nil {
		return fmt.Errorf("failed to build envelope: %w", err)
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	if err := u.StageOutbox(payload); err != nil {
		return fmt.Errorf("failed to stage envelope: %w", err)
	}

	return nil
}
