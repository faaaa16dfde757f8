package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kinoroom/server/internal/relay"
)

type iOutboxRepo interface {
	ClaimOutbox(ctx context.Context, instanceId string, timeout time.Duration) ([]byte, error)
	AckOutbox(ctx context.Context, instanceId string, record []byte) error
	PendingOutbox(ctx context.Context, instanceId string) ([][]byte, error)
}

type iBroker interface {
	Publish(ctx context.Context, stream string, values map[string]any) error
}

// Drainer moves committed outbox records onto the broker stream. A
// record is claimed into a per-instance processing list and acked out
// of it only after the publish lands, so a crash between claim and
// publish leaves the record recoverable on the next run.
type Drainer struct {
	repo       iOutboxRepo
	broker     iBroker
	instanceId string
	logger     *slog.Logger
}

func NewDrainer(repo iOutboxRepo, broker iBroker, instanceId string, logger *slog.Logger) *Drainer {
	return &Drainer{
		repo:       repo,
		broker:     broker,
		instanceId: instanceId,
		logger:     logger,
	}
}

func (d *Drainer) Run(ctx context.Context) error {
	if err := d.recoverPending(ctx); err != nil {
		d.logger.WarnContext(ctx, "failed to recover pending outbox records", "error", err)
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		record, err := d.repo.ClaimOutbox(ctx, d.instanceId, time.Second)
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.logger.WarnContext(ctx, "failed to claim outbox record", "error", err)
			time.Sleep(time.Second)
			continue
		}

		d.deliver(ctx, record)
	}
}

// recoverPending republishes records a previous run claimed but never
// acked.
func (d *Drainer) recoverPending(ctx context.Context) error {
	pending, err := d.repo.PendingOutbox(ctx, d.instanceId)
	if err != nil {
		return err
	}

	for _, record := range pending {
		d.deliver(ctx, record)
	}

	return nil
}

// deliver publishes one claimed record, retrying until it lands, then
// acks it out of the processing list.
func (d *Drainer) deliver(ctx context.Context, record []byte) {
	for {
		err := d.publish(ctx, record)
		if err == nil {
			break
		}
		d.logger.WarnContext(ctx, "failed to publish outbox record", "error", err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}

	if err := d.repo.AckOutbox(ctx, d.instanceId, record); err != nil {
		d.logger.ErrorContext(ctx, "failed to ack outbox record", "error", err)
	}
}

func (d *Drainer) publish(ctx context.Context, record []byte) error {
	var envelope relay.Envelope
	if err := json.Unmarshal(record, &envelope); err != nil {
		d.logger.ErrorContext(ctx, "dropping malformed outbox record", "error", err)
		return nil
	}

	return d.broker.Publish(ctx, relay.StreamRoomEvents, envelope.Values())
}
