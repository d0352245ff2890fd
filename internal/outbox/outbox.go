// Package outbox publishes sequences queued in postgres to kafka.
package outbox

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/Capitan-Parrot/clever-camera/internal/models"
)

const batchSize = 20

type store interface {
	GetPendingOutboxMessages(ctx context.Context, limit int) ([]models.OutboxMessage, error)
	MarkOutboxMessageAsProcessed(ctx context.Context, id string) error
}

type publisher interface {
	PublishSequence(camera string, payload []byte) error
}

// StartOutboxDispatcher publishes pending messages every interval until
// ctx is done. A message is marked processed only after kafka accepted it.
func StartOutboxDispatcher(ctx context.Context, db store, producer publisher, interval time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Outbox dispatcher stopped")
			return
		case <-ticker.C:
			dispatch(ctx, db, producer, logger)
		}
	}
}

func dispatch(ctx context.Context, db store, producer publisher, logger zerolog.Logger) int {
	messages, err := db.GetPendingOutboxMessages(ctx, batchSize)
	if err != nil {
		logger.Error().Err(err).Msg("Error fetching outbox messages")
		return 0
	}

	sent := 0
	for _, msg := range messages {
		if err := producer.PublishSequence(msg.Camera, msg.Payload); err != nil {
			logger.Error().Err(err).Str("id", msg.ID).Msg("Failed to send message to Kafka")
			// keep order: later messages wait for the next tick
			return sent
		}
		if err := db.MarkOutboxMessageAsProcessed(ctx, msg.ID); err != nil {
			logger.Error().Err(err).Str("id", msg.ID).Msg("Failed to mark outbox message as processed")
			return sent
		}
		sent++
	}
	return sent
}
