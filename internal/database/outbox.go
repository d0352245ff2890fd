package database

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Capitan-Parrot/clever-camera/internal/models"
)

// AddToOutbox adds a message to the transactional outbox
func (d *Database) AddToOutbox(ctx context.Context, camera string, payload []byte) error {
	_, err := d.querier(ctx).ExecContext(ctx,
		"INSERT INTO outbox (id, camera, payload, created_at) VALUES ($1, $2, $3, $4)",
		uuid.New().String(),
		camera,
		payload,
		time.Now(),
	)
	return err
}

// GetPendingOutboxMessages retrieves unprocessed outbox messages, oldest first
func (d *Database) GetPendingOutboxMessages(ctx context.Context, limit int) ([]models.OutboxMessage, error) {
	rows, err := d.querier(ctx).QueryContext(ctx, `
		SELECT id, camera, payload, created_at
		FROM outbox
		WHERE processed_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.OutboxMessage
	for rows.Next() {
		var m models.OutboxMessage
		if err := rows.Scan(&m.ID, &m.Camera, &m.Payload, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// MarkOutboxMessageAsProcessed marks an outbox message as processed
func (d *Database) MarkOutboxMessageAsProcessed(ctx context.Context, id string) error {
	_, err := d.querier(ctx).ExecContext(ctx,
		"UPDATE outbox SET processed_at = $1 WHERE id = $2",
		time.Now(),
		id,
	)
	return err
}
