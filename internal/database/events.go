package database

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/Capitan-Parrot/clever-camera/internal/models"
)

// MirrorEvent indexes an appended history event.
func (d *Database) MirrorEvent(ctx context.Context, ev models.Event) error {
	_, err := d.querier(ctx).ExecContext(ctx,
		`INSERT INTO events (id, camera, roi, labels, scores, image_change, image_path, thumbnail_path, occurred_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO NOTHING`,
		ev.ID,
		ev.CameraName,
		ev.ROIName,
		pq.Array(ev.Labels),
		pq.Array(lo.Ternary(ev.Scores == nil, []float64{}, ev.Scores)),
		ev.ImageChange,
		ev.ImagePath,
		ev.ThumbnailPath,
		ev.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// SaveSequence stores a closed sequence and links its events. With the
// outbox enabled the kafka message is queued in the same transaction.
func (d *Database) SaveSequence(ctx context.Context, camera string, events []models.Event) (string, error) {
	if len(events) == 0 {
		return "", nil
	}
	msg := models.NewSequenceMessage(camera, events, time.Now())

	err := d.InTx(ctx, func(ctx context.Context) error {
		q := d.querier(ctx)
		if _, err := q.ExecContext(ctx,
			`INSERT INTO sequences (id, camera, labels, event_count, started_at, ended_at, closed_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			msg.ID, camera, pq.Array(msg.Labels), msg.Count, msg.Start, msg.End, msg.ClosedAt,
		); err != nil {
			return fmt.Errorf("failed to insert sequence: %w", err)
		}

		for _, ev := range events {
			if _, err := q.ExecContext(ctx,
				`INSERT INTO sequence_events (sequence_id, event_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				msg.ID, ev.ID,
			); err != nil {
				return fmt.Errorf("failed to link event %s: %w", ev.ID, err)
			}
		}

		if !d.outbox {
			return nil
		}
		payload, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		if err := d.AddToOutbox(ctx, camera, payload); err != nil {
			return fmt.Errorf("failed to add to outbox: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

// SequenceClosed records the sequence, logging failures.
func (d *Database) SequenceClosed(ctx context.Context, camera string, events []models.Event) {
	if _, err := d.SaveSequence(ctx, camera, events); err != nil {
		log.Error().Err(err).Str("camera", camera).Msg("Failed to save sequence")
	}
}

// UpsertMonitor records the latest known state of a camera monitor.
func (d *Database) UpsertMonitor(ctx context.Context, camera string, state models.MonitorState, message string) error {
	_, err := d.querier(ctx).ExecContext(ctx,
		`INSERT INTO monitors (camera, state, message, updated_at) VALUES ($1, $2, $3, $4)
			ON CONFLICT (camera) DO UPDATE SET state = $2, message = $3, updated_at = $4`,
		camera, state, message, time.Now(),
	)
	return err
}

// LabelCounts counts indexed events per label in [from, to).
func (d *Database) LabelCounts(ctx context.Context, from, to time.Time) (map[string]int, error) {
	rows, err := d.querier(ctx).QueryContext(ctx, `
		SELECT label, COUNT(*)
		FROM events, UNNEST(labels) AS label
		WHERE occurred_at >= $1 AND occurred_at < $2
		GROUP BY label
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return nil, err
		}
		counts[label] = n
	}
	return counts, rows.Err()
}
