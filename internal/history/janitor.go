package history

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const defaultPruneInterval = time.Hour

type pruner interface {
	Prune(before time.Time) (int, error)
}

// Janitor periodically removes days older than the retention period.
type Janitor struct {
	store     pruner
	retention int
	interval  time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

func NewJanitor(store pruner, retentionDays int, interval time.Duration, logger zerolog.Logger) *Janitor {
	if interval <= 0 {
		interval = defaultPruneInterval
	}
	return &Janitor{store: store, retention: retentionDays, interval: interval, now: time.Now, log: logger}
}

func (j *Janitor) Start(ctx context.Context) {
	if j.retention <= 0 {
		j.log.Info().Msg("Retention disabled")
		return
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.prune()
	for {
		select {
		case <-ctx.Done():
			j.log.Info().Msg("Janitor stopped")
			return
		case <-ticker.C:
			j.prune()
		}
	}
}

func (j *Janitor) prune() {
	cutoff := j.now().AddDate(0, 0, -j.retention)
	removed, err := j.store.Prune(cutoff)
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to prune history")
		return
	}
	if removed > 0 {
		j.log.Info().Int("days", removed).Time("before", cutoff).Msg("Pruned history")
	}
}
