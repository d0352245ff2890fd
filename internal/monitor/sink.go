package monitor

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/Capitan-Parrot/clever-camera/internal/dispatch"
	"github.com/Capitan-Parrot/clever-camera/internal/models"
)

// Sink receives closed event sequences on the monitor goroutine. Sinks
// doing network I/O are wrapped with QueuedSink.
type Sink interface {
	SequenceClosed(ctx context.Context, camera string, events []models.Event)
}

// Sinks fans a closed sequence out to every sink in order.
type Sinks []Sink

func (s Sinks) SequenceClosed(ctx context.Context, camera string, events []models.Event) {
	for _, sink := range s {
		if sink != nil {
			sink.SequenceClosed(ctx, camera, events)
		}
	}
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, camera string, events []models.Event)

func (f SinkFunc) SequenceClosed(ctx context.Context, camera string, events []models.Event) {
	f(ctx, camera, events)
}

// QueuedSink runs s on q so a slow integration never holds up the loop.
// Sequences that do not fit in the queue are dropped and logged.
func QueuedSink(s Sink, q *dispatch.Queue, logger zerolog.Logger) Sink {
	return SinkFunc(func(_ context.Context, camera string, events []models.Event) {
		err := q.Submit(func(ctx context.Context) error {
			s.SequenceClosed(ctx, camera, events)
			return nil
		})
		if err != nil {
			logger.Error().Err(err).Str("queue", q.Name()).Str("camera", camera).Int("events", len(events)).Msg("Dropped event sequence")
		}
	})
}
