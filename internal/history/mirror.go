package history

import (
	"context"

	"github.com/Capitan-Parrot/clever-camera/internal/dispatch"
	"github.com/Capitan-Parrot/clever-camera/internal/models"
)

type queuedMirror struct {
	mirror Mirror
	queue  *dispatch.Queue
}

// QueuedMirror runs m on q. MirrorEvent only fails when the event could
// not be queued.
func QueuedMirror(m Mirror, q *dispatch.Queue) Mirror {
	return queuedMirror{mirror: m, queue: q}
}

func (qm queuedMirror) MirrorEvent(_ context.Context, ev models.Event) error {
	return qm.queue.Submit(func(ctx context.Context) error {
		return qm.mirror.MirrorEvent(ctx, ev)
	})
}
