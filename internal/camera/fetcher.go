package camera

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/Capitan-Parrot/clever-camera/internal/models"
)

// Fetcher collapses concurrent snapshot requests into one in-flight
// fetch and keeps the latest frame.
type Fetcher struct {
	mu     sync.RWMutex
	source Source

	group  singleflight.Group
	latest atomic.Pointer[models.Frame]
	status atomic.Value
	log    zerolog.Logger
}

func NewFetcher(src Source, logger zerolog.Logger) *Fetcher {
	f := &Fetcher{source: src, log: logger}
	f.status.Store("")
	return f
}

// FetchAsync returns the frame of the current in-flight fetch, starting
// one if none is running. The fetch itself is not cancelled when ctx is;
// only this caller stops waiting.
func (f *Fetcher) FetchAsync(ctx context.Context) (*models.Frame, string, error) {
	ch := f.group.DoChan("snapshot", func() (any, error) {
		frame, err := f.Source().Snapshot(context.WithoutCancel(ctx))
		if err != nil {
			f.status.Store(err.Error())
			return nil, err
		}
		f.latest.Store(frame)
		f.status.Store(StatusOK)
		return frame, nil
	})

	select {
	case <-ctx.Done():
		return nil, f.Status(), ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err.Error(), res.Err
		}
		return res.Val.(*models.Frame), StatusOK, nil
	}
}

// Latest returns the last successfully fetched frame or nil. Frames are
// shared; callers that draw must Clone first.
func (f *Fetcher) Latest() *models.Frame {
	return f.latest.Load()
}

func (f *Fetcher) Status() string {
	return f.status.Load().(string)
}

func (f *Fetcher) Source() Source {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.source
}

func (f *Fetcher) Valid() bool {
	return f.Source().Valid()
}

// Reload replaces the underlying source, closing the previous one.
func (f *Fetcher) Reload(src Source) {
	f.mu.Lock()
	old := f.source
	f.source = src
	f.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			f.log.Warn().Err(err).Msg("Failed to close previous camera source")
		}
	}
	if src.Valid() {
		f.status.Store("Connection reloaded")
	} else {
		f.status.Store(ErrInvalidSession.Error())
	}
}

func (f *Fetcher) Close() error {
	return f.Source().Close()
}
