package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRunsJobsInOrder(t *testing.T) {
	q := NewQueue("test", 8, time.Second, zerolog.Nop())

	var mu sync.Mutex
	var got []int
	for i := range 5 {
		require.NoError(t, q.Submit(func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, i)
			return nil
		}))
	}
	require.NoError(t, q.Close(context.Background()))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestQueueSubmitDoesNotWaitForSlowJob(t *testing.T) {
	q := NewQueue("test", 2, time.Second, zerolog.Nop())
	release := make(chan struct{})
	started := make(chan struct{})

	require.NoError(t, q.Submit(func(context.Context) error {
		close(started)
		<-release
		return nil
	}))
	<-started

	require.NoError(t, q.Submit(func(context.Context) error { return nil }))
	require.NoError(t, q.Submit(func(context.Context) error { return nil }))
	assert.ErrorIs(t, q.Submit(func(context.Context) error { return nil }), ErrQueueFull)

	close(release)
	require.NoError(t, q.Close(context.Background()))
	assert.ErrorIs(t, q.Submit(func(context.Context) error { return nil }), ErrQueueClosed)
}

func TestQueueJobTimeout(t *testing.T) {
	q := NewQueue("test", 1, 20*time.Millisecond, zerolog.Nop())
	result := make(chan error, 1)

	require.NoError(t, q.Submit(func(ctx context.Context) error {
		<-ctx.Done()
		result <- ctx.Err()
		return ctx.Err()
	}))
	require.NoError(t, q.Close(context.Background()))
	assert.True(t, errors.Is(<-result, context.DeadlineExceeded))
}

func TestQueueCloseDeadlineCancelsPendingJobs(t *testing.T) {
	q := NewQueue("test", 4, time.Hour, zerolog.Nop())
	started := make(chan struct{})
	ran := make(chan struct{}, 1)

	require.NoError(t, q.Submit(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}))
	require.NoError(t, q.Submit(func(context.Context) error {
		ran <- struct{}{}
		return nil
	}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Close(ctx), context.DeadlineExceeded)
	assert.Empty(t, ran)
}
