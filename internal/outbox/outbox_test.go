package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"

	"github.com/Capitan-Parrot/clever-camera/internal/models"
)

type fakeStore struct {
	pending   []models.OutboxMessage
	processed []string
	err       error
}

func (s *fakeStore) GetPendingOutboxMessages(_ context.Context, limit int) ([]models.OutboxMessage, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []models.OutboxMessage
	for _, m := range s.pending {
		if len(out) == limit {
			break
		}
		if !lo.Contains(s.processed, m.ID) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeStore) MarkOutboxMessageAsProcessed(_ context.Context, id string) error {
	s.processed = append(s.processed, id)
	return nil
}

type fakePublisher struct {
	sent   []string
	failOn string
}

func (p *fakePublisher) PublishSequence(camera string, payload []byte) error {
	if string(payload) == p.failOn {
		return errors.New("kafka: client has run out of available brokers")
	}
	p.sent = append(p.sent, camera+":"+string(payload))
	return nil
}

func messages() []models.OutboxMessage {
	now := time.Now()
	return []models.OutboxMessage{
		{ID: "1", Camera: "door", Payload: []byte("a"), CreatedAt: now},
		{ID: "2", Camera: "yard", Payload: []byte("b"), CreatedAt: now.Add(time.Second)},
		{ID: "3", Camera: "door", Payload: []byte("c"), CreatedAt: now.Add(2 * time.Second)},
	}
}

func TestDispatchMarksPublishedMessages(t *testing.T) {
	db := &fakeStore{pending: messages()}
	p := &fakePublisher{}

	assert.Equal(t, 3, dispatch(context.Background(), db, p, zerolog.Nop()))
	assert.Equal(t, []string{"door:a", "yard:b", "door:c"}, p.sent)
	assert.Equal(t, []string{"1", "2", "3"}, db.processed)

	assert.Zero(t, dispatch(context.Background(), db, p, zerolog.Nop()))
}

func TestDispatchStopsAtFirstFailure(t *testing.T) {
	db := &fakeStore{pending: messages()}
	p := &fakePublisher{failOn: "b"}

	assert.Equal(t, 1, dispatch(context.Background(), db, p, zerolog.Nop()))
	assert.Equal(t, []string{"1"}, db.processed)

	p.failOn = ""
	assert.Equal(t, 2, dispatch(context.Background(), db, p, zerolog.Nop()))
	assert.Equal(t, []string{"1", "2", "3"}, db.processed)
}

func TestDispatchStoreError(t *testing.T) {
	db := &fakeStore{err: errors.New("connection refused")}
	assert.Zero(t, dispatch(context.Background(), db, &fakePublisher{}, zerolog.Nop()))
}

func TestDispatcherStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		StartOutboxDispatcher(ctx, &fakeStore{}, &fakePublisher{}, time.Millisecond, zerolog.Nop())
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop")
	}
}
