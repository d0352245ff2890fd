package history

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Capitan-Parrot/clever-camera/internal/dispatch"
	"github.com/Capitan-Parrot/clever-camera/internal/models"
)

func frame() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 64, 48))
}

func at(day, hour, minute, sec int) time.Time {
	return time.Date(2024, 3, day, hour, minute, sec, 0, time.Local)
}

func newEvent(ts time.Time, labels ...string) *models.Event {
	return &models.Event{
		Timestamp:    ts,
		Labels:       labels,
		LabelsFilter: "*",
		ROIName:      "porch",
		CameraName:   "door",
		ImageChange:  0.3,
	}
}

type recordingMirror struct {
	events []models.Event
	err    error
}

func (m *recordingMirror) MirrorEvent(_ context.Context, ev models.Event) error {
	m.events = append(m.events, ev)
	return m.err
}

func TestAppendWritesLayout(t *testing.T) {
	root := t.TempDir()
	mirror := &recordingMirror{err: errors.New("bucket offline")}
	s := NewStore(root, 32, zerolog.Nop(), mirror)

	ev := newEvent(at(5, 10, 15, 30), "cat")
	require.NoError(t, s.Append(context.Background(), ev, frame()))

	dir := filepath.Join(root, "2024-03-05")
	assert.Equal(t, filepath.Join(dir, "image-10:15:30.jpg"), ev.ImagePath)
	assert.Equal(t, filepath.Join(dir, "thumbnail-10:15:30.jpg"), ev.ThumbnailPath)
	assert.FileExists(t, ev.ImagePath)
	assert.FileExists(t, ev.ThumbnailPath)
	assert.FileExists(t, filepath.Join(dir, "history.json"))
	assert.NotEmpty(t, ev.ID)

	require.Len(t, mirror.events, 1)
	assert.Equal(t, ev.ID, mirror.events[0].ID)

	events, err := s.QueryDay(at(5, 0, 0, 0))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, []string{"cat"}, events[0].Labels)
	assert.Equal(t, "porch", events[0].ROIName)
	assert.True(t, events[0].Timestamp.Equal(ev.Timestamp))
}

func TestAppendSameSecondDoesNotOverwrite(t *testing.T) {
	s := NewStore(t.TempDir(), 0, zerolog.Nop())
	ts := at(5, 9, 0, 0)

	a, b := newEvent(ts, "cat"), newEvent(ts, "dog")
	require.NoError(t, s.Append(context.Background(), a, frame()))
	require.NoError(t, s.Append(context.Background(), b, frame()))

	assert.NotEqual(t, a.ImagePath, b.ImagePath)
	assert.Equal(t, "image-09:00:00-1.jpg", filepath.Base(b.ImagePath))
	assert.Equal(t, "thumbnail-09:00:00-1.jpg", filepath.Base(b.ThumbnailPath))
}

func TestQueryRoundTripMostRecentFirst(t *testing.T) {
	s := NewStore(t.TempDir(), 0, zerolog.Nop())

	var stamps []time.Time
	for day := 1; day <= 3; day++ {
		for i := 0; i < 4; i++ {
			ts := at(day, 8+i, 0, 0)
			stamps = append(stamps, ts)
			require.NoError(t, s.Append(context.Background(), newEvent(ts, "person"), frame()))
		}
	}

	events, err := s.Query(at(1, 0, 0, 0), at(3, 0, 0, 0), "*")
	require.NoError(t, err)
	require.Len(t, events, len(stamps))

	sort.Slice(stamps, func(i, j int) bool { return stamps[i].After(stamps[j]) })
	for i, ev := range events {
		assert.True(t, stamps[i].Equal(ev.Timestamp), "position %d", i)
	}
}

func TestQueryWideRangeReadsStoredDaysOnly(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root, 0, zerolog.Nop())
	require.NoError(t, s.Append(context.Background(), newEvent(at(2, 8, 0, 0), "cat"), frame()))
	require.NoError(t, s.Append(context.Background(), newEvent(at(4, 8, 0, 0), "dog"), frame()))
	require.NoError(t, os.Mkdir(filepath.Join(root, "exports"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "2024-03-03"), []byte("x"), 0o644))

	from := time.Date(1, 1, 1, 0, 0, 0, 0, time.Local)
	to := time.Date(9999, 12, 31, 0, 0, 0, 0, time.Local)
	events, err := s.Query(from, to, "*")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, []string{"dog"}, events[0].Labels)
	assert.Equal(t, []string{"cat"}, events[1].Labels)

	events, err = s.Query(at(3, 0, 0, 0), at(3, 0, 0, 0), "*")
	require.NoError(t, err)
	assert.Empty(t, events)

	empty := NewStore(filepath.Join(root, "missing"), 0, zerolog.Nop())
	events, err = empty.Query(from, to, "*")
	require.NoError(t, err)
	assert.Empty(t, events)
}

type blockingMirror struct {
	release chan struct{}
	mu      sync.Mutex
	ids     []string
}

func (m *blockingMirror) MirrorEvent(ctx context.Context, ev models.Event) error {
	select {
	case <-m.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = append(m.ids, ev.ID)
	return nil
}

func TestQueuedMirrorDoesNotDelayAppend(t *testing.T) {
	mirror := &blockingMirror{release: make(chan struct{})}
	queue := dispatch.NewQueue("minio", 4, time.Minute, zerolog.Nop())
	s := NewStore(t.TempDir(), 0, zerolog.Nop(), QueuedMirror(mirror, queue), QueuedMirror(mirror, queue))

	ev := newEvent(at(5, 10, 0, 0), "cat")
	appended := make(chan error, 1)
	go func() { appended <- s.Append(context.Background(), ev, frame()) }()

	select {
	case err := <-appended:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Append waited for the mirror")
	}

	close(mirror.release)
	require.NoError(t, queue.Close(context.Background()))
	assert.Equal(t, []string{ev.ID, ev.ID}, mirror.ids)
}

func TestQueryInvalidRange(t *testing.T) {
	s := NewStore(t.TempDir(), 0, zerolog.Nop())
	require.NoError(t, s.Append(context.Background(), newEvent(at(2, 8, 0, 0), "cat"), frame()))

	events, err := s.Query(at(3, 0, 0, 0), at(1, 0, 0, 0), "*")
	assert.ErrorIs(t, err, ErrInvalidRange)
	assert.Empty(t, events)
}

func TestQueryLabelFilter(t *testing.T) {
	s := NewStore(t.TempDir(), 0, zerolog.Nop())
	require.NoError(t, s.Append(context.Background(), newEvent(at(2, 8, 0, 0), "cat"), frame()))
	require.NoError(t, s.Append(context.Background(), newEvent(at(2, 9, 0, 0), "dog", "person"), frame()))
	require.NoError(t, s.Append(context.Background(), newEvent(at(2, 10, 0, 0), "car"), frame()))

	day := at(2, 0, 0, 0)
	tests := []struct {
		filter string
		want   int
	}{
		{"*", 3},
		{"", 3},
		{"CAT", 1},
		{"person, car", 2},
		{"bird", 0},
	}
	for _, tt := range tests {
		events, err := s.Query(day, day, tt.filter)
		require.NoError(t, err)
		assert.Len(t, events, tt.want, "filter %q", tt.filter)
	}
}

func TestExport(t *testing.T) {
	s := NewStore(t.TempDir(), 0, zerolog.Nop())
	a, b := newEvent(at(1, 8, 0, 0), "cat"), newEvent(at(2, 8, 0, 0), "cat")
	require.NoError(t, s.Append(context.Background(), a, frame()))
	require.NoError(t, s.Append(context.Background(), b, frame()))
	missing := models.Event{ImagePath: filepath.Join(s.Root(), "nope", "image-00:00:00.jpg")}

	var buf bytes.Buffer
	n, err := s.Export(&buf, []models.Event{*a, *b, missing})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"image-08:00:00.jpg", "2024-03-02_image-08:00:00.jpg"}, names)

	assert.Equal(t, "snapshots-2024-03-01-2024-03-02.zip", ExportName(at(1, 0, 0, 0), at(2, 0, 0, 0)))
}

func TestPrune(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root, 0, zerolog.Nop())
	for day := 1; day <= 4; day++ {
		require.NoError(t, s.Append(context.Background(), newEvent(at(day, 8, 0, 0), "cat"), frame()))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(root, "not-a-day"), 0o755))

	removed, err := s.Prune(at(3, 12, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	events, err := s.Query(at(1, 0, 0, 0), at(4, 0, 0, 0), "*")
	require.NoError(t, err)
	assert.Len(t, events, 2)
	assert.DirExists(t, filepath.Join(root, "not-a-day"))
}

func TestSummarizeAndFilter(t *testing.T) {
	events := []models.Event{
		{Timestamp: at(1, 8, 0, 0), Labels: []string{"cat"}, ROIName: "porch"},
		{Timestamp: at(1, 8, 30, 0), Labels: []string{"cat", "dog"}, ROIName: "yard"},
		{Timestamp: at(1, 20, 0, 0), Labels: []string{"person"}, ROIName: "porch"},
	}

	sum := Summarize(events)
	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, 2, sum.Labels["cat"])
	assert.Equal(t, 2, sum.ROIs["porch"])
	assert.Equal(t, 2, sum.Hours[8])

	assert.Len(t, Filter{Labels: []string{"dog"}}.Apply(events), 1)
	assert.Len(t, Filter{ROIs: []string{"porch"}, Hours: []int{20}}.Apply(events), 1)
	assert.Len(t, Filter{}.Apply(events), 3)
}

type fakePruner struct {
	before []time.Time
}

func (p *fakePruner) Prune(before time.Time) (int, error) {
	p.before = append(p.before, before)
	return 1, nil
}

func TestJanitorPrunesOnStart(t *testing.T) {
	p := &fakePruner{}
	j := NewJanitor(p, 30, time.Hour, zerolog.Nop())
	j.now = func() time.Time { return at(31, 12, 0, 0) }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	j.Start(ctx)

	require.Len(t, p.before, 1)
	assert.Equal(t, at(1, 12, 0, 0), p.before[0])
}
