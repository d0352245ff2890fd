// Package history persists events as one directory per calendar day:
//
//	<root>/YYYY-MM-DD/history.json
//	<root>/YYYY-MM-DD/image-HH:MM:SS.jpg
//	<root>/YYYY-MM-DD/thumbnail-HH:MM:SS.jpg
//
// history.json is a JSON array of events in arrival order.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nfnt/resize"
	"github.com/rs/zerolog"

	"github.com/Capitan-Parrot/clever-camera/internal/models"
)

const (
	logFile    = "history.json"
	DayLayout  = "2006-01-02"
	timeLayout = "15:04:05"

	DefaultThumbnailSize = 224
	jpegQuality          = 95
)

var ErrInvalidRange = errors.New("end day is before start day")

// Mirror receives every appended event, e.g. to index or replicate it.
type Mirror interface {
	MirrorEvent(ctx context.Context, ev models.Event) error
}

type Store struct {
	root      string
	thumbSize uint
	mirrors   []Mirror
	log       zerolog.Logger

	mu sync.Mutex
}

func NewStore(root string, thumbSize int, logger zerolog.Logger, mirrors ...Mirror) *Store {
	if thumbSize <= 0 {
		thumbSize = DefaultThumbnailSize
	}
	return &Store{root: root, thumbSize: uint(thumbSize), mirrors: mirrors, log: logger}
}

func (s *Store) Root() string {
	return s.root
}

// AddMirror registers a mirror after construction.
func (s *Store) AddMirror(m Mirror) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mirrors = append(s.mirrors, m)
}

func (s *Store) dayDir(t time.Time) string {
	return filepath.Join(s.root, t.Format(DayLayout))
}

// Append writes the image, its thumbnail and the event metadata. It fills
// in ID, Timestamp, ImagePath and ThumbnailPath. Nothing is recorded in
// the day log when any write fails.
func (s *Store) Append(ctx context.Context, ev *models.Event, img image.Image) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	ts := ev.Timestamp.Local()

	s.mu.Lock()
	mirrors, err := s.appendLocked(ev, ts, img)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	for _, m := range mirrors {
		if err := m.MirrorEvent(ctx, *ev); err != nil {
			s.log.Error().Err(err).Str("event", ev.ID).Msg("Failed to mirror event")
		}
	}
	return nil
}

func (s *Store) appendLocked(ev *models.Event, ts time.Time, img image.Image) ([]Mirror, error) {
	dir := s.dayDir(ts)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create day dir: %w", err)
	}

	imageFile, stamp, err := createUnique(dir, ts.Format(timeLayout))
	if err != nil {
		return nil, err
	}
	imagePath := imageFile.Name()
	err = jpeg.Encode(imageFile, img, &jpeg.Options{Quality: jpegQuality})
	if cerr := imageFile.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(imagePath)
		return nil, fmt.Errorf("write image: %w", err)
	}

	thumbPath := filepath.Join(dir, "thumbnail-"+stamp+".jpg")
	if err := writeJPEG(thumbPath, resize.Thumbnail(s.thumbSize, s.thumbSize, img, resize.Bilinear)); err != nil {
		os.Remove(imagePath)
		return nil, fmt.Errorf("write thumbnail: %w", err)
	}

	ev.ImagePath = imagePath
	ev.ThumbnailPath = thumbPath

	events, err := readDay(dir)
	if err != nil {
		os.Remove(imagePath)
		os.Remove(thumbPath)
		return nil, err
	}
	if err := writeDay(dir, append(events, *ev)); err != nil {
		os.Remove(imagePath)
		os.Remove(thumbPath)
		return nil, err
	}

	return append([]Mirror(nil), s.mirrors...), nil
}

// createUnique claims image-<stamp>.jpg, adding -1, -2, ... when events
// share the same second.
func createUnique(dir, stamp string) (*os.File, string, error) {
	for n := 0; ; n++ {
		candidate := stamp
		if n > 0 {
			candidate = stamp + "-" + strconv.Itoa(n)
		}
		f, err := os.OpenFile(filepath.Join(dir, "image-"+candidate+".jpg"), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, "", fmt.Errorf("create image file: %w", err)
		}
		return f, candidate, nil
	}
}

func writeJPEG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func readDay(dir string) ([]models.Event, error) {
	data, err := os.ReadFile(filepath.Join(dir, logFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read day log: %w", err)
	}
	var events []models.Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("parse day log %s: %w", dir, err)
	}
	return events, nil
}

func writeDay(dir string, events []models.Event) error {
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal day log: %w", err)
	}
	tmp := filepath.Join(dir, logFile+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write day log: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, logFile)); err != nil {
		return fmt.Errorf("replace day log: %w", err)
	}
	return nil
}
