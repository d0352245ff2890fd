// Package videofile replays a local video file as a camera source.
package videofile

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/Capitan-Parrot/clever-camera/internal/camera"
	"github.com/Capitan-Parrot/clever-camera/internal/models"
)

type Source struct {
	path string
	skip int

	mu    sync.Mutex
	vc    *gocv.VideoCapture
	mat   gocv.Mat
	ended bool
}

// Open reads frames from path, skipping skip frames before each snapshot.
func Open(path string, skip int) (*Source, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("open video %s: %w", path, err)
	}
	return &Source{path: path, skip: skip, vc: vc, mat: gocv.NewMat()}, nil
}

func (s *Source) Snapshot(_ context.Context) (*models.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return nil, fmt.Errorf("%s: %w", s.path, camera.ErrEndOfStream)
	}
	if s.skip > 0 {
		s.vc.Grab(s.skip)
	}
	if ok := s.vc.Read(&s.mat); !ok || s.mat.Empty() {
		s.ended = true
		return nil, fmt.Errorf("%s: %w", s.path, camera.ErrEndOfStream)
	}

	img, err := s.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	return &models.Frame{Image: img, Timestamp: time.Now()}, nil
}

// Valid is true while the file exists and frames remain.
func (s *Source) Valid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path); err != nil {
		return false
	}
	return !s.ended && s.vc.IsOpened()
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mat.Close(); err != nil {
		return err
	}
	return s.vc.Close()
}
