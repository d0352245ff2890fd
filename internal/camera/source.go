// Package camera fetches still frames from a camera.
package camera

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/Capitan-Parrot/clever-camera/internal/models"
)

// StatusOK is the status message after a successful fetch.
const StatusOK = "Camera is OK!"

var (
	// ErrInvalidSession is returned without network I/O once neither
	// Digest nor Basic auth was accepted by the camera.
	ErrInvalidSession = errors.New("invalid session")
	ErrEndOfStream    = errors.New("end of stream")
)

type Source interface {
	Snapshot(ctx context.Context) (*models.Frame, error)
	Valid() bool
	Close() error
}

const fileScheme = "file://"

// LocalPath reports whether url names a local video file: a file:// URL
// or a path that exists.
func LocalPath(url string) (string, bool) {
	if strings.HasPrefix(url, fileScheme) {
		return strings.TrimPrefix(url, fileScheme), true
	}
	if strings.Contains(url, "://") {
		return "", false
	}
	if _, err := os.Stat(url); err == nil {
		return url, true
	}
	return "", false
}
