package videofile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Capitan-Parrot/clever-camera/internal/camera"
)

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.mp4"), 0)
	assert.Error(t, err)
}

// TestReplayUntilEnd needs a real clip, e.g. VIDEOFILE_SAMPLE=testdata/clip.mp4.
func TestReplayUntilEnd(t *testing.T) {
	path := os.Getenv("VIDEOFILE_SAMPLE")
	if path == "" {
		t.Skip("VIDEOFILE_SAMPLE not set")
	}

	src, err := Open(path, 5)
	require.NoError(t, err)
	defer src.Close()

	require.True(t, src.Valid())
	frame, err := src.Snapshot(context.Background())
	require.NoError(t, err)
	assert.False(t, frame.Image.Bounds().Empty())

	for {
		if _, err = src.Snapshot(context.Background()); err != nil {
			break
		}
	}
	assert.ErrorIs(t, err, camera.ErrEndOfStream)
	assert.False(t, src.Valid())
}
