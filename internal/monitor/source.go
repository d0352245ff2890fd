package monitor

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/Capitan-Parrot/clever-camera/internal/camera"
	"github.com/Capitan-Parrot/clever-camera/internal/config"
)

// OpenFunc opens the frame source of a camera.
type OpenFunc func(ctx context.Context, cs config.CameraSettings) (camera.Source, error)

// JPEGOpener polls every camera as a JPEG snapshot URL.
func JPEGOpener(logger zerolog.Logger) OpenFunc {
	return func(ctx context.Context, cs config.CameraSettings) (camera.Source, error) {
		return camera.NewJPEGClient(ctx, camera.JPEGOptions{
			URL:      cs.URL,
			User:     cs.User,
			Password: cs.Password,
			Timeout:  cs.Timeout,
		}, logger.With().Str("camera", cs.Name).Logger()), nil
	}
}
