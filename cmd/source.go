package main

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/Capitan-Parrot/clever-camera/internal/camera"
	"github.com/Capitan-Parrot/clever-camera/internal/camera/videofile"
	"github.com/Capitan-Parrot/clever-camera/internal/config"
	"github.com/Capitan-Parrot/clever-camera/internal/monitor"
)

// sourceOpener replays local video files and polls everything else as a
// JPEG snapshot URL.
func sourceOpener(videoSkipFrames int, logger zerolog.Logger) monitor.OpenFunc {
	jpeg := monitor.JPEGOpener(logger)
	return func(ctx context.Context, cs config.CameraSettings) (camera.Source, error) {
		if path, ok := camera.LocalPath(cs.URL); ok {
			src, err := videofile.Open(path, videoSkipFrames)
			if err != nil {
				return nil, err
			}
			return src, nil
		}
		return jpeg(ctx, cs)
	}
}
