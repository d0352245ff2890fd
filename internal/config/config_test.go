package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Capitan-Parrot/clever-camera/internal/roi"
	"github.com/Capitan-Parrot/clever-camera/internal/schedule"
)

func TestLoadConfigYAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  addr: ":9000"
storage:
  snapshots_dir: /data/snapshots
  retention_days: 7
classifier:
  backend: onnx
  model_dir: /models/mobilenet
kafka:
  brokers: ["kafka:9092"]
`), 0o644))

	t.Setenv("RETENTION_DAYS", "14")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.HTTP.Addr)
	assert.Equal(t, "/data/snapshots", cfg.Storage.SnapshotsDir)
	assert.Equal(t, 14, cfg.Storage.RetentionDays)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "onnx", cfg.Classifier.Backend)
	assert.Equal(t, "camera-commands", cfg.Kafka.CommandTopic)
	assert.Equal(t, 224, cfg.Storage.ThumbnailSize)
}

func TestLoadConfigMissingFileKeepsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "snapshots", cfg.Storage.SnapshotsDir)
}

func TestSettingsDefaultsAndValidation(t *testing.T) {
	s, err := LoadSettings(filepath.Join(t.TempDir(), "settings.yaml"))
	require.NoError(t, err)
	assert.Empty(t, s.Cameras)
	assert.Equal(t, DefaultFrequencyMinutes, s.Notification.FrequencyMinutes)
	assert.Equal(t, DefaultMaxImages, s.Notification.MaxImages)
	assert.Equal(t, time.Hour, s.Notification.MinInterval())

	bad := Settings{Cameras: []CameraSettings{
		{Name: "door", URL: "http://cam/1"},
		{Name: "door", URL: "http://cam/2"},
	}}
	assert.ErrorIs(t, bad.withDefaults().Validate(), ErrInvalidSettings)

	inverted := CameraSettings{Name: "yard", URL: "http://cam", Schedule: schedule.Schedule{FromHour: 20, ToHour: 6}}
	assert.ErrorIs(t, inverted.Validate(), schedule.ErrInvalidSchedule)
}

func TestSettingsStoreSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "settings.yaml")
	st, err := NewSettingsStore(path)
	require.NoError(t, err)

	require.NoError(t, st.UpdateCamera(CameraSettings{
		Name: "door",
		URL:  "http://192.168.0.10/snapshot.jpg",
		ROIs: []roi.ROI{{Name: "porch", Enabled: true, XMax: 50, YMax: 50, LabelsFilter: "person"}},
	}))
	st.UpdateNotification(NotificationSettings{Enabled: true, ReceiverEmail: "me@example.com"})
	require.NoError(t, st.Save())

	reloaded, err := NewSettingsStore(path)
	require.NoError(t, err)

	cam, err := reloaded.Camera("door")
	require.NoError(t, err)
	assert.Equal(t, DefaultCheckPeriod, cam.CheckPeriod)
	assert.Equal(t, schedule.Default(), cam.Schedule)
	require.Len(t, cam.ROIs, 1)
	assert.Equal(t, "person", cam.ROIs[0].LabelsFilter)
	assert.True(t, reloaded.Notification().Enabled)

	_, err = reloaded.Camera("garage")
	assert.ErrorIs(t, err, ErrUnknownCamera)
}
