package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/Capitan-Parrot/clever-camera/internal/roi"
	"github.com/Capitan-Parrot/clever-camera/internal/schedule"
)

var (
	ErrInvalidSettings = errors.New("invalid settings")
	ErrUnknownCamera   = errors.New("unknown camera")
)

const (
	DefaultCheckPeriod      = 5 * time.Second
	DefaultCameraTimeout    = 5 * time.Second
	DefaultFrequencyMinutes = 60
	DefaultMaxImages        = 5

	TransportEmail = "email"
	TransportNATS  = "nats"
	TransportMQTT  = "mqtt"
)

type CameraSettings struct {
	Name        string            `yaml:"name" json:"name"`
	Model       string            `yaml:"model" json:"model"`
	URL         string            `yaml:"url" json:"url"`
	User        string            `yaml:"user" json:"user"`
	Password    string            `yaml:"password" json:"-"`
	CheckPeriod time.Duration     `yaml:"check_period" json:"check_period"`
	Timeout     time.Duration     `yaml:"timeout" json:"timeout"`
	AutoStart   bool              `yaml:"auto_start" json:"auto_start"`
	Schedule    schedule.Schedule `yaml:"schedule" json:"schedule"`
	ROIs        []roi.ROI         `yaml:"rois" json:"rois"`
}

func (c CameraSettings) withDefaults() CameraSettings {
	if c.CheckPeriod <= 0 {
		c.CheckPeriod = DefaultCheckPeriod
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultCameraTimeout
	}
	if c.Schedule.FromHour == 0 && c.Schedule.ToHour == 0 && len(c.Schedule.Weekdays) == 0 {
		c.Schedule = schedule.Default()
	}
	if len(c.ROIs) == 0 {
		c.ROIs = []roi.ROI{roi.Full("default")}
	}
	return c
}

func (c CameraSettings) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: camera name is required", ErrInvalidSettings)
	}
	if c.URL == "" {
		return fmt.Errorf("%w: camera %s has no url", ErrInvalidSettings, c.Name)
	}
	if err := c.Schedule.Validate(); err != nil {
		return fmt.Errorf("%w: camera %s: %w", ErrInvalidSettings, c.Name, err)
	}
	names := lo.Map(c.ROIs, func(r roi.ROI, _ int) string { return r.Name })
	if dup := lo.FindDuplicates(names); len(dup) > 0 {
		return fmt.Errorf("%w: camera %s has duplicate rois %v", ErrInvalidSettings, c.Name, dup)
	}
	return nil
}

type NotificationSettings struct {
	Enabled          bool   `yaml:"enabled" json:"enabled"`
	Transport        string `yaml:"transport" json:"transport"`
	SenderEmail      string `yaml:"sender_email" json:"sender_email"`
	SenderPassword   string `yaml:"sender_password" json:"-"`
	ReceiverEmail    string `yaml:"receiver_email" json:"receiver_email"`
	FrequencyMinutes int    `yaml:"frequency_minutes" json:"frequency_minutes"`
	MaxImages        int    `yaml:"max_images" json:"max_images"`
}

func (n NotificationSettings) withDefaults() NotificationSettings {
	if n.Transport == "" {
		n.Transport = TransportEmail
	}
	if n.FrequencyMinutes <= 0 {
		n.FrequencyMinutes = DefaultFrequencyMinutes
	}
	if n.MaxImages <= 0 {
		n.MaxImages = DefaultMaxImages
	}
	return n
}

func (n NotificationSettings) MinInterval() time.Duration {
	return time.Duration(n.FrequencyMinutes) * time.Minute
}

// Settings is the user-editable document persisted next to the service.
type Settings struct {
	Cameras      []CameraSettings     `yaml:"cameras" json:"cameras"`
	Notification NotificationSettings `yaml:"notification" json:"notification"`
}

func (s Settings) Validate() error {
	names := lo.Map(s.Cameras, func(c CameraSettings, _ int) string { return c.Name })
	if dup := lo.FindDuplicates(names); len(dup) > 0 {
		return fmt.Errorf("%w: duplicate cameras %v", ErrInvalidSettings, dup)
	}
	for _, c := range s.Cameras {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (s Settings) withDefaults() Settings {
	s.Cameras = lo.Map(s.Cameras, func(c CameraSettings, _ int) CameraSettings { return c.withDefaults() })
	s.Notification = s.Notification.withDefaults()
	return s
}

// LoadSettings reads the settings file. A missing file yields empty
// settings with defaults applied.
func LoadSettings(path string) (Settings, error) {
	var s Settings
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return Settings{}, fmt.Errorf("read settings: %w", err)
	default:
		if err := yaml.Unmarshal(data, &s); err != nil {
			return Settings{}, fmt.Errorf("parse settings: %w", err)
		}
	}
	s = s.withDefaults()
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// SaveSettings writes the document atomically.
func SaveSettings(path string, s Settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create settings dir: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return os.Rename(tmp, path)
}

// SettingsStore guards the in-memory settings and persists them on Save.
type SettingsStore struct {
	path string
	mu   sync.RWMutex
	s    Settings
}

func NewSettingsStore(path string) (*SettingsStore, error) {
	s, err := LoadSettings(path)
	if err != nil {
		return nil, err
	}
	return &SettingsStore{path: path, s: s}, nil
}

func (st *SettingsStore) Cameras() []CameraSettings {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return append([]CameraSettings(nil), st.s.Cameras...)
}

func (st *SettingsStore) Camera(name string) (CameraSettings, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	c, ok := lo.Find(st.s.Cameras, func(c CameraSettings) bool { return c.Name == name })
	if !ok {
		return CameraSettings{}, fmt.Errorf("%w: %s", ErrUnknownCamera, name)
	}
	return c, nil
}

// UpdateCamera replaces the camera with the same name, or appends it.
func (st *SettingsStore) UpdateCamera(c CameraSettings) error {
	c = c.withDefaults()
	if err := c.Validate(); err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	_, idx, ok := lo.FindIndexOf(st.s.Cameras, func(x CameraSettings) bool { return x.Name == c.Name })
	if ok {
		st.s.Cameras[idx] = c
	} else {
		st.s.Cameras = append(st.s.Cameras, c)
	}
	return nil
}

func (st *SettingsStore) Notification() NotificationSettings {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s.Notification
}

func (st *SettingsStore) UpdateNotification(n NotificationSettings) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.Notification = n.withDefaults()
}

func (st *SettingsStore) Save() error {
	st.mu.RLock()
	s := st.s
	st.mu.RUnlock()
	return SaveSettings(st.path, s)
}
