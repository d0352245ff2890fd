package monitor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/Capitan-Parrot/clever-camera/internal/camera"
	"github.com/Capitan-Parrot/clever-camera/internal/classifier"
	"github.com/Capitan-Parrot/clever-camera/internal/config"
	"github.com/Capitan-Parrot/clever-camera/internal/kafka"
	"github.com/Capitan-Parrot/clever-camera/internal/models"
)

const DefaultHeartbeatInterval = 5 * time.Second

type settingsStore interface {
	Cameras() []config.CameraSettings
	Camera(name string) (config.CameraSettings, error)
}

type heartbeatPublisher interface {
	SendHeartbeat(models.Heartbeat) error
}

type stateRecorder interface {
	UpsertMonitor(ctx context.Context, camera string, state models.MonitorState, message string) error
}

type ManagerOption func(*Manager)

// WithCommands makes ListenAndRun consume camera commands.
func WithCommands(messages <-chan kafka.Message) ManagerOption {
	return func(m *Manager) { m.commands = messages }
}

func WithHeartbeats(p heartbeatPublisher) ManagerOption {
	return func(m *Manager) { m.heartbeats = p }
}

func WithStateRecorder(r stateRecorder) ManagerOption {
	return func(m *Manager) { m.states = r }
}

func WithOpener(open OpenFunc) ManagerOption {
	return func(m *Manager) { m.open = open }
}

// WithMonitorOptions applies opts to every monitor the manager creates.
func WithMonitorOptions(opts ...Option) ManagerOption {
	return func(m *Manager) { m.monitorOpts = append(m.monitorOpts, opts...) }
}

// Manager owns one Monitor per configured camera. Monitors are created
// lazily on first use.
type Manager struct {
	settings   settingsStore
	classifier classifier.Classifier
	history    History
	sink       Sink

	open        OpenFunc
	commands    <-chan kafka.Message
	heartbeats  heartbeatPublisher
	states      stateRecorder
	monitorOpts []Option
	log         zerolog.Logger

	mu       sync.Mutex
	monitors map[string]*Monitor
}

func NewManager(settings settingsStore, clf classifier.Classifier, history History, sink Sink, logger zerolog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		settings:   settings,
		classifier: clf,
		history:    history,
		sink:       sink,
		log:        logger,
		monitors:   make(map[string]*Monitor),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.open == nil {
		m.open = JPEGOpener(logger)
	}
	return m
}

// Configure creates the monitor of a camera or applies new settings to
// an existing one. A changed URL or credentials reopen the source.
func (m *Manager) Configure(ctx context.Context, cs config.CameraSettings) (*Monitor, error) {
	m.mu.Lock()
	mon, ok := m.monitors[cs.Name]
	m.mu.Unlock()

	if ok {
		old := mon.Settings()
		mon.UpdateSettings(cs)
		if old.URL != cs.URL || old.User != cs.User || old.Password != cs.Password || old.Timeout != cs.Timeout {
			src, err := m.open(ctx, cs)
			if err != nil {
				return nil, fmt.Errorf("open camera %s: %w", cs.Name, err)
			}
			mon.Reload(src)
		}
		return mon, nil
	}

	src, err := m.open(ctx, cs)
	if err != nil {
		return nil, fmt.Errorf("open camera %s: %w", cs.Name, err)
	}
	fetcher := camera.NewFetcher(src, m.log.With().Str("camera", cs.Name).Logger())
	created := New(cs, fetcher, m.classifier, m.history, m.sink, m.log, m.monitorOpts...)

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.monitors[cs.Name]; ok {
		_ = fetcher.Close()
		return existing, nil
	}
	m.monitors[cs.Name] = created
	return created, nil
}

// Monitor returns the monitor of a configured camera.
func (m *Manager) Monitor(ctx context.Context, name string) (*Monitor, error) {
	m.mu.Lock()
	mon, ok := m.monitors[name]
	m.mu.Unlock()
	if ok {
		return mon, nil
	}

	cs, err := m.settings.Camera(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCamera, name)
	}
	return m.Configure(ctx, cs)
}

// Start begins monitoring a camera. The monitor outlives ctx; it runs
// until Stop or StopAll.
func (m *Manager) Start(ctx context.Context, name string) error {
	mon, err := m.Monitor(ctx, name)
	if err != nil {
		return err
	}
	if err := mon.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	m.report(ctx, mon)
	return nil
}

func (m *Manager) Stop(ctx context.Context, name string) error {
	m.mu.Lock()
	mon, ok := m.monitors[name]
	m.mu.Unlock()
	if !ok {
		if _, err := m.settings.Camera(name); err != nil {
			return fmt.Errorf("%w: %s", ErrUnknownCamera, name)
		}
		return ErrNotRunning
	}
	if err := mon.Stop(); err != nil {
		return err
	}
	mon.Wait()
	m.report(ctx, mon)
	return nil
}

// Reload opens a new camera session, e.g. after an invalid session.
func (m *Manager) Reload(ctx context.Context, name string) error {
	mon, err := m.Monitor(ctx, name)
	if err != nil {
		return err
	}
	src, err := m.open(ctx, mon.Settings())
	if err != nil {
		return fmt.Errorf("open camera %s: %w", name, err)
	}
	mon.Reload(src)
	m.log.Info().Str("camera", name).Bool("valid", src.Valid()).Msg("Camera session reloaded")
	return nil
}

func (m *Manager) Status(name string) (models.MonitorStatus, error) {
	m.mu.Lock()
	mon, ok := m.monitors[name]
	m.mu.Unlock()
	if ok {
		return mon.Status(), nil
	}
	if _, err := m.settings.Camera(name); err != nil {
		return models.MonitorStatus{}, fmt.Errorf("%w: %s", ErrUnknownCamera, name)
	}
	return idleStatus(name), nil
}

// List reports every configured camera sorted by name.
func (m *Manager) List() []models.MonitorStatus {
	m.mu.Lock()
	monitors := lo.Values(m.monitors)
	m.mu.Unlock()

	byName := lo.SliceToMap(monitors, func(mon *Monitor) (string, models.MonitorStatus) {
		s := mon.Status()
		return s.Camera, s
	})
	for _, cs := range m.settings.Cameras() {
		if _, ok := byName[cs.Name]; !ok {
			byName[cs.Name] = idleStatus(cs.Name)
		}
	}

	out := lo.Values(byName)
	sort.Slice(out, func(i, j int) bool { return out[i].Camera < out[j].Camera })
	return out
}

func idleStatus(name string) models.MonitorStatus {
	return models.MonitorStatus{Camera: name, State: models.StateIdle, Mode: models.ModeOff}
}

// StartAutoStart starts every camera flagged auto_start.
func (m *Manager) StartAutoStart(ctx context.Context) {
	for _, cs := range m.settings.Cameras() {
		if !cs.AutoStart {
			continue
		}
		if err := m.Start(ctx, cs.Name); err != nil && !errors.Is(err, ErrAlreadyRunning) {
			m.log.Error().Err(err).Str("camera", cs.Name).Msg("Failed to auto-start camera")
		}
	}
}

// StopAll stops every running monitor, waits for the loops to exit and
// closes the camera sessions.
func (m *Manager) StopAll() {
	m.mu.Lock()
	monitors := lo.Values(m.monitors)
	m.mu.Unlock()

	for _, mon := range monitors {
		_ = mon.Stop()
	}
	for _, mon := range monitors {
		mon.Wait()
		if err := mon.fetcher.Close(); err != nil {
			m.log.Warn().Err(err).Str("camera", mon.Name()).Msg("Failed to close camera")
		}
	}
}

// ListenAndRun executes camera commands until ctx is done. A message is
// marked only when its command succeeded.
func (m *Manager) ListenAndRun(ctx context.Context) {
	if m.commands == nil {
		return
	}
	m.log.Info().Msg("Listening for camera commands")
	for {
		select {
		case <-ctx.Done():
			m.log.Info().Msg("Command listener shutting down")
			return
		case msg, ok := <-m.commands:
			if !ok {
				return
			}
			var cmd models.CameraCommand
			if err := json.Unmarshal(msg.Value, &cmd); err != nil {
				m.log.Error().Err(err).Msg("Invalid command format")
				continue
			}
			m.log.Info().Str("camera", cmd.Camera).Str("action", string(cmd.Action)).Msg("Received camera command")

			if err := m.Execute(ctx, cmd); err != nil {
				m.log.Error().Err(err).Str("camera", cmd.Camera).Msg("Failed to process command")
				continue
			}
			msg.Ack()
		}
	}
}

// Execute applies one command. Starting a running camera and stopping an
// idle one are not errors.
func (m *Manager) Execute(ctx context.Context, cmd models.CameraCommand) error {
	var err error
	switch cmd.Action {
	case models.CommandStart:
		err = m.Start(ctx, cmd.Camera)
	case models.CommandStop:
		err = m.Stop(ctx, cmd.Camera)
	case models.CommandReload:
		err = m.Reload(ctx, cmd.Camera)
	default:
		return fmt.Errorf("unknown command %q", cmd.Action)
	}
	if errors.Is(err, ErrAlreadyRunning) || errors.Is(err, ErrNotRunning) {
		return nil
	}
	return err
}

// Heartbeats reports every running monitor at the given interval.
func (m *Manager) Heartbeats(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			monitors := lo.Values(m.monitors)
			m.mu.Unlock()
			for _, mon := range monitors {
				if mon.Running() {
					m.report(ctx, mon)
				}
			}
		}
	}
}

func (m *Manager) report(ctx context.Context, mon *Monitor) {
	status := mon.Status()
	if m.heartbeats != nil {
		if err := m.heartbeats.SendHeartbeat(models.Heartbeat{
			Camera:    status.Camera,
			State:     status.State,
			Mode:      status.Mode,
			Message:   status.Message,
			TimeStamp: time.Now().UTC(),
		}); err != nil {
			m.log.Error().Err(err).Str("camera", status.Camera).Msg("Failed to send heartbeat")
		}
	}
	if m.states != nil {
		if err := m.states.UpsertMonitor(ctx, status.Camera, status.State, status.Message); err != nil {
			m.log.Error().Err(err).Str("camera", status.Camera).Msg("Failed to record monitor state")
		}
	}
}
