// Package monitor runs the per-camera detection loop and manages the set
// of cameras.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/Capitan-Parrot/clever-camera/internal/camera"
	"github.com/Capitan-Parrot/clever-camera/internal/classifier"
	"github.com/Capitan-Parrot/clever-camera/internal/config"
	"github.com/Capitan-Parrot/clever-camera/internal/models"
	"github.com/Capitan-Parrot/clever-camera/internal/roi"
)

var (
	ErrAlreadyRunning = errors.New("monitor already running")
	ErrNotRunning     = errors.New("monitor is not running")
	ErrUnknownCamera  = errors.New("unknown camera")
)

const (
	messageStopped  = "Monitoring stopped"
	messageSleeping = "Sleeping: outside of schedule"
	messageNoChange = "No changes detected"
)

// History persists qualifying events.
type History interface {
	Append(ctx context.Context, ev *models.Event, img image.Image) error
}

type Option func(*Monitor)

func WithClock(c Clock) Option {
	return func(m *Monitor) { m.clock = c }
}

func WithSequenceWindow(d time.Duration) Option {
	return func(m *Monitor) { m.window = d }
}

func WithDetector(d roi.Detector) Option {
	return func(m *Monitor) { m.detector = d }
}

// Monitor samples one camera, classifies changed ROIs and records events.
// At most one loop runs per Monitor.
type Monitor struct {
	fetcher    *camera.Fetcher
	classifier classifier.Classifier
	history    History
	sink       Sink
	detector   roi.Detector
	window     time.Duration
	clock      Clock
	log        zerolog.Logger

	mu          sync.Mutex
	settings    config.CameraSettings
	state       models.MonitorState
	mode        models.MonitorMode
	message     string
	lastFrameAt time.Time
	lastEventAt time.Time
	events      int
	stop        chan struct{}
	done        chan struct{}

	// owned by the loop goroutine, reset by each run
	prev *models.Frame
	seq  eventSequence
}

func New(settings config.CameraSettings, fetcher *camera.Fetcher, clf classifier.Classifier, history History, sink Sink, logger zerolog.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		fetcher:    fetcher,
		classifier: clf,
		history:    history,
		sink:       sink,
		detector:   roi.NewDetector(),
		window:     DefaultSequenceWindow,
		clock:      realClock{},
		log:        logger.With().Str("camera", settings.Name).Logger(),
		settings:   settings,
		state:      models.StateIdle,
		mode:       models.ModeOff,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Monitor) Name() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings.Name
}

func (m *Monitor) Settings() config.CameraSettings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings
}

// UpdateSettings takes effect at the next cycle.
func (m *Monitor) UpdateSettings(s config.CameraSettings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = s
}

// Reload swaps the camera session.
func (m *Monitor) Reload(src camera.Source) {
	m.fetcher.Reload(src)
	m.setMessage(m.fetcher.Status())
}

func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == models.StateRunning
}

func (m *Monitor) Status() models.MonitorStatus {
	valid := m.fetcher.Valid()

	m.mu.Lock()
	defer m.mu.Unlock()
	return models.MonitorStatus{
		Camera:       m.settings.Name,
		State:        m.state,
		Mode:         m.mode,
		Message:      m.message,
		SessionValid: valid,
		LastFrameAt:  m.lastFrameAt,
		LastEventAt:  m.lastEventAt,
		Events:       m.events,
	}
}

// LatestFrame returns a copy of the last fetched frame, or nil.
func (m *Monitor) LatestFrame() *models.Frame {
	return m.fetcher.Latest().Clone()
}

// Start launches the loop. The loop ends on Stop or when ctx is done.
func (m *Monitor) Start(ctx context.Context) error {
	if m.classifier == nil {
		return fmt.Errorf("camera %s: %w", m.Name(), classifier.ErrUnavailable)
	}

	m.mu.Lock()
	if m.state == models.StateRunning {
		m.mu.Unlock()
		m.log.Warn().Msg("Monitor already running")
		return ErrAlreadyRunning
	}
	m.state = models.StateRunning
	m.mode = models.ModeActive
	m.message = "Monitoring started"
	stop := make(chan struct{})
	done := make(chan struct{})
	m.stop, m.done = stop, done
	m.mu.Unlock()

	m.log.Info().Dur("period", m.Settings().CheckPeriod).Msg("Monitor started")

	go func() {
		select {
		case <-ctx.Done():
			_ = m.Stop()
		case <-done:
		}
	}()
	go m.run(ctx, stop, done)
	return nil
}

// Stop asks the loop to exit. In-flight fetch and classification calls
// complete first.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != models.StateRunning || m.stop == nil {
		return ErrNotRunning
	}
	select {
	case <-m.stop:
	default:
		close(m.stop)
	}
	return nil
}

// Wait blocks until the current loop, if any, has exited.
func (m *Monitor) Wait() {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (m *Monitor) run(ctx context.Context, stop <-chan struct{}, done chan struct{}) {
	ctx = context.WithoutCancel(ctx)
	// every run starts without a previous frame
	m.prev = nil
	defer func() {
		if m.seq.Len() > 0 {
			m.closeSequence(ctx)
		}
		m.mu.Lock()
		m.state = models.StateIdle
		m.mode = models.ModeOff
		m.message = messageStopped
		m.mu.Unlock()
		m.log.Info().Msg("Monitor stopped")
		close(done)
	}()

	for {
		select {
		case <-stop:
			return
		default:
		}

		started := m.clock.Now()
		period := m.cycle(ctx, started)

		elapsed := m.clock.Now().Sub(started)
		m.log.Debug().Dur("elapsed", elapsed).Msg("Cycle finished")
		if !m.clock.Sleep(stop, max(period-elapsed, 0)) {
			return
		}
	}
}

// cycle runs one monitoring step and returns the check period to pace
// the next one.
func (m *Monitor) cycle(ctx context.Context, now time.Time) time.Duration {
	settings := m.Settings()

	if m.seq.Expired(now, m.window) {
		m.closeSequence(ctx)
	}

	if !settings.Schedule.Contains(now) {
		m.setMode(models.ModeSleeping, messageSleeping)
		return settings.CheckPeriod
	}
	m.setMode(models.ModeActive, "")

	frame, status, err := m.fetcher.FetchAsync(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("Failed to fetch frame")
		m.setMessage(status)
		return settings.CheckPeriod
	}

	var prev image.Image
	if m.prev != nil {
		prev = m.prev.Image
	}
	candidates := m.detector.Select(prev, frame.Image, settings.ROIs)
	m.prev = frame
	m.mu.Lock()
	m.lastFrameAt = frame.Timestamp
	m.mu.Unlock()

	if len(candidates) == 0 {
		m.log.Debug().Msg("No ROI changed, skipping classification")
		m.setMessage(messageNoChange)
		return settings.CheckPeriod
	}

	crops := lo.Map(candidates, func(c roi.Candidate, _ int) image.Image { return c.ROI.Crop(frame.Image) })
	results, err := m.classifier.Predict(ctx, crops)
	if err == nil && len(results) != len(crops) {
		err = fmt.Errorf("classifier returned %d results for %d images", len(results), len(crops))
	}
	if err != nil {
		m.log.Error().Err(err).Msg("Classification failed")
		m.setMessage(fmt.Sprintf("Classification failed: %v", err))
		return settings.CheckPeriod
	}

	recorded := 0
	for i, c := range candidates {
		labels, scores := qualifying(c.ROI, results[i])
		if len(labels) == 0 {
			continue
		}
		ev := &models.Event{
			Timestamp:    m.clock.Now(),
			Labels:       labels,
			Scores:       scores,
			LabelsFilter: c.ROI.LabelsFilter,
			ROIName:      c.ROI.Name,
			CameraName:   settings.Name,
			ImageChange:  c.Change,
		}
		if err := m.history.Append(ctx, ev, frame.Image); err != nil {
			m.log.Error().Err(err).Str("roi", c.ROI.Name).Msg("Failed to save event")
			continue
		}
		m.seq.Add(*ev, m.clock.Now())
		recorded++

		m.mu.Lock()
		m.lastEventAt = ev.Timestamp
		m.events++
		m.mu.Unlock()
		m.log.Info().Str("roi", c.ROI.Name).Strs("labels", labels).Float64("change", c.Change).Msg("Event recorded")
	}

	m.setMessage(fmt.Sprintf("Classified %d regions, %d events", len(candidates), recorded))
	return settings.CheckPeriod
}

func (m *Monitor) closeSequence(ctx context.Context) {
	events := m.seq.Flush()
	m.log.Info().Int("events", len(events)).Msg("Event sequence closed")
	if m.sink != nil {
		m.sink.SequenceClosed(ctx, m.Name(), events)
	}
}

// qualifying applies the ROI label filter and keeps the matching scores.
func qualifying(r roi.ROI, res classifier.Result) ([]string, []float64) {
	var labels []string
	var scores []float64
	for i, label := range res.Labels {
		if !r.Allows(label) {
			continue
		}
		labels = append(labels, label)
		if i < len(res.Scores) {
			scores = append(scores, res.Scores[i])
		}
	}
	return labels, scores
}

func (m *Monitor) setMode(mode models.MonitorMode, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = mode
	if message != "" {
		m.message = message
	}
}

func (m *Monitor) setMessage(message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.message = message
}

// TestClassifier classifies every enabled ROI of the latest frame and
// returns one line per ROI.
func (m *Monitor) TestClassifier(ctx context.Context) (string, error) {
	if m.classifier == nil {
		return "", classifier.ErrUnavailable
	}
	frame := m.fetcher.Latest()
	if frame == nil {
		var err error
		if frame, _, err = m.fetcher.FetchAsync(ctx); err != nil {
			return "", err
		}
	}

	rois := lo.Filter(m.Settings().ROIs, func(r roi.ROI, _ int) bool { return r.Enabled })
	if len(rois) == 0 {
		return "No enabled regions", nil
	}
	crops := lo.Map(rois, func(r roi.ROI, _ int) image.Image { return r.Crop(frame.Image) })
	results, err := m.classifier.Predict(ctx, crops)
	if err != nil {
		return "", err
	}

	lines := make([]string, 0, len(rois))
	for i, r := range rois {
		if i >= len(results) {
			break
		}
		lines = append(lines, fmt.Sprintf("%s: %s", r.Name, results[i]))
	}
	return strings.Join(lines, "\n"), nil
}
