// Package notify turns closed event sequences into rate-limited alerts.
package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/Capitan-Parrot/clever-camera/internal/models"
)

const subjectPrefix = "[Clever-Camera]"

type Alert struct {
	Camera      string        `json:"camera"`
	Subject     string        `json:"subject"`
	Body        string        `json:"body"`
	Attachments []string      `json:"attachments"`
	Labels      []string      `json:"labels"`
	Count       int           `json:"count"`
	Duration    time.Duration `json:"duration"`
	Start       time.Time     `json:"start"`
	End         time.Time     `json:"end"`
}

// Sender delivers an alert over one transport.
type Sender interface {
	Send(ctx context.Context, alert Alert) error
	Name() string
}

type GateOptions struct {
	Enabled        bool
	MinInterval    time.Duration
	MaxAttachments int
}

// Gate sends at most one alert per MinInterval. A failed send still
// counts as sent.
type Gate struct {
	mu       sync.Mutex
	opts     GateOptions
	sender   Sender
	lastSent time.Time
	status   string

	now func() time.Time
	wg  sync.WaitGroup
	log zerolog.Logger
}

func NewGate(opts GateOptions, sender Sender, logger zerolog.Logger) *Gate {
	return &Gate{opts: opts, sender: sender, now: time.Now, log: logger}
}

func (g *Gate) Update(opts GateOptions) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.opts = opts
}

func (g *Gate) SetSender(s Sender) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sender = s
}

func (g *Gate) Status() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status
}

func (g *Gate) LastSent() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastSent
}

func (g *Gate) ShouldNotify(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.shouldNotifyLocked(now)
}

func (g *Gate) shouldNotifyLocked(now time.Time) bool {
	if !g.opts.Enabled {
		return false
	}
	return g.lastSent.IsZero() || now.Sub(g.lastSent) >= g.opts.MinInterval
}

// BuildAlert summarizes a sequence of events in chronological order.
func (g *Gate) BuildAlert(camera string, events []models.Event) Alert {
	g.mu.Lock()
	limit := g.opts.MaxAttachments
	g.mu.Unlock()
	return BuildAlert(camera, events, limit)
}

func BuildAlert(camera string, events []models.Event, maxAttachments int) Alert {
	if len(events) == 0 {
		return Alert{Camera: camera}
	}
	sorted := append([]models.Event(nil), events...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	first, last := sorted[0], sorted[len(sorted)-1]
	labels := lo.Uniq(lo.FlatMap(sorted, func(ev models.Event, _ int) []string { return ev.Labels }))
	duration := last.Timestamp.Sub(first.Timestamp)
	images := lo.Map(sorted, func(ev models.Event, _ int) string { return ev.ImagePath })
	labelSet := "{" + strings.Join(labels, ", ") + "}"

	return Alert{
		Camera:  camera,
		Subject: fmt.Sprintf("%s %s detected %s", subjectPrefix, first.Timestamp.Format(models.DateTimeLayout), labelSet),
		Body: fmt.Sprintf("Camera %s: detected %d events of total time %.0f seconds. Following labels have been detected %s",
			camera, len(sorted), duration.Seconds(), labelSet),
		Attachments: Subsample(images, maxAttachments),
		Labels:      labels,
		Count:       len(sorted),
		Duration:    duration,
		Start:       first.Timestamp,
		End:         last.Timestamp,
	}
}

// Subsample keeps at most limit items, taking every len/limit-th one so
// the selection spans the whole input.
func Subsample[T any](items []T, limit int) []T {
	if limit <= 0 {
		return nil
	}
	if len(items) <= limit {
		return append([]T(nil), items...)
	}
	stride := len(items) / limit
	out := make([]T, 0, limit)
	for i := 0; i < len(items) && len(out) < limit; i += stride {
		out = append(out, items[i])
	}
	return out
}

// Notify sends an alert for the sequence when the gate allows it and
// returns the resulting status text.
func (g *Gate) Notify(ctx context.Context, camera string, events []models.Event) string {
	if len(events) == 0 {
		return g.Status()
	}

	now := g.now()
	g.mu.Lock()
	if !g.shouldNotifyLocked(now) || g.sender == nil {
		g.mu.Unlock()
		g.log.Debug().Str("camera", camera).Int("events", len(events)).Msg("Notification suppressed")
		return g.Status()
	}
	g.lastSent = now
	sender := g.sender
	limit := g.opts.MaxAttachments
	g.mu.Unlock()

	alert := BuildAlert(camera, events, limit)
	status := g.send(ctx, sender, alert, now)

	g.mu.Lock()
	g.status = status
	g.mu.Unlock()
	return status
}

func (g *Gate) send(ctx context.Context, sender Sender, alert Alert, now time.Time) string {
	if err := sender.Send(ctx, alert); err != nil {
		g.log.Error().Err(err).Str("transport", sender.Name()).Str("camera", alert.Camera).Msg("Failed to send notification")
		return fmt.Sprintf("Failed to send notification via %s: %v", sender.Name(), err)
	}
	g.log.Info().Str("transport", sender.Name()).Str("camera", alert.Camera).Int("events", alert.Count).Msg("Notification sent")
	return fmt.Sprintf("Notification sent via %s at %s", sender.Name(), now.Format(models.DateTimeLayout))
}

// SequenceClosed dispatches Notify on its own goroutine so the monitor
// loop never waits for the transport.
func (g *Gate) SequenceClosed(ctx context.Context, camera string, events []models.Event) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.Notify(context.WithoutCancel(ctx), camera, events)
	}()
}

// Test sends a sample alert, ignoring the enable flag and the interval.
func (g *Gate) Test(ctx context.Context) string {
	g.mu.Lock()
	sender := g.sender
	g.mu.Unlock()
	if sender == nil {
		return "No notification transport configured"
	}
	now := g.now()
	alert := Alert{
		Camera:  "test",
		Subject: fmt.Sprintf("%s test notification", subjectPrefix),
		Body:    "This is a test notification.",
		Start:   now,
		End:     now,
	}
	status := g.send(ctx, sender, alert, now)

	g.mu.Lock()
	g.status = status
	g.mu.Unlock()
	return status
}

// Wait blocks until dispatched notifications finish.
func (g *Gate) Wait() {
	g.wg.Wait()
}
