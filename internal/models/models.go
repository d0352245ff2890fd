package models

import (
	"encoding/json"
	"fmt"
	"image"
	"image/draw"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

type CommandAction string

const (
	CommandStart  CommandAction = "start"
	CommandStop   CommandAction = "stop"
	CommandReload CommandAction = "reload"
)

// DateTimeLayout is the timestamp format of persisted event records.
const DateTimeLayout = "2006-01-02 15:04:05"

// Frame is a decoded camera image plus its capture time.
type Frame struct {
	Image     image.Image
	Timestamp time.Time
}

// Clone returns a deep copy, so the caller may draw on it.
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	b := f.Image.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), f.Image, b.Min, draw.Src)
	return &Frame{Image: dst, Timestamp: f.Timestamp}
}

// Event is one qualifying classification of a ROI.
type Event struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"-"`
	ImagePath     string    `json:"image_path"`
	ThumbnailPath string    `json:"thumbnail_path"`
	Labels        []string  `json:"labels"`
	Scores        []float64 `json:"scores,omitempty"`
	LabelsFilter  string    `json:"class_filter"`
	ROIName       string    `json:"roi_name"`
	CameraName    string    `json:"camera_name"`
	ImageChange   float64   `json:"image_change"`
}

type eventAlias Event

type eventRecord struct {
	DateTime string `json:"datetime"`
	*eventAlias
}

// MarshalJSON writes the timestamp as a local "datetime" string.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventRecord{
		DateTime:   e.Timestamp.Local().Format(DateTimeLayout),
		eventAlias: (*eventAlias)(&e),
	})
}

func (e *Event) UnmarshalJSON(data []byte) error {
	rec := eventRecord{eventAlias: (*eventAlias)(e)}
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	if rec.DateTime == "" {
		return nil
	}
	ts, err := time.ParseInLocation(DateTimeLayout, rec.DateTime, time.Local)
	if err != nil {
		return fmt.Errorf("parse event datetime %q: %w", rec.DateTime, err)
	}
	e.Timestamp = ts
	return nil
}

// CameraCommand is a control message received from kafka.
type CameraCommand struct {
	Camera string        `json:"camera"`
	Action CommandAction `json:"action"`
}

type Heartbeat struct {
	Camera    string       `json:"camera"`
	State     MonitorState `json:"state"`
	Mode      MonitorMode  `json:"mode"`
	Message   string       `json:"message"`
	TimeStamp time.Time    `json:"timestamp"`
}

// SequenceMessage is published when an event sequence closes.
type SequenceMessage struct {
	ID       string    `json:"id"`
	Camera   string    `json:"camera"`
	Labels   []string  `json:"labels"`
	Count    int       `json:"count"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Images   []string  `json:"images"`
	ClosedAt time.Time `json:"closed_at"`
}

// NewSequenceMessage summarizes a closed sequence for downstream consumers.
func NewSequenceMessage(camera string, events []Event, closedAt time.Time) SequenceMessage {
	msg := SequenceMessage{
		ID:       uuid.NewString(),
		Camera:   camera,
		Labels:   lo.Uniq(lo.FlatMap(events, func(ev Event, _ int) []string { return ev.Labels })),
		Count:    len(events),
		Images:   lo.Map(events, func(ev Event, _ int) string { return ev.ImagePath }),
		ClosedAt: closedAt,
	}
	if len(events) > 0 {
		msg.Start = lo.MinBy(events, func(a, b Event) bool { return a.Timestamp.Before(b.Timestamp) }).Timestamp
		msg.End = lo.MaxBy(events, func(a, b Event) bool { return a.Timestamp.After(b.Timestamp) }).Timestamp
	}
	return msg
}

// OutboxMessage is a sequence waiting to be published to kafka.
type OutboxMessage struct {
	ID        string    `json:"id"`
	Camera    string    `json:"camera"`
	Payload   []byte    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

type MonitorState string

const (
	StateIdle    MonitorState = "idle"
	StateRunning MonitorState = "running"
)

// MonitorMode distinguishes active monitoring from quiet hours.
type MonitorMode string

const (
	ModeOff      MonitorMode = "off"
	ModeActive   MonitorMode = "active"
	ModeSleeping MonitorMode = "sleeping"
)

type MonitorStatus struct {
	Camera  string       `json:"camera"`
	State   MonitorState `json:"state"`
	Mode    MonitorMode  `json:"mode"`
	Message string       `json:"message"`
	// SessionValid is false while the camera rejects the credentials or
	// before any session was opened.
	SessionValid bool      `json:"session_valid"`
	LastFrameAt  time.Time `json:"last_frame_at,omitempty"`
	LastEventAt  time.Time `json:"last_event_at,omitempty"`
	Events       int       `json:"events"`
}
