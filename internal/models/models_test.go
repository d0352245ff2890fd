package models

import (
	"encoding/json"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventJSONUsesDatetime(t *testing.T) {
	ts := time.Date(2024, 3, 5, 10, 15, 30, 0, time.Local)
	ev := Event{ID: "1", Timestamp: ts, Labels: []string{"cat"}, LabelsFilter: "*", ROIName: "porch", CameraName: "door"}

	data, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"datetime":"2024-03-05 10:15:30"`)
	assert.Contains(t, string(data), `"class_filter":"*"`)

	var back Event
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, ts.Equal(back.Timestamp))
	assert.Equal(t, ev.Labels, back.Labels)

	assert.Error(t, json.Unmarshal([]byte(`{"datetime":"yesterday"}`), &back))
}

func TestEventJSONKeepsInstantAcrossZones(t *testing.T) {
	for _, loc := range []*time.Location{time.UTC, time.FixedZone("UTC+11", 11*3600), time.FixedZone("UTC-7", -7*3600)} {
		ts := time.Date(2024, 3, 5, 23, 30, 0, 0, loc)

		data, err := json.Marshal(Event{ID: "1", Timestamp: ts})
		require.NoError(t, err)
		var got Event
		require.NoError(t, json.Unmarshal(data, &got))

		assert.True(t, ts.Equal(got.Timestamp), "%s: %s != %s", loc, ts, got.Timestamp)
		assert.Contains(t, string(data), ts.Local().Format(DateTimeLayout))
	}
}

func TestFrameClone(t *testing.T) {
	src := image.NewRGBA(image.Rect(10, 10, 20, 20))
	f := &Frame{Image: src, Timestamp: time.Now()}

	c := f.Clone()
	assert.Equal(t, image.Rect(0, 0, 10, 10), c.Image.Bounds())
	assert.Equal(t, f.Timestamp, c.Timestamp)
	assert.Nil(t, (*Frame)(nil).Clone())
}

func TestNewSequenceMessage(t *testing.T) {
	start := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	events := []Event{
		{Timestamp: start.Add(4 * time.Second), ImagePath: "c.jpg", Labels: []string{"dog"}},
		{Timestamp: start, ImagePath: "a.jpg", Labels: []string{"cat"}},
		{Timestamp: start.Add(2 * time.Second), ImagePath: "b.jpg", Labels: []string{"cat", "dog"}},
	}

	msg := NewSequenceMessage("door", events, start.Add(10*time.Second))
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "door", msg.Camera)
	assert.Equal(t, 3, msg.Count)
	assert.Equal(t, []string{"dog", "cat"}, msg.Labels)
	assert.Equal(t, start, msg.Start)
	assert.Equal(t, start.Add(4*time.Second), msg.End)
	assert.Equal(t, []string{"c.jpg", "a.jpg", "b.jpg"}, msg.Images)
}
