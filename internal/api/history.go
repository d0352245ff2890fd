package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/samber/lo"

	"github.com/Capitan-Parrot/clever-camera/internal/history"
	"github.com/Capitan-Parrot/clever-camera/internal/models"
	"github.com/Capitan-Parrot/clever-camera/internal/roi"
)

type historyQuery struct {
	from, to time.Time
	label    string
	filter   history.Filter
}

// parseHistoryQuery reads from/to (YYYY-MM-DD, default today), label
// (default "*") and the repeatable roi and hour filters.
func parseHistoryQuery(r *http.Request) (historyQuery, error) {
	q := r.URL.Query()
	today := time.Now()
	out := historyQuery{from: today, to: today, label: q.Get("label")}

	var err error
	if v := q.Get("from"); v != "" {
		if out.from, err = time.ParseInLocation(history.DayLayout, v, time.Local); err != nil {
			return out, fmt.Errorf("invalid from date %q", v)
		}
	}
	if v := q.Get("to"); v != "" {
		if out.to, err = time.ParseInLocation(history.DayLayout, v, time.Local); err != nil {
			return out, fmt.Errorf("invalid to date %q", v)
		}
	}
	if out.label == "" {
		out.label = roi.MatchAll
	}

	out.filter.ROIs = lo.Compact(q["roi"])
	for _, v := range q["hour"] {
		hour, err := strconv.Atoi(v)
		if err != nil || hour < 0 || hour > 23 {
			return out, fmt.Errorf("invalid hour %q", v)
		}
		out.filter.Hours = append(out.filter.Hours, hour)
	}
	return out, nil
}

func (h *Handlers) query(w http.ResponseWriter, r *http.Request) (historyQuery, []models.Event, bool) {
	q, err := parseHistoryQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return q, nil, false
	}
	events, err := h.history.Query(q.from, q.to, q.label)
	if err != nil {
		writeError(w, err)
		return q, nil, false
	}
	return q, q.filter.Apply(events), true
}

func (h *Handlers) GetHistoryHandler(w http.ResponseWriter, r *http.Request) {
	_, events, ok := h.query(w, r)
	if !ok {
		return
	}
	if events == nil {
		events = []models.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

type summaryResponse struct {
	history.Summary
	// IndexedLabels counts events per label in the postgres index.
	IndexedLabels map[string]int `json:"indexed_labels,omitempty"`
}

func (h *Handlers) GetHistorySummaryHandler(w http.ResponseWriter, r *http.Request) {
	q, events, ok := h.query(w, r)
	if !ok {
		return
	}
	resp := summaryResponse{Summary: history.Summarize(events)}
	if h.labels != nil {
		from := dayStart(q.from)
		to := dayStart(q.to).AddDate(0, 0, 1)
		counts, err := h.labels.LabelCounts(r.Context(), from, to)
		if err != nil {
			h.log.Warn().Err(err).Msg("Failed to read indexed label counts")
		} else {
			resp.IndexedLabels = counts
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func dayStart(t time.Time) time.Time {
	t = t.Local()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.Local)
}

// ExportHistoryHandler streams a zip of the selected images, or uploads
// it to object storage when upload=true.
func (h *Handlers) ExportHistoryHandler(w http.ResponseWriter, r *http.Request) {
	q, events, ok := h.query(w, r)
	if !ok {
		return
	}
	name := history.ExportName(q.from, q.to)

	if upload, _ := strconv.ParseBool(r.URL.Query().Get("upload")); upload {
		if h.archives == nil {
			http.Error(w, "Object storage is not configured", http.StatusServiceUnavailable)
			return
		}
		var buf bytes.Buffer
		count, err := h.history.Export(&buf, events)
		if err != nil {
			writeError(w, err)
			return
		}
		key, err := h.archives.UploadArchive(r.Context(), name, &buf, int64(buf.Len()))
		if err != nil {
			writeError(w, err)
			return
		}
		resp := map[string]any{"key": key, "count": count}
		if total, err := h.archives.CountArchives(r.Context()); err != nil {
			h.log.Warn().Err(err).Msg("Failed to count archives")
		} else {
			resp["archives"] = total
		}
		writeJSON(w, http.StatusCreated, resp)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	count, err := h.history.Export(w, events)
	if err != nil {
		h.log.Error().Err(err).Str("archive", name).Msg("Export failed")
		return
	}
	h.log.Info().Str("archive", name).Int("images", count).Msg("History exported")
}
