package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/Capitan-Parrot/clever-camera/internal/classifier"
	"github.com/Capitan-Parrot/clever-camera/internal/config"
	"github.com/Capitan-Parrot/clever-camera/internal/history"
	"github.com/Capitan-Parrot/clever-camera/internal/monitor"
	"github.com/Capitan-Parrot/clever-camera/internal/notify"
	"github.com/Capitan-Parrot/clever-camera/internal/schedule"
)

type archiveUploader interface {
	UploadArchive(ctx context.Context, name string, r io.Reader, size int64) (string, error)
	CountArchives(ctx context.Context) (int, error)
}

type labelIndex interface {
	LabelCounts(ctx context.Context, from, to time.Time) (map[string]int, error)
}

// SenderFactory builds the alert transport for the notification settings.
type SenderFactory func(n config.NotificationSettings) (notify.Sender, error)

type Handlers struct {
	manager  *monitor.Manager
	settings *config.SettingsStore
	history  *history.Store
	gate     *notify.Gate
	archives archiveUploader
	labels   labelIndex
	senders  SenderFactory
	log      zerolog.Logger
}

func NewHandlers(manager *monitor.Manager, settings *config.SettingsStore, store *history.Store, gate *notify.Gate, logger zerolog.Logger) *Handlers {
	return &Handlers{manager: manager, settings: settings, history: store, gate: gate, log: logger}
}

// WithArchives enables uploading exports instead of streaming them.
func (h *Handlers) WithArchives(u archiveUploader) *Handlers {
	h.archives = u
	return h
}

// WithLabelIndex adds the indexed label counts to history summaries.
func (h *Handlers) WithLabelIndex(idx labelIndex) *Handlers {
	h.labels = idx
	return h
}

func (h *Handlers) WithSenderFactory(f SenderFactory) *Handlers {
	h.senders = f
	return h
}

func NewRouter(h *Handlers) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", h.HealthHandler).Methods("GET")

	r.HandleFunc("/cameras", h.ListCamerasHandler).Methods("GET")
	r.HandleFunc("/cameras/{name}", h.GetCameraHandler).Methods("GET")
	r.HandleFunc("/cameras/{name}", h.UpdateCameraStateHandler).Methods("POST")
	r.HandleFunc("/cameras/{name}/snapshot", h.SnapshotHandler).Methods("GET")
	r.HandleFunc("/cameras/{name}/test", h.TestClassifierHandler).Methods("POST")
	r.HandleFunc("/cameras/{name}/rois", h.GetROIsHandler).Methods("GET")
	r.HandleFunc("/cameras/{name}/rois", h.PutROIsHandler).Methods("PUT")

	r.HandleFunc("/history", h.GetHistoryHandler).Methods("GET")
	r.HandleFunc("/history/summary", h.GetHistorySummaryHandler).Methods("GET")
	r.HandleFunc("/history/export", h.ExportHistoryHandler).Methods("GET")

	r.HandleFunc("/notifications", h.GetNotificationsHandler).Methods("GET")
	r.HandleFunc("/notifications", h.PutNotificationsHandler).Methods("PUT")
	r.HandleFunc("/notifications/test", h.TestNotificationHandler).Methods("POST")

	return r
}

func (h *Handlers) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), statusFor(err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, monitor.ErrUnknownCamera), errors.Is(err, config.ErrUnknownCamera):
		return http.StatusNotFound
	case errors.Is(err, monitor.ErrAlreadyRunning), errors.Is(err, monitor.ErrNotRunning):
		return http.StatusConflict
	case errors.Is(err, classifier.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, history.ErrInvalidRange),
		errors.Is(err, config.ErrInvalidSettings),
		errors.Is(err, schedule.ErrInvalidSchedule):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
