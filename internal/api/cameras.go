package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"image/jpeg"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Capitan-Parrot/clever-camera/internal/models"
	"github.com/Capitan-Parrot/clever-camera/internal/monitor"
	"github.com/Capitan-Parrot/clever-camera/internal/roi"
)

const snapshotQuality = 85

type cameraResponse struct {
	models.MonitorStatus
	Warning string `json:"warning,omitempty"`
}

func (h *Handlers) ListCamerasHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.List())
}

func (h *Handlers) GetCameraHandler(w http.ResponseWriter, r *http.Request) {
	status, err := h.manager.Status(mux.Vars(r)["name"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// UpdateCameraStateHandler applies ?action=start|stop|reload. Starting a
// running camera or stopping an idle one answers with a warning.
func (h *Handlers) UpdateCameraStateHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	action := models.CommandAction(r.URL.Query().Get("action"))

	var err error
	switch action {
	case models.CommandStart:
		err = h.manager.Start(r.Context(), name)
	case models.CommandStop:
		err = h.manager.Stop(r.Context(), name)
	case models.CommandReload:
		err = h.manager.Reload(r.Context(), name)
	case "":
		http.Error(w, "action parameter is required (start/stop/reload)", http.StatusBadRequest)
		return
	default:
		http.Error(w, fmt.Sprintf("unknown action %q", action), http.StatusBadRequest)
		return
	}

	resp := cameraResponse{}
	if errors.Is(err, monitor.ErrAlreadyRunning) || errors.Is(err, monitor.ErrNotRunning) {
		resp.Warning = err.Error()
		err = nil
	}
	if err != nil {
		writeError(w, err)
		return
	}

	if resp.MonitorStatus, err = h.manager.Status(name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// SnapshotHandler returns the latest frame with the ROI boxes drawn on it.
func (h *Handlers) SnapshotHandler(w http.ResponseWriter, r *http.Request) {
	mon, err := h.manager.Monitor(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		writeError(w, err)
		return
	}
	frame := mon.LatestFrame()
	if frame == nil {
		http.Error(w, "No frame captured yet", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	if err := jpeg.Encode(w, roi.DrawOverlay(frame.Image, mon.Settings().ROIs), &jpeg.Options{Quality: snapshotQuality}); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode snapshot")
	}
}

func (h *Handlers) TestClassifierHandler(w http.ResponseWriter, r *http.Request) {
	mon, err := h.manager.Monitor(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		writeError(w, err)
		return
	}
	out, err := mon.TestClassifier(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": out})
}

func (h *Handlers) GetROIsHandler(w http.ResponseWriter, r *http.Request) {
	cs, err := h.settings.Camera(mux.Vars(r)["name"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cs.ROIs)
}

// PutROIsHandler replaces the ROIs of a camera, persists the settings and
// applies them to the monitor from its next cycle on.
func (h *Handlers) PutROIsHandler(w http.ResponseWriter, r *http.Request) {
	cs, err := h.settings.Camera(mux.Vars(r)["name"])
	if err != nil {
		writeError(w, err)
		return
	}

	var rois []roi.ROI
	if err := json.NewDecoder(r.Body).Decode(&rois); err != nil {
		http.Error(w, "Invalid ROI list", http.StatusBadRequest)
		return
	}
	cs.ROIs = rois

	if err := h.settings.UpdateCamera(cs); err != nil {
		writeError(w, err)
		return
	}
	if err := h.settings.Save(); err != nil {
		writeError(w, fmt.Errorf("save settings: %w", err))
		return
	}
	if cs, err = h.settings.Camera(cs.Name); err == nil {
		_, err = h.manager.Configure(r.Context(), cs)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cs.ROIs)
}
