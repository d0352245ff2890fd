package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Capitan-Parrot/clever-camera/internal/config"
	"github.com/Capitan-Parrot/clever-camera/internal/notify"
)

type notificationResponse struct {
	config.NotificationSettings
	Status   string    `json:"status"`
	LastSent time.Time `json:"last_sent,omitempty"`
}

type notificationRequest struct {
	config.NotificationSettings
	SenderPassword string `json:"sender_password"`
}

// GateOptions maps notification settings onto the gate.
func GateOptions(n config.NotificationSettings) notify.GateOptions {
	return notify.GateOptions{
		Enabled:        n.Enabled,
		MinInterval:    n.MinInterval(),
		MaxAttachments: n.MaxImages,
	}
}

func (h *Handlers) GetNotificationsHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, notificationResponse{
		NotificationSettings: h.settings.Notification(),
		Status:               h.gate.Status(),
		LastSent:             h.gate.LastSent(),
	})
}

// PutNotificationsHandler stores new notification settings. An empty
// password keeps the stored one.
func (h *Handlers) PutNotificationsHandler(w http.ResponseWriter, r *http.Request) {
	var req notificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid notification settings", http.StatusBadRequest)
		return
	}
	n := req.NotificationSettings
	n.SenderPassword = req.SenderPassword
	if n.SenderPassword == "" {
		n.SenderPassword = h.settings.Notification().SenderPassword
	}

	switch n.Transport {
	case "", config.TransportEmail, config.TransportNATS, config.TransportMQTT:
	default:
		http.Error(w, fmt.Sprintf("unknown transport %q", n.Transport), http.StatusBadRequest)
		return
	}

	h.settings.UpdateNotification(n)
	if err := h.settings.Save(); err != nil {
		writeError(w, fmt.Errorf("save settings: %w", err))
		return
	}
	n = h.settings.Notification()
	h.gate.Update(GateOptions(n))

	if h.senders != nil {
		sender, err := h.senders(n)
		if err != nil {
			writeError(w, err)
			return
		}
		h.gate.SetSender(sender)
	}

	h.GetNotificationsHandler(w, r)
}

func (h *Handlers) TestNotificationHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": h.gate.Test(r.Context())})
}
