package onem2m

import (
	"errors"
	"io"
	"net/http"

	"github.com/elijahnyp/lamp_controller/util"
)

const maxNotificationBody = 64 << 10

// Notification outcomes, also used as metric labels.
const (
	NotificationApplied      = "applied"
	NotificationVerification = "verification"
	NotificationIgnored      = "ignored"
	NotificationMalformed    = "malformed"
)

// LampSink receives lamp values extracted from notifications. *lamp.State
// satisfies it.
type LampSink interface {
	Set(on bool) bool
}

type NotificationRecorder interface {
	ObserveNotification(outcome string)
}

// NotificationHandler accepts CSE notifications and feeds the lamp value into
// a LampSink. Every POST is acknowledged with 200 whether or not the payload
// was usable, so the CSE never retries a notification.
type NotificationHandler struct {
	sink     LampSink
	recorder NotificationRecorder
}

func NewNotificationHandler(sink LampSink, recorder NotificationRecorder) *NotificationHandler {
	return &NotificationHandler{sink: sink, recorder: recorder}
}

func (h *NotificationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if rid := r.Header.Get("X-M2M-RI"); rid != "" {
		w.Header().Set("X-M2M-RI", rid)
	}
	w.Header().Set("X-M2M-RSC", "2000")

	outcome := h.handle(r)
	if h.recorder != nil {
		h.recorder.ObserveNotification(outcome)
	}
	w.WriteHeader(http.StatusOK)
}

func (h *NotificationHandler) handle(r *http.Request) string {
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxNotificationBody))
	if err != nil {
		util.Logger.Warn().Msgf("Error reading notification body: %v", err)
		return NotificationMalformed
	}
	n, err := ParseNotification(body)
	if err != nil {
		util.Logger.Warn().Msgf("Ignoring notification: %v", err)
		return NotificationMalformed
	}
	if n.IsControl() {
		util.Logger.Info().Msgf("subscription control notification from %s (vrq=%v sud=%v)",
			n.SubscriptionRef, n.VerificationRequest, n.SubscriptionDeleted)
		return NotificationVerification
	}
	on, err := n.LampValue()
	if err != nil {
		if errors.Is(err, ErrNoContentInstance) {
			util.Logger.Warn().Msg("Ignoring notification without content instance")
		} else {
			util.Logger.Warn().Msgf("Ignoring notification: %v", err)
		}
		return NotificationIgnored
	}
	changed := h.sink.Set(on)
	util.Logger.Info().Msgf("lamp set to %v by notification (changed=%v)", on, changed)
	return NotificationApplied
}
