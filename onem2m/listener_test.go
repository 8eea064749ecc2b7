package onem2m

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/elijahnyp/lamp_controller/lamp"
)

type outcomeRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *outcomeRecorder) ObserveNotification(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *outcomeRecorder) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.outcomes) == 0 {
		return ""
	}
	return r.outcomes[len(r.outcomes)-1]
}

func post(h http.Handler, body string, rid string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/notify", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if rid != "" {
		req.Header.Set("X-M2M-RI", rid)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestNotificationTurnsLampOnWithinPollInterval(t *testing.T) {
	state := lamp.NewState(false)
	updates, cancel := state.Subscribe()
	defer cancel()
	h := NewNotificationHandler(state, nil)

	w := post(h, `{"m2m:sgn": {"nev": {"rep": {"m2m:cin": {"con": true}}}}}`, "req-1")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, expected 200", w.Code)
	}
	if w.Header().Get("X-M2M-RI") != "req-1" {
		t.Errorf("X-M2M-RI = %q, expected echo of req-1", w.Header().Get("X-M2M-RI"))
	}

	select {
	case on := <-updates:
		if lamp.Color(on) != lamp.ColorOn {
			t.Errorf("displayed color = %s, expected %s", lamp.Color(on), lamp.ColorOn)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("lamp did not turn on within 100ms")
	}
}

func TestNotificationStringContent(t *testing.T) {
	state := lamp.NewState(true)
	h := NewNotificationHandler(state, nil)

	post(h, `{"m2m:sgn": {"nev": {"rep": {"m2m:cin": {"con": "false"}}}}}`, "")
	if state.On() {
		t.Error("lamp should be off after con \"false\"")
	}
}

func TestMalformedNotificationKeepsStateAndReturns200(t *testing.T) {
	bodies := map[string]string{
		"not json":       `{"m2m:sgn": `,
		"no sgn":         `{"foo": 1}`,
		"missing rep":    `{"m2m:sgn": {"nev": {}}}`,
		"bad con":        `{"m2m:sgn": {"nev": {"rep": {"m2m:cin": {"con": "perhaps"}}}}}`,
		"wrong resource": `{"m2m:sgn": {"nev": {"rep": {"m2m:ae": {"rn": "x"}}}}}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			state := lamp.NewState(true)
			rec := &outcomeRecorder{}
			h := NewNotificationHandler(state, rec)

			w := post(h, body, "rid-x")
			if w.Code != http.StatusOK {
				t.Errorf("status = %d, expected 200", w.Code)
			}
			if w.Header().Get("X-M2M-RI") != "rid-x" {
				t.Errorf("X-M2M-RI not echoed")
			}
			if !state.On() {
				t.Error("malformed notification changed the lamp")
			}
			if o := rec.last(); o != NotificationMalformed && o != NotificationIgnored {
				t.Errorf("outcome = %s", o)
			}
		})
	}
}

func TestVerificationNotificationLeavesState(t *testing.T) {
	state := lamp.NewState(false)
	rec := &outcomeRecorder{}
	h := NewNotificationHandler(state, rec)

	w := post(h, `{"m2m:sgn": {"vrq": true, "sur": "/in-cse/sub"}}`, "v-1")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, expected 200", w.Code)
	}
	if state.On() {
		t.Error("verification request changed the lamp")
	}
	if rec.last() != NotificationVerification {
		t.Errorf("outcome = %s, expected %s", rec.last(), NotificationVerification)
	}
}

func TestNotificationRejectsGet(t *testing.T) {
	h := NewNotificationHandler(lamp.NewState(false), nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/notify", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, expected 405", w.Code)
	}
}

func TestOversizedNotificationIgnored(t *testing.T) {
	state := lamp.NewState(false)
	h := NewNotificationHandler(state, nil)
	big := `{"m2m:sgn": {"nev": {"rep": {"m2m:cin": {"con": true, "lbl": "` + strings.Repeat("x", maxNotificationBody) + `"}}}}}`

	w := post(h, big, "")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, expected 200", w.Code)
	}
	if state.On() {
		t.Error("oversized body should be ignored")
	}
}
