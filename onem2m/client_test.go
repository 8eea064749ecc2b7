package onem2m

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type capturedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   map[string]any
}

// fakeCSE answers every request with the next status from codes (the last
// one repeats) and records what it saw.
type fakeCSE struct {
	mu       sync.Mutex
	codes    []int
	body     string
	requests []capturedRequest
}

func (f *fakeCSE) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(raw, &body)
	f.requests = append(f.requests, capturedRequest{r.Method, r.URL.Path, r.Header.Clone(), body})
	code := f.codes[0]
	if len(f.codes) > 1 {
		f.codes = f.codes[1:]
	}
	w.WriteHeader(code)
	io.WriteString(w, f.body) //nolint:errcheck // test helper
}

func (f *fakeCSE) request(i int) capturedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[i]
}

func (f *fakeCSE) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls map[string][]int
}

func (r *fakeRecorder) ObserveBrokerRequest(op string, status int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls == nil {
		r.calls = make(map[string][]int)
	}
	r.calls[op] = append(r.calls[op], status)
}

func newTestClient(t *testing.T, cse *fakeCSE, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(cse)
	t.Cleanup(srv.Close)
	return NewClient(ClientConfig{URL: srv.URL + "/~/in-cse/in-name/", Origin: "Clamp"}, opts...)
}

func TestRegisterAE(t *testing.T) {
	cse := &fakeCSE{codes: []int{http.StatusCreated}}
	c := newTestClient(t, cse)

	err := c.RegisterAE(context.Background(), AE{Name: "lamp", AppID: "Nlamp", RequestReachable: true, SupportedReleases: []string{"3"}})
	if err != nil {
		t.Fatalf("RegisterAE returned error: %v", err)
	}
	req := cse.request(0)
	if req.Method != http.MethodPost || req.Path != "/~/in-cse/in-name" {
		t.Errorf("unexpected request %s %s", req.Method, req.Path)
	}
	if got := req.Header.Get("Content-Type"); got != "application/json;ty=2" {
		t.Errorf("Content-Type = %s", got)
	}
	if req.Header.Get("X-M2M-Origin") != "Clamp" {
		t.Errorf("X-M2M-Origin = %s", req.Header.Get("X-M2M-Origin"))
	}
	if req.Header.Get("X-M2M-RVI") != "3" {
		t.Errorf("X-M2M-RVI = %s", req.Header.Get("X-M2M-RVI"))
	}
	if req.Header.Get("X-M2M-RI") == "" {
		t.Error("X-M2M-RI should be set")
	}
	ae, ok := req.Body["m2m:ae"].(map[string]any)
	if !ok {
		t.Fatalf("body should be an m2m:ae envelope, got %v", req.Body)
	}
	if ae["rn"] != "lamp" || ae["api"] != "Nlamp" || ae["rr"] != true {
		t.Errorf("unexpected AE body %v", ae)
	}
}

func TestRegisterAERejectsConflict(t *testing.T) {
	cse := &fakeCSE{codes: []int{http.StatusConflict}, body: "already registered"}
	c := newTestClient(t, cse)

	err := c.RegisterAE(context.Background(), AE{Name: "lamp"})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.Status != http.StatusConflict || statusErr.Op != OpRegisterAE {
		t.Errorf("unexpected StatusError %+v", statusErr)
	}
}

func TestCreateContainerAcceptedCodes(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		wantErr bool
	}{
		{"ok", http.StatusOK, false},
		{"created", http.StatusCreated, false},
		{"already exists", http.StatusConflict, false},
		{"bad request", http.StatusBadRequest, true},
		{"server error", http.StatusInternalServerError, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cse := &fakeCSE{codes: []int{tt.code}}
			c := newTestClient(t, cse)
			err := c.CreateContainer(context.Background(), "lamp", Container{Name: "state"})
			if (err != nil) != tt.wantErr {
				t.Errorf("CreateContainer with %d: err = %v, wantErr %v", tt.code, err, tt.wantErr)
			}
			if cse.request(0).Path != "/~/in-cse/in-name/lamp" {
				t.Errorf("path = %s", cse.request(0).Path)
			}
		})
	}
}

func TestCreateContainerRepeatedIsIdempotent(t *testing.T) {
	cse := &fakeCSE{codes: []int{http.StatusCreated, http.StatusConflict}}
	c := newTestClient(t, cse)
	for i := 0; i < 3; i++ {
		if err := c.CreateContainer(context.Background(), "lamp", Container{Name: "state"}); err != nil {
			t.Fatalf("call %d returned error: %v", i, err)
		}
	}
}

func TestPostContentInstance(t *testing.T) {
	cse := &fakeCSE{codes: []int{http.StatusCreated}}
	c := newTestClient(t, cse)

	if err := c.PostContentInstance(context.Background(), "lamp", "state", true); err != nil {
		t.Fatalf("PostContentInstance returned error: %v", err)
	}
	req := cse.request(0)
	if req.Path != "/~/in-cse/in-name/lamp/state" {
		t.Errorf("path = %s", req.Path)
	}
	if req.Header.Get("Content-Type") != "application/json;ty=4" {
		t.Errorf("Content-Type = %s", req.Header.Get("Content-Type"))
	}
	cin := req.Body["m2m:cin"].(map[string]any)
	if cin["con"] != true {
		t.Errorf("con = %v, expected true", cin["con"])
	}
}

func TestPostContentInstanceRejectsConflict(t *testing.T) {
	cse := &fakeCSE{codes: []int{http.StatusConflict}}
	c := newTestClient(t, cse)
	if err := c.PostContentInstance(context.Background(), "lamp", "state", false); err == nil {
		t.Error("409 is not an accepted answer for a content instance")
	}
}

func TestCreateSubscriptionBody(t *testing.T) {
	cse := &fakeCSE{codes: []int{http.StatusCreated}}
	c := newTestClient(t, cse)

	err := c.CreateSubscription(context.Background(), "lamp", "state",
		Subscription{Name: "lampSub", NotificationURIs: []string{"http://10.0.0.2:8000/notify"}})
	if err != nil {
		t.Fatalf("CreateSubscription returned error: %v", err)
	}
	req := cse.request(0)
	if req.Header.Get("Content-Type") != "application/json;ty=23" {
		t.Errorf("Content-Type = %s", req.Header.Get("Content-Type"))
	}
	sub := req.Body["m2m:sub"].(map[string]any)
	nu := sub["nu"].([]any)
	if len(nu) != 1 || nu[0] != "http://10.0.0.2:8000/notify" {
		t.Errorf("nu = %v", nu)
	}
	if sub["nct"] != float64(1) {
		t.Errorf("nct = %v", sub["nct"])
	}
}

func TestCreateSubscriptionRetriesThreeTimes(t *testing.T) {
	cse := &fakeCSE{codes: []int{http.StatusInternalServerError}}
	c := newTestClient(t, cse, WithRetry(RetryPolicy{Attempts: 3, Interval: time.Millisecond}))

	err := c.CreateSubscription(context.Background(), "lamp", "state", Subscription{Name: "lampSub"})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Status != http.StatusInternalServerError {
		t.Errorf("expected final StatusError 500, got %v", err)
	}
	if got := cse.count(); got != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", got)
	}
}

func TestCreateSubscriptionSucceedsAfterFailure(t *testing.T) {
	cse := &fakeCSE{codes: []int{http.StatusServiceUnavailable, http.StatusConflict}}
	c := newTestClient(t, cse, WithRetry(RetryPolicy{Attempts: 3, Interval: time.Millisecond}))

	if err := c.CreateSubscription(context.Background(), "lamp", "state", Subscription{Name: "lampSub"}); err != nil {
		t.Fatalf("expected success on second attempt, got %v", err)
	}
	if got := cse.count(); got != 2 {
		t.Errorf("expected 2 attempts, got %d", got)
	}
}

func TestCreateSubscriptionSucceedsOnLastAttempt(t *testing.T) {
	cse := &fakeCSE{codes: []int{http.StatusInternalServerError, http.StatusBadGateway, http.StatusCreated}}
	c := newTestClient(t, cse, WithRetry(RetryPolicy{Attempts: 3, Interval: time.Millisecond}))

	if err := c.CreateSubscription(context.Background(), "lamp", "state", Subscription{Name: "lampSub"}); err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
	if got := cse.count(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestCreateSubscriptionStopsOnCancel(t *testing.T) {
	cse := &fakeCSE{codes: []int{http.StatusInternalServerError}}
	c := newTestClient(t, cse, WithRetry(RetryPolicy{Attempts: 3, Interval: time.Hour}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	if err := c.CreateSubscription(ctx, "lamp", "state", Subscription{Name: "lampSub"}); err == nil {
		t.Fatal("expected error on cancelled context")
	}
	if time.Since(start) > 5*time.Second {
		t.Error("cancellation should cut the retry pause short")
	}
	if got := cse.count(); got != 1 {
		t.Errorf("expected 1 attempt before cancellation, got %d", got)
	}
}

func TestLatest(t *testing.T) {
	cse := &fakeCSE{codes: []int{http.StatusOK}, body: `{"m2m:cin": {"rn": "cin_1", "con": "true", "ct": "20240101T000000"}}`}
	c := newTestClient(t, cse)

	cin, err := c.Latest(context.Background(), "lamp", "state")
	if err != nil {
		t.Fatalf("Latest returned error: %v", err)
	}
	if cse.request(0).Method != http.MethodGet || cse.request(0).Path != "/~/in-cse/in-name/lamp/state/la" {
		t.Errorf("unexpected request %s %s", cse.request(0).Method, cse.request(0).Path)
	}
	on, err := cin.LampValue()
	if err != nil || !on {
		t.Errorf("LampValue = %v, %v; expected true", on, err)
	}
}

func TestLatestNotFound(t *testing.T) {
	cse := &fakeCSE{codes: []int{http.StatusNotFound}}
	c := newTestClient(t, cse)
	if _, err := c.Latest(context.Background(), "lamp", "state"); err == nil {
		t.Error("expected error for 404")
	}
}

func TestTransportErrorIsRecorded(t *testing.T) {
	rec := &fakeRecorder{}
	c := NewClient(ClientConfig{URL: "http://127.0.0.1:1", Timeout: time.Second}, WithRecorder(rec))
	if err := c.RegisterAE(context.Background(), AE{Name: "lamp"}); err == nil {
		t.Fatal("expected transport error")
	}
	if got := rec.calls[OpRegisterAE]; len(got) != 1 || got[0] != 0 {
		t.Errorf("recorder calls = %v", got)
	}
}

func TestRequestIDsAreUnique(t *testing.T) {
	var seen sync.Map
	var dupes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, loaded := seen.LoadOrStore(r.Header.Get("X-M2M-RI"), true); loaded {
			dupes.Add(1)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{URL: srv.URL})
	for i := 0; i < 20; i++ {
		if err := c.PostContentInstance(context.Background(), "lamp", "state", i%2 == 0); err != nil {
			t.Fatalf("PostContentInstance returned error: %v", err)
		}
	}
	if dupes.Load() != 0 {
		t.Errorf("found %d duplicate request ids", dupes.Load())
	}
}
