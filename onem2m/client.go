package onem2m

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/elijahnyp/lamp_controller/util"
)

// Operation names used in logs, errors and metrics.
const (
	OpRegisterAE          = "register_ae"
	OpCreateContainer     = "create_container"
	OpPostContentInstance = "post_content_instance"
	OpCreateSubscription  = "create_subscription"
	OpLatest              = "latest"
)

// Recorder observes broker requests. util.LampMetrics implements it.
type Recorder interface {
	ObserveBrokerRequest(op string, status int, err error)
}

// StatusError is returned when the CSE answers with a code the operation
// does not accept.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.Status, e.Body)
}

// ClientConfig is the cse.* config subtree.
type ClientConfig struct {
	URL     string
	Origin  string
	Release string
	Timeout time.Duration
}

type Client struct {
	base       string
	origin     string
	release    string
	httpClient *http.Client
	retry      RetryPolicy
	recorder   Recorder
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetry sets the policy used for subscription creation.
func WithRetry(p RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

func WithRecorder(r Recorder) Option {
	return func(c *Client) { c.recorder = r }
}

func NewClient(cfg ClientConfig, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	release := cfg.Release
	if release == "" {
		release = "3"
	}
	c := &Client{
		base:       strings.TrimRight(cfg.URL, "/"),
		origin:     cfg.Origin,
		release:    release,
		httpClient: &http.Client{Timeout: timeout},
		retry:      DefaultRetryPolicy,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.base }

// RegisterAE creates the application entity under the CSE base.
func (c *Client) RegisterAE(ctx context.Context, ae AE) error {
	_, err := c.do(ctx, OpRegisterAE, http.MethodPost, c.base, TypeAE, aeEnvelope{ae},
		http.StatusOK, http.StatusCreated)
	return err
}

// CreateContainer creates cnt under the AE. An existing container counts as
// success.
func (c *Client) CreateContainer(ctx context.Context, ae string, cnt Container) error {
	_, err := c.do(ctx, OpCreateContainer, http.MethodPost, c.path(ae), TypeContainer, cntEnvelope{cnt},
		http.StatusOK, http.StatusCreated, http.StatusConflict)
	return err
}

// PostContentInstance stores a new lamp value in the container.
func (c *Client) PostContentInstance(ctx context.Context, ae, cnt string, on bool) error {
	cin := ContentInstance{Format: "text/plain:0", Content: on}
	_, err := c.do(ctx, OpPostContentInstance, http.MethodPost, c.path(ae, cnt), TypeContentInstance, cinEnvelope{cin},
		http.StatusOK, http.StatusCreated)
	return err
}

// CreateSubscription asks the CSE to notify sub.NotificationURIs on changes to
// the container. It is retried according to the client's retry policy; an
// existing subscription counts as success.
func (c *Client) CreateSubscription(ctx context.Context, ae, cnt string, sub Subscription) error {
	if sub.NotificationContentType == 0 {
		sub.NotificationContentType = 1 // all attributes
	}
	if sub.Criteria == nil {
		sub.Criteria = &EventNotificationCriteria{NotificationEventTypes: []int{NotificationEventType}}
	}
	return c.retry.Do(ctx, func() error {
		_, err := c.do(ctx, OpCreateSubscription, http.MethodPost, c.path(ae, cnt), TypeSubscription, subEnvelope{sub},
			http.StatusOK, http.StatusCreated, http.StatusConflict)
		return err
	}, func(attempt int, err error, next time.Duration) {
		util.Logger.Warn().Msgf("subscription attempt %d failed: %v (retrying in %v)", attempt, err, next)
	})
}

// Latest fetches the newest content instance of the container.
func (c *Client) Latest(ctx context.Context, ae, cnt string) (ContentInstance, error) {
	body, err := c.do(ctx, OpLatest, http.MethodGet, c.path(ae, cnt, "la"), 0, nil, http.StatusOK)
	if err != nil {
		return ContentInstance{}, err
	}
	var env cinEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return ContentInstance{}, fmt.Errorf("%s: decoding response: %w", OpLatest, err)
	}
	return env.ContentInstance, nil
}

func (c *Client) path(parts ...string) string {
	return c.base + "/" + strings.Join(parts, "/")
}

func (c *Client) do(ctx context.Context, op, method, url string, ty int, payload any, accept ...int) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%s: encoding request: %w", op, err)
		}
		reqBody = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	rid := uuid.NewString()
	req.Header.Set("X-M2M-Origin", c.origin)
	req.Header.Set("X-M2M-RI", rid)
	req.Header.Set("X-M2M-RVI", c.release)
	req.Header.Set("Accept", "application/json")
	if ty != 0 {
		req.Header.Set("Content-Type", fmt.Sprintf("application/json;ty=%d", ty))
	}

	util.Logger.Debug().Msgf("%s %s %s (ri=%s)", op, method, url, rid)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(op, 0, err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			util.Logger.Warn().Msgf("Error closing response body: %v", closeErr)
		}
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		c.observe(op, resp.StatusCode, err)
		return nil, fmt.Errorf("%s: reading response: %w", op, err)
	}
	for _, code := range accept {
		if resp.StatusCode == code {
			c.observe(op, resp.StatusCode, nil)
			util.Logger.Debug().Msgf("%s answered %d", op, resp.StatusCode)
			return body, nil
		}
	}
	statusErr := &StatusError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	c.observe(op, resp.StatusCode, statusErr)
	return nil, statusErr
}

func (c *Client) observe(op string, status int, err error) {
	if c.recorder != nil {
		c.recorder.ObserveBrokerRequest(op, status, err)
	}
}
