// Package webhook announces stored artifact locations by HTTP POST.
//
// Each location is sent as a JSON Event. When a secret is configured the
// body is signed with HMAC-SHA256 and the hex digest is sent in the
// SignatureHeader so receivers can authenticate the sender.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/justapithecus/glean/adapter"
	"github.com/justapithecus/glean/iox"
	"github.com/justapithecus/glean/types"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 10 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// EventArtifactStored is the event type of every request.
const EventArtifactStored = "artifact.stored"

// SignatureHeader carries "sha256=<hex hmac of the body>".
const SignatureHeader = "X-Glean-Signature"

// Config configures the webhook adapter.
type Config struct {
	// URL is the HTTP endpoint to POST to (required).
	URL string
	// Headers are added to each request.
	Headers map[string]string
	// Secret signs request bodies. Empty sends unsigned requests.
	Secret string
	// Timeout is the per-request timeout (default 10s).
	Timeout time.Duration
	// Retries is the number of retries after a failed request.
	Retries int
	// Backoff is the delay before the first retry (default 500ms).
	Backoff time.Duration
}

// Event is the JSON body of each request. Bucket and Key are filled when
// the location has the canonical form.
type Event struct {
	Type     string `json:"type"`
	Location string `json:"location"`
	Bucket   string `json:"bucket,omitempty"`
	Key      string `json:"key,omitempty"`
	SentAt   string `json:"sent_at"`
}

// Adapter posts locations as events.
type Adapter struct {
	config Config
	client *http.Client
	now    func() time.Time
}

// New creates a webhook adapter from the given config.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook adapter requires a URL")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	return &Adapter{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		now:    time.Now,
	}, nil
}

// Send posts location as an artifact.stored event. Network errors, 429 and
// 5xx responses are retried; other 4xx responses fail immediately.
func (a *Adapter) Send(ctx context.Context, location string) error {
	body, err := json.Marshal(newEvent(location, a.now()))
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	err = adapter.Retry(ctx, 1+a.config.Retries, a.config.Backoff, func(ctx context.Context) error {
		err := a.post(ctx, body)
		var se *StatusError
		if errors.As(err, &se) && !se.Retryable() {
			return adapter.Permanent(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	return nil
}

func newEvent(location string, at time.Time) Event {
	ev := Event{
		Type:     EventArtifactStored,
		Location: location,
		SentAt:   at.UTC().Format(time.RFC3339),
	}
	if bucket, key, ok := types.ParseLocation(location); ok {
		ev.Bucket, ev.Key = bucket, key
	}
	return ev
}

// Sign returns the SignatureHeader value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// Retryable reports whether a later attempt may succeed.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

func (a *Adapter) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "glean/"+types.Version)
	for k, v := range a.config.Headers {
		req.Header.Set(k, v)
	}
	if a.config.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(a.config.Secret, body))
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer iox.DiscardClose(resp.Body)
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// Close releases idle connections.
func (a *Adapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

var _ adapter.Adapter = (*Adapter)(nil)
