package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/shanehull/terpalert/internal/logging"
)

// maxResponseBytes caps how much of a dispatch response is read.
const maxResponseBytes = 1 << 20

// StatusError is a non-2xx reply from the notification API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("notification API returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("notification API returned status %d: %s", e.StatusCode, e.Body)
}

// APIDispatcher posts messages to the web application's notification
// endpoint, authenticating as the user with their token.
type APIDispatcher struct {
	url            string
	client         *http.Client
	maxAttempts    uint
	initialBackoff time.Duration
}

type APIOption func(*APIDispatcher)

func WithHTTPClient(c *http.Client) APIOption {
	return func(d *APIDispatcher) { d.client = c }
}

func WithAPIRetry(maxAttempts uint, initial time.Duration) APIOption {
	return func(d *APIDispatcher) {
		d.maxAttempts = maxAttempts
		d.initialBackoff = initial
	}
}

func NewAPIDispatcher(url string, timeout time.Duration, opts ...APIOption) *APIDispatcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}

	d := &APIDispatcher{
		url:            url,
		client:         &http.Client{Timeout: timeout, Transport: transport},
		maxAttempts:    3,
		initialBackoff: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.maxAttempts == 0 {
		d.maxAttempts = 1
	}
	return d
}

func (d *APIDispatcher) Dispatch(ctx context.Context, msg Message, token string) (map[string]any, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.initialBackoff

	return backoff.Retry(ctx, func() (map[string]any, error) {
		return d.post(ctx, body, token)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(d.maxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			logging.FromContext(ctx).Warn("notification dispatch failed, retrying", "error", err, "retry_in", next)
		}),
	)
}

func (d *APIDispatcher) post(ctx context.Context, body []byte, token string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serr := &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(raw))}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, serr
		}
		return nil, backoff.Permanent(serr)
	}

	out := map[string]any{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}
	return out, nil
}

// IsStatus reports whether err carries an API reply with the given status.
func IsStatus(err error, status int) bool {
	var serr *StatusError
	return errors.As(err, &serr) && serr.StatusCode == status
}
