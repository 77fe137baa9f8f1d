// Package httpretry retries outbound HTTP requests on transient failures
// with jittered exponential backoff. It is used for publisher feed fetches.
package httpretry

import (
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/ignite/autolink/internal/pkg/logger"
)

// Transport is an http.RoundTripper that retries network errors and
// 429/5xx gateway responses. Requests with a body are retried only when
// GetBody is set.
type Transport struct {
	base       http.RoundTripper
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// NewTransport wraps base, or http.DefaultTransport when base is nil.
// maxRetries <= 0 selects 3.
func NewTransport(base http.RoundTripper, maxRetries int) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Transport{
		base:       base,
		maxRetries: maxRetries,
		baseDelay:  time.Second,
		maxDelay:   30 * time.Second,
	}
}

// WithDelays overrides the backoff bounds.
func (t *Transport) WithDelays(base, max time.Duration) *Transport {
	t.baseDelay = base
	t.maxDelay = max
	return t
}

// NewClient returns an http.Client using a retrying transport.
func NewClient(timeout time.Duration, maxRetries int) *http.Client {
	return &http.Client{Timeout: timeout, Transport: NewTransport(nil, maxRetries)}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	var lastErr error

	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		if ctx.Err() != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, ctx.Err()
		}

		r := req
		if attempt > 0 {
			if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
				return nil, lastErr
			}
			r = req.Clone(ctx)
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("httpretry: reset request body: %w", err)
				}
				r.Body = body
			}

			delay := t.delay(attempt)
			logger.Debug("httpretry: retrying",
				"attempt", attempt,
				"max", t.maxRetries,
				"url", req.URL.String(),
				"wait", delay.String(),
			)
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, lastErr
			}
		}

		resp, err := t.base.RoundTrip(r)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, err
			}
			continue
		}
		if !retryable(resp.StatusCode) || attempt == t.maxRetries {
			return resp, nil
		}

		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("httpretry: %s returned %d", req.URL.Host, resp.StatusCode)
	}

	return nil, lastErr
}

// delay is full-jitter exponential backoff with a 10ms floor.
func (t *Transport) delay(attempt int) time.Duration {
	exp := float64(t.baseDelay) * math.Pow(2, float64(attempt-1))
	if exp > float64(t.maxDelay) {
		exp = float64(t.maxDelay)
	}
	d := time.Duration(rand.Float64() * exp)
	if d < 10*time.Millisecond {
		d = 10 * time.Millisecond
	}
	return d
}

func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
