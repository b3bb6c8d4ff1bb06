package sdk

import (
	"log/slog"
	"net/http"
	"time"
)

type options struct {
	timeout      time.Duration
	maxAttempts  int
	initialDelay time.Duration
	httpClient   *http.Client
	logger       *slog.Logger
}

// No timeout and no retry unless asked for.
func defaultOptions() options {
	return options{
		maxAttempts:  1,
		initialDelay: 500 * time.Millisecond,
		httpClient:   &http.Client{},
		logger:       slog.Default(),
	}
}

// Option configures the SDK client.
type Option func(*options)

// WithTimeout sets the per-call timeout for non-streaming calls. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithRetry configures retry of idempotent fetches. Mutating calls are never retried.
func WithRetry(maxAttempts int, initialDelay time.Duration) Option {
	return func(o *options) {
		if maxAttempts > 0 {
			o.maxAttempts = maxAttempts
		}
		if initialDelay > 0 {
			o.initialDelay = initialDelay
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) {
		if hc != nil {
			o.httpClient = hc
		}
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
