// Package providers holds the HTTP adapters for the external data feeds the
// dashboard syncs from. Each adapter validates its API key before any call,
// respects a request rate ceiling, and normalizes the provider's response
// shape into the snapshot models at the boundary.
package providers

import (
	"fmt"
	"net/http"
	"time"

	"resty.dev/v3"

	apperrors "github.com/tickerdeck/tickerdeck/pkg/errors"
	"github.com/tickerdeck/tickerdeck/pkg/metrics"
)

// Config carries the connection settings shared by all provider adapters.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// RequestsPerSecond caps outbound calls toward the provider. Zero means
	// no ceiling.
	RequestsPerSecond float64
}

const defaultTimeout = 15 * time.Second

// NewHTTPClient builds the resty client used by every adapter. Transient
// server errors are retried in-client; 429 is deliberately not retried so the
// rate-limit signal reaches the cache-aside fallback path intact.
func NewHTTPClient(cfg Config) *resty.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("Accept", "application/json").
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryConditions(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500 || r.StatusCode() == http.StatusRequestTimeout
		})
}

// CheckStatus converts a non-2xx provider response into the application error
// taxonomy and records the request outcome.
func CheckStatus(provider string, resp *resty.Response) error {
	switch {
	case resp.StatusCode() == http.StatusTooManyRequests:
		metrics.ProviderRequests.WithLabelValues(provider, "rate_limited").Inc()
		return fmt.Errorf("%s: %w", provider, apperrors.ErrProviderRateLimited)
	case resp.StatusCode() >= 400:
		metrics.ProviderRequests.WithLabelValues(provider, "error").Inc()
		return fmt.Errorf("%s: status %d: %w", provider, resp.StatusCode(), apperrors.ErrProviderUnavailable)
	default:
		metrics.ProviderRequests.WithLabelValues(provider, "ok").Inc()
		return nil
	}
}

// RequireAPIKey guards adapters whose provider mandates a key. It must be
// checked before any outbound call is attempted.
func RequireAPIKey(provider, key string) error {
	if key == "" {
		return apperrors.ErrConfigMissing.WithMessage(provider + " provider API key is not configured")
	}
	return nil
}
