// Package embedding holds decorators and helpers shared by the embedding
// service adapters in its subpackages.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/shopground/internal/core/domain"
)

// maxErrorBody bounds how much of a response body is quoted in errors.
const maxErrorBody = 512

// StatusError converts a non-200 response into an error.
// 429 and 5xx are transient; 429 also matches domain.ErrRateLimited.
func StatusError(service string, resp *http.Response, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody] + "..."
	}
	base := fmt.Errorf("%s: status %d: %s", service, resp.StatusCode, msg)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &domain.TransientServiceError{
			Service:    service,
			RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
			Err:        fmt.Errorf("%w: %w", domain.ErrRateLimited, base),
		}
	case resp.StatusCode >= 500:
		return &domain.TransientServiceError{Service: service, Err: base}
	default:
		return base
	}
}

// TransportError classifies a failure to get any response at all.
// Network errors are transient; context cancellation is returned unchanged.
func TransportError(service string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &domain.TransientServiceError{Service: service, Err: err}
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP date.
func retryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
