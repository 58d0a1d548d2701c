package weather

import (
	"errors"
	"fmt"
)

// Sentinel errors for the weather domain.
var (
	ErrUnavailable      = errors.New("weather provider unavailable")
	ErrNotFound         = errors.New("city not found")
	ErrBadRequest       = errors.New("bad request")
	ErrBadUpstreamShape = errors.New("invalid provider response shape")
)

// UpstreamError represents an unexpected (>=400, non-404) status returned by
// the weather provider. The body is captured for diagnostics; callers should
// not retry blindly.
type UpstreamError struct {
	StatusCode int
	Body       string
}

// Error returns a formatted error string including status and body.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("weather provider: HTTP %d: %s", e.StatusCode, e.Body)
}

// HTTPStatus returns the provider's HTTP status code.
func (e *UpstreamError) HTTPStatus() int { return e.StatusCode }
