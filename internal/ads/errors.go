package ads

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/ignite/adpulse/internal/domain"
)

// APIError is the closed error taxonomy every client call fails with. Steps
// classify failures into AccountStepLog by Kind; nothing in the pipeline ever
// branches on a raw HTTP status or error string.
type APIError struct {
	Kind       domain.ErrorType
	StatusCode int
	Code       int // platform-specific error code, 0 when absent
	Message    string
	RetryAfter time.Duration // only set for rate_limited
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("ads api: %s (status %d, code %d): %s", e.Kind, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("ads api: %s (status %d): %s", e.Kind, e.StatusCode, e.Message)
}

// Classify maps any error surfaced by a pipeline step to its ErrorType.
// Unrecognized errors are unknown, which the retry policy treats as
// transient up to the attempt cap.
func Classify(err error) domain.ErrorType {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return domain.ErrTypeNetwork
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrTypeNetwork
	}
	return domain.ErrTypeUnknown
}

// kindForStatus maps an HTTP status to the taxonomy. Platform error codes
// refine the result where the status alone is ambiguous (the platform
// reports expired tokens under 400 with code 190).
func kindForStatus(status, code int) domain.ErrorType {
	if code == codeTokenExpired {
		return domain.ErrTypeTokenInvalid
	}
	switch {
	case status == 401 || status == 403:
		return domain.ErrTypeTokenInvalid
	case status == 429 || code == codeRateLimit || code == codeUserRateLimit:
		return domain.ErrTypeRateLimited
	case status >= 500:
		return domain.ErrTypeNetwork
	case status == 400 || status == 404 || status == 422:
		return domain.ErrTypeData
	default:
		return domain.ErrTypeUnknown
	}
}

const (
	codeTokenExpired  = 190
	codeRateLimit     = 17
	codeUserRateLimit = 613
)
