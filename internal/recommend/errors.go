package recommend

import (
	"errors"
	"fmt"
	"time"
)

// ErrTimedOut is returned when the caller's deadline elapsed before the
// pipeline could produce a response.
var ErrTimedOut = errors.New("recommendation timed out")

// ValidationError reports a rejected request field. Maps to a 400 response.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s %s", e.Field, e.Message)
}

// RateLimitError reports an identity over its request budget. Maps to a 429
// response with a Retry-After derived from ResetAt.
type RateLimitError struct {
	ResetAt time.Time
}

func (e *RateLimitError) Error() string {
	return "rate limit exceeded"
}
