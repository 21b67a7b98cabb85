package extract

import (
	"fmt"
	"strconv"
	"time"
)

// RefusalError indicates the model declined to produce output and
// returned a refusal message instead of schema-conforming content.
type RefusalError struct {
	Provider string
	Refusal  string
}

func (e *RefusalError) Error() string {
	return fmt.Sprintf("%s refused extraction: %s", e.Provider, e.Refusal)
}

// SchemaError indicates the provider returned content that does not
// satisfy the requested schema (invalid JSON, truncation, wrong shape).
type SchemaError struct {
	Provider string
	Raw      string
	Err      error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s returned non-conforming output: %v (raw: %s)", e.Provider, e.Err, truncate(e.Raw, 500))
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// RateLimitError indicates a provider returned HTTP 429.
type RateLimitError struct {
	Err        error
	RetryAfter time.Duration
	Provider   string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limited (retry after %s): %v", e.Provider, e.RetryAfter, e.Err)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// NewRateLimitError creates a RateLimitError. If retryAfterSecs is 0, defaults to 60s.
func NewRateLimitError(provider string, err error, retryAfterSecs int) *RateLimitError {
	if retryAfterSecs <= 0 {
		retryAfterSecs = 60
	}
	return &RateLimitError{
		Err:        err,
		RetryAfter: time.Duration(retryAfterSecs) * time.Second,
		Provider:   provider,
	}
}

// ParseRetryAfterHeader parses a Retry-After header value into seconds.
// Returns 0 if the value is empty or not a valid integer.
func ParseRetryAfterHeader(val string) int {
	if val == "" {
		return 0
	}
	secs, err := strconv.Atoi(val)
	if err != nil {
		return 0
	}
	return secs
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
