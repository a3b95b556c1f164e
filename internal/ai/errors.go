package ai

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrProvidersBusy is surfaced when every provider in the chain failed and
	// the last failure was transient. Callers map it to a retry-shortly response.
	ErrProvidersBusy = errors.New("recommendation service is busy, retry shortly")

	// ErrProvidersExhausted is surfaced when every provider failed with a
	// non-retryable error.
	ErrProvidersExhausted = errors.New("all providers exhausted")

	// ErrEmptyResponse is returned when a provider produced no usable content.
	ErrEmptyResponse = errors.New("provider returned empty response")
)

// ErrorKind classifies a provider failure for retry and cascade decisions.
type ErrorKind int

const (
	// KindFatal failures cascade to the next provider immediately.
	KindFatal ErrorKind = iota
	// KindTransient failures are retried on the same provider with backoff.
	KindTransient
	// KindSchema failures trigger the repair loop.
	KindSchema
)

// transientKeywords is the fixed keyword set used to detect retryable
// provider failures by substring match against the error text.
var transientKeywords = []string{
	"429",
	"503",
	"rate limit",
	"ratelimit",
	"quota",
	"overload",
	"timeout",
	"deadline exceeded",
	"resource exhausted",
	"unavailable",
	"too many requests",
}

// quotaKeywords identifies the subset of transient failures that indicate a
// consumed credential, prompting key pool rotation.
var quotaKeywords = []string{
	"quota",
	"resource exhausted",
	"429",
	"too many requests",
}

// SchemaError reports a structured response that failed validation, carrying
// the missing field names used to build the repair correction.
type SchemaError struct {
	MissingFields []string
	Cause         error
}

func (e *SchemaError) Error() string {
	if len(e.MissingFields) > 0 {
		return fmt.Sprintf("schema validation failed: missing fields %s", strings.Join(e.MissingFields, ", "))
	}
	if e.Cause != nil {
		return fmt.Sprintf("schema validation failed: %v", e.Cause)
	}
	return "schema validation failed"
}

func (e *SchemaError) Unwrap() error { return e.Cause }

// ClassifyProviderError determines how a provider failure should be handled.
func ClassifyProviderError(err error) ErrorKind {
	if err == nil {
		return KindFatal
	}

	var schemaErr *SchemaError
	if errors.As(err, &schemaErr) {
		return KindSchema
	}

	msg := strings.ToLower(err.Error())
	for _, keyword := range transientKeywords {
		if strings.Contains(msg, keyword) {
			return KindTransient
		}
	}

	return KindFatal
}

// IsQuotaError reports whether the failure indicates an exhausted credential.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, keyword := range quotaKeywords {
		if strings.Contains(msg, keyword) {
			return true
		}
	}

	return false
}
