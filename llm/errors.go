// ABOUTME: Error hierarchy for the reasoning batch client.
// ABOUTME: Categorized parse failures and admission denials that never escape as raw exceptions.
package llm

import (
	"fmt"
	"time"
)

// ParseCategory classifies why a reasoning response could not be used.
type ParseCategory string

const (
	CategoryEmptyResponse   ParseCategory = "empty_response"
	CategoryInvalidFormat   ParseCategory = "invalid_format"
	CategoryProviderFailure ParseCategory = "provider_failure"
	CategoryTruncatedOutput ParseCategory = "truncated_output"
	CategorySchemaViolation ParseCategory = "schema_violation"
)

// ClientError is the base error type for the reasoning client.
type ClientError struct {
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// ParseError is a categorized failure to obtain a structured object from the
// reasoning backend. It is always caught at the client boundary and converted
// into a structured abort by the orchestrator.
type ParseError struct {
	ClientError
	Category ParseCategory
	Batch    string // batch name that produced the failure
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s (%s): %s", e.Batch, e.Category, e.ClientError.Error())
}

func (e *ParseError) Unwrap() error {
	return e.ClientError.Unwrap()
}

// NewParseError builds a ParseError for the given batch and category.
func NewParseError(batch string, category ParseCategory, message string, cause error) *ParseError {
	return &ParseError{
		ClientError: ClientError{Message: message, Cause: cause},
		Category:    category,
		Batch:       batch,
	}
}

// AdmissionDeniedError signals that the rate limiter refused a reasoning
// call. Never retried internally: the orchestrator aborts the query with a
// BLOCKED outcome and the caller may retry after RetryAfter.
type AdmissionDeniedError struct {
	ClientError
	RetryAfter time.Duration
}

func (e *AdmissionDeniedError) Error() string {
	return fmt.Sprintf("%s (retry after %s)", e.ClientError.Error(), e.RetryAfter.Round(time.Second))
}
