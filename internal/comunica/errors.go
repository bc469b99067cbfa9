package comunica

import (
	"errors"
	"fmt"
)

// InvalidCaseNumberError means the number is malformed or the API refused it.
// Retrying will not help.
type InvalidCaseNumberError struct {
	Number string
	Reason string
}

func (e *InvalidCaseNumberError) Error() string {
	return fmt.Sprintf("invalid case number %q: %s", e.Number, e.Reason)
}

// RetryableLookupError wraps transient failures: network errors, timeouts,
// HTTP 429 and 5xx.
type RetryableLookupError struct {
	Number     string
	StatusCode int
	Err        error
}

func (e *RetryableLookupError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("lookup %s: HTTP %d: %v", e.Number, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("lookup %s: %v", e.Number, e.Err)
}

func (e *RetryableLookupError) Unwrap() error { return e.Err }

// APIError is any other non-2xx response.
type APIError struct {
	operation  string
	statusCode int
	message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.operation, e.statusCode, e.message)
}

func (e *APIError) StatusCode() int { return e.statusCode }

func IsRetryable(err error) bool {
	var r *RetryableLookupError
	return errors.As(err, &r)
}

func IsInvalidCaseNumber(err error) bool {
	var inv *InvalidCaseNumberError
	return errors.As(err, &inv)
}
