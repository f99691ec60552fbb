package unusualwhales

import (
	"fmt"
	"net/http"

	"optionsflow/pkg/errors"
)

// ErrorKind classifies upstream failures
type ErrorKind string

const (
	KindNetwork        ErrorKind = "network"
	KindAuthentication ErrorKind = "authentication"
	KindRateLimit      ErrorKind = "rate_limit"
	KindData           ErrorKind = "data"
	KindTimeout        ErrorKind = "timeout"
	KindUnavailable    ErrorKind = "unavailable"
)

// APIError is a classified upstream failure
type APIError struct {
	Kind     ErrorKind
	Status   int // 0 when no response was received
	Endpoint string
	Message  string
	Err      error
}

func (e *APIError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("unusual whales %s %s (status %d): %s", e.Kind, e.Endpoint, e.Status, e.Message)
	}
	return fmt.Sprintf("unusual whales %s %s: %s", e.Kind, e.Endpoint, e.Message)
}

// StatusCode exposes the HTTP status to the retry policy
func (e *APIError) StatusCode() int {
	return e.Status
}

// Unwrap maps the kind onto the shared sentinels so callers can use errors.Is
func (e *APIError) Unwrap() []error {
	out := []error{kindSentinel(e.Kind)}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

func kindSentinel(kind ErrorKind) error {
	switch kind {
	case KindAuthentication:
		return errors.ErrUnauthorized
	case KindRateLimit:
		return errors.ErrRateLimitExceeded
	case KindData:
		return errors.ErrInvalidResponse
	case KindTimeout:
		return errors.ErrTimeout
	default:
		return errors.ErrUnavailable
	}
}

// classifyStatus maps a non-2xx response onto an APIError
func classifyStatus(endpoint string, status int, body string) *APIError {
	apiErr := &APIError{Status: status, Endpoint: endpoint, Message: body}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		apiErr.Kind = KindAuthentication
		apiErr.Message = "authentication failed, check API token"
	case status == http.StatusTooManyRequests:
		apiErr.Kind = KindRateLimit
		apiErr.Message = "rate limit exceeded"
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		apiErr.Kind = KindTimeout
	case status >= 500:
		apiErr.Kind = KindUnavailable
	default:
		apiErr.Kind = KindData
	}

	return apiErr
}
