package runtime

import (
	"fmt"
	"strings"
)

// ServiceErrorKind categorises failures reported by capability implementations.
type ServiceErrorKind string

const (
	ServiceErrorProvider       ServiceErrorKind = "provider"
	ServiceErrorNetwork        ServiceErrorKind = "network"
	ServiceErrorRateLimit      ServiceErrorKind = "rate_limit"
	ServiceErrorAuth           ServiceErrorKind = "auth"
	ServiceErrorTimeout        ServiceErrorKind = "timeout"
	ServiceErrorInvalidRequest ServiceErrorKind = "invalid_request"
	ServiceErrorNotFound       ServiceErrorKind = "not_found"
)

// ServiceError wraps capability errors with metadata.
// Allows chat, vector and tool backends to return alongside the error:
// - Retry hints (retryable, retry_after)
// - Transport details (status_code, provider)
type ServiceError struct {
	Kind     ServiceErrorKind
	Err      error
	Metadata map[string]any
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Err.Error())
	}
	return string(e.Kind)
}

// Unwrap returns the underlying error for errors.Is and errors.As
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Code renders the kind as an upper-case FlowError code, e.g. RATE_LIMIT.
func (e *ServiceError) Code() string {
	return strings.ToUpper(string(e.Kind))
}

// NewServiceError creates a new service error of the given kind.
// Rate limit, network and timeout failures are marked retryable.
func NewServiceError(kind ServiceErrorKind, err error) *ServiceError {
	se := &ServiceError{
		Kind:     kind,
		Err:      err,
		Metadata: make(map[string]any),
	}
	switch kind {
	case ServiceErrorRateLimit, ServiceErrorNetwork, ServiceErrorTimeout:
		se.Metadata["retryable"] = true
	}
	return se
}

// WithMetadata adds metadata to the error
func (e *ServiceError) WithMetadata(key string, value any) *ServiceError {
	e.Metadata[key] = value
	return e
}

// WithRetryHint adds retry hint metadata
func (e *ServiceError) WithRetryHint(retryable bool, retryAfter string) *ServiceError {
	e.Metadata["retryable"] = retryable
	if retryAfter != "" {
		e.Metadata["retry_after"] = retryAfter
	}
	return e
}

// IsRetryable checks if the error is marked as retryable
func (e *ServiceError) IsRetryable() bool {
	retryable, _ := e.Metadata["retryable"].(bool)
	return retryable
}

// RetryAfter returns the retry_after hint if set
func (e *ServiceError) RetryAfter() string {
	retryAfter, _ := e.Metadata["retry_after"].(string)
	return retryAfter
}

// ServiceErrorFromStatus maps an HTTP status code to a ServiceError kind.
func ServiceErrorFromStatus(status int, err error) *ServiceError {
	var kind ServiceErrorKind
	switch {
	case status == 429:
		kind = ServiceErrorRateLimit
	case status == 401 || status == 403:
		kind = ServiceErrorAuth
	case status == 404:
		kind = ServiceErrorNotFound
	case status == 408 || status == 504:
		kind = ServiceErrorTimeout
	case status >= 400 && status < 500:
		kind = ServiceErrorInvalidRequest
	default:
		kind = ServiceErrorProvider
	}
	se := NewServiceError(kind, err).WithMetadata("status_code", status)
	if status >= 500 {
		se.Metadata["retryable"] = true
	}
	return se
}
