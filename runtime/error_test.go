package runtime

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestNewServiceError_RetryableKinds(t *testing.T) {
	tests := []struct {
		kind      ServiceErrorKind
		retryable bool
	}{
		{ServiceErrorRateLimit, true},
		{ServiceErrorNetwork, true},
		{ServiceErrorTimeout, true},
		{ServiceErrorAuth, false},
		{ServiceErrorProvider, false},
		{ServiceErrorInvalidRequest, false},
		{ServiceErrorNotFound, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			se := NewServiceError(tt.kind, errors.New("boom"))
			if se.IsRetryable() != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", se.IsRetryable(), tt.retryable)
			}
		})
	}
}

func TestServiceError_Wrapping(t *testing.T) {
	cause := errors.New("connection reset")
	se := NewServiceError(ServiceErrorNetwork, cause).
		WithMetadata("provider", "openai").
		WithRetryHint(true, "30")

	if se.Error() != "network: connection reset" {
		t.Errorf("Error() = %q", se.Error())
	}
	if !errors.Is(se, cause) {
		t.Error("errors.Is should reach the cause")
	}
	if se.Code() != "NETWORK" {
		t.Errorf("Code() = %q, want NETWORK", se.Code())
	}
	if se.RetryAfter() != "30" {
		t.Errorf("RetryAfter() = %q, want 30", se.RetryAfter())
	}
	if se.Metadata["provider"] != "openai" {
		t.Errorf("provider metadata = %v", se.Metadata["provider"])
	}

	bare := &ServiceError{Kind: ServiceErrorAuth}
	if bare.Error() != "auth" {
		t.Errorf("Error() without cause = %q, want auth", bare.Error())
	}
}

func TestServiceErrorFromStatus(t *testing.T) {
	tests := []struct {
		status    int
		kind      ServiceErrorKind
		retryable bool
	}{
		{400, ServiceErrorInvalidRequest, false},
		{401, ServiceErrorAuth, false},
		{403, ServiceErrorAuth, false},
		{404, ServiceErrorNotFound, false},
		{408, ServiceErrorTimeout, true},
		{422, ServiceErrorInvalidRequest, false},
		{429, ServiceErrorRateLimit, true},
		{500, ServiceErrorProvider, true},
		{503, ServiceErrorProvider, true},
		{504, ServiceErrorTimeout, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			se := ServiceErrorFromStatus(tt.status, errors.New("upstream"))
			if se.Kind != tt.kind {
				t.Errorf("Kind = %s, want %s", se.Kind, tt.kind)
			}
			if se.IsRetryable() != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", se.IsRetryable(), tt.retryable)
			}
			if se.Metadata["status_code"] != tt.status {
				t.Errorf("status_code = %v, want %d", se.Metadata["status_code"], tt.status)
			}
		})
	}
}

func TestNewExternalServiceError(t *testing.T) {
	se := ServiceErrorFromStatus(429, errors.New("slow down")).WithRetryHint(true, "7")
	fe := NewExternalServiceError("chat", fmt.Errorf("calling provider: %w", se))

	if fe.Type != ErrorTypeExternalService {
		t.Errorf("Type = %s", fe.Type)
	}
	if fe.Code != "RATE_LIMIT" {
		t.Errorf("Code = %q, want RATE_LIMIT", fe.Code)
	}
	if fe.Meta["capability"] != "chat" || fe.Meta["retry_after"] != "7" || fe.Meta["status_code"] != 429 {
		t.Errorf("Meta = %v", fe.Meta)
	}
	if !errors.Is(fe, ErrExternalService) {
		t.Error("should match ErrExternalService sentinel")
	}

	plain := NewExternalServiceError("vector", errors.New("eof"))
	if plain.Code != string(ErrorCodeServiceFailed) {
		t.Errorf("Code = %q, want %s", plain.Code, ErrorCodeServiceFailed)
	}
}

func TestFlowError_Is(t *testing.T) {
	fe := NewLookupError(ErrorCodeVariableNotFound, "start.query is not set")

	tests := []struct {
		name   string
		target error
		want   bool
	}{
		{"type sentinel", ErrLookup, true},
		{"other type sentinel", ErrConfiguration, false},
		{"type and code", &FlowError{Type: ErrorTypeLookup, Code: string(ErrorCodeVariableNotFound)}, true},
		{"type with other code", &FlowError{Type: ErrorTypeLookup, Code: string(ErrorCodeTypeMismatch)}, false},
		{"foreign error", errors.New("x"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Is(fe, tt.target); got != tt.want {
				t.Errorf("errors.Is = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFlowError_ErrorAndMap(t *testing.T) {
	fe := NewConfigurationError("max_iterations", "must be positive")
	fe.NodeID = "loop-1"
	fe.Cause = errors.New("got 0")

	want := "[configuration/CONFIG_INVALID] must be positive (node: loop-1): got 0"
	if fe.Error() != want {
		t.Errorf("Error() = %q, want %q", fe.Error(), want)
	}

	m := fe.ToMap()
	if m["node_id"] != "loop-1" || m["field"] != "max_iterations" || m["code"] != "CONFIG_INVALID" {
		t.Errorf("ToMap() = %v", m)
	}
}

func TestAsFlowError(t *testing.T) {
	if AsFlowError(nil) != nil {
		t.Error("AsFlowError(nil) should be nil")
	}

	original := NewLookupError(ErrorCodeTypeMismatch, "not an array")
	if got := AsFlowError(fmt.Errorf("wrapped: %w", original)); got != original {
		t.Errorf("AsFlowError should unwrap to the original, got %v", got)
	}

	foreign := errors.New("disk full")
	got := AsFlowError(foreign)
	if got.Code != string(ErrorCodeRuntimeError) || !errors.Is(got, foreign) {
		t.Errorf("foreign error not wrapped as runtime error: %v", got)
	}
}

func TestContextError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code FlowErrorCode
	}{
		{"cancelled", context.Canceled, ErrorCodeContextCancelled},
		{"deadline", context.DeadlineExceeded, ErrorCodeDeadlineExceeded},
		{"wrapped deadline", fmt.Errorf("run: %w", context.DeadlineExceeded), ErrorCodeDeadlineExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fe := contextError(tt.err)
			if fe.Type != ErrorTypeTimeout || fe.Code != string(tt.code) {
				t.Errorf("got %s/%s, want timeout/%s", fe.Type, fe.Code, tt.code)
			}
			if !errors.Is(fe, ErrTimeout) {
				t.Error("should match ErrTimeout sentinel")
			}
		})
	}
}
