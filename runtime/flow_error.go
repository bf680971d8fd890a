package runtime

import (
	"context"
	"errors"
	"fmt"
)

// FlowErrorType classifies why a run stopped.
type FlowErrorType string

const (
	// ErrorTypeConfiguration signals a missing or invalid node field or a malformed graph.
	ErrorTypeConfiguration FlowErrorType = "configuration"
	// ErrorTypeLookup signals an absent or wrong-shaped referenced variable.
	ErrorTypeLookup FlowErrorType = "lookup"
	// ErrorTypeMaxIterations signals the global visit ceiling was tripped.
	ErrorTypeMaxIterations FlowErrorType = "max_iterations"
	// ErrorTypeExternalService signals a capability call failed.
	ErrorTypeExternalService FlowErrorType = "external_service"
	// ErrorTypeTimeout signals the caller cancelled the run or its deadline passed.
	ErrorTypeTimeout FlowErrorType = "timeout"
)

// FlowErrorCode identifies known runtime error codes.
type FlowErrorCode string

const (
	ErrorCodeRuntimeError      FlowErrorCode = "RUNTIME_ERROR"
	ErrorCodeContextCancelled  FlowErrorCode = "CONTEXT_CANCELLED"
	ErrorCodeDeadlineExceeded  FlowErrorCode = "DEADLINE_EXCEEDED"
	ErrorCodeConfigInvalid     FlowErrorCode = "CONFIG_INVALID"
	ErrorCodeRouteAmbiguous    FlowErrorCode = "ROUTE_AMBIGUOUS"
	ErrorCodeSubflowIncomplete FlowErrorCode = "SUBFLOW_INCOMPLETE"
	ErrorCodeVariableNotFound  FlowErrorCode = "VARIABLE_NOT_FOUND"
	ErrorCodeTypeMismatch      FlowErrorCode = "TYPE_MISMATCH"
	ErrorCodeToolNotPermitted  FlowErrorCode = "TOOL_NOT_PERMITTED"
	ErrorCodeToolNotFound      FlowErrorCode = "TOOL_NOT_FOUND"
	ErrorCodeMaxIterations     FlowErrorCode = "MAX_ITERATIONS_EXCEEDED"
	ErrorCodeServiceFailed     FlowErrorCode = "SERVICE_FAILED"
	ErrorCodeUnparseableReply  FlowErrorCode = "UNPARSEABLE_REPLY"
	ErrorCodeCapabilityMissing FlowErrorCode = "CAPABILITY_MISSING"
)

// Sentinels for errors.Is matching on the error type alone.
var (
	ErrConfiguration   = &FlowError{Type: ErrorTypeConfiguration}
	ErrLookup          = &FlowError{Type: ErrorTypeLookup}
	ErrMaxIterations   = &FlowError{Type: ErrorTypeMaxIterations}
	ErrExternalService = &FlowError{Type: ErrorTypeExternalService}
	ErrTimeout         = &FlowError{Type: ErrorTypeTimeout}
)

// FlowError is the canonical error type propagated through an execution.
// It is JSON-serializable so it can be returned as part of an ExecutionResult.
type FlowError struct {
	Type    FlowErrorType  `json:"type"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	NodeID  string         `json:"node_id,omitempty"`
	Field   string         `json:"field,omitempty"`
	Cause   error          `json:"-"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func (e *FlowError) Error() string {
	msg := fmt.Sprintf("[%s/%s] %s", e.Type, e.Code, e.Message)
	if e.NodeID != "" {
		msg += fmt.Sprintf(" (node: %s)", e.NodeID)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *FlowError) Unwrap() error {
	return e.Cause
}

// Is matches a sentinel carrying only a Type, or an identical type/code pair.
func (e *FlowError) Is(target error) bool {
	t, ok := target.(*FlowError)
	if !ok {
		return false
	}
	if t.Code == "" {
		return t.Type == e.Type
	}
	return t.Type == e.Type && t.Code == e.Code
}

// ToMap converts the error to a map suitable for node logs and expression contexts.
func (e *FlowError) ToMap() map[string]any {
	m := map[string]any{
		"type":    string(e.Type),
		"code":    e.Code,
		"message": e.Message,
		"node_id": e.NodeID,
	}
	if e.Field != "" {
		m["field"] = e.Field
	}
	return m
}

func NewConfigurationError(field, message string) *FlowError {
	return &FlowError{
		Type:    ErrorTypeConfiguration,
		Code:    string(ErrorCodeConfigInvalid),
		Message: message,
		Field:   field,
	}
}

func NewLookupError(code FlowErrorCode, message string) *FlowError {
	return &FlowError{
		Type:    ErrorTypeLookup,
		Code:    string(code),
		Message: message,
	}
}

// NewExternalServiceError wraps a capability failure. Retry hints carried by a
// *ServiceError are copied into Meta so callers can decide whether to rerun.
func NewExternalServiceError(capability string, cause error) *FlowError {
	fe := &FlowError{
		Type:    ErrorTypeExternalService,
		Code:    string(ErrorCodeServiceFailed),
		Message: fmt.Sprintf("%s call failed", capability),
		Cause:   cause,
		Meta:    map[string]any{"capability": capability},
	}

	var se *ServiceError
	if errors.As(cause, &se) {
		fe.Code = se.Code()
		for k, v := range se.Metadata {
			fe.Meta[k] = v
		}
	}
	return fe
}

// contextError converts a done context into a timeout FlowError.
func contextError(err error) *FlowError {
	code := ErrorCodeContextCancelled
	if errors.Is(err, context.DeadlineExceeded) {
		code = ErrorCodeDeadlineExceeded
	}
	return &FlowError{
		Type:    ErrorTypeTimeout,
		Code:    string(code),
		Message: "execution stopped by caller",
		Cause:   err,
	}
}

// AsFlowError returns err as a *FlowError, wrapping foreign errors as runtime errors.
func AsFlowError(err error) *FlowError {
	if err == nil {
		return nil
	}
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe
	}
	return &FlowError{
		Type:    ErrorTypeConfiguration,
		Code:    string(ErrorCodeRuntimeError),
		Message: err.Error(),
		Cause:   err,
	}
}
