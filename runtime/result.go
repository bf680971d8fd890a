package runtime

import "time"

// ExecutionStatus is the terminal status of a run.
type ExecutionStatus string

const (
	StatusCompleted             ExecutionStatus = "completed"
	StatusFailed                ExecutionStatus = "failed"
	StatusMaxIterationsExceeded ExecutionStatus = "max_iterations_exceeded"
)

// StateSnapshot is the final execution state handed back to callers.
type StateSnapshot struct {
	Variables    map[string]any `json:"variables"`
	VisitedNodes []string       `json:"visited_nodes"`
	LoopCounters map[string]int `json:"loop_counters"`
}

// ExecutionResult is always returned, whatever happened during the run.
type ExecutionResult struct {
	ExecutionID  string                `json:"execution_id"`
	FlowID       string                `json:"flow_id,omitempty"`
	Scope        Scope                 `json:"scope"`
	Status       ExecutionStatus       `json:"status"`
	FailedNodeID string                `json:"failed_node_id,omitempty"`
	Error        *FlowError            `json:"error,omitempty"`
	Outputs      map[string]any        `json:"outputs,omitempty"`
	NodeLog      []NodeExecutionResult `json:"node_log"`
	State        StateSnapshot         `json:"state"`
	StartedAt    time.Time             `json:"started_at"`
	Duration     time.Duration         `json:"duration"`
}

func (r *ExecutionResult) Succeeded() bool {
	return r.Status == StatusCompleted
}

func statusFor(err *FlowError) ExecutionStatus {
	switch {
	case err == nil:
		return StatusCompleted
	case err.Type == ErrorTypeMaxIterations:
		return StatusMaxIterationsExceeded
	default:
		return StatusFailed
	}
}
