package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BDNK1/agentflow/runtime/telemetry"
)

// DefaultMaxNodeVisits bounds the node visits of one run, sub-flows included.
const DefaultMaxNodeVisits = 1000

// Executor drives flow definitions to completion. It holds no per-run state
// and may serve concurrent executions.
type Executor struct {
	l          *slog.Logger
	dispatcher Dispatcher
	maxVisits  int
	telemetry  *telemetry.Instruments
}

type Option func(*Executor)

// WithMaxNodeVisits overrides the global visit ceiling.
func WithMaxNodeVisits(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxVisits = n
		}
	}
}

// WithTelemetry records spans and metrics through the given instruments.
func WithTelemetry(i *telemetry.Instruments) Option {
	return func(e *Executor) {
		e.telemetry = i
	}
}

func NewExecutor(l *slog.Logger, dispatcher Dispatcher, opts ...Option) *Executor {
	if l == nil {
		l = slog.Default()
	}
	e := &Executor{
		l:          l,
		dispatcher: dispatcher,
		maxVisits:  DefaultMaxNodeVisits,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// stopCondition ends a stepping loop after the given node has run.
type stopCondition func(n *Node) bool

func stopAtEnd(n *Node) bool {
	return n.Kind == KindEnd
}

func stopAt(id string) stopCondition {
	return func(n *Node) bool { return n.ID == id }
}

// stepOutcome describes how a stepping loop finished.
type stepOutcome struct {
	last    *Node
	output  map[string]any
	stopped bool // the stop condition fired, as opposed to running out of edges
}

// Execute runs flow from its start node. It always returns a result with a
// terminal status; failures are reported through Status, FailedNodeID and Error.
func (e *Executor) Execute(ctx context.Context, flow *FlowDefinition, initial map[string]any, scope Scope) *ExecutionResult {
	started := time.Now()

	graph, err := NewGraph(flow)
	if err == nil {
		err = validateScope(scope)
	}
	if err != nil {
		fe := AsFlowError(err)
		e.l.ErrorContext(ctx, "Flow rejected", "tenant_id", scope.TenantID, "error", fe)
		result := &ExecutionResult{
			Scope:        scope,
			Status:       StatusFailed,
			FailedNodeID: fe.NodeID,
			Error:        fe,
			NodeLog:      []NodeExecutionResult{},
			StartedAt:    started,
			Duration:     time.Since(started),
		}
		if flow != nil {
			result.FlowID = flow.ID
		}
		return result
	}

	exec := NewExecution(ctx, graph, scope, initial)

	// Spans derive from the caller's context, never from exec itself, which
	// delegates to whatever context is currently scoped.
	spanCtx, span := e.telemetry.StartExecution(exec.ctx, flow.ID, exec.ID, scope.TenantID)

	var outcome stepOutcome
	exec.WithScopedContext(spanCtx, func() {
		e.l.InfoContext(exec, "Executing flow",
			"flow_id", flow.ID,
			"execution_id", exec.ID,
			"tenant_id", scope.TenantID,
			"user_id", scope.UserID,
			"session_id", scope.SessionID)
		outcome, err = e.runSteps(exec, graph.Start().ID, stopAtEnd)
	})

	result := &ExecutionResult{
		ExecutionID: exec.ID,
		FlowID:      flow.ID,
		Scope:       scope,
		NodeLog:     exec.Log,
		StartedAt:   started,
	}

	if err != nil {
		fe := AsFlowError(err)
		result.Error = fe
		result.FailedNodeID = fe.NodeID
		result.Status = statusFor(fe)
		e.l.ErrorContext(exec, "Flow execution failed",
			"execution_id", exec.ID,
			"tenant_id", scope.TenantID,
			"node_id", fe.NodeID,
			"status", result.Status,
			"error", fe)
	} else {
		result.Status = StatusCompleted
		if outcome.stopped {
			result.Outputs = outcome.output
		} else {
			result.Outputs = exec.Variables.Snapshot()
		}
		e.l.InfoContext(exec, "Flow execution completed",
			"execution_id", exec.ID,
			"tenant_id", scope.TenantID,
			"visits", exec.Visits())
	}

	result.State = StateSnapshot{
		Variables:    exec.Variables.Snapshot(),
		VisitedNodes: exec.VisitedNodes,
		LoopCounters: exec.LoopCounters,
	}
	result.Duration = time.Since(started)
	e.telemetry.EndExecution(spanCtx, span, string(result.Status), err)

	return result
}

func validateScope(scope Scope) error {
	if scope.TenantID == "" {
		return NewConfigurationError("tenant_id", "tenant id is required")
	}
	if scope.UserID == "" {
		return NewConfigurationError("user_id", "user id is required")
	}
	return nil
}

// runSteps is the single stepping loop shared by top-level runs and iteration
// sub-flows. It walks from the given node until stop fires, the path runs out
// of edges, or a node fails.
func (e *Executor) runSteps(exec *Execution, from string, stop stopCondition) (stepOutcome, error) {
	current := from
	for {
		node, ok := exec.Graph.Node(current)
		if !ok {
			return stepOutcome{}, NewConfigurationError("target", fmt.Sprintf("node %q not found", current))
		}

		if err := exec.Err(); err != nil {
			fe := contextError(err)
			fe.NodeID = node.ID
			return stepOutcome{last: node}, fe
		}

		if exec.Visits() >= e.maxVisits {
			return stepOutcome{last: node}, &FlowError{
				Type:    ErrorTypeMaxIterations,
				Code:    string(ErrorCodeMaxIterations),
				Message: fmt.Sprintf("execution exceeded %d node visits", e.maxVisits),
				NodeID:  node.ID,
				Meta:    map[string]any{"max_node_visits": e.maxVisits},
			}
		}

		exec.visit(node)
		output, err := e.step(exec, node)
		if err != nil {
			return stepOutcome{last: node}, err
		}

		if stop(node) {
			return stepOutcome{last: node, output: output, stopped: true}, nil
		}

		next, err := e.route(exec, node, output)
		if err != nil {
			fe := AsFlowError(err)
			if fe.NodeID == "" {
				fe.NodeID = node.ID
			}
			return stepOutcome{last: node}, fe
		}
		if next == "" {
			return stepOutcome{last: node, output: output}, nil
		}
		current = next
	}
}

// step dispatches one node and records its result.
func (e *Executor) step(exec *Execution, node *Node) (map[string]any, error) {
	started := time.Now()
	spanCtx, span := e.telemetry.StartNode(exec.ctx, node.ID, string(node.Kind), exec.Scope.TenantID)

	e.l.DebugContext(exec, "Executing node",
		"execution_id", exec.ID,
		"node_id", node.ID,
		"node_kind", node.Kind)

	var output map[string]any
	var err error
	exec.WithScopedContext(spanCtx, func() {
		output, err = e.dispatch(exec, node)
	})

	elapsed := time.Since(started)
	result := NodeExecutionResult{
		NodeID:    node.ID,
		Kind:      node.Kind,
		Status:    NodeSuccess,
		Output:    output,
		StartedAt: started,
		Duration:  elapsed,
	}

	if err != nil {
		fe := AsFlowError(err)
		if fe.NodeID == "" {
			fe.NodeID = node.ID
		}
		result.Status = NodeFailed
		result.Output = nil
		result.Error = fe.Error()
		exec.record(result)
		e.telemetry.EndNode(spanCtx, span, string(node.Kind), string(NodeFailed), elapsed, fe)
		e.l.ErrorContext(exec, "Node failed",
			"execution_id", exec.ID,
			"node_id", node.ID,
			"node_kind", node.Kind,
			"error", fe)
		return nil, fe
	}

	exec.record(result)
	e.telemetry.EndNode(spanCtx, span, string(node.Kind), string(NodeSuccess), elapsed, nil)
	return output, nil
}

func (e *Executor) dispatch(exec *Execution, node *Node) (map[string]any, error) {
	executor, err := e.dispatcher.Executor(node.Kind)
	if err != nil {
		return nil, err
	}

	output, err := executor.Execute(exec, node)
	if err != nil {
		return nil, err
	}

	if node.Kind == KindIteration {
		aggregate, err := e.runIteration(exec, node)
		if err != nil {
			return nil, err
		}
		if output == nil {
			output = map[string]any{}
		}
		output["output"] = Array(aggregate...).Interface()
	}

	// End outputs are the run's result, not new variables.
	if node.Kind != KindEnd {
		for name, v := range output {
			exec.Store(node.ID, name, v)
		}
	}
	return output, nil
}

// route picks the next node id; "" ends the current path.
func (e *Executor) route(exec *Execution, node *Node, output map[string]any) (string, error) {
	switch node.Kind {
	case KindCondition:
		verdict, ok := output[ConditionResultKey].(bool)
		if !ok {
			return "", NewConfigurationError(ConditionResultKey, "condition produced no boolean result")
		}
		if verdict {
			return e.follow(exec, node, EdgeTrue)
		}
		return e.follow(exec, node, EdgeFalse)

	case KindLoop:
		var cfg LoopConfig
		if err := DecodeNodeData(node, &cfg); err != nil {
			return "", err
		}
		exec.LoopCounters[node.ID]++
		count := exec.LoopCounters[node.ID]
		if count <= cfg.MaxIterations {
			exec.Store(node.ID, "index", count)
			return e.follow(exec, node, EdgeTrue, EdgeBody)
		}
		e.l.DebugContext(exec, "Loop exhausted",
			"execution_id", exec.ID,
			"node_id", node.ID,
			"iterations", cfg.MaxIterations)
		return e.follow(exec, node, EdgeFalse, EdgeExit)
	}

	return e.defaultNext(node, exec.Graph.Outgoing(node.ID))
}

// follow takes the first outgoing edge carrying one of labels. A node with no
// matching edge ends the path.
func (e *Executor) follow(exec *Execution, node *Node, labels ...string) (string, error) {
	for _, edge := range exec.Graph.Outgoing(node.ID) {
		for _, label := range labels {
			if edge.Condition == label {
				return edge.Target, nil
			}
		}
	}
	e.l.DebugContext(exec, "No edge for branch, path ends",
		"execution_id", exec.ID,
		"node_id", node.ID,
		"branch", labels[0])
	return "", nil
}

func (e *Executor) defaultNext(node *Node, edges []Edge) (string, error) {
	switch len(edges) {
	case 0:
		return "", nil
	case 1:
		return edges[0].Target, nil
	}

	var unlabelled []Edge
	for _, edge := range edges {
		if edge.Condition == "" {
			unlabelled = append(unlabelled, edge)
		}
	}
	if len(unlabelled) == 1 {
		return unlabelled[0].Target, nil
	}

	return "", &FlowError{
		Type:    ErrorTypeConfiguration,
		Code:    string(ErrorCodeRouteAmbiguous),
		Message: fmt.Sprintf("node has %d outgoing edges and no routing rule to choose between them", len(edges)),
		NodeID:  node.ID,
	}
}
