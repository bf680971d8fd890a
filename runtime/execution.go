package runtime

import (
	"context"
	"time"

	"github.com/google/uuid"
)

var _ context.Context = &Execution{}

// Scope identifies who a run acts for. It is fixed when the execution is
// created and never stored in the variable bag.
type Scope struct {
	TenantID  string `json:"tenant_id"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id,omitempty"`
}

// NodeStatus is the outcome of a single node visit.
type NodeStatus string

const (
	NodeSuccess NodeStatus = "success"
	NodeFailed  NodeStatus = "failed"
	NodeSkipped NodeStatus = "skipped"
)

// NodeExecutionResult records one node visit.
type NodeExecutionResult struct {
	NodeID    string         `json:"node_id"`
	Kind      NodeKind       `json:"kind"`
	Status    NodeStatus     `json:"status"`
	Output    map[string]any `json:"output,omitempty"`
	Error     string         `json:"error,omitempty"`
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
}

// Execution is the mutable state of one run. It implements context.Context by
// delegating to the caller's context, so executors pass it straight to
// capability clients. It is owned by a single goroutine.
type Execution struct {
	ID            string
	Scope         Scope
	Graph         *Graph
	Variables     *VariablePool
	CurrentNodeID string
	VisitedNodes  []string
	LoopCounters  map[string]int
	NodeResults   map[string][]NodeExecutionResult
	Log           []NodeExecutionResult

	visits int
	ctx    context.Context
}

func NewExecution(ctx context.Context, graph *Graph, scope Scope, initial map[string]any) *Execution {
	if ctx == nil {
		ctx = context.Background()
	}
	exec := &Execution{
		ID:           uuid.New().String(),
		Scope:        scope,
		Graph:        graph,
		Variables:    NewVariablePool(),
		LoopCounters: make(map[string]int),
		NodeResults:  make(map[string][]NodeExecutionResult),
		Log:          []NodeExecutionResult{},
		ctx:          ctx,
	}
	exec.Variables.Seed(initial)
	return exec
}

// context.Context implementation, delegating to the embedded ctx so that real
// timeouts and cancellations propagate through slog and capability calls.

func (e *Execution) Deadline() (deadline time.Time, ok bool) {
	return e.ctx.Deadline()
}

func (e *Execution) Done() <-chan struct{} {
	return e.ctx.Done()
}

func (e *Execution) Err() error {
	return e.ctx.Err()
}

type scopeKey struct{}

func (e *Execution) Value(key any) any {
	if key == (scopeKey{}) {
		return e.Scope
	}
	return e.ctx.Value(key)
}

// ScopeFromContext returns the scope of the execution ctx derives from.
// Plugin tasks use it to pin their writes to the calling tenant.
func ScopeFromContext(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(scopeKey{}).(Scope)
	return s, ok && s.TenantID != ""
}

// WithScopedContext temporarily swaps the execution context while fn runs.
func (e *Execution) WithScopedContext(ctx context.Context, fn func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	prev := e.ctx
	e.ctx = ctx
	defer func() {
		e.ctx = prev
	}()
	fn()
}

// Store saves v under the node's namespace.
func (e *Execution) Store(nodeID, name string, v any) {
	e.Variables.Set(Key(nodeID, name), ValueOf(v))
}

// Lookup resolves a selector against node outputs only. A value that no
// node has produced is a lookup error, even when a plain key of the same name
// exists.
func (e *Execution) Lookup(sel Selector) (Value, error) {
	return e.lookup(sel, e.Variables.Get)
}

// LookupOrPlain resolves a selector like Lookup and then falls back to the
// caller's plain key carrying the selector's name.
func (e *Execution) LookupOrPlain(sel Selector) (Value, error) {
	return e.lookup(sel, e.Variables.Resolve)
}

func (e *Execution) lookup(sel Selector, get func(VarKey) (Value, bool)) (Value, error) {
	key, err := sel.Key()
	if err != nil {
		return Null, err
	}
	v, ok := get(key)
	if !ok {
		return Null, NewLookupError(ErrorCodeVariableNotFound, "variable "+key.String()+" not found")
	}
	return v, nil
}

// Render substitutes {{#node.name#}} placeholders in text.
func (e *Execution) Render(text string) string {
	return RenderTemplate(e.Variables, text)
}

// Visits is the number of node visits performed so far, sub-flows included.
func (e *Execution) Visits() int {
	return e.visits
}

func (e *Execution) visit(n *Node) {
	e.visits++
	e.CurrentNodeID = n.ID
	e.VisitedNodes = append(e.VisitedNodes, n.ID)
}

func (e *Execution) record(r NodeExecutionResult) {
	e.NodeResults[r.NodeID] = append(e.NodeResults[r.NodeID], r)
	e.Log = append(e.Log, r)
}
