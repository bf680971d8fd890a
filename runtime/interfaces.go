package runtime

import (
	"context"
	"errors"
)

// Lifecycle is implemented by plugins that hold connections or clients.
// Initialize is called once after config validation, Shutdown in reverse
// registration order.
type Lifecycle interface {
	Initialize(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// ExpressionEvaluator evaluates a boolean or value expression against an environment.
type ExpressionEvaluator interface {
	Eval(expression string, env map[string]any) (any, error)
}

// NodeExecutor runs one node kind against the execution state. Returned
// outputs are stored by the engine under the node's namespace.
type NodeExecutor interface {
	Execute(exec *Execution, node *Node) (map[string]any, error)
}

// Dispatcher resolves the executor for a node kind.
type Dispatcher interface {
	Executor(kind NodeKind) (NodeExecutor, error)
}

type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content"`
}

// ModelConfig selects the provider model and sampling parameters for one call.
type ModelConfig struct {
	Provider    string   `json:"provider,omitempty"`
	Name        string   `json:"name" validate:"required"`
	Temperature *float64 `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	TopP        *float64 `json:"top_p,omitempty" validate:"omitempty,gte=0,lte=1"`
	MaxTokens   int      `json:"max_tokens,omitempty" validate:"gte=0"`
	Stop        []string `json:"stop,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type ChatCompletion struct {
	Text         string `json:"text"`
	Usage        Usage  `json:"usage"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// ChatCompleter calls a chat-completion provider on behalf of a tenant.
type ChatCompleter interface {
	Complete(ctx context.Context, tenantID string, messages []ChatMessage, model ModelConfig) (*ChatCompletion, error)
}

type VectorQuery struct {
	TenantID  string         `json:"tenant_id"`
	Namespace string         `json:"namespace"`
	Vector    []float64      `json:"vector"`
	TopK      int            `json:"top_k"`
	Filters   map[string]any `json:"filters,omitempty"`
}

type VectorMatch struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// VectorSearcher runs a tenant-scoped similarity search. Matches are ordered
// by descending score.
type VectorSearcher interface {
	Search(ctx context.Context, query VectorQuery) ([]VectorMatch, error)
}

// ToolDefinition describes a registered external tool.
type ToolDefinition struct {
	ID          string         `json:"id" yaml:"id"`
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	TenantID    string         `json:"tenant_id,omitempty" yaml:"tenant_id,omitempty"`
	Public      bool           `json:"public,omitempty" yaml:"public,omitempty"`
	Transport   string         `json:"transport" yaml:"transport"`
	Endpoint    string         `json:"endpoint" yaml:"endpoint"`
	Method      string         `json:"method,omitempty" yaml:"method,omitempty"`
	Encoding    string         `json:"encoding,omitempty" yaml:"encoding,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty" yaml:"input_schema,omitempty"`
}

// ErrToolNotFound is returned, wrapped, by repositories that do not know a tool id.
var ErrToolNotFound = errors.New("tool not found")

// ToolRepository resolves tool ids to their definitions and grants.
type ToolRepository interface {
	GetTool(ctx context.Context, toolID string) (*ToolDefinition, error)
	IsToolPermitted(ctx context.Context, tenantID, toolID string) (bool, error)
}

// ToolInvoker checks tenant permission and dispatches tool calls. Parameters
// are validated against the tool's declared schema before dispatch.
type ToolInvoker interface {
	CheckPermission(ctx context.Context, tenantID, toolID string) (bool, error)
	Call(ctx context.Context, toolID string, params map[string]any) (any, error)
}

// ToolTransport delivers a validated call to where the tool lives.
type ToolTransport interface {
	Invoke(ctx context.Context, tool *ToolDefinition, params map[string]any) (any, error)
}
