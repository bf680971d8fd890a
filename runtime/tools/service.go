// Package tools checks tenant access to registered tools, validates call
// parameters against each tool's input schema and dispatches calls to the
// transport the tool is registered with.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/BDNK1/agentflow/runtime"
)

// Transport names used in ToolDefinition.Transport.
const (
	TransportHTTP  = "http"
	TransportMCP   = "mcp"
	TransportLocal = "local"
)

// Service implements runtime.ToolInvoker on top of a repository and a set of
// named transports.
type Service struct {
	l          *slog.Logger
	repo       runtime.ToolRepository
	transports map[string]runtime.ToolTransport
}

var _ runtime.ToolInvoker = (*Service)(nil)

func NewService(l *slog.Logger, repo runtime.ToolRepository, transports map[string]runtime.ToolTransport) *Service {
	if l == nil {
		l = slog.Default()
	}
	if transports == nil {
		transports = map[string]runtime.ToolTransport{}
	}
	return &Service{l: l, repo: repo, transports: transports}
}

// Register adds or replaces the transport serving name.
func (s *Service) Register(name string, t runtime.ToolTransport) {
	s.transports[name] = t
}

// CheckPermission allows the owning tenant and public tools without a grant
// lookup; everything else needs an explicit grant in the repository.
func (s *Service) CheckPermission(ctx context.Context, tenantID, toolID string) (bool, error) {
	tool, err := s.tool(ctx, toolID)
	if err != nil {
		return false, err
	}
	if tool.Public || (tool.TenantID != "" && tool.TenantID == tenantID) {
		return true, nil
	}
	return s.repo.IsToolPermitted(ctx, tenantID, toolID)
}

func (s *Service) Call(ctx context.Context, toolID string, params map[string]any) (any, error) {
	tool, err := s.tool(ctx, toolID)
	if err != nil {
		return nil, err
	}

	// Normalise to JSON shapes (float64 numbers, []any, map[string]any).
	normalised, _ := runtime.ValueOf(params).Interface().(map[string]any)
	if normalised == nil {
		normalised = map[string]any{}
	}

	if err := ValidateParameters(tool, normalised); err != nil {
		return nil, err
	}

	transport, ok := s.transports[tool.Transport]
	if !ok {
		return nil, runtime.NewConfigurationError("transport",
			fmt.Sprintf("tool %q uses transport %q which is not configured", tool.ID, tool.Transport))
	}

	s.l.DebugContext(ctx, "Invoking tool",
		"tool_id", tool.ID,
		"transport", tool.Transport,
		"endpoint", tool.Endpoint)

	return transport.Invoke(ctx, tool, normalised)
}

func (s *Service) tool(ctx context.Context, toolID string) (*runtime.ToolDefinition, error) {
	if s.repo == nil {
		return nil, runtime.NewConfigurationError("tool_id", "no tool repository configured")
	}
	tool, err := s.repo.GetTool(ctx, toolID)
	if errors.Is(err, runtime.ErrToolNotFound) {
		return nil, runtime.NewLookupError(runtime.ErrorCodeToolNotFound, fmt.Sprintf("tool %q is not registered", toolID))
	}
	if err != nil {
		return nil, err
	}
	return tool, nil
}

// ValidateParameters checks params against the tool's JSON schema. Tools
// without a schema accept anything.
func ValidateParameters(tool *runtime.ToolDefinition, params map[string]any) error {
	if len(tool.InputSchema) == 0 {
		return nil
	}

	schema, err := compileSchema(tool.InputSchema)
	if err != nil {
		return runtime.NewConfigurationError("input_schema", fmt.Sprintf("tool %q has an invalid input schema: %v", tool.ID, err))
	}

	if err := schema.VisitJSON(params, openapi3.MultiErrors()); err != nil {
		fe := runtime.NewConfigurationError("parameters", fmt.Sprintf("parameters for tool %q do not match its schema: %s", tool.ID, schemaMessage(err)))
		fe.Cause = err
		return fe
	}
	return nil
}

func compileSchema(raw map[string]any) (*openapi3.Schema, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	schema := openapi3.NewSchema()
	if err := schema.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return schema, nil
}

func schemaMessage(err error) string {
	var multi openapi3.MultiError
	if !errors.As(err, &multi) {
		return err.Error()
	}
	msgs := make([]string, 0, len(multi))
	for _, e := range multi {
		var se *openapi3.SchemaError
		if errors.As(e, &se) {
			path := strings.Join(se.JSONPointer(), ".")
			if path == "" {
				msgs = append(msgs, se.Reason)
				continue
			}
			msgs = append(msgs, path+": "+se.Reason)
			continue
		}
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}
