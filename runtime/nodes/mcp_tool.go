package nodes

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/BDNK1/agentflow/runtime"
)

type toolConfig struct {
	ToolID     string         `json:"tool_id" validate:"required"`
	Parameters map[string]any `json:"parameters"`
	OutputName string         `json:"output_name" default:"result" validate:"required"`
}

// toolExecutor invokes a registered tool after checking the tenant may use it.
type toolExecutor struct {
	l     *slog.Logger
	tools runtime.ToolInvoker
}

func (x *toolExecutor) Execute(exec *runtime.Execution, node *runtime.Node) (map[string]any, error) {
	var cfg toolConfig
	if err := runtime.DecodeNodeData(node, &cfg); err != nil {
		return nil, err
	}
	if x.tools == nil {
		return nil, missingCapability(node, "tool invocation")
	}

	permitted, err := x.tools.CheckPermission(exec, exec.Scope.TenantID, cfg.ToolID)
	if err != nil {
		return nil, toolError("tool permission check", err)
	}
	if !permitted {
		x.l.WarnContext(exec, "Tool not permitted for tenant",
			"execution_id", exec.ID,
			"node_id", node.ID,
			"tenant_id", exec.Scope.TenantID,
			"tool_id", cfg.ToolID)
		return nil, runtime.NewLookupError(runtime.ErrorCodeToolNotPermitted,
			fmt.Sprintf("tool %q is not available to tenant %q", cfg.ToolID, exec.Scope.TenantID))
	}

	params := map[string]any{}
	if cfg.Parameters != nil {
		params, _ = runtime.RenderValue(exec.Variables, cfg.Parameters).(map[string]any)
	}

	result, err := x.tools.Call(exec, cfg.ToolID, params)
	if err != nil {
		return nil, toolError("tool call", err)
	}

	return map[string]any{
		"result":       result,
		cfg.OutputName: result,
	}, nil
}

// toolError passes flow errors raised by the tool service through unchanged
// and wraps everything else as an external service failure.
func toolError(capability string, err error) error {
	var fe *runtime.FlowError
	if errors.As(err, &fe) {
		return fe
	}
	return runtime.NewExternalServiceError(capability, err)
}
