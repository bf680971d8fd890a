package tools

import (
	"context"
	"fmt"

	"github.com/BDNK1/agentflow/runtime"
)

// LocalTransport runs tools implemented as plugin tasks inside the process.
// The tool's endpoint names the task, e.g. "text.wordCount".
type LocalTransport struct {
	container *runtime.Container
}

func NewLocalTransport(container *runtime.Container) *LocalTransport {
	return &LocalTransport{container: container}
}

func (t *LocalTransport) Invoke(ctx context.Context, tool *runtime.ToolDefinition, params map[string]any) (any, error) {
	task := t.container.GetTask(tool.Endpoint)
	if task == nil {
		return nil, runtime.NewConfigurationError("endpoint",
			fmt.Sprintf("tool %q points at unknown local task %q", tool.ID, tool.Endpoint))
	}
	out, err := task.Execute(ctx, params)
	if err != nil {
		return nil, runtime.NewServiceError(runtime.ServiceErrorProvider, err).
			WithMetadata("tool_id", tool.ID)
	}
	return out, nil
}
