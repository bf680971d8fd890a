package nodes

import (
	"github.com/BDNK1/agentflow/runtime"
)

type answerConfig struct {
	Answer string `json:"answer" validate:"required"`
}

type answerExecutor struct{}

func (x *answerExecutor) Execute(exec *runtime.Execution, node *runtime.Node) (map[string]any, error) {
	var cfg answerConfig
	if err := runtime.DecodeNodeData(node, &cfg); err != nil {
		return nil, err
	}
	return map[string]any{"answer": exec.Render(cfg.Answer)}, nil
}
