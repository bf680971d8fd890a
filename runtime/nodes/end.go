package nodes

import (
	"log/slog"

	"github.com/BDNK1/agentflow/runtime"
)

type endOutput struct {
	Selector runtime.Selector `json:"selector" validate:"required,len=2,dive,required"`
	As       string           `json:"as"`
}

type endConfig struct {
	Outputs []endOutput `json:"outputs" validate:"dive"`
}

// endExecutor projects the run's result. Without configured outputs the whole
// variable bag is returned.
type endExecutor struct {
	l *slog.Logger
}

func (x *endExecutor) Execute(exec *runtime.Execution, node *runtime.Node) (map[string]any, error) {
	var cfg endConfig
	if err := runtime.DecodeNodeData(node, &cfg); err != nil {
		return nil, err
	}

	if len(cfg.Outputs) == 0 {
		return exec.Variables.Snapshot(), nil
	}

	output := make(map[string]any, len(cfg.Outputs))
	for _, o := range cfg.Outputs {
		name := o.As
		if name == "" {
			name = o.Selector[1]
		}
		v, err := exec.LookupOrPlain(o.Selector)
		if err != nil {
			x.l.WarnContext(exec, "End output not set, returning null",
				"execution_id", exec.ID,
				"node_id", node.ID,
				"selector", []string(o.Selector))
			output[name] = nil
			continue
		}
		output[name] = v.Interface()
	}
	return output, nil
}
