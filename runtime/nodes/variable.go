package nodes

import (
	"fmt"

	"github.com/BDNK1/agentflow/runtime"
)

const (
	opOverwrite = "overwrite"
	opAppend    = "append"
	opClear     = "clear"
)

type assignment struct {
	Target        runtime.Selector `json:"target" validate:"omitempty,len=2,dive,required"`
	Name          string           `json:"name"`
	Value         any              `json:"value"`
	ValueSelector runtime.Selector `json:"value_selector" validate:"omitempty,len=2,dive,required"`
	Operation     string           `json:"operation" validate:"omitempty,oneof=overwrite append clear"`
}

type variableConfig struct {
	Assignments []assignment `json:"assignments" validate:"required,min=1,dive"`
}

// variableExecutor writes literal or resolved values. Assignments without a
// target land in the node's own namespace and are returned as outputs; other
// targets are written directly.
type variableExecutor struct{}

func (x *variableExecutor) Execute(exec *runtime.Execution, node *runtime.Node) (map[string]any, error) {
	var cfg variableConfig
	if err := runtime.DecodeNodeData(node, &cfg); err != nil {
		return nil, err
	}

	output := make(map[string]any)
	for i, a := range cfg.Assignments {
		key, err := assignmentKey(node, a)
		if err != nil {
			return nil, runtime.NewConfigurationError(fmt.Sprintf("assignments[%d].name", i), err.Error())
		}

		current, _ := exec.Variables.Get(key)
		if key.NodeID == node.ID {
			if v, ok := output[key.Name]; ok {
				current = runtime.ValueOf(v)
			}
		}

		next, err := x.apply(exec, a, current)
		if err != nil {
			return nil, err
		}

		if key.NodeID == node.ID {
			output[key.Name] = next.Interface()
			continue
		}
		exec.Variables.Set(key, next)
	}
	return output, nil
}

func assignmentKey(node *runtime.Node, a assignment) (runtime.VarKey, error) {
	if len(a.Target) > 0 {
		return a.Target.Key()
	}
	if a.Name == "" {
		return runtime.VarKey{}, fmt.Errorf("assignment needs a name or a target")
	}
	return runtime.Key(node.ID, a.Name), nil
}

func (x *variableExecutor) apply(exec *runtime.Execution, a assignment, current runtime.Value) (runtime.Value, error) {
	if a.Operation == opClear {
		return cleared(current), nil
	}

	value, err := assignedValue(exec, a)
	if err != nil {
		return runtime.Null, err
	}

	if a.Operation == opAppend {
		if current.IsNull() {
			return runtime.Array(value), nil
		}
		items, ok := current.AsArray()
		if !ok {
			return runtime.Null, runtime.NewLookupError(runtime.ErrorCodeTypeMismatch,
				fmt.Sprintf("cannot append to %s value", current.Kind()))
		}
		next := make([]runtime.Value, len(items), len(items)+1)
		copy(next, items)
		return runtime.Array(append(next, value)...), nil
	}
	return value, nil
}

func assignedValue(exec *runtime.Execution, a assignment) (runtime.Value, error) {
	if len(a.ValueSelector) > 0 {
		return exec.Lookup(a.ValueSelector)
	}
	return runtime.ValueOf(runtime.RenderValue(exec.Variables, a.Value)), nil
}

// cleared returns the empty value of current's kind.
func cleared(current runtime.Value) runtime.Value {
	switch current.Kind() {
	case runtime.ValueString:
		return runtime.String("")
	case runtime.ValueNumber:
		return runtime.Number(0)
	case runtime.ValueBool:
		return runtime.Bool(false)
	case runtime.ValueArray:
		return runtime.Array()
	case runtime.ValueObject:
		return runtime.Object(nil)
	}
	return runtime.Null
}
