package nodes

import (
	"fmt"

	"github.com/BDNK1/agentflow/runtime"
)

type startVariable struct {
	Name     string `json:"name" validate:"required"`
	Type     string `json:"type" validate:"omitempty,oneof=string number boolean array object any"`
	Default  any    `json:"default"`
	Required bool   `json:"required"`
}

type startConfig struct {
	Variables []startVariable `json:"variables" validate:"dive"`
}

// startExecutor seeds declared variables. A caller-supplied plain key wins
// over the configured default.
type startExecutor struct{}

func (x *startExecutor) Execute(exec *runtime.Execution, node *runtime.Node) (map[string]any, error) {
	var cfg startConfig
	if err := runtime.DecodeNodeData(node, &cfg); err != nil {
		return nil, err
	}

	output := make(map[string]any, len(cfg.Variables))
	for _, decl := range cfg.Variables {
		v, ok := exec.Variables.GetPlain(decl.Name)
		if !ok && decl.Default != nil {
			v, ok = runtime.ValueOf(decl.Default), true
		}
		if !ok {
			if decl.Required {
				return nil, runtime.NewLookupError(runtime.ErrorCodeVariableNotFound,
					fmt.Sprintf("required variable %q was not supplied and has no default", decl.Name))
			}
			continue
		}
		if !matchesType(decl.Type, v) {
			return nil, runtime.NewLookupError(runtime.ErrorCodeTypeMismatch,
				fmt.Sprintf("variable %q is %s, declared %s", decl.Name, v.Kind(), decl.Type))
		}
		output[decl.Name] = v.Interface()
	}
	return output, nil
}

func matchesType(declared string, v runtime.Value) bool {
	switch declared {
	case "", "any":
		return true
	case "string":
		return v.Kind() == runtime.ValueString
	case "number":
		return v.Kind() == runtime.ValueNumber
	case "boolean":
		return v.Kind() == runtime.ValueBool
	case "array":
		return v.Kind() == runtime.ValueArray
	case "object":
		return v.Kind() == runtime.ValueObject
	}
	return false
}
