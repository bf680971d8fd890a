// Package expression evaluates expr-lang expressions against execution variables.
package expression

import (
	"encoding/base64"
	"fmt"
	"reflect"
	"strings"

	"github.com/expr-lang/expr"
)

// Custom expression functions available in all flows
var exprFunctions = []expr.Option{
	expr.Function("base64_encode", func(params ...any) (any, error) {
		s, _ := params[0].(string)
		return base64.StdEncoding.EncodeToString([]byte(s)), nil
	}),
	expr.Function("base64_decode", func(params ...any) (any, error) {
		s, _ := params[0].(string)
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return "", err
		}
		return string(decoded), nil
	}),
	expr.Function("is_empty", func(params ...any) (any, error) {
		return IsEmpty(params[0]), nil
	}),
	expr.Function("includes", func(params ...any) (any, error) {
		return Contains(params[0], params[1]), nil
	}),
}

// Evaluator evaluates expressions using the expr-lang library. Nested maps in
// the environment are flattened with FormatKey so "node-1.text" and
// node_1_text address the same value.
type Evaluator struct{}

func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

func (e *Evaluator) Eval(expression string, env map[string]any) (any, error) {
	return Eval(expression, env)
}

// Eval compiles and runs expression against a flattened copy of env.
func Eval(expression string, env map[string]any) (any, error) {
	context := Flatten(env)
	// Add null as alias for nil (JSON/YAML compatibility)
	context["null"] = nil

	// defined() checks if a path exists in context (distinguishes missing from null)
	definedFn := expr.Function(
		"defined",
		func(params ...any) (any, error) {
			path, ok := params[0].(string)
			if !ok {
				return false, fmt.Errorf("defined() expects string path argument, got %T", params[0])
			}
			_, exists := context[FormatKey(path)]
			return exists, nil
		},
		new(func(string) bool),
	)

	// NOTE: expr.Env MUST come before AllowUndefinedVariables for it to work
	opts := []expr.Option{
		expr.Env(context),
		expr.AllowUndefinedVariables(), // Missing variables return nil instead of compile error
		definedFn,
	}
	opts = append(opts, exprFunctions...)

	program, err := expr.Compile(FormatExpression(expression), opts...)
	if err != nil {
		return nil, err
	}
	return expr.Run(program, context)
}

// Flatten copies env and adds a flat FormatKey entry for every nested map
// member, keeping the nested values addressable too.
func Flatten(env map[string]any) map[string]any {
	out := make(map[string]any, len(env))
	for k, v := range env {
		flattenInto(out, FormatKey(k), v)
	}
	return out
}

func flattenInto(out map[string]any, prefix string, v any) {
	out[prefix] = v
	if m, ok := v.(map[string]any); ok {
		for k, nested := range m {
			flattenInto(out, prefix+"_"+FormatKey(k), nested)
		}
	}
}

// IsEmpty reports whether v is nil, an empty string, or an empty collection.
func IsEmpty(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() == 0
	}
	return false
}

// Contains reports substring containment for strings and element membership
// for arrays.
func Contains(haystack, needle any) bool {
	switch h := haystack.(type) {
	case string:
		return strings.Contains(h, fmt.Sprint(needle))
	case []any:
		for _, e := range h {
			if reflect.DeepEqual(e, needle) || fmt.Sprint(e) == fmt.Sprint(needle) {
				return true
			}
		}
	case map[string]any:
		_, ok := h[fmt.Sprint(needle)]
		return ok
	}
	return false
}
