package nodes

import (
	"fmt"
	"strconv"

	"github.com/BDNK1/agentflow/runtime"
	"github.com/BDNK1/agentflow/runtime/expression"
)

// operatorExpressions maps comparison operators to expr-lang programs over
// the resolved left and right operands.
var operatorExpressions = map[string]string{
	"==":           "left == right",
	"!=":           "left != right",
	">":            "left > right",
	"<":            "left < right",
	">=":           "left >= right",
	"<=":           "left <= right",
	"contains":     "includes(left, right)",
	"not_contains": "!includes(left, right)",
	"empty":        "is_empty(left)",
	"not_empty":    "!is_empty(left)",
}

var orderingOperators = map[string]bool{">": true, "<": true, ">=": true, "<=": true}

type comparison struct {
	Selector runtime.Selector `json:"selector" validate:"required,len=2,dive,required"`
	Operator string           `json:"operator" validate:"required"`
	Value    any              `json:"value"`
}

type conditionConfig struct {
	Conditions      []comparison     `json:"conditions" validate:"dive"`
	LogicalOperator string           `json:"logical_operator" default:"and" validate:"oneof=and or"`
	Expression      string           `json:"expression"`
	Selector        runtime.Selector `json:"selector" validate:"omitempty,len=2,dive,required"`
	Operator        string           `json:"operator"`
	Value           any              `json:"value"`
}

// comparisons folds the single-condition shorthand into the list form.
func (c *conditionConfig) comparisons() []comparison {
	if len(c.Selector) > 0 {
		return append([]comparison{{Selector: c.Selector, Operator: c.Operator, Value: c.Value}}, c.Conditions...)
	}
	return c.Conditions
}

// conditionExecutor evaluates comparisons and stores the verdict under
// "result". Routing on the verdict lives in the engine.
type conditionExecutor struct {
	evaluator runtime.ExpressionEvaluator
}

func newConditionExecutor(evaluator runtime.ExpressionEvaluator) *conditionExecutor {
	if evaluator == nil {
		evaluator = expression.NewEvaluator()
	}
	return &conditionExecutor{evaluator: evaluator}
}

func (x *conditionExecutor) Execute(exec *runtime.Execution, node *runtime.Node) (map[string]any, error) {
	var cfg conditionConfig
	if err := runtime.DecodeNodeData(node, &cfg); err != nil {
		return nil, err
	}

	if cfg.Expression != "" {
		verdict, err := x.evalExpression(exec, cfg.Expression)
		if err != nil {
			return nil, err
		}
		return map[string]any{runtime.ConditionResultKey: verdict}, nil
	}

	comparisons := cfg.comparisons()
	if len(comparisons) == 0 {
		return nil, runtime.NewConfigurationError("conditions", "condition node needs conditions, a selector, or an expression")
	}

	verdict := cfg.LogicalOperator == "and"
	for i, c := range comparisons {
		ok, err := x.compare(exec, i, c)
		if err != nil {
			return nil, err
		}
		if cfg.LogicalOperator == "or" && ok {
			verdict = true
			break
		}
		if cfg.LogicalOperator == "and" && !ok {
			verdict = false
			break
		}
	}
	return map[string]any{runtime.ConditionResultKey: verdict}, nil
}

func (x *conditionExecutor) compare(exec *runtime.Execution, i int, c comparison) (bool, error) {
	field := fmt.Sprintf("conditions[%d].operator", i)
	program, ok := operatorExpressions[c.Operator]
	if !ok {
		return false, runtime.NewConfigurationError(field, fmt.Sprintf("unknown operator %q", c.Operator))
	}

	left, err := exec.Lookup(c.Selector)
	if err != nil {
		if c.Operator != "empty" && c.Operator != "not_empty" {
			return false, err
		}
		left = runtime.Null
	}

	var right any
	if s, isString := c.Value.(string); isString {
		right = exec.Render(s)
	} else {
		right = c.Value
	}
	leftAny, rightAny := coerce(left.Interface(), right)

	if orderingOperators[c.Operator] {
		_, leftNum := leftAny.(float64)
		_, rightNum := rightAny.(float64)
		if !leftNum || !rightNum {
			return false, runtime.NewLookupError(runtime.ErrorCodeTypeMismatch,
				fmt.Sprintf("operator %s needs numbers, got %s and %T", c.Operator, left.Kind(), right))
		}
	}

	result, err := x.evaluator.Eval(program, map[string]any{"left": leftAny, "right": rightAny})
	if err != nil {
		return false, runtime.NewConfigurationError(field, fmt.Sprintf("evaluating %s: %v", c.Operator, err))
	}
	verdict, _ := result.(bool)
	return verdict, nil
}

func (x *conditionExecutor) evalExpression(exec *runtime.Execution, expr string) (bool, error) {
	result, err := x.evaluator.Eval(expr, exec.Variables.Env())
	if err != nil {
		return false, runtime.NewConfigurationError("expression", fmt.Sprintf("evaluating %q: %v", expr, err))
	}
	verdict, ok := result.(bool)
	if !ok {
		return false, runtime.NewLookupError(runtime.ErrorCodeTypeMismatch,
			fmt.Sprintf("expression %q produced %T, expected bool", expr, result))
	}
	return verdict, nil
}

// coerce brings the literal right operand to the left operand's type where
// the conversion is lossless, so "3" compares equal to 3.
func coerce(left, right any) (any, any) {
	right = normaliseNumber(right)
	switch l := left.(type) {
	case float64:
		if s, ok := right.(string); ok {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return l, f
			}
		}
	case bool:
		if s, ok := right.(string); ok {
			if b, err := strconv.ParseBool(s); err == nil {
				return l, b
			}
		}
	case string:
		if f, ok := right.(float64); ok {
			if lf, err := strconv.ParseFloat(l, 64); err == nil {
				return lf, f
			}
			return l, strconv.FormatFloat(f, 'f', -1, 64)
		}
	}
	return left, right
}

func normaliseNumber(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	}
	return v
}
