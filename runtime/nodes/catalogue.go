// Package nodes holds the executor for every node kind.
package nodes

import (
	"fmt"
	"log/slog"

	"github.com/BDNK1/agentflow/runtime"
)

// Capabilities are the external services node executors call. Any of them may
// be nil; nodes that need a missing capability fail with a configuration error.
type Capabilities struct {
	Chat    runtime.ChatCompleter
	Vectors runtime.VectorSearcher
	Tools   runtime.ToolInvoker
}

// Catalogue resolves node kinds to executors. It holds no per-run state and is
// shared by concurrent executions.
type Catalogue struct {
	start     *startExecutor
	end       *endExecutor
	variable  *variableExecutor
	condition *conditionExecutor
	loop      *loopExecutor
	iteration *iterationExecutor
	extractor *extractorExecutor
	llm       *llmExecutor
	vector    *vectorSearchExecutor
	tool      *toolExecutor
	answer    *answerExecutor
}

var _ runtime.Dispatcher = (*Catalogue)(nil)

func NewCatalogue(l *slog.Logger, caps Capabilities, evaluator runtime.ExpressionEvaluator) *Catalogue {
	if l == nil {
		l = slog.Default()
	}
	return &Catalogue{
		start:     &startExecutor{},
		end:       &endExecutor{l: l},
		variable:  &variableExecutor{},
		condition: newConditionExecutor(evaluator),
		loop:      &loopExecutor{},
		iteration: &iterationExecutor{},
		extractor: &extractorExecutor{l: l, chat: caps.Chat},
		llm:       &llmExecutor{chat: caps.Chat},
		vector:    &vectorSearchExecutor{vectors: caps.Vectors},
		tool:      &toolExecutor{l: l, tools: caps.Tools},
		answer:    &answerExecutor{},
	}
}

func (c *Catalogue) Executor(kind runtime.NodeKind) (runtime.NodeExecutor, error) {
	switch kind {
	case runtime.KindStart:
		return c.start, nil
	case runtime.KindEnd:
		return c.end, nil
	case runtime.KindVariable:
		return c.variable, nil
	case runtime.KindCondition:
		return c.condition, nil
	case runtime.KindLoop:
		return c.loop, nil
	case runtime.KindIteration:
		return c.iteration, nil
	case runtime.KindParameterExtractor:
		return c.extractor, nil
	case runtime.KindLLM:
		return c.llm, nil
	case runtime.KindVectorSearch:
		return c.vector, nil
	case runtime.KindMCPTool:
		return c.tool, nil
	case runtime.KindAnswer:
		return c.answer, nil
	}
	return nil, runtime.NewConfigurationError("type", fmt.Sprintf("no executor for node type %q", kind))
}

func missingCapability(node *runtime.Node, capability string) *runtime.FlowError {
	return &runtime.FlowError{
		Type:    runtime.ErrorTypeConfiguration,
		Code:    string(runtime.ErrorCodeCapabilityMissing),
		Message: fmt.Sprintf("node type %q needs a %s capability and none is configured", node.Kind, capability),
		NodeID:  node.ID,
	}
}
