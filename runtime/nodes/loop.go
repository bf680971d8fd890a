package nodes

import (
	"github.com/BDNK1/agentflow/runtime"
)

// loopExecutor only validates; counting and routing happen in the engine.
type loopExecutor struct{}

func (x *loopExecutor) Execute(exec *runtime.Execution, node *runtime.Node) (map[string]any, error) {
	var cfg runtime.LoopConfig
	return nil, runtime.DecodeNodeData(node, &cfg)
}

// iterationExecutor validates the iteration fields. The engine drives the
// sub-flow once this succeeds.
type iterationExecutor struct{}

func (x *iterationExecutor) Execute(exec *runtime.Execution, node *runtime.Node) (map[string]any, error) {
	var cfg runtime.IterationConfig
	return nil, runtime.DecodeNodeData(node, &cfg)
}
