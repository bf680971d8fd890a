package runtime

import (
	"fmt"
)

// runIteration maps the iteration's sub-flow over its input array. Each element
// runs the shared stepping loop from start_node_id until the output node has
// executed. The first failing element aborts the whole iteration.
func (e *Executor) runIteration(exec *Execution, node *Node) ([]Value, error) {
	var cfg IterationConfig
	if err := DecodeNodeData(node, &cfg); err != nil {
		return nil, err
	}

	if _, ok := exec.Graph.Node(cfg.StartNodeID); !ok {
		return nil, NewConfigurationError("start_node_id", fmt.Sprintf("start node %q not found", cfg.StartNodeID))
	}
	outputKey, _ := cfg.OutputSelector.Key()
	if _, ok := exec.Graph.Node(outputKey.NodeID); !ok {
		return nil, NewConfigurationError("output_selector", fmt.Sprintf("output node %q not found", outputKey.NodeID))
	}

	input, err := exec.Lookup(cfg.IteratorSelector)
	if err != nil {
		return nil, err
	}
	items, ok := input.AsArray()
	if !ok {
		return nil, NewLookupError(ErrorCodeTypeMismatch,
			fmt.Sprintf("iterator %v is %s, expected array", []string(cfg.IteratorSelector), input.Kind()))
	}

	loops := e.loopsWithin(exec.Graph, cfg.StartNodeID, node.ID)
	aggregate := make([]Value, 0, len(items))

	// A failed iteration leaves the output key as it was before the first element.
	prior, hadPrior := exec.Variables.Get(outputKey)
	restore := func() {
		if hadPrior {
			exec.Variables.Set(outputKey, prior)
			return
		}
		exec.Variables.Delete(outputKey)
	}

	e.l.InfoContext(exec, "Starting iteration",
		"execution_id", exec.ID,
		"node_id", node.ID,
		"items", len(items))

	for i, item := range items {
		for _, id := range loops {
			delete(exec.LoopCounters, id)
		}
		exec.LoopCounters[node.ID]++
		exec.Variables.Set(Key(cfg.StartNodeID, "item"), item)
		exec.Variables.Set(Key(cfg.StartNodeID, "index"), Number(float64(i)))

		outcome, err := e.runSteps(exec, cfg.StartNodeID, stopAt(outputKey.NodeID))
		if err != nil {
			e.l.ErrorContext(exec, "Iteration element failed",
				"execution_id", exec.ID,
				"node_id", node.ID,
				"index", i,
				"error", err)
			restore()
			return nil, err
		}
		if !outcome.stopped {
			restore()
			return nil, &FlowError{
				Type:    ErrorTypeConfiguration,
				Code:    string(ErrorCodeSubflowIncomplete),
				Message: fmt.Sprintf("sub-flow from %q ended at %q before reaching output node %q", cfg.StartNodeID, outcome.last.ID, outputKey.NodeID),
				NodeID:  node.ID,
				Field:   "output_selector",
			}
		}

		v, ok := exec.Variables.Get(outputKey)
		if !ok {
			restore()
			return nil, NewLookupError(ErrorCodeVariableNotFound,
				fmt.Sprintf("iteration output %s not set by element %d", outputKey, i))
		}
		aggregate = append(aggregate, v)
	}

	exec.Variables.Set(outputKey, Array(aggregate...))
	return aggregate, nil
}

// loopsWithin lists loop nodes reachable from start, excluding the iteration
// node itself. Their counters restart for every element.
func (e *Executor) loopsWithin(g *Graph, start, iterationID string) []string {
	var loops []string
	for _, id := range g.Reachable(start) {
		if id == iterationID {
			continue
		}
		if n, _ := g.Node(id); n.Kind == KindLoop {
			loops = append(loops, id)
		}
	}
	return loops
}
