package runtime

// LoopConfig is the data of a loop node.
type LoopConfig struct {
	MaxIterations int `json:"max_iterations" validate:"required,gte=1"`
}

// IterationConfig is the data of an iteration node.
type IterationConfig struct {
	IteratorSelector Selector `json:"iterator_selector" validate:"required,len=2,dive,required"`
	OutputSelector   Selector `json:"output_selector" validate:"required,len=2,dive,required"`
	StartNodeID      string   `json:"start_node_id" validate:"required"`
}

// ConditionResultKey is the output name a condition node stores its verdict under.
const ConditionResultKey = "result"
