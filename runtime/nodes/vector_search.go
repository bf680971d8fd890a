package nodes

import (
	"fmt"

	"github.com/BDNK1/agentflow/runtime"
)

type vectorSearchConfig struct {
	Namespace     string           `json:"namespace" validate:"required"`
	QueryVector   []float64        `json:"query_vector"`
	QuerySelector runtime.Selector `json:"query_selector" validate:"omitempty,len=2,dive,required"`
	TopK          int              `json:"top_k" default:"5" validate:"gte=1,lte=100"`
	Filters       map[string]any   `json:"filters"`
	MinScore      *float64         `json:"min_score"`
	OutputName    string           `json:"output_name" default:"results" validate:"required"`
}

// vectorSearchExecutor runs a similarity search scoped to the run's tenant.
type vectorSearchExecutor struct {
	vectors runtime.VectorSearcher
}

func (x *vectorSearchExecutor) Execute(exec *runtime.Execution, node *runtime.Node) (map[string]any, error) {
	var cfg vectorSearchConfig
	if err := runtime.DecodeNodeData(node, &cfg); err != nil {
		return nil, err
	}
	if x.vectors == nil {
		return nil, missingCapability(node, "vector search")
	}

	vector, err := queryVector(exec, &cfg)
	if err != nil {
		return nil, err
	}

	var filters map[string]any
	if cfg.Filters != nil {
		filters, _ = runtime.RenderValue(exec.Variables, cfg.Filters).(map[string]any)
	}

	matches, err := x.vectors.Search(exec, runtime.VectorQuery{
		TenantID:  exec.Scope.TenantID,
		Namespace: exec.Render(cfg.Namespace),
		Vector:    vector,
		TopK:      cfg.TopK,
		Filters:   filters,
	})
	if err != nil {
		return nil, runtime.NewExternalServiceError("vector search", err)
	}

	results := make([]any, 0, len(matches))
	for _, m := range matches {
		if cfg.MinScore != nil && m.Score < *cfg.MinScore {
			continue
		}
		results = append(results, map[string]any{
			"id":       m.ID,
			"score":    m.Score,
			"metadata": m.Metadata,
		})
	}

	output := map[string]any{
		"results": results,
		"count":   len(results),
	}
	output[cfg.OutputName] = results
	return output, nil
}

func queryVector(exec *runtime.Execution, cfg *vectorSearchConfig) ([]float64, error) {
	if len(cfg.QueryVector) > 0 {
		return cfg.QueryVector, nil
	}
	if len(cfg.QuerySelector) == 0 {
		return nil, runtime.NewConfigurationError("query_vector", "either query_vector or query_selector is required")
	}

	v, err := exec.Lookup(cfg.QuerySelector)
	if err != nil {
		return nil, err
	}
	items, ok := v.AsArray()
	if !ok || len(items) == 0 {
		return nil, runtime.NewLookupError(runtime.ErrorCodeTypeMismatch,
			fmt.Sprintf("query vector %v is %s, expected a non-empty array of numbers", []string(cfg.QuerySelector), v.Kind()))
	}
	vector := make([]float64, len(items))
	for i, item := range items {
		n, ok := item.AsNumber()
		if !ok {
			return nil, runtime.NewLookupError(runtime.ErrorCodeTypeMismatch,
				fmt.Sprintf("query vector element %d is %s, expected number", i, item.Kind()))
		}
		vector[i] = n
	}
	return vector, nil
}
