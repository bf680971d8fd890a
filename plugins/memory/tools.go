package memory

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/BDNK1/agentflow/runtime"
)

// ToolFile is the on-disk layout read by LoadToolFile.
//
//	tools:
//	  - id: weather
//	    transport: http
//	    endpoint: https://example.test/weather
//	grants:
//	  tenant-a: [weather]
type ToolFile struct {
	Tools  []runtime.ToolDefinition `yaml:"tools"`
	Grants map[string][]string      `yaml:"grants"`
}

// ToolRepository keeps tool definitions and tenant grants in memory.
type ToolRepository struct {
	mu     sync.RWMutex
	tools  map[string]runtime.ToolDefinition
	grants map[string]map[string]bool
}

var _ runtime.ToolRepository = (*ToolRepository)(nil)

func NewToolRepository(tools ...runtime.ToolDefinition) *ToolRepository {
	r := &ToolRepository{
		tools:  make(map[string]runtime.ToolDefinition),
		grants: make(map[string]map[string]bool),
	}
	for _, t := range tools {
		r.SaveTool(t)
	}
	return r
}

// ReadToolFile parses a YAML tool file. Every tool needs an id.
func ReadToolFile(path string) (*ToolFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tool file: %w", err)
	}

	var file ToolFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing tool file %s: %w", path, err)
	}
	for i, t := range file.Tools {
		if t.ID == "" {
			return nil, fmt.Errorf("tool file %s: tools[%d] has no id", path, i)
		}
	}
	return &file, nil
}

// LoadToolFile reads a YAML tool file into a new repository.
func LoadToolFile(path string) (*ToolRepository, error) {
	file, err := ReadToolFile(path)
	if err != nil {
		return nil, err
	}

	r := NewToolRepository(file.Tools...)
	for tenant, ids := range file.Grants {
		for _, id := range ids {
			r.Grant(tenant, id)
		}
	}
	return r, nil
}

func (r *ToolRepository) SaveTool(t runtime.ToolDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.ID] = t
}

func (r *ToolRepository) Grant(tenantID, toolID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.grants[tenantID] == nil {
		r.grants[tenantID] = make(map[string]bool)
	}
	r.grants[tenantID][toolID] = true
}

func (r *ToolRepository) Revoke(tenantID, toolID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.grants[tenantID], toolID)
}

func (r *ToolRepository) GetTool(ctx context.Context, toolID string) (*runtime.ToolDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[toolID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", runtime.ErrToolNotFound, toolID)
	}
	return &t, nil
}

func (r *ToolRepository) IsToolPermitted(ctx context.Context, tenantID, toolID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.grants[tenantID][toolID], nil
}

// EchoTransport answers every call with the tool id and the parameters it
// received. It stands in for http and mcp transports in offline runs.
type EchoTransport struct{}

var _ runtime.ToolTransport = EchoTransport{}

func (EchoTransport) Invoke(ctx context.Context, tool *runtime.ToolDefinition, params map[string]any) (any, error) {
	return map[string]any{"tool_id": tool.ID, "parameters": params}, nil
}
