// Package flowfile reads flow definitions from YAML or JSON files.
package flowfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/BDNK1/agentflow/runtime"
)

// document accepts nodes and edges at the top level or under "graph".
type document struct {
	runtime.FlowDefinition `yaml:",inline"`
	Graph                  *runtime.FlowDefinition `json:"graph" yaml:"graph"`
}

// Load parses the flow at path. The format follows the extension: .json is
// JSON, .yaml and .yml are YAML. A flow without an id takes the file name.
func Load(path string) (*runtime.FlowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read flow file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	flow, err := Parse(data, ext)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if flow.ID == "" {
		flow.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return flow, nil
}

// Parse decodes data in the format named by ext (".json", ".yaml", ".yml").
func Parse(data []byte, ext string) (*runtime.FlowDefinition, error) {
	var doc document
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported flow file extension %q", ext)
	}

	flow := doc.FlowDefinition
	if doc.Graph != nil {
		flow.Nodes = doc.Graph.Nodes
		flow.Edges = doc.Graph.Edges
	}

	// YAML decodes integers as int; normalise node data to JSON-like values.
	for i := range flow.Nodes {
		if flow.Nodes[i].Data == nil {
			continue
		}
		data, _ := runtime.ValueOf(flow.Nodes[i].Data).Interface().(map[string]any)
		flow.Nodes[i].Data = data
	}
	return &flow, nil
}
