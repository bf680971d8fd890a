// Package config loads agentflow.yaml for the CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/BDNK1/agentflow/factory"
)

// File mirrors agentflow.yaml:
//
//	log:
//	  level: info
//	  format: text
//	telemetry:
//	  enabled: true
//	  endpoint: ${OTEL_ENDPOINT:localhost:4317}
//	engine:
//	  chat: openai
//	  vectors: postgres
//	  tools: redis
//	plugins:
//	  openai:
//	    api_key: ${OPENAI_API_KEY}
//	  postgres:
//	    connection_string: ${DATABASE_URL}
//
// Every string may reference the environment as ${VAR} or ${VAR:default}.
type File struct {
	Log       map[string]any            `yaml:"log"`
	Telemetry map[string]any            `yaml:"telemetry"`
	Engine    map[string]any            `yaml:"engine"`
	Plugins   map[string]map[string]any `yaml:"plugins"`
}

// Factory returns the engine part of the file.
func (f *File) Factory() factory.Config {
	return factory.Config{Engine: f.Engine, Plugins: f.Plugins}
}

// Load reads and env-resolves the config at path. A relative engine.tool_file
// is taken relative to the config's directory and may not leave it.
func Load(path string, lookup func(string) (string, bool)) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	resolved, err := ResolveTree(raw, lookup)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	// Round trip through yaml to land the resolved tree in typed sections.
	out, err := yaml.Marshal(resolved)
	if err != nil {
		return nil, err
	}
	f := &File{}
	if err := yaml.Unmarshal(out, f); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if toolFile, ok := f.Engine["tool_file"].(string); ok && toolFile != "" {
		abs, err := withinDir(filepath.Dir(path), toolFile)
		if err != nil {
			return nil, fmt.Errorf("engine.tool_file: %w", err)
		}
		f.Engine["tool_file"] = abs
	}
	return f, nil
}

// withinDir resolves target against dir and rejects paths escaping it.
// Absolute targets are accepted as given.
func withinDir(dir, target string) (string, error) {
	if filepath.IsAbs(target) {
		return target, nil
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %q: %w", dir, err)
	}
	abs := filepath.Join(absDir, target)
	rel, err := filepath.Rel(absDir, abs)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected: %q escapes %q", target, dir)
	}
	return abs, nil
}
