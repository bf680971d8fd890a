// Package mcp delivers tool calls to Model Context Protocol servers.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/localrivet/gomcp/client"

	"github.com/BDNK1/agentflow/runtime"
)

type Config struct {
	CallTimeout time.Duration `yaml:"call_timeout" default:"30s" validate:"gte=1s"`
}

// Session is the part of a gomcp client the transport uses.
type Session interface {
	CallTool(name string, args map[string]any, opts ...client.RequestOption) (any, error)
	Close() error
}

var _ Session = client.Client(nil)

// DialFunc opens a session to an MCP endpoint such as "http://host/mcp" or
// "ws://host/mcp".
type DialFunc func(endpoint string) (Session, error)

func dialEndpoint(endpoint string) (Session, error) {
	return client.NewClient(endpoint)
}

// ToolTransport keeps one session per endpoint and reuses it across calls.
type ToolTransport struct {
	Config Config
	Logger *slog.Logger
	Dial   DialFunc

	mu       sync.Mutex
	sessions map[string]Session
}

var (
	_ runtime.ToolTransport = (*ToolTransport)(nil)
	_ runtime.Lifecycle     = (*ToolTransport)(nil)
)

func (t *ToolTransport) Initialize(ctx context.Context) error {
	if t.Logger == nil {
		t.Logger = slog.Default()
	}
	if t.Dial == nil {
		t.Dial = dialEndpoint
	}
	t.mu.Lock()
	t.sessions = make(map[string]Session)
	t.mu.Unlock()
	return nil
}

// Shutdown closes every open session.
func (t *ToolTransport) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var errs []error
	for endpoint, s := range t.sessions {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", endpoint, err))
		}
	}
	t.sessions = make(map[string]Session)
	return errors.Join(errs...)
}

func (t *ToolTransport) Invoke(ctx context.Context, tool *runtime.ToolDefinition, params map[string]any) (any, error) {
	session, err := t.session(tool.Endpoint)
	if err != nil {
		return nil, runtime.NewServiceError(runtime.ServiceErrorNetwork, err).
			WithMetadata("tool_id", tool.ID)
	}

	name := tool.Name
	if name == "" {
		name = tool.ID
	}

	callCtx, cancel := context.WithTimeout(ctx, t.Config.CallTimeout)
	defer cancel()

	type reply struct {
		result any
		err    error
	}
	done := make(chan reply, 1)
	go func() {
		result, err := session.CallTool(name, params, client.WithRequestTimeoutOption(t.Config.CallTimeout))
		done <- reply{result, err}
	}()

	var r reply
	select {
	case r = <-done:
	case <-callCtx.Done():
		return nil, runtime.NewServiceError(runtime.ServiceErrorTimeout, callCtx.Err()).
			WithMetadata("tool_id", tool.ID)
	}

	if r.err != nil {
		return nil, runtime.NewServiceError(runtime.ServiceErrorProvider, r.err).
			WithMetadata("tool_id", tool.ID)
	}

	t.Logger.DebugContext(ctx, "MCP tool call finished",
		"tool_id", tool.ID,
		"endpoint", tool.Endpoint)
	return decodeResult(tool.ID, r.result)
}

func (t *ToolTransport) session(endpoint string) (Session, error) {
	if endpoint == "" {
		return nil, errors.New("tool has no MCP endpoint")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.sessions == nil {
		t.sessions = make(map[string]Session)
	}
	if s, ok := t.sessions[endpoint]; ok {
		return s, nil
	}

	dial := t.Dial
	if dial == nil {
		dial = dialEndpoint
	}
	s, err := dial(endpoint)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", endpoint, err)
	}
	t.sessions[endpoint] = s
	return s, nil
}

// decodeResult unwraps an MCP tool result. Text content holding JSON is
// decoded; several content items come back as a list.
func decodeResult(toolID string, result any) (any, error) {
	m, ok := result.(map[string]any)
	if !ok {
		return result, nil
	}

	content, _ := m["content"].([]any)
	if isErr, _ := m["isError"].(bool); isErr {
		return nil, runtime.NewServiceError(runtime.ServiceErrorProvider, errors.New(contentText(content))).
			WithMetadata("tool_id", toolID)
	}
	if content == nil {
		return result, nil
	}

	values := make([]any, 0, len(content))
	for _, c := range content {
		item, ok := c.(map[string]any)
		if !ok {
			continue
		}
		if item["type"] != "text" {
			values = append(values, item)
			continue
		}
		text, _ := item["text"].(string)
		var decoded any
		if err := json.Unmarshal([]byte(text), &decoded); err == nil {
			values = append(values, decoded)
		} else {
			values = append(values, text)
		}
	}

	if len(values) == 1 {
		return values[0], nil
	}
	return values, nil
}

func contentText(content []any) string {
	var parts []string
	for _, c := range content {
		if item, ok := c.(map[string]any); ok {
			if text, ok := item["text"].(string); ok {
				parts = append(parts, text)
			}
		}
	}
	if len(parts) == 0 {
		return "tool reported an error"
	}
	return strings.Join(parts, "\n")
}
