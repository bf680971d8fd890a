// Package factory composes an execution engine from configuration: it builds
// the capability plugins, registers them in a runtime.Container and wires the
// node catalogue on top.
package factory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BDNK1/agentflow/plugins/eino"
	httpplugin "github.com/BDNK1/agentflow/plugins/http"
	"github.com/BDNK1/agentflow/plugins/mcp"
	"github.com/BDNK1/agentflow/plugins/memory"
	"github.com/BDNK1/agentflow/plugins/openai"
	"github.com/BDNK1/agentflow/plugins/postgres"
	redisplugin "github.com/BDNK1/agentflow/plugins/redis"
	"github.com/BDNK1/agentflow/runtime"
	"github.com/BDNK1/agentflow/runtime/expression"
	"github.com/BDNK1/agentflow/runtime/nodes"
	"github.com/BDNK1/agentflow/runtime/telemetry"
	"github.com/BDNK1/agentflow/runtime/tools"
)

// Backend names accepted in EngineConfig.
const (
	BackendOpenAI   = "openai"
	BackendEino     = "eino"
	BackendScripted = "scripted"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
	BackendNone     = "none"

	TransportsLive = "live"
	TransportsEcho = "echo"
)

// EngineConfig selects which backend serves each capability.
type EngineConfig struct {
	MaxNodeVisits int    `yaml:"max_node_visits" default:"1000" validate:"gte=1"`
	Chat          string `yaml:"chat" default:"openai" validate:"oneof=openai eino scripted none"`
	Vectors       string `yaml:"vectors" default:"postgres" validate:"oneof=postgres memory none"`
	Tools         string `yaml:"tools" default:"redis" validate:"oneof=redis memory none"`
	ToolFile      string `yaml:"tool_file"`
	Transports    string `yaml:"transports" default:"live" validate:"oneof=live echo"`
	Telemetry     bool   `yaml:"telemetry" default:"true"`
}

// Config holds raw, already env-resolved values. Engine is decoded into
// EngineConfig; Plugins maps a plugin name to the raw values of its Config.
type Config struct {
	Engine  map[string]any            `yaml:"engine"`
	Plugins map[string]map[string]any `yaml:"plugins"`
}

// Engine is a ready-to-run executor together with the plugins behind it.
type Engine struct {
	*runtime.Executor
	Container *runtime.Container
	Tools     *tools.Service
	Settings  EngineConfig
}

// Shutdown releases plugin connections in reverse registration order.
func (e *Engine) Shutdown(ctx context.Context) error {
	return e.Container.Shutdown(ctx)
}

// New builds and initialises every plugin the configuration selects.
func New(ctx context.Context, l *slog.Logger, cfg Config) (*Engine, error) {
	if l == nil {
		l = slog.Default()
	}

	var settings EngineConfig
	if err := runtime.InitializeConfig(&settings, cfg.Engine); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}

	b := &builder{l: l, raw: cfg.Plugins, container: runtime.NewContainer()}

	// The http plugin is always present: it backs http tools and its request
	// task is available to local tools.
	httpPlugin := &httpplugin.HTTPPlugin{Logger: l}
	b.add("http", &httpPlugin.Config, httpPlugin)

	switch settings.Chat {
	case BackendOpenAI:
		p := &openai.ChatPlugin{Logger: l}
		b.add(BackendOpenAI, &p.Config, p)
	case BackendEino:
		p := &eino.ChatPlugin{Logger: l}
		b.add(BackendEino, &p.Config, p)
	case BackendScripted:
		b.add(BackendScripted, nil, memory.NewScriptedChat(scriptedReplies(cfg.Plugins[BackendScripted])...))
	}

	switch settings.Vectors {
	case BackendPostgres:
		p := &postgres.PostgresPlugin{Logger: l}
		b.add(BackendPostgres, &p.Config, p)
	case BackendMemory:
		b.add("vectors", nil, memory.NewIndex())
	}

	// A tool file seeds the redis repository once it is connected.
	var (
		redisTools *redisplugin.ToolRepository
		seed       *memory.ToolFile
	)
	switch settings.Tools {
	case BackendRedis:
		redisTools = &redisplugin.ToolRepository{Logger: l}
		b.add(BackendRedis, &redisTools.Config, redisTools)
		if settings.ToolFile != "" {
			file, err := memory.ReadToolFile(settings.ToolFile)
			if err != nil {
				return nil, err
			}
			seed = file
		}
	case BackendMemory:
		repo := memory.NewToolRepository()
		if settings.ToolFile != "" {
			loaded, err := memory.LoadToolFile(settings.ToolFile)
			if err != nil {
				return nil, err
			}
			repo = loaded
		}
		b.add("tool_repository", nil, repo)
	}

	mcpTransport := &mcp.ToolTransport{Logger: l}
	b.add("mcp", &mcpTransport.Config, mcpTransport)

	if b.err != nil {
		return nil, b.err
	}

	if err := b.container.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initializing plugins: %w", err)
	}
	if seed != nil {
		if err := seedTools(ctx, redisTools, seed); err != nil {
			_ = b.container.Shutdown(ctx)
			return nil, err
		}
		l.Info("Tool repository seeded", "tools", len(seed.Tools), "tenants", len(seed.Grants))
	}

	transports := map[string]runtime.ToolTransport{
		tools.TransportHTTP:  httpPlugin,
		tools.TransportMCP:   mcpTransport,
		tools.TransportLocal: tools.NewLocalTransport(b.container),
	}
	if settings.Transports == TransportsEcho {
		transports[tools.TransportHTTP] = memory.EchoTransport{}
		transports[tools.TransportMCP] = memory.EchoTransport{}
	}

	var repo runtime.ToolRepository
	if found := b.container.PluginsImplementing(runtime.InterfaceToolRepository); len(found) > 0 {
		repo = found[0].(runtime.ToolRepository)
	}
	svc := tools.NewService(l, repo, transports)

	caps := nodes.Capabilities{Tools: svc}
	if found := b.container.PluginsImplementing(runtime.InterfaceChatCompleter); len(found) > 0 {
		caps.Chat = found[0].(runtime.ChatCompleter)
	}
	if found := b.container.PluginsImplementing(runtime.InterfaceVectorSearcher); len(found) > 0 {
		caps.Vectors = found[0].(runtime.VectorSearcher)
	}

	opts := []runtime.Option{runtime.WithMaxNodeVisits(settings.MaxNodeVisits)}
	if settings.Telemetry {
		opts = append(opts, runtime.WithTelemetry(telemetry.New(nil, nil)))
	}

	l.Info("Engine ready",
		"chat", settings.Chat,
		"vectors", settings.Vectors,
		"tools", settings.Tools,
		"transports", settings.Transports,
		"max_node_visits", settings.MaxNodeVisits)

	return &Engine{
		Executor:  NewExecutor(l, caps, opts...),
		Container: b.container,
		Tools:     svc,
		Settings:  settings,
	}, nil
}

// NewExecutor wires the node catalogue over caps. Tests use it directly with
// in-memory capabilities.
func NewExecutor(l *slog.Logger, caps nodes.Capabilities, opts ...runtime.Option) *runtime.Executor {
	catalogue := nodes.NewCatalogue(l, caps, expression.NewEvaluator())
	return runtime.NewExecutor(l, catalogue, opts...)
}

// seedTools writes every tool and grant of file to repo. Existing entries with
// the same ids are replaced; grants are only ever added.
func seedTools(ctx context.Context, repo *redisplugin.ToolRepository, file *memory.ToolFile) error {
	for i := range file.Tools {
		if err := repo.SaveTool(ctx, &file.Tools[i]); err != nil {
			return fmt.Errorf("seeding tool %s: %w", file.Tools[i].ID, err)
		}
	}
	for tenant, ids := range file.Grants {
		if err := repo.Grant(ctx, tenant, ids...); err != nil {
			return fmt.Errorf("seeding grants of %s: %w", tenant, err)
		}
	}
	return nil
}

// builder accumulates the first error so plugin setup reads as a flat list.
type builder struct {
	l         *slog.Logger
	raw       map[string]map[string]any
	container *runtime.Container
	err       error
}

// add initialises config (defaults, raw values, validation) when given, then
// registers the plugin.
func (b *builder) add(name string, config any, plugin any) {
	if b.err != nil {
		return
	}
	if config != nil {
		if err := runtime.InitializeConfig(config, b.raw[name]); err != nil {
			b.err = fmt.Errorf("failed to initialize %s config: %w", name, err)
			return
		}
	}
	if err := b.container.RegisterPlugin(name, plugin); err != nil {
		b.err = fmt.Errorf("failed to register plugin '%s': %w", name, err)
		return
	}
	b.l.Debug("Plugin registered", "plugin", name)
}

func scriptedReplies(raw map[string]any) []string {
	list, _ := raw["replies"].([]any)
	replies := make([]string, 0, len(list))
	for _, r := range list {
		replies = append(replies, fmt.Sprint(r))
	}
	return replies
}
