package runtime

import (
	"context"
	"fmt"
	"reflect"
	"strings"
)

// Interface type constants for plugin capabilities
const (
	InterfaceLifecycle      = "Lifecycle"
	InterfaceChatCompleter  = "ChatCompleter"
	InterfaceVectorSearcher = "VectorSearcher"
	InterfaceToolRepository = "ToolRepository"
	InterfaceToolTransport  = "ToolTransport"
)

// Container holds plugin instances, the in-process tasks discovered on them
// and the capability interfaces they implement.
type Container struct {
	Tasks              map[string]Task
	plugins            map[string]any   // Plugin instances (name -> plugin)
	order              []string         // Registration order
	pluginsByInterface map[string][]any // Interface name -> plugins implementing that interface
}

func NewContainer() *Container {
	return &Container{
		Tasks:              make(map[string]Task),
		plugins:            make(map[string]any),
		pluginsByInterface: make(map[string][]any),
	}
}

func (c *Container) GetTask(name string) Task {
	task, ok := c.Tasks[name]
	if !ok {
		return nil
	}
	return task
}

// RegisterPlugin registers a plugin instance and auto-discovers its tasks and interfaces.
//
// Task methods have one of two shapes:
//
//	func (p *Plugin) Name(ctx context.Context, args map[string]any) (map[string]any, error)
//	func (p *Plugin) Name(ctx context.Context, input SomeStruct) (SomeOutput, error)
//
// and are registered as "<plugin>.<name>" with a lower-cased first letter.
func (c *Container) RegisterPlugin(pluginName string, plugin any) error {
	if plugin == nil {
		return fmt.Errorf("plugin cannot be nil")
	}
	if _, dup := c.plugins[pluginName]; dup {
		return fmt.Errorf("plugin %q already registered", pluginName)
	}

	c.plugins[pluginName] = plugin
	c.order = append(c.order, pluginName)

	c.detectPluginInterfaces(plugin)

	pluginType := reflect.TypeOf(plugin)
	pluginValue := reflect.ValueOf(plugin)

	for i := 0; i < pluginType.NumMethod(); i++ {
		method := pluginType.Method(i)

		if !method.IsExported() {
			continue
		}

		kind := taskSignature(method.Type)
		if kind == notATask {
			continue
		}

		taskName := fmt.Sprintf("%s.%s", pluginName, toLowerFirst(method.Name))
		c.Tasks[taskName] = &pluginTaskWrapper{
			plugin: pluginValue,
			method: method,
			typed:  kind == typedTask,
		}
	}

	return nil
}

// detectPluginInterfaces detects which interfaces a plugin implements and registers them
func (c *Container) detectPluginInterfaces(plugin any) {
	if _, ok := plugin.(Lifecycle); ok {
		c.pluginsByInterface[InterfaceLifecycle] = append(c.pluginsByInterface[InterfaceLifecycle], plugin)
	}
	if _, ok := plugin.(ChatCompleter); ok {
		c.pluginsByInterface[InterfaceChatCompleter] = append(c.pluginsByInterface[InterfaceChatCompleter], plugin)
	}
	if _, ok := plugin.(VectorSearcher); ok {
		c.pluginsByInterface[InterfaceVectorSearcher] = append(c.pluginsByInterface[InterfaceVectorSearcher], plugin)
	}
	if _, ok := plugin.(ToolRepository); ok {
		c.pluginsByInterface[InterfaceToolRepository] = append(c.pluginsByInterface[InterfaceToolRepository], plugin)
	}
	if _, ok := plugin.(ToolTransport); ok {
		c.pluginsByInterface[InterfaceToolTransport] = append(c.pluginsByInterface[InterfaceToolTransport], plugin)
	}
}

// GetPlugin returns a plugin instance by name
func (c *Container) GetPlugin(name string) any {
	return c.plugins[name]
}

// PluginsImplementing returns plugins registered for an interface, in registration order.
func (c *Container) PluginsImplementing(iface string) []any {
	return c.pluginsByInterface[iface]
}

// Initialize calls Initialize on all plugins implementing Lifecycle, in
// registration order. Plugins already initialised are shut down again if a
// later one fails.
func (c *Container) Initialize(ctx context.Context) error {
	lifecyclePlugins := c.pluginsByInterface[InterfaceLifecycle]

	for i, plugin := range lifecyclePlugins {
		if err := plugin.(Lifecycle).Initialize(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				_ = lifecyclePlugins[j].(Lifecycle).Shutdown(ctx)
			}
			return fmt.Errorf("plugin #%d initialization failed: %w", i, err)
		}
	}
	return nil
}

// Shutdown calls Shutdown on all plugins implementing Lifecycle interface
// Plugins are shut down in reverse order of initialization
func (c *Container) Shutdown(ctx context.Context) error {
	lifecyclePlugins := c.pluginsByInterface[InterfaceLifecycle]

	var errs []error
	for i := len(lifecyclePlugins) - 1; i >= 0; i-- {
		lifecycle := lifecyclePlugins[i].(Lifecycle)
		if err := lifecycle.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("plugin #%d shutdown failed: %w", i, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	return nil
}

type taskKind int

const (
	notATask taskKind = iota
	mapTask
	typedTask
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	mapType     = reflect.TypeOf(map[string]any(nil))
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// taskSignature classifies a method as a map-based task, a typed task or neither.
// The receiver counts as the first input.
func taskSignature(methodType reflect.Type) taskKind {
	if methodType.NumIn() != 3 || methodType.NumOut() != 2 {
		return notATask
	}
	if methodType.In(1) != contextType || methodType.Out(1) != errorType {
		return notATask
	}

	in, out := methodType.In(2), methodType.Out(0)
	if in == mapType && out == mapType {
		return mapTask
	}
	if in.Kind() == reflect.Struct && out.Kind() == reflect.Struct {
		return typedTask
	}
	return notATask
}

// toLowerFirst converts first character of string to lowercase
func toLowerFirst(s string) string {
	if s == "" {
		return ""
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// pluginTaskWrapper wraps a plugin method to implement Task interface
type pluginTaskWrapper struct {
	plugin reflect.Value
	method reflect.Method
	typed  bool
}

func (w *pluginTaskWrapper) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	input := reflect.ValueOf(args)

	if w.typed {
		ptr := reflect.New(w.method.Type.In(2))
		if err := mapToStruct(args, ptr.Interface()); err != nil {
			return nil, fmt.Errorf("invalid input: %w", err)
		}
		if err := validateConfig(ptr.Elem().Interface()); err != nil {
			return nil, fmt.Errorf("invalid input: %w", err)
		}
		input = ptr.Elem()
	}

	results := w.method.Func.Call([]reflect.Value{w.plugin, reflect.ValueOf(ctx), input})

	var err error
	if !results[1].IsNil() {
		err = results[1].Interface().(error)
	}
	if err != nil {
		return nil, err
	}

	if !w.typed {
		out, _ := results[0].Interface().(map[string]any)
		return out, nil
	}
	return structToMap(results[0].Interface())
}
