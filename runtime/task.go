package runtime

import "context"

// Task is an in-process tool discovered on a registered plugin.
type Task interface {
	Execute(ctx context.Context, args map[string]any) (map[string]any, error)
}
