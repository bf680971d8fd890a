package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BDNK1/agentflow/runtime"
)

func newTestRepository(t *testing.T) (*ToolRepository, *miniredis.Miniredis) {
	t.Helper()
	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	client := redis.NewClient(&redis.Options{
		Addr:            server.Addr(),
		Protocol:        2,
		DisableIdentity: true,
	})
	repo := NewWithClient(client, Config{Addr: server.Addr(), KeyPrefix: "test"})
	require.NoError(t, repo.Initialize(context.Background()))
	t.Cleanup(func() { _ = repo.Shutdown(context.Background()) })
	return repo, server
}

func TestSaveAndGetTool(t *testing.T) {
	repo, server := newTestRepository(t)
	ctx := context.Background()

	tool := &runtime.ToolDefinition{
		ID:        "weather",
		Name:      "Weather",
		TenantID:  "tenant-a",
		Transport: "http",
		Endpoint:  "https://tools.example.com/weather",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []any{"city"},
		},
	}
	require.NoError(t, repo.SaveTool(ctx, tool))
	assert.True(t, server.Exists("test:tool:weather"))

	got, err := repo.GetTool(ctx, "weather")
	require.NoError(t, err)
	assert.Equal(t, tool, got)
}

func TestGetToolMissing(t *testing.T) {
	repo, _ := newTestRepository(t)

	_, err := repo.GetTool(context.Background(), "nope")
	assert.True(t, errors.Is(err, runtime.ErrToolNotFound))
}

func TestGetToolCorrupt(t *testing.T) {
	repo, server := newTestRepository(t)
	require.NoError(t, server.Set("test:tool:broken", "{not json"))

	_, err := repo.GetTool(context.Background(), "broken")
	var se *runtime.ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, runtime.ServiceErrorProvider, se.Kind)
}

func TestGrants(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Grant(ctx, "tenant-a", "weather", "calendar"))

	ok, err := repo.IsToolPermitted(ctx, "tenant-a", "calendar")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.IsToolPermitted(ctx, "tenant-b", "calendar")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.Revoke(ctx, "tenant-a", "calendar"))
	ok, err = repo.IsToolPermitted(ctx, "tenant-a", "calendar")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisUnavailable(t *testing.T) {
	repo, server := newTestRepository(t)
	server.Close()

	_, err := repo.IsToolPermitted(context.Background(), "tenant-a", "weather")
	var se *runtime.ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, runtime.ServiceErrorNetwork, se.Kind)
	assert.True(t, se.IsRetryable())
}
