// Package redis stores tool definitions and per-tenant tool grants in Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BDNK1/agentflow/runtime"
)

type Config struct {
	Addr        string        `yaml:"addr" default:"localhost:6379" validate:"required,hostname_port"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db" default:"0" validate:"gte=0"`
	KeyPrefix   string        `yaml:"key_prefix" default:"agentflow" validate:"required"`
	DialTimeout time.Duration `yaml:"dial_timeout" default:"5s"`
}

// ToolRepository keeps each tool as a JSON string under <prefix>:tool:<id>
// and each tenant's grants as a set under <prefix>:grants:<tenant>.
type ToolRepository struct {
	Config Config
	Logger *slog.Logger
	client *redis.Client
}

var (
	_ runtime.ToolRepository = (*ToolRepository)(nil)
	_ runtime.Lifecycle      = (*ToolRepository)(nil)
)

// NewWithClient builds a repository over an existing client.
func NewWithClient(client *redis.Client, cfg Config) *ToolRepository {
	return &ToolRepository{Config: cfg, Logger: slog.Default(), client: client}
}

func (r *ToolRepository) Initialize(ctx context.Context) error {
	if r.Logger == nil {
		r.Logger = slog.Default()
	}
	if r.client == nil {
		r.client = redis.NewClient(&redis.Options{
			Addr:        r.Config.Addr,
			Password:    r.Config.Password,
			DB:          r.Config.DB,
			DialTimeout: r.Config.DialTimeout,
		})
	}
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping %s: %w", r.Config.Addr, err)
	}
	r.Logger.InfoContext(ctx, "Tool repository connected", "addr", r.Config.Addr, "db", r.Config.DB)
	return nil
}

func (r *ToolRepository) Shutdown(ctx context.Context) error {
	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	return err
}

func (r *ToolRepository) GetTool(ctx context.Context, toolID string) (*runtime.ToolDefinition, error) {
	raw, err := r.client.Get(ctx, r.toolKey(toolID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", runtime.ErrToolNotFound, toolID)
	}
	if err != nil {
		return nil, runtime.NewServiceError(runtime.ServiceErrorNetwork, fmt.Errorf("redis get tool %s: %w", toolID, err))
	}

	var tool runtime.ToolDefinition
	if err := json.Unmarshal(raw, &tool); err != nil {
		return nil, runtime.NewServiceError(runtime.ServiceErrorProvider, fmt.Errorf("decoding tool %s: %w", toolID, err))
	}
	if tool.ID == "" {
		tool.ID = toolID
	}
	return &tool, nil
}

func (r *ToolRepository) IsToolPermitted(ctx context.Context, tenantID, toolID string) (bool, error) {
	ok, err := r.client.SIsMember(ctx, r.grantsKey(tenantID), toolID).Result()
	if err != nil {
		return false, runtime.NewServiceError(runtime.ServiceErrorNetwork, fmt.Errorf("redis check grant %s/%s: %w", tenantID, toolID, err))
	}
	return ok, nil
}

// SaveTool stores or replaces a tool definition.
func (r *ToolRepository) SaveTool(ctx context.Context, tool *runtime.ToolDefinition) error {
	if tool.ID == "" {
		return errors.New("tool id is required")
	}
	data, err := json.Marshal(tool)
	if err != nil {
		return fmt.Errorf("encoding tool %s: %w", tool.ID, err)
	}
	return r.client.Set(ctx, r.toolKey(tool.ID), data, 0).Err()
}

// Grant lets tenantID use toolIDs.
func (r *ToolRepository) Grant(ctx context.Context, tenantID string, toolIDs ...string) error {
	if len(toolIDs) == 0 {
		return nil
	}
	members := make([]any, len(toolIDs))
	for i, id := range toolIDs {
		members[i] = id
	}
	return r.client.SAdd(ctx, r.grantsKey(tenantID), members...).Err()
}

// Revoke removes toolIDs from tenantID's grants.
func (r *ToolRepository) Revoke(ctx context.Context, tenantID string, toolIDs ...string) error {
	if len(toolIDs) == 0 {
		return nil
	}
	members := make([]any, len(toolIDs))
	for i, id := range toolIDs {
		members[i] = id
	}
	return r.client.SRem(ctx, r.grantsKey(tenantID), members...).Err()
}

func (r *ToolRepository) toolKey(toolID string) string {
	return r.Config.KeyPrefix + ":tool:" + toolID
}

func (r *ToolRepository) grantsKey(tenantID string) string {
	return r.Config.KeyPrefix + ":grants:" + tenantID
}
