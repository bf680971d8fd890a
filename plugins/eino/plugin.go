// Package eino completes chat requests through a cloudwego/eino chat model.
package eino

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/BDNK1/agentflow/runtime"
)

type Config struct {
	APIKey  string        `yaml:"api_key" validate:"required"`
	BaseURL string        `yaml:"base_url" validate:"omitempty,url_format"`
	Model   string        `yaml:"model" default:"gpt-4o-mini" validate:"required"`
	Timeout time.Duration `yaml:"timeout" default:"60s" validate:"gte=1s"`
}

// ChatPlugin adapts an eino BaseChatModel to runtime.ChatCompleter. Sampling
// parameters of each node are passed as per-call model options.
type ChatPlugin struct {
	Config Config
	Logger *slog.Logger
	model  model.BaseChatModel
}

var (
	_ runtime.ChatCompleter = (*ChatPlugin)(nil)
	_ runtime.Lifecycle     = (*ChatPlugin)(nil)
)

// NewWithModel wraps an existing chat model; Initialize will not replace it.
func NewWithModel(m model.BaseChatModel, cfg Config) *ChatPlugin {
	return &ChatPlugin{Config: cfg, Logger: slog.Default(), model: m}
}

func (p *ChatPlugin) Initialize(ctx context.Context) error {
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	if p.model != nil {
		return nil
	}

	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  p.Config.APIKey,
		BaseURL: p.Config.BaseURL,
		Model:   p.Config.Model,
		Timeout: p.Config.Timeout,
	})
	if err != nil {
		return fmt.Errorf("error creating chat model: %w", err)
	}
	p.model = cm
	return nil
}

func (p *ChatPlugin) Shutdown(ctx context.Context) error {
	return nil
}

func (p *ChatPlugin) Complete(ctx context.Context, tenantID string, messages []runtime.ChatMessage, cfg runtime.ModelConfig) (*runtime.ChatCompletion, error) {
	if p.model == nil {
		return nil, runtime.NewServiceError(runtime.ServiceErrorProvider, errors.New("eino plugin is not initialized"))
	}

	input := make([]*schema.Message, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			input = append(input, schema.SystemMessage(m.Content))
		case "assistant":
			input = append(input, schema.AssistantMessage(m.Content, nil))
		default:
			input = append(input, schema.UserMessage(m.Content))
		}
	}

	out, err := p.model.Generate(ctx, input, modelOptions(cfg)...)
	if err != nil {
		kind := runtime.ServiceErrorProvider
		if errors.Is(err, context.DeadlineExceeded) {
			kind = runtime.ServiceErrorTimeout
		}
		return nil, runtime.NewServiceError(kind, err).WithMetadata("provider", "eino")
	}
	if out == nil {
		return nil, runtime.NewServiceError(runtime.ServiceErrorProvider, errors.New("chat model returned no message"))
	}

	completion := &runtime.ChatCompletion{Text: out.Content}
	if meta := out.ResponseMeta; meta != nil {
		completion.FinishReason = meta.FinishReason
		if meta.Usage != nil {
			completion.Usage = runtime.Usage{
				PromptTokens:     meta.Usage.PromptTokens,
				CompletionTokens: meta.Usage.CompletionTokens,
				TotalTokens:      meta.Usage.TotalTokens,
			}
		}
	}

	p.Logger.DebugContext(ctx, "Chat completion finished",
		"tenant_id", tenantID,
		"total_tokens", completion.Usage.TotalTokens)
	return completion, nil
}

func modelOptions(cfg runtime.ModelConfig) []model.Option {
	var opts []model.Option
	if cfg.Name != "" {
		opts = append(opts, model.WithModel(cfg.Name))
	}
	if cfg.Temperature != nil {
		opts = append(opts, model.WithTemperature(float32(*cfg.Temperature)))
	}
	if cfg.TopP != nil {
		opts = append(opts, model.WithTopP(float32(*cfg.TopP)))
	}
	if cfg.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(cfg.MaxTokens))
	}
	if len(cfg.Stop) > 0 {
		opts = append(opts, model.WithStop(cfg.Stop))
	}
	return opts
}
