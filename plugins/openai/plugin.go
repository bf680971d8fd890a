// Package openai completes chat requests against OpenAI-compatible
// /chat/completions endpoints.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Jeffail/gabs/v2"
	"github.com/go-resty/resty/v2"

	"github.com/BDNK1/agentflow/runtime"
)

type Config struct {
	BaseURL     string            `yaml:"base_url" default:"https://api.openai.com/v1" validate:"required,url_format"`
	APIKey      string            `yaml:"api_key"`
	TenantKeys  map[string]string `yaml:"tenant_keys"` // per-tenant API keys, falling back to APIKey
	Model       string            `yaml:"model" default:"gpt-4o-mini"`
	Timeout     time.Duration     `yaml:"timeout" default:"60s" validate:"gte=1s"`
	MaxRetries  int               `yaml:"max_retries" default:"2" validate:"gte=0,lte=10"`
	RetryWaitMS int               `yaml:"retry_wait_ms" default:"500" validate:"gte=0,lte=60000"`
}

// ChatPlugin implements runtime.ChatCompleter with resty.
type ChatPlugin struct {
	Config Config
	Logger *slog.Logger
	client *resty.Client
}

var (
	_ runtime.ChatCompleter = (*ChatPlugin)(nil)
	_ runtime.Lifecycle     = (*ChatPlugin)(nil)
)

func (p *ChatPlugin) Initialize(ctx context.Context) error {
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	p.client = resty.New().
		SetBaseURL(strings.TrimSuffix(p.Config.BaseURL, "/")).
		SetTimeout(p.Config.Timeout).
		SetRetryCount(p.Config.MaxRetries).
		SetRetryWaitTime(time.Duration(p.Config.RetryWaitMS) * time.Millisecond).
		SetHeader("Content-Type", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
		})
	return nil
}

func (p *ChatPlugin) Shutdown(ctx context.Context) error {
	p.client = nil
	return nil
}

func (p *ChatPlugin) Complete(ctx context.Context, tenantID string, messages []runtime.ChatMessage, model runtime.ModelConfig) (*runtime.ChatCompletion, error) {
	if p.client == nil {
		return nil, runtime.NewServiceError(runtime.ServiceErrorProvider, errors.New("openai plugin is not initialized"))
	}

	key := p.Config.APIKey
	if k, ok := p.Config.TenantKeys[tenantID]; ok {
		key = k
	}
	if key == "" {
		return nil, runtime.NewServiceError(runtime.ServiceErrorAuth, fmt.Errorf("no API key configured for tenant %s", tenantID))
	}

	body, err := requestBody(tenantID, messages, model, p.Config.Model)
	if err != nil {
		return nil, runtime.NewServiceError(runtime.ServiceErrorInvalidRequest, err)
	}

	started := time.Now()
	resp, err := p.client.R().
		SetContext(ctx).
		SetAuthToken(key).
		SetBody(body.Bytes()).
		Post("/chat/completions")
	if err != nil {
		kind := runtime.ServiceErrorNetwork
		if errors.Is(err, context.DeadlineExceeded) {
			kind = runtime.ServiceErrorTimeout
		}
		return nil, runtime.NewServiceError(kind, err).WithMetadata("provider", "openai")
	}

	if resp.IsError() {
		return nil, responseError(resp)
	}

	completion, err := parseCompletion(resp.Body())
	if err != nil {
		return nil, runtime.NewServiceError(runtime.ServiceErrorProvider, err).WithMetadata("provider", "openai")
	}

	p.Logger.DebugContext(ctx, "Chat completion finished",
		"tenant_id", tenantID,
		"model", body.Path("model").Data(),
		"total_tokens", completion.Usage.TotalTokens,
		"elapsed", time.Since(started))
	return completion, nil
}

func requestBody(tenantID string, messages []runtime.ChatMessage, model runtime.ModelConfig, defaultModel string) (*gabs.Container, error) {
	body := gabs.New()
	name := model.Name
	if name == "" {
		name = defaultModel
	}
	if _, err := body.Set(name, "model"); err != nil {
		return nil, err
	}
	if _, err := body.Array("messages"); err != nil {
		return nil, err
	}
	for _, m := range messages {
		if err := body.ArrayAppend(map[string]any{"role": m.Role, "content": m.Content}, "messages"); err != nil {
			return nil, err
		}
	}
	if model.Temperature != nil {
		body.Set(*model.Temperature, "temperature")
	}
	if model.TopP != nil {
		body.Set(*model.TopP, "top_p")
	}
	if model.MaxTokens > 0 {
		body.Set(model.MaxTokens, "max_tokens")
	}
	if len(model.Stop) > 0 {
		body.Set(model.Stop, "stop")
	}
	body.Set(tenantID, "user")
	return body, nil
}

func parseCompletion(raw []byte) (*runtime.ChatCompletion, error) {
	parsed, err := gabs.ParseJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding completion: %w", err)
	}

	choice := parsed.Path("choices.0")
	if choice == nil || choice.Data() == nil {
		return nil, errors.New("completion has no choices")
	}
	text, _ := choice.Path("message.content").Data().(string)
	finish, _ := choice.Path("finish_reason").Data().(string)

	return &runtime.ChatCompletion{
		Text:         text,
		FinishReason: finish,
		Usage: runtime.Usage{
			PromptTokens:     intAt(parsed, "usage.prompt_tokens"),
			CompletionTokens: intAt(parsed, "usage.completion_tokens"),
			TotalTokens:      intAt(parsed, "usage.total_tokens"),
		},
	}, nil
}

func intAt(c *gabs.Container, path string) int {
	if n, ok := c.Path(path).Data().(float64); ok {
		return int(n)
	}
	return 0
}

func responseError(resp *resty.Response) *runtime.ServiceError {
	message := resp.Status()
	if parsed, err := gabs.ParseJSON(resp.Body()); err == nil {
		if s, ok := parsed.Path("error.message").Data().(string); ok && s != "" {
			message = s
		}
	}
	se := runtime.ServiceErrorFromStatus(resp.StatusCode(), errors.New(message)).WithMetadata("provider", "openai")
	if after := resp.Header().Get("Retry-After"); after != "" {
		se.WithRetryHint(se.IsRetryable(), after)
	}
	return se
}
