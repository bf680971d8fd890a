package nodes

import (
	"github.com/BDNK1/agentflow/runtime"
)

type llmMessage struct {
	Role string `json:"role" validate:"required,oneof=system user assistant"`
	Text string `json:"text" validate:"required"`
}

type llmConfig struct {
	Model      runtime.ModelConfig `json:"model"`
	Messages   []llmMessage        `json:"messages" validate:"required,min=1,dive"`
	OutputName string              `json:"output_name" default:"text" validate:"required"`
}

// llmExecutor renders the prompt messages and calls chat completion for the
// run's tenant. The reply is stored under output_name and under "text".
type llmExecutor struct {
	chat runtime.ChatCompleter
}

func (x *llmExecutor) Execute(exec *runtime.Execution, node *runtime.Node) (map[string]any, error) {
	var cfg llmConfig
	if err := runtime.DecodeNodeData(node, &cfg); err != nil {
		return nil, err
	}
	if x.chat == nil {
		return nil, missingCapability(node, "chat completion")
	}

	messages := make([]runtime.ChatMessage, len(cfg.Messages))
	for i, m := range cfg.Messages {
		messages[i] = runtime.ChatMessage{Role: m.Role, Content: exec.Render(m.Text)}
	}

	completion, err := x.chat.Complete(exec, exec.Scope.TenantID, messages, cfg.Model)
	if err != nil {
		return nil, runtime.NewExternalServiceError("chat completion", err)
	}

	return map[string]any{
		cfg.OutputName: completion.Text,
		"text":         completion.Text,
		"usage": map[string]any{
			"prompt_tokens":     completion.Usage.PromptTokens,
			"completion_tokens": completion.Usage.CompletionTokens,
			"total_tokens":      completion.Usage.TotalTokens,
		},
		"finish_reason": completion.FinishReason,
	}, nil
}
