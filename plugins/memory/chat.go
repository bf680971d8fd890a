// Package memory provides in-process capability backends for offline runs
// and tests.
package memory

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/BDNK1/agentflow/runtime"
)

// ChatCall records one Complete invocation.
type ChatCall struct {
	TenantID string
	Messages []runtime.ChatMessage
	Model    runtime.ModelConfig
}

// ScriptedChat answers chat requests from a fixed script. Replies are used in
// order; once exhausted the last reply repeats. With no replies the last user
// message is echoed back.
type ScriptedChat struct {
	mu      sync.Mutex
	replies []string
	next    int
	calls   []ChatCall
	Err     error
}

var _ runtime.ChatCompleter = (*ScriptedChat)(nil)

func NewScriptedChat(replies ...string) *ScriptedChat {
	return &ScriptedChat{replies: replies}
}

func (c *ScriptedChat) Complete(ctx context.Context, tenantID string, messages []runtime.ChatMessage, model runtime.ModelConfig) (*runtime.ChatCompletion, error) {
	if err := ctx.Err(); err != nil {
		return nil, runtime.NewServiceError(runtime.ServiceErrorTimeout, err)
	}
	if tenantID == "" {
		return nil, runtime.NewServiceError(runtime.ServiceErrorInvalidRequest, errors.New("tenant id is required"))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = append(c.calls, ChatCall{TenantID: tenantID, Messages: messages, Model: model})
	if c.Err != nil {
		return nil, c.Err
	}

	text := lastUserMessage(messages)
	if len(c.replies) > 0 {
		i := c.next
		if i >= len(c.replies) {
			i = len(c.replies) - 1
		}
		text = c.replies[i]
		c.next++
	}

	prompt := 0
	for _, m := range messages {
		prompt += len(strings.Fields(m.Content))
	}
	completion := len(strings.Fields(text))
	return &runtime.ChatCompletion{
		Text:         text,
		FinishReason: "stop",
		Usage: runtime.Usage{
			PromptTokens:     prompt,
			CompletionTokens: completion,
			TotalTokens:      prompt + completion,
		},
	}, nil
}

// Calls returns a copy of the recorded invocations.
func (c *ScriptedChat) Calls() []ChatCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ChatCall(nil), c.calls...)
}

func lastUserMessage(messages []runtime.ChatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}
