package nodes

import (
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/BDNK1/agentflow/runtime"
)

type extractorConfig struct {
	Inputs      []runtime.Selector  `json:"inputs" validate:"required,min=1,dive,len=2,dive,required"`
	Instruction string              `json:"instruction" validate:"required"`
	Model       runtime.ModelConfig `json:"model"`
	OutputName  string              `json:"output_name" default:"parameters" validate:"required"`
}

// extractorExecutor asks the chat model to pull a list of strings out of the
// resolved inputs.
type extractorExecutor struct {
	l    *slog.Logger
	chat runtime.ChatCompleter
}

func (x *extractorExecutor) Execute(exec *runtime.Execution, node *runtime.Node) (map[string]any, error) {
	var cfg extractorConfig
	if err := runtime.DecodeNodeData(node, &cfg); err != nil {
		return nil, err
	}
	if x.chat == nil {
		return nil, missingCapability(node, "chat completion")
	}

	texts := make([]string, 0, len(cfg.Inputs))
	for _, sel := range cfg.Inputs {
		v, err := exec.Lookup(sel)
		if err != nil {
			return nil, err
		}
		texts = append(texts, v.Text())
	}

	messages := []runtime.ChatMessage{
		{Role: "system", Content: exec.Render(cfg.Instruction)},
		{Role: "user", Content: strings.Join(texts, "\n")},
	}
	completion, err := x.chat.Complete(exec, exec.Scope.TenantID, messages, cfg.Model)
	if err != nil {
		return nil, runtime.NewExternalServiceError("chat completion", err)
	}

	params, ok := parseStringArray(completion.Text)
	if !ok {
		x.l.WarnContext(exec, "Extractor reply is not a JSON array",
			"execution_id", exec.ID,
			"node_id", node.ID,
			"reply", completion.Text)
		return nil, &runtime.FlowError{
			Type:    runtime.ErrorTypeExternalService,
			Code:    string(runtime.ErrorCodeUnparseableReply),
			Message: "chat reply contains no JSON array",
			Meta:    map[string]any{"capability": "chat completion"},
		}
	}

	return map[string]any{cfg.OutputName: params}, nil
}

// parseStringArray reads reply as a JSON array of strings. When the reply
// carries prose around the array, the first bracketed substring that parses
// wins. Non-string elements are kept in their JSON text form.
func parseStringArray(reply string) ([]string, bool) {
	reply = strings.TrimSpace(reply)
	if r := gjson.Parse(reply); gjson.Valid(reply) && r.IsArray() {
		return arrayStrings(r), true
	}

	for open := strings.IndexByte(reply, '['); open >= 0; {
		for end := strings.LastIndexByte(reply, ']'); end > open; end = strings.LastIndexByte(reply[:end], ']') {
			candidate := reply[open : end+1]
			if gjson.Valid(candidate) {
				return arrayStrings(gjson.Parse(candidate)), true
			}
		}
		next := strings.IndexByte(reply[open+1:], '[')
		if next < 0 {
			break
		}
		open += next + 1
	}
	return nil, false
}

func arrayStrings(r gjson.Result) []string {
	out := []string{}
	r.ForEach(func(_, v gjson.Result) bool {
		out = append(out, v.String())
		return true
	})
	return out
}
