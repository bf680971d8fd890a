package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/Jeffail/gabs/v2"
	"github.com/go-resty/resty/v2"

	"github.com/BDNK1/agentflow/runtime"
)

// Config holds the HTTP plugin configuration with declarative tags
type Config struct {
	Timeout     time.Duration     `yaml:"timeout" default:"30s" validate:"gte=1s"`
	MaxRetries  int               `yaml:"max_retries" default:"3" validate:"gte=0,lte=10"`
	Debug       bool              `yaml:"debug" default:"false"`
	RetryWaitMS int               `yaml:"retry_wait_ms" default:"100" validate:"gte=0,lte=10000"`
	Headers     map[string]string `yaml:"headers"`
}

// RequestInput defines the typed input for HTTP requests
type RequestInput struct {
	URL         string            `json:"url" validate:"required,url"`
	Method      string            `json:"method" validate:"required,oneof=GET POST PUT PATCH DELETE HEAD OPTIONS"`
	Headers     map[string]string `json:"headers"`
	QueryParams map[string]string `json:"query_parameters"`
	Body        map[string]any    `json:"body"`
}

// RequestOutput defines the typed output for HTTP requests
type RequestOutput struct {
	Status     string         `json:"status"`
	StatusCode int            `json:"status_code"`
	IsError    bool           `json:"is_error"`
	Body       map[string]any `json:"body"`
}

// HTTPPlugin delivers tool calls to HTTP endpoints. It is also registered as a
// plugin so its Request task can back local tools.
type HTTPPlugin struct {
	Config Config // Exported so the factory can set it during initialization
	Logger *slog.Logger
	client *resty.Client
}

var (
	_ runtime.ToolTransport = (*HTTPPlugin)(nil)
	_ runtime.Lifecycle     = (*HTTPPlugin)(nil)
)

// Initialize builds the resty client. Config is already validated.
func (h *HTTPPlugin) Initialize(ctx context.Context) error {
	if h.Logger == nil {
		h.Logger = slog.Default()
	}
	h.client = resty.New().
		SetTimeout(h.Config.Timeout).
		SetRetryCount(h.Config.MaxRetries).
		SetRetryWaitTime(time.Duration(h.Config.RetryWaitMS) * time.Millisecond).
		SetHeaders(h.Config.Headers).
		SetDebug(h.Config.Debug).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
		})
	return nil
}

// Shutdown releases the client
func (h *HTTPPlugin) Shutdown(ctx context.Context) error {
	h.client = nil
	return nil
}

// Invoke sends params to the tool endpoint. GET tools receive them as query
// parameters, "form" tools as a form body, all others as a JSON body.
func (h *HTTPPlugin) Invoke(ctx context.Context, tool *runtime.ToolDefinition, params map[string]any) (any, error) {
	if h.client == nil {
		return nil, fmt.Errorf("http plugin is not initialized")
	}

	method := tool.Method
	if method == "" {
		method = http.MethodPost
	}

	req := h.client.R().SetContext(ctx)
	switch {
	case method == http.MethodGet || method == http.MethodDelete:
		req.SetQueryParams(flattenToFormData(params, ""))
	case tool.Encoding == "form":
		req.SetFormData(flattenToFormData(params, ""))
	default:
		req.SetBody(params)
	}

	h.Logger.DebugContext(ctx, "Calling HTTP tool",
		"tool_id", tool.ID,
		"method", method,
		"endpoint", tool.Endpoint)

	resp, err := req.Execute(method, tool.Endpoint)
	if err != nil {
		return nil, runtime.NewServiceError(runtime.ServiceErrorNetwork, fmt.Errorf("HTTP request failed: %w", err)).
			WithMetadata("tool_id", tool.ID)
	}

	if resp.IsError() {
		return nil, responseError(resp).WithMetadata("tool_id", tool.ID)
	}

	return decodeBody(resp.Body()), nil
}

// Request executes an HTTP request using typed input/output
// The framework automatically validates input and converts between map and struct
func (h *HTTPPlugin) Request(ctx context.Context, input RequestInput) (RequestOutput, error) {
	if h.client == nil {
		return RequestOutput{}, fmt.Errorf("http plugin is not initialized")
	}

	resp, err := h.client.R().
		SetContext(ctx).
		SetHeaders(input.Headers).
		SetQueryParams(input.QueryParams).
		SetBody(input.Body).
		Execute(input.Method, input.URL)
	if err != nil {
		return RequestOutput{}, fmt.Errorf("HTTP request failed: %w", err)
	}

	output := RequestOutput{
		Status:     resp.Status(),
		StatusCode: resp.StatusCode(),
		IsError:    resp.IsError(),
	}
	if body, ok := decodeBody(resp.Body()).(map[string]any); ok {
		output.Body = body
	}
	return output, nil
}

// decodeBody returns the JSON document in body, or the raw text when it is
// not JSON.
func decodeBody(body []byte) any {
	if len(body) == 0 {
		return nil
	}
	parsed, err := gabs.ParseJSON(body)
	if err != nil {
		return string(body)
	}
	return parsed.Data()
}

// responseError maps an error response to a ServiceError, keeping the
// provider's message and Retry-After hint.
func responseError(resp *resty.Response) *runtime.ServiceError {
	message := resp.Status()
	if parsed, err := gabs.ParseJSON(resp.Body()); err == nil {
		for _, path := range []string{"error.message", "error", "message"} {
			if s, ok := parsed.Path(path).Data().(string); ok && s != "" {
				message = s
				break
			}
		}
	}

	se := runtime.ServiceErrorFromStatus(resp.StatusCode(), fmt.Errorf("%s", message))
	if after := resp.Header().Get("Retry-After"); after != "" {
		se.WithRetryHint(se.IsRetryable(), after)
	}
	return se
}

// flattenToFormData flattens nested maps and arrays into bracketed keys, e.g.
// metadata[order_id] and items[0].
func flattenToFormData(data map[string]any, prefix string) map[string]string {
	result := make(map[string]string)
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		key := k
		if prefix != "" {
			key = prefix + "[" + k + "]"
		}
		flattenValue(result, key, data[k])
	}
	return result
}

func flattenValue(result map[string]string, key string, v any) {
	switch x := v.(type) {
	case map[string]any:
		for k, s := range flattenToFormData(x, key) {
			result[k] = s
		}
	case []any:
		for i, e := range x {
			flattenValue(result, key+"["+strconv.Itoa(i)+"]", e)
		}
	case nil:
		result[key] = ""
	default:
		result[key] = runtime.ValueOf(x).Text()
	}
}
