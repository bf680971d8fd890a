package nodes

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/BDNK1/agentflow/runtime"
)

func toolNode() runtime.Node {
	return runtime.Node{ID: "weather", Kind: runtime.KindMCPTool, Data: map[string]any{
		"tool_id":     "get_weather",
		"parameters":  map[string]any{"city": "{{#extract.city#}}", "units": "metric", "days": 3},
		"output_name": "forecast",
	}}
}

func TestToolCall(t *testing.T) {
	node := toolNode()
	exec := newExecution(t, nil, node)
	exec.Store("extract", "city", "Oslo")

	tools := &toolMock{}
	tools.On("CheckPermission", mock.Anything, testTenant, "get_weather").Return(true, nil)
	tools.On("Call", mock.Anything, "get_weather", map[string]any{"city": "Oslo", "units": "metric", "days": 3}).
		Return(map[string]any{"temp": 4.5}, nil)

	out, err := (&toolExecutor{l: slog.Default(), tools: tools}).Execute(exec, &node)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"temp": 4.5}, out["forecast"])
	assert.Equal(t, map[string]any{"temp": 4.5}, out["result"])
	tools.AssertExpectations(t)
}

func TestToolNotPermitted(t *testing.T) {
	node := toolNode()
	exec := newExecution(t, nil, node)

	tools := &toolMock{}
	tools.On("CheckPermission", mock.Anything, testTenant, "get_weather").Return(false, nil)

	_, err := (&toolExecutor{l: slog.Default(), tools: tools}).Execute(exec, &node)
	requireFlowError(t, err, runtime.ErrorTypeLookup, runtime.ErrorCodeToolNotPermitted)
	tools.AssertNotCalled(t, "Call", mock.Anything, mock.Anything, mock.Anything)
}

func TestToolErrors(t *testing.T) {
	t.Run("schema violation passes through", func(t *testing.T) {
		node := toolNode()
		exec := newExecution(t, nil, node)
		tools := &toolMock{}
		tools.On("CheckPermission", mock.Anything, testTenant, "get_weather").Return(true, nil)
		tools.On("Call", mock.Anything, "get_weather", mock.Anything).
			Return(nil, runtime.NewConfigurationError("parameters.city", "must be a string"))

		_, err := (&toolExecutor{l: slog.Default(), tools: tools}).Execute(exec, &node)
		fe := requireFlowError(t, err, runtime.ErrorTypeConfiguration, runtime.ErrorCodeConfigInvalid)
		assert.Equal(t, "parameters.city", fe.Field)
	})

	t.Run("transport failure is wrapped", func(t *testing.T) {
		node := toolNode()
		exec := newExecution(t, nil, node)
		tools := &toolMock{}
		tools.On("CheckPermission", mock.Anything, testTenant, "get_weather").Return(true, nil)
		tools.On("Call", mock.Anything, "get_weather", mock.Anything).Return(nil, errors.New("connection refused"))

		_, err := (&toolExecutor{l: slog.Default(), tools: tools}).Execute(exec, &node)
		requireFlowError(t, err, runtime.ErrorTypeExternalService, runtime.ErrorCodeServiceFailed)
	})

	t.Run("permission lookup failure", func(t *testing.T) {
		node := toolNode()
		exec := newExecution(t, nil, node)
		tools := &toolMock{}
		tools.On("CheckPermission", mock.Anything, testTenant, "get_weather").
			Return(false, runtime.NewServiceError(runtime.ServiceErrorNetwork, errors.New("redis down")))

		_, err := (&toolExecutor{l: slog.Default(), tools: tools}).Execute(exec, &node)
		requireFlowError(t, err, runtime.ErrorTypeExternalService, "NETWORK")
	})
}
