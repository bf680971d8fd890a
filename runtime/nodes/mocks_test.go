package nodes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/BDNK1/agentflow/runtime"
)

const (
	testTenant = "tenant-a"
	testUser   = "user-1"
)

type chatMock struct {
	mock.Mock
}

func (m *chatMock) Complete(ctx context.Context, tenantID string, messages []runtime.ChatMessage, model runtime.ModelConfig) (*runtime.ChatCompletion, error) {
	args := m.Called(ctx, tenantID, messages, model)
	completion, _ := args.Get(0).(*runtime.ChatCompletion)
	return completion, args.Error(1)
}

type vectorMock struct {
	mock.Mock
}

func (m *vectorMock) Search(ctx context.Context, query runtime.VectorQuery) ([]runtime.VectorMatch, error) {
	args := m.Called(ctx, query)
	matches, _ := args.Get(0).([]runtime.VectorMatch)
	return matches, args.Error(1)
}

type toolMock struct {
	mock.Mock
}

func (m *toolMock) CheckPermission(ctx context.Context, tenantID, toolID string) (bool, error) {
	args := m.Called(ctx, tenantID, toolID)
	return args.Bool(0), args.Error(1)
}

func (m *toolMock) Call(ctx context.Context, toolID string, params map[string]any) (any, error) {
	args := m.Called(ctx, toolID, params)
	return args.Get(0), args.Error(1)
}

// newExecution builds an execution over nodes, adding a bare start node when
// none is given.
func newExecution(t *testing.T, initial map[string]any, nodes ...runtime.Node) *runtime.Execution {
	t.Helper()
	hasStart := false
	for _, n := range nodes {
		if n.Kind == runtime.KindStart {
			hasStart = true
		}
	}
	if !hasStart {
		nodes = append([]runtime.Node{{ID: "start", Kind: runtime.KindStart}}, nodes...)
	}
	graph, err := runtime.NewGraph(&runtime.FlowDefinition{ID: "test-flow", Nodes: nodes})
	require.NoError(t, err)
	return runtime.NewExecution(context.Background(), graph, runtime.Scope{TenantID: testTenant, UserID: testUser}, initial)
}

func requireFlowError(t *testing.T, err error, errType runtime.FlowErrorType, code runtime.FlowErrorCode) *runtime.FlowError {
	t.Helper()
	require.Error(t, err)
	var fe *runtime.FlowError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, errType, fe.Type, fe.Error())
	require.Equal(t, string(code), fe.Code, fe.Error())
	return fe
}
