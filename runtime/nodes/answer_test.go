package nodes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BDNK1/agentflow/runtime"
)

func TestAnswerRendersTemplate(t *testing.T) {
	node := runtime.Node{ID: "answer", Kind: runtime.KindAnswer, Data: map[string]any{
		"answer": "{{#llm_1.text#}} ({{#search.count#}} sources, {{#missing.key#}})",
	}}
	exec := newExecution(t, nil, node)
	exec.Store("llm_1", "text", "Use the refund form")
	exec.Store("search", "count", 3)

	out, err := (&answerExecutor{}).Execute(exec, &node)
	require.NoError(t, err)
	assert.Equal(t, "Use the refund form (3 sources, {{#missing.key#}})", out["answer"])
}

func TestAnswerRequiresTemplate(t *testing.T) {
	node := runtime.Node{ID: "answer", Kind: runtime.KindAnswer}
	exec := newExecution(t, nil, node)

	_, err := (&answerExecutor{}).Execute(exec, &node)
	fe := requireFlowError(t, err, runtime.ErrorTypeConfiguration, runtime.ErrorCodeConfigInvalid)
	assert.Equal(t, "answer", fe.Field)
	assert.Equal(t, "answer", fe.NodeID)
}
