package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestInstruments(t *testing.T) (*Instruments, *tracetest.SpanRecorder, *sdkmetric.ManualReader) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		_ = mp.Shutdown(context.Background())
	})
	return New(tp, mp), recorder, reader
}

func attrValue(attrs []attribute.KeyValue, key string) string {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value.Emit()
		}
	}
	return ""
}

func TestInstruments_Spans(t *testing.T) {
	i, recorder, _ := newTestInstruments(t)
	ctx := context.Background()

	execCtx, execSpan := i.StartExecution(ctx, "support", "exec-1", "tenant-a")
	nodeCtx, nodeSpan := i.StartNode(execCtx, "llm", "llm", "tenant-a")
	i.EndNode(nodeCtx, nodeSpan, "llm", "failed", 5*time.Millisecond, errors.New("rate limited"))
	i.EndExecution(execCtx, execSpan, "failed", errors.New("rate limited"))

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	node, exec := spans[0], spans[1]
	assert.Equal(t, "agentflow.node", node.Name())
	assert.Equal(t, "agentflow.execute", exec.Name())
	assert.Equal(t, exec.SpanContext().SpanID(), node.Parent().SpanID(), "node span is a child of the execution span")

	assert.Equal(t, "llm", attrValue(node.Attributes(), "node.id"))
	assert.Equal(t, "tenant-a", attrValue(node.Attributes(), "tenant.id"))
	assert.Equal(t, "failed", attrValue(node.Attributes(), "node.status"))
	assert.Equal(t, codes.Error, node.Status().Code)

	assert.Equal(t, "support", attrValue(exec.Attributes(), "flow.id"))
	assert.Equal(t, "exec-1", attrValue(exec.Attributes(), "execution.id"))
	assert.Equal(t, "failed", attrValue(exec.Attributes(), "execution.status"))
}

func TestInstruments_Metrics(t *testing.T) {
	i, _, reader := newTestInstruments(t)
	ctx := context.Background()

	for _, status := range []string{"success", "success", "failed"} {
		_, span := i.StartNode(ctx, "n", "answer", "tenant-a")
		i.EndNode(ctx, span, "answer", status, time.Millisecond, nil)
	}
	_, span := i.StartExecution(ctx, "f", "e", "tenant-a")
	i.EndExecution(ctx, span, "completed", nil)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	found := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			found[m.Name] = true
			if m.Name != "agentflow.node.visits" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			assert.Equal(t, int64(3), total)
			assert.Len(t, sum.DataPoints, 2, "one series per node status")
		}
	}
	assert.True(t, found["agentflow.node.visits"])
	assert.True(t, found["agentflow.node.duration"])
	assert.True(t, found["agentflow.executions"])
}

func TestInstruments_NilRecordsNothing(t *testing.T) {
	var i *Instruments
	ctx := context.Background()

	got, span := i.StartExecution(ctx, "f", "e", "t")
	assert.Equal(t, ctx, got)
	assert.NotPanics(t, func() {
		i.EndExecution(ctx, span, "completed", nil)
		_, nodeSpan := i.StartNode(ctx, "n", "answer", "t")
		i.EndNode(ctx, nodeSpan, "answer", "success", time.Millisecond, nil)
	})
}

func TestSetup_Disabled(t *testing.T) {
	p, err := Setup(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, p.Logger)
	assert.NoError(t, p.Shutdown(context.Background()))

	var none *Providers
	assert.NoError(t, none.Shutdown(context.Background()))
}
