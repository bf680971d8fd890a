// Package telemetry holds the OpenTelemetry instruments recorded by the
// execution engine and the SDK wiring that exports them over OTLP.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/BDNK1/agentflow/runtime"

// Instruments records spans and metrics for executions and node visits.
// A nil *Instruments is valid and records nothing.
type Instruments struct {
	tracer     trace.Tracer
	visits     metric.Int64Counter
	duration   metric.Float64Histogram
	executions metric.Int64Counter
}

// New builds instruments on the given providers; nil providers fall back to
// the global ones installed by Setup (or otel's no-op defaults).
func New(tp trace.TracerProvider, mp metric.MeterProvider) *Instruments {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)

	i := &Instruments{tracer: tp.Tracer(instrumentationName)}

	var err error
	if i.visits, err = meter.Int64Counter("agentflow.node.visits",
		metric.WithDescription("Node visits performed by the execution engine"),
		metric.WithUnit("{visit}")); err != nil {
		i.visits = noop.Int64Counter{}
	}
	if i.duration, err = meter.Float64Histogram("agentflow.node.duration",
		metric.WithDescription("Node execution latency"),
		metric.WithUnit("ms")); err != nil {
		i.duration = noop.Float64Histogram{}
	}
	if i.executions, err = meter.Int64Counter("agentflow.executions",
		metric.WithDescription("Finished executions by terminal status"),
		metric.WithUnit("{execution}")); err != nil {
		i.executions = noop.Int64Counter{}
	}
	return i
}

func (i *Instruments) StartExecution(ctx context.Context, flowID, executionID, tenantID string) (context.Context, trace.Span) {
	if i == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return i.tracer.Start(ctx, "agentflow.execute", trace.WithAttributes(
		attribute.String("flow.id", flowID),
		attribute.String("execution.id", executionID),
		attribute.String("tenant.id", tenantID),
	))
}

func (i *Instruments) EndExecution(ctx context.Context, span trace.Span, status string, err error) {
	if i == nil {
		return
	}
	span.SetAttributes(attribute.String("execution.status", status))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	i.executions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func (i *Instruments) StartNode(ctx context.Context, nodeID, kind, tenantID string) (context.Context, trace.Span) {
	if i == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return i.tracer.Start(ctx, "agentflow.node", trace.WithAttributes(
		attribute.String("node.id", nodeID),
		attribute.String("node.kind", kind),
		attribute.String("tenant.id", tenantID),
	))
}

func (i *Instruments) EndNode(ctx context.Context, span trace.Span, kind, status string, elapsed time.Duration, err error) {
	if i == nil {
		return
	}
	span.SetAttributes(attribute.String("node.status", status))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()

	attrs := metric.WithAttributes(
		attribute.String("node.kind", kind),
		attribute.String("node.status", status),
	)
	i.visits.Add(ctx, 1, attrs)
	i.duration.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
}
