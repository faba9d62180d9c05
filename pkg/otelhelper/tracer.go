// Package otelhelper wires OpenTelemetry tracing for transitions, rules and actions.
package otelhelper

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otlptracehttp "go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	// Common attribute keys.
	WorkflowIDKey     = "ruleflow.workflow.id"
	WorkflowCodeKey   = "ruleflow.workflow.code"
	TransitionIDKey   = "ruleflow.transition.id"
	TransitionCodeKey = "ruleflow.transition.code"
	RuleIDKey         = "ruleflow.rule.id"
	RuleCodeKey       = "ruleflow.rule.code"
	TriggerKey        = "ruleflow.rule.trigger"
	ActionIDKey       = "ruleflow.action.id"
	ActionCodeKey     = "ruleflow.action.code"
	ActionKindKey     = "ruleflow.action.kind"
	ModelKey          = "ruleflow.record.model"
	RecordIDKey       = "ruleflow.record.id"
	RecordCountKey    = "ruleflow.record.count"
)

const instrumentationName = "github.com/dukex/ruleflow"

// Tracer returns t, or the globally registered tracer when t is nil.
//
// nolint:ireturn // Returning interface is intentional for OpenTelemetry tracing
func Tracer(t trace.Tracer) trace.Tracer {
	if t != nil {
		return t
	}

	return otel.Tracer(instrumentationName)
}

// nolint:ireturn // Returning interface is intentional for OpenTelemetry tracing
func NewTracer(ctx context.Context, serviceName string) (trace.Tracer, error) {
	provider, err := newTracerProvider(ctx, serviceName)
	if err != nil {
		return nil, err
	}

	return provider.Tracer(serviceName), nil
}

// nolint:ireturn,spancheck // Returning interface is intentional for OpenTelemetry tracing
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func newTracerProvider(ctx context.Context, serviceName string) (*sdktrace.TracerProvider, error) {
	r, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, err
	}

	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(r),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}))

	return tp, nil
}
