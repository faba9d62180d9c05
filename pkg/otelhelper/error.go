package otelhelper

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dukex/ruleflow/pkg/models"
)

const (
	ErrorKindKey   = "ruleflow.error.kind"
	GuardClauseKey = "ruleflow.guard.clause"
)

// SetError marks span as failed. Engine errors also tag the span with
// their kind and, for guard failures, the clause that rejected the call.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if kind := models.KindOf(err); kind != "" {
		span.SetAttributes(attribute.String(ErrorKindKey, string(kind)))
	}

	if clause := models.ClauseOf(err); clause != "" {
		span.SetAttributes(attribute.String(GuardClauseKey, string(clause)))
	}

	span.RecordError(err, trace.WithAttributes(attrs...))
	span.SetStatus(codes.Error, err.Error())
}
