package otelhelper

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/dukex/ruleflow/pkg/models"
)

func TestStartSpanAndSetError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	_, span := StartSpan(context.Background(), provider.Tracer("test"), "rule.run",
		attribute.String(RuleCodeKey, "escalate"))
	SetError(span, errors.New("boom"), attribute.String(RecordIDKey, "r1"))
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "rule.run", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Contains(t, ended[0].Attributes(), attribute.String(RuleCodeKey, "escalate"))
	require.NotEmpty(t, ended[0].Events())
}

func TestSetError_TagsEngineErrors(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	_, span := StartSpan(context.Background(), provider.Tracer("test"), "workflow.transition")
	SetError(span, models.NewGuardFailedError("ExecuteTransition", models.ClausePermission, "actor lacks group %s", "managers"))
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Contains(t, ended[0].Attributes(), attribute.String(ErrorKindKey, string(models.KindGuardFailed)))
	assert.Contains(t, ended[0].Attributes(), attribute.String(GuardClauseKey, string(models.ClausePermission)))
}

func TestTracerFallsBackToGlobal(t *testing.T) {
	assert.NotNil(t, Tracer(nil))
}
