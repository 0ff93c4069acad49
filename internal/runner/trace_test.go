package runner

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func withTraceContextPropagator(t *testing.T) {
	t.Helper()
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })
}

func sampledContext(t *testing.T) (context.Context, trace.SpanContext) {
	t.Helper()
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	return trace.ContextWithSpanContext(context.Background(), sc), sc
}

func TestTraceEnv(t *testing.T) {
	withTraceContextPropagator(t)
	ctx, _ := sampledContext(t)

	env := traceEnv(ctx)
	assert.Contains(t, env, "TRACEPARENT=00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
}

func TestTraceEnv_NoSpan(t *testing.T) {
	withTraceContextPropagator(t)
	assert.Empty(t, traceEnv(context.Background()))
}

func TestContextFromEnv(t *testing.T) {
	withTraceContextPropagator(t)
	t.Setenv("TRACEPARENT", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")

	sc := trace.SpanContextFromContext(ContextFromEnv(context.Background()))
	assert.True(t, sc.IsValid())
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", sc.TraceID().String())
	assert.True(t, sc.IsRemote())
}

func TestRun_PassesTraceContext(t *testing.T) {
	requireCommand(t, "sh")
	withTraceContextPropagator(t)
	ctx, _ := sampledContext(t)

	s := NewShell(t.TempDir(), WithEnvPathCommand())
	res, err := s.Run(ctx, []string{"sh", "-c", "echo $TRACEPARENT"})
	require.NoError(t, err)
	assert.Equal(t, "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", strings.TrimSpace(res.Stdout))
}
