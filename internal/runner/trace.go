package runner

import (
	"context"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// traceEnv renders the trace context in ctx as environment entries
// (TRACEPARENT, TRACESTATE) for a child process.
func traceEnv(ctx context.Context) []string {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	env := make([]string, 0, len(carrier))
	for _, key := range carrier.Keys() {
		env = append(env, strings.ToUpper(key)+"="+carrier.Get(key))
	}
	return env
}

// ContextFromEnv returns ctx carrying the trace context a parent process
// passed in this process's environment, if any.
func ContextFromEnv(ctx context.Context) context.Context {
	carrier := propagation.MapCarrier{}
	for _, key := range otel.GetTextMapPropagator().Fields() {
		if v := os.Getenv(strings.ToUpper(key)); v != "" {
			carrier.Set(key, v)
		}
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
