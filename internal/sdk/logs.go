package sdk

import (
	"context"
	"log/slog"
	"time"
)

// forwardingHandler sends every log record to the question's answer topic
// as a log_record message, and to the next handler.
type forwardingHandler struct {
	next    slog.Handler
	publish func(kind string, fields map[string]any) error
	attrs   []slog.Attr
	group   string
}

func newForwardingHandler(next slog.Handler, publish func(string, map[string]any) error) *forwardingHandler {
	return &forwardingHandler{next: next, publish: publish}
}

func (h *forwardingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= slog.LevelInfo || h.next.Enabled(ctx, level)
}

func (h *forwardingHandler) Handle(ctx context.Context, r slog.Record) error {
	attrs := map[string]any{}
	for _, a := range h.attrs {
		attrs[a.Key] = a.Value.String()
	}
	r.Attrs(func(a slog.Attr) bool {
		key := a.Key
		if h.group != "" {
			key = h.group + "." + key
		}
		attrs[key] = a.Value.String()
		return true
	})

	record := map[string]any{
		"msg":       r.Message,
		"levelname": r.Level.String(),
		"created":   r.Time.UTC().Format(time.RFC3339Nano),
	}
	if len(attrs) > 0 {
		record["attrs"] = attrs
	}
	if err := h.publish("log_record", map[string]any{"log_record": record}); err != nil {
		return err
	}

	if h.next.Enabled(ctx, r.Level) {
		return h.next.Handle(ctx, r)
	}
	return nil
}

func (h *forwardingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	clone.next = h.next.WithAttrs(attrs)
	return &clone
}

func (h *forwardingHandler) WithGroup(name string) slog.Handler {
	clone := *h
	clone.group = name
	if h.group != "" {
		clone.group = h.group + "." + name
	}
	clone.next = h.next.WithGroup(name)
	return &clone
}
