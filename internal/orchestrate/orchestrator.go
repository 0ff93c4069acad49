// Package orchestrate drives the record and replay passes across SDK
// versions. Each version is checked out and installed in turn, and each
// record or replay runs as an isolated child process in that version's
// environment. A failure for one version or pair never stops the pass.
package orchestrate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/qcompat/internal/history"
	"github.com/roach88/qcompat/internal/ids"
	"github.com/roach88/qcompat/internal/runner"
)

const tracerName = "github.com/roach88/qcompat/internal/orchestrate"

// Attribute keys set on spans.
const (
	attrProducerVersion = attribute.Key("qcompat.producer_version")
	attrConsumerVersion = attribute.Key("qcompat.consumer_version")
	attrRunID           = attribute.Key("qcompat.run_id")
	attrOutcome         = attribute.Key("qcompat.outcome")
)

// Log receives one entry per attempt. *history.Store satisfies it.
type Log interface {
	Append(ctx context.Context, a history.Attempt) (history.Attempt, error)
}

// Report summarises a pass.
type Report struct {
	RunID    string
	Attempts []history.Attempt
}

// Count returns how many attempts ended with outcome.
func (r Report) Count(outcome history.Outcome) int {
	n := 0
	for _, a := range r.Attempts {
		if a.Outcome == outcome {
			n++
		}
	}
	return n
}

// Orchestrator runs passes over a Runner.
type Orchestrator struct {
	runner   runner.Runner
	children Children
	log      Log
	ids      ids.Generator
	out      io.Writer
	notify   func(format string, args ...any)
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLog records every attempt to l.
func WithLog(l Log) Option {
	return func(o *Orchestrator) { o.log = l }
}

// WithIDs sets the generator for run and attempt IDs.
func WithIDs(g ids.Generator) Option {
	return func(o *Orchestrator) { o.ids = g }
}

// WithOutput sets where progress lines go.
func WithOutput(w io.Writer) Option {
	return func(o *Orchestrator) { o.out = w }
}

// WithNotices sends announcements of skipped questions to notify, one
// line per call. Without it they are dropped.
func WithNotices(notify func(format string, args ...any)) Option {
	return func(o *Orchestrator) { o.notify = notify }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithClock sets the time source for attempt timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New returns an Orchestrator running children through r.
func New(r runner.Runner, children Children, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		runner:   r,
		children: children,
		ids:      ids.UUIDv7Generator{},
		out:      io.Discard,
		logger:   slog.New(slog.DiscardHandler),
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// printVersion prints the banner that opens each version's section.
func (o *Orchestrator) printVersion(perspective, v string) {
	banner := fmt.Sprintf("\n%s VERSION %s", strings.ToUpper(perspective), v)
	fmt.Fprintln(o.out, banner)
	fmt.Fprintln(o.out, strings.Repeat("=", len(banner)-1))
}

// prepare checks out revision and installs it as v.
func (o *Orchestrator) prepare(ctx context.Context, revision, v string) error {
	fmt.Fprintln(o.out, "Checking out version...")
	if err := o.runner.Checkout(ctx, revision); err != nil {
		return err
	}
	fmt.Fprintln(o.out, "Installing version...")
	return o.runner.Install(ctx, v)
}

// record appends a to the log and the report. Log failures are reported
// but never stop the pass; the results file is the durable record.
func (o *Orchestrator) record(ctx context.Context, rep *Report, a history.Attempt) {
	a.ID = o.ids.Generate()
	a.RunID = rep.RunID
	a.RecordedAt = o.now()
	if o.log != nil {
		stored, err := o.log.Append(ctx, a)
		if err != nil {
			o.logger.Warn("history append failed", "attempt", a.ID, "error", err)
		} else {
			a = stored
		}
	}
	rep.Attempts = append(rep.Attempts, a)
}

// endSpan closes span with the attempt's outcome.
func endSpan(span trace.Span, outcome history.Outcome, err error) {
	span.SetAttributes(attrOutcome.String(string(outcome)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else if outcome != history.OutcomeCompatible && outcome != history.OutcomeRecorded {
		span.SetStatus(codes.Error, string(outcome))
	}
	span.End()
}

func combinedOutput(res runner.Result) string {
	return strings.TrimRight(res.Stdout+"\n"+res.Stderr, "\n")
}
