package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/qcompat/internal/history"
	"github.com/roach88/qcompat/internal/question"
	"github.com/roach88/qcompat/internal/version"
)

// ProcessOptions configures ProcessAcross.
type ProcessOptions struct {
	ProducerVersions []string
	ConsumerVersions []string
	// BranchOverrides maps an untagged consumer version to the branch
	// checked out in its place.
	BranchOverrides map[string]string
	QuestionsFile   string
	ResultsFile     string
	// PairTimeout bounds each replay child. Zero means no limit.
	PairTimeout time.Duration
	// Boundaries is passed through to each replay child. Nil leaves the
	// child's default in place.
	Boundaries version.Boundaries
}

// ProcessAcross installs each consumer version and replays every recorded
// question from a requested producer version against it.
func (o *Orchestrator) ProcessAcross(ctx context.Context, opts ProcessOptions) (Report, error) {
	if len(opts.ConsumerVersions) == 0 {
		return Report{}, errors.New("no consumer versions given")
	}
	questions, err := question.ReadAll(opts.QuestionsFile)
	if err != nil {
		return Report{}, err
	}
	resultsFile, err := filepath.Abs(opts.ResultsFile)
	if err != nil {
		return Report{}, fmt.Errorf("results file: %w", err)
	}

	rep := Report{RunID: o.ids.Generate()}
	o.logger.Info("processing questions",
		"run", rep.RunID,
		"questions", len(questions),
		"consumers", len(opts.ConsumerVersions),
		"results_file", resultsFile,
	)

	for _, consumer := range opts.ConsumerVersions {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if err := o.processVersion(ctx, &rep, opts, consumer, questions, resultsFile); err != nil {
			return rep, err
		}
	}
	return rep, nil
}

func (o *Orchestrator) processVersion(ctx context.Context, rep *Report, opts ProcessOptions, consumer string, questions []question.Recorded, resultsFile string) error {
	ctx, span := o.tracer.Start(ctx, "process "+consumer, trace.WithAttributes(
		attrRunID.String(rep.RunID),
		attrConsumerVersion.String(consumer),
	))
	defer span.End()

	o.printVersion("child", consumer)

	revision := consumer
	if branch, ok := opts.BranchOverrides[consumer]; ok {
		fmt.Fprintf(o.out, "Using %q branch instead of version %s.\n", branch, consumer)
		revision = branch
	}

	if err := o.prepare(ctx, revision, consumer); err != nil {
		fmt.Fprintln(o.out, err)
		o.logger.Error("setup failed", "version", consumer, "revision", revision, "error", err)
		o.record(ctx, rep, history.Attempt{
			Phase:           history.PhaseProcess,
			ConsumerVersion: consumer,
			Outcome:         history.OutcomeSetupFailed,
			Output:          err.Error(),
		})
		span.RecordError(err)
		return ctx.Err()
	}

	o.announceSkipped(questions, opts.ProducerVersions)
	for _, q := range question.FilterByProducer(questions, opts.ProducerVersions) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := o.processPair(ctx, rep, opts, q, consumer, resultsFile); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) announceSkipped(questions []question.Recorded, producers []string) {
	if o.notify == nil {
		return
	}
	for _, q := range questions {
		if !version.Contains(producers, q.ProducerVersion) {
			o.notify("Version %q not included in %q.", q.ProducerVersion, producers)
		}
	}
}

// processPair runs one replay child. It returns an error only when the
// question file cannot be written or ctx is done.
func (o *Orchestrator) processPair(ctx context.Context, rep *Report, opts ProcessOptions, q question.Recorded, consumer, resultsFile string) error {
	ctx, span := o.tracer.Start(ctx, "replay", trace.WithAttributes(
		attrRunID.String(rep.RunID),
		attrProducerVersion.String(q.ProducerVersion),
		attrConsumerVersion.String(consumer),
	))

	questionFile, cleanup, err := writeQuestion(q)
	if err != nil {
		endSpan(span, history.OutcomeIncompatible, err)
		return err
	}
	defer cleanup()

	pairCtx := ctx
	if opts.PairTimeout > 0 {
		var cancel context.CancelFunc
		pairCtx, cancel = context.WithTimeout(ctx, opts.PairTimeout)
		defer cancel()
	}

	args := o.children.ProcessQuestion(questionFile, resultsFile, consumer, opts.Boundaries)
	res, err := o.runner.Run(pairCtx, args)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			endSpan(span, history.OutcomeIncompatible, err)
			return ctxErr
		}
		fmt.Fprintf(o.out, "Questions from parent SDK version %s maybe be incompatible with child SDK version %s.\n%v\n",
			q.ProducerVersion, consumer, err)
		o.logger.Error("replay child failed to run", "producer", q.ProducerVersion, "consumer", consumer, "error", err)
		o.record(ctx, rep, history.Attempt{
			Phase:           history.PhaseProcess,
			ProducerVersion: q.ProducerVersion,
			ConsumerVersion: consumer,
			Outcome:         history.OutcomeIncompatible,
			ExitCode:        res.ExitCode,
			DurationMS:      res.Duration.Milliseconds(),
			Output:          err.Error(),
		})
		endSpan(span, history.OutcomeIncompatible, err)
		return nil
	}

	var outcome history.Outcome
	switch {
	case res.TimedOut:
		outcome = history.OutcomeTimeout
		fmt.Fprintf(o.out, "Processing questions from parent SDK version %s with child SDK version %s timed out after %s.\n",
			q.ProducerVersion, consumer, opts.PairTimeout)
	case res.ExitCode != 0:
		outcome = history.OutcomeIncompatible
		fmt.Fprintf(o.out, "Questions from parent SDK version %s maybe be incompatible with child SDK version %s.\n%s\n%s\n",
			q.ProducerVersion, consumer, res.Stdout, res.Stderr)
	default:
		outcome = history.OutcomeCompatible
	}

	o.record(ctx, rep, history.Attempt{
		Phase:           history.PhaseProcess,
		ProducerVersion: q.ProducerVersion,
		ConsumerVersion: consumer,
		Outcome:         outcome,
		ExitCode:        res.ExitCode,
		DurationMS:      res.Duration.Milliseconds(),
		Output:          combinedOutput(res),
	})
	endSpan(span, outcome, nil)
	return nil
}

// writeQuestion writes q to its own temporary file for a replay child.
func writeQuestion(q question.Recorded) (string, func(), error) {
	f, err := os.CreateTemp("", "qcompat-question-*.json")
	if err != nil {
		return "", nil, fmt.Errorf("question file: %w", err)
	}
	path := f.Name()
	cleanup := func() { _ = os.Remove(path) }
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("question file: %w", err)
	}
	if err := question.WriteFile(path, q); err != nil {
		cleanup()
		return "", nil, err
	}
	return path, cleanup, nil
}
