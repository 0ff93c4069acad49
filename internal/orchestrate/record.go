package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/qcompat/internal/history"
)

// RecordOptions configures RecordAcross.
type RecordOptions struct {
	ProducerVersions []string
	QuestionsFile    string
}

// RecordAcross installs each producer version and records one question from
// it into the questions file.
func (o *Orchestrator) RecordAcross(ctx context.Context, opts RecordOptions) (Report, error) {
	if len(opts.ProducerVersions) == 0 {
		return Report{}, errors.New("no producer versions given")
	}
	questionsFile, err := filepath.Abs(opts.QuestionsFile)
	if err != nil {
		return Report{}, fmt.Errorf("questions file: %w", err)
	}

	rep := Report{RunID: o.ids.Generate()}
	o.logger.Info("recording questions", "run", rep.RunID, "versions", len(opts.ProducerVersions), "questions_file", questionsFile)

	for _, v := range opts.ProducerVersions {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if err := o.recordVersion(ctx, &rep, v, questionsFile); err != nil {
			return rep, err
		}
	}
	return rep, nil
}

// recordVersion returns an error only when ctx is done.
func (o *Orchestrator) recordVersion(ctx context.Context, rep *Report, v, questionsFile string) error {
	ctx, span := o.tracer.Start(ctx, "record "+v, trace.WithAttributes(
		attrRunID.String(rep.RunID),
		attrProducerVersion.String(v),
	))

	o.printVersion("parent", v)

	if err := o.prepare(ctx, v, v); err != nil {
		fmt.Fprintln(o.out, err)
		o.logger.Error("setup failed", "version", v, "error", err)
		o.record(ctx, rep, history.Attempt{
			Phase:           history.PhaseRecord,
			ProducerVersion: v,
			Outcome:         history.OutcomeSetupFailed,
			Output:          err.Error(),
		})
		endSpan(span, history.OutcomeSetupFailed, err)
		return ctx.Err()
	}

	res, err := o.runner.Run(ctx, o.children.RecordQuestion(questionsFile))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			endSpan(span, history.OutcomeRecordFailed, err)
			return ctxErr
		}
		fmt.Fprintf(o.out, "Recording a question from parent SDK version %s failed.\n%v\n", v, err)
		o.logger.Error("record child failed to run", "version", v, "error", err)
		o.record(ctx, rep, history.Attempt{
			Phase:           history.PhaseRecord,
			ProducerVersion: v,
			Outcome:         history.OutcomeRecordFailed,
			ExitCode:        res.ExitCode,
			DurationMS:      res.Duration.Milliseconds(),
			Output:          err.Error(),
		})
		endSpan(span, history.OutcomeRecordFailed, err)
		return nil
	}

	outcome := history.OutcomeRecorded
	if !res.Succeeded() {
		outcome = history.OutcomeRecordFailed
		fmt.Fprintf(o.out, "Recording a question from parent SDK version %s failed.\n%s\n", v, combinedOutput(res))
	}
	o.record(ctx, rep, history.Attempt{
		Phase:           history.PhaseRecord,
		ProducerVersion: v,
		Outcome:         outcome,
		ExitCode:        res.ExitCode,
		DurationMS:      res.Duration.Milliseconds(),
		Output:          combinedOutput(res),
	})
	endSpan(span, outcome, nil)
	return nil
}
