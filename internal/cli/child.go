package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/roach88/qcompat/internal/player"
	"github.com/roach88/qcompat/internal/question"
	"github.com/roach88/qcompat/internal/recorder"
	"github.com/roach88/qcompat/internal/runner"
	"github.com/roach88/qcompat/internal/sdk"
)

// RecordQuestionOptions holds flags for the record-question command.
type RecordQuestionOptions struct {
	*RootOptions
	QuestionsFile string
}

// NewRecordQuestionCommand creates the hidden record-question command, run
// by record-questions inside each producer version's environment.
func NewRecordQuestionCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecordQuestionOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "record-question",
		Short:         "Record one question from the installed SDK version",
		Hidden:        true,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecordQuestion(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.QuestionsFile, "questions-file", "recorded_questions.jsonl", "file to append the question to")

	return cmd
}

func runRecordQuestion(opts *RecordQuestionOptions, cmd *cobra.Command) error {
	s, err := sdk.Installed()
	if err != nil {
		return WrapExitError(ExitCommandError, "no SDK version installed", err)
	}

	ctx := runner.ContextFromEnv(cmd.Context())
	ctx, span := otel.Tracer(tracerName).Start(ctx, "record-question")
	defer span.End()
	span.SetAttributes(attribute.String("qcompat.producer_version", s.Version()))

	q, err := recorder.New(s, recorder.WithLogger(slog.Default())).RecordTo(ctx, opts.QuestionsFile)
	if err != nil {
		span.RecordError(err)
		return WrapExitError(ExitFailure, fmt.Sprintf("failed to record question from version %s", s.Version()), err)
	}
	slog.Debug("question recorded", "producer", q.ProducerVersion, "question_uuid", q.UUID(), "file", opts.QuestionsFile)
	return nil
}

// ProcessQuestionOptions holds flags for the process-question command.
type ProcessQuestionOptions struct {
	*RootOptions
	QuestionFile    string
	ResultsFile     string
	ConsumerVersion string
	Boundaries      string
}

// NewProcessQuestionCommand creates the hidden process-question command,
// run by process-questions for each (consumer version, question) pair.
func NewProcessQuestionCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ProcessQuestionOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "process-question",
		Short: "Replay one recorded question against the installed SDK version",
		Long: `Replay one recorded question against the installed SDK version and write
the verdict to the results file.

Exit codes:
  0 - The question was answered
  1 - The question could not be processed (verdict recorded as incompatible)
  2 - Command error (unreadable question file, etc.)`,
		Hidden:        true,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcessQuestion(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.QuestionFile, "question-file", "", "file holding one recorded question (required)")
	_ = cmd.MarkFlagRequired("question-file")
	cmd.Flags().StringVar(&opts.ResultsFile, "results-file", "version_compatibility_results.json", "compatibility results file")
	cmd.Flags().StringVar(&opts.ConsumerVersion, "consumer-version", "", "consumer version to record the verdict under (default: installed version)")
	cmd.Flags().StringVar(&opts.Boundaries, "breaking-boundaries", "2.0.0", "comma-separated breaking-change versions")

	return cmd
}

func runProcessQuestion(opts *ProcessQuestionOptions, cmd *cobra.Command) error {
	q, err := question.ReadFile(opts.QuestionFile)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read question", err)
	}
	boundaries, err := parseBoundaries(opts.Boundaries)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --breaking-boundaries", err)
	}

	s, err := consumerSDK(opts.ConsumerVersion)
	if err != nil {
		return WrapExitError(ExitCommandError, "no SDK version installed", err)
	}
	consumer := opts.ConsumerVersion
	if consumer == "" {
		consumer = s.Version()
	}

	ctx := runner.ContextFromEnv(cmd.Context())
	ctx, span := otel.Tracer(tracerName).Start(ctx, "process-question")
	defer span.End()
	span.SetAttributes(
		attribute.String("qcompat.producer_version", q.ProducerVersion),
		attribute.String("qcompat.consumer_version", consumer),
	)

	p := player.New(s, opts.ResultsFile,
		player.WithBoundaries(boundaries),
		player.WithOutput(cmd.OutOrStdout()),
		player.WithLogger(slog.Default()),
	)
	if _, err := p.Replay(ctx, q, consumer); err != nil {
		span.RecordError(err)
		return WrapExitError(ExitFailure, "question could not be processed", err)
	}
	return nil
}

// consumerSDK prefers the version the runner installed. Outside a runner
// environment it falls back to the requested consumer version.
func consumerSDK(consumerVersion string) (sdk.SDK, error) {
	if os.Getenv(sdk.VersionEnv) != "" || consumerVersion == "" {
		return sdk.Installed()
	}
	return sdk.Open(consumerVersion)
}
