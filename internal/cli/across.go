package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/roach88/qcompat/internal/config"
	"github.com/roach88/qcompat/internal/history"
	"github.com/roach88/qcompat/internal/orchestrate"
	"github.com/roach88/qcompat/internal/question"
	"github.com/roach88/qcompat/internal/runner"
	"github.com/roach88/qcompat/internal/version"
)

// AcrossOptions holds the flags shared by record-questions and
// process-questions. Flags override the config only when set.
type AcrossOptions struct {
	*RootOptions
	SDKRepoPath      string
	ProducerVersions string
	QuestionsFile    string

	// Runner and Children allow overriding the version runner and child
	// command (for testing). If nil, a Shell over SDKRepoPath and this
	// executable are used.
	Runner   runner.Runner
	Children *orchestrate.Children
}

func (o *AcrossOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.SDKRepoPath, "sdk-repo-path", ".", "path to a local clone of the SDK repository")
	cmd.Flags().StringVar(&o.ProducerVersions, "producer-versions", "", "comma-separated producer (parent) versions (default: every release)")
	cmd.Flags().StringVar(&o.QuestionsFile, "questions-file", "recorded_questions.jsonl", "path to the recorded questions file")
}

// apply overlays the flags that were set onto cfg.
func (o *AcrossOptions) apply(cmd *cobra.Command, cfg *config.Config) error {
	if cmd.Flags().Changed("sdk-repo-path") {
		cfg.SDKRepoPath = o.SDKRepoPath
	}
	if cmd.Flags().Changed("producer-versions") {
		versions, err := version.ParseList(o.ProducerVersions)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --producer-versions", err)
		}
		cfg.ProducerVersions = versions
	}
	if cmd.Flags().Changed("questions-file") {
		cfg.QuestionsFile = o.QuestionsFile
	}
	return nil
}

// orchestrator builds an Orchestrator for cfg. The returned close func
// releases the history database.
func (o *AcrossOptions) orchestrator(cmd *cobra.Command, cfg *config.Config) (*orchestrate.Orchestrator, func(), error) {
	formatter := newFormatter(cmd, o.RootOptions)
	r := o.Runner
	if r == nil {
		shellOpts := []runner.Option{
			runner.WithInstallCommand(cfg.InstallCommand...),
			runner.WithEnvPathCommand(cfg.EnvPathCommand...),
			runner.WithLogger(slog.Default()),
		}
		if o.Verbose {
			shellOpts = append(shellOpts, runner.WithStream(formatter.GetErrWriter()))
		}
		r = runner.NewShell(cfg.SDKRepoPath, shellOpts...)
	}

	children, err := o.children()
	if err != nil {
		return nil, nil, err
	}

	orchOpts := []orchestrate.Option{
		orchestrate.WithOutput(formatter.GetErrWriter()),
		orchestrate.WithNotices(formatter.VerboseLog),
		orchestrate.WithLogger(slog.Default()),
		orchestrate.WithTracer(otel.Tracer(tracerName)),
	}
	closeFn := func() {}
	if cfg.HistoryDB != "" {
		st, err := history.Open(cfg.HistoryDB)
		if err != nil {
			return nil, nil, WrapExitError(ExitCommandError, "failed to open history database", err)
		}
		orchOpts = append(orchOpts, orchestrate.WithLog(st))
		closeFn = func() {
			if closeErr := st.Close(); closeErr != nil {
				slog.Error("error closing history database", "error", closeErr)
			}
		}
	}
	return orchestrate.New(r, children, orchOpts...), closeFn, nil
}

func (o *AcrossOptions) children() (orchestrate.Children, error) {
	if o.Children != nil {
		return *o.Children, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return orchestrate.Children{}, WrapExitError(ExitCommandError, "failed to locate qcompat executable", err)
	}
	args := []string{exe}
	if o.Verbose {
		args = append(args, "--verbose")
	}
	return orchestrate.Children{Executable: args}, nil
}

// reportSummary is the JSON payload of the across commands.
type reportSummary struct {
	RunID    string                  `json:"run_id"`
	Outcomes map[history.Outcome]int `json:"outcomes"`
	Attempts []history.Attempt       `json:"attempts"`
}

func summarise(rep orchestrate.Report) reportSummary {
	outcomes := map[history.Outcome]int{}
	for _, a := range rep.Attempts {
		outcomes[a.Outcome]++
	}
	attempts := rep.Attempts
	if attempts == nil {
		attempts = []history.Attempt{}
	}
	return reportSummary{RunID: rep.RunID, Outcomes: outcomes, Attempts: attempts}
}

// NewRecordQuestionsCommand creates the record-questions command.
func NewRecordQuestionsCommand(rootOpts *RootOptions) *cobra.Command {
	return newRecordQuestionsCommand(&AcrossOptions{RootOptions: rootOpts})
}

func newRecordQuestionsCommand(opts *AcrossOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record-questions",
		Short: "Record a question from each producer version",
		Long: `Check out and install each producer version of the SDK in turn and record
one question from it to the questions file.

A version that fails to check out, install or record is reported and
skipped; the remaining versions are still recorded.

Examples:
  qcompat record-questions --sdk-repo-path ../sdk
  qcompat record-questions --producer-versions 0.41.1,0.41.0 --questions-file q.jsonl`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecordQuestions(opts, cmd)
		},
	}
	opts.addFlags(cmd)

	return cmd
}

func runRecordQuestions(opts *AcrossOptions, cmd *cobra.Command) error {
	cfg, err := opts.Config()
	if err != nil {
		return err
	}
	if err := opts.apply(cmd, cfg); err != nil {
		return err
	}

	orch, closeFn, err := opts.orchestrator(cmd, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := commandContext(cmd)
	defer cancel()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "record-questions")
	defer span.End()

	rep, err := orch.RecordAcross(ctx, orchestrate.RecordOptions{
		ProducerVersions: cfg.ProducerVersions,
		QuestionsFile:    cfg.QuestionsFile,
	})
	if err != nil {
		return WrapExitError(ExitFailure, "recording stopped", err)
	}

	formatter := newFormatter(cmd, opts.RootOptions)
	if opts.Format == "json" {
		return formatter.Success(summarise(rep))
	}
	return formatter.Success(fmt.Sprintf("\nRecorded questions from %d of %d versions.",
		rep.Count(history.OutcomeRecorded), len(cfg.ProducerVersions)))
}

// ProcessOptions holds flags for the process-questions command.
type ProcessOptions struct {
	AcrossOptions
	ConsumerVersions string
	Branches         string
	ResultsFile      string
	Timeout          time.Duration
	Boundaries       string
}

// NewProcessQuestionsCommand creates the process-questions command.
func NewProcessQuestionsCommand(rootOpts *RootOptions) *cobra.Command {
	return newProcessQuestionsCommand(&ProcessOptions{AcrossOptions: AcrossOptions{RootOptions: rootOpts}})
}

func newProcessQuestionsCommand(opts *ProcessOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process-questions",
		Short: "Replay recorded questions against each consumer version",
		Long: `Check out and install each consumer version of the SDK in turn and replay
every recorded question from the requested producer versions against it.
Each replay runs in its own process and writes its verdict to the results
file.

Untagged consumer versions can be checked out from a branch with
--untagged-consumer-version-branches VERSION=BRANCH[,VERSION=BRANCH...].

Examples:
  qcompat process-questions --sdk-repo-path ../sdk
  qcompat process-questions --consumer-versions 0.42.0 \
      --untagged-consumer-version-branches 0.42.0=release/0.42.0`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcessQuestions(opts, cmd)
		},
	}
	opts.addFlags(cmd)
	cmd.Flags().StringVar(&opts.ConsumerVersions, "consumer-versions", "", "comma-separated consumer (child) versions (default: every release)")
	cmd.Flags().StringVar(&opts.Branches, "untagged-consumer-version-branches", "", "VERSION=BRANCH pairs for consumer versions without a tag")
	cmd.Flags().StringVar(&opts.ResultsFile, "results-file", "version_compatibility_results.json", "path to the compatibility results file")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 10*time.Minute, "time limit for each replay (0 for none)")
	cmd.Flags().StringVar(&opts.Boundaries, "breaking-boundaries", "2.0.0", "comma-separated breaking-change versions")

	return cmd
}

func runProcessQuestions(opts *ProcessOptions, cmd *cobra.Command) error {
	cfg, err := opts.Config()
	if err != nil {
		return err
	}
	if err := opts.apply(cmd, cfg); err != nil {
		return err
	}
	if err := opts.applyProcess(cmd, cfg); err != nil {
		return err
	}

	orch, closeFn, err := opts.orchestrator(cmd, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := commandContext(cmd)
	defer cancel()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "process-questions")
	defer span.End()

	rep, err := orch.ProcessAcross(ctx, orchestrate.ProcessOptions{
		ProducerVersions: cfg.ProducerVersions,
		ConsumerVersions: cfg.ConsumerVersions,
		BranchOverrides:  cfg.UntaggedConsumerVersionBranches,
		QuestionsFile:    cfg.QuestionsFile,
		ResultsFile:      cfg.ResultsFile,
		PairTimeout:      cfg.PairTimeout,
		Boundaries:       cfg.BreakingBoundaries,
	})
	if errors.Is(err, question.ErrNoQuestions) || errors.Is(err, os.ErrNotExist) {
		return WrapExitError(ExitCommandError, "failed to read questions", err)
	}
	if err != nil {
		return WrapExitError(ExitFailure, "processing stopped", err)
	}

	formatter := newFormatter(cmd, opts.RootOptions)
	if opts.Format == "json" {
		return formatter.Success(summarise(rep))
	}
	return formatter.Success(fmt.Sprintf("\n%d compatible, %d incompatible, %d timed out, %d versions failed to install.",
		rep.Count(history.OutcomeCompatible),
		rep.Count(history.OutcomeIncompatible),
		rep.Count(history.OutcomeTimeout),
		rep.Count(history.OutcomeSetupFailed),
	))
}

func (o *ProcessOptions) applyProcess(cmd *cobra.Command, cfg *config.Config) error {
	if cmd.Flags().Changed("consumer-versions") {
		versions, err := version.ParseList(o.ConsumerVersions)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --consumer-versions", err)
		}
		cfg.ConsumerVersions = versions
	}
	if cmd.Flags().Changed("untagged-consumer-version-branches") {
		branches, err := version.ParseBranchOverrides(o.Branches)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --untagged-consumer-version-branches", err)
		}
		cfg.UntaggedConsumerVersionBranches = branches
	}
	if cmd.Flags().Changed("results-file") {
		cfg.ResultsFile = o.ResultsFile
	}
	if cmd.Flags().Changed("timeout") {
		if o.Timeout < 0 {
			return NewExitError(ExitCommandError, "invalid --timeout: negative duration")
		}
		cfg.PairTimeout = o.Timeout
	}
	if cmd.Flags().Changed("breaking-boundaries") {
		boundaries, err := parseBoundaries(o.Boundaries)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --breaking-boundaries", err)
		}
		cfg.BreakingBoundaries = boundaries
	}
	return nil
}

// parseBoundaries parses a comma-separated boundary list. An empty list
// means no boundaries.
func parseBoundaries(csv string) (version.Boundaries, error) {
	boundaries := version.Boundaries{}
	for _, raw := range strings.Split(csv, ",") {
		if b := strings.TrimSpace(raw); b != "" {
			boundaries = append(boundaries, b)
		}
	}
	if err := boundaries.Validate(); err != nil {
		return nil, err
	}
	return boundaries, nil
}
