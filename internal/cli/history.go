package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/qcompat/internal/history"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	RunID    string
	All      bool
	Producer string
	Consumer string
	Outcome  string
	Limit    int
}

// HistoryResult is the JSON payload of the history command.
type HistoryResult struct {
	RunID    string                  `json:"run_id,omitempty"`
	Attempts []history.Attempt       `json:"attempts"`
	Summary  map[history.Outcome]int `json:"summary"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded and replayed attempts",
		Long: `List attempts from the history database, in the order they ran.

By default only the latest run is shown. Timed-out pairs and versions that
failed to install appear here but not in the compatibility matrix.

Examples:
  qcompat history
  qcompat history --all --outcome incompatible
  qcompat history --run 0192f0c4-... --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.RunID, "run", "", "run ID to show (default: latest run)")
	cmd.Flags().BoolVar(&opts.All, "all", false, "show attempts from every run")
	cmd.Flags().StringVar(&opts.Producer, "producer", "", "filter by producer version")
	cmd.Flags().StringVar(&opts.Consumer, "consumer", "", "filter by consumer version")
	cmd.Flags().StringVar(&opts.Outcome, "outcome", "", "filter by outcome")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of attempts (0 for all)")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	cfg, err := opts.Config()
	if err != nil {
		return err
	}
	if cfg.HistoryDB == "" {
		return NewExitError(ExitCommandError, "no history database configured")
	}
	if opts.All && opts.RunID != "" {
		return NewExitError(ExitCommandError, "--all and --run are mutually exclusive")
	}
	outcome := history.Outcome(opts.Outcome)
	if outcome != "" && !outcome.Valid() {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown outcome %q", opts.Outcome))
	}

	st, err := history.Open(cfg.HistoryDB)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open history database", err)
	}
	defer st.Close()

	runID := opts.RunID
	if !opts.All && runID == "" {
		runID, err = st.LatestRunID(ctx)
		if errors.Is(err, history.ErrNoRuns) {
			return outputHistory(cmd, opts, HistoryResult{Attempts: []history.Attempt{}, Summary: map[history.Outcome]int{}})
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to find latest run", err)
		}
	}

	attempts, err := st.List(ctx, history.Filter{
		RunID:    runID,
		Producer: opts.Producer,
		Consumer: opts.Consumer,
		Outcome:  outcome,
		Limit:    opts.Limit,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list attempts", err)
	}
	if attempts == nil {
		attempts = []history.Attempt{}
	}

	// A single run is summarised in full, regardless of filters.
	summary := map[history.Outcome]int{}
	if runID != "" {
		summary, err = st.Summary(ctx, runID)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to summarise run", err)
		}
	} else {
		for _, a := range attempts {
			summary[a.Outcome]++
		}
	}
	return outputHistory(cmd, opts, HistoryResult{RunID: runID, Attempts: attempts, Summary: summary})
}

func outputHistory(cmd *cobra.Command, opts *HistoryOptions, result HistoryResult) error {
	if opts.Format == "json" {
		formatter := newFormatter(cmd, opts.RootOptions)
		return formatter.Success(result)
	}

	out := cmd.OutOrStdout()
	if len(result.Attempts) == 0 {
		fmt.Fprintln(out, "No attempts recorded.")
		return nil
	}
	if result.RunID != "" {
		fmt.Fprintf(out, "Run %s\n\n", result.RunID)
	}
	writeAttempts(out, result.Attempts, opts.Verbose)
	fmt.Fprintf(out, "\n%s\n", summaryLine(result.Summary))
	return nil
}

// writeAttempts prints one line per attempt, with captured output indented
// below it in verbose mode.
func writeAttempts(w io.Writer, attempts []history.Attempt, verbose bool) {
	fmt.Fprintf(w, "%-5s %-8s %-10s %-10s %-14s %5s %10s\n",
		"SEQ", "PHASE", "PRODUCER", "CONSUMER", "OUTCOME", "EXIT", "DURATION")
	for _, a := range attempts {
		consumer := a.ConsumerVersion
		if consumer == "" {
			consumer = "-"
		}
		producer := a.ProducerVersion
		if producer == "" {
			producer = "-"
		}
		duration := (time.Duration(a.DurationMS) * time.Millisecond).String()
		fmt.Fprintf(w, "%-5d %-8s %-10s %-10s %-14s %5d %10s\n",
			a.Seq, a.Phase, producer, consumer, a.Outcome, a.ExitCode, duration)
		if verbose && a.Output != "" {
			fmt.Fprintf(w, "      %s\n", indent(a.Output))
		}
	}
}

// summaryLine renders outcome counts in a fixed order, skipping zeros.
func summaryLine(summary map[history.Outcome]int) string {
	order := []history.Outcome{
		history.OutcomeCompatible, history.OutcomeIncompatible, history.OutcomeTimeout,
		history.OutcomeSetupFailed, history.OutcomeRecorded, history.OutcomeRecordFailed,
	}
	var parts []string
	for _, o := range order {
		if n := summary[o]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, o))
		}
	}
	return strings.Join(parts, ", ")
}

func indent(s string) string {
	return strings.ReplaceAll(strings.TrimRight(s, "\n"), "\n", "\n      ")
}
