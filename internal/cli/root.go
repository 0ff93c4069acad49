package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/roach88/qcompat/internal/config"
)

const tracerName = "github.com/roach88/qcompat/internal/cli"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	HistoryDB  string

	cfg *config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// Config loads the effective configuration once. --history-db, when set,
// replaces the configured history database.
func (o *RootOptions) Config() (*config.Config, error) {
	if o.cfg != nil {
		return o.cfg, nil
	}
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if o.HistoryDB != "" {
		cfg.HistoryDB = o.HistoryDB
	}
	o.cfg = cfg
	return cfg, nil
}

// NewRootCommand creates the root command for the qcompat CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "qcompat",
		Short: "qcompat - SDK question compatibility checker",
		Long: `Record a question from each version of the SDK, replay every recorded
question against every other version, and keep the resulting
producer/consumer compatibility matrix.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			setupLogging(cmd.ErrOrStderr(), opts.Verbose)
			otel.SetTextMapPropagator(propagation.TraceContext{})
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.HistoryDB, "history-db", "", "path to the attempt history database")

	// Add subcommands
	cmd.AddCommand(NewRecordQuestionsCommand(opts))
	cmd.AddCommand(NewProcessQuestionsCommand(opts))
	cmd.AddCommand(NewRecordQuestionCommand(opts))
	cmd.AddCommand(NewProcessQuestionCommand(opts))
	cmd.AddCommand(NewMatrixCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))
	reportErrors(cmd, opts)

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// setupLogging installs a text handler on w, at debug level when verbose.
func setupLogging(w io.Writer, verbose bool) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// commandContext returns the command's context, cancelled on SIGINT or
// SIGTERM.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// reportErrors wraps the RunE of cmd and its subcommands so that, with
// --format json, a failing command writes an error response to stdout.
func reportErrors(cmd *cobra.Command, opts *RootOptions) {
	for _, sub := range cmd.Commands() {
		reportErrors(sub, opts)
	}
	run := cmd.RunE
	if run == nil {
		return
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		err := run(cmd, args)
		if err == nil || opts.Format != "json" {
			return err
		}
		code, message, details := errorResponse(err)
		if writeErr := newFormatter(cmd, opts).Error(code, message, details); writeErr != nil {
			return err
		}
		return reportedError{err: err}
	}
}
