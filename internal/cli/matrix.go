package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/qcompat/internal/results"
)

// MatrixOptions holds flags for the matrix command.
type MatrixOptions struct {
	*RootOptions
	ResultsFile string
}

// MatrixResult is the JSON payload of the matrix command.
type MatrixResult struct {
	Producers []string       `json:"producers"`
	Consumers []string       `json:"consumers"`
	Results   results.Matrix `json:"results"`
}

// NewMatrixCommand creates the matrix command.
func NewMatrixCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MatrixOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "matrix",
		Short: "Show the compatibility matrix",
		Long: `Show the compatibility matrix from a results file, one row per producer
version and one column per consumer version, newest first.

  yes - the consumer answered the producer's question
  no  - the question could not be processed
  -   - the pair has not been tested

Examples:
  qcompat matrix
  qcompat matrix --results-file results.json --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMatrix(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ResultsFile, "results-file", "version_compatibility_results.json", "path to the compatibility results file")

	return cmd
}

func runMatrix(opts *MatrixOptions, cmd *cobra.Command) error {
	path := opts.ResultsFile
	if !cmd.Flags().Changed("results-file") {
		cfg, err := opts.Config()
		if err != nil {
			return err
		}
		path = cfg.ResultsFile
	}

	m, err := results.Load(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load results", err)
	}

	if opts.Format == "json" {
		formatter := newFormatter(cmd, opts.RootOptions)
		return formatter.Success(MatrixResult{
			Producers: nonNil(m.Producers()),
			Consumers: nonNil(m.Consumers()),
			Results:   m,
		})
	}

	if len(m) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No results recorded in %s\n", path)
		return nil
	}
	renderMatrix(cmd.OutOrStdout(), m)
	return nil
}

// renderMatrix writes m as an aligned text table.
func renderMatrix(w io.Writer, m results.Matrix) {
	producers := m.Producers()
	consumers := m.Consumers()

	first := len("producer")
	for _, p := range producers {
		first = max(first, len(p))
	}
	widths := make([]int, len(consumers))
	for i, c := range consumers {
		widths[i] = max(len(c), len("yes"))
	}

	row := func(label string, cells []string) {
		var b strings.Builder
		fmt.Fprintf(&b, "%-*s", first, label)
		for i, cell := range cells {
			fmt.Fprintf(&b, "  %-*s", widths[i], cell)
		}
		fmt.Fprintln(w, strings.TrimRight(b.String(), " "))
	}

	row("producer", consumers)
	for _, p := range producers {
		cells := make([]string, len(consumers))
		for i, c := range consumers {
			compatible, tested := m.Get(p, c)
			switch {
			case !tested:
				cells[i] = "-"
			case compatible:
				cells[i] = "yes"
			default:
				cells[i] = "no"
			}
		}
		row(p, cells)
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
