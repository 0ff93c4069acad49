package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/qcompat/internal/config"
)

// NewConfigCommand creates the config command.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration qcompat would run with: built-in defaults, then
the --config file, then QCOMPAT_* environment variables.

Examples:
  qcompat config
  qcompat config --config qcompat.yaml
  qcompat config init qcompat.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.Config()
			if err != nil {
				return err
			}
			if rootOpts.Format == "json" {
				formatter := newFormatter(cmd, rootOpts)
				return formatter.Success(cfg)
			}
			body, err := cfg.Render()
			if err != nil {
				return WrapExitError(ExitFailure, "failed to render config", err)
			}
			_, err = cmd.OutOrStdout().Write(body)
			return err
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "init <path>",
		Short:         "Write a starter config file",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteDefault(args[0]); err != nil {
				return WrapExitError(ExitCommandError, "failed to write config", err)
			}
			formatter := newFormatter(cmd, rootOpts)
			return formatter.Success("Wrote " + args[0])
		},
	})

	return cmd
}
