package main

import (
	"fmt"
	"os"

	"github.com/roach88/qcompat/internal/cli"
)

var Version = "dev"

func main() {
	rootCmd := cli.NewRootCommand()
	rootCmd.Version = Version

	if err := rootCmd.Execute(); err != nil {
		if !cli.Reported(err) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
