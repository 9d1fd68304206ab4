package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// rootOptions carries the state the root command's persistent flags fill
// in and every subcommand reads from.
type rootOptions struct {
	configPath string
	verbose    bool
	logHandler *slog.LevelVar
	logger     *slog.Logger
}

var (
	colorError   = color.New(color.FgRed, color.Bold)
	colorSuccess = color.New(color.FgGreen)
)

func newRootCommand() (*cobra.Command, *rootOptions) {
	levelVar := &slog.LevelVar{}
	levelVar.Set(slog.LevelWarn)

	opts := &rootOptions{
		logHandler: levelVar,
		logger:     slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar})),
	}

	cmd := &cobra.Command{
		Use:           "abibridge",
		Short:         "Bridge a 32-bit x86 object file into a 64-bit x86_64 one",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if opts.verbose {
				opts.logHandler.Set(slog.LevelDebug)
			}

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to an advanced-tuning config file")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(newConvertCommand(opts))

	return cmd, opts
}

// run builds and executes the root command, printing exactly one
// colorized diagnostic line and returning a nonzero exit code on any
// fatal condition, per the CLI's single-diagnostic-line contract.
func run() int {
	cmd, _ := newRootCommand()

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, colorError.Sprint(err))

		return 1
	}

	return 0
}
