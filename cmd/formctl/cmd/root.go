// Package cmd holds the formctl commands: offline checks and evaluation of
// form definition files.
package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"form-engine/internal/config"
	"form-engine/internal/logging"
)

type rootOpts struct {
	debug     bool
	logFormat string
	language  string
}

// NewRootCmd builds the formctl command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOpts{}
	root := &cobra.Command{
		Use:           "formctl",
		Short:         "Check, evaluate and exercise form definitions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level := "warn"
			if opts.debug {
				level = "debug"
			}
			return logging.Init(config.LogConfig{Level: level, Format: opts.logFormat})
		},
	}

	root.PersistentFlags().BoolVarP(&opts.debug, "debug", "d", false, "turn on debug logging")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "text", "log format: text or json")
	root.PersistentFlags().StringVar(&opts.language, "language", "", "localization language when the form has no defaultLanguage")

	root.AddCommand(newCheckCmd(), newEvalCmd(opts), newFireCmd(opts))
	return root
}

// Execute runs formctl and exits non-zero on error.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}
