// Package pipeline implements sales analytics pipeline commands.
package pipeline

import (
	"github.com/aws/aws-quicksight-tester/qsconfig"
	"github.com/spf13/cobra"
)

func init() {
	cobra.EnablePrefixMatching = true
}

var (
	path         string
	logLevel     string
	region       string
	enablePrompt bool
)

// NewCommand implements "aws-quicksight-tester pipeline" command.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:        "pipeline",
		Short:      "pipeline commands",
		SuggestFor: []string{"pipelines", "pipe"},
	}
	cmd.PersistentFlags().StringVarP(&path, "path", "p", "", "aws-quicksight-tester configuration file path")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "overrides the configured log level when set")
	cmd.PersistentFlags().StringVar(&region, "region", "", "overrides the configured AWS region when set")
	cmd.PersistentFlags().BoolVarP(&enablePrompt, "enable-prompt", "e", true, "'true' to enable prompt mode")
	cmd.AddCommand(
		newCreate(),
		newDelete(),
		newGet(),
	)
	return cmd
}

func applyFlagOverrides(cfg *qsconfig.Config) {
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if region != "" {
		cfg.Region = region
	}
}
