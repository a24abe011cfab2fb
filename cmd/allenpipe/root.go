package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string

	ctx := newCommandContext(&configFlag)

	rootCmd := &cobra.Command{
		Use:           "allenpipe",
		Short:         "Project metadata cache for behavior and ophys releases",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newTablesCommand(ctx))
	rootCmd.AddCommand(newCacheCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))
	rootCmd.AddCommand(newWarehouseCommand(ctx))

	flushMetricsAfterRun(rootCmd, ctx)
	return rootCmd
}

// flushMetricsAfterRun wraps every runnable command so the run's metrics
// reach the textfile whether the command succeeds or fails.
func flushMetricsAfterRun(cmd *cobra.Command, ctx *commandContext) {
	if run := cmd.RunE; run != nil {
		cmd.RunE = func(c *cobra.Command, args []string) error {
			err := run(c, args)
			if flushErr := ctx.flushMetrics(); flushErr != nil && err == nil {
				return flushErr
			}
			return err
		}
	}
	for _, child := range cmd.Commands() {
		flushMetricsAfterRun(child, ctx)
	}
}
