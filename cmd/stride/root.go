package main

import (
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use: "stride",
	Short: "Stride runs windowed trigger-scheduled simulations of transit " +
		"agent populations.",
	Long: `Stride runs windowed trigger-scheduled simulations of transit ` +
		`agent populations. The scheduler advances simulated time tick by ` +
		`tick, dispatching triggers to agents and never running more than a ` +
		`configurable window ahead of the slowest outstanding agent.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}
}
