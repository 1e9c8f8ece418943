package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "polysentry",
	Short: "Prediction-market trade safety and execution pipeline",
	Long: `Polysentry runs trade intents through a safety pipeline before any
order reaches the venue: intent validation against a live market
allowlist, a persistent risk kernel with daily-stop and kill-switch
semantics, and an idempotent executor with bounded retries.

It also scans allowlisted markets for arbitrage and routes detected
opportunities through the same pipeline.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
