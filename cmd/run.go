package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/polysentry/polysentry/internal/app"
	"github.com/polysentry/polysentry/pkg/config"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the trading pipeline",
	Long: `Starts the full pipeline:
1. Refresh the tradeable-market allowlist from the Gamma API
2. Accept trade intents and run them through validation and risk checks
3. Scan allowlisted markets for arbitrage opportunities
4. Execute approved trades (dry-run by default)

Use --dry-run=false only with venue credentials configured.`,
	RunE: runPipeline,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Bool("dry-run", true, "Simulate fills instead of submitting live orders")
	runCmd.Flags().Float64("starting-capital", 0, "Override STARTING_CAPITAL")
	runCmd.Flags().Bool("no-scanner", false, "Disable the arbitrage scan loop")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	// A missing .env is fine; the environment may carry everything.
	_ = godotenv.Load()

	// Flags override the environment before config load.
	if cmd.Flags().Changed("dry-run") {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		os.Setenv("DRY_RUN", strconv.FormatBool(dryRun))
	}
	if cmd.Flags().Changed("starting-capital") {
		capital, _ := cmd.Flags().GetFloat64("starting-capital")
		os.Setenv("STARTING_CAPITAL", strconv.FormatFloat(capital, 'f', -1, 64))
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	noScanner, _ := cmd.Flags().GetBool("no-scanner")

	application, err := app.New(cfg, logger, &app.Options{
		SkipScanner: noScanner,
	})
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}

	err = application.Run()
	if err != nil {
		return fmt.Errorf("run app: %w", err)
	}

	return nil
}
