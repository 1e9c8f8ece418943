package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/polysentry/polysentry/internal/arbitrage"
	"github.com/polysentry/polysentry/internal/markets"
	"github.com/polysentry/polysentry/pkg/config"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan markets for arbitrage once and print what was found",
	Long: `Runs a single detection pass over active markets and prints every
opportunity. Nothing is executed and nothing is persisted.`,
	RunE: scanMarkets,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().Int("limit", 0, "Override MARKET_LIMIT for this scan")
}

func scanMarkets(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

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

	limit := cfg.MarketLimit
	if cmd.Flags().Changed("limit") {
		limit, _ = cmd.Flags().GetInt("limit")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	client := markets.NewClient(cfg.GammaAPIURL, cfg.CLOBAPIURL, logger)
	detector := arbitrage.New(arbitrage.Config{
		FeeRate:            cfg.ArbFeeRate,
		GasPerLeg:          cfg.ArbGasPerLeg,
		MinProfitPct:       cfg.ArbMinProfitPct,
		MinSize:            cfg.ArbMinTradeSize,
		MaxSize:            cfg.ArbMaxTradeSize,
		AsymmetricMaxPrice: cfg.ArbAsymmetricMaxPrice,
	})

	resp, err := client.FetchActiveMarkets(ctx, limit)
	if err != nil {
		return fmt.Errorf("fetch markets: %w", err)
	}

	fmt.Printf("scanning %d markets\n", len(resp.Data))

	found := 0
	for i := range resp.Data {
		m := &resp.Data[i]

		prices, err := client.FetchMarketPrices(ctx, m)
		if err != nil {
			continue
		}

		for _, opp := range detector.ScanMarket(*prices) {
			found++
			fmt.Printf("%s  %s\n", m.Question, opp)
		}
	}

	fmt.Printf("found %d opportunities\n", found)
	return nil
}
