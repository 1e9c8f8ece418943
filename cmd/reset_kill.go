package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/polysentry/polysentry/internal/risk"
	"github.com/polysentry/polysentry/internal/storage"
	"github.com/polysentry/polysentry/pkg/config"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var resetKillCmd = &cobra.Command{
	Use:   "reset-kill",
	Short: "Clear an active kill switch",
	Long: `Clears the persisted kill switch. This is the only way to resume
trading after a kill; the pipeline never clears it on its own. The reset
is recorded as a risk event with the operator name.`,
	RunE: resetKill,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(resetKillCmd)
	resetKillCmd.Flags().String("operator", "", "Name recorded in the reset audit event (required)")
	_ = resetKillCmd.MarkFlagRequired("operator")
}

func resetKill(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	operator, _ := cmd.Flags().GetString("operator")

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

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var store storage.Store
	switch cfg.StorageMode {
	case "postgres":
		store, err = storage.NewPostgres(ctx, &storage.PostgresConfig{
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			User:     cfg.PostgresUser,
			Password: cfg.PostgresPass,
			Database: cfg.PostgresDB,
			SSLMode:  cfg.PostgresSSL,
			Logger:   logger,
		})
	case "sqlite":
		store, err = storage.NewSQLite(ctx, cfg.SQLitePath, logger)
	default:
		return fmt.Errorf("reset-kill requires persistent storage, STORAGE_MODE is %q", cfg.StorageMode)
	}
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		_ = store.Close()
	}()

	kernel, err := risk.NewKernel(ctx, risk.Config{
		PerTradeCap:   cfg.MaxPositionSize,
		MinViableSize: cfg.MinViableSize,
		MaxPositions:  cfg.MaxPositions,
		Logger:        logger,
	}, store)
	if err != nil {
		return fmt.Errorf("load risk kernel: %w", err)
	}

	err = kernel.Reset(ctx, operator)
	if err != nil {
		return fmt.Errorf("reset kill switch: %w", err)
	}

	fmt.Printf("kill switch cleared by %s\n", operator)
	return nil
}
