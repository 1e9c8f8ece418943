package cmd

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/polysentry/polysentry/pkg/httpserver"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show capital and kill-switch state of a running instance",
	RunE:  showStatus,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().String("addr", "http://localhost:8080", "Base URL of the running instance")
}

func showStatus(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	addr, _ := cmd.Flags().GetString("addr")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(addr + "/api/status")
	if err != nil {
		return fmt.Errorf("fetch status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var status httpserver.StatusResponse
	err = json.NewDecoder(resp.Body).Decode(&status)
	if err != nil {
		return fmt.Errorf("decode status: %w", err)
	}

	fmt.Printf("Capital:        %.2f / %.2f starting\n", status.CurrentCapital, status.StartingCapital)
	fmt.Printf("Daily PnL:      %.2f (%.2f%%)\n", status.DailyPnL, status.DailyPnLPct)
	fmt.Printf("Total PnL:      %.2f (%.2f%%)\n", status.TotalPnL, status.TotalPnLPct)
	fmt.Printf("Open positions: %d (exposure %.2f)\n", status.OpenPositions, status.TotalExposure)

	if status.KillSwitch.Active {
		fmt.Printf("Kill switch:    ACTIVE since %s\n", status.KillSwitch.TriggeredAt.Format(time.RFC3339))
		fmt.Printf("Reason:         %s\n", status.KillSwitch.Reason)
	} else {
		fmt.Println("Kill switch:    inactive")
	}

	return nil
}
