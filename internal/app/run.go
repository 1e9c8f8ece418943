package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/polysentry/polysentry/pkg/wallet"
	"go.uber.org/zap"
)

// Run starts the application and blocks until shutdown.
func (a *App) Run() error {
	a.logger.Info("application-starting",
		zap.Bool("dry-run", a.cfg.DryRun),
		zap.String("storage-mode", a.cfg.StorageMode),
		zap.Float64("starting-capital", a.cfg.StartingCapital),
		zap.String("log-level", a.cfg.LogLevel))

	if !a.cfg.DryRun {
		err := a.preflightBalance(a.ctx)
		if err != nil {
			return fmt.Errorf("live-mode preflight: %w", err)
		}
	}

	err := a.startComponents()
	if err != nil {
		return err
	}

	a.healthChecker.SetReady(true)

	a.logger.Info("application-ready",
		zap.String("http-addr", ":"+a.cfg.HTTPPort),
		zap.Int("allowlist-size", a.allowlist.Len()))

	return a.waitForShutdown()
}

// preflightBalance verifies the funding wallet covers the configured
// starting capital before any live order can go out.
func (a *App) preflightBalance(ctx context.Context) error {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(a.cfg.PolymarketPrivateKey, "0x"))
	if err != nil {
		return fmt.Errorf("parse private key: %w", err)
	}
	address := crypto.PubkeyToAddress(privateKey.PublicKey)

	walletClient, err := wallet.NewClient(a.cfg.PolygonRPCURL, a.logger)
	if err != nil {
		return fmt.Errorf("create wallet client: %w", err)
	}

	balances, err := walletClient.GetBalances(ctx, address)
	if err != nil {
		return fmt.Errorf("fetch balances: %w", err)
	}

	usdc := balances.USDCFloat()
	if usdc < a.cfg.StartingCapital {
		return fmt.Errorf("wallet USDC balance %.2f is below starting capital %.2f", usdc, a.cfg.StartingCapital)
	}

	a.logger.Info("preflight-balance-ok",
		zap.String("address", address.Hex()),
		zap.Float64("usdc", usdc))

	return nil
}

func (a *App) startComponents() error {
	// Refresh the allowlist once before accepting intents; the validator
	// fails closed on an empty set.
	err := a.allowlist.Refresh(a.ctx)
	if err != nil {
		a.logger.Warn("initial-allowlist-refresh-failed", zap.Error(err))
	}

	a.wg.Add(1)
	go a.runHTTPServer()

	a.wg.Add(1)
	go a.runAllowlist()

	a.wg.Add(1)
	go a.runPipeline()

	if a.skipScanner {
		a.logger.Info("scanner-disabled")
	} else {
		a.wg.Add(1)
		go a.runScanner()
	}

	return nil
}

func (a *App) runHTTPServer() {
	defer a.wg.Done()
	err := a.httpServer.Start()
	if err != nil {
		a.logger.Error("http-server-error", zap.Error(err))
	}
}

func (a *App) runAllowlist() {
	defer a.wg.Done()
	err := a.allowlist.Run(a.ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("allowlist-service-error", zap.Error(err))
	}
}

func (a *App) waitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		a.logger.Info("shutdown-signal-received", zap.String("signal", sig.String()))
	case <-a.ctx.Done():
		a.logger.Info("context-cancelled")
	}

	return a.Shutdown()
}
