package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const drainTimeout = 10 * time.Second

// Shutdown stops the application: intake closes first so the pipeline
// can finish every queued intent before anything is torn down.
func (a *App) Shutdown() error {
	a.logger.Info("application-shutting-down")

	a.healthChecker.SetDraining()
	a.healthChecker.SetReady(false)

	// Close intake. Submitters get ErrShuttingDown from here on; the
	// pipeline drains whatever is already queued.
	a.mu.Lock()
	if !a.draining {
		a.draining = true
		close(a.tasks)
	}
	a.mu.Unlock()

	select {
	case <-a.pipelineDone:
		a.logger.Info("pipeline-drained")
	case <-time.After(drainTimeout):
		a.logger.Warn("pipeline-drain-timeout")
	}

	// Now stop the scanner, the allowlist refresher and any in-flight
	// context users.
	a.cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), drainTimeout)
	defer shutdownCancel()

	err := a.httpServer.Shutdown(shutdownCtx)
	if err != nil {
		a.logger.Error("http-server-shutdown-error", zap.Error(err))
	}

	a.wg.Wait()

	err = a.store.Close()
	if err != nil {
		a.logger.Error("storage-close-error", zap.Error(err))
	}

	a.logger.Info("application-shutdown-complete")

	return nil
}
