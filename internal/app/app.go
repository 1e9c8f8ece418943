package app

import (
	"context"
	"sync"
	"time"

	"github.com/polysentry/polysentry/internal/alert"
	"github.com/polysentry/polysentry/internal/allowlist"
	"github.com/polysentry/polysentry/internal/arbitrage"
	"github.com/polysentry/polysentry/internal/execution"
	"github.com/polysentry/polysentry/internal/intent"
	"github.com/polysentry/polysentry/internal/ledger"
	"github.com/polysentry/polysentry/internal/markets"
	"github.com/polysentry/polysentry/internal/risk"
	"github.com/polysentry/polysentry/internal/storage"
	"github.com/polysentry/polysentry/pkg/config"
	"github.com/polysentry/polysentry/pkg/healthprobe"
	"github.com/polysentry/polysentry/pkg/httpserver"
	"github.com/polysentry/polysentry/pkg/types"
	"go.uber.org/zap"
)

// task is one unit of pipeline work: a single intent, or both legs of an
// arbitrage pair executed together.
type task struct {
	legA *types.TradeIntent
	legB *types.TradeIntent // nil for single-leg tasks
	done chan []*types.ExecutionResult
}

// App wires the trade pipeline together: intents flow through the
// validator, the risk kernel and the executor on a single goroutine, so
// risk decisions always see a settled capital state.
type App struct {
	cfg           *config.Config
	logger        *zap.Logger
	healthChecker *healthprobe.HealthChecker
	httpServer    *httpserver.Server

	store     storage.Store
	ledger    *ledger.Ledger
	kernel    *risk.Kernel
	validator *intent.Validator
	allowlist *allowlist.Service
	executor  *execution.Executor
	detector  *arbitrage.Detector
	markets   *markets.Client
	metadata  *markets.CachedMetadataClient
	alerts    alert.Sink

	tasks        chan *task
	pipelineDone chan struct{}
	skipScanner  bool

	mu       sync.Mutex
	draining bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Options holds application options.
type Options struct {
	// SkipScanner disables the arbitrage scan loop; the pipeline still
	// accepts externally submitted intents.
	SkipScanner bool
}

func (a *App) nowUTC() time.Time {
	return time.Now().UTC()
}

// CapitalState implements the status provider for the HTTP server.
func (a *App) CapitalState(ctx context.Context) (*types.CapitalState, error) {
	return a.ledger.CapitalState(ctx)
}

// KillSwitch implements the status provider for the HTTP server.
func (a *App) KillSwitch() types.KillSwitchState {
	return a.kernel.State()
}
