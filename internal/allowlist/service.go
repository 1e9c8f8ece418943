package allowlist

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MarketSource lists the currently tradeable market identifiers.
// Implemented by the markets client.
type MarketSource interface {
	TradeableMarketIDs(ctx context.Context) ([]string, error)
}

// Service holds the current set of tradeable markets, refreshed on a timer
// from the market-data source. Readers get copies; a failed refresh keeps
// the previous snapshot rather than emptying it.
type Service struct {
	mu       sync.RWMutex
	ids      map[string]struct{}
	source   MarketSource
	interval time.Duration
	logger   *zap.Logger
}

// Config holds allowlist configuration.
type Config struct {
	Source          MarketSource
	RefreshInterval time.Duration
	Logger          *zap.Logger
}

// New creates an allowlist service. The set starts empty, which the
// validator treats as fail-closed until the first successful refresh.
func New(cfg Config) (*Service, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("source cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.RefreshInterval <= 0 {
		return nil, fmt.Errorf("refresh interval must be positive")
	}

	return &Service{
		ids:      make(map[string]struct{}),
		source:   cfg.Source,
		interval: cfg.RefreshInterval,
		logger:   cfg.Logger,
	}, nil
}

// Run refreshes immediately, then on every tick until the context ends.
func (s *Service) Run(ctx context.Context) error {
	err := s.Refresh(ctx)
	if err != nil {
		s.logger.Warn("initial-allowlist-refresh-failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("allowlist-service-stopping")
			return ctx.Err()
		case <-ticker.C:
			err := s.Refresh(ctx)
			if err != nil {
				s.logger.Warn("allowlist-refresh-failed", zap.Error(err))
			}
		}
	}
}

// Refresh replaces the set with the source's current markets.
func (s *Service) Refresh(ctx context.Context) error {
	ids, err := s.source.TradeableMarketIDs(ctx)
	if err != nil {
		return fmt.Errorf("fetch tradeable markets: %w", err)
	}

	next := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		next[id] = struct{}{}
	}

	s.mu.Lock()
	s.ids = next
	s.mu.Unlock()

	AllowlistSize.Set(float64(len(next)))
	s.logger.Debug("allowlist-refreshed", zap.Int("markets", len(next)))

	return nil
}

// Snapshot returns a copy of the current set.
func (s *Service) Snapshot() map[string]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]struct{}, len(s.ids))
	for id := range s.ids {
		out[id] = struct{}{}
	}
	return out
}

// Contains reports whether the market is currently tradeable.
func (s *Service) Contains(marketID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[marketID]
	return ok
}

// Len returns the current set size.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}
