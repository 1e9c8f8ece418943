package storage

import (
	"context"
	"sync"
	"time"

	"github.com/polysentry/polysentry/pkg/types"
)

// MemoryStore is an in-process Store for tests and ephemeral runs.
// It honors the same contracts as the SQL stores, including atomic
// close-and-archive and kill-switch-with-event writes.
type MemoryStore struct {
	mu         sync.Mutex
	positions  map[string]*types.Position // key: marketID|side
	trades     []*TradeRecord
	intents    []*IntentRecord
	riskEvents []*RiskEvent
	killSwitch *types.KillSwitchState
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		positions: make(map[string]*types.Position),
	}
}

func posKey(marketID string, side types.Side) string {
	return marketID + "|" + string(side)
}

func (m *MemoryStore) UpsertPosition(_ context.Context, pos *types.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *pos
	m.positions[posKey(pos.MarketID, pos.Side)] = &cp
	return nil
}

func (m *MemoryStore) GetPosition(_ context.Context, marketID string, side types.Side) (*types.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.positions[posKey(marketID, side)]
	if !ok {
		return nil, nil
	}
	cp := *pos
	return &cp, nil
}

func (m *MemoryStore) ListOpenPositions(_ context.Context) ([]*types.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*types.Position, 0, len(m.positions))
	for _, pos := range m.positions {
		cp := *pos
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryStore) ClosePosition(_ context.Context, marketID string, side types.Side, trade *TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.positions, posKey(marketID, side))
	cp := *trade
	m.trades = append(m.trades, &cp)
	return nil
}

func (m *MemoryStore) AppendTrade(_ context.Context, trade *TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *trade
	m.trades = append(m.trades, &cp)
	return nil
}

func (m *MemoryStore) AppendIntent(_ context.Context, rec *IntentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.intents = append(m.intents, &cp)
	return nil
}

func (m *MemoryStore) AppendRiskEvent(_ context.Context, ev *RiskEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *ev
	m.riskEvents = append(m.riskEvents, &cp)
	return nil
}

func (m *MemoryStore) SumRealizedPnL(_ context.Context, since time.Time) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum float64
	for _, tr := range m.trades {
		if tr.Status == types.StatusExecuted && !tr.ExecutedAt.Before(since) {
			sum += tr.RealizedPnL
		}
	}
	return sum, nil
}

func (m *MemoryStore) SumExecutedNotional(_ context.Context, since time.Time) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum float64
	for _, tr := range m.trades {
		if tr.Status == types.StatusExecuted && !tr.ExecutedAt.Before(since) {
			sum += tr.Price * tr.Size
		}
	}
	return sum, nil
}

func (m *MemoryStore) ExecutedHashSince(_ context.Context, hash string, since time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tr := range m.trades {
		if tr.IdempotencyKey == hash && tr.Status == types.StatusExecuted && !tr.ExecutedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) GetKillSwitch(_ context.Context) (*types.KillSwitchState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.killSwitch == nil {
		return nil, nil
	}
	cp := *m.killSwitch
	return &cp, nil
}

func (m *MemoryStore) SaveKillSwitch(_ context.Context, state *types.KillSwitchState, ev *RiskEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *state
	m.killSwitch = &cp
	if ev != nil {
		evCopy := *ev
		m.riskEvents = append(m.riskEvents, &evCopy)
	}
	return nil
}

// Trades returns a copy of the trade history, newest last. Test helper.
func (m *MemoryStore) Trades() []*TradeRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*TradeRecord, len(m.trades))
	copy(out, m.trades)
	return out
}

// RiskEvents returns a copy of the recorded risk events. Test helper.
func (m *MemoryStore) RiskEvents() []*RiskEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*RiskEvent, len(m.riskEvents))
	copy(out, m.riskEvents)
	return out
}

// Intents returns a copy of the intent log. Test helper.
func (m *MemoryStore) Intents() []*IntentRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*IntentRecord, len(m.intents))
	copy(out, m.intents)
	return out
}

func (m *MemoryStore) Close() error { return nil }
