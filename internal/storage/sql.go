package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/polysentry/polysentry/pkg/types"
	"go.uber.org/zap"
)

// sqlStore implements Store over database/sql. Queries are written with `?`
// placeholders; the Postgres flavor rewrites them to $n on the way out.
type sqlStore struct {
	db       *sql.DB
	postgres bool
	logger   *zap.Logger
}

func (s *sqlStore) q(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// init creates the schema on first run and refuses to operate on a
// mismatched version.
func (s *sqlStore) init(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		_, err := s.db.ExecContext(ctx, stmt)
		if err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}

	var version int
	err := s.db.QueryRowContext(ctx, `SELECT version FROM schema_version`).Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.db.ExecContext(ctx, s.q(`INSERT INTO schema_version (version) VALUES (?)`), SchemaVersion)
		if err != nil {
			return fmt.Errorf("write schema version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case version != SchemaVersion:
		return fmt.Errorf("%w: store has version %d, binary expects %d",
			types.ErrSchemaMismatch, version, SchemaVersion)
	}

	return nil
}

func (s *sqlStore) UpsertPosition(ctx context.Context, pos *types.Position) error {
	query := s.q(`
		INSERT INTO positions (
			market_id, token_id, outcome, side, size,
			entry_price, current_price, highest_price, opened_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (market_id, side) DO UPDATE SET
			token_id      = excluded.token_id,
			outcome       = excluded.outcome,
			size          = excluded.size,
			entry_price   = excluded.entry_price,
			current_price = excluded.current_price,
			highest_price = excluded.highest_price,
			updated_at    = excluded.updated_at
	`)

	_, err := s.db.ExecContext(ctx, query,
		pos.MarketID, pos.TokenID, pos.Outcome, string(pos.Side), pos.Size,
		pos.EntryPrice, pos.CurrentPrice, pos.HighestPrice, pos.OpenedAt, pos.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert position: %w", err)
	}
	return nil
}

func (s *sqlStore) GetPosition(ctx context.Context, marketID string, side types.Side) (*types.Position, error) {
	query := s.q(`
		SELECT market_id, token_id, outcome, side, size,
		       entry_price, current_price, highest_price, opened_at, updated_at
		FROM positions WHERE market_id = ? AND side = ?
	`)

	pos, err := scanPosition(s.db.QueryRowContext(ctx, query, marketID, string(side)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get position: %w", err)
	}
	return pos, nil
}

func (s *sqlStore) ListOpenPositions(ctx context.Context) ([]*types.Position, error) {
	query := `
		SELECT market_id, token_id, outcome, side, size,
		       entry_price, current_price, highest_price, opened_at, updated_at
		FROM positions ORDER BY opened_at
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()

	var positions []*types.Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		positions = append(positions, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate positions: %w", err)
	}

	return positions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(row rowScanner) (*types.Position, error) {
	var pos types.Position
	var side string
	err := row.Scan(&pos.MarketID, &pos.TokenID, &pos.Outcome, &side, &pos.Size,
		&pos.EntryPrice, &pos.CurrentPrice, &pos.HighestPrice, &pos.OpenedAt, &pos.UpdatedAt)
	if err != nil {
		return nil, err
	}
	pos.Side = types.Side(side)
	return &pos, nil
}

func (s *sqlStore) ClosePosition(ctx context.Context, marketID string, side types.Side, trade *TradeRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin close: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		s.q(`DELETE FROM positions WHERE market_id = ? AND side = ?`),
		marketID, string(side))
	if err != nil {
		return fmt.Errorf("delete position: %w", err)
	}

	err = insertTrade(ctx, tx, s.q, trade)
	if err != nil {
		return fmt.Errorf("archive closing trade: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("commit close: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertTrade(ctx context.Context, db execer, q func(string) string, trade *TradeRecord) error {
	query := q(`
		INSERT INTO trade_history (
			id, intent_id, market_id, token_id, outcome, side, price, size,
			status, detail, idempotency_key, dry_run, requires_reconciliation,
			realized_pnl, executed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := db.ExecContext(ctx, query,
		trade.ID, trade.IntentID, trade.MarketID, trade.TokenID, trade.Outcome,
		string(trade.Side), trade.Price, trade.Size, trade.Status, trade.Detail,
		trade.IdempotencyKey, trade.DryRun, trade.RequiresReconciliation,
		trade.RealizedPnL, trade.ExecutedAt,
	)
	return err
}

func (s *sqlStore) AppendTrade(ctx context.Context, trade *TradeRecord) error {
	err := insertTrade(ctx, s.db, s.q, trade)
	if err != nil {
		return fmt.Errorf("append trade: %w", err)
	}
	return nil
}

func (s *sqlStore) AppendIntent(ctx context.Context, rec *IntentRecord) error {
	query := s.q(`
		INSERT INTO intent_log (
			intent_id, source_id, market_id, side, price, size,
			accepted, code, detail, logged_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := s.db.ExecContext(ctx, query,
		rec.IntentID, rec.SourceID, rec.MarketID, string(rec.Side), rec.Price,
		rec.Size, rec.Accepted, rec.Code, rec.Detail, rec.LoggedAt,
	)
	if err != nil {
		return fmt.Errorf("append intent: %w", err)
	}
	return nil
}

func (s *sqlStore) AppendRiskEvent(ctx context.Context, ev *RiskEvent) error {
	query := s.q(`
		INSERT INTO risk_events (id, kind, reason, daily_pnl_pct, total_pnl_pct, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)

	_, err := s.db.ExecContext(ctx, query,
		ev.ID, ev.Kind, ev.Reason, ev.DailyPnLPct, ev.TotalPnLPct, ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append risk event: %w", err)
	}
	return nil
}

func (s *sqlStore) SumRealizedPnL(ctx context.Context, since time.Time) (float64, error) {
	query := s.q(`
		SELECT COALESCE(SUM(realized_pnl), 0) FROM trade_history
		WHERE status = ? AND executed_at >= ?
	`)

	var sum float64
	err := s.db.QueryRowContext(ctx, query, types.StatusExecuted, since).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum realized pnl: %w", err)
	}
	return sum, nil
}

func (s *sqlStore) SumExecutedNotional(ctx context.Context, since time.Time) (float64, error) {
	query := s.q(`
		SELECT COALESCE(SUM(price * size), 0) FROM trade_history
		WHERE status = ? AND executed_at >= ?
	`)

	var sum float64
	err := s.db.QueryRowContext(ctx, query, types.StatusExecuted, since).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum executed notional: %w", err)
	}
	return sum, nil
}

func (s *sqlStore) ExecutedHashSince(ctx context.Context, hash string, since time.Time) (bool, error) {
	query := s.q(`
		SELECT COUNT(1) FROM trade_history
		WHERE idempotency_key = ? AND status = ? AND executed_at >= ?
	`)

	var count int
	err := s.db.QueryRowContext(ctx, query, hash, types.StatusExecuted, since).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check idempotency key: %w", err)
	}
	return count > 0, nil
}

func (s *sqlStore) GetKillSwitch(ctx context.Context) (*types.KillSwitchState, error) {
	query := `
		SELECT active, reason, triggered_at, requires_manual_restart,
		       consecutive_stop_days, last_stop_day
		FROM kill_switch WHERE id = 1
	`

	var state types.KillSwitchState
	err := s.db.QueryRowContext(ctx, query).Scan(
		&state.Active, &state.Reason, &state.TriggeredAt,
		&state.RequiresManualRestart, &state.ConsecutiveStopDays, &state.LastStopDay,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get kill switch: %w", err)
	}
	return &state, nil
}

func (s *sqlStore) SaveKillSwitch(ctx context.Context, state *types.KillSwitchState, ev *RiskEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin kill-switch save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := s.q(`
		INSERT INTO kill_switch (
			id, active, reason, triggered_at, requires_manual_restart,
			consecutive_stop_days, last_stop_day
		) VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			active                  = excluded.active,
			reason                  = excluded.reason,
			triggered_at            = excluded.triggered_at,
			requires_manual_restart = excluded.requires_manual_restart,
			consecutive_stop_days   = excluded.consecutive_stop_days,
			last_stop_day           = excluded.last_stop_day
	`)

	_, err = tx.ExecContext(ctx, query,
		state.Active, state.Reason, state.TriggeredAt, state.RequiresManualRestart,
		state.ConsecutiveStopDays, state.LastStopDay,
	)
	if err != nil {
		return fmt.Errorf("save kill switch: %w", err)
	}

	if ev != nil {
		_, err = tx.ExecContext(ctx,
			s.q(`INSERT INTO risk_events (id, kind, reason, daily_pnl_pct, total_pnl_pct, created_at)
				VALUES (?, ?, ?, ?, ?, ?)`),
			ev.ID, ev.Kind, ev.Reason, ev.DailyPnLPct, ev.TotalPnLPct, ev.CreatedAt)
		if err != nil {
			return fmt.Errorf("record kill-switch event: %w", err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("commit kill-switch save: %w", err)
	}
	return nil
}

func (s *sqlStore) Close() error {
	s.logger.Info("closing-ledger-store")
	return s.db.Close()
}
