package storage

// DDL shared by the Postgres and SQLite stores. Column types stay within
// the portable subset both drivers accept.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS positions (
		market_id     TEXT NOT NULL,
		token_id      TEXT NOT NULL,
		outcome       TEXT NOT NULL,
		side          TEXT NOT NULL,
		size          DOUBLE PRECISION NOT NULL,
		entry_price   DOUBLE PRECISION NOT NULL,
		current_price DOUBLE PRECISION NOT NULL,
		highest_price DOUBLE PRECISION NOT NULL,
		opened_at     TIMESTAMP NOT NULL,
		updated_at    TIMESTAMP NOT NULL,
		PRIMARY KEY (market_id, side)
	)`,
	`CREATE TABLE IF NOT EXISTS trade_history (
		id              TEXT PRIMARY KEY,
		intent_id       TEXT NOT NULL,
		market_id       TEXT NOT NULL,
		token_id        TEXT NOT NULL,
		outcome         TEXT NOT NULL,
		side            TEXT NOT NULL,
		price           DOUBLE PRECISION NOT NULL,
		size            DOUBLE PRECISION NOT NULL,
		status          TEXT NOT NULL,
		detail          TEXT NOT NULL,
		idempotency_key TEXT NOT NULL,
		dry_run         BOOLEAN NOT NULL,
		requires_reconciliation BOOLEAN NOT NULL DEFAULT FALSE,
		realized_pnl    DOUBLE PRECISION NOT NULL,
		executed_at     TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trade_history_hash
		ON trade_history (idempotency_key, status, executed_at)`,
	`CREATE TABLE IF NOT EXISTS intent_log (
		intent_id TEXT NOT NULL,
		source_id TEXT NOT NULL,
		market_id TEXT NOT NULL,
		side      TEXT NOT NULL,
		price     DOUBLE PRECISION NOT NULL,
		size      DOUBLE PRECISION NOT NULL,
		accepted  BOOLEAN NOT NULL,
		code      TEXT NOT NULL,
		detail    TEXT NOT NULL,
		logged_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS risk_events (
		id            TEXT PRIMARY KEY,
		kind          TEXT NOT NULL,
		reason        TEXT NOT NULL,
		daily_pnl_pct DOUBLE PRECISION NOT NULL,
		total_pnl_pct DOUBLE PRECISION NOT NULL,
		created_at    TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS kill_switch (
		id                      INTEGER PRIMARY KEY,
		active                  BOOLEAN NOT NULL,
		reason                  TEXT NOT NULL,
		triggered_at            TIMESTAMP NOT NULL,
		requires_manual_restart BOOLEAN NOT NULL,
		consecutive_stop_days   INTEGER NOT NULL,
		last_stop_day           TEXT NOT NULL
	)`,
}
