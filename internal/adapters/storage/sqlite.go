package storage

// sqlite.go — persistencia del bot en SQLite (pure Go, sin CGo).
//
// Tablas:
//   - markets:               último snapshot de cada mercado (upsert).
//   - positions:             fuente de verdad local de posiciones.
//   - orders:                toda orden enviada, con su fill final.
//   - trade_logs:            registro inmutable de round trips cerrados.
//   - market_analyses:       cada llamada de forecast, verbatim.
//   - balance_snapshots:     cash + valor de posiciones por ciclo de eval.
//   - performance_snapshots: agregados de P&L por ciclo de eval.
//
// Las migraciones son aditivas: el schema usa IF NOT EXISTS y las columnas
// nuevas entran por ALTER TABLE con default, sin reescribir filas.

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/alejandrodnm/kalshibot/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS markets (
    ticker       TEXT PRIMARY KEY,
    event_ticker TEXT NOT NULL DEFAULT '',
    title        TEXT NOT NULL DEFAULT '',
    category     TEXT NOT NULL DEFAULT '',
    yes_bid      REAL NOT NULL DEFAULT 0,
    yes_ask      REAL NOT NULL DEFAULT 0,
    no_bid       REAL NOT NULL DEFAULT 0,
    no_ask       REAL NOT NULL DEFAULT 0,
    last_price   REAL NOT NULL DEFAULT 0,
    volume       REAL NOT NULL DEFAULT 0,
    liquidity    REAL NOT NULL DEFAULT 0,
    expires_at   DATETIME,
    status       TEXT NOT NULL DEFAULT '',
    result       TEXT NOT NULL DEFAULT '',
    updated_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
    id               TEXT PRIMARY KEY,
    ticker           TEXT NOT NULL,
    event_ticker     TEXT NOT NULL DEFAULT '',
    side             TEXT NOT NULL,
    entry_price      REAL NOT NULL,
    quantity         INTEGER NOT NULL,
    opened_at        DATETIME NOT NULL,
    strategy         TEXT NOT NULL DEFAULT 'directional',
    status           TEXT NOT NULL DEFAULT 'open',
    rationale        TEXT NOT NULL DEFAULT '',
    confidence       REAL NOT NULL DEFAULT 0,
    group_id         TEXT NOT NULL DEFAULT '',
    stop_loss        REAL NOT NULL DEFAULT 0,
    take_profit      REAL NOT NULL DEFAULT 0,
    max_hold_secs    INTEGER NOT NULL DEFAULT 0,
    confidence_delta REAL NOT NULL DEFAULT 0,
    exit_reason      TEXT NOT NULL DEFAULT '',
    close_price      REAL NOT NULL DEFAULT 0,
    closed_at        DATETIME
);

CREATE TABLE IF NOT EXISTS orders (
    id             TEXT PRIMARY KEY,
    exchange_id    TEXT NOT NULL DEFAULT '',
    ticker         TEXT NOT NULL,
    side           TEXT NOT NULL,
    action         TEXT NOT NULL,
    price          REAL NOT NULL,
    quantity       INTEGER NOT NULL,
    filled_qty     INTEGER NOT NULL DEFAULT 0,
    avg_fill_price REAL NOT NULL DEFAULT 0,
    status         TEXT NOT NULL,
    group_id       TEXT NOT NULL DEFAULT '',
    created_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS trade_logs (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    position_id  TEXT NOT NULL,
    ticker       TEXT NOT NULL,
    side         TEXT NOT NULL,
    strategy     TEXT NOT NULL DEFAULT 'directional',
    quantity     INTEGER NOT NULL,
    entry_price  REAL NOT NULL,
    exit_price   REAL NOT NULL,
    fees         REAL NOT NULL DEFAULT 0,
    realized_pnl REAL NOT NULL,
    exit_reason  TEXT NOT NULL,
    slippage     REAL NOT NULL DEFAULT 0,
    opened_at    DATETIME NOT NULL,
    closed_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS market_analyses (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    ticker       TEXT NOT NULL,
    action       TEXT NOT NULL,
    probability  REAL NOT NULL DEFAULT 0,
    confidence   REAL NOT NULL DEFAULT 0,
    edge         REAL NOT NULL DEFAULT 0,
    cost_usd     REAL NOT NULL DEFAULT 0,
    model        TEXT NOT NULL DEFAULT '',
    raw_response TEXT NOT NULL DEFAULT '',
    created_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS balance_snapshots (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    cash            REAL NOT NULL,
    positions_value REAL NOT NULL,
    total           REAL NOT NULL,
    at              DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS performance_snapshots (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    at             DATETIME NOT NULL,
    realized_pnl   REAL NOT NULL,
    unrealized_pnl REAL NOT NULL,
    trades         INTEGER NOT NULL,
    wins           INTEGER NOT NULL,
    win_rate       REAL NOT NULL,
    open_positions INTEGER NOT NULL,
    by_strategy    TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_positions_status  ON positions(status);
CREATE INDEX IF NOT EXISTS idx_positions_ticker  ON positions(ticker, status);
CREATE INDEX IF NOT EXISTS idx_analyses_ticker   ON market_analyses(ticker, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_trade_logs_closed ON trade_logs(closed_at DESC);
`

// Migraciones aditivas sobre tablas ya existentes. Los errores de columna
// duplicada se ignoran: significan que la migración ya corrió.
var migrations = []string{
	`ALTER TABLE positions ADD COLUMN tracked INTEGER NOT NULL DEFAULT 1`,
}

// SQLiteStorage implementa ports.Storage usando SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada y aplica
// el schema y las migraciones. Un fallo aquí aborta el arranque del bot.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}
	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil && !isDuplicateColumn(err) {
			db.Close()
			return nil, fmt.Errorf("storage.NewSQLiteStorage: migrate: %w", err)
		}
	}
	return &SQLiteStorage{db: db}, nil
}

func isDuplicateColumn(err error) bool {
	return err != nil && strings.Contains(err.Error(), "duplicate column")
}

// UpsertMarket guarda el snapshot más reciente de un mercado.
func (s *SQLiteStorage) UpsertMarket(ctx context.Context, m domain.Market) error {
	var expires *time.Time
	if !m.ExpiresAt.IsZero() {
		t := m.ExpiresAt.UTC()
		expires = &t
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO markets
			(ticker, event_ticker, title, category, yes_bid, yes_ask, no_bid, no_ask,
			 last_price, volume, liquidity, expires_at, status, result, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker) DO UPDATE SET
			event_ticker = excluded.event_ticker,
			title        = excluded.title,
			category     = excluded.category,
			yes_bid      = excluded.yes_bid,
			yes_ask      = excluded.yes_ask,
			no_bid       = excluded.no_bid,
			no_ask       = excluded.no_ask,
			last_price   = excluded.last_price,
			volume       = excluded.volume,
			liquidity    = excluded.liquidity,
			expires_at   = excluded.expires_at,
			status       = excluded.status,
			result       = excluded.result,
			updated_at   = excluded.updated_at
	`, m.Ticker, m.EventTicker, m.Title, m.Category, m.YesBid, m.YesAsk, m.NoBid, m.NoAsk,
		m.LastPrice, m.Volume, m.Liquidity, expires, string(m.Status), m.Result, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("storage.UpsertMarket: %s: %w", m.Ticker, err)
	}
	return nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
