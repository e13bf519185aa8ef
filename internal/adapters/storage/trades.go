package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alejandrodnm/kalshibot/internal/domain"
)

// SaveTradeLog inserta el registro inmutable de un round trip cerrado.
func (s *SQLiteStorage) SaveTradeLog(ctx context.Context, t domain.TradeLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trade_logs
			(position_id, ticker, side, strategy, quantity, entry_price, exit_price,
			 fees, realized_pnl, exit_reason, slippage, opened_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.PositionID, t.Ticker, string(t.Side), t.Strategy, t.Quantity, t.EntryPrice, t.ExitPrice,
		t.Fees, t.RealizedPnL, string(t.ExitReason), t.Slippage, t.OpenedAt.UTC(), t.ClosedAt.UTC())
	if err != nil {
		return fmt.Errorf("storage.SaveTradeLog: position %s: %w", t.PositionID, err)
	}
	return nil
}

// TradeLogs devuelve los trades cerrados desde la fecha dada.
func (s *SQLiteStorage) TradeLogs(ctx context.Context, since time.Time) ([]domain.TradeLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, position_id, ticker, side, strategy, quantity, entry_price, exit_price,
		       fees, realized_pnl, exit_reason, slippage, opened_at, closed_at
		FROM trade_logs WHERE closed_at >= ? ORDER BY closed_at
	`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("storage.TradeLogs: query: %w", err)
	}
	defer rows.Close()

	var out []domain.TradeLog
	for rows.Next() {
		var t domain.TradeLog
		var side, reason string
		if err := rows.Scan(
			&t.ID, &t.PositionID, &t.Ticker, &side, &t.Strategy, &t.Quantity,
			&t.EntryPrice, &t.ExitPrice, &t.Fees, &t.RealizedPnL, &reason,
			&t.Slippage, &t.OpenedAt, &t.ClosedAt,
		); err != nil {
			return nil, fmt.Errorf("storage.TradeLogs: scan: %w", err)
		}
		t.Side = domain.Side(side)
		t.ExitReason = domain.ExitReason(reason)
		out = append(out, t)
	}
	return out, rows.Err()
}

// SaveAnalysis persiste el resultado verbatim de una llamada de forecast.
func (s *SQLiteStorage) SaveAnalysis(ctx context.Context, a domain.MarketAnalysis) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO market_analyses
			(ticker, action, probability, confidence, edge, cost_usd, model, raw_response, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.Ticker, a.Action, a.Probability, a.Confidence, a.Edge, a.CostUSD, a.Model, a.RawResponse, a.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("storage.SaveAnalysis: %s: %w", a.Ticker, err)
	}
	return nil
}

// LatestAnalysis devuelve el análisis más reciente de un mercado, o nil.
func (s *SQLiteStorage) LatestAnalysis(ctx context.Context, ticker string) (*domain.MarketAnalysis, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, ticker, action, probability, confidence, edge, cost_usd, model, raw_response, created_at
		FROM market_analyses WHERE ticker = ? ORDER BY created_at DESC LIMIT 1
	`, ticker)

	var a domain.MarketAnalysis
	err := row.Scan(&a.ID, &a.Ticker, &a.Action, &a.Probability, &a.Confidence,
		&a.Edge, &a.CostUSD, &a.Model, &a.RawResponse, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage.LatestAnalysis: %s: %w", ticker, err)
	}
	return &a, nil
}

// AnalysisCountSince cuenta análisis de un mercado desde la fecha dada.
func (s *SQLiteStorage) AnalysisCountSince(ctx context.Context, ticker string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM market_analyses WHERE ticker = ? AND created_at >= ?`,
		ticker, since.UTC(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage.AnalysisCountSince: %s: %w", ticker, err)
	}
	return n, nil
}

// ForecastSpendSince suma el coste de forecast desde la fecha dada.
func (s *SQLiteStorage) ForecastSpendSince(ctx context.Context, since time.Time) (float64, error) {
	var spend float64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cost_usd), 0) FROM market_analyses WHERE created_at >= ?`,
		since.UTC(),
	).Scan(&spend)
	if err != nil {
		return 0, fmt.Errorf("storage.ForecastSpendSince: %w", err)
	}
	return spend, nil
}

// RealizedPnLSince suma el P&L realizado desde la fecha dada.
func (s *SQLiteStorage) RealizedPnLSince(ctx context.Context, since time.Time) (float64, error) {
	var pnl float64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(realized_pnl), 0) FROM trade_logs WHERE closed_at >= ?`,
		since.UTC(),
	).Scan(&pnl)
	if err != nil {
		return 0, fmt.Errorf("storage.RealizedPnLSince: %w", err)
	}
	return pnl, nil
}

// SaveBalanceSnapshot registra cash y valor de posiciones.
func (s *SQLiteStorage) SaveBalanceSnapshot(ctx context.Context, snap domain.BalanceSnapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO balance_snapshots (cash, positions_value, total, at) VALUES (?, ?, ?, ?)
	`, snap.Cash, snap.PositionsValue, snap.Total, snap.At.UTC())
	if err != nil {
		return fmt.Errorf("storage.SaveBalanceSnapshot: %w", err)
	}
	return nil
}

// SavePerformanceSnapshot registra el resultado de un ciclo de evaluación.
// El desglose por estrategia va como JSON: es de solo lectura para el
// dashboard y no participa en queries.
func (s *SQLiteStorage) SavePerformanceSnapshot(ctx context.Context, snap domain.PerformanceSnapshot) error {
	byStrategy, err := json.Marshal(snap.ByStrategy)
	if err != nil {
		return fmt.Errorf("storage.SavePerformanceSnapshot: marshal by_strategy: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO performance_snapshots
			(at, realized_pnl, unrealized_pnl, trades, wins, win_rate, open_positions, by_strategy)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, snap.At.UTC(), snap.RealizedPnL, snap.UnrealizedPnL, snap.Trades, snap.Wins,
		snap.WinRate, snap.OpenPositions, string(byStrategy))
	if err != nil {
		return fmt.Errorf("storage.SavePerformanceSnapshot: %w", err)
	}
	return nil
}
