package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alejandrodnm/kalshibot/internal/domain"
)

const positionColumns = `id, ticker, event_ticker, side, entry_price, quantity, opened_at,
	strategy, status, tracked, rationale, confidence, group_id,
	stop_loss, take_profit, max_hold_secs, confidence_delta,
	exit_reason, close_price, closed_at`

// SavePosition inserta una posición nueva.
func (s *SQLiteStorage) SavePosition(ctx context.Context, p domain.Position) error {
	tracked := 0
	if p.Tracked {
		tracked = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO positions (`+positionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Ticker, p.EventTicker, string(p.Side), p.EntryPrice, p.Quantity, p.OpenedAt.UTC(),
		p.Strategy, string(p.Status), tracked, p.Rationale, p.Confidence, p.GroupID,
		p.Exit.StopLoss, p.Exit.TakeProfit, int64(p.Exit.MaxHold.Seconds()), p.Exit.ConfidenceDelta,
		string(p.ExitReason), p.ClosePrice, nullableTime(p.ClosedAt))
	if err != nil {
		return fmt.Errorf("storage.SavePosition: %s: %w", p.ID, err)
	}
	return nil
}

// UpdatePosition actualiza status, exit y precios de cierre.
func (s *SQLiteStorage) UpdatePosition(ctx context.Context, p domain.Position) error {
	tracked := 0
	if p.Tracked {
		tracked = 1
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE positions SET
			status = ?, tracked = ?,
			stop_loss = ?, take_profit = ?, max_hold_secs = ?, confidence_delta = ?,
			exit_reason = ?, close_price = ?, closed_at = ?
		WHERE id = ?
	`, string(p.Status), tracked,
		p.Exit.StopLoss, p.Exit.TakeProfit, int64(p.Exit.MaxHold.Seconds()), p.Exit.ConfidenceDelta,
		string(p.ExitReason), p.ClosePrice, nullableTime(p.ClosedAt), p.ID)
	if err != nil {
		return fmt.Errorf("storage.UpdatePosition: %s: %w", p.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("storage.UpdatePosition: position %s not found", p.ID)
	}
	return nil
}

// GetPosition devuelve una posición por ID.
func (s *SQLiteStorage) GetPosition(ctx context.Context, id string) (domain.Position, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+positionColumns+` FROM positions WHERE id = ?`, id)
	p, err := scanPosition(row)
	if err != nil {
		return domain.Position{}, fmt.Errorf("storage.GetPosition: %s: %w", id, err)
	}
	return p, nil
}

// OpenPositions devuelve todas las posiciones no cerradas.
func (s *SQLiteStorage) OpenPositions(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+positionColumns+` FROM positions
		WHERE status != ? ORDER BY opened_at
	`, string(domain.PositionClosed))
	if err != nil {
		return nil, fmt.Errorf("storage.OpenPositions: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.OpenPositions: scan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// OpenPositionForMarket devuelve la posición abierta en un mercado, o nil.
func (s *SQLiteStorage) OpenPositionForMarket(ctx context.Context, ticker string) (*domain.Position, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+positionColumns+` FROM positions
		WHERE ticker = ? AND status != ? LIMIT 1
	`, ticker, string(domain.PositionClosed))
	p, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage.OpenPositionForMarket: %s: %w", ticker, err)
	}
	return &p, nil
}

// CountPositions devuelve el total de posiciones, abiertas o no.
func (s *SQLiteStorage) CountPositions(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM positions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("storage.CountPositions: %w", err)
	}
	return n, nil
}

// SaveOrder inserta una orden.
func (s *SQLiteStorage) SaveOrder(ctx context.Context, o domain.Order) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders
			(id, exchange_id, ticker, side, action, price, quantity,
			 filled_qty, avg_fill_price, status, group_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, o.ID, o.ExchangeID, o.Ticker, string(o.Side), string(o.Action), o.Price, o.Quantity,
		o.FilledQty, o.AvgFillPrice, string(o.Status), o.GroupID, o.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("storage.SaveOrder: %s: %w", o.ID, err)
	}
	return nil
}

// UpdateOrder actualiza status y fills de una orden.
func (s *SQLiteStorage) UpdateOrder(ctx context.Context, o domain.Order) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE orders SET
			exchange_id = ?, filled_qty = ?, avg_fill_price = ?, status = ?
		WHERE id = ?
	`, o.ExchangeID, o.FilledQty, o.AvgFillPrice, string(o.Status), o.ID)
	if err != nil {
		return fmt.Errorf("storage.UpdateOrder: %s: %w", o.ID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(row rowScanner) (domain.Position, error) {
	var p domain.Position
	var side, status, exitReason string
	var tracked int
	var maxHoldSecs int64
	var closedAt sql.NullTime

	err := row.Scan(
		&p.ID, &p.Ticker, &p.EventTicker, &side, &p.EntryPrice, &p.Quantity, &p.OpenedAt,
		&p.Strategy, &status, &tracked, &p.Rationale, &p.Confidence, &p.GroupID,
		&p.Exit.StopLoss, &p.Exit.TakeProfit, &maxHoldSecs, &p.Exit.ConfidenceDelta,
		&exitReason, &p.ClosePrice, &closedAt,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Side = domain.Side(side)
	p.Status = domain.PositionStatus(status)
	p.Tracked = tracked == 1
	p.Exit.MaxHold = time.Duration(maxHoldSecs) * time.Second
	p.ExitReason = domain.ExitReason(exitReason)
	if closedAt.Valid {
		t := closedAt.Time
		p.ClosedAt = &t
	}
	return p, nil
}

func nullableTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
