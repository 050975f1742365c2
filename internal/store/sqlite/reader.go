package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"quant-dashboard/internal/model"
)

// ReadBars returns symbol's bars ordered by day. An unknown symbol yields an
// empty slice.
func (s *Store) ReadBars(ctx context.Context, symbol string) ([]model.PriceBar, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT time, open, high, low, close, volume
		FROM market_data
		WHERE symbol = ?
		ORDER BY time ASC
	`, symbol)
	if err != nil {
		return nil, fmt.Errorf("sqlite query market_data: %w", err)
	}
	defer rows.Close()

	bars := make([]model.PriceBar, 0, 512)
	for rows.Next() {
		var b model.PriceBar
		if err := rows.Scan(&b.Time, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan market_data: %w", err)
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// CompanyName returns the stored display name, or model.ErrNotFound.
func (s *Store) CompanyName(ctx context.Context, symbol string) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx, `SELECT name FROM stocks WHERE symbol = ?`, symbol).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", model.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("sqlite read company: %w", err)
	}
	return name, nil
}

// ListSymbols returns every symbol with stored bars, sorted.
func (s *Store) ListSymbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT symbol FROM market_data ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("sqlite list symbols: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("sqlite scan symbol: %w", err)
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}
