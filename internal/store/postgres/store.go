// Package postgres is the PostgreSQL bar store, schema-compatible with the
// market_data/stocks tables of existing deployments.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/lib/pq"

	"quant-dashboard/internal/model"
)

// Store is a PostgreSQL-backed model.BarStore.
type Store struct {
	db *sql.DB
}

var _ model.BarStore = (*Store)(nil)

// Open connects to dsn, verifies the connection and ensures the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres schema: %w", describe(err))
	}

	log.Printf("[postgres] connected")
	return &Store{db: db}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS stocks (
	symbol   VARCHAR(20) PRIMARY KEY,
	name     TEXT,
	exchange VARCHAR(20),
	active   BOOLEAN DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS market_data (
	time   TIMESTAMPTZ NOT NULL,
	symbol VARCHAR(20) NOT NULL,
	open   DOUBLE PRECISION,
	high   DOUBLE PRECISION,
	low    DOUBLE PRECISION,
	close  DOUBLE PRECISION,
	volume BIGINT,
	CONSTRAINT market_data_pk PRIMARY KEY (time, symbol),
	CONSTRAINT fk_stocks FOREIGN KEY (symbol) REFERENCES stocks (symbol)
);

CREATE INDEX IF NOT EXISTS ix_symbol_time_desc ON market_data (symbol, time DESC);
`

// ReadBars returns one row per day for symbol, ascending.
func (s *Store) ReadBars(ctx context.Context, symbol string) ([]model.PriceBar, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT ON (time) TO_CHAR(time, 'YYYY-MM-DD') AS day, open, high, low, close, volume
		FROM market_data
		WHERE symbol = $1
		ORDER BY time ASC
	`, symbol)
	if err != nil {
		return nil, fmt.Errorf("postgres query market_data: %w", describe(err))
	}
	defer rows.Close()

	bars := make([]model.PriceBar, 0, 512)
	for rows.Next() {
		var (
			b      model.PriceBar
			volume sql.NullInt64
		)
		if err := rows.Scan(&b.Time, &b.Open, &b.High, &b.Low, &b.Close, &volume); err != nil {
			return nil, fmt.Errorf("postgres scan market_data: %w", err)
		}
		b.Volume = float64(volume.Int64)
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// WriteBars upserts bars in one transaction, registering symbol in stocks
// first to satisfy the foreign key.
func (s *Store) WriteBars(ctx context.Context, symbol string, bars []model.PriceBar) error {
	if len(bars) == 0 {
		return nil
	}
	start := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO stocks (symbol, name) VALUES ($1, $1) ON CONFLICT (symbol) DO NOTHING`, symbol); err != nil {
		return fmt.Errorf("postgres register %s: %w", symbol, describe(err))
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO market_data (time, symbol, open, high, low, close, volume)
		VALUES ($1::date, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (time, symbol) DO UPDATE SET
			open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low,
			close = EXCLUDED.close, volume = EXCLUDED.volume
	`)
	if err != nil {
		return fmt.Errorf("postgres prepare: %w", describe(err))
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, b.Time, symbol, b.Open, b.High, b.Low, b.Close, int64(b.Volume)); err != nil {
			return fmt.Errorf("postgres insert %s %s: %w", symbol, b.Time, describe(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres commit: %w", describe(err))
	}
	log.Printf("[postgres] committed %d bars for %s in %v", len(bars), symbol, time.Since(start))
	return nil
}

// CompanyName returns the stored name, or model.ErrNotFound.
func (s *Store) CompanyName(ctx context.Context, symbol string) (string, error) {
	var name sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT name FROM stocks WHERE symbol = $1`, symbol).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !name.Valid) {
		return "", model.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("postgres read company: %w", describe(err))
	}
	return name.String, nil
}

// SaveCompany upserts symbol's display name.
func (s *Store) SaveCompany(ctx context.Context, symbol, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stocks (symbol, name) VALUES ($1, $2)
		ON CONFLICT (symbol) DO UPDATE SET name = EXCLUDED.name
	`, symbol, name)
	if err != nil {
		return fmt.Errorf("postgres save company: %w", describe(err))
	}
	return nil
}

// ListSymbols returns active symbols that have bars.
func (s *Store) ListSymbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.symbol FROM stocks s
		WHERE COALESCE(s.active, TRUE)
		  AND EXISTS (SELECT 1 FROM market_data m WHERE m.symbol = s.symbol)
		ORDER BY s.symbol
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres list symbols: %w", describe(err))
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("postgres scan symbol: %w", err)
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// describe adds the SQLSTATE condition name to server-side errors.
func describe(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fmt.Errorf("%s (%s): %w", pqErr.Code.Name(), pqErr.Code, err)
	}
	return err
}
