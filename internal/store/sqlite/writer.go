package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"quant-dashboard/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Store is a SQLite-backed model.BarStore. SQLite allows one writer, so the
// pool is pinned to a single connection and WAL keeps readers unblocked.
type Store struct {
	db *sql.DB
}

var _ model.BarStore = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", path)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS market_data (
			symbol  TEXT NOT NULL,
			time    TEXT NOT NULL,
			open    REAL NOT NULL,
			high    REAL NOT NULL,
			low     REAL NOT NULL,
			close   REAL NOT NULL,
			volume  REAL NOT NULL DEFAULT 0,
			PRIMARY KEY (symbol, time)
		);

		CREATE TABLE IF NOT EXISTS stocks (
			symbol TEXT PRIMARY KEY,
			name   TEXT NOT NULL
		);
	`)
	return err
}

// WriteBars upserts bars for symbol in a single transaction. A bar whose day
// already exists replaces the stored row.
func (s *Store) WriteBars(ctx context.Context, symbol string, bars []model.PriceBar) error {
	if len(bars) == 0 {
		return nil
	}
	start := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO market_data (symbol, time, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite prepare: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, symbol, b.Time, b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite insert %s %s: %w", symbol, b.Time, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit: %w", err)
	}
	log.Printf("[sqlite] committed %d bars for %s in %v", len(bars), symbol, time.Since(start))
	return nil
}

// SaveCompany records symbol's display name.
func (s *Store) SaveCompany(ctx context.Context, symbol, name string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO stocks (symbol, name) VALUES (?, ?)`, symbol, name)
	if err != nil {
		return fmt.Errorf("sqlite save company: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
