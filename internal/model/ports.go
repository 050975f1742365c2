package model

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ── Storage Port Interfaces ──
// These interfaces decouple the service layer from concrete storage
// implementations (SQLite, PostgreSQL, Redis).

// ErrNotFound is returned by stores when a symbol has no data.
var ErrNotFound = errors.New("not found")

// BarReader reads daily bars.
type BarReader interface {
	// ReadBars returns bars for symbol ordered ascending by day, one per day.
	ReadBars(ctx context.Context, symbol string) ([]PriceBar, error)

	// CompanyName returns the display name of symbol, or ErrNotFound.
	CompanyName(ctx context.Context, symbol string) (string, error)

	// ListSymbols returns every symbol that has stored bars.
	ListSymbols(ctx context.Context) ([]string, error)
}

// BarWriter persists daily bars.
type BarWriter interface {
	// WriteBars upserts bars for symbol in a single transaction.
	WriteBars(ctx context.Context, symbol string, bars []PriceBar) error

	// SaveCompany records the display name of symbol.
	SaveCompany(ctx context.Context, symbol, name string) error
}

// BarStore is a read/write bar store.
type BarStore interface {
	BarReader
	BarWriter

	// Ping checks connectivity for health probes.
	Ping(ctx context.Context) error

	// Close releases underlying resources.
	Close() error
}

// DashboardCache stores computed indicator payloads as raw JSON.
// Using []byte avoids a model→indicator import cycle.
type DashboardCache interface {
	// Get returns cached JSON, or nil, nil on a miss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores JSON under key for ttl.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Invalidate drops every cached entry for symbol.
	Invalidate(ctx context.Context, symbol string) error
}

// DashboardKey is the cache key of one symbol's dashboard for a parameter set.
func DashboardKey(symbol, paramsKey string) string {
	return "dash:" + strings.ToUpper(symbol) + ":" + paramsKey
}

// DashboardPattern is a glob over all DashboardKey values of symbol.
func DashboardPattern(symbol string) string {
	return DashboardKey(symbol, "*")
}
