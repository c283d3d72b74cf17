// Package store defines the range-addressed spreadsheet store contract
// and the backend registry. Backends register themselves from init in
// their own packages; importing sheetdb/internal/store/all links in
// every backend.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// ValueRange is a rectangle of cell values read from a store. Values is
// row-major; backends trim trailing empty cells per row and trailing
// empty rows, matching how the Sheets API reports ranges.
type ValueRange struct {
	Range  string
	Values [][]any
}

// ValueUpdate addresses a write: Values is anchored at the top-left
// cell of Range.
type ValueUpdate struct {
	Range  string
	Values [][]any
}

// Store is the read/write-by-range contract every backend implements.
//
// BatchGet must return one ValueRange per requested range, in request
// order, with row-major values. Append writes rows after the last row
// that has data within the range's columns. Clear empties cells without
// shifting rows.
type Store interface {
	Get(ctx context.Context, spreadsheetID, rng string) (ValueRange, error)
	BatchGet(ctx context.Context, spreadsheetID string, rngs []string) ([]ValueRange, error)
	Update(ctx context.Context, spreadsheetID string, u ValueUpdate) error
	BatchUpdate(ctx context.Context, spreadsheetID string, us []ValueUpdate) error
	Append(ctx context.Context, spreadsheetID, rng string, values [][]any) error
	Clear(ctx context.Context, spreadsheetID, rng string) error
	Close()
}

// Config selects and configures a backend.
type Config struct {
	// Kind names a registered backend: gsheets, sqlite, postgres,
	// mssql, xlsx, memory.
	Kind string `json:"kind"`
	// DSN is backend specific: a connection string for the database
	// backends, a credentials file path for gsheets, a workbook path
	// for xlsx. Ignored by memory.
	DSN string `json:"dsn"`
}

// Factory builds a Store from its config.
type Factory func(ctx context.Context, cfg Config) (Store, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{}
)

// Register makes a backend available under kind. It panics when kind is
// empty, f is nil, or kind is already taken; registration happens from
// init so a panic is a programming error, not a runtime condition.
func Register(kind string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if kind == "" {
		panic("store: Register with empty kind")
	}
	if f == nil {
		panic("store: Register with nil factory for " + kind)
	}
	if _, dup := factories[kind]; dup {
		panic("store: Register called twice for " + kind)
	}
	factories[kind] = f
}

// Open builds the backend named by cfg.Kind.
func Open(ctx context.Context, cfg Config) (Store, error) {
	factoriesMu.RLock()
	f, ok := factories[cfg.Kind]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("store: unknown kind %q (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}

// Kinds returns the registered backend names, sorted.
func Kinds() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
