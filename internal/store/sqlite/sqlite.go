// Package sqlite is a store backend on modernc.org/sqlite. Cells are
// kept sparsely in a single sheet_cells table; the grid shape a caller
// sees is reassembled per read.
//
// SQLite keeps everything with TEXT affinity unless told otherwise, so
// cells carry an explicit kind column and round-trip through the store
// package's cell codec.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"sheetdb/internal/sheetref"
	"sheetdb/internal/store"
)

func init() {
	store.Register("sqlite", func(ctx context.Context, cfg store.Config) (store.Store, error) {
		return Open(ctx, cfg.DSN)
	})
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS sheet_cells (
	spreadsheet_id TEXT NOT NULL,
	sheet          TEXT NOT NULL,
	row_idx        INTEGER NOT NULL,
	col_idx        INTEGER NOT NULL,
	kind           TEXT NOT NULL,
	value          TEXT NOT NULL,
	PRIMARY KEY (spreadsheet_id, sheet, row_idx, col_idx)
)`

// Store implements store.Store on a SQLite database.
type Store struct {
	db *sql.DB
}

// Open connects, validates connectivity, and ensures the cell table
// exists. DSN is anything modernc.org/sqlite accepts, including
// file::memory:?cache=shared for tests.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: create sheet_cells: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() { _ = s.db.Close() }

func (s *Store) Get(ctx context.Context, spreadsheetID, rng string) (store.ValueRange, error) {
	ref, err := sheetref.Parse(rng)
	if err != nil {
		return store.ValueRange{}, err
	}
	cells, err := s.selectCells(ctx, spreadsheetID, ref)
	if err != nil {
		return store.ValueRange{}, err
	}
	return store.ValueRange{Range: rng, Values: store.BuildValues(ref, cells)}, nil
}

func (s *Store) BatchGet(ctx context.Context, spreadsheetID string, rngs []string) ([]store.ValueRange, error) {
	out := make([]store.ValueRange, 0, len(rngs))
	for _, rng := range rngs {
		vr, err := s.Get(ctx, spreadsheetID, rng)
		if err != nil {
			return nil, err
		}
		out = append(out, vr)
	}
	return out, nil
}

func (s *Store) selectCells(ctx context.Context, spreadsheetID string, ref sheetref.Ref) ([]store.CellValue, error) {
	startRow, startCol, endRow, endCol := store.Bounds(ref)

	var b strings.Builder
	b.WriteString(`SELECT row_idx, col_idx, kind, value FROM sheet_cells
		WHERE spreadsheet_id = ? AND sheet = ? AND row_idx >= ? AND col_idx >= ?`)
	args := []any{spreadsheetID, ref.Sheet, startRow, startCol}
	if endRow > 0 {
		b.WriteString(" AND row_idx <= ?")
		args = append(args, endRow)
	}
	if endCol > 0 {
		b.WriteString(" AND col_idx <= ?")
		args = append(args, endCol)
	}
	b.WriteString(" ORDER BY row_idx, col_idx")

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cells []store.CellValue
	for rows.Next() {
		var c store.CellValue
		if err := rows.Scan(&c.Row, &c.Col, &c.Kind, &c.Raw); err != nil {
			return nil, err
		}
		cells = append(cells, c)
	}
	return cells, rows.Err()
}

func (s *Store) Update(ctx context.Context, spreadsheetID string, u store.ValueUpdate) error {
	return s.BatchUpdate(ctx, spreadsheetID, []store.ValueUpdate{u})
}

func (s *Store) BatchUpdate(ctx context.Context, spreadsheetID string, us []store.ValueUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const upsert = `INSERT INTO sheet_cells (spreadsheet_id, sheet, row_idx, col_idx, kind, value)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (spreadsheet_id, sheet, row_idx, col_idx)
		DO UPDATE SET kind = excluded.kind, value = excluded.value`
	for _, u := range us {
		ref, err := sheetref.Parse(u.Range)
		if err != nil {
			return err
		}
		for _, c := range store.ExplodeUpdate(ref, u.Values) {
			if _, err := tx.ExecContext(ctx, upsert, spreadsheetID, ref.Sheet, c.Row, c.Col, c.Kind, c.Raw); err != nil {
				return fmt.Errorf("sqlite: upsert cell %s r%dc%d: %w", ref.Sheet, c.Row, c.Col, err)
			}
		}
	}
	return tx.Commit()
}

func (s *Store) Append(ctx context.Context, spreadsheetID, rng string, values [][]any) error {
	ref, err := sheetref.Parse(rng)
	if err != nil {
		return err
	}
	_, startCol, _, endCol := store.Bounds(ref)

	var b strings.Builder
	b.WriteString(`SELECT COALESCE(MAX(row_idx), 0) FROM sheet_cells
		WHERE spreadsheet_id = ? AND sheet = ? AND col_idx >= ? AND value <> ''`)
	args := []any{spreadsheetID, ref.Sheet, startCol}
	if endCol > 0 {
		b.WriteString(" AND col_idx <= ?")
		args = append(args, endCol)
	}
	var last int
	if err := s.db.QueryRowContext(ctx, b.String(), args...).Scan(&last); err != nil {
		return err
	}

	return s.Update(ctx, spreadsheetID, store.ValueUpdate{
		Range:  sheetref.Cell(ref.Sheet, startCol, last+1),
		Values: values,
	})
}

func (s *Store) Clear(ctx context.Context, spreadsheetID, rng string) error {
	ref, err := sheetref.Parse(rng)
	if err != nil {
		return err
	}
	startRow, startCol, endRow, endCol := store.Bounds(ref)

	var b strings.Builder
	b.WriteString(`DELETE FROM sheet_cells
		WHERE spreadsheet_id = ? AND sheet = ? AND row_idx >= ? AND col_idx >= ?`)
	args := []any{spreadsheetID, ref.Sheet, startRow, startCol}
	if endRow > 0 {
		b.WriteString(" AND row_idx <= ?")
		args = append(args, endRow)
	}
	if endCol > 0 {
		b.WriteString(" AND col_idx <= ?")
		args = append(args, endCol)
	}
	_, err = s.db.ExecContext(ctx, b.String(), args...)
	return err
}

var _ store.Store = (*Store)(nil)
