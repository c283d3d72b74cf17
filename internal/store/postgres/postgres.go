// Package postgres is a store backend on pgx. It shares the sparse
// sheet_cells model with the sqlite and mssql backends; batch writes go
// through a single transaction with pgx.Batch so one record update is
// one round trip.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sheetdb/internal/sheetref"
	"sheetdb/internal/store"
)

func init() {
	store.Register("postgres", func(ctx context.Context, cfg store.Config) (store.Store, error) {
		return Open(ctx, cfg.DSN)
	})
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS sheet_cells (
	spreadsheet_id TEXT NOT NULL,
	sheet          TEXT NOT NULL,
	row_idx        INT  NOT NULL,
	col_idx        INT  NOT NULL,
	kind           TEXT NOT NULL,
	value          TEXT NOT NULL,
	PRIMARY KEY (spreadsheet_id, sheet, row_idx, col_idx)
)`

// Store implements store.Store on a Postgres pool.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects the pool and ensures the cell table exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: create sheet_cells: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() { s.pool.Close() }

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
		WHERE spreadsheet_id = $1 AND sheet = $2 AND row_idx >= $3 AND col_idx >= $4`)
	args := []any{spreadsheetID, ref.Sheet, startRow, startCol}
	if endRow > 0 {
		args = append(args, endRow)
		fmt.Fprintf(&b, " AND row_idx <= $%d", len(args))
	}
	if endCol > 0 {
		args = append(args, endCol)
		fmt.Fprintf(&b, " AND col_idx <= $%d", len(args))
	}
	b.WriteString(" ORDER BY row_idx, col_idx")

	rows, err := s.pool.Query(ctx, b.String(), args...)
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
	const upsert = `INSERT INTO sheet_cells (spreadsheet_id, sheet, row_idx, col_idx, kind, value)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (spreadsheet_id, sheet, row_idx, col_idx)
		DO UPDATE SET kind = EXCLUDED.kind, value = EXCLUDED.value`

	batch := &pgx.Batch{}
	for _, u := range us {
		ref, err := sheetref.Parse(u.Range)
		if err != nil {
			return err
		}
		for _, c := range store.ExplodeUpdate(ref, u.Values) {
			batch.Queue(upsert, spreadsheetID, ref.Sheet, c.Row, c.Col, c.Kind, c.Raw)
		}
	}
	if batch.Len() == 0 {
		return nil
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		br := tx.SendBatch(ctx, batch)
		defer br.Close()
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				return fmt.Errorf("postgres: upsert cell: %w", err)
			}
		}
		return br.Close()
	})
}

func (s *Store) Append(ctx context.Context, spreadsheetID, rng string, values [][]any) error {
	ref, err := sheetref.Parse(rng)
	if err != nil {
		return err
	}
	_, startCol, _, endCol := store.Bounds(ref)

	var b strings.Builder
	b.WriteString(`SELECT COALESCE(MAX(row_idx), 0) FROM sheet_cells
		WHERE spreadsheet_id = $1 AND sheet = $2 AND col_idx >= $3 AND value <> ''`)
	args := []any{spreadsheetID, ref.Sheet, startCol}
	if endCol > 0 {
		args = append(args, endCol)
		fmt.Fprintf(&b, " AND col_idx <= $%d", len(args))
	}
	var last int
	if err := s.pool.QueryRow(ctx, b.String(), args...).Scan(&last); err != nil {
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
		WHERE spreadsheet_id = $1 AND sheet = $2 AND row_idx >= $3 AND col_idx >= $4`)
	args := []any{spreadsheetID, ref.Sheet, startRow, startCol}
	if endRow > 0 {
		args = append(args, endRow)
		fmt.Fprintf(&b, " AND row_idx <= $%d", len(args))
	}
	if endCol > 0 {
		args = append(args, endCol)
		fmt.Fprintf(&b, " AND col_idx <= $%d", len(args))
	}
	_, err = s.pool.Exec(ctx, b.String(), args...)
	return err
}

var _ store.Store = (*Store)(nil)
