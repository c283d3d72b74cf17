// Package mssql is a store backend on SQL Server via database/sql. It
// uses the same sparse sheet_cells model as the sqlite and postgres
// backends; cell upserts go through MERGE so reprocessing the same
// write stays idempotent.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"sheetdb/internal/sheetref"
	"sheetdb/internal/store"
)

func init() {
	store.Register("mssql", func(ctx context.Context, cfg store.Config) (store.Store, error) {
		return Open(ctx, cfg.DSN)
	})
}

const createTableSQL = `
IF OBJECT_ID(N'sheet_cells', N'U') IS NULL
CREATE TABLE sheet_cells (
	spreadsheet_id NVARCHAR(128) NOT NULL,
	sheet          NVARCHAR(128) NOT NULL,
	row_idx        INT NOT NULL,
	col_idx        INT NOT NULL,
	kind           NVARCHAR(8) NOT NULL,
	value          NVARCHAR(MAX) NOT NULL,
	CONSTRAINT pk_sheet_cells PRIMARY KEY (spreadsheet_id, sheet, row_idx, col_idx)
)`

const upsertSQL = `
MERGE sheet_cells AS t
USING (SELECT @p1 AS spreadsheet_id, @p2 AS sheet, @p3 AS row_idx, @p4 AS col_idx, @p5 AS kind, @p6 AS value) AS s
ON t.spreadsheet_id = s.spreadsheet_id AND t.sheet = s.sheet
	AND t.row_idx = s.row_idx AND t.col_idx = s.col_idx
WHEN MATCHED THEN
	UPDATE SET kind = s.kind, value = s.value
WHEN NOT MATCHED THEN
	INSERT (spreadsheet_id, sheet, row_idx, col_idx, kind, value)
	VALUES (s.spreadsheet_id, s.sheet, s.row_idx, s.col_idx, s.kind, s.value);`

// Store implements store.Store on SQL Server.
type Store struct {
	db *sql.DB
}

// Open connects with the sqlserver driver, validates connectivity, and
// ensures the cell table exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mssql: create sheet_cells: %w", err)
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
		WHERE spreadsheet_id = @p1 AND sheet = @p2 AND row_idx >= @p3 AND col_idx >= @p4`)
	args := []any{spreadsheetID, ref.Sheet, startRow, startCol}
	if endRow > 0 {
		args = append(args, endRow)
		fmt.Fprintf(&b, " AND row_idx <= @p%d", len(args))
	}
	if endCol > 0 {
		args = append(args, endCol)
		fmt.Fprintf(&b, " AND col_idx <= @p%d", len(args))
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

	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, u := range us {
		ref, err := sheetref.Parse(u.Range)
		if err != nil {
			return err
		}
		for _, c := range store.ExplodeUpdate(ref, u.Values) {
			if _, err := stmt.ExecContext(ctx, spreadsheetID, ref.Sheet, c.Row, c.Col, c.Kind, c.Raw); err != nil {
				return fmt.Errorf("mssql: upsert cell %s r%dc%d: %w", ref.Sheet, c.Row, c.Col, err)
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
		WHERE spreadsheet_id = @p1 AND sheet = @p2 AND col_idx >= @p3 AND value <> ''`)
	args := []any{spreadsheetID, ref.Sheet, startCol}
	if endCol > 0 {
		args = append(args, endCol)
		fmt.Fprintf(&b, " AND col_idx <= @p%d", len(args))
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
		WHERE spreadsheet_id = @p1 AND sheet = @p2 AND row_idx >= @p3 AND col_idx >= @p4`)
	args := []any{spreadsheetID, ref.Sheet, startRow, startCol}
	if endRow > 0 {
		args = append(args, endRow)
		fmt.Fprintf(&b, " AND row_idx <= @p%d", len(args))
	}
	if endCol > 0 {
		args = append(args, endCol)
		fmt.Fprintf(&b, " AND col_idx <= @p%d", len(args))
	}
	_, err = s.db.ExecContext(ctx, b.String(), args...)
	return err
}

var _ store.Store = (*Store)(nil)
