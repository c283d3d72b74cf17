package query

import (
	"context"
	"fmt"
	"strings"

	"sheetdb/internal/coerce"
	"sheetdb/internal/metrics"
	"sheetdb/internal/schema"
	"sheetdb/internal/sheetref"
	"sheetdb/internal/store"
)

// RowCount returns the number of data rows, counted from the key
// column so phantom formatting rows past the data do not inflate it.
func (s *Service) RowCount(ctx context.Context, dataset string, opts Options) (int, error) {
	ds, err := s.reg.Dataset(dataset)
	if err != nil {
		return 0, err
	}
	vr, err := s.store.Get(ctx, s.sheetID(opts), sheetref.Column(ds.Name, 1))
	if err != nil {
		return 0, fmt.Errorf("query: count %s: %w", dataset, err)
	}
	n := len(vr.Values) - 1
	if n < 0 {
		n = 0
	}
	return n, nil
}

// rowValues lays a record out in physical column order; absent fields
// become empty cells.
func rowValues(ds schema.Dataset, record map[string]any) []any {
	out := make([]any, len(ds.Columns))
	for i, col := range ds.Columns {
		if v, ok := record[col.Key]; ok {
			out[i] = v
		} else {
			out[i] = ""
		}
	}
	return out
}

// AppendRows validates and appends records below the last data row.
func (s *Service) AppendRows(ctx context.Context, dataset string, records []map[string]any, opts Options) (int, error) {
	ds, err := s.reg.Dataset(dataset)
	if err != nil {
		return 0, err
	}
	values := make([][]any, 0, len(records))
	for i, record := range records {
		if err := checkRequired(ds, record); err != nil {
			return 0, fmt.Errorf("query: append %s record %d: %w", dataset, i, err)
		}
		values = append(values, rowValues(ds, record))
	}
	if len(values) == 0 {
		return 0, nil
	}
	rng := sheetref.Span(ds.Name, 1, 1, len(ds.Columns))
	err = s.store.Append(ctx, s.sheetID(opts), rng, values)
	metrics.RecordWrite(dataset, "append", len(values)*len(ds.Columns), err)
	if err != nil {
		return 0, fmt.Errorf("query: append %s: %w", dataset, err)
	}
	s.cache.invalidate()
	s.log.Printf("stage=append dataset=%s rows=%d", dataset, len(values))
	return len(values), nil
}

// AppendRow appends a single record.
func (s *Service) AppendRow(ctx context.Context, dataset string, record map[string]any, opts Options) error {
	_, err := s.AppendRows(ctx, dataset, []map[string]any{record}, opts)
	return err
}

func checkRequired(ds schema.Dataset, record map[string]any) error {
	for _, col := range ds.Columns {
		if !col.Required {
			continue
		}
		v, ok := record[col.Key]
		if !ok || strings.TrimSpace(coerce.String(v)) == "" {
			return fmt.Errorf("required field %q is empty", col.Key)
		}
	}
	return nil
}

// UpdateRowByIndex replaces one physical row wholesale. Index is the
// sheet row as reported by Row.Index (first data row = 2).
func (s *Service) UpdateRowByIndex(ctx context.Context, dataset string, rowIndex int, record map[string]any, opts Options) error {
	ds, err := s.reg.Dataset(dataset)
	if err != nil {
		return err
	}
	if rowIndex < 2 {
		return fmt.Errorf("query: row index %d is above the data region", rowIndex)
	}
	u := store.ValueUpdate{
		Range:  sheetref.RowSpan(ds.Name, 1, len(ds.Columns), rowIndex),
		Values: [][]any{rowValues(ds, record)},
	}
	err = s.store.Update(ctx, s.sheetID(opts), u)
	metrics.RecordWrite(dataset, "update_row", len(ds.Columns), err)
	if err != nil {
		return fmt.Errorf("query: update row %d of %s: %w", rowIndex, dataset, err)
	}
	s.cache.invalidate()
	return nil
}

// DeleteRowByIndex empties one physical row. Cells are cleared rather
// than removed so later rows keep their indices.
func (s *Service) DeleteRowByIndex(ctx context.Context, dataset string, rowIndex int, opts Options) error {
	ds, err := s.reg.Dataset(dataset)
	if err != nil {
		return err
	}
	if rowIndex < 2 {
		return fmt.Errorf("query: row index %d is above the data region", rowIndex)
	}
	rng := sheetref.RowSpan(ds.Name, 1, len(ds.Columns), rowIndex)
	err = s.store.Clear(ctx, s.sheetID(opts), rng)
	metrics.RecordWrite(dataset, "delete_row", len(ds.Columns), err)
	if err != nil {
		return fmt.Errorf("query: delete row %d of %s: %w", rowIndex, dataset, err)
	}
	s.cache.invalidate()
	return nil
}

// ClearData empties every data row, keeping the header.
func (s *Service) ClearData(ctx context.Context, dataset string, opts Options) error {
	ds, err := s.reg.Dataset(dataset)
	if err != nil {
		return err
	}
	rng := sheetref.Span(ds.Name, 1, 2, len(ds.Columns))
	err = s.store.Clear(ctx, s.sheetID(opts), rng)
	metrics.RecordWrite(dataset, "clear", 0, err)
	if err != nil {
		return fmt.Errorf("query: clear %s: %w", dataset, err)
	}
	s.cache.invalidate()
	return nil
}

// Search returns rows whose column matches value. Matching is
// case-insensitive on the coerced string form; exact requires full
// equality, otherwise substring containment.
func (s *Service) Search(ctx context.Context, dataset, column, value string, exact bool, opts Options) ([]Row, error) {
	ds, err := s.reg.Dataset(dataset)
	if err != nil {
		return nil, err
	}
	if _, ok := ds.ColumnIndex(column); !ok {
		return nil, fmt.Errorf("query: dataset %s has no column %q", dataset, column)
	}
	res, err := s.Rows(ctx, dataset, opts)
	if err != nil {
		return nil, err
	}
	want := strings.ToLower(strings.TrimSpace(value))
	var out []Row
	for _, row := range res.Rows {
		got := strings.ToLower(strings.TrimSpace(coerce.String(row.Cells[column])))
		if exact && got == want || !exact && strings.Contains(got, want) {
			out = append(out, row)
		}
	}
	return out, nil
}

// ColumnStats summarizes one column. For numeric columns Count is the
// number of folded values; for the rest it is the distinct value count
// and the float fields stay zero.
type ColumnStats struct {
	Sum   float64
	Min   float64
	Max   float64
	Count int
}

// Stats computes per-column aggregates over the whole dataset: totals
// for numeric columns, distinct counts for the rest.
func (s *Service) Stats(ctx context.Context, dataset string, opts Options) (map[string]ColumnStats, int, error) {
	ds, err := s.reg.Dataset(dataset)
	if err != nil {
		return nil, 0, err
	}
	res, err := s.Rows(ctx, dataset, opts)
	if err != nil {
		return nil, 0, err
	}
	out := make(map[string]ColumnStats)
	distinct := make(map[string]map[string]struct{})
	for _, col := range ds.Columns {
		if !col.Type.Numeric() {
			distinct[col.Key] = make(map[string]struct{})
		}
	}
	for _, row := range res.Rows {
		for _, col := range ds.Columns {
			v, ok := row.Cells[col.Key]
			if !ok {
				continue
			}
			if col.Type.Numeric() {
				f := coerce.Number(v)
				st := out[col.Key]
				if st.Count == 0 || f < st.Min {
					st.Min = f
				}
				if st.Count == 0 || f > st.Max {
					st.Max = f
				}
				st.Sum += f
				st.Count++
				out[col.Key] = st
			} else if sv := coerce.String(v); sv != "" {
				distinct[col.Key][sv] = struct{}{}
			}
		}
	}
	for key, set := range distinct {
		st := out[key]
		st.Count = len(set)
		out[key] = st
	}
	return out, res.Total, nil
}
