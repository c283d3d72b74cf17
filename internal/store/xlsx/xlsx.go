// Package xlsx is a store backend on a local Excel workbook via
// excelize. One workbook is one spreadsheet; the spreadsheetID argument
// is ignored. Useful for offline runs against an exported copy of the
// production sheets.
package xlsx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/xuri/excelize/v2"

	"sheetdb/internal/sheetref"
	"sheetdb/internal/store"
)

func init() {
	store.Register("xlsx", func(ctx context.Context, cfg store.Config) (store.Store, error) {
		return Open(cfg.DSN)
	})
}

// Store implements store.Store on an .xlsx workbook. Mutations are
// saved to disk immediately so a crash never loses acknowledged
// writes.
type Store struct {
	mu   sync.Mutex
	path string
	f    *excelize.File
}

// Open loads the workbook at path, creating a fresh one when the file
// does not exist yet.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("xlsx: workbook path is empty")
	}
	f, err := excelize.OpenFile(path)
	if errors.Is(err, os.ErrNotExist) {
		f = excelize.NewFile()
		err = nil
	}
	if err != nil {
		return nil, fmt.Errorf("xlsx: open %s: %w", path, err)
	}
	return &Store{path: path, f: f}, nil
}

func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.f.Close()
}

func (s *Store) Get(ctx context.Context, spreadsheetID, rng string) (store.ValueRange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(rng)
}

func (s *Store) BatchGet(ctx context.Context, spreadsheetID string, rngs []string) ([]store.ValueRange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.ValueRange, 0, len(rngs))
	for _, rng := range rngs {
		vr, err := s.read(rng)
		if err != nil {
			return nil, err
		}
		out = append(out, vr)
	}
	return out, nil
}

func (s *Store) read(rng string) (store.ValueRange, error) {
	ref, err := sheetref.Parse(rng)
	if err != nil {
		return store.ValueRange{}, err
	}
	if !s.sheetExists(ref.Sheet) {
		return store.ValueRange{Range: rng}, nil
	}
	grid, err := s.f.GetRows(ref.Sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return store.ValueRange{}, err
	}

	startRow, startCol, endRow, endCol := store.Bounds(ref)
	if endRow == 0 || endRow > len(grid) {
		endRow = len(grid)
	}

	var values [][]any
	for r := startRow; r <= endRow; r++ {
		row := grid[r-1]
		last := endCol
		if last == 0 || last > len(row) {
			last = len(row)
		}
		var cells []any
		for c := startCol; c <= last; c++ {
			cells = append(cells, parseCell(row[c-1]))
		}
		for len(cells) > 0 && emptyCell(cells[len(cells)-1]) {
			cells = cells[:len(cells)-1]
		}
		values = append(values, cells)
	}
	for len(values) > 0 && len(values[len(values)-1]) == 0 {
		values = values[:len(values)-1]
	}
	return store.ValueRange{Range: rng, Values: values}, nil
}

// parseCell maps a raw workbook string to the value shape the rest of
// the system expects: numbers come back as float64, everything else
// stays a string.
func parseCell(raw string) any {
	if raw == "" {
		return ""
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

func emptyCell(v any) bool {
	s, ok := v.(string)
	return v == nil || (ok && s == "")
}

func (s *Store) Update(ctx context.Context, spreadsheetID string, u store.ValueUpdate) error {
	return s.BatchUpdate(ctx, spreadsheetID, []store.ValueUpdate{u})
}

func (s *Store) BatchUpdate(ctx context.Context, spreadsheetID string, us []store.ValueUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range us {
		if err := s.write(u); err != nil {
			return err
		}
	}
	return s.save()
}

func (s *Store) write(u store.ValueUpdate) error {
	ref, err := sheetref.Parse(u.Range)
	if err != nil {
		return err
	}
	if err := s.ensureSheet(ref.Sheet); err != nil {
		return err
	}
	startRow, startCol, _, _ := store.Bounds(ref)
	for i, row := range u.Values {
		for j, v := range row {
			cell, err := excelize.CoordinatesToCellName(startCol+j, startRow+i)
			if err != nil {
				return err
			}
			if err := s.f.SetCellValue(ref.Sheet, cell, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Store) sheetExists(sheet string) bool {
	idx, err := s.f.GetSheetIndex(sheet)
	return err == nil && idx >= 0
}

func (s *Store) ensureSheet(sheet string) error {
	if s.sheetExists(sheet) {
		return nil
	}
	_, err := s.f.NewSheet(sheet)
	return err
}

func (s *Store) Append(ctx context.Context, spreadsheetID, rng string, values [][]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, err := sheetref.Parse(rng)
	if err != nil {
		return err
	}
	if err := s.ensureSheet(ref.Sheet); err != nil {
		return err
	}
	_, startCol, _, endCol := store.Bounds(ref)

	grid, err := s.f.GetRows(ref.Sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return err
	}
	last := 0
	for r, row := range grid {
		limit := endCol
		if limit == 0 || limit > len(row) {
			limit = len(row)
		}
		for c := startCol; c <= limit; c++ {
			if row[c-1] != "" {
				last = r + 1
				break
			}
		}
	}

	if err := s.write(store.ValueUpdate{
		Range:  sheetref.Cell(ref.Sheet, startCol, last+1),
		Values: values,
	}); err != nil {
		return err
	}
	return s.save()
}

func (s *Store) Clear(ctx context.Context, spreadsheetID, rng string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, err := sheetref.Parse(rng)
	if err != nil {
		return err
	}
	if !s.sheetExists(ref.Sheet) {
		return nil
	}
	grid, err := s.f.GetRows(ref.Sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return err
	}

	startRow, startCol, endRow, endCol := store.Bounds(ref)
	if endRow == 0 || endRow > len(grid) {
		endRow = len(grid)
	}
	for r := startRow; r <= endRow; r++ {
		row := grid[r-1]
		limit := endCol
		if limit == 0 || limit > len(row) {
			limit = len(row)
		}
		for c := startCol; c <= limit; c++ {
			cell, err := excelize.CoordinatesToCellName(c, r)
			if err != nil {
				return err
			}
			if err := s.f.SetCellValue(ref.Sheet, cell, nil); err != nil {
				return err
			}
		}
	}
	return s.save()
}

func (s *Store) save() error {
	if err := s.f.SaveAs(s.path); err != nil {
		return fmt.Errorf("xlsx: save %s: %w", s.path, err)
	}
	return nil
}

var _ store.Store = (*Store)(nil)
