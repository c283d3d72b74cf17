// Package memory is an in-process store backend. It backs the test
// suites and doubles as a scratch target for local runs; it reproduces
// the Sheets API's habit of omitting trailing empty cells and rows so
// callers exercise the same materialization paths they hit in
// production.
package memory

import (
	"context"
	"fmt"
	"sync"

	"sheetdb/internal/sheetref"
	"sheetdb/internal/store"
)

func init() {
	store.Register("memory", func(ctx context.Context, cfg store.Config) (store.Store, error) {
		return New(), nil
	})
}

// Store holds per-spreadsheet grids. Counters track calls per method so
// tests can assert on round-trip counts.
type Store struct {
	mu     sync.Mutex
	sheets map[string]map[string][][]any

	GetCalls         int
	BatchGetCalls    int
	UpdateCalls      int
	BatchUpdateCalls int
	AppendCalls      int
	ClearCalls       int
}

// New returns an empty store.
func New() *Store {
	return &Store{sheets: make(map[string]map[string][][]any)}
}

// Seed replaces a sheet's grid wholesale. Values are copied.
func (s *Store) Seed(spreadsheetID, sheet string, values [][]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	grid := make([][]any, len(values))
	for i, row := range values {
		grid[i] = append([]any(nil), row...)
	}
	s.grids(spreadsheetID)[sheet] = grid
}

func (s *Store) grids(spreadsheetID string) map[string][][]any {
	g, ok := s.sheets[spreadsheetID]
	if !ok {
		g = make(map[string][][]any)
		s.sheets[spreadsheetID] = g
	}
	return g
}

func (s *Store) Get(ctx context.Context, spreadsheetID, rng string) (store.ValueRange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.GetCalls++
	return s.read(spreadsheetID, rng)
}

func (s *Store) BatchGet(ctx context.Context, spreadsheetID string, rngs []string) ([]store.ValueRange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.BatchGetCalls++
	out := make([]store.ValueRange, 0, len(rngs))
	for _, rng := range rngs {
		vr, err := s.read(spreadsheetID, rng)
		if err != nil {
			return nil, err
		}
		out = append(out, vr)
	}
	return out, nil
}

func (s *Store) read(spreadsheetID, rng string) (store.ValueRange, error) {
	ref, err := sheetref.Parse(rng)
	if err != nil {
		return store.ValueRange{}, err
	}
	grid := s.grids(spreadsheetID)[ref.Sheet]

	startRow, startCol := ref.StartRow, ref.StartCol
	if startRow == 0 {
		startRow = 1
	}
	if startCol == 0 {
		startCol = 1
	}
	endRow := ref.EndRow
	if endRow == 0 || endRow > len(grid) {
		endRow = len(grid)
	}

	var values [][]any
	for r := startRow; r <= endRow; r++ {
		row := grid[r-1]
		endCol := ref.EndCol
		if endCol == 0 || endCol > len(row) {
			endCol = len(row)
		}
		var cells []any
		for c := startCol; c <= endCol; c++ {
			var v any
			if c <= len(row) {
				v = row[c-1]
			}
			cells = append(cells, v)
		}
		// Trailing empty cells are omitted, as the Sheets API does.
		for len(cells) > 0 && empty(cells[len(cells)-1]) {
			cells = cells[:len(cells)-1]
		}
		values = append(values, cells)
	}
	for len(values) > 0 && len(values[len(values)-1]) == 0 {
		values = values[:len(values)-1]
	}
	return store.ValueRange{Range: rng, Values: values}, nil
}

func empty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

func (s *Store) Update(ctx context.Context, spreadsheetID string, u store.ValueUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UpdateCalls++
	return s.write(spreadsheetID, u)
}

func (s *Store) BatchUpdate(ctx context.Context, spreadsheetID string, us []store.ValueUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.BatchUpdateCalls++
	for _, u := range us {
		if err := s.write(spreadsheetID, u); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) write(spreadsheetID string, u store.ValueUpdate) error {
	ref, err := sheetref.Parse(u.Range)
	if err != nil {
		return err
	}
	startRow, startCol := ref.StartRow, ref.StartCol
	if startRow == 0 {
		startRow = 1
	}
	if startCol == 0 {
		startCol = 1
	}
	grids := s.grids(spreadsheetID)
	grid := grids[ref.Sheet]
	for i, row := range u.Values {
		for j, v := range row {
			grid = setCell(grid, startRow+i, startCol+j, v)
		}
	}
	grids[ref.Sheet] = grid
	return nil
}

func setCell(grid [][]any, row, col int, v any) [][]any {
	for len(grid) < row {
		grid = append(grid, nil)
	}
	for len(grid[row-1]) < col {
		grid[row-1] = append(grid[row-1], nil)
	}
	grid[row-1][col-1] = v
	return grid
}

func (s *Store) Append(ctx context.Context, spreadsheetID, rng string, values [][]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AppendCalls++
	ref, err := sheetref.Parse(rng)
	if err != nil {
		return err
	}
	grids := s.grids(spreadsheetID)
	grid := grids[ref.Sheet]

	startCol := ref.StartCol
	if startCol == 0 {
		startCol = 1
	}
	last := 0
	for r, row := range grid {
		endCol := ref.EndCol
		if endCol == 0 || endCol > len(row) {
			endCol = len(row)
		}
		for c := startCol; c <= endCol; c++ {
			if c <= len(row) && !empty(row[c-1]) {
				last = r + 1
				break
			}
		}
	}
	for i, row := range values {
		for j, v := range row {
			grid = setCell(grid, last+1+i, startCol+j, v)
		}
	}
	grids[ref.Sheet] = grid
	return nil
}

func (s *Store) Clear(ctx context.Context, spreadsheetID, rng string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ClearCalls++
	ref, err := sheetref.Parse(rng)
	if err != nil {
		return err
	}
	grid := s.grids(spreadsheetID)[ref.Sheet]
	startRow, startCol := ref.StartRow, ref.StartCol
	if startRow == 0 {
		startRow = 1
	}
	if startCol == 0 {
		startCol = 1
	}
	endRow := ref.EndRow
	if endRow == 0 || endRow > len(grid) {
		endRow = len(grid)
	}
	for r := startRow; r <= endRow; r++ {
		row := grid[r-1]
		endCol := ref.EndCol
		if endCol == 0 || endCol > len(row) {
			endCol = len(row)
		}
		for c := startCol; c <= endCol && c <= len(row); c++ {
			row[c-1] = nil
		}
	}
	return nil
}

func (s *Store) Close() {}

// Rows returns a copy of a sheet's raw grid for test assertions.
func (s *Store) Rows(spreadsheetID, sheet string) [][]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	grid := s.grids(spreadsheetID)[sheet]
	out := make([][]any, len(grid))
	for i, row := range grid {
		out[i] = append([]any(nil), row...)
	}
	return out
}

// Cell returns one cell's raw value (1-based row and column).
func (s *Store) Cell(spreadsheetID, sheet string, row, col int) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	grid := s.grids(spreadsheetID)[sheet]
	if row < 1 || row > len(grid) || col < 1 || col > len(grid[row-1]) {
		return nil
	}
	return grid[row-1][col-1]
}

var _ store.Store = (*Store)(nil)

// String aids debugging in test failures.
func (s *Store) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("memory store: %d spreadsheets", len(s.sheets))
}
