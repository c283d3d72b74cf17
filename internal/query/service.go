package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sheetdb/internal/coerce"
	"sheetdb/internal/metrics"
	"sheetdb/internal/schema"
	"sheetdb/internal/store"
)

// Logger is satisfied by *log.Logger. The default discards.
type Logger interface {
	Printf(format string, v ...any)
}

type discardLogger struct{}

func (discardLogger) Printf(string, ...any) {}

// Service executes reads and writes for registered datasets against one
// store. It owns its cache; construct one Service per deployment target
// rather than sharing module-level state.
type Service struct {
	store         store.Store
	reg           *schema.Registry
	spreadsheetID string
	cache         *ttlCache
	log           Logger

	now func() time.Time // test seam
}

// ServiceOptions configures a Service. Zero values get defaults: the
// cache TTL falls back to DefaultCacheTTL and logging is discarded.
type ServiceOptions struct {
	// SpreadsheetID is the default target; per-call Options may
	// override it.
	SpreadsheetID string
	CacheTTL      time.Duration
	Logger        Logger
}

// NewService wires a Service from its collaborators.
func NewService(st store.Store, reg *schema.Registry, opts ServiceOptions) *Service {
	log := opts.Logger
	if log == nil {
		log = discardLogger{}
	}
	return &Service{
		store:         st,
		reg:           reg,
		spreadsheetID: opts.SpreadsheetID,
		cache:         newTTLCache(opts.CacheTTL),
		log:           log,
		now:           time.Now,
	}
}

// Options shape one read request.
type Options struct {
	// SpreadsheetID overrides the service default when non-empty.
	SpreadsheetID string
	// Fields filters columns by key; empty means the whole schema.
	Fields []string
	// Limit caps returned rows; 0 means no cap.
	Limit int
	// Offset skips rows after the header.
	Offset int
	// NoCache bypasses the read cache for this call.
	NoCache bool
}

// Row is one materialized data row. Index is the physical sheet row;
// the first data row below the header is 2.
type Row struct {
	Index int
	Cells map[string]any
}

// Result is a completed read.
type Result struct {
	Rows    []Row
	Total   int
	Mode    PlanMode
	Ranges  []string
	Cached  bool
	Elapsed time.Duration
}

func (s *Service) sheetID(opts Options) string {
	if opts.SpreadsheetID != "" {
		return opts.SpreadsheetID
	}
	return s.spreadsheetID
}

func cacheKey(spreadsheetID, dataset string, opts Options) string {
	return fmt.Sprintf("%s|%s|%s|%d|%d", spreadsheetID, dataset, strings.Join(opts.Fields, ","), opts.Limit, opts.Offset)
}

// Rows plans and executes one read.
//
// Errors: schema.ErrDatasetNotFound for unknown datasets; store errors
// propagate as hard failures. Unknown field keys are dropped from the
// plan with a log line, never an error.
func (s *Service) Rows(ctx context.Context, dataset string, opts Options) (Result, error) {
	ds, err := s.reg.Dataset(dataset)
	if err != nil {
		return Result{}, err
	}
	id := s.sheetID(opts)
	start := s.now()

	key := cacheKey(id, dataset, opts)
	if !opts.NoCache {
		if res, ok := s.cache.get(key); ok {
			metrics.RecordCacheLookup(dataset, true)
			res.Cached = true
			res.Elapsed = s.now().Sub(start)
			return res, nil
		}
		metrics.RecordCacheLookup(dataset, false)
	}

	plan := Plan(ds, opts.Fields)
	for _, miss := range plan.Missing {
		s.log.Printf("stage=plan dataset=%s drop_field=%q reason=not_in_schema", dataset, miss)
	}

	var rows []Row
	switch plan.Mode {
	case ModeBatch:
		rows, err = s.fetchBatch(ctx, id, plan, opts)
	default:
		rows, err = s.fetchSingle(ctx, id, plan, opts)
	}
	elapsed := s.now().Sub(start)
	metrics.RecordQuery(dataset, string(plan.Mode), elapsed, err)
	if err != nil {
		return Result{}, fmt.Errorf("query: fetch %s: %w", dataset, err)
	}

	res := Result{
		Rows:    rows,
		Total:   len(rows),
		Mode:    plan.Mode,
		Ranges:  planRanges(plan),
		Elapsed: elapsed,
	}
	if !opts.NoCache {
		s.cache.set(key, res)
	}
	s.log.Printf("stage=fetch dataset=%s mode=%s rows=%d duration=%s", dataset, plan.Mode, len(rows), elapsed)
	return res, nil
}

func planRanges(plan RangePlan) []string {
	if plan.Mode == ModeSingle {
		return []string{plan.Range}
	}
	out := make([]string, len(plan.Ranges))
	for i, r := range plan.Ranges {
		out[i] = r.Range
	}
	return out
}

func (s *Service) fetchSingle(ctx context.Context, id string, plan RangePlan, opts Options) ([]Row, error) {
	vr, err := s.store.Get(ctx, id, plan.Range)
	if err != nil {
		return nil, err
	}
	if len(vr.Values) <= 1 {
		return nil, nil
	}
	data := pageValues(vr.Values[1:], opts.Offset, opts.Limit)
	base := plan.Columns[0].Index

	// A column with no defined cell anywhere in the page is dropped
	// from the rows rather than materialized as a wall of zero values.
	present := make([]bool, len(plan.Columns))
	for _, raw := range data {
		for ci, c := range plan.Columns {
			if c.Index-base < len(raw) {
				present[ci] = true
			}
		}
	}

	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	rows := make([]Row, 0, len(data))
	for i, raw := range data {
		cells := make(map[string]any, len(plan.Columns))
		for ci, c := range plan.Columns {
			if !present[ci] {
				continue
			}
			var v any
			if pos := c.Index - base; pos < len(raw) {
				v = raw[pos]
			}
			cells[c.Key] = coerce.Value(v, c.Type)
		}
		rows = append(rows, Row{Index: offset + i + 2, Cells: cells})
	}
	return rows, nil
}

func (s *Service) fetchBatch(ctx context.Context, id string, plan RangePlan, opts Options) ([]Row, error) {
	rngs := make([]string, len(plan.Ranges))
	for i, r := range plan.Ranges {
		rngs[i] = r.Range
	}
	cols, err := s.store.BatchGet(ctx, id, rngs)
	if err != nil {
		return nil, err
	}
	if len(cols) != len(plan.Ranges) {
		return nil, fmt.Errorf("query: batch returned %d ranges, want %d", len(cols), len(plan.Ranges))
	}

	// Trailing empty cells are omitted per range, so the logical row
	// count is the maximum observed length across all columns.
	maxLen := 0
	for _, vr := range cols {
		if len(vr.Values) > maxLen {
			maxLen = len(vr.Values)
		}
	}
	if maxLen <= 1 {
		return nil, nil
	}
	total := maxLen - 1

	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return nil, nil
	}
	n := total - offset
	if opts.Limit > 0 && opts.Limit < n {
		n = opts.Limit
	}

	rows := make([]Row, 0, n)
	for i := 0; i < n; i++ {
		pos := offset + 1 + i
		cells := make(map[string]any, len(plan.Ranges))
		defined := false
		for ci, br := range plan.Ranges {
			var raw any
			vals := cols[ci].Values
			if pos < len(vals) && len(vals[pos]) > 0 {
				raw = vals[pos][0]
				defined = true
			}
			cells[br.Key] = coerce.Value(raw, br.Type)
		}
		// The max-length heuristic can synthesize rows past a short
		// column's end; emit only rows with at least one defined cell.
		if !defined {
			continue
		}
		rows = append(rows, Row{Index: pos + 1, Cells: cells})
	}
	return rows, nil
}

func pageValues(rows [][]any, offset, limit int) [][]any {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(rows) {
		return nil
	}
	rows = rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

// InvalidateCache clears the read cache. Write paths call this after
// every successful mutation; it is exported for host processes that
// mutate the sheet out of band.
func (s *Service) InvalidateCache() {
	s.cache.invalidate()
}
