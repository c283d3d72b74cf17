package report

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"sheetdb/internal/coerce"
	"sheetdb/internal/metrics"
	"sheetdb/internal/query"
)

// Fetcher is the slice of the query service the engine needs.
type Fetcher interface {
	Rows(ctx context.Context, dataset string, opts query.Options) (query.Result, error)
}

// Logger is satisfied by *log.Logger. The default discards.
type Logger interface {
	Printf(format string, v ...any)
}

type discardLogger struct{}

func (discardLogger) Printf(string, ...any) {}

// Person is one dimension row: the employee directory entry matched to
// summary and transaction rows by normalized full name.
type Person struct {
	ID    string
	Name  string
	Role  string
	Email string
	Team  string
}

// Record is one aggregate row of a report run. Base carries the summary
// row's cells as-is; the Actual fields are derived by folding matching
// transactions.
type Record struct {
	Key   MatchKey
	Split string

	Name       string
	EmployeeID string
	Role       string
	Email      string
	Team       string
	Date       string
	Product    string
	Market     string

	Base map[string]any

	ActualOrderCount              int
	ActualClosedRevenue           float64
	ActualShippedRevenue          float64
	ActualCancelledRevenue        float64
	ActualCancelledOrderCount     int
	ActualPostCancellationRevenue float64

	// Synthesized marks records created from a transaction with no
	// matching summary row.
	Synthesized bool
}

func (r *Record) fold(amount float64, status statusClass) {
	r.ActualOrderCount++
	r.ActualClosedRevenue += amount
	switch status {
	case statusShipped:
		r.ActualShippedRevenue += amount
	case statusCancelled:
		r.ActualCancelledRevenue += amount
		r.ActualCancelledOrderCount++
	}
	r.ActualPostCancellationRevenue = r.ActualClosedRevenue - r.ActualCancelledRevenue
}

// Meta describes a completed run.
type Meta struct {
	Report          string
	GeneratedAt     time.Time
	Elapsed         time.Duration
	DimensionRows   int
	SummaryRows     int
	TransactionRows int

	Initialized          int
	DuplicateSummaryKeys int
	Synthesized          int
	SkippedTransactions  int
}

// Result is a finished report.
type Result struct {
	Records []Record
	Meta    Meta
}

// Engine runs report definitions against a Fetcher.
type Engine struct {
	fetcher      Fetcher
	spreadsheets map[string]string
	log          Logger

	now func() time.Time // test seam

	// newAggregate is the record initialization step; a seam so tests
	// can count how often it runs.
	newAggregate func(base map[string]any, lookup map[string]Person, split string, synthesized bool) *Record
}

// EngineOptions configure an Engine.
type EngineOptions struct {
	// Spreadsheets maps symbolic names from DatasetRef.Spreadsheet to
	// spreadsheet IDs. Unmapped names resolve to the fetcher's default.
	Spreadsheets map[string]string
	Logger       Logger
}

// NewEngine wires an Engine.
func NewEngine(f Fetcher, opts EngineOptions) *Engine {
	log := opts.Logger
	if log == nil {
		log = discardLogger{}
	}
	e := &Engine{
		fetcher:      f,
		spreadsheets: opts.Spreadsheets,
		log:          log,
		now:          time.Now,
	}
	e.newAggregate = newAggregate
	return e
}

func (e *Engine) fetch(ctx context.Context, ref DatasetRef) (query.Result, error) {
	return e.fetcher.Rows(ctx, ref.Dataset, query.Options{
		SpreadsheetID: e.spreadsheets[ref.Spreadsheet],
		Fields:        ref.Fields,
	})
}

// Run executes one report definition.
//
// The three datasets are fetched concurrently. Summary and transaction
// failures abort the run; a dimension failure degrades to an empty
// lookup because enrichment is best-effort. A transaction row with an
// unreadable date is skipped, never fatal.
func (e *Engine) Run(ctx context.Context, def Definition) (Result, error) {
	start := e.now()

	var dim, sum, txn query.Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := e.fetch(gctx, def.Dimension)
		if err != nil {
			e.log.Printf("stage=report report=%s dataset=%s degraded=dimension err=%v",
				def.Name, def.Dimension.Dataset, err)
			return nil
		}
		dim = res
		return nil
	})
	g.Go(func() error {
		res, err := e.fetch(gctx, def.Summary)
		if err != nil {
			return fmt.Errorf("report %s: summary %s: %w", def.Name, def.Summary.Dataset, err)
		}
		sum = res
		return nil
	})
	g.Go(func() error {
		res, err := e.fetch(gctx, def.Transactions)
		if err != nil {
			return fmt.Errorf("report %s: transactions %s: %w", def.Name, def.Transactions.Dataset, err)
		}
		txn = res
		return nil
	})
	if err := g.Wait(); err != nil {
		metrics.RecordReport(def.Name, 0, e.now().Sub(start), err)
		return Result{}, err
	}

	lookup := buildLookup(dim.Rows)

	meta := Meta{
		Report:          def.Name,
		GeneratedAt:     start,
		DimensionRows:   len(dim.Rows),
		SummaryRows:     len(sum.Rows),
		TransactionRows: len(txn.Rows),
	}

	var records []*Record
	if len(def.Splits) == 0 {
		records = e.aggregate(def, "", sum.Rows, txn.Rows, lookup, &meta)
	} else {
		for _, sp := range def.Splits {
			sumRows := filterByShift(sum.Rows, "shift", sp.Label)
			txnRows := txn.Rows
			if sp.FilterTransactions {
				txnRows = filterByShift(txn.Rows, def.ShiftField, sp.Label)
			}
			records = append(records, e.aggregate(def, sp.Label, sumRows, txnRows, lookup, &meta)...)
		}
	}

	meta.Elapsed = e.now().Sub(start)
	out := make([]Record, len(records))
	for i, r := range records {
		out[i] = *r
	}
	metrics.RecordReport(def.Name, len(out), meta.Elapsed, nil)
	e.log.Printf("stage=report report=%s records=%d summary=%d transactions=%d skipped=%d duration=%s",
		def.Name, len(out), meta.SummaryRows, meta.TransactionRows, meta.SkippedTransactions, meta.Elapsed)
	return Result{Records: out, Meta: meta}, nil
}

// buildLookup indexes dimension rows by normalized full name,
// last-write-wins on duplicates.
func buildLookup(rows []query.Row) map[string]Person {
	lookup := make(map[string]Person, len(rows))
	for _, row := range rows {
		name := coerce.String(row.Cells["full_name"])
		if name == "" {
			continue
		}
		lookup[foldKey(name)] = Person{
			ID:    coerce.String(row.Cells["employee_id"]),
			Name:  name,
			Role:  coerce.String(row.Cells["role"]),
			Email: coerce.String(row.Cells["email"]),
			Team:  coerce.String(row.Cells["team"]),
		}
	}
	return lookup
}

func filterByShift(rows []query.Row, field, label string) []query.Row {
	out := make([]query.Row, 0, len(rows))
	for _, row := range rows {
		if shiftMatches(row.Cells[field], label) {
			out = append(out, row)
		}
	}
	return out
}

// aggregate runs the initialize-then-fold pipeline for one split.
//
// Initialization is duplicate-safe: summary rows sharing a match key
// reuse the first row's shell rather than re-running the per-row
// initialization.
func (e *Engine) aggregate(def Definition, split string, summary, txns []query.Row, lookup map[string]Person, meta *Meta) []*Record {
	shells := make(map[MatchKey]*Record, len(summary))
	order := make([]*Record, 0, len(summary))

	for _, row := range summary {
		date, _ := normalizeDate(row.Cells["report_date"])
		key := NewMatchKey(date,
			coerce.String(row.Cells["name"]),
			coerce.String(row.Cells["product"]),
			coerce.String(row.Cells["market"]))
		if _, seen := shells[key]; seen {
			meta.DuplicateSummaryKeys++
			continue
		}
		rec := e.newAggregate(row.Cells, lookup, split, false)
		rec.Key = key
		rec.Date = date
		shells[key] = rec
		order = append(order, rec)
		meta.Initialized++
	}

	for _, row := range txns {
		date, ok := normalizeDate(row.Cells[def.DateField])
		if !ok {
			meta.SkippedTransactions++
			continue
		}
		person := coerce.String(row.Cells[def.PersonField])
		product := coerce.String(row.Cells["product"])
		market := coerce.String(row.Cells["market"])
		key := NewMatchKey(date, person, product, market)

		rec, exists := shells[key]
		if !exists {
			base := map[string]any{
				"name":        person,
				"report_date": date,
				"product":     product,
				"market":      market,
			}
			rec = e.newAggregate(base, lookup, split, true)
			rec.Key = key
			rec.Date = date
			shells[key] = rec
			order = append(order, rec)
			meta.Synthesized++
		}
		rec.fold(coerce.Number(row.Cells[def.AmountField]), classifyStatus(row.Cells[def.StatusField]))
	}
	return order
}

// newAggregate builds a record shell from a summary row (or, for
// synthesized records, from transaction attributes) enriched with the
// dimension lookup.
func newAggregate(base map[string]any, lookup map[string]Person, split string, synthesized bool) *Record {
	name := coerce.String(base["name"])
	p := lookup[foldKey(name)]

	copied := make(map[string]any, len(base))
	for k, v := range base {
		copied[k] = v
	}

	rec := &Record{
		Split:       split,
		Name:        name,
		EmployeeID:  coerce.String(base["employee_id"]),
		Role:        p.Role,
		Email:       coerce.String(base["email"]),
		Team:        coerce.String(base["team"]),
		Product:     coerce.String(base["product"]),
		Market:      coerce.String(base["market"]),
		Base:        copied,
		Synthesized: synthesized,
	}
	if rec.EmployeeID == "" {
		rec.EmployeeID = p.ID
	}
	if rec.Email == "" {
		rec.Email = p.Email
	}
	if rec.Team == "" {
		rec.Team = p.Team
	}
	return rec
}
