package report

import (
	"context"
	"errors"
	"testing"

	"sheetdb/internal/query"
)

type fakeFetcher struct {
	results map[string]query.Result
	errs    map[string]error
	calls   []string
}

func (f *fakeFetcher) Rows(ctx context.Context, dataset string, opts query.Options) (query.Result, error) {
	f.calls = append(f.calls, dataset)
	if err := f.errs[dataset]; err != nil {
		return query.Result{}, err
	}
	return f.results[dataset], nil
}

func rows(cells ...map[string]any) []query.Row {
	out := make([]query.Row, len(cells))
	for i, c := range cells {
		out[i] = query.Row{Index: i + 2, Cells: c}
	}
	return out
}

func employeeRows() []query.Row {
	return rows(
		map[string]any{"employee_id": "E1", "full_name": "Alice Tran", "role": "marketer", "email": "alice@x.test", "team": "A"},
		map[string]any{"employee_id": "E2", "full_name": "Bob Le", "role": "sales", "email": "bob@x.test", "team": "B"},
	)
}

func newTestEngine(f *fakeFetcher) *Engine {
	return NewEngine(f, EngineOptions{
		Spreadsheets: map[string]string{"orders": "ss-orders", "reporting": "ss-reporting"},
	})
}

func TestFoldOKThenCancelled(t *testing.T) {
	f := &fakeFetcher{results: map[string]query.Result{
		"Employees": {Rows: employeeRows()},
		"Sales Summary": {Rows: rows(
			map[string]any{"name": "Bob Le", "report_date": "2025-8-1", "product": "lamp", "market": "us"},
		)},
		"Orders": {Rows: rows(
			map[string]any{"order_date": "2025-8-1", "sales_rep": "Bob Le", "product": "Lamp", "market": "US", "total_amount": 100.0, "check_result": "OK"},
			map[string]any{"order_date": "2025-8-1", "sales_rep": "bob le", "product": "lamp", "market": "us", "total_amount": 40.0, "check_result": "Cancelled"},
		)},
	}}
	res, err := newTestEngine(f).Run(context.Background(), Sales())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("records = %d, want 1", len(res.Records))
	}
	rec := res.Records[0]
	if rec.ActualOrderCount != 2 {
		t.Errorf("order count = %d, want 2", rec.ActualOrderCount)
	}
	if rec.ActualClosedRevenue != 140 {
		t.Errorf("closed = %v, want 140", rec.ActualClosedRevenue)
	}
	if rec.ActualShippedRevenue != 100 {
		t.Errorf("shipped = %v, want 100", rec.ActualShippedRevenue)
	}
	if rec.ActualCancelledRevenue != 40 {
		t.Errorf("cancelled = %v, want 40", rec.ActualCancelledRevenue)
	}
	if rec.ActualCancelledOrderCount != 1 {
		t.Errorf("cancelled count = %d, want 1", rec.ActualCancelledOrderCount)
	}
	if rec.ActualPostCancellationRevenue != 100 {
		t.Errorf("post-cancellation = %v, want 100", rec.ActualPostCancellationRevenue)
	}
	if rec.Role != "sales" || rec.EmployeeID != "E2" {
		t.Errorf("dimension enrichment: role=%q id=%q", rec.Role, rec.EmployeeID)
	}
	if rec.Synthesized {
		t.Error("record marked synthesized despite matching summary row")
	}
}

func TestVietnameseCancellationStatus(t *testing.T) {
	f := &fakeFetcher{results: map[string]query.Result{
		"Employees":     {},
		"Sales Summary": {},
		"Orders": {Rows: rows(
			map[string]any{"order_date": "2025-8-1", "sales_rep": "Bob Le", "product": "lamp", "market": "us", "total_amount": 70.0, "check_result": "Hủy"},
		)},
	}}
	res, err := newTestEngine(f).Run(context.Background(), Sales())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("records = %d, want 1", len(res.Records))
	}
	rec := res.Records[0]
	if rec.ActualCancelledRevenue != 70 || rec.ActualCancelledOrderCount != 1 {
		t.Errorf("cancelled fold: revenue=%v count=%d", rec.ActualCancelledRevenue, rec.ActualCancelledOrderCount)
	}
}

// Duplicate summary rows sharing one match key must not re-run the
// initialization step.
func TestDuplicateSummaryKeysInitializeOnce(t *testing.T) {
	dup := map[string]any{"name": "Bob Le", "report_date": "2025-8-1", "product": "lamp", "market": "us"}
	f := &fakeFetcher{results: map[string]query.Result{
		"Employees":     {Rows: employeeRows()},
		"Sales Summary": {Rows: rows(dup, dup, dup)},
		"Orders":        {},
	}}
	e := newTestEngine(f)
	inits := 0
	inner := e.newAggregate
	e.newAggregate = func(base map[string]any, lookup map[string]Person, split string, synthesized bool) *Record {
		inits++
		return inner(base, lookup, split, synthesized)
	}

	res, err := e.Run(context.Background(), Sales())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if inits != 1 {
		t.Errorf("initialization calls = %d, want 1", inits)
	}
	if len(res.Records) != 1 {
		t.Errorf("records = %d, want 1", len(res.Records))
	}
	if res.Meta.Initialized != 1 || res.Meta.DuplicateSummaryKeys != 2 {
		t.Errorf("meta = %+v", res.Meta)
	}
}

func TestSynthesizedRecordFromTransaction(t *testing.T) {
	f := &fakeFetcher{results: map[string]query.Result{
		"Employees":     {Rows: employeeRows()},
		"Sales Summary": {},
		"Orders": {Rows: rows(
			map[string]any{"order_date": "2025-8-2", "sales_rep": "Alice Tran", "product": "desk", "market": "eu", "total_amount": 55.0, "check_result": "OK"},
		)},
	}}
	res, err := newTestEngine(f).Run(context.Background(), Sales())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("records = %d, want 1", len(res.Records))
	}
	rec := res.Records[0]
	if !rec.Synthesized {
		t.Error("record not marked synthesized")
	}
	if rec.ActualOrderCount != 1 || rec.ActualShippedRevenue != 55 {
		t.Errorf("first fold missing: %+v", rec)
	}
	if rec.Role != "marketer" || rec.EmployeeID != "E1" {
		t.Errorf("dimension seed: role=%q id=%q", rec.Role, rec.EmployeeID)
	}
	if res.Meta.Synthesized != 1 {
		t.Errorf("meta.Synthesized = %d", res.Meta.Synthesized)
	}
}

func TestBadTransactionDateSkipsFold(t *testing.T) {
	f := &fakeFetcher{results: map[string]query.Result{
		"Employees":     {},
		"Sales Summary": {},
		"Orders": {Rows: rows(
			map[string]any{"order_date": "soon", "sales_rep": "Bob Le", "product": "lamp", "market": "us", "total_amount": 100.0, "check_result": "OK"},
			map[string]any{"order_date": "2025-8-1", "sales_rep": "Bob Le", "product": "lamp", "market": "us", "total_amount": 30.0, "check_result": "OK"},
		)},
	}}
	res, err := newTestEngine(f).Run(context.Background(), Sales())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Meta.SkippedTransactions != 1 {
		t.Errorf("skipped = %d, want 1", res.Meta.SkippedTransactions)
	}
	if len(res.Records) != 1 || res.Records[0].ActualClosedRevenue != 30 {
		t.Errorf("records = %+v", res.Records)
	}
}

func TestDimensionFailureDegrades(t *testing.T) {
	f := &fakeFetcher{
		results: map[string]query.Result{
			"Sales Summary": {Rows: rows(
				map[string]any{"name": "Bob Le", "report_date": "2025-8-1", "product": "lamp", "market": "us"},
			)},
			"Orders": {},
		},
		errs: map[string]error{"Employees": errors.New("quota exceeded")},
	}
	res, err := newTestEngine(f).Run(context.Background(), Sales())
	if err != nil {
		t.Fatalf("Run should degrade, got %v", err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("records = %d, want 1", len(res.Records))
	}
	if res.Records[0].Role != "" {
		t.Errorf("role enriched from a failed dimension fetch: %q", res.Records[0].Role)
	}
}

func TestSummaryFailureAborts(t *testing.T) {
	f := &fakeFetcher{
		results: map[string]query.Result{"Employees": {}, "Orders": {}},
		errs:    map[string]error{"Sales Summary": errors.New("boom")},
	}
	if _, err := newTestEngine(f).Run(context.Background(), Sales()); err == nil {
		t.Fatal("summary failure did not abort the run")
	}
}

func TestSplitsRunIndependently(t *testing.T) {
	summary := map[string]any{"name": "Alice Tran", "report_date": "2025-8-1", "product": "lamp", "market": "us"}
	full := map[string]any{}
	for k, v := range summary {
		full[k] = v
	}
	full["shift"] = "Full Shift"
	mid := map[string]any{}
	for k, v := range summary {
		mid[k] = v
	}
	mid["shift"] = "Mid Shift"

	f := &fakeFetcher{results: map[string]query.Result{
		"Employees":         {Rows: employeeRows()},
		"Marketing Summary": {Rows: rows(full, mid)},
		"Orders": {Rows: rows(
			map[string]any{"order_date": "2025-8-1", "marketing_rep": "Alice Tran", "product": "lamp", "market": "us", "total_amount": 100.0, "check_result": "OK", "shift": "full shift"},
			map[string]any{"order_date": "2025-8-1", "marketing_rep": "Alice Tran", "product": "lamp", "market": "us", "total_amount": 25.0, "check_result": "OK", "shift": "mid shift"},
		)},
	}}
	res, err := newTestEngine(f).Run(context.Background(), Marketing())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Records) != 2 {
		t.Fatalf("records = %d, want 2 (one per split)", len(res.Records))
	}

	byLabel := map[string]Record{}
	for _, r := range res.Records {
		byLabel[r.Split] = r
	}
	// The full-shift split folds every transaction; the mid-shift split
	// folds only mid-shift transactions.
	if got := byLabel["full shift"].ActualClosedRevenue; got != 125 {
		t.Errorf("full shift closed = %v, want 125", got)
	}
	if got := byLabel["mid shift"].ActualClosedRevenue; got != 25 {
		t.Errorf("mid shift closed = %v, want 25", got)
	}
}

func TestLookupLastWriteWins(t *testing.T) {
	lookup := buildLookup(rows(
		map[string]any{"employee_id": "E1", "full_name": "Alice Tran", "role": "junior"},
		map[string]any{"employee_id": "E9", "full_name": "alice tran", "role": "senior"},
	))
	p := lookup[foldKey("Alice Tran")]
	if p.ID != "E9" || p.Role != "senior" {
		t.Errorf("lookup = %+v, want last write", p)
	}
}
