package query

import (
	"context"
	"errors"
	"testing"
)

// A patch payload touching one field must produce exactly one cell
// write at that field's column and the resolved row, and nothing else.
func TestPlanUpdateEmitsSingleCell(t *testing.T) {
	svc, st := newTestService(t)
	seedDenseOrders(st)

	updates, err := svc.PlanUpdate(context.Background(), "Orders", map[string]any{
		"order_id": "A2",
		"customer": "robert",
	}, Options{})
	if err != nil {
		t.Fatalf("PlanUpdate: %v", err)
	}
	if len(updates) != 1 {
		t.Fatalf("updates = %d, want 1", len(updates))
	}
	if updates[0].Range != "Orders!C3" {
		t.Errorf("range = %q, want Orders!C3", updates[0].Range)
	}
	if updates[0].Values[0][0] != "robert" {
		t.Errorf("value = %#v", updates[0].Values[0][0])
	}
}

func TestPlanUpdateNeverTouchesPrimaryKeyColumn(t *testing.T) {
	svc, st := newTestService(t)
	seedDenseOrders(st)

	updates, err := svc.PlanUpdate(context.Background(), "Orders", map[string]any{
		"order_id": "A3",
		"status":   "OK",
		"total":    35.0,
	}, Options{})
	if err != nil {
		t.Fatalf("PlanUpdate: %v", err)
	}
	if len(updates) != 2 {
		t.Fatalf("updates = %d, want 2", len(updates))
	}
	// Schema column order: total (F) before status (G), both on row 4.
	if updates[0].Range != "Orders!F4" || updates[1].Range != "Orders!G4" {
		t.Errorf("ranges = %q, %q", updates[0].Range, updates[1].Range)
	}
}

func TestPlanUpdateTrimsKeyWhitespace(t *testing.T) {
	svc, st := newTestService(t)
	st.Seed("ss", "Orders", [][]any{
		{"Order ID", "Order Date", "Customer"},
		{"  A7  ", "2025-08-01", "alice"},
	})

	updates, err := svc.PlanUpdate(context.Background(), "Orders", map[string]any{
		"order_id": "A7",
		"customer": "alicia",
	}, Options{})
	if err != nil {
		t.Fatalf("PlanUpdate: %v", err)
	}
	if len(updates) != 1 || updates[0].Range != "Orders!C2" {
		t.Fatalf("updates = %+v", updates)
	}
}

func TestPlanUpdateMissingPrimaryKey(t *testing.T) {
	svc, st := newTestService(t)
	seedDenseOrders(st)

	for _, record := range []map[string]any{
		{"customer": "x"},
		{"order_id": "   ", "customer": "x"},
	} {
		if _, err := svc.PlanUpdate(context.Background(), "Orders", record, Options{}); !errors.Is(err, ErrMissingPrimaryKey) {
			t.Errorf("record %v: err = %v, want ErrMissingPrimaryKey", record, err)
		}
	}
}

func TestPlanUpdateRecordNotFound(t *testing.T) {
	svc, st := newTestService(t)
	seedDenseOrders(st)

	_, err := svc.PlanUpdate(context.Background(), "Orders", map[string]any{"order_id": "Z9", "customer": "x"}, Options{})
	if !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("err = %v, want ErrRecordNotFound", err)
	}
}

func TestUpdateByKeyAppliesPatch(t *testing.T) {
	svc, st := newTestService(t)
	seedDenseOrders(st)

	res, err := svc.UpdateByKey(context.Background(), "Orders", map[string]any{
		"order_id": "A4",
		"status":   "Returned",
	}, Options{})
	if err != nil {
		t.Fatalf("UpdateByKey: %v", err)
	}
	if res.Key != "A4" || res.Cells != 1 {
		t.Errorf("result = %+v", res)
	}
	if got := st.Cell("ss", "Orders", 5, 7); got != "Returned" {
		t.Errorf("cell G5 = %#v", got)
	}
	// Untouched neighbor cells keep their values.
	if got := st.Cell("ss", "Orders", 5, 3); got != "dave" {
		t.Errorf("cell C5 = %#v", got)
	}
	if st.BatchUpdateCalls != 1 {
		t.Errorf("BatchUpdate calls = %d, want 1", st.BatchUpdateCalls)
	}
}

func TestUpdateManyByKeyPartialSuccess(t *testing.T) {
	svc, st := newTestService(t)
	seedDenseOrders(st)

	res, err := svc.UpdateManyByKey(context.Background(), "Orders", []map[string]any{
		{"order_id": "A1", "note": "updated"},
		{"customer": "no key"},
		{"order_id": "Z9", "note": "ghost"},
		{"order_id": "A5", "total": 55.0, "status": "OK"},
	}, Options{})
	if err != nil {
		t.Fatalf("UpdateManyByKey: %v", err)
	}
	if res.Updated != 2 {
		t.Errorf("updated = %d, want 2", res.Updated)
	}
	if res.Cells != 3 {
		t.Errorf("cells = %d, want 3", res.Cells)
	}
	if len(res.Failed) != 2 {
		t.Fatalf("failed = %+v", res.Failed)
	}
	if !errors.Is(res.Failed[0].Err, ErrMissingPrimaryKey) {
		t.Errorf("failure 0 = %v", res.Failed[0].Err)
	}
	if !errors.Is(res.Failed[1].Err, ErrRecordNotFound) || res.Failed[1].Key != "Z9" {
		t.Errorf("failure 1 = %+v", res.Failed[1])
	}

	// Planning reads the key column once; all cell writes go out in one
	// combined store call.
	if st.GetCalls != 1 {
		t.Errorf("Get calls = %d, want 1", st.GetCalls)
	}
	if st.BatchUpdateCalls != 1 {
		t.Errorf("BatchUpdate calls = %d, want 1", st.BatchUpdateCalls)
	}
	if got := st.Cell("ss", "Orders", 2, 8); got != "updated" {
		t.Errorf("cell H2 = %#v", got)
	}
	if got := st.Cell("ss", "Orders", 6, 6); got != 55.0 {
		t.Errorf("cell F6 = %#v", got)
	}
}

func TestDuplicateKeysFirstMatchWins(t *testing.T) {
	svc, st := newTestService(t)
	st.Seed("ss", "Orders", [][]any{
		{"Order ID", "Order Date", "Customer"},
		{"A1", "2025-08-01", "first"},
		{"A1", "2025-08-02", "second"},
	})

	updates, err := svc.PlanUpdate(context.Background(), "Orders", map[string]any{
		"order_id": "A1",
		"customer": "patched",
	}, Options{})
	if err != nil {
		t.Fatalf("PlanUpdate: %v", err)
	}
	if len(updates) != 1 || updates[0].Range != "Orders!C2" {
		t.Fatalf("updates = %+v, want the first matching row", updates)
	}
}
