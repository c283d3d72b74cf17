package schema

import (
	"errors"
	"testing"
)

func TestRegistryLookup(t *testing.T) {
	r, err := NewRegistry(Dataset{
		Name: "Orders",
		Columns: []Column{
			{Key: "order_id", Header: "Order ID", Type: TypeString, Required: true},
			{Key: "total", Header: "Total", Type: TypeCurrency},
		},
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	ds, err := r.Dataset("Orders")
	if err != nil {
		t.Fatalf("Dataset: %v", err)
	}
	if ds.PrimaryKey().Key != "order_id" {
		t.Errorf("primary key = %q, want order_id", ds.PrimaryKey().Key)
	}
	if idx, ok := ds.ColumnIndex("total"); !ok || idx != 1 {
		t.Errorf("ColumnIndex(total) = %d, %v", idx, ok)
	}
	if _, ok := ds.ColumnIndex("nope"); ok {
		t.Error("ColumnIndex(nope) reported found")
	}

	if _, err := r.Dataset("Missing"); !errors.Is(err, ErrDatasetNotFound) {
		t.Errorf("unknown dataset: err = %v, want ErrDatasetNotFound", err)
	}
}

func TestRegistryRejectsDuplicateColumnKey(t *testing.T) {
	_, err := NewRegistry(Dataset{
		Name: "Bad",
		Columns: []Column{
			{Key: "a", Type: TypeString},
			{Key: "a", Type: TypeNumber},
		},
	})
	if err == nil {
		t.Fatal("duplicate column key accepted")
	}
}

func TestRegistryRejectsUnknownType(t *testing.T) {
	_, err := NewRegistry(Dataset{
		Name:    "Bad",
		Columns: []Column{{Key: "a", Type: Type("decimal")}},
	})
	if err == nil {
		t.Fatal("unknown column type accepted")
	}
}

func TestDefaultRegistry(t *testing.T) {
	r := Default()
	for _, name := range []string{"Orders", "Employees", "Marketing Summary", "Sales Summary"} {
		ds, err := r.Dataset(name)
		if err != nil {
			t.Fatalf("Dataset(%q): %v", name, err)
		}
		if !ds.PrimaryKey().Required {
			t.Errorf("%s: primary key %q not required", name, ds.PrimaryKey().Key)
		}
	}
	if got := len(r.Names()); got != 4 {
		t.Errorf("Names() len = %d, want 4", got)
	}
}
