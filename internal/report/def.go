// Package report joins a transactional dataset against summary and
// dimension datasets with a composite match key and folds per-group
// revenue metrics.
package report

import (
	"errors"
	"fmt"
)

// ErrUnknownReport is returned by Lookup for unregistered report names.
var ErrUnknownReport = errors.New("report: unknown report")

// DatasetRef names one input dataset. Spreadsheet is a symbolic name
// ("orders", "reporting") resolved through the engine's spreadsheet
// map; Fields is the column selection passed to the query layer, empty
// meaning the whole schema.
type DatasetRef struct {
	Spreadsheet string
	Dataset     string
	Fields      []string
}

// Split runs the aggregation pipeline once per shift label. Summary
// rows always filter by the label; transactions filter only when
// FilterTransactions is set, otherwise every transaction folds into the
// split. Splits never share match-key space.
type Split struct {
	Label              string
	FilterTransactions bool
}

// Definition wires one report: its three inputs and the transaction
// columns the fold reads. Summary datasets use the fixed column keys
// name, report_date, product, market and shift.
type Definition struct {
	Name string

	Dimension    DatasetRef
	Summary      DatasetRef
	Transactions DatasetRef

	// Transaction column keys.
	PersonField string
	DateField   string
	AmountField string
	StatusField string
	ShiftField  string

	Splits []Split
}

// Marketing is the per-marketer revenue report. The full-shift split
// folds every transaction; the mid-shift split folds only mid-shift
// transactions.
func Marketing() Definition {
	return Definition{
		Name: "marketing",
		Dimension: DatasetRef{
			Spreadsheet: "reporting",
			Dataset:     "Employees",
			Fields:      []string{"employee_id", "full_name", "role", "email", "team"},
		},
		Summary: DatasetRef{
			Spreadsheet: "reporting",
			Dataset:     "Marketing Summary",
		},
		Transactions: DatasetRef{
			Spreadsheet: "orders",
			Dataset:     "Orders",
			Fields:      []string{"order_id", "order_date", "marketing_rep", "product", "market", "total_amount", "check_result", "shift"},
		},
		PersonField: "marketing_rep",
		DateField:   "order_date",
		AmountField: "total_amount",
		StatusField: "check_result",
		ShiftField:  "shift",
		Splits: []Split{
			{Label: "full shift"},
			{Label: "mid shift", FilterTransactions: true},
		},
	}
}

// Sales is the per-rep revenue report. It has no shift splits.
func Sales() Definition {
	return Definition{
		Name: "sales",
		Dimension: DatasetRef{
			Spreadsheet: "reporting",
			Dataset:     "Employees",
			Fields:      []string{"employee_id", "full_name", "role", "email", "team"},
		},
		Summary: DatasetRef{
			Spreadsheet: "reporting",
			Dataset:     "Sales Summary",
		},
		Transactions: DatasetRef{
			Spreadsheet: "orders",
			Dataset:     "Orders",
			Fields:      []string{"order_id", "order_date", "sales_rep", "product", "market", "total_amount", "check_result"},
		},
		PersonField: "sales_rep",
		DateField:   "order_date",
		AmountField: "total_amount",
		StatusField: "check_result",
	}
}

// Lookup resolves a built-in report by name.
func Lookup(name string) (Definition, error) {
	switch name {
	case "marketing":
		return Marketing(), nil
	case "sales":
		return Sales(), nil
	}
	return Definition{}, fmt.Errorf("%w: %q", ErrUnknownReport, name)
}

// Names lists the built-in reports.
func Names() []string { return []string{"marketing", "sales"} }
