package query

import (
	"context"
	"fmt"

	"sheetdb/internal/coerce"
	"sheetdb/internal/schema"
)

// RowIssue is one rejected import record. Row is the 0-based position
// in the submitted slice, not a sheet row.
type RowIssue struct {
	Row int
	Err string
}

// Validation pairs coerced records with the issues that kept the rest
// out.
type Validation struct {
	Valid  []map[string]any
	Issues []RowIssue
}

// ValidateRows checks required fields and coerces every value to its
// column's canonical type. Coercion never fails; only missing required
// fields reject a record.
func ValidateRows(ds schema.Dataset, records []map[string]any) Validation {
	var v Validation
	for i, record := range records {
		if err := checkRequired(ds, record); err != nil {
			v.Issues = append(v.Issues, RowIssue{Row: i, Err: err.Error()})
			continue
		}
		out := make(map[string]any, len(ds.Columns))
		for _, col := range ds.Columns {
			if raw, ok := record[col.Key]; ok {
				out[col.Key] = coerce.Value(raw, col.Type)
			}
		}
		v.Valid = append(v.Valid, out)
	}
	return v
}

// ImportOptions tune ImportRows.
type ImportOptions struct {
	// SkipInvalid appends the valid records even when some are
	// rejected; otherwise any issue aborts the import.
	SkipInvalid bool
	// Replace clears existing data rows first.
	Replace bool
}

// ImportResult reports an import outcome.
type ImportResult struct {
	Appended int
	Issues   []RowIssue
}

// ImportRows validates records and appends the survivors.
func (s *Service) ImportRows(ctx context.Context, dataset string, records []map[string]any, imp ImportOptions, opts Options) (ImportResult, error) {
	ds, err := s.reg.Dataset(dataset)
	if err != nil {
		return ImportResult{}, err
	}
	v := ValidateRows(ds, records)
	if len(v.Issues) > 0 && !imp.SkipInvalid {
		return ImportResult{Issues: v.Issues}, fmt.Errorf("query: import %s: %d of %d records invalid", dataset, len(v.Issues), len(records))
	}
	if imp.Replace {
		if err := s.ClearData(ctx, dataset, opts); err != nil {
			return ImportResult{Issues: v.Issues}, err
		}
	}
	n, err := s.AppendRows(ctx, dataset, v.Valid, opts)
	if err != nil {
		return ImportResult{Issues: v.Issues}, err
	}
	return ImportResult{Appended: n, Issues: v.Issues}, nil
}
