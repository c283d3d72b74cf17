// Package query plans and executes reads and writes against a
// range-addressed spreadsheet store: field selection to physical
// ranges, row materialization with typed coercion, a TTL cache, and
// primary-key patch updates.
package query

import (
	"sort"

	"sheetdb/internal/schema"
	"sheetdb/internal/sheetref"
)

// PlanMode selects the fetch strategy.
type PlanMode string

const (
	// ModeSingle fetches one contiguous rectangle.
	ModeSingle PlanMode = "single"
	// ModeBatch fetches one independent range per column.
	ModeBatch PlanMode = "batch"
)

// PlannedColumn is one resolved column of a plan.
type PlannedColumn struct {
	Key    string
	Index  int // 0-based schema position
	Letter string
	Type   schema.Type
}

// BatchRange pairs a single-column range with the column it serves.
type BatchRange struct {
	Range string
	Key   string
	Type  schema.Type
}

// RangePlan is the physical fetch strategy for one request. Single mode
// fills Range; batch mode fills Ranges. Columns is always populated, in
// ascending schema order. Missing lists requested keys the schema does
// not know; they are dropped from the plan, never fatal.
type RangePlan struct {
	Mode    PlanMode
	Range   string
	Ranges  []BatchRange
	Columns []PlannedColumn
	Missing []string
}

// Plan maps a field selection onto the minimal set of physical ranges.
//
// No field filter spans the whole schema in one range. Otherwise the
// requested keys resolve to column indices; a contiguous run still
// fetches one rectangle covering exactly the span, while scattered
// columns fall back to one single-column range each, trading round
// trips for not pulling unrequested columns in between. When nothing
// resolves the plan degrades to the schema's first column.
func Plan(ds schema.Dataset, fields []string) RangePlan {
	if len(fields) == 0 {
		cols := plannedColumns(ds, 0, len(ds.Columns)-1)
		return RangePlan{
			Mode:    ModeSingle,
			Range:   sheetref.Span(ds.Name, 1, 1, len(ds.Columns)),
			Columns: cols,
		}
	}

	var plan RangePlan
	seen := make(map[int]struct{}, len(fields))
	for _, key := range fields {
		idx, ok := ds.ColumnIndex(key)
		if !ok {
			plan.Missing = append(plan.Missing, key)
			continue
		}
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		c := ds.Columns[idx]
		plan.Columns = append(plan.Columns, PlannedColumn{
			Key:    c.Key,
			Index:  idx,
			Letter: sheetref.ColumnLetter(idx + 1),
			Type:   c.Type,
		})
	}

	if len(plan.Columns) == 0 {
		plan.Mode = ModeSingle
		plan.Columns = plannedColumns(ds, 0, 0)
		plan.Range = sheetref.Span(ds.Name, 1, 1, 1)
		return plan
	}

	sort.Slice(plan.Columns, func(i, j int) bool { return plan.Columns[i].Index < plan.Columns[j].Index })

	if contiguous(plan.Columns) {
		plan.Mode = ModeSingle
		first := plan.Columns[0].Index + 1
		last := plan.Columns[len(plan.Columns)-1].Index + 1
		plan.Range = sheetref.Span(ds.Name, first, 1, last)
		return plan
	}

	plan.Mode = ModeBatch
	plan.Ranges = make([]BatchRange, 0, len(plan.Columns))
	for _, c := range plan.Columns {
		plan.Ranges = append(plan.Ranges, BatchRange{
			Range: sheetref.Column(ds.Name, c.Index+1),
			Key:   c.Key,
			Type:  c.Type,
		})
	}
	return plan
}

func contiguous(cols []PlannedColumn) bool {
	for i := 1; i < len(cols); i++ {
		if cols[i].Index-cols[i-1].Index != 1 {
			return false
		}
	}
	return true
}

func plannedColumns(ds schema.Dataset, first, last int) []PlannedColumn {
	out := make([]PlannedColumn, 0, last-first+1)
	for i := first; i <= last; i++ {
		c := ds.Columns[i]
		out = append(out, PlannedColumn{
			Key:    c.Key,
			Index:  i,
			Letter: sheetref.ColumnLetter(i + 1),
			Type:   c.Type,
		})
	}
	return out
}
