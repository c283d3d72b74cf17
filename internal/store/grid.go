package store

import (
	"fmt"
	"strconv"
	"time"

	"sheetdb/internal/sheetref"
)

// CellValue is one stored cell with absolute 1-based coordinates and its
// typed encoding. The SQL backends persist cells sparsely in this shape.
type CellValue struct {
	Row  int
	Col  int
	Kind string
	Raw  string
}

// Cell kinds as stored in the kind column.
const (
	KindString = "s"
	KindNumber = "n"
	KindBool   = "b"
	KindTime   = "t"
)

// EncodeCell flattens a cell value to (kind, raw) for storage. Integers
// are widened to float64 so numbers round-trip the way the Sheets API
// reports them.
func EncodeCell(v any) (kind, raw string) {
	switch t := v.(type) {
	case nil:
		return KindString, ""
	case string:
		return KindString, t
	case float64:
		return KindNumber, strconv.FormatFloat(t, 'g', -1, 64)
	case float32:
		return KindNumber, strconv.FormatFloat(float64(t), 'g', -1, 64)
	case int:
		return KindNumber, strconv.FormatFloat(float64(t), 'g', -1, 64)
	case int64:
		return KindNumber, strconv.FormatFloat(float64(t), 'g', -1, 64)
	case bool:
		return KindBool, strconv.FormatBool(t)
	case time.Time:
		return KindTime, t.UTC().Format(time.RFC3339Nano)
	default:
		return KindString, fmt.Sprint(t)
	}
}

// DecodeCell reverses EncodeCell. Unknown kinds and malformed payloads
// decode as strings so a hand-edited table degrades instead of failing.
func DecodeCell(kind, raw string) any {
	switch kind {
	case KindNumber:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return raw
		}
		return f
	case KindBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return raw
		}
		return b
	case KindTime:
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return raw
		}
		return t
	default:
		return raw
	}
}

// Bounds resolves a parsed reference to concrete 1-based start
// coordinates and open-ended (0 = unbounded) end coordinates.
func Bounds(ref sheetref.Ref) (startRow, startCol, endRow, endCol int) {
	startRow, startCol = ref.StartRow, ref.StartCol
	if startRow == 0 {
		startRow = 1
	}
	if startCol == 0 {
		startCol = 1
	}
	return startRow, startCol, ref.EndRow, ref.EndCol
}

// BuildValues assembles sparse cells read for ref into the row-major
// rectangle a Store must return: rows are relative to the reference's
// first row, trailing empty cells and trailing empty rows are trimmed.
func BuildValues(ref sheetref.Ref, cells []CellValue) [][]any {
	startRow, startCol, _, _ := Bounds(ref)

	maxRow := 0
	for _, c := range cells {
		if r := c.Row - startRow + 1; r > maxRow {
			maxRow = r
		}
	}
	if maxRow == 0 {
		return nil
	}

	values := make([][]any, maxRow)
	for _, c := range cells {
		r := c.Row - startRow
		col := c.Col - startCol
		if r < 0 || col < 0 {
			continue
		}
		row := values[r]
		for len(row) <= col {
			row = append(row, nil)
		}
		row[col] = DecodeCell(c.Kind, c.Raw)
		values[r] = row
	}

	for i, row := range values {
		for len(row) > 0 && emptyCell(row[len(row)-1]) {
			row = row[:len(row)-1]
		}
		values[i] = row
	}
	for len(values) > 0 && len(values[len(values)-1]) == 0 {
		values = values[:len(values)-1]
	}
	return values
}

// ExplodeUpdate flattens an anchored update into absolute-coordinate
// encoded cells. Rows and cells beyond the update's values are not
// touched.
func ExplodeUpdate(ref sheetref.Ref, values [][]any) []CellValue {
	startRow, startCol, _, _ := Bounds(ref)
	var out []CellValue
	for i, row := range values {
		for j, v := range row {
			kind, raw := EncodeCell(v)
			out = append(out, CellValue{
				Row:  startRow + i,
				Col:  startCol + j,
				Kind: kind,
				Raw:  raw,
			})
		}
	}
	return out
}

func emptyCell(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}
