// Package sheetref converts between 1-based column ordinals and A1
// notation, and assembles the range strings the store layer speaks.
package sheetref

import (
	"fmt"
	"strings"
)

// ColumnLetter encodes a 1-based column index as its letter address
// using bijective base 26 (1 -> A, 26 -> Z, 27 -> AA). Index values
// below 1 return "".
func ColumnLetter(index int) string {
	if index < 1 {
		return ""
	}
	var b [8]byte
	i := len(b)
	for index > 0 {
		index--
		i--
		b[i] = byte('A' + index%26)
		index /= 26
	}
	return string(b[i:])
}

// ColumnIndex decodes a letter address back to its 1-based index.
func ColumnIndex(letter string) (int, error) {
	if letter == "" {
		return 0, fmt.Errorf("sheetref: empty column letter")
	}
	n := 0
	for _, r := range strings.ToUpper(letter) {
		if r < 'A' || r > 'Z' {
			return 0, fmt.Errorf("sheetref: bad column letter %q", letter)
		}
		n = n*26 + int(r-'A') + 1
	}
	return n, nil
}

// quoteSheet wraps the sheet title in single quotes when A1 notation
// requires it (spaces or any non-alphanumeric character). Embedded
// quotes are doubled.
func quoteSheet(sheet string) string {
	plain := true
	for _, r := range sheet {
		if !(r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_') {
			plain = false
			break
		}
	}
	if plain && sheet != "" {
		return sheet
	}
	return "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
}

// Span returns an open-ended rectangular range from (firstCol, firstRow)
// through lastCol with no bottom row, e.g. Orders!A1:D.
func Span(sheet string, firstCol, firstRow, lastCol int) string {
	return fmt.Sprintf("%s!%s%d:%s", quoteSheet(sheet), ColumnLetter(firstCol), firstRow, ColumnLetter(lastCol))
}

// Column returns a whole-column range, e.g. Orders!E:E.
func Column(sheet string, col int) string {
	l := ColumnLetter(col)
	return fmt.Sprintf("%s!%s:%s", quoteSheet(sheet), l, l)
}

// Cell returns a single-cell range, e.g. Orders!C42.
func Cell(sheet string, col, row int) string {
	return fmt.Sprintf("%s!%s%d", quoteSheet(sheet), ColumnLetter(col), row)
}

// RowSpan returns a one-row rectangular range, e.g. Orders!A5:D5.
func RowSpan(sheet string, firstCol, lastCol, row int) string {
	return fmt.Sprintf("%s!%s%d:%s%d", quoteSheet(sheet), ColumnLetter(firstCol), row, ColumnLetter(lastCol), row)
}

// Ref is a parsed range. Zero fields mean unbounded: EndRow == 0 is an
// open-ended bottom, StartRow == 0 a whole-column start.
type Ref struct {
	Sheet    string
	StartCol int
	StartRow int
	EndCol   int
	EndRow   int
}

// Parse splits an A1 range back into its parts. It accepts the shapes
// this package produces plus plain bounded rectangles (Orders!A1:D100).
func Parse(rng string) (Ref, error) {
	sheet, rest, err := splitSheet(rng)
	if err != nil {
		return Ref{}, err
	}
	var ref Ref
	ref.Sheet = sheet
	first, second, hasSecond := strings.Cut(rest, ":")
	ref.StartCol, ref.StartRow, err = parsePart(first)
	if err != nil {
		return Ref{}, fmt.Errorf("sheetref: bad range %q: %w", rng, err)
	}
	if !hasSecond {
		ref.EndCol, ref.EndRow = ref.StartCol, ref.StartRow
		return ref, nil
	}
	ref.EndCol, ref.EndRow, err = parsePart(second)
	if err != nil {
		return Ref{}, fmt.Errorf("sheetref: bad range %q: %w", rng, err)
	}
	return ref, nil
}

func splitSheet(rng string) (sheet, rest string, err error) {
	if strings.HasPrefix(rng, "'") {
		// Quoted title: scan for the closing quote, honoring doubled quotes.
		var b strings.Builder
		i := 1
		for i < len(rng) {
			if rng[i] == '\'' {
				if i+1 < len(rng) && rng[i+1] == '\'' {
					b.WriteByte('\'')
					i += 2
					continue
				}
				break
			}
			b.WriteByte(rng[i])
			i++
		}
		if i >= len(rng) || i+1 >= len(rng) || rng[i+1] != '!' {
			return "", "", fmt.Errorf("sheetref: unterminated sheet quote in %q", rng)
		}
		return b.String(), rng[i+2:], nil
	}
	sheet, rest, ok := strings.Cut(rng, "!")
	if !ok {
		return "", "", fmt.Errorf("sheetref: range %q has no sheet", rng)
	}
	return sheet, rest, nil
}

func parsePart(part string) (col, row int, err error) {
	i := 0
	for i < len(part) && (part[i] >= 'A' && part[i] <= 'Z' || part[i] >= 'a' && part[i] <= 'z') {
		i++
	}
	if i > 0 {
		col, err = ColumnIndex(part[:i])
		if err != nil {
			return 0, 0, err
		}
	}
	for j := i; j < len(part); j++ {
		if part[j] < '0' || part[j] > '9' {
			return 0, 0, fmt.Errorf("bad cell %q", part)
		}
		row = row*10 + int(part[j]-'0')
	}
	if i == 0 && row == 0 {
		return 0, 0, fmt.Errorf("empty cell reference")
	}
	return col, row, nil
}
