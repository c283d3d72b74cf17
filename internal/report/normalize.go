package report

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"sheetdb/internal/coerce"
)

// stripMarks removes combining diacritical marks so "Hủy" and "huy"
// compare equal.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// foldKey normalizes a string for matching: trim, strip diacritics,
// lowercase.
func foldKey(s string) string {
	s = strings.TrimSpace(s)
	if out, _, err := transform.String(stripMarks, s); err == nil {
		s = out
	}
	return strings.ToLower(s)
}

// MatchKey is the composite join key correlating transactions with
// summary rows. All components are normalized at construction so
// formatting drift cannot cause silent join misses.
type MatchKey struct {
	Date    string
	Person  string
	Product string
	Market  string
}

// NewMatchKey normalizes the four components. date should already be in
// canonical MM/DD/YYYY form (see normalizeDate).
func NewMatchKey(date, person, product, market string) MatchKey {
	return MatchKey{
		Date:    foldKey(date),
		Person:  foldKey(person),
		Product: foldKey(product),
		Market:  foldKey(market),
	}
}

// normalizeDate coerces a raw date cell to zero-padded MM/DD/YYYY. The
// bool is false when the value cannot be read as a date.
func normalizeDate(raw any) (string, bool) {
	s := coerce.Date(raw)
	if s == "" {
		return "", false
	}
	ts, err := time.Parse("2006-1-2", s)
	if err != nil {
		return "", false
	}
	y, m, d := ts.Date()
	return fmt.Sprintf("%02d/%02d/%04d", int(m), d, y), true
}

// statusClass buckets a transaction status for the revenue fold.
type statusClass int

const (
	statusOther statusClass = iota
	statusShipped
	statusCancelled
)

// classifyStatus is case- and diacritic-insensitive: "OK" ships,
// cancellation and return statuses (including the Vietnamese forms) add
// to cancelled revenue, anything else counts toward closed revenue
// only.
func classifyStatus(raw any) statusClass {
	k := foldKey(coerce.String(raw))
	switch {
	case k == "ok":
		return statusShipped
	case strings.Contains(k, "huy"),
		strings.Contains(k, "hoan"),
		strings.Contains(k, "cancel"),
		strings.Contains(k, "return"):
		return statusCancelled
	}
	return statusOther
}

// shiftMatches compares a row's shift value against a split label.
func shiftMatches(raw any, label string) bool {
	return foldKey(coerce.String(raw)) == foldKey(label)
}
