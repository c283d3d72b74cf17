// Package coerce normalizes raw cell values into canonical typed values.
// It is the single point of truth for type coercion: deterministic, side
// effect free, and independent of any store.
package coerce

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"sheetdb/internal/schema"
)

// serialEpochOffset is the day count between the spreadsheet epoch
// (1899-12-30) and the Unix epoch.
const serialEpochOffset = 25569

const dayMillis = 86_400_000

// Serial values in (1, 100000) are treated as date serials; anything
// outside that window is an ordinary number.
func isSerial(f float64) bool { return f > 1 && f < 100000 }

// Value coerces raw according to the column type.
//
// Rules: nil/"" become 0 for number/currency and "" otherwise; numbers
// and currency strip separators and degrade to 0 when unparseable;
// date formats as unpadded Y-M-D and degrades to ""; datetime formats
// as D/M/Y HH:MM:SS and falls back to the raw value unmodified when it
// cannot be parsed. Coercion never returns an error.
func Value(raw any, t schema.Type) any {
	switch t {
	case schema.TypeNumber, schema.TypeCurrency:
		return Number(raw)
	case schema.TypeDate:
		return Date(raw)
	case schema.TypeDatetime:
		return Datetime(raw)
	default:
		return String(raw)
	}
}

// Number parses raw as a float64, stripping thousands separators,
// whitespace and underscores from strings. Unparseable input returns 0.
func Number(raw any) float64 {
	switch v := raw.(type) {
	case nil:
		return 0
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case bool:
		if v {
			return 1
		}
		return 0
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0
		}
		r := strings.NewReplacer(",", "", " ", "", " ", "", "_", "")
		f, err := strconv.ParseFloat(r.Replace(s), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		f, err := strconv.ParseFloat(fmt.Sprint(raw), 64)
		if err != nil {
			return 0
		}
		return f
	}
}

// String stringifies raw. Floats that hold an integral value print
// without a decimal point, matching how sheets render them.
func String(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1e15 {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(raw)
	}
}

var dateLayouts = []string{
	"2006-1-2",
	"2006-01-02",
	"1/2/2006",
	"01/02/2006",
	time.RFC3339,
}

var datetimeLayouts = []string{
	"2/1/2006 15:04:05",
	"2/1/2006 15:04",
	"2006-1-2 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-1-2",
	"2006-01-02",
}

// Date coerces raw to an unpadded Y-M-D string, or "" when unparseable.
func Date(raw any) string {
	ts, ok := parseTime(raw, dateLayouts)
	if !ok {
		return ""
	}
	y, m, d := ts.Date()
	return fmt.Sprintf("%d-%d-%d", y, int(m), d)
}

// Datetime coerces raw to a D/M/Y HH:MM:SS string. Unlike Date it
// returns the raw value unchanged when parsing fails.
func Datetime(raw any) any {
	if raw == nil {
		return ""
	}
	if s, isStr := raw.(string); isStr && strings.TrimSpace(s) == "" {
		return ""
	}
	ts, ok := parseTime(raw, datetimeLayouts)
	if !ok {
		return raw
	}
	y, m, d := ts.Date()
	return fmt.Sprintf("%d/%d/%d %02d:%02d:%02d", d, int(m), y, ts.Hour(), ts.Minute(), ts.Second())
}

func parseTime(raw any, layouts []string) (time.Time, bool) {
	switch v := raw.(type) {
	case time.Time:
		return v, true
	case float64:
		if isSerial(v) {
			return SerialToTime(v), true
		}
		return time.Time{}, false
	case int:
		if isSerial(float64(v)) {
			return SerialToTime(float64(v)), true
		}
		return time.Time{}, false
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range layouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, true
			}
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && isSerial(f) {
			return SerialToTime(f), true
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

// SerialToTime converts a spreadsheet day serial to a UTC time.
func SerialToTime(serial float64) time.Time {
	millis := int64(math.Round((serial - serialEpochOffset) * dayMillis))
	return time.UnixMilli(millis).UTC()
}

// TimeToSerial is the inverse of SerialToTime.
func TimeToSerial(t time.Time) float64 {
	return float64(t.UnixMilli())/dayMillis + serialEpochOffset
}
