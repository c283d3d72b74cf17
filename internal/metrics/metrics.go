// Package metrics decouples instrumentation from emission. Call sites
// record through package functions; the process wires a concrete
// backend at startup with SetBackend. The default backend discards, so
// library code never pays for metrics nobody collects.
package metrics

import (
	"sync/atomic"
	"time"
)

// Labels tag a metric sample.
type Labels map[string]string

// Backend receives recorded samples.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveDuration(name string, d time.Duration, labels Labels)
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)             {}
func (nopBackend) ObserveDuration(string, time.Duration, Labels) {}
func (nopBackend) Flush() error                                  { return nil }

var backend atomic.Pointer[Backend]

func init() {
	var b Backend = nopBackend{}
	backend.Store(&b)
}

// SetBackend replaces the active backend. Pass nil to restore the
// discard default.
func SetBackend(b Backend) {
	if b == nil {
		b = nopBackend{}
	}
	backend.Store(&b)
}

func active() Backend { return *backend.Load() }

// RecordQuery counts one planned read and observes its latency.
func RecordQuery(dataset, mode string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	labels := Labels{"dataset": dataset, "mode": mode, "status": status}
	active().IncCounter("sheetdb.queries", 1, labels)
	active().ObserveDuration("sheetdb.query_duration", d, labels)
}

// RecordCacheLookup counts a cache hit or miss.
func RecordCacheLookup(dataset string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	active().IncCounter("sheetdb.cache_lookups", 1, Labels{"dataset": dataset, "outcome": outcome})
}

// RecordWrite counts one mutation by operation name.
func RecordWrite(dataset, op string, cells int, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	active().IncCounter("sheetdb.writes", 1, Labels{"dataset": dataset, "op": op, "status": status})
	if cells > 0 {
		active().IncCounter("sheetdb.cells_written", float64(cells), Labels{"dataset": dataset, "op": op})
	}
}

// RecordReport counts one aggregation run and observes its latency.
func RecordReport(report string, rows int, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	labels := Labels{"report": report, "status": status}
	active().IncCounter("sheetdb.reports", 1, labels)
	active().IncCounter("sheetdb.report_rows", float64(rows), labels)
	active().ObserveDuration("sheetdb.report_duration", d, labels)
}

// Flush forwards to the active backend.
func Flush() error { return active().Flush() }
