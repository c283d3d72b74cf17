package metrics

import (
	"errors"
	"testing"
	"time"
)

type captureBackend struct {
	counters  map[string]float64
	durations map[string]int
	labels    map[string]Labels
}

func newCapture() *captureBackend {
	return &captureBackend{
		counters:  map[string]float64{},
		durations: map[string]int{},
		labels:    map[string]Labels{},
	}
}

func (c *captureBackend) IncCounter(name string, delta float64, labels Labels) {
	c.counters[name] += delta
	c.labels[name] = labels
}

func (c *captureBackend) ObserveDuration(name string, d time.Duration, labels Labels) {
	c.durations[name]++
	c.labels[name] = labels
}

func (c *captureBackend) Flush() error { return nil }

func TestDefaultBackendDiscards(t *testing.T) {
	SetBackend(nil)
	RecordQuery("Orders", "single", time.Millisecond, nil)
	if err := Flush(); err != nil {
		t.Fatalf("Flush on nop backend: %v", err)
	}
}

func TestRecordQuery(t *testing.T) {
	c := newCapture()
	SetBackend(c)
	t.Cleanup(func() { SetBackend(nil) })

	RecordQuery("Orders", "batch", 25*time.Millisecond, nil)
	RecordQuery("Orders", "batch", 25*time.Millisecond, errors.New("boom"))

	if got := c.counters["sheetdb.queries"]; got != 2 {
		t.Errorf("queries counter = %v, want 2", got)
	}
	if got := c.durations["sheetdb.query_duration"]; got != 2 {
		t.Errorf("duration observations = %d, want 2", got)
	}
	labels := c.labels["sheetdb.queries"]
	if labels["dataset"] != "Orders" || labels["mode"] != "batch" {
		t.Errorf("labels = %v", labels)
	}
	if labels["status"] != "error" {
		t.Errorf("last status = %q, want error", labels["status"])
	}
}

func TestRecordCacheLookup(t *testing.T) {
	c := newCapture()
	SetBackend(c)
	t.Cleanup(func() { SetBackend(nil) })

	RecordCacheLookup("Orders", true)
	RecordCacheLookup("Orders", false)
	if got := c.counters["sheetdb.cache_lookups"]; got != 2 {
		t.Errorf("cache counter = %v, want 2", got)
	}
	if got := c.labels["sheetdb.cache_lookups"]["outcome"]; got != "miss" {
		t.Errorf("last outcome = %q, want miss", got)
	}
}

func TestRecordWrite(t *testing.T) {
	c := newCapture()
	SetBackend(c)
	t.Cleanup(func() { SetBackend(nil) })

	RecordWrite("Orders", "update", 3, nil)
	if got := c.counters["sheetdb.writes"]; got != 1 {
		t.Errorf("writes = %v", got)
	}
	if got := c.counters["sheetdb.cells_written"]; got != 3 {
		t.Errorf("cells_written = %v", got)
	}
}
