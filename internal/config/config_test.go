package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `{
		"store": {"kind": "sqlite", "dsn": "file:data.db"},
		"spreadsheets": {"orders": "SS_ORDERS", "reporting": "SS_REPORTING"},
		"cache": {"ttl_seconds": 120},
		"datadog": {"job_name": "sheetdb", "tags": "env:prod", "flush_seconds": 30}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Kind != "sqlite" || cfg.Store.DSN != "file:data.db" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Spreadsheets.Orders != "SS_ORDERS" {
		t.Errorf("spreadsheets = %+v", cfg.Spreadsheets)
	}
	if cfg.Datadog == nil || cfg.Datadog.JobName != "sheetdb" {
		t.Errorf("datadog = %+v", cfg.Datadog)
	}
}

func TestLoadRejectsMissingStoreKind(t *testing.T) {
	path := writeConfig(t, `{"spreadsheets": {"orders": "X"}}`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "store.kind") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoadRejectsMissingDSN(t *testing.T) {
	path := writeConfig(t, `{"store": {"kind": "postgres"}, "spreadsheets": {"orders": "X"}}`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "store.dsn") {
		t.Fatalf("err = %v", err)
	}
}

func TestMemoryStoreNeedsNoDSN(t *testing.T) {
	path := writeConfig(t, `{"store": {"kind": "memory"}, "spreadsheets": {"orders": "X"}}`)
	if _, err := Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestLoadRejectsBadJSON(t *testing.T) {
	path := writeConfig(t, `{`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSpreadsheetIDResolution(t *testing.T) {
	s := Spreadsheets{Orders: "O", Reporting: "R"}
	if s.ID("orders") != "O" || s.ID("reporting") != "R" {
		t.Errorf("symbolic names broken: %+v", s)
	}
	if s.ID("raw-id-123") != "raw-id-123" {
		t.Errorf("raw id not passed through")
	}
}
