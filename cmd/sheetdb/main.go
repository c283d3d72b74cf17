// Command sheetdb queries and mutates spreadsheet-backed datasets and
// runs the revenue reports. Results are printed as JSON on stdout.
//
// Usage:
//
//	sheetdb -config config.json -op list -dataset Orders -fields order_id,total -limit 20
//	sheetdb -config config.json -op count -dataset Orders
//	sheetdb -config config.json -op search -dataset Orders -column status -value OK -contains
//	sheetdb -config config.json -op stats -dataset Orders
//	sheetdb -config config.json -op update -dataset Orders -record '{"order_id":"A2","status":"OK"}'
//	sheetdb -config config.json -op append -dataset Orders -record '{"order_id":"A9", ...}'
//	sheetdb -config config.json -op report -report marketing
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"sheetdb/internal/config"
	"sheetdb/internal/metrics"
	"sheetdb/internal/metrics/datadog"
	"sheetdb/internal/query"
	"sheetdb/internal/report"
	"sheetdb/internal/schema"
	"sheetdb/internal/store"
	_ "sheetdb/internal/store/all"
)

func main() {
	var (
		cfgPath    = flag.String("config", "", "path to config JSON")
		op         = flag.String("op", "", "operation: list, count, search, stats, update, append, report")
		dataset    = flag.String("dataset", "", "dataset name, e.g. Orders")
		fields     = flag.String("fields", "", "comma-separated field keys (default: all)")
		limit      = flag.Int("limit", 0, "max rows (0 = no limit)")
		offset     = flag.Int("offset", 0, "rows to skip")
		noCache    = flag.Bool("no-cache", false, "bypass the read cache")
		column     = flag.String("column", "", "search column")
		value      = flag.String("value", "", "search value")
		contains   = flag.Bool("contains", false, "substring search instead of exact match")
		record     = flag.String("record", "", "record JSON for update/append ('-' reads stdin)")
		reportName = flag.String("report", "", "report name for -op report")
		verbose    = flag.Bool("v", false, "log progress to stderr")
	)
	flag.Parse()

	if *cfgPath == "" || *op == "" {
		fmt.Fprintln(os.Stderr, "usage: sheetdb -config path/to/config.json -op <operation> [flags]")
		os.Exit(2)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fatal(err)
	}

	ctx := context.Background()

	if cfg.Datadog != nil {
		backend, err := datadog.NewBackend(ctx, datadog.Options{
			JobName:    cfg.Datadog.JobName,
			Tags:       datadog.ParseTagsCSV(cfg.Datadog.Tags),
			FlushEvery: time.Duration(cfg.Datadog.FlushSeconds) * time.Second,
		})
		if err != nil {
			fatal(fmt.Errorf("datadog: %w", err))
		}
		metrics.SetBackend(backend)
		defer backend.Close()
	}

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		fatal(err)
	}
	defer st.Close()

	var logger query.Logger
	if *verbose {
		logger = log.New(os.Stderr, "sheetdb: ", 0)
	}

	svc := query.NewService(st, schema.Default(), query.ServiceOptions{
		SpreadsheetID: cfg.Spreadsheets.Orders,
		CacheTTL:      time.Duration(cfg.Cache.TTLSeconds) * time.Second,
		Logger:        logger,
	})

	opts := query.Options{
		Fields:  splitFields(*fields),
		Limit:   *limit,
		Offset:  *offset,
		NoCache: *noCache || cfg.Cache.Disabled,
	}

	var out any
	switch *op {
	case "list":
		out, err = svc.Rows(ctx, *dataset, opts)
	case "count":
		out, err = countResult(ctx, svc, *dataset, opts)
	case "search":
		if *column == "" {
			fatal(fmt.Errorf("search needs -column"))
		}
		out, err = svc.Search(ctx, *dataset, *column, *value, !*contains, opts)
	case "stats":
		out, err = statsResult(ctx, svc, *dataset, opts)
	case "update":
		out, err = runUpdate(ctx, svc, *dataset, *record, opts)
	case "append":
		out, err = runAppend(ctx, svc, *dataset, *record, opts)
	case "report":
		out, err = runReport(ctx, svc, cfg, *reportName, logger)
	default:
		fmt.Fprintf(os.Stderr, "unknown op %q\n", *op)
		os.Exit(2)
	}
	if err != nil {
		fatal(err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "sheetdb: %v\n", err)
	os.Exit(1)
}

func splitFields(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func countResult(ctx context.Context, svc *query.Service, dataset string, opts query.Options) (any, error) {
	n, err := svc.RowCount(ctx, dataset, opts)
	if err != nil {
		return nil, err
	}
	return map[string]int{"count": n}, nil
}

func statsResult(ctx context.Context, svc *query.Service, dataset string, opts query.Options) (any, error) {
	stats, rows, err := svc.Stats(ctx, dataset, opts)
	if err != nil {
		return nil, err
	}
	return map[string]any{"rows": rows, "columns": stats}, nil
}

func decodeRecord(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, fmt.Errorf("missing -record")
	}
	data := []byte(raw)
	if raw == "-" {
		var err error
		data, err = io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
	}
	var rec map[string]any
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse record: %w", err)
	}
	return rec, nil
}

func runUpdate(ctx context.Context, svc *query.Service, dataset, raw string, opts query.Options) (any, error) {
	rec, err := decodeRecord(raw)
	if err != nil {
		return nil, err
	}
	return svc.UpdateByKey(ctx, dataset, rec, opts)
}

func runAppend(ctx context.Context, svc *query.Service, dataset, raw string, opts query.Options) (any, error) {
	rec, err := decodeRecord(raw)
	if err != nil {
		return nil, err
	}
	if err := svc.AppendRow(ctx, dataset, rec, opts); err != nil {
		return nil, err
	}
	return map[string]string{"status": "appended"}, nil
}

func runReport(ctx context.Context, svc *query.Service, cfg config.Config, name string, logger query.Logger) (any, error) {
	if name == "" {
		return nil, fmt.Errorf("report needs -report (one of %v)", report.Names())
	}
	def, err := report.Lookup(name)
	if err != nil {
		return nil, err
	}
	engine := report.NewEngine(svc, report.EngineOptions{
		Spreadsheets: map[string]string{
			"orders":    cfg.Spreadsheets.Orders,
			"reporting": cfg.Spreadsheets.Reporting,
		},
		Logger: logger,
	})
	return engine.Run(ctx, def)
}
