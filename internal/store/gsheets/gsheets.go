// Package gsheets is the production store backend, talking to the
// Google Sheets API. Reads use UNFORMATTED_VALUE so numbers and date
// serials arrive as float64 instead of display strings; writes use
// USER_ENTERED so the sheet applies its own cell formats.
package gsheets

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"sheetdb/internal/store"
)

func init() {
	store.Register("gsheets", func(ctx context.Context, cfg store.Config) (store.Store, error) {
		return Open(cfg.DSN), nil
	})
}

// Store implements store.Store on the Sheets API. The API client is
// built lazily on first use; when many goroutines race there (the
// report engine fans out three fetches at startup) exactly one
// credential exchange runs and the rest share its outcome.
type Store struct {
	dsn string

	auth singleflight.Group
	mu   sync.RWMutex
	svc  *sheets.Service
}

// Open records the credentials source without touching the network.
// DSN is a service-account credentials file path; when empty,
// Application Default Credentials apply.
func Open(dsn string) *Store {
	return &Store{dsn: dsn}
}

func (s *Store) Close() {}

func (s *Store) service(ctx context.Context) (*sheets.Service, error) {
	s.mu.RLock()
	svc := s.svc
	s.mu.RUnlock()
	if svc != nil {
		return svc, nil
	}

	v, err, _ := s.auth.Do("auth", func() (any, error) {
		opts := []option.ClientOption{option.WithScopes(sheets.SpreadsheetsScope)}
		if s.dsn != "" {
			opts = append(opts, option.WithCredentialsFile(s.dsn))
		}
		svc, err := sheets.NewService(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("gsheets: build client: %w", err)
		}
		s.mu.Lock()
		s.svc = svc
		s.mu.Unlock()
		return svc, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*sheets.Service), nil
}

func (s *Store) Get(ctx context.Context, spreadsheetID, rng string) (store.ValueRange, error) {
	svc, err := s.service(ctx)
	if err != nil {
		return store.ValueRange{}, err
	}
	resp, err := svc.Spreadsheets.Values.Get(spreadsheetID, rng).
		ValueRenderOption("UNFORMATTED_VALUE").
		MajorDimension("ROWS").
		Context(ctx).Do()
	if err != nil {
		return store.ValueRange{}, fmt.Errorf("gsheets: get %s: %w", rng, err)
	}
	return store.ValueRange{Range: resp.Range, Values: resp.Values}, nil
}

func (s *Store) BatchGet(ctx context.Context, spreadsheetID string, rngs []string) ([]store.ValueRange, error) {
	svc, err := s.service(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := svc.Spreadsheets.Values.BatchGet(spreadsheetID).
		Ranges(rngs...).
		ValueRenderOption("UNFORMATTED_VALUE").
		MajorDimension("ROWS").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("gsheets: batch get %d ranges: %w", len(rngs), err)
	}
	out := make([]store.ValueRange, 0, len(resp.ValueRanges))
	for _, vr := range resp.ValueRanges {
		out = append(out, store.ValueRange{Range: vr.Range, Values: vr.Values})
	}
	return out, nil
}

func (s *Store) Update(ctx context.Context, spreadsheetID string, u store.ValueUpdate) error {
	svc, err := s.service(ctx)
	if err != nil {
		return err
	}
	_, err = svc.Spreadsheets.Values.Update(spreadsheetID, u.Range, &sheets.ValueRange{
		Range:  u.Range,
		Values: u.Values,
	}).ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("gsheets: update %s: %w", u.Range, err)
	}
	return nil
}

func (s *Store) BatchUpdate(ctx context.Context, spreadsheetID string, us []store.ValueUpdate) error {
	if len(us) == 0 {
		return nil
	}
	svc, err := s.service(ctx)
	if err != nil {
		return err
	}
	data := make([]*sheets.ValueRange, 0, len(us))
	for _, u := range us {
		data = append(data, &sheets.ValueRange{Range: u.Range, Values: u.Values})
	}
	_, err = svc.Spreadsheets.Values.BatchUpdate(spreadsheetID, &sheets.BatchUpdateValuesRequest{
		ValueInputOption: "USER_ENTERED",
		Data:             data,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("gsheets: batch update %d ranges: %w", len(us), err)
	}
	return nil
}

func (s *Store) Append(ctx context.Context, spreadsheetID, rng string, values [][]any) error {
	svc, err := s.service(ctx)
	if err != nil {
		return err
	}
	_, err = svc.Spreadsheets.Values.Append(spreadsheetID, rng, &sheets.ValueRange{
		Values: values,
	}).ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("gsheets: append to %s: %w", rng, err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context, spreadsheetID, rng string) error {
	svc, err := s.service(ctx)
	if err != nil {
		return err
	}
	_, err = svc.Spreadsheets.Values.Clear(spreadsheetID, rng, &sheets.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("gsheets: clear %s: %w", rng, err)
	}
	return nil
}

var _ store.Store = (*Store)(nil)
