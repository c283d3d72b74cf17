package query

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"sheetdb/internal/coerce"
	"sheetdb/internal/metrics"
	"sheetdb/internal/schema"
	"sheetdb/internal/sheetref"
	"sheetdb/internal/store"
)

var (
	// ErrRecordNotFound means no row's primary key matched.
	ErrRecordNotFound = errors.New("query: record not found")
	// ErrMissingPrimaryKey means the partial record carries no usable
	// primary-key value.
	ErrMissingPrimaryKey = errors.New("query: missing primary key")
)

// keyIndex maps trimmed primary-key values to physical rows. Built from
// the key column only, never the full row set. First occurrence wins;
// duplicate keys are undefined behavior, not validated.
type keyIndex map[string]int

func (s *Service) buildKeyIndex(ctx context.Context, id string, ds schema.Dataset) (keyIndex, error) {
	vr, err := s.store.Get(ctx, id, sheetref.Column(ds.Name, 1))
	if err != nil {
		return nil, fmt.Errorf("query: fetch key column: %w", err)
	}
	idx := make(keyIndex, len(vr.Values))
	for i, cells := range vr.Values {
		if i == 0 || len(cells) == 0 {
			continue
		}
		key := strings.TrimSpace(coerce.String(cells[0]))
		if key == "" {
			continue
		}
		if _, seen := idx[key]; !seen {
			idx[key] = i + 1
		}
	}
	return idx, nil
}

// planRecord emits one single-cell write per non-primary-key field
// present in the record, in schema column order.
func planRecord(ds schema.Dataset, record map[string]any, row int) []store.ValueUpdate {
	var updates []store.ValueUpdate
	for idx, col := range ds.Columns {
		if idx == 0 {
			continue
		}
		v, present := record[col.Key]
		if !present {
			continue
		}
		updates = append(updates, store.ValueUpdate{
			Range:  sheetref.Cell(ds.Name, idx+1, row),
			Values: [][]any{{v}},
		})
	}
	return updates
}

func recordKey(ds schema.Dataset, record map[string]any) (string, error) {
	pk := ds.PrimaryKey()
	raw, ok := record[pk.Key]
	key := strings.TrimSpace(coerce.String(raw))
	if !ok || key == "" {
		return "", fmt.Errorf("%w: dataset %s needs %q", ErrMissingPrimaryKey, ds.Name, pk.Key)
	}
	return key, nil
}

// PlanUpdate resolves a partial record to minimal per-cell writes.
//
// The row is found by exact, whitespace-trimmed string equality on the
// primary-key column. Fields absent from the record are never touched,
// which is what makes this a patch rather than a replace.
//
// Errors: ErrMissingPrimaryKey, ErrRecordNotFound, schema and store
// errors.
func (s *Service) PlanUpdate(ctx context.Context, dataset string, record map[string]any, opts Options) ([]store.ValueUpdate, error) {
	ds, err := s.reg.Dataset(dataset)
	if err != nil {
		return nil, err
	}
	key, err := recordKey(ds, record)
	if err != nil {
		return nil, err
	}
	idx, err := s.buildKeyIndex(ctx, s.sheetID(opts), ds)
	if err != nil {
		return nil, err
	}
	row, ok := idx[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s %q", ErrRecordNotFound, ds.PrimaryKey().Key, key)
	}
	return planRecord(ds, record, row), nil
}

// UpdateResult reports one applied patch.
type UpdateResult struct {
	Key   string
	Cells int
}

// UpdateByKey plans and applies one patch, then invalidates the cache.
func (s *Service) UpdateByKey(ctx context.Context, dataset string, record map[string]any, opts Options) (UpdateResult, error) {
	updates, err := s.PlanUpdate(ctx, dataset, record, opts)
	if err != nil {
		return UpdateResult{}, err
	}
	ds, _ := s.reg.Dataset(dataset)
	key, _ := recordKey(ds, record)
	if len(updates) == 0 {
		return UpdateResult{Key: key}, nil
	}
	err = s.store.BatchUpdate(ctx, s.sheetID(opts), updates)
	metrics.RecordWrite(dataset, "update", len(updates), err)
	if err != nil {
		return UpdateResult{}, fmt.Errorf("query: update %s: %w", dataset, err)
	}
	s.cache.invalidate()
	s.log.Printf("stage=update dataset=%s key=%q cells=%d", dataset, key, len(updates))
	return UpdateResult{Key: key, Cells: len(updates)}, nil
}

// FailedUpdate is one record a batch could not plan.
type FailedUpdate struct {
	Key string
	Err error
}

// BatchUpdateResult is the partial-success outcome of UpdateManyByKey.
type BatchUpdateResult struct {
	Updated int
	Cells   int
	Failed  []FailedUpdate
}

// UpdateManyByKey builds the key index once, plans every record against
// it collecting per-record failures rather than aborting, and applies
// all planned cell writes in one combined store call.
func (s *Service) UpdateManyByKey(ctx context.Context, dataset string, records []map[string]any, opts Options) (BatchUpdateResult, error) {
	ds, err := s.reg.Dataset(dataset)
	if err != nil {
		return BatchUpdateResult{}, err
	}
	idx, err := s.buildKeyIndex(ctx, s.sheetID(opts), ds)
	if err != nil {
		return BatchUpdateResult{}, err
	}

	var res BatchUpdateResult
	var all []store.ValueUpdate
	for _, record := range records {
		key, err := recordKey(ds, record)
		if err != nil {
			res.Failed = append(res.Failed, FailedUpdate{Key: key, Err: err})
			continue
		}
		row, ok := idx[key]
		if !ok {
			res.Failed = append(res.Failed, FailedUpdate{
				Key: key,
				Err: fmt.Errorf("%w: %s %q", ErrRecordNotFound, ds.PrimaryKey().Key, key),
			})
			continue
		}
		updates := planRecord(ds, record, row)
		res.Updated++
		res.Cells += len(updates)
		all = append(all, updates...)
	}
	if len(all) > 0 {
		err := s.store.BatchUpdate(ctx, s.sheetID(opts), all)
		metrics.RecordWrite(dataset, "batch_update", len(all), err)
		if err != nil {
			return BatchUpdateResult{}, fmt.Errorf("query: batch update %s: %w", dataset, err)
		}
		s.cache.invalidate()
	}
	s.log.Printf("stage=batch_update dataset=%s updated=%d failed=%d cells=%d",
		dataset, res.Updated, len(res.Failed), res.Cells)
	return res, nil
}
