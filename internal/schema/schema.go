// Package schema defines the dataset model: an ordered column list per
// logical dataset, registered once at process start and immutable after.
// Column order is the authoritative physical order (index 0 maps to
// spreadsheet column A) and the first column is always the primary key.
package schema

import (
	"errors"
	"fmt"
	"sort"
)

// ErrDatasetNotFound is returned by Registry.Dataset for unknown names.
var ErrDatasetNotFound = errors.New("schema: dataset not found")

// Type tags the canonical value a column coerces to.
type Type string

const (
	TypeString   Type = "string"
	TypeNumber   Type = "number"
	TypeDate     Type = "date"
	TypeDatetime Type = "datetime"
	TypeText     Type = "text"
	TypeCurrency Type = "currency"
)

// Valid reports whether t is one of the known type tags.
func (t Type) Valid() bool {
	switch t {
	case TypeString, TypeNumber, TypeDate, TypeDatetime, TypeText, TypeCurrency:
		return true
	}
	return false
}

// Numeric reports whether empty cells of this type coerce to 0 rather than "".
func (t Type) Numeric() bool { return t == TypeNumber || t == TypeCurrency }

// Column describes one physical spreadsheet column.
type Column struct {
	Key      string
	Header   string
	Type     Type
	Required bool
}

// Dataset is one registered sheet: its tab title and ordered columns.
type Dataset struct {
	Name    string
	Columns []Column
}

// PrimaryKey returns the dataset's first column.
func (d Dataset) PrimaryKey() Column { return d.Columns[0] }

// ColumnIndex returns the 0-based position of the column with the given
// key, or false when the key is not part of the dataset.
func (d Dataset) ColumnIndex(key string) (int, bool) {
	for i, c := range d.Columns {
		if c.Key == key {
			return i, true
		}
	}
	return 0, false
}

// Headers returns the display labels in physical column order.
func (d Dataset) Headers() []string {
	out := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		out[i] = c.Header
	}
	return out
}

// Validate checks structural soundness: a name, at least one column,
// unique keys, known type tags.
func (d Dataset) Validate() error {
	if d.Name == "" {
		return errors.New("schema: dataset has no name")
	}
	if len(d.Columns) == 0 {
		return fmt.Errorf("schema: dataset %q has no columns", d.Name)
	}
	seen := make(map[string]struct{}, len(d.Columns))
	for i, c := range d.Columns {
		if c.Key == "" {
			return fmt.Errorf("schema: dataset %q column %d has no key", d.Name, i)
		}
		if _, dup := seen[c.Key]; dup {
			return fmt.Errorf("schema: dataset %q duplicate column key %q", d.Name, c.Key)
		}
		seen[c.Key] = struct{}{}
		if !c.Type.Valid() {
			return fmt.Errorf("schema: dataset %q column %q has unknown type %q", d.Name, c.Key, c.Type)
		}
	}
	return nil
}

// Registry holds the process-wide dataset table. Lookups are read-only
// after construction, so no locking is needed.
type Registry struct {
	datasets map[string]Dataset
}

// NewRegistry validates every dataset and indexes it by name.
func NewRegistry(datasets ...Dataset) (*Registry, error) {
	r := &Registry{datasets: make(map[string]Dataset, len(datasets))}
	for _, d := range datasets {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.datasets[d.Name]; dup {
			return nil, fmt.Errorf("schema: duplicate dataset %q", d.Name)
		}
		r.datasets[d.Name] = d
	}
	return r, nil
}

// Dataset looks up a dataset by name.
//
// Errors: ErrDatasetNotFound (wrapped with the requested name) when the
// name was never registered. Unknown datasets are a client error, not a
// degraded read.
func (r *Registry) Dataset(name string) (Dataset, error) {
	d, ok := r.datasets[name]
	if !ok {
		return Dataset{}, fmt.Errorf("%w: %q", ErrDatasetNotFound, name)
	}
	return d, nil
}

// Names returns the registered dataset names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.datasets))
	for name := range r.datasets {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
