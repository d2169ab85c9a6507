// Package resource describes database tables as generic resources.
//
// A Descriptor carries everything the generic engine needs to operate on a
// table: its name, the ordered primary-key columns and the known column
// inventory. Descriptors are declared once in the backend configuration and
// passed explicitly into the generic operations.
package resource

import (
	"fmt"
	"strings"
)

// KeyDelimiter joins the segments of a composite-key identifier on the wire.
// Legacy clients pass one underscore-joined string for multi-column keys.
const KeyDelimiter = "_"

// Descriptor identifies a table and its primary-key shape.
type Descriptor struct {
	// Name is the resource name used in routes, e.g. "commodity"
	Name string `json:"resource"`
	// Table is the table name, optionally schema-qualified, e.g. "wms_commodity"
	Table string `json:"table"`
	// PrimaryKey lists the primary-key columns in declared order.
	// More than one column means a composite key.
	PrimaryKey []string `json:"primary_key"`
	// Columns is the full column inventory. Caller-supplied filter, search
	// and sort fields are validated against it. An empty inventory disables
	// that validation for legacy tables without a declared column set.
	Columns []string `json:"columns,omitempty"`
	// Searchable lists the columns offered for free-text search.
	Searchable []string `json:"searchable,omitempty"`
	// DefaultSort is the identity column used for ordering when the caller
	// does not sort explicitly. Defaults to the first primary-key column.
	DefaultSort string `json:"default_sort,omitempty"`
	// SchemaID optionally references a JSON schema for payload validation.
	SchemaID string `json:"schema_id,omitempty"`
}

// Validate checks the descriptor invariants.
func (d Descriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("resource lacks a name")
	}
	if d.Table == "" {
		return fmt.Errorf("resource %s lacks a table", d.Name)
	}
	if len(d.PrimaryKey) == 0 {
		return fmt.Errorf("resource %s lacks a primary key", d.Name)
	}
	return nil
}

// SortColumn returns the column used for default ordering.
func (d Descriptor) SortColumn() string {
	if d.DefaultSort != "" {
		return d.DefaultSort
	}
	return d.PrimaryKey[0]
}

// KnowsColumn reports whether name is part of the declared column inventory.
// Descriptors without an inventory accept any column.
func (d Descriptor) KnowsColumn(name string) bool {
	if len(d.Columns) == 0 {
		return true
	}
	for _, c := range d.Columns {
		if c == name {
			return true
		}
	}
	for _, c := range d.PrimaryKey {
		if c == name {
			return true
		}
	}
	return false
}

// Key holds resolved primary-key values for one row, in the descriptor's
// declared column order.
type Key struct {
	Columns []string
	Values  []string
}

// InvalidKeyError reports a malformed or wrong-arity key identifier.
type InvalidKeyError struct {
	Resource string
	ID       string
	Want     int
	Got      int
}

func (e *InvalidKeyError) Error() string {
	return fmt.Sprintf("invalid %s identifier %q: expected %d key segment(s), got %d",
		e.Resource, e.ID, e.Want, e.Got)
}

// ParseKey resolves a delimited identifier against the descriptor's primary
// key. Single-column keys take the identifier as-is, so values containing
// the delimiter stay intact. Composite keys are split positionally and the
// segment count must match the key arity.
func (d Descriptor) ParseKey(id string) (Key, error) {
	if len(d.PrimaryKey) == 1 {
		if id == "" {
			return Key{}, &InvalidKeyError{Resource: d.Name, ID: id, Want: 1, Got: 0}
		}
		return Key{Columns: []string{d.PrimaryKey[0]}, Values: []string{id}}, nil
	}
	segments := strings.Split(id, KeyDelimiter)
	if len(segments) != len(d.PrimaryKey) {
		return Key{}, &InvalidKeyError{Resource: d.Name, ID: id, Want: len(d.PrimaryKey), Got: len(segments)}
	}
	for _, s := range segments {
		if s == "" {
			return Key{}, &InvalidKeyError{Resource: d.Name, ID: id, Want: len(d.PrimaryKey), Got: len(segments)}
		}
	}
	columns := make([]string, len(d.PrimaryKey))
	copy(columns, d.PrimaryKey)
	return Key{Columns: columns, Values: segments}, nil
}

// KeyFromValues builds a structured key directly, the preferred path for
// internal callers.
func (d Descriptor) KeyFromValues(values ...string) (Key, error) {
	if len(values) != len(d.PrimaryKey) {
		return Key{}, &InvalidKeyError{Resource: d.Name, Want: len(d.PrimaryKey), Got: len(values)}
	}
	columns := make([]string, len(d.PrimaryKey))
	copy(columns, d.PrimaryKey)
	return Key{Columns: columns, Values: values}, nil
}

// Registry resolves descriptors by resource name.
type Registry struct {
	descriptors map[string]Descriptor
}

// NewRegistry creates a registry from the given descriptors. Duplicate
// names and invalid descriptors are rejected.
func NewRegistry(descriptors []Descriptor) (*Registry, error) {
	r := &Registry{descriptors: make(map[string]Descriptor, len(descriptors))}
	for _, d := range descriptors {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, ok := r.descriptors[d.Name]; ok {
			return nil, fmt.Errorf("duplicate resource %s", d.Name)
		}
		r.descriptors[d.Name] = d
	}
	return r, nil
}

// Lookup returns the descriptor for the given resource name.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	d, ok := r.descriptors[name]
	return d, ok
}

// All returns all registered descriptors.
func (r *Registry) All() []Descriptor {
	all := make([]Descriptor, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		all = append(all, d)
	}
	return all
}
