// Package docstore is the remote document store boundary: schemaless records in
// named collections, queried with simple field filters.
package docstore

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"time"

	"glowlogy/cmd/internal/apperr"

	"github.com/oklog/ulid/v2"
)

var (
	// ErrNotFound is returned when a document id does not exist.
	ErrNotFound = apperr.ErrNotFound
	// ErrConflict is returned when a conditional write's guard or precondition fails.
	ErrConflict = apperr.ErrConflict
	// ErrInvalidField is returned for field names outside [A-Za-z_][A-Za-z0-9_]*.
	ErrInvalidField = errors.New("docstore: invalid field name")
)

type serverTimestamp struct{}

// ServerTimestamp is replaced by the store's clock when a write is applied.
var ServerTimestamp = serverTimestamp{}

// Fields is a partial document.
type Fields map[string]any

// Op is a filter operator.
type Op string

const (
	OpEq  Op = "=="
	OpGTE Op = ">="
	OpLTE Op = "<="
	OpIn  Op = "in"
)

// Filter constrains one top-level field.
type Filter struct {
	Field string
	Op    Op
	Value any
}

func Eq(field string, v any) Filter  { return Filter{Field: field, Op: OpEq, Value: v} }
func GTE(field string, v any) Filter { return Filter{Field: field, Op: OpGTE, Value: v} }
func LTE(field string, v any) Filter { return Filter{Field: field, Op: OpLTE, Value: v} }

// In matches documents whose field equals any of values.
func In(field string, values ...any) Filter {
	return Filter{Field: field, Op: OpIn, Value: values}
}

// Query selects documents from one collection.
type Query struct {
	Where   []Filter
	OrderBy string
	Desc    bool
	Limit   int
}

// Document is a stored record. Data always carries the document id under "id".
type Document struct {
	ID        string
	Data      json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Decode unmarshals Data into v.
func (d Document) Decode(v any) error {
	return json.Unmarshal(d.Data, v)
}

// Store is implemented by every backend.
type Store interface {
	Insert(ctx context.Context, collection string, f Fields) (Document, error)
	// InsertUnless inserts f only when no document in collection matches all of guard.
	InsertUnless(ctx context.Context, collection string, f Fields, guard []Filter) (Document, error)
	Query(ctx context.Context, collection string, q Query) ([]Document, error)
	Get(ctx context.Context, collection, id string) (Document, error)
	// GetMany returns the documents that exist among ids, in no particular order.
	GetMany(ctx context.Context, collection string, ids []string) ([]Document, error)
	// Update merges f into the document.
	Update(ctx context.Context, collection, id string, f Fields) error
	// UpdateIf merges f only while the document matches all of expect.
	UpdateIf(ctx context.Context, collection, id string, expect []Filter, f Fields) error
	Close() error
}

var fieldRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func checkField(name string) error {
	if !fieldRE.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidField, name)
	}
	return nil
}

func checkFilters(fs []Filter) error {
	for _, f := range fs {
		if err := checkField(f.Field); err != nil {
			return err
		}
		switch f.Op {
		case OpEq, OpGTE, OpLTE:
		case OpIn:
			if _, ok := f.Value.([]any); !ok {
				return fmt.Errorf("docstore: %s in: want []any, got %T", f.Field, f.Value)
			}
		default:
			return fmt.Errorf("docstore: unsupported operator %q", f.Op)
		}
	}
	return nil
}

// resolve validates names and replaces ServerTimestamp with now.
func resolve(f Fields, now time.Time) (map[string]any, error) {
	out := make(map[string]any, len(f))
	for k, v := range f {
		if err := checkField(k); err != nil {
			return nil, err
		}
		if k == "id" {
			return nil, fmt.Errorf("%w: id is assigned by the store", ErrInvalidField)
		}
		if _, ok := v.(serverTimestamp); ok {
			out[k] = now
			continue
		}
		out[k] = v
	}
	return out, nil
}

func newID(now time.Time) (string, error) {
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// normalizeValue unwraps named scalar types (type Status string) to their
// underlying kind so backends compare them like plain values.
func normalizeValue(v any) any {
	switch v.(type) {
	case nil, string, bool, int, int64, float64, time.Time:
		return v
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	}
	return v
}
