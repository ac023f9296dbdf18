package docstore

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Memory is an in-process Store used when no database is configured and in tests.
type Memory struct {
	mu    sync.RWMutex
	cols  map[string]map[string]*memDoc
	seq   int64
	now   func() time.Time
	fails map[string]error
}

type memDoc struct {
	id        string
	data      []byte
	createdAt time.Time
	updatedAt time.Time
	seq       int64
}

// MemoryOption configures Memory.
type MemoryOption func(*Memory)

// WithMemoryClock overrides the time source.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemory constructs an empty store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		cols:  make(map[string]map[string]*memDoc),
		now:   func() time.Time { return time.Now().UTC() },
		fails: make(map[string]error),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// FailNext makes the next call of op ("insert", "query", "get", "update") return err.
func (m *Memory) FailNext(op string, err error) {
	m.mu.Lock()
	m.fails[op] = err
	m.mu.Unlock()
}

func (m *Memory) takeFailure(op string) error {
	if err, ok := m.fails[op]; ok {
		delete(m.fails, op)
		return err
	}
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

func (m *Memory) Insert(ctx context.Context, collection string, f Fields) (Document, error) {
	return m.InsertUnless(ctx, collection, f, nil)
}

func (m *Memory) InsertUnless(ctx context.Context, collection string, f Fields, guard []Filter) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	if err := checkFilters(guard); err != nil {
		return Document{}, err
	}
	now := m.now()
	fields, err := resolve(f, now)
	if err != nil {
		return Document{}, err
	}
	id, err := newID(now)
	if err != nil {
		return Document{}, err
	}
	fields["id"] = id
	data, err := json.Marshal(fields)
	if err != nil {
		return Document{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeFailure("insert"); err != nil {
		return Document{}, err
	}

	col := m.cols[collection]
	if col == nil {
		col = make(map[string]*memDoc)
		m.cols[collection] = col
	}
	if len(guard) > 0 {
		for _, d := range col {
			if matchAll(d.data, guard) {
				return Document{}, ErrConflict
			}
		}
	}

	m.seq++
	d := &memDoc{id: id, data: data, createdAt: now, updatedAt: now, seq: m.seq}
	col[id] = d
	return d.document(), nil
}

func (m *Memory) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkFilters(q.Where); err != nil {
		return nil, err
	}
	if q.OrderBy != "" {
		if err := checkField(q.OrderBy); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	failure := m.takeFailure("query")
	m.mu.Unlock()
	if failure != nil {
		return nil, failure
	}

	// Documents are mutated in place by updates, so ordering and copying
	// happen under the read lock.
	m.mu.RLock()
	defer m.mu.RUnlock()

	var hits []*memDoc
	for _, d := range m.cols[collection] {
		if matchAll(d.data, q.Where) {
			hits = append(hits, d)
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if q.OrderBy != "" {
			c := compareField(a, b, q.OrderBy)
			if c != 0 {
				if q.Desc {
					return c > 0
				}
				return c < 0
			}
		}
		if q.Desc {
			return a.seq > b.seq
		}
		return a.seq < b.seq
	})

	if q.Limit > 0 && len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}
	out := make([]Document, 0, len(hits))
	for _, d := range hits {
		out = append(out, d.document())
	}
	return out, nil
}

func (m *Memory) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("get"); err != nil {
		return Document{}, err
	}
	d, ok := m.cols[collection][id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return d.document(), nil
}

func (m *Memory) GetMany(ctx context.Context, collection string, ids []string) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("get"); err != nil {
		return nil, err
	}
	out := make([]Document, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if d, ok := m.cols[collection][id]; ok {
			out = append(out, d.document())
		}
	}
	return out, nil
}

func (m *Memory) Update(ctx context.Context, collection, id string, f Fields) error {
	return m.UpdateIf(ctx, collection, id, nil, f)
}

func (m *Memory) UpdateIf(ctx context.Context, collection, id string, expect []Filter, f Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkFilters(expect); err != nil {
		return err
	}
	now := m.now()
	fields, err := resolve(f, now)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeFailure("update"); err != nil {
		return err
	}
	d, ok := m.cols[collection][id]
	if !ok {
		return ErrNotFound
	}
	if !matchAll(d.data, expect) {
		return ErrConflict
	}

	data := d.data
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		raw, err := json.Marshal(fields[k])
		if err != nil {
			return err
		}
		data, err = sjson.SetRawBytes(data, k, raw)
		if err != nil {
			return err
		}
	}
	d.data = data
	d.updatedAt = now
	return nil
}

func (d *memDoc) document() Document {
	return Document{
		ID:        d.id,
		Data:      append(json.RawMessage(nil), d.data...),
		CreatedAt: d.createdAt,
		UpdatedAt: d.updatedAt,
	}
}

func matchAll(data []byte, fs []Filter) bool {
	for _, f := range fs {
		if !match(data, f) {
			return false
		}
	}
	return true
}

func match(data []byte, f Filter) bool {
	r := gjson.GetBytes(data, f.Field)
	switch f.Op {
	case OpEq:
		c, ok := compareValue(r, f.Value)
		return ok && c == 0
	case OpGTE:
		c, ok := compareValue(r, f.Value)
		return ok && c >= 0
	case OpLTE:
		c, ok := compareValue(r, f.Value)
		return ok && c <= 0
	case OpIn:
		vs, _ := f.Value.([]any)
		for _, v := range vs {
			if c, ok := compareValue(r, v); ok && c == 0 {
				return true
			}
		}
	}
	return false
}

// compareValue orders a stored value against a filter operand. ok is false
// when the two are not comparable.
func compareValue(r gjson.Result, v any) (int, bool) {
	switch x := normalizeValue(v).(type) {
	case nil:
		return 0, !r.Exists() || r.Type == gjson.Null
	case string:
		if r.Type != gjson.String {
			return 0, false
		}
		return strings.Compare(r.Str, x), true
	case bool:
		if r.Type != gjson.True && r.Type != gjson.False {
			return 0, false
		}
		if r.Bool() == x {
			return 0, true
		}
		if x {
			return -1, true
		}
		return 1, true
	case time.Time:
		if r.Type != gjson.String {
			return 0, false
		}
		t, err := time.Parse(time.RFC3339Nano, r.Str)
		if err != nil {
			return 0, false
		}
		return t.Compare(x), true
	}

	n, ok := toFloat(normalizeValue(v))
	if !ok || r.Type != gjson.Number {
		return 0, false
	}
	switch {
	case r.Num < n:
		return -1, true
	case r.Num > n:
		return 1, true
	default:
		return 0, true
	}
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	return 0, false
}

func compareField(a, b *memDoc, field string) int {
	switch field {
	case "createdAt":
		return a.createdAt.Compare(b.createdAt)
	case "updatedAt":
		return a.updatedAt.Compare(b.updatedAt)
	}
	ra := gjson.GetBytes(a.data, field)
	rb := gjson.GetBytes(b.data, field)
	switch {
	case ra.Less(rb, true):
		return -1
	case rb.Less(ra, true):
		return 1
	default:
		return 0
	}
}

var _ Store = (*Memory)(nil)
