package record

import (
	"fmt"
	"math"
	"strconv"

	"github.com/fulldump/todostore/utils"
)

// IDKey is the attribute holding the identity of a record.
const IDKey = "id"

type Field struct {
	Key   string
	Value any
}

// Record is an insertion-ordered mapping from attribute name to value.
// Putting an existing key keeps its original position.
type Record []Field

func New(kv ...any) Record {
	r := make(Record, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		r.Put(key, kv[i+1])
	}
	return r
}

// FromMap builds a record from a plain map. Keys are sorted since maps have no order.
func FromMap(m map[string]any) Record {
	r := make(Record, 0, len(m))
	for _, k := range utils.GetKeys(m) {
		r = append(r, Field{Key: k, Value: m[k]})
	}
	return r
}

func (r Record) index(key string) int {
	for i, f := range r {
		if f.Key == key {
			return i
		}
	}
	return -1
}

func (r Record) Get(key string) (any, bool) {
	i := r.index(key)
	if i < 0 {
		return nil, false
	}
	return r[i].Value, true
}

func (r Record) Has(key string) bool {
	return r.index(key) >= 0
}

func (r *Record) Put(key string, value any) {
	if i := r.index(key); i >= 0 {
		(*r)[i].Value = value
		return
	}
	*r = append(*r, Field{Key: key, Value: value})
}

func (r *Record) Delete(key string) bool {
	i := r.index(key)
	if i < 0 {
		return false
	}
	*r = append((*r)[:i], (*r)[i+1:]...)
	return true
}

func (r Record) Keys() []string {
	keys := make([]string, len(r))
	for i, f := range r {
		keys[i] = f.Key
	}
	return keys
}

// Clone is shallow: nested maps and slices are shared.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	c := make(Record, len(r))
	copy(c, r)
	return c
}

// Merge returns a copy of r with every field of other put on top.
func (r Record) Merge(other Record) Record {
	c := r.Clone()
	for _, f := range other {
		c.Put(f.Key, f.Value)
	}
	return c
}

func (r Record) Map() map[string]any {
	m := make(map[string]any, len(r))
	for _, f := range r {
		m[f.Key] = f.Value
	}
	return m
}

// ID renders the identity of the record, "" when it has none.
func (r Record) ID() string {
	v, ok := r.Get(IDKey)
	if !ok {
		return ""
	}
	return FormatID(v)
}

func FormatID(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case float64:
		if id == math.Trunc(id) && !math.IsInf(id, 0) {
			return strconv.FormatInt(int64(id), 10)
		}
		return strconv.FormatFloat(id, 'f', -1, 64)
	case float32:
		return FormatID(float64(id))
	}
	if f, ok := toFloat(v); ok {
		return FormatID(f)
	}
	return fmt.Sprint(v)
}
