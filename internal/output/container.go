// Package output provides the nested result container that accumulates
// everything a post-processing run produces, including non-fatal warnings.
package output

import (
	"encoding/json"
	"fmt"
	"reflect"
	"slices"

	"gonum.org/v1/gonum/mat"
)

// DefaultWarningsKey is the reserved key warnings are accumulated under.
const DefaultWarningsKey = "Warnings"

// Container is a string-keyed mapping whose values are nested containers,
// sequences ([]any), scalars, strings or nil. Values are normalized on
// assignment so that no typed slice, array or gonum matrix survives in the
// tree. A Container is not safe for concurrent use.
type Container struct {
	keys        []string
	values      map[string]any
	warningsKey string
}

// Option configures a Container.
type Option func(*Container)

// WithWarningsKey overrides the key warnings are stored under.
func WithWarningsKey(key string) Option {
	return func(c *Container) {
		if key != "" {
			c.warningsKey = key
		}
	}
}

// New creates an empty Container.
func New(opts ...Option) *Container {
	c := &Container{
		values:      make(map[string]any),
		warningsKey: DefaultWarningsKey,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// child creates an empty container sharing this container's settings.
func (c *Container) child() *Container {
	return &Container{values: make(map[string]any), warningsKey: c.warningsKey}
}

// WarningsKey returns the reserved warnings key.
func (c *Container) WarningsKey() string {
	return c.warningsKey
}

// Child returns the container stored under key, creating an empty one if the
// key is absent. An existing value is never overwritten; asking for a child
// where a non-container value lives is a programmer error and panics.
func (c *Container) Child(key string) *Container {
	if v, ok := c.values[key]; ok {
		sub, isContainer := v.(*Container)
		if !isContainer {
			panic(fmt.Sprintf("output: key %q holds %T, not a container", key, v))
		}
		return sub
	}
	sub := c.child()
	c.put(key, sub)
	return sub
}

// Set stores value under key after normalizing it.
func (c *Container) Set(key string, value any) {
	c.put(key, c.normalize(value))
}

// Get returns the value stored under key.
func (c *Container) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Has reports whether key is present.
func (c *Container) Has(key string) bool {
	_, ok := c.values[key]
	return ok
}

// Pop removes key and returns its value.
func (c *Container) Pop(key string) (any, bool) {
	v, ok := c.values[key]
	if !ok {
		return nil, false
	}
	delete(c.values, key)
	for i, k := range c.keys {
		if k == key {
			c.keys = append(c.keys[:i], c.keys[i+1:]...)
			break
		}
	}
	return v, true
}

// Keys returns the keys in insertion order.
func (c *Container) Keys() []string {
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// Len returns the number of keys.
func (c *Container) Len() int {
	return len(c.keys)
}

// AddWarning appends msg to the warnings sequence, creating it on first use.
func (c *Container) AddWarning(msg string) {
	existing, _ := c.values[c.warningsKey].([]any)
	c.put(c.warningsKey, append(existing, msg))
}

// Warnings returns the accumulated warnings in the order they were added.
func (c *Container) Warnings() []string {
	seq, _ := c.values[c.warningsKey].([]any)
	out := make([]string, 0, len(seq))
	for _, v := range seq {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Materialize returns a plain snapshot of the tree: containers become maps,
// sequences become []any and nil stays nil.
func (c *Container) Materialize() map[string]any {
	out := make(map[string]any, len(c.keys))
	for _, k := range c.keys {
		out[k] = materialize(c.values[k])
	}
	return out
}

// MarshalJSON serializes the materialized snapshot.
func (c *Container) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Materialize())
}

func (c *Container) put(key string, value any) {
	if _, ok := c.values[key]; !ok {
		c.keys = append(c.keys, key)
	}
	c.values[key] = value
}

func materialize(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case *Container:
		if t == nil {
			return nil
		}
		return t.Materialize()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = materialize(e)
		}
		return out
	default:
		return v
	}
}

// normalize converts value into the container's tagged representation.
func (c *Container) normalize(value any) any {
	switch t := value.(type) {
	case nil:
		return nil
	case *Container:
		return t
	case string, bool, float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return t
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = c.normalize(e)
		}
		return out
	case mat.Vector:
		out := make([]any, t.Len())
		for i := range out {
			out[i] = t.AtVec(i)
		}
		return out
	case mat.Matrix:
		r, cols := t.Dims()
		out := make([]any, r)
		for i := 0; i < r; i++ {
			row := make([]any, cols)
			for j := 0; j < cols; j++ {
				row[j] = t.At(i, j)
			}
			out[i] = row
		}
		return out
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = c.normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return value
		}
		sub := c.child()
		iter := rv.MapRange()
		keys := make([]string, 0, rv.Len())
		vals := make(map[string]any, rv.Len())
		for iter.Next() {
			k := iter.Key().String()
			keys = append(keys, k)
			vals[k] = iter.Value().Interface()
		}
		slices.Sort(keys)
		for _, k := range keys {
			sub.put(k, c.normalize(vals[k]))
		}
		return sub
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return c.normalize(rv.Elem().Interface())
	}
	return value
}
