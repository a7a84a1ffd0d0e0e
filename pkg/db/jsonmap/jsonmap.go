// Package jsonmap holds a string-keyed map column stored as a JSON object.
package jsonmap

import (
	"sort"

	"gorm.io/datatypes"
)

// Map is persisted as a JSON object through datatypes.JSONType. A NULL
// column scans into an empty map.
type Map[V any] struct {
	datatypes.JSONType[map[string]V]
}

func New[V any](m map[string]V) Map[V] {
	if m == nil {
		m = map[string]V{}
	}
	return Map[V]{datatypes.NewJSONType(m)}
}

func (m *Map[V]) Scan(value any) error {
	*m = New[V](nil)
	if value == nil {
		return nil
	}
	return m.JSONType.Scan(value)
}

// Get returns the value stored under key.
func (m Map[V]) Get(key string) V {
	return m.Data()[key]
}

// Has reports whether key is present.
func (m Map[V]) Has(key string) bool {
	_, ok := m.Data()[key]
	return ok
}

// Merge returns a copy of m with every key of update written over it. Keys
// missing from update keep their value.
func (m Map[V]) Merge(update map[string]V) Map[V] {
	data := m.Data()
	out := make(map[string]V, len(data)+len(update))
	for k, v := range data {
		out[k] = v
	}
	for k, v := range update {
		out[k] = v
	}
	return New(out)
}

// Keys returns the keys in sorted order.
func (m Map[V]) Keys() []string {
	data := m.Data()
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
