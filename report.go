package modeldump

import (
	"bytes"
	"encoding/json"
)

// Report is everything extracted from one model archive.
type Report struct {
	Title           string                       `json:"title"`
	FileSize        int64                        `json:"file_size"`
	Version         string                       `json:"version"`
	ZipFiles        []ZipFile                    `json:"zip_files"`
	InternedStrings []any                        `json:"interned_strings"`
	CodeFiles       *OrderedMap[[]CodeSpan]      `json:"code_files"`
	ModelData       any                          `json:"model_data"`
	ExtraFilesJSONs *OrderedMap[json.RawMessage] `json:"extra_files_jsons"`
	ExtraPickles    *OrderedMap[string]          `json:"extra_pickles"`
}

// ZipFile describes one archive entry.
type ZipFile struct {
	Filename       string `json:"filename"`
	Compression    uint16 `json:"compression"`
	CompressedSize uint64 `json:"compressed_size"`
	FileSize       uint64 `json:"file_size"`
}

// OrderedMap is a string-keyed map that is encoded as a JSON object with
// keys in insertion order.
type OrderedMap[V any] struct {
	keys   []string
	values map[string]V
}

// NewOrderedMap returns an empty OrderedMap.
func NewOrderedMap[V any]() *OrderedMap[V] {
	return &OrderedMap[V]{values: make(map[string]V)}
}

// Set sets the value for key. A new key goes last.
func (m *OrderedMap[V]) Set(key string, v V) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
}

// Get returns the value for key.
func (m *OrderedMap[V]) Get(key string) (V, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Len returns the number of keys.
func (m *OrderedMap[V]) Len() int {
	return len(m.keys)
}

// Keys returns the keys in insertion order.
func (m *OrderedMap[V]) Keys() []string {
	return append([]string(nil), m.keys...)
}

func (m *OrderedMap[V]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(m.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
