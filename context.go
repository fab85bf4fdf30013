package docq

import (
	"context"
	"encoding/json"
	"sync"
)

type ctxKey int

const (
	metadataKey ctxKey = 0
)

// Metadata holds key value pairs associated with a go Context. The compiler adds them to every
// log entry it writes for that context.
type Metadata struct {
	tags sync.Map
}

// NewMetadata creates metadata with the given tags
func NewMetadata(tags map[string]any) *Metadata {
	m := &Metadata{}
	if tags != nil {
		m.SetAll(tags)
	}
	return m
}

// String return a json string of the metadata
func (m *Metadata) String() string {
	bits, _ := m.MarshalJSON()
	return string(bits)
}

// MarshalJSON returns the metadata values as json bytes
func (m *Metadata) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Map())
}

// SetAll sets the key value fields on the metadata
func (m *Metadata) SetAll(data map[string]any) {
	for k, v := range data {
		m.tags.Store(k, v)
	}
}

// Set sets a key value pair on the metadata
func (m *Metadata) Set(key string, value any) {
	m.tags.Store(key, value)
}

// Get gets a key from the metadata if it exists
func (m *Metadata) Get(key string) (any, bool) {
	return m.tags.Load(key)
}

// Map returns the metadata key values as a map
func (m *Metadata) Map() map[string]any {
	data := map[string]any{}
	m.tags.Range(func(key, value any) bool {
		data[key.(string)] = value
		return true
	})
	return data
}

// ToContext adds the metadata to the input go context
func (m *Metadata) ToContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, metadataKey, m)
}

// GetMetadata gets metadata from the context if it exists
func GetMetadata(ctx context.Context) (*Metadata, bool) {
	if ctx == nil {
		return &Metadata{}, false
	}
	m, ok := ctx.Value(metadataKey).(*Metadata)
	if ok {
		return m, true
	}
	return &Metadata{}, false
}
