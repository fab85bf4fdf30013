package docq

import (
	"sort"
	"sync"

	"github.com/autom8ter/docq/errors"
	"golang.org/x/sync/errgroup"
)

// Catalog is a registry of collection schemas. Reference fields resolve their target
// schema through the catalog they were registered with.
type Catalog struct {
	mu      sync.RWMutex
	schemas map[string]Schema
	opts    []SchemaOption
}

// NewCatalog creates an empty catalog. The options apply to every schema added to it.
func NewCatalog(opts ...SchemaOption) *Catalog {
	return &Catalog{
		schemas: map[string]Schema{},
		opts:    opts,
	}
}

// LoadCatalog creates a catalog from the given schema contents (yaml or json). Schemas are
// parsed concurrently; references between them are resolved lazily so order does not matter.
func LoadCatalog(contents [][]byte, opts ...SchemaOption) (*Catalog, error) {
	c := NewCatalog(opts...)
	var g errgroup.Group
	for _, content := range contents {
		content := content
		g.Go(func() error {
			_, err := c.Add(content)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return c, nil
}

// Add parses and registers a collection schema
func (c *Catalog) Add(content []byte) (Schema, error) {
	s, err := newJSONSchema(content, newSchemaOptions(append(append([]SchemaOption{}, c.opts...), withCatalog(c))))
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.schemas[s.Name()]; ok {
		return nil, errors.New(errors.Validation, "duplicate collection: %s", s.Name())
	}
	c.schemas[s.Name()] = s
	return s, nil
}

// Get returns the schema registered under the given name
func (c *Catalog) Get(name string) (Schema, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.schemas[name]
	return s, ok
}

// MustGet returns the schema registered under the given name or panics
func (c *Catalog) MustGet(name string) Schema {
	s, ok := c.Get(name)
	if !ok {
		panic(errors.New(errors.NotFound, "collection not found: %s", name))
	}
	return s
}

// Schemas returns every registered schema sorted by name
func (c *Catalog) Schemas() []Schema {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var schemas []Schema
	for _, s := range c.schemas {
		schemas = append(schemas, s)
	}
	sort.Slice(schemas, func(i, j int) bool {
		return schemas[i].Name() < schemas[j].Name()
	})
	return schemas
}
