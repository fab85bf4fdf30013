// Package inmem is an in-memory Executor. It evaluates compiled fragments over documents held
// in memory and is meant for tests and tooling, not for persistence.
package inmem

import (
	"context"
	"sort"
	"sync"

	"github.com/autom8ter/docq"
	"github.com/autom8ter/docq/errors"
	"github.com/autom8ter/docq/util"
	"github.com/segmentio/ksuid"
)

// Executor is an in-memory docq.Executor
type Executor struct {
	mu          sync.RWMutex
	collections map[string]*collection
	validate    bool
	logger      docq.Logger
}

type collection struct {
	schema docq.Schema
	docs   []*docq.Document
	ids    map[string]int
}

// Option configures an Executor
type Option func(e *Executor)

// WithValidation validates inserted documents against their collection schema. Documents are
// stored as given, so this is only meaningful for schemas whose storage names are their
// logical names.
func WithValidation() Option {
	return func(e *Executor) {
		e.validate = true
	}
}

// WithLogger sets the executor's logger
func WithLogger(logger docq.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// New creates an empty executor
func New(opts ...Option) *Executor {
	e := &Executor{
		collections: map[string]*collection{},
		logger:      docq.NopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register adds a collection to the executor
func (e *Executor) Register(schemas ...docq.Schema) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range schemas {
		if _, ok := e.collections[s.Name()]; ok {
			continue
		}
		e.collections[s.Name()] = &collection{
			schema: s,
			ids:    map[string]int{},
		}
	}
}

// Insert adds documents in storage form to a collection. Documents without a primary key are
// given a generated one. The batch is validated as a whole: if any document is invalid or
// repeats a primary key, nothing is inserted.
func (e *Executor) Insert(ctx context.Context, name string, docs ...*docq.Document) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.collections[name]
	if !ok {
		return errors.New(errors.NotFound, "collection not found: %s", name)
	}
	pk := c.schema.PrimaryKey().DBName
	batch := make(docq.Documents, 0, len(docs))
	seen := map[string]struct{}{}
	for _, d := range docs {
		d = d.Clone()
		if !d.Exists(pk) {
			if err := d.Set(pk, ksuid.New().String()); err != nil {
				return errors.Wrap(err, errors.Internal, "%s: failed to set primary key", name)
			}
		}
		if err := e.validateDoc(c, d); err != nil {
			return err
		}
		id := d.GetString(pk)
		if _, ok := c.ids[id]; ok {
			return errors.New(errors.Conflict, "%s: duplicate primary key: %s", name, id)
		}
		if _, ok := seen[id]; ok {
			return errors.New(errors.Conflict, "%s: duplicate primary key in batch: %s", name, id)
		}
		seen[id] = struct{}{}
		batch = append(batch, d)
	}
	for _, d := range batch {
		c.ids[d.GetString(pk)] = len(c.docs)
		c.docs = append(c.docs, d)
	}
	e.logger.Debug(ctx, "inserted documents", map[string]any{
		"collection": name,
		"count":      len(batch),
	})
	return nil
}

// Update merges patch into every document of the collection matching the filter and returns
// the number of updated documents. The patch is in storage form and never changes primary
// keys. If any merged document fails validation, nothing is updated.
func (e *Executor) Update(ctx context.Context, name string, filter docq.Fragment, patch *docq.Document) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.collections[name]
	if !ok {
		return 0, errors.New(errors.NotFound, "collection not found: %s", name)
	}
	pk := c.schema.PrimaryKey().DBName
	patch = patch.Clone()
	if err := patch.Del(pk); err != nil {
		return 0, errors.Wrap(err, errors.Validation, "%s: invalid patch", name)
	}
	var (
		positions []int
		updated   docq.Documents
	)
	for i, d := range c.docs {
		ok, err := Match(filter, d)
		if err != nil {
			return 0, err
		}
		if !ok {
			continue
		}
		merged := d.Clone()
		if err := merged.Merge(patch); err != nil {
			return 0, errors.Wrap(err, errors.Validation, "%s: failed to merge patch", name)
		}
		if err := e.validateDoc(c, merged); err != nil {
			return 0, err
		}
		positions = append(positions, i)
		updated = append(updated, merged)
	}
	for i, pos := range positions {
		c.docs[pos] = updated[i]
	}
	e.logger.Debug(ctx, "updated documents", map[string]any{
		"collection": name,
		"filter":     filter.String(),
		"ids":        updated.IDs(pk),
	})
	return len(updated), nil
}

func (e *Executor) validateDoc(c *collection, d *docq.Document) error {
	if !e.validate {
		return nil
	}
	if v, ok := c.schema.(docq.Validator); ok {
		return v.Validate(d)
	}
	return nil
}

// Len returns the number of documents in a collection
func (e *Executor) Len(name string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if c, ok := e.collections[name]; ok {
		return len(c.docs)
	}
	return 0
}

// Find returns a cursor over the documents of the collection matching the filter. The cursor
// reads a snapshot of the collection taken when Find is called and matches documents lazily.
func (e *Executor) Find(ctx context.Context, name string, filter docq.Fragment, opts docq.FindOptions) (docq.Cursor, error) {
	if opts.Skip < 0 || opts.Limit < 0 {
		return nil, errors.New(errors.Validation, "skip and limit must not be negative")
	}
	e.mu.RLock()
	c, ok := e.collections[name]
	if !ok {
		e.mu.RUnlock()
		return nil, errors.New(errors.NotFound, "collection not found: %s", name)
	}
	snapshot := append(docq.Documents{}, c.docs...)
	pk := c.schema.PrimaryKey().DBName
	e.mu.RUnlock()

	orderDocs(snapshot, opts.OrderBy)
	e.logger.Debug(ctx, "find", map[string]any{
		"collection": name,
		"filter":     filter.String(),
		"options":    util.JSONString(opts),
	})
	return &cursor{
		docs:   snapshot,
		filter: filter.Clone(),
		opts:   opts,
		pk:     pk,
	}, nil
}

func orderDocs(docs docq.Documents, orderBys []docq.OrderBy) {
	if len(orderBys) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, o := range orderBys {
			cmp := compareField(o.Field, docs[i], docs[j])
			if cmp == 0 {
				continue
			}
			if o.Direction == docq.DESC {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

// compareField orders missing values first, then by value. Values of different types are
// ordered by their json encoding.
func compareField(field string, i, j *docq.Document) int {
	iExists, jExists := i.Exists(field), j.Exists(field)
	switch {
	case !iExists && !jExists:
		return 0
	case !iExists:
		return -1
	case !jExists:
		return 1
	}
	a, b := i.Get(field), j.Get(field)
	if cmp, ok := compare(a, b); ok {
		return cmp
	}
	as, bs := util.JSONString(a), util.JSONString(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	}
	return 0
}

type cursor struct {
	docs     docq.Documents
	filter   docq.Fragment
	opts     docq.FindOptions
	pk       string
	pos      int
	matched  int
	returned int
	current  *docq.Document
	err      error
	closed   bool
}

func (c *cursor) Next(ctx context.Context) bool {
	if c.closed || c.err != nil {
		return false
	}
	for c.pos < len(c.docs) {
		if c.opts.Limit > 0 && c.returned >= c.opts.Limit {
			return false
		}
		if err := ctx.Err(); err != nil {
			c.err = err
			return false
		}
		d := c.docs[c.pos]
		c.pos++
		ok, err := Match(c.filter, d)
		if err != nil {
			c.err = err
			return false
		}
		if !ok {
			continue
		}
		c.matched++
		if c.matched <= c.opts.Skip {
			continue
		}
		c.returned++
		c.current, c.err = project(d, c.pk, c.opts.Select)
		return c.err == nil
	}
	return false
}

func (c *cursor) Document() *docq.Document {
	return c.current
}

func (c *cursor) Err() error {
	return c.err
}

func (c *cursor) Rewind() {
	c.pos = 0
	c.matched = 0
	c.returned = 0
	c.current = nil
	c.err = nil
}

func (c *cursor) Close() error {
	c.closed = true
	c.current = nil
	return nil
}

func project(d *docq.Document, pk string, fields []string) (*docq.Document, error) {
	if len(fields) == 0 {
		return d.Clone(), nil
	}
	out := docq.NewDocument()
	for _, f := range append([]string{pk}, fields...) {
		if !d.Exists(f) {
			continue
		}
		if err := out.Set(f, d.Get(f)); err != nil {
			return nil, errors.Wrap(err, errors.Internal, "failed to project %s", f)
		}
	}
	return out, nil
}
