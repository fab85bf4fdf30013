package docq

import (
	"context"

	"github.com/autom8ter/docq/errors"
)

// QuerySet is a chainable query over one collection. Every method returns a new QuerySet and
// leaves its receiver unchanged. Filters are compiled when the query set is evaluated.
type QuerySet struct {
	compiler *Compiler
	executor Executor
	lookups  []Lookup
	trees    []Tree
	js       []string
	orderBy  []string
	selected []string
	skip     int
	limit    int
}

// NewQuerySet creates a query set over the compiler's collection
func NewQuerySet(compiler *Compiler, executor Executor) *QuerySet {
	return &QuerySet{
		compiler: compiler,
		executor: executor,
	}
}

func (q *QuerySet) clone() *QuerySet {
	c := *q
	c.lookups = append([]Lookup{}, q.lookups...)
	c.trees = append([]Tree{}, q.trees...)
	c.js = append([]string{}, q.js...)
	c.orderBy = append([]string{}, q.orderBy...)
	c.selected = append([]string{}, q.selected...)
	return &c
}

// Filter adds flat lookups. Lookups of every Filter call are merged in call order with the
// silent-drop rule.
func (q *QuerySet) Filter(lookups ...Lookup) *QuerySet {
	c := q.clone()
	c.lookups = append(c.lookups, lookups...)
	return c
}

// Where ANDs predicate trees into the query
func (q *QuerySet) Where(trees ...Tree) *QuerySet {
	c := q.clone()
	c.trees = append(c.trees, trees...)
	return c
}

// OrderBy orders results by logical paths. A '-' prefix orders descending.
func (q *QuerySet) OrderBy(fields ...string) *QuerySet {
	c := q.clone()
	c.orderBy = fields
	return c
}

// Only projects results onto the given logical paths
func (q *QuerySet) Only(fields ...string) *QuerySet {
	c := q.clone()
	c.selected = fields
	return c
}

// Skip skips the first n results
func (q *QuerySet) Skip(n int) *QuerySet {
	c := q.clone()
	c.skip = n
	return c
}

// Limit limits the number of results
func (q *QuerySet) Limit(n int) *QuerySet {
	c := q.clone()
	c.limit = n
	return c
}

// Fragment compiles the query set's filter. Javascript conditions are ANDed in under WhereKey.
func (q *QuerySet) Fragment(ctx context.Context) (Fragment, error) {
	f, err := q.compiler.Compile(ctx, q.lookups, q.trees...)
	if err != nil || len(q.js) == 0 {
		return f, err
	}
	where, err := q.whereJS()
	if err != nil {
		return nil, err
	}
	return AndFragments(f, Fragment{WhereKey: where})
}

// FindOptions resolves the query set's ordering and projection into storage paths
func (q *QuerySet) FindOptions() (FindOptions, error) {
	opts := FindOptions{Skip: q.skip, Limit: q.limit}
	for _, expr := range q.orderBy {
		path, direction := ParseOrderBy(expr)
		fp, err := q.compiler.Resolve(path)
		if err != nil {
			return FindOptions{}, err
		}
		opts.OrderBy = append(opts.OrderBy, OrderBy{Field: fp.String(), Direction: direction})
	}
	for _, path := range q.selected {
		fp, err := q.compiler.Resolve(path)
		if err != nil {
			return FindOptions{}, err
		}
		opts.Select = append(opts.Select, fp.String())
	}
	return opts, nil
}

// Cursor compiles the query set and runs it on the executor
func (q *QuerySet) Cursor(ctx context.Context) (Cursor, error) {
	if q.executor == nil {
		return nil, errors.New(errors.Internal, "query set has no executor")
	}
	filter, err := q.Fragment(ctx)
	if err != nil {
		return nil, err
	}
	opts, err := q.FindOptions()
	if err != nil {
		return nil, err
	}
	return q.executor.Find(ctx, q.compiler.Schema().Name(), filter, opts)
}

// All returns every matching document
func (q *QuerySet) All(ctx context.Context) (Documents, error) {
	cursor, err := q.Cursor(ctx)
	if err != nil {
		return nil, err
	}
	defer cursor.Close()
	return Collect(ctx, cursor)
}

// First returns the first matching document or a NotFound error
func (q *QuerySet) First(ctx context.Context) (*Document, error) {
	docs, err := q.Limit(1).All(ctx)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, errors.New(errors.NotFound, "%s: no matching document", q.compiler.Schema().Name())
	}
	return docs[0], nil
}

// Get returns the single matching document. It fails with NotFound if nothing matches and
// with Conflict if more than one document matches.
func (q *QuerySet) Get(ctx context.Context) (*Document, error) {
	docs, err := q.Limit(2).All(ctx)
	if err != nil {
		return nil, err
	}
	switch len(docs) {
	case 0:
		return nil, errors.New(errors.NotFound, "%s: no matching document", q.compiler.Schema().Name())
	case 1:
		return docs[0], nil
	default:
		return nil, errors.New(errors.Conflict, "%s: multiple documents match", q.compiler.Schema().Name())
	}
}

// Count returns the number of matching documents, ignoring skip and limit
func (q *QuerySet) Count(ctx context.Context) (int, error) {
	cursor, err := q.Skip(0).Limit(0).Cursor(ctx)
	if err != nil {
		return 0, err
	}
	defer cursor.Close()
	var count int
	for cursor.Next(ctx) {
		count++
	}
	return count, cursor.Err()
}

// Update merges patch, a document in storage form, into every matching document and returns
// the number of updated documents. Skip and limit do not apply. The executor must implement
// Updater.
func (q *QuerySet) Update(ctx context.Context, patch *Document) (int, error) {
	updater, ok := q.executor.(Updater)
	if !ok {
		return 0, errors.New(errors.Internal, "%s: executor does not support updates", q.compiler.Schema().Name())
	}
	filter, err := q.Fragment(ctx)
	if err != nil {
		return 0, err
	}
	return updater.Update(ctx, q.compiler.Schema().Name(), filter, patch)
}
