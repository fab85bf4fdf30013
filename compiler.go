package docq

import (
	"context"
	"time"

	"github.com/autom8ter/docq/errors"
)

// Compiler compiles lookups and predicate trees into fragments against one schema.
// A Compiler holds no mutable state and is safe for concurrent use.
type Compiler struct {
	schema     Schema
	resolver   *Resolver
	normalizer ValueNormalizer
	logger     Logger
	metrics    *Metrics
}

// CompilerOption configures a Compiler
type CompilerOption func(c *Compiler)

// WithConfig applies the configuration's primary key alias
func WithConfig(cfg Config) CompilerOption {
	return func(c *Compiler) {
		c.resolver = NewResolver(cfg.PKAlias)
	}
}

// WithPKAlias sets the root path segment that addresses the primary key
func WithPKAlias(alias string) CompilerOption {
	return func(c *Compiler) {
		c.resolver = NewResolver(alias)
	}
}

// WithLogger sets the compiler's logger
func WithLogger(logger Logger) CompilerOption {
	return func(c *Compiler) {
		c.logger = logger
	}
}

// WithNormalizer sets the value normalizer (default: RefNormalizer)
func WithNormalizer(normalizer ValueNormalizer) CompilerOption {
	return func(c *Compiler) {
		c.normalizer = normalizer
	}
}

// WithMetrics records compilations on the given metrics
func WithMetrics(metrics *Metrics) CompilerOption {
	return func(c *Compiler) {
		c.metrics = metrics
	}
}

// NewCompiler creates a compiler for the given schema
func NewCompiler(schema Schema, opts ...CompilerOption) *Compiler {
	c := &Compiler{
		schema:     schema,
		resolver:   NewResolver(DefaultPKAlias),
		normalizer: RefNormalizer{},
		logger:     NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile compiles lookups and predicate trees against the schema with default options
func Compile(schema Schema, lookups []Lookup, trees ...Tree) (Fragment, error) {
	return NewCompiler(schema).Compile(context.Background(), lookups, trees...)
}

// Schema returns the compiler's schema
func (c *Compiler) Schema() Schema {
	return c.schema
}

// Resolve resolves a logical path against the compiler's schema
func (c *Compiler) Resolve(path string) (FieldPath, error) {
	return c.resolver.Resolve(c.schema, path)
}

// Compile merges flat lookups and predicate trees into one fragment.
//
// Flat lookups are merged in order with MergeFlat: a lookup on a field that already holds a
// scalar is silently dropped. Every tree is then ANDed into the result with AndFragments, so
// conflicts between trees (or between a tree and the flat lookups) are InvalidQuery errors.
func (c *Compiler) Compile(ctx context.Context, lookups []Lookup, trees ...Tree) (Fragment, error) {
	start := time.Now()
	result, err := c.compile(ctx, lookups, trees)
	switch {
	case err == nil:
		c.metrics.recordCompile(statusOK, time.Since(start))
		c.logger.Debug(ctx, "compiled query", map[string]any{
			"collection": c.schema.Name(),
			"fragment":   result.String(),
		})
	case errors.IsInvalidQuery(err):
		c.metrics.recordCompile(statusInvalid, time.Since(start))
		c.logger.Debug(ctx, "invalid query", map[string]any{
			"collection": c.schema.Name(),
			"error":      err.Error(),
		})
	default:
		c.metrics.recordCompile(statusError, time.Since(start))
		c.logger.Error(ctx, "failed to compile query", err, map[string]any{
			"collection": c.schema.Name(),
		})
	}
	return result, err
}

func (c *Compiler) compile(ctx context.Context, lookups []Lookup, trees []Tree) (Fragment, error) {
	result := Fragment{}
	for _, l := range lookups {
		key, entry, err := c.CompileLookup(l)
		if err != nil {
			return nil, err
		}
		if !MergeFlat(result, key, entry) {
			c.metrics.recordDrop()
			c.logger.Debug(ctx, "dropped lookup", map[string]any{
				"collection": c.schema.Name(),
				"lookup":     l.Expr(),
				"field":      key,
			})
		}
	}
	for _, t := range trees {
		f, err := c.CompileTree(t)
		if err != nil {
			return nil, err
		}
		result, err = AndFragments(result, f)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

// CompileTree compiles a predicate tree. The atoms of each conjunction are merged with
// MergeStrict and the alternatives of a disjunction are wrapped under the disjunction marker.
// A disjunction with a single alternative compiles to that alternative.
func (c *Compiler) CompileTree(t Tree) (Fragment, error) {
	var alts []Fragment
	for _, atoms := range DNF(t) {
		f := Fragment{}
		for _, a := range atoms {
			key, entry, err := c.CompileLookup(a.Lookup())
			if err != nil {
				return nil, err
			}
			if err := MergeStrict(f, key, entry); err != nil {
				return nil, err
			}
		}
		alts = append(alts, f)
	}
	return disjunction(alts), nil
}

// CompileLookup resolves the lookup's path and translates its operator and value into the
// storage path and fragment entry of the lookup
func (c *Compiler) CompileLookup(l Lookup) (string, any, error) {
	path, err := c.resolver.Resolve(c.schema, l.Path)
	if err != nil {
		return "", nil, err
	}
	kind, err := ParseOperator(l.Operator)
	if err != nil {
		return "", nil, errors.Wrap(err, 0, "%s", l.Expr())
	}
	value, err := kind.Coerce(l.Value, path.Field, c.normalizer)
	if err != nil {
		return "", nil, errors.Wrap(err, 0, "%s", l.Expr())
	}
	return path.String(), kind.Entry(value), nil
}
