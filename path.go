package docq

import (
	"strings"

	"github.com/autom8ter/docq/errors"
	"github.com/autom8ter/docq/util"
	"github.com/samber/lo"
)

// Separator separates path segments and operators in lookup expressions (friend__age__gte)
const Separator = "__"

// DefaultPKAlias is the root path segment that always addresses the primary key
const DefaultPKAlias = "pk"

// Segment is a single element of a resolved FieldPath
type Segment struct {
	// Name is the storage name of the segment
	Name string `json:"name"`
	// Field is the logical field name - empty for literal segments
	Field string `json:"field,omitempty"`
	// Literal is true for array positions and keys below a dynamic map
	Literal bool `json:"literal,omitempty"`
}

// FieldPath is a logical path resolved against a schema into storage names
type FieldPath struct {
	Segments []Segment `json:"segments"`
	// Field describes the value addressed by the path. It is nil below a dynamic map.
	Field *Field `json:"-"`
}

// String returns the canonical storage path
func (f FieldPath) String() string {
	return strings.Join(lo.Map(f.Segments, func(s Segment, _ int) string {
		return s.Name
	}), ".")
}

// Names returns the storage name of each segment
func (f FieldPath) Names() []string {
	return lo.Map(f.Segments, func(s Segment, _ int) string {
		return s.Name
	})
}

// SplitPath splits a logical path on the lookup separator and on dots
func SplitPath(path string) []string {
	parts := strings.Split(strings.ReplaceAll(path, Separator, "."), ".")
	return lo.Filter(parts, func(p string, _ int) bool {
		return p != ""
	})
}

// Resolver resolves logical field paths into storage paths
type Resolver struct {
	pkAlias string
}

// NewResolver creates a resolver using the given primary key alias
func NewResolver(pkAlias string) *Resolver {
	if pkAlias == "" {
		pkAlias = DefaultPKAlias
	}
	return &Resolver{pkAlias: pkAlias}
}

// Resolve resolves a logical path against the schema using the default primary key alias
func Resolve(schema Schema, path string) (FieldPath, error) {
	return NewResolver(DefaultPKAlias).Resolve(schema, path)
}

// Resolve resolves a logical path (friend__age, friend.age, tags__0, pk) against the schema.
// Named segments are replaced by their storage name, all-digit segments are kept as literal
// array positions and every segment below a dynamic map is kept verbatim.
func (r *Resolver) Resolve(schema Schema, path string) (FieldPath, error) {
	parts := SplitPath(path)
	if len(parts) == 0 {
		return FieldPath{}, errors.New(errors.UnknownField, "empty field path")
	}
	var (
		fp      = FieldPath{Segments: make([]Segment, 0, len(parts))}
		current = schema
		field   *Field
		dynamic bool
	)
	for i, part := range parts {
		switch {
		case dynamic:
			fp.Segments = append(fp.Segments, Segment{Name: part, Literal: true})
			field = nil
		case util.IsDigits(part):
			fp.Segments = append(fp.Segments, Segment{Name: part, Literal: true})
			if field != nil && field.Kind == KindList && field.Elem != nil {
				field = field.Elem
			}
		case i == 0 && part == r.pkAlias:
			if current == nil {
				return FieldPath{}, errors.New(errors.UnknownField, "unknown field: %s", path)
			}
			pk := current.PrimaryKey()
			fp.Segments = append(fp.Segments, Segment{Name: pk.DBName, Field: pk.Name})
			field = &pk
			current, dynamic = descend(pk)
		default:
			if current == nil {
				return FieldPath{}, errors.New(errors.UnknownField, "unknown field: %s (segment %q)", path, part)
			}
			f, ok := current.Field(part)
			if !ok {
				return FieldPath{}, errors.New(errors.UnknownField, "unknown field: %s (segment %q of %s)", path, part, current.Name())
			}
			fp.Segments = append(fp.Segments, Segment{Name: f.DBName, Field: f.Name})
			field = &f
			current, dynamic = descend(f)
		}
	}
	fp.Field = field
	return fp, nil
}

// descend returns the schema context below the field, or dynamic=true when keys below it are opaque
func descend(f Field) (Schema, bool) {
	switch f.Kind {
	case KindEmbedded, KindReference:
		return f.Schema, false
	case KindDynamic:
		return nil, true
	case KindList:
		if f.Elem == nil {
			return nil, true
		}
		return descend(*f.Elem)
	default:
		return nil, false
	}
}
