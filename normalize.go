package docq

import (
	"github.com/autom8ter/docq/errors"
)

// Ref is the canonical descriptor of a reference to a document of another collection
type Ref struct {
	Collection string `json:"$ref"`
	ID         any    `json:"$id"`
}

// Referencer is implemented by values that know their own reference descriptor
type Referencer interface {
	Ref() (Ref, error)
}

// ValueNormalizer converts raw lookup values into the form used in query fragments
type ValueNormalizer interface {
	// Normalize returns the canonical value for the field. field may be nil when the path
	// addresses a key below a dynamic map.
	Normalize(field *Field, value any) (any, error)
}

// ValueNormalizerFunc is a function that implements ValueNormalizer
type ValueNormalizerFunc func(field *Field, value any) (any, error)

// Normalize calls the function
func (f ValueNormalizerFunc) Normalize(field *Field, value any) (any, error) {
	return f(field, value)
}

// RefNormalizer replaces full documents supplied for reference fields with their Ref.
// Every other value is returned unchanged.
type RefNormalizer struct{}

// Normalize implements ValueNormalizer
func (RefNormalizer) Normalize(field *Field, value any) (any, error) {
	if field == nil {
		return value, nil
	}
	if field.Kind == KindList && field.Elem != nil {
		field = field.Elem
	}
	if field.Kind != KindReference || field.Schema == nil {
		return value, nil
	}
	switch v := value.(type) {
	case Referencer:
		return v.Ref()
	case *Document:
		return documentRef(field.Schema, v)
	case Document:
		return documentRef(field.Schema, &v)
	default:
		return value, nil
	}
}

func documentRef(schema Schema, doc *Document) (Ref, error) {
	pk := schema.PrimaryKey()
	for _, key := range []string{pk.DBName, pk.Name} {
		if doc.Exists(key) {
			return Ref{Collection: schema.Name(), ID: doc.Get(key)}, nil
		}
	}
	return Ref{}, errors.New(errors.InvalidQuery, "%s: referenced document has no primary key (%s)", schema.Name(), pk.Name)
}
