package docq

import (
	"fmt"
	"strings"

	"github.com/autom8ter/docq/errors"
	"github.com/autom8ter/docq/util"
	"github.com/huandu/xstrings"
	"github.com/samber/lo"
	"github.com/tidwall/gjson"
	"github.com/xeipuuv/gojsonschema"
)

// FieldKind is the declared kind of a schema field
type FieldKind int

const (
	// KindScalar is a leaf value (string, number, bool, date)
	KindScalar FieldKind = iota
	// KindList is a list whose element is described by Field.Elem
	KindList
	// KindEmbedded is an embedded document described by Field.Schema
	KindEmbedded
	// KindReference is a reference to a document of another collection (Field.Schema)
	KindReference
	// KindDynamic is an open-ended map - keys below it are not resolved
	KindDynamic
)

func (k FieldKind) String() string {
	switch k {
	case KindList:
		return "list"
	case KindEmbedded:
		return "embedded"
	case KindReference:
		return "reference"
	case KindDynamic:
		return "dynamic"
	default:
		return "scalar"
	}
}

// Field describes a single schema field
type Field struct {
	// Name is the logical name of the field
	Name string `json:"name"`
	// DBName is the storage name of the field
	DBName string `json:"db_name"`
	// Kind is the declared kind of the field
	Kind FieldKind `json:"kind"`
	// Type is the json schema type of the field
	Type string `json:"type,omitempty"`
	// Primary is true if the field is the schema's primary key
	Primary bool `json:"primary,omitempty"`
	// Elem is the element of a list field
	Elem *Field `json:"elem,omitempty"`
	// Schema is the document schema of an embedded or reference field
	Schema Schema `json:"-"`
}

// Schema provides field descriptors for a document type
type Schema interface {
	// Name is the collection (or embedded document) name
	Name() string
	// Field returns the field with the given logical name
	Field(name string) (Field, bool)
	// Fields returns all fields in declaration order
	Fields() []Field
	// PrimaryKey returns the primary key field. Schemas that declare none have an implicit 'id' field.
	PrimaryKey() Field
}

// Naming is the strategy used to derive storage names for fields without an explicit x-db-field
type Naming string

const (
	NamingAsIs  Naming = "as-is"
	NamingSnake Naming = "snake"
	NamingCamel Naming = "camel"
)

func (n Naming) apply(name string) string {
	switch n {
	case NamingSnake:
		return xstrings.ToSnakeCase(name)
	case NamingCamel:
		return xstrings.FirstRuneToLower(xstrings.ToCamelCase(name))
	default:
		return name
	}
}

const (
	// DefaultPKStorageName is the storage name of every primary key unless configured otherwise
	DefaultPKStorageName = "_id"
	implicitPKName       = "id"
)

type schemaPath string

const (
	collectionPath schemaPath = "x-collection"
	dbFieldPath    schemaPath = "x-db-field"
	primaryPath    schemaPath = "x-primary"
	foreignPath    schemaPath = "x-foreign"
	dynamicPath    schemaPath = "x-dynamic"
)

// SchemaOption configures how schemas are parsed
type SchemaOption func(o *schemaOptions)

type schemaOptions struct {
	naming        Naming
	pkStorageName string
	catalog       *Catalog
}

// WithNaming sets the storage naming strategy for fields without an explicit x-db-field
func WithNaming(naming Naming) SchemaOption {
	return func(o *schemaOptions) {
		o.naming = naming
	}
}

// WithPKStorageName sets the storage name of primary keys
func WithPKStorageName(name string) SchemaOption {
	return func(o *schemaOptions) {
		o.pkStorageName = name
	}
}

func withCatalog(c *Catalog) SchemaOption {
	return func(o *schemaOptions) {
		o.catalog = c
	}
}

func newSchemaOptions(opts []SchemaOption) *schemaOptions {
	o := &schemaOptions{
		naming:        NamingAsIs,
		pkStorageName: DefaultPKStorageName,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type jsonSchema struct {
	name      string
	raw       gjson.Result
	fields    []Field
	index     map[string]int
	primary   Field
	validator *gojsonschema.Schema
}

// NewSchema parses a collection schema from JSON Schema content (yaml or json).
//
// Fields are read from 'properties'. The x-db-field extension sets a field's storage name,
// x-primary marks the primary key, x-foreign: {collection: name} declares a reference and
// x-dynamic (or an object without properties) declares an open-ended map.
func NewSchema(content []byte, opts ...SchemaOption) (Schema, error) {
	return newJSONSchema(content, newSchemaOptions(opts))
}

func newJSONSchema(content []byte, o *schemaOptions) (*jsonSchema, error) {
	if len(content) == 0 {
		return nil, errors.New(errors.Validation, "empty schema content")
	}
	jsonContent, err := util.YAMLToJSON(content)
	if err != nil {
		return nil, errors.Wrap(err, errors.Validation, "failed to convert schema to json")
	}
	validator, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(jsonContent))
	if err != nil {
		return nil, errors.Wrap(err, errors.Validation, "failed to compile json schema")
	}
	r := gjson.ParseBytes(jsonContent)
	if r.Get("type").String() != "object" {
		return nil, errors.New(errors.Validation, "'type' must be 'object'")
	}
	name := r.Get(string(collectionPath)).String()
	if name == "" {
		name = r.Get("title").String()
	}
	if name == "" {
		return nil, errors.New(errors.Validation, "missing property: %s", collectionPath)
	}
	s, err := parseObject(name, r, o, true)
	if err != nil {
		return nil, errors.Wrap(err, 0, "%s: invalid schema", name)
	}
	s.raw = r
	s.validator = validator
	return s, nil
}

func parseObject(name string, obj gjson.Result, o *schemaOptions, root bool) (*jsonSchema, error) {
	s := &jsonSchema{
		name:  name,
		index: map[string]int{},
	}
	var err error
	obj.Get("properties").ForEach(func(key, value gjson.Result) bool {
		var f Field
		f, err = parseField(key.String(), value, o)
		if err != nil {
			return false
		}
		if f.Primary {
			if !root {
				err = errors.New(errors.Validation, "%s: only collections may declare a primary key", f.Name)
				return false
			}
			if s.primary.Primary {
				err = errors.New(errors.Validation, "duplicate primary key: %s, %s", s.primary.Name, f.Name)
				return false
			}
			f.DBName = o.pkStorageName
			s.primary = f
		}
		s.index[f.Name] = len(s.fields)
		s.fields = append(s.fields, f)
		return true
	})
	if err != nil {
		return nil, err
	}
	if !s.primary.Primary {
		s.primary = Field{
			Name:    implicitPKName,
			DBName:  o.pkStorageName,
			Kind:    KindScalar,
			Type:    "string",
			Primary: true,
		}
	}
	if dup, ok := duplicateDBName(s.fields); ok {
		return nil, errors.New(errors.Validation, "duplicate storage name: %s", dup)
	}
	return s, nil
}

func duplicateDBName(fields []Field) (string, bool) {
	dups := lo.FindDuplicates(lo.Map(fields, func(f Field, _ int) string {
		return f.DBName
	}))
	if len(dups) > 0 {
		return dups[0], true
	}
	return "", false
}

func parseField(name string, prop gjson.Result, o *schemaOptions) (Field, error) {
	f := Field{
		Name:    name,
		DBName:  prop.Get(string(dbFieldPath)).String(),
		Type:    prop.Get("type").String(),
		Primary: prop.Get(string(primaryPath)).Bool(),
	}
	if f.DBName == "" {
		f.DBName = o.naming.apply(name)
	}
	switch {
	case prop.Get(string(foreignPath)).Exists():
		collection := prop.Get(fmt.Sprintf("%s.collection", foreignPath)).String()
		if collection == "" {
			return Field{}, errors.New(errors.Validation, "%s: %s.collection is required", name, foreignPath)
		}
		f.Kind = KindReference
		f.Schema = &refSchema{name: collection, catalog: o.catalog, pkStorageName: o.pkStorageName}
	case f.Type == "array":
		f.Kind = KindList
		items := prop.Get("items")
		elem := Field{Name: name, DBName: f.DBName, Kind: KindDynamic}
		if items.Exists() {
			var err error
			elem, err = parseField(name, items, o)
			if err != nil {
				return Field{}, err
			}
			elem.DBName = f.DBName
			elem.Primary = false
		}
		f.Elem = &elem
	case f.Type == "object":
		if prop.Get(string(dynamicPath)).Bool() || !prop.Get("properties").Exists() {
			f.Kind = KindDynamic
			break
		}
		embedded, err := parseObject(embeddedName(name, prop), prop, o, false)
		if err != nil {
			return Field{}, err
		}
		f.Kind = KindEmbedded
		f.Schema = embedded
	default:
		f.Kind = KindScalar
	}
	return f, nil
}

func embeddedName(name string, prop gjson.Result) string {
	if title := prop.Get("title").String(); title != "" {
		return title
	}
	return name
}

func (s *jsonSchema) Name() string {
	return s.name
}

func (s *jsonSchema) Field(name string) (Field, bool) {
	if i, ok := s.index[name]; ok {
		return s.fields[i], true
	}
	if name == s.primary.Name {
		return s.primary, true
	}
	return Field{}, false
}

func (s *jsonSchema) Fields() []Field {
	return append([]Field{}, s.fields...)
}

func (s *jsonSchema) PrimaryKey() Field {
	return s.primary
}

// Validate validates a document against the collection's json schema
func (s *jsonSchema) Validate(doc *Document) error {
	if s.validator == nil {
		return nil
	}
	result, err := s.validator.Validate(gojsonschema.NewBytesLoader(doc.Bytes()))
	if err != nil {
		return errors.Wrap(err, errors.Validation, "%s: failed to validate document", s.name)
	}
	if !result.Valid() {
		msgs := lo.Map(result.Errors(), func(e gojsonschema.ResultError, _ int) string {
			return e.String()
		})
		return errors.New(errors.Validation, "%s: invalid document - %s", s.name, strings.Join(msgs, ", "))
	}
	return nil
}

// MarshalJSON returns the schema's json content
func (s *jsonSchema) MarshalJSON() ([]byte, error) {
	return []byte(s.raw.Raw), nil
}

// Validator is implemented by schemas that can validate documents
type Validator interface {
	Validate(doc *Document) error
}

// refSchema is the target of a reference field. It is resolved through the catalog on every
// call so schemas may reference collections registered after them.
type refSchema struct {
	name          string
	catalog       *Catalog
	pkStorageName string
}

func (r *refSchema) target() (Schema, bool) {
	if r.catalog == nil {
		return nil, false
	}
	return r.catalog.Get(r.name)
}

func (r *refSchema) Name() string {
	return r.name
}

func (r *refSchema) Field(name string) (Field, bool) {
	if s, ok := r.target(); ok {
		return s.Field(name)
	}
	if name == implicitPKName {
		return r.PrimaryKey(), true
	}
	return Field{}, false
}

func (r *refSchema) Fields() []Field {
	if s, ok := r.target(); ok {
		return s.Fields()
	}
	return nil
}

func (r *refSchema) PrimaryKey() Field {
	if s, ok := r.target(); ok {
		return s.PrimaryKey()
	}
	return Field{
		Name:    implicitPKName,
		DBName:  r.pkStorageName,
		Kind:    KindScalar,
		Type:    "string",
		Primary: true,
	}
}
