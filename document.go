package docq

import (
	"encoding/json"
	"sort"

	"github.com/autom8ter/docq/errors"
	"github.com/autom8ter/docq/util"
	flat2 "github.com/nqd/flat"
	"github.com/spf13/cast"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Document is a JSON document. Documents are the records returned by an Executor and
// the "full document instances" accepted as reference values in filters.
type Document struct {
	result gjson.Result
}

// UnmarshalJSON satisfies the json Unmarshaler interface
func (d *Document) UnmarshalJSON(bytes []byte) error {
	doc, err := NewDocumentFromBytes(bytes)
	if err != nil {
		return err
	}
	*d = *doc
	return nil
}

// MarshalJSON satisfies the json Marshaler interface
func (d *Document) MarshalJSON() ([]byte, error) {
	return d.Bytes(), nil
}

// NewDocument creates a new json document
func NewDocument() *Document {
	parsed := gjson.Parse("{}")
	return &Document{
		result: parsed,
	}
}

// NewDocumentFromBytes creates a new document from the given json bytes
func NewDocumentFromBytes(json []byte) (*Document, error) {
	if !gjson.ValidBytes(json) {
		return nil, errors.New(errors.Validation, "invalid json: %s", string(json))
	}
	d := &Document{
		result: gjson.ParseBytes(json),
	}
	if !d.Valid() {
		return nil, errors.New(errors.Validation, "invalid document")
	}
	return d, nil
}

// NewDocumentFrom creates a new document from the given value - the value must be json compatible
func NewDocumentFrom(value any) (*Document, error) {
	bits, err := json.Marshal(value)
	if err != nil {
		return nil, errors.New(errors.Validation, "failed to json encode value: %#v", value)
	}
	return NewDocumentFromBytes(bits)
}

// Valid returns whether the document is valid
func (d *Document) Valid() bool {
	return gjson.ValidBytes(d.Bytes()) && d.result.IsObject()
}

// String returns the document as a json string
func (d *Document) String() string {
	return d.result.Raw
}

// Bytes returns the document as json bytes
func (d *Document) Bytes() []byte {
	return []byte(d.result.Raw)
}

// Value returns the document as a map
func (d *Document) Value() map[string]any {
	return cast.ToStringMap(d.result.Value())
}

// Clone allocates a new document with identical values
func (d *Document) Clone() *Document {
	raw := d.result.Raw
	return &Document{result: gjson.Parse(raw)}
}

// Get gets a field on the document. Get has GJSON syntax support and supports dot notation
func (d *Document) Get(field string) any {
	return d.result.Get(field).Value()
}

// GetString gets a string field value on the document
func (d *Document) GetString(field string) string {
	return d.result.Get(field).String()
}

// Exists returns true if the field is present on the document
func (d *Document) Exists(field string) bool {
	return d.result.Get(field).Exists()
}

// Set sets a field on the document. Dot notation is supported.
func (d *Document) Set(field string, val any) error {
	return d.SetAll(map[string]any{
		field: val,
	})
}

func (d *Document) set(field string, val any) error {
	var (
		result string
		err    error
	)
	switch val := val.(type) {
	case gjson.Result:
		result, err = sjson.Set(d.result.Raw, field, val.Value())
	case []byte:
		result, err = sjson.SetRaw(d.result.Raw, field, string(val))
	default:
		result, err = sjson.Set(d.result.Raw, field, val)
	}
	if err != nil {
		return err
	}
	if !gjson.Valid(result) {
		return errors.New(errors.Validation, "invalid document")
	}
	d.result = gjson.Parse(result)
	return nil
}

// SetAll sets all fields on the document. Dot notation is supported.
// Fields are applied in sorted order so parents are written before their children.
func (d *Document) SetAll(values map[string]any) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := d.set(k, values[k]); err != nil {
			return err
		}
	}
	return nil
}

// Merge merges the document with the provided document. This is not an overwrite.
func (d *Document) Merge(with *Document) error {
	if !with.Valid() {
		return errors.New(errors.Validation, "invalid document")
	}
	flattened, err := flat2.Flatten(with.Value(), nil)
	if err != nil {
		return err
	}
	return d.SetAll(flattened)
}

// Del deletes a field from the document
func (d *Document) Del(field string) error {
	result, err := sjson.Delete(d.result.Raw, field)
	if err != nil {
		return err
	}
	d.result = gjson.Parse(result)
	return nil
}

// Documents is an array of documents
type Documents []*Document

// IDs returns the value stored under key for every document
func (documents Documents) IDs(key string) []string {
	ids := make([]string, 0, len(documents))
	for _, d := range documents {
		ids = append(ids, d.GetString(key))
	}
	return ids
}

// String returns the documents as a json array string
func (documents Documents) String() string {
	return util.JSONString(documents)
}
