package util

import (
	"encoding/json"
	"reflect"

	"github.com/autom8ter/docq/errors"
	"github.com/ghodss/yaml"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cast"
)

var validate = validator.New()

func ValidateStruct(val any) error {
	return errors.Wrap(validate.Struct(val), errors.Validation, "")
}

// Decode decodes the input into the output based on json tags
func Decode(input any, output any) error {
	config := &mapstructure.DecoderConfig{
		WeaklyTypedInput:     true,
		Result:               output,
		TagName:              "json",
		IgnoreUntaggedFields: true,
	}
	decoder, err := mapstructure.NewDecoder(config)
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

// JSONString returns a json string of the input
func JSONString(input any) string {
	bits, _ := json.Marshal(input)
	return string(bits)
}

func YAMLToJSON(yamlContent []byte) ([]byte, error) {
	if isJSON(string(yamlContent)) {
		return yamlContent, nil
	}
	return yaml.YAMLToJSON(yamlContent)
}

func JSONToYAML(jsonContent []byte) ([]byte, error) {
	return yaml.JSONToYAML(jsonContent)
}

func isJSON(str string) bool {
	var js json.RawMessage
	return json.Unmarshal([]byte(str), &js) == nil
}

// ToSlice converts any slice or array into a []any. Strings and byte slices are not sequences.
func ToSlice(value any) ([]any, bool) {
	switch value.(type) {
	case nil, string, []byte:
		return nil, false
	}
	if s, err := cast.ToSliceE(value); err == nil {
		return s, true
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = rv.Index(i).Interface()
		}
		return out, true
	default:
		return nil, false
	}
}

// IsDigits returns true if the string is a non-empty run of ascii digits
func IsDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
