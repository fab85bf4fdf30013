package docq

import (
	"encoding/json"
	"reflect"
	"sort"

	"github.com/autom8ter/docq/errors"
	"github.com/autom8ter/docq/util"
	"github.com/samber/lo"
	"github.com/spf13/cast"
)

// OrKey is the disjunction marker. When present it is the only key of a fragment.
const OrKey = "$or"

// Fragment is a canonical query: storage path -> scalar (implicit equality) or OperatorMap,
// or a disjunction marker holding the alternative fragments.
type Fragment map[string]any

// OperatorMap maps operator tokens ($gt, $in, $not ...) to values
type OperatorMap map[string]any

// IsDisjunction returns true if the fragment is a disjunction of alternatives
func (f Fragment) IsDisjunction() bool {
	if len(f) != 1 {
		return false
	}
	_, ok := f[OrKey]
	return ok
}

// Alternatives returns the alternatives of a disjunction, or the fragment itself
func (f Fragment) Alternatives() []Fragment {
	if f.IsDisjunction() {
		switch alts := f[OrKey].(type) {
		case []Fragment:
			return alts
		case []any:
			return lo.FilterMap(alts, func(a any, _ int) (Fragment, bool) {
				return asFragment(a)
			})
		}
	}
	return []Fragment{f}
}

// Keys returns the fragment's keys in sorted order
func (f Fragment) Keys() []string {
	keys := lo.Keys(f)
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy of the fragment. Maps and slices are copied; other leaf values
// such as documents and compiled patterns are shared.
func (f Fragment) Clone() Fragment {
	if f == nil {
		return nil
	}
	return cloneValue(f).(Fragment)
}

// String returns the fragment as a json string
func (f Fragment) String() string {
	return util.JSONString(f)
}

// ParseFragment parses a fragment from yaml or json content. Operator maps are decoded as
// map[string]any and disjunctions as []any.
func ParseFragment(content []byte) (Fragment, error) {
	jsonContent, err := util.YAMLToJSON(content)
	if err != nil {
		return nil, errors.Wrap(err, errors.Validation, "failed to convert fragment to json")
	}
	f := Fragment{}
	if err := json.Unmarshal(jsonContent, &f); err != nil {
		return nil, errors.Wrap(err, errors.Validation, "invalid fragment")
	}
	return f, nil
}

func cloneValue(value any) any {
	switch v := value.(type) {
	case Fragment:
		c := make(Fragment, len(v))
		for k, e := range v {
			c[k] = cloneValue(e)
		}
		return c
	case OperatorMap:
		c := make(OperatorMap, len(v))
		for k, e := range v {
			c[k] = cloneValue(e)
		}
		return c
	case map[string]any:
		c := make(map[string]any, len(v))
		for k, e := range v {
			c[k] = cloneValue(e)
		}
		return c
	case []Fragment:
		return lo.Map(v, func(f Fragment, _ int) Fragment {
			return f.Clone()
		})
	case []any:
		return lo.Map(v, func(e any, _ int) any {
			return cloneValue(e)
		})
	}
	if rv := reflect.ValueOf(value); rv.Kind() == reflect.Slice && !rv.IsNil() {
		c := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		reflect.Copy(c, rv)
		return c.Interface()
	}
	return value
}

func asFragment(value any) (Fragment, bool) {
	switch v := value.(type) {
	case Fragment:
		return v, true
	case map[string]any:
		return Fragment(v), true
	}
	return nil, false
}

func asOperatorMap(value any) (OperatorMap, bool) {
	switch v := value.(type) {
	case OperatorMap:
		return v, true
	case map[string]any:
		return OperatorMap(v), true
	}
	return nil, false
}

// promote converts a scalar entry into an operator map so it can share a key with other operators
func promote(value any) OperatorMap {
	if r, ok := asRegex(value); ok {
		m := OperatorMap{"$regex": r.Pattern}
		if r.Options != "" {
			m["$options"] = r.Options
		}
		return m
	}
	return OperatorMap{"$eq": value}
}

// MergeFlat merges an entry into dst using the silent-drop rule of flat lookups: a key that is
// absent is written, a key holding a scalar keeps it and drops the entry, and a key holding an
// OperatorMap gains the entry's operators that it does not already hold (first wins).
// It returns false if nothing from the entry was kept.
func MergeFlat(dst Fragment, key string, entry any) bool {
	existing, ok := dst[key]
	if !ok {
		dst[key] = cloneValue(entry)
		return true
	}
	current, ok := asOperatorMap(existing)
	if !ok {
		return false
	}
	incoming, ok := asOperatorMap(entry)
	if !ok {
		incoming = promote(entry)
	}
	merged := cloneValue(current).(OperatorMap)
	var added bool
	for _, tok := range sortedTokens(incoming) {
		if _, exists := merged[tok]; exists {
			continue
		}
		merged[tok] = cloneValue(incoming[tok])
		added = true
	}
	dst[key] = merged
	return added
}

// MergeStrict merges an entry into dst using the hard-conflict rule of conjunctions: the same
// operator on the same key with a different value is an InvalidQuery error. Different operators
// on the same key accumulate in one OperatorMap, so an equality and a pattern on one key are
// both promoted ({$eq, $regex, $options}).
func MergeStrict(dst Fragment, key string, entry any) error {
	existing, ok := dst[key]
	if !ok {
		dst[key] = cloneValue(entry)
		return nil
	}
	current, currentIsMap := asOperatorMap(existing)
	incoming, incomingIsMap := asOperatorMap(entry)
	if !currentIsMap && !incomingIsMap {
		if valuesEqual(existing, entry) {
			return nil
		}
		if !isPattern(existing) && !isPattern(entry) {
			return conflict(key, "$eq", existing, entry)
		}
	}
	if !currentIsMap {
		current = promote(existing)
	}
	if !incomingIsMap {
		incoming = promote(entry)
	}
	merged := cloneValue(current).(OperatorMap)
	for _, tok := range sortedTokens(incoming) {
		value := incoming[tok]
		if prev, exists := merged[tok]; exists {
			if !valuesEqual(prev, value) {
				return conflict(key, tok, prev, value)
			}
			continue
		}
		merged[tok] = cloneValue(value)
	}
	dst[key] = merged
	return nil
}

func conflict(key, tok string, a, b any) error {
	return errors.New(errors.InvalidQuery, "conflicting constraints on %s (%s): %s and %s", key, tok, util.JSONString(a), util.JSONString(b))
}

func sortedTokens(m OperatorMap) []string {
	tokens := lo.Keys(m)
	sort.Strings(tokens)
	return tokens
}

// AndFragments returns the conjunction of a and b. Keys are merged with MergeStrict; if either
// side is a disjunction the conjunction is distributed over its alternatives (left-major order).
// An empty fragment is the identity.
func AndFragments(a, b Fragment) (Fragment, error) {
	switch {
	case len(a) == 0:
		return b.Clone(), nil
	case len(b) == 0:
		return a.Clone(), nil
	}
	if !a.IsDisjunction() && !b.IsDisjunction() {
		out := a.Clone()
		for _, key := range b.Keys() {
			if err := MergeStrict(out, key, b[key]); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
	var alts []Fragment
	for _, left := range a.Alternatives() {
		for _, right := range b.Alternatives() {
			f, err := AndFragments(left, right)
			if err != nil {
				return nil, err
			}
			alts = append(alts, f.Alternatives()...)
		}
	}
	return disjunction(alts), nil
}

// OrFragments returns the disjunction of the fragments. Alternatives are concatenated in order
// and never merged. Empty fragments are skipped.
func OrFragments(fragments ...Fragment) Fragment {
	var alts []Fragment
	for _, f := range fragments {
		if len(f) == 0 {
			continue
		}
		alts = append(alts, f.Clone().Alternatives()...)
	}
	return disjunction(alts)
}

func disjunction(alts []Fragment) Fragment {
	switch len(alts) {
	case 0:
		return Fragment{}
	case 1:
		return alts[0]
	default:
		return Fragment{OrKey: alts}
	}
}

// valuesEqual compares fragment values. Numbers are compared by value regardless of their go type.
func valuesEqual(a, b any) bool {
	if isNumber(a) && isNumber(b) {
		return cast.ToFloat64(a) == cast.ToFloat64(b)
	}
	if ra, ok := asRegex(a); ok {
		rb, ok := asRegex(b)
		return ok && ra == rb
	}
	if ma, ok := asOperatorMap(a); ok {
		mb, ok := asOperatorMap(b)
		if !ok || len(ma) != len(mb) {
			return false
		}
		for k, v := range ma {
			if w, ok := mb[k]; !ok || !valuesEqual(v, w) {
				return false
			}
		}
		return true
	}
	sa, aok := util.ToSlice(a)
	sb, bok := util.ToSlice(b)
	if aok && bok {
		if len(sa) != len(sb) {
			return false
		}
		for i := range sa {
			if !valuesEqual(sa[i], sb[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	}
	return false
}
