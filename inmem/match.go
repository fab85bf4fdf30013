package inmem

import (
	"encoding/json"
	"math"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/autom8ter/docq"
	"github.com/autom8ter/docq/errors"
	"github.com/autom8ter/docq/util"
	"github.com/samber/lo"
	"github.com/spf13/cast"
	"github.com/tidwall/gjson"
)

// Match reports whether the document satisfies the fragment. Paths that cross a list without an
// index match if any element of the list matches.
func Match(filter docq.Fragment, doc *docq.Document) (bool, error) {
	return matchFragment(filter, doc.Value())
}

func matchFragment(filter docq.Fragment, root map[string]any) (bool, error) {
	for _, key := range filter.Keys() {
		switch key {
		case docq.OrKey:
			ok, err := matchAny(filter.Alternatives(), root)
			if err != nil || !ok {
				return false, err
			}
			continue
		case docq.WhereKey:
			ok, err := matchWhere(filter[key], root)
			if err != nil || !ok {
				return false, err
			}
			continue
		}
		ok, err := matchEntry(lookup(root, strings.Split(key, ".")), filter[key])
		if err != nil {
			return false, errors.Wrap(err, 0, "%s", key)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func matchAny(alternatives []docq.Fragment, root map[string]any) (bool, error) {
	for _, alt := range alternatives {
		ok, err := matchFragment(alt, root)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// lookup returns the values addressed by the path segments
func lookup(root any, segments []string) []any {
	current := []any{root}
	for _, seg := range segments {
		var next []any
		for _, v := range current {
			next = append(next, step(v, seg)...)
		}
		current = next
	}
	return current
}

func step(value any, seg string) []any {
	switch v := value.(type) {
	case map[string]any:
		if e, ok := v[seg]; ok {
			return []any{e}
		}
	case []any:
		if util.IsDigits(seg) {
			i := cast.ToInt(seg)
			if i < len(v) {
				return []any{v[i]}
			}
			return nil
		}
		var out []any
		for _, e := range v {
			out = append(out, step(e, seg)...)
		}
		return out
	}
	return nil
}

// candidates returns the values plus the elements of list values
func candidates(values []any) []any {
	var out []any
	for _, v := range values {
		out = append(out, v)
		if list, ok := v.([]any); ok {
			out = append(out, list...)
		}
	}
	return out
}

func matchEntry(values []any, entry any) (bool, error) {
	if ops, ok := operators(entry); ok {
		return matchOperators(values, ops)
	}
	return matchEq(values, entry)
}

// operators returns the entry as an operator map if every key is an operator token
func operators(entry any) (map[string]any, bool) {
	var m map[string]any
	switch e := entry.(type) {
	case docq.OperatorMap:
		return e, true
	case map[string]any:
		m = e
	default:
		return nil, false
	}
	if len(m) == 0 {
		return nil, false
	}
	if _, ok := m["$ref"]; ok {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func matchOperators(values []any, ops map[string]any) (bool, error) {
	tokens := lo.Keys(ops)
	sort.Strings(tokens)
	for _, tok := range tokens {
		want := ops[tok]
		var (
			ok  bool
			err error
		)
		switch tok {
		case "$eq":
			ok, err = matchEq(values, want)
		case "$ne":
			ok, err = matchEq(values, want)
			ok = !ok
		case "$gt", "$gte", "$lt", "$lte":
			ok = matchCompare(values, tok, normalize(want))
		case "$in":
			ok, err = matchIn(values, want)
		case "$nin":
			ok, err = matchIn(values, want)
			ok = !ok
		case "$all":
			ok, err = matchAll(values, want)
		case "$size":
			ok = matchSize(values, want)
		case "$exists":
			ok = (len(values) > 0) == cast.ToBool(want)
		case "$mod":
			ok, err = matchMod(values, want)
		case "$not":
			ok, err = matchEntry(values, want)
			ok = !ok
		case "$regex":
			var r *regexp.Regexp
			r, err = (docq.Regex{Pattern: cast.ToString(want), Options: cast.ToString(ops["$options"])}).Compile()
			if err == nil {
				ok = matchPattern(values, r)
			}
		case "$options":
			continue
		case "$near", "$within":
			return false, errors.New(errors.InvalidQuery, "geospatial operator %s is not supported by the in-memory executor", tok)
		default:
			return false, errors.New(errors.InvalidQuery, "unsupported operator: %s", tok)
		}
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func matchEq(values []any, want any) (bool, error) {
	r, isPattern, err := pattern(want)
	if err != nil {
		return false, err
	}
	if isPattern {
		return matchPattern(values, r), nil
	}
	want = normalize(want)
	if want == nil && len(values) == 0 {
		return true, nil
	}
	for _, c := range candidates(values) {
		if reflect.DeepEqual(c, want) {
			return true, nil
		}
	}
	return false, nil
}

// pattern returns the value as a compiled regular expression if it is a pattern value
func pattern(value any) (*regexp.Regexp, bool, error) {
	switch v := value.(type) {
	case docq.Regex:
		r, err := v.Compile()
		return r, true, err
	case *docq.Regex:
		r, err := v.Compile()
		return r, true, err
	case *regexp.Regexp:
		return v, true, nil
	case map[string]any:
		if p, ok := v["$regex"]; ok {
			r, err := (docq.Regex{Pattern: cast.ToString(p), Options: cast.ToString(v["$options"])}).Compile()
			return r, true, err
		}
	}
	return nil, false, nil
}

func matchPattern(values []any, r *regexp.Regexp) bool {
	for _, c := range candidates(values) {
		if s, ok := c.(string); ok && r.MatchString(s) {
			return true
		}
	}
	return false
}

func matchCompare(values []any, tok string, want any) bool {
	for _, c := range candidates(values) {
		cmp, ok := compare(c, want)
		if !ok {
			continue
		}
		switch {
		case tok == "$gt" && cmp > 0,
			tok == "$gte" && cmp >= 0,
			tok == "$lt" && cmp < 0,
			tok == "$lte" && cmp <= 0:
			return true
		}
	}
	return false
}

func matchIn(values []any, want any) (bool, error) {
	list, ok := util.ToSlice(want)
	if !ok {
		return false, errors.New(errors.InvalidQuery, "expected a list, got %T", want)
	}
	for _, w := range list {
		ok, err := matchEq(values, w)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

func matchAll(values []any, want any) (bool, error) {
	list, ok := util.ToSlice(want)
	if !ok {
		return false, errors.New(errors.InvalidQuery, "expected a list, got %T", want)
	}
	if len(list) == 0 {
		return false, nil
	}
	for _, w := range list {
		ok, err := matchEq(values, w)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchSize(values []any, want any) bool {
	size := cast.ToInt(want)
	for _, v := range values {
		if list, ok := v.([]any); ok && len(list) == size {
			return true
		}
	}
	return false
}

func matchMod(values []any, want any) (bool, error) {
	args, ok := util.ToSlice(want)
	if !ok || len(args) != 2 {
		return false, errors.New(errors.InvalidQuery, "expected [divisor, remainder], got %v", want)
	}
	divisor, remainder := cast.ToFloat64(args[0]), cast.ToFloat64(args[1])
	if divisor == 0 {
		return false, errors.New(errors.InvalidQuery, "divisor must not be zero")
	}
	for _, c := range candidates(values) {
		if f, ok := c.(float64); ok && math.Mod(math.Trunc(f), divisor) == remainder {
			return true, nil
		}
	}
	return false, nil
}

// normalize converts a query value into the form of stored document values (json numbers are
// float64, structs are maps)
func normalize(value any) any {
	switch value.(type) {
	case nil, string, bool, float64:
		return value
	}
	bits, err := json.Marshal(value)
	if err != nil {
		return value
	}
	return gjson.ParseBytes(bits).Value()
}

// compare compares two values of the same json type
func compare(a, b any) (int, bool) {
	switch a := a.(type) {
	case float64:
		f, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case a < f:
			return -1, true
		case a > f:
			return 1, true
		}
		return 0, true
	case string:
		s, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(a, s), true
	case bool:
		v, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case a == v:
			return 0, true
		case v:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}
