package docq

import (
	"sort"
	"strings"

	"github.com/autom8ter/docq/errors"
	"github.com/samber/lo"
)

// Triple is a single constraint of a fragment: a storage path, an operator suffix and a value
type Triple struct {
	Path     string `json:"path"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// Lookup returns the triple as a lookup on its storage path
func (t Triple) Lookup() Lookup {
	op := t.Operator
	if op == string(OpEq) {
		op = ""
	}
	return Lookup{Path: t.Path, Operator: op, Value: t.Value}
}

// Describe reverses a conjunctive fragment into its constraints, sorted by path then operator.
// Escaped literal patterns are described by the regex-family operator that builds them.
// Describe fails on disjunctions - use DescribeAlternatives.
func Describe(f Fragment) ([]Triple, error) {
	if f.IsDisjunction() {
		return nil, errors.New(errors.InvalidQuery, "cannot describe a disjunction as one set of constraints")
	}
	var triples []Triple
	for _, key := range f.Keys() {
		if key == WhereKey {
			return nil, errors.New(errors.InvalidQuery, "cannot describe a javascript condition")
		}
		described, err := describeEntry(key, f[key], false)
		if err != nil {
			return nil, err
		}
		triples = append(triples, described...)
	}
	sort.SliceStable(triples, func(i, j int) bool {
		if triples[i].Path != triples[j].Path {
			return triples[i].Path < triples[j].Path
		}
		return triples[i].Operator < triples[j].Operator
	})
	return triples, nil
}

// DescribeAlternatives describes every alternative of the fragment
func DescribeAlternatives(f Fragment) ([][]Triple, error) {
	var out [][]Triple
	for _, alt := range f.Alternatives() {
		triples, err := Describe(alt)
		if err != nil {
			return nil, err
		}
		out = append(out, triples)
	}
	return out, nil
}

func describeEntry(path string, entry any, not bool) ([]Triple, error) {
	if r, ok := asRegex(entry); ok {
		return []Triple{describeRegex(path, r, not)}, nil
	}
	m, ok := asOperatorMap(entry)
	if !ok {
		return []Triple{triple(path, OpEq, entry, not)}, nil
	}
	if pattern, ok := m["$regex"]; ok {
		r := Regex{Pattern: asString(pattern), Options: asString(m["$options"])}
		rest := OperatorMap{}
		for tok, v := range m {
			if tok != "$regex" && tok != "$options" {
				rest[tok] = v
			}
		}
		triples, err := describeEntry(path, rest, not)
		if err != nil {
			return nil, err
		}
		return append(triples, describeRegex(path, r, not)), nil
	}
	var triples []Triple
	for _, tok := range sortedTokens(m) {
		value := m[tok]
		switch tok {
		case "$not":
			if not {
				return nil, errors.New(errors.InvalidQuery, "%s: nested $not", path)
			}
			inner, err := describeEntry(path, value, true)
			if err != nil {
				return nil, err
			}
			triples = append(triples, inner...)
		case "$eq":
			triples = append(triples, triple(path, OpEq, value, not))
		case "$near":
			triples = append(triples, triple(path, OpNear, value, not))
		case "$within":
			shape, ok := asOperatorMap(value)
			switch {
			case ok && len(shape) == 1 && shape["$center"] != nil:
				triples = append(triples, triple(path, OpWithinDistance, shape["$center"], not))
			case ok && len(shape) == 1 && shape["$box"] != nil:
				triples = append(triples, triple(path, OpWithinBox, shape["$box"], not))
			default:
				return nil, errors.New(errors.InvalidQuery, "%s: unsupported $within shape", path)
			}
		default:
			op := Operator(strings.TrimPrefix(tok, "$"))
			if !strings.HasPrefix(tok, "$") || !lo.Contains(operators, op) || op.token() != tok {
				return nil, errors.New(errors.InvalidQuery, "%s: unsupported operator token %s", path, tok)
			}
			triples = append(triples, triple(path, op, value, not))
		}
	}
	return triples, nil
}

func describeRegex(path string, r Regex, not bool) Triple {
	if op, raw, ok := literalRegex(r); ok {
		return triple(path, op, raw, not)
	}
	if r.Options == "" {
		return triple(path, OpRegex, r.Pattern, not)
	}
	return triple(path, OpRegex, r, not)
}

func triple(path string, op Operator, value any, not bool) Triple {
	kind := OperatorKind{Op: op, Not: not}
	return Triple{Path: path, Operator: kind.String(), Value: value}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
