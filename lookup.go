package docq

import (
	"strings"

	"github.com/autom8ter/docq/errors"
	"github.com/autom8ter/docq/util"
	"github.com/tidwall/gjson"
)

// Lookup is a keyword-style field lookup: a logical path, an operator suffix and a raw value
type Lookup struct {
	Path     string `json:"path"`
	Operator string `json:"operator,omitempty"`
	Value    any    `json:"value"`
}

// L creates a lookup from an expression such as friend__age__gte or name__not__icontains
func L(expr string, value any) Lookup {
	path, op := ParseLookup(expr)
	return Lookup{Path: path, Operator: op, Value: value}
}

// Expr returns the lookup expression (path__operator)
func (l Lookup) Expr() string {
	if l.Operator == "" {
		return l.Path
	}
	return l.Path + Separator + l.Operator
}

// ParseLookup splits a lookup expression into its path and operator suffix. The final token is
// the operator if it is a known operator suffix, and a 'not' token before it composes with it.
// Everything before the operator is the path. An expression that would leave an empty path is
// all path.
func ParseLookup(expr string) (path string, operator string) {
	tokens := strings.Split(expr, Separator)
	n := len(tokens)
	if n < 2 || !IsOperator(tokens[n-1]) {
		return expr, ""
	}
	operator = tokens[n-1]
	tokens = tokens[:n-1]
	if operator != notSuffix && len(tokens) > 1 && tokens[len(tokens)-1] == notSuffix {
		operator = notSuffix + Separator + operator
		tokens = tokens[:len(tokens)-1]
	}
	return strings.Join(tokens, Separator), operator
}

// Filter is a filter document: flat lookups plus predicate trees
type Filter struct {
	Lookups []Lookup
	Trees   []Tree
}

// ParseFilter parses a filter document (yaml or json) of the form
//
//	lookups:
//	  - age__gt: 20
//	  - name__icontains: smith
//	where:
//	  - or:
//	      - q: {age__lt: 3}
//	      - q: {age__gt: 7}
//
// Lookups keep their document order. A 'where' node is one of and/or (a list of nodes) or
// q (an object of lookups that must all match).
func ParseFilter(content []byte) (*Filter, error) {
	jsonContent, err := util.YAMLToJSON(content)
	if err != nil {
		return nil, errors.Wrap(err, errors.Validation, "failed to convert filter to json")
	}
	if !gjson.ValidBytes(jsonContent) {
		return nil, errors.New(errors.Validation, "invalid filter document")
	}
	r := gjson.ParseBytes(jsonContent)
	if !r.IsObject() {
		return nil, errors.New(errors.Validation, "filter must be an object")
	}
	f := &Filter{}
	var perr error
	r.Get("lookups").ForEach(func(_, value gjson.Result) bool {
		if !value.IsObject() {
			perr = errors.New(errors.Validation, "lookups: expected an object, got %s", value.Raw)
			return false
		}
		f.Lookups = append(f.Lookups, parseLookups(value)...)
		return true
	})
	if perr != nil {
		return nil, perr
	}
	r.Get("where").ForEach(func(_, value gjson.Result) bool {
		var t Tree
		t, perr = parseTree(value)
		if perr != nil {
			return false
		}
		f.Trees = append(f.Trees, t)
		return true
	})
	if perr != nil {
		return nil, perr
	}
	return f, nil
}

func parseLookups(obj gjson.Result) []Lookup {
	var lookups []Lookup
	obj.ForEach(func(key, value gjson.Result) bool {
		lookups = append(lookups, L(key.String(), value.Value()))
		return true
	})
	return lookups
}

func parseTree(node gjson.Result) (Tree, error) {
	if !node.IsObject() {
		return nil, errors.New(errors.Validation, "where: expected an object, got %s", node.Raw)
	}
	var (
		trees []Tree
		err   error
		kind  string
		count int
	)
	node.ForEach(func(key, value gjson.Result) bool {
		count++
		kind = key.String()
		switch kind {
		case "q":
			if !value.IsObject() {
				err = errors.New(errors.Validation, "where: q expects an object of lookups")
				return false
			}
			trees = append(trees, Q(parseLookups(value)...))
		case "and", "or":
			if !value.IsArray() {
				err = errors.New(errors.Validation, "where: %s expects a list", kind)
				return false
			}
			value.ForEach(func(_, child gjson.Result) bool {
				var t Tree
				t, err = parseTree(child)
				if err != nil {
					return false
				}
				trees = append(trees, t)
				return true
			})
			if err != nil {
				return false
			}
		default:
			err = errors.New(errors.Validation, "where: unsupported node %q (expected and, or, q)", kind)
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if count != 1 {
		return nil, errors.New(errors.Validation, "where: a node must have exactly one of and, or, q")
	}
	if kind == "or" {
		return Or(trees...), nil
	}
	return And(trees...), nil
}
