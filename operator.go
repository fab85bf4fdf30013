package docq

import (
	"regexp"
	"strings"

	"github.com/autom8ter/docq/errors"
	"github.com/autom8ter/docq/util"
	"github.com/samber/lo"
	"github.com/spf13/cast"
)

// Operator is a lookup operator suffix
type Operator string

const (
	// OpEq matches on equality. It is the operator of lookups without a suffix.
	OpEq  Operator = "eq"
	OpNe  Operator = "ne"
	OpGt  Operator = "gt"
	OpGte Operator = "gte"
	OpLt  Operator = "lt"
	OpLte Operator = "lte"
	// OpIn matches if the field equals any element of the value
	OpIn  Operator = "in"
	OpNin Operator = "nin"
	// OpMod matches if field % value[0] == value[1]
	OpMod Operator = "mod"
	// OpAll matches list fields holding every element of the value
	OpAll    Operator = "all"
	OpSize   Operator = "size"
	OpExists Operator = "exists"

	OpContains    Operator = "contains"
	OpIContains   Operator = "icontains"
	OpStartsWith  Operator = "startswith"
	OpIStartsWith Operator = "istartswith"
	OpEndsWith    Operator = "endswith"
	OpIEndsWith   Operator = "iendswith"
	// OpExact is a literal equality, not a regex
	OpExact  Operator = "exact"
	OpIExact Operator = "iexact"
	// OpRegex uses the value as a raw (unescaped) pattern
	OpRegex Operator = "regex"

	// geospatial operators are passed through to the store
	OpNear           Operator = "near"
	OpWithinDistance Operator = "within_distance"
	OpWithinBox      Operator = "within_box"

	notSuffix = "not"
)

var operators = []Operator{
	OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn, OpNin, OpMod, OpAll, OpSize, OpExists,
	OpContains, OpIContains, OpStartsWith, OpIStartsWith, OpEndsWith, OpIEndsWith, OpExact, OpIExact, OpRegex,
	OpNear, OpWithinDistance, OpWithinBox,
}

// Operators returns every supported operator suffix
func Operators() []Operator {
	return append([]Operator{}, operators...)
}

// IsOperator returns true if the token is an operator suffix (including 'not')
func IsOperator(token string) bool {
	return token == notSuffix || lo.Contains(operators, Operator(token))
}

func (o Operator) isRegexFamily() bool {
	switch o {
	case OpContains, OpIContains, OpStartsWith, OpIStartsWith, OpEndsWith, OpIEndsWith, OpIExact:
		return true
	}
	return false
}

func (o Operator) isSequence() bool {
	switch o {
	case OpIn, OpNin, OpAll:
		return true
	}
	return false
}

// token returns the canonical operator token, empty for operators rendered as a scalar
func (o Operator) token() string {
	switch o {
	case OpEq, OpExact, OpRegex:
		return ""
	case OpNear:
		return "$near"
	case OpWithinDistance, OpWithinBox:
		return "$within"
	}
	if o.isRegexFamily() {
		return ""
	}
	return "$" + string(o)
}

// OperatorKind is an operator, optionally negated
type OperatorKind struct {
	Op  Operator `json:"op"`
	Not bool     `json:"not,omitempty"`
}

// String returns the lookup suffix of the kind (gt, not__gt)
func (k OperatorKind) String() string {
	if k.Not {
		return notSuffix + Separator + string(k.Op)
	}
	return string(k.Op)
}

// ParseOperator parses a lookup suffix. An empty suffix is eq, 'not' alone is not__eq.
func ParseOperator(suffix string) (OperatorKind, error) {
	if suffix == "" {
		return OperatorKind{Op: OpEq}, nil
	}
	parts := strings.Split(suffix, Separator)
	kind := OperatorKind{}
	if parts[0] == notSuffix {
		kind.Not = true
		parts = parts[1:]
	}
	switch len(parts) {
	case 0:
		kind.Op = OpEq
		return kind, nil
	case 1:
		if lo.Contains(operators, Operator(parts[0])) {
			kind.Op = Operator(parts[0])
			return kind, nil
		}
	}
	return OperatorKind{}, errors.New(errors.InvalidQuery, "unsupported operator: %s", suffix)
}

// Translate maps an operator suffix and raw value to an operator kind and a canonical value.
// Regex-family operators build an escaped pattern, values of reference fields are normalized
// with the default RefNormalizer, and values that are already patterns pass through untouched.
func Translate(suffix string, value any, field *Field) (OperatorKind, any, error) {
	kind, err := ParseOperator(suffix)
	if err != nil {
		return OperatorKind{}, nil, err
	}
	value, err = kind.Coerce(value, field, RefNormalizer{})
	if err != nil {
		return OperatorKind{}, nil, err
	}
	return kind, value, nil
}

// Coerce validates the raw value against the operator and converts it into its canonical form.
// The canonical value never shares slices or maps with the raw value.
func (k OperatorKind) Coerce(value any, field *Field, normalizer ValueNormalizer) (any, error) {
	if isPattern(value) {
		return value, nil
	}
	if normalizer == nil {
		normalizer = RefNormalizer{}
	}
	switch op := k.Op; {
	case op.isSequence():
		values, ok := util.ToSlice(value)
		if !ok {
			return nil, errors.New(errors.InvalidQuery, "%s: expected a list value, got %T", op, value)
		}
		out := make([]any, 0, len(values))
		for _, v := range values {
			n, err := normalizer.Normalize(field, v)
			if err != nil {
				return nil, err
			}
			out = append(out, cloneValue(n))
		}
		return out, nil
	case op == OpMod:
		values, ok := util.ToSlice(value)
		if !ok || len(values) != 2 {
			return nil, errors.New(errors.InvalidQuery, "%s: expected [divisor, remainder], got %v", op, value)
		}
		for _, v := range values {
			if _, err := cast.ToFloat64E(v); err != nil {
				return nil, errors.New(errors.InvalidQuery, "%s: expected numbers, got %v", op, value)
			}
		}
		return cloneValue(values), nil
	case op == OpSize:
		size, err := cast.ToIntE(value)
		if err != nil || size < 0 {
			return nil, errors.New(errors.InvalidQuery, "%s: expected a non-negative integer, got %v", op, value)
		}
		return size, nil
	case op == OpExists:
		exists, err := cast.ToBoolE(value)
		if err != nil {
			return nil, errors.New(errors.InvalidQuery, "%s: expected a boolean, got %v", op, value)
		}
		return exists, nil
	case op.isRegexFamily():
		raw, err := toText(value)
		if err != nil {
			return nil, errors.New(errors.InvalidQuery, "%s: expected a string, got %T", op, value)
		}
		return buildRegex(op, raw), nil
	case op == OpRegex:
		raw, err := toText(value)
		if err != nil {
			return nil, errors.New(errors.InvalidQuery, "%s: expected a pattern, got %T", op, value)
		}
		if _, err := regexp.Compile(raw); err != nil {
			return nil, errors.Wrap(err, errors.InvalidQuery, "%s: invalid pattern %q", op, raw)
		}
		return Regex{Pattern: raw}, nil
	case op == OpNear, op == OpWithinDistance, op == OpWithinBox:
		return cloneValue(value), nil
	default:
		normalized, err := normalizer.Normalize(field, value)
		if err != nil {
			return nil, err
		}
		return cloneValue(normalized), nil
	}
}

func toText(value any) (string, error) {
	switch value.(type) {
	case nil, map[string]any, []any:
		return "", errors.New(errors.InvalidQuery, "not a string: %T", value)
	}
	return cast.ToStringE(value)
}

// Entry renders a canonical value into a fragment entry: a scalar for implicit equality and
// regex matches, or an OperatorMap.
func (k OperatorKind) Entry(value any) any {
	var base any
	switch k.Op {
	case OpWithinDistance:
		base = OperatorMap{"$within": map[string]any{"$center": value}}
	case OpWithinBox:
		base = OperatorMap{"$within": map[string]any{"$box": value}}
	default:
		if tok := k.Op.token(); tok != "" {
			base = OperatorMap{tok: value}
		} else {
			base = value
		}
	}
	if !k.Not {
		return base
	}
	switch b := base.(type) {
	case OperatorMap:
		return OperatorMap{"$not": b}
	default:
		if isPattern(b) {
			return OperatorMap{"$not": b}
		}
		return OperatorMap{"$ne": b}
	}
}
