package docq

import (
	"regexp"
	"strings"
)

// Regex is a canonical regular expression value: a pattern plus store options ("i" for case-insensitive)
type Regex struct {
	Pattern string `json:"$regex"`
	Options string `json:"$options,omitempty"`
}

// Compile compiles the regex with its options applied as inline flags
func (r Regex) Compile() (*regexp.Regexp, error) {
	var flags string
	for _, o := range r.Options {
		switch o {
		case 'i', 'm', 's':
			flags += string(o)
		}
	}
	if flags != "" {
		return regexp.Compile("(?" + flags + ")" + r.Pattern)
	}
	return regexp.Compile(r.Pattern)
}

// CaseInsensitive returns true if the regex carries the case-insensitive option
func (r Regex) CaseInsensitive() bool {
	return strings.Contains(r.Options, "i")
}

func (r Regex) String() string {
	return "/" + r.Pattern + "/" + r.Options
}

// isPattern returns true if the value is a pattern object supplied by the caller
func isPattern(value any) bool {
	switch value.(type) {
	case Regex, *Regex, *regexp.Regexp:
		return true
	}
	return false
}

// asRegex converts a pattern object into a Regex. Inline (?flags) prefixes of compiled
// go regular expressions are lifted into options.
func asRegex(value any) (Regex, bool) {
	switch v := value.(type) {
	case Regex:
		return v, true
	case *Regex:
		if v == nil {
			return Regex{}, false
		}
		return *v, true
	case *regexp.Regexp:
		if v == nil {
			return Regex{}, false
		}
		pattern := v.String()
		if m := inlineFlags.FindStringSubmatch(pattern); m != nil {
			return Regex{Pattern: pattern[len(m[0]):], Options: m[1]}, true
		}
		return Regex{Pattern: pattern}, true
	}
	return Regex{}, false
}

var inlineFlags = regexp.MustCompile(`^\(\?([ims]+)\)`)

// buildRegex escapes every regex metacharacter in raw and anchors it per the operator
func buildRegex(op Operator, raw string) Regex {
	escaped := regexp.QuoteMeta(raw)
	r := Regex{}
	switch op {
	case OpContains, OpIContains:
		r.Pattern = escaped
	case OpStartsWith, OpIStartsWith:
		r.Pattern = "^" + escaped
	case OpEndsWith, OpIEndsWith:
		r.Pattern = escaped + "$"
	case OpIExact:
		r.Pattern = "^" + escaped + "$"
	}
	switch op {
	case OpIContains, OpIStartsWith, OpIEndsWith, OpIExact:
		r.Options = "i"
	}
	return r
}

// literalRegex reverses buildRegex: it returns the operator and raw value that produce r,
// or false if r is not an escaped literal pattern.
func literalRegex(r Regex) (Operator, string, bool) {
	if r.Options != "" && r.Options != "i" {
		return "", "", false
	}
	var (
		pattern = r.Pattern
		start   = strings.HasPrefix(pattern, "^")
		end     = strings.HasSuffix(pattern, "$") && !strings.HasSuffix(pattern, `\$`)
	)
	if start {
		pattern = pattern[1:]
	}
	if end {
		pattern = pattern[:len(pattern)-1]
	}
	raw, ok := unquoteMeta(pattern)
	if !ok {
		return "", "", false
	}
	insensitive := r.Options == "i"
	switch {
	case start && end && insensitive:
		return OpIExact, raw, true
	case start && end:
		return "", "", false
	case start && insensitive:
		return OpIStartsWith, raw, true
	case start:
		return OpStartsWith, raw, true
	case end && insensitive:
		return OpIEndsWith, raw, true
	case end:
		return OpEndsWith, raw, true
	case insensitive:
		return OpIContains, raw, true
	default:
		return OpContains, raw, true
	}
}

func unquoteMeta(pattern string) (string, bool) {
	var b strings.Builder
	for i := 0; i < len(pattern); i++ {
		if pattern[i] == '\\' {
			if i+1 >= len(pattern) {
				return "", false
			}
			i++
		}
		b.WriteByte(pattern[i])
	}
	raw := b.String()
	if regexp.QuoteMeta(raw) != pattern {
		return "", false
	}
	return raw, true
}
