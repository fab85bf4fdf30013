package docq

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/autom8ter/docq/errors"
	"github.com/dop251/goja"
	"github.com/samber/lo"
)

// WhereKey holds a javascript condition evaluated against each document, with the document
// bound to this, doc and obj.
const WhereKey = "$where"

var (
	jsFieldPattern = regexp.MustCompile(`\[\s*~([A-Za-z_][A-Za-z_0-9.]*?)\s*\]`)
	jsPathPattern  = regexp.MustCompile(`\{\{\s*~([A-Za-z_][A-Za-z_0-9.]*?)\s*\}\}`)
)

// SubJSFields replaces logical field references in javascript code with storage names.
// [~comments.content] becomes ["commentContent"], the storage name of the last field, and
// {{~comments.content}} becomes postComments.commentContent, the full storage path.
func (c *Compiler) SubJSFields(code string) (string, error) {
	var err error
	sub := func(pattern *regexp.Regexp, render func(names []string) string) {
		code = pattern.ReplaceAllStringFunc(code, func(match string) string {
			if err != nil {
				return match
			}
			fp, rerr := c.Resolve(pattern.FindStringSubmatch(match)[1])
			if rerr != nil {
				err = errors.Wrap(rerr, 0, "javascript field %s", match)
				return match
			}
			return render(fp.Names())
		})
	}
	sub(jsFieldPattern, func(names []string) string {
		return fmt.Sprintf("[%q]", names[len(names)-1])
	})
	sub(jsPathPattern, func(names []string) string {
		return strings.Join(names, ".")
	})
	if err != nil {
		return "", err
	}
	return code, nil
}

// WhereJS ANDs a javascript condition into the query. The condition is an expression or a
// function; field references are substituted with SubJSFields when the query set is compiled.
func (q *QuerySet) WhereJS(code string) *QuerySet {
	c := q.clone()
	c.js = append(c.js, code)
	return c
}

func (q *QuerySet) whereJS() (string, error) {
	conditions := make([]string, 0, len(q.js))
	for _, code := range q.js {
		sub, err := q.compiler.SubJSFields(code)
		if err != nil {
			return "", err
		}
		conditions = append(conditions, sub)
	}
	if len(conditions) == 1 {
		return conditions[0], nil
	}
	return strings.Join(lo.Map(conditions, func(code string, _ int) string {
		if strings.HasPrefix(strings.TrimSpace(code), "function") {
			return "(" + code + ").call(this)"
		}
		return "(" + code + ")"
	}), " && "), nil
}

// ExecJS runs a javascript function over the query set and returns its exported result.
// Field references in the code are substituted with SubJSFields. The function is called with
// args and sees the globals collection (the collection name), query (the compiled filter),
// options (the find options) and db, where db[collection].find(query) returns a cursor with
// forEach, toArray and count.
func (q *QuerySet) ExecJS(ctx context.Context, code string, args ...any) (any, error) {
	if q.executor == nil {
		return nil, errors.New(errors.Internal, "query set has no executor")
	}
	code, err := q.compiler.SubJSFields(code)
	if err != nil {
		return nil, err
	}
	filter, err := q.Fragment(ctx)
	if err != nil {
		return nil, err
	}
	opts, err := q.FindOptions()
	if err != nil {
		return nil, err
	}
	name := q.compiler.Schema().Name()
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	globals := map[string]any{
		"collection": name,
		"query":      filter,
		"options":    opts,
		"db": map[string]any{
			name: &jsCollection{ctx: ctx, name: name, executor: q.executor, opts: opts},
		},
	}
	for k, v := range globals {
		if err := vm.Set(k, v); err != nil {
			return nil, errors.Wrap(err, errors.Internal, "failed to set %s", k)
		}
	}
	value, err := vm.RunString("(" + code + ")")
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidQuery, "invalid javascript")
	}
	fn, ok := goja.AssertFunction(value)
	if !ok {
		return nil, errors.New(errors.InvalidQuery, "javascript code must be a function")
	}
	result, err := fn(goja.Undefined(), lo.Map(args, func(arg any, _ int) goja.Value {
		return vm.ToValue(arg)
	})...)
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidQuery, "failed to execute javascript")
	}
	return result.Export(), nil
}

type jsCollection struct {
	ctx      context.Context
	name     string
	executor Executor
	opts     FindOptions
}

// Find returns the documents matching query
func (c *jsCollection) Find(query any) (*jsCursor, error) {
	filter, ok := asFragment(query)
	if !ok && query != nil {
		return nil, errors.New(errors.InvalidQuery, "find: expected a query object, got %T", query)
	}
	cursor, err := c.executor.Find(c.ctx, c.name, filter, c.opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close()
	docs, err := Collect(c.ctx, cursor)
	if err != nil {
		return nil, err
	}
	return &jsCursor{docs: docs}, nil
}

type jsCursor struct {
	docs Documents
}

func (c *jsCursor) ForEach(fn func(doc map[string]any)) {
	for _, d := range c.docs {
		fn(d.Value())
	}
}

func (c *jsCursor) ToArray() []map[string]any {
	return lo.Map(c.docs, func(d *Document, _ int) map[string]any {
		return d.Value()
	})
}

func (c *jsCursor) Count() int {
	return len(c.docs)
}
