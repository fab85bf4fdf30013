package inmem

import (
	"sync"

	"github.com/autom8ter/docq"
	"github.com/autom8ter/docq/errors"
	"github.com/dop251/goja"
)

// programs caches compiled $where conditions by source
var programs sync.Map

// matchWhere evaluates a javascript condition with the document bound to this, doc and obj.
// A condition that evaluates to a function is called with the document as this.
func matchWhere(condition any, root map[string]any) (bool, error) {
	code, ok := condition.(string)
	if !ok {
		return false, errors.New(errors.InvalidQuery, "%s: expected javascript, got %T", docq.WhereKey, condition)
	}
	program, err := compileWhere(code)
	if err != nil {
		return false, err
	}
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	for _, name := range []string{"doc", "obj"} {
		if err := vm.Set(name, root); err != nil {
			return false, errors.Wrap(err, errors.Internal, "failed to set %s", name)
		}
	}
	result, err := vm.RunProgram(program)
	if err != nil {
		return false, errors.Wrap(err, errors.InvalidQuery, "%s: failed to evaluate", docq.WhereKey)
	}
	return result.ToBoolean(), nil
}

func compileWhere(code string) (*goja.Program, error) {
	if program, ok := programs.Load(code); ok {
		return program.(*goja.Program), nil
	}
	src := "(function() { var where = (" + code + "); return typeof where === 'function' ? where.call(this) : where; }).call(doc)"
	program, err := goja.Compile(docq.WhereKey, src, false)
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidQuery, "%s: invalid javascript", docq.WhereKey)
	}
	programs.Store(code, program)
	return program, nil
}
