package predicate

import (
	"fmt"
	"strings"

	"github.com/dop251/goja"
)

// ScriptRule is a Rule defined by a JavaScript boolean expression over the
// candidate n and the divisor i, for example "n % i === 0".
//
// The program is compiled once; every Divisor runs it on its own goja VM
// because a goja.Runtime is not safe for concurrent use. Values are passed as
// JavaScript numbers, so candidates above 2^53 lose precision.
type ScriptRule struct {
	src  string
	prog *goja.Program
}

// CompileScript compiles expr and checks that it evaluates without throwing.
func CompileScript(expr string) (*ScriptRule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty rule expression")
	}

	wrapped := "(function(n, i) { return (" + expr + "); })"
	prog, err := goja.Compile("rule", wrapped, true)
	if err != nil {
		return nil, fmt.Errorf("compile rule %q: %w", expr, err)
	}

	r := &ScriptRule{src: expr, prog: prog}
	fn, vm, err := r.load()
	if err != nil {
		return nil, err
	}
	if _, err := call(vm, fn, 1, 1); err != nil {
		return nil, fmt.Errorf("evaluate rule %q: %w", expr, err)
	}
	return r, nil
}

// Source returns the expression the rule was compiled from.
func (r *ScriptRule) Source() string {
	return r.src
}

// Divisor returns a Divisor backed by a fresh VM. A script that throws
// is treated as "does not divide".
func (r *ScriptRule) Divisor() (Divisor, error) {
	fn, vm, err := r.load()
	if err != nil {
		return nil, err
	}
	return func(n, i int64) bool {
		ok, err := call(vm, fn, n, i)
		return err == nil && ok
	}, nil
}

func (r *ScriptRule) load() (goja.Callable, *goja.Runtime, error) {
	vm := goja.New()
	v, err := vm.RunProgram(r.prog)
	if err != nil {
		return nil, nil, fmt.Errorf("load rule %q: %w", r.src, err)
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil, nil, fmt.Errorf("rule %q did not compile to a function", r.src)
	}
	return fn, vm, nil
}

func call(vm *goja.Runtime, fn goja.Callable, n, i int64) (bool, error) {
	res, err := fn(goja.Undefined(), vm.ToValue(n), vm.ToValue(i))
	if err != nil {
		return false, err
	}
	return res.ToBoolean(), nil
}
