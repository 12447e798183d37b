// Package expression compiles and runs the user-supplied source strings a form
// carries: calculated properties, code validators and validateWhen gates.
// Sources are expr-lang expressions; compiled programs are cached by source.
package expression

import (
	"fmt"
	"math"
	"reflect"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/vm"
)

// Function is a host function callable from expressions by name.
type Function func(params ...any) (any, error)

// Evaluator compiles expressions lazily and caches the programs. Sources
// that fail to compile are cached too, so a broken source is compiled once.
// It is safe for concurrent use.
type Evaluator struct {
	mu        sync.RWMutex
	cache     map[string]*vm.Program
	failed    map[string]error
	functions map[string]Function
}

func NewEvaluator() *Evaluator {
	return &Evaluator{
		cache:     make(map[string]*vm.Program),
		failed:    make(map[string]error),
		functions: make(map[string]Function),
	}
}

// RegisterFunction exposes fn to every expression under name. Compiled
// programs and failures are dropped so they pick up the new function.
func (e *Evaluator) RegisterFunction(name string, fn Function) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.functions[name] = fn
	e.cache = make(map[string]*vm.Program)
	e.failed = make(map[string]error)
}

// truthyFunc is the function conditions are wrapped in.
const truthyFunc = "truthy"

// Truthy reports whether v counts as true in a condition: nil, false, zero
// numbers and "" are false, everything else is true.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		return f != 0 && !math.IsNaN(f)
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}

// conditions wraps every ternary or if condition, and the operand of a
// negation, in truthy() unless the checker already typed it bool. A missing
// value then selects the else branch instead of failing the evaluation.
type conditions struct{}

func (conditions) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.ConditionalNode:
		wrapCondition(&n.Cond)
	case *ast.UnaryNode:
		if n.Operator == "!" || n.Operator == "not" {
			wrapCondition(&n.Node)
		}
	}
}

func wrapCondition(node *ast.Node) {
	if (*node).Type().Kind() == reflect.Bool {
		return
	}
	call := &ast.CallNode{
		Callee:    &ast.IdentifierNode{Value: truthyFunc},
		Arguments: []ast.Node{*node},
	}
	ast.Patch(node, call)
}

// Normalize strips the statement syntax authors commonly wrap an expression
// in: a leading "return" and a trailing semicolon.
func Normalize(source string) string {
	s := strings.TrimSpace(source)
	if rest, ok := strings.CutPrefix(s, "return"); ok && (rest == "" || rest[0] == ' ' || rest[0] == '\t' || rest[0] == '\n' || rest[0] == '(') {
		s = strings.TrimSpace(rest)
	}
	s = strings.TrimSpace(strings.TrimSuffix(s, ";"))
	return s
}

// Compile returns the cached program for source, compiling it on first use.
func (e *Evaluator) Compile(source string) (*vm.Program, error) {
	e.mu.RLock()
	prog, ok := e.cache[source]
	failure := e.failed[source]
	e.mu.RUnlock()
	if ok {
		return prog, nil
	}
	if failure != nil {
		return nil, failure
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if prog, ok := e.cache[source]; ok {
		return prog, nil
	}
	if err, ok := e.failed[source]; ok {
		return nil, err
	}

	normalized := Normalize(source)
	if normalized == "" {
		return nil, fmt.Errorf("compile expression: empty source")
	}

	opts := []expr.Option{expr.AllowUndefinedVariables()}
	for name, fn := range e.functions {
		opts = append(opts, expr.Function(name, fn))
	}
	opts = append(opts,
		expr.Function(truthyFunc, func(params ...any) (any, error) {
			return Truthy(params[0]), nil
		}, new(func(any) bool)),
		expr.Patch(conditions{}),
	)

	prog, err := expr.Compile(normalized, opts...)
	if err != nil {
		err = fmt.Errorf("compile expression: %w", err)
		e.failed[source] = err
		return nil, err
	}
	e.cache[source] = prog
	return prog, nil
}

// Run executes a compiled program against env.
func Run(prog *vm.Program, env map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("evaluate expression: %v", r)
		}
	}()
	result, err = expr.Run(prog, env)
	if err != nil {
		return nil, fmt.Errorf("evaluate expression: %w", err)
	}
	return result, nil
}

// Evaluate compiles (or reuses) source and runs it against env.
func (e *Evaluator) Evaluate(source string, env map[string]any) (any, error) {
	prog, err := e.Compile(source)
	if err != nil {
		return nil, err
	}
	return Run(prog, env)
}

// EvaluateBool evaluates source as a condition, applying Truthy to the
// result.
func (e *Evaluator) EvaluateBool(source string, env map[string]any) (bool, error) {
	result, err := e.Evaluate(source, env)
	if err != nil {
		return false, err
	}
	return Truthy(result), nil
}

// CacheSize reports how many compiled programs are cached. Failures are
// not counted.
func (e *Evaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}
