// Package extension implements a minimal native extension module: a fixed
// method table of integer functions that a host runtime can look up by name
// and invoke through a uniform calling convention.
//
// The package itself owns no state. A Module is immutable after construction
// and every call is a pure, synchronous transform, so modules are safe to
// share between any number of concurrent callers.
package extension

import (
	"fmt"
	"math"
)

// Handler is the native implementation behind a registered method. It is
// invoked with exactly Arity arguments, already marshaled to int64.
type Handler func(args []int64) (int64, error)

// Method is one entry in a module's method table.
type Method struct {
	Name  string
	Arity int
	Doc   string
	Fn    Handler
}

// Module is a named, immutable table of methods. It is the unit a host
// runtime loads and resolves callables against.
type Module struct {
	name    string
	doc     string
	methods map[string]Method
	order   []string
}

// New builds a module from a method table. Method names must be non-empty
// and unique within the module.
func New(name, doc string, methods ...Method) (*Module, error) {
	if name == "" {
		return nil, fmt.Errorf("extension: module name required")
	}
	m := &Module{
		name:    name,
		doc:     doc,
		methods: make(map[string]Method, len(methods)),
	}
	for _, meth := range methods {
		if meth.Name == "" {
			return nil, fmt.Errorf("extension: method name required in module %q", name)
		}
		if meth.Fn == nil {
			return nil, fmt.Errorf("extension: method %q in module %q has no handler", meth.Name, name)
		}
		if meth.Arity < 0 {
			return nil, fmt.Errorf("extension: method %q in module %q has negative arity", meth.Name, name)
		}
		if _, dup := m.methods[meth.Name]; dup {
			return nil, fmt.Errorf("extension: duplicate method %q in module %q", meth.Name, name)
		}
		m.methods[meth.Name] = meth
		m.order = append(m.order, meth.Name)
	}
	return m, nil
}

// Name returns the fixed identifier the module is registered under.
func (m *Module) Name() string { return m.name }

// Doc returns the module doc string.
func (m *Module) Doc() string { return m.doc }

// Methods returns the method table in registration order.
func (m *Module) Methods() []Method {
	out := make([]Method, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.methods[name])
	}
	return out
}

// Method looks up a single method by name.
func (m *Module) Method(name string) (Method, bool) {
	meth, ok := m.methods[name]
	return meth, ok
}

// Call invokes a registered method through the host calling convention:
// each argument is marshaled to a signed 64-bit integer, the argument count
// is checked against the method's arity, and the handler's result is
// returned unchanged. A wrong count or a value that cannot be interpreted as
// an int64 fails with *ArgumentError and produces no partial result.
func (m *Module) Call(name string, args ...any) (int64, error) {
	meth, ok := m.methods[name]
	if !ok {
		return 0, fmt.Errorf("extension: module %q has no method %q", m.name, name)
	}
	if len(args) != meth.Arity {
		return 0, &ArgumentError{
			Module: m.name,
			Method: name,
			Reason: fmt.Sprintf("takes exactly %d arguments (%d given)", meth.Arity, len(args)),
		}
	}
	marshaled := make([]int64, len(args))
	for i, arg := range args {
		v, err := asInt64(arg)
		if err != nil {
			return 0, &ArgumentError{
				Module: m.name,
				Method: name,
				Reason: fmt.Sprintf("argument %d: %v", i+1, err),
			}
		}
		marshaled[i] = v
	}
	return meth.Fn(marshaled)
}

// asInt64 marshals a host-supplied value to int64. Any Go integer kind whose
// value fits the signed 64-bit range is accepted; everything else is a shape
// error.
func asInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows int64", n)
		}
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows int64", n)
		}
		return int64(n), nil
	case uintptr:
		if uint64(n) > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows int64", n)
		}
		return int64(n), nil
	case nil:
		return 0, fmt.Errorf("nil is not an integer")
	default:
		return 0, fmt.Errorf("%T is not an integer", v)
	}
}
