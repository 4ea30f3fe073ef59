// Package wasmhost exposes an extension module to WebAssembly guests. The
// module's method table becomes a wazero host module, so a guest built for
// this host imports the callables by the module's fixed name:
//
//	(import "demo" "add" (func (param i64 i64) (result i64)))
//
// The runtime uses wazero's interpreter engine, which runs everywhere
// without cgo.
package wasmhost

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"addhost/pkg/extension"
)

// Host instantiates WASM guests against one registered module.
type Host struct {
	mod    *extension.Module
	logger *zap.Logger
}

// New builds a host around mod. A nil logger disables logging.
func New(mod *extension.Module, logger *zap.Logger) *Host {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Host{mod: mod, logger: logger}
}

// Run instantiates guest against the module's host functions and invokes
// its exported function fn with the given integer arguments. The function
// must take only i64 parameters and return one i64.
func (h *Host) Run(ctx context.Context, guest []byte, fn string, args ...int64) (int64, error) {
	r := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter())
	defer r.Close(ctx)

	if err := h.instantiateModule(ctx, r); err != nil {
		return 0, err
	}

	g, err := r.InstantiateWithConfig(ctx, guest, wazero.NewModuleConfig().WithName("guest"))
	if err != nil {
		return 0, fmt.Errorf("failed to instantiate guest: %w", err)
	}

	f := g.ExportedFunction(fn)
	if f == nil {
		return 0, fmt.Errorf("guest exports no function %q", fn)
	}

	h.logger.Debug("invoking guest function",
		zap.String("module", h.mod.Name()),
		zap.String("function", fn),
		zap.Int("args", len(args)))

	stack := make([]uint64, len(args))
	for i, a := range args {
		stack[i] = api.EncodeI64(a)
	}
	results, err := f.Call(ctx, stack...)
	if err != nil {
		return 0, fmt.Errorf("guest call %q failed: %w", fn, err)
	}
	if len(results) != 1 {
		return 0, fmt.Errorf("guest function %q returned %d values, want 1", fn, len(results))
	}
	// An i64 result is its raw stack word reinterpreted; the api package
	// only provides the encode direction.
	return int64(results[0]), nil
}

// instantiateModule registers the method table as a host module under the
// module's name. Each method is exported with one i64 parameter per arity
// slot and an i64 result; the WASM type system enforces the argument shape,
// so handlers never see malformed input.
func (h *Host) instantiateModule(ctx context.Context, r wazero.Runtime) error {
	builder := r.NewHostModuleBuilder(h.mod.Name())
	for _, meth := range h.mod.Methods() {
		meth := meth
		params := make([]api.ValueType, meth.Arity)
		for i := range params {
			params[i] = api.ValueTypeI64
		}
		builder = builder.NewFunctionBuilder().
			WithGoFunction(api.GoFunc(func(_ context.Context, stack []uint64) {
				args := make([]int64, meth.Arity)
				for i := range args {
					args[i] = int64(stack[i])
				}
				out, err := meth.Fn(args)
				if err != nil {
					panic(err)
				}
				stack[0] = api.EncodeI64(out)
			}), params, []api.ValueType{api.ValueTypeI64}).
			Export(meth.Name)
	}
	if _, err := builder.Instantiate(ctx); err != nil {
		return fmt.Errorf("failed to instantiate host module %q: %w", h.mod.Name(), err)
	}
	return nil
}
