// Package yaegihost embeds a Yaegi interpreter as the host runtime for an
// extension module. The module's method table is registered as an importable
// symbol package, so caller scripts load it the way the module would be
// loaded by any other host:
//
//	import "demo/demo"
//
//	func Run() int64 { return demo.Add(2, 3) }
//
// A script defines func Run() int64; the host wraps sources without a
// package clause into a main package, evaluates them, and invokes Run.
// Scripts are restricted to a whitelist of safe stdlib imports plus the
// registered module path, and evaluation is bounded by a configurable
// timeout enforced through the context.
package yaegihost

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"go.uber.org/zap"

	"addhost/pkg/extension"
)

// defaultAllowedImports is the stdlib surface scripts may use when the
// caller does not supply its own whitelist. Filesystem, network, and exec
// packages are deliberately absent.
var defaultAllowedImports = []string{
	"errors",
	"fmt",
	"math",
	"sort",
	"strconv",
	"strings",
	"time",
}

// Options configures a Host.
type Options struct {
	// Timeout bounds a single Eval. Zero means no timeout beyond the
	// caller's context.
	Timeout time.Duration

	// AllowedImports replaces the default stdlib whitelist when non-nil.
	// The module's own import path is always allowed.
	AllowedImports []string

	Logger *zap.Logger
}

// Host evaluates caller scripts against one registered module.
type Host struct {
	mod     *extension.Module
	allowed map[string]bool
	timeout time.Duration
	logger  *zap.Logger
}

// New builds a host around mod.
func New(mod *extension.Module, opts Options) *Host {
	allowed := opts.AllowedImports
	if allowed == nil {
		allowed = defaultAllowedImports
	}
	h := &Host{
		mod:     mod,
		allowed: make(map[string]bool, len(allowed)+1),
		timeout: opts.Timeout,
		logger:  opts.Logger,
	}
	for _, pkg := range allowed {
		h.allowed[pkg] = true
	}
	h.allowed[h.ImportPath()] = true
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	return h
}

// ImportPath returns the path scripts import the module under. The module
// name is doubled, path/package, mirroring the dotted module.submodule name
// native extensions register with their host runtime.
func (h *Host) ImportPath() string {
	return h.mod.Name() + "/" + h.mod.Name()
}

// Eval runs a caller script defining func Run() int64. The script's imports
// are validated first, the module's symbols are registered, the source is
// evaluated (wrapped into a main package when it has no package clause),
// and Run is invoked with the timeout applied. Run's result is returned.
func (h *Host) Eval(ctx context.Context, src string) (int64, error) {
	if err := h.validateImports(src); err != nil {
		return 0, fmt.Errorf("invalid imports: %w", err)
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return 0, fmt.Errorf("failed to load stdlib: %w", err)
	}
	if err := i.Use(h.symbols()); err != nil {
		return 0, fmt.Errorf("failed to register module %q: %w", h.mod.Name(), err)
	}

	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	h.logger.Debug("evaluating script",
		zap.String("module", h.mod.Name()),
		zap.Int("source_bytes", len(src)))

	if _, err := i.EvalWithContext(ctx, wrapCode(src)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, fmt.Errorf("script evaluation timed out: %w", ctxErr)
		}
		return 0, fmt.Errorf("script evaluation failed: %w", err)
	}

	// Look the function up before calling so a missing or misshapen Run
	// reports cleanly instead of as a call failure.
	runv, err := i.Eval("main.Run")
	if err != nil {
		return 0, fmt.Errorf("Run function not found: %w", err)
	}
	if _, ok := runv.Interface().(func() int64); !ok {
		return 0, fmt.Errorf("Run has incorrect signature (expected: func() int64)")
	}

	// Invoke through the interpreter rather than the asserted func value so
	// the context can stop a runaway script.
	v, err := i.EvalWithContext(ctx, "main.Run()")
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, fmt.Errorf("script evaluation timed out: %w", ctxErr)
		}
		return 0, fmt.Errorf("script execution failed: %w", err)
	}
	return v.Int(), nil
}

// wrapCode puts bare scripts into a main package so Run resolves under a
// fixed symbol path.
func wrapCode(src string) string {
	if strings.Contains(src, "package main") {
		return src
	}
	return fmt.Sprintf("package main\n\n%s\n", src)
}

// symbols builds the interpreter export map for the module's method table.
// Each method becomes a typed function value with one int64 parameter per
// arity slot and an int64 result, under the exported spelling of its name.
// The Exports key is <importPath>/<pkgName>; with the module name doubled
// in ImportPath, the last path element already is the package name.
func (h *Host) symbols() interp.Exports {
	syms := make(map[string]reflect.Value, len(h.mod.Methods()))
	for _, meth := range h.mod.Methods() {
		syms[exportedName(meth.Name)] = methodValue(meth)
	}
	return interp.Exports{h.ImportPath(): syms}
}

func methodValue(meth extension.Method) reflect.Value {
	int64Type := reflect.TypeOf(int64(0))
	in := make([]reflect.Type, meth.Arity)
	for i := range in {
		in[i] = int64Type
	}
	ft := reflect.FuncOf(in, []reflect.Type{int64Type}, false)
	return reflect.MakeFunc(ft, func(args []reflect.Value) []reflect.Value {
		raw := make([]int64, len(args))
		for i, a := range args {
			raw[i] = a.Int()
		}
		out, err := meth.Fn(raw)
		if err != nil {
			// The typed signature already guarantees arity and integer
			// shape; an error here is the handler's own and surfaces as a
			// runtime error in the script.
			panic(err)
		}
		return []reflect.Value{reflect.ValueOf(out)}
	})
}

func exportedName(name string) string {
	r := []rune(name)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// validateImports scans the script for import statements and rejects any
// package outside the whitelist.
func (h *Host) validateImports(src string) error {
	var imports []string
	inBlock := false
	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "import (") {
			inBlock = true
			continue
		}
		if inBlock && strings.HasPrefix(trimmed, ")") {
			inBlock = false
			continue
		}
		if inBlock {
			if pkg := strings.Trim(trimmed, `"`); pkg != "" {
				imports = append(imports, pkg)
			}
		} else if strings.HasPrefix(trimmed, "import ") {
			pkg := strings.TrimPrefix(trimmed, "import ")
			imports = append(imports, strings.Trim(pkg, `"`))
		}
	}

	var forbidden []string
	for _, pkg := range imports {
		if !h.allowed[pkg] {
			forbidden = append(forbidden, pkg)
		}
	}
	if len(forbidden) > 0 {
		return fmt.Errorf("forbidden imports: %v", forbidden)
	}
	return nil
}
