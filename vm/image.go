package vm

import (
	"errors"
	"fmt"

	"github.com/chazu/tuuvm/config"
	"github.com/chazu/tuuvm/heap"
	"github.com/chazu/tuuvm/tuple"
)

// ErrBadImage is wrapped by RestoreContext errors.
var ErrBadImage = errors.New("vm: bad image")

// ImageRoots is the root table of a context. Symbols and globals are keyed
// by name; primitive bindings are recorded by name so loading fails early
// when the process lacks one.
type ImageRoots struct {
	Types      []tuple.Tuple
	Symbols    map[string]tuple.Tuple
	Globals    []string
	GlobalRefs []tuple.Tuple
	Primitives []string
}

// PrepareImage compiles every definition that still has only an AST body,
// then collects, so the heap no longer depends on this context's AST
// table.
func (ctx *Context) PrepareImage() error {
	h := ctx.heap
	defType := ctx.types[FunctionDefinitionType]
	// Compiling a definition creates the definitions of its lambdas, so
	// repeat until a walk finds nothing new. Compilation allocates but
	// never collects, so pending stays valid.
	for {
		var pending []tuple.Tuple
		h.Walk(func(t tuple.Tuple) {
			if h.Type(t) == defType && h.Slot(t, DefinitionBytecode).IsNull() && !h.Slot(t, DefinitionBodyHandle).IsNull() {
				pending = append(pending, t)
			}
		})
		if len(pending) == 0 {
			break
		}
		for _, d := range pending {
			if _, err := ctx.CompileDefinition(d); err != nil {
				return err
			}
		}
	}
	if ctx.gcLock > 0 {
		return errors.New("vm: cannot prepare an image under GCLock")
	}
	ctx.collect()
	return nil
}

// ImageRoots returns the current root table.
func (ctx *Context) ImageRoots() ImageRoots {
	roots := ImageRoots{
		Types:   append([]tuple.Tuple(nil), ctx.types[:]...),
		Symbols: make(map[string]tuple.Tuple, len(ctx.symbolIndex)),
		Globals: ctx.GlobalNames(),
	}
	for name, i := range ctx.symbolIndex {
		if s := ctx.symbols[i]; !s.IsNull() {
			roots.Symbols[name] = s
		}
	}
	for _, name := range roots.Globals {
		roots.GlobalRefs = append(roots.GlobalRefs, ctx.globals[ctx.globalIndex[name]])
	}
	for _, p := range ctx.primitives {
		roots.Primitives = append(roots.Primitives, p.name)
	}
	return roots
}

// RestoreContext builds a context over a heap restored from an image. The
// context gets a fresh session token, so native code and trampolines of
// the saving process are never reused.
func RestoreContext(cfg *config.Config, h *heap.Heap, roots ImageRoots) (*Context, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(roots.Types) != int(typeCount) {
		return nil, fmt.Errorf("%w: %d types, want %d", ErrBadImage, len(roots.Types), typeCount)
	}
	if len(roots.Globals) != len(roots.GlobalRefs) {
		return nil, fmt.Errorf("%w: %d global names for %d associations", ErrBadImage, len(roots.Globals), len(roots.GlobalRefs))
	}
	for _, name := range roots.Primitives {
		if _, ok := LookupPrimitive(name); !ok {
			return nil, fmt.Errorf("%w: %w: %s", ErrBadImage, ErrUnknownPrimitive, name)
		}
	}

	ctx := newContext(cfg, h)
	copy(ctx.types[:], roots.Types)
	for name, s := range roots.Symbols {
		ctx.symbolIndex[name] = len(ctx.symbols)
		ctx.symbols = append(ctx.symbols, s)
	}
	for i, name := range roots.Globals {
		ctx.globalIndex[name] = len(ctx.globals)
		ctx.globals = append(ctx.globals, roots.GlobalRefs[i])
	}
	if err := ctx.RebindAfterLoad(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadImage, err)
	}
	log.Infof("context restored: session %x, %d globals, %d symbols", ctx.session, len(ctx.globals), len(ctx.symbols))
	return ctx, nil
}
