package vm

import (
	"fmt"
	"sort"
	"sync"

	"github.com/chazu/tuuvm/tuple"
)

// PrimitiveFunc is the Go entry point of a primitive function. closure is
// the Function being applied; for methods args[0] is the receiver.
type PrimitiveFunc func(ctx *Context, closure tuple.Tuple, args []tuple.Tuple) tuple.Tuple

// PrimitiveTable maps stable names to primitive entry points. Images store
// primitive functions by name and re-bind them through the table after
// loading, so no Go pointer is ever persisted.
//
// The table is process-wide and safe for concurrent use by independent
// contexts.
type PrimitiveTable struct {
	mu     sync.RWMutex
	byName map[string]PrimitiveFunc
}

// NewPrimitiveTable creates an empty table.
func NewPrimitiveTable() *PrimitiveTable {
	return &PrimitiveTable{byName: make(map[string]PrimitiveFunc)}
}

// Register binds name to entry, replacing any previous binding.
func (pt *PrimitiveTable) Register(name string, entry PrimitiveFunc) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.byName[name] = entry
}

// Lookup returns the entry registered under name.
func (pt *PrimitiveTable) Lookup(name string) (PrimitiveFunc, bool) {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	entry, ok := pt.byName[name]
	return entry, ok
}

// Names returns the registered names, sorted.
func (pt *PrimitiveTable) Names() []string {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	names := make([]string, 0, len(pt.byName))
	for name := range pt.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered primitives.
func (pt *PrimitiveTable) Len() int {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	return len(pt.byName)
}

var primitives = NewPrimitiveTable()

// RegisterPrimitive adds entry to the process-wide primitive table.
func RegisterPrimitive(name string, entry PrimitiveFunc) {
	primitives.Register(name, entry)
}

// LookupPrimitive finds a process-wide primitive by name.
func LookupPrimitive(name string) (PrimitiveFunc, bool) {
	return primitives.Lookup(name)
}

// PrimitiveNames lists the process-wide primitives.
func PrimitiveNames() []string {
	return primitives.Names()
}

// ---------------------------------------------------------------------------
// Per-context bindings
// ---------------------------------------------------------------------------

// primitiveBinding caches a table lookup so calls skip the mutex.
type primitiveBinding struct {
	name  string
	entry PrimitiveFunc
}

func (ctx *Context) bindPrimitive(name string) (int, error) {
	entry, ok := LookupPrimitive(name)
	if !ok {
		return -1, fmt.Errorf("%w: %s", ErrUnknownPrimitive, name)
	}
	for i := range ctx.primitives {
		if ctx.primitives[i].name == name {
			ctx.primitives[i].entry = entry
			return i, nil
		}
	}
	ctx.primitives = append(ctx.primitives, primitiveBinding{name: name, entry: entry})
	return len(ctx.primitives) - 1, nil
}

// primitiveEntry returns the entry point of a primitive function,
// re-binding by name when the cached index does not belong to it.
func (ctx *Context) primitiveEntry(fn tuple.Tuple) PrimitiveFunc {
	h := ctx.heap
	name := ctx.StringValue(h.Slot(fn, FunctionPrimitiveName))
	if idx := h.Slot(fn, FunctionPrimitiveIndex); !idx.IsNull() {
		if i := idx.Index(); i >= 0 && i < len(ctx.primitives) && ctx.primitives[i].name == name {
			return ctx.primitives[i].entry
		}
	}
	i, err := ctx.bindPrimitive(name)
	if err != nil {
		ctx.SignalError(ErrorType, err.Error())
	}
	h.SetSlot(fn, FunctionPrimitiveIndex, tuple.FromIndex(i))
	return ctx.primitives[i].entry
}

// RebindAfterLoad walks the heap after an image load: primitive functions
// are re-bound by name, and per-session state left in FunctionBytecode and
// FunctionDefinition tuples is cleared. It fails on the first primitive
// name this process does not know.
func (ctx *Context) RebindAfterLoad() error {
	h := ctx.heap
	fnType := ctx.types[FunctionType]
	defType := ctx.types[FunctionDefinitionType]
	bcType := ctx.types[FunctionBytecodeType]
	var err error
	h.Walk(func(t tuple.Tuple) {
		if err != nil {
			return
		}
		switch h.Type(t) {
		case fnType:
			if h.Slot(t, FunctionFlags).Index()&FunctionFlagPrimitive == 0 {
				return
			}
			i, bindErr := ctx.bindPrimitive(ctx.StringValue(h.Slot(t, FunctionPrimitiveName)))
			if bindErr != nil {
				err = bindErr
				return
			}
			h.SetSlot(t, FunctionPrimitiveIndex, tuple.FromIndex(i))
		case defType:
			// Body handles index the AST table of the saving context.
			h.SetSlot(t, DefinitionBodyHandle, tuple.Null)
		case bcType:
			for _, slot := range []int{
				BytecodeJittedCode, BytecodeJittedCodeSessionToken,
				BytecodeJittedCodeTrampoline, BytecodeJittedCodeTrampolineSessionToken,
				BytecodeInlineCacheTable,
			} {
				h.SetSlot(t, slot, tuple.Null)
			}
		}
	})
	return err
}
