package vm

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/chazu/tuuvm/ast"
	"github.com/chazu/tuuvm/config"
	"github.com/chazu/tuuvm/heap"
	"github.com/chazu/tuuvm/tuple"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("tuuvm.vm")

// MaxCallDepth bounds nested FunctionApply calls.
const MaxCallDepth = 10000

// sessionMask keeps session tokens inside the SmallInteger range.
const sessionMask = 1<<(tuple.PayloadBits-2) - 1

var sessionCounter atomic.Uint64

func newSessionToken() uint64 {
	n := sessionCounter.Add(1)
	return (uint64(time.Now().UnixNano())*0x9E3779B97F4A7C15 ^ n) & sessionMask
}

// ---------------------------------------------------------------------------
// Context
// ---------------------------------------------------------------------------

// Context is one VM instance. A context must only be used by one goroutine
// at a time; independent contexts may run in parallel.
type Context struct {
	cfg  config.Config
	heap *heap.Heap

	types [typeCount]tuple.Tuple

	// Symbols are weak: unreferenced symbols are collected and their entries
	// dropped from symbolIndex after the cycle.
	symbols     []tuple.Tuple
	symbolIndex map[string]int

	// Globals are Associations, strongly held.
	globals     []tuple.Tuple
	globalIndex map[string]int

	handles     []tuple.Tuple
	freeHandles []int

	active       Record
	nextRecordID uint64
	depth        int

	gcLock      int
	gcRequested bool

	epoch   uint64
	session uint64

	definitions []*ast.FunctionDef
	cacheTables []*InlineCacheTable
	codeTable   []CompiledCode
	trampolines []*Trampoline
	primitives  []primitiveBinding

	compiler  Compiler
	jit       JIT
	observers []Observer
	stats     DispatchStats

	out       io.Writer
	errOut    io.Writer
	destroyed bool
}

// NewContext creates a context with a bootstrapped type system. A nil cfg
// uses config.Default.
func NewContext(cfg *config.Config) (*Context, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	h := heap.New(heap.Options{ChunkSize: cfg.Heap.ChunkSize, GCThreshold: cfg.Heap.GCThreshold})
	ctx := newContext(cfg, h)
	ctx.bootstrap()
	log.Debugf("context created: session %x, %d types", ctx.session, typeCount)
	return ctx, nil
}

func newContext(cfg *config.Config, h *heap.Heap) *Context {
	return &Context{
		cfg:         *cfg,
		heap:        h,
		symbolIndex: make(map[string]int),
		globalIndex: make(map[string]int),
		session:     newSessionToken(),
		epoch:       1,
		out:         os.Stdout,
		errOut:      os.Stderr,
	}
}

// Destroy releases the context's tables. The context must not be used
// afterwards.
func (ctx *Context) Destroy() {
	if ctx.destroyed {
		return
	}
	if ctx.active != nil {
		Fatalf("Destroy called with live activation records")
	}
	ctx.destroyed = true
	ctx.heap = nil
	ctx.symbols, ctx.symbolIndex = nil, nil
	ctx.globals, ctx.globalIndex = nil, nil
	ctx.handles, ctx.freeHandles = nil, nil
	ctx.definitions = nil
	ctx.cacheTables = nil
	ctx.codeTable = nil
	ctx.trampolines = nil
	ctx.primitives = nil
	ctx.observers = nil
	log.Debugf("context %x destroyed", ctx.session)
}

func (ctx *Context) checkAlive() {
	if ctx.destroyed {
		panic(ErrDestroyed)
	}
}

// Heap returns the context's object memory.
func (ctx *Context) Heap() *heap.Heap { return ctx.heap }

// Config returns a copy of the configuration the context was created with.
func (ctx *Context) Config() config.Config { return ctx.cfg }

// SessionToken identifies this context instance. Native code and
// trampolines tagged with another token are stale.
func (ctx *Context) SessionToken() uint64 { return ctx.session }

// Epoch is the dispatch epoch. It changes whenever cached lookups may be
// stale.
func (ctx *Context) Epoch() uint64 { return ctx.epoch }

// SetOutput redirects what programs print.
func (ctx *Context) SetOutput(w io.Writer) { ctx.out = w }

// SetErrorOutput redirects unhandled exception reports. The default is
// os.Stderr.
func (ctx *Context) SetErrorOutput(w io.Writer) { ctx.errOut = w }

// ---------------------------------------------------------------------------
// Allocation
// ---------------------------------------------------------------------------

// AllocateByteTuple allocates a zeroed byte tuple. Allocation never
// triggers a collection.
func (ctx *Context) AllocateByteTuple(typ tuple.Tuple, size int) tuple.Tuple {
	ctx.checkAlive()
	return ctx.heap.AllocateByteTuple(typ, size)
}

// AllocatePointerTuple allocates a pointer tuple with every slot null.
func (ctx *Context) AllocatePointerTuple(typ tuple.Tuple, slots int) tuple.Tuple {
	ctx.checkAlive()
	return ctx.heap.AllocatePointerTuple(typ, slots)
}

// ---------------------------------------------------------------------------
// Handles
// ---------------------------------------------------------------------------

// Handle is a strong root owned by Go code. The tuple it holds is updated
// by every collection.
type Handle struct {
	ctx   *Context
	index int
}

// Retain roots t and returns a handle to it.
func (ctx *Context) Retain(t tuple.Tuple) Handle {
	if n := len(ctx.freeHandles); n > 0 {
		i := ctx.freeHandles[n-1]
		ctx.freeHandles = ctx.freeHandles[:n-1]
		ctx.handles[i] = t
		return Handle{ctx, i}
	}
	ctx.handles = append(ctx.handles, t)
	return Handle{ctx, len(ctx.handles) - 1}
}

// Get returns the current value of the handle.
func (h Handle) Get() tuple.Tuple { return h.ctx.handles[h.index] }

// Set replaces the rooted value.
func (h Handle) Set(t tuple.Tuple) { h.ctx.handles[h.index] = t }

// Release drops the root.
func (h Handle) Release() {
	h.ctx.handles[h.index] = tuple.Null
	h.ctx.freeHandles = append(h.ctx.freeHandles, h.index)
}

// ---------------------------------------------------------------------------
// Garbage collection
// ---------------------------------------------------------------------------

// GCLock prevents collections until the matching GCUnlock. Calls nest.
func (ctx *Context) GCLock() { ctx.gcLock++ }

// GCUnlock releases one GCLock.
func (ctx *Context) GCUnlock() {
	if ctx.gcLock == 0 {
		Fatalf("GCUnlock without GCLock")
	}
	ctx.gcLock--
}

// GCSafepoint collects if a collection is pending and the GC is not
// locked. It reports whether a collection ran.
func (ctx *Context) GCSafepoint() bool {
	if ctx.gcLock > 0 {
		return false
	}
	if !ctx.gcRequested && !ctx.heap.ShouldCollect() {
		return false
	}
	ctx.collect()
	return true
}

// CollectGarbage forces a collection. When the GC is locked the request is
// deferred to the next safepoint and false is returned.
func (ctx *Context) CollectGarbage() bool {
	ctx.checkAlive()
	if ctx.gcLock > 0 {
		ctx.gcRequested = true
		return false
	}
	ctx.collect()
	return true
}

func (ctx *Context) collect() {
	ctx.gcRequested = false
	stats := ctx.heap.Collect(ctx.gcRoots())

	for name, i := range ctx.symbolIndex {
		if ctx.symbols[i].IsNull() {
			delete(ctx.symbolIndex, name)
		}
	}
	ctx.epoch++
	for _, o := range ctx.observers {
		o.GCCycle(stats)
	}
}

func (ctx *Context) gcRoots() heap.Roots {
	return heap.Roots{
		Strong: func(visit heap.RootVisitor) {
			for i := range ctx.types {
				visit(&ctx.types[i])
			}
			for i := range ctx.globals {
				visit(&ctx.globals[i])
			}
			for i := range ctx.handles {
				visit(&ctx.handles[i])
			}
			ctx.IterateGCRootsInStackWith(visit)
		},
		Weak: func(visit heap.RootVisitor) {
			for i := range ctx.symbols {
				visit(&ctx.symbols[i])
			}
		},
	}
}

// ---------------------------------------------------------------------------
// Globals
// ---------------------------------------------------------------------------

// GlobalAssociation returns the Association bound to name, creating it with
// a null value when absent. Compiled code references globals through these
// associations.
func (ctx *Context) GlobalAssociation(name string) tuple.Tuple {
	if i, ok := ctx.globalIndex[name]; ok {
		return ctx.globals[i]
	}
	sym := ctx.Intern(name)
	assoc := ctx.NewAssociation(sym, tuple.Null)
	ctx.globalIndex[name] = len(ctx.globals)
	ctx.globals = append(ctx.globals, assoc)
	return assoc
}

// SetGlobal binds name to value.
func (ctx *Context) SetGlobal(name string, value tuple.Tuple) {
	assoc := ctx.GlobalAssociation(name)
	ctx.heap.SetSlot(assoc, AssociationValue, value)
}

// Global returns the value bound to name.
func (ctx *Context) Global(name string) (tuple.Tuple, bool) {
	i, ok := ctx.globalIndex[name]
	if !ok {
		return tuple.Null, false
	}
	return ctx.heap.Slot(ctx.globals[i], AssociationValue), true
}

// GlobalNames returns the bound global names in definition order.
func (ctx *Context) GlobalNames() []string {
	names := make([]string, len(ctx.globals))
	for name, i := range ctx.globalIndex {
		names[i] = name
	}
	return names
}

// ---------------------------------------------------------------------------
// Observers
// ---------------------------------------------------------------------------

// AddObserver registers o for GC and JIT events.
func (ctx *Context) AddObserver(o Observer) {
	ctx.observers = append(ctx.observers, o)
}

func (ctx *Context) String() string {
	return fmt.Sprintf("Context(%x)", ctx.session)
}
