// Package jit compiles FunctionBytecode to native code.
//
// Bytecode is lowered to a small IR whose operations are the same vm
// runtime calls the interpreter performs. The IR is threaded into Go
// closures, and that Program is what executes. For amd64 and arm64 the
// IR is also encoded into a NativeImage, machine code for an external
// runtime table that is dumped, cached on disk by bytecode digest and
// exported, but never jumped into from Go.
package jit

import (
	"errors"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tliron/commonlog"

	"github.com/chazu/tuuvm/config"
	"github.com/chazu/tuuvm/tuple"
	"github.com/chazu/tuuvm/vm"
)

var log = commonlog.GetLogger("tuuvm.jit")

var (
	ErrInvalidBytecode  = errors.New("jit: invalid bytecode")
	ErrUnsupported      = errors.New("jit: unsupported instruction")
	ErrUnsupportedArch  = errors.New("jit: unsupported architecture")
	ErrRelocation       = errors.New("jit: relocation out of range")
	ErrUnresolvedSymbol = errors.New("jit: unresolved symbol")
)

// Compiler is the vm.JIT backend. One Compiler may serve several
// contexts.
type Compiler struct {
	// Arch selects the machine code encoder. ArchThreaded skips encoding.
	Arch string
	// Cache, when set, stores assembled images by bytecode digest.
	Cache *CodeCache

	mu       sync.RWMutex
	programs map[string]*Program

	compiled  atomic.Uint64
	failed    atomic.Uint64
	cacheHits atomic.Uint64
	nanos     atomic.Int64
}

var _ vm.JIT = (*Compiler)(nil)

// New returns a compiler for arch, a config.JIT arch value.
func New(arch string) *Compiler {
	return &Compiler{Arch: ResolveArch(arch), programs: map[string]*Program{}}
}

// ResolveArch maps config arch values to encoder names. The host maps to
// threaded-only when Go runs on an architecture without an encoder.
func ResolveArch(arch string) string {
	switch arch {
	case config.ArchAMD64, config.ArchARM64, ArchThreaded:
		return arch
	case config.ArchHost, "":
		switch runtime.GOARCH {
		case "amd64":
			return ArchAMD64
		case "arm64":
			return ArchARM64
		}
	}
	return ArchThreaded
}

// Install makes c the context's native backend.
func (c *Compiler) Install(ctx *vm.Context) { ctx.SetJIT(c) }

// Compile implements vm.JIT. It reads the instruction bytes without
// allocating, so the view stays valid for the whole compilation.
func (c *Compiler) Compile(ctx *vm.Context, bc tuple.Tuple, name string) (vm.CompiledCode, error) {
	start := time.Now()
	code := ctx.Instructions(bc)
	f, err := Lower(name, code, ctx.VectorSizes(bc))
	if err != nil {
		c.failed.Add(1)
		return nil, err
	}
	p := Thread(f)
	if c.Arch != ArchThreaded {
		img, err := c.assemble(f, code)
		if err != nil {
			log.Warningf("%s: no %s image: %v", name, c.Arch, err)
		} else {
			p.image, p.arch = img, img.Arch
		}
	}

	c.compiled.Add(1)
	c.nanos.Add(int64(time.Since(start)))
	c.mu.Lock()
	c.programs[name] = p
	c.mu.Unlock()
	return p, nil
}

func (c *Compiler) assemble(f *Function, code []byte) (*NativeImage, error) {
	key := CacheKey(c.Arch, code)
	if c.Cache != nil {
		img, ok, err := c.Cache.Get(key)
		if err != nil {
			log.Warningf("code cache: %v", err)
		}
		if ok {
			c.cacheHits.Add(1)
			img.Function = f.Name
			return img, img.Link(TableResolver)
		}
	}

	a, err := NewAssembler(c.Arch)
	if err != nil {
		return nil, err
	}
	img, err := Assemble(f, a)
	if err != nil {
		return nil, err
	}
	if c.Cache != nil {
		if err := c.Cache.Put(key, img); err != nil {
			log.Warningf("code cache: %v", err)
		}
	}
	return img, img.Link(TableResolver)
}

// Lookup returns the program last compiled under name.
func (c *Compiler) Lookup(name string) (*Program, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.programs[name]
	return p, ok
}

// Names lists the compiled functions.
func (c *Compiler) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.programs))
	for name := range c.programs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stats holds compiler counters.
type Stats struct {
	Compiled  uint64
	Failed    uint64
	CacheHits uint64
	Time      time.Duration
}

// Stats returns the compiler counters.
func (c *Compiler) Stats() Stats {
	return Stats{
		Compiled:  c.compiled.Load(),
		Failed:    c.failed.Load(),
		CacheHits: c.cacheHits.Load(),
		Time:      time.Duration(c.nanos.Load()),
	}
}

// ---------------------------------------------------------------------------
// Runtime entry
// ---------------------------------------------------------------------------

// RuntimeTableBase is the address TableResolver places the runtime
// table at. Each Runtime owns RuntimeTableStride bytes.
const (
	RuntimeTableBase   uint64 = 0x10000
	RuntimeTableStride uint64 = 16
)

// TableResolver resolves runtime symbols to their entry in the runtime
// table, so linked images show which entry each pool slot names.
func TableResolver(symbol string) (uint64, bool) {
	r, ok := symbolRuntime[symbol]
	if !ok {
		return 0, false
	}
	return RuntimeTableBase + RuntimeTableStride*uint64(r), true
}

var symbolRuntime = func() map[string]Runtime {
	m := make(map[string]Runtime, runtimeCount)
	for r := RuntimeNone; r < runtimeCount; r++ {
		m[r.Symbol()] = r
	}
	return m
}()

// NativeEntry performs op of p the way one runtime table call in a
// native image does: (act, program, op index) in, one result word out.
// The result is the branch condition for branches, the returned tuple
// word for returns, and zero otherwise.
func NativeEntry(act *vm.JITActivationRecord, p *Program, op int) uint64 {
	o := &p.fn.Ops[op]
	act.PC = o.PC
	switch o.Kind {
	case KindBranchTrue, KindBranchFalse:
		if act.Value(o.Operands[0]).IsFalsy() {
			return 0
		}
		return 1
	}
	_, result := p.steps[op](act.Context, act)
	return uint64(result)
}
