package vm

import (
	"time"

	"github.com/chazu/tuuvm/config"
	"github.com/chazu/tuuvm/tuple"
)

// ---------------------------------------------------------------------------
// Native code hooks
// ---------------------------------------------------------------------------

// CodeInfo describes a compiled native function.
type CodeInfo struct {
	Arch     string
	Ops      int
	CodeSize int
}

// CompiledCode is native code for one FunctionBytecode. Run executes it in
// an activation the VM has already pushed.
type CompiledCode interface {
	Run(ctx *Context, act *JITActivationRecord) tuple.Tuple
	Info() CodeInfo
}

// JIT compiles FunctionBytecode tuples to native code. Compile must not
// reach a safepoint. name is the function name for diagnostics.
type JIT interface {
	Compile(ctx *Context, bytecode tuple.Tuple, name string) (CompiledCode, error)
}

// SetJIT installs the native code backend. It is only used when the
// configured jit mode is not off.
func (ctx *Context) SetJIT(j JIT) { ctx.jit = j }

// Trampoline is the indirection every call of a FunctionBytecode goes
// through. Compiling the function retargets it, so callers holding the
// trampoline pick up the new code on their next call.
type Trampoline struct {
	Target  CompiledCode
	Session uint64
	Calls   int
	Failed  bool
}

// sessionSlotMatches reports whether a side-table index stored in slot of
// bc was written by this context instance.
func (ctx *Context) sessionSlotMatches(bc tuple.Tuple, tokenSlot int) bool {
	token := ctx.heap.Slot(bc, tokenSlot)
	return !token.IsNull() && uint64(token.Index()) == ctx.session
}

// trampolineFor returns the trampoline of bc, allocating one when bc has
// none or carries a stale session token.
func (ctx *Context) trampolineFor(bc tuple.Tuple) *Trampoline {
	h := ctx.heap
	if ctx.sessionSlotMatches(bc, BytecodeJittedCodeTrampolineSessionToken) {
		i := h.Slot(bc, BytecodeJittedCodeTrampoline).Index()
		if i >= 0 && i < len(ctx.trampolines) {
			return ctx.trampolines[i]
		}
	}
	t := &Trampoline{Session: ctx.session}
	h.SetSlot(bc, BytecodeJittedCodeTrampoline, tuple.FromIndex(len(ctx.trampolines)))
	h.SetSlot(bc, BytecodeJittedCodeTrampolineSessionToken, tuple.FromIndex(int(ctx.session)))
	ctx.trampolines = append(ctx.trampolines, t)
	return t
}

// JittedCode returns the native code of bc, or nil when it has none in
// this session.
func (ctx *Context) JittedCode(bc tuple.Tuple) CompiledCode {
	if !ctx.sessionSlotMatches(bc, BytecodeJittedCodeSessionToken) {
		return nil
	}
	i := ctx.heap.Slot(bc, BytecodeJittedCode).Index()
	if i < 0 || i >= len(ctx.codeTable) {
		return nil
	}
	return ctx.codeTable[i]
}

// CompileNative compiles bc now, regardless of the jit mode, and retargets
// its trampoline.
func (ctx *Context) CompileNative(bc tuple.Tuple, name string) (CompiledCode, error) {
	if ctx.jit == nil {
		return nil, ErrNoJIT
	}
	t := ctx.trampolineFor(bc)
	start := time.Now()
	code, err := ctx.jit.Compile(ctx, bc, name)
	event := JITEvent{Function: name, Session: ctx.session, Duration: time.Since(start), Err: err}
	if err != nil {
		t.Failed = true
		log.Warningf("jit: %s: %v", name, err)
	} else {
		info := code.Info()
		event.Arch, event.Ops, event.CodeSize = info.Arch, info.Ops, info.CodeSize
		ctx.heap.SetSlot(bc, BytecodeJittedCode, tuple.FromIndex(len(ctx.codeTable)))
		ctx.heap.SetSlot(bc, BytecodeJittedCodeSessionToken, tuple.FromIndex(int(ctx.session)))
		ctx.codeTable = append(ctx.codeTable, code)
		t.Target = code
		log.Debugf("jit: compiled %s (%s, %d ops, %d bytes) in %s", name, info.Arch, info.Ops, info.CodeSize, event.Duration)
	}
	for _, o := range ctx.observers {
		o.JITCompiled(event)
	}
	return code, err
}

func (ctx *Context) compileNative(bc tuple.Tuple, name string) {
	// Failures are logged and leave the function interpreted.
	_, _ = ctx.CompileNative(bc, name)
}

// nativeCodeFor picks the code to run for bc according to the jit mode:
// nil means interpret.
func (ctx *Context) nativeCodeFor(bc tuple.Tuple, name string) CompiledCode {
	if ctx.jit == nil || ctx.cfg.JIT.Mode == config.JITOff || ctx.cfg.JIT.Mode == "" {
		return nil
	}
	t := ctx.trampolineFor(bc)
	if t.Target != nil || t.Failed {
		return t.Target
	}
	t.Calls++
	if ctx.cfg.JIT.Mode == config.JITEager || t.Calls >= ctx.cfg.JIT.Threshold {
		ctx.compileNative(bc, name)
	}
	return t.Target
}
