package jit

import (
	"github.com/chazu/tuuvm/tuple"
	"github.com/chazu/tuuvm/vm"
)

// step runs one IR op and returns the index of the next one. A negative
// index returns result from the function.
type step func(ctx *vm.Context, act *vm.JITActivationRecord) (next int, result tuple.Tuple)

// Program is the executable form of a Function: one closure per IR op,
// threaded through op indices. It holds no heap references, so it stays
// valid across collections.
type Program struct {
	fn    *Function
	steps []step
	pcs   []int
	arch  string
	image *NativeImage
}

var _ vm.CompiledCode = (*Program)(nil)

// Thread builds the executable program of f.
func Thread(f *Function) *Program {
	p := &Program{fn: f, arch: ArchThreaded, steps: make([]step, len(f.Ops)), pcs: make([]int, len(f.Ops))}
	for i := range f.Ops {
		p.steps[i] = threadOp(f, i)
		p.pcs[i] = f.Ops[i].PC
	}
	return p
}

// Run executes the program in act. act.PC tracks the op being executed so
// stack traces and send-site caches see bytecode addresses.
func (p *Program) Run(ctx *vm.Context, act *vm.JITActivationRecord) tuple.Tuple {
	for i := 0; ; {
		act.PC = p.pcs[i]
		next, result := p.steps[i](ctx, act)
		if next < 0 {
			return result
		}
		i = next
	}
}

// Info implements vm.CompiledCode.
func (p *Program) Info() vm.CodeInfo {
	info := vm.CodeInfo{Arch: p.arch, Ops: len(p.fn.Ops)}
	if p.image != nil {
		info.CodeSize = len(p.image.Code)
	}
	return info
}

// Function returns the IR the program was threaded from.
func (p *Program) Function() *Function { return p.fn }

// Image returns the machine code assembled for the program, or nil when
// the target architecture has no encoder.
func (p *Program) Image() *NativeImage { return p.image }

func threadOp(f *Function, i int) step {
	op := &f.Ops[i]
	next := i + 1
	ops := op.Operands

	switch op.Kind {
	case KindJump:
		target := op.Target
		return func(*vm.Context, *vm.JITActivationRecord) (int, tuple.Tuple) { return target, tuple.Null }

	case KindBranchTrue, KindBranchFalse:
		target, cond, want := op.Target, ops[0], op.Kind == KindBranchTrue
		return func(_ *vm.Context, act *vm.JITActivationRecord) (int, tuple.Tuple) {
			if !act.Value(cond).IsFalsy() == want {
				return target, tuple.Null
			}
			return next, tuple.Null
		}

	case KindReturn:
		v := ops[0]
		return func(_ *vm.Context, act *vm.JITActivationRecord) (int, tuple.Tuple) {
			return -1, act.Value(v)
		}

	case KindTrap:
		pc, end := op.PC, op.PC == f.CodeSize
		return func(ctx *vm.Context, act *vm.JITActivationRecord) (int, tuple.Tuple) {
			if end {
				vm.Fatalf("%s: pc %d outside code of %d bytes", ctx.FunctionName(act.Function), pc, f.CodeSize)
			}
			vm.Fatalf("%s: unreachable instruction executed at pc %d", ctx.FunctionName(act.Function), pc)
			return -1, tuple.Null
		}
	}

	run := runtimeStep(op)
	return func(ctx *vm.Context, act *vm.JITActivationRecord) (int, tuple.Tuple) {
		run(ctx, &act.BytecodeActivation)
		return next, tuple.Null
	}
}

// runtimeStep binds the operands of a KindCall op to its vm runtime
// operation. These mirror the interpreter's instruction cases.
func runtimeStep(op *Op) func(ctx *vm.Context, a *vm.BytecodeActivation) {
	ops := op.Operands
	pc := op.PC
	ternary := func(f func(ctx *vm.Context, x, y tuple.Tuple) tuple.Tuple) func(*vm.Context, *vm.BytecodeActivation) {
		d, x, y := ops[0], ops[1], ops[2]
		return func(ctx *vm.Context, a *vm.BytecodeActivation) {
			a.SetLocal(d, f(ctx, a.Value(x), a.Value(y)))
		}
	}

	switch op.Runtime {
	case RuntimeMove:
		d, v := ops[0], ops[1]
		return func(_ *vm.Context, a *vm.BytecodeActivation) { a.SetLocal(d, a.Value(v)) }

	case RuntimeAlloca:
		d, t := ops[0], ops[1]
		return func(ctx *vm.Context, a *vm.BytecodeActivation) { a.SetLocal(d, ctx.Alloca(a.Value(t))) }

	case RuntimeLoad:
		d, p := ops[0], ops[1]
		return func(ctx *vm.Context, a *vm.BytecodeActivation) { a.SetLocal(d, ctx.Load(a.Value(p))) }

	case RuntimeStore:
		p, v := ops[0], ops[1]
		return func(ctx *vm.Context, a *vm.BytecodeActivation) { ctx.Store(a.Value(p), a.Value(v)) }

	case RuntimeAllocaWithValue:
		return ternary((*vm.Context).AllocaWithValue)
	case RuntimeCoerce:
		return ternary((*vm.Context).CoerceValue)
	case RuntimeTypecheck:
		return ternary((*vm.Context).TypecheckValue)
	case RuntimeMakeAssociation:
		return ternary((*vm.Context).NewAssociation)
	case RuntimeSlotAt:
		return ternary((*vm.Context).SlotAtValue)

	case RuntimeSlotAtPut:
		t, idx, v := ops[0], ops[1], ops[2]
		return func(ctx *vm.Context, a *vm.BytecodeActivation) {
			ctx.SlotAtPutValue(a.Value(t), a.Value(idx), a.Value(v))
		}

	case RuntimeCall, RuntimeUncheckedCall:
		d, fn, args, unchecked := ops[0], ops[1], ops[2:], op.Runtime == RuntimeUncheckedCall
		return func(ctx *vm.Context, a *vm.BytecodeActivation) {
			a.SetLocal(d, ctx.Call(a.Value(fn), a.Values(args), unchecked))
		}

	case RuntimeSend:
		d, sel, args := ops[0], ops[1], ops[2:]
		return func(ctx *vm.Context, a *vm.BytecodeActivation) {
			a.SetLocal(d, ctx.SendAt(a, pc, tuple.Null, a.Value(sel), a.Values(args)))
		}

	case RuntimeSendWithLookup:
		d, lookup, sel, args := ops[0], ops[1], ops[2], ops[3:]
		return func(ctx *vm.Context, a *vm.BytecodeActivation) {
			a.SetLocal(d, ctx.SendAt(a, pc, a.Value(lookup), a.Value(sel), a.Values(args)))
		}

	case RuntimeMakeArray:
		d, elems := ops[0], ops[1:]
		return func(ctx *vm.Context, a *vm.BytecodeActivation) { a.SetLocal(d, ctx.NewArray(a.Values(elems)...)) }

	case RuntimeMakeClosure:
		d, def, captures := ops[0], ops[1], ops[2:]
		return func(ctx *vm.Context, a *vm.BytecodeActivation) {
			a.SetLocal(d, ctx.MakeClosure(a.Value(def), a.Values(captures)))
		}

	case RuntimeMakeDictionary:
		d, assocs := ops[0], ops[1:]
		return func(ctx *vm.Context, a *vm.BytecodeActivation) { a.SetLocal(d, ctx.MakeDictionary(a.Values(assocs))) }

	case RuntimeMakeTuple:
		d, typ, slots := ops[0], ops[1], ops[2:]
		return func(ctx *vm.Context, a *vm.BytecodeActivation) {
			a.SetLocal(d, ctx.MakeTuple(a.Value(typ), a.Values(slots)))
		}

	case RuntimeSafepoint:
		return func(_ *vm.Context, a *vm.BytecodeActivation) { a.Safepoint() }

	case RuntimeBreakpoint:
		return func(ctx *vm.Context, a *vm.BytecodeActivation) {
			log.Debugf("breakpoint in %s at pc %d", ctx.FunctionName(a.Function), pc)
		}
	}
	return func(ctx *vm.Context, a *vm.BytecodeActivation) {
		vm.Fatalf("%s: no runtime entry %s at pc %d", ctx.FunctionName(a.Function), op.Runtime, pc)
	}
}
