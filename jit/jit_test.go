package jit

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/chazu/tuuvm/ast"
	"github.com/chazu/tuuvm/bytecode"
	"github.com/chazu/tuuvm/compiler"
	"github.com/chazu/tuuvm/config"
	"github.com/chazu/tuuvm/corpus"
	"github.com/chazu/tuuvm/tuple"
	"github.com/chazu/tuuvm/vm"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newContext(t *testing.T, mode string, jit *Compiler) *vm.Context {
	t.Helper()
	cfg := config.Default()
	cfg.JIT.Mode = mode
	ctx, err := vm.NewContext(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(ctx.Destroy)
	ctx.SetOutput(io.Discard)
	ctx.SetErrorOutput(io.Discard)
	compiler.New().Install(ctx)
	if jit != nil {
		jit.Install(ctx)
	}
	return ctx
}

func loc(i int) bytecode.Operand { return bytecode.MustOperand(bytecode.VectorLocals, i) }
func lit(i int) bytecode.Operand { return bytecode.MustOperand(bytecode.VectorLiterals, i) }

func assemble(t *testing.T, insts ...[]any) []byte {
	t.Helper()
	var code []byte
	for _, in := range insts {
		op := in[0].(bytecode.Opcode)
		var ops []bytecode.Operand
		for _, o := range in[1:] {
			ops = append(ops, o.(bytecode.Operand))
		}
		if op.IsVariable() {
			var err error
			if op, err = op.WithCount(len(ops) - op.Info().FixedOperands); err != nil {
				t.Fatal(err)
			}
		}
		var err error
		if code, err = bytecode.AppendInstruction(code, op, ops...); err != nil {
			t.Fatal(err)
		}
	}
	return code
}

func inst(op bytecode.Opcode, ops ...any) []any { return append([]any{op}, ops...) }

func offset(t *testing.T, delta int) bytecode.Operand {
	t.Helper()
	o, err := bytecode.EncodeOffset(delta)
	if err != nil {
		t.Fatal(err)
	}
	return o
}

// rawCompiler hands out prebuilt bytecode instead of compiling the AST.
type rawCompiler struct {
	code     []byte
	locals   int
	literals func(ctx *vm.Context) []tuple.Tuple
}

func (r rawCompiler) Compile(ctx *vm.Context, def *ast.FunctionDef) (tuple.Tuple, error) {
	var lits []tuple.Tuple
	if r.literals != nil {
		lits = r.literals(ctx)
	}
	return ctx.NewFunctionBytecode(vm.BytecodeSpec{
		ArgumentCount: def.ArgumentCount,
		LocalCount:    r.locals,
		Literals:      lits,
		Instructions:  r.code,
	}), nil
}

// loopCode counts l0 from 0 to 10 with a backward conditional jump.
func loopCode(t *testing.T) []byte {
	t.Helper()
	head := assemble(t, inst(bytecode.OpMove, loc(0), lit(0)))
	body := assemble(t,
		inst(bytecode.OpSend, loc(0), lit(1), loc(0), lit(2)),
		inst(bytecode.OpSend, loc(1), lit(3), loc(0), lit(4)),
	)
	branchSize := bytecode.OpJumpIfTrue.Size()
	back := assemble(t, inst(bytecode.OpJumpIfTrue, loc(1), offset(t, -(len(body)+branchSize))))
	tail := assemble(t, inst(bytecode.OpReturn, loc(0)))
	return append(append(append(head, body...), back...), tail...)
}

func loopLiterals(ctx *vm.Context) []tuple.Tuple {
	return []tuple.Tuple{
		tuple.FromSmallInteger(0), ctx.Intern("+"), tuple.FromSmallInteger(1),
		ctx.Intern("<"), tuple.FromSmallInteger(10),
	}
}

// ---------------------------------------------------------------------------
// Lowering
// ---------------------------------------------------------------------------

func TestLowerBackEdgeGetsSafepoint(t *testing.T) {
	code := loopCode(t)
	f, err := Lower("loop", code, bytecode.VectorSizes{Literals: 5, Locals: 2})
	if err != nil {
		t.Fatal(err)
	}
	// move, send, send, jfalse, safepoint, jmp, ret, trap
	want := []string{"move", "send", "send", "jfalse", "safepoint", "jmp", "ret", "trap"}
	if len(f.Ops) != len(want) {
		t.Fatalf("ops:\n%s", f.Listing())
	}
	for i, m := range want {
		if got := f.Ops[i].Mnemonic(); got != m {
			t.Errorf("op %d is %s, want %s", i, got, m)
		}
	}
	if f.Ops[3].Target != 6 || f.Ops[5].Target != 1 {
		t.Errorf("targets %d and %d:\n%s", f.Ops[3].Target, f.Ops[5].Target, f.Listing())
	}
	if !f.IsLabel(1) || !f.IsLabel(6) || f.IsLabel(2) {
		t.Error("labels not marked at jump targets")
	}
	if got := f.Runtimes(); !reflect.DeepEqual(got, []Runtime{RuntimeMove, RuntimeSend, RuntimeTruthy, RuntimeSafepoint, RuntimeReturn, RuntimeTrap}) {
		t.Errorf("runtimes %v", got)
	}
}

func TestLowerForwardJumpHasNoSafepoint(t *testing.T) {
	code := assemble(t,
		inst(bytecode.OpJump, offset(t, bytecode.OpNop.Size())),
		inst(bytecode.OpNop),
		inst(bytecode.OpReturn, lit(0)),
	)
	f, err := Lower("skip", code, bytecode.VectorSizes{Literals: 1})
	if err != nil {
		t.Fatal(err)
	}
	for _, op := range f.Ops {
		if op.Runtime == RuntimeSafepoint {
			t.Fatalf("forward jump got a safepoint:\n%s", f.Listing())
		}
	}
	// The nop lowers to nothing, so the jump lands on the return.
	if f.Ops[0].Kind != KindJump || f.Ops[f.Ops[0].Target].Kind != KindReturn {
		t.Errorf("bad jump:\n%s", f.Listing())
	}
}

func TestLowerRejectsInvalidBytecode(t *testing.T) {
	tests := []struct {
		name string
		code []byte
	}{
		{"bad opcode", []byte{0x26}},
		{"truncated", []byte{byte(bytecode.OpReturn)}},
		{"literal out of range", assemble(t, inst(bytecode.OpReturn, lit(3)))},
		{"store into literal", assemble(t, inst(bytecode.OpMove, lit(0), lit(0)))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Lower(tt.name, tt.code, bytecode.VectorSizes{Literals: 1}); !errors.Is(err, ErrInvalidBytecode) {
				t.Errorf("err = %v, want ErrInvalidBytecode", err)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Execution
// ---------------------------------------------------------------------------

func TestProgramsMatchInterpreter(t *testing.T) {
	for _, p := range corpus.All() {
		t.Run(p.Name, func(t *testing.T) {
			interpreted := runProgram(t, newContext(t, config.JITOff, nil), p.Name)
			jit := New(ArchThreaded)
			compiled := runProgram(t, newContext(t, config.JITEager, jit), p.Name)
			if interpreted != compiled {
				t.Errorf("interpreter %s, jit %s", interpreted, compiled)
			}
			if jit.Stats().Compiled == 0 {
				t.Error("nothing was compiled")
			}
		})
	}
}

func runProgram(t *testing.T, ctx *vm.Context, name string) string {
	t.Helper()
	p, _ := corpus.Lookup(name)
	return ctx.PrintString(ctx.Catch(tuple.Null, func() tuple.Tuple {
		return p.Run(ctx)
	}, func(e tuple.Tuple) tuple.Tuple { return e }))
}

// TestProgramsSurviveCollectionAtEverySafepoint runs the corpus on a heap
// of minimum-size chunks that collects whenever anything was allocated.
func TestProgramsSurviveCollectionAtEverySafepoint(t *testing.T) {
	for _, mode := range []string{config.JITOff, config.JITEager} {
		for _, name := range corpus.Names() {
			t.Run(mode+"/"+name, func(t *testing.T) {
				p, _ := corpus.Lookup(name)
				cfg := config.Default()
				cfg.JIT.Mode = mode
				cfg.Heap.ChunkSize = 4096
				cfg.Heap.GCThreshold = 1
				if err := cfg.Validate(); err != nil {
					t.Fatal(err)
				}
				ctx, err := vm.NewContext(cfg)
				if err != nil {
					t.Fatal(err)
				}
				defer ctx.Destroy()
				ctx.SetOutput(io.Discard)
				ctx.SetErrorOutput(io.Discard)
				compiler.New().Install(ctx)
				jit := New(ArchThreaded)
				jit.Install(ctx)

				raised := false
				got := ctx.PrintString(ctx.Catch(tuple.Null, func() tuple.Tuple {
					return p.Run(ctx)
				}, func(e tuple.Tuple) tuple.Tuple {
					raised = true
					return e
				}))
				want := p.Result
				if p.Error != "" {
					want = p.Error
				}
				if got != want || raised != (p.Error != "") {
					t.Errorf("got %s (raised %v), want %s", got, raised, want)
				}
				if ctx.Heap().Cycles() == 0 {
					t.Error("no collection ran")
				}
				if mode == config.JITEager && jit.Stats().Compiled == 0 {
					t.Error("nothing was compiled")
				}
			})
		}
	}
}

func TestLazyModeCompilesAtThreshold(t *testing.T) {
	jit := New(ArchThreaded)
	ctx := newContext(t, config.JITLazy, jit)
	p, _ := corpus.Lookup("factorial")
	p.Install(ctx)
	call := func() tuple.Tuple {
		fact, _ := ctx.Global("factorial")
		return ctx.Call(fact, []tuple.Tuple{tuple.FromSmallInteger(5)}, false)
	}

	threshold := ctx.Config().JIT.Threshold
	for i := 1; i < threshold; i++ {
		call()
		if jit.Stats().Compiled != 0 {
			t.Fatalf("compiled after %d calls", i)
		}
	}
	got := call()
	if ctx.PrintString(got) != "120" {
		t.Errorf("factorial(5) = %s", ctx.PrintString(got))
	}
	if jit.Stats().Compiled != 1 {
		t.Errorf("compiled %d, want 1", jit.Stats().Compiled)
	}
	if _, ok := jit.Lookup("factorial"); !ok {
		t.Error("program not registered")
	}
}

func TestLoopRunsWithSafepoints(t *testing.T) {
	jit := New(ArchThreaded)
	ctx := newContext(t, config.JITEager, jit)
	ctx.SetCompiler(rawCompiler{code: loopCode(t), locals: 2, literals: loopLiterals})
	got := ctx.Apply(ctx.DefineFunction(&ast.FunctionDef{Name: "loop"}))
	if ctx.PrintString(got) != "10" {
		t.Errorf("loop = %s", ctx.PrintString(got))
	}
	p, ok := jit.Lookup("loop")
	if !ok || p.Info().Arch != ArchThreaded || p.Info().Ops != 8 {
		t.Errorf("program info %+v", p.Info())
	}
}

func TestFallingOffTheEndIsFatal(t *testing.T) {
	ctx := newContext(t, config.JITEager, New(ArchThreaded))
	ctx.SetCompiler(rawCompiler{
		code:     assemble(t, inst(bytecode.OpMove, loc(0), lit(0))),
		locals:   1,
		literals: func(*vm.Context) []tuple.Tuple { return []tuple.Tuple{tuple.Null} },
	})
	fn := ctx.DefineFunction(&ast.FunctionDef{Name: "endless"})
	defer func() {
		if _, ok := recover().(*vm.FatalError); !ok {
			t.Error("expected a fatal error")
		}
	}()
	ctx.Apply(fn)
}

func TestExceptionTraceShowsCompiledFrames(t *testing.T) {
	ctx := newContext(t, config.JITEager, New(ArchThreaded))
	p, _ := corpus.Lookup("factorialNegative")
	var trace string
	ctx.Catch(tuple.Null, func() tuple.Tuple {
		return p.Run(ctx)
	}, func(e tuple.Tuple) tuple.Tuple {
		trace = ctx.RenderStackTrace(ctx.Heap().Slot(e, vm.ExceptionStackTrace))
		return e
	})
	if !bytes.Contains([]byte(trace), []byte("at factorial")) {
		t.Errorf("trace misses the compiled frame:\n%s", trace)
	}
}

func TestNativeEntryEvaluatesBranches(t *testing.T) {
	jit := New(ArchThreaded)
	ctx := newContext(t, config.JITOff, jit)
	ctx.SetCompiler(rawCompiler{code: loopCode(t), locals: 2, literals: loopLiterals})
	fn := ctx.DefineFunction(&ast.FunctionDef{Name: "loop"})
	bc, err := ctx.CompileDefinition(ctx.Heap().Slot(fn, vm.FunctionDefinition))
	if err != nil {
		t.Fatal(err)
	}
	code, err := ctx.CompileNative(bc, "loop")
	if err != nil {
		t.Fatal(err)
	}
	p := code.(*Program)

	act := &vm.JITActivationRecord{Code: p}
	act.Context = ctx
	act.Bytecode = bc
	act.Literals = ctx.Literals(bc)
	act.Locals = []tuple.Tuple{tuple.Null, tuple.False}
	// op 3 is jfalse on l1.
	if got := NativeEntry(act, p, 3); got != 0 {
		t.Errorf("falsy condition gave %d", got)
	}
	act.Locals[1] = tuple.True
	if got := NativeEntry(act, p, 3); got != 1 {
		t.Errorf("truthy condition gave %d", got)
	}
	act.Locals[0] = tuple.FromSmallInteger(7)
	if got := tuple.Tuple(NativeEntry(act, p, 6)); got != tuple.FromSmallInteger(7) {
		t.Errorf("return gave %v", got)
	}
	if act.PC != p.Function().Ops[6].PC {
		t.Errorf("pc %d not updated", act.PC)
	}
}

// ---------------------------------------------------------------------------
// Encoders
// ---------------------------------------------------------------------------

// smallFunction is: 0: move; 1: jmp 0; 2: ret.
func smallFunction() *Function {
	return &Function{
		Name: "small",
		Ops: []Op{
			{Kind: KindCall, Runtime: RuntimeMove, Operands: []bytecode.Operand{loc(0), lit(0)}},
			{Kind: KindJump, Target: 0},
			{Kind: KindReturn, Operands: []bytecode.Operand{loc(0)}},
		},
		labels: map[int]bool{0: true},
	}
}

func TestAMD64Encoding(t *testing.T) {
	img, err := Assemble(smallFunction(), newAMD64())
	if err != nil {
		t.Fatal(err)
	}
	prologue := []byte{0x41, 0x54, 0x41, 0x55, 0x53, 0x49, 0x89, 0xFC, 0x49, 0x89, 0xF5}
	if !bytes.HasPrefix(img.Code, prologue) {
		t.Fatalf("prologue % x", img.Code[:len(prologue)])
	}
	call := img.Symbols[0]
	if call != len(prologue) {
		t.Fatalf("op 0 at %d", call)
	}
	want := []byte{0x4C, 0x89, 0xE7, 0x4C, 0x89, 0xEE, 0xBA, 0, 0, 0, 0, 0xFF, 0x15}
	if !bytes.Equal(img.Code[call:call+len(want)], want) {
		t.Fatalf("call sequence % x", img.Code[call:call+len(want)])
	}
	field := call + len(want)
	disp := int32(binary.LittleEndian.Uint32(img.Code[field:]))
	if got := field + 4 + int(disp); got != img.ConstantsOffset {
		t.Errorf("call resolves to %d, pool at %d", got, img.ConstantsOffset)
	}

	jmp := img.Symbols[1]
	if img.Code[jmp] != 0xE9 {
		t.Fatalf("jmp opcode %#x", img.Code[jmp])
	}
	rel := int32(binary.LittleEndian.Uint32(img.Code[jmp+1:]))
	if got := jmp + 5 + int(rel); got != call {
		t.Errorf("jmp lands at %d, want %d", got, call)
	}
	if img.ConstantsOffset%8 != 0 || len(img.Constants) != 2 {
		t.Errorf("pool at %d with %v", img.ConstantsOffset, img.Constants)
	}
	ret := img.Code[img.Symbols[2]:img.ConstantsOffset]
	if !bytes.Contains(ret, []byte{0x5B, 0x41, 0x5D, 0x41, 0x5C, 0xC3}) {
		t.Errorf("epilogue % x", ret)
	}
}

func TestARM64Encoding(t *testing.T) {
	img, err := Assemble(smallFunction(), newARM64())
	if err != nil {
		t.Fatal(err)
	}
	word := func(off int) uint32 { return binary.LittleEndian.Uint32(img.Code[off:]) }
	if word(0) != 0xA9BE7BFD || word(16) != 0xAA0103F4 {
		t.Fatalf("prologue % x", img.Code[:20])
	}
	call := img.Symbols[0]
	if word(call+8) != 0x52800002 {
		t.Errorf("movz w2 = %#x", word(call+8))
	}
	ldr := word(call + 12)
	if ldr&0xFF00001F != 0x58000010 {
		t.Fatalf("ldr literal = %#x", ldr)
	}
	imm19 := int((ldr >> 5) & 0x7FFFF)
	if got := call + 12 + 4*imm19; got != img.ConstantsOffset {
		t.Errorf("literal at %d, pool at %d", got, img.ConstantsOffset)
	}

	b := word(img.Symbols[1])
	if b&0xFC000000 != 0x14000000 {
		t.Fatalf("b = %#x", b)
	}
	imm26 := int32(b<<6) >> 6
	if got := img.Symbols[1] + 4*int(imm26); got != call {
		t.Errorf("b lands at %d, want %d", got, call)
	}
}

func TestBranchEncodingPicksCondition(t *testing.T) {
	f := &Function{
		Name: "branch",
		Ops: []Op{
			{Kind: KindBranchFalse, Operands: []bytecode.Operand{loc(0)}, Target: 2},
			{Kind: KindBranchTrue, Operands: []bytecode.Operand{loc(0)}, Target: 2},
			{Kind: KindReturn, Operands: []bytecode.Operand{loc(0)}},
		},
		labels: map[int]bool{2: true},
	}
	img, err := Assemble(f, newAMD64())
	if err != nil {
		t.Fatal(err)
	}
	jz := bytes.Index(img.Code, []byte{0x48, 0x85, 0xC0, 0x0F, 0x84})
	jnz := bytes.Index(img.Code, []byte{0x48, 0x85, 0xC0, 0x0F, 0x85})
	if jz < 0 || jnz < 0 || jz > jnz {
		t.Errorf("jz at %d, jnz at %d", jz, jnz)
	}

	arm, err := Assemble(f, newARM64())
	if err != nil {
		t.Fatal(err)
	}
	var cbz, cbnz int
	for off := 0; off < arm.ConstantsOffset; off += 4 {
		switch binary.LittleEndian.Uint32(arm.Code[off:]) & 0xFF00001F {
		case 0xB4000000:
			cbz++
		case 0xB5000000:
			cbnz++
		}
	}
	if cbz != 1 || cbnz != 1 {
		t.Errorf("cbz %d, cbnz %d", cbz, cbnz)
	}
}

func TestRelocationRange(t *testing.T) {
	code := make([]byte, 8)
	r := Relocation{Kind: RelocImm19, Offset: 0}
	if err := patch(code, r, 4<<20); !errors.Is(err, ErrRelocation) {
		t.Errorf("imm19 over 1MB: %v", err)
	}
	if err := patch(code, r, 6); !errors.Is(err, ErrRelocation) {
		t.Errorf("unaligned: %v", err)
	}
	if err := patch(code, Relocation{Kind: RelocRel32, Offset: 4}, -8); err != nil {
		t.Fatal(err)
	}
	if got := int32(binary.LittleEndian.Uint32(code[4:])); got != -16 {
		t.Errorf("rel32 = %d", got)
	}
	if _, err := NewAssembler("riscv64"); !errors.Is(err, ErrUnsupportedArch) {
		t.Errorf("riscv64: %v", err)
	}
}

func TestLinkFillsPool(t *testing.T) {
	img, err := Assemble(smallFunction(), newAMD64())
	if err != nil {
		t.Fatal(err)
	}
	if err := img.Link(func(string) (uint64, bool) { return 0, false }); !errors.Is(err, ErrUnresolvedSymbol) {
		t.Errorf("err = %v", err)
	}
	if err := img.Link(TableResolver); err != nil {
		t.Fatal(err)
	}
	for i, sym := range img.Constants {
		want := RuntimeTableBase + RuntimeTableStride*uint64(symbolRuntime[sym])
		if got := binary.LittleEndian.Uint64(img.Code[img.ConstantsOffset+8*i:]); got != want {
			t.Errorf("slot %d (%s) = %#x, want %#x", i, sym, got, want)
		}
	}
	if _, ok := TableResolver("tuuvm.rt.nope"); ok {
		t.Error("unknown symbol resolved")
	}
	if u := img.Unlinked(); binary.LittleEndian.Uint64(u.Code[u.ConstantsOffset:]) != 0 || u.Linked {
		t.Error("Unlinked kept addresses")
	}
	if !bytes.Contains([]byte(img.Dump()), []byte(".quad tuuvm.rt.move")) {
		t.Errorf("dump:\n%s", img.Dump())
	}
}

// relocTarget decodes the code offset a patched relocation field points at.
func relocTarget(img *NativeImage, r Relocation) int {
	field := binary.LittleEndian.Uint32(img.Code[r.Offset:])
	switch r.Kind {
	case RelocRel32, RelocPCRel32:
		return r.Offset + 4 + int(int32(field))
	case RelocImm26:
		return r.Offset + 4*signExtend(field&(1<<26-1), 26)
	default:
		return r.Offset + 4*signExtend(field>>5&(1<<19-1), 19)
	}
}

func signExtend(v uint32, bits int) int {
	shift := 32 - bits
	return int(int32(v<<shift) >> shift)
}

// opRuntime is the runtime entry the code of op calls, if any.
func opRuntime(op *Op) (Runtime, bool) {
	switch op.Kind {
	case KindCall:
		return op.Runtime, true
	case KindBranchTrue, KindBranchFalse:
		return RuntimeTruthy, true
	case KindReturn:
		return RuntimeReturn, true
	case KindTrap:
		return RuntimeTrap, true
	}
	return RuntimeNone, false
}

// opAt is the op whose code contains offset off.
func opAt(img *NativeImage, off int) int {
	best, start := -1, -1
	for op, at := range img.Symbols {
		if at <= off && at > start {
			best, start = op, at
		}
	}
	return best
}

func TestImageRelocationsResolve(t *testing.T) {
	f, err := Lower("loop", loopCode(t), bytecode.VectorSizes{Literals: 5, Locals: 2})
	if err != nil {
		t.Fatal(err)
	}
	used := map[string]bool{}
	for _, r := range f.Runtimes() {
		used[r.Symbol()] = true
	}

	for _, a := range []Assembler{newAMD64(), newARM64()} {
		t.Run(a.Arch(), func(t *testing.T) {
			img, err := Assemble(f, a)
			if err != nil {
				t.Fatal(err)
			}
			if err := img.Link(TableResolver); err != nil {
				t.Fatal(err)
			}
			if img.ConstantsOffset%8 != 0 || len(img.Code) != img.ConstantsOffset+8*len(img.Constants) {
				t.Fatalf("pool at %d with %d slots in %d bytes", img.ConstantsOffset, len(img.Constants), len(img.Code))
			}
			if len(img.Constants) != len(used) {
				t.Errorf("pool %v, want one slot per runtime in %v", img.Constants, f.Runtimes())
			}
			if len(img.Symbols) != len(f.Ops) {
				t.Errorf("%d op starts for %d ops", len(img.Symbols), len(f.Ops))
			}

			abs := make([]int, len(img.Constants))
			for _, r := range img.Relocations {
				switch r.Kind {
				case RelocAbs64:
					if r.Label < 0 || r.Label >= len(img.Constants) ||
						r.Offset != img.ConstantsOffset+8*r.Label || r.Symbol != img.Constants[r.Label] {
						t.Errorf("abs64 %+v does not match its slot", r)
						continue
					}
					abs[r.Label]++
					want, _ := TableResolver(r.Symbol)
					if got := binary.LittleEndian.Uint64(img.Code[r.Offset:]); got != want {
						t.Errorf("slot %d = %#x, want %#x", r.Label, got, want)
					}

				case RelocPCRel32, RelocLiteral19:
					if r.Label < 0 || r.Label >= len(img.Constants) || r.Offset >= img.ConstantsOffset {
						t.Errorf("pool relocation %+v out of place", r)
						continue
					}
					if got := relocTarget(img, r); got != img.ConstantsOffset+8*r.Label {
						t.Errorf("%s at %#x reaches %#x, want slot %d", r.Kind, r.Offset, got, r.Label)
					}
					op := opAt(img, r.Offset)
					rt, ok := opRuntime(&f.Ops[op])
					if !ok || rt.Symbol() != img.Constants[r.Label] {
						t.Errorf("op %d (%s) loads %s", op, f.Ops[op].Mnemonic(), img.Constants[r.Label])
					}

				default:
					start, ok := img.Symbols[r.Label]
					if !ok {
						t.Errorf("%s at %#x targets unknown op %d", r.Kind, r.Offset, r.Label)
						continue
					}
					if got := relocTarget(img, r); got != start {
						t.Errorf("%s at %#x reaches %#x, want op %d at %#x", r.Kind, r.Offset, got, r.Label, start)
					}
				}
			}
			for i, n := range abs {
				if n != 1 || !used[img.Constants[i]] {
					t.Errorf("slot %d (%s) has %d abs64 relocations", i, img.Constants[i], n)
				}
			}
		})
	}
}

func TestHostArchGetsImage(t *testing.T) {
	jit := New(config.ArchAMD64)
	ctx := newContext(t, config.JITEager, jit)
	p, _ := corpus.Lookup("loops")
	if got := ctx.PrintString(p.Run(ctx)); got != p.Result {
		t.Fatalf("loops = %s", got)
	}
	prog, ok := jit.Lookup("main")
	if !ok || prog.Image() == nil || !prog.Image().Linked {
		t.Fatal("no linked image for main")
	}
	if info := prog.Info(); info.Arch != ArchAMD64 || info.CodeSize == 0 {
		t.Errorf("info %+v", info)
	}
}

// ---------------------------------------------------------------------------
// Code cache
// ---------------------------------------------------------------------------

func TestCodeCacheRoundTrip(t *testing.T) {
	cache, err := OpenCodeCache(filepath.Join(t.TempDir(), "jit"))
	if err != nil {
		t.Fatal(err)
	}
	img, err := Assemble(smallFunction(), newARM64())
	if err != nil {
		t.Fatal(err)
	}
	if err := img.Link(TableResolver); err != nil {
		t.Fatal(err)
	}
	key := CacheKey(ArchARM64, []byte{1, 2, 3})
	if _, ok, err := cache.Get(key); ok || err != nil {
		t.Fatalf("empty cache: %v %v", ok, err)
	}
	if err := cache.Put(key, img); err != nil {
		t.Fatal(err)
	}
	got, ok, err := cache.Get(key)
	if !ok || err != nil {
		t.Fatalf("get: %v %v", ok, err)
	}
	if !bytes.Equal(got.Code, img.Unlinked().Code) || !reflect.DeepEqual(got.Symbols, img.Symbols) {
		t.Error("image changed in the cache")
	}
	if len(got.Relocations) != len(img.Relocations) || got.Arch != ArchARM64 {
		t.Errorf("metadata lost: %+v", got)
	}

	if err := os.WriteFile(cache.pathFor(key), []byte{0xC0}, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := cache.Get(key); ok || err == nil {
		t.Error("corrupt entry accepted")
	}
	if CacheKey(ArchAMD64, []byte{1, 2, 3}) == key {
		t.Error("key ignores the architecture")
	}
}

func TestCompilersShareCache(t *testing.T) {
	cache, err := OpenCodeCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	run := func() *Compiler {
		jit := New(config.ArchARM64)
		jit.Cache = cache
		ctx := newContext(t, config.JITEager, jit)
		p, _ := corpus.Lookup("factorial")
		if got := ctx.PrintString(p.Run(ctx)); got != p.Result {
			t.Fatalf("factorial = %s", got)
		}
		return jit
	}
	if first := run(); first.Stats().CacheHits != 0 {
		t.Errorf("cold cache hit %d times", first.Stats().CacheHits)
	}
	second := run()
	if s := second.Stats(); s.CacheHits == 0 || s.CacheHits != s.Compiled {
		t.Errorf("warm cache stats %+v", s)
	}
}

func TestExportImport(t *testing.T) {
	a, _ := Assemble(smallFunction(), newAMD64())
	b, _ := Assemble(smallFunction(), newARM64())
	var buf bytes.Buffer
	if err := Export(&buf, []*NativeImage{a, b}); err != nil {
		t.Fatal(err)
	}
	images, err := Import(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(images) != 2 || images[0].Arch != ArchAMD64 || images[1].Arch != ArchARM64 {
		t.Fatalf("imported %d images", len(images))
	}
	if !bytes.Equal(images[1].Code, b.Code) || images[0].Function != "small" {
		t.Error("image contents changed")
	}
}
