package vm

import (
	"io"
	"testing"

	"github.com/chazu/tuuvm/ast"
	"github.com/chazu/tuuvm/bytecode"
	"github.com/chazu/tuuvm/tuple"
)

func newTestContext(t *testing.T) *Context {
	t.Helper()
	ctx, err := NewContext(nil)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	ctx.SetOutput(io.Discard)
	ctx.SetErrorOutput(io.Discard)
	t.Cleanup(ctx.Destroy)
	return ctx
}

// catch runs body under a catch-all landing pad and returns either its
// result or the exception it raised.
func catch(ctx *Context, body func() tuple.Tuple) (result, exc tuple.Tuple) {
	caught := false
	r := ctx.Catch(tuple.Null, body, func(e tuple.Tuple) tuple.Tuple {
		caught = true
		return e
	})
	if caught {
		return tuple.Null, r
	}
	return r, tuple.Null
}

func expectException(t *testing.T, ctx *Context, kind WellKnownType, body func() tuple.Tuple) tuple.Tuple {
	t.Helper()
	_, exc := catch(ctx, body)
	if exc.IsNull() {
		t.Fatalf("expected %s, nothing was raised", typeSpecs[kind].name)
	}
	if !ctx.IsKindOfWellKnown(exc, kind) {
		t.Fatalf("expected %s, got %s", typeSpecs[kind].name, ctx.PrintString(exc))
	}
	return exc
}

func expectFatal(t *testing.T, body func()) (fe *FatalError) {
	t.Helper()
	defer func() {
		r := recover()
		var ok bool
		if fe, ok = r.(*FatalError); !ok {
			t.Fatalf("expected a FatalError panic, got %v", r)
		}
	}()
	body()
	return nil
}

func intValue(t *testing.T, ctx *Context, v tuple.Tuple) int64 {
	t.Helper()
	n, ok := ctx.TryDecodeInt64(v)
	if !ok {
		t.Fatalf("expected an integer, got %s", ctx.PrintString(v))
	}
	return n
}

// ---------------------------------------------------------------------------
// Hand-assembled functions
// ---------------------------------------------------------------------------

func arg(i int) bytecode.Operand { return bytecode.MustOperand(bytecode.VectorArguments, i) }
func lit(i int) bytecode.Operand { return bytecode.MustOperand(bytecode.VectorLiterals, i) }
func loc(i int) bytecode.Operand { return bytecode.MustOperand(bytecode.VectorLocals, i) }

func offset(delta int) bytecode.Operand {
	o, err := bytecode.EncodeOffset(delta)
	if err != nil {
		panic(err)
	}
	return o
}

type asmInst struct {
	op  bytecode.Opcode
	ops []bytecode.Operand
}

func in(op bytecode.Opcode, ops ...bytecode.Operand) asmInst {
	if op.IsVariable() {
		fixed := op.Info().FixedOperands
		var err error
		if op, err = op.WithCount(len(ops) - fixed); err != nil {
			panic(err)
		}
	}
	return asmInst{op, ops}
}

// assembledFunction builds a function whose definition already carries
// bytecode, so no compiler is needed.
func assembledFunction(t *testing.T, ctx *Context, name string, argc, locals int, literals []tuple.Tuple, insts ...asmInst) tuple.Tuple {
	t.Helper()
	var code []byte
	for _, i := range insts {
		var err error
		if code, err = bytecode.AppendInstruction(code, i.op, i.ops...); err != nil {
			t.Fatal(err)
		}
	}
	spec := BytecodeSpec{ArgumentCount: argc, LocalCount: locals, Literals: literals, Instructions: code}
	if err := bytecode.Validate(code, bytecode.VectorSizes{Arguments: argc, Literals: len(literals), Locals: locals}); err != nil {
		t.Fatalf("invalid test bytecode: %v", err)
	}
	d := ctx.NewFunctionDefinition(&ast.FunctionDef{Name: name, ArgumentCount: argc})
	ctx.heap.SetSlot(d, DefinitionBytecode, ctx.NewFunctionBytecode(spec))
	return ctx.NewClosure(d, nil)
}

// goFunction wraps a Go closure as a primitive function.
func goFunction(ctx *Context, name string, argc int, body func(args []tuple.Tuple) tuple.Tuple) tuple.Tuple {
	return ctx.CreatePrimitive("test."+name, argc, 0, func(_ *Context, _ tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
		return body(args)
	})
}
