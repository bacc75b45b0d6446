package vm

import (
	"fmt"
	"sort"

	"github.com/chazu/tuuvm/ast"
	"github.com/chazu/tuuvm/bytecode"
	"github.com/chazu/tuuvm/config"
	"github.com/chazu/tuuvm/tuple"
)

// ---------------------------------------------------------------------------
// Function definitions
// ---------------------------------------------------------------------------

// NewFunctionDefinition registers def in the context's AST table and
// allocates its FunctionDefinition tuple. The bytecode is compiled on first
// call.
func (ctx *Context) NewFunctionDefinition(def *ast.FunctionDef) tuple.Tuple {
	h := ctx.heap
	handle := len(ctx.definitions)
	ctx.definitions = append(ctx.definitions, def)

	flags := 0
	if def.Variadic {
		flags |= FunctionFlagVariadic
	}
	d := h.AllocatePointerTuple(ctx.types[FunctionDefinitionType], DefinitionSlotCount)
	h.SetSlot(d, DefinitionFlags, tuple.FromIndex(flags))
	h.SetSlot(d, DefinitionArgumentCount, tuple.FromIndex(def.ArgumentCount))
	h.SetSlot(d, DefinitionCaptureCount, tuple.FromIndex(len(def.Captures)))
	if def.Name != "" {
		h.SetSlot(d, DefinitionName, ctx.Intern(def.Name))
	}
	if def.At.IsKnown() {
		h.SetSlot(d, DefinitionSourcePosition, ctx.NewSourcePosition(def.At))
	}
	h.SetSlot(d, DefinitionBodyHandle, tuple.FromIndex(handle))
	return d
}

// DefinitionAST returns the analyzed tree behind a FunctionDefinition, or
// nil when the definition has no body in this context (for example after
// an image load).
func (ctx *Context) DefinitionAST(d tuple.Tuple) *ast.FunctionDef {
	handle := ctx.heap.Slot(d, DefinitionBodyHandle)
	if handle.IsNull() {
		return nil
	}
	if i := handle.Index(); i >= 0 && i < len(ctx.definitions) {
		return ctx.definitions[i]
	}
	return nil
}

// ---------------------------------------------------------------------------
// Functions and closures
// ---------------------------------------------------------------------------

// NewClosure instantiates a definition over a capture vector.
func (ctx *Context) NewClosure(definition tuple.Tuple, captures []tuple.Tuple) tuple.Tuple {
	h := ctx.heap
	flags := h.Slot(definition, DefinitionFlags).Index()
	if len(captures) > 0 {
		flags |= FunctionFlagClosure
	}
	fn := h.AllocatePointerTuple(ctx.types[FunctionType], FunctionSlotCount)
	h.SetSlot(fn, FunctionFlags, tuple.FromIndex(flags))
	h.SetSlot(fn, FunctionArgumentCount, h.Slot(definition, DefinitionArgumentCount))
	h.SetSlot(fn, FunctionDefinition, definition)
	h.SetSlot(fn, FunctionCaptureVector, ctx.NewArray(captures...))
	return fn
}

// DefineFunction is NewClosure over a fresh definition without captures.
func (ctx *Context) DefineFunction(def *ast.FunctionDef) tuple.Tuple {
	return ctx.NewClosure(ctx.NewFunctionDefinition(def), nil)
}

// IsFunction reports whether v is a Function.
func (ctx *Context) IsFunction(v tuple.Tuple) bool {
	return v.IsPointer() && ctx.heap.Type(v) == ctx.types[FunctionType]
}

// IsPrimitive reports whether fn is backed by a Go entry point.
func (ctx *Context) IsPrimitive(fn tuple.Tuple) bool {
	return ctx.IsFunction(fn) && ctx.heap.Slot(fn, FunctionFlags).Index()&FunctionFlagPrimitive != 0
}

// FunctionName returns the definition or primitive name of fn.
func (ctx *Context) FunctionName(fn tuple.Tuple) string {
	if !ctx.IsFunction(fn) {
		return "<not a function>"
	}
	h := ctx.heap
	if name := h.Slot(fn, FunctionPrimitiveName); !name.IsNull() {
		return ctx.StringValue(name)
	}
	if def := h.Slot(fn, FunctionDefinition); !def.IsNull() {
		if name := h.Slot(def, DefinitionName); !name.IsNull() {
			return ctx.StringValue(name)
		}
	}
	return "<anonymous>"
}

// ---------------------------------------------------------------------------
// Primitives
// ---------------------------------------------------------------------------

// CreatePrimitive registers entry under name in the process-wide table and
// returns a Function bound to it. A nil entry binds to an already
// registered primitive. Methods count the receiver in argc.
func (ctx *Context) CreatePrimitive(name string, argc int, flags int, entry PrimitiveFunc) tuple.Tuple {
	if entry != nil {
		RegisterPrimitive(name, entry)
	}
	index, err := ctx.bindPrimitive(name)
	if err != nil {
		Fatalf("CreatePrimitive: %v", err)
	}
	h := ctx.heap
	fn := h.AllocatePointerTuple(ctx.types[FunctionType], FunctionSlotCount)
	h.SetSlot(fn, FunctionFlags, tuple.FromIndex(flags|FunctionFlagPrimitive))
	h.SetSlot(fn, FunctionArgumentCount, tuple.FromIndex(argc))
	h.SetSlot(fn, FunctionPrimitiveName, ctx.Intern(name))
	h.SetSlot(fn, FunctionPrimitiveIndex, tuple.FromIndex(index))
	h.SetSlot(fn, FunctionCaptureVector, ctx.NewArray())
	return fn
}

// ---------------------------------------------------------------------------
// Function bytecode
// ---------------------------------------------------------------------------

// PCPosition maps the instruction at PC to a source position.
type PCPosition struct {
	PC       int
	Position ast.Position
}

// BytecodeSpec is the compiler's output before it becomes a
// FunctionBytecode tuple.
type BytecodeSpec struct {
	ArgumentCount int
	CaptureCount  int
	LocalCount    int
	Literals      []tuple.Tuple
	Instructions  []byte
	Positions     []PCPosition
}

// NewFunctionBytecode allocates a FunctionBytecode. Literals are held only
// by spec until this returns; allocation does not collect.
func (ctx *Context) NewFunctionBytecode(spec BytecodeSpec) tuple.Tuple {
	h := ctx.heap
	bc := h.AllocatePointerTuple(ctx.types[FunctionBytecodeType], BytecodeSlotCount)
	h.SetSlot(bc, BytecodeArgumentCount, tuple.FromIndex(spec.ArgumentCount))
	h.SetSlot(bc, BytecodeCaptureVectorSize, tuple.FromIndex(spec.CaptureCount))
	h.SetSlot(bc, BytecodeLocalVectorSize, tuple.FromIndex(spec.LocalCount))
	h.SetSlot(bc, BytecodeLiteralVector, ctx.NewArray(spec.Literals...))
	h.SetSlot(bc, BytecodeInstructions, ctx.NewByteArray(spec.Instructions))

	positions := sort.SliceIsSorted(spec.Positions, func(i, j int) bool {
		return spec.Positions[i].PC < spec.Positions[j].PC
	})
	if !positions {
		Fatalf("NewFunctionBytecode: source positions out of pc order")
	}
	table := h.AllocatePointerTuple(ctx.types[ArrayType], 2*len(spec.Positions))
	for i, p := range spec.Positions {
		h.SetSlot(table, 2*i, tuple.FromIndex(p.PC))
		h.SetSlot(table, 2*i+1, ctx.NewSourcePosition(p.Position))
	}
	h.SetSlot(bc, BytecodePCToSourcePosition, table)
	return bc
}

// VectorSizes returns the operand vector bounds of a FunctionBytecode.
func (ctx *Context) VectorSizes(bc tuple.Tuple) bytecode.VectorSizes {
	h := ctx.heap
	return bytecode.VectorSizes{
		Arguments: h.Slot(bc, BytecodeArgumentCount).Index(),
		Captures:  h.Slot(bc, BytecodeCaptureVectorSize).Index(),
		Literals:  h.SlotCount(h.Slot(bc, BytecodeLiteralVector)),
		Locals:    h.Slot(bc, BytecodeLocalVectorSize).Index(),
	}
}

// Instructions returns a view of the instruction bytes. The view is
// invalidated by the next collection.
func (ctx *Context) Instructions(bc tuple.Tuple) []byte {
	return ctx.heap.Payload(ctx.heap.Slot(bc, BytecodeInstructions))
}

// Literals returns the literal vector of a FunctionBytecode.
func (ctx *Context) Literals(bc tuple.Tuple) tuple.Tuple {
	return ctx.heap.Slot(bc, BytecodeLiteralVector)
}

// PositionAt returns the SourcePosition of the instruction at pc: the
// entry with the greatest pc not after it. Null when unknown.
func (ctx *Context) PositionAt(bc tuple.Tuple, pc int) tuple.Tuple {
	if bc.IsNull() {
		return tuple.Null
	}
	h := ctx.heap
	table := h.Slot(bc, BytecodePCToSourcePosition)
	if table.IsNull() {
		return tuple.Null
	}
	n := h.SlotCount(table) / 2
	i := sort.Search(n, func(i int) bool { return h.Slot(table, 2*i).Index() > pc })
	if i == 0 {
		return tuple.Null
	}
	return h.Slot(table, 2*(i-1)+1)
}

// ---------------------------------------------------------------------------
// Compilation hook
// ---------------------------------------------------------------------------

// Compiler turns analyzed function bodies into FunctionBytecode tuples. It
// must not reach a safepoint.
type Compiler interface {
	Compile(ctx *Context, def *ast.FunctionDef) (tuple.Tuple, error)
}

// SetCompiler installs the bytecode compiler used on first call.
func (ctx *Context) SetCompiler(c Compiler) { ctx.compiler = c }

// CompileDefinition returns the bytecode of a FunctionDefinition,
// compiling it if needed.
func (ctx *Context) CompileDefinition(d tuple.Tuple) (tuple.Tuple, error) {
	h := ctx.heap
	if bc := h.Slot(d, DefinitionBytecode); !bc.IsNull() {
		return bc, nil
	}
	if ctx.compiler == nil {
		return tuple.Null, ErrNoCompiler
	}
	def := ctx.DefinitionAST(d)
	if def == nil {
		return tuple.Null, fmt.Errorf("definition %s has no body", ctx.StringValue(h.Slot(d, DefinitionName)))
	}
	bc, err := ctx.compiler.Compile(ctx, def)
	if err != nil {
		return tuple.Null, err
	}
	if err := bytecode.Validate(ctx.Instructions(bc), ctx.VectorSizes(bc)); err != nil {
		return tuple.Null, fmt.Errorf("compiler produced invalid bytecode for %s: %w", def.Name, err)
	}
	h.SetSlot(d, DefinitionBytecode, bc)
	if ctx.cfg.JIT.Mode == config.JITEager && ctx.jit != nil {
		ctx.compileNative(bc, def.Name)
	}
	return bc, nil
}

// FunctionBytecode returns the bytecode of a non-primitive function,
// compiling its definition if needed.
func (ctx *Context) FunctionBytecode(fn tuple.Tuple) (tuple.Tuple, error) {
	if !ctx.IsFunction(fn) || ctx.IsPrimitive(fn) {
		return tuple.Null, fmt.Errorf("%s is not a compiled function", ctx.PrintString(fn))
	}
	d := ctx.heap.Slot(fn, FunctionDefinition)
	if d.IsNull() {
		return tuple.Null, fmt.Errorf("%s has no definition", ctx.FunctionName(fn))
	}
	return ctx.CompileDefinition(d)
}

// ensureBytecode compiles fn's definition, raising CompileError on failure.
func (ctx *Context) ensureBytecode(fn tuple.Tuple) tuple.Tuple {
	d := ctx.heap.Slot(fn, FunctionDefinition)
	if d.IsNull() {
		ctx.SignalError(CompileErrorType, ctx.FunctionName(fn)+" has no definition")
	}
	bc, err := ctx.CompileDefinition(d)
	if err != nil {
		ctx.SignalError(CompileErrorType, err.Error())
	}
	return bc
}
