package vm

import (
	"strings"

	"github.com/chazu/tuuvm/tuple"
)

// ---------------------------------------------------------------------------
// Bootstrap primitive registry
// ---------------------------------------------------------------------------

// The bootstrap primitives are registered in the process-wide table once,
// at init, under stable names such as "Integer>>+" or "Dictionary
// class>>new". Every context then binds Function tuples to them by name,
// which is also how images re-bind after loading.

type methodPrimitive struct {
	owner     WellKnownType
	classSide bool
	selector  string
	entry     PrimitiveFunc
}

func (m *methodPrimitive) name() string {
	name := typeSpecs[m.owner].name
	if m.classSide {
		name += " class"
	}
	return name + ">>" + m.selector
}

type slotPrimitive struct {
	owner WellKnownType
	slot  int
	argc  int
	entry PrimitiveFunc
}

func (s *slotPrimitive) name() string {
	suffix := "equalsFunction"
	if s.slot == TypeHashFunction {
		suffix = "hashFunction"
	}
	return typeSpecs[s.owner].name + "." + suffix
}

type globalPrimitive struct {
	name  string
	argc  int
	entry PrimitiveFunc
}

var (
	bootstrapMethods []methodPrimitive
	bootstrapSlots   []slotPrimitive
	bootstrapGlobals []globalPrimitive
)

func init() {
	registerObjectPrimitives()
	registerBooleanPrimitives()
	registerIntegerPrimitives()
	registerFloatPrimitives()
	registerCollectionPrimitives()
	registerTypePrimitives()
	registerFunctionPrimitives()
	registerControlPrimitives()
	registerExceptionPrimitives()

	registerSlotFunction(StringType, TypeEqualsFunction, 2, primStringEquals)
	registerSlotFunction(StringType, TypeHashFunction, 1, primStringHash)
	registerSlotFunction(SymbolType, TypeEqualsFunction, 2, primIdentityEquals)
	registerSlotFunction(SymbolType, TypeHashFunction, 1, primIdentityHash)
	registerSlotFunction(IntegerType, TypeEqualsFunction, 2, primIntegerEquals)
	registerSlotFunction(IntegerType, TypeHashFunction, 1, primIntegerHash)
	registerSlotFunction(FloatType, TypeEqualsFunction, 2, primFloatEquals)
	registerSlotFunction(FloatType, TypeHashFunction, 1, primFloatHash)
	registerSlotFunction(ArrayType, TypeEqualsFunction, 2, primArrayEquals)
	registerSlotFunction(ArrayType, TypeHashFunction, 1, primArrayHash)
	registerSlotFunction(AssociationType, TypeEqualsFunction, 2, primAssociationEquals)
	registerSlotFunction(AssociationType, TypeHashFunction, 1, primAssociationHash)
}

// defineMethod registers an instance-side method primitive.
func defineMethod(owner WellKnownType, selector string, entry PrimitiveFunc) {
	m := methodPrimitive{owner: owner, selector: selector, entry: entry}
	RegisterPrimitive(m.name(), entry)
	bootstrapMethods = append(bootstrapMethods, m)
}

// defineClassMethod registers a method found when selector is sent to the
// type itself.
func defineClassMethod(owner WellKnownType, selector string, entry PrimitiveFunc) {
	m := methodPrimitive{owner: owner, classSide: true, selector: selector, entry: entry}
	RegisterPrimitive(m.name(), entry)
	bootstrapMethods = append(bootstrapMethods, m)
}

func registerSlotFunction(owner WellKnownType, slot, argc int, entry PrimitiveFunc) {
	s := slotPrimitive{owner: owner, slot: slot, argc: argc, entry: entry}
	RegisterPrimitive(s.name(), entry)
	bootstrapSlots = append(bootstrapSlots, s)
}

// defineGlobalFunction registers a primitive bound to a global name.
func defineGlobalFunction(name string, argc int, entry PrimitiveFunc) {
	RegisterPrimitive(name, entry)
	bootstrapGlobals = append(bootstrapGlobals, globalPrimitive{name: name, argc: argc, entry: entry})
}

// installBootstrapPrimitives binds the registered primitives into this
// context's types and globals, and publishes every bootstrap type as a
// global under its name.
func (ctx *Context) installBootstrapPrimitives() {
	for i := range bootstrapMethods {
		m := &bootstrapMethods[i]
		fn := ctx.CreatePrimitive(m.name(), SelectorArity(m.selector)+1, 0, nil)
		if m.classSide {
			ctx.InstallMethodOnMetatype(ctx.types[m.owner], m.selector, fn)
		} else {
			ctx.InstallMethod(ctx.types[m.owner], m.selector, fn)
		}
	}
	for i := range bootstrapSlots {
		s := &bootstrapSlots[i]
		fn := ctx.CreatePrimitive(s.name(), s.argc, FunctionFlagPure, nil)
		ctx.heap.SetSlot(ctx.types[s.owner], s.slot, fn)
	}
	for i := range bootstrapGlobals {
		g := &bootstrapGlobals[i]
		ctx.SetGlobal(g.name, ctx.CreatePrimitive(g.name, g.argc, 0, nil))
	}
	for k := range typeCount {
		ctx.SetGlobal(typeSpecs[k].name, ctx.types[k])
	}
}

// SelectorArity returns the number of arguments a message with selector
// takes, not counting the receiver.
func SelectorArity(selector string) int {
	if selector == "" {
		return 0
	}
	if strings.HasSuffix(selector, ":") {
		return strings.Count(selector, ":")
	}
	c := selector[0]
	if c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
		return 0
	}
	return 1
}

// ---------------------------------------------------------------------------
// Argument helpers
// ---------------------------------------------------------------------------

func (ctx *Context) intArg(v tuple.Tuple, what string) int64 {
	n, ok := ctx.TryDecodeInt64(v)
	if !ok {
		ctx.SignalError(TypeCheckErrorType, what+" must be an integer, got "+ctx.PrintString(v))
	}
	return n
}

func (ctx *Context) stringArg(v tuple.Tuple, what string) string {
	if !ctx.IsString(v) {
		ctx.SignalError(TypeCheckErrorType, what+" must be a string, got "+ctx.PrintString(v))
	}
	return ctx.StringValue(v)
}

func (ctx *Context) functionArg(v tuple.Tuple, what string) tuple.Tuple {
	if !ctx.IsFunction(v) {
		ctx.SignalError(TypeCheckErrorType, what+" must be a function, got "+ctx.PrintString(v))
	}
	return v
}

func (ctx *Context) typeArg(v tuple.Tuple, what string) tuple.Tuple {
	if !ctx.IsType(v) {
		ctx.SignalError(TypeCheckErrorType, what+" must be a type, got "+ctx.PrintString(v))
	}
	return v
}

// FunctionArity returns the declared argument count of fn.
func (ctx *Context) FunctionArity(fn tuple.Tuple) int {
	return ctx.heap.Slot(fn, FunctionArgumentCount).Index()
}
