package vm

import (
	"github.com/chazu/tuuvm/tuple"
)

// WellKnownType indexes the bootstrap types held by every context.
type WellKnownType int

const (
	ObjectType WellKnownType = iota
	UndefinedObjectType
	BooleanType
	TrueType
	FalseType
	VoidType
	NumberType
	IntegerType
	SmallIntegerType
	LargePositiveIntegerType
	LargeNegativeIntegerType
	Int8Type
	Int16Type
	Int32Type
	Int64Type
	UInt8Type
	UInt16Type
	UInt32Type
	UInt64Type
	FloatType
	Float32Type
	Float64Type
	CharacterType
	Char8Type
	Char16Type
	Char32Type
	StringType
	SymbolType
	ByteArrayType
	ArrayType
	WeakArrayType
	AssociationType
	DictionaryType
	MethodDictionaryType
	BoxType
	TypeType
	MetatypeType
	SlotDescriptionType
	FunctionType
	FunctionDefinitionType
	FunctionBytecodeType
	SourcePositionType
	LoopControlType
	ReturnTargetType
	ExceptionType
	ErrorType
	ArgumentCountErrorType
	IndexOutOfBoundsType
	ModifyImmutableType
	AccessDummyValueType
	MessageNotUnderstoodType
	TypeCheckErrorType
	CoercionErrorType
	ZeroDivideType
	CannotReturnType
	StackOverflowType
	CompileErrorType
	typeCount
)

const noType WellKnownType = -1

type typeSpec struct {
	name  string
	super WellKnownType
	slots []string
	flags int
	// size is the instance byte size of fixed-size byte types.
	size int
}

var exceptionSlots = []string{"messageText", "stackTrace", "receiver", "selector"}

var typeSpecs = [typeCount]typeSpec{
	ObjectType:               {"Object", noType, nil, TypeFlagNullable, 0},
	UndefinedObjectType:      {"UndefinedObject", ObjectType, nil, TypeFlagFinal, 0},
	BooleanType:              {"Boolean", ObjectType, nil, TypeFlagAbstract | TypeFlagImmediate, 0},
	TrueType:                 {"True", BooleanType, nil, TypeFlagFinal | TypeFlagImmediate, 0},
	FalseType:                {"False", BooleanType, nil, TypeFlagFinal | TypeFlagImmediate, 0},
	VoidType:                 {"Void", ObjectType, nil, TypeFlagFinal | TypeFlagImmediate, 0},
	NumberType:               {"Number", ObjectType, nil, TypeFlagAbstract, 0},
	IntegerType:              {"Integer", NumberType, nil, TypeFlagAbstract, 0},
	SmallIntegerType:         {"SmallInteger", IntegerType, nil, TypeFlagFinal | TypeFlagImmediate, 0},
	LargePositiveIntegerType: {"LargePositiveInteger", IntegerType, nil, TypeFlagFinal | TypeFlagBytes, 0},
	LargeNegativeIntegerType: {"LargeNegativeInteger", IntegerType, nil, TypeFlagFinal | TypeFlagBytes, 0},
	Int8Type:                 {"Int8", IntegerType, nil, TypeFlagFinal | TypeFlagImmediate, 1},
	Int16Type:                {"Int16", IntegerType, nil, TypeFlagFinal | TypeFlagImmediate, 2},
	Int32Type:                {"Int32", IntegerType, nil, TypeFlagFinal | TypeFlagImmediate, 4},
	Int64Type:                {"Int64", IntegerType, nil, TypeFlagFinal | TypeFlagImmediate, 8},
	UInt8Type:                {"UInt8", IntegerType, nil, TypeFlagFinal | TypeFlagImmediate, 1},
	UInt16Type:               {"UInt16", IntegerType, nil, TypeFlagFinal | TypeFlagImmediate, 2},
	UInt32Type:               {"UInt32", IntegerType, nil, TypeFlagFinal | TypeFlagImmediate, 4},
	UInt64Type:               {"UInt64", IntegerType, nil, TypeFlagFinal | TypeFlagImmediate, 8},
	FloatType:                {"Float", NumberType, nil, TypeFlagAbstract, 0},
	Float32Type:              {"Float32", FloatType, nil, TypeFlagFinal | TypeFlagImmediate | TypeFlagBytes, 4},
	Float64Type:              {"Float64", FloatType, nil, TypeFlagFinal | TypeFlagImmediate | TypeFlagBytes, 8},
	CharacterType:            {"Character", ObjectType, nil, TypeFlagAbstract, 0},
	Char8Type:                {"Char8", CharacterType, nil, TypeFlagFinal | TypeFlagImmediate, 1},
	Char16Type:               {"Char16", CharacterType, nil, TypeFlagFinal | TypeFlagImmediate, 2},
	Char32Type:               {"Char32", CharacterType, nil, TypeFlagFinal | TypeFlagImmediate | TypeFlagBytes, 4},
	StringType:               {"String", ObjectType, nil, TypeFlagBytes, 0},
	SymbolType:               {"Symbol", StringType, nil, TypeFlagBytes | TypeFlagFinal, 0},
	ByteArrayType:            {"ByteArray", ObjectType, nil, TypeFlagBytes, 0},
	ArrayType:                {"Array", ObjectType, nil, 0, 0},
	WeakArrayType:            {"WeakArray", ArrayType, nil, TypeFlagWeak, 0},
	AssociationType:          {"Association", ObjectType, []string{"key", "value"}, TypeFlagPointerLike, 0},
	DictionaryType:           {"Dictionary", ObjectType, []string{"tally", "storage"}, 0, 0},
	MethodDictionaryType:     {"MethodDictionary", DictionaryType, nil, 0, 0},
	BoxType:                  {"Box", ObjectType, []string{"value"}, TypeFlagPointerLike, 0},
	TypeType: {"Type", ObjectType, []string{
		"name", "supertype", "slots", "totalSlotCount", "flags",
		"macroMethodDictionary", "methodDictionary", "virtualMethodDictionary", "fallbackMethodDictionary",
		"equalsFunction", "hashFunction", "coerceValueFunction", "typecheckFunction", "instanceSize",
	}, 0, 0},
	MetatypeType:           {"Metatype", TypeType, []string{"thisType"}, TypeFlagFinal, 0},
	SlotDescriptionType:    {"SlotDescription", ObjectType, []string{"name", "flags", "type", "offset"}, 0, 0},
	FunctionType:           {"Function", ObjectType, []string{"flags", "argumentCount", "definition", "captureVector", "primitiveName", "primitiveIndex", "userdata"}, TypeFlagFunction, 0},
	FunctionDefinitionType: {"FunctionDefinition", ObjectType, []string{"flags", "argumentCount", "captureCount", "name", "sourcePosition", "bodyHandle", "bytecode"}, 0, 0},
	FunctionBytecodeType: {"FunctionBytecode", ObjectType, []string{
		"argumentCount", "captureVectorSize", "localVectorSize", "literalVector", "instructions",
		"pcToSourcePosition", "jittedCode", "jittedCodeSessionToken", "jittedCodeTrampoline",
		"jittedCodeTrampolineSessionToken", "inlineCacheTable",
	}, 0, 0},
	SourcePositionType:       {"SourcePosition", ObjectType, []string{"file", "line", "column"}, 0, 0},
	LoopControlType:          {"LoopControl", ObjectType, []string{"breakRecord", "continueRecord"}, TypeFlagFinal, 0},
	ReturnTargetType:         {"ReturnTarget", ObjectType, []string{"record"}, TypeFlagFinal, 0},
	ExceptionType:            {"Exception", ObjectType, exceptionSlots, 0, 0},
	ErrorType:                {"Error", ExceptionType, nil, 0, 0},
	ArgumentCountErrorType:   {"ArgumentCountError", ErrorType, nil, 0, 0},
	IndexOutOfBoundsType:     {"IndexOutOfBounds", ErrorType, nil, 0, 0},
	ModifyImmutableType:      {"ModifyImmutable", ErrorType, nil, 0, 0},
	AccessDummyValueType:     {"AccessDummyValue", ErrorType, nil, 0, 0},
	MessageNotUnderstoodType: {"MessageNotUnderstood", ErrorType, nil, 0, 0},
	TypeCheckErrorType:       {"TypeCheckError", ErrorType, nil, 0, 0},
	CoercionErrorType:        {"CoercionError", ErrorType, nil, 0, 0},
	ZeroDivideType:           {"ZeroDivide", ErrorType, nil, 0, 0},
	CannotReturnType:         {"CannotReturn", ErrorType, nil, 0, 0},
	StackOverflowType:        {"StackOverflow", ErrorType, nil, 0, 0},
	CompileErrorType:         {"CompileError", ErrorType, nil, 0, 0},
}

// immediateTypes maps immediate tags to their types. Trivial immediates are
// resolved separately.
var immediateTypes = [tuple.TagCount]WellKnownType{
	tuple.TagPointer:      UndefinedObjectType,
	tuple.TagSmallInteger: SmallIntegerType,
	tuple.TagInt8:         Int8Type,
	tuple.TagInt16:        Int16Type,
	tuple.TagInt32:        Int32Type,
	tuple.TagInt64:        Int64Type,
	tuple.TagUInt8:        UInt8Type,
	tuple.TagUInt16:       UInt16Type,
	tuple.TagUInt32:       UInt32Type,
	tuple.TagUInt64:       UInt64Type,
	tuple.TagChar8:        Char8Type,
	tuple.TagChar16:       Char16Type,
	tuple.TagChar32:       Char32Type,
	tuple.TagFloat32:      Float32Type,
	tuple.TagFloat64:      Float64Type,
	tuple.TagTrivial:      UndefinedObjectType,
}

// Type returns a bootstrap type.
func (ctx *Context) Type(k WellKnownType) tuple.Tuple {
	return ctx.types[k]
}

// bootstrap builds the type hierarchy, the metatypes and the primitive
// methods.
func (ctx *Context) bootstrap() {
	h := ctx.heap

	// Types first, with null headers, so supertypes can be linked in any
	// order.
	for k := range typeCount {
		ctx.types[k] = h.AllocatePointerTuple(tuple.Null, TypeSlotCount)
	}
	ctx.types[MetatypeType] = h.AllocatePointerTuple(tuple.Null, MetatypeSlotCount)

	for k := range typeCount {
		spec := &typeSpecs[k]
		t := ctx.types[k]
		super := tuple.Null
		inherited := 0
		if spec.super != noType {
			super = ctx.types[spec.super]
			inherited = ctx.totalSlotCount(spec.super)
		}
		h.SetSlot(t, TypeName, ctx.Intern(spec.name))
		h.SetSlot(t, TypeSupertype, super)
		h.SetSlot(t, TypeTotalSlotCount, tuple.FromIndex(inherited+len(spec.slots)))
		h.SetSlot(t, TypeFlags, tuple.FromIndex(spec.flags))
		h.SetSlot(t, TypeInstanceSize, tuple.FromIndex(spec.size))
	}
	// Slot descriptions need the SlotDescription type and symbols, which
	// exist now.
	for k := range typeCount {
		spec := &typeSpecs[k]
		if len(spec.slots) == 0 {
			continue
		}
		base := ctx.totalSlotCount(k) - len(spec.slots)
		ctx.heap.SetSlot(ctx.types[k], TypeSlots, ctx.newSlotDescriptions(spec.slots, base))
	}

	for k := range typeCount {
		ctx.attachMetatype(ctx.types[k])
	}

	ctx.installBootstrapPrimitives()
}

// totalSlotCount reads a bootstrap type's instance slot count. During
// bootstrap supertypes always precede their subtypes in typeSpecs.
func (ctx *Context) totalSlotCount(k WellKnownType) int {
	return ctx.heap.Slot(ctx.types[k], TypeTotalSlotCount).Index()
}

func (ctx *Context) newSlotDescriptions(names []string, base int) tuple.Tuple {
	h := ctx.heap
	arr := h.AllocatePointerTuple(ctx.types[ArrayType], len(names))
	for i, name := range names {
		sd := h.AllocatePointerTuple(ctx.types[SlotDescriptionType], SlotDescriptionSlotCount)
		h.SetSlot(sd, SlotDescriptionName, ctx.Intern(name))
		h.SetSlot(sd, SlotDescriptionFlags, tuple.FromIndex(0))
		h.SetSlot(sd, SlotDescriptionOffset, tuple.FromIndex(base+i))
		h.SetSlot(arr, i, sd)
	}
	return arr
}

// attachMetatype creates the metatype of t and makes it t's header type.
// The metatype of a type's supertype is the metatype's supertype; the root
// metatype inherits from Type. Every metatype is an instance of Metatype.
func (ctx *Context) attachMetatype(t tuple.Tuple) tuple.Tuple {
	h := ctx.heap
	meta := h.AllocatePointerTuple(ctx.types[MetatypeType], MetatypeSlotCount)
	name := ctx.TypeName(t)
	h.SetSlot(meta, TypeName, ctx.Intern(name+" class"))

	super := h.Slot(t, TypeSupertype)
	if super.IsNull() {
		h.SetSlot(meta, TypeSupertype, ctx.types[TypeType])
	} else {
		h.SetSlot(meta, TypeSupertype, h.Type(super))
	}
	instanceSlots := TypeSlotCount
	if t == ctx.types[MetatypeType] {
		instanceSlots = MetatypeSlotCount
	}
	h.SetSlot(meta, TypeTotalSlotCount, tuple.FromIndex(instanceSlots))
	h.SetSlot(meta, TypeFlags, tuple.FromIndex(TypeFlagFinal))
	h.SetSlot(meta, TypeInstanceSize, tuple.FromIndex(0))
	h.SetSlot(meta, MetatypeThisType, t)
	h.SetType(t, meta)
	return meta
}
