package vm

// Slot layouts of the bootstrap pointer types. Every index is the slot
// position inside the tuple payload.

// Type slots. Metatypes append MetatypeThisType.
const (
	TypeName = iota
	TypeSupertype
	TypeSlots
	TypeTotalSlotCount
	TypeFlags
	TypeMacroMethodDictionary
	TypeMethodDictionary
	TypeVirtualMethodDictionary
	TypeFallbackMethodDictionary
	TypeEqualsFunction
	TypeHashFunction
	TypeCoerceValueFunction
	TypeTypecheckFunction
	TypeInstanceSize
	TypeSlotCount

	MetatypeThisType  = TypeSlotCount
	MetatypeSlotCount = TypeSlotCount + 1
)

// Type flags.
const (
	TypeFlagNullable = 1 << iota
	TypeFlagBytes
	TypeFlagImmediate
	TypeFlagWeak
	TypeFlagFinal
	TypeFlagAbstract
	TypeFlagDynamic
	TypeFlagPointerLike
	TypeFlagFunction
)

// SlotDescription slots.
const (
	SlotDescriptionName = iota
	SlotDescriptionFlags
	SlotDescriptionDeclaredType
	SlotDescriptionOffset
	SlotDescriptionSlotCount
)

// Function slots.
const (
	FunctionFlags = iota
	FunctionArgumentCount
	FunctionDefinition
	FunctionCaptureVector
	FunctionPrimitiveName
	FunctionPrimitiveIndex
	FunctionUserdata
	FunctionSlotCount
)

// Function flags.
const (
	FunctionFlagMacro = 1 << iota
	FunctionFlagVariadic
	FunctionFlagPure
	FunctionFlagMemoized
	FunctionFlagTemplate
	FunctionFlagVirtual
	FunctionFlagAbstract
	FunctionFlagOverride
	FunctionFlagInlineAlways
	FunctionFlagInlineNever
	FunctionFlagPrimitive
	FunctionFlagClosure
)

// FunctionDefinition slots.
const (
	DefinitionFlags = iota
	DefinitionArgumentCount
	DefinitionCaptureCount
	DefinitionName
	DefinitionSourcePosition
	DefinitionBodyHandle
	DefinitionBytecode
	DefinitionSlotCount
)

// FunctionBytecode slots. The jitted code, trampoline and inline cache
// fields hold indices into context side tables, never Go pointers.
const (
	BytecodeArgumentCount = iota
	BytecodeCaptureVectorSize
	BytecodeLocalVectorSize
	BytecodeLiteralVector
	BytecodeInstructions
	BytecodePCToSourcePosition
	BytecodeJittedCode
	BytecodeJittedCodeSessionToken
	BytecodeJittedCodeTrampoline
	BytecodeJittedCodeTrampolineSessionToken
	BytecodeInlineCacheTable
	BytecodeSlotCount
)

// SourcePosition slots.
const (
	SourcePositionFile = iota
	SourcePositionLine
	SourcePositionColumn
	SourcePositionSlotCount
)

// Association slots.
const (
	AssociationKey = iota
	AssociationValue
	AssociationSlotCount
)

// Box slots.
const (
	BoxValue = iota
	BoxSlotCount
)

// Dictionary and MethodDictionary slots. Storage is an Array of
// alternating keys and values.
const (
	DictionaryTally = iota
	DictionaryStorage
	DictionarySlotCount
)

// Exception slots, inherited by every exception type.
const (
	ExceptionMessageText = iota
	ExceptionStackTrace
	ExceptionReceiver
	ExceptionSelector
	ExceptionSlotCount
)

// Control handle slots. Handles refer to live records by id.
const (
	LoopControlBreak = iota
	LoopControlContinue
	LoopControlSlotCount
)

const (
	ReturnTargetRecord = iota
	ReturnTargetSlotCount
)
