// Package bytecode defines the instruction stream stored inside
// FunctionBytecode tuples: opcode numbering, operand encoding, decoding,
// validation and disassembly.
//
// An instruction is one opcode byte followed by 16-bit little-endian
// operands. Below FirstVariable the operand count is opcode>>4. From
// FirstVariable on, the high nibble selects an opcode family and the low
// nibble is the number of variable operands appended to the family's fixed
// operands.
package bytecode

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode is the first byte of an instruction.
type Opcode byte

// Zero operands
const (
	OpNop         Opcode = 0x00 // no operation
	OpBreakpoint  Opcode = 0x01 // notify the debugger hook
	OpUnreachable Opcode = 0x02 // compiler asserted this is never executed
)

// One operand
const (
	OpReturn Opcode = 0x10 // return value
	OpJump   Opcode = 0x11 // jump offset
)

// Two operands
const (
	OpAlloca      Opcode = 0x20 // dest, pointerType
	OpMove        Opcode = 0x21 // dest, value
	OpLoad        Opcode = 0x22 // dest, pointer
	OpStore       Opcode = 0x23 // pointer, value
	OpJumpIfTrue  Opcode = 0x24 // cond, offset
	OpJumpIfFalse Opcode = 0x25 // cond, offset
)

// Three operands
const (
	OpAllocaWithValue Opcode = 0x30 // dest, pointerType, value
	OpCoerceValue     Opcode = 0x31 // dest, type, value
	OpTypecheckValue  Opcode = 0x32 // dest, type, value
	OpMakeAssociation Opcode = 0x33 // dest, key, value
	OpSlotAt          Opcode = 0x34 // dest, tuple, index
	OpSlotAtPut       Opcode = 0x35 // tuple, index, value
)

// Variable operand families. The low nibble holds the variable count.
const (
	FirstVariable Opcode = 0x40

	OpCall           Opcode = 0x40 // dest, function, args...
	OpUncheckedCall  Opcode = 0x50 // dest, function, args...
	OpSend           Opcode = 0x60 // dest, selector, receiver, args...
	OpSendWithLookup Opcode = 0x70 // dest, lookupType, selector, receiver, args...
	OpMakeArray      Opcode = 0x80 // dest, elements...
	OpMakeClosure    Opcode = 0x90 // dest, definition, captures...
	OpMakeDictionary Opcode = 0xA0 // dest, associations...
	OpMakeTuple      Opcode = 0xB0 // dest, type, slots...
)

// MaxVariableOperands is the largest count the low nibble can hold.
const MaxVariableOperands = 15

// MaxOperands bounds the operand count of any instruction.
const MaxOperands = 20

// ErrTooManyOperands is returned when a variable instruction would need more
// operands than the opcode nibble can express.
var ErrTooManyOperands = errors.New("bytecode: too many variable operands")

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OpcodeInfo holds metadata about an opcode or opcode family.
type OpcodeInfo struct {
	Name          string // human-readable name
	FixedOperands int    // operands before any variable ones
	DestOperands  int    // leading operands written by the instruction
	OffsetOperand int    // index of the jump offset operand, -1 if none
}

// opcodeTable maps opcodes and variable families to their metadata.
var opcodeTable = map[Opcode]OpcodeInfo{
	OpNop:         {"nop", 0, 0, -1},
	OpBreakpoint:  {"breakpoint", 0, 0, -1},
	OpUnreachable: {"unreachable", 0, 0, -1},

	OpReturn: {"return", 1, 0, -1},
	OpJump:   {"jump", 1, 0, 0},

	OpAlloca:      {"alloca", 2, 1, -1},
	OpMove:        {"move", 2, 1, -1},
	OpLoad:        {"load", 2, 1, -1},
	OpStore:       {"store", 2, 0, -1},
	OpJumpIfTrue:  {"jumpIfTrue", 2, 0, 1},
	OpJumpIfFalse: {"jumpIfFalse", 2, 0, 1},

	OpAllocaWithValue: {"allocaWithValue", 3, 1, -1},
	OpCoerceValue:     {"coerceValue", 3, 1, -1},
	OpTypecheckValue:  {"typecheckValue", 3, 1, -1},
	OpMakeAssociation: {"makeAssociation", 3, 1, -1},
	OpSlotAt:          {"slotAt", 3, 1, -1},
	OpSlotAtPut:       {"slotAtPut", 3, 0, -1},

	OpCall:           {"call", 2, 1, -1},
	OpUncheckedCall:  {"uncheckedCall", 2, 1, -1},
	OpSend:           {"send", 3, 1, -1},
	OpSendWithLookup: {"sendWithLookup", 4, 1, -1},
	OpMakeArray:      {"makeArray", 1, 1, -1},
	OpMakeClosure:    {"makeClosure", 2, 1, -1},
	OpMakeDictionary: {"makeDictionary", 1, 1, -1},
	OpMakeTuple:      {"makeTuple", 2, 1, -1},
}

// Family returns the opcode with its variable count cleared. Fixed opcodes
// are their own family.
func (op Opcode) Family() Opcode {
	if op >= FirstVariable {
		return op & 0xF0
	}
	return op
}

// IsVariable reports whether op carries a variable operand count.
func (op Opcode) IsVariable() bool {
	return op >= FirstVariable
}

// VariableCount returns the variable operand count packed in op.
func (op Opcode) VariableCount() int {
	if op < FirstVariable {
		return 0
	}
	return int(op & 0x0F)
}

// WithCount packs a variable operand count into a variable family.
func (op Opcode) WithCount(n int) (Opcode, error) {
	if !op.IsVariable() {
		return 0, fmt.Errorf("bytecode: %s is not a variable opcode", op)
	}
	if n < 0 || n > MaxVariableOperands {
		return 0, fmt.Errorf("%w: %s with %d", ErrTooManyOperands, op.Family(), n)
	}
	return op.Family() | Opcode(n), nil
}

// IsValid reports whether op is a defined opcode.
func (op Opcode) IsValid() bool {
	_, ok := opcodeTable[op.Family()]
	return ok
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op.Family()]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("unknown_%02X", byte(op)), OffsetOperand: -1}
}

// OperandCount returns the total number of operands, derived from the
// opcode byte alone.
func (op Opcode) OperandCount() int {
	if op < FirstVariable {
		return int(op >> 4)
	}
	return op.Info().FixedOperands + op.VariableCount()
}

// DestCount returns how many leading operands are destinations.
func (op Opcode) DestCount() int {
	return op.Info().DestOperands
}

// OffsetOperand returns the index of the jump offset operand, or -1.
func (op Opcode) OffsetOperand() int {
	return op.Info().OffsetOperand
}

// IsJump reports whether op transfers control by a relative offset.
func (op Opcode) IsJump() bool {
	return op.OffsetOperand() >= 0
}

// Size returns the encoded size of an instruction with this opcode.
func (op Opcode) Size() int {
	return 1 + 2*op.OperandCount()
}

// Name returns the human-readable name for an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	if op.IsVariable() {
		return fmt.Sprintf("%s/%d", op.Name(), op.VariableCount())
	}
	return op.Name()
}
