package bytecode

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrTruncated is returned when an instruction runs past the stream.
	ErrTruncated = errors.New("bytecode: truncated instruction")
	// ErrInvalidOpcode is returned for undefined opcode bytes.
	ErrInvalidOpcode = errors.New("bytecode: invalid opcode")
	// ErrInvalidOperand is returned by Validate for out-of-range operands.
	ErrInvalidOperand = errors.New("bytecode: invalid operand")
)

// Instruction is one decoded instruction.
type Instruction struct {
	PC       int
	Opcode   Opcode
	Operands [MaxOperands]Operand
	Count    int
}

// Args returns the decoded operands.
func (in *Instruction) Args() []Operand {
	return in.Operands[:in.Count]
}

// Size returns the encoded size in bytes.
func (in *Instruction) Size() int {
	return 1 + 2*in.Count
}

// Next returns the pc of the following instruction.
func (in *Instruction) Next() int {
	return in.PC + in.Size()
}

// JumpTarget returns the destination pc of a jump instruction.
func (in *Instruction) JumpTarget() int {
	return in.Next() + in.Operands[in.Opcode.OffsetOperand()].Offset()
}

// Decode reads the instruction at pc.
func Decode(code []byte, pc int) (Instruction, error) {
	var in Instruction
	if pc < 0 || pc >= len(code) {
		return in, fmt.Errorf("%w at pc %d", ErrTruncated, pc)
	}
	op := Opcode(code[pc])
	if !op.IsValid() {
		return in, fmt.Errorf("%w %#02x at pc %d", ErrInvalidOpcode, byte(op), pc)
	}
	n := op.OperandCount()
	if pc+1+2*n > len(code) {
		return in, fmt.Errorf("%w: %s at pc %d", ErrTruncated, op, pc)
	}
	in.PC = pc
	in.Opcode = op
	in.Count = n
	for i := 0; i < n; i++ {
		in.Operands[i] = Operand(binary.LittleEndian.Uint16(code[pc+1+2*i:]))
	}
	return in, nil
}

// DecodeAll decodes a whole instruction stream.
func DecodeAll(code []byte) ([]Instruction, error) {
	var out []Instruction
	for pc := 0; pc < len(code); {
		in, err := Decode(code, pc)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
		pc = in.Next()
	}
	return out, nil
}

// AppendInstruction encodes an instruction onto dst.
func AppendInstruction(dst []byte, op Opcode, operands ...Operand) ([]byte, error) {
	if len(operands) != op.OperandCount() {
		return dst, fmt.Errorf("bytecode: %s takes %d operands, got %d", op, op.OperandCount(), len(operands))
	}
	dst = append(dst, byte(op))
	for _, o := range operands {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(o))
	}
	return dst, nil
}

// VectorSizes bounds the operand vectors of one function.
type VectorSizes struct {
	Arguments int
	Captures  int
	Literals  int
	Locals    int
}

// Size returns the bound for v.
func (s VectorSizes) Size(v Vector) int {
	switch v {
	case VectorArguments:
		return s.Arguments
	case VectorCaptures:
		return s.Captures
	case VectorLiterals:
		return s.Literals
	default:
		return s.Locals
	}
}

// CheckOperand validates a single vector operand.
func (s VectorSizes) CheckOperand(o Operand, dest bool) error {
	if dest && o.Vector() != VectorLocals {
		return fmt.Errorf("%w: destination %s is not a local", ErrInvalidOperand, o)
	}
	if o.IsVoid() {
		if dest {
			return fmt.Errorf("%w: void destination", ErrInvalidOperand)
		}
		return nil
	}
	if o.Index() >= s.Size(o.Vector()) {
		return fmt.Errorf("%w: %s outside vector of size %d", ErrInvalidOperand, o, s.Size(o.Vector()))
	}
	return nil
}

// Validate decodes code and checks every operand against sizes: vector
// indices in range, destinations in the local vector, jump targets on
// instruction boundaries.
func Validate(code []byte, sizes VectorSizes) error {
	insts, err := DecodeAll(code)
	if err != nil {
		return err
	}
	starts := make(map[int]bool, len(insts)+1)
	for _, in := range insts {
		starts[in.PC] = true
	}
	starts[len(code)] = true

	for i := range insts {
		in := &insts[i]
		offset := in.Opcode.OffsetOperand()
		dests := in.Opcode.DestCount()
		for j, o := range in.Args() {
			if j == offset {
				continue
			}
			if err := sizes.CheckOperand(o, j < dests); err != nil {
				return fmt.Errorf("pc %d (%s): %w", in.PC, in.Opcode, err)
			}
		}
		if offset >= 0 && !starts[in.JumpTarget()] {
			return fmt.Errorf("%w: pc %d jumps to %d, not an instruction boundary", ErrInvalidOperand, in.PC, in.JumpTarget())
		}
	}
	return nil
}
