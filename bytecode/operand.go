package bytecode

import (
	"errors"
	"fmt"

	"fortio.org/safecast"
)

// Vector selects one of the four operand spaces.
type Vector uint8

const (
	VectorArguments Vector = 0
	VectorCaptures  Vector = 1
	VectorLiterals  Vector = 2
	VectorLocals    Vector = 3
)

var vectorNames = [4]string{"arg", "cap", "lit", "loc"}

func (v Vector) String() string {
	return vectorNames[v&3]
}

// Operand is a 16-bit operand: a signed 14-bit index above a 2-bit vector
// selector. A negative index denotes void. Jump offsets reuse the type but
// are raw signed deltas.
type Operand uint16

// Index bounds of a vector operand.
const (
	MinOperandIndex = -(1 << 13)
	MaxOperandIndex = 1<<13 - 1
)

// VoidOperand evaluates to void.
const VoidOperand Operand = 0xFFFC | Operand(VectorLiterals)

// ErrOperandRange is returned when an index or offset does not fit.
var ErrOperandRange = errors.New("bytecode: operand out of range")

// EncodeOperand packs a vector index.
func EncodeOperand(v Vector, index int) (Operand, error) {
	raw, err := safecast.Conv[int16](index * 4)
	if err != nil {
		return 0, fmt.Errorf("%w: %s index %d", ErrOperandRange, v, index)
	}
	return Operand(uint16(raw)) | Operand(v&3), nil
}

// MustOperand is EncodeOperand for indices known to be in range.
func MustOperand(v Vector, index int) Operand {
	op, err := EncodeOperand(v, index)
	if err != nil {
		panic(err)
	}
	return op
}

// EncodeOffset packs a jump delta.
func EncodeOffset(delta int) (Operand, error) {
	raw, err := safecast.Conv[int16](delta)
	if err != nil {
		return 0, fmt.Errorf("%w: jump offset %d", ErrOperandRange, delta)
	}
	return Operand(uint16(raw)), nil
}

// Vector returns the operand's vector selector.
func (o Operand) Vector() Vector {
	return Vector(o & 3)
}

// Index returns the signed vector index.
func (o Operand) Index() int {
	return int(int16(o) >> 2)
}

// IsVoid reports whether the operand denotes void.
func (o Operand) IsVoid() bool {
	return o.Index() < 0
}

// Offset interprets the operand as a jump delta.
func (o Operand) Offset() int {
	return int(int16(o))
}

func (o Operand) String() string {
	if o.IsVoid() {
		return "void"
	}
	return fmt.Sprintf("%s%d", o.Vector(), o.Index())
}
