package compiler

import (
	"fmt"

	"github.com/chazu/tuuvm/ast"
	"github.com/chazu/tuuvm/bytecode"
	"github.com/chazu/tuuvm/vm"
)

// layout assigns addresses in a first pass and encodes bytes with resolved
// jump deltas in a second one.
func layout(l *instructionList) ([]byte, []vm.PCPosition, error) {
	pc := 0
	for in := l.first; in != nil; in = in.next {
		in.pc = pc
		if in.label {
			in.size = 0
			continue
		}
		if got, want := len(in.operands), in.opcode.OperandCount(); got != want {
			return nil, nil, fmt.Errorf("%s has %d operands, want %d", in.opcode, got, want)
		}
		in.size = in.opcode.Size()
		pc += in.size
	}

	code := make([]byte, 0, pc)
	var positions []vm.PCPosition
	var last ast.Position
	for in := l.first; in != nil; in = in.next {
		if in.label {
			continue
		}
		operands := in.operands
		if in.isJump() {
			if in.target == nil || !in.target.label {
				return nil, nil, fmt.Errorf("%s at pc %d has no target label", in.opcode, in.pc)
			}
			delta := in.target.pc - (in.pc + in.size)
			off, err := bytecode.EncodeOffset(delta)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: %s at pc %d jumps %d bytes", ErrOffsetOverflow, in.opcode, in.pc, delta)
			}
			operands = append([]bytecode.Operand(nil), operands...)
			operands[in.opcode.OffsetOperand()] = off
		}
		if in.position.IsKnown() && in.position != last {
			positions = append(positions, vm.PCPosition{PC: in.pc, Position: in.position})
			last = in.position
		}
		var err error
		if code, err = bytecode.AppendInstruction(code, in.opcode, operands...); err != nil {
			return nil, nil, err
		}
	}
	return code, positions, nil
}
