package jit

import (
	"fmt"

	"github.com/chazu/tuuvm/bytecode"
)

// Lower validates code and translates it to IR. Jump targets become op
// indices; the bytecode end maps to a trailing trap, so running off the
// end is fatal the same way it is in the interpreter. Backward jumps are
// preceded by a safepoint on their taken path.
func Lower(name string, code []byte, sizes bytecode.VectorSizes) (*Function, error) {
	if err := bytecode.Validate(code, sizes); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidBytecode, name, err)
	}
	insts, err := bytecode.DecodeAll(code)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidBytecode, name, err)
	}

	f := &Function{Name: name, Sizes: sizes, CodeSize: len(code), labels: map[int]bool{}}
	pcIndex := make(map[int]int, len(insts)+1)
	type fixup struct{ op, pc int }
	var fixups []fixup
	emit := func(op Op) int {
		f.Ops = append(f.Ops, op)
		return len(f.Ops) - 1
	}
	jumpTo := func(op Op, pc int) {
		fixups = append(fixups, fixup{emit(op), pc})
	}

	for i := range insts {
		in := &insts[i]
		pcIndex[in.PC] = len(f.Ops)
		args := in.Args()
		switch fam := in.Opcode.Family(); fam {
		case bytecode.OpNop:

		case bytecode.OpBreakpoint:
			emit(Op{Kind: KindCall, Runtime: RuntimeBreakpoint, PC: in.PC})

		case bytecode.OpUnreachable:
			emit(Op{Kind: KindTrap, PC: in.PC})

		case bytecode.OpReturn:
			emit(Op{Kind: KindReturn, Operands: copyOperands(args), PC: in.PC})

		case bytecode.OpJump:
			target := in.JumpTarget()
			if target <= in.PC {
				emit(Op{Kind: KindCall, Runtime: RuntimeSafepoint, PC: in.PC})
			}
			jumpTo(Op{Kind: KindJump, PC: in.PC}, target)

		case bytecode.OpJumpIfTrue, bytecode.OpJumpIfFalse:
			cond := copyOperands(args[:1])
			taken, skip := KindBranchTrue, KindBranchFalse
			if fam == bytecode.OpJumpIfFalse {
				taken, skip = skip, taken
			}
			target := in.JumpTarget()
			if target > in.PC {
				jumpTo(Op{Kind: taken, Operands: cond, PC: in.PC}, target)
				break
			}
			jumpTo(Op{Kind: skip, Operands: cond, PC: in.PC}, in.Next())
			emit(Op{Kind: KindCall, Runtime: RuntimeSafepoint, PC: in.PC})
			jumpTo(Op{Kind: KindJump, PC: in.PC}, target)

		default:
			r, ok := runtimeFor[fam]
			if !ok {
				return nil, fmt.Errorf("%w: %s: %s at pc %d", ErrUnsupported, name, in.Opcode, in.PC)
			}
			emit(Op{Kind: KindCall, Runtime: r, Operands: copyOperands(args), PC: in.PC})
		}
	}
	pcIndex[len(code)] = len(f.Ops)
	emit(Op{Kind: KindTrap, PC: len(code)})

	for _, fx := range fixups {
		idx, ok := pcIndex[fx.pc]
		if !ok {
			return nil, fmt.Errorf("%w: %s: jump to pc %d", ErrInvalidBytecode, name, fx.pc)
		}
		f.Ops[fx.op].Target = idx
		f.labels[idx] = true
	}
	return f, nil
}

func copyOperands(ops []bytecode.Operand) []bytecode.Operand {
	return append([]bytecode.Operand(nil), ops...)
}
