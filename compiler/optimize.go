package compiler

import (
	"github.com/chazu/tuuvm/bytecode"
)

// ---------------------------------------------------------------------------
// Optimizations
// ---------------------------------------------------------------------------

// removeEmptyJumps deletes jumps whose target is reached by falling
// through, that is, only labels lie between the jump and its target.
// Conditional jumps qualify too: their condition operand has no side
// effect once computed. It returns the number of jumps removed.
func removeEmptyJumps(l *instructionList) int {
	removed := 0
	l.each(func(in *instruction) {
		if !in.isJump() {
			return
		}
		for next := in.next; next != nil && next.label; next = next.next {
			if next == in.target {
				l.remove(in)
				removed++
				return
			}
		}
	})
	return removed
}

// stripLocalAllocas turns boxes that never leave the function into plain
// locals. A local qualifies when every instruction defining it is an
// alloca of a Box and every other use is the pointer operand of a load or
// a store. Those become moves and the box is never allocated.
func stripLocalAllocas(l *instructionList, nullLiteral func(bytecode.Operand) bool) int {
	type usage struct {
		allocas int
		escapes bool
	}
	uses := map[bytecode.Operand]*usage{}
	get := func(o bytecode.Operand) *usage {
		u := uses[o]
		if u == nil {
			u = &usage{}
			uses[o] = u
		}
		return u
	}

	for in := l.first; in != nil; in = in.next {
		if in.label {
			continue
		}
		for i, o := range in.operands {
			if in.isJump() && i == in.opcode.OffsetOperand() {
				continue
			}
			if o.IsVoid() || o.Vector() != bytecode.VectorLocals {
				continue
			}
			u := get(o)
			switch {
			case (in.opcode == bytecode.OpAlloca || in.opcode == bytecode.OpAllocaWithValue) && i == 0:
				if nullLiteral(in.operands[1]) {
					u.allocas++
				} else {
					u.escapes = true
				}
			case in.opcode == bytecode.OpLoad && i == 1:
			case in.opcode == bytecode.OpStore && i == 0:
			default:
				u.escapes = true
			}
		}
	}

	stripped := 0
	for o, u := range uses {
		if u.allocas > 0 && !u.escapes {
			stripped++
		} else {
			delete(uses, o)
		}
	}
	if stripped == 0 {
		return 0
	}

	for in := l.first; in != nil; in = in.next {
		if in.label {
			continue
		}
		switch in.opcode {
		case bytecode.OpAlloca:
			if _, ok := uses[in.operands[0]]; ok {
				// The type operand is a null literal, which is also the
				// box's initial value.
				in.opcode = bytecode.OpMove
			}
		case bytecode.OpAllocaWithValue:
			if _, ok := uses[in.operands[0]]; ok {
				in.opcode = bytecode.OpMove
				in.operands = []bytecode.Operand{in.operands[0], in.operands[2]}
			}
		case bytecode.OpLoad:
			if _, ok := uses[in.operands[1]]; ok {
				in.opcode = bytecode.OpMove
			}
		case bytecode.OpStore:
			if _, ok := uses[in.operands[0]]; ok {
				in.opcode = bytecode.OpMove
			}
		}
	}
	return stripped
}
