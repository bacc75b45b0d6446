package compiler

import (
	"fmt"
	"strings"

	"github.com/chazu/tuuvm/ast"
	"github.com/chazu/tuuvm/bytecode"
)

// ---------------------------------------------------------------------------
// Instruction list
// ---------------------------------------------------------------------------

// instruction is a node of the doubly linked list the lowering pass emits.
// Labels are pseudo-instructions that occupy no bytes. Jumps keep their
// target label until layout replaces it with a pc delta.
type instruction struct {
	prev, next *instruction

	label    bool
	opcode   bytecode.Opcode
	operands []bytecode.Operand
	target   *instruction
	position ast.Position

	// Filled in by layout.
	pc   int
	size int
}

func (in *instruction) isJump() bool {
	return !in.label && in.opcode.IsJump()
}

func (in *instruction) String() string {
	if in.label {
		return fmt.Sprintf("L%p:", in)
	}
	var sb strings.Builder
	sb.WriteString(in.opcode.Name())
	for i, o := range in.operands {
		if i == 0 {
			sb.WriteByte(' ')
		} else {
			sb.WriteString(", ")
		}
		if in.isJump() && i == in.opcode.OffsetOperand() {
			fmt.Fprintf(&sb, "L%p", in.target)
			continue
		}
		sb.WriteString(o.String())
	}
	return sb.String()
}

// instructionList owns the instructions of one function body.
type instructionList struct {
	first, last *instruction
	count       int
}

func (l *instructionList) append(in *instruction) *instruction {
	in.prev = l.last
	in.next = nil
	if l.last != nil {
		l.last.next = in
	} else {
		l.first = in
	}
	l.last = in
	l.count++
	return in
}

func (l *instructionList) remove(in *instruction) {
	if in.prev != nil {
		in.prev.next = in.next
	} else {
		l.first = in.next
	}
	if in.next != nil {
		in.next.prev = in.prev
	} else {
		l.last = in.prev
	}
	in.prev, in.next = nil, nil
	l.count--
}

// each calls fn for every instruction. fn may remove the instruction it is
// given.
func (l *instructionList) each(fn func(in *instruction)) {
	for in := l.first; in != nil; {
		next := in.next
		fn(in)
		in = next
	}
}

func (l *instructionList) String() string {
	var sb strings.Builder
	for in := l.first; in != nil; in = in.next {
		if !in.label {
			sb.WriteString("  ")
		}
		sb.WriteString(in.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}
