package bytecode

import (
	"fmt"
	"strings"
)

// OperandDescriber renders an operand for disassembly, for example by
// printing the literal it refers to. It returns "" to fall back to the
// plain operand form.
type OperandDescriber func(o Operand) string

// DisassembleInstruction renders one decoded instruction.
func DisassembleInstruction(in *Instruction, describe OperandDescriber) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%04d  %-16s", in.PC, in.Opcode.Name())
	offset := in.Opcode.OffsetOperand()
	for i, o := range in.Args() {
		if i > 0 {
			sb.WriteString(", ")
		} else {
			sb.WriteByte(' ')
		}
		if i == offset {
			fmt.Fprintf(&sb, "%+d -> %04d", o.Offset(), in.JumpTarget())
			continue
		}
		sb.WriteString(o.String())
		if describe != nil && o.Vector() == VectorLiterals && !o.IsVoid() {
			if d := describe(o); d != "" {
				fmt.Fprintf(&sb, " (%s)", d)
			}
		}
	}
	return strings.TrimRight(sb.String(), " ")
}

// Disassemble returns a listing of code. Decoding errors end the listing
// with an error line.
func Disassemble(code []byte, describe OperandDescriber) string {
	var lines []string
	for pc := 0; pc < len(code); {
		in, err := Decode(code, pc)
		if err != nil {
			lines = append(lines, fmt.Sprintf("%04d  <%v>", pc, err))
			break
		}
		lines = append(lines, DisassembleInstruction(&in, describe))
		pc = in.Next()
	}
	return strings.Join(lines, "\n")
}
