package bytecode

import (
	"errors"
	"strings"
	"testing"
)

func TestOperandCountsFromOpcode(t *testing.T) {
	tests := []struct {
		op    Opcode
		count int
		dests int
	}{
		{OpNop, 0, 0},
		{OpReturn, 1, 0},
		{OpJump, 1, 0},
		{OpMove, 2, 1},
		{OpStore, 2, 0},
		{OpJumpIfFalse, 2, 0},
		{OpAllocaWithValue, 3, 1},
		{OpSlotAtPut, 3, 0},
		{OpCall | 2, 4, 1},
		{OpSend | 1, 4, 1},
		{OpSendWithLookup | 15, 19, 1},
		{OpMakeArray | 0, 1, 1},
		{OpMakeTuple | 3, 5, 1},
	}
	for _, tt := range tests {
		if got := tt.op.OperandCount(); got != tt.count {
			t.Errorf("%s.OperandCount() = %d, want %d", tt.op, got, tt.count)
		}
		if got := tt.op.DestCount(); got != tt.dests {
			t.Errorf("%s.DestCount() = %d, want %d", tt.op, got, tt.dests)
		}
		if tt.op.OperandCount() > MaxOperands {
			t.Errorf("%s exceeds the register file", tt.op)
		}
	}
}

func TestWithCountLimit(t *testing.T) {
	op, err := OpMakeArray.WithCount(15)
	if err != nil || op != 0x8F {
		t.Fatalf("WithCount(15) = %#x, %v", byte(op), err)
	}
	if _, err := OpMakeArray.WithCount(16); !errors.Is(err, ErrTooManyOperands) {
		t.Errorf("WithCount(16) error = %v", err)
	}
	if _, err := OpMove.WithCount(1); err == nil {
		t.Error("fixed opcodes have no variable count")
	}
}

func TestOperandEncoding(t *testing.T) {
	tests := []struct {
		v     Vector
		index int
	}{
		{VectorArguments, 0},
		{VectorCaptures, 5},
		{VectorLiterals, MaxOperandIndex},
		{VectorLocals, 1234},
		{VectorLocals, -1},
	}
	for _, tt := range tests {
		o, err := EncodeOperand(tt.v, tt.index)
		if err != nil {
			t.Fatal(err)
		}
		if o.Vector() != tt.v || o.Index() != tt.index {
			t.Errorf("EncodeOperand(%v, %d) decoded as %v %d", tt.v, tt.index, o.Vector(), o.Index())
		}
	}
	if _, err := EncodeOperand(VectorLocals, MaxOperandIndex+1); !errors.Is(err, ErrOperandRange) {
		t.Errorf("expected range error, got %v", err)
	}
	if !VoidOperand.IsVoid() || VoidOperand.String() != "void" {
		t.Error("VoidOperand must be void")
	}
	off, err := EncodeOffset(-300)
	if err != nil || off.Offset() != -300 {
		t.Errorf("EncodeOffset(-300) = %d, %v", off.Offset(), err)
	}
	if _, err := EncodeOffset(40000); err == nil {
		t.Error("offset overflow must be rejected")
	}
}

func assemble(t *testing.T, parts ...[]Operand) []byte {
	t.Helper()
	var code []byte
	for _, p := range parts {
		var err error
		code, err = AppendInstruction(code, Opcode(p[0]), p[1:]...)
		if err != nil {
			t.Fatal(err)
		}
	}
	return code
}

func inst(op Opcode, operands ...Operand) []Operand {
	return append([]Operand{Operand(op)}, operands...)
}

func TestDecodeAndValidate(t *testing.T) {
	loc := func(i int) Operand { return MustOperand(VectorLocals, i) }
	arg := func(i int) Operand { return MustOperand(VectorArguments, i) }
	back, _ := EncodeOffset(-(OpMove.Size() + OpJump.Size()))
	code := assemble(t,
		inst(OpMove, loc(0), arg(0)),
		inst(OpJump, back),
		inst(OpReturn, loc(0)),
	)
	insts, err := DecodeAll(code)
	if err != nil {
		t.Fatal(err)
	}
	if len(insts) != 3 || insts[1].JumpTarget() != 0 {
		t.Fatalf("decoded %d instructions, jump target %d", len(insts), insts[1].JumpTarget())
	}
	sizes := VectorSizes{Arguments: 1, Locals: 1}
	if err := Validate(code, sizes); err != nil {
		t.Errorf("Validate: %v", err)
	}

	bad := assemble(t, inst(OpMove, arg(0), loc(0)))
	if err := Validate(bad, sizes); !errors.Is(err, ErrInvalidOperand) {
		t.Errorf("destination outside locals must fail, got %v", err)
	}
	oob := assemble(t, inst(OpReturn, loc(3)))
	if err := Validate(oob, sizes); !errors.Is(err, ErrInvalidOperand) {
		t.Errorf("out-of-range local must fail, got %v", err)
	}
	if _, err := Decode([]byte{0x26}, 0); !errors.Is(err, ErrInvalidOpcode) {
		t.Errorf("0x26 must be invalid, got %v", err)
	}
	if _, err := Decode([]byte{byte(OpMove), 0}, 0); !errors.Is(err, ErrTruncated) {
		t.Errorf("expected truncation, got %v", err)
	}
}

func TestDisassemble(t *testing.T) {
	lit := MustOperand(VectorLiterals, 0)
	code := assemble(t,
		inst(OpSend|1, MustOperand(VectorLocals, 0), lit, MustOperand(VectorArguments, 0), MustOperand(VectorArguments, 1)),
		inst(OpReturn, MustOperand(VectorLocals, 0)),
	)
	out := Disassemble(code, func(o Operand) string { return "#+" })
	if !strings.Contains(out, "send") || !strings.Contains(out, "lit0 (#+)") || !strings.Contains(out, "0009  return") {
		t.Errorf("unexpected listing:\n%s", out)
	}
}
