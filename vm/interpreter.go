package vm

import (
	"encoding/binary"

	"github.com/chazu/tuuvm/bytecode"
	"github.com/chazu/tuuvm/tuple"
)

// ---------------------------------------------------------------------------
// Bytecode interpreter
// ---------------------------------------------------------------------------

// interpret runs act, which is already on the record chain, until a return
// instruction.
func (ctx *Context) interpret(act *InterpreterActivationRecord) tuple.Tuple {
	h := ctx.heap
	cycles := h.Cycles()
	code := ctx.Instructions(act.Bytecode)

	for {
		// Collections move the instruction bytes.
		if c := h.Cycles(); c != cycles {
			cycles = c
			code = ctx.Instructions(act.Bytecode)
		}

		pc := act.PC
		if pc < 0 || pc >= len(code) {
			Fatalf("%s: pc %d outside code of %d bytes", ctx.FunctionName(act.Function), pc, len(code))
		}
		op := bytecode.Opcode(code[pc])
		if !op.IsValid() {
			Fatalf("%s: invalid opcode %#02x at pc %d", ctx.FunctionName(act.Function), byte(op), pc)
		}
		n := op.OperandCount()
		if pc+1+2*n > len(code) {
			Fatalf("%s: truncated %s at pc %d", ctx.FunctionName(act.Function), op, pc)
		}
		for i := range n {
			act.Operands[i] = bytecode.Operand(binary.LittleEndian.Uint16(code[pc+1+2*i:]))
		}
		ops := act.Operands[:n]
		act.CheckOperands(op, ops)
		next := pc + 1 + 2*n

		switch op.Family() {
		case bytecode.OpNop:

		case bytecode.OpBreakpoint:
			log.Debugf("breakpoint in %s at pc %d", ctx.FunctionName(act.Function), pc)

		case bytecode.OpUnreachable:
			Fatalf("%s: unreachable instruction executed at pc %d", ctx.FunctionName(act.Function), pc)

		case bytecode.OpReturn:
			return act.Value(ops[0])

		case bytecode.OpJump:
			next = ctx.jump(act, next, ops[0])

		case bytecode.OpJumpIfTrue:
			if !act.Value(ops[0]).IsFalsy() {
				next = ctx.jump(act, next, ops[1])
			}

		case bytecode.OpJumpIfFalse:
			if act.Value(ops[0]).IsFalsy() {
				next = ctx.jump(act, next, ops[1])
			}

		case bytecode.OpAlloca:
			act.SetLocal(ops[0], ctx.Alloca(act.Value(ops[1])))

		case bytecode.OpMove:
			act.SetLocal(ops[0], act.Value(ops[1]))

		case bytecode.OpLoad:
			act.SetLocal(ops[0], ctx.Load(act.Value(ops[1])))

		case bytecode.OpStore:
			ctx.Store(act.Value(ops[0]), act.Value(ops[1]))

		case bytecode.OpAllocaWithValue:
			act.SetLocal(ops[0], ctx.AllocaWithValue(act.Value(ops[1]), act.Value(ops[2])))

		case bytecode.OpCoerceValue:
			act.SetLocal(ops[0], ctx.CoerceValue(act.Value(ops[1]), act.Value(ops[2])))

		case bytecode.OpTypecheckValue:
			act.SetLocal(ops[0], ctx.TypecheckValue(act.Value(ops[1]), act.Value(ops[2])))

		case bytecode.OpMakeAssociation:
			act.SetLocal(ops[0], ctx.NewAssociation(act.Value(ops[1]), act.Value(ops[2])))

		case bytecode.OpSlotAt:
			act.SetLocal(ops[0], ctx.SlotAtValue(act.Value(ops[1]), act.Value(ops[2])))

		case bytecode.OpSlotAtPut:
			ctx.SlotAtPutValue(act.Value(ops[0]), act.Value(ops[1]), act.Value(ops[2]))

		case bytecode.OpCall, bytecode.OpUncheckedCall:
			fn := act.Value(ops[1])
			args := act.Values(ops[2:])
			act.SetLocal(ops[0], ctx.Call(fn, args, op.Family() == bytecode.OpUncheckedCall))

		case bytecode.OpSend:
			args := act.Values(ops[2:])
			act.SetLocal(ops[0], ctx.SendAt(&act.BytecodeActivation, pc, tuple.Null, act.Value(ops[1]), args))

		case bytecode.OpSendWithLookup:
			args := act.Values(ops[3:])
			act.SetLocal(ops[0], ctx.SendAt(&act.BytecodeActivation, pc, act.Value(ops[1]), act.Value(ops[2]), args))

		case bytecode.OpMakeArray:
			act.SetLocal(ops[0], ctx.NewArray(act.Values(ops[1:])...))

		case bytecode.OpMakeClosure:
			act.SetLocal(ops[0], ctx.MakeClosure(act.Value(ops[1]), act.Values(ops[2:])))

		case bytecode.OpMakeDictionary:
			act.SetLocal(ops[0], ctx.MakeDictionary(act.Values(ops[1:])))

		case bytecode.OpMakeTuple:
			act.SetLocal(ops[0], ctx.MakeTuple(act.Value(ops[1]), act.Values(ops[2:])))

		default:
			Fatalf("%s: unsupported opcode %s at pc %d", ctx.FunctionName(act.Function), op, pc)
		}
		act.PC = next
	}
}

// jump returns the target of a relative jump from next. Backward jumps are
// safepoints.
func (ctx *Context) jump(act *InterpreterActivationRecord, next int, offset bytecode.Operand) int {
	delta := offset.Offset()
	if delta < 0 {
		act.Safepoint()
	}
	return next + delta
}
