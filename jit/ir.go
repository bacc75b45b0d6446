package jit

import (
	"fmt"
	"strings"

	"github.com/chazu/tuuvm/bytecode"
)

// Kind is the control-flow shape of an IR op.
type Kind uint8

const (
	KindCall        Kind = iota // call a runtime entry and fall through
	KindJump                    // unconditional jump to Target
	KindBranchTrue              // jump to Target when the operand is truthy
	KindBranchFalse             // jump to Target when the operand is falsy
	KindReturn                  // return the operand
	KindTrap                    // VM-fatal, never falls through
)

var kindNames = [...]string{"call", "jmp", "jtrue", "jfalse", "ret", "trap"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Runtime identifies the vm operation a KindCall op performs. Native code
// reaches these through the constants pool, one slot per distinct entry.
type Runtime uint8

const (
	RuntimeNone Runtime = iota
	RuntimeMove
	RuntimeAlloca
	RuntimeLoad
	RuntimeStore
	RuntimeAllocaWithValue
	RuntimeCoerce
	RuntimeTypecheck
	RuntimeMakeAssociation
	RuntimeSlotAt
	RuntimeSlotAtPut
	RuntimeCall
	RuntimeUncheckedCall
	RuntimeSend
	RuntimeSendWithLookup
	RuntimeMakeArray
	RuntimeMakeClosure
	RuntimeMakeDictionary
	RuntimeMakeTuple
	RuntimeSafepoint
	RuntimeBreakpoint

	// Used only by native code to evaluate branch conditions, produce the
	// return value and raise traps.
	RuntimeTruthy
	RuntimeReturn
	RuntimeTrap

	runtimeCount
)

var runtimeNames = [runtimeCount]string{
	"none", "move", "alloca", "load", "store", "allocaWithValue", "coerce", "typecheck",
	"makeAssociation", "slotAt", "slotAtPut", "call", "uncheckedCall", "send",
	"sendWithLookup", "makeArray", "makeClosure", "makeDictionary", "makeTuple",
	"safepoint", "breakpoint", "truthy", "return", "trap",
}

func (r Runtime) String() string {
	if r < runtimeCount {
		return runtimeNames[r]
	}
	return fmt.Sprintf("runtime(%d)", r)
}

// Symbol is the relocation symbol of the runtime entry.
func (r Runtime) Symbol() string {
	return "tuuvm.rt." + r.String()
}

// runtimeFor maps the opcode families that are plain runtime calls.
var runtimeFor = map[bytecode.Opcode]Runtime{
	bytecode.OpMove:            RuntimeMove,
	bytecode.OpAlloca:          RuntimeAlloca,
	bytecode.OpLoad:            RuntimeLoad,
	bytecode.OpStore:           RuntimeStore,
	bytecode.OpAllocaWithValue: RuntimeAllocaWithValue,
	bytecode.OpCoerceValue:     RuntimeCoerce,
	bytecode.OpTypecheckValue:  RuntimeTypecheck,
	bytecode.OpMakeAssociation: RuntimeMakeAssociation,
	bytecode.OpSlotAt:          RuntimeSlotAt,
	bytecode.OpSlotAtPut:       RuntimeSlotAtPut,
	bytecode.OpCall:            RuntimeCall,
	bytecode.OpUncheckedCall:   RuntimeUncheckedCall,
	bytecode.OpSend:            RuntimeSend,
	bytecode.OpSendWithLookup:  RuntimeSendWithLookup,
	bytecode.OpMakeArray:       RuntimeMakeArray,
	bytecode.OpMakeClosure:     RuntimeMakeClosure,
	bytecode.OpMakeDictionary:  RuntimeMakeDictionary,
	bytecode.OpMakeTuple:       RuntimeMakeTuple,
}

// Op is one IR operation.
type Op struct {
	Kind     Kind
	Runtime  Runtime
	Operands []bytecode.Operand
	// Target is an op index, for jumps and branches.
	Target int
	// PC is the bytecode address the op was lowered from. Ops synthesized
	// for an instruction share its pc.
	PC int
}

// Mnemonic names the op for listings.
func (op *Op) Mnemonic() string {
	if op.Kind == KindCall {
		return op.Runtime.String()
	}
	return op.Kind.String()
}

func (op *Op) String() string {
	var sb strings.Builder
	sb.WriteString(op.Mnemonic())
	for i, o := range op.Operands {
		if i == 0 {
			sb.WriteByte(' ')
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString(o.String())
	}
	switch op.Kind {
	case KindJump, KindBranchTrue, KindBranchFalse:
		if len(op.Operands) > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, " @%d", op.Target)
	}
	return sb.String()
}

// Function is a lowered FunctionBytecode.
type Function struct {
	Name     string
	Sizes    bytecode.VectorSizes
	CodeSize int
	Ops      []Op
	labels   map[int]bool
}

// IsLabel reports whether some jump targets op index i.
func (f *Function) IsLabel(i int) bool { return f.labels[i] }

// Runtimes returns the distinct runtime entries native code for f calls,
// in first-use order.
func (f *Function) Runtimes() []Runtime {
	var seen [runtimeCount]bool
	var out []Runtime
	use := func(r Runtime) {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	for i := range f.Ops {
		switch op := &f.Ops[i]; op.Kind {
		case KindCall:
			use(op.Runtime)
		case KindBranchTrue, KindBranchFalse:
			use(RuntimeTruthy)
		case KindReturn:
			use(RuntimeReturn)
		case KindTrap:
			use(RuntimeTrap)
		}
	}
	return out
}

// Listing renders the IR one op per line.
func (f *Function) Listing() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "; %s: %d ops from %d bytes\n", f.Name, len(f.Ops), f.CodeSize)
	for i := range f.Ops {
		mark := ' '
		if f.IsLabel(i) {
			mark = '>'
		}
		fmt.Fprintf(&sb, "%c%4d  pc %04x  %s\n", mark, i, f.Ops[i].PC, f.Ops[i].String())
	}
	return sb.String()
}
