package jit

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"fortio.org/safecast"
)

// Architectures.
const (
	ArchThreaded = "threaded"
	ArchAMD64    = "amd64"
	ArchARM64    = "arm64"
)

// Assembler encodes IR for one architecture. The code follows the
// platform C convention, not Go's: it keeps the activation record and the
// program in callee-saved registers and calls a runtime table entry per
// op with (act, program, op index), as NativeEntry does for the threaded
// program. Branches test the entry's result register.
type Assembler interface {
	Arch() string
	Prologue()
	// Begin marks the start of the code of op index op.
	Begin(op int)
	CallRuntime(r Runtime, op int)
	Jump(label int)
	BranchIfResult(nonzero bool, label int)
	Return()
	Bind(label int)
	Finish() (*NativeImage, error)
}

// NewAssembler returns the encoder for arch.
func NewAssembler(arch string) (Assembler, error) {
	switch arch {
	case ArchAMD64:
		return newAMD64(), nil
	case ArchARM64:
		return newARM64(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedArch, arch)
}

// Assemble encodes f with a.
func Assemble(f *Function, a Assembler) (*NativeImage, error) {
	a.Prologue()
	for i := range f.Ops {
		if f.IsLabel(i) {
			a.Bind(i)
		}
		a.Begin(i)
		op := &f.Ops[i]
		switch op.Kind {
		case KindCall:
			a.CallRuntime(op.Runtime, i)
		case KindJump:
			a.Jump(op.Target)
		case KindBranchTrue, KindBranchFalse:
			a.CallRuntime(RuntimeTruthy, i)
			a.BranchIfResult(op.Kind == KindBranchTrue, op.Target)
		case KindReturn:
			a.CallRuntime(RuntimeReturn, i)
			a.Return()
		case KindTrap:
			a.CallRuntime(RuntimeTrap, i)
		}
	}
	img, err := a.Finish()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Name, err)
	}
	img.Function = f.Name
	return img, nil
}

// RelocKind says how a relocation is patched.
type RelocKind uint8

const (
	// RelocRel32 is a 32-bit displacement from the end of the field to a
	// label (amd64 jmp/jcc).
	RelocRel32 RelocKind = iota
	// RelocPCRel32 is a 32-bit displacement from the end of the field to
	// a constants pool slot (amd64 call [rip+disp32]).
	RelocPCRel32
	// RelocImm26 is an arm64 b word offset to a label.
	RelocImm26
	// RelocImm19 is an arm64 cbz/cbnz word offset to a label.
	RelocImm19
	// RelocLiteral19 is an arm64 ldr literal word offset to a constants
	// pool slot.
	RelocLiteral19
	// RelocAbs64 is a constants pool slot holding the absolute address of
	// Symbol. It is resolved by Link, not by the assembler.
	RelocAbs64
)

var relocNames = [...]string{"rel32", "pcrel32", "imm26", "imm19", "lit19", "abs64"}

func (k RelocKind) String() string {
	if int(k) < len(relocNames) {
		return relocNames[k]
	}
	return fmt.Sprintf("reloc(%d)", k)
}

// Relocation is a field of the image patched after layout.
type Relocation struct {
	Kind   RelocKind `msgpack:"k"`
	Offset int       `msgpack:"o"`
	// Label is the target op index of label relocations, or the
	// constants pool slot of pool relocations.
	Label  int    `msgpack:"l"`
	Symbol string `msgpack:"s,omitempty"`
}

// NativeImage is machine code for one function, kept for inspection,
// caching and export. The constants pool follows the code at
// ConstantsOffset, 8 bytes per slot, one slot per runtime symbol.
type NativeImage struct {
	Function        string       `msgpack:"function"`
	Arch            string       `msgpack:"arch"`
	Code            []byte       `msgpack:"code"`
	ConstantsOffset int          `msgpack:"constants_offset"`
	Constants       []string     `msgpack:"constants"`
	Relocations     []Relocation `msgpack:"relocations"`
	// Symbols maps op indices to code offsets.
	Symbols map[int]int `msgpack:"symbols"`
	Linked  bool        `msgpack:"-"`
}

// Resolver returns the absolute address of a runtime symbol, e.g.
// TableResolver.
type Resolver func(symbol string) (uint64, bool)

// Link writes the absolute addresses of the pool's symbols.
func (img *NativeImage) Link(resolve Resolver) error {
	for _, r := range img.Relocations {
		if r.Kind != RelocAbs64 {
			continue
		}
		addr, ok := resolve(r.Symbol)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnresolvedSymbol, r.Symbol)
		}
		if r.Offset < 0 || r.Offset+8 > len(img.Code) {
			return fmt.Errorf("%w: abs64 at %d outside image", ErrRelocation, r.Offset)
		}
		binary.LittleEndian.PutUint64(img.Code[r.Offset:], addr)
	}
	img.Linked = true
	return nil
}

// Dump renders a hex listing of the code and the pool.
func (img *NativeImage) Dump() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "; %s %s: %d code bytes, %d constants\n", img.Function, img.Arch, img.ConstantsOffset, len(img.Constants))
	starts := make(map[int][]int)
	for op, off := range img.Symbols {
		starts[off] = append(starts[off], op)
	}
	offsets := make([]int, 0, len(starts))
	for off := range starts {
		offsets = append(offsets, off)
	}
	sort.Ints(offsets)
	for i, off := range offsets {
		end := img.ConstantsOffset
		if i+1 < len(offsets) {
			end = offsets[i+1]
		}
		ops := starts[off]
		sort.Ints(ops)
		fmt.Fprintf(&sb, "%06x  op %-4d % x\n", off, ops[len(ops)-1], img.Code[off:end])
	}
	for i, sym := range img.Constants {
		off := img.ConstantsOffset + 8*i
		fmt.Fprintf(&sb, "%06x  .quad %s = %#x\n", off, sym, binary.LittleEndian.Uint64(img.Code[off:]))
	}
	return sb.String()
}

// buffer collects code bytes, labels and pending relocations shared by
// the encoders.
type buffer struct {
	code    []byte
	labels  map[int]int
	symbols map[int]int
	relocs  []Relocation
	pool    []string
	slots   map[string]int
}

func newBuffer() buffer {
	return buffer{labels: map[int]int{}, symbols: map[int]int{}, slots: map[string]int{}}
}

func (b *buffer) bind(label int) { b.labels[label] = len(b.code) }

func (b *buffer) mark(op int) {
	if _, ok := b.symbols[op]; !ok {
		b.symbols[op] = len(b.code)
	}
}

func (b *buffer) emit(bs ...byte) { b.code = append(b.code, bs...) }

func (b *buffer) emit32(v uint32) { b.code = binary.LittleEndian.AppendUint32(b.code, v) }

// slot returns the constants pool slot of sym.
func (b *buffer) slot(sym string) int {
	if s, ok := b.slots[sym]; ok {
		return s
	}
	s := len(b.pool)
	b.slots[sym] = s
	b.pool = append(b.pool, sym)
	return s
}

func (b *buffer) reloc(kind RelocKind, offset, label int) {
	b.relocs = append(b.relocs, Relocation{Kind: kind, Offset: offset, Label: label})
}

// finish aligns and appends the constants pool, then patches every
// intra-image relocation. Abs64 relocations are left for Link.
func (b *buffer) finish(arch string) (*NativeImage, error) {
	for len(b.code)%8 != 0 {
		b.emit(padByte(arch))
	}
	poolAt := len(b.code)
	for i, sym := range b.pool {
		b.relocs = append(b.relocs, Relocation{Kind: RelocAbs64, Offset: poolAt + 8*i, Label: i, Symbol: sym})
		b.code = binary.LittleEndian.AppendUint64(b.code, 0)
	}

	for _, r := range b.relocs {
		var target int
		switch r.Kind {
		case RelocAbs64:
			continue
		case RelocPCRel32, RelocLiteral19:
			target = poolAt + 8*r.Label
		default:
			at, ok := b.labels[r.Label]
			if !ok {
				return nil, fmt.Errorf("%w: unbound label %d", ErrRelocation, r.Label)
			}
			target = at
		}
		if err := patch(b.code, r, target); err != nil {
			return nil, err
		}
	}
	return &NativeImage{
		Arch:            arch,
		Code:            b.code,
		ConstantsOffset: poolAt,
		Constants:       b.pool,
		Relocations:     b.relocs,
		Symbols:         b.symbols,
	}, nil
}

func padByte(arch string) byte {
	if arch == ArchAMD64 {
		return 0xCC // int3
	}
	return 0
}

// patch writes the displacement of target into the field at r.Offset.
func patch(code []byte, r Relocation, target int) error {
	switch r.Kind {
	case RelocRel32, RelocPCRel32:
		disp, err := safecast.Conv[int32](target - (r.Offset + 4))
		if err != nil {
			return fmt.Errorf("%w: %s at %d: %w", ErrRelocation, r.Kind, r.Offset, err)
		}
		binary.LittleEndian.PutUint32(code[r.Offset:], uint32(disp))
		return nil

	case RelocImm26, RelocImm19, RelocLiteral19:
		delta := target - r.Offset
		if delta%4 != 0 {
			return fmt.Errorf("%w: %s at %d: unaligned delta %d", ErrRelocation, r.Kind, r.Offset, delta)
		}
		bits, shift := 19, 5
		if r.Kind == RelocImm26 {
			bits, shift = 26, 0
		}
		words, err := safecast.Conv[int32](delta / 4)
		if err != nil || words < -(1<<(bits-1)) || words >= 1<<(bits-1) {
			return fmt.Errorf("%w: %s at %d: delta %d out of range", ErrRelocation, r.Kind, r.Offset, delta)
		}
		mask := uint32(1)<<bits - 1
		insn := binary.LittleEndian.Uint32(code[r.Offset:])
		insn |= (uint32(words) & mask) << shift
		binary.LittleEndian.PutUint32(code[r.Offset:], insn)
		return nil
	}
	return fmt.Errorf("%w: cannot patch %s", ErrRelocation, r.Kind)
}
