package jit

import (
	"fmt"

	"fortio.org/safecast"
)

// arm64 keeps the activation in x19 and the program in x20 and calls
// runtime entries through x16, loaded from the constants pool.
type arm64 struct {
	buffer
	err error
}

func newARM64() *arm64 { return &arm64{buffer: newBuffer()} }

func (a *arm64) Arch() string { return ArchARM64 }

func (a *arm64) Prologue() {
	a.emit32(0xA9BE7BFD) // stp x29, x30, [sp, #-32]!
	a.emit32(0x910003FD) // mov x29, sp
	a.emit32(0xA90153F3) // stp x19, x20, [sp, #16]
	a.emit32(0xAA0003F3) // mov x19, x0
	a.emit32(0xAA0103F4) // mov x20, x1
}

func (a *arm64) Begin(op int) { a.mark(op) }

func (a *arm64) Bind(label int) { a.bind(label) }

func (a *arm64) CallRuntime(r Runtime, op int) {
	imm, err := safecast.Conv[uint16](op)
	if err != nil && a.err == nil {
		a.err = fmt.Errorf("%w: op index %d does not fit movz", ErrRelocation, op)
	}
	a.emit32(0xAA1303E0)                     // mov x0, x19
	a.emit32(0xAA1403E1)                     // mov x1, x20
	a.emit32(0x52800000 | uint32(imm)<<5 | 2) // movz w2, #imm
	a.reloc(RelocLiteral19, len(a.code), a.slot(r.Symbol()))
	a.emit32(0x58000000 | 16) // ldr x16, literal
	a.emit32(0xD63F0200)      // blr x16
}

func (a *arm64) Jump(label int) {
	a.reloc(RelocImm26, len(a.code), label)
	a.emit32(0x14000000) // b
}

func (a *arm64) BranchIfResult(nonzero bool, label int) {
	a.reloc(RelocImm19, len(a.code), label)
	if nonzero {
		a.emit32(0xB5000000) // cbnz x0
	} else {
		a.emit32(0xB4000000) // cbz x0
	}
}

func (a *arm64) Return() {
	a.emit32(0xA94153F3) // ldp x19, x20, [sp, #16]
	a.emit32(0xA8C27BFD) // ldp x29, x30, [sp], #32
	a.emit32(0xD65F03C0) // ret
}

func (a *arm64) Finish() (*NativeImage, error) {
	if a.err != nil {
		return nil, a.err
	}
	return a.finish(ArchARM64)
}
