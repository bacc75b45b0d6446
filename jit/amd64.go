package jit

import (
	"fmt"

	"fortio.org/safecast"
)

// amd64 keeps the activation in r12 and the program in r13. rbx is saved
// only to keep rsp 16-byte aligned at calls.
type amd64 struct {
	buffer
	err error
}

func newAMD64() *amd64 { return &amd64{buffer: newBuffer()} }

func (a *amd64) Arch() string { return ArchAMD64 }

func (a *amd64) Prologue() {
	a.emit(0x41, 0x54)       // push r12
	a.emit(0x41, 0x55)       // push r13
	a.emit(0x53)             // push rbx
	a.emit(0x49, 0x89, 0xFC) // mov r12, rdi
	a.emit(0x49, 0x89, 0xF5) // mov r13, rsi
}

func (a *amd64) Begin(op int) { a.mark(op) }

func (a *amd64) Bind(label int) { a.bind(label) }

func (a *amd64) CallRuntime(r Runtime, op int) {
	imm, err := safecast.Conv[uint32](op)
	if err != nil && a.err == nil {
		a.err = fmt.Errorf("%w: op index %d", ErrRelocation, op)
	}
	a.emit(0x4C, 0x89, 0xE7) // mov rdi, r12
	a.emit(0x4C, 0x89, 0xEE) // mov rsi, r13
	a.emit(0xBA)             // mov edx, imm32
	a.emit32(imm)
	a.emit(0xFF, 0x15) // call [rip+disp32]
	a.reloc(RelocPCRel32, len(a.code), a.slot(r.Symbol()))
	a.emit32(0)
}

func (a *amd64) Jump(label int) {
	a.emit(0xE9) // jmp rel32
	a.reloc(RelocRel32, len(a.code), label)
	a.emit32(0)
}

func (a *amd64) BranchIfResult(nonzero bool, label int) {
	a.emit(0x48, 0x85, 0xC0) // test rax, rax
	if nonzero {
		a.emit(0x0F, 0x85) // jnz rel32
	} else {
		a.emit(0x0F, 0x84) // jz rel32
	}
	a.reloc(RelocRel32, len(a.code), label)
	a.emit32(0)
}

func (a *amd64) Return() {
	a.emit(0x5B)       // pop rbx
	a.emit(0x41, 0x5D) // pop r13
	a.emit(0x41, 0x5C) // pop r12
	a.emit(0xC3)       // ret
}

func (a *amd64) Finish() (*NativeImage, error) {
	if a.err != nil {
		return nil, a.err
	}
	return a.finish(ArchAMD64)
}
