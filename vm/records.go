package vm

import (
	"github.com/chazu/tuuvm/bytecode"
	"github.com/chazu/tuuvm/heap"
	"github.com/chazu/tuuvm/tuple"
)

// RecordKind discriminates activation records.
type RecordKind uint8

const (
	RecordGCRoots RecordKind = iota
	RecordFunctionActivation
	RecordBytecodeInterpreterActivation
	RecordBytecodeJITActivation
	RecordBreakTarget
	RecordContinueTarget
	RecordSourcePosition
	RecordLandingPad
	RecordCleanup
)

var recordKindNames = [...]string{
	"GCRoots", "FunctionActivation", "BytecodeInterpreterActivation", "BytecodeJITActivation",
	"BreakTarget", "ContinueTarget", "SourcePosition", "LandingPad", "Cleanup",
}

func (k RecordKind) String() string {
	if int(k) < len(recordKindNames) {
		return recordKindNames[k]
	}
	return "Record?"
}

// Record is one entry of the activation record chain. The chain is the
// GC root set and the unwinding stack at the same time.
type Record interface {
	Kind() RecordKind
	Previous() Record
	base() *recordLink
	visitRoots(visit heap.RootVisitor)
}

// recordLink is embedded in every record. value carries the payload of an
// unwind aimed at this record so it stays rooted while frames unwind.
type recordLink struct {
	previous Record
	id       uint64
	value    tuple.Tuple
}

func (r *recordLink) Previous() Record  { return r.previous }
func (r *recordLink) base() *recordLink { return r }

// ID identifies the record while it is on the chain.
func (r *recordLink) ID() uint64 { return r.id }

// GCRootsRecord roots tuples held in Go variables of a native frame.
type GCRootsRecord struct {
	recordLink
	Roots []*tuple.Tuple
}

func (*GCRootsRecord) Kind() RecordKind { return RecordGCRoots }

func (r *GCRootsRecord) visitRoots(visit heap.RootVisitor) {
	for _, p := range r.Roots {
		visit(p)
	}
}

// FunctionActivationRecord is pushed by FunctionApply for every call.
type FunctionActivationRecord struct {
	recordLink
	Function  tuple.Tuple
	Arguments []tuple.Tuple
}

func (*FunctionActivationRecord) Kind() RecordKind { return RecordFunctionActivation }

func (r *FunctionActivationRecord) visitRoots(visit heap.RootVisitor) {
	visit(&r.Function)
	for i := range r.Arguments {
		visit(&r.Arguments[i])
	}
}

// BytecodeActivation is the frame layout shared by interpreted and
// JIT-compiled code, so both are stack-walkable the same way.
type BytecodeActivation struct {
	recordLink
	Context       *Context
	Function      tuple.Tuple
	Bytecode      tuple.Tuple
	ArgumentCount int
	Arguments     []tuple.Tuple
	Captures      tuple.Tuple
	Literals      tuple.Tuple
	Locals        []tuple.Tuple
	PC            int

	caches *InlineCacheTable
}

func (a *BytecodeActivation) visitRoots(visit heap.RootVisitor) {
	visit(&a.Function)
	visit(&a.Bytecode)
	visit(&a.Captures)
	visit(&a.Literals)
	for i := range a.Arguments {
		visit(&a.Arguments[i])
	}
	for i := range a.Locals {
		visit(&a.Locals[i])
	}
}

// InterpreterActivationRecord adds the decoded operand register file.
type InterpreterActivationRecord struct {
	BytecodeActivation
	Operands [bytecode.MaxOperands]bytecode.Operand
}

func (*InterpreterActivationRecord) Kind() RecordKind { return RecordBytecodeInterpreterActivation }

// JITActivationRecord is pushed by native code.
type JITActivationRecord struct {
	BytecodeActivation
	Code CompiledCode
}

func (*JITActivationRecord) Kind() RecordKind { return RecordBytecodeJITActivation }

// BreakTargetRecord is where BreakInto resumes.
type BreakTargetRecord struct {
	recordLink
}

func (*BreakTargetRecord) Kind() RecordKind            { return RecordBreakTarget }
func (*BreakTargetRecord) visitRoots(heap.RootVisitor) {}

// ContinueTargetRecord is where ContinueInto resumes.
type ContinueTargetRecord struct {
	recordLink
}

func (*ContinueTargetRecord) Kind() RecordKind            { return RecordContinueTarget }
func (*ContinueTargetRecord) visitRoots(heap.RootVisitor) {}

// SourcePositionRecord marks the source position of native frames for
// stack traces.
type SourcePositionRecord struct {
	recordLink
	Position tuple.Tuple
}

func (*SourcePositionRecord) Kind() RecordKind { return RecordSourcePosition }

func (r *SourcePositionRecord) visitRoots(visit heap.RootVisitor) {
	visit(&r.Position)
}

// LandingPadRecord catches exceptions whose type is Filter or a subtype. A
// null filter catches everything.
type LandingPadRecord struct {
	recordLink
	Filter          tuple.Tuple
	WantsStackTrace bool
	StackTrace      tuple.Tuple
}

func (*LandingPadRecord) Kind() RecordKind { return RecordLandingPad }

func (r *LandingPadRecord) visitRoots(visit heap.RootVisitor) {
	visit(&r.Filter)
	visit(&r.StackTrace)
}

// Exception returns the caught exception.
func (r *LandingPadRecord) Exception() tuple.Tuple { return r.value }

// CleanupRecord runs Action exactly once when popped, normally or while
// unwinding.
type CleanupRecord struct {
	recordLink
	Action func()
	done   bool
}

func (*CleanupRecord) Kind() RecordKind            { return RecordCleanup }
func (*CleanupRecord) visitRoots(heap.RootVisitor) {}

func (r *CleanupRecord) run() {
	if r.done {
		return
	}
	r.done = true
	if r.Action != nil {
		r.Action()
	}
}

// ---------------------------------------------------------------------------
// Chain maintenance
// ---------------------------------------------------------------------------

// ActiveRecord returns the top of the record chain.
func (ctx *Context) ActiveRecord() Record { return ctx.active }

// PushRecord links r on top of the chain.
func (ctx *Context) PushRecord(r Record) {
	b := r.base()
	b.previous = ctx.active
	ctx.nextRecordID++
	b.id = ctx.nextRecordID
	ctx.active = r
}

// PopRecord unlinks r, which must be the active record.
func (ctx *Context) PopRecord(r Record) {
	if ctx.active != r {
		Fatalf("record chain corrupted: popping %s but %s is active", r.Kind(), describeRecord(ctx.active))
	}
	ctx.active = r.Previous()
}

func describeRecord(r Record) string {
	if r == nil {
		return "nothing"
	}
	return r.Kind().String()
}

// IsValidRecordInThisContext reports whether r is on the live chain.
func (ctx *Context) IsValidRecordInThisContext(r Record) bool {
	for cur := ctx.active; cur != nil; cur = cur.Previous() {
		if cur == r {
			return true
		}
	}
	return false
}

// recordByID finds a live record by id.
func (ctx *Context) recordByID(id uint64) Record {
	for cur := ctx.active; cur != nil; cur = cur.Previous() {
		if cur.base().id == id {
			return cur
		}
	}
	return nil
}

// IterateGCRootsInStackWith visits every tuple rooted by the record chain.
func (ctx *Context) IterateGCRootsInStackWith(visit heap.RootVisitor) {
	for r := ctx.active; r != nil; r = r.Previous() {
		r.visitRoots(visit)
		visit(&r.base().value)
	}
}

// WithGCRoots runs body with the given Go variables rooted.
func (ctx *Context) WithGCRoots(body func(), roots ...*tuple.Tuple) {
	r := &GCRootsRecord{Roots: roots}
	ctx.PushRecord(r)
	defer ctx.PopRecord(r)
	body()
}
