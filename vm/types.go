package vm

import (
	"github.com/chazu/tuuvm/tuple"
)

// ---------------------------------------------------------------------------
// Type queries
// ---------------------------------------------------------------------------

// TypeOf returns the type of any value. Immediates map through their tag;
// heap tuples carry their type in the header.
func (ctx *Context) TypeOf(v tuple.Tuple) tuple.Tuple {
	switch {
	case v.IsNull():
		return ctx.types[UndefinedObjectType]
	case v.IsPointer():
		if t := ctx.heap.Type(v); !t.IsNull() {
			return t
		}
		return ctx.types[ObjectType]
	case v.IsTrivial():
		switch v {
		case tuple.True:
			return ctx.types[TrueType]
		case tuple.False:
			return ctx.types[FalseType]
		case tuple.Void:
			return ctx.types[VoidType]
		}
		return ctx.types[UndefinedObjectType]
	}
	return ctx.types[immediateTypes[v.Tag()]]
}

// Supertype returns t's supertype or null.
func (ctx *Context) Supertype(t tuple.Tuple) tuple.Tuple {
	return ctx.heap.Slot(t, TypeSupertype)
}

// TypeName returns t's name.
func (ctx *Context) TypeName(t tuple.Tuple) string {
	if !t.IsPointer() {
		return "?"
	}
	name := ctx.heap.Slot(t, TypeName)
	if name.IsNull() {
		return "<anonymous>"
	}
	return ctx.StringValue(name)
}

// TypeFlags returns t's flag word.
func (ctx *Context) TypeFlags(t tuple.Tuple) int {
	return ctx.heap.Slot(t, TypeFlags).Index()
}

// TotalSlotCount returns the number of pointer slots of t's instances.
func (ctx *Context) TotalSlotCount(t tuple.Tuple) int {
	return ctx.heap.Slot(t, TypeTotalSlotCount).Index()
}

// IsSubtypeOf reports whether t is super or inherits from it.
func (ctx *Context) IsSubtypeOf(t, super tuple.Tuple) bool {
	for ; !t.IsNull(); t = ctx.heap.Slot(t, TypeSupertype) {
		if t == super {
			return true
		}
	}
	return false
}

// IsKindOf reports whether v is an instance of typ or one of its subtypes.
func (ctx *Context) IsKindOf(v, typ tuple.Tuple) bool {
	return ctx.IsSubtypeOf(ctx.TypeOf(v), typ)
}

// IsKindOfWellKnown is IsKindOf for bootstrap types.
func (ctx *Context) IsKindOfWellKnown(v tuple.Tuple, k WellKnownType) bool {
	return ctx.IsKindOf(v, ctx.types[k])
}

// IsType reports whether v is a type tuple (an instance of some metatype).
func (ctx *Context) IsType(v tuple.Tuple) bool {
	if !v.IsPointer() {
		return false
	}
	meta := ctx.heap.Type(v)
	return !meta.IsNull() && ctx.heap.Type(meta) == ctx.types[MetatypeType]
}

// IsMetatype reports whether v is a metatype.
func (ctx *Context) IsMetatype(v tuple.Tuple) bool {
	return v.IsPointer() && ctx.heap.Type(v) == ctx.types[MetatypeType]
}

// ThisType returns the type a metatype classifies.
func (ctx *Context) ThisType(meta tuple.Tuple) tuple.Tuple {
	return ctx.heap.Slot(meta, MetatypeThisType)
}

// inheritedSlot returns the first non-null value of slot walking up from t.
func (ctx *Context) inheritedSlot(t tuple.Tuple, slot int) tuple.Tuple {
	for ; !t.IsNull(); t = ctx.heap.Slot(t, TypeSupertype) {
		if v := ctx.heap.Slot(t, slot); !v.IsNull() {
			return v
		}
	}
	return tuple.Null
}

// ---------------------------------------------------------------------------
// User-defined types
// ---------------------------------------------------------------------------

// NewType creates a type and its metatype. Instances have the supertype's
// slots followed by slotNames. A null super means Object.
func (ctx *Context) NewType(name string, super tuple.Tuple, slotNames []string, flags int) tuple.Tuple {
	if super.IsNull() {
		super = ctx.types[ObjectType]
	}
	h := ctx.heap
	// slot descriptions allocate; none of this can collect.
	inherited := ctx.TotalSlotCount(super)
	t := h.AllocatePointerTuple(tuple.Null, TypeSlotCount)
	h.SetSlot(t, TypeName, ctx.Intern(name))
	h.SetSlot(t, TypeSupertype, super)
	h.SetSlot(t, TypeTotalSlotCount, tuple.FromIndex(inherited+len(slotNames)))
	superFlags := ctx.TypeFlags(super) & (TypeFlagBytes | TypeFlagWeak)
	h.SetSlot(t, TypeFlags, tuple.FromIndex(flags|superFlags))
	h.SetSlot(t, TypeInstanceSize, h.Slot(super, TypeInstanceSize))
	if len(slotNames) > 0 {
		h.SetSlot(t, TypeSlots, ctx.newSlotDescriptions(slotNames, inherited))
	}
	ctx.attachMetatype(t)
	return t
}

// SlotIndex returns the index of the named instance slot of t, searching
// supertypes, or -1.
func (ctx *Context) SlotIndex(t tuple.Tuple, name string) int {
	h := ctx.heap
	for ; !t.IsNull(); t = h.Slot(t, TypeSupertype) {
		slots := h.Slot(t, TypeSlots)
		if slots.IsNull() {
			continue
		}
		for i := range h.SlotCount(slots) {
			sd := h.Slot(slots, i)
			if ctx.StringValue(h.Slot(sd, SlotDescriptionName)) == name {
				return h.Slot(sd, SlotDescriptionOffset).Index()
			}
		}
	}
	return -1
}

// BasicNew instantiates t: a pointer tuple with t's slot count, or a byte
// tuple of size bytes for byte types.
func (ctx *Context) BasicNew(t tuple.Tuple, size int) tuple.Tuple {
	flags := ctx.TypeFlags(t)
	if flags&TypeFlagAbstract != 0 {
		ctx.SignalError(ErrorType, "cannot instantiate abstract type "+ctx.TypeName(t))
	}
	if flags&TypeFlagImmediate != 0 {
		ctx.SignalError(ErrorType, "cannot instantiate immediate type "+ctx.TypeName(t))
	}
	if flags&TypeFlagBytes != 0 {
		return ctx.heap.AllocateByteTuple(t, size)
	}
	obj := ctx.heap.AllocatePointerTuple(t, ctx.TotalSlotCount(t)+size)
	if flags&TypeFlagWeak != 0 {
		ctx.heap.MarkWeakObject(obj)
	}
	return obj
}
