package vm

import (
	"github.com/chazu/tuuvm/tuple"
)

// ---------------------------------------------------------------------------
// Method installation
// ---------------------------------------------------------------------------

func (ctx *Context) selectorTuple(selector any) tuple.Tuple {
	switch s := selector.(type) {
	case string:
		return ctx.Intern(s)
	case tuple.Tuple:
		return s
	}
	Fatalf("selector must be a string or a Symbol, got %T", selector)
	return tuple.Null
}

func (ctx *Context) methodDictionary(typ tuple.Tuple, slot int) tuple.Tuple {
	d := ctx.heap.Slot(typ, slot)
	if d.IsNull() {
		d = ctx.NewMethodDictionary()
		ctx.heap.SetSlot(typ, slot, d)
	}
	return d
}

// InstallMethod binds selector (a string or Symbol) to method in typ's
// method dictionary. Every installation invalidates inline caches.
func (ctx *Context) InstallMethod(typ tuple.Tuple, selector any, method tuple.Tuple) {
	sel := ctx.selectorTuple(selector)
	d := ctx.methodDictionary(typ, TypeMethodDictionary)
	ctx.DictionaryAtPut(d, sel, method)
	ctx.epoch++
}

// InstallFallbackMethod binds selector in typ's fallback dictionary,
// consulted only when the regular lookup misses along the whole chain.
func (ctx *Context) InstallFallbackMethod(typ tuple.Tuple, selector any, method tuple.Tuple) {
	sel := ctx.selectorTuple(selector)
	d := ctx.methodDictionary(typ, TypeFallbackMethodDictionary)
	ctx.DictionaryAtPut(d, sel, method)
	ctx.epoch++
}

// RemoveMethod unbinds selector from typ's own method dictionary.
func (ctx *Context) RemoveMethod(typ tuple.Tuple, selector any) bool {
	sel := ctx.selectorTuple(selector)
	d := ctx.heap.Slot(typ, TypeMethodDictionary)
	if d.IsNull() {
		return false
	}
	removed := ctx.DictionaryRemove(d, sel)
	ctx.epoch++
	return removed
}

// InstallMethodOnMetatype binds a class-side method: it is found when
// selector is sent to the type itself.
func (ctx *Context) InstallMethodOnMetatype(typ tuple.Tuple, selector any, method tuple.Tuple) {
	ctx.InstallMethod(ctx.heap.Type(typ), selector, method)
}

// ---------------------------------------------------------------------------
// Lookup
// ---------------------------------------------------------------------------

func (ctx *Context) lookupIn(typ, selector tuple.Tuple, slot int) tuple.Tuple {
	for t := typ; !t.IsNull(); t = ctx.heap.Slot(t, TypeSupertype) {
		d := ctx.heap.Slot(t, slot)
		if d.IsNull() {
			continue
		}
		if m, ok := ctx.DictionaryAt(d, selector); ok {
			return m
		}
	}
	return tuple.Null
}

// LookupSelector resolves selector for instances of typ: the method
// dictionaries along the supertype chain first, then the fallback
// dictionaries along the same chain. It returns null on a total miss.
func (ctx *Context) LookupSelector(typ, selector tuple.Tuple) tuple.Tuple {
	if m := ctx.lookupIn(typ, selector, TypeMethodDictionary); !m.IsNull() {
		return m
	}
	return ctx.lookupIn(typ, selector, TypeFallbackMethodDictionary)
}

// RespondsTo reports whether receiver understands selector.
func (ctx *Context) RespondsTo(receiver tuple.Tuple, selector any) bool {
	return !ctx.LookupSelector(ctx.TypeOf(receiver), ctx.selectorTuple(selector)).IsNull()
}

// ---------------------------------------------------------------------------
// Sends
// ---------------------------------------------------------------------------

// Send sends selector (a string or Symbol) to receiver without a call-site
// cache.
func (ctx *Context) Send(selector any, receiver tuple.Tuple, args ...tuple.Tuple) tuple.Tuple {
	sel := ctx.selectorTuple(selector)
	full := make([]tuple.Tuple, 0, len(args)+1)
	full = append(full, receiver)
	full = append(full, args...)
	return ctx.SendWithCache(nil, tuple.Null, sel, full)
}

// SendWithCache dispatches selector on args[0]. When lookupType is not null
// lookup starts there instead of at the receiver's type. cache may be nil.
func (ctx *Context) SendWithCache(cache *InlineCache, lookupType, selector tuple.Tuple, args []tuple.Tuple) tuple.Tuple {
	ctx.stats.Sends++
	typ := lookupType
	if typ.IsNull() {
		typ = ctx.TypeOf(args[0])
	}

	method := tuple.Null
	if cache != nil {
		method = cache.Lookup(typ, ctx.epoch)
	}
	if method.IsNull() {
		ctx.stats.FullLookups++
		method = ctx.LookupSelector(typ, selector)
		if method.IsNull() {
			ctx.stats.NotUnderstood++
			ctx.signalMessageNotUnderstood(args[0], selector)
		}
		if cache != nil {
			cache.Update(typ, method, ctx.epoch)
		}
	}
	return ctx.FunctionApply(method, args, 0)
}

func (ctx *Context) signalMessageNotUnderstood(receiver, selector tuple.Tuple) {
	msg := ctx.TypeName(ctx.TypeOf(receiver)) + " does not understand #" + ctx.StringValue(selector)
	exc := ctx.NewException(ctx.types[MessageNotUnderstoodType], msg)
	ctx.heap.SetSlot(exc, ExceptionReceiver, receiver)
	ctx.heap.SetSlot(exc, ExceptionSelector, selector)
	ctx.RaiseException(exc)
}
