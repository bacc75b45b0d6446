package vm

import (
	"bytes"
	stdbig "math/big"
	"strconv"
	"strings"
	"testing"

	"github.com/chazu/tuuvm/bytecode"
	"github.com/chazu/tuuvm/tuple"
)

// ---------------------------------------------------------------------------
// Bootstrap and types
// ---------------------------------------------------------------------------

func TestBootstrapHierarchy(t *testing.T) {
	ctx := newTestContext(t)

	obj := ctx.Type(ObjectType)
	if !ctx.Supertype(obj).IsNull() {
		t.Error("Object must be the root type")
	}
	if !ctx.IsSubtypeOf(ctx.Type(SmallIntegerType), ctx.Type(NumberType)) {
		t.Error("SmallInteger must inherit from Number")
	}
	meta := ctx.TypeOf(obj)
	if !ctx.IsMetatype(meta) || ctx.ThisType(meta) != obj {
		t.Error("Object's header must be its metatype")
	}
	if ctx.Supertype(meta) != ctx.Type(TypeType) {
		t.Error("the root metatype must inherit from Type")
	}
	if ctx.Supertype(ctx.TypeOf(ctx.Type(ArrayType))) != meta {
		t.Error("Array class must inherit from Object class")
	}
	if g, ok := ctx.Global("Dictionary"); !ok || g != ctx.Type(DictionaryType) {
		t.Error("bootstrap types must be published as globals")
	}
}

func TestTypeOfImmediates(t *testing.T) {
	ctx := newTestContext(t)
	cases := []struct {
		v    tuple.Tuple
		want WellKnownType
	}{
		{tuple.Null, UndefinedObjectType},
		{tuple.True, TrueType},
		{tuple.False, FalseType},
		{tuple.Void, VoidType},
		{ctx.NewInteger(3), SmallIntegerType},
		{ctx.EncodeChar8('a'), Char8Type},
		{ctx.EncodeFloat64(1.5), Float64Type},
		{ctx.NewString("s"), StringType},
		{ctx.Intern("s"), SymbolType},
	}
	for _, c := range cases {
		if got := ctx.TypeOf(c.v); got != ctx.Type(c.want) {
			t.Errorf("TypeOf(%s) = %s, want %s", ctx.PrintString(c.v), ctx.TypeName(got), typeSpecs[c.want].name)
		}
	}
}

func TestSelectorArity(t *testing.T) {
	cases := map[string]int{
		"size": 0, "+": 1, "\\\\": 1, "at:": 1, "at:put:": 2, "on:do:": 2, "->": 1,
	}
	for sel, want := range cases {
		if got := SelectorArity(sel); got != want {
			t.Errorf("SelectorArity(%q) = %d, want %d", sel, got, want)
		}
	}
}

// ---------------------------------------------------------------------------
// Integers
// ---------------------------------------------------------------------------

func TestIntegerOverflowPromotes(t *testing.T) {
	ctx := newTestContext(t)
	maxSmall := int64(1)<<(tuple.PayloadBits-1) - 1

	big := ctx.Send("+", ctx.NewInteger(maxSmall), ctx.NewInteger(1))
	if !ctx.IsLargeInteger(big) || ctx.TypeOf(big) != ctx.Type(LargePositiveIntegerType) {
		t.Fatalf("overflow must produce a LargePositiveInteger, got %s", ctx.PrintString(big))
	}
	back := ctx.Send("-", big, ctx.NewInteger(1))
	if !back.IsSmallInteger() || back.SmallInteger() != maxSmall {
		t.Errorf("results must normalize back to SmallInteger, got %s", ctx.PrintString(back))
	}

	// -(maxSmall+1) is the smallest SmallInteger.
	minSmall := ctx.Send("negated", big)
	if !minSmall.IsSmallInteger() || minSmall.SmallInteger() != -maxSmall-1 {
		t.Errorf("negated %s = %s, want SmallInteger %d", ctx.PrintString(big), ctx.PrintString(minSmall), -maxSmall-1)
	}
	neg := ctx.Send("negated", ctx.Send("+", big, ctx.NewInteger(1)))
	if ctx.TypeOf(neg) != ctx.Type(LargeNegativeIntegerType) {
		t.Errorf("negated large integer has type %s", ctx.TypeName(ctx.TypeOf(neg)))
	}

	square := ctx.Send("*", big, big)
	want := new(stdbig.Int).Lsh(stdbig.NewInt(1), uint(2*(tuple.PayloadBits-1)))
	if got := ctx.PrintString(square); got != want.String() {
		t.Errorf("square of %s = %s, want %s", ctx.PrintString(big), got, want)
	}
}

func TestIntegerDivision(t *testing.T) {
	ctx := newTestContext(t)
	cases := []struct {
		sel  string
		a, b int64
		want int64
	}{
		{"//", 7, 2, 3},
		{"//", -7, 2, -4},
		{"\\\\", -7, 2, 1},
		{"quo:", -7, 2, -3},
		{"rem:", -7, 2, -1},
		{"/", 8, 2, 4},
	}
	for _, c := range cases {
		got := intValue(t, ctx, ctx.Send(c.sel, ctx.NewInteger(c.a), ctx.NewInteger(c.b)))
		if got != c.want {
			t.Errorf("%d %s %d = %d, want %d", c.a, c.sel, c.b, got, c.want)
		}
	}
	if f := ctx.Send("/", ctx.NewInteger(1), ctx.NewInteger(2)); ctx.DecodeFloat64(f) != 0.5 {
		t.Errorf("1 / 2 = %s", ctx.PrintString(f))
	}
}

func TestZeroDivide(t *testing.T) {
	ctx := newTestContext(t)
	for _, sel := range []string{"/", "//", "\\\\", "quo:", "rem:"} {
		expectException(t, ctx, ZeroDivideType, func() tuple.Tuple {
			return ctx.Send(sel, ctx.NewInteger(1), ctx.NewInteger(0))
		})
	}
}

func TestComparisonsMixNumbers(t *testing.T) {
	ctx := newTestContext(t)
	if ctx.Send("<", ctx.NewInteger(1), ctx.EncodeFloat64(1.5)) != tuple.True {
		t.Error("1 < 1.5")
	}
	if ctx.Send(">=", ctx.EncodeFloat64(2), ctx.NewInteger(2)) != tuple.True {
		t.Error("2.0 >= 2")
	}
	if ctx.Send("max:", ctx.NewInteger(3), ctx.NewInteger(9)) != ctx.NewInteger(9) {
		t.Error("3 max: 9")
	}
}

// ---------------------------------------------------------------------------
// Dispatch
// ---------------------------------------------------------------------------

func TestDispatchInheritanceAndOverride(t *testing.T) {
	ctx := newTestContext(t)
	a := ctx.NewType("A", tuple.Null, []string{"x"}, 0)
	b := ctx.NewType("B", a, nil, 0)
	c := ctx.NewType("C", b, []string{"y"}, 0)
	if ctx.TotalSlotCount(c) != 2 {
		t.Fatalf("C must have 2 slots, has %d", ctx.TotalSlotCount(c))
	}

	answer := func(name string, n int64) tuple.Tuple {
		return goFunction(ctx, name, 1, func([]tuple.Tuple) tuple.Tuple { return ctx.NewInteger(n) })
	}
	ctx.InstallMethod(a, "which", answer("A>>which", 1))
	ctx.InstallMethod(b, "which", answer("B>>which", 2))

	obj := ctx.BasicNew(c, 0)
	cache := NewInlineCache(DefaultPICSize)
	send := func() int64 {
		return intValue(t, ctx, ctx.SendWithCache(cache, tuple.Null, ctx.Intern("which"), []tuple.Tuple{obj}))
	}
	if got := send(); got != 2 {
		t.Fatalf("C inherits B>>which, got %d", got)
	}
	if got := send(); got != 2 || cache.Hits != 1 {
		t.Fatalf("second send must hit the cache: %d hits", cache.Hits)
	}

	ctx.InstallMethod(c, "which", answer("C>>which", 3))
	if got := send(); got != 3 {
		t.Errorf("installing an override must invalidate caches, got %d", got)
	}
	ctx.RemoveMethod(c, "which")
	if got := send(); got != 2 {
		t.Errorf("removing the override must fall back to B, got %d", got)
	}

	if got := intValue(t, ctx, ctx.SendWithCache(nil, a, ctx.Intern("which"), []tuple.Tuple{obj})); got != 1 {
		t.Errorf("lookup starting at A must find A>>which, got %d", got)
	}
}

func TestFallbackMethod(t *testing.T) {
	ctx := newTestContext(t)
	a := ctx.NewType("Proxy", tuple.Null, nil, 0)
	ctx.InstallFallbackMethod(a, "size", goFunction(ctx, "Proxy>>size", 1, func([]tuple.Tuple) tuple.Tuple {
		return ctx.NewInteger(42)
	}))
	if got := intValue(t, ctx, ctx.Send("size", ctx.BasicNew(a, 0))); got != 42 {
		t.Errorf("fallback method returned %d", got)
	}
}

func TestMessageNotUnderstood(t *testing.T) {
	ctx := newTestContext(t)
	recv := ctx.NewInteger(3)
	exc := expectException(t, ctx, MessageNotUnderstoodType, func() tuple.Tuple {
		return ctx.Send("frobnicate", recv)
	})
	if ctx.heap.Slot(exc, ExceptionReceiver) != recv {
		t.Error("exception must carry the receiver")
	}
	if ctx.StringValue(ctx.heap.Slot(exc, ExceptionSelector)) != "frobnicate" {
		t.Error("exception must carry the selector")
	}
	if ctx.DispatchStats().NotUnderstood == 0 {
		t.Error("stats must count the miss")
	}
}

func TestClassSideMethods(t *testing.T) {
	ctx := newTestContext(t)
	d := ctx.Send("new", ctx.Type(DictionaryType))
	ctx.Send("at:put:", d, ctx.NewString("k"), ctx.NewInteger(1))
	if got := intValue(t, ctx, ctx.Send("at:", d, ctx.NewString("k"))); got != 1 {
		t.Errorf("Dictionary new at: = %d", got)
	}
	arr := ctx.Send("new:", ctx.Type(ArrayType), ctx.NewInteger(3))
	if ctx.heap.SlotCount(arr) != 3 {
		t.Errorf("Array new: 3 has %d slots", ctx.heap.SlotCount(arr))
	}
	if ctx.Send("name", ctx.Type(ArrayType)) != ctx.Intern("Array") {
		t.Error("Array name")
	}
}

// ---------------------------------------------------------------------------
// Collections
// ---------------------------------------------------------------------------

func TestArrayIsOneBased(t *testing.T) {
	ctx := newTestContext(t)
	arr := ctx.NewArray(ctx.NewInteger(10), ctx.NewInteger(20))
	if got := intValue(t, ctx, ctx.Send("at:", arr, ctx.NewInteger(1))); got != 10 {
		t.Errorf("at: 1 = %d", got)
	}
	ctx.Send("at:put:", arr, ctx.NewInteger(2), ctx.NewInteger(7))
	if got := intValue(t, ctx, ctx.SlotAt(arr, 1)); got != 7 {
		t.Errorf("at:put: wrote %d", got)
	}
	expectException(t, ctx, IndexOutOfBoundsType, func() tuple.Tuple {
		return ctx.Send("at:", arr, ctx.NewInteger(0))
	})
	expectException(t, ctx, IndexOutOfBoundsType, func() tuple.Tuple {
		return ctx.Send("at:", arr, ctx.NewInteger(3))
	})
}

func TestImmutableTuples(t *testing.T) {
	ctx := newTestContext(t)
	arr := ctx.NewArray(ctx.NewInteger(1))
	ctx.Send("beImmutable", arr)
	expectException(t, ctx, ModifyImmutableType, func() tuple.Tuple {
		return ctx.Send("at:put:", arr, ctx.NewInteger(1), tuple.Null)
	})
	box := ctx.NewBox(ctx.NewInteger(1))
	assoc := ctx.NewAssociation(ctx.Intern("k"), ctx.NewInteger(2))
	ctx.heap.MarkImmutable(box)
	ctx.heap.MarkImmutable(assoc)
	for _, p := range []tuple.Tuple{box, assoc} {
		expectException(t, ctx, ModifyImmutableType, func() tuple.Tuple {
			ctx.Store(p, tuple.Null)
			return tuple.Null
		})
	}
	if v := ctx.Load(box); !v.IsSmallInteger() || v.SmallInteger() != 1 {
		t.Errorf("immutable box changed to %s", ctx.PrintString(v))
	}
	if v := ctx.Load(assoc); !v.IsSmallInteger() || v.SmallInteger() != 2 {
		t.Errorf("immutable association changed to %s", ctx.PrintString(v))
	}
	// Non-pointers fail the type check before immutability is considered.
	expectException(t, ctx, TypeCheckErrorType, func() tuple.Tuple {
		ctx.Store(ctx.Intern("sym"), tuple.Null)
		return tuple.Null
	})
}

func TestTypeSlotDescriptions(t *testing.T) {
	ctx := newTestContext(t)
	slots := ctx.ArrayElements(ctx.heap.Slot(ctx.Type(AssociationType), TypeSlots))
	if len(slots) != 2 {
		t.Fatalf("%d slot descriptions", len(slots))
	}
	base := ctx.totalSlotCount(AssociationType) - len(slots)
	for i, name := range []string{"key", "value"} {
		sd := slots[i]
		if ctx.TypeOf(sd) != ctx.Type(SlotDescriptionType) {
			t.Fatalf("slot %d is a %s", i, ctx.PrintString(ctx.TypeOf(sd)))
		}
		if got := ctx.StringValue(ctx.heap.Slot(sd, SlotDescriptionName)); got != name {
			t.Errorf("slot %d named %q", i, got)
		}
		if got := ctx.heap.Slot(sd, SlotDescriptionOffset).Index(); got != base+i {
			t.Errorf("%s at offset %d, want %d", name, got, base+i)
		}
		if ctx.heap.Slot(sd, SlotDescriptionDeclaredType) != tuple.Null {
			t.Errorf("%s has a declared type", name)
		}
	}
}

func TestDictionarySurvivesCollection(t *testing.T) {
	ctx := newTestContext(t)
	h := ctx.Retain(ctx.NewDictionary())
	defer h.Release()

	for i := range 200 {
		ctx.DictionaryAtPut(h.Get(), ctx.NewString("key"+strconv.Itoa(i)), ctx.NewInteger(int64(i)))
	}
	cycles := ctx.heap.Cycles()
	ctx.CollectGarbage()
	if ctx.heap.Cycles() == cycles {
		t.Fatal("CollectGarbage must run a cycle")
	}
	if ctx.DictionarySize(h.Get()) != 200 {
		t.Fatalf("size %d after collection", ctx.DictionarySize(h.Get()))
	}
	for i := range 200 {
		v, ok := ctx.DictionaryAt(h.Get(), ctx.NewString("key"+strconv.Itoa(i)))
		if !ok || intValue(t, ctx, v) != int64(i) {
			t.Fatalf("key%d lost after collection", i)
		}
	}
	if !ctx.DictionaryRemove(h.Get(), ctx.NewString("key7")) {
		t.Error("remove existing key")
	}
	if _, ok := ctx.DictionaryAt(h.Get(), ctx.NewString("key7")); ok {
		t.Error("removed key still present")
	}
}

// ---------------------------------------------------------------------------
// Garbage collection
// ---------------------------------------------------------------------------

func TestCollectionUpdatesRoots(t *testing.T) {
	ctx := newTestContext(t)
	for range 100 {
		ctx.NewString("garbage")
	}
	arr := ctx.NewArray(ctx.NewString("kept"), ctx.NewInteger(5))
	hash := ctx.IdentityHash(arr)
	epoch := ctx.Epoch()
	ctx.WithGCRoots(func() {
		ctx.CollectGarbage()
	}, &arr)

	if ctx.StringValue(ctx.heap.Slot(arr, 0)) != "kept" {
		t.Error("rooted array contents lost")
	}
	if ctx.IdentityHash(arr) != hash {
		t.Error("identity hash must survive moves")
	}
	if ctx.Epoch() == epoch {
		t.Error("collections must advance the epoch")
	}
}

func TestCollectGarbageDeferredUnderLock(t *testing.T) {
	ctx := newTestContext(t)
	ctx.GCLock()
	if ctx.CollectGarbage() {
		t.Error("locked collection must be deferred")
	}
	ctx.GCUnlock()
	if !ctx.GCSafepoint() {
		t.Error("the deferred collection must run at the next safepoint")
	}
}

func TestSymbolsAreWeak(t *testing.T) {
	ctx := newTestContext(t)
	before := ctx.SymbolCount()
	ctx.Intern("ephemeral-symbol-for-test")
	ctx.CollectGarbage()
	if _, ok := ctx.LookupSymbol("ephemeral-symbol-for-test"); ok {
		t.Error("unreferenced symbol must be collected")
	}
	if ctx.SymbolCount() > before {
		t.Errorf("symbol table grew from %d to %d", before, ctx.SymbolCount())
	}
}

// ---------------------------------------------------------------------------
// Exceptions and unwinding
// ---------------------------------------------------------------------------

func TestCatchFilters(t *testing.T) {
	ctx := newTestContext(t)
	innerRan := false
	_, exc := catch(ctx, func() tuple.Tuple {
		return ctx.Catch(ctx.Type(ZeroDivideType),
			func() tuple.Tuple {
				ctx.SignalError(TypeCheckErrorType, "wrong")
				return tuple.Null
			},
			func(tuple.Tuple) tuple.Tuple {
				innerRan = true
				return tuple.Null
			})
	})
	if innerRan {
		t.Error("ZeroDivide handler must not catch TypeCheckError")
	}
	if !ctx.IsKindOfWellKnown(exc, TypeCheckErrorType) || ctx.MessageText(exc) != "wrong" {
		t.Errorf("outer pad caught %s", ctx.PrintString(exc))
	}
	if ctx.ActiveRecord() != nil {
		t.Error("records leaked after unwinding")
	}
}

func TestExceptionCarriesStackTrace(t *testing.T) {
	ctx := newTestContext(t)
	thrower := goFunction(ctx, "thrower", 0, func([]tuple.Tuple) tuple.Tuple {
		ctx.SignalError(ErrorType, "boom")
		return tuple.Null
	})
	exc := expectException(t, ctx, ErrorType, func() tuple.Tuple { return ctx.Apply(thrower) })
	trace := ctx.RenderStackTrace(ctx.heap.Slot(exc, ExceptionStackTrace))
	if !strings.Contains(trace, "test.thrower") {
		t.Errorf("trace must name the raising primitive:\n%s", trace)
	}
}

func TestUnhandledExceptionIsFatal(t *testing.T) {
	ctx := newTestContext(t)
	var errOut bytes.Buffer
	ctx.SetErrorOutput(&errOut)
	fe := expectFatal(t, func() { ctx.SignalError(ErrorType, "nobody listens") })
	if !strings.Contains(fe.Message, "nobody listens") {
		t.Errorf("fatal message %q", fe.Message)
	}
	if !strings.Contains(errOut.String(), "unhandled exception") {
		t.Errorf("report not written: %q", errOut.String())
	}
}

func TestEnsureRunsExactlyOnce(t *testing.T) {
	ctx := newTestContext(t)
	runs := 0
	cleanup := func() { runs++ }

	r := ctx.Ensure(func() tuple.Tuple { return ctx.NewString("done") }, cleanup)
	if ctx.StringValue(r) != "done" || runs != 1 {
		t.Fatalf("normal exit: result %s, %d runs", ctx.PrintString(r), runs)
	}

	runs = 0
	catch(ctx, func() tuple.Tuple {
		return ctx.Ensure(func() tuple.Tuple {
			ctx.SignalError(ErrorType, "unwind")
			return tuple.Null
		}, cleanup)
	})
	if runs != 1 {
		t.Errorf("unwinding exit: %d runs", runs)
	}
}

func TestEnsureResultSurvivesCollectingCleanup(t *testing.T) {
	ctx := newTestContext(t)
	r := ctx.Ensure(
		func() tuple.Tuple { return ctx.NewString("moved") },
		func() { ctx.CollectGarbage() })
	if ctx.StringValue(r) != "moved" {
		t.Errorf("result after collecting cleanup: %s", ctx.PrintString(r))
	}
}

func TestReturnTargets(t *testing.T) {
	ctx := newTestContext(t)
	var stale tuple.Tuple
	after := false
	body := goFunction(ctx, "returner", 1, func(args []tuple.Tuple) tuple.Tuple {
		stale = args[0]
		ctx.Send("return:", args[0], ctx.NewInteger(42))
		after = true
		return tuple.Null
	})
	r := ctx.Send("withReturnTarget", body)
	if intValue(t, ctx, r) != 42 || after {
		t.Fatalf("return: must leave the target frame, got %s", ctx.PrintString(r))
	}

	h := ctx.Retain(stale)
	defer h.Release()
	expectException(t, ctx, CannotReturnType, func() tuple.Tuple {
		return ctx.Send("return:", h.Get(), tuple.Null)
	})
}

func TestLoopBreakAndContinue(t *testing.T) {
	ctx := newTestContext(t)
	i, bodies := 0, 0
	cond := goFunction(ctx, "cond", 0, func([]tuple.Tuple) tuple.Tuple {
		return tuple.FromBool(i < 100)
	})
	body := goFunction(ctx, "body", 1, func(args []tuple.Tuple) tuple.Tuple {
		i++
		if i == 10 {
			ctx.Send("break", args[0])
		}
		if i%2 == 0 {
			ctx.Send("continue", args[0])
		}
		bodies++
		return tuple.Null
	})
	ctx.Send("whileTrue:", cond, body)
	if i != 10 || bodies != 5 {
		t.Errorf("i = %d, completed bodies = %d", i, bodies)
	}
	if ctx.ActiveRecord() != nil {
		t.Error("loop records leaked")
	}
}

func TestToDoPassesIndex(t *testing.T) {
	ctx := newTestContext(t)
	var sum int64
	body := goFunction(ctx, "sum", 1, func(args []tuple.Tuple) tuple.Tuple {
		sum += intValue(t, ctx, args[0])
		return tuple.Null
	})
	ctx.Send("to:do:", ctx.NewInteger(1), ctx.NewInteger(10), body)
	if sum != 55 {
		t.Errorf("sum 1..10 = %d", sum)
	}
}

func TestOnDoPrimitive(t *testing.T) {
	ctx := newTestContext(t)
	body := goFunction(ctx, "divide", 0, func([]tuple.Tuple) tuple.Tuple {
		return ctx.Send("//", ctx.NewInteger(1), ctx.NewInteger(0))
	})
	handler := goFunction(ctx, "handler", 1, func(args []tuple.Tuple) tuple.Tuple {
		return ctx.Send("messageText", args[0])
	})
	r := ctx.Send("on:do:", body, ctx.Type(ZeroDivideType), handler)
	if ctx.StringValue(r) != "division by zero" {
		t.Errorf("handler result %s", ctx.PrintString(r))
	}
}

// ---------------------------------------------------------------------------
// Function application
// ---------------------------------------------------------------------------

func TestArgumentCountChecked(t *testing.T) {
	ctx := newTestContext(t)
	fn := goFunction(ctx, "two", 2, func(args []tuple.Tuple) tuple.Tuple { return args[1] })
	expectException(t, ctx, ArgumentCountErrorType, func() tuple.Tuple {
		return ctx.Apply(fn, tuple.True)
	})
	if r := ctx.FunctionApply(fn, []tuple.Tuple{tuple.True}, ApplyUnchecked); !r.IsNull() {
		t.Errorf("unchecked call must pad with null, got %s", ctx.PrintString(r))
	}
	expectException(t, ctx, TypeCheckErrorType, func() tuple.Tuple {
		return ctx.Apply(ctx.NewInteger(1))
	})
}

func TestStackOverflowIsSignaled(t *testing.T) {
	ctx := newTestContext(t)
	var self Handle
	recurse := goFunction(ctx, "recurse", 0, func([]tuple.Tuple) tuple.Tuple {
		return ctx.Apply(self.Get())
	})
	self = ctx.Retain(recurse)
	defer self.Release()
	expectException(t, ctx, StackOverflowType, func() tuple.Tuple { return ctx.Apply(self.Get()) })
}

func TestInterpreterLoopWithSafepoints(t *testing.T) {
	ctx := newTestContext(t)
	gc, _ := ctx.Global("collectGarbage")

	// sum(n): i := 0. s := 0. while i < n: i := i + 1. s := s + i. collectGarbage().
	lits := []tuple.Tuple{ctx.NewInteger(0), ctx.NewInteger(1), ctx.Intern("<"), ctx.Intern("+"), gc}
	cmpSize := in(bytecode.OpSend, loc(2), lit(2), loc(0), arg(0)).op.Size()
	jifSize := bytecode.OpJumpIfFalse.Size()
	addSize := in(bytecode.OpSend, loc(0), lit(3), loc(0), lit(1)).op.Size()
	callSize := in(bytecode.OpCall, loc(3), lit(4)).op.Size()
	loopBody := 2*addSize + callSize + bytecode.OpJump.Size()
	sum := assembledFunction(t, ctx, "sum", 1, 4, lits,
		in(bytecode.OpMove, loc(0), lit(0)),
		in(bytecode.OpMove, loc(1), lit(0)),
		in(bytecode.OpSend, loc(2), lit(2), loc(0), arg(0)),
		in(bytecode.OpJumpIfFalse, loc(2), offset(loopBody)),
		in(bytecode.OpSend, loc(0), lit(3), loc(0), lit(1)),
		in(bytecode.OpSend, loc(1), lit(3), loc(1), loc(0)),
		in(bytecode.OpCall, loc(3), lit(4)),
		in(bytecode.OpJump, offset(-(loopBody+jifSize+cmpSize))),
		in(bytecode.OpReturn, loc(1)),
	)
	h := ctx.Retain(sum)
	defer h.Release()

	cycles := ctx.heap.Cycles()
	if got := intValue(t, ctx, ctx.Apply(h.Get(), ctx.NewInteger(20))); got != 210 {
		t.Errorf("sum(20) = %d", got)
	}
	if ctx.heap.Cycles()-cycles < 20 {
		t.Errorf("expected a collection per iteration, got %d", ctx.heap.Cycles()-cycles)
	}
}

func TestInterpreterRejectsCorruptBytecode(t *testing.T) {
	ctx := newTestContext(t)
	fn := assembledFunction(t, ctx, "corrupt", 0, 0, []tuple.Tuple{tuple.Null}, in(bytecode.OpReturn, lit(0)))
	bc := ctx.heap.Slot(ctx.heap.Slot(fn, FunctionDefinition), DefinitionBytecode)
	ctx.Instructions(bc)[0] = 0x26
	expectFatal(t, func() { ctx.Apply(fn) })
}

// ---------------------------------------------------------------------------
// Printing and primitives
// ---------------------------------------------------------------------------

func TestPrintString(t *testing.T) {
	ctx := newTestContext(t)
	cases := []struct {
		v    tuple.Tuple
		want string
	}{
		{tuple.Null, "nil"},
		{ctx.NewInteger(-12), "-12"},
		{ctx.EncodeFloat64(2.5), "2.5"},
		{ctx.NewString("it's"), "'it''s'"},
		{ctx.Intern("foo:"), "#foo:"},
		{ctx.NewArray(ctx.NewInteger(1), tuple.True), "#(1 true)"},
		{ctx.NewAssociation(ctx.Intern("k"), ctx.NewInteger(2)), "#k -> 2"},
		{ctx.Type(ArrayType), "Array"},
		{ctx.NewException(ctx.Type(ErrorType), "bad"), "Error: bad"},
		{ctx.BasicNew(ctx.Type(ExceptionType), 0), "Exception"},
		{ctx.NewBox(ctx.NewInteger(1)), "a Box(1)"},
	}
	for _, c := range cases {
		if got := ctx.PrintString(c.v); got != c.want {
			t.Errorf("PrintString = %q, want %q", got, c.want)
		}
	}
}

func TestPrimitiveTableAndRebind(t *testing.T) {
	ctx := newTestContext(t)
	names := PrimitiveNames()
	for _, want := range []string{"Integer>>+", "Dictionary class>>new", "returnFrom:value:", "String.equalsFunction"} {
		found := false
		for _, n := range names {
			if n == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("primitive %q not registered", want)
		}
	}
	if err := ctx.RebindAfterLoad(); err != nil {
		t.Fatalf("RebindAfterLoad: %v", err)
	}
	if got := intValue(t, ctx, ctx.Send("+", ctx.NewInteger(2), ctx.NewInteger(3))); got != 5 {
		t.Errorf("2 + 3 = %d after rebind", got)
	}
}
