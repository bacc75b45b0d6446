package tuple

import (
	"math"
	"testing"
)

func TestTrivialImmediates(t *testing.T) {
	values := []Tuple{False, True, Void, HashtableEmpty, Tombstone, PendingMemoizationMarker}
	seen := make(map[Tuple]bool)
	for i, v := range values {
		if !v.IsImmediate() || !v.IsTrivial() {
			t.Errorf("value %d should be a trivial immediate", i)
		}
		if v.TrivialIndex() != uint(i) {
			t.Errorf("TrivialIndex() = %d, want %d", v.TrivialIndex(), i)
		}
		if seen[v] {
			t.Errorf("duplicate trivial encoding %#x", uintptr(v))
		}
		seen[v] = true
	}
	if Null.IsImmediate() || Null.IsPointer() || !Null.IsNull() {
		t.Error("Null classification is wrong")
	}
	if !FromBool(true).Bool() || FromBool(false).Bool() {
		t.Error("bool round trip failed")
	}
	if !Tombstone.IsDummyMarker() || True.IsDummyMarker() {
		t.Error("dummy marker classification is wrong")
	}
}

func TestFalsy(t *testing.T) {
	for _, v := range []Tuple{False, Null, Void} {
		if !v.IsFalsy() {
			t.Errorf("%v should be falsy", v)
		}
	}
	for _, v := range []Tuple{True, FromSmallInteger(0), EncodeImmediateChar8(0)} {
		if v.IsFalsy() {
			t.Errorf("%v should not be falsy", v)
		}
	}
}

func TestSmallIntegerRoundTrip(t *testing.T) {
	tests := []int64{0, 1, -1, 42, -42, 1 << 20, -(1 << 20), ImmediateIntMax, ImmediateIntMin}
	for _, n := range tests {
		v := FromSmallInteger(n)
		if !v.IsSmallInteger() {
			t.Fatalf("FromSmallInteger(%d) has tag %v", n, v.Tag())
		}
		if got := v.SmallInteger(); got != n {
			t.Errorf("SmallInteger round trip: got %d, want %d", got, n)
		}
	}
}

func TestImmediateBoundaryUsesHostWord(t *testing.T) {
	if PayloadBits != WordBits-4 {
		t.Fatalf("PayloadBits = %d, want %d", PayloadBits, WordBits-4)
	}
	if !FitsImmediateSmallInteger(ImmediateIntMax) || FitsImmediateSmallInteger(ImmediateIntMax+1) {
		t.Error("upper boundary is off")
	}
	if !FitsImmediateSmallInteger(ImmediateIntMin) || FitsImmediateSmallInteger(ImmediateIntMin-1) {
		t.Error("lower boundary is off")
	}
	if WordBits == 64 {
		if !FitsImmediateInt32(math.MinInt32) || !FitsImmediateUInt32(math.MaxUint32) {
			t.Error("32-bit kinds must always fit on a 64-bit host")
		}
		if FitsImmediateInt64(math.MaxInt64) {
			t.Error("MaxInt64 cannot fit in 60 payload bits")
		}
	}
}

func TestFixedWidthRoundTrip(t *testing.T) {
	if got := DecodeImmediateInt8(EncodeImmediateInt8(-128)); got != -128 {
		t.Errorf("Int8: got %d", got)
	}
	if got := DecodeImmediateInt16(EncodeImmediateInt16(-32768)); got != -32768 {
		t.Errorf("Int16: got %d", got)
	}
	if got := DecodeImmediateUInt8(EncodeImmediateUInt8(255)); got != 255 {
		t.Errorf("UInt8: got %d", got)
	}
	if got := DecodeImmediateUInt16(EncodeImmediateUInt16(65535)); got != 65535 {
		t.Errorf("UInt16: got %d", got)
	}
	if got := DecodeImmediateInt64(EncodeImmediateInt64(-7)); got != -7 {
		t.Errorf("Int64: got %d", got)
	}
	if got := DecodeImmediateUInt64(EncodeImmediateUInt64(ImmediateUIntMax)); got != ImmediateUIntMax {
		t.Errorf("UInt64: got %d", got)
	}
	if got := DecodeImmediateChar8(EncodeImmediateChar8('a')); got != 'a' {
		t.Errorf("Char8: got %d", got)
	}
	if got := DecodeImmediateChar16(EncodeImmediateChar16(0x263A)); got != 0x263A {
		t.Errorf("Char16: got %d", got)
	}
	if got := DecodeImmediateChar32(EncodeImmediateChar32(0x1F600)); got != 0x1F600 {
		t.Errorf("Char32: got %d", got)
	}
}

func TestFloatImmediates(t *testing.T) {
	for _, f := range []float32{0, 1.5, -2.25, 3.1415927} {
		if !FitsImmediateFloat32(f) {
			continue
		}
		if got := DecodeImmediateFloat32(EncodeImmediateFloat32(f)); got != f {
			t.Errorf("Float32: got %v, want %v", got, f)
		}
	}
	if WordBits != 64 {
		if FitsImmediateFloat64(1.0) {
			t.Error("Float64 immediates require a 64-bit host")
		}
		return
	}
	for _, f := range []float64{0, 1, -0.5, 1024.125, math.Inf(1)} {
		if !FitsImmediateFloat64(f) {
			t.Fatalf("%v should fit", f)
		}
		if got := DecodeImmediateFloat64(EncodeImmediateFloat64(f)); got != f {
			t.Errorf("Float64: got %v, want %v", got, f)
		}
	}
	if FitsImmediateFloat64(0.1) {
		t.Error("0.1 has low mantissa bits set and must be boxed")
	}
}

func TestDecodeWrongTagPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	DecodeImmediateInt8(FromSmallInteger(3))
}

func TestPointerClassification(t *testing.T) {
	p := Tuple(0x1000)
	if !p.IsPointer() || p.IsImmediate() || !p.IsNullOrPointer() {
		t.Error("aligned address should be a pointer")
	}
	if p.String() != "@0x1000" {
		t.Errorf("String() = %q", p.String())
	}
}
