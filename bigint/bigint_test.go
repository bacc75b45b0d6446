package bigint

import (
	"math"
	"math/big"
	"math/rand"
	"testing"
)

func randomInt(rng *rand.Rand) Int {
	n := rng.Intn(6)
	limbs := make([]uint32, n)
	for i := range limbs {
		limbs[i] = rng.Uint32()
	}
	return normalize(rng.Intn(2) == 0, limbs)
}

func toBig(x Int) *big.Int {
	b := new(big.Int)
	for i := len(x.Limbs) - 1; i >= 0; i-- {
		b.Lsh(b, 32)
		b.Or(b, big.NewInt(int64(x.Limbs[i])))
	}
	if x.Negative {
		b.Neg(b)
	}
	return b
}

func bigHex(b *big.Int) string {
	if b.Sign() < 0 {
		return "-0x" + new(big.Int).Neg(b).Text(16)
	}
	return "0x" + b.Text(16)
}

func TestAddMatchesOracle(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 2000; i++ {
		a, b := randomInt(rng), randomInt(rng)
		want := bigHex(new(big.Int).Add(toBig(a), toBig(b)))
		if got := a.Add(b).Hex(); got != want {
			t.Fatalf("%s + %s = %s, want %s", a.Hex(), b.Hex(), got, want)
		}
	}
}

func TestSubMulMatchOracle(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 1000; i++ {
		a, b := randomInt(rng), randomInt(rng)
		if got, want := a.Sub(b).Hex(), bigHex(new(big.Int).Sub(toBig(a), toBig(b))); got != want {
			t.Fatalf("%s - %s = %s, want %s", a.Hex(), b.Hex(), got, want)
		}
		if got, want := a.Mul(b).Hex(), bigHex(new(big.Int).Mul(toBig(a), toBig(b))); got != want {
			t.Fatalf("%s * %s = %s, want %s", a.Hex(), b.Hex(), got, want)
		}
	}
}

func TestNegateTwiceIsIdentity(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 500; i++ {
		a := randomInt(rng)
		if a.Neg().Neg().Cmp(a) != 0 {
			t.Fatalf("negate(negate(%s)) != itself", a.Hex())
		}
	}
	if (Int{}).Neg().Negative {
		t.Error("negated zero must not be negative")
	}
}

func TestQuoRemMatchesOracle(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	for i := 0; i < 2000; i++ {
		a, b := randomInt(rng), randomInt(rng)
		if b.IsZero() {
			continue
		}
		q, r, err := a.QuoRem(b)
		if err != nil {
			t.Fatal(err)
		}
		wq, wr := new(big.Int).QuoRem(toBig(a), toBig(b), new(big.Int))
		if q.Hex() != bigHex(wq) || r.Hex() != bigHex(wr) {
			t.Fatalf("%s quoRem %s = (%s, %s), want (%s, %s)",
				a.Hex(), b.Hex(), q.Hex(), r.Hex(), bigHex(wq), bigHex(wr))
		}
	}
}

func TestDivModFloors(t *testing.T) {
	tests := []struct {
		a, b, q, r int64
	}{
		{7, 2, 3, 1},
		{-7, 2, -4, 1},
		{7, -2, -4, -1},
		{-7, -2, 3, -1},
		{6, 3, 2, 0},
	}
	for _, tt := range tests {
		q, r, err := FromInt64(tt.a).DivMod(FromInt64(tt.b))
		if err != nil {
			t.Fatal(err)
		}
		gq, _ := q.Int64()
		gr, _ := r.Int64()
		if gq != tt.q || gr != tt.r {
			t.Errorf("%d divMod %d = (%d, %d), want (%d, %d)", tt.a, tt.b, gq, gr, tt.q, tt.r)
		}
	}
	if _, _, err := FromInt64(1).DivMod(Int{}); err != ErrDivByZero {
		t.Errorf("expected ErrDivByZero, got %v", err)
	}
}

func TestInt64Boundaries(t *testing.T) {
	for _, v := range []int64{0, 1, -1, math.MaxInt64, math.MinInt64} {
		got, ok := FromInt64(v).Int64()
		if !ok || got != v {
			t.Errorf("Int64 round trip of %d = %d, %v", v, got, ok)
		}
	}
	over := FromInt64(math.MaxInt64).Add(FromInt64(1))
	if _, ok := over.Int64(); ok {
		t.Error("MaxInt64+1 must not fit")
	}
	if u, ok := over.Uint64(); !ok || u != 1<<63 {
		t.Errorf("Uint64() = %d, %v", u, ok)
	}
}

func TestBytesRoundTrip(t *testing.T) {
	x, err := Parse("-123456789012345678901234567890")
	if err != nil {
		t.Fatal(err)
	}
	y := FromBytes(true, x.Bytes())
	if x.Cmp(y) != 0 {
		t.Errorf("bytes round trip: %s != %s", x, y)
	}
	if x.String() != "-123456789012345678901234567890" {
		t.Errorf("String() = %s", x.String())
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "-", "12a", "0x"} {
		if _, err := Parse(s); err == nil {
			t.Errorf("Parse(%q) should fail", s)
		}
	}
	v, err := Parse("0xFF")
	if err != nil || v.Hex() != "0xff" {
		t.Errorf("Parse(0xFF) = %s, %v", v.Hex(), err)
	}
}
