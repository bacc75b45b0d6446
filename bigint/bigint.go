// Package bigint implements the arbitrary precision integers behind
// LargePositiveInteger and LargeNegativeInteger.
//
// Magnitudes are base-2^32 limbs, least significant first. The canonical
// zero has no limbs and is never negative.
package bigint

import (
	"errors"
	"math/bits"
)

var (
	// ErrDivByZero indicates an attempt to divide by zero.
	ErrDivByZero = errors.New("bigint: division by zero")
	// ErrSyntax indicates a malformed numeric literal.
	ErrSyntax = errors.New("bigint: invalid syntax")
)

// Int is a signed arbitrary precision integer. The zero value is 0.
type Int struct {
	Negative bool
	Limbs    []uint32
}

// FromInt64 converts v.
func FromInt64(v int64) Int {
	if v >= 0 {
		return FromUint64(uint64(v))
	}
	// -MinInt64 overflows int64, so negate in uint64.
	mag := FromUint64(uint64(-(v + 1)) + 1)
	mag.Negative = true
	return mag
}

// FromUint64 converts v.
func FromUint64(v uint64) Int {
	if v == 0 {
		return Int{}
	}
	lo, hi := uint32(v), uint32(v>>32)
	if hi == 0 {
		return Int{Limbs: []uint32{lo}}
	}
	return Int{Limbs: []uint32{lo, hi}}
}

// FromBytes builds an integer from a little-endian magnitude.
func FromBytes(negative bool, mag []byte) Int {
	limbs := make([]uint32, (len(mag)+3)/4)
	for i, b := range mag {
		limbs[i/4] |= uint32(b) << (8 * (i % 4))
	}
	return normalize(negative, limbs)
}

// Bytes returns the little-endian magnitude with no trailing zero bytes.
func (x Int) Bytes() []byte {
	out := make([]byte, 0, len(x.Limbs)*4)
	for _, limb := range x.Limbs {
		out = append(out, byte(limb), byte(limb>>8), byte(limb>>16), byte(limb>>24))
	}
	for len(out) > 0 && out[len(out)-1] == 0 {
		out = out[:len(out)-1]
	}
	return out
}

func normalize(negative bool, limbs []uint32) Int {
	limbs = trimLimbs(limbs)
	if len(limbs) == 0 {
		return Int{}
	}
	return Int{Negative: negative, Limbs: limbs}
}

func trimLimbs(limbs []uint32) []uint32 {
	n := len(limbs)
	for n > 0 && limbs[n-1] == 0 {
		n--
	}
	return limbs[:n]
}

// IsZero reports whether x is zero.
func (x Int) IsZero() bool {
	return len(trimLimbs(x.Limbs)) == 0
}

// Sign returns -1, 0 or +1.
func (x Int) Sign() int {
	switch {
	case x.IsZero():
		return 0
	case x.Negative:
		return -1
	default:
		return 1
	}
}

// BitLen returns the bit length of the magnitude.
func (x Int) BitLen() int {
	limbs := trimLimbs(x.Limbs)
	if len(limbs) == 0 {
		return 0
	}
	top := len(limbs) - 1
	return top*32 + bits.Len32(limbs[top])
}

// Int64 returns x and whether it fits in an int64.
func (x Int) Int64() (int64, bool) {
	mag, ok := x.magnitude64()
	if !ok {
		return 0, false
	}
	if !x.Negative {
		if mag > 1<<63-1 {
			return 0, false
		}
		return int64(mag), true
	}
	if mag > 1<<63 {
		return 0, false
	}
	return -int64(mag-1) - 1, true
}

// Uint64 returns x and whether it fits in a uint64.
func (x Int) Uint64() (uint64, bool) {
	if x.Negative && !x.IsZero() {
		return 0, false
	}
	return x.magnitude64()
}

func (x Int) magnitude64() (uint64, bool) {
	limbs := trimLimbs(x.Limbs)
	switch len(limbs) {
	case 0:
		return 0, true
	case 1:
		return uint64(limbs[0]), true
	case 2:
		return uint64(limbs[1])<<32 | uint64(limbs[0]), true
	}
	return 0, false
}

// Neg returns -x.
func (x Int) Neg() Int {
	if x.IsZero() {
		return Int{}
	}
	return Int{Negative: !x.Negative, Limbs: x.Limbs}
}

// Abs returns |x|.
func (x Int) Abs() Int {
	return Int{Limbs: x.Limbs}
}

// Cmp compares x and y and returns -1, 0 or +1.
func (x Int) Cmp(y Int) int {
	xs, ys := x.Sign(), y.Sign()
	if xs != ys {
		if xs < ys {
			return -1
		}
		return 1
	}
	c := cmpLimbs(x.Limbs, y.Limbs)
	if xs < 0 {
		return -c
	}
	return c
}

// Add returns x+y.
func (x Int) Add(y Int) Int {
	if x.Negative == y.Negative {
		return normalize(x.Negative, addLimbs(x.Limbs, y.Limbs))
	}
	switch cmpLimbs(x.Limbs, y.Limbs) {
	case 0:
		return Int{}
	case 1:
		return normalize(x.Negative, subLimbs(x.Limbs, y.Limbs))
	default:
		return normalize(y.Negative, subLimbs(y.Limbs, x.Limbs))
	}
}

// Sub returns x-y.
func (x Int) Sub(y Int) Int {
	return x.Add(y.Neg())
}

// Mul returns x*y.
func (x Int) Mul(y Int) Int {
	return normalize(x.Negative != y.Negative, mulLimbs(x.Limbs, y.Limbs))
}

// QuoRem returns the quotient truncated toward zero and the remainder with
// the sign of x.
func (x Int) QuoRem(y Int) (Int, Int, error) {
	if y.IsZero() {
		return Int{}, Int{}, ErrDivByZero
	}
	q, r := divModLimbs(x.Limbs, y.Limbs)
	return normalize(x.Negative != y.Negative, q), normalize(x.Negative, r), nil
}

// DivMod returns the quotient rounded toward negative infinity and the
// remainder with the sign of y.
func (x Int) DivMod(y Int) (Int, Int, error) {
	q, r, err := x.QuoRem(y)
	if err != nil {
		return Int{}, Int{}, err
	}
	if !r.IsZero() && r.Negative != y.Negative {
		q = q.Sub(FromInt64(1))
		r = r.Add(y)
	}
	return q, r, nil
}

// ---------------------------------------------------------------------------
// Limb arithmetic
// ---------------------------------------------------------------------------

func cmpLimbs(a, b []uint32) int {
	a, b = trimLimbs(a), trimLimbs(b)
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	for i := len(a) - 1; i >= 0; i-- {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

func addLimbs(a, b []uint32) []uint32 {
	if len(a) < len(b) {
		a, b = b, a
	}
	out := make([]uint32, len(a)+1)
	var carry uint32
	for i := range a {
		var bi uint32
		if i < len(b) {
			bi = b[i]
		}
		sum, c1 := bits.Add32(a[i], bi, carry)
		out[i] = sum
		carry = c1
	}
	out[len(a)] = carry
	return trimLimbs(out)
}

// subLimbs requires a >= b.
func subLimbs(a, b []uint32) []uint32 {
	out := make([]uint32, len(a))
	var borrow uint32
	for i := range a {
		var bi uint32
		if i < len(b) {
			bi = b[i]
		}
		diff, b1 := bits.Sub32(a[i], bi, borrow)
		out[i] = diff
		borrow = b1
	}
	return trimLimbs(out)
}

func mulLimbs(a, b []uint32) []uint32 {
	a, b = trimLimbs(a), trimLimbs(b)
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	out := make([]uint32, len(a)+len(b))
	for i, ai := range a {
		var carry uint64
		for j, bj := range b {
			t := uint64(ai)*uint64(bj) + uint64(out[i+j]) + carry
			out[i+j] = uint32(t)
			carry = t >> 32
		}
		out[i+len(b)] = uint32(carry)
	}
	return trimLimbs(out)
}

// divModSmall divides by a single limb.
func divModSmall(u []uint32, v uint32) ([]uint32, uint32) {
	q := make([]uint32, len(u))
	var rem uint32
	for i := len(u) - 1; i >= 0; i-- {
		q[i], rem = bits.Div32(rem, u[i], v)
	}
	return trimLimbs(q), rem
}

// divModLimbs is Knuth's algorithm D (TAOCP vol. 2, 4.3.1). v must be
// non-zero.
func divModLimbs(u, v []uint32) ([]uint32, []uint32) {
	u, v = trimLimbs(u), trimLimbs(v)
	if cmpLimbs(u, v) < 0 {
		return nil, append([]uint32(nil), u...)
	}
	n := len(v)
	if n == 1 {
		q, r := divModSmall(u, v[0])
		if r == 0 {
			return q, nil
		}
		return q, []uint32{r}
	}
	m := len(u) - n

	// D1: normalize so the top bit of the divisor is set.
	s := uint(bits.LeadingZeros32(v[n-1]))
	vn := make([]uint32, n)
	for i := n - 1; i > 0; i-- {
		vn[i] = v[i]<<s | uint32(uint64(v[i-1])>>(32-s))
	}
	vn[0] = v[0] << s

	un := make([]uint32, len(u)+1)
	un[len(u)] = uint32(uint64(u[len(u)-1]) >> (32 - s))
	for i := len(u) - 1; i > 0; i-- {
		un[i] = u[i]<<s | uint32(uint64(u[i-1])>>(32-s))
	}
	un[0] = u[0] << s

	const base = 1 << 32
	q := make([]uint32, m+1)
	for j := m; j >= 0; j-- {
		// D3: estimate qhat from the top two limbs.
		num := uint64(un[j+n])<<32 | uint64(un[j+n-1])
		qhat := num / uint64(vn[n-1])
		rhat := num % uint64(vn[n-1])
		for qhat >= base || qhat*uint64(vn[n-2]) > rhat<<32|uint64(un[j+n-2]) {
			qhat--
			rhat += uint64(vn[n-1])
			if rhat >= base {
				break
			}
		}

		// D4: multiply and subtract.
		var k int64
		for i := 0; i < n; i++ {
			p := qhat * uint64(vn[i])
			t := int64(un[i+j]) - k - int64(p&0xFFFFFFFF)
			un[i+j] = uint32(t)
			k = int64(p>>32) - (t >> 32)
		}
		t := int64(un[j+n]) - k
		un[j+n] = uint32(t)

		// D5/D6: add back when qhat was one too large.
		q[j] = uint32(qhat)
		if t < 0 {
			q[j]--
			var carry uint64
			for i := 0; i < n; i++ {
				sum := uint64(un[i+j]) + uint64(vn[i]) + carry
				un[i+j] = uint32(sum)
				carry = sum >> 32
			}
			un[j+n] += uint32(carry)
		}
	}

	// D8: unnormalize the remainder.
	r := make([]uint32, n)
	for i := 0; i < n-1; i++ {
		r[i] = un[i]>>s | uint32(uint64(un[i+1])<<(32-s))
	}
	r[n-1] = un[n-1] >> s
	return trimLimbs(q), trimLimbs(r)
}
