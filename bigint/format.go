package bigint

import (
	"fmt"
	"strings"
)

const hexDigits = "0123456789abcdef"

// Hex renders x as 0x-prefixed lowercase hexadecimal, with a leading '-'
// when negative.
func (x Int) Hex() string {
	limbs := trimLimbs(x.Limbs)
	if len(limbs) == 0 {
		return "0x0"
	}
	var sb strings.Builder
	if x.Negative {
		sb.WriteByte('-')
	}
	sb.WriteString("0x")
	started := false
	for i := len(limbs) - 1; i >= 0; i-- {
		for shift := 28; shift >= 0; shift -= 4 {
			d := (limbs[i] >> uint(shift)) & 0xF
			if d == 0 && !started {
				continue
			}
			started = true
			sb.WriteByte(hexDigits[d])
		}
	}
	return sb.String()
}

// String renders x in decimal.
func (x Int) String() string {
	limbs := trimLimbs(x.Limbs)
	if len(limbs) == 0 {
		return "0"
	}
	const chunk = 1_000_000_000
	var parts []uint32
	cur := append([]uint32(nil), limbs...)
	for len(cur) > 0 {
		var r uint32
		cur, r = divModSmall(cur, chunk)
		parts = append(parts, r)
	}
	var sb strings.Builder
	if x.Negative {
		sb.WriteByte('-')
	}
	fmt.Fprintf(&sb, "%d", parts[len(parts)-1])
	for i := len(parts) - 2; i >= 0; i-- {
		fmt.Fprintf(&sb, "%09d", parts[i])
	}
	return sb.String()
}

// Parse reads a decimal integer with an optional sign, or a hexadecimal one
// when prefixed with 0x.
func Parse(s string) (Int, error) {
	orig := s
	negative := false
	if strings.HasPrefix(s, "-") {
		negative = true
		s = s[1:]
	} else if strings.HasPrefix(s, "+") {
		s = s[1:]
	}
	base := uint32(10)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base = 16
		s = s[2:]
	}
	if s == "" {
		return Int{}, fmt.Errorf("%w: %q", ErrSyntax, orig)
	}
	var limbs []uint32
	for i := 0; i < len(s); i++ {
		c := s[i]
		var d uint32
		switch {
		case c >= '0' && c <= '9':
			d = uint32(c - '0')
		case base == 16 && c >= 'a' && c <= 'f':
			d = uint32(c-'a') + 10
		case base == 16 && c >= 'A' && c <= 'F':
			d = uint32(c-'A') + 10
		case c == '_':
			continue
		default:
			return Int{}, fmt.Errorf("%w: %q", ErrSyntax, orig)
		}
		limbs = mulAddSmall(limbs, base, d)
	}
	return normalize(negative, limbs), nil
}

// mulAddSmall computes limbs*m + a in place where possible.
func mulAddSmall(limbs []uint32, m, a uint32) []uint32 {
	carry := uint64(a)
	for i, limb := range limbs {
		t := uint64(limb)*uint64(m) + carry
		limbs[i] = uint32(t)
		carry = t >> 32
	}
	if carry != 0 {
		limbs = append(limbs, uint32(carry))
	}
	return limbs
}
