// Package q64 implements the Q64.64 fixed-point numeric type that backs
// every price, sqrt-price, and fee-growth accumulator in the engine
// (spec.md §4.1). The stored integer for a value x is floor(x * 2^64);
// values are always non-negative. Overflow above 128 bits is a checked
// error, never a silent wraparound -- determinism and fail-closed arithmetic
// matter more here than raw speed.
//
// The 256-bit intermediate that mul_div needs is provided by
// github.com/holiman/uint256, the fixed-width unsigned integer type used
// throughout go-ethereum's EVM interpreter; a 128-bit x 128-bit product
// always fits exactly in its 256-bit backing array, so the multiply itself
// never overflows and only the final shift-down/divide needs a range check.
package q64

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

const FracBits = 64

var (
	ErrOverflow  = errors.New("q64: overflow")
	ErrDivByZero = errors.New("q64: division by zero")
)

// Q64 is an unsigned Q64.64 fixed-point value.
type Q64 struct {
	v uint256.Int
}

// Zero returns the additive identity.
func Zero() Q64 { return Q64{} }

// One returns 1.0 in Q64.64.
func One() Q64 {
	var q Q64
	q.v.SetOne()
	q.v.Lsh(&q.v, FracBits)
	return q
}

// FromInt lifts an integer into Q64.64. Always exact: n <= 2^64-1 so
// n << 64 never exceeds 128 bits.
func FromInt(n uint64) Q64 {
	var q Q64
	q.v.SetUint64(n)
	q.v.Lsh(&q.v, FracBits)
	return q
}

// FromBigInt lifts a non-negative integer (up to 64 bits of integer part,
// i.e. fitting in u64-scaled Q64.64) into Q64.64, for treating plain
// integers like liquidity or token amounts as real numbers in formulas that
// otherwise operate on Q64.64 sqrt-prices. Errors if n is negative or if
// n << 64 would not fit in 128 bits.
func FromBigInt(n *big.Int) (Q64, error) {
	if n.Sign() < 0 {
		return Q64{}, ErrOverflow
	}
	v, overflow := uint256.FromBig(n)
	if overflow {
		return Q64{}, ErrOverflow
	}
	v.Lsh(v, FracBits)
	if !fits128(v) {
		return Q64{}, ErrOverflow
	}
	return Q64{v: *v}, nil
}

// FromRaw wraps a raw 128-bit integer (the stored representation, i.e.
// floor(x*2^64) already computed by the caller) as a Q64.64 value.
func FromRaw(raw *uint256.Int) (Q64, error) {
	if raw == nil || !fits128(raw) {
		return Q64{}, ErrOverflow
	}
	var q Q64
	q.v.Set(raw)
	return q, nil
}

// Raw returns the stored 128-bit integer representation.
func (a Q64) Raw() *uint256.Int {
	v := a.v
	return &v
}

func fits128(x *uint256.Int) bool {
	return x[2] == 0 && x[3] == 0
}

// IsZero reports whether a is exactly zero.
func (a Q64) IsZero() bool { return a.v.IsZero() }

// Cmp returns -1, 0, or 1 as a is less than, equal to, or greater than b.
func (a Q64) Cmp(b Q64) int { return a.v.Cmp(&b.v) }

func (a Q64) LessThan(b Q64) bool    { return a.v.Lt(&b.v) }
func (a Q64) GreaterThan(b Q64) bool { return a.v.Gt(&b.v) }
func (a Q64) Equal(b Q64) bool       { return a.v.Eq(&b.v) }

// Add returns a+b, erroring if the sum would exceed 128 bits.
func (a Q64) Add(b Q64) (Q64, error) {
	var sum uint256.Int
	_, overflow := sum.AddOverflow(&a.v, &b.v)
	if overflow || !fits128(&sum) {
		return Q64{}, ErrOverflow
	}
	return Q64{v: sum}, nil
}

// Sub returns a-b, erroring (never wrapping) if b > a.
func (a Q64) Sub(b Q64) (Q64, error) {
	if a.v.Lt(&b.v) {
		return Q64{}, ErrOverflow
	}
	var diff uint256.Int
	diff.Sub(&a.v, &b.v)
	return Q64{v: diff}, nil
}

// Mul returns a*b using a 256-bit intermediate: (a*b) >> 64. Errors if the
// result does not fit back in 128 bits.
func (a Q64) Mul(b Q64) (Q64, error) {
	var prod uint256.Int
	prod.Mul(&a.v, &b.v) // a, b <= 2^128-1 each, product always fits in 256 bits
	prod.Rsh(&prod, FracBits)
	if !fits128(&prod) {
		return Q64{}, ErrOverflow
	}
	return Q64{v: prod}, nil
}

// Div returns a/b using a 256-bit intermediate: (a << 64) / b. Errors on a
// zero divisor or on a result that does not fit back in 128 bits.
func (a Q64) Div(b Q64) (Q64, error) {
	if b.v.IsZero() {
		return Q64{}, ErrDivByZero
	}
	var num uint256.Int
	num.Lsh(&a.v, FracBits) // a <= 2^128-1, so a<<64 <= 2^192-1, fits in 256 bits
	var out uint256.Int
	out.Div(&num, &b.v)
	if !fits128(&out) {
		return Q64{}, ErrOverflow
	}
	return Q64{v: out}, nil
}

// WrappingAdd returns a+b mod 2^128. Fee-growth accumulators (spec.md §4.5)
// only ever need the delta since a snapshot, which is always representable
// in 128 bits because cumulative growth never retrogrades; wraparound here
// is intentional and distinct from Add's checked overflow.
func (a Q64) WrappingAdd(b Q64) Q64 {
	var sum uint256.Int
	sum.Add(&a.v, &b.v)
	sum.And(&sum, mask128())
	return Q64{v: sum}
}

// WrappingSub returns a-b mod 2^128, the companion to WrappingAdd.
func (a Q64) WrappingSub(b Q64) Q64 {
	var diff uint256.Int
	diff.Sub(&a.v, &b.v)
	diff.And(&diff, mask128())
	return Q64{v: diff}
}

func mask128() *uint256.Int {
	allOnes := new(uint256.Int)
	allOnes.Not(allOnes) // 0 -> all 256 bits set
	var shifted uint256.Int
	shifted.Lsh(allOnes, 128) // upper 128 bits set, lower 128 bits clear
	m := new(uint256.Int)
	m.Not(&shifted) // upper 128 bits clear, lower 128 bits set
	return m
}

// Clamp returns x clamped into [lo, hi].
func Clamp(x, lo, hi Q64) Q64 {
	if x.LessThan(lo) {
		return lo
	}
	if x.GreaterThan(hi) {
		return hi
	}
	return x
}

// MulDiv computes floor(a*b/c) for arbitrary full-128-bit operands, using a
// 256-bit intermediate product so that a and b may come from disparate
// scales (spec.md §4.1: "the only operations allowed to combine
// disparate-scale quantities").
func MulDiv(a, b, c *uint256.Int) (*uint256.Int, error) {
	if c == nil || c.IsZero() {
		return nil, ErrDivByZero
	}
	if !fits128(a) || !fits128(b) || !fits128(c) {
		return nil, ErrOverflow
	}
	var prod uint256.Int
	prod.Mul(a, b)
	q := new(uint256.Int)
	q.Div(&prod, c)
	if !fits128(q) {
		return nil, ErrOverflow
	}
	return q, nil
}

// MulDivCeil computes ceil(a*b/c).
func MulDivCeil(a, b, c *uint256.Int) (*uint256.Int, error) {
	if c == nil || c.IsZero() {
		return nil, ErrDivByZero
	}
	if !fits128(a) || !fits128(b) || !fits128(c) {
		return nil, ErrOverflow
	}
	var prod uint256.Int
	prod.Mul(a, b)
	q := new(uint256.Int)
	q.Div(&prod, c)
	var r uint256.Int
	r.Mod(&prod, c)
	if !r.IsZero() {
		one := uint256.NewInt(1)
		q.Add(q, one)
	}
	if !fits128(q) {
		return nil, ErrOverflow
	}
	return q, nil
}

// newtonIterations is fixed so every platform produces identical bits; no
// while-until-converged loop ever runs in this package (spec.md §4.1/§5).
const newtonIterations = 12

// nibbleSqrtQ32 seeds the top nibble of a normalized mantissa (value in
// [1,2), represented as 16+k over 16 for k=0..15) with floor(sqrt(m)*2^32),
// precomputed offline to 50 decimal digits of precision.
var nibbleSqrtQ32 = [16]uint64{
	0x100000000, 0x107e0f66a, 0x10f876ccd, 0x116f83346,
	0x11e3779b9, 0x12548eb91, 0x12c2fc595, 0x132eee757,
	0x13988e140, 0x140000000, 0x1465655f1, 0x14c8dc2e4,
	0x152a7fa9d, 0x158a68a4a, 0x15e8add23, 0x164564056,
}

// Sqrt computes the Q64.64 square root of x: a value y (also Q64.64) with
// y^2 approximately equal to x*2^64, relative error bounded by 2^-30. Seeded
// from the 16-entry nibble table above, refined by a fixed count of Newton
// iterations (spec.md §4.1): y <- (y + floor(target/y)) >> 1.
func Sqrt(x Q64) (Q64, error) {
	if x.v.IsZero() {
		return Q64{}, nil
	}
	var target uint256.Int
	target.Lsh(&x.v, FracBits) // x <= 2^128-1, so target <= 2^192-1, fits in 256 bits
	y := seed(&target)
	for i := 0; i < newtonIterations; i++ {
		var div uint256.Int
		div.Div(&target, y)
		var sum uint256.Int
		sum.Add(y, &div)
		sum.Rsh(&sum, 1)
		if sum.IsZero() {
			sum.SetOne()
		}
		y = &sum
	}
	if !fits128(y) {
		return Q64{}, ErrOverflow
	}
	return Q64{v: *y}, nil
}

func seed(target *uint256.Int) *uint256.Int {
	bitlen := target.BitLen()
	if bitlen == 0 {
		return new(uint256.Int)
	}
	var nibble uint64
	if bitlen >= 5 {
		var window uint256.Int
		window.Rsh(target, uint(bitlen-5))
		nibble = window.Uint64() - 16
	}
	base := nibbleSqrtQ32[nibble] // ~ sqrt(mantissa in [1,2)) * 2^32
	halfExp := (bitlen - 1) / 2
	y := new(uint256.Int).SetUint64(base)
	if halfExp >= 32 {
		y.Lsh(y, uint(halfExp-32))
	} else {
		y.Rsh(y, uint(32-halfExp))
	}
	if y.IsZero() {
		y.SetOne()
	}
	return y
}
