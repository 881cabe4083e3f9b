package q64

import (
	"math/rand"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromIntRoundTrip(t *testing.T) {
	q := FromInt(3)
	one := One()
	three, err := one.Add(one)
	require.NoError(t, err)
	three, err = three.Add(one)
	require.NoError(t, err)
	assert.True(t, q.Equal(three))
}

func TestAddOverflow(t *testing.T) {
	max := Q64{}
	max.v = *uint256.NewInt(0)
	max.v.Not(&max.v) // all-ones 256 bits, guaranteed > 128 bits, not a valid Q64 but exercises the overflow path
	_, err := max.Add(One())
	require.Error(t, err)
}

func TestSubUnderflowErrors(t *testing.T) {
	_, err := Zero().Sub(One())
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestDivByZero(t *testing.T) {
	_, err := One().Div(Zero())
	assert.ErrorIs(t, err, ErrDivByZero)
}

func TestMulIdentity(t *testing.T) {
	five := FromInt(5)
	got, err := five.Mul(One())
	require.NoError(t, err)
	assert.True(t, got.Equal(five))
}

func TestMulDivBasic(t *testing.T) {
	a := uint256.NewInt(100)
	b := uint256.NewInt(3)
	c := uint256.NewInt(10)
	got, err := MulDiv(a, b, c)
	require.NoError(t, err)
	assert.Equal(t, uint64(30), got.Uint64())
}

func TestMulDivCeilRoundsUp(t *testing.T) {
	a := uint256.NewInt(100)
	b := uint256.NewInt(1)
	c := uint256.NewInt(3)
	floor, err := MulDiv(a, b, c)
	require.NoError(t, err)
	ceil, err := MulDivCeil(a, b, c)
	require.NoError(t, err)
	assert.Equal(t, uint64(33), floor.Uint64())
	assert.Equal(t, uint64(34), ceil.Uint64())
}

func TestMulDivExactNoCeilBump(t *testing.T) {
	a := uint256.NewInt(9)
	b := uint256.NewInt(9)
	c := uint256.NewInt(3)
	ceil, err := MulDivCeil(a, b, c)
	require.NoError(t, err)
	assert.Equal(t, uint64(27), ceil.Uint64())
}

func TestMulDivByZeroErrors(t *testing.T) {
	a := uint256.NewInt(1)
	_, err := MulDiv(a, a, uint256.NewInt(0))
	assert.ErrorIs(t, err, ErrDivByZero)
}

// TestSqrtSelfInverse is property S3 from spec.md §8: |sqrt(x)^2 - x|/x <= 2^-30.
func TestSqrtSelfInverse(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 2000; i++ {
		hi := rng.Uint64() >> 1 // keep well under 2^64 so x*2^64 fits the backing Q64 range headroom
		x := FromInt(hi + 1)
		y, err := Sqrt(x)
		require.NoError(t, err)
		ySq, err := y.Mul(y)
		require.NoError(t, err)

		diff, err := absDiff(ySq, x)
		require.NoError(t, err)
		// relative error bound: diff * 2^30 <= x
		bound, err := x.Div(FromInt(1 << 30))
		require.NoError(t, err)
		assert.True(t, !diff.GreaterThan(bound) || diff.IsZero(),
			"sqrt(%v)^2 = %v deviates from %v by more than 2^-30", x, ySq, x)
	}
}

func absDiff(a, b Q64) (Q64, error) {
	if a.GreaterThan(b) {
		return a.Sub(b)
	}
	return b.Sub(a)
}

func TestSqrtZero(t *testing.T) {
	y, err := Sqrt(Zero())
	require.NoError(t, err)
	assert.True(t, y.IsZero())
}

func TestClamp(t *testing.T) {
	lo := FromInt(1)
	hi := FromInt(10)
	assert.True(t, Clamp(FromInt(0), lo, hi).Equal(lo))
	assert.True(t, Clamp(FromInt(100), lo, hi).Equal(hi))
	assert.True(t, Clamp(FromInt(5), lo, hi).Equal(FromInt(5)))
}
