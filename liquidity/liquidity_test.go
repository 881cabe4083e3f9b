package liquidity

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CoinSummer/clamm-core/q64"
)

func TestAmountARejectsInvertedRange(t *testing.T) {
	_, err := AmountA(big.NewInt(100), q64.FromInt(2), q64.FromInt(1), RoundDown)
	require.Error(t, err)
}

func TestAmountBSimple(t *testing.T) {
	// p_lo=1, p_hi=2, L=10 -> amount_b = 10 * (2-1) = 10
	amt, err := AmountB(big.NewInt(10), q64.FromInt(1), q64.FromInt(2), RoundDown)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(10), amt)
}

func TestAmountASimple(t *testing.T) {
	// p_lo=1, p_hi=2, L=10 -> amount_a = 10*(2-1)/(1*2) = 5
	amt, err := AmountA(big.NewInt(10), q64.FromInt(1), q64.FromInt(2), RoundDown)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(5), amt)
}

func TestRoundingPolicyDiffers(t *testing.T) {
	// p_lo=1, p_hi=3, L=10 -> amount_a = 10*2/3 = 6.67 -> floor 6, ceil 7
	down, err := AmountA(big.NewInt(10), q64.FromInt(1), q64.FromInt(3), RoundDown)
	require.NoError(t, err)
	up, err := AmountA(big.NewInt(10), q64.FromInt(1), q64.FromInt(3), RoundUp)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(6), down)
	assert.Equal(t, big.NewInt(7), up)
}

func TestAmountsAtPriceBelowRangeIsAllA(t *testing.T) {
	a, b, err := AmountsAtPrice(big.NewInt(10), q64.FromInt(2), q64.FromInt(4), q64.FromInt(1), RoundDown)
	require.NoError(t, err)
	assert.True(t, a.Sign() > 0)
	assert.Equal(t, int64(0), b.Int64())
}

func TestAmountsAtPriceAboveRangeIsAllB(t *testing.T) {
	a, b, err := AmountsAtPrice(big.NewInt(10), q64.FromInt(2), q64.FromInt(4), q64.FromInt(5), RoundDown)
	require.NoError(t, err)
	assert.Equal(t, int64(0), a.Int64())
	assert.True(t, b.Sign() > 0)
}

func TestAmountsAtPriceInsideRangeIsBoth(t *testing.T) {
	a, b, err := AmountsAtPrice(big.NewInt(10), q64.FromInt(2), q64.FromInt(4), q64.FromInt(3), RoundDown)
	require.NoError(t, err)
	assert.True(t, a.Sign() > 0)
	assert.True(t, b.Sign() > 0)
}

func TestAmountsAtPriceBoundaryAtLowerIsAllA(t *testing.T) {
	a, b, err := AmountsAtPrice(big.NewInt(10), q64.FromInt(2), q64.FromInt(4), q64.FromInt(2), RoundDown)
	require.NoError(t, err)
	assert.True(t, a.Sign() > 0)
	assert.Equal(t, int64(0), b.Int64())
}

func TestAmountsAtPriceBoundaryAtUpperIsAllB(t *testing.T) {
	a, b, err := AmountsAtPrice(big.NewInt(10), q64.FromInt(2), q64.FromInt(4), q64.FromInt(4), RoundDown)
	require.NoError(t, err)
	assert.Equal(t, int64(0), a.Int64())
	assert.True(t, b.Sign() > 0)
}
