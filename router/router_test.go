package router

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CoinSummer/clamm-core/clamerr"
	"github.com/CoinSummer/clamm-core/pool"
	"github.com/CoinSummer/clamm-core/q64"
	"github.com/CoinSummer/clamm-core/tickmath"
)

var (
	tokA   = common.HexToAddress("0x000000000000000000000000000000000000a1")
	tokB   = common.HexToAddress("0x000000000000000000000000000000000000a2")
	tokC   = common.HexToAddress("0x000000000000000000000000000000000000a3")
	tokD   = common.HexToAddress("0x000000000000000000000000000000000000a4")
	routerOwner = common.HexToAddress("0x0000000000000000000000000000000000001")
)

func liquidityUnits(n int64) *big.Int {
	l := big.NewInt(n)
	return new(big.Int).Lsh(l, 64)
}

// newLinkedPool builds a single pool at price 1.0 with deep, evenly
// distributed liquidity so a swap of amount_in=1000 moves price negligibly
// and the only material effect on output is the pool's fee.
func newLinkedPool(t *testing.T, tokenA, tokenB common.Address, feeTierBps uint16) *pool.Pool {
	t.Helper()
	p, err := pool.NewPool(tokenA, tokenB, feeTierBps, 60, q64.One())
	require.NoError(t, err)
	_, err = p.ModifyLiquidity(routerOwner, -600, 600, liquidityUnits(1_000_000))
	require.NoError(t, err)
	return p
}

func newThreeHopChain(t *testing.T) (*pool.Pool, *pool.Pool, *pool.Pool) {
	t.Helper()
	poolAB := newLinkedPool(t, tokA, tokB, 30)
	poolBC := newLinkedPool(t, tokB, tokC, 30)
	poolCD := newLinkedPool(t, tokC, tokD, 30)
	return poolAB, poolBC, poolCD
}

func hopsFor(poolAB, poolBC, poolCD *pool.Pool) []Hop {
	return []Hop{
		{Pool: poolAB, ZeroForOne: true, PriceLimit: tickmath.MinSqrtPrice()},
		{Pool: poolBC, ZeroForOne: true, PriceLimit: tickmath.MinSqrtPrice()},
		{Pool: poolCD, ZeroForOne: true, PriceLimit: tickmath.MinSqrtPrice()},
	}
}

type poolScalarState struct {
	sqrtPrice        q64.Q64
	currentTick      tickmath.Tick
	liquidity        *big.Int
	feeGrowthGlobalA q64.Q64
	feeGrowthGlobalB q64.Q64
}

func captureState(p *pool.Pool) poolScalarState {
	return poolScalarState{
		sqrtPrice:        p.SqrtPrice,
		currentTick:      p.CurrentTick,
		liquidity:        new(big.Int).Set(p.Liquidity),
		feeGrowthGlobalA: p.FeeGrowthGlobalA,
		feeGrowthGlobalB: p.FeeGrowthGlobalB,
	}
}

func assertUnchanged(t *testing.T, p *pool.Pool, before poolScalarState) {
	t.Helper()
	assert.True(t, p.SqrtPrice.Equal(before.sqrtPrice))
	assert.Equal(t, before.currentTick, p.CurrentTick)
	assert.Equal(t, 0, p.Liquidity.Cmp(before.liquidity))
	assert.True(t, p.FeeGrowthGlobalA.Equal(before.feeGrowthGlobalA))
	assert.True(t, p.FeeGrowthGlobalB.Equal(before.feeGrowthGlobalB))
}

// TestScenarioS4MultiHopHappyPath reproduces spec.md §8 S4: a three-hop
// route through pools with 30bps fee each should land near
// 1000 * (1-0.003)^3 ~= 991 after fees, well above a generous floor.
func TestScenarioS4MultiHopHappyPath(t *testing.T) {
	poolAB, poolBC, poolCD := newThreeHopChain(t)
	hops := hopsFor(poolAB, poolBC, poolCD)

	amountIn := big.NewInt(1000)
	minAmountOut := big.NewInt(900)

	out, err := MultiHopSwap(hops, amountIn, minAmountOut)
	require.NoError(t, err)

	// Expect roughly 1000 * (1-0.003)^3 ~= 991, comfortably inside [900, 1000).
	assert.True(t, out.Cmp(minAmountOut) >= 0)
	assert.True(t, out.Cmp(amountIn) < 0, "output must reflect fees taken on every hop: got %s", out.String())
	assert.True(t, out.Cmp(big.NewInt(985)) >= 0, "output should be close to the no-slippage fee-only estimate: got %s", out.String())
}

// TestScenarioS5MultiHopSlippageFailure reproduces spec.md §8 S5: the same
// route with an unreachable min_amount_out must fail with SlippageExceeded
// and leave every touched pool's state byte-for-byte as it was.
func TestScenarioS5MultiHopSlippageFailure(t *testing.T) {
	poolAB, poolBC, poolCD := newThreeHopChain(t)
	hops := hopsFor(poolAB, poolBC, poolCD)

	beforeAB := captureState(poolAB)
	beforeBC := captureState(poolBC)
	beforeCD := captureState(poolCD)

	amountIn := big.NewInt(1000)
	minAmountOut := big.NewInt(995) // unreachable once fees are applied across three hops

	out, err := MultiHopSwap(hops, amountIn, minAmountOut)
	require.Error(t, err)
	assert.Nil(t, out)
	assert.ErrorIs(t, err, clamerr.SlippageExceeded)

	assertUnchanged(t, poolAB, beforeAB)
	assertUnchanged(t, poolBC, beforeBC)
	assertUnchanged(t, poolCD, beforeCD)
}

// TestMultiHopAtomicityOnMidRouteFailure covers invariant #10: if a later
// hop fails outright, earlier hops' pools must be restored even though
// their own Swap calls succeeded.
func TestMultiHopAtomicityOnMidRouteFailure(t *testing.T) {
	poolAB, poolBC, poolCD := newThreeHopChain(t)

	beforeAB := captureState(poolAB)
	beforeBC := captureState(poolBC)
	beforeCD := captureState(poolCD)

	hops := []Hop{
		{Pool: poolAB, ZeroForOne: true, PriceLimit: tickmath.MinSqrtPrice()},
		{Pool: poolBC, ZeroForOne: true, PriceLimit: tickmath.MinSqrtPrice()},
		// This hop's direction/price-limit pairing is invalid (limit on the
		// wrong side of current price for one_for_zero), so Swap on poolCD
		// always errors and the whole route must roll back.
		{Pool: poolCD, ZeroForOne: false, PriceLimit: tickmath.MinSqrtPrice()},
	}

	out, err := MultiHopSwap(hops, big.NewInt(1000), big.NewInt(1))
	require.Error(t, err)
	assert.Nil(t, out)

	assertUnchanged(t, poolAB, beforeAB)
	assertUnchanged(t, poolBC, beforeBC)
	assertUnchanged(t, poolCD, beforeCD)
}

func TestMultiHopSwapRejectsEmptyRoute(t *testing.T) {
	_, err := MultiHopSwap(nil, big.NewInt(100), big.NewInt(1))
	require.Error(t, err)
}

func TestMultiHopSwapRejectsNonPositiveAmountIn(t *testing.T) {
	poolAB, poolBC, poolCD := newThreeHopChain(t)
	hops := hopsFor(poolAB, poolBC, poolCD)
	_, err := MultiHopSwap(hops, big.NewInt(0), big.NewInt(1))
	require.Error(t, err)
}
