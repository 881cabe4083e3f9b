package report

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CoinSummer/clamm-core/pool"
	"github.com/CoinSummer/clamm-core/q64"
	"github.com/CoinSummer/clamm-core/rebalance"
	"github.com/CoinSummer/clamm-core/tickmath"
)

func TestQ64ToDecimalOne(t *testing.T) {
	d := Q64ToDecimal(q64.One(), 8)
	assert.True(t, d.Equal(decimal.NewFromInt(1)))
}

func TestPriceAtOneIsOne(t *testing.T) {
	p := Price(q64.One(), 8)
	assert.True(t, p.Equal(decimal.NewFromInt(1)))
}

func TestSummarizePoolRendersCurrentState(t *testing.T) {
	tokenA := common.HexToAddress("0x00000000000000000000000000000000000c1")
	tokenB := common.HexToAddress("0x00000000000000000000000000000000000c2")
	owner := common.HexToAddress("0x0000000000000000000000000000000000001")

	p, err := pool.NewPool(tokenA, tokenB, 30, 60, q64.One())
	require.NoError(t, err)
	_, err = p.ModifyLiquidity(owner, -600, 600, new(big.Int).Lsh(big.NewInt(1000), 64))
	require.NoError(t, err)

	summary := Summarize(p)
	assert.Equal(t, uint16(30), summary.FeeTierBps)
	assert.True(t, summary.Price.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, int32(0), summary.CurrentTick)
	assert.NotEmpty(t, summary.String())
}

func TestSummarizeSwapScalesByDecimals(t *testing.T) {
	result := pool.SwapResult{
		AmountIn:       big.NewInt(1_000_000),
		AmountOut:      big.NewInt(990_000),
		FeeAmount:      big.NewInt(3_000),
		SqrtPriceAfter: q64.One(),
	}
	summary := SummarizeSwap(result, 6, 6)
	assert.True(t, summary.AmountIn.Equal(decimal.NewFromFloat(1.0)))
	assert.True(t, summary.AmountOut.Equal(decimal.NewFromFloat(0.99)))
	assert.True(t, summary.FeePaid.Equal(decimal.NewFromFloat(0.003)))
}

func TestSummarizeProposalRendersTicksAndPercentages(t *testing.T) {
	proposal := &rebalance.Proposal{
		NewLower:   tickmath.Tick(-120),
		NewUpper:   tickmath.Tick(120),
		ILEstimate: decimal.NewFromFloat(-0.015),
		Report:     rebalance.ILReport{BreakevenFeeDays: decimal.NewFromFloat(12.3456)},
		Volatility: decimal.NewFromFloat(0.35),
	}
	summary := SummarizeProposal(proposal)
	assert.Equal(t, int32(-120), summary.NewLower)
	assert.Equal(t, int32(120), summary.NewUpper)
	assert.True(t, summary.ILPercent.Equal(decimal.NewFromFloat(-1.5)))
	assert.True(t, summary.Volatility.Equal(decimal.NewFromFloat(35)))
	assert.NotEmpty(t, summary.String())
}
