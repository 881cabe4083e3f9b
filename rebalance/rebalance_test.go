package rebalance

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CoinSummer/clamm-core/clamerr"
	"github.com/CoinSummer/clamm-core/q64"
	"github.com/CoinSummer/clamm-core/tickmath"
)

func sqrtAtTick(t *testing.T, tick int32) q64.Q64 {
	t.Helper()
	p, err := tickmath.ToSqrtPrice(tickmath.Tick(tick))
	require.NoError(t, err)
	return p
}

// wanderingSamples builds a price history that drifts across a range of
// ticks so log-returns are non-zero but bounded, suitable for exercising
// both volatility estimators.
func wanderingSamples(t *testing.T) []PriceSample {
	t.Helper()
	ticks := []int32{0, 20, 10, 40, 30, 60, 45, 70, 55, 80}
	samples := make([]PriceSample, len(ticks))
	for i, tick := range ticks {
		samples[i] = PriceSample{Timestamp: uint32(i * 3600), SqrtPrice: sqrtAtTick(t, tick)}
	}
	return samples
}

func TestVolatilityRequiresEnoughSamples(t *testing.T) {
	_, err := Volatility(wanderingSamples(t)[:2], 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, clamerr.OutOfRange)
}

func TestVolatilityIsPositiveForMovingPrices(t *testing.T) {
	samples := wanderingSamples(t)
	vol, err := Volatility(samples, 5)
	require.NoError(t, err)
	assert.True(t, vol.IsPositive())
}

func TestGARCH11ProducesPositiveEstimate(t *testing.T) {
	samples := wanderingSamples(t)
	vol, err := DefaultGARCH11().Estimate(samples, 5)
	require.NoError(t, err)
	assert.True(t, vol.IsPositive())
}

func TestILPercentageZeroAtEntryPrice(t *testing.T) {
	entry := q64.One()
	il, err := ILPercentage(-600, 600, entry, entry)
	require.NoError(t, err)
	assert.True(t, il.Abs().LessThan(decimal.NewFromFloat(1e-9)))
}

func TestILPercentageNegativeWhenPriceMoves(t *testing.T) {
	entry := q64.One()
	now := sqrtAtTick(t, 200)
	il, err := ILPercentage(-600, 600, entry, now)
	require.NoError(t, err)
	assert.True(t, il.IsNegative())
}

func TestILPercentageClampsAtRangeBoundary(t *testing.T) {
	entry := q64.One()
	atUpper := sqrtAtTick(t, 600)
	beyondUpper := sqrtAtTick(t, 6000)

	ilAtUpper, err := ILPercentage(-600, 600, entry, atUpper)
	require.NoError(t, err)
	ilBeyond, err := ILPercentage(-600, 600, entry, beyondUpper)
	require.NoError(t, err)

	// Once price has moved past the position's own boundary, further
	// movement no longer changes the IL estimate (spec.md's "clamped to the
	// position's own price range" convention).
	assert.True(t, ilAtUpper.Sub(ilBeyond).Abs().LessThan(decimal.NewFromFloat(1e-9)))
}

func TestILPercentageRejectsInvertedRange(t *testing.T) {
	_, err := ILPercentage(600, -600, q64.One(), q64.One())
	require.Error(t, err)
	assert.ErrorIs(t, err, clamerr.InvalidPriceRange)
}

func TestComputeILReportBreakevenDays(t *testing.T) {
	il := decimal.NewFromFloat(-0.02)
	vol := decimal.NewFromFloat(0.5)
	dailyFee := decimal.NewFromFloat(0.001)

	report := ComputeILReport(il, vol, dailyFee)
	assert.True(t, report.BreakevenFeeDays.Equal(decimal.NewFromFloat(20)))
	assert.True(t, report.ConfidenceBandLow.LessThan(report.Percentage))
	assert.True(t, report.ConfidenceBandHigh.GreaterThan(report.Percentage))
}

func TestComputeILReportZeroFeeYieldGivesZeroBreakeven(t *testing.T) {
	report := ComputeILReport(decimal.NewFromFloat(-0.02), decimal.NewFromFloat(0.3), decimal.Zero)
	assert.True(t, report.BreakevenFeeDays.IsZero())
}

func TestProposeBoundariesAlignedAndOrdered(t *testing.T) {
	pos := PositionSnapshot{
		Lower:            -600,
		Upper:            600,
		TickSpacing:      60,
		CurrentSqrtPrice: q64.One(),
	}
	lower, upper, err := ProposeBoundaries(pos, decimal.NewFromFloat(0.8))
	require.NoError(t, err)
	assert.True(t, lower < upper)
	assert.Equal(t, int32(0), int32(lower)%60)
	assert.Equal(t, int32(0), int32(upper)%60)
}

func TestProposeBoundariesWidenWithVolatility(t *testing.T) {
	pos := PositionSnapshot{Lower: -600, Upper: 600, TickSpacing: 60, CurrentSqrtPrice: q64.One()}

	lowNarrow, upNarrow, err := ProposeBoundaries(pos, decimal.NewFromFloat(0.05))
	require.NoError(t, err)
	lowWide, upWide, err := ProposeBoundaries(pos, decimal.NewFromFloat(2.0))
	require.NoError(t, err)

	assert.True(t, (upWide-lowWide) >= (upNarrow-lowNarrow))
}

func TestCooldownActive(t *testing.T) {
	pos := PositionSnapshot{Now: 1000, LastRebalanceTimestamp: 500}
	assert.True(t, CooldownActive(pos, 86400))
	assert.False(t, CooldownActive(pos, 100))
}

func TestBenefitExceedsCostGate(t *testing.T) {
	pos := PositionSnapshot{
		ValueUSD:         decimal.NewFromFloat(10000),
		RebalanceCostUSD: decimal.NewFromFloat(10),
	}
	// 1% IL reduction on $10k = $100 benefit, vs $10 cost * 2.0 = $20 required: clears.
	assert.True(t, BenefitExceedsCost(decimal.NewFromFloat(0.01), pos, decimal.NewFromFloat(2.0)))
	// 0.01% IL reduction = $1 benefit, doesn't clear $20 required.
	assert.False(t, BenefitExceedsCost(decimal.NewFromFloat(0.0001), pos, decimal.NewFromFloat(2.0)))
}

func TestShouldRebalanceRejectsDuringCooldown(t *testing.T) {
	pos := PositionSnapshot{
		Lower: -600, Upper: 600,
		Now: 1000, LastRebalanceTimestamp: 999,
	}
	ok, err := ShouldRebalance(pos, -500, 500, decimal.NewFromFloat(-0.05), decimal.NewFromFloat(0.05))
	assert.False(t, ok)
	require.Error(t, err)
	assert.ErrorIs(t, err, clamerr.Cooldown)
}

func TestShouldRebalanceRejectsUnchangedRange(t *testing.T) {
	pos := PositionSnapshot{
		Lower: -600, Upper: 600,
		Now: 100000, LastRebalanceTimestamp: 0,
		ValueUSD: decimal.NewFromFloat(1000), RebalanceCostUSD: decimal.NewFromFloat(1),
	}
	ok, err := ShouldRebalance(pos, -600, 600, decimal.NewFromFloat(-0.05), decimal.NewFromFloat(0.05))
	assert.False(t, ok)
	assert.ErrorIs(t, err, clamerr.NoRebalanceBeneficial)
}

func TestShouldRebalanceApprovesWhenBeneficial(t *testing.T) {
	pos := PositionSnapshot{
		Lower: -600, Upper: 600,
		Now: 1_000_000, LastRebalanceTimestamp: 0,
		ValueUSD: decimal.NewFromFloat(100000), RebalanceCostUSD: decimal.NewFromFloat(10),
	}
	ok, err := ShouldRebalance(pos, -500, 500, decimal.NewFromFloat(-0.05), decimal.NewFromFloat(0.05))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestProposeEndToEndApproval(t *testing.T) {
	samples := wanderingSamples(t)
	pos := PositionSnapshot{
		Lower:                  -60,
		Upper:                  60,
		TickSpacing:            60,
		EntrySqrtPrice:         q64.One(),
		CurrentSqrtPrice:       sqrtAtTick(t, 800),
		Now:                    1_000_000,
		LastRebalanceTimestamp: 0,
		ValueUSD:               decimal.NewFromFloat(100000),
		RebalanceCostUSD:       decimal.NewFromFloat(5),
	}

	proposal, err := Propose(pos, samples)
	require.NoError(t, err)
	require.NotNil(t, proposal)
	assert.True(t, proposal.NewLower < proposal.NewUpper)
	assert.True(t, proposal.ILEstimate.IsNegative())
	assert.True(t, proposal.Volatility.IsPositive())
}

func TestProposeRejectsDuringCooldown(t *testing.T) {
	samples := wanderingSamples(t)
	pos := PositionSnapshot{
		Lower:                  -60,
		Upper:                  60,
		TickSpacing:            60,
		EntrySqrtPrice:         q64.One(),
		CurrentSqrtPrice:       sqrtAtTick(t, 800),
		Now:                    100,
		LastRebalanceTimestamp: 99,
		ValueUSD:               decimal.NewFromFloat(100000),
		RebalanceCostUSD:       decimal.NewFromFloat(5),
	}

	proposal, err := Propose(pos, samples)
	require.Error(t, err)
	assert.Nil(t, proposal)
	assert.ErrorIs(t, err, clamerr.Cooldown)
}

func TestProposeRequiresAtLeastTwoSamples(t *testing.T) {
	pos := PositionSnapshot{Lower: -60, Upper: 60, TickSpacing: 60, EntrySqrtPrice: q64.One(), CurrentSqrtPrice: q64.One()}
	_, err := Propose(pos, []PriceSample{{Timestamp: 0, SqrtPrice: q64.One()}})
	require.Error(t, err)
	assert.ErrorIs(t, err, clamerr.OutOfRange)
}
