// Package rebalance turns a price history and a position's current range
// into a rolling volatility estimate, an impermanent-loss estimate, an
// optimal-boundary proposal, and a go/no-go decision. It never mutates a
// pool directly: a host sequences the actual close-old/open-new operations
// against the returned Proposal.
package rebalance

import (
	"math"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/CoinSummer/clamm-core/clamerr"
	"github.com/CoinSummer/clamm-core/q64"
	"github.com/CoinSummer/clamm-core/tickmath"
)

// Default tuning constants, matching the reference rebalance engine's
// configuration defaults (min IL threshold 1%, 24h cooldown, benefit must
// exceed cost by at least 2x).
const (
	DefaultILThreshold       = -0.01
	DefaultCooldownSeconds   = 86400
	DefaultMinBenefitCostRatio = 2.0
	daysPerYear              = 365.0
)

// PriceSample is one point of a pool's recorded price history, used to
// estimate volatility.
type PriceSample struct {
	Timestamp uint32
	SqrtPrice q64.Q64
}

// PositionSnapshot is the subset of a position's and its pool's state that
// a rebalance decision needs.
type PositionSnapshot struct {
	Lower                  tickmath.Tick
	Upper                  tickmath.Tick
	TickSpacing            uint16
	EntrySqrtPrice         q64.Q64
	CurrentSqrtPrice       q64.Q64
	Now                    uint32
	LastRebalanceTimestamp uint32
	ValueUSD               decimal.Decimal
	RebalanceCostUSD       decimal.Decimal
}

// Proposal is the outcome of Propose: a recommended new range, the IL
// estimate that motivated it, and the enriched IL report.
type Proposal struct {
	NewLower   tickmath.Tick
	NewUpper   tickmath.Tick
	ILEstimate decimal.Decimal
	Report     ILReport
	Volatility decimal.Decimal
}

// sqrtToFloat converts a Q64.64 sqrt-price to a float64, acceptable here
// because rebalance decisions are host-facing judgment calls, never the
// bit-exact swap/accounting path.
func sqrtToFloat(p q64.Q64) float64 {
	raw := p.Raw().ToBig()
	f := new(big.Float).SetInt(raw)
	scale := new(big.Float).SetFloat64(18446744073709551616.0) // 2^64
	f.Quo(f, scale)
	out, _ := f.Float64()
	return out
}

func logReturn(prev, cur q64.Q64) float64 {
	// price = sqrt_price^2, so ln(price_cur/price_prev) = 2*ln(sqrtCur/sqrtPrev).
	return 2 * math.Log(sqrtToFloat(cur)/sqrtToFloat(prev))
}

// VolatilityEstimator produces an annualized volatility estimate from a
// price history over a trailing window.
type VolatilityEstimator interface {
	Estimate(samples []PriceSample, window int) (decimal.Decimal, error)
}

// RollingStdev is the default volatility estimator: sample standard
// deviation of log-returns over the trailing window, annualized by
// sqrt(days_per_year).
type RollingStdev struct{}

// Volatility computes the rolling-stdev annualized volatility of samples
// over the trailing window. Requires at least window+1 samples.
func Volatility(samples []PriceSample, window int) (decimal.Decimal, error) {
	return RollingStdev{}.Estimate(samples, window)
}

func (RollingStdev) Estimate(samples []PriceSample, window int) (decimal.Decimal, error) {
	if window < 1 || len(samples) < window+1 {
		return decimal.Decimal{}, clamerr.Wrap(clamerr.OutOfRange, "volatility requires at least window+1 samples")
	}
	start := len(samples) - window - 1
	returns := make([]float64, 0, window)
	for i := start + 1; i < len(samples); i++ {
		returns = append(returns, logReturn(samples[i-1].SqrtPrice, samples[i].SqrtPrice))
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	if len(returns) > 1 {
		variance /= float64(len(returns) - 1)
	}

	stdev := math.Sqrt(variance) * math.Sqrt(daysPerYear)
	return decimal.NewFromFloat(stdev), nil
}

// GARCH11 is an alternative estimator implementing a GARCH(1,1) conditional
// variance recursion with fixed (not MLE-fitted) parameters: h_t = omega +
// alpha*r_t^2 + beta*h_{t-1}, seeded from the mean squared log-return of the
// window.
// An addition alongside RollingStdev, not a replacement -- anything
// accepting a VolatilityEstimator can use either.
type GARCH11 struct {
	Alpha float64
	Beta  float64
	Omega float64
}

// DefaultGARCH11 mirrors the reference model's default persistence/
// responsiveness split (alpha=0.1, beta=0.85, omega=1e-6).
func DefaultGARCH11() GARCH11 {
	return GARCH11{Alpha: 0.1, Beta: 0.85, Omega: 0.000001}
}

func (g GARCH11) Estimate(samples []PriceSample, window int) (decimal.Decimal, error) {
	if window < 1 || len(samples) < window+1 {
		return decimal.Decimal{}, clamerr.Wrap(clamerr.OutOfRange, "volatility requires at least window+1 samples")
	}
	start := len(samples) - window - 1
	returns := make([]float64, 0, window)
	for i := start + 1; i < len(samples); i++ {
		returns = append(returns, logReturn(samples[i-1].SqrtPrice, samples[i].SqrtPrice))
	}

	unconditional := 0.0
	for _, r := range returns {
		unconditional += r * r
	}
	unconditional /= float64(len(returns))

	h := unconditional
	for _, r := range returns {
		h = g.Omega + g.Alpha*r*r + g.Beta*h
	}
	return decimal.NewFromFloat(math.Sqrt(h) * math.Sqrt(daysPerYear)), nil
}

// ILPercentage returns the signed impermanent-loss percentage of a
// concentrated position versus holding the two tokens (HODL), evaluated at
// the position's current range and price. IL = 2*sqrt(k)/(1+k) - 1, where k
// is the price-change ratio from entry to now, clamped to the position's
// own boundaries once price has moved past them (a concentrated position
// stops rebalancing its composition beyond its edges). Zero at k=1
// (no price movement); negative for any other k, since an LP position
// weakly underperforms HODL absent fee income.
func ILPercentage(lower, upper tickmath.Tick, sqrtEntry, sqrtNow q64.Q64) (decimal.Decimal, error) {
	if lower >= upper {
		return decimal.Decimal{}, clamerr.Wrap(clamerr.InvalidPriceRange, "lower must be < upper")
	}
	lowerSqrt, err := tickmath.ToSqrtPrice(lower)
	if err != nil {
		return decimal.Decimal{}, err
	}
	upperSqrt, err := tickmath.ToSqrtPrice(upper)
	if err != nil {
		return decimal.Decimal{}, err
	}

	priceEntry := sqrtToFloat(sqrtEntry) * sqrtToFloat(sqrtEntry)
	priceNow := sqrtToFloat(sqrtNow) * sqrtToFloat(sqrtNow)
	priceLower := sqrtToFloat(lowerSqrt) * sqrtToFloat(lowerSqrt)
	priceUpper := sqrtToFloat(upperSqrt) * sqrtToFloat(upperSqrt)

	effectiveNow := priceNow
	if effectiveNow < priceLower {
		effectiveNow = priceLower
	} else if effectiveNow > priceUpper {
		effectiveNow = priceUpper
	}

	k := effectiveNow / priceEntry
	il := 2*math.Sqrt(k)/(1+k) - 1
	return decimal.NewFromFloat(il), nil
}

// ILReport is the enriched impermanent-loss readout: the raw percentage
// plus a breakeven-fee-days estimate and a one-standard-deviation
// confidence band derived from the volatility estimate.
type ILReport struct {
	Percentage         decimal.Decimal
	BreakevenFeeDays    decimal.Decimal
	ConfidenceBandLow   decimal.Decimal
	ConfidenceBandHigh  decimal.Decimal
}

// ComputeILReport builds an ILReport from an IL percentage, an annualized
// volatility, and the pool's daily fee yield (as a fraction, e.g. 0.001 for
// 10bps/day of volume-weighted fee income).
func ComputeILReport(il decimal.Decimal, volatility decimal.Decimal, dailyFeeYield decimal.Decimal) ILReport {
	abs := il.Abs()
	var breakeven decimal.Decimal
	if dailyFeeYield.IsPositive() {
		breakeven = abs.Div(dailyFeeYield)
	} else {
		breakeven = decimal.Zero
	}

	dailyVol := volatility.Div(decimal.NewFromFloat(math.Sqrt(daysPerYear)))
	return ILReport{
		Percentage:        il,
		BreakevenFeeDays:  breakeven,
		ConfidenceBandLow: il.Sub(dailyVol),
		ConfidenceBandHigh: il.Add(dailyVol),
	}
}

// ProposeBoundaries centers a new range on the current tick with a
// half-width scaled by volatility: higher volatility widens the range to
// reduce how often price exits it, trading fee density for rebalance
// frequency. The result is aligned to tick spacing.
func ProposeBoundaries(pos PositionSnapshot, volatility decimal.Decimal) (lower, upper tickmath.Tick, err error) {
	currentTick, err := tickmath.ToTick(pos.CurrentSqrtPrice)
	if err != nil {
		return 0, 0, err
	}

	volFloat, _ := volatility.Float64()
	// Half-width in ticks ~ volatility (annualized stdev of log-return) is
	// itself already in log-price units; one tick is ln(1.0001) in
	// log-price, so half_width_ticks = volatility / ln(1.0001), scaled down
	// from an annual figure to a "typical excursion" figure by the same
	// sqrt(days_per_year) factor volatility was annualized by.
	perPeriodVol := volFloat / math.Sqrt(daysPerYear)
	halfWidthTicks := int32(perPeriodVol / math.Log(1.0001))
	if halfWidthTicks < int32(pos.TickSpacing) {
		halfWidthTicks = int32(pos.TickSpacing)
	}

	lower = alignDown(currentTick-tickmath.Tick(halfWidthTicks), pos.TickSpacing)
	upper = alignUp(currentTick+tickmath.Tick(halfWidthTicks), pos.TickSpacing)
	if lower >= upper {
		upper = lower + tickmath.Tick(pos.TickSpacing)
	}
	return lower, upper, nil
}

func alignDown(t tickmath.Tick, spacing uint16) tickmath.Tick {
	s := int32(spacing)
	c := int32(t)
	if c%s != 0 && c < 0 {
		c -= s
	}
	return tickmath.Tick((c / s) * s)
}

func alignUp(t tickmath.Tick, spacing uint16) tickmath.Tick {
	s := int32(spacing)
	c := int32(t)
	if c%s != 0 && c > 0 {
		c += s
	}
	return tickmath.Tick((c / s) * s)
}

// CooldownActive reports whether pos is still within its post-rebalance
// cooldown window.
func CooldownActive(pos PositionSnapshot, cooldownSeconds uint32) bool {
	if pos.Now < pos.LastRebalanceTimestamp {
		return true
	}
	return pos.Now-pos.LastRebalanceTimestamp < cooldownSeconds
}

// BenefitExceedsCost reports whether the estimated USD benefit of
// rebalancing (the IL percentage improvement applied to position value)
// clears minRatio times the rebalance's USD cost.
func BenefitExceedsCost(ilReduction decimal.Decimal, pos PositionSnapshot, minRatio decimal.Decimal) bool {
	if pos.RebalanceCostUSD.IsZero() || !pos.RebalanceCostUSD.IsPositive() {
		return ilReduction.IsPositive()
	}
	benefit := ilReduction.Mul(pos.ValueUSD)
	required := pos.RebalanceCostUSD.Mul(minRatio)
	return benefit.Cmp(required) >= 0
}

// ShouldRebalance is the single go/no-go predicate: the range must
// actually change, the current IL must be worse than threshold, the
// benefit must clear the cost gate, and the position must be outside its
// cooldown window.
func ShouldRebalance(pos PositionSnapshot, newLower, newUpper tickmath.Tick, il decimal.Decimal, ilReduction decimal.Decimal) (bool, error) {
	if CooldownActive(pos, DefaultCooldownSeconds) {
		return false, clamerr.Wrap(clamerr.Cooldown, "position is within its post-rebalance cooldown window")
	}
	if newLower == pos.Lower && newUpper == pos.Upper {
		return false, clamerr.Wrap(clamerr.NoRebalanceBeneficial, "proposed range is unchanged from the current range")
	}
	threshold := decimal.NewFromFloat(DefaultILThreshold)
	if il.Cmp(threshold) >= 0 {
		return false, clamerr.Wrap(clamerr.NoRebalanceBeneficial, "current impermanent loss has not crossed the rebalance threshold")
	}
	if !BenefitExceedsCost(ilReduction, pos, decimal.NewFromFloat(DefaultMinBenefitCostRatio)) {
		return false, clamerr.Wrap(clamerr.NoRebalanceBeneficial, "estimated benefit does not clear the cost gate")
	}
	return true, nil
}

// Propose is the top-level entry point: estimate volatility from samples,
// estimate the current position's IL, propose a new range, and gate the
// decision through ShouldRebalance. Returns a populated Proposal only when
// a rebalance is actually warranted; otherwise returns one of
// clamerr.Cooldown or clamerr.NoRebalanceBeneficial.
func Propose(pos PositionSnapshot, samples []PriceSample) (*Proposal, error) {
	window := len(samples) - 1
	if window > 30 {
		window = 30
	}
	if window < 1 {
		return nil, clamerr.Wrap(clamerr.OutOfRange, "at least two price samples are required")
	}

	vol, err := Volatility(samples, window)
	if err != nil {
		return nil, err
	}

	il, err := ILPercentage(pos.Lower, pos.Upper, pos.EntrySqrtPrice, pos.CurrentSqrtPrice)
	if err != nil {
		return nil, err
	}

	newLower, newUpper, err := ProposeBoundaries(pos, vol)
	if err != nil {
		return nil, err
	}

	ilAtProposed, err := ILPercentage(newLower, newUpper, pos.CurrentSqrtPrice, pos.CurrentSqrtPrice)
	if err != nil {
		return nil, err
	}
	ilReduction := ilAtProposed.Sub(il) // re-centered range starts at k=1 (IL=0), so this is >= 0 whenever il < 0

	ok, err := ShouldRebalance(pos, newLower, newUpper, il, ilReduction)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, clamerr.Wrap(clamerr.NoRebalanceBeneficial, "rebalance not warranted")
	}

	report := ComputeILReport(il, vol, decimal.Zero)
	return &Proposal{
		NewLower:   newLower,
		NewUpper:   newUpper,
		ILEstimate: il,
		Report:     report,
		Volatility: vol,
	}, nil
}
