package pool

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"github.com/CoinSummer/clamm-core/clamconst"
	"github.com/CoinSummer/clamm-core/clamerr"
	"github.com/CoinSummer/clamm-core/liquidity"
	"github.com/CoinSummer/clamm-core/q64"
	"github.com/CoinSummer/clamm-core/tickbitmap"
	"github.com/CoinSummer/clamm-core/tickmath"
)

// maxSwapSteps bounds the per-step loop so a pathological tick layout can
// never livelock a caller; the loop's own zero-progress termination rule
// (below) is expected to fire long before this is ever reached.
const maxSwapSteps = 500

// SwapResult reports the outcome of a completed swap (spec.md §4.8).
type SwapResult struct {
	AmountIn       *big.Int
	AmountOut      *big.Int
	FeeAmount      *big.Int
	SqrtPriceAfter q64.Q64
	TickAfter      tickmath.Tick
}

type swapState struct {
	sqrtPrice  q64.Q64
	tick       tickmath.Tick
	liquidity  *big.Int
	amountIn   *big.Int
	amountOut  *big.Int
	feeTotal   *big.Int
	feeGrowthA q64.Q64
	feeGrowthB q64.Q64
}

// Swap executes a single-pool swap. amountSpecified follows the standard
// signed convention: positive means amountSpecified is the exact input,
// negative means its absolute value is the exact output (spec.md §9's
// "implemented symmetrically" decision, see DESIGN.md). sqrtPriceLimit
// bounds how far the price is allowed to move.
func (p *Pool) Swap(zeroForOne bool, amountSpecified *big.Int, sqrtPriceLimit q64.Q64) (SwapResult, error) {
	if amountSpecified.Sign() == 0 {
		return SwapResult{}, clamerr.Wrap(clamerr.OutOfRange, "amount_specified must be non-zero")
	}
	if err := validatePriceLimit(zeroForOne, p.SqrtPrice, sqrtPriceLimit); err != nil {
		return SwapResult{}, err
	}

	exactInput := amountSpecified.Sign() > 0
	remaining := new(big.Int).Abs(amountSpecified)

	state := swapState{
		sqrtPrice:  p.SqrtPrice,
		tick:       p.CurrentTick,
		liquidity:  new(big.Int).Set(p.Liquidity),
		amountIn:   new(big.Int),
		amountOut:  new(big.Int),
		feeTotal:   new(big.Int),
		feeGrowthA: p.FeeGrowthGlobalA,
		feeGrowthB: p.FeeGrowthGlobalB,
	}

	for i := 0; i < maxSwapSteps && remaining.Sign() > 0; i++ {
		if state.sqrtPrice.Equal(sqrtPriceLimit) {
			break
		}

		nextTick, hasNext := p.nextInitializedTick(state.tick, zeroForOne)
		target, targetIsLimit, err := boundedTarget(zeroForOne, state.sqrtPrice, sqrtPriceLimit, nextTick, hasNext)
		if err != nil {
			return SwapResult{}, err
		}

		step, err := computeStep(zeroForOne, exactInput, state.sqrtPrice, target, state.liquidity, remaining, p.FeeTierBps)
		if err != nil {
			return SwapResult{}, err
		}

		if step.amountIn.Sign() == 0 && step.amountOut.Sign() == 0 && step.feeAmount.Sign() == 0 && step.sqrtPriceNext.Equal(state.sqrtPrice) {
			// Livelock avoidance: a step that moves neither price nor
			// amount terminates the loop. A zero-liquidity gap still moves
			// price (sqrtPriceNext advances to the next tick) even though
			// no amount changes hands, so that case must keep looping.
			break
		}

		consumed := new(big.Int).Add(step.amountIn, step.feeAmount)
		if exactInput {
			remaining = new(big.Int).Sub(remaining, consumed)
		} else {
			remaining = new(big.Int).Sub(remaining, step.amountOut)
		}
		state.amountIn = new(big.Int).Add(state.amountIn, step.amountIn)
		state.amountOut = new(big.Int).Add(state.amountOut, step.amountOut)
		state.feeTotal = new(big.Int).Add(state.feeTotal, step.feeAmount)

		if state.liquidity.Sign() > 0 && step.feeAmount.Sign() > 0 {
			feeGrowthDelta, err := q64FeeGrowthDelta(step.feeAmount, state.liquidity)
			if err != nil {
				return SwapResult{}, err
			}
			if zeroForOne {
				state.feeGrowthA = state.feeGrowthA.WrappingAdd(feeGrowthDelta)
			} else {
				state.feeGrowthB = state.feeGrowthB.WrappingAdd(feeGrowthDelta)
			}
		}

		state.sqrtPrice = step.sqrtPriceNext

		if step.reachedTarget && hasNext && !targetIsLimit {
			tickState := p.Ticks.Get(nextTick)
			if tickState != nil {
				netDelta := tickState.Cross(state.feeGrowthA, state.feeGrowthB)
				if zeroForOne {
					netDelta = new(big.Int).Neg(netDelta)
				}
				newLiq := new(big.Int).Add(state.liquidity, netDelta)
				if newLiq.Sign() < 0 {
					return SwapResult{}, clamerr.Wrap(clamerr.InsufficientLiquidity, "active liquidity would go negative crossing a tick")
				}
				state.liquidity = newLiq
			}
			if zeroForOne {
				state.tick = nextTick - 1
			} else {
				state.tick = nextTick
			}
		} else {
			newTick, err := tickmath.ToTick(state.sqrtPrice)
			if err != nil {
				return SwapResult{}, err
			}
			state.tick = newTick
		}
	}

	p.SqrtPrice = state.sqrtPrice
	p.CurrentTick = state.tick
	p.Liquidity = state.liquidity
	p.FeeGrowthGlobalA = state.feeGrowthA
	p.FeeGrowthGlobalB = state.feeGrowthB

	log.WithFields(logrus.Fields{
		"zero_for_one": zeroForOne,
		"amount_in":    state.amountIn.String(),
		"amount_out":   state.amountOut.String(),
		"fee_paid":     state.feeTotal.String(),
		"tick_after":   state.tick,
	}).Debug("swap executed")

	return SwapResult{
		AmountIn:       state.amountIn,
		AmountOut:      state.amountOut,
		FeeAmount:      state.feeTotal,
		SqrtPriceAfter: state.sqrtPrice,
		TickAfter:      state.tick,
	}, nil
}

func validatePriceLimit(zeroForOne bool, current, limit q64.Q64) error {
	if zeroForOne {
		if !limit.LessThan(current) || limit.LessThan(tickmath.MinSqrtPrice()) {
			return clamerr.Wrap(clamerr.PriceLimitInvalid, "sqrt_price_limit must be < current price and >= MIN_SQRT_PRICE for zero_for_one")
		}
	} else {
		if !limit.GreaterThan(current) || limit.GreaterThan(tickmath.MaxSqrtPrice()) {
			return clamerr.Wrap(clamerr.PriceLimitInvalid, "sqrt_price_limit must be > current price and <= MAX_SQRT_PRICE")
		}
	}
	return nil
}

// nextInitializedTick finds the next initialized tick in the swap's
// direction of travel (spec.md §4.8 step 2, via tickbitmap.NextInitialized).
func (p *Pool) nextInitializedTick(current tickmath.Tick, zeroForOne bool) (tickmath.Tick, bool) {
	dir := tickbitmap.Up
	if zeroForOne {
		dir = tickbitmap.Down
	}
	return p.Bitmap.NextInitialized(current, p.TickSpacing, dir)
}

// boundedTarget clamps the step's target sqrt-price to whichever of
// (next initialized tick, price limit) is reached first.
func boundedTarget(zeroForOne bool, current, limit q64.Q64, nextTick tickmath.Tick, hasNext bool) (target q64.Q64, isLimit bool, err error) {
	if !hasNext {
		return limit, true, nil
	}
	tickPrice, err := tickmath.ToSqrtPrice(nextTick)
	if err != nil {
		return q64.Q64{}, false, err
	}
	if zeroForOne {
		if limit.GreaterThan(tickPrice) {
			return limit, true, nil
		}
		return tickPrice, false, nil
	}
	if limit.LessThan(tickPrice) {
		return limit, true, nil
	}
	return tickPrice, false, nil
}

type stepResult struct {
	amountIn      *big.Int
	amountOut     *big.Int
	feeAmount     *big.Int
	sqrtPriceNext q64.Q64
	reachedTarget bool
}

// computeStep advances price from cur toward target by at most the supplied
// budget, using the closed-form CPMM-at-fixed-L formulas from spec.md §4.8
// step 5. The fee-reservation discipline mirrors the standard CLAMM
// swap-step algorithm: for exact input, the fee is reserved out of the
// step's budget up front (so a step that exhausts its budget mid-range
// consumes no extra fee beyond what's left), and is charged proportionally
// to the amount actually swapped when a step reaches its target cleanly.
// For exact output, the fee is always added on top of the amount required
// to produce the requested output.
func computeStep(zeroForOne, exactInput bool, cur, target q64.Q64, activeLiquidity, remaining *big.Int, feeTierBps uint16) (stepResult, error) {
	if activeLiquidity.Sign() == 0 {
		// No liquidity active at this price: jump straight to target, no
		// amount moves (the caller's loop keeps scanning past it).
		return stepResult{amountIn: new(big.Int), amountOut: new(big.Int), feeAmount: new(big.Int), sqrtPriceNext: target, reachedTarget: true}, nil
	}

	pLo, pHi := cur, target
	if pLo.GreaterThan(pHi) {
		pLo, pHi = pHi, pLo
	}

	maxIn, maxOut, err := stepAmounts(zeroForOne, activeLiquidity, pLo, pHi)
	if err != nil {
		return stepResult{}, err
	}

	var swapBudget *big.Int
	if exactInput {
		swapBudget = reserveFee(remaining, feeTierBps)
	} else {
		swapBudget = remaining
	}

	budgetCap := maxIn
	if !exactInput {
		budgetCap = maxOut
	}

	if swapBudget.Cmp(budgetCap) >= 0 {
		fee := feeOnAmount(maxIn, feeTierBps)
		return stepResult{amountIn: maxIn, amountOut: maxOut, feeAmount: fee, sqrtPriceNext: target, reachedTarget: true}, nil
	}

	var next q64.Q64
	if exactInput {
		if zeroForOne {
			next, err = nextSqrtPriceFromAmount0In(cur, activeLiquidity, swapBudget)
		} else {
			next, err = nextSqrtPriceFromAmount1In(cur, activeLiquidity, swapBudget)
		}
	} else {
		if zeroForOne {
			next, err = nextSqrtPriceFromAmount1Out(cur, activeLiquidity, swapBudget)
		} else {
			next, err = nextSqrtPriceFromAmount0Out(cur, activeLiquidity, swapBudget)
		}
	}
	if err != nil {
		return stepResult{}, err
	}

	partialLo, partialHi := cur, next
	if partialLo.GreaterThan(partialHi) {
		partialLo, partialHi = partialHi, partialLo
	}
	inAmt, outAmt, err := stepAmounts(zeroForOne, activeLiquidity, partialLo, partialHi)
	if err != nil {
		return stepResult{}, err
	}

	var fee *big.Int
	if exactInput {
		inAmt = new(big.Int).Set(swapBudget)
		fee = new(big.Int).Sub(remaining, inAmt)
		if fee.Sign() < 0 {
			fee = new(big.Int)
		}
	} else {
		outAmt = new(big.Int).Set(remaining)
		fee = feeOnAmount(inAmt, feeTierBps)
	}

	return stepResult{amountIn: inAmt, amountOut: outAmt, feeAmount: fee, sqrtPriceNext: next, reachedTarget: false}, nil
}

// stepAmounts returns the (amountIn, amountOut) pair for a full step over
// [pLo, pHi] at fixed liquidity, directed by zeroForOne; grounded directly
// in the liquidity package's range-amount formulas (spec.md §4.7), since a
// single swap step at constant L is the same math as the range-amount
// computation for [pLo, pHi].
func stepAmounts(zeroForOne bool, activeLiquidity *big.Int, pLo, pHi q64.Q64) (amountIn, amountOut *big.Int, err error) {
	if zeroForOne {
		amountIn, err = liquidity.AmountA(activeLiquidity, pLo, pHi, liquidity.RoundUp)
		if err != nil {
			return nil, nil, err
		}
		amountOut, err = liquidity.AmountB(activeLiquidity, pLo, pHi, liquidity.RoundDown)
		return amountIn, amountOut, err
	}
	amountIn, err = liquidity.AmountB(activeLiquidity, pLo, pHi, liquidity.RoundUp)
	if err != nil {
		return nil, nil, err
	}
	amountOut, err = liquidity.AmountA(activeLiquidity, pLo, pHi, liquidity.RoundDown)
	return amountIn, amountOut, err
}

// The four functions below solve the CPMM-at-fixed-L closed form for the
// sqrt-price reached by moving a given (plain-integer, not Q64.64-scaled)
// amount of token at constant active liquidity L (also a plain integer,
// per spec.md §4.1's liquidity representation). They work directly in raw
// uint256 words rather than through q64.Q64's checked Mul/Add/Div, because
// those assume both operands are themselves Q64.64 values with an integer
// part under 2^64 -- too narrow for a liquidity value that can span the
// full 128-bit domain. Only the final sqrt-price result is constrained to
// fit Q64.64 (via q64.FromRaw); L and amount flow through as plain 256-bit
// integers so their product with a Q64.64 sqrt-price (itself under 2^128)
// never exceeds 256 bits.

func toRaw256(n *big.Int) (*uint256.Int, error) {
	v, overflow := uint256.FromBig(n)
	if overflow {
		return nil, clamerr.Wrap(clamerr.MathOverflow, "value exceeds 256 bits")
	}
	return v, nil
}

// nextSqrtPriceFromAmount0In solves sqrtQ = L*sqrtP / (L + amount0*sqrtP)
// (token A/0 added, zero_for_one, price falls).
func nextSqrtPriceFromAmount0In(sqrtP q64.Q64, L, amount0 *big.Int) (q64.Q64, error) {
	sqrtPraw := sqrtP.Raw()
	Lraw, err := toRaw256(L)
	if err != nil {
		return q64.Q64{}, err
	}
	amtRaw, err := toRaw256(amount0)
	if err != nil {
		return q64.Q64{}, err
	}

	var numerator uint256.Int
	numerator.Mul(Lraw, sqrtPraw)

	var scaledTerm uint256.Int
	scaledTerm.Mul(amtRaw, sqrtPraw)
	scaledTerm.Rsh(&scaledTerm, q64.FracBits)

	var denom uint256.Int
	denom.Add(Lraw, &scaledTerm)
	if denom.IsZero() {
		return q64.Q64{}, clamerr.Wrap(clamerr.DivideByZero, "next sqrt price denominator is zero")
	}

	var out uint256.Int
	out.Div(&numerator, &denom)
	return q64.FromRaw(&out)
}

// nextSqrtPriceFromAmount1In solves sqrtQ = sqrtP + amount1/L (token B/1
// added, !zero_for_one, price rises).
func nextSqrtPriceFromAmount1In(sqrtP q64.Q64, L, amount1 *big.Int) (q64.Q64, error) {
	sqrtPraw := sqrtP.Raw()
	Lraw, err := toRaw256(L)
	if err != nil {
		return q64.Q64{}, err
	}
	amtRaw, err := toRaw256(amount1)
	if err != nil {
		return q64.Q64{}, err
	}
	if Lraw.IsZero() {
		return q64.Q64{}, clamerr.Wrap(clamerr.DivideByZero, "liquidity is zero")
	}

	var scaledAmt uint256.Int
	scaledAmt.Lsh(amtRaw, q64.FracBits)
	var term uint256.Int
	term.Div(&scaledAmt, Lraw)

	var out uint256.Int
	out.Add(sqrtPraw, &term)
	return q64.FromRaw(&out)
}

// nextSqrtPriceFromAmount1Out solves sqrtQ = sqrtP - amount1/L (token B/1
// removed as output, zero_for_one exact-output, price falls).
func nextSqrtPriceFromAmount1Out(sqrtP q64.Q64, L, amount1 *big.Int) (q64.Q64, error) {
	sqrtPraw := sqrtP.Raw()
	Lraw, err := toRaw256(L)
	if err != nil {
		return q64.Q64{}, err
	}
	amtRaw, err := toRaw256(amount1)
	if err != nil {
		return q64.Q64{}, err
	}
	if Lraw.IsZero() {
		return q64.Q64{}, clamerr.Wrap(clamerr.DivideByZero, "liquidity is zero")
	}

	var scaledAmt uint256.Int
	scaledAmt.Lsh(amtRaw, q64.FracBits)
	var term uint256.Int
	term.Div(&scaledAmt, Lraw)

	if term.Gt(sqrtPraw) {
		return q64.Q64{}, clamerr.Wrap(clamerr.MathOverflow, "requested output exceeds current price")
	}
	var out uint256.Int
	out.Sub(sqrtPraw, &term)
	return q64.FromRaw(&out)
}

// nextSqrtPriceFromAmount0Out solves sqrtQ = L*sqrtP / (L - amount0*sqrtP)
// (token A/0 removed as output, !zero_for_one exact-output, price rises).
func nextSqrtPriceFromAmount0Out(sqrtP q64.Q64, L, amount0 *big.Int) (q64.Q64, error) {
	sqrtPraw := sqrtP.Raw()
	Lraw, err := toRaw256(L)
	if err != nil {
		return q64.Q64{}, err
	}
	amtRaw, err := toRaw256(amount0)
	if err != nil {
		return q64.Q64{}, err
	}

	var numerator uint256.Int
	numerator.Mul(Lraw, sqrtPraw)

	var scaledTerm uint256.Int
	scaledTerm.Mul(amtRaw, sqrtPraw)
	scaledTerm.Rsh(&scaledTerm, q64.FracBits)

	if scaledTerm.Gt(Lraw) {
		return q64.Q64{}, clamerr.Wrap(clamerr.MathOverflow, "requested output exceeds available liquidity")
	}
	var denom uint256.Int
	denom.Sub(Lraw, &scaledTerm)
	if denom.IsZero() {
		return q64.Q64{}, clamerr.Wrap(clamerr.DivideByZero, "next sqrt price denominator is zero")
	}

	var out uint256.Int
	out.Div(&numerator, &denom)
	return q64.FromRaw(&out)
}

// reserveFee returns floor(amount * (FeeDenominator-feeBps) / FeeDenominator),
// the portion of an exact-input budget left over after reserving the fee.
func reserveFee(amount *big.Int, feeTierBps uint16) *big.Int {
	complement := big.NewInt(int64(clamconst.FeeDenominator) - int64(feeTierBps))
	num := new(big.Int).Mul(amount, complement)
	return new(big.Int).Div(num, big.NewInt(int64(clamconst.FeeDenominator)))
}

// feeOnAmount computes the LP fee on a swapped amount, rounded up (spec.md
// §9: rounding never favors the pool against the fee-growth accumulator).
func feeOnAmount(amountSwapped *big.Int, feeTierBps uint16) *big.Int {
	complement := int64(clamconst.FeeDenominator) - int64(feeTierBps)
	if complement <= 0 {
		return new(big.Int)
	}
	num := new(big.Int).Mul(amountSwapped, big.NewInt(int64(feeTierBps)))
	denom := big.NewInt(complement)
	q, r := new(big.Int).QuoRem(num, denom, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

// q64FeeGrowthDelta returns fee_amount / liquidity as a Q64.64 value, the
// per-unit-liquidity fee credit added to the global accumulator on this step
// (spec.md §4.5).
func q64FeeGrowthDelta(feeAmount, activeLiquidity *big.Int) (q64.Q64, error) {
	feeRaw, err := toRaw256(feeAmount)
	if err != nil {
		return q64.Q64{}, err
	}
	liqRaw, err := toRaw256(activeLiquidity)
	if err != nil {
		return q64.Q64{}, err
	}
	if liqRaw.IsZero() {
		return q64.Q64{}, clamerr.Wrap(clamerr.DivideByZero, "liquidity is zero")
	}
	var scaledFee uint256.Int
	scaledFee.Lsh(feeRaw, q64.FracBits)
	var out uint256.Int
	out.Div(&scaledFee, liqRaw)
	return q64.FromRaw(&out)
}
