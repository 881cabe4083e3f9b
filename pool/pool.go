// Package pool implements the CLAMM pool: state, invariants, the swap
// engine, and liquidity modification (spec.md §4.6/§4.7/§4.8).
package pool

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/CoinSummer/clamm-core/clamconst"
	"github.com/CoinSummer/clamm-core/clamerr"
	"github.com/CoinSummer/clamm-core/liquidity"
	"github.com/CoinSummer/clamm-core/oracle"
	"github.com/CoinSummer/clamm-core/position"
	"github.com/CoinSummer/clamm-core/q64"
	"github.com/CoinSummer/clamm-core/tickbitmap"
	"github.com/CoinSummer/clamm-core/tickmath"
	"github.com/CoinSummer/clamm-core/ticks"
)

var log = logrus.WithField("component", "pool")

// Pool is a single two-token CLAMM pool (spec.md §3). The pool owns its
// bitmap, tick-state map, position book, and oracle exclusively; callers
// reach them only through Pool methods.
type Pool struct {
	TokenA common.Address
	TokenB common.Address

	FeeTierBps  uint16
	TickSpacing uint16

	SqrtPrice   q64.Q64
	CurrentTick tickmath.Tick
	Liquidity   *big.Int

	FeeGrowthGlobalA q64.Q64
	FeeGrowthGlobalB q64.Q64

	Bitmap    *tickbitmap.Bitmap
	Ticks     *ticks.Map
	Positions *position.Book
	Oracle    *oracle.Oracle
}

// CanonicalOrder returns (a, b) sorted so the lower address is first, and
// reports whether a swap was needed. The original Fluxa source enforces
// this ordering explicitly at pool creation (token_pair.rs); the distilled
// spec leaves it implicit, so NewPool enforces it here.
func CanonicalOrder(a, b common.Address) (common.Address, common.Address, bool) {
	if bytesCompare(a.Bytes(), b.Bytes()) <= 0 {
		return a, b, false
	}
	return b, a, true
}

func bytesCompare(a, b []byte) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// NewPool validates the pool-initialization configuration (spec.md §6) and
// returns a freshly initialized pool.
func NewPool(tokenA, tokenB common.Address, feeTierBps uint16, tickSpacing uint16, initialSqrtPrice q64.Q64) (*Pool, error) {
	if tokenA == tokenB {
		return nil, clamerr.Wrap(clamerr.OutOfRange, "token_a and token_b must differ")
	}
	if feeTierBps == 0 || uint32(feeTierBps) > clamconst.MaxFeeBps {
		return nil, clamerr.Wrap(clamerr.OutOfRange, "fee_tier_bps out of range")
	}
	if tickSpacing == 0 {
		return nil, clamerr.Wrap(clamerr.OutOfRange, "tick_spacing must be positive")
	}
	if initialSqrtPrice.LessThan(tickmath.MinSqrtPrice()) || initialSqrtPrice.GreaterThan(tickmath.MaxSqrtPrice()) {
		return nil, clamerr.Wrap(clamerr.OutOfRange, "initial_sqrt_price outside [MIN_SQRT_PRICE, MAX_SQRT_PRICE]")
	}

	orderedA, orderedB, _ := CanonicalOrder(tokenA, tokenB)

	currentTick, err := tickmath.ToTick(initialSqrtPrice)
	if err != nil {
		return nil, err
	}

	p := &Pool{
		TokenA:           orderedA,
		TokenB:           orderedB,
		FeeTierBps:       feeTierBps,
		TickSpacing:      tickSpacing,
		SqrtPrice:        initialSqrtPrice,
		CurrentTick:      currentTick,
		Liquidity:        new(big.Int),
		FeeGrowthGlobalA: q64.Zero(),
		FeeGrowthGlobalB: q64.Zero(),
		Bitmap:           tickbitmap.New(),
		Ticks:            ticks.NewMap(),
		Positions:        position.NewBook(),
		Oracle:           oracle.New(clamconst.DefaultOracleCardinality),
	}

	log.WithFields(logrus.Fields{
		"tick_spacing": tickSpacing,
		"fee_tier_bps": feeTierBps,
		"tick":         currentTick,
	}).Debug("pool initialized")

	return p, nil
}

// ModifyResult reports the outcome of ModifyLiquidity.
type ModifyResult struct {
	AmountA     *big.Int
	AmountB     *big.Int
	FeesA       uint64
	FeesB       uint64
}

// ModifyLiquidity opens, grows, shrinks, or closes a position over
// [lower, upper), per spec.md §4.5. delta is signed: positive mints,
// negative burns.
func (p *Pool) ModifyLiquidity(owner common.Address, lower, upper tickmath.Tick, delta *big.Int) (ModifyResult, error) {
	if err := position.ValidateRange(lower, upper, p.TickSpacing); err != nil {
		return ModifyResult{}, err
	}

	key := position.Key{Owner: owner, Lower: lower, Upper: upper}
	pos := p.Positions.GetOrCreate(key)
	liquidityBefore := new(big.Int).Set(pos.Liquidity)

	lowerState := p.Ticks.GetOrCreate(lower)
	upperState := p.Ticks.GetOrCreate(upper)

	lowerWasInitialized := lowerState.Initialized
	upperWasInitialized := upperState.Initialized

	if delta.Sign() != 0 {
		if err := lowerState.UpdateOnLiquidityChange(delta, false); err != nil {
			return ModifyResult{}, err
		}
		if err := upperState.UpdateOnLiquidityChange(delta, true); err != nil {
			return ModifyResult{}, err
		}
	}

	// A tick newly becoming initialized seeds fee_growth_outside per the
	// below/above convention: below current tick starts at the global
	// accumulator (as if all growth to date happened "outside" it from the
	// pool's perspective), at or above current tick starts at zero.
	if !lowerWasInitialized && lowerState.Initialized {
		if lower < p.CurrentTick {
			lowerState.FeeGrowthOutsideA = p.FeeGrowthGlobalA
			lowerState.FeeGrowthOutsideB = p.FeeGrowthGlobalB
		}
	}
	if !upperWasInitialized && upperState.Initialized {
		if upper < p.CurrentTick {
			upperState.FeeGrowthOutsideA = p.FeeGrowthGlobalA
			upperState.FeeGrowthOutsideB = p.FeeGrowthGlobalB
		}
	}

	if lowerState.Initialized != lowerWasInitialized {
		p.Bitmap.Flip(lower, p.TickSpacing, lowerState.Initialized)
	}
	if upperState.Initialized != upperWasInitialized {
		p.Bitmap.Flip(upper, p.TickSpacing, upperState.Initialized)
	}
	if !lowerState.Initialized {
		p.Ticks.Delete(lower)
	}
	if !upperState.Initialized {
		p.Ticks.Delete(upper)
	}

	feeInsideA := ticks.FeeGrowthInside(p.CurrentTick, lower, upper, p.FeeGrowthGlobalA, lowerState.FeeGrowthOutsideA, upperState.FeeGrowthOutsideA)
	feeInsideB := ticks.FeeGrowthInside(p.CurrentTick, lower, upper, p.FeeGrowthGlobalB, lowerState.FeeGrowthOutsideB, upperState.FeeGrowthOutsideB)
	if err := pos.AccrueFees(liquidityBefore, feeInsideA, feeInsideB); err != nil {
		return ModifyResult{}, err
	}

	if err := pos.ApplyLiquidityDelta(delta); err != nil {
		return ModifyResult{}, err
	}

	if delta.Sign() != 0 && p.CurrentTick >= lower && p.CurrentTick < upper {
		newLiquidity := new(big.Int).Add(p.Liquidity, delta)
		if newLiquidity.Sign() < 0 {
			return ModifyResult{}, clamerr.Wrap(clamerr.InsufficientLiquidity, "pool liquidity would go negative")
		}
		p.Liquidity = newLiquidity
	}

	pLo, err := tickmath.ToSqrtPrice(lower)
	if err != nil {
		return ModifyResult{}, err
	}
	pHi, err := tickmath.ToSqrtPrice(upper)
	if err != nil {
		return ModifyResult{}, err
	}

	policy := liquidity.RoundDown
	absDelta := new(big.Int).Abs(delta)
	if delta.Sign() > 0 {
		policy = liquidity.RoundUp
	}
	amountA, amountB, err := liquidity.AmountsAtPrice(absDelta, pLo, pHi, p.SqrtPrice, policy)
	if err != nil {
		return ModifyResult{}, err
	}
	if delta.Sign() < 0 {
		amountA = new(big.Int).Neg(amountA)
		amountB = new(big.Int).Neg(amountB)
	}

	feesA, feesB := pos.CollectFees()

	log.WithFields(logrus.Fields{
		"owner": owner.Hex(), "lower": lower, "upper": upper, "delta": delta.String(),
	}).Debug("liquidity modified")

	return ModifyResult{AmountA: amountA, AmountB: amountB, FeesA: feesA, FeesB: feesB}, nil
}

// CollectFees credits the fee growth accrued inside the position's range
// since it was last touched, then transfers the position's owed fees to zero
// and reports them (spec.md §4.5).
func (p *Pool) CollectFees(owner common.Address, lower, upper tickmath.Tick) (uint64, uint64, error) {
	pos := p.Positions.Get(position.Key{Owner: owner, Lower: lower, Upper: upper})
	if pos == nil {
		return 0, 0, clamerr.Wrap(clamerr.TickNotFound, "position does not exist")
	}
	lowerState, upperState := p.Ticks.Get(lower), p.Ticks.Get(upper)
	if lowerState != nil && upperState != nil {
		feeInsideA := ticks.FeeGrowthInside(p.CurrentTick, lower, upper, p.FeeGrowthGlobalA, lowerState.FeeGrowthOutsideA, upperState.FeeGrowthOutsideA)
		feeInsideB := ticks.FeeGrowthInside(p.CurrentTick, lower, upper, p.FeeGrowthGlobalB, lowerState.FeeGrowthOutsideB, upperState.FeeGrowthOutsideB)
		if err := pos.AccrueFees(pos.Liquidity, feeInsideA, feeInsideB); err != nil {
			return 0, 0, err
		}
	}
	a, b := pos.CollectFees()
	return a, b, nil
}
