// Package router chains swaps across multiple pools atomically (spec.md
// §4.9): either every hop succeeds and the final output clears the
// slippage floor, or no pool observes any state change at all.
package router

import (
	"math/big"

	"github.com/sirupsen/logrus"

	"github.com/CoinSummer/clamm-core/clamerr"
	"github.com/CoinSummer/clamm-core/pool"
	"github.com/CoinSummer/clamm-core/q64"
	"github.com/CoinSummer/clamm-core/tickmath"
)

var log = logrus.WithField("component", "router")

// Hop is one leg of a multi-hop route: swap through Pool in the direction
// ZeroForOne, bounded by PriceLimit.
type Hop struct {
	Pool        *pool.Pool
	ZeroForOne  bool
	PriceLimit  q64.Q64
}

// poolSnapshot captures the mutable fields of a pool so a failed route can
// be rolled back to an indistinguishable-from-untouched state (spec.md
// §7: "a late-stage failure is indistinguishable from a same-state no-op").
type poolSnapshot struct {
	sqrtPrice        q64.Q64
	currentTick      tickmath.Tick
	liquidity        *big.Int
	feeGrowthGlobalA q64.Q64
	feeGrowthGlobalB q64.Q64
}

func snapshot(p *pool.Pool) poolSnapshot {
	return poolSnapshot{
		sqrtPrice:        p.SqrtPrice,
		currentTick:      p.CurrentTick,
		liquidity:        new(big.Int).Set(p.Liquidity),
		feeGrowthGlobalA: p.FeeGrowthGlobalA,
		feeGrowthGlobalB: p.FeeGrowthGlobalB,
	}
}

func restore(p *pool.Pool, snap poolSnapshot) {
	p.SqrtPrice = snap.sqrtPrice
	p.CurrentTick = snap.currentTick
	p.Liquidity = snap.liquidity
	p.FeeGrowthGlobalA = snap.feeGrowthGlobalA
	p.FeeGrowthGlobalB = snap.feeGrowthGlobalB
}

// MultiHopSwap executes hops in sequence, each consuming the previous
// hop's output as its input. If any hop errors, or the final output is
// below minAmountOut, every touched pool is restored to its pre-call state
// and the function returns an error; no partial effect is ever observed.
func MultiHopSwap(hops []Hop, amountIn *big.Int, minAmountOut *big.Int) (*big.Int, error) {
	if len(hops) == 0 {
		return nil, clamerr.Wrap(clamerr.OutOfRange, "at least one hop is required")
	}
	if amountIn.Sign() <= 0 {
		return nil, clamerr.Wrap(clamerr.OutOfRange, "amount_in must be positive")
	}

	snapshots := make([]poolSnapshot, len(hops))
	for i, h := range hops {
		snapshots[i] = snapshot(h.Pool)
	}

	current := new(big.Int).Set(amountIn)
	for i, h := range hops {
		result, err := h.Pool.Swap(h.ZeroForOne, current, h.PriceLimit)
		if err != nil {
			rollback(hops, snapshots)
			return nil, clamerr.WrapCause(clamerr.OutOfRange, "hop failed", err)
		}
		current = result.AmountOut
	}

	if current.Cmp(minAmountOut) < 0 {
		rollback(hops, snapshots)
		return nil, clamerr.Wrap(clamerr.SlippageExceeded, "final output below min_amount_out")
	}

	log.WithFields(logrus.Fields{
		"hops":       len(hops),
		"amount_in":  amountIn.String(),
		"amount_out": current.String(),
	}).Debug("multi-hop swap committed")

	return current, nil
}

func rollback(hops []Hop, snapshots []poolSnapshot) {
	for i, h := range hops {
		restore(h.Pool, snapshots[i])
	}
}
