// Package liquidity computes the token amounts required or returned for a
// liquidity delta over a price range, per spec.md §4.7:
//
//	amount_a = L * (p_hi - p_lo) / (p_lo * p_hi)
//	amount_b = L * (p_hi - p_lo)
//
// p_lo, p_hi are Q64.64 sqrt-prices; L is a plain 128-bit integer. Rounding
// is a hard contract: round up when the caller pays in (minting liquidity),
// round down when the caller is paid out (burning or receiving swap
// output). Every exported function takes an explicit RoundingPolicy rather
// than guessing from context, so the call site documents its own choice.
package liquidity

import (
	"math/big"

	"github.com/holiman/uint256"

	"github.com/CoinSummer/clamm-core/clamerr"
	"github.com/CoinSummer/clamm-core/q64"
)

// RoundingPolicy selects floor or ceiling division for the mul_div-based
// amount computations.
type RoundingPolicy int

const (
	RoundDown RoundingPolicy = iota
	RoundUp
)

func mulDiv(a, b, c *uint256.Int, policy RoundingPolicy) (*uint256.Int, error) {
	if policy == RoundUp {
		return q64.MulDivCeil(a, b, c)
	}
	return q64.MulDiv(a, b, c)
}

func liquidityToUint256(l *big.Int) (*uint256.Int, error) {
	if l.Sign() < 0 {
		return nil, clamerr.Wrap(clamerr.OutOfRange, "liquidity must be non-negative")
	}
	v, overflow := uint256.FromBig(l)
	if overflow {
		return nil, clamerr.Wrap(clamerr.MathOverflow, "liquidity exceeds 256 bits")
	}
	return v, nil
}

var oneQ64Raw = q64.One().Raw()

// AmountA returns the amount of token A (the x-token) required/returned for
// liquidity L over [pLo, pHi].
func AmountA(liquidity *big.Int, pLo, pHi q64.Q64, policy RoundingPolicy) (*big.Int, error) {
	if pLo.GreaterThan(pHi) {
		return nil, clamerr.Wrap(clamerr.InvalidPriceRange, "p_lo must be <= p_hi")
	}
	if pLo.IsZero() {
		return nil, clamerr.Wrap(clamerr.DivideByZero, "p_lo must be > 0")
	}
	lRaw, err := liquidityToUint256(liquidity)
	if err != nil {
		return nil, err
	}
	diff, err := pHi.Sub(pLo)
	if err != nil {
		return nil, err
	}
	denom, err := pLo.Mul(pHi)
	if err != nil {
		return nil, err
	}
	if denom.IsZero() {
		return nil, clamerr.Wrap(clamerr.DivideByZero, "p_lo * p_hi underflowed to zero")
	}
	out, err := mulDiv(lRaw, diff.Raw(), denom.Raw(), policy)
	if err != nil {
		return nil, err
	}
	return out.ToBig(), nil
}

// AmountB returns the amount of token B (the y-token) required/returned for
// liquidity L over [pLo, pHi].
func AmountB(liquidity *big.Int, pLo, pHi q64.Q64, policy RoundingPolicy) (*big.Int, error) {
	if pLo.GreaterThan(pHi) {
		return nil, clamerr.Wrap(clamerr.InvalidPriceRange, "p_lo must be <= p_hi")
	}
	lRaw, err := liquidityToUint256(liquidity)
	if err != nil {
		return nil, err
	}
	diff, err := pHi.Sub(pLo)
	if err != nil {
		return nil, err
	}
	out, err := mulDiv(lRaw, diff.Raw(), oneQ64Raw, policy)
	if err != nil {
		return nil, err
	}
	return out.ToBig(), nil
}

// AmountsAtPrice computes the (amountA, amountB) pair for liquidity L over
// [pLo, pHi] given the pool's current price pCur, applying the piecewise
// rule from spec.md §4.7: all-A below the range, all-B above it, split
// inside it (substituting p_cur for p_hi in the A formula and for p_lo in
// the B formula).
func AmountsAtPrice(liquidity *big.Int, pLo, pHi, pCur q64.Q64, policy RoundingPolicy) (amountA, amountB *big.Int, err error) {
	if pLo.GreaterThan(pHi) {
		return nil, nil, clamerr.Wrap(clamerr.InvalidPriceRange, "p_lo must be <= p_hi")
	}
	switch {
	case !pCur.GreaterThan(pLo):
		a, err := AmountA(liquidity, pLo, pHi, policy)
		if err != nil {
			return nil, nil, err
		}
		return a, new(big.Int), nil
	case !pCur.LessThan(pHi):
		b, err := AmountB(liquidity, pLo, pHi, policy)
		if err != nil {
			return nil, nil, err
		}
		return new(big.Int), b, nil
	default:
		a, err := AmountA(liquidity, pCur, pHi, policy)
		if err != nil {
			return nil, nil, err
		}
		b, err := AmountB(liquidity, pLo, pCur, policy)
		if err != nil {
			return nil, nil, err
		}
		return a, b, nil
	}
}
