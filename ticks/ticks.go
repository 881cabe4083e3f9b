// Package ticks holds per-tick bookkeeping: gross/net liquidity and the
// fee-growth-outside snapshots used to compute fee growth inside a range
// (spec.md §4.4/§4.5).
package ticks

import (
	"math/big"

	"github.com/CoinSummer/clamm-core/clamerr"
	"github.com/CoinSummer/clamm-core/q64"
	"github.com/CoinSummer/clamm-core/tickmath"
)

// State is the per-tick accounting record. LiquidityNet is signed: crossing
// the tick upward adds it to active liquidity, crossing downward subtracts
// it (spec.md §4.4/§4.8).
type State struct {
	LiquidityGross    *big.Int // u128, always >= 0
	LiquidityNet      *big.Int // i128
	FeeGrowthOutsideA q64.Q64
	FeeGrowthOutsideB q64.Q64
	Initialized       bool
}

// NewState returns a zeroed tick state, as a freshly referenced tick starts.
func NewState() *State {
	return &State{
		LiquidityGross: new(big.Int),
		LiquidityNet:   new(big.Int),
	}
}

// Map is the pool's sparse per-tick state, keyed by tick.
type Map struct {
	m map[tickmath.Tick]*State
}

// NewMap returns an empty tick-state map.
func NewMap() *Map {
	return &Map{m: make(map[tickmath.Tick]*State)}
}

// Get returns the state at t, or nil if the tick has never been referenced.
func (m *Map) Get(t tickmath.Tick) *State {
	return m.m[t]
}

// GetOrCreate returns the state at t, creating a zeroed entry if absent.
func (m *Map) GetOrCreate(t tickmath.Tick) *State {
	s, ok := m.m[t]
	if !ok {
		s = NewState()
		m.m[t] = s
	}
	return s
}

// Delete removes the tick's state entirely, for use once LiquidityGross
// returns to zero and the caller no longer needs the record retained.
func (m *Map) Delete(t tickmath.Tick) {
	delete(m.m, t)
}

var maxU128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
var minI128 = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
var maxI128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))

// UpdateOnLiquidityChange applies a liquidity delta to the tick referenced
// as a position boundary, per spec.md §4.4. delta may be negative (position
// being closed); isUpper selects the sign convention for liquidity_net.
// All arithmetic is checked: over/underflow past the 128-bit domain is
// fatal, returned as an error rather than silently wrapping.
func (s *State) UpdateOnLiquidityChange(delta *big.Int, isUpper bool) error {
	absDelta := new(big.Int).Abs(delta)
	var newGross *big.Int
	if delta.Sign() >= 0 {
		newGross = new(big.Int).Add(s.LiquidityGross, absDelta)
	} else {
		newGross = new(big.Int).Sub(s.LiquidityGross, absDelta)
	}
	if newGross.Sign() < 0 || newGross.Cmp(maxU128) > 0 {
		return clamerr.Wrap(clamerr.MathOverflow, "tick liquidity_gross out of u128 range")
	}

	netDelta := new(big.Int).Set(delta)
	if isUpper {
		netDelta.Neg(netDelta)
	}
	newNet := new(big.Int).Add(s.LiquidityNet, netDelta)
	if newNet.Cmp(minI128) < 0 || newNet.Cmp(maxI128) > 0 {
		return clamerr.Wrap(clamerr.MathOverflow, "tick liquidity_net out of i128 range")
	}

	s.LiquidityGross = newGross
	s.LiquidityNet = newNet
	s.Initialized = newGross.Sign() > 0
	return nil
}

// Cross flips the tick's fee-growth-outside snapshots against the pool's
// current global accumulators (the standard CLAMM snapshot flip, spec.md
// §4.4) and returns liquidity_net for the caller to apply, signed, to the
// pool's active liquidity.
func (s *State) Cross(feeGrowthGlobalA, feeGrowthGlobalB q64.Q64) *big.Int {
	s.FeeGrowthOutsideA = feeGrowthGlobalA.WrappingSub(s.FeeGrowthOutsideA)
	s.FeeGrowthOutsideB = feeGrowthGlobalB.WrappingSub(s.FeeGrowthOutsideB)
	return new(big.Int).Set(s.LiquidityNet)
}

// FeeGrowthInside computes the fee growth accrued inside [tLo, tHi) as of
// the pool's current tick and global accumulators, per spec.md §4.5.
func FeeGrowthInside(
	tCurrent, tLo, tHi tickmath.Tick,
	global q64.Q64,
	outsideLo, outsideHi q64.Q64,
) q64.Q64 {
	var below q64.Q64
	if tCurrent >= tLo {
		below = outsideLo
	} else {
		below = global.WrappingSub(outsideLo)
	}

	var above q64.Q64
	if tCurrent < tHi {
		above = outsideHi
	} else {
		above = global.WrappingSub(outsideHi)
	}

	return global.WrappingSub(below).WrappingSub(above)
}
