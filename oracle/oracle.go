// Package oracle implements the TWAP ring buffer: a fixed-size circular
// buffer of price observations with delta-encoded cumulative tick and
// seconds-per-liquidity counters, supporting time-weighted average price
// reconstruction (spec.md §4.10).
//
// The logical, uncompressed Observation model lives here; the compressed
// on-disk byte layout (spec.md §3/§6) is a separate transform implemented
// in the encoding package, so the oracle's own logic never has to reason
// about byte widths.
package oracle

import (
	"math/big"

	"github.com/CoinSummer/clamm-core/clamconst"
	"github.com/CoinSummer/clamm-core/clamerr"
	"github.com/CoinSummer/clamm-core/q64"
	"github.com/CoinSummer/clamm-core/tickmath"
)

// Observation is one logical ring-buffer entry (spec.md §3).
type Observation struct {
	Timestamp                     uint32
	Tick                          tickmath.Tick
	SqrtPrice                     q64.Q64
	TickCumulative                int64
	SecondsPerLiquidityCumulative *big.Int // Q0.128, wraps mod 2^128
	Initialized                   bool
}

// Oracle is a pool's TWAP ring buffer.
type Oracle struct {
	records         []Observation
	head            uint16
	count           uint16
	cardinality     uint16
	cardinalityNext uint16
}

// New returns an oracle with the given initial cardinality (spec.md §6:
// default floor is implementation-chosen; clamconst.DefaultOracleCardinality
// is ours).
func New(initialCardinality uint16) *Oracle {
	if initialCardinality == 0 {
		initialCardinality = clamconst.DefaultOracleCardinality
	}
	return &Oracle{
		records:         make([]Observation, initialCardinality),
		cardinality:     initialCardinality,
		cardinalityNext: initialCardinality,
	}
}

var mod128Mask = func() *big.Int {
	m := new(big.Int).Lsh(big.NewInt(1), 128)
	return m.Sub(m, big.NewInt(1))
}()

func wrapMod128(x *big.Int) *big.Int {
	return new(big.Int).And(x, mod128Mask)
}

// GrowObservations stages cardinalityNext for the next write to adopt
// (spec.md §4.10: "cardinality_next is a staged value that the next write
// adopts"), capped at clamconst.MaxOracleCardinality. Matches the original
// Fluxa source's distinct staged-growth operation (see DESIGN.md).
func (o *Oracle) GrowObservations(cardinalityNext uint16) error {
	if cardinalityNext <= o.cardinalityNext {
		return nil
	}
	if cardinalityNext > clamconst.MaxOracleCardinality {
		return clamerr.Wrap(clamerr.OutOfRange, "cardinality_next exceeds MAX_ORACLE_CARDINALITY")
	}
	o.cardinalityNext = cardinalityNext
	return nil
}

// Observe writes a new observation, deriving sqrt_price from tick via
// tickmath.ToSqrtPrice (the canonical sqrt-price for a tick, so the write
// call does not need a redundant sqrt_price argument). Idempotent when
// now == last timestamp, per spec.md §6.
func (o *Oracle) Observe(now uint32, tick tickmath.Tick, liquidity *big.Int) error {
	if o.count > 0 {
		last := o.records[o.head]
		if now == last.Timestamp {
			return nil // idempotent no-op
		}
		if now < last.Timestamp {
			return clamerr.Wrap(clamerr.OracleMonotonicity, "observation timestamp must be non-decreasing")
		}
	}

	sqrtPrice, err := tickmath.ToSqrtPrice(tick)
	if err != nil {
		return err
	}

	if o.count == 0 {
		o.records[0] = Observation{
			Timestamp:                     now,
			Tick:                          tick,
			SqrtPrice:                     sqrtPrice,
			TickCumulative:                0,
			SecondsPerLiquidityCumulative: new(big.Int),
			Initialized:                   true,
		}
		o.head = 0
		o.count = 1
		return nil
	}

	last := o.records[o.head]
	deltaT := int64(now) - int64(last.Timestamp)

	// Trapezoidal accumulation: the contribution of this interval is the
	// average of the tick at each end times the elapsed time, not a
	// left- or right-Riemann step. This makes tick_cumulative's
	// reconstructed average exactly track a linearly-interpolated price
	// path between observations, which is what a host sampling at
	// observation boundaries actually wants from a TWAP.
	tickSum := int64(last.Tick) + int64(tick)
	tickCumulative := last.TickCumulative + (tickSum*deltaT)/2

	effectiveLiquidity := liquidity
	if effectiveLiquidity == nil || effectiveLiquidity.Sign() <= 0 {
		effectiveLiquidity = big.NewInt(1)
	}
	scaled := new(big.Int).Lsh(big.NewInt(deltaT), 128)
	secondsPerLiqDelta := new(big.Int).Div(scaled, effectiveLiquidity)
	secondsPerLiqCumulative := wrapMod128(new(big.Int).Add(last.SecondsPerLiquidityCumulative, secondsPerLiqDelta))

	if o.cardinalityNext > o.cardinality && int(o.head)+1 == int(o.cardinality) {
		grown := make([]Observation, o.cardinalityNext)
		copy(grown, o.records)
		o.records = grown
		o.cardinality = o.cardinalityNext
	}

	nextIdx := (o.head + 1) % o.cardinality
	o.records[nextIdx] = Observation{
		Timestamp:                     now,
		Tick:                          tick,
		SqrtPrice:                     sqrtPrice,
		TickCumulative:                tickCumulative,
		SecondsPerLiquidityCumulative: secondsPerLiqCumulative,
		Initialized:                   true,
	}
	o.head = nextIdx
	if o.count < o.cardinality {
		o.count++
	}
	return nil
}

// chronological returns the valid observations in ascending timestamp order.
func (o *Oracle) chronological() []Observation {
	out := make([]Observation, o.count)
	oldestIdx := (int(o.head) - int(o.count) + 1 + int(o.cardinality)) % int(o.cardinality)
	for i := 0; i < int(o.count); i++ {
		out[i] = o.records[(oldestIdx+i)%int(o.cardinality)]
	}
	return out
}

// latestAtOrBefore returns the index in recs of the latest observation with
// timestamp <= ts, via binary search, or -1 if none qualifies.
func latestAtOrBefore(recs []Observation, ts uint32) int {
	lo, hi := 0, len(recs)-1
	ans := -1
	for lo <= hi {
		mid := (lo + hi) / 2
		if recs[mid].Timestamp <= ts {
			ans = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return ans
}

// TWAP returns the time-weighted-average sqrt-price over [fromTs, toTs],
// per spec.md §4.10. Requires at least two observations and that both
// bounds are covered by the ring.
func (o *Oracle) TWAP(fromTs, toTs uint32) (q64.Q64, error) {
	if o.count < 2 {
		return q64.Q64{}, clamerr.Wrap(clamerr.OracleStale, "fewer than two observations recorded")
	}
	if fromTs >= toTs {
		return q64.Q64{}, clamerr.Wrap(clamerr.OutOfRange, "from_ts must be < to_ts")
	}

	recs := o.chronological()
	if fromTs < recs[0].Timestamp {
		return q64.Q64{}, clamerr.Wrap(clamerr.OracleStale, "from_ts predates the oldest retained observation")
	}

	fromIdx := latestAtOrBefore(recs, fromTs)
	toIdx := latestAtOrBefore(recs, toTs)
	if fromIdx < 0 || toIdx < 0 || fromIdx == toIdx {
		return q64.Q64{}, clamerr.Wrap(clamerr.OracleStale, "insufficient observations to bracket the requested window")
	}

	cumFrom := recs[fromIdx].TickCumulative
	cumTo := recs[toIdx].TickCumulative
	tsFrom := int64(recs[fromIdx].Timestamp)
	tsTo := int64(recs[toIdx].Timestamp)
	if tsTo == tsFrom {
		return q64.Q64{}, clamerr.Wrap(clamerr.OracleStale, "bracketing observations share a timestamp")
	}

	avgTick := (cumTo - cumFrom) / (tsTo - tsFrom)
	return tickmath.ToSqrtPrice(tickmath.Tick(avgTick))
}

// Cardinality reports the ring's current and staged-next cardinality.
func (o *Oracle) Cardinality() (current, next uint16) {
	return o.cardinality, o.cardinalityNext
}

// Count reports how many valid observations are currently retained.
func (o *Oracle) Count() uint16 {
	return o.count
}
