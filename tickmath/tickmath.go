// Package tickmath converts between the discrete tick coordinate and the
// Q64.64 sqrt-price coordinate (spec.md §4.2). price(t) = 1.0001^t;
// sqrt_price(t) = 1.0001^(t/2). Every operation here is pure integer math
// over github.com/holiman/uint256's 256-bit intermediate -- no floating
// point ever touches a value that is compared bit-exactly across hosts
// (spec.md §5 Determinism).
package tickmath

import (
	"sync"

	"github.com/holiman/uint256"

	"github.com/CoinSummer/clamm-core/clamconst"
	"github.com/CoinSummer/clamm-core/clamerr"
	"github.com/CoinSummer/clamm-core/q64"
)

// Tick is the discrete price coordinate: price(t) = 1.0001^t.
type Tick int32

// powersOfSqrt1_0001 holds floor(sqrt(1.0001)^(2^i) * 2^64) for
// i = 0..len-1, precomputed to 50 decimal digits of intermediate precision.
// clamconst.MaxTick has bit length 19, so 19 entries (i=0..18) cover every
// addressable tick.
var powersOfSqrt1_0001 = [19]string{
	"0x1000346d6ff11672a",
	"0x100068db8bac710cb",
	"0x1000d1b9c68abe5f7",
	"0x1001a37e4a234cb08",
	"0x100347278ab0e92ad",
	"0x10068efb00a525480",
	"0x100d20a63b4173839",
	"0x101a4c11c742dd772",
	"0x1034c35c31f64cfa6",
	"0x106a34b78c8aaffbf",
	"0x10d72a6a46ccd8bce",
	"0x11b9a258e63928596",
	"0x13a2e2bda04f8379f",
	"0x181954be69e0da8fe",
	"0x244c2655d185a0290",
	"0x525816eeb9f935b1c",
	"0x1a7c8d00b551684ff4",
	"0x2bd893d0b2df7c97884",
	"0x78278e1e19e448cf8b95d",
}

var (
	powersOnce sync.Once
	powers     [19]*uint256.Int
)

func loadPowers() {
	for i, hex := range powersOfSqrt1_0001 {
		v, err := uint256.FromHex(hex)
		if err != nil {
			panic("tickmath: malformed embedded constant: " + err.Error())
		}
		powers[i] = v
	}
}

// MinSqrtPrice and MaxSqrtPrice are the sqrt-prices at clamconst.MinTick and
// clamconst.MaxTick, computed once and cached.
var (
	minMaxOnce    sync.Once
	minSqrtPrice  q64.Q64
	maxSqrtPrice  q64.Q64
)

func loadMinMax() {
	p, err := tickToSqrtPriceUnclamped(Tick(clamconst.MinTick))
	if err != nil {
		panic("tickmath: failed to compute MIN_SQRT_PRICE: " + err.Error())
	}
	minSqrtPrice = p
	p, err = tickToSqrtPriceUnclamped(Tick(clamconst.MaxTick))
	if err != nil {
		panic("tickmath: failed to compute MAX_SQRT_PRICE: " + err.Error())
	}
	maxSqrtPrice = p
}

// MinSqrtPrice returns the sqrt-price at clamconst.MinTick.
func MinSqrtPrice() q64.Q64 {
	minMaxOnce.Do(loadMinMax)
	return minSqrtPrice
}

// MaxSqrtPrice returns the sqrt-price at clamconst.MaxTick.
func MaxSqrtPrice() q64.Q64 {
	minMaxOnce.Do(loadMinMax)
	return maxSqrtPrice
}

// ToSqrtPrice computes sqrt_price(t) = 1.0001^(t/2) in Q64.64, rejecting
// ticks outside [MinTick, MaxTick].
func ToSqrtPrice(t Tick) (q64.Q64, error) {
	if int32(t) < clamconst.MinTick || int32(t) > clamconst.MaxTick {
		return q64.Q64{}, clamerr.Wrap(clamerr.OutOfRange, "tick outside [MinTick, MaxTick]")
	}
	return tickToSqrtPriceUnclamped(t)
}

func tickToSqrtPriceUnclamped(t Tick) (q64.Q64, error) {
	powersOnce.Do(loadPowers)

	absTick := int64(t)
	negative := absTick < 0
	if negative {
		absTick = -absTick
	}

	ratio := new(uint256.Int).SetUint64(1)
	ratio.Lsh(ratio, clamconst.FracBits) // 1.0 in Q64.64

	for i := 0; i < len(powers); i++ {
		if absTick&(1<<uint(i)) == 0 {
			continue
		}
		var prod uint256.Int
		prod.Mul(ratio, powers[i])
		prod.Rsh(&prod, clamconst.FracBits)
		ratio = &prod
	}

	if negative {
		// Invert: a Q64.64 reciprocal is (2^64 << 64) / ratio.
		one128 := new(uint256.Int).SetUint64(1)
		one128.Lsh(one128, clamconst.FracBits)
		num := new(uint256.Int)
		num.Lsh(one128, clamconst.FracBits)
		inv := new(uint256.Int)
		inv.Div(num, ratio)
		ratio = inv
	}

	return q64.FromRaw(ratio)
}

// ToTick returns the greatest tick t with sqrt_price(t) <= p, i.e. the
// inverse of ToSqrtPrice, monotonic and total over [MinSqrtPrice, MaxSqrtPrice].
func ToTick(p q64.Q64) (Tick, error) {
	minMaxOnce.Do(loadMinMax)
	if p.LessThan(minSqrtPrice) || p.GreaterThan(maxSqrtPrice) {
		return 0, clamerr.Wrap(clamerr.OutOfRange, "sqrt price outside [MinSqrtPrice, MaxSqrtPrice]")
	}

	lo, hi := locateCheckpointWindow(p)
	for lo < hi {
		mid := lo + (hi-lo+1)/2
		midPrice, err := tickToSqrtPriceUnclamped(Tick(mid))
		if err != nil {
			return 0, err
		}
		if midPrice.LessThan(p) || midPrice.Equal(p) {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return Tick(lo), nil
}

// checkpointStep matches spec.md §4.2's "one entry per ~10000 ticks" coarse
// table; built once from the exact function rather than hand-carried,
// which keeps it trivially consistent with the constants above.
const checkpointStep = 10_000

type checkpoint struct {
	tick  int32
	price q64.Q64
}

var (
	checkpointsOnce sync.Once
	checkpoints     []checkpoint
)

func loadCheckpoints() {
	for t := clamconst.MinTick; ; t += checkpointStep {
		if t > clamconst.MaxTick {
			t = clamconst.MaxTick
		}
		p, err := tickToSqrtPriceUnclamped(Tick(t))
		if err != nil {
			panic("tickmath: failed to build checkpoint table: " + err.Error())
		}
		checkpoints = append(checkpoints, checkpoint{tick: t, price: p})
		if t == clamconst.MaxTick {
			break
		}
	}
}

// locateCheckpointWindow returns an inclusive [lo, hi] tick window of at
// most checkpointStep ticks known to contain the answer, via a coarse
// binary search over the checkpoint table.
func locateCheckpointWindow(p q64.Q64) (int32, int32) {
	checkpointsOnce.Do(loadCheckpoints)

	lo, hi := 0, len(checkpoints)-1
	for lo < hi {
		mid := lo + (hi-lo+1)/2
		if checkpoints[mid].price.LessThan(p) || checkpoints[mid].price.Equal(p) {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	windowLo := checkpoints[lo].tick
	windowHi := clamconst.MaxTick
	if lo+1 < len(checkpoints) {
		windowHi = checkpoints[lo+1].tick
	}
	return windowLo, windowHi
}

// AlignToSpacing reports whether t is a multiple of spacing, as spec.md §3
// requires for every addressable tick.
func AlignToSpacing(t Tick, spacing uint16) bool {
	if spacing == 0 {
		return false
	}
	return int32(t)%int32(spacing) == 0
}

// FloorToSpacing rounds t down to the nearest multiple of spacing.
func FloorToSpacing(t Tick, spacing uint16) Tick {
	s := int32(spacing)
	r := int32(t) % s
	if r < 0 {
		r += s
	}
	return Tick(int32(t) - r)
}

// CeilToSpacing rounds t up to the nearest multiple of spacing.
func CeilToSpacing(t Tick, spacing uint16) Tick {
	floor := FloorToSpacing(t, spacing)
	if floor == t {
		return t
	}
	return Tick(int32(floor) + int32(spacing))
}
