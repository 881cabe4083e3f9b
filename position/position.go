// Package position tracks LP positions keyed by (owner, lower, upper) and
// their fee-growth-inside snapshots (spec.md §4.5).
package position

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/CoinSummer/clamm-core/clamerr"
	"github.com/CoinSummer/clamm-core/q64"
	"github.com/CoinSummer/clamm-core/tickmath"
)

// Key uniquely identifies a position: (owner, lower, upper).
type Key struct {
	Owner common.Address
	Lower tickmath.Tick
	Upper tickmath.Tick
}

// Position is the per-LP state for one tick range. Liquidity==0 is a
// tombstone: still consulted for fee collection until explicitly closed
// (spec.md §3).
type Position struct {
	Liquidity            *big.Int // u128 >= 0
	FeeGrowthInsideALast q64.Q64
	FeeGrowthInsideBLast q64.Q64
	TokensOwedA          uint64
	TokensOwedB          uint64
}

// New returns a zeroed position.
func New() *Position {
	return &Position{Liquidity: new(big.Int)}
}

// Book is the pool's position map.
type Book struct {
	m map[Key]*Position
}

// NewBook returns an empty position book.
func NewBook() *Book {
	return &Book{m: make(map[Key]*Position)}
}

// Get returns the position at key, or nil if never opened.
func (b *Book) Get(k Key) *Position {
	return b.m[k]
}

// GetOrCreate returns the position at key, creating a zeroed tombstone entry
// if absent.
func (b *Book) GetOrCreate(k Key) *Position {
	p, ok := b.m[k]
	if !ok {
		p = New()
		b.m[k] = p
	}
	return p
}

// ValidateRange enforces spec.md §3's position invariant: lower < upper,
// both spacing-aligned.
func ValidateRange(lower, upper tickmath.Tick, spacing uint16) error {
	if lower >= upper {
		return clamerr.Wrap(clamerr.InvalidPriceRange, "lower must be < upper")
	}
	if !tickmath.AlignToSpacing(lower, spacing) || !tickmath.AlignToSpacing(upper, spacing) {
		return clamerr.Wrap(clamerr.TickNotAligned, "lower/upper must be multiples of tick spacing")
	}
	return nil
}

var maxU128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// ApplyLiquidityDelta applies delta (signed) to the position's liquidity,
// rejecting negatives that would exceed the current amount (spec.md §4.5
// step 3: "reject negatives exceeding current").
func (p *Position) ApplyLiquidityDelta(delta *big.Int) error {
	next := new(big.Int).Add(p.Liquidity, delta)
	if next.Sign() < 0 {
		return clamerr.Wrap(clamerr.InsufficientLiquidity, "liquidity delta would underflow position")
	}
	if next.Cmp(maxU128) > 0 {
		return clamerr.Wrap(clamerr.MathOverflow, "position liquidity exceeds u128")
	}
	p.Liquidity = next
	return nil
}

// AccrueFees credits tokens_owed from the change in fee-growth-inside since
// the last snapshot, per spec.md §4.5 step 2:
// tokens_owed += liquidity_before * (fee_growth_inside_now - fee_growth_inside_last) / 2^64.
// liquidityBefore is the position's liquidity *before* any delta in this
// same call is applied, matching the spec's ordering (snapshot before the
// liquidity change lands).
func (p *Position) AccrueFees(liquidityBefore *big.Int, feeGrowthInsideNowA, feeGrowthInsideNowB q64.Q64) error {
	deltaA := feeGrowthInsideNowA.WrappingSub(p.FeeGrowthInsideALast)
	deltaB := feeGrowthInsideNowB.WrappingSub(p.FeeGrowthInsideBLast)

	owedA, err := feeShare(liquidityBefore, deltaA)
	if err != nil {
		return err
	}
	owedB, err := feeShare(liquidityBefore, deltaB)
	if err != nil {
		return err
	}

	p.TokensOwedA = addU64Checked(p.TokensOwedA, owedA)
	p.TokensOwedB = addU64Checked(p.TokensOwedB, owedB)
	p.FeeGrowthInsideALast = feeGrowthInsideNowA
	p.FeeGrowthInsideBLast = feeGrowthInsideNowB
	return nil
}

func feeShare(liquidity *big.Int, feeGrowthDelta q64.Q64) (uint64, error) {
	if liquidity.Sign() == 0 || feeGrowthDelta.IsZero() {
		return 0, nil
	}
	product := new(big.Int).Mul(liquidity, feeGrowthDelta.Raw().ToBig())
	shifted := new(big.Int).Rsh(product, 64)
	if !shifted.IsUint64() {
		return 0, clamerr.Wrap(clamerr.MathOverflow, "fee share exceeds u64")
	}
	return shifted.Uint64(), nil
}

func addU64Checked(a, b uint64) uint64 {
	sum := a + b
	if sum < a {
		// Saturate rather than wrap: an overflowed fee balance is a bug
		// elsewhere, but silently wrapping owed tokens would be worse.
		return ^uint64(0)
	}
	return sum
}

// CollectFees zeroes tokens_owed and reports the amounts collected
// (spec.md §4.5: "collect_fees() transfers tokens_owed_{a,b} to zero").
func (p *Position) CollectFees() (uint64, uint64) {
	a, b := p.TokensOwedA, p.TokensOwedB
	p.TokensOwedA, p.TokensOwedB = 0, 0
	return a, b
}
