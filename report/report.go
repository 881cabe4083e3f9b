// Package report converts internal Q64.64/u128 engine state into
// human-readable decimal figures for logs, dashboards, and the demo CLI.
// It is strictly a host-facing presentation layer: nothing here sits on
// the swap/accounting critical path, and no engine decision ever depends
// on a value computed in this package (bit-exactness lives upstream).
package report

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/CoinSummer/clamm-core/pool"
	"github.com/CoinSummer/clamm-core/q64"
	"github.com/CoinSummer/clamm-core/rebalance"
)

var twoPow64 = decimal.NewFromBigInt(new(big.Int).Lsh(big.NewInt(1), 64), 0)

// Q64ToDecimal converts a Q64.64 value to its equivalent decimal.Decimal,
// rounded to dp decimal places.
func Q64ToDecimal(v q64.Q64, dp int32) decimal.Decimal {
	raw := decimal.NewFromBigInt(v.Raw().ToBig(), 0)
	return raw.DivRound(twoPow64, dp)
}

// Price converts a Q64.64 sqrt-price into the human-readable price
// (token B per token A), rounded to dp decimal places.
func Price(sqrtPrice q64.Q64, dp int32) decimal.Decimal {
	p := Q64ToDecimal(sqrtPrice, dp+6)
	return p.Mul(p).Round(dp)
}

// PoolSummary is a snapshot of a pool's state in reporting-friendly units.
type PoolSummary struct {
	TokenA      string
	TokenB      string
	FeeTierBps  uint16
	Price       decimal.Decimal
	CurrentTick int32
	Liquidity   decimal.Decimal
}

// Summarize renders a pool's current state for a log line or dashboard row.
func Summarize(p *pool.Pool) PoolSummary {
	return PoolSummary{
		TokenA:      p.TokenA.Hex(),
		TokenB:      p.TokenB.Hex(),
		FeeTierBps:  p.FeeTierBps,
		Price:       Price(p.SqrtPrice, 8),
		CurrentTick: int32(p.CurrentTick),
		Liquidity:   decimal.NewFromBigInt(p.Liquidity, 0).DivRound(twoPow64, 8),
	}
}

func (s PoolSummary) String() string {
	return fmt.Sprintf("pool %s/%s fee=%dbps price=%s tick=%d liquidity=%s",
		s.TokenA, s.TokenB, s.FeeTierBps, s.Price.String(), s.CurrentTick, s.Liquidity.String())
}

// SwapSummary renders a completed swap's amounts in plain decimal, given
// the token decimals of the consumed/produced side.
type SwapSummary struct {
	AmountIn  decimal.Decimal
	AmountOut decimal.Decimal
	FeePaid   decimal.Decimal
	PriceAfter decimal.Decimal
}

// SummarizeSwap renders a pool.SwapResult using decimalsIn/decimalsOut to
// scale the raw integer token amounts (e.g. 6 for USDC, 18 for most ERC-20s).
func SummarizeSwap(result pool.SwapResult, decimalsIn, decimalsOut int32) SwapSummary {
	return SwapSummary{
		AmountIn:   decimal.NewFromBigInt(result.AmountIn, 0).Shift(-decimalsIn),
		AmountOut:  decimal.NewFromBigInt(result.AmountOut, 0).Shift(-decimalsOut),
		FeePaid:    decimal.NewFromBigInt(result.FeeAmount, 0).Shift(-decimalsIn),
		PriceAfter: Price(result.SqrtPriceAfter, 8),
	}
}

// RebalanceSummary renders a rebalance.Proposal for a human reader.
type RebalanceSummary struct {
	NewLower         int32
	NewUpper         int32
	ILPercent        decimal.Decimal
	BreakevenFeeDays decimal.Decimal
	Volatility       decimal.Decimal
}

// SummarizeProposal renders a rebalance proposal.
func SummarizeProposal(p *rebalance.Proposal) RebalanceSummary {
	return RebalanceSummary{
		NewLower:         int32(p.NewLower),
		NewUpper:         int32(p.NewUpper),
		ILPercent:        p.ILEstimate.Mul(decimal.NewFromInt(100)).Round(4),
		BreakevenFeeDays: p.Report.BreakevenFeeDays.Round(1),
		Volatility:       p.Volatility.Mul(decimal.NewFromInt(100)).Round(2),
	}
}

func (s RebalanceSummary) String() string {
	return fmt.Sprintf("rebalance -> [%d, %d) il=%s%% breakeven=%sd volatility=%s%%",
		s.NewLower, s.NewUpper, s.ILPercent.String(), s.BreakevenFeeDays.String(), s.Volatility.String())
}
