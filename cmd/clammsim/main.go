// Command clammsim is a small demo driver for the CLAMM core: it wires a
// pool (or a chain of pools), runs one of a few canned scenarios against
// it, and prints the result through the report package. It exists to
// exercise the library end to end, not as a production trading tool.
package main

import (
	"flag"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/CoinSummer/clamm-core/clamconst"
	"github.com/CoinSummer/clamm-core/pool"
	"github.com/CoinSummer/clamm-core/q64"
	"github.com/CoinSummer/clamm-core/rebalance"
	"github.com/CoinSummer/clamm-core/report"
	"github.com/CoinSummer/clamm-core/router"
	"github.com/CoinSummer/clamm-core/tickmath"
)

var log = logrus.WithField("component", "clammsim")

func main() {
	scenario := flag.String("scenario", "swap", "demo scenario to run: swap|multihop|rebalance")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	var err error
	switch *scenario {
	case "swap":
		err = runSingleSwap()
	case "multihop":
		err = runMultiHop()
	case "rebalance":
		err = runRebalance()
	default:
		err = fmt.Errorf("unknown scenario %q (want swap|multihop|rebalance)", *scenario)
	}
	if err != nil {
		log.WithError(err).Error("scenario failed")
		os.Exit(1)
	}
}

func demoTokens(suffix byte) (common.Address, common.Address) {
	a := common.Address{}
	b := common.Address{}
	a[19] = suffix
	b[19] = suffix + 1
	return a, b
}

func liquidityUnits(n int64) *big.Int {
	return new(big.Int).Lsh(big.NewInt(n), clamconst.FracBits)
}

func runSingleSwap() error {
	tokenA, tokenB := demoTokens(0x01)
	owner := common.Address{0x0A}

	spacing, _ := clamconst.TickSpacingForFeeTier(clamconst.FeeTierMedium)
	p, err := pool.NewPool(tokenA, tokenB, uint16(clamconst.FeeTierMedium), spacing, q64.One())
	if err != nil {
		return err
	}

	if _, err := p.ModifyLiquidity(owner, -60, 60, liquidityUnits(10_000)); err != nil {
		return err
	}
	log.Info(report.Summarize(p).String())

	limit, err := tickmath.ToSqrtPrice(-60)
	if err != nil {
		return err
	}
	result, err := p.Swap(true, big.NewInt(100), limit)
	if err != nil {
		return err
	}
	swapSummary := report.SummarizeSwap(result, 6, 6)
	log.WithFields(logrus.Fields{
		"amount_in":  swapSummary.AmountIn.String(),
		"amount_out": swapSummary.AmountOut.String(),
		"fee_paid":   swapSummary.FeePaid.String(),
	}).Info("swap executed")
	log.Info(report.Summarize(p).String())
	return nil
}

func runMultiHop() error {
	owner := common.Address{0x0A}
	tokenA, tokenB := demoTokens(0x01)
	_, tokenC := demoTokens(0x03)
	_, tokenD := demoTokens(0x05)

	spacing, _ := clamconst.TickSpacingForFeeTier(clamconst.FeeTierMedium)

	poolAB, err := pool.NewPool(tokenA, tokenB, uint16(clamconst.FeeTierMedium), spacing, q64.One())
	if err != nil {
		return err
	}
	poolBC, err := pool.NewPool(tokenB, tokenC, uint16(clamconst.FeeTierMedium), spacing, q64.One())
	if err != nil {
		return err
	}
	poolCD, err := pool.NewPool(tokenC, tokenD, uint16(clamconst.FeeTierMedium), spacing, q64.One())
	if err != nil {
		return err
	}

	for _, p := range []*pool.Pool{poolAB, poolBC, poolCD} {
		if _, err := p.ModifyLiquidity(owner, -600, 600, liquidityUnits(1_000_000)); err != nil {
			return err
		}
	}

	hops := []router.Hop{
		{Pool: poolAB, ZeroForOne: true, PriceLimit: tickmath.MinSqrtPrice()},
		{Pool: poolBC, ZeroForOne: true, PriceLimit: tickmath.MinSqrtPrice()},
		{Pool: poolCD, ZeroForOne: true, PriceLimit: tickmath.MinSqrtPrice()},
	}

	amountIn := big.NewInt(1000)
	out, err := router.MultiHopSwap(hops, amountIn, big.NewInt(900))
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"amount_in":  amountIn.String(),
		"amount_out": out.String(),
		"hops":       len(hops),
	}).Info("multi-hop swap executed")
	return nil
}

func runRebalance() error {
	entry := q64.One()
	current, err := tickmath.ToSqrtPrice(800)
	if err != nil {
		return err
	}

	samples := make([]rebalance.PriceSample, 0, 11)
	ticks := []int32{0, 100, 50, 200, 150, 300, 250, 400, 350, 500, 800}
	for i, tick := range ticks {
		sp, err := tickmath.ToSqrtPrice(tickmath.Tick(tick))
		if err != nil {
			return err
		}
		samples = append(samples, rebalance.PriceSample{Timestamp: uint32(i * 3600), SqrtPrice: sp})
	}

	pos := rebalance.PositionSnapshot{
		Lower:                  -60,
		Upper:                  60,
		TickSpacing:            60,
		EntrySqrtPrice:         entry,
		CurrentSqrtPrice:       current,
		Now:                    1_000_000,
		LastRebalanceTimestamp: 0,
		ValueUSD:               decimal.NewFromInt(100_000),
		RebalanceCostUSD:       decimal.NewFromInt(5),
	}

	proposal, err := rebalance.Propose(pos, samples)
	if err != nil {
		return err
	}
	log.Info(report.SummarizeProposal(proposal).String())
	return nil
}

