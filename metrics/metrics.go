// Package metrics exposes Prometheus counters and gauges for the engine's
// hot operations: swaps, tick crossings, oracle writes, and rebalance
// decisions. A host scrapes these; the core itself never depends on them.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	swapsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clamm_swaps_total",
			Help: "Swaps executed, by direction.",
		},
		[]string{"direction"}, // zero_for_one|one_for_zero
	)

	swapStepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clamm_swap_steps_total",
			Help: "Per-swap-step iterations across all swaps.",
		},
		[]string{"direction"},
	)

	tickCrossesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "clamm_tick_crosses_total",
			Help: "Ticks crossed during swap execution.",
		},
	)

	liquidityModifiedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clamm_liquidity_modified_total",
			Help: "Liquidity modifications, by direction.",
		},
		[]string{"direction"}, // mint|burn
	)

	oracleWritesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "clamm_oracle_writes_total",
			Help: "Oracle observations recorded.",
		},
	)

	oracleCardinality = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "clamm_oracle_cardinality",
			Help: "Current oracle ring-buffer cardinality.",
		},
	)

	rebalanceDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clamm_rebalance_decisions_total",
			Help: "Rebalance proposals evaluated, by outcome.",
		},
		[]string{"outcome"}, // proposed|cooldown|not_beneficial
	)

	activeLiquidity = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clamm_active_liquidity",
			Help: "Current in-range liquidity, by pool label.",
		},
		[]string{"pool"},
	)
)

func init() {
	prometheus.MustRegister(swapsTotal, swapStepsTotal, tickCrossesTotal)
	prometheus.MustRegister(liquidityModifiedTotal)
	prometheus.MustRegister(oracleWritesTotal, oracleCardinality)
	prometheus.MustRegister(rebalanceDecisionsTotal)
	prometheus.MustRegister(activeLiquidity)
}

// IncSwap records one completed swap in the given direction.
func IncSwap(zeroForOne bool) { swapsTotal.WithLabelValues(direction(zeroForOne)).Inc() }

// AddSwapSteps accumulates the number of per-step loop iterations a swap took.
func AddSwapSteps(zeroForOne bool, steps int) {
	swapStepsTotal.WithLabelValues(direction(zeroForOne)).Add(float64(steps))
}

// IncTickCross records one tick crossing.
func IncTickCross() { tickCrossesTotal.Inc() }

// IncLiquidityModified records one mint (delta > 0) or burn (delta <= 0).
func IncLiquidityModified(isMint bool) {
	label := "burn"
	if isMint {
		label = "mint"
	}
	liquidityModifiedTotal.WithLabelValues(label).Inc()
}

// IncOracleWrite records one oracle observation write.
func IncOracleWrite() { oracleWritesTotal.Inc() }

// SetOracleCardinality reports the oracle's current cardinality.
func SetOracleCardinality(n uint16) { oracleCardinality.Set(float64(n)) }

// IncRebalanceDecision records one rebalance evaluation outcome:
// "proposed", "cooldown", or "not_beneficial".
func IncRebalanceDecision(outcome string) { rebalanceDecisionsTotal.WithLabelValues(outcome).Inc() }

// SetActiveLiquidity reports a pool's current in-range liquidity as a
// float64; precision loss beyond 2^53 is acceptable for a dashboard gauge.
func SetActiveLiquidity(poolLabel string, liquidity float64) {
	activeLiquidity.WithLabelValues(poolLabel).Set(liquidity)
}

func direction(zeroForOne bool) string {
	if zeroForOne {
		return "zero_for_one"
	}
	return "one_for_zero"
}
