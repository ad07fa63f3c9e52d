// Package core implements the decision-and-execution subsystem: scoring,
// portfolio allocation, plan construction, paired execution, position
// management, rebalancing, and TWAP slicing. Every exported type here
// depends only on internal/domain and internal/ports — venues, funding
// history, and persistence are external collaborators reached through those
// interfaces.
package core

import "math"

// CostCalculator holds pure, stateless cost-estimation functions shared by
// PortfolioOptimizer, ExecutionPlanBuilder, and PositionManager. Every method
// is deterministic given its inputs — no I/O, no mutable state.
type CostCalculator struct{}

// Fees is notional times the configured maker or taker rate for one leg.
func (CostCalculator) Fees(notionalUsd, feeRate float64) float64 {
	return notionalUsd * feeRate
}

// Slippage estimates the dollar cost of crossing the book for one leg.
// spreadPct defaults to 0.001 when the quote midpoint is non-positive. Base
// slippage is spreadPct/2 for MARKET orders, 1e-4 otherwise. When open
// interest is known, impact is derived from our share of it; otherwise it
// falls back to a flat constant that does not vary with order type beyond
// the market/limit split.
func (CostCalculator) Slippage(notionalUsd, bestBid, bestAsk, openInterestUsd float64, isMarket bool) float64 {
	mid := (bestBid + bestAsk) / 2
	spreadPct := 0.001
	if mid > 0 {
		spreadPct = (bestAsk - bestBid) / mid
	}

	base := 1e-4
	if isMarket {
		base = spreadPct / 2
	}

	var impact float64
	if openInterestUsd > 0 {
		share := notionalUsd / openInterestUsd
		if share > 1 {
			share = 1
		}
		impact = math.Sqrt(share) * spreadPct * 2
		if impact > 0.02 {
			impact = 0.02
		}
	} else {
		impact = 1e-4
		if isMarket {
			impact = 5e-4
		}
	}

	return notionalUsd * (base + impact)
}

// WorstCaseLiquidityFactor reproduces the fallback liquidity estimate used
// when no live book-depth data is available for a venue: log10(OI/1000)/10,
// clamped to [0,1]. This is preserved verbatim, including the degenerate
// behavior for OI under $1k — the unclamped value goes negative there, which
// this function clamps to 0 rather than treating as an error.
func (CostCalculator) WorstCaseLiquidityFactor(openInterestUsd float64) float64 {
	if openInterestUsd <= 0 {
		return 0
	}
	factor := math.Log10(openInterestUsd/1000) / 10
	if factor < 0 {
		return 0
	}
	if factor > 1 {
		return 1
	}
	return factor
}

// FundingRateImpact models how our own notional moves the OI-weighted
// premium index we are trading against, capped to bound over-correction.
// Returns 0 when openInterestUsd is non-positive or currentRate is not
// finite.
func (CostCalculator) FundingRateImpact(notionalUsd, openInterestUsd, currentRate float64) float64 {
	if openInterestUsd <= 0 || math.IsNaN(currentRate) || math.IsInf(currentRate, 0) {
		return 0
	}
	impact := math.Sqrt(notionalUsd/openInterestUsd) * 0.1
	if impact > 0.1 {
		impact = 0.1
	}
	return currentRate * impact
}
