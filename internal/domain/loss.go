package domain

import "math"

// epsilon guards every division by a rate/return that could be zero (§9:
// central is_finite guard).
const epsilon = 1e-9

// LossLedger records realized entry/exit costs per position and exposes the
// break-even projections LossTracker and Rebalancer consume. The core keeps
// exactly one LossLedger per strategy instance.
type LossLedger struct {
	entryCosts map[string]float64 // keyed by position key (venue:normalizedSymbol)
	realized   map[string]float64 // realized loss (positive) or gain (negative)
	cumulative float64
}

// NewLossLedger returns an empty ledger.
func NewLossLedger() *LossLedger {
	return &LossLedger{
		entryCosts: make(map[string]float64),
		realized:   make(map[string]float64),
	}
}

// RecordEntry stores the fees paid opening a position.
func (l *LossLedger) RecordEntry(key string, entryCost float64) {
	l.entryCosts[key] = entryCost
}

// RecordExit records the realized loss/gain and exit cost for a closed
// position, and folds any net loss into the cumulative total.
func (l *LossLedger) RecordExit(key string, realizedLossOrGain, exitCost float64) {
	l.realized[key] = realizedLossOrGain
	net := l.entryCosts[key] + exitCost + realizedLossOrGain
	if net > 0 {
		l.cumulative += net
	}
	delete(l.entryCosts, key)
}

// CumulativeLoss is the running scalar loss across the strategy's lifetime.
func (l *LossLedger) CumulativeLoss() float64 {
	return l.cumulative
}

// RemainingBreakEvenHours is (unrecovered-costs - accrued-funding) /
// max(epsilon, fundingPerHour); Inf when fundingPerHour <= 0.
func RemainingBreakEvenHours(unrecoveredCosts, accruedFunding, fundingPerHour float64) float64 {
	if fundingPerHour <= 0 {
		return math.Inf(1)
	}
	return (unrecoveredCosts - accruedFunding) / math.Max(epsilon, fundingPerHour)
}

// AdjustedBreakEvenInput bundles the terms AdjustedBreakEvenHours needs.
type AdjustedBreakEvenInput struct {
	HourlyReturn float64
	EntryCosts   float64
	ExitCosts    float64
}

// AdjustedBreakEvenHours is (entryCosts + exitCosts + cumulativeLoss) /
// max(epsilon, hourlyReturn); Inf when hourlyReturn <= 0.
func AdjustedBreakEvenHours(in AdjustedBreakEvenInput, cumulativeLoss float64) float64 {
	if in.HourlyReturn <= 0 {
		return math.Inf(1)
	}
	return (in.EntryCosts + in.ExitCosts + cumulativeLoss) / math.Max(epsilon, in.HourlyReturn)
}
