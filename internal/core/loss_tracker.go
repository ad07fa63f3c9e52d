package core

import (
	"math"

	"github.com/mdelgado-fx/fundingarb/internal/domain"
)

// LossTracker wraps a domain.LossLedger with the position-keyed break-even
// projections §4.8 specifies. It tracks, per position key, the entry cost
// and funding accrued since entry so remainingBreakEvenHours can net them
// against unrecovered costs.
type LossTracker struct {
	ledger          *domain.LossLedger
	accruedFunding  map[string]float64
	unrecoveredCost map[string]float64
}

// NewLossTracker wraps ledger (use domain.NewLossLedger() for a fresh one).
func NewLossTracker(ledger *domain.LossLedger) *LossTracker {
	return &LossTracker{
		ledger:          ledger,
		accruedFunding:  make(map[string]float64),
		unrecoveredCost: make(map[string]float64),
	}
}

// RecordEntry stores the entry cost for key and resets its accrued funding.
func (t *LossTracker) RecordEntry(key string, entryCost float64) {
	t.ledger.RecordEntry(key, entryCost)
	t.unrecoveredCost[key] = entryCost
	t.accruedFunding[key] = 0
}

// AccrueFunding adds one period's received funding payment to key's running
// total, reducing its unrecovered cost.
func (t *LossTracker) AccrueFunding(key string, fundingPaymentUsd float64) {
	t.accruedFunding[key] += fundingPaymentUsd
}

// RecordExit records realized loss/gain and exit cost and clears key's
// tracking state.
func (t *LossTracker) RecordExit(key string, realizedLossOrGain, exitCost float64) {
	t.ledger.RecordExit(key, realizedLossOrGain, exitCost)
	delete(t.accruedFunding, key)
	delete(t.unrecoveredCost, key)
}

// CumulativeLoss is the running scalar loss across the strategy's lifetime.
func (t *LossTracker) CumulativeLoss() float64 {
	return t.ledger.CumulativeLoss()
}

// RemainingBreakEvenHours computes the hours remaining until key's unrecovered
// costs are paid off by currentFundingRate*positionValueUsd of funding
// income per period. Returns +Inf when the funding rate is non-positive.
func (t *LossTracker) RemainingBreakEvenHours(key string, currentFundingRate, positionValueUsd float64) float64 {
	unrecovered := t.unrecoveredCost[key]
	accrued := t.accruedFunding[key]
	fundingPerHour := currentFundingRate * positionValueUsd
	if fundingPerHour <= 0 {
		return math.Inf(1)
	}
	return domain.RemainingBreakEvenHours(unrecovered, accrued, fundingPerHour)
}

// AdjustedBreakEvenHours projects break-even for a not-yet-entered plan,
// folding in the strategy's cumulative loss (§4.8).
func (t *LossTracker) AdjustedBreakEvenHours(hourlyReturn, entryCosts, exitCosts float64) float64 {
	return domain.AdjustedBreakEvenHours(domain.AdjustedBreakEvenInput{
		HourlyReturn: hourlyReturn,
		EntryCosts:   entryCosts,
		ExitCosts:    exitCosts,
	}, t.ledger.CumulativeLoss())
}
