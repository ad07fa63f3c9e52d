package core

import (
	"math"

	"github.com/mdelgado-fx/fundingarb/internal/domain"
)

// RebalanceDecision is the outcome of comparing a held pair against a newly
// proposed plan (§4.6).
type RebalanceDecision struct {
	Rebalance  bool
	Reason     string
	HoursSaved float64
}

// Rebalancer decides whether to replace a current pair with a newly
// proposed plan, applying the decision rules of §4.6 in order.
type Rebalancer struct {
	losses *LossTracker
}

// NewRebalancer wires the shared LossTracker both the current position's
// break-even and the new plan's adjusted break-even are computed from.
func NewRebalancer(losses *LossTracker) *Rebalancer {
	return &Rebalancer{losses: losses}
}

// Decide implements §4.6's decision rules in order. currentPositionKey is
// the venue:normalizedSymbol key used to look up the current position's
// entry cost and accrued funding in the LossTracker.
func (r *Rebalancer) Decide(currentPositionKey string, currentPosition domain.Position, rawCurrentFundingRate, currentNotional float64, newPlan domain.ExecutionPlan, newNotional float64) RebalanceDecision {
	currentFundingRate := CurrentFundingRate(currentPosition.Side, rawCurrentFundingRate)
	currentBreakEven := r.losses.RemainingBreakEvenHours(currentPositionKey, currentFundingRate, currentNotional)

	newHourlyReturn := (newPlan.Opportunity.ExpectedAPY(periodsPerYear) / periodsPerYear) * newNotional
	newBreakEven := r.losses.AdjustedBreakEvenHours(newHourlyReturn, newPlan.EstimatedCosts.EntryFees/2, newPlan.EstimatedCosts.ExitFees/2)

	if newPlan.ExpectedNetReturnPerPeriod > 0 {
		return RebalanceDecision{Rebalance: true, Reason: "instantly profitable"}
	}

	currentInf := math.IsInf(currentBreakEven, 1)
	newInf := math.IsInf(newBreakEven, 1)

	if currentInf && !newInf {
		return RebalanceDecision{Rebalance: true, Reason: "current position never breaks even, new plan does"}
	}
	if currentInf && newInf {
		return RebalanceDecision{Rebalance: false, Reason: "neither position breaks even"}
	}
	if newBreakEven < currentBreakEven {
		return RebalanceDecision{Rebalance: true, Reason: "faster break-even", HoursSaved: currentBreakEven - newBreakEven}
	}
	return RebalanceDecision{Rebalance: false, Reason: "current position breaks even sooner or equally fast"}
}

// CurrentFundingRate reads the raw funding rate for a position's side,
// flipping sign when the position is SHORT (§4.6 step 1).
func CurrentFundingRate(side domain.OrderSide, rawRate float64) float64 {
	if side == domain.Short {
		return -rawRate
	}
	return rawRate
}
