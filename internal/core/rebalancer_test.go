package core

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mdelgado-fx/fundingarb/internal/domain"
)

func TestRebalancerInstantlyProfitable(t *testing.T) {
	r := NewRebalancer(NewLossTracker(domain.NewLossLedger()))
	current := domain.Position{Venue: "A", Symbol: "BTC", Side: domain.Long}
	newPlan := domain.ExecutionPlan{
		Opportunity:                domain.Opportunity{LongFundingRate: 0.001, ShortFundingRate: -0.001},
		ExpectedNetReturnPerPeriod: 1.0,
	}

	d := r.Decide("A:BTC", current, 0.0001, 10_000, newPlan, 10_000)
	assert.True(t, d.Rebalance)
	assert.Contains(t, d.Reason, "instantly profitable")
}

func TestRebalancerHoldsWhenNeitherBreaksEven(t *testing.T) {
	r := NewRebalancer(NewLossTracker(domain.NewLossLedger()))
	current := domain.Position{Venue: "A", Symbol: "BTC", Side: domain.Long}
	newPlan := domain.ExecutionPlan{
		Opportunity:                domain.Opportunity{LongFundingRate: 0, ShortFundingRate: 0},
		ExpectedNetReturnPerPeriod: -1.0,
	}

	d := r.Decide("A:BTC", current, 0, 10_000, newPlan, 10_000)
	assert.False(t, d.Rebalance)
}

func TestCurrentFundingRateFlipsForShort(t *testing.T) {
	assert.Equal(t, 0.001, CurrentFundingRate(domain.Long, 0.001))
	assert.Equal(t, -0.001, CurrentFundingRate(domain.Short, 0.001))
}
