package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mdelgado-fx/fundingarb/internal/adapters/simulated"
	"github.com/mdelgado-fx/fundingarb/internal/domain"
	"github.com/mdelgado-fx/fundingarb/internal/ports"
)

func twoVenueFixture(symbol string, oiUsd float64) (map[string]ports.VenueAdapter, domain.Opportunity) {
	venueA := simulated.NewVenue("venueA", 100_000)
	venueB := simulated.NewVenue("venueB", 100_000)
	venueA.SetMarket(symbol, simulated.MarketState{MarkPrice: 50_000, FundingRate: -1e-4, OpenInterestUsd: oiUsd, SpreadBps: 2, BidDepthUsd: 500_000, AskDepthUsd: 500_000})
	venueB.SetMarket(symbol, simulated.MarketState{MarkPrice: 50_000, FundingRate: 5e-4, OpenInterestUsd: oiUsd, SpreadBps: 2, BidDepthUsd: 500_000, AskDepthUsd: 500_000})

	opp := domain.Opportunity{
		Symbol: symbol, LongVenue: "venueA", ShortVenue: "venueB",
		LongFundingRate: -1e-4, ShortFundingRate: 5e-4,
		LongOpenInterestUsd: oiUsd, ShortOpenInterestUsd: oiUsd,
	}
	return map[string]ports.VenueAdapter{"venueA": venueA, "venueB": venueB}, opp
}

func TestExecutionPlanBuilderBuildsValidPlan(t *testing.T) {
	venues, opp := twoVenueFixture("BTC", 5_000_000)
	builder := NewExecutionPlanBuilder(venues, flatFeeRate, 2.0)

	plan, err := builder.Build(context.Background(), opp, 10_000, 10_000, 0)

	assert.NoError(t, err)
	assert.Greater(t, plan.BaseAssetSize, 0.0)
	assert.Greater(t, plan.ExpectedNetReturnPerPeriod, 0.0)
	assert.Equal(t, domain.Limit, plan.LongOrder.Type)
}

func TestExecutionPlanBuilderRejectsUnknownVenue(t *testing.T) {
	venues, opp := twoVenueFixture("BTC", 5_000_000)
	opp.LongVenue = "venueZ"
	builder := NewExecutionPlanBuilder(venues, flatFeeRate, 2.0)

	_, err := builder.Build(context.Background(), opp, 10_000, 10_000, 0)

	var coreErr *domain.CoreError
	assert.ErrorAs(t, err, &coreErr)
	assert.Equal(t, domain.AdapterUnavailable, coreErr.Kind)
}

func TestExecutionPlanBuilderRejectsBelowMinPositionUsd(t *testing.T) {
	venues, opp := twoVenueFixture("BTC", 5_000_000)
	builder := NewExecutionPlanBuilder(venues, flatFeeRate, 2.0)

	_, err := builder.Build(context.Background(), opp, 1, 1, 0)

	var coreErr *domain.CoreError
	assert.ErrorAs(t, err, &coreErr)
	assert.Equal(t, domain.InsufficientCapital, coreErr.Kind)
}

func TestExecutionPlanBuilderRejectsLowOpenInterest(t *testing.T) {
	venues, opp := twoVenueFixture("BTC", 1_000)
	builder := NewExecutionPlanBuilder(venues, flatFeeRate, 2.0)

	_, err := builder.Build(context.Background(), opp, 10_000, 10_000, 0)

	var coreErr *domain.CoreError
	assert.ErrorAs(t, err, &coreErr)
	assert.Equal(t, domain.InsufficientLiquidity, coreErr.Kind)
}

func TestExecutionPlanBuilderCapsAtMaxPositionCap(t *testing.T) {
	venues, opp := twoVenueFixture("BTC", 5_000_000)
	builder := NewExecutionPlanBuilder(venues, flatFeeRate, 2.0)

	plan, err := builder.Build(context.Background(), opp, 10_000, 10_000, 5_000)

	assert.NoError(t, err)
	// notional capped at 5000 -> baseSize ~= 5000/50000 = 0.1
	assert.InDelta(t, 0.1, plan.BaseAssetSize, 0.01)
}
