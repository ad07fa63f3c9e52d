package simulated

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mdelgado-fx/fundingarb/internal/domain"
	"github.com/mdelgado-fx/fundingarb/internal/ports"
)

func discoveryFixture() *Discovery {
	venueA := NewVenue("venueA", 100_000)
	venueB := NewVenue("venueB", 100_000)
	venueA.SetMarket("BTC", MarketState{MarkPrice: 50_000, FundingRate: -1e-4, OpenInterestUsd: 5_000_000, SpreadBps: 2, BidDepthUsd: 500_000, AskDepthUsd: 500_000})
	venueB.SetMarket("BTC", MarketState{MarkPrice: 50_000, FundingRate: 5e-4, OpenInterestUsd: 5_000_000, SpreadBps: 2, BidDepthUsd: 500_000, AskDepthUsd: 500_000})
	return NewDiscovery(map[string]*Venue{"venueA": venueA, "venueB": venueB}, []string{"BTC"})
}

func TestDiscoveryFindArbitrageOpportunitiesPairsEveryVenue(t *testing.T) {
	d := discoveryFixture()

	opps, err := d.FindArbitrageOpportunities(context.Background(), []string{"BTC"}, 0)

	assert.NoError(t, err)
	// Every ordered (long, short) venue pair with a matching market produces
	// a candidate: two venues yield both directions.
	assert.Len(t, opps, 2)
	for _, o := range opps {
		assert.True(t, o.Valid())
	}
}

func TestDiscoveryGetAverageSpreadFallsBackToCurrentWithoutHistory(t *testing.T) {
	d := discoveryFixture()

	spread, err := d.GetAverageSpread(context.Background(), "BTC", "venueA", "venueB", -1e-4, 5e-4)

	assert.NoError(t, err)
	assert.InDelta(t, 6e-4, spread, 1e-9)
}

func TestDiscoveryGetAverageSpreadUsesHistoryWhenSeeded(t *testing.T) {
	d := discoveryFixture()
	d.SeedHistory("BTC", "venueA", []ports.HistoricalPoint{{Timestamp: 1, Rate: -2e-4}, {Timestamp: 2, Rate: -2e-4}})
	d.SeedHistory("BTC", "venueB", []ports.HistoricalPoint{{Timestamp: 1, Rate: 7e-4}, {Timestamp: 2, Rate: 7e-4}})

	spread, err := d.GetAverageSpread(context.Background(), "BTC", "venueA", "venueB", -1e-4, 5e-4)

	assert.NoError(t, err)
	assert.InDelta(t, 9e-4, spread, 1e-9)
}

func TestDiscoveryGetWeightedAverageRateFallsBackToCurrent(t *testing.T) {
	d := discoveryFixture()

	rate, err := d.GetWeightedAverageRate(context.Background(), "BTC", "venueA", -1e-4)

	assert.NoError(t, err)
	assert.InDelta(t, -1e-4, rate, 1e-12)
}

func TestDiscoveryGetSpreadVolatilityMetricsReturnsSeeded(t *testing.T) {
	d := discoveryFixture()
	d.SeedVolatility("BTC", "venueA", "venueB", domain.SpreadVolatilityMetrics{StabilityScore: 0.8})

	m, err := d.GetSpreadVolatilityMetrics(context.Background(), "BTC", "venueA", "venueB", 30)

	assert.NoError(t, err)
	assert.NotNil(t, m)
	assert.InDelta(t, 0.8, m.StabilityScore, 1e-9)
}

func TestDiscoveryGetSpreadVolatilityMetricsNilWhenUnseeded(t *testing.T) {
	d := discoveryFixture()

	m, err := d.GetSpreadVolatilityMetrics(context.Background(), "BTC", "venueA", "venueB", 30)

	assert.NoError(t, err)
	assert.Nil(t, m)
}
