package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mdelgado-fx/fundingarb/internal/adapters/simulated"
	"github.com/mdelgado-fx/fundingarb/internal/domain"
	"github.com/mdelgado-fx/fundingarb/internal/ports"
)

// delayedFillVenue wraps a simulated.Venue so its orders report Submitted
// (not yet terminal) for a configured number of polls before handing back
// the wrapped venue's real terminal status. PlacePair's asymmetric-fill
// window can only be exercised genuinely against a venue whose fills don't
// resolve synchronously, which simulated.Venue alone never produces.
type delayedFillVenue struct {
	*simulated.Venue
	mu        sync.Mutex
	polls     map[string]int
	fillAfter int
}

func newDelayedFillVenue(v *simulated.Venue, fillAfter int) *delayedFillVenue {
	return &delayedFillVenue{Venue: v, polls: make(map[string]int), fillAfter: fillAfter}
}

func (d *delayedFillVenue) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResponse, error) {
	resp, err := d.Venue.PlaceOrder(ctx, req)
	if err != nil {
		return resp, err
	}
	resp.Status = domain.Submitted
	return resp, nil
}

func (d *delayedFillVenue) GetOrderStatus(ctx context.Context, orderID, symbol string) (domain.OrderResponse, error) {
	resp, err := d.Venue.GetOrderStatus(ctx, orderID, symbol)
	if err != nil {
		return resp, err
	}
	d.mu.Lock()
	d.polls[orderID]++
	count := d.polls[orderID]
	d.mu.Unlock()
	if count < d.fillAfter {
		resp.Status = domain.Submitted
	}
	return resp, nil
}

func executorFixture(symbol string) map[string]ports.VenueAdapter {
	venueA := simulated.NewVenue("venueA", 100_000)
	venueB := simulated.NewVenue("venueB", 100_000)
	venueA.SetMarket(symbol, simulated.MarketState{MarkPrice: 50_000, FundingRate: -1e-4, OpenInterestUsd: 5_000_000})
	venueB.SetMarket(symbol, simulated.MarketState{MarkPrice: 50_000, FundingRate: 5e-4, OpenInterestUsd: 5_000_000})
	return map[string]ports.VenueAdapter{"venueA": venueA, "venueB": venueB}
}

func samplePlan(symbol string) domain.ExecutionPlan {
	longOrder, _ := domain.NewOrderRequest(symbol, domain.Long, domain.Limit, 0.1, 49_995, domain.GTC, false)
	shortOrder, _ := domain.NewOrderRequest(symbol, domain.Short, domain.Limit, 0.1, 50_005, domain.GTC, false)
	return domain.ExecutionPlan{
		Opportunity: domain.Opportunity{Symbol: symbol, LongVenue: "venueA", ShortVenue: "venueB"},
		LongOrder:   longOrder,
		ShortOrder:  shortOrder,
		BaseAssetSize: 0.1,
	}
}

func TestOrderExecutorPlacePairBothFill(t *testing.T) {
	venues := executorFixture("BTC")
	executor := NewOrderExecutor(venues, 500*time.Millisecond, 2, 10*time.Millisecond)

	placement, err := executor.PlacePair(context.Background(), samplePlan("BTC"))

	assert.NoError(t, err)
	assert.Nil(t, placement.Asymmetric)
	assert.Equal(t, domain.Filled, placement.LongResponse.Status)
	assert.Equal(t, domain.Filled, placement.ShortResponse.Status)
}

func TestOrderExecutorPlacePairUnknownVenueErrors(t *testing.T) {
	venues := executorFixture("BTC")
	executor := NewOrderExecutor(venues, 500*time.Millisecond, 2, 10*time.Millisecond)

	plan := samplePlan("BTC")
	plan.Opportunity.LongVenue = "venueZ"

	_, err := executor.PlacePair(context.Background(), plan)

	var coreErr *domain.CoreError
	assert.ErrorAs(t, err, &coreErr)
	assert.Equal(t, domain.AdapterUnavailable, coreErr.Kind)
}

func TestOrderExecutorPlacePairAsymmetricWhenOneLegRejected(t *testing.T) {
	venues := executorFixture("BTC")
	// ETH market is only seeded on venueA: placing an ETH pair makes the
	// short leg fail with an unknown-symbol error while the long leg fills.
	plan := samplePlan("ETH")
	venues["venueA"].(*simulated.Venue).SetMarket("ETH", simulated.MarketState{MarkPrice: 3_000, FundingRate: -1e-4, OpenInterestUsd: 5_000_000})

	executor := NewOrderExecutor(venues, 500*time.Millisecond, 2, 10*time.Millisecond)
	placement, err := executor.PlacePair(context.Background(), plan)

	assert.NoError(t, err)
	assert.NotNil(t, placement.Asymmetric)
	assert.True(t, placement.Asymmetric.Valid())
	assert.Equal(t, "venueA", placement.Asymmetric.FilledVenue())
}

func TestOrderExecutorPlacePairAsymmetricWhenOneLegNeverFillsWithinWindow(t *testing.T) {
	venues := executorFixture("BTC")
	// venueB's fill never resolves within the test's asymmetric window.
	venues["venueB"] = newDelayedFillVenue(venues["venueB"].(*simulated.Venue), 1000)

	executor := NewOrderExecutor(venues, 20*time.Millisecond, 2, 5*time.Millisecond)
	placement, err := executor.PlacePair(context.Background(), samplePlan("BTC"))

	assert.NoError(t, err)
	assert.NotNil(t, placement.Asymmetric)
	assert.True(t, placement.Asymmetric.LongFilled)
	assert.False(t, placement.Asymmetric.ShortFilled)
}

func TestOrderExecutorPlacePairBothFillWithinAsymmetricWindow(t *testing.T) {
	venues := executorFixture("BTC")
	// venueB takes two polls to settle, well inside the window: not asymmetric.
	venues["venueB"] = newDelayedFillVenue(venues["venueB"].(*simulated.Venue), 2)

	executor := NewOrderExecutor(venues, 500*time.Millisecond, 5, 5*time.Millisecond)
	placement, err := executor.PlacePair(context.Background(), samplePlan("BTC"))

	assert.NoError(t, err)
	assert.Nil(t, placement.Asymmetric)
	assert.Equal(t, domain.Filled, placement.ShortResponse.Status)
}

func TestOrderExecutorWaitForFillReturnsTerminalStatus(t *testing.T) {
	venues := executorFixture("BTC")
	executor := NewOrderExecutor(venues, 500*time.Millisecond, 2, 5*time.Millisecond)

	placement, err := executor.PlacePair(context.Background(), samplePlan("BTC"))
	assert.NoError(t, err)

	resp := executor.WaitForFill(context.Background(), "venueA", placement.LongResponse.OrderID, "BTC", 0.1, false)
	assert.Equal(t, domain.Filled, resp.Status)
}

func TestOrderExecutorWaitForFillUnknownVenueRejects(t *testing.T) {
	venues := executorFixture("BTC")
	executor := NewOrderExecutor(venues, 500*time.Millisecond, 2, 5*time.Millisecond)

	resp := executor.WaitForFill(context.Background(), "venueZ", "order-1", "BTC", 0.1, false)
	assert.Equal(t, domain.Rejected, resp.Status)
}
