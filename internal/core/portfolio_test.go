package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mdelgado-fx/fundingarb/internal/domain"
	"github.com/mdelgado-fx/fundingarb/internal/ports"
)

// fakeHistorical is a minimal ports.HistoricalView stub for portfolio tests.
// AverageSpread returns a fixed value strictly different from the live
// spread so HistoricalRateView.AverageSpread never reports a fallback.
type fakeHistorical struct {
	avgSpread  float64
	volatility *domain.SpreadVolatilityMetrics
	volErr     error
}

func (f *fakeHistorical) GetWeightedAverageRate(ctx context.Context, symbol, venue string, currentRate float64) (float64, error) {
	return currentRate, nil
}

func (f *fakeHistorical) GetAverageSpread(ctx context.Context, symbol, longVenue, shortVenue string, currentLong, currentShort float64) (float64, error) {
	return f.avgSpread, nil
}

func (f *fakeHistorical) GetSpreadVolatilityMetrics(ctx context.Context, symbol, longVenue, shortVenue string, days int) (*domain.SpreadVolatilityMetrics, error) {
	return f.volatility, f.volErr
}

func (f *fakeHistorical) GetHistoricalData(ctx context.Context, symbol, venue string) ([]ports.HistoricalPoint, error) {
	return nil, nil
}

func flatFeeRate(venue string, taker bool) float64 { return 0.0004 }

func baseOpportunity() domain.Opportunity {
	return domain.Opportunity{
		Symbol:               "BTC",
		LongVenue:            "venueA",
		ShortVenue:           "venueB",
		LongFundingRate:      -1e-4,
		ShortFundingRate:     5e-4,
		LongOpenInterestUsd:  5_000_000,
		ShortOpenInterestUsd: 5_000_000,
		Timestamp:            time.Now(),
	}
}

func TestMaxNotionalHappyPathIsValid(t *testing.T) {
	hist := &fakeHistorical{avgSpread: 9e-4}
	optimizer := NewPortfolioOptimizer(NewHistoricalRateView(hist), flatFeeRate, 0)

	result := optimizer.MaxNotional(context.Background(), baseOpportunity(),
		domain.BestBidAsk{BestBid: 49_990, BestAsk: 50_010},
		domain.BestBidAsk{BestBid: 49_990, BestAsk: 50_010},
		0.05,
	)

	assert.True(t, result.Valid)
	assert.Greater(t, result.MaxNotionalUsd, 0.0)
	assert.Nil(t, result.SkipReason)
}

func TestMaxNotionalWorstCaseLiquidityFallbackWhenQuoteMissing(t *testing.T) {
	hist := &fakeHistorical{avgSpread: 9e-4}
	optimizer := NewPortfolioOptimizer(NewHistoricalRateView(hist), flatFeeRate, 7*24*time.Hour)

	opp := baseOpportunity()
	opp.LongOpenInterestUsd = 50_000_000
	opp.ShortOpenInterestUsd = 50_000_000

	// Zero bid/ask on the long leg forces the worst-case liquidity path.
	result := optimizer.MaxNotional(context.Background(), opp,
		domain.BestBidAsk{BestBid: 0, BestAsk: 0},
		domain.BestBidAsk{BestBid: 49_990, BestAsk: 50_010},
		0.05,
	)

	if result.SkipReason != nil {
		assert.Equal(t, domain.ProfitabilityFail, result.SkipReason.Kind)
		return
	}
	assert.True(t, result.Valid)
	assert.Greater(t, result.MaxNotionalUsd, 0.0)
}

func TestMaxNotionalRejectsBelowOneThousandOIBeforeWorstCaseFallback(t *testing.T) {
	hist := &fakeHistorical{avgSpread: 9e-4}
	optimizer := NewPortfolioOptimizer(NewHistoricalRateView(hist), flatFeeRate, 7*24*time.Hour)

	opp := baseOpportunity()
	// With $500 open interest the search ceiling (10% of OI, $50) is below
	// the $1,000 position floor, so the candidate is rejected as
	// InsufficientLiquidity before the empty quotes reach the worst-case
	// liquidity fallback — it must be rejected, not sized to zero.
	opp.LongOpenInterestUsd = 500
	opp.ShortOpenInterestUsd = 500

	result := optimizer.MaxNotional(context.Background(), opp,
		domain.BestBidAsk{BestBid: 0, BestAsk: 0},
		domain.BestBidAsk{BestBid: 0, BestAsk: 0},
		0.05,
	)

	assert.False(t, result.Valid)
	assert.NotNil(t, result.SkipReason)
}

func TestMaxNotionalAppliesVolatilityDiscount(t *testing.T) {
	volatileHist := &fakeHistorical{avgSpread: 9e-4, volatility: &domain.SpreadVolatilityMetrics{
		StabilityScore:        0.1,
		MaxHourlySpreadChange: 2e-4,
		SpreadReversals:       12,
		SpreadDropsToZero:     true,
	}}
	stableHist := &fakeHistorical{avgSpread: 9e-4, volatility: &domain.SpreadVolatilityMetrics{
		StabilityScore:        0.95,
		MaxHourlySpreadChange: 0,
		SpreadReversals:       0,
		SpreadDropsToZero:     false,
	}}

	volatileResult := NewPortfolioOptimizer(NewHistoricalRateView(volatileHist), flatFeeRate, 0).MaxNotional(
		context.Background(), baseOpportunity(),
		domain.BestBidAsk{BestBid: 49_990, BestAsk: 50_010},
		domain.BestBidAsk{BestBid: 49_990, BestAsk: 50_010},
		0.05,
	)
	stableResult := NewPortfolioOptimizer(NewHistoricalRateView(stableHist), flatFeeRate, 0).MaxNotional(
		context.Background(), baseOpportunity(),
		domain.BestBidAsk{BestBid: 49_990, BestAsk: 50_010},
		domain.BestBidAsk{BestBid: 49_990, BestAsk: 50_010},
		0.05,
	)

	assert.True(t, volatileResult.Valid)
	assert.True(t, stableResult.Valid)
	assert.Less(t, volatileResult.MaxNotionalUsd, stableResult.MaxNotionalUsd)
	assert.NotNil(t, volatileResult.Volatility)
}

func TestMaxNotionalRejectsBelowTargetAPY(t *testing.T) {
	hist := &fakeHistorical{avgSpread: 1e-6}
	optimizer := NewPortfolioOptimizer(NewHistoricalRateView(hist), flatFeeRate, 0)

	result := optimizer.MaxNotional(context.Background(), baseOpportunity(),
		domain.BestBidAsk{BestBid: 49_990, BestAsk: 50_010},
		domain.BestBidAsk{BestBid: 49_990, BestAsk: 50_010},
		0.05,
	)

	assert.False(t, result.Valid)
	assert.Equal(t, domain.ProfitabilityFail, result.SkipReason.Kind)
}

func TestHerfindahlIndexOfConcentration(t *testing.T) {
	// Two equal allocations: HHI = 0.5^2 + 0.5^2 = 0.5.
	hhi := herfindahlIndexForTest([]float64{500, 500}, 1000)
	assert.InDelta(t, 0.5, hhi, 1e-9)
}

// herfindahlIndexForTest mirrors notify.HerfindahlIndexOf without importing
// the notify package, keeping this test scoped to internal/core.
func herfindahlIndexForTest(allocationsUsd []float64, total float64) float64 {
	if total <= 0 {
		return 0
	}
	var hhi float64
	for _, a := range allocationsUsd {
		share := a / total
		hhi += share * share
	}
	return hhi
}
