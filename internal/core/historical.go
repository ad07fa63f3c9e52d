package core

import (
	"context"
	"math"

	"github.com/mdelgado-fx/fundingarb/internal/domain"
	"github.com/mdelgado-fx/fundingarb/internal/ports"
)

// historicalSentinelEpsilon is the tolerance used to detect "historical view
// fell back to the current spread because nothing matched" (§4.2.3).
const historicalSentinelEpsilon = 1e-7

// HistoricalRateView wraps a ports.HistoricalView with the "did this fall
// back to the current spread" sentinel detection PortfolioOptimizer needs.
// It never mutates or caches; it only classifies the provider's answer.
type HistoricalRateView struct {
	provider ports.HistoricalView
}

// NewHistoricalRateView wraps provider.
func NewHistoricalRateView(provider ports.HistoricalView) *HistoricalRateView {
	return &HistoricalRateView{provider: provider}
}

// WeightedAverageRate passes through to the provider.
func (v *HistoricalRateView) WeightedAverageRate(ctx context.Context, symbol, venue string, currentRate float64) (float64, error) {
	return v.provider.GetWeightedAverageRate(ctx, symbol, venue, currentRate)
}

// AverageSpread returns the provider's historical average spread, along with
// whether it is indistinguishable from currentSpread (no matched history was
// found, so the provider fell back to the live value). Callers must check
// the second return before trusting the spread for allocation decisions.
func (v *HistoricalRateView) AverageSpread(ctx context.Context, symbol, longVenue, shortVenue string, currentLong, currentShort float64) (spread float64, fellBackToCurrent bool, err error) {
	hist, err := v.provider.GetAverageSpread(ctx, symbol, longVenue, shortVenue, currentLong, currentShort)
	if err != nil {
		return 0, false, err
	}
	currentSpread := math.Abs(currentLong - currentShort)
	fellBack := math.Abs(hist-currentSpread) < historicalSentinelEpsilon
	return hist, fellBack, nil
}

// VolatilityMetrics passes through to the provider.
func (v *HistoricalRateView) VolatilityMetrics(ctx context.Context, symbol, longVenue, shortVenue string, days int) (*domain.SpreadVolatilityMetrics, error) {
	return v.provider.GetSpreadVolatilityMetrics(ctx, symbol, longVenue, shortVenue, days)
}

// SampleCount returns how many historical points the provider holds for
// symbol on venue, feeding the data-quality risk factor (§4.2.2).
func (v *HistoricalRateView) SampleCount(ctx context.Context, symbol, venue string) (float64, error) {
	points, err := v.provider.GetHistoricalData(ctx, symbol, venue)
	if err != nil {
		return 0, err
	}
	return float64(len(points)), nil
}
