package ports

import (
	"context"

	"github.com/mdelgado-fx/fundingarb/internal/domain"
)

// FundingRate is one venue's currently quoted funding rate for a symbol.
type FundingRate struct {
	Venue       string
	CurrentRate float64
}

// HistoricalPoint is one sample in a funding/spread time series.
type HistoricalPoint struct {
	Timestamp int64
	Rate      float64
}

// OpportunityDiscovery finds and enriches cross-venue opportunities (§6.2).
// A real implementation pre-enriches with mark prices and open interest when
// available; internal/adapters/simulated synthesizes both deterministically.
type OpportunityDiscovery interface {
	FindArbitrageOpportunities(ctx context.Context, symbols []string, minSpread float64) ([]domain.Opportunity, error)
	GetFundingRates(ctx context.Context, symbol string) ([]FundingRate, error)
	GetExchangeSymbol(ctx context.Context, symbol, venue string) (string, error)
}

// HistoricalView is the consumed-only historical data contract PortfolioOptimizer
// reads through; see core.HistoricalRateView for the sentinel-detection wrapper
// built on top of it.
type HistoricalView interface {
	GetWeightedAverageRate(ctx context.Context, symbol, venue string, currentRate float64) (float64, error)
	GetAverageSpread(ctx context.Context, symbol, longVenue, shortVenue string, currentLong, currentShort float64) (float64, error)
	GetSpreadVolatilityMetrics(ctx context.Context, symbol, longVenue, shortVenue string, days int) (*domain.SpreadVolatilityMetrics, error)
	GetHistoricalData(ctx context.Context, symbol, venue string) ([]HistoricalPoint, error)
}
