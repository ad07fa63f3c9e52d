package simulated

import (
	"context"
	"math"
	"sync"

	"github.com/mdelgado-fx/fundingarb/internal/domain"
	"github.com/mdelgado-fx/fundingarb/internal/ports"
)

// Discovery is an in-memory ports.OpportunityDiscovery and
// ports.HistoricalView backed by the same *Venue market states registered
// with it. It synthesizes opportunities by pairing every two registered
// venues for every registered symbol, and returns deterministic historical
// series seeded at construction time.
type Discovery struct {
	mu         sync.Mutex
	venues     map[string]*Venue
	symbols    []string
	history    map[string][]ports.HistoricalPoint         // keyed by symbol|venue
	volatility map[string]*domain.SpreadVolatilityMetrics // keyed by symbol|longVenue|shortVenue
}

// NewDiscovery builds a discovery provider over venues (name -> adapter).
func NewDiscovery(venues map[string]*Venue, symbols []string) *Discovery {
	return &Discovery{
		venues:     venues,
		symbols:    symbols,
		history:    make(map[string][]ports.HistoricalPoint),
		volatility: make(map[string]*domain.SpreadVolatilityMetrics),
	}
}

// SeedHistory registers a deterministic historical series for (symbol, venue).
func (d *Discovery) SeedHistory(symbol, venue string, points []ports.HistoricalPoint) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.history[symbol+"|"+venue] = points
}

// SeedVolatility registers the 30-day volatility metrics for a
// (symbol, longVenue, shortVenue) triple.
func (d *Discovery) SeedVolatility(symbol, longVenue, shortVenue string, m domain.SpreadVolatilityMetrics) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.volatility[symbol+"|"+longVenue+"|"+shortVenue] = &m
}

func (d *Discovery) FindArbitrageOpportunities(ctx context.Context, symbols []string, minSpread float64) ([]domain.Opportunity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(symbols) == 0 {
		symbols = d.symbols
	}

	var out []domain.Opportunity
	names := make([]string, 0, len(d.venues))
	for n := range d.venues {
		names = append(names, n)
	}

	for _, symbol := range symbols {
		for i, longVenue := range names {
			for j, shortVenue := range names {
				if i == j {
					continue
				}
				lv := d.venues[longVenue]
				sv := d.venues[shortVenue]
				lv.mu.Lock()
				lm, lok := lv.markets[symbol]
				lv.mu.Unlock()
				sv.mu.Lock()
				sm, sok := sv.markets[symbol]
				sv.mu.Unlock()
				if !lok || !sok {
					continue
				}
				spread := math.Abs(lm.FundingRate - sm.FundingRate)
				if spread < minSpread {
					continue
				}
				out = append(out, domain.Opportunity{
					Symbol:               symbol,
					LongVenue:            longVenue,
					ShortVenue:           shortVenue,
					LongFundingRate:      lm.FundingRate,
					ShortFundingRate:     sm.FundingRate,
					LongMarkPrice:        lm.MarkPrice,
					ShortMarkPrice:       sm.MarkPrice,
					LongOpenInterestUsd:  lm.OpenInterestUsd,
					ShortOpenInterestUsd: sm.OpenInterestUsd,
				})
			}
		}
	}
	return out, nil
}

func (d *Discovery) GetFundingRates(ctx context.Context, symbol string) ([]ports.FundingRate, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []ports.FundingRate
	for name, v := range d.venues {
		v.mu.Lock()
		m, ok := v.markets[symbol]
		v.mu.Unlock()
		if ok {
			out = append(out, ports.FundingRate{Venue: name, CurrentRate: m.FundingRate})
		}
	}
	return out, nil
}

func (d *Discovery) GetExchangeSymbol(ctx context.Context, symbol, venue string) (string, error) {
	return symbol, nil
}

func (d *Discovery) GetWeightedAverageRate(ctx context.Context, symbol, venue string, currentRate float64) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	points := d.history[symbol+"|"+venue]
	if len(points) == 0 {
		return currentRate, nil
	}
	var sum float64
	for _, p := range points {
		sum += p.Rate
	}
	return sum / float64(len(points)), nil
}

// GetAverageSpread returns the average of the per-venue historical series'
// difference; falls back to the current spread (the core's sentinel for "no
// matched history") when either series is empty.
func (d *Discovery) GetAverageSpread(ctx context.Context, symbol, longVenue, shortVenue string, currentLong, currentShort float64) (float64, error) {
	d.mu.Lock()
	longPoints := d.history[symbol+"|"+longVenue]
	shortPoints := d.history[symbol+"|"+shortVenue]
	d.mu.Unlock()

	if len(longPoints) == 0 || len(shortPoints) == 0 {
		return math.Abs(currentLong - currentShort), nil
	}

	n := len(longPoints)
	if len(shortPoints) < n {
		n = len(shortPoints)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += math.Abs(longPoints[i].Rate - shortPoints[i].Rate)
	}
	return sum / float64(n), nil
}

func (d *Discovery) GetSpreadVolatilityMetrics(ctx context.Context, symbol, longVenue, shortVenue string, days int) (*domain.SpreadVolatilityMetrics, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.volatility[symbol+"|"+longVenue+"|"+shortVenue], nil
}

func (d *Discovery) GetHistoricalData(ctx context.Context, symbol, venue string) ([]ports.HistoricalPoint, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.history[symbol+"|"+venue], nil
}
