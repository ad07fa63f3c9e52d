package domain

import "time"

// Opportunity identifies one (symbol, longVenue, shortVenue) triple observed
// during a single decision cycle. It is never persisted by the core; its
// lifetime is the cycle that produced it.
type Opportunity struct {
	Symbol           string
	LongVenue        string
	ShortVenue       string
	LongFundingRate  float64 // per-period decimal, e.g. hourly
	ShortFundingRate float64
	LongMarkPrice    float64
	ShortMarkPrice   float64
	LongOpenInterestUsd  float64
	ShortOpenInterestUsd float64
	Timestamp        time.Time
}

// Spread is |longRate - shortRate|.
func (o Opportunity) Spread() float64 {
	d := o.LongFundingRate - o.ShortFundingRate
	if d < 0 {
		return -d
	}
	return d
}

// ExpectedAPY annualizes Spread at the given periods-per-year.
func (o Opportunity) ExpectedAPY(periodsPerYear float64) float64 {
	return o.Spread() * periodsPerYear
}

// Valid reports whether the triple satisfies the longVenue != shortVenue
// invariant. Callers must check this before scoring; a violation here means
// upstream venue discovery is broken, not a transient condition.
func (o Opportunity) Valid() bool {
	return o.LongVenue != o.ShortVenue && o.Symbol != ""
}

// Balances maps venue to available USD collateral, net of margin already
// committed to open positions. Refreshed at the start of every cycle.
type Balances map[string]float64

// Available returns the balance for venue, or 0 if unknown.
func (b Balances) Available(venue string) float64 {
	return b[venue]
}
