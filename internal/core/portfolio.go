package core

import (
	"context"
	"math"
	"time"

	"github.com/mdelgado-fx/fundingarb/internal/domain"
)

const periodsPerYear = 8760 // hourly funding periods in a year

// MaxNotionalResult is the outcome of a per-opportunity max-notional search.
type MaxNotionalResult struct {
	Opportunity           domain.Opportunity
	MaxNotionalUsd        float64
	DataQualityRiskFactor float64
	Volatility            *domain.SpreadVolatilityMetrics
	Valid                 bool
	SkipReason            *domain.CoreError
}

// Allocation is one opportunity's share of the aggregate portfolio.
type Allocation struct {
	Opportunity domain.Opportunity
	NotionalUsd float64
	NetAPY      float64
}

// AggregateResult is the outcome of the aggregate-allocation search.
type AggregateResult struct {
	Allocations  []Allocation
	AggregateAPY float64
	TotalUsd     float64
}

// PortfolioOptimizer sizes individual opportunities and allocates capital
// across all of them for one decision cycle.
type PortfolioOptimizer struct {
	cost                  CostCalculator
	historical            *HistoricalRateView
	feeRate               func(venue string, taker bool) float64
	eightHourly           func(venue string) bool
	maxWorstCaseBreakEven time.Duration
}

// NewPortfolioOptimizer builds an optimizer over historical and a per-venue
// fee-rate lookup (wired from config.Config.FeeRate). eightHourly reports
// whether a venue settles funding every 8 hours rather than hourly (wired
// from config.Config.EightHourlyFunding); nil treats every venue as hourly.
// maxWorstCaseBreakEven bounds how long a break-even can run when
// MaxNotional falls back to WorstCaseLiquidityFactor because no live quote
// is available; <= 0 means the source's default of 7 days.
func NewPortfolioOptimizer(historical *HistoricalRateView, feeRate func(venue string, taker bool) float64, maxWorstCaseBreakEven time.Duration, eightHourly ...func(venue string) bool) *PortfolioOptimizer {
	if maxWorstCaseBreakEven <= 0 {
		maxWorstCaseBreakEven = 7 * 24 * time.Hour
	}
	var isEightHourly func(venue string) bool
	if len(eightHourly) > 0 && eightHourly[0] != nil {
		isEightHourly = eightHourly[0]
	} else {
		isEightHourly = func(string) bool { return false }
	}
	return &PortfolioOptimizer{historical: historical, feeRate: feeRate, eightHourly: isEightHourly, maxWorstCaseBreakEven: maxWorstCaseBreakEven}
}

// quote is the minimal per-venue market data MaxNotional needs.
type quote struct {
	bestBid, bestAsk float64
}

// MaxNotional runs the per-opportunity binary search for the largest
// notional that still clears targetNetAPY (§4.2.1), then applies the
// volatility discount.
func (o *PortfolioOptimizer) MaxNotional(ctx context.Context, opp domain.Opportunity, longQuote, shortQuote domain.BestBidAsk, targetNetAPY float64) MaxNotionalResult {
	longHist, err := o.historical.WeightedAverageRate(ctx, opp.Symbol, opp.LongVenue, opp.LongFundingRate)
	if err != nil {
		longHist = opp.LongFundingRate
	}
	shortHist, err := o.historical.WeightedAverageRate(ctx, opp.Symbol, opp.ShortVenue, opp.ShortFundingRate)
	if err != nil {
		shortHist = opp.ShortFundingRate
	}

	histSpread, fellBack, err := o.historical.AverageSpread(ctx, opp.Symbol, opp.LongVenue, opp.ShortVenue, opp.LongFundingRate, opp.ShortFundingRate)
	if err != nil || fellBack || math.Abs(histSpread) > 0.5 {
		return MaxNotionalResult{
			Opportunity: opp,
			SkipReason:  domain.NewError(domain.DataQualityFail, opp.Symbol, err),
		}
	}

	grossAPY := math.Abs(histSpread) * periodsPerYear
	if grossAPY <= targetNetAPY {
		return MaxNotionalResult{Opportunity: opp, SkipReason: domain.NewError(domain.ProfitabilityFail, opp.Symbol, nil)}
	}

	if opp.LongOpenInterestUsd <= 0 || opp.ShortOpenInterestUsd <= 0 {
		return MaxNotionalResult{Opportunity: opp, SkipReason: domain.NewError(domain.InsufficientLiquidity, opp.Symbol, nil)}
	}
	minOI := math.Min(opp.LongOpenInterestUsd, opp.ShortOpenInterestUsd)

	lo, hi := 1000.0, math.Min(minOI*0.1, 1e7)
	if hi <= lo {
		return MaxNotionalResult{Opportunity: opp, SkipReason: domain.NewError(domain.InsufficientLiquidity, opp.Symbol, nil)}
	}

	longFee := o.feeRate(opp.LongVenue, false)
	shortFee := o.feeRate(opp.ShortVenue, false)

	chosen := lo
	for i := 0; i < 50 && hi-lo >= 100; i++ {
		pos := (lo + hi) / 2

		slip := 2 * (o.cost.Slippage(pos, longQuote.bestBid, longQuote.bestAsk, opp.LongOpenInterestUsd, false) +
			o.cost.Slippage(pos, shortQuote.bestBid, shortQuote.bestAsk, opp.ShortOpenInterestUsd, false))
		fees := 2 * pos * (longFee + shortFee)

		implL := o.cost.FundingRateImpact(pos, opp.LongOpenInterestUsd, longHist)
		implS := o.cost.FundingRateImpact(pos, opp.ShortOpenInterestUsd, shortHist)
		adjustedSpread := math.Abs((longHist + implL) - (shortHist - implS))

		amortizedPerHour := (slip + fees) / periodsPerYear
		netAPY := ((adjustedSpread/periodsPerYear)*pos-amortizedPerHour) * periodsPerYear / pos

		if math.Abs(netAPY-targetNetAPY) < 1e-3 {
			chosen = pos
			break
		}
		if netAPY > targetNetAPY {
			lo = pos
			chosen = pos
		} else {
			hi = pos
		}
	}

	// When either venue returned no usable quote, fall back to a pessimistic
	// liquidity estimate derived from open interest alone rather than trusting
	// the binary search's spreadPct=0.001 default. Candidates whose resulting
	// worst-case break-even would exceed maxWorstCaseBreakEven are rejected
	// outright instead of sized down further.
	if longQuote.bestBid <= 0 || longQuote.bestAsk <= 0 || shortQuote.bestBid <= 0 || shortQuote.bestAsk <= 0 {
		worstCaseFactor := math.Min(o.cost.WorstCaseLiquidityFactor(opp.LongOpenInterestUsd), o.cost.WorstCaseLiquidityFactor(opp.ShortOpenInterestUsd))
		chosen *= worstCaseFactor
		if chosen <= 0 {
			return MaxNotionalResult{Opportunity: opp, SkipReason: domain.NewError(domain.InsufficientLiquidity, opp.Symbol+": worst-case liquidity factor 0", nil)}
		}
		worstCaseHours := domain.AdjustedBreakEvenHours(domain.AdjustedBreakEvenInput{
			HourlyReturn: (grossAPY / periodsPerYear) * chosen,
			EntryCosts:   chosen * (longFee + shortFee),
			ExitCosts:    chosen * (longFee + shortFee),
		}, 0)
		if worstCaseHours > o.maxWorstCaseBreakEven.Hours() {
			return MaxNotionalResult{Opportunity: opp, SkipReason: domain.NewError(domain.ProfitabilityFail, opp.Symbol+": worst-case break-even exceeds cap", nil)}
		}
	}

	vol, err := o.historical.VolatilityMetrics(ctx, opp.Symbol, opp.LongVenue, opp.ShortVenue, 30)
	penalty := 0.0
	if err == nil && vol != nil {
		breakEvenThreshold := 48.0
		if vol.StabilityScore < 0.5 {
			breakEvenThreshold = 24.0
		}
		breakEvenHours := domain.AdjustedBreakEvenHours(domain.AdjustedBreakEvenInput{
			HourlyReturn: (grossAPY / periodsPerYear) * chosen,
			EntryCosts:   chosen * (longFee + shortFee),
			ExitCosts:    chosen * (longFee + shortFee),
		}, 0)

		stabilityPenalty := (1 - vol.StabilityScore) * 0.4
		beRatio := 0.0
		if !math.IsInf(breakEvenHours, 1) {
			beRatio = breakEvenHours / breakEvenThreshold
		}
		beRatio = math.Min(beRatio, 1) * 0.3
		changeRatio := math.Min(vol.MaxHourlySpreadChange/1e-4, 1) * 0.2
		reversalRatio := math.Min(float64(vol.SpreadReversals)/5, 1) * 0.1

		penalty = stabilityPenalty + beRatio + changeRatio + reversalRatio
		if penalty > 0.7 {
			penalty = 0.7
		}
	}

	final := math.Max(1000, chosen*(1-penalty))

	longPoints, lerr := o.historical.SampleCount(ctx, opp.Symbol, opp.LongVenue)
	if lerr != nil {
		longPoints = 0
	}
	shortPoints, serr := o.historical.SampleCount(ctx, opp.Symbol, opp.ShortVenue)
	if serr != nil {
		shortPoints = 0
	}
	dqFactor := DataQualityRiskFactorFromCounts(longPoints, shortPoints, o.eightHourly(opp.LongVenue), o.eightHourly(opp.ShortVenue))

	return MaxNotionalResult{
		Opportunity:           opp,
		MaxNotionalUsd:        final,
		DataQualityRiskFactor: dqFactor,
		Volatility:            vol,
		Valid:                 true,
	}
}

// samplePointsTarget returns the per-venue target sample point count used by
// the data-quality risk factor: hourly venues expect 168 weekly points,
// 8-hourly venues expect 21.
func samplePointsTarget(eightHourly bool) float64 {
	if eightHourly {
		return 21
	}
	return 168
}

// DataQualityRiskFactorFromCounts implements §4.2.2 exactly given actual
// per-venue sample counts and whether each venue reports 8-hourly funding.
func DataQualityRiskFactorFromCounts(longPoints, shortPoints float64, longEightHourly, shortEightHourly bool) float64 {
	longTarget := samplePointsTarget(longEightHourly)
	shortTarget := samplePointsTarget(shortEightHourly)

	minQuality := math.Min(longPoints/longTarget, math.Min(shortPoints/shortTarget, 1))

	var factor float64
	switch {
	case minQuality < 0.1:
		factor = 0.3
	case minQuality < 0.5:
		factor = 0.3 + (minQuality-0.1)/(0.5-0.1)*(0.7-0.3)
	default:
		factor = 0.7 + (math.Min(minQuality, 1)-0.5)/(1.0-0.5)*(1.0-0.7)
	}

	return math.Max(0.1, math.Min(1.0, factor))
}

// Allocate runs §4.2.4's aggregate binary search across every opportunity
// that has a valid MaxNotional: it searches for the largest total
// allocation (up to totalCapital) whose aggregate APY stays at or above
// targetAggregateAPY, then scales the allocations down to maxPortfolioUsd.
func (o *PortfolioOptimizer) Allocate(ctx context.Context, candidates []MaxNotionalResult, quotes map[string]quoteEntry, totalCapital, targetAggregateAPY, maxPortfolioUsd float64) AggregateResult {
	valid := make([]MaxNotionalResult, 0, len(candidates))
	sumMax := 0.0
	for _, c := range candidates {
		if c.Valid && c.MaxNotionalUsd > 0 {
			valid = append(valid, c)
			sumMax += c.MaxNotionalUsd
		}
	}
	if len(valid) == 0 || sumMax <= 0 {
		return AggregateResult{}
	}

	hi := math.Min(totalCapital, sumMax)
	lo := 0.0
	var best AggregateResult

	for i := 0; i < 50 && hi-lo >= 1000; i++ {
		testTotal := (lo + hi) / 2
		allocs := make([]Allocation, 0, len(valid))
		var sumAlloc, sumWeightedAPY float64

		for _, c := range valid {
			weight := c.MaxNotionalUsd / sumMax
			notional := math.Min(weight*testTotal, c.MaxNotionalUsd) * c.DataQualityRiskFactor
			if notional <= 0 {
				continue
			}

			q := quotes[venueQuoteKey(c.Opportunity)]
			longFee := o.feeRate(c.Opportunity.LongVenue, false)
			shortFee := o.feeRate(c.Opportunity.ShortVenue, false)

			slip := 2 * (o.cost.Slippage(notional, q.long.bestBid, q.long.bestAsk, c.Opportunity.LongOpenInterestUsd, false) +
				o.cost.Slippage(notional, q.short.bestBid, q.short.bestAsk, c.Opportunity.ShortOpenInterestUsd, false))
			fees := 2 * notional * (longFee + shortFee)

			implL := o.cost.FundingRateImpact(notional, c.Opportunity.LongOpenInterestUsd, c.Opportunity.LongFundingRate)
			implS := o.cost.FundingRateImpact(notional, c.Opportunity.ShortOpenInterestUsd, c.Opportunity.ShortFundingRate)
			adjustedSpread := math.Abs((c.Opportunity.LongFundingRate + implL) - (c.Opportunity.ShortFundingRate - implS))

			amortizedPerHour := (slip + fees) / periodsPerYear
			netAPY := ((adjustedSpread/periodsPerYear)*notional-amortizedPerHour) * periodsPerYear / notional

			discount := volatilityDiscountCapped(c)
			netAPY *= (1 - discount)

			allocs = append(allocs, Allocation{Opportunity: c.Opportunity, NotionalUsd: notional, NetAPY: netAPY})
			sumAlloc += notional
			sumWeightedAPY += notional * netAPY
		}

		if sumAlloc <= 0 {
			hi = testTotal
			continue
		}

		aggAPY := sumWeightedAPY / sumAlloc
		if math.Abs(aggAPY-targetAggregateAPY) < 1e-3 {
			best = AggregateResult{Allocations: allocs, AggregateAPY: aggAPY, TotalUsd: sumAlloc}
			break
		}
		if aggAPY > targetAggregateAPY {
			lo = testTotal
			best = AggregateResult{Allocations: allocs, AggregateAPY: aggAPY, TotalUsd: sumAlloc}
		} else {
			hi = testTotal
		}
	}

	if best.TotalUsd > maxPortfolioUsd {
		scale := maxPortfolioUsd / best.TotalUsd
		for i := range best.Allocations {
			best.Allocations[i].NotionalUsd *= scale
		}
		best.TotalUsd = maxPortfolioUsd
	}

	return best
}

// volatilityDiscountCapped implements §4.2.4's additional discount applied
// during aggregate allocation: stabilityPenalty*0.15 + 0.1 if the spread
// ever dropped to zero + 0.05 if there were more than 10 reversals, capped
// at 0.3. It reuses the same 30-day volatility snapshot MaxNotional already
// fetched, carried forward on MaxNotionalResult.Volatility.
func volatilityDiscountCapped(c MaxNotionalResult) float64 {
	if c.Volatility == nil {
		return 0
	}
	discount := (1 - c.Volatility.StabilityScore) * 0.15
	if c.Volatility.SpreadDropsToZero {
		discount += 0.1
	}
	if c.Volatility.SpreadReversals > 10 {
		discount += 0.05
	}
	return math.Min(discount, 0.3)
}

type quoteEntry struct {
	long, short quote
}

func venueQuoteKey(opp domain.Opportunity) string {
	return opp.Symbol + "|" + opp.LongVenue + "|" + opp.ShortVenue
}
