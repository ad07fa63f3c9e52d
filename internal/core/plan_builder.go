package core

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/mdelgado-fx/fundingarb/internal/domain"
	"github.com/mdelgado-fx/fundingarb/internal/ports"
)

const minPositionUsd = 10

// ExecutionPlanBuilder turns an Opportunity plus live venue state into a
// fully-costed ExecutionPlan, or fails with a typed error identifying which
// gate rejected it (§4.3).
type ExecutionPlanBuilder struct {
	cost     CostCalculator
	venues   map[string]ports.VenueAdapter
	feeRate  func(venue string, taker bool) float64
	leverage float64
}

// NewExecutionPlanBuilder wires the adapters this builder will query for
// mark prices, quotes, and open interest. leverage defaults to 2.0 when <= 0.
func NewExecutionPlanBuilder(venues map[string]ports.VenueAdapter, feeRate func(venue string, taker bool) float64, leverage float64) *ExecutionPlanBuilder {
	if leverage <= 0 {
		leverage = 2.0
	}
	return &ExecutionPlanBuilder{venues: venues, feeRate: feeRate, leverage: leverage}
}

// Build runs the ten-step plan-construction algorithm. maxPositionCap <= 0
// means no cap. longBalance/shortBalance come from the cycle's fresh
// Balances snapshot, net of margin already in use.
func (b *ExecutionPlanBuilder) Build(ctx context.Context, opp domain.Opportunity, longBalance, shortBalance, maxPositionCap float64) (domain.ExecutionPlan, error) {
	longAdapter, ok := b.venues[opp.LongVenue]
	if !ok {
		return domain.ExecutionPlan{}, domain.NewError(domain.AdapterUnavailable, opp.LongVenue, nil)
	}
	shortAdapter, ok := b.venues[opp.ShortVenue]
	if !ok {
		return domain.ExecutionPlan{}, domain.NewError(domain.AdapterUnavailable, opp.ShortVenue, nil)
	}

	longMark, err := resolveMarkPrice(ctx, longAdapter, opp.Symbol, opp.LongMarkPrice)
	if err != nil {
		return domain.ExecutionPlan{}, domain.NewError(domain.VenueError, opp.LongVenue, err)
	}
	shortMark, err := resolveMarkPrice(ctx, shortAdapter, opp.Symbol, opp.ShortMarkPrice)
	if err != nil {
		return domain.ExecutionPlan{}, domain.NewError(domain.VenueError, opp.ShortVenue, err)
	}

	minBalance := math.Min(longBalance, shortBalance)
	usable := minBalance * 0.9
	notional := usable * b.leverage
	if maxPositionCap > 0 && notional > maxPositionCap {
		notional = maxPositionCap
	}
	if notional < minPositionUsd {
		return domain.ExecutionPlan{}, domain.NewError(domain.InsufficientCapital, fmt.Sprintf("%s notional %.2f", opp.Symbol, notional), nil)
	}

	avgMark := (longMark + shortMark) / 2
	baseSize := notional / avgMark

	if opp.LongOpenInterestUsd < 10_000 || opp.ShortOpenInterestUsd < 10_000 {
		return domain.ExecutionPlan{}, domain.NewError(domain.InsufficientLiquidity, opp.Symbol, nil)
	}
	maxFromOI := math.Min(opp.LongOpenInterestUsd, opp.ShortOpenInterestUsd) * 0.05
	if notional > maxFromOI {
		notional = maxFromOI
		if notional < minPositionUsd {
			return domain.ExecutionPlan{}, domain.NewError(domain.InsufficientLiquidity, fmt.Sprintf("%s OI-capped notional %.2f", opp.Symbol, notional), nil)
		}
		baseSize = notional / avgMark
	}

	longQuote := bestBidAskOrSynthesize(ctx, longAdapter, opp.Symbol, longMark)
	shortQuote := bestBidAskOrSynthesize(ctx, shortAdapter, opp.Symbol, shortMark)

	longFee := b.feeRate(opp.LongVenue, false)
	shortFee := b.feeRate(opp.ShortVenue, false)
	entryFees := notional * (longFee + shortFee)
	exitFees := notional * (longFee + shortFee)
	entrySlippage := b.cost.Slippage(notional, longQuote.BestBid, longQuote.BestAsk, opp.LongOpenInterestUsd, false) +
		b.cost.Slippage(notional, shortQuote.BestBid, shortQuote.BestAsk, opp.ShortOpenInterestUsd, false)
	exitSlippage := entrySlippage
	totalCosts := entryFees + exitFees + entrySlippage + exitSlippage

	hourlyReturn := (opp.ExpectedAPY(periodsPerYear) / periodsPerYear) * notional
	if hourlyReturn <= 0 {
		return domain.ExecutionPlan{}, domain.NewError(domain.ProfitabilityFail, opp.Symbol, nil)
	}
	breakEvenHours := totalCosts / hourlyReturn
	amortizationWindow := math.Max(1, math.Ceil(breakEvenHours))
	if amortizationWindow > 24 {
		amortizationWindow = 24
	}
	amortized := totalCosts / amortizationWindow
	netPerPeriod := hourlyReturn - amortized
	if netPerPeriod <= 0 {
		return domain.ExecutionPlan{}, domain.NewError(domain.ProfitabilityFail, opp.Symbol, nil)
	}

	const makerBias = 1e-4
	longPrice := longQuote.BestBid * (1 + makerBias)
	shortPrice := shortQuote.BestAsk * (1 - makerBias)

	longOrder, err := domain.NewOrderRequest(opp.Symbol, domain.Long, domain.Limit, baseSize, longPrice, domain.GTC, false)
	if err != nil {
		return domain.ExecutionPlan{}, err
	}
	shortOrder, err := domain.NewOrderRequest(opp.Symbol, domain.Short, domain.Limit, baseSize, shortPrice, domain.GTC, false)
	if err != nil {
		return domain.ExecutionPlan{}, err
	}

	plan := domain.ExecutionPlan{
		Opportunity:   opp,
		LongOrder:     longOrder,
		ShortOrder:    shortOrder,
		BaseAssetSize: baseSize,
		EstimatedCosts: domain.EstimatedCosts{
			EntryFees: entryFees,
			ExitFees:  exitFees,
			Slippage:  entrySlippage + exitSlippage,
			Total:     totalCosts,
		},
		ExpectedNetReturnPerPeriod: netPerPeriod,
		Timestamp:                  time.Now(),
	}

	if !plan.Valid() {
		return domain.ExecutionPlan{}, domain.NewError(domain.ProfitabilityFail, opp.Symbol, nil)
	}
	return plan, nil
}

func resolveMarkPrice(ctx context.Context, adapter ports.VenueAdapter, symbol string, override float64) (float64, error) {
	if override > 0 {
		return override, nil
	}
	return adapter.GetMarkPrice(ctx, symbol)
}

// bestBidAskOrSynthesize prefers the adapter's quote endpoint; when
// unsupported it synthesizes a symmetric 0.05% spread around mark, as §4.3
// step 6 allows.
func bestBidAskOrSynthesize(ctx context.Context, adapter ports.VenueAdapter, symbol string, mark float64) domain.BestBidAsk {
	q, err := adapter.GetBestBidAsk(ctx, symbol)
	if err == nil && q.BestBid > 0 && q.BestAsk > 0 {
		return q
	}
	return domain.BestBidAsk{
		BestBid: mark * (1 - 0.0005),
		BestAsk: mark * (1 + 0.0005),
	}
}
