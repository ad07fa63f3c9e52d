package core

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/mdelgado-fx/fundingarb/internal/domain"
	"github.com/mdelgado-fx/fundingarb/internal/ports"
)

const (
	delayBetweenOpportunities = 50 * time.Millisecond
	delayBetweenBalanceFetch  = 100 * time.Millisecond
	delayBetweenCloses        = 200 * time.Millisecond
	delayAfterClose           = 1500 * time.Millisecond
)

// CycleResult is the per-cycle Result the Orchestrator returns instead of
// throwing: every per-opportunity or per-position failure is collected here
// rather than aborting the pass (§7 propagation policy).
type CycleResult struct {
	Success                bool
	OpportunitiesEvaluated int
	PlansBuilt             int
	SelectedPlan           *domain.ExecutionPlan
	RebalanceDecision      *RebalanceDecision
	Closed                 []domain.Position
	StillOpen              []domain.Position
	Errors                 []string
}

// StrategyOrchestrator drives one full decision-and-execution pass,
// matching the data-flow described in the system overview: fetch
// opportunities, fetch balances, build candidate plans, optimize the
// portfolio, decide on rebalancing, close incumbents, place new pairs,
// resolve any asymmetric fill, and record costs.
type StrategyOrchestrator struct {
	venues     map[string]ports.VenueAdapter
	discovery  ports.OpportunityDiscovery
	optimizer  *PortfolioOptimizer
	builder    *ExecutionPlanBuilder
	executor   *OrderExecutor
	positions  *PositionManager
	rebalancer *Rebalancer
	losses     *LossTracker
	log        *slog.Logger
	feeRate    func(venue string, taker bool) float64

	symbols            []string
	minSpread          float64
	targetNetAPY       float64
	targetAggregateAPY float64
	maxPortfolioUsd    float64
}

// OrchestratorConfig bundles the tunables StrategyOrchestrator needs beyond
// its component dependencies.
type OrchestratorConfig struct {
	Symbols            []string
	MinSpread          float64
	TargetNetAPY       float64
	TargetAggregateAPY float64
	MaxPortfolioUsd    float64
	// FeeRate sources maker/taker rates for asymmetric-fill resolution; the
	// same lookup wired into PortfolioOptimizer and ExecutionPlanBuilder
	// (config.Config.FeeRate). Nil treats every venue as fee-free.
	FeeRate func(venue string, taker bool) float64
}

// NewStrategyOrchestrator wires every core component for one strategy
// instance.
func NewStrategyOrchestrator(
	venues map[string]ports.VenueAdapter,
	discovery ports.OpportunityDiscovery,
	optimizer *PortfolioOptimizer,
	builder *ExecutionPlanBuilder,
	executor *OrderExecutor,
	positions *PositionManager,
	rebalancer *Rebalancer,
	losses *LossTracker,
	log *slog.Logger,
	cfg OrchestratorConfig,
) *StrategyOrchestrator {
	if log == nil {
		log = slog.Default()
	}
	feeRate := cfg.FeeRate
	if feeRate == nil {
		feeRate = func(string, bool) float64 { return 0 }
	}
	return &StrategyOrchestrator{
		venues:             venues,
		discovery:          discovery,
		optimizer:          optimizer,
		builder:            builder,
		executor:           executor,
		positions:          positions,
		rebalancer:         rebalancer,
		losses:             losses,
		log:                log,
		feeRate:            feeRate,
		symbols:            cfg.Symbols,
		minSpread:          cfg.MinSpread,
		targetNetAPY:       cfg.TargetNetAPY,
		targetAggregateAPY: cfg.TargetAggregateAPY,
		maxPortfolioUsd:    cfg.MaxPortfolioUsd,
	}
}

// RunCycle executes one pass. It never panics for a per-opportunity or
// per-position failure — those are logged and folded into CycleResult.Errors
// — matching the teacher's log-and-continue scanner loop. A
// FatalOrchestrationError escaping this boundary marks the cycle
// unsuccessful; the caller's next invocation starts from a clean state.
func (o *StrategyOrchestrator) RunCycle(ctx context.Context) (result CycleResult) {
	defer func() {
		if r := recover(); r != nil {
			result.Success = false
			result.Errors = append(result.Errors, domain.NewError(domain.FatalOrchestrationError, "panic recovered", nil).Error())
			o.log.Error("cycle aborted by panic", "recovered", r)
		}
	}()

	result.Success = true

	opps, err := o.discovery.FindArbitrageOpportunities(ctx, o.symbols, o.minSpread)
	if err != nil {
		result.Success = false
		result.Errors = append(result.Errors, domain.NewError(domain.VenueError, "opportunity discovery", err).Error())
		return result
	}
	result.OpportunitiesEvaluated = len(opps)
	o.log.Info("opportunities evaluated", "count", len(opps))

	balances := o.fetchBalances(ctx)

	candidates := make([]MaxNotionalResult, 0, len(opps))
	quotes := make(map[string]quoteEntry, len(opps))
	for i, opp := range opps {
		if i > 0 {
			time.Sleep(delayBetweenOpportunities)
		}
		if !opp.Valid() {
			continue
		}

		longQuote := o.bestQuote(ctx, opp.LongVenue, opp.Symbol, opp.LongMarkPrice)
		shortQuote := o.bestQuote(ctx, opp.ShortVenue, opp.Symbol, opp.ShortMarkPrice)
		quotes[venueQuoteKey(opp)] = quoteEntry{long: longQuote, short: shortQuote}

		maxNotional := o.optimizer.MaxNotional(ctx, opp, domain.BestBidAsk{BestBid: longQuote.bestBid, BestAsk: longQuote.bestAsk}, domain.BestBidAsk{BestBid: shortQuote.bestBid, BestAsk: shortQuote.bestAsk}, o.targetNetAPY)
		if maxNotional.SkipReason != nil {
			result.Errors = append(result.Errors, maxNotional.SkipReason.Error())
			continue
		}
		candidates = append(candidates, maxNotional)
	}

	totalCapital := 0.0
	for _, b := range balances {
		totalCapital += b
	}
	allocation := o.optimizer.Allocate(ctx, candidates, quotes, totalCapital, o.targetAggregateAPY, o.maxPortfolioUsd)

	for _, alloc := range allocation.Allocations {
		plan, perr := o.builder.Build(ctx, alloc.Opportunity, balances[alloc.Opportunity.LongVenue], balances[alloc.Opportunity.ShortVenue], alloc.NotionalUsd)
		if perr != nil {
			result.Errors = append(result.Errors, perr.Error())
			continue
		}

		if existing, ok := o.existingPosition(ctx, alloc.Opportunity.Symbol); ok {
			key := NormalizeSymbolKey(existing.Venue, existing.Symbol)
			rawRate := o.fundingRateFor(ctx, alloc.Opportunity.Symbol, existing.Venue)
			currentNotional := existing.Size * existing.MarkPrice

			decision := o.rebalancer.Decide(key, existing, rawRate, currentNotional, plan, alloc.NotionalUsd)
			result.RebalanceDecision = &decision

			if !decision.Rebalance {
				o.log.Info("keeping incumbent pair", "symbol", alloc.Opportunity.Symbol, "reason", decision.Reason)
				continue
			}

			o.log.Info("rebalancing incumbent pair", "symbol", alloc.Opportunity.Symbol, "reason", decision.Reason, "hours_saved", decision.HoursSaved)
			if !o.closeIncumbentPair(ctx, alloc.Opportunity.Symbol, &result) {
				result.Errors = append(result.Errors, domain.NewError(domain.CloseFailure, alloc.Opportunity.Symbol+": incumbent close incomplete, skipping new plan", nil).Error())
				continue
			}
		}

		result.PlansBuilt++
		if result.SelectedPlan == nil {
			result.SelectedPlan = &plan
		}
	}

	if result.SelectedPlan != nil {
		o.log.Info("plan selected", "symbol", result.SelectedPlan.Opportunity.Symbol,
			"long_venue", result.SelectedPlan.Opportunity.LongVenue, "short_venue", result.SelectedPlan.Opportunity.ShortVenue,
			"notional", result.SelectedPlan.BaseAssetSize*result.SelectedPlan.Opportunity.LongMarkPrice)

		placement, perr := o.executor.PlacePair(ctx, *result.SelectedPlan)
		if perr != nil {
			result.Errors = append(result.Errors, perr.Error())
		} else if placement.Asymmetric != nil {
			o.log.Warn("asymmetric fill detected", "symbol", placement.Asymmetric.Symbol)
			af := placement.Asymmetric
			completed, rerr := o.positions.ResolveAsymmetricFill(ctx, *af,
				o.feeRate(af.LongVenue, false), o.feeRate(af.ShortVenue, false),
				o.feeRate(af.LongVenue, true), o.feeRate(af.ShortVenue, true),
				af.PositionSize*result.SelectedPlan.Opportunity.LongMarkPrice)
			if rerr != nil {
				result.Errors = append(result.Errors, rerr.Error())
			}
			o.log.Info("asymmetric fill resolved", "completed", completed)
		} else {
			entryKey := NormalizeSymbolKey(result.SelectedPlan.Opportunity.LongVenue, result.SelectedPlan.Opportunity.Symbol)
			o.losses.RecordEntry(entryKey, result.SelectedPlan.EstimatedCosts.EntryFees)
		}
	}

	o.closeStalePositions(ctx, &result)

	return result
}

func (o *StrategyOrchestrator) fetchBalances(ctx context.Context) domain.Balances {
	balances := make(domain.Balances)
	i := 0
	for venue, adapter := range o.venues {
		if i > 0 {
			time.Sleep(delayBetweenBalanceFetch)
		}
		i++
		bal, err := adapter.GetBalance(ctx)
		if err != nil {
			o.log.Warn("balance fetch failed, treating venue as zero for this cycle", "venue", venue, "error", err)
			bal = 0
		}
		balances[venue] = bal
	}
	return balances
}

func (o *StrategyOrchestrator) bestQuote(ctx context.Context, venue, symbol string, markOverride float64) quote {
	adapter := o.venues[venue]
	if adapter == nil {
		return quote{}
	}
	mark := markOverride
	if mark <= 0 {
		mark, _ = adapter.GetMarkPrice(ctx, symbol)
	}
	q := bestBidAskOrSynthesize(ctx, adapter, symbol, mark)
	return quote{bestBid: q.BestBid, bestAsk: q.BestAsk}
}

// existingPosition looks up any venue currently holding a position in
// symbol, the incumbent Rebalancer.Decide compares a new plan against
// (§2's data flow: "Orchestrator asks Rebalancer whether to replace
// existing positions").
func (o *StrategyOrchestrator) existingPosition(ctx context.Context, symbol string) (domain.Position, bool) {
	for _, adapter := range o.venues {
		pos, err := adapter.GetPosition(ctx, symbol)
		if err != nil || pos == nil {
			continue
		}
		return *pos, true
	}
	return domain.Position{}, false
}

// fundingRateFor looks up the live funding rate symbol currently pays on
// venue, for CurrentFundingRate in Rebalancer.Decide.
func (o *StrategyOrchestrator) fundingRateFor(ctx context.Context, symbol, venue string) float64 {
	rates, err := o.discovery.GetFundingRates(ctx, symbol)
	if err != nil {
		return 0
	}
	for _, r := range rates {
		if strings.EqualFold(r.Venue, venue) {
			return r.CurrentRate
		}
	}
	return 0
}

// closeIncumbentPair closes every leg currently held in symbol across all
// venues and reports whether every leg closed. §5(ii) requires this to
// complete before a new pair for the same symbol is placed.
func (o *StrategyOrchestrator) closeIncumbentPair(ctx context.Context, symbol string, result *CycleResult) bool {
	var legs []domain.Position
	for _, adapter := range o.venues {
		positions, err := adapter.GetPositions(ctx)
		if err != nil {
			continue
		}
		for _, p := range positions {
			if normalizeSymbolOnly(p.Symbol) == normalizeSymbolOnly(symbol) {
				legs = append(legs, p)
			}
		}
	}

	allClosed := true
	for i, pos := range legs {
		if i > 0 {
			time.Sleep(delayBetweenCloses)
		}
		closed, cerr := o.positions.ClosePosition(ctx, pos)
		if closed {
			result.Closed = append(result.Closed, pos)
		} else {
			allClosed = false
			if cerr != nil {
				result.Errors = append(result.Errors, cerr.Error())
			}
		}
	}
	return allClosed
}

// closeStalePositions runs single-leg detection across every venue's
// reported positions and closes anything that is not part of a valid
// matched pair.
func (o *StrategyOrchestrator) closeStalePositions(ctx context.Context, result *CycleResult) {
	var all []domain.Position
	for _, adapter := range o.venues {
		positions, err := adapter.GetPositions(ctx)
		if err != nil {
			continue
		}
		all = append(all, positions...)
	}

	singleLeg := SingleLegGroups(all)
	for i, pos := range singleLeg {
		if i > 0 {
			time.Sleep(delayBetweenCloses)
		}
		closed, cerr := o.positions.ClosePosition(ctx, pos)
		if closed {
			result.Closed = append(result.Closed, pos)
			time.Sleep(delayAfterClose)
		} else if cerr != nil {
			result.StillOpen = append(result.StillOpen, pos)
			result.Errors = append(result.Errors, cerr.Error())
		}
	}
}
