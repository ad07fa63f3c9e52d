package core

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mdelgado-fx/fundingarb/internal/domain"
	"github.com/mdelgado-fx/fundingarb/internal/ports"
)

// closeLockTTL is how long a key stays in recentlyClosed after a successful
// close, preventing a redundant close attempt from a stale detection path.
const closeLockTTL = 30 * time.Second

// priceWorseningSteps is the progressive price-worsening sequence tried
// during a single position's close (§4.5.2 step 4).
var priceWorseningSteps = []float64{0, 0.001, 0.005, 0.01, 0.02, 0.05}

// NormalizeSymbolKey strips common perp suffixes and uppercases, producing
// the venue:normalizedSymbol key used by every idempotency map in
// PositionManager.
func NormalizeSymbolKey(venue, symbol string) string {
	s := strings.ToUpper(symbol)
	for _, suffix := range []string{"-PERP", "PERP", "USDC", "USDT"} {
		s = strings.TrimSuffix(s, suffix)
	}
	return strings.ToUpper(venue) + ":" + s
}

// inMemoryLocks is the default, non-persisted idempotency tracker; it
// satisfies the same operations a ports.StateStore-backed tracker would.
type inMemoryLocks struct {
	mu             sync.Mutex
	closingInFlight map[string]bool
	recentlyClosed  map[string]time.Time
}

func newInMemoryLocks() *inMemoryLocks {
	return &inMemoryLocks{
		closingInFlight: make(map[string]bool),
		recentlyClosed:  make(map[string]time.Time),
	}
}

func (l *inMemoryLocks) tryAcquire(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closingInFlight[key] {
		return false
	}
	l.closingInFlight[key] = true
	return true
}

func (l *inMemoryLocks) markClosed(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.closingInFlight, key)
	l.recentlyClosed[key] = time.Now()
}

func (l *inMemoryLocks) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.closingInFlight, key)
}

func (l *inMemoryLocks) isRecentlyClosed(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	at, ok := l.recentlyClosed[key]
	if !ok {
		return false
	}
	if time.Since(at) > closeLockTTL {
		delete(l.recentlyClosed, key)
		return false
	}
	return true
}

func (l *inMemoryLocks) isInFlight(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closingInFlight[key]
}

// CloseOutcome is the per-position result of one closing pass.
type CloseOutcome struct {
	Position Position
	Err      *domain.CoreError
}

// Position is the minimal (venue, symbol, size) view PositionManager needs;
// domain.Position carries the rest.
type Position = domain.Position

// PositionManager owns close idempotency, the per-position closing
// algorithm, asymmetric-fill resolution, and single-leg detection (§4.5).
type PositionManager struct {
	venues   map[string]ports.VenueAdapter
	executor *OrderExecutor
	cost     CostCalculator
	locks    *inMemoryLocks
}

// NewPositionManager wires the venue adapters and executor this manager
// drives closes through.
func NewPositionManager(venues map[string]ports.VenueAdapter, executor *OrderExecutor) *PositionManager {
	return &PositionManager{venues: venues, executor: executor, locks: newInMemoryLocks()}
}

// ClosePosition runs §4.5.2's closing algorithm for one position, returning
// closed=true on success. It is idempotent: a position already being closed
// or recently closed is skipped without error.
func (pm *PositionManager) ClosePosition(ctx context.Context, pos domain.Position) (closed bool, err *domain.CoreError) {
	key := NormalizeSymbolKey(pos.Venue, pos.Symbol)

	if pm.locks.isInFlight(key) || pm.locks.isRecentlyClosed(key) {
		return false, nil
	}
	if !pm.locks.tryAcquire(key) {
		return false, nil
	}

	adapter := pm.venues[pos.Venue]
	if adapter == nil {
		pm.locks.release(key)
		return false, domain.NewError(domain.AdapterUnavailable, pos.Venue, nil)
	}

	fresh, ferr := adapter.GetPosition(ctx, pos.Symbol)
	if ferr != nil {
		pm.locks.release(key)
		return false, domain.NewError(domain.VenueError, pos.Venue, ferr)
	}
	if fresh == nil || absf(fresh.Size) < sizeEpsilon {
		pm.locks.markClosed(key)
		return true, nil
	}
	size := fresh.Size

	closeSide := pos.Side.Opposite()

	for i, worsening := range priceWorseningSteps {
		mark, merr := adapter.GetMarkPrice(ctx, pos.Symbol)
		if merr != nil || mark <= 0 {
			mark = pos.EntryPrice
		}

		price := worsenedPrice(mark, closeSide, worsening)
		tif := domain.GTC
		if i > 0 {
			tif = domain.IOC
		}

		req, rerr := domain.NewOrderRequest(pos.Symbol, closeSide, domain.Limit, size, price, tif, true)
		if rerr != nil {
			continue
		}

		resp, perr := adapter.PlaceOrder(ctx, req)
		if perr == nil && resp.Status != domain.Filled {
			resp = pm.executor.WaitForFill(ctx, pos.Venue, resp.OrderID, pos.Symbol, size, true)
		}

		time.Sleep(2 * time.Second)

		fresh, ferr = adapter.GetPosition(ctx, pos.Symbol)
		if ferr == nil && (fresh == nil || absf(fresh.Size) < sizeEpsilon) {
			pm.locks.markClosed(key)
			return true, nil
		}
		if fresh != nil {
			size = fresh.Size
		}
	}

	mark, merr := adapter.GetMarkPrice(ctx, pos.Symbol)
	if merr != nil || mark <= 0 {
		mark = pos.EntryPrice
	}
	finalPrice := worsenedPrice(mark, closeSide, 0.08)
	req, rerr := domain.NewOrderRequest(pos.Symbol, closeSide, domain.Limit, size, finalPrice, domain.IOC, true)
	if rerr == nil {
		resp, perr := adapter.PlaceOrder(ctx, req)
		if perr == nil && resp.Status != domain.Filled {
			pm.executor.WaitForFill(ctx, pos.Venue, resp.OrderID, pos.Symbol, size, true)
		}
	}

	fresh, ferr = adapter.GetPosition(ctx, pos.Symbol)
	if ferr == nil && (fresh == nil || absf(fresh.Size) < sizeEpsilon) {
		pm.locks.markClosed(key)
		return true, nil
	}

	pm.locks.release(key)
	return false, domain.NewError(domain.CloseFailure, pos.Symbol, nil)
}

// worsenedPrice moves price against the closer by worsening*price: a LONG
// close (selling) worsens downward, a SHORT close (buying back) worsens
// upward.
func worsenedPrice(mark float64, closeSide domain.OrderSide, worsening float64) float64 {
	if closeSide == domain.Short {
		// closing a LONG position: sell side, accept a lower price
		return mark * (1 - worsening)
	}
	return mark * (1 + worsening)
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// SingleLegGroups groups positions by normalized symbol and returns those
// that are not part of a valid matched pair (one LONG and one SHORT on
// different venues) for immediate closure (§4.5.4).
func SingleLegGroups(positions []domain.Position) []domain.Position {
	groups := make(map[string][]domain.Position)
	for _, p := range positions {
		key := normalizeSymbolOnly(p.Symbol)
		groups[key] = append(groups[key], p)
	}

	var singleLeg []domain.Position
	for _, group := range groups {
		// Pair each LONG with a still-unpaired SHORT on another venue; every
		// position left unpaired is a single leg.
		paired := make([]bool, len(group))
		for i, a := range group {
			for j, b := range group {
				if !paired[i] && !paired[j] && a.Side == domain.Long && b.Side == domain.Short && a.Venue != b.Venue {
					paired[i], paired[j] = true, true
				}
			}
		}
		for i, p := range group {
			if !paired[i] {
				singleLeg = append(singleLeg, p)
			}
		}
	}
	return singleLeg
}

func hasMatchedPair(group []domain.Position) bool {
	for _, a := range group {
		for _, b := range group {
			if a.Venue == b.Venue {
				continue
			}
			if a.Side == domain.Long && b.Side == domain.Short {
				return true
			}
		}
	}
	return false
}

func normalizeSymbolOnly(symbol string) string {
	s := strings.ToUpper(symbol)
	for _, suffix := range []string{"-PERP", "PERP", "USDC", "USDT"} {
		s = strings.TrimSuffix(s, suffix)
	}
	return s
}

// ResolveAsymmetricFill implements §4.5.3: recheck profitability with taker
// fees on the unfilled leg, either complete the pair with progressive price
// improvement or unwind by closing the filled leg.
func (pm *PositionManager) ResolveAsymmetricFill(ctx context.Context, af domain.AsymmetricFill, longFeeRate, shortFeeRate, longTakerFeeRate, shortTakerFeeRate, notional float64) (completed bool, err *domain.CoreError) {
	if checkProfitabilityWithTakerFees(af, longFeeRate, shortFeeRate, longTakerFeeRate, shortTakerFeeRate, notional) {
		if pm.completeAsymmetricFill(ctx, af, notional) {
			return true, nil
		}
	}

	filledVenue := af.FilledVenue()
	unfilledVenue := af.UnfilledVenue()
	unfilledOrderID := af.LongOrderID
	if af.LongFilled {
		unfilledOrderID = af.ShortOrderID
	}
	if adapter := pm.venues[unfilledVenue]; adapter != nil && unfilledOrderID != "" {
		_, _ = adapter.CancelOrder(ctx, unfilledOrderID, af.Symbol)
	}

	side := domain.Short
	if af.LongFilled {
		side = domain.Long
	}
	closed, cerr := pm.ClosePosition(ctx, domain.Position{Venue: filledVenue, Symbol: af.Symbol, Side: side, Size: af.PositionSize})
	if !closed {
		return false, cerr
	}
	return false, nil
}

// checkProfitabilityWithTakerFees treats the filled side as already paying
// maker entry fee, the unfilled side as requiring taker entry fee, both
// exits at maker. The market leg's slippage is a fixed conservative 5e-4
// regardless of actual open interest — this is a preserved, intentionally
// conservative constant, not an oversight; do not scale it with notional.
func checkProfitabilityWithTakerFees(af domain.AsymmetricFill, longFeeRate, shortFeeRate, longTakerFeeRate, shortTakerFeeRate, notional float64) bool {
	const marketLegSlippage = 5e-4

	var entryFees float64
	if af.LongFilled {
		entryFees = notional*longFeeRate + notional*shortTakerFeeRate
	} else {
		entryFees = notional*longTakerFeeRate + notional*shortFeeRate
	}
	exitFees := notional * (longFeeRate + shortFeeRate)
	slippage := notional * marketLegSlippage
	totalCosts := entryFees + exitFees + slippage

	hourlyReturn := (af.Opportunity.ExpectedAPY(periodsPerYear) / periodsPerYear) * notional
	if hourlyReturn <= 0 {
		return false
	}
	breakEvenHours := totalCosts / hourlyReturn
	window := clampAmortizationWindow(breakEvenHours)
	amortized := totalCosts / window
	return hourlyReturn-amortized > 0
}

func clampAmortizationWindow(breakEvenHours float64) float64 {
	w := breakEvenHours
	if w < 1 {
		w = 1
	}
	if w > 24 {
		w = 24
	}
	return w
}

// completionOffsets are the progressive IOC price-improvement offsets tried
// on the unfilled leg before falling back to a resting maker order
// (§4.5.3 step 3).
var completionOffsets = []float64{0.001, 0.002, 0.005}

func (pm *PositionManager) completeAsymmetricFill(ctx context.Context, af domain.AsymmetricFill, notional float64) bool {
	unfilledVenue := af.UnfilledVenue()
	adapter := pm.venues[unfilledVenue]
	if adapter == nil {
		return false
	}

	side := domain.Long
	if af.LongFilled {
		side = domain.Short
	}

	prevOrderID := af.ShortOrderID
	if !af.LongFilled {
		prevOrderID = af.LongOrderID
	}

	for _, offset := range completionOffsets {
		if prevOrderID != "" {
			_, _ = adapter.CancelOrder(ctx, prevOrderID, af.Symbol)
		}
		mark, merr := adapter.GetMarkPrice(ctx, af.Symbol)
		if merr != nil || mark <= 0 {
			return false
		}
		price := worsenedPrice(mark, side, offset)
		req, rerr := domain.NewOrderRequest(af.Symbol, side, domain.Limit, af.PositionSize, price, domain.IOC, false)
		if rerr != nil {
			continue
		}
		resp, perr := adapter.PlaceOrder(ctx, req)
		if perr == nil && resp.Status == domain.Filled {
			return true
		}
		if perr == nil {
			prevOrderID = resp.OrderID
		}
	}

	mark, merr := adapter.GetMarkPrice(ctx, af.Symbol)
	if merr != nil || mark <= 0 {
		return false
	}
	req, rerr := domain.NewOrderRequest(af.Symbol, side, domain.Limit, af.PositionSize, mark, domain.GTC, false)
	if rerr != nil {
		return false
	}
	resp, perr := adapter.PlaceOrder(ctx, req)
	if perr != nil {
		return false
	}
	final := pm.executor.WaitForFill(ctx, unfilledVenue, resp.OrderID, af.Symbol, af.PositionSize, false)
	return final.Status == domain.Filled
}
