package core

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/mdelgado-fx/fundingarb/internal/domain"
	"github.com/mdelgado-fx/fundingarb/internal/ports"
)

// maxBackoffInterval caps waitForFill's exponential backoff regardless of
// retry count.
const maxBackoffInterval = 30 * time.Second

// PairPlacement is the outcome of placing both legs of a plan.
type PairPlacement struct {
	LongResponse  domain.OrderResponse
	ShortResponse domain.OrderResponse
	Asymmetric    *domain.AsymmetricFill
}

// OrderExecutor issues paired orders and polls them to a terminal state.
type OrderExecutor struct {
	venues                map[string]ports.VenueAdapter
	asymmetricFillTimeout time.Duration
	maxOrderWaitRetries   int
	orderWaitBaseInterval time.Duration
}

// NewOrderExecutor wires the per-venue adapters this executor submits
// orders through.
func NewOrderExecutor(venues map[string]ports.VenueAdapter, asymmetricFillTimeout time.Duration, maxOrderWaitRetries int, orderWaitBaseInterval time.Duration) *OrderExecutor {
	return &OrderExecutor{
		venues:                venues,
		asymmetricFillTimeout: asymmetricFillTimeout,
		maxOrderWaitRetries:   maxOrderWaitRetries,
		orderWaitBaseInterval: orderWaitBaseInterval,
	}
}

// PlacePair issues both legs of plan concurrently and reports an
// AsymmetricFill when exactly one side fills within the configured window.
func (e *OrderExecutor) PlacePair(ctx context.Context, plan domain.ExecutionPlan) (PairPlacement, error) {
	longAdapter := e.venues[plan.Opportunity.LongVenue]
	shortAdapter := e.venues[plan.Opportunity.ShortVenue]
	if longAdapter == nil || shortAdapter == nil {
		return PairPlacement{}, domain.NewError(domain.AdapterUnavailable, plan.Opportunity.Symbol, nil)
	}

	type placed struct {
		resp domain.OrderResponse
		err  error
	}
	longCh := make(chan placed, 1)
	shortCh := make(chan placed, 1)

	go func() {
		resp, err := longAdapter.PlaceOrder(ctx, plan.LongOrder)
		longCh <- placed{resp, err}
	}()
	go func() {
		resp, err := shortAdapter.PlaceOrder(ctx, plan.ShortOrder)
		shortCh <- placed{resp, err}
	}()

	longPlaced := <-longCh
	shortPlaced := <-shortCh

	if longPlaced.err != nil && shortPlaced.err != nil {
		return PairPlacement{}, domain.NewError(domain.OrderRejected, plan.Opportunity.Symbol, longPlaced.err)
	}

	longResp := longPlaced.resp
	shortResp := shortPlaced.resp

	// Neither leg is necessarily terminal yet: GTC limit orders rest on the
	// book. Poll whichever leg hasn't settled, up to the configured
	// asymmetric-fill window, before judging fill status (§4.4).
	var wg sync.WaitGroup
	if longPlaced.err == nil && !longResp.Status.Terminal() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			longResp = e.waitWithinWindow(ctx, plan.Opportunity.LongVenue, longResp.OrderID, plan.Opportunity.Symbol, plan.BaseAssetSize)
		}()
	}
	if shortPlaced.err == nil && !shortResp.Status.Terminal() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			shortResp = e.waitWithinWindow(ctx, plan.Opportunity.ShortVenue, shortResp.OrderID, plan.Opportunity.Symbol, plan.BaseAssetSize)
		}()
	}
	wg.Wait()

	longFilled := longPlaced.err == nil && longResp.Status == domain.Filled
	shortFilled := shortPlaced.err == nil && shortResp.Status == domain.Filled

	result := PairPlacement{LongResponse: longResp, ShortResponse: shortResp}

	if !longFilled && !shortFilled {
		return result, nil
	}
	if longFilled && shortFilled {
		return result, nil
	}

	result.Asymmetric = &domain.AsymmetricFill{
		Symbol:       plan.Opportunity.Symbol,
		LongOrderID:  longResp.OrderID,
		ShortOrderID: shortResp.OrderID,
		LongFilled:   longFilled,
		ShortFilled:  shortFilled,
		LongVenue:    plan.Opportunity.LongVenue,
		ShortVenue:   plan.Opportunity.ShortVenue,
		PositionSize: plan.BaseAssetSize,
		Opportunity:  plan.Opportunity,
		Timestamp:    time.Now(),
	}
	return result, nil
}

// waitWithinWindow polls orderID on venue until it reaches a terminal status
// or asymmetricFillTimeout elapses, whichever comes first — the configured
// window §4.4 judges asymmetric fills against.
func (e *OrderExecutor) waitWithinWindow(ctx context.Context, venue, orderID, symbol string, expectedSize float64) domain.OrderResponse {
	adapter := e.venues[venue]
	if adapter == nil {
		return domain.OrderResponse{OrderID: orderID, Status: domain.Rejected, Err: domain.NewError(domain.AdapterUnavailable, venue, nil)}
	}

	deadline := time.Now().Add(e.asymmetricFillTimeout)
	var last domain.OrderResponse
	for retry := 0; ; retry++ {
		resp, err := adapter.GetOrderStatus(ctx, orderID, symbol)
		if err == nil {
			last = resp
			if resp.Status.Terminal() {
				return resp
			}
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}

		shift := retry
		if shift > 6 {
			shift = 6
		}
		interval := e.orderWaitBaseInterval * time.Duration(math.Pow(2, float64(shift)))
		if interval > maxBackoffInterval {
			interval = maxBackoffInterval
		}
		if remaining < interval {
			interval = remaining
		}

		select {
		case <-ctx.Done():
			return last
		case <-time.After(interval):
		}
	}
	return last
}

// WaitForFill polls orderID on venue until it reaches a terminal status or
// retries are exhausted, backing off exponentially (capped at
// maxBackoffInterval). It never returns an error for a timeout — the caller
// inspects the returned OrderResponse's Status.
func (e *OrderExecutor) WaitForFill(ctx context.Context, venue, orderID, symbol string, expectedSize float64, isClosing bool) domain.OrderResponse {
	adapter := e.venues[venue]
	if adapter == nil {
		return domain.OrderResponse{OrderID: orderID, Status: domain.Rejected, Err: domain.NewError(domain.AdapterUnavailable, venue, nil)}
	}

	maxRetries := e.maxOrderWaitRetries
	baseInterval := e.orderWaitBaseInterval
	if isClosing {
		maxRetries *= 2
	}

	var last domain.OrderResponse
	for retry := 0; retry <= maxRetries; retry++ {
		resp, err := adapter.GetOrderStatus(ctx, orderID, symbol)
		if err == nil {
			last = resp
			if resp.Status.Terminal() {
				return resp
			}
		}

		if retry == maxRetries {
			break
		}

		shift := retry
		if shift > 6 {
			shift = 6
		}
		interval := baseInterval * time.Duration(math.Pow(2, float64(shift)))
		if interval > maxBackoffInterval {
			interval = maxBackoffInterval
		}

		select {
		case <-ctx.Done():
			return last
		case <-time.After(interval):
		}
	}
	return last
}
