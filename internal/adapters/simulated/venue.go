// Package simulated provides an in-memory venue adapter and funding/history
// provider that implement the ports contracts without touching a real
// exchange. It exists to drive the core deterministically — in tests and in
// the CLI's paper mode — the same role the teacher's paper-trading engine
// and dry-run fixtures play.
package simulated

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/mdelgado-fx/fundingarb/internal/domain"
	"github.com/mdelgado-fx/fundingarb/internal/ports"
)

// MarketState is the mutable synthetic market one Venue exposes per symbol.
type MarketState struct {
	MarkPrice       float64
	FundingRate     float64
	OpenInterestUsd float64
	SpreadBps       float64
	BidDepthUsd     float64
	AskDepthUsd     float64
}

// Venue is an in-memory ports.VenueAdapter. Order, market-data and balance
// calls are rate-limited the way a real adapter would throttle itself
// client-side (tick-size, symbol-support and transfer calls are not),
// exercising
// golang.org/x/time/rate the way the teacher's polymarket client does.
type Venue struct {
	name    string
	limiter *rate.Limiter

	mu        sync.Mutex
	balance   float64
	positions map[string]domain.Position
	orders    map[string]domain.OrderResponse
	markets   map[string]MarketState
}

// NewVenue creates a simulated venue named name with startingBalance USD
// collateral and no open positions.
func NewVenue(name string, startingBalance float64) *Venue {
	return &Venue{
		name:      name,
		limiter:   rate.NewLimiter(rate.Limit(20), 20),
		balance:   startingBalance,
		positions: make(map[string]domain.Position),
		orders:    make(map[string]domain.OrderResponse),
		markets:   make(map[string]MarketState),
	}
}

// SetMarket seeds or updates the synthetic market for symbol.
func (v *Venue) SetMarket(symbol string, state MarketState) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.markets[symbol] = state
}

func (v *Venue) Name() string { return v.name }

func (v *Venue) GetBalance(ctx context.Context) (float64, error) {
	if err := v.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balance, nil
}

func (v *Venue) GetPositions(ctx context.Context) ([]domain.Position, error) {
	if err := v.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]domain.Position, 0, len(v.positions))
	for _, p := range v.positions {
		out = append(out, p)
	}
	return out, nil
}

func (v *Venue) GetPosition(ctx context.Context, symbol string) (*domain.Position, error) {
	if err := v.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	p, ok := v.positions[symbol]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// PlaceOrder fills immediately at the requested price (or mark for MARKET
// orders), simulating a cooperative venue. reduceOnly orders reduce or
// close the existing position; entry orders open or add to one.
func (v *Venue) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResponse, error) {
	if err := v.limiter.Wait(ctx); err != nil {
		return domain.OrderResponse{}, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	market, ok := v.markets[req.Symbol]
	if !ok {
		return domain.OrderResponse{}, &domain.ExchangeError{Venue: v.name, Code: "UNKNOWN_SYMBOL", Err: fmt.Errorf("no market for %s", req.Symbol)}
	}

	fillPrice := req.Price
	if req.Type == domain.Market || fillPrice <= 0 {
		fillPrice = market.MarkPrice
	}

	orderID := uuid.New().String()
	resp := domain.OrderResponse{OrderID: orderID, Status: domain.Filled, FilledSize: req.Size, AverageFillPrice: fillPrice}
	v.orders[orderID] = resp

	if req.ReduceOnly {
		pos, exists := v.positions[req.Symbol]
		if !exists {
			return resp, nil
		}
		pos.Size -= req.Size
		if pos.Size <= sizeEpsilon {
			delete(v.positions, req.Symbol)
		} else {
			v.positions[req.Symbol] = pos
		}
		return resp, nil
	}

	pos, exists := v.positions[req.Symbol]
	if !exists {
		v.positions[req.Symbol] = domain.Position{
			Venue: v.name, Symbol: req.Symbol, Side: req.Side, Size: req.Size,
			EntryPrice: fillPrice, MarkPrice: market.MarkPrice, Leverage: 1, MarginUsed: req.Size * fillPrice,
		}
	} else {
		pos.Size += req.Size
		v.positions[req.Symbol] = pos
	}

	return resp, nil
}

const sizeEpsilon = 1e-4

func (v *Venue) CancelOrder(ctx context.Context, orderID, symbol string) (bool, error) {
	if err := v.limiter.Wait(ctx); err != nil {
		return false, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	resp, ok := v.orders[orderID]
	if !ok || resp.Status.Terminal() {
		return false, nil
	}
	resp.Status = domain.Cancelled
	v.orders[orderID] = resp
	return true, nil
}

func (v *Venue) CancelAllOrders(ctx context.Context, symbol string) (int, error) {
	if err := v.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	count := 0
	for id, resp := range v.orders {
		if !resp.Status.Terminal() {
			resp.Status = domain.Cancelled
			v.orders[id] = resp
			count++
		}
	}
	return count, nil
}

func (v *Venue) GetOrderStatus(ctx context.Context, orderID, symbol string) (domain.OrderResponse, error) {
	if err := v.limiter.Wait(ctx); err != nil {
		return domain.OrderResponse{}, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	resp, ok := v.orders[orderID]
	if !ok {
		return domain.OrderResponse{}, &domain.ExchangeError{Venue: v.name, Code: "UNKNOWN_ORDER", Err: fmt.Errorf("%s", orderID)}
	}
	return resp, nil
}

func (v *Venue) GetMarkPrice(ctx context.Context, symbol string) (float64, error) {
	if err := v.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	m, ok := v.markets[symbol]
	if !ok {
		return 0, &domain.ExchangeError{Venue: v.name, Code: "UNKNOWN_SYMBOL", Err: fmt.Errorf("%s", symbol)}
	}
	return m.MarkPrice, nil
}

func (v *Venue) GetBestBidAsk(ctx context.Context, symbol string) (domain.BestBidAsk, error) {
	if err := v.limiter.Wait(ctx); err != nil {
		return domain.BestBidAsk{}, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	m, ok := v.markets[symbol]
	if !ok {
		return domain.BestBidAsk{}, &domain.ExchangeError{Venue: v.name, Code: "UNKNOWN_SYMBOL"}
	}
	halfSpread := m.MarkPrice * (m.SpreadBps / 10_000) / 2
	return domain.BestBidAsk{BestBid: m.MarkPrice - halfSpread, BestAsk: m.MarkPrice + halfSpread}, nil
}

func (v *Venue) GetTickSize(ctx context.Context, symbol string) (float64, error) {
	return 0.01, nil
}

func (v *Venue) SupportsSymbol(ctx context.Context, symbol string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.markets[symbol]
	return ok
}

func (v *Venue) TransferInternal(ctx context.Context, amount float64, toPerp bool) (string, error) {
	return uuid.New().String(), nil
}

func (v *Venue) DepositExternal(ctx context.Context, amount float64, asset, destination string) (string, error) {
	return "", ports.ErrNotSupported
}

func (v *Venue) WithdrawExternal(ctx context.Context, amount float64, asset, destination string) (string, error) {
	return "", ports.ErrNotSupported
}

// bookDepth synthesizes a domain.OrderBook from the market's summarized
// depth figures; it backs the exported OrderBook accessor.
func (v *Venue) bookDepth(symbol string) domain.OrderBook {
	v.mu.Lock()
	defer v.mu.Unlock()
	m := v.markets[symbol]
	halfSpread := m.MarkPrice * (m.SpreadBps / 10_000) / 2
	bid := m.MarkPrice - halfSpread
	ask := m.MarkPrice + halfSpread
	return domain.OrderBook{
		Symbol: symbol,
		Venue:  v.name,
		Bids:   []domain.BookEntry{{Price: bid, Size: m.BidDepthUsd / math.Max(bid, 1e-9)}},
		Asks:   []domain.BookEntry{{Price: ask, Size: m.AskDepthUsd / math.Max(ask, 1e-9)}},
	}
}

// OrderBook exposes the synthetic book for symbol; used by TWAP scheduling
// and tests that need a domain.OrderBook shape rather than individual depth
// figures.
func (v *Venue) OrderBook(symbol string) domain.OrderBook {
	return v.bookDepth(symbol)
}
