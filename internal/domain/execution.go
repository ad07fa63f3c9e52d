package domain

import (
	"fmt"
	"math"
	"time"
)

// OrderRequest is what the core asks a venue adapter to place.
type OrderRequest struct {
	Symbol     string
	Side       OrderSide
	Type       OrderType
	Size       float64
	Price      float64 // meaningful only when Type == Limit; see NewOrderRequest
	TIF        TimeInForce
	ReduceOnly bool
}

// NewOrderRequest validates the zero-price-means-market footgun: a LIMIT
// request with Price == 0 is rejected rather than silently treated as a
// market order at placement time. This is one of the preserved source
// behaviors — the distinction must surface as a typed error, not a silent
// reinterpretation.
func NewOrderRequest(symbol string, side OrderSide, typ OrderType, size, price float64, tif TimeInForce, reduceOnly bool) (OrderRequest, error) {
	if typ == Limit && price == 0 {
		return OrderRequest{}, NewError(OrderRejected, fmt.Sprintf("%s/%s limit order with zero price", symbol, side), nil)
	}
	return OrderRequest{
		Symbol:     symbol,
		Side:       side,
		Type:       typ,
		Size:       size,
		Price:      price,
		TIF:        tif,
		ReduceOnly: reduceOnly,
	}, nil
}

// OrderResponse is what a venue adapter reports back for a placed order.
type OrderResponse struct {
	OrderID          string
	Status           OrderStatus
	FilledSize       float64
	AverageFillPrice float64
	Err              error
}

// sizeEpsilon is the tolerance used wherever the spec compares filled vs.
// requested size (§8: delta neutrality and fill-completeness checks).
const sizeEpsilon = 1e-4

// FillConsistent reports the OrderResponse invariant: filledSize <=
// requestedSize, and when Status is Filled, filledSize == requestedSize
// within sizeEpsilon.
func (r OrderResponse) FillConsistent(requestedSize float64) bool {
	if r.FilledSize > requestedSize+sizeEpsilon {
		return false
	}
	if r.Status == Filled {
		d := r.FilledSize - requestedSize
		if d < 0 {
			d = -d
		}
		return d <= sizeEpsilon
	}
	return true
}

// EstimatedCosts breaks down the projected cost of entering and exiting a
// plan's pair.
type EstimatedCosts struct {
	EntryFees float64
	ExitFees  float64
	Slippage  float64
	Total     float64
}

// ExecutionPlan is the fully-costed, ready-to-submit pair derived from one
// Opportunity. Construction fails (see ExecutionPlanBuilder) whenever the
// expectedNetReturnPerPeriod invariant cannot be satisfied.
type ExecutionPlan struct {
	Opportunity                Opportunity
	LongOrder                  OrderRequest
	ShortOrder                 OrderRequest
	BaseAssetSize              float64
	EstimatedCosts             EstimatedCosts
	ExpectedNetReturnPerPeriod float64
	Timestamp                  time.Time
}

// Valid reports the plan's structural invariants: both legs sized at
// baseAssetSize, positive, finite prices, and a positive expected return.
func (p ExecutionPlan) Valid() bool {
	if p.BaseAssetSize <= 0 {
		return false
	}
	if p.LongOrder.Size != p.BaseAssetSize || p.ShortOrder.Size != p.BaseAssetSize {
		return false
	}
	for _, px := range []float64{p.LongOrder.Price, p.ShortOrder.Price} {
		if px <= 0 || math.IsNaN(px) || math.IsInf(px, 0) {
			return false
		}
	}
	if p.ExpectedNetReturnPerPeriod <= 0 {
		return false
	}
	return true
}

// AsymmetricFill tracks a pair where exactly one leg filled and the other
// did not, from detection until it is resolved (completed or closed).
type AsymmetricFill struct {
	Symbol       string
	LongOrderID  string
	ShortOrderID string
	LongFilled   bool
	ShortFilled  bool
	LongVenue    string
	ShortVenue   string
	PositionSize float64
	Opportunity  Opportunity
	Timestamp    time.Time
}

// Valid reports the exactly-one-filled invariant.
func (a AsymmetricFill) Valid() bool {
	return a.LongFilled != a.ShortFilled
}

// FilledVenue returns the venue whose leg filled.
func (a AsymmetricFill) FilledVenue() string {
	if a.LongFilled {
		return a.LongVenue
	}
	return a.ShortVenue
}

// UnfilledVenue returns the venue whose leg did not fill.
func (a AsymmetricFill) UnfilledVenue() string {
	if a.LongFilled {
		return a.ShortVenue
	}
	return a.LongVenue
}
