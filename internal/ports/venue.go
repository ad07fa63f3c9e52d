// Package ports declares the external-collaborator contracts the core
// depends on (§6). Adapters implementing these interfaces live outside the
// core and are substituted freely — in tests and in the CLI's paper mode,
// internal/adapters/simulated provides one implementation.
package ports

import (
	"context"

	"github.com/mdelgado-fx/fundingarb/internal/domain"
)

// VenueAdapter is the per-venue contract the core depends on (§6.1). Every
// method is synchronous from the caller's view; the adapter owns whatever
// network or rate-limiting machinery it needs underneath.
type VenueAdapter interface {
	Name() string

	GetBalance(ctx context.Context) (float64, error)
	GetPositions(ctx context.Context) ([]domain.Position, error)
	GetPosition(ctx context.Context, symbol string) (*domain.Position, error)

	PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResponse, error)
	CancelOrder(ctx context.Context, orderID, symbol string) (bool, error)
	CancelAllOrders(ctx context.Context, symbol string) (int, error)
	GetOrderStatus(ctx context.Context, orderID, symbol string) (domain.OrderResponse, error)

	GetMarkPrice(ctx context.Context, symbol string) (float64, error)
	// GetBestBidAsk is optional; adapters that do not support a dedicated
	// quote endpoint return ErrNotSupported and the caller synthesizes a
	// quote from the mark price (§4.3 step 6).
	GetBestBidAsk(ctx context.Context, symbol string) (domain.BestBidAsk, error)

	GetTickSize(ctx context.Context, symbol string) (float64, error)
	SupportsSymbol(ctx context.Context, symbol string) bool

	TransferInternal(ctx context.Context, amount float64, toPerp bool) (string, error)
	// DepositExternal and WithdrawExternal are optional; adapters without
	// external-transfer support return ErrNotSupported.
	DepositExternal(ctx context.Context, amount float64, asset, destination string) (string, error)
	WithdrawExternal(ctx context.Context, amount float64, asset, destination string) (string, error)
}

// ErrNotSupported is returned by optional VenueAdapter methods an adapter
// does not implement.
var ErrNotSupported = domain.NewError(domain.AdapterUnavailable, "operation not supported by this venue", nil)
