package simulated

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdelgado-fx/fundingarb/internal/domain"
)

func TestVenuePlaceOrderOpensPosition(t *testing.T) {
	v := NewVenue("test", 10_000)
	v.SetMarket("BTC", MarketState{MarkPrice: 50_000, FundingRate: 0.0001, OpenInterestUsd: 1_000_000, SpreadBps: 2, BidDepthUsd: 500_000, AskDepthUsd: 500_000})

	req, err := domain.NewOrderRequest("BTC", domain.Long, domain.Limit, 0.1, 50_000, domain.GTC, false)
	require.NoError(t, err)

	resp, err := v.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.Filled, resp.Status)

	pos, err := v.GetPosition(context.Background(), "BTC")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.InDelta(t, 0.1, pos.Size, 1e-9)
}

func TestVenuePlaceOrderUnknownSymbol(t *testing.T) {
	v := NewVenue("test", 10_000)
	req, err := domain.NewOrderRequest("ETH", domain.Long, domain.Market, 1, 0, domain.IOC, false)
	require.NoError(t, err)

	_, err = v.PlaceOrder(context.Background(), req)
	assert.Error(t, err)
}

func TestVenueReduceOnlyClosesPosition(t *testing.T) {
	v := NewVenue("test", 10_000)
	v.SetMarket("BTC", MarketState{MarkPrice: 50_000, SpreadBps: 2, BidDepthUsd: 500_000, AskDepthUsd: 500_000})

	open, _ := domain.NewOrderRequest("BTC", domain.Long, domain.Limit, 0.1, 50_000, domain.GTC, false)
	_, err := v.PlaceOrder(context.Background(), open)
	require.NoError(t, err)

	closeReq, _ := domain.NewOrderRequest("BTC", domain.Short, domain.Limit, 0.1, 50_000, domain.GTC, true)
	_, err = v.PlaceOrder(context.Background(), closeReq)
	require.NoError(t, err)

	pos, err := v.GetPosition(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Nil(t, pos)
}
