package core

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mdelgado-fx/fundingarb/internal/domain"
)

func TestNormalizeSymbolKeyStripsSuffixes(t *testing.T) {
	assert.Equal(t, "BINANCE:BTC", NormalizeSymbolKey("binance", "BTC-PERP"))
	assert.Equal(t, "BINANCE:BTC", NormalizeSymbolKey("binance", "btcusdt"))
	assert.Equal(t, "HYPERLIQUID:ETH", NormalizeSymbolKey("hyperliquid", "ETHPERP"))
}

func TestSingleLegGroupsDetectsMatchedPair(t *testing.T) {
	positions := []domain.Position{
		{Venue: "A", Symbol: "BTC-PERP", Side: domain.Long, Size: 1},
		{Venue: "B", Symbol: "BTC-PERP", Side: domain.Short, Size: 1},
	}
	assert.Empty(t, SingleLegGroups(positions))
}

func TestSingleLegGroupsFlagsSameVenueBothSides(t *testing.T) {
	positions := []domain.Position{
		{Venue: "A", Symbol: "BTC-PERP", Side: domain.Long, Size: 1},
		{Venue: "A", Symbol: "BTC-PERP", Side: domain.Short, Size: 1},
	}
	got := SingleLegGroups(positions)
	assert.Len(t, got, 2)
}

func TestSingleLegGroupsFlagsUnmatchedSingle(t *testing.T) {
	positions := []domain.Position{
		{Venue: "A", Symbol: "BTC-PERP", Side: domain.Long, Size: 1},
	}
	got := SingleLegGroups(positions)
	assert.Len(t, got, 1)
}
