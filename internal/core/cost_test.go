package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCostCalculatorFees(t *testing.T) {
	c := CostCalculator{}
	assert.InDelta(t, 20.0, c.Fees(10_000, 0.002), 1e-9)
}

func TestCostCalculatorSlippageMarketWithOI(t *testing.T) {
	c := CostCalculator{}
	got := c.Slippage(10_000, 99, 101, 1_000_000, true)
	assert.Greater(t, got, 0.0)
}

func TestCostCalculatorSlippageZeroMidFallsBackToDefaultSpread(t *testing.T) {
	c := CostCalculator{}
	withZeroMid := c.Slippage(10_000, 0, 0, 0, false)
	assert.InDelta(t, 10_000*(1e-4+1e-4), withZeroMid, 1e-9)
}

func TestCostCalculatorSlippageNoOIFallback(t *testing.T) {
	c := CostCalculator{}
	market := c.Slippage(10_000, 99, 101, 0, true)
	limit := c.Slippage(10_000, 99, 101, 0, false)
	assert.Greater(t, market, limit)
}

func TestCostCalculatorSlippageImpactCappedAtTwoPercent(t *testing.T) {
	c := CostCalculator{}
	got := c.Slippage(1_000_000, 50, 150, 1, true) // notional >> OI, share clamps to 1
	assert.LessOrEqual(t, got, 1_000_000*(0.5+0.02)+1e-6)
}

func TestCostCalculatorFundingRateImpactZeroOI(t *testing.T) {
	c := CostCalculator{}
	assert.Equal(t, 0.0, c.FundingRateImpact(10_000, 0, 0.001))
}

func TestCostCalculatorFundingRateImpactCapped(t *testing.T) {
	c := CostCalculator{}
	got := c.FundingRateImpact(1_000_000_000, 1, 0.001)
	assert.InDelta(t, 0.001*0.1, got, 1e-12)
}
