package core

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCalibrateLiquidityProfileComputesPercentileDepth(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var snapshots []LiquiditySnapshot
	for i := 0; i < 20; i++ {
		snapshots = append(snapshots, LiquiditySnapshot{
			Timestamp:   base.Add(time.Duration(i) * time.Hour),
			BidDepthUsd: float64(100_000 + i*10_000),
			AskDepthUsd: float64(100_000 + i*10_000),
			SpreadBps:   2,
		})
	}

	p := CalibrateLiquidityProfile("BTC", "binance", snapshots)
	assert.Equal(t, 20, p.SampleCount)
	assert.Greater(t, p.EffectiveBidDepth, 0.0)
	assert.Less(t, p.EffectiveBidDepth, 300_000.0)
	assert.InDelta(t, 2, p.AvgSpreadBps, 1e-9)
	assert.Greater(t, p.ConfidenceScore, 0.0)
}

func TestCalibrateLiquidityProfileEmptyInput(t *testing.T) {
	p := CalibrateLiquidityProfile("BTC", "binance", nil)
	assert.Equal(t, 0, p.SampleCount)
	assert.Equal(t, 1.0, p.DepthMultiplierAt(5))
}

func TestCalibrateReplenishmentProfileMedianRecovery(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	events := []DepletionEvent{
		{Timestamp: base, BaselineUsd: 100_000, TroughUsd: 90_000, RecoveryMinutes: 5, TurnoverUsd: 10_000, WindowMinutes: 10},
		{Timestamp: base.Add(time.Hour), BaselineUsd: 100_000, TroughUsd: 75_000, RecoveryMinutes: 15, TurnoverUsd: 25_000, WindowMinutes: 10},
		{Timestamp: base.Add(2 * time.Hour), BaselineUsd: 100_000, TroughUsd: 50_000, RecoveryMinutes: 30, TurnoverUsd: 50_000, WindowMinutes: 10},
	}

	p := CalibrateReplenishmentProfile("BTC", "binance", events)
	assert.Greater(t, p.AvgTurnoverPerMin, 0.0)
	assert.InDelta(t, 30, p.RecoveryTimeMinAt50Pct, 1e-9)
	assert.Greater(t, p.RecoveryTimeMinAt10Pct, 0.0)
}

func TestCalibrateSlippageModelFitsLinearRelationship(t *testing.T) {
	var obs []SlippageObservation
	for i := 1; i <= 20; i++ {
		size := float64(i * 10_000)
		depth := 1_000_000.0
		spread := 1.0 + float64(i%5)*0.5
		actual := 5.0*math.Sqrt(size/depth) + 0.1*spread + 1.0
		obs = append(obs, SlippageObservation{PositionUsd: size, DepthUsd: depth, SpreadBps: spread, ActualSlippageBps: actual})
	}

	coeffs := CalibrateSlippageModel("BTC", obs)
	assert.Equal(t, 20, coeffs.SampleSize)
	assert.InDelta(t, 5.0, coeffs.Alpha, 0.5)
	assert.InDelta(t, 1.0, coeffs.Gamma, 0.5)
	assert.Greater(t, coeffs.RSquared, 0.9)

	model := NewSlippageModel(coeffs)
	predicted := model.Predict(100_000, 1_000_000, 2.0)
	assert.Greater(t, predicted, 0.0)
}

func TestCalibrateSlippageModelTooFewSamplesReturnsZeroValue(t *testing.T) {
	coeffs := CalibrateSlippageModel("BTC", []SlippageObservation{{PositionUsd: 1, DepthUsd: 1, SpreadBps: 1, ActualSlippageBps: 1}})
	assert.Equal(t, 0.0, coeffs.Alpha)
	assert.Equal(t, 1, coeffs.SampleSize)
}
