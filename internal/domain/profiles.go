package domain

import "time"

// LiquidityProfile summarizes historical book depth and spread behavior for
// one (symbol, venue), refreshed on a calibration cadence independent of the
// decision cycle.
type LiquidityProfile struct {
	Symbol                 string
	Venue                  string
	EffectiveBidDepth      float64 // 25th percentile of historical snapshots
	EffectiveAskDepth      float64
	AvgSpreadBps           float64
	HourlyDepthMultiplier  [24]float64
	HourlySpreadMultiplier [24]float64
	ConfidenceScore        float64 // [0,1]
	SampleCount            int
	CalibrationTime        time.Time
}

// DepthMultiplierAt returns the multiplier for hour h (0-23), defaulting to
// 1 when the bucket was never populated.
func (p LiquidityProfile) DepthMultiplierAt(h int) float64 {
	if h < 0 || h > 23 || p.HourlyDepthMultiplier[h] <= 0 {
		return 1
	}
	return p.HourlyDepthMultiplier[h]
}

// SpreadMultiplierAt returns the multiplier for hour h (0-23), defaulting to
// 1 when the bucket was never populated.
func (p LiquidityProfile) SpreadMultiplierAt(h int) float64 {
	if h < 0 || h > 23 || p.HourlySpreadMultiplier[h] <= 0 {
		return 1
	}
	return p.HourlySpreadMultiplier[h]
}

// ReplenishmentProfile summarizes how quickly book depth recovers after
// depletion, per (symbol, venue).
type ReplenishmentProfile struct {
	Symbol                    string
	Venue                     string
	AvgTurnoverPerMin         float64
	RecoveryTimeMinAt10Pct    float64
	RecoveryTimeMinAt25Pct    float64
	RecoveryTimeMinAt50Pct    float64
	HourlyTurnoverMultiplier  [24]float64
	RecommendedMinIntervalMin float64
	RecommendedMaxIntervalMin float64
	ConfidenceScore           float64
}

// SlippageModelCoefficients are the calibrated (alpha, beta, gamma) used by
// SlippageModel to predict slippage in basis points from
// (positionUsd, bookDepthUsd, spreadBps): alpha*sqrt(size/depth) + beta*spread + gamma.
type SlippageModelCoefficients struct {
	Symbol         string
	Alpha          float64
	Beta           float64
	Gamma          float64
	RSquared       float64
	SampleSize     int
	LastCalibrated time.Time
}

// SpreadVolatilityMetrics is the 30-day volatility summary consumed by
// PortfolioOptimizer's volatility discount (§4.2.1 step 4).
type SpreadVolatilityMetrics struct {
	StabilityScore        float64 // [0,1]
	MaxHourlySpreadChange float64
	SpreadReversals       int
	SpreadDropsToZero     bool
}
