package core

import (
	"sort"
	"time"

	"github.com/mdelgado-fx/fundingarb/internal/domain"
)

// LiquiditySnapshot is one observed (bidDepth, askDepth, spread) reading for
// a (symbol, venue) at a point in time, the raw material a LiquidityProfile
// is calibrated from.
type LiquiditySnapshot struct {
	Timestamp   time.Time
	BidDepthUsd float64
	AskDepthUsd float64
	SpreadBps   float64
}

// minLiquiditySamples sets the confidence scale: confidence grows linearly
// with the sample count and reaches 1.0 at ten times this count. A profile
// is never withheld for having few samples — callers decide whether a
// low-confidence profile is still usable.
const minLiquiditySamples = 5

// CalibrateLiquidityProfile derives a domain.LiquidityProfile from historical
// depth/spread snapshots: effective depth is the 25th percentile of each
// side (conservative against transient spikes), hourly multipliers compare
// each hour-of-day bucket's mean depth/spread against the 24h mean.
func CalibrateLiquidityProfile(symbol, venue string, snapshots []LiquiditySnapshot) domain.LiquidityProfile {
	profile := domain.LiquidityProfile{Symbol: symbol, Venue: venue, CalibrationTime: time.Now()}
	if len(snapshots) == 0 {
		return profile
	}

	bids := make([]float64, len(snapshots))
	asks := make([]float64, len(snapshots))
	var spreadSum float64
	hourDepth := [24][]float64{}
	hourSpread := [24][]float64{}

	for i, s := range snapshots {
		bids[i] = s.BidDepthUsd
		asks[i] = s.AskDepthUsd
		spreadSum += s.SpreadBps
		h := s.Timestamp.UTC().Hour()
		hourDepth[h] = append(hourDepth[h], (s.BidDepthUsd+s.AskDepthUsd)/2)
		hourSpread[h] = append(hourSpread[h], s.SpreadBps)
	}

	profile.EffectiveBidDepth = percentile(bids, 0.25)
	profile.EffectiveAskDepth = percentile(asks, 0.25)
	profile.AvgSpreadBps = spreadSum / float64(len(snapshots))
	profile.SampleCount = len(snapshots)

	overallDepth := mean(append(append([]float64{}, bids...), asks...))
	for h := 0; h < 24; h++ {
		if len(hourDepth[h]) == 0 {
			continue
		}
		if overallDepth > 0 {
			profile.HourlyDepthMultiplier[h] = mean(hourDepth[h]) / overallDepth
		}
		if profile.AvgSpreadBps > 0 {
			profile.HourlySpreadMultiplier[h] = mean(hourSpread[h]) / profile.AvgSpreadBps
		}
	}

	profile.ConfidenceScore = confidenceFromSampleCount(profile.SampleCount, minLiquiditySamples)
	return profile
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64{}, values...)
	sort.Float64s(sorted)
	idx := int(p * float64(len(sorted)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// confidenceFromSampleCount saturates at 1.0 once sampleCount reaches 10x
// the minimum threshold, growing linearly below that.
func confidenceFromSampleCount(sampleCount, minSamples int) float64 {
	if sampleCount <= 0 {
		return 0
	}
	full := minSamples * 10
	if sampleCount >= full {
		return 1
	}
	return float64(sampleCount) / float64(full)
}
