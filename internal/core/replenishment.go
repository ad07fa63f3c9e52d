package core

import (
	"sort"
	"time"

	"github.com/mdelgado-fx/fundingarb/internal/domain"
)

// DepletionEvent records one observed depth depletion-and-recovery cycle:
// book depth dropped from baselineUsd to troughUsd and took recoveryMinutes
// to return to baselineUsd, the raw material a ReplenishmentProfile is
// calibrated from.
type DepletionEvent struct {
	Timestamp       time.Time
	BaselineUsd     float64
	TroughUsd       float64
	RecoveryMinutes float64
	TurnoverUsd     float64 // notional traded during the depletion window
	WindowMinutes   float64
}

func (e DepletionEvent) depletionPct() float64 {
	if e.BaselineUsd <= 0 {
		return 0
	}
	return (e.BaselineUsd - e.TroughUsd) / e.BaselineUsd
}

// CalibrateReplenishmentProfile derives a domain.ReplenishmentProfile from
// observed depletion/recovery cycles: recovery times at each depletion
// tier are the median recovery time among events whose depletion percentage
// was at or beyond that tier, and recommended TWAP slice intervals bracket
// the 25%-depletion recovery time.
func CalibrateReplenishmentProfile(symbol, venue string, events []DepletionEvent) domain.ReplenishmentProfile {
	profile := domain.ReplenishmentProfile{Symbol: symbol, Venue: venue}
	if len(events) == 0 {
		return profile
	}

	var turnoverSum, minutesSum float64
	hourTurnover := [24][]float64{}
	for _, e := range events {
		if e.WindowMinutes > 0 {
			turnoverSum += e.TurnoverUsd
			minutesSum += e.WindowMinutes
		}
		h := e.Timestamp.UTC().Hour()
		if e.WindowMinutes > 0 {
			hourTurnover[h] = append(hourTurnover[h], e.TurnoverUsd/e.WindowMinutes)
		}
	}
	if minutesSum > 0 {
		profile.AvgTurnoverPerMin = turnoverSum / minutesSum
	}

	profile.RecoveryTimeMinAt10Pct = recoveryAtTier(events, 0.10)
	profile.RecoveryTimeMinAt25Pct = recoveryAtTier(events, 0.25)
	profile.RecoveryTimeMinAt50Pct = recoveryAtTier(events, 0.50)

	for h := 0; h < 24; h++ {
		if len(hourTurnover[h]) == 0 || profile.AvgTurnoverPerMin <= 0 {
			continue
		}
		profile.HourlyTurnoverMultiplier[h] = mean(hourTurnover[h]) / profile.AvgTurnoverPerMin
	}

	if profile.RecoveryTimeMinAt25Pct > 0 {
		profile.RecommendedMinIntervalMin = profile.RecoveryTimeMinAt10Pct
		profile.RecommendedMaxIntervalMin = profile.RecoveryTimeMinAt50Pct
		if profile.RecommendedMaxIntervalMin < profile.RecommendedMinIntervalMin {
			profile.RecommendedMaxIntervalMin = profile.RecommendedMinIntervalMin
		}
	}

	profile.ConfidenceScore = confidenceFromSampleCount(len(events), minLiquiditySamples)
	return profile
}

// recoveryAtTier returns the median recovery time among events whose
// depletion reached at least tier; 0 when no event qualifies.
func recoveryAtTier(events []DepletionEvent, tier float64) float64 {
	var times []float64
	for _, e := range events {
		if e.depletionPct() >= tier {
			times = append(times, e.RecoveryMinutes)
		}
	}
	if len(times) == 0 {
		return 0
	}
	sort.Float64s(times)
	mid := len(times) / 2
	if len(times)%2 == 0 {
		return (times[mid-1] + times[mid]) / 2
	}
	return times[mid]
}
