package core

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mdelgado-fx/fundingarb/internal/domain"
	"github.com/mdelgado-fx/fundingarb/internal/ports"
)

// TWAPConfidence rates how much slice-sizing risk a schedule carries.
type TWAPConfidence string

const (
	ConfidenceHigh   TWAPConfidence = "HIGH"
	ConfidenceMedium TWAPConfidence = "MEDIUM"
	ConfidenceLow    TWAPConfidence = "LOW"
)

// TWAPStatus is the lifecycle of one active schedule.
type TWAPStatus string

const (
	TWAPExecuting TWAPStatus = "EXECUTING"
	TWAPCompleted TWAPStatus = "COMPLETED"
	TWAPFailed    TWAPStatus = "FAILED"
	TWAPPaused    TWAPStatus = "PAUSED"
	TWAPAborted   TWAPStatus = "ABORTED"
)

// TWAPSchedule is the plan computed once at creation time (§4.7 steps 1-5).
type TWAPSchedule struct {
	ID               string
	Symbol           string
	LongVenue        string
	ShortVenue       string
	TotalNotional    float64
	SliceCount       int
	SliceSize        float64
	IntervalMinutes  int
	EstimatedSlippageBps float64
	Confidence       TWAPConfidence
}

// TWAPExecution is the live, mutable state of a running schedule.
type TWAPExecution struct {
	Schedule          TWAPSchedule
	Status            TWAPStatus
	SlicesExecuted    int
	ErrorCount        int
	AvgLongFillPrice  float64
	AvgShortFillPrice float64
	RunningSlippageBps float64
}

const eightHourEpochMinutes = 8 * 60

// TWAPProfiles bundles the optional calibrated inputs BuildTWAPSchedule
// consults when available: per-venue liquidity/replenishment profiles and a
// calibrated slippage predictor. Any field left nil falls back to the
// order-book-only heuristic.
type TWAPProfiles struct {
	LongLiquidity      *domain.LiquidityProfile
	ShortLiquidity     *domain.LiquidityProfile
	Replenishment      *domain.ReplenishmentProfile
	Slippage           *SlippageModel
}

// BuildTWAPSchedule implements §4.7 steps 1-5, failing when the book is too
// thin to safely slice into. profiles is optional; when supplied, its
// effective (percentile) depths replace the raw order-book depths and its
// calibrated slippage model replaces the sqrt-law estimate.
func BuildTWAPSchedule(symbol, longVenue, shortVenue string, totalNotional float64, maxDurationMinutes int, longBook, shortBook domain.OrderBook, profiles *TWAPProfiles) (TWAPSchedule, *domain.CoreError) {
	effectiveDepth := math.Min(longBook.AskDepthUsd(), shortBook.BidDepthUsd())
	hour := time.Now().UTC().Hour()
	if profiles != nil && profiles.LongLiquidity != nil && profiles.ShortLiquidity != nil {
		longDepth := profiles.LongLiquidity.EffectiveAskDepth * profiles.LongLiquidity.DepthMultiplierAt(hour)
		shortDepth := profiles.ShortLiquidity.EffectiveBidDepth * profiles.ShortLiquidity.DepthMultiplierAt(hour)
		if longDepth > 0 && shortDepth > 0 {
			effectiveDepth = math.Min(longDepth, shortDepth)
		}
	}

	maxSafePerSlice := math.Min(effectiveDepth*0.05, 50_000)
	if profiles != nil && profiles.Replenishment != nil && profiles.Replenishment.RecommendedMaxIntervalMin > 0 {
		// a replenishment-aware cap never loosens the raw depth cap, only tightens it
		recoveryCap := profiles.Replenishment.AvgTurnoverPerMin * profiles.Replenishment.RecommendedMinIntervalMin
		if recoveryCap > 0 && recoveryCap < maxSafePerSlice {
			maxSafePerSlice = recoveryCap
		}
	}
	if maxSafePerSlice < 1_000 {
		return TWAPSchedule{}, domain.NewError(domain.InsufficientLiquidity, symbol+": book too thin for TWAP", nil)
	}

	sliceCount := int(math.Ceil(totalNotional / maxSafePerSlice))
	sliceCount = clampInt(sliceCount, 2, 24)
	sliceSize := totalNotional / float64(sliceCount)

	if maxDurationMinutes <= 0 {
		maxDurationMinutes = 240
	}
	maxTotalMinutes := math.Min(float64(maxDurationMinutes), eightHourEpochMinutes-30)
	idealInterval := math.Floor(maxTotalMinutes / float64(sliceCount))
	intervalMinutes := clampInt(int(idealInterval), 5, 30)
	if profiles != nil && profiles.Replenishment != nil && profiles.Replenishment.RecommendedMinIntervalMin > 0 {
		intervalMinutes = clampInt(intervalMinutes, int(profiles.Replenishment.RecommendedMinIntervalMin), 30)
	}

	avgSpreadBps := (longBook.SpreadBps() + shortBook.SpreadBps()) / 2
	var perSliceSlippageBps float64
	if profiles != nil && profiles.Slippage != nil && profiles.Slippage.Coefficients().SampleSize >= minSlippageSamples {
		perSliceSlippageBps = profiles.Slippage.Predict(sliceSize, effectiveDepth, avgSpreadBps)
	} else {
		perSliceSlippageBps = avgSpreadBps/2 + math.Sqrt(sliceSize/effectiveDepth)*10
	}
	totalSlippageBps := 2 * perSliceSlippageBps

	usageRatio := sliceSize / effectiveDepth
	confidence := ConfidenceLow
	switch {
	case usageRatio < 0.03 && sliceCount <= 8:
		confidence = ConfidenceHigh
	case usageRatio < 0.08 && sliceCount <= 16:
		confidence = ConfidenceMedium
	}

	return TWAPSchedule{
		ID:                   uuid.New().String(),
		Symbol:               symbol,
		LongVenue:            longVenue,
		ShortVenue:           shortVenue,
		TotalNotional:        totalNotional,
		SliceCount:           sliceCount,
		SliceSize:            sliceSize,
		IntervalMinutes:      intervalMinutes,
		EstimatedSlippageBps: totalSlippageBps,
		Confidence:           confidence,
	}, nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// TWAPEngine drives a schedule's slices to completion, issuing both legs of
// every slice concurrently as resting GTC limit orders at mark.
type TWAPEngine struct {
	venues map[string]ports.VenueAdapter
	store  ports.StateStore

	mu         sync.Mutex
	executions map[string]*TWAPExecution
}

// NewTWAPEngine wires the adapters slices are placed through and the
// optional store executions are persisted to.
func NewTWAPEngine(venues map[string]ports.VenueAdapter, store ports.StateStore) *TWAPEngine {
	return &TWAPEngine{venues: venues, store: store, executions: make(map[string]*TWAPExecution)}
}

// Start begins executing schedule: the first slice fires immediately, the
// rest are scheduled at schedule.IntervalMinutes. Start returns once the
// schedule reaches a terminal status (COMPLETED or FAILED), when ctx is
// cancelled between slices (the execution is then PAUSED), or before the
// next slice once Pause or Abort has changed the status; callers typically
// run it in its own goroutine.
func (e *TWAPEngine) Start(ctx context.Context, schedule TWAPSchedule) *TWAPExecution {
	exec := &TWAPExecution{Schedule: schedule, Status: TWAPExecuting}
	e.mu.Lock()
	e.executions[schedule.ID] = exec
	e.mu.Unlock()

	interval := time.Duration(schedule.IntervalMinutes) * time.Minute

	for i := 0; i < schedule.SliceCount; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				e.setStatus(exec, TWAPPaused)
				return exec
			case <-time.After(interval):
			}
		}

		if e.status(exec) != TWAPExecuting {
			return exec
		}

		if err := e.executeSlice(ctx, exec); err != nil {
			exec.ErrorCount++
			if exec.ErrorCount > schedule.SliceCount/2 {
				e.setStatus(exec, TWAPFailed)
				return exec
			}
		}
		exec.SlicesExecuted++
		if e.store != nil {
			_ = e.store.SaveTWAPExecution(ctx, toRecord(exec))
		}
	}

	e.setStatus(exec, TWAPCompleted)
	return exec
}

// Pause marks a running execution PAUSED; Start sees the new status before
// its next slice and returns without placing it.
func (e *TWAPEngine) Pause(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if exec, ok := e.executions[id]; ok {
		exec.Status = TWAPPaused
	}
}

// Abort marks a running execution ABORTED.
func (e *TWAPEngine) Abort(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if exec, ok := e.executions[id]; ok {
		exec.Status = TWAPAborted
	}
}

// Inspect returns the current state of execution id, if tracked.
func (e *TWAPEngine) Inspect(id string) (*TWAPExecution, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	exec, ok := e.executions[id]
	return exec, ok
}

func (e *TWAPEngine) status(exec *TWAPExecution) TWAPStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return exec.Status
}

func (e *TWAPEngine) setStatus(exec *TWAPExecution, s TWAPStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	exec.Status = s
}

func (e *TWAPEngine) executeSlice(ctx context.Context, exec *TWAPExecution) error {
	longAdapter := e.venues[exec.Schedule.LongVenue]
	shortAdapter := e.venues[exec.Schedule.ShortVenue]
	if longAdapter == nil || shortAdapter == nil {
		return domain.NewError(domain.AdapterUnavailable, exec.Schedule.Symbol, nil)
	}

	longMark, lerr := longAdapter.GetMarkPrice(ctx, exec.Schedule.Symbol)
	shortMark, serr := shortAdapter.GetMarkPrice(ctx, exec.Schedule.Symbol)
	if lerr != nil || serr != nil {
		return domain.NewError(domain.VenueError, exec.Schedule.Symbol, lerr)
	}

	sliceBaseSize := exec.Schedule.SliceSize / ((longMark + shortMark) / 2)

	longReq, err := domain.NewOrderRequest(exec.Schedule.Symbol, domain.Long, domain.Limit, sliceBaseSize, longMark, domain.GTC, false)
	if err != nil {
		return err
	}
	shortReq, err := domain.NewOrderRequest(exec.Schedule.Symbol, domain.Short, domain.Limit, sliceBaseSize, shortMark, domain.GTC, false)
	if err != nil {
		return err
	}

	type placed struct {
		resp domain.OrderResponse
		err  error
	}
	longCh := make(chan placed, 1)
	shortCh := make(chan placed, 1)
	go func() {
		resp, err := longAdapter.PlaceOrder(ctx, longReq)
		longCh <- placed{resp, err}
	}()
	go func() {
		resp, err := shortAdapter.PlaceOrder(ctx, shortReq)
		shortCh <- placed{resp, err}
	}()
	longResult := <-longCh
	shortResult := <-shortCh

	if longResult.err != nil || shortResult.err != nil {
		return domain.NewError(domain.OrderRejected, exec.Schedule.Symbol, longResult.err)
	}

	longFilled := longResult.resp.FilledSize
	shortFilled := shortResult.resp.FilledSize
	if longFilled > 0 && shortFilled > 0 {
		fillRatio := math.Min(longFilled, shortFilled) / math.Max(longFilled, shortFilled)
		if fillRatio < 0.9 {
			slog.Warn("TWAP slice fill imbalance", "id", exec.Schedule.ID, "symbol", exec.Schedule.Symbol, "fill_ratio", fillRatio)
		}
	}

	n := float64(exec.SlicesExecuted + 1)
	exec.AvgLongFillPrice = runningAverage(exec.AvgLongFillPrice, longResult.resp.AverageFillPrice, n)
	exec.AvgShortFillPrice = runningAverage(exec.AvgShortFillPrice, shortResult.resp.AverageFillPrice, n)
	exec.RunningSlippageBps = runningAverage(exec.RunningSlippageBps, exec.Schedule.EstimatedSlippageBps, n)

	return nil
}

func runningAverage(prevAvg, sample, n float64) float64 {
	if n <= 1 {
		return sample
	}
	return prevAvg + (sample-prevAvg)/n
}

func toRecord(exec *TWAPExecution) ports.TWAPExecutionRecord {
	return ports.TWAPExecutionRecord{
		ID:                 exec.Schedule.ID,
		Symbol:             exec.Schedule.Symbol,
		LongVenue:          exec.Schedule.LongVenue,
		ShortVenue:         exec.Schedule.ShortVenue,
		Status:             string(exec.Status),
		SlicesExecuted:     exec.SlicesExecuted,
		SliceCount:         exec.Schedule.SliceCount,
		AvgLongFillPrice:   exec.AvgLongFillPrice,
		AvgShortFillPrice:  exec.AvgShortFillPrice,
		RunningSlippageBps: exec.RunningSlippageBps,
		UpdatedAt:          time.Now(),
	}
}
