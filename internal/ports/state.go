package ports

import (
	"context"
	"time"

	"github.com/mdelgado-fx/fundingarb/internal/domain"
)

// TWAPExecutionRecord is the persisted view of one active or completed TWAP
// schedule (§6.4).
type TWAPExecutionRecord struct {
	ID              string
	Symbol          string
	LongVenue       string
	ShortVenue      string
	Status          string
	SlicesExecuted  int
	SliceCount      int
	AvgLongFillPrice  float64
	AvgShortFillPrice float64
	RunningSlippageBps float64
	UpdatedAt       time.Time
}

// StateStore is the optional persistence contract for §6.4. The core never
// touches storage directly. In the core only TWAPEngine writes through this
// interface (its execution records, when given a store); PositionManager's
// close locks and the LossTracker's ledgers are held in memory. A nil store
// is always valid — nothing
// in the core requires persistence to function within one process lifetime.
type StateStore interface {
	AcquireCloseLock(ctx context.Context, key string) (bool, error)
	ReleaseCloseLock(ctx context.Context, key string) error
	MarkRecentlyClosed(ctx context.Context, key string, at time.Time) error
	IsRecentlyClosed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	SaveTWAPExecution(ctx context.Context, rec TWAPExecutionRecord) error
	LoadTWAPExecution(ctx context.Context, id string) (*TWAPExecutionRecord, error)
	ListActiveTWAPExecutions(ctx context.Context) ([]TWAPExecutionRecord, error)

	SaveLossLedgerEntry(ctx context.Context, key string, entryCost float64) error
	SaveLossLedgerExit(ctx context.Context, key string, realized, exitCost float64) error
	LoadCumulativeLoss(ctx context.Context) (float64, error)

	SaveSlippageCoefficients(ctx context.Context, c domain.SlippageModelCoefficients) error
	LoadSlippageCoefficients(ctx context.Context, symbol string) (*domain.SlippageModelCoefficients, error)
}
