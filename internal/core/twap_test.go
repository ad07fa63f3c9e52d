package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdelgado-fx/fundingarb/internal/domain"
)

func deepBook(symbol, venue string, depth float64) domain.OrderBook {
	return domain.OrderBook{
		Symbol: symbol,
		Venue:  venue,
		Bids:   []domain.BookEntry{{Price: 100, Size: depth / 100}},
		Asks:   []domain.BookEntry{{Price: 100.1, Size: depth / 100}},
	}
}

func TestBuildTWAPScheduleHighConfidence(t *testing.T) {
	long := deepBook("BTC", "A", 10_000_000)
	short := deepBook("BTC", "B", 10_000_000)

	sched, err := BuildTWAPSchedule("BTC", "A", "B", 50_000, 240, long, short, nil)
	require.Nil(t, err)
	assert.GreaterOrEqual(t, sched.SliceCount, 2)
	assert.LessOrEqual(t, sched.SliceCount, 24)
	assert.Equal(t, ConfidenceHigh, sched.Confidence)
}

func TestBuildTWAPScheduleFailsWhenBookTooThin(t *testing.T) {
	long := deepBook("BTC", "A", 1_000)
	short := deepBook("BTC", "B", 1_000)

	_, err := BuildTWAPSchedule("BTC", "A", "B", 50_000, 240, long, short, nil)
	require.NotNil(t, err)
	assert.Equal(t, domain.InsufficientLiquidity, err.Kind)
}

func TestBuildTWAPScheduleClampsIntervalAndSliceCount(t *testing.T) {
	long := deepBook("BTC", "A", 200_000)
	short := deepBook("BTC", "B", 200_000)

	sched, err := BuildTWAPSchedule("BTC", "A", "B", 5_000_000, 240, long, short, nil)
	require.Nil(t, err)
	assert.LessOrEqual(t, sched.SliceCount, 24)
	assert.GreaterOrEqual(t, sched.IntervalMinutes, 5)
	assert.LessOrEqual(t, sched.IntervalMinutes, 30)
}
