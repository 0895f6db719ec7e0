package window

import (
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Orko24/fintech-document-intelligence-sub000/internal/models"
)

// ErrWindowClosed is returned when an event arrives for a window that has
// already been finalized and evicted. There is no grace period: late events
// are dropped by the caller with a warning log.
var ErrWindowClosed = errors.New("window already closed")

// key identifies an active accumulator
type key struct {
	accountID   string
	windowStart int64 // unix seconds
}

// accumulator holds the mutable per-window state. The count and sum are
// monotonically increasing for the window's lifetime.
type accumulator struct {
	accountID   string
	windowStart time.Time
	count       int64
	sum         decimal.Decimal
}

// Store is a keyed tumbling-window state store. Each (accountID, windowStart)
// pair owns one accumulator; windows close when the watermark advances past
// windowStart + width, at which point the accumulator is finalized, emitted
// and evicted. A closed window can never be reopened.
//
// A Store is exclusively owned by one partition worker and is not safe for
// concurrent use.
type Store struct {
	width     time.Duration
	metric    models.AggregateMetric
	slots     map[key]*accumulator
	watermark time.Time
}

// NewStore creates a tumbling-window store of the given width emitting the
// given metric on window close.
func NewStore(width time.Duration, metric models.AggregateMetric) *Store {
	return &Store{
		width:  width,
		metric: metric,
		slots:  make(map[key]*accumulator),
	}
}

// WindowStart returns the start of the window covering ts
func (s *Store) WindowStart(ts time.Time) time.Time {
	return ts.UTC().Truncate(s.width)
}

// Add records a transaction amount into the window covering ts. It returns
// ErrWindowClosed if the watermark has already passed the end of that window.
func (s *Store) Add(accountID string, ts time.Time, amount decimal.Decimal) error {
	start := s.WindowStart(ts)
	if !s.watermark.Before(start.Add(s.width)) {
		return ErrWindowClosed
	}

	k := key{accountID: accountID, windowStart: start.Unix()}
	acc, ok := s.slots[k]
	if !ok {
		acc = &accumulator{
			accountID:   accountID,
			windowStart: start,
			sum:         decimal.Zero,
		}
		s.slots[k] = acc
	}

	acc.count++
	acc.sum = acc.sum.Add(amount)
	return nil
}

// Advance moves the watermark forward and returns the finalized aggregates of
// every window whose end is at or before the new watermark, evicting their
// state. The watermark never moves backwards; a stale ts returns nil.
func (s *Store) Advance(ts time.Time) []models.WindowedAggregate {
	ts = ts.UTC()
	if !ts.After(s.watermark) {
		return nil
	}
	s.watermark = ts

	var closed []models.WindowedAggregate
	for k, acc := range s.slots {
		if acc.windowStart.Add(s.width).After(s.watermark) {
			continue
		}
		closed = append(closed, s.finalize(acc))
		delete(s.slots, k)
	}

	sortAggregates(closed)
	return closed
}

// Flush finalizes and evicts every active window regardless of the watermark.
// Used on graceful shutdown so in-flight state is not lost.
func (s *Store) Flush() []models.WindowedAggregate {
	var closed []models.WindowedAggregate
	for k, acc := range s.slots {
		closed = append(closed, s.finalize(acc))
		delete(s.slots, k)
	}

	sortAggregates(closed)
	return closed
}

// Len returns the number of active windows, for state-eviction checks
func (s *Store) Len() int {
	return len(s.slots)
}

// Watermark returns the current watermark
func (s *Store) Watermark() time.Time {
	return s.watermark
}

// Metric returns the aggregate metric this store emits
func (s *Store) Metric() models.AggregateMetric {
	return s.metric
}

func (s *Store) finalize(acc *accumulator) models.WindowedAggregate {
	value := decimal.NewFromInt(acc.count)
	if s.metric == models.MetricTotalAmount {
		value = acc.sum
	}
	return models.WindowedAggregate{
		AccountID:   acc.accountID,
		WindowStart: acc.windowStart,
		Metric:      s.metric,
		Value:       value,
	}
}

// sortAggregates orders emissions by window start, then account, so output
// is deterministic for a given state.
func sortAggregates(aggs []models.WindowedAggregate) {
	sort.Slice(aggs, func(i, j int) bool {
		if !aggs[i].WindowStart.Equal(aggs[j].WindowStart) {
			return aggs[i].WindowStart.Before(aggs[j].WindowStart)
		}
		return aggs[i].AccountID < aggs[j].AccountID
	})
}
