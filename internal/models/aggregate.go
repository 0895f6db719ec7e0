package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AggregateMetric identifies which windowed aggregate a record carries
type AggregateMetric string

const (
	MetricTransactionCount AggregateMetric = "transaction_count"
	MetricTotalAmount      AggregateMetric = "total_amount"
)

// WindowedAggregate is the canonical envelope emitted when a tumbling window
// closes. Records are idempotent on (AccountID, WindowStart, Metric), which is
// what makes window emission effectively-once under replay.
type WindowedAggregate struct {
	AccountID   string
	WindowStart time.Time
	Metric      AggregateMetric
	Value       decimal.Decimal
}

// WindowedAggregateEvent is the wire form published to the aggregated sink
type WindowedAggregateEvent struct {
	AccountID   string `json:"account_id"`
	WindowStart string `json:"window_start"`
	Metric      string `json:"metric"`
	Value       string `json:"value"`
}

// ToEvent converts an aggregate to its wire form with an ISO-8601 window start
func (a *WindowedAggregate) ToEvent() WindowedAggregateEvent {
	return WindowedAggregateEvent{
		AccountID:   a.AccountID,
		WindowStart: a.WindowStart.UTC().Format(time.RFC3339),
		Metric:      string(a.Metric),
		Value:       a.Value.String(),
	}
}
