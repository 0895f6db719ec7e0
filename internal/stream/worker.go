package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Orko24/fintech-document-intelligence-sub000/internal/models"
	"github.com/Orko24/fintech-document-intelligence-sub000/internal/risk"
	"github.com/Orko24/fintech-document-intelligence-sub000/internal/window"
)

// drainTimeout bounds the final flush of window state on shutdown
const drainTimeout = 10 * time.Second

// worker processes the disjoint set of account partitions hashed to it. It
// exclusively owns the window state for those accounts, so no locking is
// needed around the stores.
type worker struct {
	id      int
	p       *Processor
	in      chan envelope
	counts  *window.Store
	sums    *window.Store
	pending []AckFunc
	log     zerolog.Logger

	// eventClock is the maximum event time observed on this partition and
	// lastEventWall the wall-clock instant it was observed.
	eventClock    time.Time
	lastEventWall time.Time
}

func newWorker(id int, p *Processor) *worker {
	return &worker{
		id:     id,
		p:      p,
		in:     make(chan envelope, 64),
		counts: window.NewStore(p.cfg.CountWindow, models.MetricTransactionCount),
		sums:   window.NewStore(p.cfg.SumWindow, models.MetricTotalAmount),
		log:    p.log.With().Int("worker", id).Logger(),
	}
}

// run is the worker loop: process events in arrival order for this partition,
// advance windows on the commit tick so idle partitions still close, and
// commit pending acknowledgements after sink writes have succeeded.
func (w *worker) run(ctx context.Context) error {
	ticker := time.NewTicker(w.p.cfg.CommitInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return w.drain()
		case env := <-w.in:
			if err := w.process(ctx, env); err != nil {
				return err
			}
		case <-ticker.C:
			if err := w.advanceIdle(ctx); err != nil {
				return err
			}
			w.commit()
		}
	}
}

// process runs one transaction through the pipeline stages:
// enrich -> score -> classify -> fan out -> window state -> alert.
func (w *worker) process(ctx context.Context, env envelope) error {
	tx := env.tx

	w.p.enricher.Enrich(tx)

	score := w.p.scorer.Score(tx)
	tx.RiskScore = &score

	// Invariant guard: a transaction never reaches branching or alerting
	// without a score.
	if !tx.Scored() {
		w.dropUnscored(env)
		return nil
	}

	tier := risk.Classify(score)

	body, err := json.Marshal(tx.ToProcessedEvent(tier))
	if err != nil {
		return fmt.Errorf("marshal processed transaction %s: %w", tx.ID, err)
	}

	// Broadcast with tag: every scored transaction reaches the processed
	// sink; only the high tier additionally feeds suspicious.
	if err := w.p.sinks.Processed(ctx, body); err != nil {
		return fmt.Errorf("publish processed transaction %s: %w", tx.ID, err)
	}
	if tier == models.RiskTierHigh {
		if err := w.p.sinks.Suspicious(ctx, body); err != nil {
			return fmt.Errorf("publish suspicious transaction %s: %w", tx.ID, err)
		}
	}

	// Alerting inspects the full stream, independent of the router
	if tx.Amount.GreaterThan(highValueThreshold) {
		if err := w.emitAlert(ctx, tx); err != nil {
			return err
		}
	}

	w.addToWindow(w.counts, tx)
	w.addToWindow(w.sums, tx)

	if tx.Timestamp.After(w.eventClock) {
		w.eventClock = tx.Timestamp
	}
	w.lastEventWall = time.Now()

	if err := w.advance(ctx, tx.Timestamp); err != nil {
		return err
	}

	w.p.metrics.TransactionProcessed(string(tier))
	w.pending = append(w.pending, env.ack)
	return nil
}

// addToWindow records the transaction in one of the tumbling-window stores.
// Events for already-closed windows are dropped with a warning; there is no
// grace period.
func (w *worker) addToWindow(store *window.Store, tx *models.Transaction) {
	err := store.Add(tx.AccountID, tx.Timestamp, tx.Amount)
	if err == nil {
		return
	}
	if errors.Is(err, window.ErrWindowClosed) {
		w.p.metrics.DroppedLate(string(store.Metric()))
		w.log.Warn().
			Str("transaction_id", tx.ID.String()).
			Str("account_id", tx.AccountID).
			Time("event_time", tx.Timestamp).
			Str("metric", string(store.Metric())).
			Msg("dropping late event for closed window")
	}
}

// advanceIdle closes windows on a partition that stopped receiving traffic.
// The watermark stays anchored to event time and moves forward only by the
// wall-clock time elapsed since the last event, so a stream whose event time
// trails wall clock (consumer backlog, replay after restart) never has its
// in-order events rejected as late.
func (w *worker) advanceIdle(ctx context.Context) error {
	if w.eventClock.IsZero() {
		return nil
	}
	return w.advance(ctx, w.eventClock.Add(time.Since(w.lastEventWall)))
}

// advance moves both window watermarks to ts and emits any closed windows to
// the aggregated sink and the aggregate store.
func (w *worker) advance(ctx context.Context, ts time.Time) error {
	for _, store := range []*window.Store{w.counts, w.sums} {
		for _, agg := range store.Advance(ts) {
			if err := w.emitAggregate(ctx, agg); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *worker) emitAggregate(ctx context.Context, agg models.WindowedAggregate) error {
	body, err := json.Marshal(agg.ToEvent())
	if err != nil {
		return fmt.Errorf("marshal aggregate for account %s: %w", agg.AccountID, err)
	}

	if err := w.p.sinks.Aggregated(ctx, body); err != nil {
		return fmt.Errorf("publish aggregate for account %s: %w", agg.AccountID, err)
	}

	// Persistence is secondary to the sink: a failed insert is logged, not
	// fatal, since the record is idempotent on (account, window, metric) and
	// replay will retry it.
	if w.p.store != nil {
		if err := w.p.store.InsertAggregate(ctx, &agg); err != nil {
			w.log.Error().
				Err(err).
				Str("account_id", agg.AccountID).
				Time("window_start", agg.WindowStart).
				Str("metric", string(agg.Metric)).
				Msg("failed to persist windowed aggregate")
		}
	}

	w.p.metrics.WindowClosed(string(agg.Metric))
	w.log.Debug().
		Str("account_id", agg.AccountID).
		Time("window_start", agg.WindowStart).
		Str("metric", string(agg.Metric)).
		Str("value", agg.Value.String()).
		Msg("window closed")
	return nil
}

func (w *worker) emitAlert(ctx context.Context, tx *models.Transaction) error {
	alert := models.Alert{
		AlertType: models.AlertTypeHighValue,
		AccountID: tx.AccountID,
		Amount:    tx.Amount,
		Timestamp: tx.Timestamp.UTC(),
	}

	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert for transaction %s: %w", tx.ID, err)
	}
	if err := w.p.sinks.Alerts(ctx, body); err != nil {
		return fmt.Errorf("publish alert for transaction %s: %w", tx.ID, err)
	}

	w.p.metrics.AlertEmitted()
	return nil
}

// drain flushes all in-flight window state and commits outstanding acks
// before the worker exits. Runs on graceful shutdown only; abrupt termination
// relies on replay from the last committed offset instead.
func (w *worker) drain() error {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	for _, store := range []*window.Store{w.counts, w.sums} {
		for _, agg := range store.Flush() {
			if err := w.emitAggregate(ctx, agg); err != nil {
				return fmt.Errorf("flush on shutdown: %w", err)
			}
		}
	}

	w.commit()
	w.log.Info().Msg("worker drained")
	return nil
}

// commit acknowledges every message processed since the last tick. Called on
// the commit interval, after downstream writes for those messages succeeded.
func (w *worker) commit() {
	for _, ack := range w.pending {
		if ack == nil {
			continue
		}
		if err := ack(); err != nil {
			w.log.Error().Err(err).Msg("failed to ack processed message")
		}
	}
	w.pending = w.pending[:0]
}

func (w *worker) dropUnscored(env envelope) {
	w.p.metrics.DroppedUnscored()
	w.log.Warn().
		Str("transaction_id", env.tx.ID.String()).
		Str("account_id", env.tx.AccountID).
		Msg("dropping transaction without risk score")
	if env.ack != nil {
		if err := env.ack(); err != nil {
			w.log.Error().Err(err).Msg("failed to ack dropped message")
		}
	}
}
