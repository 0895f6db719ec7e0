package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Orko24/fintech-document-intelligence-sub000/internal/config"
	"github.com/Orko24/fintech-document-intelligence-sub000/internal/enrich"
	"github.com/Orko24/fintech-document-intelligence-sub000/internal/metrics"
	"github.com/Orko24/fintech-document-intelligence-sub000/internal/models"
	"github.com/Orko24/fintech-document-intelligence-sub000/internal/risk"
)

// Sinks abstracts the four outbound channels. Implementations must be safe
// for concurrent use by multiple workers.
type Sinks interface {
	Processed(ctx context.Context, body []byte) error
	Suspicious(ctx context.Context, body []byte) error
	Aggregated(ctx context.Context, body []byte) error
	Alerts(ctx context.Context, body []byte) error
}

// AggregateStore persists finalized windowed aggregates for the query surface.
// Persistence is best effort: the aggregated sink remains the system of record.
type AggregateStore interface {
	InsertAggregate(ctx context.Context, agg *models.WindowedAggregate) error
}

// AckFunc acknowledges a consumed message back to the bus. Acks are deferred
// until the commit tick after downstream sink writes succeed.
type AckFunc func() error

// envelope carries a transaction and its pending acknowledgement to a worker
type envelope struct {
	tx  *models.Transaction
	ack AckFunc
}

// highValueThreshold triggers a high_value_transaction alert
var highValueThreshold = decimal.NewFromInt(5000)

// Processor runs the transaction pipeline over a fixed pool of partition
// workers: enrich, score, classify, fan out to sinks, update window state and
// emit alerts. Events are hashed by account ID to a worker at submission, so
// per-account processing order is preserved.
type Processor struct {
	cfg      config.StreamConfig
	sinks    Sinks
	store    AggregateStore
	enricher *enrich.Enricher
	scorer   *risk.Scorer
	metrics  metrics.Sink
	log      zerolog.Logger
	workers  []*worker
}

// NewProcessor creates a processor with the given topology configuration.
// store may be nil when aggregate persistence is disabled.
func NewProcessor(cfg config.StreamConfig, sinks Sinks, store AggregateStore, m metrics.Sink, log zerolog.Logger) *Processor {
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}

	p := &Processor{
		cfg:      cfg,
		sinks:    sinks,
		store:    store,
		enricher: enrich.NewEnricher(),
		scorer:   risk.NewScorer(),
		metrics:  m,
		log:      log,
	}

	for i := 0; i < cfg.WorkerCount; i++ {
		p.workers = append(p.workers, newWorker(i, p))
	}

	return p
}

// Run starts the partition workers and blocks until ctx is cancelled or a
// worker fails fatally. On cancellation every worker flushes the window state
// it owns before exiting.
func (p *Processor) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, len(p.workers))

	for _, w := range p.workers {
		wg.Add(1)
		go func(w *worker) {
			defer wg.Done()
			if err := w.run(runCtx); err != nil {
				errCh <- fmt.Errorf("worker %d: %w", w.id, err)
				// One failed worker takes the processor down; recovery
				// is restart from the last committed offset.
				cancel()
			}
		}(w)
	}

	wg.Wait()
	close(errCh)

	// A persistent sink failure is fatal for the worker; restart from the
	// last committed offset is the recovery path.
	for err := range errCh {
		return err
	}
	return nil
}

// Submit deserializes a raw input message and dispatches it to the owning
// partition worker. Malformed messages are dropped with a log entry and
// acknowledged so they are not redelivered; the worker itself is never
// crashed by bad input.
func (p *Processor) Submit(ctx context.Context, body []byte, ack AckFunc) error {
	var event models.TransactionEvent
	if err := json.Unmarshal(body, &event); err != nil {
		p.dropMalformed(event.ID, err, ack)
		return nil
	}

	tx, err := event.ToTransaction(time.Now())
	if err != nil {
		p.dropMalformed(event.ID, err, ack)
		return nil
	}

	idx := partition(tx.AccountID, len(p.workers))
	select {
	case p.workers[idx].in <- envelope{tx: tx, ack: ack}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Processor) dropMalformed(id string, err error, ack AckFunc) {
	p.metrics.DroppedMalformed()
	p.log.Warn().
		Str("transaction_id", id).
		Err(err).
		Msg("dropping malformed transaction message")
	if ack != nil {
		if ackErr := ack(); ackErr != nil {
			p.log.Error().Err(ackErr).Msg("failed to ack malformed message")
		}
	}
}
