package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/Orko24/fintech-document-intelligence-sub000/internal/config"
	"github.com/Orko24/fintech-document-intelligence-sub000/internal/metrics"
)

// RabbitMQPublisher publishes pipeline output to the four sink routing keys on
// the shared topic exchange. Writes retry with at-least-once semantics for up
// to the commit interval; a failure that outlives the retry budget is
// returned to the worker, which treats it as fatal.
//
// Safe for concurrent use by multiple workers; the underlying AMQP channel is
// serialized with a mutex.
type RabbitMQPublisher struct {
	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	config  config.RabbitMQConfig

	retryInterval time.Duration
	retryBudget   time.Duration
	metrics       metrics.Sink
	log           zerolog.Logger
}

// NewRabbitMQPublisher creates a publisher on the configured topic exchange
func NewRabbitMQPublisher(cfg config.RabbitMQConfig, streamCfg config.StreamConfig, m metrics.Sink, log zerolog.Logger) (*RabbitMQPublisher, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		cfg.Exchange, // name
		"topic",      // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	log.Info().
		Str("exchange", cfg.Exchange).
		Str("processed", cfg.Sinks.Processed).
		Str("suspicious", cfg.Sinks.Suspicious).
		Str("aggregated", cfg.Sinks.Aggregated).
		Str("alerts", cfg.Sinks.Alerts).
		Msg("RabbitMQ sink publisher initialized")

	return &RabbitMQPublisher{
		conn:          conn,
		channel:       channel,
		config:        cfg,
		retryInterval: streamCfg.PublishRetry,
		retryBudget:   streamCfg.CommitInterval,
		metrics:       m,
		log:           log,
	}, nil
}

// Processed publishes the full scored transaction record
func (p *RabbitMQPublisher) Processed(ctx context.Context, body []byte) error {
	return p.publish(ctx, p.config.Sinks.Processed, body)
}

// Suspicious publishes high-risk branch members
func (p *RabbitMQPublisher) Suspicious(ctx context.Context, body []byte) error {
	return p.publish(ctx, p.config.Sinks.Suspicious, body)
}

// Aggregated publishes finalized windowed aggregates
func (p *RabbitMQPublisher) Aggregated(ctx context.Context, body []byte) error {
	return p.publish(ctx, p.config.Sinks.Aggregated, body)
}

// Alerts publishes high-value transaction alerts
func (p *RabbitMQPublisher) Alerts(ctx context.Context, body []byte) error {
	return p.publish(ctx, p.config.Sinks.Alerts, body)
}

func (p *RabbitMQPublisher) publish(ctx context.Context, routingKey string, body []byte) error {
	deadline := time.Now().Add(p.retryBudget)

	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = p.publishOnce(ctx, routingKey, body)
		if lastErr == nil {
			return nil
		}
		if time.Now().After(deadline) {
			break
		}

		p.metrics.SinkWriteRetried(routingKey)
		p.log.Warn().
			Err(lastErr).
			Str("routing_key", routingKey).
			Int("attempt", attempt+1).
			Msg("sink write failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.retryInterval):
		}
	}

	return fmt.Errorf("publish to %s exhausted retries: %w", routingKey, lastErr)
}

func (p *RabbitMQPublisher) publishOnce(ctx context.Context, routingKey string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.channel.PublishWithContext(
		ctx,
		p.config.Exchange, // exchange
		routingKey,        // routing key
		false,             // mandatory
		false,             // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

// Close closes the RabbitMQ connection and channel
func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			p.log.Error().Err(err).Msg("error closing channel")
		}
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
