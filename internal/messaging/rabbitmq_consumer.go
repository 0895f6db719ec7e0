package messaging

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/Orko24/fintech-document-intelligence-sub000/internal/config"
	"github.com/Orko24/fintech-document-intelligence-sub000/internal/stream"
)

// IngressHandler receives raw transaction messages from the bus. Submit must
// not block indefinitely once ctx is cancelled.
type IngressHandler interface {
	Submit(ctx context.Context, body []byte, ack stream.AckFunc) error
}

// RabbitMQConsumer consumes raw transaction messages from RabbitMQ and hands
// them to the stream processor. Acknowledgement is deferred to the
// processor's commit discipline; unacked messages are redelivered after a
// crash, which is what restart-from-last-committed-offset means here.
type RabbitMQConsumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	config  config.RabbitMQConfig
	handler IngressHandler
	log     zerolog.Logger
}

// NewRabbitMQConsumer creates a new RabbitMQ consumer bound to the input queue
func NewRabbitMQConsumer(cfg config.RabbitMQConfig, handler IngressHandler, log zerolog.Logger) (*RabbitMQConsumer, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	// Topic exchange shared with the sink publisher
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

	queue, err := channel.QueueDeclare(
		cfg.Queue, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	err = channel.QueueBind(
		queue.Name,     // queue name
		cfg.RoutingKey, // routing key
		cfg.Exchange,   // exchange
		false,
		nil,
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	log.Info().
		Str("exchange", cfg.Exchange).
		Str("queue", cfg.Queue).
		Str("routing_key", cfg.RoutingKey).
		Msg("RabbitMQ consumer initialized")

	return &RabbitMQConsumer{
		conn:    conn,
		channel: channel,
		config:  cfg,
		handler: handler,
		log:     log,
	}, nil
}

// Start begins consuming messages from the input queue, blocking until ctx is
// cancelled or the delivery channel closes.
func (c *RabbitMQConsumer) Start(ctx context.Context) error {
	msgs, err := c.channel.Consume(
		c.config.Queue, // queue
		"",             // consumer tag (auto-generated)
		false,          // auto-ack (commit discipline acks manually)
		false,          // exclusive
		false,          // no-local
		false,          // no-wait
		nil,            // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.log.Info().Str("queue", c.config.Queue).Msg("RabbitMQ consumer started")

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("context cancelled, stopping RabbitMQ consumer")
			return nil

		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}

			ack := func() error { return msg.Ack(false) }
			if err := c.handler.Submit(ctx, msg.Body, ack); err != nil {
				// Submission fails only on shutdown; leave the message
				// unacked so it is redelivered.
				c.log.Warn().Err(err).Msg("stopping consumer with message in flight")
				return nil
			}
		}
	}
}

// Close closes the RabbitMQ connection and channel
func (c *RabbitMQConsumer) Close() error {
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			c.log.Error().Err(err).Msg("error closing channel")
		}
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
