package rabbit

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Client publishes to and consumes from a fanout exchange. Each instance
// binds its own exclusive queue, so every instance sees every message.
type Client struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	queue    string
	log      *zerolog.Logger
}

type Rabbiter interface {
	Close()
	Publish(ctx context.Context, message []byte) error
	Consume(handler func([]byte) error) error
}

var _ Rabbiter = (*Client)(nil)

// NewRabbit connects and declares the topology. An empty queue name lets
// the broker pick one.
func NewRabbit(url, exchange, queue string, log *zerolog.Logger) (*Client, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}

	client := &Client{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		log:      log,
	}

	// durable exchange, nothing else
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		client.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	// auto-delete, exclusive: the queue lives as long as this connection
	q, err := ch.QueueDeclare(queue, false, true, true, false, nil)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	client.queue = q.Name

	if err := ch.QueueBind(q.Name, "", exchange, false, nil); err != nil {
		client.Close()
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	log.Info().Str("exchange", exchange).Str("queue", q.Name).Msg("rabbitmq initialized")
	return client, nil
}

func (c *Client) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.log.Info().Msg("rabbitmq connection closed")
}

func (c *Client) Publish(ctx context.Context, message []byte) error {
	err := c.channel.PublishWithContext(ctx, c.exchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		Body:         message,
		Timestamp:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", c.exchange, err)
	}
	c.log.Debug().Str("exchange", c.exchange).Msg("message published")
	return nil
}

// Consume delivers messages to handler on a background goroutine until
// the channel closes. Failed messages are dropped, not requeued.
func (c *Client) Consume(handler func([]byte) error) error {
	msgs, err := c.channel.Consume(c.queue, "", false, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}

	go func() {
		for d := range msgs {
			if err := handler(d.Body); err != nil {
				c.log.Warn().Err(err).Msg("failed to process message")
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}()

	c.log.Info().Str("queue", c.queue).Msg("started consuming")
	return nil
}
