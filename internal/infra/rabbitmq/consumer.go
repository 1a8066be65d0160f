// Package rabbitmq carries comparison jobs in and status updates out. The
// consumer side runs a fixed worker pool over one delivery channel; retry
// pacing happens here so a flaky ffmpeg or sidecar does not hot-loop the
// queue.
package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Routing keys on the comparison exchange.
const (
	requestRoutingKey = "comparison.request"
	statusRoutingKey  = "comparison.status"
)

// maxBackoff caps the requeue delay regardless of attempt count.
const maxBackoff = 60 * time.Second

// MessageHandler processes one delivery. A nil return acks the message;
// an error nacks it back onto the queue after a backoff.
type MessageHandler func(ctx context.Context, body []byte) error

type ConsumerConfig struct {
	URL         string
	Queue       string
	Exchange    string
	DLQ         string
	StatusQueue string
	Prefetch    int
	WorkerCount int
	BaseDelayMs int
}

type Consumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	cfg     ConsumerConfig
	handler MessageHandler
	logger  *zap.Logger
	wg      sync.WaitGroup
}

func NewConsumer(cfg ConsumerConfig, handler MessageHandler, logger *zap.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareTopology(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	return &Consumer{
		conn:    conn,
		channel: ch,
		cfg:     cfg,
		handler: handler,
		logger:  logger,
	}, nil
}

// declareTopology sets up the exchange, the three durable queues, and the
// bindings. Declarations are idempotent, so every worker instance runs
// this on startup.
func declareTopology(ch *amqp.Channel, cfg ConsumerConfig) error {
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}

	for _, q := range []string{cfg.Queue, cfg.StatusQueue, cfg.DLQ} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
	}

	bindings := map[string]string{
		cfg.Queue:       requestRoutingKey,
		cfg.StatusQueue: statusRoutingKey,
	}
	for queue, key := range bindings {
		if err := ch.QueueBind(queue, key, cfg.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s to %s: %w", queue, key, err)
		}
	}
	return nil
}

// Start consumes the request queue until ctx is cancelled, then drains
// the worker pool before returning.
func (c *Consumer) Start(ctx context.Context) error {
	deliveries, err := c.channel.ConsumeWithContext(ctx, c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.cfg.Queue, err)
	}

	c.logger.Info("consumer started",
		zap.String("queue", c.cfg.Queue),
		zap.Int("workers", c.cfg.WorkerCount),
		zap.Int("prefetch", c.cfg.Prefetch),
	)

	for i := 0; i < c.cfg.WorkerCount; i++ {
		c.wg.Add(1)
		go c.runWorker(ctx, i, deliveries)
	}

	<-ctx.Done()
	c.logger.Info("shutdown requested, draining workers")
	c.wg.Wait()
	return nil
}

func (c *Consumer) runWorker(ctx context.Context, id int, deliveries <-chan amqp.Delivery) {
	defer c.wg.Done()
	log := c.logger.With(zap.Int("worker_id", id))
	log.Info("worker ready")

	for {
		select {
		case <-ctx.Done():
			log.Info("worker stopped")
			return
		case d, ok := <-deliveries:
			if !ok {
				log.Info("delivery channel closed")
				return
			}
			c.handleDelivery(ctx, d, log)
		}
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery, log *zap.Logger) {
	if err := c.handler(ctx, d.Body); err != nil {
		attempt := deliveryAttempt(d)
		delay := c.backoff(attempt)
		log.Warn("handler failed, requeueing after backoff",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			// Shutting down: leave the message for the next instance.
			_ = d.Nack(false, false)
			return
		}
		_ = d.Nack(false, true)
		return
	}

	_ = d.Ack(false)
}

// deliveryAttempt counts how many times the broker has already bounced
// this message, via the x-death header.
func deliveryAttempt(d amqp.Delivery) int {
	deaths, ok := d.Headers["x-death"].([]interface{})
	if !ok || len(deaths) == 0 {
		return 1
	}
	return len(deaths)
}

func (c *Consumer) backoff(attempt int) time.Duration {
	delay := time.Duration(c.cfg.BaseDelayMs) * time.Millisecond
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

func (c *Consumer) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
