package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/codementor/internal/domain"
	"github.com/felixgeelhaar/codementor/internal/metrics"
	"github.com/felixgeelhaar/codementor/internal/progress"
	amqp "github.com/rabbitmq/amqp091-go"
)

// CompletionHandler processes one completion message
type CompletionHandler func(ctx context.Context, msg *CompletionMessage) error

// Recorder is the part of the progress service the consumer drives
type Recorder interface {
	RecordCompletion(ctx context.Context, userID string, record domain.CompletionRecord) (*progress.Outcome, error)
}

// RecordHandler applies each message through r
func RecordHandler(r Recorder) CompletionHandler {
	return func(ctx context.Context, msg *CompletionMessage) error {
		_, err := r.RecordCompletion(ctx, msg.UserID, msg.Record)
		return err
	}
}

// Message outcomes
const (
	outcomeAcked    = "acked"
	outcomeRejected = "rejected"
	outcomeRequeued = "requeued"
)

// disposition decides what happens to a delivery after handling. Errors that
// would fail again on redelivery are dropped; anything else gets one retry.
// A cancelled handler is always requeued since the message was never judged.
func disposition(err error, redelivered bool) string {
	switch {
	case err == nil:
		return outcomeAcked
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrDuplicateCompletion),
		errors.Is(err, domain.ErrProfileNotFound):
		return outcomeRejected
	case errors.Is(err, context.Canceled):
		return outcomeRequeued
	case redelivered:
		return outcomeRejected
	default:
		return outcomeRequeued
	}
}

// Consumer consumes completion messages from the queue
type Consumer struct {
	conn       *Connection
	handler    CompletionHandler
	workers    int
	prefetch   int
	timeout    time.Duration
	metrics    *metrics.Metrics
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	Workers  int           // Number of concurrent workers
	Prefetch int           // Prefetch count per worker
	Timeout  time.Duration // Per-message handling timeout
	Metrics  *metrics.Metrics
}

// DefaultConsumerConfig returns sensible defaults
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Workers:  4,
		Prefetch: 1,
		Timeout:  10 * time.Second,
	}
}

// NewConsumer creates a new queue consumer
func NewConsumer(conn *Connection, handler CompletionHandler, cfg ConsumerConfig) *Consumer {
	defaults := DefaultConsumerConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = defaults.Prefetch
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}

	return &Consumer{
		conn:     conn,
		handler:  handler,
		workers:  cfg.Workers,
		prefetch: cfg.Prefetch,
		timeout:  cfg.Timeout,
		metrics:  cfg.Metrics,
	}
}

// Start begins consuming messages
func (c *Consumer) Start(ctx context.Context) error {
	ctx, c.cancelFunc = context.WithCancel(ctx)

	msgs, err := c.subscribe()
	if err != nil {
		return err
	}

	slog.Info("starting completion consumer", "workers", c.workers, "prefetch", c.prefetch)

	c.wg.Add(1)
	go c.dispatch(ctx, msgs)

	return nil
}

func (c *Consumer) subscribe() (<-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, ErrNotConnected
	}

	// Prefetch is per consumer, so scale it with the worker count
	if err := ch.Qos(c.prefetch*c.workers, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		CompletionQueueName,
		"",    // consumer tag (auto-generated)
		false, // auto-ack (manual ack for reliability)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}
	return msgs, nil
}

// dispatch fans deliveries out to the workers and resubscribes after the
// connection reconnects
func (c *Consumer) dispatch(ctx context.Context, msgs <-chan amqp.Delivery) {
	defer c.wg.Done()

	for {
		jobs := make(chan amqp.Delivery)
		var workers sync.WaitGroup
		for i := 0; i < c.workers; i++ {
			workers.Add(1)
			go func(id int) {
				defer workers.Done()
				c.worker(ctx, id, jobs)
			}(i)
		}

		c.forward(ctx, msgs, jobs)
		close(jobs)
		workers.Wait()

		if ctx.Err() != nil {
			return
		}

		slog.Warn("completion deliveries closed, resubscribing")
		var err error
		for msgs, err = c.subscribe(); err != nil; msgs, err = c.subscribe() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
			}
		}
	}
}

func (c *Consumer) forward(ctx context.Context, msgs <-chan amqp.Delivery, jobs chan<- amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			select {
			case jobs <- msg:
			case <-ctx.Done():
				// Unacked deliveries return to the queue when the channel closes
				return
			}
		}
	}
}

// worker processes messages handed over by dispatch
func (c *Consumer) worker(ctx context.Context, id int, jobs <-chan amqp.Delivery) {
	for msg := range jobs {
		c.processMessage(ctx, id, msg)
	}
}

// processMessage handles a single message
func (c *Consumer) processMessage(ctx context.Context, workerID int, msg amqp.Delivery) {
	start := time.Now()

	var completion CompletionMessage
	if err := json.Unmarshal(msg.Body, &completion); err != nil {
		slog.Error("failed to unmarshal completion",
			"worker_id", workerID,
			"error", err,
		)
		// Reject without requeue for malformed messages
		_ = msg.Reject(false)
		c.record(outcomeRejected)
		return
	}

	msgCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.handler(msgCtx, &completion)
	if err != nil && ctx.Err() != nil {
		// Consumer is stopping; the failure says nothing about the message
		err = errors.Join(err, ctx.Err())
	}
	outcome := disposition(err, msg.Redelivered)

	switch outcome {
	case outcomeAcked:
		slog.Debug("completion processed",
			"worker_id", workerID,
			"message_id", completion.ID,
			"user_id", completion.UserID,
			"duration", time.Since(start),
		)
		err = msg.Ack(false)
	case outcomeRejected:
		slog.Warn("completion rejected",
			"worker_id", workerID,
			"message_id", completion.ID,
			"user_id", completion.UserID,
			"exercise_id", completion.Record.ExerciseID,
			"error", err,
		)
		err = msg.Reject(false)
	case outcomeRequeued:
		slog.Error("completion processing failed, requeueing",
			"worker_id", workerID,
			"message_id", completion.ID,
			"user_id", completion.UserID,
			"error", err,
		)
		err = msg.Nack(false, true)
	}
	if err != nil {
		slog.Error("failed to settle message",
			"worker_id", workerID,
			"message_id", completion.ID,
			"outcome", outcome,
			"error", err,
		)
	}

	c.record(outcome)
}

func (c *Consumer) record(outcome string) {
	if c.metrics != nil {
		c.metrics.RecordMessage(CompletionQueueName, outcome)
	}
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
	c.wg.Wait()
	slog.Info("consumer stopped")
}
