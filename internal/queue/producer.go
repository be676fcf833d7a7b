package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/codementor/internal/metrics"
	"github.com/felixgeelhaar/codementor/internal/progress"
	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/google/uuid"
)

// JSONPublisher is the part of Connection the producer needs
type JSONPublisher interface {
	PublishJSON(ctx context.Context, queue string, data any) error
}

// Producer publishes completion messages and recommendation events
type Producer struct {
	conn    JSONPublisher
	breaker circuitbreaker.CircuitBreaker[struct{}]
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// ProducerOption configures a Producer
type ProducerOption func(*Producer)

// WithProducerMetrics counts published events
func WithProducerMetrics(m *metrics.Metrics) ProducerOption {
	return func(p *Producer) { p.metrics = m }
}

// WithProducerLogger sets the logger
func WithProducerLogger(l *slog.Logger) ProducerOption {
	return func(p *Producer) { p.logger = l }
}

// NewProducer creates a new queue producer. Publishing stops for a while
// after repeated broker failures instead of blocking every caller.
func NewProducer(conn JSONPublisher, opts ...ProducerOption) *Producer {
	p := &Producer{conn: conn, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}

	p.breaker = circuitbreaker.New[struct{}](circuitbreaker.Config{
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts circuitbreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(from, to circuitbreaker.State) {
			p.logger.Warn("publisher circuit breaker state change",
				"from", from.String(),
				"to", to.String())
		},
	})

	return p
}

// PublishCompletion publishes a completion for asynchronous processing
func (p *Producer) PublishCompletion(ctx context.Context, msg *CompletionMessage) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.SubmittedAt.IsZero() {
		msg.SubmittedAt = time.Now()
	}

	if err := p.publish(ctx, CompletionQueueName, msg); err != nil {
		return fmt.Errorf("failed to publish completion: %w", err)
	}

	p.logger.Info("published completion",
		"message_id", msg.ID,
		"user_id", msg.UserID,
		"exercise_id", msg.Record.ExerciseID,
	)
	return nil
}

// PublishRecommendation publishes the band recommendation that follows a
// recorded completion
func (p *Producer) PublishRecommendation(ctx context.Context, rec progress.Recommendation) error {
	if err := p.publish(ctx, RecommendationQueueName, rec); err != nil {
		return fmt.Errorf("failed to publish recommendation: %w", err)
	}

	p.logger.Debug("published recommendation",
		"user_id", rec.UserID,
		"band", rec.Band,
		"plateau", rec.Plateau,
	)
	return nil
}

func (p *Producer) publish(ctx context.Context, queue string, data any) error {
	_, err := p.breaker.Execute(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.conn.PublishJSON(ctx, queue, data)
	})
	if p.metrics != nil {
		p.metrics.RecordPublish(queue, err == nil)
	}
	return err
}

var _ progress.Publisher = (*Producer)(nil)
