package queue

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/felixgeelhaar/codementor/internal/domain"
	"github.com/felixgeelhaar/codementor/internal/progress"
)

type recordingPublisher struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (r *recordingPublisher) PublishJSON(ctx context.Context, queue string, data any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, queue)
	return r.err
}

func (r *recordingPublisher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestProducer_PublishCompletion(t *testing.T) {
	pub := &recordingPublisher{}
	p := NewProducer(pub)

	msg := &CompletionMessage{UserID: "alice", Record: domain.CompletionRecord{ExerciseID: "ex-1"}}
	if err := p.PublishCompletion(context.Background(), msg); err != nil {
		t.Fatalf("PublishCompletion() error = %v", err)
	}

	if msg.ID.String() == "00000000-0000-0000-0000-000000000000" || msg.SubmittedAt.IsZero() {
		t.Errorf("message not stamped: %+v", msg)
	}
	if len(pub.calls) != 1 || pub.calls[0] != CompletionQueueName {
		t.Errorf("calls = %v; want [%s]", pub.calls, CompletionQueueName)
	}
}

func TestProducer_PublishRecommendation(t *testing.T) {
	pub := &recordingPublisher{}
	p := NewProducer(pub)

	rec := progress.Recommendation{UserID: "alice", Band: domain.BandIntermediate}
	if err := p.PublishRecommendation(context.Background(), rec); err != nil {
		t.Fatalf("PublishRecommendation() error = %v", err)
	}
	if len(pub.calls) != 1 || pub.calls[0] != RecommendationQueueName {
		t.Errorf("calls = %v; want [%s]", pub.calls, RecommendationQueueName)
	}
}

func TestProducer_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	brokerDown := errors.New("connection refused")
	pub := &recordingPublisher{err: brokerDown}
	p := NewProducer(pub)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := p.PublishRecommendation(ctx, progress.Recommendation{UserID: "alice"})
		if !errors.Is(err, brokerDown) {
			t.Fatalf("publish %d error = %v; want broker error", i, err)
		}
	}

	// The breaker is open: the broker is not contacted again
	if err := p.PublishRecommendation(ctx, progress.Recommendation{UserID: "alice"}); err == nil {
		t.Fatal("publish with open breaker succeeded")
	}
	if got := pub.count(); got != 5 {
		t.Errorf("broker calls = %d; want 5", got)
	}
}
