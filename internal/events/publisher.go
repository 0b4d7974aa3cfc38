package events

import (
	"context"

	domain "comparoo/internal/domain/comparison"
	"comparoo/pkg/errors"
	"comparoo/pkg/logger"
)

// Producer sends JSON events to a topic
type Producer interface {
	Publish(ctx context.Context, topic string, key string, event interface{}) error
}

// Topics names the comparison transport topics
type Topics struct {
	Progress string
	Results  string
}

// Publisher publishes comparison progress and results to Kafka.
// Every message is keyed by run id.
type Publisher struct {
	producer Producer
	topics   Topics
	log      *logger.Logger
}

// NewPublisher creates a new event publisher
func NewPublisher(producer Producer, topics Topics) *Publisher {
	return &Publisher{
		producer: producer,
		topics:   topics,
		log:      logger.Get().With("component", "event_publisher"),
	}
}

// PublishProgress publishes a stage boundary of a run
func (p *Publisher) PublishProgress(ctx context.Context, event domain.ProgressEvent) error {
	if err := p.producer.Publish(ctx, p.topics.Progress, event.RunID, event); err != nil {
		return errors.Wrap(err, "publish progress")
	}
	p.log.WithRun(ctx).Debugw("progress_published", "step", event.Step, "progress", event.Progress)
	return nil
}

// PublishResult publishes the final outcome of a run
func (p *Publisher) PublishResult(ctx context.Context, event ResultEvent) error {
	if err := p.producer.Publish(ctx, p.topics.Results, event.RunID, event); err != nil {
		return errors.Wrap(err, "publish result")
	}
	p.log.WithRun(ctx).Infow("result_published",
		"status", event.Status,
		"error_code", event.ErrorCode,
	)
	return nil
}

// ProgressFunc adapts the publisher to the workflow progress callback
func (p *Publisher) ProgressFunc() domain.ProgressFunc {
	return p.PublishProgress
}
