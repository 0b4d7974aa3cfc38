package consumers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	domain "comparoo/internal/domain/comparison"
	"comparoo/internal/events"
	"comparoo/pkg/errors"
	"comparoo/pkg/logger"
)

// MessageReader is the part of the Kafka consumer the request loop needs
type MessageReader interface {
	ReadMessageWithShutdownCheck(ctx context.Context) (kafkago.Message, error)
	Close() error
}

// Comparer runs one comparison
type Comparer interface {
	CompareProducts(ctx context.Context, req domain.CompareRequest, progress domain.ProgressFunc) (*domain.ComparisonResult, error)
}

// ResultPublisher sends progress and results back to the requester
type ResultPublisher interface {
	ProgressFunc() domain.ProgressFunc
	PublishResult(ctx context.Context, event events.ResultEvent) error
}

// CompareConsumer turns comparisons.requests messages into comparison runs
type CompareConsumer struct {
	reader         MessageReader
	comparer       Comparer
	publisher      ResultPublisher
	processTimeout time.Duration
	log            *logger.Logger
}

// NewCompareConsumer creates a request consumer. processTimeout bounds one
// message including result publishing; it should exceed the workflow timeout.
func NewCompareConsumer(reader MessageReader, comparer Comparer, publisher ResultPublisher, processTimeout time.Duration) *CompareConsumer {
	return &CompareConsumer{
		reader:         reader,
		comparer:       comparer,
		publisher:      publisher,
		processTimeout: processTimeout,
		log:            logger.Get().With("component", "compare_consumer"),
	}
}

// Start consumes requests until ctx is cancelled. The message in flight is
// finished before returning.
func (c *CompareConsumer) Start(ctx context.Context) error {
	c.log.Info("Starting compare consumer...")

	defer func() {
		if err := c.reader.Close(); err != nil {
			c.log.Errorw("compare_consumer_close_failed", "error", err)
		} else {
			c.log.Info("Compare consumer closed")
		}
	}()

	for {
		msg, err := c.reader.ReadMessageWithShutdownCheck(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info("Compare consumer stopping (context cancelled)")
				return nil
			}
			c.log.Debugw("compare_request_read_failed", "error", err)
			continue
		}

		processCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.processTimeout)
		if err := c.handleMessage(processCtx, msg); err != nil {
			c.log.Errorw("compare_request_failed",
				"topic", msg.Topic,
				"offset", msg.Offset,
				"error", err,
			)
		}
		cancel()

		if ctx.Err() != nil {
			c.log.Info("Compare consumer stopping after processing current message")
			return nil
		}
	}
}

// handleMessage runs one request and always publishes a result. Only a
// failure to publish is returned.
func (c *CompareConsumer) handleMessage(ctx context.Context, msg kafkago.Message) error {
	var body events.CompareRequestMessage
	decodeErr := json.Unmarshal(msg.Value, &body)

	runID := requestRunID(body.RunID, msg.Key)
	ctx = errors.WithRunID(ctx, runID)
	log := c.log.WithRun(ctx)

	if decodeErr != nil {
		log.Warnw("compare_request_invalid", "error", decodeErr, "size", len(msg.Value))
		err := errors.NewValidationError("body", "request is not valid JSON", nil)
		return c.publisher.PublishResult(ctx, events.NewResultEvent(runID, nil, err))
	}

	req := body.Request()
	log.Infow("compare_request_received", "category", req.Category, "use_cache", req.UseCache)

	res, err := c.comparer.CompareProducts(ctx, req, c.publisher.ProgressFunc())
	if err != nil && !errors.Is(err, errors.ErrValidation) {
		c.log.ErrorWithContext(ctx, err, map[string]string{"run_id": runID, "error_code": errors.Code(err)})
	}
	return c.publisher.PublishResult(ctx, events.NewResultEvent(runID, res, err))
}

// requestRunID prefers the body run_id, then the message key, then a fresh id.
// Only valid UUIDs are accepted so results correlate with workflow run ids.
func requestRunID(bodyID string, key []byte) string {
	for _, candidate := range []string{bodyID, string(key)} {
		if id, err := uuid.Parse(candidate); err == nil {
			return id.String()
		}
	}
	return uuid.NewString()
}
