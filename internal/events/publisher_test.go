package events

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "comparoo/internal/domain/comparison"
	"comparoo/pkg/errors"
)

type published struct {
	topic string
	key   string
	event interface{}
}

type fakeProducer struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (f *fakeProducer) Publish(ctx context.Context, topic, key string, event interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{topic: topic, key: key, event: event})
	return nil
}

var testTopics = Topics{Progress: "comparisons.progress", Results: "comparisons.results"}

func TestPublisher_ProgressAndResult(t *testing.T) {
	producer := &fakeProducer{}
	p := NewPublisher(producer, testTopics)
	ctx := context.Background()

	progress := p.ProgressFunc()
	require.NoError(t, progress(ctx, domain.ProgressEvent{RunID: "r1", Step: domain.StepDiscovery, Status: domain.StatusComplete, Progress: 33}))
	require.NoError(t, p.PublishResult(ctx, ResultEvent{RunID: "r1", Status: StatusSuccess}))

	require.Len(t, producer.sent, 2)
	assert.Equal(t, "comparisons.progress", producer.sent[0].topic)
	assert.Equal(t, "r1", producer.sent[0].key)
	assert.Equal(t, 33, producer.sent[0].event.(domain.ProgressEvent).Progress)
	assert.Equal(t, "comparisons.results", producer.sent[1].topic)
	assert.Equal(t, "r1", producer.sent[1].key)
}

func TestPublisher_ProducerErrorsAreWrapped(t *testing.T) {
	cause := errors.New("broker down")
	p := NewPublisher(&fakeProducer{err: cause}, testTopics)

	err := p.PublishResult(context.Background(), ResultEvent{RunID: "r1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "publish result")
}
