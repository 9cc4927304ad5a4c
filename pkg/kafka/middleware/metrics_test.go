package kafka_middleware

import (
	"context"
	"errors"
	"testing"

	"carecal/pkg/kafka"

	"github.com/stretchr/testify/assert"
)

func TestMetrics_CountsOutcomes(t *testing.T) {
	m := NewMetrics()
	ok := func(context.Context, kafka.Message) error { return nil }
	fail := func(context.Context, kafka.Message) error { return errors.New("boom") }

	pub := m.ProducerMiddleware()
	assert.NoError(t, pub(context.Background(), kafka.Message{}, ok))
	assert.NoError(t, pub(context.Background(), kafka.Message{}, ok))
	assert.Error(t, pub(context.Background(), kafka.Message{}, fail))

	con := m.ConsumerMiddleware()
	assert.Error(t, con(context.Background(), kafka.Message{}, fail))

	s := m.Snapshot()
	assert.Equal(t, int64(2), s.Published)
	assert.Equal(t, int64(1), s.PublishFailed)
	assert.Equal(t, int64(0), s.Consumed)
	assert.Equal(t, int64(1), s.ConsumeFailed)
}
