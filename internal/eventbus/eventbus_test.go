package eventbus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	topics []string
	keys   []string
	events []any
	err    error
}

func (r *recorder) Publish(_ context.Context, topic, key string, event any) error {
	r.topics = append(r.topics, topic)
	r.keys = append(r.keys, key)
	r.events = append(r.events, event)
	return r.err
}

func (r *recorder) Close() error { return nil }

func TestEmitWrapsPayload(t *testing.T) {
	rec := &recorder{}
	SetPublisher(rec)
	t.Cleanup(func() { SetPublisher(nil) })

	Emit(context.Background(), TopicOrders, "42", EventOrderCreated, OrderCreated{
		OrderID:     42,
		BuyerID:     7,
		OrderType:   "product",
		TotalAmount: decimal.RequireFromString("19.98"),
		ItemCount:   1,
	})

	require.Len(t, rec.events, 1)
	assert.Equal(t, TopicOrders, rec.topics[0])
	assert.Equal(t, "42", rec.keys[0])

	env, ok := rec.events[0].(Envelope)
	require.True(t, ok)
	assert.Equal(t, EventOrderCreated, env.Type)
	assert.False(t, env.OccurredAt.IsZero())
	data, ok := env.Data.(OrderCreated)
	require.True(t, ok)
	assert.Equal(t, int64(42), data.OrderID)
}

func TestEmitSwallowsPublishErrors(t *testing.T) {
	rec := &recorder{err: errors.New("broker down")}
	SetPublisher(rec)
	t.Cleanup(func() { SetPublisher(nil) })

	assert.NotPanics(t, func() {
		Emit(context.Background(), TopicBookings, "1", EventTicketsBooked, TicketsBooked{BookingID: 1})
	})
	assert.Len(t, rec.events, 1)
}

func TestInitWithoutBrokersIsNoop(t *testing.T) {
	Init(nil)
	t.Cleanup(func() { SetPublisher(nil) })

	_, ok := pub.(Noop)
	assert.True(t, ok)
	assert.NoError(t, Close())
}

func TestKafkaPublisherFlushesQuickly(t *testing.T) {
	p, ok := NewKafkaPublisher([]string{"localhost:9092"}).(*kafkaPublisher)
	require.True(t, ok)
	t.Cleanup(func() { _ = p.Close() })

	assert.Equal(t, flushInterval, p.w.BatchTimeout)
	assert.LessOrEqual(t, p.w.BatchTimeout, 50*time.Millisecond)
}
