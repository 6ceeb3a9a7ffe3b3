package outbox_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/outbox"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]outbox.Event, error) {
	args := m.Called(ctx, relayID, batchSize, lease)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]outbox.Event), args.Error(1)
}

func (m *MockStore) MarkSent(ctx context.Context, ids []int64) error {
	return m.Called(ctx, ids).Error(0)
}

func (m *MockStore) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	return m.Called(ctx, id, errMsg).Error(0)
}

func (m *MockStore) Release(ctx context.Context, ids []int64) error {
	return m.Called(ctx, ids).Error(0)
}

type fakeProducer struct {
	written  []kafka.Message
	attempts []string
	failKey  string
}

func (p *fakeProducer) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		p.attempts = append(p.attempts, header(m, "event_type")+"@"+string(m.Key))
		if string(m.Key) == p.failKey {
			return errors.New("broker unavailable")
		}
		p.written = append(p.written, m)
	}
	return nil
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestNewEvent(t *testing.T) {
	e, err := outbox.NewEvent("order", "o-1", "order.created", map[string]int{"total": 1150})
	require.NoError(t, err)
	assert.Equal(t, outbox.StatusPending, e.Status)
	assert.JSONEq(t, `{"total":1150}`, string(e.Payload))

	_, err = outbox.NewEvent("order", "o-1", "order.created", make(chan int))
	assert.Error(t, err)
}

func TestRelay_Tick(t *testing.T) {
	store := new(MockStore)
	producer := &fakeProducer{failKey: "o-2"}
	relay := outbox.NewRelay(store, outbox.NewDispatcher(producer, "sugar.orders"), "relay-1", 10, time.Second)

	events := []outbox.Event{
		{ID: 1, AggregateType: "order", AggregateID: "o-1", Type: "order.created", Payload: []byte(`{}`)},
		{ID: 2, AggregateType: "order", AggregateID: "o-2", Type: "order.created", Payload: []byte(`{}`)},
		{ID: 3, AggregateType: "order", AggregateID: "o-1", Type: "order.status_changed", Payload: []byte(`{}`)},
	}
	store.On("LockBatch", mock.Anything, "relay-1", 10, mock.AnythingOfType("time.Duration")).Return(events, nil).Once()
	store.On("MarkFailed", mock.Anything, int64(2), "broker unavailable").Return(nil).Once()
	store.On("MarkSent", mock.Anything, []int64{1, 3}).Return(nil).Once()

	sent, err := relay.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	store.AssertExpectations(t)

	require.Len(t, producer.written, 2)
	first := producer.written[0]
	assert.Equal(t, "sugar.orders", first.Topic)
	assert.Equal(t, "o-1", string(first.Key))
	assert.Equal(t, "order.created", header(first, "event_type"))
	assert.Equal(t, "order", header(first, "aggregate_type"))
	assert.Equal(t, "order.status_changed", header(producer.written[1], "event_type"))
}

func TestRelay_TickHoldsBackAggregateAfterFailure(t *testing.T) {
	store := new(MockStore)
	producer := &fakeProducer{failKey: "o-1"}
	relay := outbox.NewRelay(store, outbox.NewDispatcher(producer, "sugar.orders"), "relay-1", 10, time.Second)

	events := []outbox.Event{
		{ID: 1, AggregateType: "order", AggregateID: "o-1", Type: "order.created", Payload: []byte(`{}`)},
		{ID: 2, AggregateType: "order", AggregateID: "o-2", Type: "order.created", Payload: []byte(`{}`)},
		{ID: 3, AggregateType: "order", AggregateID: "o-1", Type: "order.status_changed", Payload: []byte(`{}`)},
		{ID: 4, AggregateType: "order", AggregateID: "o-2", Type: "order.status_changed", Payload: []byte(`{}`)},
	}
	store.On("LockBatch", mock.Anything, "relay-1", 10, mock.AnythingOfType("time.Duration")).Return(events, nil).Once()
	store.On("MarkFailed", mock.Anything, int64(1), "broker unavailable").Return(nil).Once()
	store.On("Release", mock.Anything, []int64{3}).Return(nil).Once()
	store.On("MarkSent", mock.Anything, []int64{2, 4}).Return(nil).Once()

	sent, err := relay.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	store.AssertExpectations(t)

	assert.Equal(t, []string{
		"order.created@o-1",
		"order.created@o-2",
		"order.status_changed@o-2",
	}, producer.attempts)
}

func TestRelay_TickLockFailure(t *testing.T) {
	store := new(MockStore)
	relay := outbox.NewRelay(store, outbox.NewDispatcher(&fakeProducer{}, "t"), "relay-1", 0, 0)

	store.On("LockBatch", mock.Anything, "relay-1", 100, mock.AnythingOfType("time.Duration")).Return(nil, errors.New("db down")).Once()

	_, err := relay.Tick(context.Background())
	assert.Error(t, err)
	store.AssertNotCalled(t, "MarkSent", mock.Anything, mock.Anything)
}

func TestRelay_RunStopsOnCancel(t *testing.T) {
	store := new(MockStore)
	store.On("LockBatch", mock.Anything, "relay-1", 100, mock.AnythingOfType("time.Duration")).Return([]outbox.Event{}, nil)
	store.On("MarkSent", mock.Anything, []int64{}).Return(nil)
	relay := outbox.NewRelay(store, outbox.NewDispatcher(&fakeProducer{}, "t"), "relay-1", 100, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}
