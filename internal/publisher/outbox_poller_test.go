package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/trilltino/handyman/internal/repository"
)

type MockEventStore struct {
	mu           sync.Mutex
	Events       []*repository.OutboxEvent
	GetErr       error
	MarkErr      error
	ProcessedIDs []int64
	PurgeBefore  time.Time
	PurgeErr     error
}

func (m *MockEventStore) GetUnprocessedEvents(context.Context, int) ([]*repository.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	var out []*repository.OutboxEvent
	for _, e := range m.Events {
		if !m.processed(e.ID) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MockEventStore) MarkEventAsProcessed(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.MarkErr != nil {
		return m.MarkErr
	}
	m.ProcessedIDs = append(m.ProcessedIDs, id)
	return nil
}

func (m *MockEventStore) PurgeProcessedEvents(_ context.Context, before time.Time) (int64, error) {
	m.PurgeBefore = before
	return 3, m.PurgeErr
}

func (m *MockEventStore) processed(id int64) bool {
	for _, p := range m.ProcessedIDs {
		if p == id {
			return true
		}
	}
	return false
}

func (m *MockEventStore) processedIDs() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.ProcessedIDs...)
}

type MockWriter struct {
	mu       sync.Mutex
	Messages []kafkaGo.Message
	FailOn   map[string]error
}

func (w *MockWriter) WriteMessages(_ context.Context, msgs ...kafkaGo.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, m := range msgs {
		if err := w.FailOn[string(m.Key)]; err != nil {
			return err
		}
		w.Messages = append(w.Messages, m)
	}
	return nil
}

func (w *MockWriter) Close() error { return nil }

func event(id int64, orderID string) *repository.OutboxEvent {
	return &repository.OutboxEvent{
		ID:          id,
		AggregateID: orderID,
		EventType:   repository.EventOrderPlaced,
		Payload:     json.RawMessage(fmt.Sprintf(`{"order_id":%q,"total_minor":32900}`, orderID)),
		CreatedAt:   time.Now(),
	}
}

func TestProcessUnpublishedEvents_PublishesAndMarks(t *testing.T) {
	store := &MockEventStore{Events: []*repository.OutboxEvent{event(1, "order-1"), event(2, "order-2")}}
	w := &MockWriter{}
	p := newOutboxPoller(store, w)

	p.processUnpublishedEvents(context.Background())

	require.Len(t, w.Messages, 2)
	assert.Equal(t, "order-1", string(w.Messages[0].Key))
	assert.Equal(t, eventTypeHeader, w.Messages[0].Headers[0].Key)
	assert.Equal(t, repository.EventOrderPlaced, string(w.Messages[0].Headers[0].Value))
	assert.Equal(t, []int64{1, 2}, store.ProcessedIDs)
}

func TestProcessUnpublishedEvents_PublishFailureStopsBatch(t *testing.T) {
	store := &MockEventStore{Events: []*repository.OutboxEvent{event(1, "order-1"), event(2, "order-2"), event(3, "order-3")}}
	w := &MockWriter{FailOn: map[string]error{"order-2": errors.New("broker unavailable")}}
	p := newOutboxPoller(store, w)

	p.processUnpublishedEvents(context.Background())

	assert.Equal(t, []int64{1}, store.ProcessedIDs, "unpublished events must not be marked")

	delete(w.FailOn, "order-2")
	p.processUnpublishedEvents(context.Background())
	assert.Equal(t, []int64{1, 2, 3}, store.ProcessedIDs)
}

func TestProcessUnpublishedEvents_FetchError(t *testing.T) {
	store := &MockEventStore{GetErr: errors.New("database connection error")}
	w := &MockWriter{}
	p := newOutboxPoller(store, w)

	p.processUnpublishedEvents(context.Background())
	assert.Empty(t, w.Messages)
}

func TestProcessUnpublishedEvents_MarkErrorContinues(t *testing.T) {
	store := &MockEventStore{
		Events:  []*repository.OutboxEvent{event(1, "order-1"), event(2, "order-2")},
		MarkErr: errors.New("deadlock"),
	}
	w := &MockWriter{}
	p := newOutboxPoller(store, w)

	p.processUnpublishedEvents(context.Background())
	assert.Len(t, w.Messages, 2)
}

func TestPurgeProcessedEvents(t *testing.T) {
	store := &MockEventStore{}
	p := newOutboxPoller(store, &MockWriter{})
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	p.purgeProcessedEvents(context.Background())
	assert.Equal(t, now.Add(-eventRetention), store.PurgeBefore)

	store.PurgeErr = errors.New("boom")
	p.purgeProcessedEvents(context.Background())
}

func TestRun_StopsOnCancel(t *testing.T) {
	store := &MockEventStore{Events: []*repository.OutboxEvent{event(1, "order-1")}}
	p := newOutboxPoller(store, &MockWriter{})
	p.eventTick = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(store.processedIDs()) == 1 }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after cancel")
	}
}

func setupKafka(t *testing.T) (string, func()) {
	if testing.Short() {
		t.Skip("skipping kafka integration test in short mode")
	}
	ctx := context.Background()

	kafkaContainer, err := kafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err)

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers, "broker address should not be empty")

	cleanup := func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	}

	return brokers[0], cleanup
}

func createTopic(t *testing.T, brokerAddr, topic string) {
	conn, err := kafkaGo.Dial("tcp", brokerAddr)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	controllerConn, err := kafkaGo.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	require.NoError(t, err)
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafkaGo.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil {
		t.Logf("topic creation error (may already exist): %v", err)
	}
}

func TestOutboxPoller_PublishesEventsToKafka(t *testing.T) {
	brokerAddr, cleanup := setupKafka(t)
	defer cleanup()

	createTopic(t, brokerAddr, defaultTopic)
	time.Sleep(5 * time.Second)

	store := &MockEventStore{Events: []*repository.OutboxEvent{event(1, "order-123")}}

	writer := &kafkaGo.Writer{
		Addr:         kafkaGo.TCP(brokerAddr),
		Topic:        defaultTopic,
		Balancer:     &kafkaGo.Hash{},
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}
	defer writer.Close()

	poller := newOutboxPoller(store, writer)
	poller.timeout = 10 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	go poller.Run(ctx)

	reader := kafkaGo.NewReader(kafkaGo.ReaderConfig{
		Brokers:  []string{brokerAddr},
		Topic:    defaultTopic,
		GroupID:  "test-consumer",
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	msg, err := reader.ReadMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "order-123", string(msg.Key))

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Value, &payload))
	assert.Equal(t, "order-123", payload["order_id"])

	require.Eventually(t, func() bool { return len(store.processedIDs()) == 1 }, 5*time.Second, 50*time.Millisecond)
}
