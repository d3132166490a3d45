package publisher

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/trilltino/handyman/internal/logger"
	"github.com/trilltino/handyman/internal/repository"
	"go.uber.org/zap"
)

const (
	batchSize       = 100
	eventRetention  = 7 * 24 * time.Hour
	defaultTopic    = "storefront-orders"
	eventTypeHeader = "event_type"
)

type EventStore interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*repository.OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
	PurgeProcessedEvents(ctx context.Context, before time.Time) (int64, error)
}

// MessageWriter is the subset of *kafka.Writer the poller needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OutboxPoller relays outbox rows to Kafka. An event is marked processed only
// after the broker has acknowledged it, so delivery is at least once.
type OutboxPoller struct {
	timeout   time.Duration
	eventTick time.Duration
	purgeTick time.Duration
	repo      EventStore
	writer    MessageWriter
	now       func() time.Time
}

func NewOutboxPoller(repo EventStore, topic string, brokers ...string) *OutboxPoller {
	if topic == "" {
		topic = defaultTopic
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return newOutboxPoller(repo, w)
}

func newOutboxPoller(repo EventStore, w MessageWriter) *OutboxPoller {
	return &OutboxPoller{
		timeout:   5 * time.Second,
		eventTick: time.Second,
		purgeTick: time.Hour,
		repo:      repo,
		writer:    w,
		now:       time.Now,
	}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	purgeTicker := time.NewTicker(p.purgeTick)
	defer eventTicker.Stop()
	defer purgeTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-purgeTicker.C:
			p.purgeProcessedEvents(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) Close() error {
	return p.writer.Close()
}

func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) {
	log := logger.FromContext(ctx)

	events, err := p.repo.GetUnprocessedEvents(ctx, batchSize)
	if err != nil {
		log.Error("failed to fetch outbox events", zap.Error(err))
		return
	}

	for _, event := range events {
		if err := p.publish(ctx, event); err != nil {
			log.Error("failed to publish outbox event",
				zap.Int64("event_id", event.ID), zap.String("aggregate_id", event.AggregateID), zap.Error(err))
			// keep ordering per batch; the rest is retried next tick
			return
		}

		if err := p.repo.MarkEventAsProcessed(ctx, event.ID); err != nil {
			log.Error("failed to mark outbox event as processed", zap.Int64("event_id", event.ID), zap.Error(err))
			continue
		}
	}
}

func (p *OutboxPoller) purgeProcessedEvents(ctx context.Context) {
	n, err := p.repo.PurgeProcessedEvents(ctx, p.now().Add(-eventRetention))
	if err != nil {
		logger.FromContext(ctx).Error("failed to purge processed outbox events", zap.Error(err))
		return
	}
	if n > 0 {
		logger.FromContext(ctx).Info("purged processed outbox events", zap.Int64("count", n))
	}
}

func (p *OutboxPoller) publish(ctx context.Context, event *repository.OutboxEvent) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(event.AggregateID), // order id keeps an order's events on one partition
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: eventTypeHeader, Value: []byte(event.EventType)},
		},
	}
	return p.writer.WriteMessages(ctx, msg)
}
