// Package events publishes business metric events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/JonMunkholm/policyhub/internal/core"
)

const (
	headerEventType     = "event_type"
	headerCorrelationID = "correlation_id"
	produceTimeout      = 10 * time.Second
)

// Publisher implements core.MetricSink on a franz-go client. Records are
// keyed by operation id and produced asynchronously; delivery failures are
// logged and never reach the upload.
type Publisher struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// NewPublisher connects to brokers. No brokers returns a nil publisher.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerLinger(50*time.Millisecond),
		kgo.RecordDeliveryTimeout(produceTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	return &Publisher{client: client, topic: topic, logger: logger}, nil
}

// Ping checks broker connectivity.
func (p *Publisher) Ping(ctx context.Context) error {
	if p == nil {
		return nil
	}
	return p.client.Ping(ctx)
}

// Emit implements core.MetricSink.
func (p *Publisher) Emit(ctx context.Context, ev core.MetricEvent) {
	if p == nil {
		return
	}

	rec, err := newRecord(p.topic, ev)
	if err != nil {
		p.logger.ErrorContext(ctx, "metric event encode failed", "error", err, "operation_id", ev.OperationID)
		return
	}

	p.client.Produce(context.WithoutCancel(ctx), rec, func(r *kgo.Record, err error) {
		if err != nil {
			p.logger.Error("metric event publish failed",
				"error", err,
				"topic", r.Topic,
				"operation_id", ev.OperationID,
			)
		}
	})
}

// Close flushes buffered records, bounded by ctx, then closes the client.
func (p *Publisher) Close(ctx context.Context) error {
	if p == nil {
		return nil
	}
	defer p.client.Close()
	if err := p.client.Flush(ctx); err != nil {
		return fmt.Errorf("flush metric events: %w", err)
	}
	return nil
}

func newRecord(topic string, ev core.MetricEvent) (*kgo.Record, error) {
	value, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return &kgo.Record{
		Topic: topic,
		Key:   []byte(ev.OperationID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: headerEventType, Value: []byte(ev.Type)},
			{Key: headerCorrelationID, Value: []byte(ev.CorrelationID)},
		},
	}, nil
}
