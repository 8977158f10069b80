// Package publisher mirrors audit entries to Kafka for downstream consumers
// (compliance archives, SIEM feeds). The relational store stays the
// authoritative trail; this is a best-effort fan-out.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"villageops/internal/audit"
)

// KafkaPublisher produces audit entries to a single topic, keyed by entity
// ID so per-entity ordering survives partitioning.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
}

// NewKafkaPublisher connects to the given brokers.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &KafkaPublisher{client: client, topic: topic}, nil
}

// Publish produces one entry synchronously.
func (p *KafkaPublisher) Publish(ctx context.Context, entry audit.Entry) error {
	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(entry.EntityID.String()),
		Value: value,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit entry: %w", err)
	}
	return nil
}

// Close flushes and releases the underlying client.
func (p *KafkaPublisher) Close() {
	p.client.Close()
}
