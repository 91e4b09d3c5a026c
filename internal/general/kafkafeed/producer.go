package kafkafeed

import (
	"context"
	"encoding/json"
	"time"

	"trip-dispatch/internal/general/contracts"

	"github.com/segmentio/kafka-go"
)

// LocationProducer streams worker position reports to the location topic for
// downstream analytics consumers. Publishing is best effort: a broker outage
// never blocks the realtime relay.
type LocationProducer struct {
	writer *kafka.Writer
}

// LocationRecord is the wire shape of one position report on the topic.
type LocationRecord struct {
	WorkerID string             `json:"worker_id"`
	Kind     string             `json:"kind"` // driver | delivery
	Position contracts.Position `json:"position"`
}

// NewLocationProducer builds a producer for the given brokers and topic.
func NewLocationProducer(brokers []string, topic string) *LocationProducer {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &LocationProducer{writer: w}
}

// PublishLocation writes one record keyed by worker id, so per-worker ordering
// is preserved across partitions.
func (p *LocationProducer) PublishLocation(rec LocationRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(rec.WorkerID), Value: b})
}

// Close flushes and closes the underlying writer.
func (p *LocationProducer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
