package outbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaProducer writes record-updated and advisory events, one writer per
// topic, created on first use. Messages are keyed by user id and partitioned
// by hash so every event for one user lands on one partition in order: a
// dailyrecord.updated must never overtake the advisory explaining it.
type KafkaProducer struct {
	brokers      []string
	batchTimeout time.Duration

	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

// NewKafkaProducer creates a KafkaProducer for the given brokers.
func NewKafkaProducer(brokers []string) *KafkaProducer {
	return &KafkaProducer{
		brokers: brokers,
		// Dispatch batches are small; waiting for a full Kafka batch would
		// just delay advisories the user is watching for.
		batchTimeout: 100 * time.Millisecond,
		writers:      make(map[string]*kafka.Writer),
	}
}

// WriteMessages writes a batch to one topic, creating its writer if needed.
func (p *KafkaProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	return p.writerFor(topic).WriteMessages(ctx, msgs...)
}

func (p *KafkaProducer) writerFor(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if writer, ok := p.writers[topic]; ok {
		return writer
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(p.brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
		BatchTimeout: p.batchTimeout,
		Async:        false,
	}
	p.writers[topic] = writer
	return writer
}

// Close releases every writer, reporting all close failures.
func (p *KafkaProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for topic, writer := range p.writers {
		if err := writer.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(p.writers, topic)
	}
	return errors.Join(errs...)
}
