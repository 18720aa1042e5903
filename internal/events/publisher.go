package events

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/assembly/internal/domain"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error
}

// KafkaProducer lazily manages writers per topic.
type KafkaProducer struct {
	brokers []string
	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

// NewKafkaProducer creates a KafkaProducer.
func NewKafkaProducer(brokers []string) *KafkaProducer {
	return &KafkaProducer{
		brokers: brokers,
		writers: make(map[string]*kafka.Writer),
	}
}

// WriteMessages writes messages to the given topic, creating a writer if necessary.
func (p *KafkaProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	return p.writerForTopic(topic).WriteMessages(ctx, msgs...)
}

func (p *KafkaProducer) writerForTopic(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if writer, ok := p.writers[topic]; ok {
		return writer
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(p.brokers...),
		Topic:        topic,
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
		Async:        false,
	}
	p.writers[topic] = writer
	return writer
}

// Close releases all writers.
func (p *KafkaProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for topic, writer := range p.writers {
		if err := writer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.writers, topic)
	}
	return firstErr
}

// Publisher implements domain.EventSink over Kafka. Failures are
// logged and counted, never returned.
type Publisher struct {
	producer messageWriter
	logger   *log.Logger
}

// PublisherOption configures optional Publisher behaviour.
type PublisherOption func(*Publisher)

// WithPublisherLogger overrides the logger used to report delivery failures.
func WithPublisherLogger(logger *log.Logger) PublisherOption {
	return func(p *Publisher) { p.logger = logger }
}

// NewPublisher constructs a Publisher over the given producer.
func NewPublisher(producer messageWriter, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		producer: producer,
		logger:   log.New(log.Writer(), "[events] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AssemblyStarted publishes an assembly.started event.
func (p *Publisher) AssemblyStarted(ctx context.Context, entry domain.AssemblyEntry) {
	p.publish(ctx, TypeAssemblyStarted, entry.UnitID, AssemblyStartedEvent{
		EntryID:       entry.ID,
		WorkerID:      entry.WorkerID,
		UnitID:        entry.UnitID,
		StartedAt:     entry.StartedAt,
		ExpectedEndAt: entry.ExpectedEndAt,
	})
}

// AssemblyCompleted publishes an assembly.completed event.
func (p *Publisher) AssemblyCompleted(ctx context.Context, entry domain.AssemblyEntry, cause domain.CompletionCause) {
	event := AssemblyCompletedEvent{
		EntryID:       entry.ID,
		WorkerID:      entry.WorkerID,
		UnitID:        entry.UnitID,
		StartedAt:     entry.StartedAt,
		ExpectedEndAt: entry.ExpectedEndAt,
		Cause:         string(cause),
	}
	if entry.EndedAt != nil {
		event.EndedAt = *entry.EndedAt
	}
	p.publish(ctx, TypeAssemblyCompleted, entry.UnitID, event)
}

func (p *Publisher) publish(ctx context.Context, eventType, partitionKey string, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		p.logger.Printf("marshal %s: %v", eventType, err)
		recordPublishFailed(eventType)
		return
	}

	msg := kafka.Message{
		Key:   []byte(partitionKey),
		Value: body,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
		},
	}

	if err := p.producer.WriteMessages(ctx, Topic, msg); err != nil {
		p.logger.Printf("publish %s: %v", eventType, err)
		recordPublishFailed(eventType)
		return
	}
	recordPublished(eventType)
}
