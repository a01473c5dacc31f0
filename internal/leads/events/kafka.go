package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"leadtriage/pkg/platform/circuit"
)

const defaultProduceTimeout = 5 * time.Second

// producer is the slice of *kgo.Client the publisher needs.
type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// KafkaPublisher produces JSON events keyed by lead id. After repeated broker
// failures the breaker opens and events go to the fallback publisher until a
// probe succeeds.
type KafkaPublisher struct {
	client         producer
	topic          string
	fallback       Publisher
	breaker        *circuit.Breaker
	logger         *slog.Logger
	produceTimeout time.Duration
}

// KafkaOption configures a KafkaPublisher.
type KafkaOption func(*KafkaPublisher)

// WithFallback sets where events go when Kafka is unavailable.
func WithFallback(p Publisher) KafkaOption {
	return func(k *KafkaPublisher) {
		k.fallback = p
	}
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(b *circuit.Breaker) KafkaOption {
	return func(k *KafkaPublisher) {
		k.breaker = b
	}
}

// WithProduceTimeout bounds each synchronous produce.
func WithProduceTimeout(d time.Duration) KafkaOption {
	return func(k *KafkaPublisher) {
		k.produceTimeout = d
	}
}

// NewKafkaPublisher connects to brokers and makes sure topic exists.
func NewKafkaPublisher(ctx context.Context, brokers []string, topic string, logger *slog.Logger, opts ...KafkaOption) (*KafkaPublisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchMaxBytes(1<<20),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	if err := ensureTopic(ctx, kadm.NewClient(client), topic); err != nil {
		client.Close()
		return nil, err
	}
	return newKafkaPublisher(client, topic, logger, opts...), nil
}

func newKafkaPublisher(client producer, topic string, logger *slog.Logger, opts ...KafkaOption) *KafkaPublisher {
	p := &KafkaPublisher{
		client:         client,
		topic:          topic,
		logger:         logger,
		produceTimeout: defaultProduceTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.fallback == nil {
		p.fallback = NewLogPublisher(logger)
	}
	if p.breaker == nil {
		p.breaker = circuit.New("kafka", circuit.WithFailureThreshold(3))
	}
	return p
}

func ensureTopic(ctx context.Context, adm *kadm.Client, topic string) error {
	resp, err := adm.CreateTopic(ctx, 1, -1, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", topic, resp.Err)
	}
	return nil
}

// Publish produces event synchronously. Events that cannot reach Kafka are
// handed to the fallback, so Publish only errors when both fail.
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if !p.breaker.Allow() {
		return p.fallback.Publish(ctx, event)
	}

	produceCtx, cancel := context.WithTimeout(ctx, p.produceTimeout)
	defer cancel()
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.LeadID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	if err := p.client.ProduceSync(produceCtx, record).FirstErr(); err != nil {
		_, change := p.breaker.RecordFailure()
		if change.Opened {
			p.logger.WarnContext(ctx, "kafka circuit opened, using fallback publisher",
				"breaker", p.breaker.Name(),
				"error", err,
			)
		}
		if fbErr := p.fallback.Publish(ctx, event); fbErr != nil {
			return errors.Join(fmt.Errorf("produce event: %w", err), fbErr)
		}
		return nil
	}

	if _, change := p.breaker.RecordSuccess(); change.Closed {
		p.logger.InfoContext(ctx, "kafka circuit closed", "breaker", p.breaker.Name())
	}
	return nil
}

// Close flushes nothing; ProduceSync already waited for every record.
func (p *KafkaPublisher) Close() error {
	p.client.Close()
	return p.fallback.Close()
}
