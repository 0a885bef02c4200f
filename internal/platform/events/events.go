// Package events publishes resolved-entity notifications to Kafka so that
// downstream caches and reports learn about new or adopted records.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/renandw/anesthesiaReports-sub000/internal/dedup"
)

// Message is one record on the resolutions topic.
type Message struct {
	RunID      string          `json:"run_id"`
	Kind       string          `json:"kind"`
	Caller     string          `json:"caller"`
	EntityID   string          `json:"entity_id"`
	Path       dedup.Path      `json:"path"`
	Entity     json.RawMessage `json:"entity"`
	ResolvedAt time.Time       `json:"resolved_at"`
}

// Publisher sends resolution messages downstream.
type Publisher interface {
	Publish(ctx context.Context, m Message) error
	Close()
}

// producer is the part of *kgo.Client the publisher uses.
type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// KafkaPublisher produces one record per resolution, keyed by kind and entity id.
type KafkaPublisher struct {
	client producer
	topic  string
	log    zerolog.Logger
}

// NewKafkaPublisher connects to brokers and checks that at least one answers.
func NewKafkaPublisher(ctx context.Context, brokers []string, topic string, log zerolog.Logger) (*KafkaPublisher, error) {
	cl, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(5*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	if err := cl.Ping(ctx); err != nil {
		cl.Close()
		return nil, fmt.Errorf("kafka ping: %w", err)
	}
	return &KafkaPublisher{client: cl, topic: topic, log: log}, nil
}

// Publish writes m keyed by entity id, so every event for one record lands
// on the same partition.
func (p *KafkaPublisher) Publish(ctx context.Context, m Message) error {
	value, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	rec := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(m.Kind + ":" + m.EntityID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "run_id", Value: []byte(m.RunID)},
			{Key: "kind", Value: []byte(m.Kind)},
		},
	}
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce %s: %w", p.topic, err)
	}
	p.log.Debug().Str("run_id", m.RunID).Str("entity_id", m.EntityID).Msg("resolution published")
	return nil
}

func (p *KafkaPublisher) Close() { p.client.Close() }

// NopPublisher drops every message. It is used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Message) error { return nil }
func (NopPublisher) Close()                                 {}

// Sink adapts a Publisher to a workflow resolution sink.
func Sink[E dedup.Entity](p Publisher) dedup.Sink[E] {
	return dedup.SinkFunc[E](func(ctx context.Context, r dedup.Resolution[E]) error {
		body, err := json.Marshal(r.Entity)
		if err != nil {
			return fmt.Errorf("marshal entity: %w", err)
		}
		return p.Publish(ctx, Message{
			RunID:      r.RunID,
			Kind:       r.Kind,
			Caller:     r.Caller,
			EntityID:   r.Entity.EntityID(),
			Path:       r.Path,
			Entity:     body,
			ResolvedAt: time.Now().UTC(),
		})
	})
}
