// Package kafka publishes recorded sync outcomes to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/jbctechsolutions/listingsync/internal/application/ports"
	"github.com/jbctechsolutions/listingsync/internal/domain/outcome"
	"github.com/jbctechsolutions/listingsync/internal/infrastructure/config"
)

// Publisher implements ports.OutcomePublisher with a synchronous producer.
// Messages are keyed by the outcome's status key so that every outcome of
// one record lands on the same partition.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
}

var _ ports.OutcomePublisher = (*Publisher)(nil)

// NewPublisher wraps an existing producer.
func NewPublisher(producer sarama.SyncProducer, topic string) *Publisher {
	return &Publisher{producer: producer, topic: topic}
}

// NewProducerConfig returns the producer settings used by Dial.
func NewProducerConfig(clientID string) *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	if clientID != "" {
		cfg.ClientID = clientID
	}
	return cfg
}

// Dial connects a producer to the brokers named in cfg.
func Dial(cfg config.EventsConfig) (*Publisher, error) {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, NewProducerConfig(cfg.ClientID))
	if err != nil {
		return nil, fmt.Errorf("starting kafka producer: %w", err)
	}
	return NewPublisher(producer, cfg.Topic), nil
}

// Publish sends o as JSON. The raw payload snapshot is left out.
func (p *Publisher) Publish(ctx context.Context, o outcome.Outcome) error {
	o.RawPayload = nil
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("encoding outcome: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(o.Key()),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("entity_type"), Value: []byte(o.EntityType)},
			{Key: []byte("status"), Value: []byte(o.Status)},
		},
	}
	if _, _, err := p.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("publishing outcome %s: %w", o.ID, err)
	}
	return nil
}

// Close closes the producer.
func (p *Publisher) Close() error {
	return p.producer.Close()
}
