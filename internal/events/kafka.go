package events

import (
	"context"
	"errors"

	"github.com/IBM/sarama"
)

// Kafka publishes events to a single topic through a synchronous producer.
type Kafka struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafka dials brokers and returns a publisher writing to topic.
// Delivery is acknowledged by all in-sync replicas and de-duplicated by the
// broker (idempotent producer).
func NewKafka(brokers []string, topic, clientID string) (*Kafka, error) {
	if len(brokers) == 0 {
		return nil, errors.New("events: no kafka brokers")
	}
	cfg := sarama.NewConfig()
	if clientID != "" {
		cfg.ClientID = clientID
	}
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Idempotent = true
	cfg.Producer.Return.Successes = true
	cfg.Net.MaxOpenRequests = 1
	p, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return NewKafkaWithProducer(p, topic), nil
}

// NewKafkaWithProducer wraps an existing producer.
func NewKafkaWithProducer(p sarama.SyncProducer, topic string) *Kafka {
	return &Kafka{producer: p, topic: topic}
}

// PublishMessageSent implements Publisher.
func (k *Kafka) PublishMessageSent(ctx context.Context, e MessageSent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := e.Encode()
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(e.Key()),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event-type"), Value: []byte(TypeMessageSent)},
		},
	}
	_, _, err = k.producer.SendMessage(msg)
	return err
}

// Close flushes and closes the producer.
func (k *Kafka) Close() error {
	if k.producer == nil {
		return nil
	}
	return k.producer.Close()
}
