package kafka

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
)

// Publisher sends one message to a topic. key selects the partition so events
// of one order stay in order.
type Publisher interface {
	Publish(topic, key string, message []byte) error
}

type SaramaProducer struct {
	producer sarama.SyncProducer
	log      *slog.Logger
}

func NewProducerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Timeout = 5 * time.Second
	return config
}

func NewSaramaProducer(brokers []string, log *slog.Logger) (*SaramaProducer, error) {
	prod, err := sarama.NewSyncProducer(brokers, NewProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return NewProducer(prod, log), nil
}

// NewProducer wraps an existing sync producer.
func NewProducer(p sarama.SyncProducer, log *slog.Logger) *SaramaProducer {
	return &SaramaProducer{producer: p, log: log}
}

func (p *SaramaProducer) Publish(topic, key string, message []byte) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(message),
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("send message to topic %s: %w", topic, err)
	}
	p.log.Debug("message stored", "topic", topic, "partition", partition, "offset", offset)
	return nil
}

func (p *SaramaProducer) Close() error {
	return p.producer.Close()
}
