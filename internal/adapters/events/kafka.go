// Package events publishes room lifecycle events for services outside the relay.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Stage/internal/core"
)

// KafkaSink produces room events keyed by room id.
type KafkaSink struct {
	producer *kafka.Producer
	topic    string
	doneCh   chan struct{}
}

func NewKafkaSink(brokers, topic string, partitions int) (*KafkaSink, error) {
	if err := ensureTopic(brokers, topic, partitions); err != nil {
		log.Warn().Err(err).Str("module", "adapters.events").Str("topic", topic).Msg("failed to ensure topic, may already exist")
	}

	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
		"acks":              "1",
		"linger.ms":         5,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	s := &KafkaSink{
		producer: p,
		topic:    topic,
		doneCh:   make(chan struct{}),
	}
	go s.deliveryReports()
	return s, nil
}

func ensureTopic(brokers, topic string, partitions int) error {
	admin, err := kafka.NewAdminClient(&kafka.ConfigMap{"bootstrap.servers": brokers})
	if err != nil {
		return fmt.Errorf("failed to create admin client: %w", err)
	}
	defer admin.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results, err := admin.CreateTopics(ctx, []kafka.TopicSpecification{{
		Topic:             topic,
		NumPartitions:     partitions,
		ReplicationFactor: 1,
	}})
	if err != nil {
		return err
	}
	for _, r := range results {
		if r.Error.Code() != kafka.ErrNoError && r.Error.Code() != kafka.ErrTopicAlreadyExists {
			return fmt.Errorf("failed to create topic %s: %v", r.Topic, r.Error)
		}
	}
	return nil
}

func (s *KafkaSink) deliveryReports() {
	for e := range s.producer.Events() {
		if m, ok := e.(*kafka.Message); ok && m.TopicPartition.Error != nil {
			log.Error().Err(m.TopicPartition.Error).Str("module", "adapters.events").Msg("kafka delivery failed")
		}
	}
	close(s.doneCh)
}

func (s *KafkaSink) Emit(_ context.Context, e core.RoomEvent) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal room event: %w", err)
	}
	err = s.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &s.topic, Partition: kafka.PartitionAny},
		Key:            []byte(e.RoomID),
		Value:          value,
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}
	return nil
}

// Close flushes pending messages and closes the producer.
func (s *KafkaSink) Close() error {
	s.producer.Flush(5000)
	s.producer.Close()
	<-s.doneCh
	return nil
}
