package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/tidefall/changesum/internal/types"
)

// Sink publishes changelog records to a Kafka topic, keyed by group key so
// all records for one key land in one partition in order.
type Sink struct {
	writer *kafka.Writer
	topic  string
	logger *zap.Logger
}

type Message struct {
	Kind  string `json:"kind"`
	Key   string `json:"key"`
	Value int64  `json:"value"`
}

func New(brokers []string, topic string, logger *zap.Logger) (*Sink, error) {
	logger.Info("Creating Kafka sink",
		zap.Strings("brokers", brokers),
		zap.String("topic", topic))

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
		Async:        false, // Synchronous so changelog order survives failures
		Logger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Debug("Kafka writer log", zap.String("msg", fmt.Sprintf(msg, args...)))
		}),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error("Kafka writer error", zap.String("msg", fmt.Sprintf(msg, args...)))
		}),
	}

	return &Sink{writer: writer, topic: topic, logger: logger}, nil
}

func (s *Sink) Emit(rec types.ChangelogRecord) error {
	msg := Message{Kind: rec.Kind.Name(), Key: rec.Row.Key, Value: rec.Row.Value}
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("Failed to marshal changelog record", zap.Error(err))
		return err
	}

	kafkaMsg := kafka.Message{
		Key:   []byte(rec.Row.Key),
		Value: data,
		Time:  time.Now(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.writer.WriteMessages(ctx, kafkaMsg); err != nil {
		s.logger.Error("Failed to write message to Kafka",
			zap.Error(err),
			zap.String("key", rec.Row.Key))
		return err
	}

	s.logger.Debug("Published changelog record",
		zap.String("kind", msg.Kind),
		zap.String("key", msg.Key),
		zap.String("topic", s.topic))
	return nil
}

func (s *Sink) Close() error {
	s.logger.Info("Closing Kafka sink")
	if s.writer != nil {
		return s.writer.Close()
	}
	return nil
}
