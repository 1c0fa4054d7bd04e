package delivery

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"logwarden/internal/config"
	"logwarden/internal/model"
)

// KafkaPublisher republishes alert payloads to a broker topic for
// downstream consumers.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

func NewKafkaPublisher(cfg config.DeliveryKafkaConfig, logger *slog.Logger) *KafkaPublisher {
	topic := cfg.Topic
	if topic == "" {
		topic = "anomalies"
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
	}
	if logger != nil {
		logger.Info("anomaly publisher enabled", "brokers", cfg.Brokers, "topic", topic)
	}
	return &KafkaPublisher{writer: writer, logger: logger}
}

func (p *KafkaPublisher) Publish(ctx context.Context, payload model.DeliveryPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(payload.HostIP),
		Value: data,
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
