package ingest

import (
	"context"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"logwarden/internal/config"
	"logwarden/internal/model"
)

// StartKafka consumes the raw log topic as part of the configured
// consumer group. Each message value is one log line.
func StartKafka(ctx context.Context, cfg *config.Manager, out chan<- model.RawLine, logger *slog.Logger) {
	current := cfg.Get().Ingest.Kafka
	if !current.Enabled {
		if logger != nil {
			logger.Info("kafka ingest disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("kafka ingest enabled", "brokers", current.Brokers, "topic", current.Topic, "group_id", current.GroupID)
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  current.Brokers,
		Topic:    current.Topic,
		GroupID:  current.GroupID,
		MinBytes: 1e3,
		MaxBytes: 10e6,
	})
	go func() {
		defer reader.Close()
		for {
			m, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if logger != nil {
					logger.Warn("kafka read error", "err", err)
				}
				if !BackoffSleep(ctx, 0) {
					return
				}
				continue
			}
			SendNonBlocking(ctx, out, NewRawLine(string(m.Value), "kafka"), logger)
		}
	}()
}
