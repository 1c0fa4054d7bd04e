package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"logwarden/internal/config"
	"logwarden/internal/model"
)

// StartNATS subscribes to the raw log subject. With a queue group
// configured, multiple instances share the subject.
func StartNATS(ctx context.Context, cfg *config.Manager, out chan<- model.RawLine, logger *slog.Logger) {
	current := cfg.Get().Ingest.NATS
	if !current.Enabled {
		if logger != nil {
			logger.Info("nats ingest disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("nats ingest enabled", "url", current.URL, "subject", current.Subject, "queue", current.Queue)
	}
	nc, err := nats.Connect(current.URL,
		nats.Name("logwarden"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		if logger != nil {
			logger.Error("nats connect error", "err", err)
		}
		return
	}
	handler := func(msg *nats.Msg) {
		SendNonBlocking(ctx, out, NewRawLine(string(msg.Data), "nats"), logger)
	}
	if current.Queue != "" {
		_, err = nc.QueueSubscribe(current.Subject, current.Queue, handler)
	} else {
		_, err = nc.Subscribe(current.Subject, handler)
	}
	if err != nil {
		if logger != nil {
			logger.Error("nats subscribe error", "err", err)
		}
		nc.Close()
		return
	}
	go func() {
		<-ctx.Done()
		_ = nc.Drain()
		nc.Close()
	}()
}
