package ingest

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"logwarden/internal/model"
)

// NewRawLine trims the trailing newline and stamps the receive time.
func NewRawLine(text, source string) model.RawLine {
	return model.RawLine{
		Text:       strings.TrimRight(text, "\r\n"),
		Source:     source,
		ReceivedAt: time.Now().UTC(),
	}
}

// SendNonBlocking hands a line to the pipeline channel. A full channel
// drops the line; ingestion never backpressures the network edge.
func SendNonBlocking(ctx context.Context, out chan<- model.RawLine, line model.RawLine, logger *slog.Logger) bool {
	if line.Text == "" {
		return false
	}
	select {
	case out <- line:
		return true
	case <-ctx.Done():
		return false
	default:
		if logger != nil {
			logger.Warn("pipeline channel full, dropping line", "source", line.Source)
		}
		return false
	}
}

func BackoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
