package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"logwarden/internal/config"
	"logwarden/internal/model"
)

// ErrRejected marks a payload the collector answered with a non-2xx
// status. Rejections are final and never retried.
var ErrRejected = errors.New("delivery rejected")

// Sender posts classified records to the external collector endpoint.
// Delivery is fire-and-forget: the pipeline only learns the boolean
// outcome.
type Sender struct {
	client     *http.Client
	url        string
	apiKey     string
	maxRetries int
	retryDelay time.Duration
	logger     *slog.Logger
}

func NewSender(cfg config.DeliveryConfig, logger *slog.Logger) *Sender {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = 2 * time.Second
	}
	return &Sender{
		client:     &http.Client{Timeout: timeout},
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		maxRetries: retries,
		retryDelay: delay,
		logger:     logger,
	}
}

// Deliver posts the payload. Network failures are retried with a fixed
// delay until the attempts are exhausted; any response from the
// collector, accepted or rejected, ends the loop.
func (s *Sender) Deliver(ctx context.Context, payload model.DeliveryPayload) bool {
	body, err := json.Marshal(payload)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("marshal delivery payload", "error", err)
		}
		return false
	}
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(s.retryDelay):
			case <-ctx.Done():
				return false
			}
		}
		err := s.post(ctx, body)
		if err == nil {
			return true
		}
		lastErr = err
		if errors.Is(err, ErrRejected) {
			break
		}
		if s.logger != nil {
			s.logger.Warn("delivery attempt failed", "attempt", attempt+1, "error", err)
		}
	}
	if s.logger != nil {
		s.logger.Error("delivery failed", "url", s.url, "error", lastErr)
	}
	return false
}

func (s *Sender) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("X-API-Key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("%w: HTTP %d", ErrRejected, resp.StatusCode)
}
