package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"logwarden/internal/config"
	"logwarden/internal/model"
)

// Remote talks to a model server over HTTP. The server loads its weights
// asynchronously, so readiness is established by a background health
// probe before the first Classify call is allowed through.
type Remote struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
	probe    time.Duration
	ready    atomic.Bool
}

type classifyRequest struct {
	Text string `json:"text"`
}

type classifyResponse struct {
	ClassID       int       `json:"class_id"`
	ClassName     string    `json:"class_name"`
	Probabilities []float64 `json:"probabilities"`
	AnomalyScore  float64   `json:"anomaly_score"`
}

func NewRemote(cfg config.ClassifierConfig, logger *slog.Logger) *Remote {
	probe := cfg.WarmupInterval
	if probe <= 0 {
		probe = 3 * time.Second
	}
	return &Remote{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		client:   &http.Client{Timeout: cfg.Timeout},
		logger:   logger,
		probe:    probe,
	}
}

func (r *Remote) Ready() bool {
	return r.ready.Load()
}

func (r *Remote) StartWarmup(ctx context.Context) {
	go func() {
		for {
			if r.checkHealth(ctx) {
				r.ready.Store(true)
				if r.logger != nil {
					r.logger.Info("classifier ready", "endpoint", r.endpoint)
				}
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.probe):
			}
		}
	}()
}

func (r *Remote) checkHealth(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return false
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (r *Remote) Classify(ctx context.Context, text string) (model.Classification, error) {
	body, err := json.Marshal(classifyRequest{Text: text})
	if err != nil {
		return model.Classification{}, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+"/classify", bytes.NewReader(body))
	if err != nil {
		return model.Classification{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return model.Classification{}, fmt.Errorf("model request: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.Classification{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return model.Classification{}, fmt.Errorf("model returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	var out classifyResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return model.Classification{}, fmt.Errorf("decode response: %w", err)
	}
	return model.Classification{
		ClassID:       out.ClassID,
		ClassName:     out.ClassName,
		Probabilities: out.Probabilities,
		AnomalyScore:  out.AnomalyScore,
	}, nil
}
