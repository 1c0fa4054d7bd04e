package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"logwarden/internal/alerts"
	"logwarden/internal/config"
	"logwarden/internal/delivery"
	"logwarden/internal/engine"
	"logwarden/internal/metrics"
	"logwarden/internal/model"
	"logwarden/internal/storage"
)

// EngineControl is the slice of the pipeline the control plane needs.
type EngineControl interface {
	UpdateConfig(cfg *config.Config)
	ShouldAlert(classID int) bool
}

// Server hosts the control-plane API and the collector receiving
// endpoint.
type Server struct {
	Config     *config.Manager
	Logger     *slog.Logger
	Metrics    *metrics.Store
	Alerts     *alerts.Store
	Store      storage.Store
	Engine     EngineControl
	Calibrator *engine.Calibrator
	Hub        *delivery.Hub
	Registry   *prometheus.Registry
	Version    string
}

// Payload fields the collector endpoint refuses to guess. The rejection
// lists every absent name in this order.
var requiredPayloadFields = []string{
	"log_message",
	"timestamp",
	"host_ip",
	"source",
	"log_type",
	"classification_class",
	"classification_name",
	"anomaly_score",
	"severity",
	"is_anomaly",
}

func (s *Server) Start(ctx context.Context) *http.Server {
	if s.Config == nil {
		return nil
	}
	current := s.Config.Get().API
	if !current.Enabled {
		if s.Logger != nil {
			s.Logger.Info("api disabled")
		}
		return nil
	}
	if s.Logger != nil {
		s.Logger.Info("api enabled", "addr", current.Addr)
	}

	httpServer := &http.Server{Addr: current.Addr, Handler: s.Handler()}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if s.Logger != nil {
				s.Logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/logs", s.auth(s.handleLogs))
	mux.HandleFunc("/api/v1/logs/", s.auth(s.handleLogs))
	mux.HandleFunc("/api/v1/alerts", s.auth(s.handleAlerts))
	mux.HandleFunc("/api/v1/alerts/acknowledge", s.auth(s.handleAcknowledge))
	mux.HandleFunc("/api/v1/threshold", s.auth(s.handleThreshold))
	mux.HandleFunc("/api/v1/metrics", s.auth(s.handleMetrics))
	mux.HandleFunc("/api/v1/status", s.auth(s.handleStatus))
	mux.HandleFunc("/api/v1/stream", s.auth(s.handleStream))
	mux.HandleFunc("/api/v1/admin/clear", s.auth(s.handleClear))
	mux.HandleFunc("/health", s.handleHealth)
	if s.Registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{}))
	}
	return mux
}

func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := s.Config.Get().API.APIKey
		if key != "" && r.Header.Get("X-API-Key") != key {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid api key"})
			return
		}
		next(w, r)
	}
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.receiveLog(w, r)
	case http.MethodGet:
		s.listLogs(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// receiveLog is the collector side of the delivery contract: it accepts
// an already-classified record, persists it and creates an alert when
// the class is in the alerting set.
func (s *Server) receiveLog(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unreadable body"})
		return
	}
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}
	missing := make([]string, 0)
	for _, field := range requiredPayloadFields {
		if _, ok := raw[field]; !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":          "missing required fields",
			"missing_fields": missing,
		})
		return
	}

	var payload model.DeliveryPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
		return
	}
	if !model.ValidClassID(payload.ClassificationClass) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": fmt.Sprintf("classification_class %d out of range", payload.ClassificationClass)})
		return
	}
	ts, err := time.Parse(model.PayloadTimeLayout, payload.Timestamp)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid timestamp"})
		return
	}

	rec := model.LogRecord{
		ID:        uuid.NewString(),
		Timestamp: ts.UTC(),
		HostIP:    payload.HostIP,
		Format:    formatFromSource(payload.Source),
		Category:  payload.LogType,
		Source:    payload.Source,
		Message:   payload.LogMessage,
	}
	cls := model.Classification{
		ClassID:      payload.ClassificationClass,
		ClassName:    payload.ClassificationName,
		AnomalyScore: payload.AnomalyScore,
		IsAnomaly:    payload.IsAnomaly,
		Severity:     model.Severity(payload.Severity),
	}

	var alert *model.Alert
	if s.Engine != nil && s.Engine.ShouldAlert(cls.ClassID) {
		threshold := 0.0
		if s.Calibrator != nil {
			threshold = s.Calibrator.Threshold()
		}
		alert = &model.Alert{
			ID:           uuid.NewString(),
			LogID:        rec.ID,
			HostIP:       rec.HostIP,
			Message:      rec.Message,
			AnomalyScore: cls.AnomalyScore,
			Threshold:    threshold,
			IsAnomaly:    cls.IsAnomaly,
			ClassID:      cls.ClassID,
			ClassName:    cls.ClassName,
			Severity:     cls.Severity,
			DetectedAt:   time.Now().UTC(),
		}
	}

	if s.Store != nil {
		if err := s.Store.SaveRecord(r.Context(), rec, &cls, alert); err != nil {
			if s.Logger != nil {
				s.Logger.Error("persist received log", "record_id", rec.ID, "error", err)
			}
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "storage failure"})
			return
		}
	}
	if s.Metrics != nil {
		s.Metrics.RecordProcessed("api")
		s.Metrics.RecordClassified(cls.ClassID)
	}
	if alert != nil {
		if s.Alerts != nil {
			s.Alerts.Add(*alert)
		}
		if s.Metrics != nil {
			s.Metrics.RecordAlert()
		}
	}
	if s.Hub != nil {
		threshold := 0.0
		if s.Calibrator != nil {
			threshold = s.Calibrator.Threshold()
		}
		s.Hub.Broadcast(model.StreamEvent{Record: rec, Classification: &cls, Threshold: threshold})
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"log_id":          rec.ID,
		"anomaly_created": alert != nil,
		"classification":  cls.ClassName,
	})
}

func (s *Server) listLogs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	var entries []storage.Entry
	if s.Store != nil {
		list, err := s.Store.RecentEntries(r.Context(), limit)
		if err != nil {
			if s.Logger != nil {
				s.Logger.Error("list logs", "error", err)
			}
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "storage failure"})
			return
		}
		entries = list
	}
	if entries == nil {
		entries = []storage.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"logs":  entries,
		"count": len(entries),
	})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	sinceStr := r.URL.Query().Get("since")
	var list []model.Alert
	if sinceStr != "" {
		ts, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid since timestamp"})
			return
		}
		list = s.Alerts.Since(ts)
	} else {
		list = s.Alerts.List(limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": list,
		"count":  len(list),
	})
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil || req.ID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "alert id required"})
		return
	}
	found := s.Alerts.Acknowledge(req.ID)
	if s.Store != nil {
		if err := s.Store.AcknowledgeAlert(r.Context(), req.ID); err != nil && s.Logger != nil {
			s.Logger.Warn("acknowledge alert in storage", "alert_id", req.ID, "error", err)
		}
	}
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "alert not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "alert_id": req.ID})
}

func (s *Server) handleThreshold(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Value *float64 `json:"value"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil || req.Value == nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "value required"})
		return
	}
	if err := s.Calibrator.Override(*req.Value); err != nil {
		if errors.Is(err, engine.ErrInvalidThreshold) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "threshold": *req.Value})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	resp := struct {
		engine.CalibrationMetrics
		Pipeline metrics.Snapshot `json:"pipeline"`
	}{
		CalibrationMetrics: s.Calibrator.Metrics(),
		Pipeline:           s.Metrics.Snapshot(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		cfg := s.Config.Get()
		services := []model.ServiceStatus{}
		if s.Metrics != nil {
			services = s.Metrics.Services()
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"time":        time.Now().UTC().Format(time.RFC3339Nano),
			"version":     s.Version,
			"config_path": s.Config.Path(),
			"services":    services,
			"ingest": map[string]bool{
				"kafka":      cfg.Ingest.Kafka.Enabled,
				"nats":       cfg.Ingest.NATS.Enabled,
				"rest":       cfg.Ingest.REST.Enabled,
				"syslog":     cfg.Ingest.Syslog.Enabled,
				"tcp_stream": cfg.Ingest.TCPStream.Enabled,
				"file_tail":  cfg.Ingest.FileTail.Enabled,
			},
			"stream_subscribers": s.streamSubscribers(),
		})
	case http.MethodPost:
		var req struct {
			Service string `json:"service"`
			Status  string `json:"status"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil || req.Service == "" || req.Status == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "service and status required"})
			return
		}
		s.Metrics.SetServiceStatus(model.ServiceStatus{
			Service:   req.Service,
			Status:    req.Status,
			UpdatedAt: time.Now().UTC(),
		})
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, _ := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	var req struct {
		Target string `json:"target"`
	}
	_ = json.Unmarshal(body, &req)
	target := strings.ToLower(strings.TrimSpace(req.Target))
	if target == "" {
		target = "all"
	}
	switch target {
	case "all":
		s.Metrics.Clear()
		s.Alerts.Clear()
	case "alerts":
		s.Alerts.Clear()
	case "metrics":
		s.Metrics.Clear()
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unknown target"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) streamSubscribers() int {
	if s.Hub == nil {
		return 0
	}
	return s.Hub.Subscribers()
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.Hub == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	ch, cancel := s.Hub.Subscribe(64)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case ev, open := <-ch:
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"time":    time.Now().UTC().Format(time.RFC3339Nano),
		"version": s.Version,
	})
}

func formatFromSource(source string) model.SourceFormat {
	switch source {
	case "apache":
		return model.FormatApache
	case "linux", "syslog":
		return model.FormatSyslog
	default:
		return model.FormatGeneric
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
