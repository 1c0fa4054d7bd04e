package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"logwarden/internal/alerts"
	"logwarden/internal/classify"
	"logwarden/internal/config"
	"logwarden/internal/metrics"
	"logwarden/internal/model"
	"logwarden/internal/parse"
	"logwarden/internal/storage"
)

// ResultSender pushes a classified record to the remote collector.
type ResultSender interface {
	Deliver(ctx context.Context, payload model.DeliveryPayload) bool
}

// AnomalyPublisher forwards alert payloads to a broker topic.
type AnomalyPublisher interface {
	Publish(ctx context.Context, payload model.DeliveryPayload) error
}

// Broadcaster fans classified records out to live subscribers.
type Broadcaster interface {
	Broadcast(ev model.StreamEvent)
}

// Engine is the single pipeline worker: it drains raw lines from the
// ingest channel and runs parse, resolve, classify, calibrate, alert
// and persistence for each one in sequence.
type Engine struct {
	logger     *slog.Logger
	parser     *parse.Parser
	dispatcher *classify.Dispatcher
	calibrator *Calibrator
	metrics    *metrics.Store
	alerts     *alerts.Store
	store      storage.Store
	sender     ResultSender
	publisher  AnomalyPublisher
	hub        Broadcaster
	cfg        atomic.Value
	policy     atomic.Value
	done       chan struct{}
}

func NewEngine(cfg *config.Config, logger *slog.Logger, parser *parse.Parser, dispatcher *classify.Dispatcher, calibrator *Calibrator, metricsStore *metrics.Store, alertsStore *alerts.Store, store storage.Store) *Engine {
	e := &Engine{
		logger:     logger,
		parser:     parser,
		dispatcher: dispatcher,
		calibrator: calibrator,
		metrics:    metricsStore,
		alerts:     alertsStore,
		store:      store,
	}
	e.cfg.Store(cfg)
	e.policy.Store(buildAlertPolicy(cfg))
	return e
}

func (e *Engine) SetSender(s ResultSender)        { e.sender = s }
func (e *Engine) SetPublisher(p AnomalyPublisher) { e.publisher = p }
func (e *Engine) SetHub(h Broadcaster)            { e.hub = h }

func (e *Engine) UpdateConfig(cfg *config.Config) {
	e.cfg.Store(cfg)
	e.policy.Store(buildAlertPolicy(cfg))
}

func (e *Engine) Calibrator() *Calibrator {
	return e.calibrator
}

// ShouldAlert reports whether classID belongs to the configured
// alerting set.
func (e *Engine) ShouldAlert(classID int) bool {
	return e.policySet().ShouldAlert(classID)
}

func (e *Engine) config() *config.Config {
	if v := e.cfg.Load(); v != nil {
		return v.(*config.Config)
	}
	return config.DefaultConfig()
}

func (e *Engine) policySet() *alertPolicy {
	if v := e.policy.Load(); v != nil {
		return v.(*alertPolicy)
	}
	return buildAlertPolicy(e.config())
}

// Start spawns the worker goroutine. The worker finishes the record in
// flight before honoring cancellation; Wait blocks until it exits.
func (e *Engine) Start(ctx context.Context, in <-chan model.RawLine) {
	e.done = make(chan struct{})
	go func() {
		defer close(e.done)
		for {
			select {
			case line := <-in:
				e.ProcessLine(ctx, line)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (e *Engine) Wait() {
	if e.done != nil {
		<-e.done
	}
}

// ProcessLine runs one raw line through the full pipeline. It returns
// the alert created for the record, if any. Classification failures
// leave a log-only row behind and never abort the worker.
func (e *Engine) ProcessLine(ctx context.Context, raw model.RawLine) (*model.Alert, error) {
	rec := e.parser.Parse(raw.Text)
	rec.ID = uuid.NewString()
	e.metrics.RecordProcessed(raw.Source)
	if rec.Degraded {
		e.metrics.RecordDegraded()
		if e.logger != nil {
			e.logger.Debug("degraded parse", "record_id", rec.ID, "stage", "parse", "source", raw.Source)
		}
	}

	cls, err := e.dispatcher.Dispatch(ctx, rec.Message)
	if err != nil {
		kind := "inference_failure"
		if errors.Is(err, classify.ErrModelUnavailable) {
			kind = "model_unavailable"
		}
		e.metrics.RecordClassifierError(kind)
		if e.logger != nil {
			e.logger.Warn("classification failed",
				"record_id", rec.ID,
				"stage", "classify",
				"kind", kind,
				"error", err,
			)
		}
		if e.store != nil {
			if serr := e.store.SaveRecord(ctx, rec, nil, nil); serr != nil && e.logger != nil {
				e.logger.Error("persist failed", "record_id", rec.ID, "stage", "persist", "error", serr)
			}
		}
		return nil, err
	}

	threshold := e.calibrator.Record(cls.AnomalyScore)
	e.calibrator.MaybeRecalibrate(time.Now().UTC())
	e.metrics.RecordClassified(cls.ClassID)

	var alert *model.Alert
	if e.policySet().ShouldAlert(cls.ClassID) {
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

	// Log row and alert row land in one transaction; on failure the
	// record is dropped rather than half-persisted.
	if e.store != nil {
		if err := e.store.SaveRecord(ctx, rec, &cls, alert); err != nil {
			if e.logger != nil {
				e.logger.Error("persist failed", "record_id", rec.ID, "stage", "persist", "error", err)
			}
			return nil, err
		}
	}

	if alert != nil {
		e.alerts.Add(*alert)
		e.metrics.RecordAlert()
		if e.logger != nil {
			e.logger.Warn("alert created",
				"record_id", rec.ID,
				"alert_id", alert.ID,
				"class", cls.ClassID,
				"class_name", cls.ClassName,
				"score", cls.AnomalyScore,
				"threshold", threshold,
			)
		}
	}

	e.deliver(ctx, rec, cls, alert)
	if e.hub != nil {
		e.hub.Broadcast(model.StreamEvent{Record: rec, Classification: &cls, Threshold: threshold})
	}
	return alert, nil
}

func (e *Engine) deliver(ctx context.Context, rec model.LogRecord, cls model.Classification, alert *model.Alert) {
	payload := model.NewDeliveryPayload(rec, cls)
	if e.sender != nil {
		e.metrics.RecordDelivery(e.sender.Deliver(ctx, payload))
	}
	if e.publisher != nil && alert != nil {
		if err := e.publisher.Publish(ctx, payload); err != nil && e.logger != nil {
			e.logger.Warn("anomaly publish failed", "record_id", rec.ID, "stage", "publish", "error", err)
		}
	}
}
