package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"logwarden/internal/alerts"
	"logwarden/internal/classify"
	"logwarden/internal/config"
	"logwarden/internal/metrics"
	"logwarden/internal/model"
	"logwarden/internal/parse"
	"logwarden/internal/storage"
)

type fakeClassifier struct {
	ready bool
	fn    func(text string) (model.Classification, error)
}

func (f *fakeClassifier) Ready() bool { return f.ready }

func (f *fakeClassifier) Classify(_ context.Context, text string) (model.Classification, error) {
	return f.fn(text)
}

type savedRecord struct {
	rec   model.LogRecord
	cls   *model.Classification
	alert *model.Alert
}

type fakeStore struct {
	saved   []savedRecord
	failing bool
}

func (f *fakeStore) Init(context.Context) error { return nil }
func (f *fakeStore) Close() error               { return nil }

func (f *fakeStore) SaveRecord(_ context.Context, rec model.LogRecord, cls *model.Classification, alert *model.Alert) error {
	if f.failing {
		return errors.New("disk full")
	}
	f.saved = append(f.saved, savedRecord{rec: rec, cls: cls, alert: alert})
	return nil
}

func (f *fakeStore) AcknowledgeAlert(context.Context, string) error { return nil }

func (f *fakeStore) RecentEntries(context.Context, int) ([]storage.Entry, error) {
	return nil, nil
}

func newTestEngine(classifier classify.Classifier, store storage.Store) (*Engine, *alerts.Store, *metrics.Store) {
	cfg := config.DefaultConfig()
	alertStore := alerts.NewStore(100)
	metricStore := metrics.NewStore()
	eng := NewEngine(cfg, nil,
		parse.NewParser(nil),
		classify.NewDispatcher(classifier, nil),
		NewCalibrator(cfg.Calibration, nil),
		metricStore,
		alertStore,
		store,
	)
	return eng, alertStore, metricStore
}

func classifierReturning(classID int, score float64) *fakeClassifier {
	return &fakeClassifier{ready: true, fn: func(string) (model.Classification, error) {
		return model.Classification{ClassID: classID, AnomalyScore: score}, nil
	}}
}

func TestAlertOnlyForConfiguredClasses(t *testing.T) {
	for classID := 0; classID < model.NumClasses; classID++ {
		st := &fakeStore{}
		eng, alertStore, _ := newTestEngine(classifierReturning(classID, 0.9), st)
		alert, err := eng.ProcessLine(context.Background(), model.RawLine{Text: "authentication failure for root", Source: "kafka"})
		if err != nil {
			t.Fatalf("class %d: %v", classID, err)
		}
		wantAlert := classID == 1 || classID == 2
		if (alert != nil) != wantAlert {
			t.Fatalf("class %d: alert created = %v, want %v", classID, alert != nil, wantAlert)
		}
		if got := len(alertStore.List(0)); (got == 1) != wantAlert {
			t.Fatalf("class %d: stored alerts = %d", classID, got)
		}
		if len(st.saved) != 1 {
			t.Fatalf("class %d: expected exactly one persisted row, got %d", classID, len(st.saved))
		}
	}
}

func TestAlertCarriesRecordContext(t *testing.T) {
	st := &fakeStore{}
	eng, _, _ := newTestEngine(classifierReturning(1, 0.87), st)
	alert, err := eng.ProcessLine(context.Background(), model.RawLine{Text: "session opened for user root", Source: "rest"})
	if err != nil {
		t.Fatalf("process line: %v", err)
	}
	if alert == nil {
		t.Fatalf("expected an alert for class 1")
	}
	saved := st.saved[0]
	if alert.LogID != saved.rec.ID {
		t.Fatalf("alert.LogID = %q, want record id %q", alert.LogID, saved.rec.ID)
	}
	if alert.HostIP != saved.rec.HostIP || alert.Message != saved.rec.Message {
		t.Fatalf("alert context mismatch: %+v", alert)
	}
	if alert.Threshold != 0.5 {
		t.Fatalf("alert.Threshold = %v, want the threshold at classification time", alert.Threshold)
	}
	if alert.ClassName != "Security Anomaly" || alert.Severity != model.SeverityCritical {
		t.Fatalf("class metadata mismatch: %+v", alert)
	}
	if saved.alert == nil || saved.alert.ID != alert.ID {
		t.Fatalf("alert row not persisted with the record")
	}
}

func TestClassifierDownLeavesLogOnlyRow(t *testing.T) {
	st := &fakeStore{}
	eng, alertStore, metricStore := newTestEngine(&fakeClassifier{ready: false}, st)
	alert, err := eng.ProcessLine(context.Background(), model.RawLine{Text: "kernel: out of memory", Source: "kafka"})
	if !errors.Is(err, classify.ErrModelUnavailable) {
		t.Fatalf("error = %v, want ErrModelUnavailable", err)
	}
	if alert != nil {
		t.Fatalf("no alert expected without a classification")
	}
	if len(st.saved) != 1 || st.saved[0].cls != nil || st.saved[0].alert != nil {
		t.Fatalf("expected a log-only row, got %+v", st.saved)
	}
	if got := len(alertStore.List(0)); got != 0 {
		t.Fatalf("stored alerts = %d, want 0", got)
	}
	snap := metricStore.Snapshot()
	if snap.ClassifierErrors["model_unavailable"] != 1 {
		t.Fatalf("classifier error counters = %v", snap.ClassifierErrors)
	}
}

func TestPersistFailureDropsRecord(t *testing.T) {
	st := &fakeStore{failing: true}
	eng, alertStore, _ := newTestEngine(classifierReturning(2, 0.95), st)
	alert, err := eng.ProcessLine(context.Background(), model.RawLine{Text: "disk failure on /dev/sda", Source: "kafka"})
	if err == nil {
		t.Fatalf("expected persistence error")
	}
	if alert != nil {
		t.Fatalf("alert must not surface when the row was not persisted")
	}
	if got := len(alertStore.List(0)); got != 0 {
		t.Fatalf("stored alerts = %d, want 0 after persistence failure", got)
	}
}

func TestProcessLineFeedsCalibrator(t *testing.T) {
	eng, _, _ := newTestEngine(classifierReturning(4, 0.9), &fakeStore{})
	if _, err := eng.ProcessLine(context.Background(), model.RawLine{Text: "connection reset by peer", Source: "kafka"}); err != nil {
		t.Fatalf("process line: %v", err)
	}
	normal, abnormal := eng.Calibrator().PoolSizes()
	if normal != 0 || abnormal != 1 {
		t.Fatalf("pools = (%d, %d), want the score filed as abnormal", normal, abnormal)
	}
}

func TestStartDrainsChannel(t *testing.T) {
	eng, _, metricStore := newTestEngine(classifierReturning(0, 0.1), &fakeStore{})
	ctx, cancel := context.WithCancel(context.Background())
	in := make(chan model.RawLine, 1)
	eng.Start(ctx, in)
	in <- model.RawLine{Text: "system boot completed", Source: "tcp"}

	deadline := time.Now().Add(2 * time.Second)
	for metricStore.Snapshot().Processed == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("worker did not drain the channel")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	eng.Wait()
	if got := metricStore.Snapshot().BySource["tcp"]; got != 1 {
		t.Fatalf("per-source counter = %d, want 1", got)
	}
}

func TestUpdateConfigSwapsAlertClasses(t *testing.T) {
	st := &fakeStore{}
	eng, _, _ := newTestEngine(classifierReturning(3, 0.9), st)
	if alert, _ := eng.ProcessLine(context.Background(), model.RawLine{Text: "slow query detected", Source: "kafka"}); alert != nil {
		t.Fatalf("class 3 should not alert under the default policy")
	}
	cfg := config.DefaultConfig()
	cfg.Alerts.Classes = []int{3}
	eng.UpdateConfig(cfg)
	alert, err := eng.ProcessLine(context.Background(), model.RawLine{Text: "slow query detected", Source: "kafka"})
	if err != nil {
		t.Fatalf("process line: %v", err)
	}
	if alert == nil {
		t.Fatalf("class 3 should alert after the policy swap")
	}
}
