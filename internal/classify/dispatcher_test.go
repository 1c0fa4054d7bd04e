package classify

import (
	"context"
	"errors"
	"testing"

	"logwarden/internal/model"
)

type fakeClassifier struct {
	ready bool
	fn    func(text string) (model.Classification, error)
}

func (f *fakeClassifier) Ready() bool { return f.ready }

func (f *fakeClassifier) Classify(_ context.Context, text string) (model.Classification, error) {
	return f.fn(text)
}

func TestDispatchNotReady(t *testing.T) {
	d := NewDispatcher(&fakeClassifier{ready: false}, nil)
	_, err := d.Dispatch(context.Background(), "anything")
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
}

func TestDispatchInferenceError(t *testing.T) {
	c := &fakeClassifier{ready: true, fn: func(string) (model.Classification, error) {
		return model.Classification{}, errors.New("boom")
	}}
	d := NewDispatcher(c, nil)
	_, err := d.Dispatch(context.Background(), "anything")
	if !errors.Is(err, ErrInference) {
		t.Fatalf("expected ErrInference, got %v", err)
	}
}

func TestDispatchRejectsOutOfRangeClass(t *testing.T) {
	c := &fakeClassifier{ready: true, fn: func(string) (model.Classification, error) {
		return model.Classification{ClassID: 9, AnomalyScore: 0.5}, nil
	}}
	d := NewDispatcher(c, nil)
	_, err := d.Dispatch(context.Background(), "anything")
	if !errors.Is(err, ErrInference) {
		t.Fatalf("expected ErrInference, got %v", err)
	}
}

func TestDispatchNormalizesResult(t *testing.T) {
	c := &fakeClassifier{ready: true, fn: func(string) (model.Classification, error) {
		return model.Classification{ClassID: 1, AnomalyScore: 1.7}, nil
	}}
	d := NewDispatcher(c, nil)
	cls, err := d.Dispatch(context.Background(), "suspicious login")
	if err != nil {
		t.Fatalf("dispatch error: %v", err)
	}
	if cls.AnomalyScore != 1.0 {
		t.Fatalf("score not clamped: %v", cls.AnomalyScore)
	}
	if cls.ClassName != "Security Anomaly" {
		t.Fatalf("class name: %s", cls.ClassName)
	}
	if cls.Severity != model.SeverityCritical {
		t.Fatalf("severity: %s", cls.Severity)
	}
	if !cls.IsAnomaly {
		t.Fatalf("expected anomaly flag")
	}
}

func TestDispatchNormalClassNotAnomaly(t *testing.T) {
	c := &fakeClassifier{ready: true, fn: func(string) (model.Classification, error) {
		return model.Classification{ClassID: 0, AnomalyScore: -0.2}, nil
	}}
	d := NewDispatcher(c, nil)
	cls, err := d.Dispatch(context.Background(), "normal traffic")
	if err != nil {
		t.Fatalf("dispatch error: %v", err)
	}
	if cls.AnomalyScore != 0 {
		t.Fatalf("score not clamped: %v", cls.AnomalyScore)
	}
	if cls.IsAnomaly {
		t.Fatalf("class 0 must not be an anomaly")
	}
	if cls.Severity != model.SeverityInfo {
		t.Fatalf("severity: %s", cls.Severity)
	}
}
