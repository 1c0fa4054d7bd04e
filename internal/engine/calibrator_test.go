package engine

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"logwarden/internal/config"
)

func testCalibrator(initial float64) *Calibrator {
	return NewCalibrator(config.CalibrationConfig{
		WindowSize:       1000,
		Interval:         300 * time.Second,
		InitialThreshold: initial,
	}, nil)
}

func TestRecordPartitionsByThreshold(t *testing.T) {
	c := testCalibrator(0.5)
	if got := c.Record(0.5); got != 0.5 {
		t.Fatalf("Record returned %v, want call-time threshold 0.5", got)
	}
	c.Record(0.49)
	normal, abnormal := c.PoolSizes()
	if normal != 1 || abnormal != 1 {
		t.Fatalf("pools = (%d, %d), want (1, 1); boundary scores belong to the abnormal pool", normal, abnormal)
	}
}

func TestRecalibrateMovesTowardSeparation(t *testing.T) {
	c := testCalibrator(0.5)
	for i := 0; i < 1000; i++ {
		c.Record(0.05)
	}
	for i := 0; i < 50; i++ {
		c.Record(0.9)
	}
	later := time.Now().UTC().Add(10 * time.Minute)
	if !c.MaybeRecalibrate(later) {
		t.Fatalf("expected recalibration to change the threshold")
	}
	// Every candidate separates the pools perfectly, so the first one
	// evaluated wins.
	if got := c.Threshold(); got != 0.3 {
		t.Fatalf("threshold = %v, want 0.3", got)
	}
	if !c.LastRecalibrated().Equal(later) {
		t.Fatalf("recalibration clock not advanced")
	}
}

func TestRecalibrateSkipsCandidatesWithoutTruePositives(t *testing.T) {
	c := testCalibrator(0.5)
	for i := 0; i < 10; i++ {
		c.Record(0.4)
	}
	c.Record(0.55)
	if !c.MaybeRecalibrate(time.Now().UTC().Add(10 * time.Minute)) {
		t.Fatalf("expected recalibration to change the threshold")
	}
	// 0.3 scores a poor precision, 0.6 and 0.7 catch nothing, 0.4 is
	// the first candidate with a perfect split.
	if got := c.Threshold(); got != 0.4 {
		t.Fatalf("threshold = %v, want 0.4", got)
	}
}

func TestRecalibrateHonorsInterval(t *testing.T) {
	c := testCalibrator(0.5)
	c.Record(0.1)
	c.Record(0.9)
	if c.MaybeRecalibrate(time.Now().UTC()) {
		t.Fatalf("recalibrated before the interval elapsed")
	}
	if got := c.Threshold(); got != 0.5 {
		t.Fatalf("threshold moved to %v before the interval elapsed", got)
	}
}

func TestRecalibrateNeedsBothPools(t *testing.T) {
	c := testCalibrator(0.5)
	for i := 0; i < 50; i++ {
		c.Record(0.1)
	}
	later := time.Now().UTC().Add(10 * time.Minute)
	if c.MaybeRecalibrate(later) {
		t.Fatalf("recalibrated with an empty abnormal pool")
	}
	if got := c.Threshold(); got != 0.5 {
		t.Fatalf("threshold = %v, want unchanged 0.5", got)
	}
	if !c.LastRecalibrated().Equal(later) {
		t.Fatalf("clock should advance even when no candidate is usable")
	}
}

func TestOverride(t *testing.T) {
	c := testCalibrator(0.5)
	err := c.Override(1.5)
	if !errors.Is(err, ErrInvalidThreshold) {
		t.Fatalf("Override(1.5) error = %v, want ErrInvalidThreshold", err)
	}
	if got := c.Threshold(); got != 0.5 {
		t.Fatalf("rejected override mutated threshold to %v", got)
	}
	if err := c.Override(0.75); err != nil {
		t.Fatalf("Override(0.75): %v", err)
	}
	if got := c.Threshold(); got != 0.75 {
		t.Fatalf("threshold = %v, want 0.75", got)
	}
}

func TestThresholdStateSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "threshold.json")
	cfg := config.CalibrationConfig{
		WindowSize:       1000,
		Interval:         300 * time.Second,
		InitialThreshold: 0.5,
		StatePath:        path,
	}
	c := NewCalibrator(cfg, nil)
	if err := c.Override(0.8); err != nil {
		t.Fatalf("override: %v", err)
	}
	restarted := NewCalibrator(cfg, nil)
	if got := restarted.Threshold(); got != 0.8 {
		t.Fatalf("restarted threshold = %v, want persisted 0.8", got)
	}
}

func TestMetricsSnapshot(t *testing.T) {
	c := testCalibrator(0.5)
	c.Record(0.2)
	c.Record(0.4)
	c.Record(0.6)
	c.Record(0.8)
	m := c.Metrics()
	if m.Threshold != 0.5 {
		t.Fatalf("threshold = %v", m.Threshold)
	}
	if m.TP != 2 || m.FP != 0 || m.TN != 2 || m.FN != 0 {
		t.Fatalf("confusion counts = TP=%d FP=%d TN=%d FN=%d", m.TP, m.FP, m.TN, m.FN)
	}
	if m.Precision != 1 || m.Recall != 1 || m.F1 != 1 {
		t.Fatalf("precision=%v recall=%v f1=%v, want all 1", m.Precision, m.Recall, m.F1)
	}
	if m.NormalMean != 0.3 || m.AbnormalMean != 0.7 {
		t.Fatalf("means = (%v, %v), want (0.3, 0.7)", m.NormalMean, m.AbnormalMean)
	}
}
