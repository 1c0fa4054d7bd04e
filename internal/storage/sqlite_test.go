package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"logwarden/internal/model"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dsn)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.Init(context.Background()); err != nil {
		t.Fatalf("init store: %v", err)
	}
	return st
}

func TestSaveRecordRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	rec := model.LogRecord{
		ID:        "rec-1",
		Timestamp: time.Date(2026, 6, 9, 6, 7, 4, 0, time.UTC),
		HostIP:    "192.168.10.20",
		Format:    model.FormatSyslog,
		Category:  "kernel",
		Hostname:  "combo",
		Source:    "linux",
		Message:   "kernel: audit: backlog limit exceeded",
	}
	cls := model.Classification{
		ClassID:      2,
		ClassName:    "System Failure",
		AnomalyScore: 0.91,
		IsAnomaly:    true,
		Severity:     model.SeverityCritical,
	}
	alert := model.Alert{
		ID:           "alert-1",
		LogID:        rec.ID,
		HostIP:       rec.HostIP,
		Message:      rec.Message,
		AnomalyScore: cls.AnomalyScore,
		Threshold:    0.5,
		IsAnomaly:    true,
		ClassID:      cls.ClassID,
		ClassName:    cls.ClassName,
		Severity:     cls.Severity,
		DetectedAt:   time.Date(2026, 6, 9, 6, 7, 5, 0, time.UTC),
	}
	if err := st.SaveRecord(ctx, rec, &cls, &alert); err != nil {
		t.Fatalf("save record: %v", err)
	}

	entries, err := st.RecentEntries(ctx, 10)
	if err != nil {
		t.Fatalf("recent entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	got := entries[0]
	if got.Record.ID != rec.ID || got.Record.HostIP != rec.HostIP || got.Record.Message != rec.Message {
		t.Fatalf("record mismatch: %+v", got.Record)
	}
	if !got.Record.Timestamp.Equal(rec.Timestamp) {
		t.Fatalf("timestamp mismatch: got %v want %v", got.Record.Timestamp, rec.Timestamp)
	}
	if got.Classification == nil {
		t.Fatalf("expected classification columns")
	}
	if got.Classification.ClassID != 2 || !got.Classification.IsAnomaly {
		t.Fatalf("classification mismatch: %+v", got.Classification)
	}

	if err := st.AcknowledgeAlert(ctx, alert.ID); err != nil {
		t.Fatalf("acknowledge alert: %v", err)
	}
}

func TestSaveRecordLogOnly(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	rec := model.LogRecord{
		ID:        "rec-2",
		Timestamp: time.Date(2026, 6, 9, 7, 0, 0, 0, time.UTC),
		HostIP:    "192.168.0.1",
		Format:    model.FormatGeneric,
		Category:  "info",
		Source:    "generic",
		Message:   "classifier was down for this one",
		Degraded:  true,
	}
	if err := st.SaveRecord(ctx, rec, nil, nil); err != nil {
		t.Fatalf("save record: %v", err)
	}

	entries, err := st.RecentEntries(ctx, 10)
	if err != nil {
		t.Fatalf("recent entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Classification != nil {
		t.Fatalf("expected NULL classification columns, got %+v", entries[0].Classification)
	}
	if !entries[0].Record.Degraded {
		t.Fatalf("expected degraded flag to survive")
	}
}
