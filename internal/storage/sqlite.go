package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"

	"logwarden/internal/model"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:logwarden.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS log_entries (
			id TEXT PRIMARY KEY,
			ts TIMESTAMP NOT NULL,
			host_ip TEXT NOT NULL,
			format TEXT NOT NULL,
			category TEXT NOT NULL,
			hostname TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL,
			message TEXT NOT NULL,
			degraded INTEGER NOT NULL DEFAULT 0,
			class_id INTEGER,
			class_name TEXT,
			anomaly_score REAL,
			is_anomaly INTEGER,
			severity TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_log_entries_ts ON log_entries(ts)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			log_id TEXT NOT NULL REFERENCES log_entries(id),
			host_ip TEXT NOT NULL,
			message TEXT NOT NULL,
			anomaly_score REAL NOT NULL,
			threshold REAL NOT NULL,
			is_anomaly INTEGER NOT NULL,
			acknowledged INTEGER NOT NULL DEFAULT 0,
			class_id INTEGER NOT NULL,
			class_name TEXT NOT NULL,
			severity TEXT NOT NULL,
			detected_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_detected_at ON alerts(detected_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) SaveRecord(ctx context.Context, rec model.LogRecord, cls *model.Classification, alert *model.Alert) error {
	if s.db == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	classID, className, score, isAnomaly, severity := classificationArgs(cls)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO log_entries (id, ts, host_ip, format, category, hostname, source, message, degraded, class_id, class_name, anomaly_score, is_anomaly, severity, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Timestamp.UTC(),
		rec.HostIP,
		string(rec.Format),
		rec.Category,
		rec.Hostname,
		rec.Source,
		rec.Message,
		rec.Degraded,
		classID,
		className,
		score,
		isAnomaly,
		severity,
		nowUTC(),
	); err != nil {
		_ = tx.Rollback()
		return err
	}
	if alert != nil {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO alerts (id, log_id, host_ip, message, anomaly_score, threshold, is_anomaly, acknowledged, class_id, class_name, severity, detected_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			alert.ID,
			alert.LogID,
			alert.HostIP,
			alert.Message,
			alert.AnomalyScore,
			alert.Threshold,
			alert.IsAnomaly,
			alert.Acknowledged,
			alert.ClassID,
			alert.ClassName,
			string(alert.Severity),
			alert.DetectedAt.UTC(),
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) AcknowledgeAlert(ctx context.Context, id string) error {
	if s.db == nil || id == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `UPDATE alerts SET acknowledged = 1 WHERE id = ?`, id)
	return err
}

func (s *sqliteStore) RecentEntries(ctx context.Context, limit int) ([]Entry, error) {
	if s.db == nil {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ts, host_ip, format, category, hostname, source, message, degraded, class_id, class_name, anomaly_score, is_anomaly, severity
		FROM log_entries ORDER BY created_at DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}
