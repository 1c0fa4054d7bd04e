package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"logwarden/internal/config"
	"logwarden/internal/model"
)

// Entry is a persisted log row joined with its classification, when
// one was produced.
type Entry struct {
	Record         model.LogRecord       `json:"record"`
	Classification *model.Classification `json:"classification,omitempty"`
}

type Store interface {
	Init(ctx context.Context) error
	Close() error
	// SaveRecord writes the log row, its classification columns and the
	// alert row, when present, in a single transaction.
	SaveRecord(ctx context.Context, rec model.LogRecord, cls *model.Classification, alert *model.Alert) error
	AcknowledgeAlert(ctx context.Context, id string) error
	RecentEntries(ctx context.Context, limit int) ([]Entry, error)
}

func NewStore(cfg config.StorageConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, errors.New("unsupported storage driver")
	}
}

type baseStore struct {
	db *sql.DB
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

// classificationArgs flattens the nullable classification columns for
// the log row insert.
func classificationArgs(cls *model.Classification) (classID, className, score, isAnomaly, severity any) {
	if cls == nil {
		return nil, nil, nil, nil, nil
	}
	return cls.ClassID, cls.ClassName, cls.AnomalyScore, cls.IsAnomaly, string(cls.Severity)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var (
			rec       model.LogRecord
			format    string
			degraded  bool
			classID   sql.NullInt64
			className sql.NullString
			score     sql.NullFloat64
			isAnomaly sql.NullBool
			severity  sql.NullString
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.Timestamp,
			&rec.HostIP,
			&format,
			&rec.Category,
			&rec.Hostname,
			&rec.Source,
			&rec.Message,
			&degraded,
			&classID,
			&className,
			&score,
			&isAnomaly,
			&severity,
		); err != nil {
			return nil, err
		}
		rec.Format = model.SourceFormat(format)
		rec.Degraded = degraded
		entry := Entry{Record: rec}
		if classID.Valid {
			entry.Classification = &model.Classification{
				ClassID:      int(classID.Int64),
				ClassName:    className.String,
				AnomalyScore: score.Float64,
				IsAnomaly:    isAnomaly.Bool,
				Severity:     model.Severity(severity.String),
			}
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return 100
	}
	return limit
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
