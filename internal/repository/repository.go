package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"power_monitor/internal/models"
)

// ErrCorruptLog is returned when the persisted timeline cannot be decoded.
// Stores never overwrite a document in that state.
var ErrCorruptLog = errors.New("event log is corrupt")

// EventRepo is the append-only event timeline.
type EventRepo interface {
	Append(ctx context.Context, rec models.LogRecord) error
	// List returns records in append order. Zero bounds and an empty kind
	// disable the corresponding filter; bounds are inclusive.
	List(ctx context.Context, from, to time.Time, kind models.RecordKind) ([]models.LogRecord, error)
}

type Repository struct {
	EventRepo EventRepo
}

// NewJSONRepository stores the timeline in a single JSON document at path.
func NewJSONRepository(path string) *Repository {
	return &Repository{EventRepo: NewEventJSONFile(path)}
}

// NewSQLiteRepository stores the timeline in the power_events table.
func NewSQLiteRepository(db *sql.DB) *Repository {
	return &Repository{EventRepo: NewEventSQLite(db)}
}

// filterRecords applies List semantics to an in-memory slice.
func filterRecords(recs []models.LogRecord, from, to time.Time, kind models.RecordKind) []models.LogRecord {
	out := make([]models.LogRecord, 0, len(recs))
	for _, r := range recs {
		if !from.IsZero() && r.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && r.Timestamp.After(to) {
			continue
		}
		if kind != "" && r.Kind != kind {
			continue
		}
		out = append(out, r)
	}
	return out
}
