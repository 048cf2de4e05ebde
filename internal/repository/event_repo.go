package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"power_monitor/internal/models"

	"github.com/google/uuid"
)

// sqliteTimeLayout matches SQLite's TIMESTAMP text format; values are stored in UTC.
const sqliteTimeLayout = "2006-01-02 15:04:05"

const (
	insertEventSQL = `INSERT INTO power_events (id, occurred_at, kind, power, outage_duration) VALUES (?, ?, ?, ?, ?)`
	selectEventSQL = `SELECT occurred_at, kind, power, outage_duration FROM power_events`
)

type EventSQLite struct {
	db *sql.DB
}

func NewEventSQLite(db *sql.DB) *EventSQLite { return &EventSQLite{db: db} }

var _ EventRepo = (*EventSQLite)(nil)

// Append inserts rec. Insertion order is kept by the seq column.
func (r *EventSQLite) Append(ctx context.Context, rec models.LogRecord) error {
	var power, outage sql.NullFloat64
	switch rec.Kind {
	case models.KindPowerSample:
		power = sql.NullFloat64{Float64: rec.Watts, Valid: true}
	case models.KindOutage:
		outage = sql.NullFloat64{Float64: rec.DurationSeconds, Valid: true}
	default:
		return fmt.Errorf("append event: unknown kind %q", rec.Kind)
	}

	_, err := r.db.ExecContext(ctx, insertEventSQL,
		uuid.NewString(),
		rec.Timestamp.UTC().Format(sqliteTimeLayout),
		string(rec.Kind),
		power,
		outage,
	)
	if err != nil {
		return fmt.Errorf("insert %s event: %w", rec.Kind, err)
	}
	return nil
}

// List returns events filtered by [from, to] (inclusive) and/or kind, in insertion order.
func (r *EventSQLite) List(ctx context.Context, from, to time.Time, kind models.RecordKind) ([]models.LogRecord, error) {
	var (
		conds []string
		args  []any
	)

	if !from.IsZero() {
		conds = append(conds, "occurred_at >= ?")
		args = append(args, from.UTC().Format(sqliteTimeLayout))
	}
	if !to.IsZero() {
		conds = append(conds, "occurred_at <= ?")
		args = append(args, to.UTC().Format(sqliteTimeLayout))
	}
	if kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, string(kind))
	}

	q := selectEventSQL
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY seq ASC"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("select events: %w", err)
	}
	defer rows.Close()

	out := make([]models.LogRecord, 0, 64)
	for rows.Next() {
		var (
			rec        models.LogRecord
			kindStr    string
			power      sql.NullFloat64
			outageSecs sql.NullFloat64
		)
		if err := rows.Scan(&rec.Timestamp, &kindStr, &power, &outageSecs); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		rec.Kind = models.RecordKind(kindStr)
		rec.Timestamp = rec.Timestamp.Local()

		switch {
		case rec.Kind == models.KindPowerSample && power.Valid:
			rec.Watts = power.Float64
		case rec.Kind == models.KindOutage && outageSecs.Valid:
			rec.DurationSeconds = outageSecs.Float64
		default:
			return nil, fmt.Errorf("%w: row of kind %q has no payload", ErrCorruptLog, kindStr)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
