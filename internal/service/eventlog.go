package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"power_monitor/internal/models"
	"power_monitor/internal/repository"
)

type EventLogService struct {
	eventRepo repository.EventRepo
}

func NewEventLogService(eventRepo repository.EventRepo) *EventLogService {
	return &EventLogService{eventRepo: eventRepo}
}

var (
	errInvalidTimeRange = errors.New("invalid time range: From must be <= To")
	errInvalidKind      = errors.New("invalid record kind: must be power or outage_duration")
)

// LogFilter selects part of the timeline.
type LogFilter struct {
	From time.Time // inclusive; zero means no lower bound
	To   time.Time // inclusive; zero means no upper bound
	Kind string    // "", "power", "outage_duration"
}

// LogSummary describes the persisted timeline at a glance.
type LogSummary struct {
	Samples            int
	Outages            int
	TotalOutageSeconds float64
	First              time.Time
	Last               time.Time
	LastOutage         *models.LogRecord
}

// normalizeKind trims and lowercases the kind filter and checks it.
func normalizeKind(s string) (models.RecordKind, error) {
	k := models.RecordKind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case "", models.KindPowerSample, models.KindOutage:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", errInvalidKind, s)
	}
}

// normalizeAndValidateFilter prepares query parameters and validates the time range.
func normalizeAndValidateFilter(f LogFilter) (time.Time, time.Time, models.RecordKind, error) {
	if !f.From.IsZero() && !f.To.IsZero() && f.From.After(f.To) {
		return time.Time{}, time.Time{}, "", errInvalidTimeRange
	}
	kind, err := normalizeKind(f.Kind)
	if err != nil {
		return time.Time{}, time.Time{}, "", err
	}
	return f.From, f.To, kind, nil
}

// Append persists one record. Records are immutable once written.
func (s *EventLogService) Append(ctx context.Context, rec models.LogRecord) error {
	return s.eventRepo.Append(ctx, rec)
}

// List returns the filtered timeline in append order.
func (s *EventLogService) List(ctx context.Context, f LogFilter) ([]models.LogRecord, error) {
	from, to, kind, err := normalizeAndValidateFilter(f)
	if err != nil {
		return nil, err
	}
	return s.eventRepo.List(ctx, from, to, kind)
}

// Summarize reads the whole timeline and counts it. It doubles as the
// startup corruption check.
func (s *EventLogService) Summarize(ctx context.Context) (LogSummary, error) {
	recs, err := s.eventRepo.List(ctx, time.Time{}, time.Time{}, "")
	if err != nil {
		return LogSummary{}, err
	}

	var sum LogSummary
	for i := range recs {
		r := recs[i]
		if sum.First.IsZero() {
			sum.First = r.Timestamp
		}
		sum.Last = r.Timestamp

		switch r.Kind {
		case models.KindPowerSample:
			sum.Samples++
		case models.KindOutage:
			sum.Outages++
			sum.TotalOutageSeconds += r.DurationSeconds
			sum.LastOutage = &recs[i]
		}
	}
	return sum, nil
}
