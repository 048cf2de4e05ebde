package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// TimestampLayout is the persisted timestamp format, local wall clock with second precision.
const TimestampLayout = "2006-01-02 15:04:05"

// RecordKind distinguishes the two shapes of a log record. The values match
// the JSON key that carries the payload.
type RecordKind string

const (
	KindPowerSample RecordKind = "power"
	KindOutage      RecordKind = "outage_duration"
)

var errMalformedRecord = errors.New("malformed log record")

// PowerReading is one instantaneous sample.
type PowerReading struct {
	Timestamp time.Time `json:"timestamp"`
	Watts     float64   `json:"watts"`
}

// LogRecord is a single entry of the event timeline: either a power sample
// or a finished outage. Only the field matching Kind is meaningful.
type LogRecord struct {
	Kind            RecordKind
	Timestamp       time.Time
	Watts           float64 // KindPowerSample
	DurationSeconds float64 // KindOutage
}

// NewPowerSample builds a power sample record from a reading.
func NewPowerSample(r PowerReading) LogRecord {
	return LogRecord{Kind: KindPowerSample, Timestamp: truncateToSecond(r.Timestamp), Watts: r.Watts}
}

// NewOutageEvent builds an outage record ending at ts.
func NewOutageEvent(ts time.Time, duration time.Duration) LogRecord {
	return LogRecord{Kind: KindOutage, Timestamp: truncateToSecond(ts), DurationSeconds: duration.Seconds()}
}

func truncateToSecond(t time.Time) time.Time {
	return t.Truncate(time.Second)
}

type powerSampleJSON struct {
	Timestamp string  `json:"timestamp"`
	Power     float64 `json:"power"`
}

type outageEventJSON struct {
	Timestamp      string  `json:"timestamp"`
	OutageDuration float64 `json:"outage_duration"`
}

// wireRecord accepts either shape on decode.
type wireRecord struct {
	Timestamp      *string  `json:"timestamp"`
	Power          *float64 `json:"power"`
	OutageDuration *float64 `json:"outage_duration"`
}

func (r LogRecord) MarshalJSON() ([]byte, error) {
	ts := r.Timestamp.Local().Format(TimestampLayout)
	switch r.Kind {
	case KindPowerSample:
		return json.Marshal(powerSampleJSON{Timestamp: ts, Power: r.Watts})
	case KindOutage:
		return json.Marshal(outageEventJSON{Timestamp: ts, OutageDuration: r.DurationSeconds})
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", errMalformedRecord, r.Kind)
	}
}

func (r *LogRecord) UnmarshalJSON(data []byte) error {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Timestamp == nil {
		return fmt.Errorf("%w: missing timestamp", errMalformedRecord)
	}
	ts, err := time.ParseInLocation(TimestampLayout, *w.Timestamp, time.Local)
	if err != nil {
		return fmt.Errorf("%w: %v", errMalformedRecord, err)
	}

	switch {
	case w.Power != nil && w.OutageDuration == nil:
		*r = LogRecord{Kind: KindPowerSample, Timestamp: ts, Watts: *w.Power}
	case w.OutageDuration != nil && w.Power == nil:
		*r = LogRecord{Kind: KindOutage, Timestamp: ts, DurationSeconds: *w.OutageDuration}
	default:
		return fmt.Errorf("%w: exactly one of %q or %q is required", errMalformedRecord, KindPowerSample, KindOutage)
	}
	return nil
}

// Equal reports whether two records describe the same event.
func (r LogRecord) Equal(o LogRecord) bool {
	return r.Kind == o.Kind &&
		r.Timestamp.Equal(o.Timestamp) &&
		r.Watts == o.Watts &&
		r.DurationSeconds == o.DurationSeconds
}
