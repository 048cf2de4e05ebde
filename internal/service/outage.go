package service

import (
	"time"

	"power_monitor/internal/models"
)

// OutageState is the tracker's view of the current outage, if any.
type OutageState struct {
	Active    bool
	StartedAt time.Time
}

// OutageTracker turns a stream of readings into outage records. A reading
// below the threshold opens an outage; the first reading at or above it
// closes the outage and yields one record. An outage still open when the
// caller stops feeding readings is never reported.
type OutageTracker struct {
	threshold float64
	state     OutageState
}

func NewOutageTracker(thresholdWatts float64) *OutageTracker {
	return &OutageTracker{threshold: thresholdWatts}
}

// Observe feeds one reading. It returns the finished outage record and true
// when r ends an outage.
func (t *OutageTracker) Observe(r models.PowerReading) (models.LogRecord, bool) {
	if r.Watts < t.threshold {
		if !t.state.Active {
			t.state = OutageState{Active: true, StartedAt: r.Timestamp}
		}
		return models.LogRecord{}, false
	}

	if !t.state.Active {
		return models.LogRecord{}, false
	}
	rec := models.NewOutageEvent(r.Timestamp, r.Timestamp.Sub(t.state.StartedAt))
	t.state = OutageState{}
	return rec, true
}

// State returns the current outage state.
func (t *OutageTracker) State() OutageState {
	return t.state
}
