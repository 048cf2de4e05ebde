package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"power_monitor/internal/models"
)

// ---- Test doubles ----

// scriptSensor reports watts from a script (volts = watts, amps = 1).
// Once the script is exhausted the last value repeats.
type scriptSensor struct {
	mu      sync.Mutex
	watts   []float64
	pos     int
	readErr error
	reads   atomic.Int64
}

func newScriptSensor(watts ...float64) *scriptSensor {
	return &scriptSensor{watts: watts}
}

func (s *scriptSensor) ReadVoltage() (float64, error) {
	s.reads.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return 0, s.readErr
	}
	v := s.watts[s.pos]
	if s.pos < len(s.watts)-1 {
		s.pos++
	}
	return v, nil
}

func (s *scriptSensor) ReadCurrent() (float64, error) { return 1, nil }

type fakeDisplay struct {
	mu      sync.Mutex
	shown   []string
	cleared int
	err     error
}

func (d *fakeDisplay) Show(text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shown = append(d.shown, text)
	return d.err
}

func (d *fakeDisplay) Clear() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cleared++
	return d.err
}

func (d *fakeDisplay) last() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.shown) == 0 {
		return ""
	}
	return d.shown[len(d.shown)-1]
}

func (d *fakeDisplay) has(text string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.shown {
		if s == text {
			return true
		}
	}
	return false
}

func (d *fakeDisplay) clearCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cleared
}

type fakeIndicator struct {
	mu       sync.Mutex
	patterns [][3]bool
	err      error
}

func (i *fakeIndicator) SetPattern(green, yellow, red bool) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.patterns = append(i.patterns, [3]bool{green, yellow, red})
	return i.err
}

func (i *fakeIndicator) last() [3]bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if len(i.patterns) == 0 {
		return [3]bool{}
	}
	return i.patterns[len(i.patterns)-1]
}

type fakeInput struct {
	held atomic.Bool
}

func (f *fakeInput) LowPowerHeld() bool { return f.held.Load() }

type fakePower struct {
	calls atomic.Int64
	err   error
}

func (p *fakePower) PowerOff(ctx context.Context) error {
	p.calls.Add(1)
	return p.err
}

// memEvents is an in-memory EventAppender.
type memEvents struct {
	mu   sync.Mutex
	recs []models.LogRecord
	err  error
}

func (m *memEvents) Append(ctx context.Context, rec models.LogRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.recs = append(m.recs, rec)
	return nil
}

func (m *memEvents) snapshot() []models.LogRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.LogRecord, len(m.recs))
	copy(out, m.recs)
	return out
}

func (m *memEvents) count(kind models.RecordKind) int {
	n := 0
	for _, r := range m.snapshot() {
		if r.Kind == kind {
			n++
		}
	}
	return n
}

// ---- Harness ----

type harness struct {
	ctrl    *Controller
	sensor  *scriptSensor
	display *fakeDisplay
	leds    *fakeIndicator
	input   *fakeInput
	power   *fakePower
	events  *memEvents
	signals chan models.Signal

	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func fastSettings() Settings {
	return Settings{
		NormalInterval:       5 * time.Millisecond,
		LowPowerInterval:     5 * time.Millisecond,
		ShutdownGrace:        time.Millisecond,
		OutageThresholdWatts: OutageThresholdWatts,
	}
}

func newHarness(t *testing.T, cfg Settings, sensor *scriptSensor) *harness {
	t.Helper()
	h := &harness{
		sensor:  sensor,
		display: &fakeDisplay{},
		leds:    &fakeIndicator{},
		input:   &fakeInput{},
		power:   &fakePower{},
		events:  &memEvents{},
		signals: make(chan models.Signal, 4),
		done:    make(chan struct{}),
	}
	h.ctrl = NewController(Devices{
		Sensor:    h.sensor,
		Display:   h.display,
		Indicator: h.leds,
		Input:     h.input,
		Power:     h.power,
	}, h.events, cfg, nil)
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		h.err = h.ctrl.Run(ctx, h.signals)
		close(h.done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(2 * time.Second):
		}
	})
}

func (h *harness) wait(t *testing.T) error {
	t.Helper()
	select {
	case <-h.done:
		return h.err
	case <-time.After(2 * time.Second):
		t.Fatalf("controller did not return")
		return nil
	}
}

// waitFor polls cond until it holds or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out after %v waiting for %s", timeout, what)
}

// steppingClock returns a clock that advances by step on every call.
func steppingClock(base time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	n := 0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		ts := base.Add(time.Duration(n) * step)
		n++
		return ts
	}
}
