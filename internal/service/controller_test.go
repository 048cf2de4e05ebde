package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"power_monitor/internal/models"
	"power_monitor/internal/repository"
)

const settle = 2 * time.Second

func TestController_StartsInNormalAndLogsSamples(t *testing.T) {
	t.Parallel()

	h := newHarness(t, fastSettings(), newScriptSensor(220*0.5))
	if h.ctrl.Mode() != models.ModeNormal {
		t.Fatalf("initial mode: want NORMAL, got %s", h.ctrl.Mode())
	}
	h.start(t)

	waitFor(t, settle, "three power samples", func() bool {
		return h.events.count(models.KindPowerSample) >= 3
	})

	if got := h.display.last(); got != "Power: 110.00W" {
		t.Fatalf("display: want %q, got %q", "Power: 110.00W", got)
	}
	if got := h.leds.last(); got != [3]bool{true, false, false} {
		t.Fatalf("leds: want green only, got %v", got)
	}
	for _, r := range h.events.snapshot() {
		if r.Kind != models.KindPowerSample || r.Watts != 110 {
			t.Fatalf("unexpected record in normal mode: %+v", r)
		}
	}
	st := h.ctrl.Status()
	if st.Mode != models.ModeNormal || st.LastWatts != 110 || st.LastSampleAt.IsZero() {
		t.Fatalf("unexpected status: %+v", st)
	}

	h.cancel()
	if err := h.wait(t); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run: want context.Canceled, got %v", err)
	}
	if h.power.calls.Load() != 0 {
		t.Fatalf("power-off must not run on context cancellation")
	}
}

func TestController_OnPressedInterruptsLowPowerSleep(t *testing.T) {
	t.Parallel()

	cfg := fastSettings()
	cfg.LowPowerInterval = time.Hour
	h := newHarness(t, cfg, newScriptSensor(110))
	h.input.held.Store(true)
	h.start(t)

	h.signals <- models.SignalLowPower
	waitFor(t, settle, "low-power tick", func() bool {
		return h.ctrl.Mode() == models.ModeLowPower && h.display.last() == msgLowPower
	})
	if got := h.leds.last(); got != [3]bool{false, true, false} {
		t.Fatalf("leds: want yellow only, got %v", got)
	}
	before := h.events.count(models.KindPowerSample)

	start := time.Now()
	h.signals <- models.SignalOn
	waitFor(t, settle, "normal mode after on press", func() bool {
		return h.ctrl.Mode() == models.ModeNormal && h.events.count(models.KindPowerSample) > before
	})
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("transition took %v; the low-power sleep was not interrupted", elapsed)
	}
	if got := h.leds.last(); got != [3]bool{true, false, false} {
		t.Fatalf("leds: want green only, got %v", got)
	}
}

func TestController_OnPressedWhileNormalRestartsLoop(t *testing.T) {
	t.Parallel()

	cfg := fastSettings()
	cfg.NormalInterval = time.Hour
	h := newHarness(t, cfg, newScriptSensor(110))
	h.start(t)

	waitFor(t, settle, "first sample", func() bool { return h.events.count(models.KindPowerSample) == 1 })

	h.signals <- models.SignalOn
	waitFor(t, settle, "sample from restarted loop", func() bool {
		return h.events.count(models.KindPowerSample) == 2
	})
	if h.ctrl.Mode() != models.ModeNormal {
		t.Fatalf("mode: want NORMAL, got %s", h.ctrl.Mode())
	}
}

func TestController_OffPressedShutsDownFromAnyMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		enter func(t *testing.T, h *harness)
	}{
		{
			name: "from normal",
			enter: func(t *testing.T, h *harness) {
				waitFor(t, settle, "normal samples", func() bool {
					return h.events.count(models.KindPowerSample) >= 2
				})
			},
		},
		{
			name: "from low power",
			enter: func(t *testing.T, h *harness) {
				h.input.held.Store(true)
				h.signals <- models.SignalLowPower
				waitFor(t, settle, "low-power mode", func() bool {
					return h.ctrl.Mode() == models.ModeLowPower && h.display.last() == msgLowPower
				})
			},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, fastSettings(), newScriptSensor(110))
			h.start(t)
			tc.enter(t, h)

			h.signals <- models.SignalOff
			if err := h.wait(t); err != nil {
				t.Fatalf("Run: want nil after shutdown, got %v", err)
			}

			if h.ctrl.Mode() != models.ModeShuttingDown {
				t.Fatalf("mode: want SHUTTING_DOWN, got %s", h.ctrl.Mode())
			}
			if h.power.calls.Load() != 1 {
				t.Fatalf("power-off calls: want 1, got %d", h.power.calls.Load())
			}
			if !h.display.has(msgShuttingDown) {
				t.Fatalf("shutdown message was never shown")
			}
			if h.display.clearCount() != 1 {
				t.Fatalf("display clears: want 1, got %d", h.display.clearCount())
			}

			after := len(h.events.snapshot())
			time.Sleep(30 * time.Millisecond)
			if got := len(h.events.snapshot()); got != after {
				t.Fatalf("records appended after shutdown: %d -> %d", after, got)
			}
		})
	}
}

func TestController_LowPowerReleaseReturnsToNormal(t *testing.T) {
	t.Parallel()

	h := newHarness(t, fastSettings(), newScriptSensor(110))
	h.input.held.Store(true)
	h.start(t)

	h.signals <- models.SignalLowPower
	waitFor(t, settle, "low-power mode", func() bool { return h.ctrl.Mode() == models.ModeLowPower })

	h.input.held.Store(false)
	waitFor(t, settle, "normal mode after release", func() bool { return h.ctrl.Mode() == models.ModeNormal })
}

func TestController_ShortLowPowerPressDoesNotLoop(t *testing.T) {
	t.Parallel()

	cfg := fastSettings()
	cfg.NormalInterval = time.Hour
	h := newHarness(t, cfg, newScriptSensor(110))
	h.start(t)
	waitFor(t, settle, "first sample", func() bool { return h.events.count(models.KindPowerSample) == 1 })

	// button already released when the loop checks it
	h.signals <- models.SignalLowPower
	waitFor(t, settle, "second normal sample", func() bool {
		return h.events.count(models.KindPowerSample) == 2
	})
	if h.display.has(msgLowPower) {
		t.Fatalf("low-power tick ran although the button was not held")
	}
}

func TestController_LowPowerLogsOutage(t *testing.T) {
	t.Parallel()

	// first value feeds the initial normal tick
	sensor := newScriptSensor(110, 15, 8, 8, 20)
	cfg := fastSettings()
	cfg.NormalInterval = time.Hour
	h := newHarness(t, cfg, sensor)
	base := time.Date(2025, 7, 1, 12, 0, 0, 0, time.Local)
	h.ctrl.sampler.now = steppingClock(base, 10*time.Second)
	h.input.held.Store(true)
	h.start(t)

	waitFor(t, settle, "first sample", func() bool { return h.events.count(models.KindPowerSample) == 1 })
	h.signals <- models.SignalLowPower

	waitFor(t, settle, "outage record", func() bool { return h.events.count(models.KindOutage) == 1 })

	var outage models.LogRecord
	for _, r := range h.events.snapshot() {
		if r.Kind == models.KindOutage {
			outage = r
		}
	}
	// readings at +20s (8W), +30s (8W), +40s (20W): outage opened at +20s, closed at +40s
	if outage.DurationSeconds != 20 {
		t.Fatalf("outage duration: want 20s, got %v", outage.DurationSeconds)
	}
	if !outage.Timestamp.Equal(base.Add(40 * time.Second)) {
		t.Fatalf("outage timestamp: want %v, got %v", base.Add(40*time.Second), outage.Timestamp)
	}
	if n := h.events.count(models.KindPowerSample); n != 1 {
		t.Fatalf("low-power mode must not log power samples, got %d", n)
	}

	// power stays up: no further outages
	time.Sleep(30 * time.Millisecond)
	if n := h.events.count(models.KindOutage); n != 1 {
		t.Fatalf("want exactly one outage, got %d", n)
	}
}

func TestController_PendingOutageIsNotFlushedOnExit(t *testing.T) {
	t.Parallel()

	h := newHarness(t, fastSettings(), newScriptSensor(110, 5))
	h.input.held.Store(true)
	h.start(t)

	h.signals <- models.SignalLowPower
	waitFor(t, settle, "outage in progress", func() bool { return h.ctrl.Status().OutageActive })

	h.signals <- models.SignalOn
	waitFor(t, settle, "normal mode", func() bool { return h.ctrl.Mode() == models.ModeNormal })

	if n := h.events.count(models.KindOutage); n != 0 {
		t.Fatalf("pending outage must not be logged, got %d outage records", n)
	}
	if h.ctrl.Status().OutageActive {
		t.Fatalf("status must drop the outage once low-power mode is left")
	}
}

func TestController_SensorErrorSkipsTick(t *testing.T) {
	t.Parallel()

	sensor := newScriptSensor(110)
	sensor.readErr = errors.New("i2c nack")
	h := newHarness(t, fastSettings(), sensor)
	h.start(t)

	waitFor(t, settle, "several sensor reads", func() bool { return sensor.reads.Load() >= 3 })

	if n := len(h.events.snapshot()); n != 0 {
		t.Fatalf("no records expected on sensor failure, got %d", n)
	}
	if h.ctrl.Mode() != models.ModeNormal {
		t.Fatalf("loop must keep running, mode %s", h.ctrl.Mode())
	}
}

func TestController_CorruptLogShownOnDisplay(t *testing.T) {
	t.Parallel()

	h := newHarness(t, fastSettings(), newScriptSensor(110))
	h.events.err = fmt.Errorf("%w: unexpected end of JSON input", repository.ErrCorruptLog)
	h.start(t)

	waitFor(t, settle, "corruption status", func() bool { return h.display.last() == msgLogCorrupted })
	if !h.ctrl.Status().LogCorrupted {
		t.Fatalf("status must flag the corrupt log")
	}

	h.signals <- models.SignalOff
	if err := h.wait(t); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if h.power.calls.Load() != 1 {
		t.Fatalf("shutdown must still be attempted after logging failures")
	}
}

func TestController_OtherAppendErrorsKeepPowerMessage(t *testing.T) {
	t.Parallel()

	h := newHarness(t, fastSettings(), newScriptSensor(110))
	h.events.err = errors.New("permission denied")
	h.start(t)

	waitFor(t, settle, "power message", func() bool { return h.display.last() == "Power: 110.00W" })
	if h.ctrl.Status().LogCorrupted {
		t.Fatalf("plain IO errors are not corruption")
	}
}

func TestController_CollaboratorFailuresDoNotStopLoop(t *testing.T) {
	t.Parallel()

	h := newHarness(t, fastSettings(), newScriptSensor(110))
	h.display.err = errors.New("oled gone")
	h.leds.err = errors.New("gpio busy")
	h.start(t)

	waitFor(t, settle, "samples despite failing display", func() bool {
		return h.events.count(models.KindPowerSample) >= 3
	})
}

func TestController_PowerOffFailureIsReturned(t *testing.T) {
	t.Parallel()

	h := newHarness(t, fastSettings(), newScriptSensor(110))
	h.power.err = errors.New("sudo: a password is required")
	h.start(t)

	h.signals <- models.SignalOff
	err := h.wait(t)
	if err == nil || !errors.Is(err, h.power.err) {
		t.Fatalf("Run: want wrapped power-off error, got %v", err)
	}
}

func TestController_CancelDuringGraceStillPowersOff(t *testing.T) {
	t.Parallel()

	cfg := fastSettings()
	cfg.ShutdownGrace = time.Hour
	h := newHarness(t, cfg, newScriptSensor(110))
	h.start(t)

	h.signals <- models.SignalOff
	waitFor(t, settle, "shutdown message", func() bool { return h.display.last() == msgShuttingDown })
	h.cancel()

	if err := h.wait(t); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if h.power.calls.Load() != 1 {
		t.Fatalf("power-off must run even when cancelled during the grace period")
	}
}

func TestController_ClosedSignalChannelKeepsCurrentMode(t *testing.T) {
	t.Parallel()

	h := newHarness(t, fastSettings(), newScriptSensor(110))
	close(h.signals)
	h.start(t)

	waitFor(t, settle, "samples after channel close", func() bool {
		return h.events.count(models.KindPowerSample) >= 3
	})
	if h.ctrl.Mode() != models.ModeNormal {
		t.Fatalf("mode: want NORMAL, got %s", h.ctrl.Mode())
	}
}

func TestController_UnknownSignalIgnored(t *testing.T) {
	t.Parallel()

	cfg := fastSettings()
	cfg.NormalInterval = time.Hour
	h := newHarness(t, cfg, newScriptSensor(110))
	h.start(t)
	waitFor(t, settle, "first sample", func() bool { return h.events.count(models.KindPowerSample) == 1 })

	h.signals <- models.Signal(42)
	time.Sleep(20 * time.Millisecond)
	if n := h.events.count(models.KindPowerSample); n != 1 {
		t.Fatalf("unknown signal must not restart the loop, samples=%d", n)
	}
}

func TestModeForSignal(t *testing.T) {
	t.Parallel()

	cases := []struct {
		sig  models.Signal
		want models.Mode
		ok   bool
	}{
		{sig: models.SignalOn, want: models.ModeNormal, ok: true},
		{sig: models.SignalLowPower, want: models.ModeLowPower, ok: true},
		{sig: models.SignalOff, want: models.ModeShuttingDown, ok: true},
		{sig: models.Signal(0), ok: false},
	}
	for _, c := range cases {
		got, ok := modeForSignal(c.sig)
		if got != c.want || ok != c.ok {
			t.Fatalf("modeForSignal(%v) = (%q, %v); want (%q, %v)", c.sig, got, ok, c.want, c.ok)
		}
	}
}

func TestSleepCtx(t *testing.T) {
	t.Parallel()

	if !sleepCtx(context.Background(), time.Millisecond) {
		t.Fatalf("full sleep must report true")
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	if sleepCtx(ctx, time.Hour) {
		t.Fatalf("cancelled sleep must report false")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("cancellation did not interrupt the sleep")
	}
	if sleepCtx(ctx, 0) {
		t.Fatalf("zero sleep on a done context must report false")
	}
}
