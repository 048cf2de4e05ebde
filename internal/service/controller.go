package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"power_monitor/internal/logger"
	"power_monitor/internal/models"
	"power_monitor/internal/repository"

	"github.com/google/uuid"
)

// Controller defaults.
const (
	DefaultNormalInterval   = 5 * time.Second
	DefaultLowPowerInterval = 10 * time.Second
	DefaultShutdownGrace    = 2 * time.Second
	OutageThresholdWatts    = 10.0
)

// Display texts.
const (
	msgLowPower     = "Low Power Mode"
	msgShuttingDown = "Shutting down..."
	msgLogCorrupted = "Log corrupted"
)

// Settings are the controller's cadences and thresholds.
type Settings struct {
	NormalInterval       time.Duration
	LowPowerInterval     time.Duration
	ShutdownGrace        time.Duration
	OutageThresholdWatts float64
}

func DefaultSettings() Settings {
	return Settings{
		NormalInterval:       DefaultNormalInterval,
		LowPowerInterval:     DefaultLowPowerInterval,
		ShutdownGrace:        DefaultShutdownGrace,
		OutageThresholdWatts: OutageThresholdWatts,
	}
}

// EventAppender is the write side of the event log.
type EventAppender interface {
	Append(ctx context.Context, rec models.LogRecord) error
}

// Controller owns the operating mode. Exactly one mode loop runs at a time;
// a button signal cancels it at its next suspension point and waits for it
// to return before the next mode starts, so LED, display and log writes
// never interleave between modes.
type Controller struct {
	sampler *PowerSampler
	events  EventAppender
	dev     Devices
	cfg     Settings
	log     *logger.Logger

	mu     sync.RWMutex
	status models.DeviceStatus
	now    func() time.Time
}

func NewController(dev Devices, events EventAppender, cfg Settings, log *logger.Logger) *Controller {
	if log == nil {
		log = logger.Nop()
	}
	c := &Controller{
		sampler: NewPowerSampler(dev.Sensor),
		events:  events,
		dev:     dev,
		cfg:     cfg,
		log:     log,
		now:     time.Now,
	}
	c.status = models.DeviceStatus{Mode: models.ModeNormal, UpdatedAt: c.now()}
	return c
}

// Mode returns the current operating mode.
func (c *Controller) Mode() models.Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status.Mode
}

// Status returns a snapshot of the controller state.
func (c *Controller) Status() models.DeviceStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

func (c *Controller) update(fn func(st *models.DeviceStatus)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.status)
	c.status.UpdatedAt = c.now()
}

// modeForSignal maps a button press to the mode it forces.
func modeForSignal(sig models.Signal) (models.Mode, bool) {
	switch sig {
	case models.SignalOn:
		return models.ModeNormal, true
	case models.SignalLowPower:
		return models.ModeLowPower, true
	case models.SignalOff:
		return models.ModeShuttingDown, true
	default:
		return "", false
	}
}

// Run enters Normal and serves button signals until shutdown has been
// carried out (nil or the power-off error) or ctx ends (ctx.Err()).
// A closed signals channel only stops further transitions.
func (c *Controller) Run(ctx context.Context, signals <-chan models.Signal) error {
	next := models.ModeNormal
	for {
		if next == models.ModeShuttingDown {
			return c.shutdown(ctx)
		}

		loopCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func(mode models.Mode) {
			defer close(done)
			c.runMode(loopCtx, mode)
		}(next)

	wait:
		for {
			select {
			case <-ctx.Done():
				cancel()
				<-done
				return ctx.Err()

			case <-done:
				// Only the low-power loop ends by itself, when its button is released.
				cancel()
				next = models.ModeNormal
				break wait

			case sig, ok := <-signals:
				if !ok {
					signals = nil
					continue
				}
				mode, known := modeForSignal(sig)
				if !known {
					c.log.Warnw("signal_ignored", "signal", int(sig))
					continue
				}
				c.log.Infow("signal_received", "signal", sig.String(), "from", c.Mode(), "to", mode)
				cancel()
				<-done
				next = mode
				break wait
			}
		}
	}
}

func (c *Controller) runMode(ctx context.Context, mode models.Mode) {
	log := c.log.With("mode", mode, "run_id", uuid.NewString())
	c.update(func(st *models.DeviceStatus) {
		st.Mode = mode
		st.OutageActive = false
		st.OutageSince = time.Time{}
	})
	log.Infow("mode_entered")

	switch mode {
	case models.ModeNormal:
		c.runNormal(ctx, log)
	case models.ModeLowPower:
		c.runLowPower(ctx, log)
	}

	reason := "completed"
	if ctx.Err() != nil {
		reason = "cancelled"
	}
	log.Infow("mode_exited", "reason", reason)
}

func (c *Controller) runNormal(ctx context.Context, log *logger.Logger) {
	c.setPattern(log, true, false, false)
	for ctx.Err() == nil {
		c.normalTick(ctx, log)
		if !sleepCtx(ctx, c.cfg.NormalInterval) {
			return
		}
	}
}

func (c *Controller) normalTick(ctx context.Context, log *logger.Logger) {
	reading, ok := c.sample(log)
	if !ok {
		return
	}
	msg := fmt.Sprintf("Power: %.2fW", reading.Watts)
	if err := c.events.Append(ctx, models.NewPowerSample(reading)); err != nil {
		msg = c.appendFailed(log, err, msg)
	}
	c.show(log, msg)
}

func (c *Controller) runLowPower(ctx context.Context, log *logger.Logger) {
	c.setPattern(log, false, true, false)
	tracker := NewOutageTracker(c.cfg.OutageThresholdWatts)
	defer func() {
		if st := tracker.State(); st.Active {
			log.Warnw("outage_pending_not_logged", "since", st.StartedAt)
		}
	}()

	for ctx.Err() == nil && c.dev.Input.LowPowerHeld() {
		c.lowPowerTick(ctx, log, tracker)
		if !sleepCtx(ctx, c.cfg.LowPowerInterval) {
			return
		}
	}
}

func (c *Controller) lowPowerTick(ctx context.Context, log *logger.Logger, tracker *OutageTracker) {
	reading, ok := c.sample(log)
	if !ok {
		return
	}

	msg := msgLowPower
	if rec, ended := tracker.Observe(reading); ended {
		log.Infow("outage_ended", "duration_s", rec.DurationSeconds)
		if err := c.events.Append(ctx, rec); err != nil {
			msg = c.appendFailed(log, err, msg)
		}
	}

	st := tracker.State()
	c.update(func(ds *models.DeviceStatus) {
		ds.OutageActive = st.Active
		ds.OutageSince = st.StartedAt
	})
	c.show(log, msg)
}

// sample reads power and records it in the status. Sensor failures skip the tick.
func (c *Controller) sample(log *logger.Logger) (models.PowerReading, bool) {
	reading, err := c.sampler.Sample()
	if err != nil {
		log.Warnw("sample_skipped", "err", err)
		return models.PowerReading{}, false
	}
	c.update(func(st *models.DeviceStatus) {
		st.LastWatts = reading.Watts
		st.LastSampleAt = reading.Timestamp
	})
	log.Debugw("power_sampled", "watts", reading.Watts)
	return reading, true
}

// appendFailed logs a failed append and returns the text to display.
// Corruption replaces the normal message so it is visible on the device.
func (c *Controller) appendFailed(log *logger.Logger, err error, msg string) string {
	if errors.Is(err, repository.ErrCorruptLog) {
		log.Errorw("event_log_corrupt", "err", err)
		c.update(func(st *models.DeviceStatus) { st.LogCorrupted = true })
		return msgLogCorrupted
	}
	log.Errorw("event_log_append_failed", "err", err)
	return msg
}

func (c *Controller) shutdown(ctx context.Context) error {
	log := c.log.With("mode", models.ModeShuttingDown)
	c.update(func(st *models.DeviceStatus) { st.Mode = models.ModeShuttingDown })
	log.Infow("mode_entered")

	c.setPattern(log, false, false, true)
	c.show(log, msgShuttingDown)
	sleepCtx(ctx, c.cfg.ShutdownGrace)
	if err := c.dev.Display.Clear(); err != nil {
		log.Warnw("display_clear_failed", "err", err)
	}

	// Power-off goes ahead even if the process is being stopped.
	if err := c.dev.Power.PowerOff(context.WithoutCancel(ctx)); err != nil {
		log.Errorw("power_off_failed", "err", err)
		return fmt.Errorf("power off: %w", err)
	}
	log.Infow("power_off_requested")
	return nil
}

func (c *Controller) show(log *logger.Logger, text string) {
	if err := c.dev.Display.Show(text); err != nil {
		log.Warnw("display_failed", "err", err, "text", text)
	}
}

func (c *Controller) setPattern(log *logger.Logger, green, yellow, red bool) {
	if err := c.dev.Indicator.SetPattern(green, yellow, red); err != nil {
		log.Warnw("indicator_failed", "err", err)
	}
}

// sleepCtx waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
