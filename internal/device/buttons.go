package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"power_monitor/internal/logger"
	"power_monitor/internal/models"

	"periph.io/x/conn/v3/gpio"
)

// edgePollTimeout bounds each WaitForEdge so watchers notice cancellation.
const edgePollTimeout = 100 * time.Millisecond

// Buttons turns presses on the on, off and low-power buttons into
// models.Signal values. Buttons are wired to ground with pull-ups, so a
// press is a falling edge and a held button reads Low.
type Buttons struct {
	on       gpio.PinIO
	off      gpio.PinIO
	lowPower gpio.PinIO
	debounce time.Duration
	log      *logger.Logger

	signals chan models.Signal
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewButtons(on, off, lowPower gpio.PinIO, debounce time.Duration, log *logger.Logger) *Buttons {
	return &Buttons{
		on:       on,
		off:      off,
		lowPower: lowPower,
		debounce: debounce,
		log:      log,
		signals:  make(chan models.Signal, 4),
	}
}

// Start configures the pins and begins watching them until Stop.
func (b *Buttons) Start(ctx context.Context) error {
	pins := []struct {
		pin gpio.PinIO
		sig models.Signal
	}{
		{b.on, models.SignalOn},
		{b.off, models.SignalOff},
		{b.lowPower, models.SignalLowPower},
	}
	for _, p := range pins {
		if err := p.pin.In(gpio.PullUp, gpio.FallingEdge); err != nil {
			return fmt.Errorf("button %s: %w", p.pin.Name(), err)
		}
	}

	ctx, b.cancel = context.WithCancel(ctx)
	for _, p := range pins {
		b.wg.Add(1)
		go b.watch(ctx, p.pin, p.sig)
	}
	return nil
}

// Signals delivers one value per accepted press.
func (b *Buttons) Signals() <-chan models.Signal {
	return b.signals
}

// LowPowerHeld reports whether the low-power button is currently pressed.
func (b *Buttons) LowPowerHeld() bool {
	return b.lowPower.Read() == gpio.Low
}

// Stop ends the watchers and waits for them.
func (b *Buttons) Stop() {
	if b.cancel == nil {
		return
	}
	b.cancel()
	b.wg.Wait()
}

func (b *Buttons) watch(ctx context.Context, pin gpio.PinIO, sig models.Signal) {
	defer b.wg.Done()
	deb := debouncer{window: b.debounce}
	for ctx.Err() == nil {
		if !pin.WaitForEdge(edgePollTimeout) {
			continue
		}
		if pin.Read() != gpio.Low || !deb.accept(time.Now()) {
			continue
		}
		b.log.Debugw("button_pressed", "pin", pin.Name(), "signal", sig.String())
		select {
		case b.signals <- sig:
		case <-ctx.Done():
			return
		}
	}
}

// debouncer drops presses that follow an accepted one within window.
type debouncer struct {
	window time.Duration
	last   time.Time
}

func (d *debouncer) accept(now time.Time) bool {
	if !d.last.IsZero() && now.Sub(d.last) < d.window {
		return false
	}
	d.last = now
	return true
}

// NoButtons is the input used without GPIO: nothing is ever pressed.
type NoButtons struct{}

func (NoButtons) LowPowerHeld() bool { return false }
