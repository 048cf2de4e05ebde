package device

import (
	"errors"
	"fmt"

	"power_monitor/internal/logger"

	"periph.io/x/conn/v3/gpio"
)

// LEDs drives the green, yellow and red status LEDs.
type LEDs struct {
	green  gpio.PinOut
	yellow gpio.PinOut
	red    gpio.PinOut
}

func NewLEDs(green, yellow, red gpio.PinOut) *LEDs {
	return &LEDs{green: green, yellow: yellow, red: red}
}

// SetPattern sets all three LEDs. Every pin is written even if an earlier one fails.
func (l *LEDs) SetPattern(green, yellow, red bool) error {
	return errors.Join(
		setLED(l.green, green),
		setLED(l.yellow, yellow),
		setLED(l.red, red),
	)
}

// Off switches every LED off.
func (l *LEDs) Off() error {
	return l.SetPattern(false, false, false)
}

func setLED(p gpio.PinOut, on bool) error {
	if err := p.Out(gpio.Level(on)); err != nil {
		return fmt.Errorf("led %s: %w", p.Name(), err)
	}
	return nil
}

// LogIndicator logs LED patterns instead of driving pins.
type LogIndicator struct {
	log *logger.Logger
}

func NewLogIndicator(log *logger.Logger) *LogIndicator {
	return &LogIndicator{log: log}
}

func (i *LogIndicator) SetPattern(green, yellow, red bool) error {
	i.log.Debugw("leds", "green", green, "yellow", yellow, "red", red)
	return nil
}
