package device

import (
	"context"
	"errors"
	"fmt"

	"power_monitor/internal/config"
	"power_monitor/internal/logger"
	"power_monitor/internal/models"
	"power_monitor/internal/service"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// Context owns every hardware handle of the process. It is built once at
// startup and torn down once on exit.
type Context struct {
	Sensor    service.Sensor
	Display   service.Display
	Indicator service.Indicator
	Input     service.Input
	Power     service.PowerSwitch

	signals <-chan models.Signal
	bus     i2c.BusCloser
	buttons *Buttons
	oled    *OLED
	leds    *LEDs
	log     *logger.Logger
}

// Open initialises the board described by cfg. With hardware disabled the
// display and LEDs are replaced by log output and no button ever fires.
func Open(ctx context.Context, cfg config.Config, log *logger.Logger) (*Context, error) {
	hw := cfg.Hardware
	d := &Context{
		Sensor: SimulatedSensor{Volts: hw.SimulatedVoltage, Amps: hw.SimulatedCurrent},
		Power:  NewCommandPower(cfg.Shutdown.Command),
		log:    log,
	}

	if !hw.Enabled {
		log.Infow("hardware_disabled", "sensor", config.SensorSimulated)
		d.Display = NewLogDisplay(log)
		d.Indicator = NewLogIndicator(log)
		d.Input = NoButtons{}
		return d, nil
	}

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init host drivers: %w", err)
	}
	if err := d.openHardware(ctx, cfg); err != nil {
		if cerr := d.Close(); cerr != nil {
			log.Warnw("device_close_failed", "err", cerr)
		}
		return nil, err
	}
	return d, nil
}

func (d *Context) openHardware(ctx context.Context, cfg config.Config) error {
	hw := cfg.Hardware

	bus, err := i2creg.Open(hw.I2CBus)
	if err != nil {
		return fmt.Errorf("open i2c bus %q: %w", hw.I2CBus, err)
	}
	d.bus = bus

	if hw.Sensor == config.SensorINA219 {
		s, err := NewINA219Sensor(bus, hw.VoltageSensorAddr, hw.CurrentSensorAddr)
		if err != nil {
			return err
		}
		d.Sensor = s
	}

	oled, err := NewOLED(bus, hw.Display.Width, hw.Display.Height)
	if err != nil {
		return err
	}
	d.oled = oled
	d.Display = oled

	green, err := pinByName(hw.Pins.LEDGreen)
	if err != nil {
		return err
	}
	yellow, err := pinByName(hw.Pins.LEDYellow)
	if err != nil {
		return err
	}
	red, err := pinByName(hw.Pins.LEDRed)
	if err != nil {
		return err
	}
	d.leds = NewLEDs(green, yellow, red)
	d.Indicator = d.leds

	on, err := pinByName(hw.Pins.On)
	if err != nil {
		return err
	}
	off, err := pinByName(hw.Pins.Off)
	if err != nil {
		return err
	}
	low, err := pinByName(hw.Pins.LowPower)
	if err != nil {
		return err
	}
	buttons := NewButtons(on, off, low, hw.ButtonDebounce, d.log)
	if err := buttons.Start(ctx); err != nil {
		return err
	}
	d.buttons = buttons
	d.Input = buttons
	d.signals = buttons.Signals()

	d.log.Infow("hardware_ready", "i2c_bus", bus.String(), "sensor", hw.Sensor,
		"display", fmt.Sprintf("%dx%d", hw.Display.Width, hw.Display.Height))
	return nil
}

func pinByName(name string) (gpio.PinIO, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("gpio pin %q not found", name)
	}
	return p, nil
}

// Devices returns the collaborators the controller drives.
func (d *Context) Devices() service.Devices {
	return service.Devices{
		Sensor:    d.Sensor,
		Display:   d.Display,
		Indicator: d.Indicator,
		Input:     d.Input,
		Power:     d.Power,
	}
}

// Signals is the button press channel. It is nil without hardware, which
// blocks forever in a select.
func (d *Context) Signals() <-chan models.Signal {
	return d.signals
}

// Close stops the button watchers, switches the LEDs and panel off and
// releases the bus.
func (d *Context) Close() error {
	var errs []error
	if d.buttons != nil {
		d.buttons.Stop()
	}
	if d.leds != nil {
		errs = append(errs, d.leds.Off())
	}
	if d.oled != nil {
		errs = append(errs, d.oled.Halt())
	}
	if d.bus != nil {
		errs = append(errs, d.bus.Close())
	}
	return errors.Join(errs...)
}
