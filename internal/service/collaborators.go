package service

import "context"

// Sensor reads the raw electrical quantities the sampler multiplies.
type Sensor interface {
	ReadVoltage() (float64, error)
	ReadCurrent() (float64, error)
}

// Display clears and redraws the whole screen on every Show.
type Display interface {
	Show(text string) error
	Clear() error
}

// Indicator drives the three status LEDs.
type Indicator interface {
	SetPattern(green, yellow, red bool) error
}

// Input reports the level of the low-power button. Edge presses arrive
// separately as models.Signal values.
type Input interface {
	LowPowerHeld() bool
}

// PowerSwitch halts the machine. It does not return on success on real hardware.
type PowerSwitch interface {
	PowerOff(ctx context.Context) error
}

// Devices bundles the collaborators the controller drives.
type Devices struct {
	Sensor    Sensor
	Display   Display
	Indicator Indicator
	Input     Input
	Power     PowerSwitch
}
