package device

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ina219"
)

// SimulatedSensor returns fixed readings. It is the default on boards
// without measurement hardware.
type SimulatedSensor struct {
	Volts float64
	Amps  float64
}

func (s SimulatedSensor) ReadVoltage() (float64, error) { return s.Volts, nil }
func (s SimulatedSensor) ReadCurrent() (float64, error) { return s.Amps, nil }

// INA219Sensor reads bus voltage from one INA219 and current from another.
// Both may be the same chip when only one address is wired.
type INA219Sensor struct {
	voltage *ina219.Dev
	current *ina219.Dev
}

func NewINA219Sensor(bus i2c.Bus, voltageAddr, currentAddr uint16) (*INA219Sensor, error) {
	v, err := openINA219(bus, voltageAddr)
	if err != nil {
		return nil, err
	}
	if currentAddr == voltageAddr {
		return &INA219Sensor{voltage: v, current: v}, nil
	}
	c, err := openINA219(bus, currentAddr)
	if err != nil {
		return nil, err
	}
	return &INA219Sensor{voltage: v, current: c}, nil
}

func openINA219(bus i2c.Bus, addr uint16) (*ina219.Dev, error) {
	opts := ina219.DefaultOpts
	opts.Address = int(addr)
	dev, err := ina219.New(bus, &opts)
	if err != nil {
		return nil, fmt.Errorf("ina219 at %#x: %w", addr, err)
	}
	return dev, nil
}

func (s *INA219Sensor) ReadVoltage() (float64, error) {
	pm, err := s.voltage.Sense()
	if err != nil {
		return 0, err
	}
	return float64(pm.Voltage) / float64(physic.Volt), nil
}

func (s *INA219Sensor) ReadCurrent() (float64, error) {
	pm, err := s.current.Sense()
	if err != nil {
		return 0, err
	}
	return float64(pm.Current) / float64(physic.Ampere), nil
}
