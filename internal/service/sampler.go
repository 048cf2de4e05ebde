package service

import (
	"fmt"
	"time"

	"power_monitor/internal/models"
)

// SensorError marks a failed collaborator read. The controller skips the
// tick instead of stopping the mode loop.
type SensorError struct {
	Sensor string
	Err    error
}

func (e *SensorError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Sensor, e.Err)
}

func (e *SensorError) Unwrap() error { return e.Err }

// PowerSampler turns voltage and current readings into watts.
type PowerSampler struct {
	sensor Sensor
	now    func() time.Time
}

func NewPowerSampler(sensor Sensor) *PowerSampler {
	return &PowerSampler{sensor: sensor, now: time.Now}
}

// Sample returns watts = volts * amps stamped with the current time.
func (s *PowerSampler) Sample() (models.PowerReading, error) {
	v, err := s.sensor.ReadVoltage()
	if err != nil {
		return models.PowerReading{}, &SensorError{Sensor: "voltage", Err: err}
	}
	i, err := s.sensor.ReadCurrent()
	if err != nil {
		return models.PowerReading{}, &SensorError{Sensor: "current", Err: err}
	}
	return models.PowerReading{Timestamp: s.now(), Watts: v * i}, nil
}
