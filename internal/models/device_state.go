package models

import "time"

// Mode is the device's top-level operating state.
type Mode string

const (
	ModeNormal       Mode = "NORMAL"
	ModeLowPower     Mode = "LOW_POWER"
	ModeShuttingDown Mode = "SHUTTING_DOWN"
)

// Signal is a button press delivered to the controller.
type Signal int

const (
	SignalOn Signal = iota + 1
	SignalOff
	SignalLowPower
)

func (s Signal) String() string {
	switch s {
	case SignalOn:
		return "on"
	case SignalOff:
		return "off"
	case SignalLowPower:
		return "low_power"
	default:
		return "unknown"
	}
}

// DeviceStatus is a point-in-time view of the controller.
type DeviceStatus struct {
	Mode         Mode      `json:"mode"`
	LastWatts    float64   `json:"last_watts"`
	LastSampleAt time.Time `json:"last_sample_at,omitempty"`
	OutageActive bool      `json:"outage_active"`
	OutageSince  time.Time `json:"outage_since,omitempty"`
	LogCorrupted bool      `json:"log_corrupted"`
	UpdatedAt    time.Time `json:"updated_at"`
}
