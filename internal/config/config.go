package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "POWER_MONITOR"

// Storage drivers.
const (
	DriverJSON   = "json"
	DriverSQLite = "sqlite"
)

// Sensor kinds.
const (
	SensorSimulated = "simulated"
	SensorINA219    = "ina219"
)

type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Sampling SamplingConfig `mapstructure:"sampling"`
	Hardware HardwareConfig `mapstructure:"hardware"`
	Shutdown ShutdownConfig `mapstructure:"shutdown"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type StorageConfig struct {
	Driver     string `mapstructure:"driver"`
	JSONPath   string `mapstructure:"json_path"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

type SamplingConfig struct {
	NormalInterval       time.Duration `mapstructure:"normal_interval"`
	LowPowerInterval     time.Duration `mapstructure:"low_power_interval"`
	ShutdownGrace        time.Duration `mapstructure:"shutdown_grace"`
	OutageThresholdWatts float64       `mapstructure:"outage_threshold_watts"`
}

type HardwareConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	I2CBus            string        `mapstructure:"i2c_bus"`
	Sensor            string        `mapstructure:"sensor"`
	VoltageSensorAddr uint16        `mapstructure:"voltage_sensor_addr"`
	CurrentSensorAddr uint16        `mapstructure:"current_sensor_addr"`
	SimulatedVoltage  float64       `mapstructure:"simulated_voltage"`
	SimulatedCurrent  float64       `mapstructure:"simulated_current"`
	ButtonDebounce    time.Duration `mapstructure:"button_debounce"`
	Pins              PinConfig     `mapstructure:"pins"`
	Display           DisplayConfig `mapstructure:"display"`
}

// PinConfig holds periph pin names (BCM numbering, e.g. "GPIO17").
type PinConfig struct {
	On        string `mapstructure:"on"`
	Off       string `mapstructure:"off"`
	LowPower  string `mapstructure:"low_power"`
	LEDGreen  string `mapstructure:"led_green"`
	LEDYellow string `mapstructure:"led_yellow"`
	LEDRed    string `mapstructure:"led_red"`
}

type DisplayConfig struct {
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`
}

type ShutdownConfig struct {
	Command []string `mapstructure:"command"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")

	v.SetDefault("storage.driver", DriverJSON)
	v.SetDefault("storage.json_path", "/home/pi/power_data.json")
	v.SetDefault("storage.sqlite_path", "/home/pi/power_data.db")

	v.SetDefault("sampling.normal_interval", 5*time.Second)
	v.SetDefault("sampling.low_power_interval", 10*time.Second)
	v.SetDefault("sampling.shutdown_grace", 2*time.Second)
	v.SetDefault("sampling.outage_threshold_watts", 10.0)

	v.SetDefault("hardware.enabled", true)
	v.SetDefault("hardware.i2c_bus", "")
	v.SetDefault("hardware.sensor", SensorSimulated)
	v.SetDefault("hardware.voltage_sensor_addr", 0x40)
	v.SetDefault("hardware.current_sensor_addr", 0x41)
	v.SetDefault("hardware.simulated_voltage", 220.0)
	v.SetDefault("hardware.simulated_current", 0.5)
	v.SetDefault("hardware.button_debounce", 50*time.Millisecond)
	v.SetDefault("hardware.pins.on", "GPIO2")
	v.SetDefault("hardware.pins.off", "GPIO3")
	v.SetDefault("hardware.pins.low_power", "GPIO4")
	v.SetDefault("hardware.pins.led_green", "GPIO17")
	v.SetDefault("hardware.pins.led_yellow", "GPIO27")
	v.SetDefault("hardware.pins.led_red", "GPIO22")
	v.SetDefault("hardware.display.width", 128)
	v.SetDefault("hardware.display.height", 32)

	v.SetDefault("shutdown.command", []string{"sudo", "shutdown", "-h", "now"})
}

// Load reads config.yml from the given search paths (or the defaults),
// applies POWER_MONITOR_* environment overrides and validates the result.
// A missing file is not an error; defaults apply.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{"configs", "/etc/power-monitor"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the controller cannot run with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverJSON:
		if c.Storage.JSONPath == "" {
			return errors.New("storage.json_path is required for the json driver")
		}
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("storage.sqlite_path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}

	if c.Sampling.NormalInterval <= 0 || c.Sampling.LowPowerInterval <= 0 {
		return errors.New("sampling intervals must be positive")
	}
	if c.Sampling.ShutdownGrace < 0 {
		return errors.New("sampling.shutdown_grace must not be negative")
	}

	switch c.Hardware.Sensor {
	case SensorSimulated, SensorINA219:
	default:
		return fmt.Errorf("unknown hardware.sensor %q", c.Hardware.Sensor)
	}

	if len(c.Shutdown.Command) == 0 {
		return errors.New("shutdown.command must not be empty")
	}
	return nil
}
