// Package config loads the driver configuration from an INI or YAML file.
//
// Example INI file :
//
//	[port]
//	interface = serial
//	channel = /dev/ttyUSB0
//	baudrate = 9600
//
//	[motor]
//	timeout_ms = 1000
//	max_velocity = 8000
//	max_acceleration = 10000
//
// Keys missing from the file keep their default value.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	epos "github.com/samsamfire/goepos"
	"github.com/samsamfire/goepos/pkg/channel"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

type Port struct {
	Interface     string `ini:"interface" yaml:"interface"`
	Channel       string `ini:"channel" yaml:"channel"`
	BaudRate      int    `ini:"baudrate" yaml:"baudrate"`
	DataBits      int    `ini:"databits" yaml:"databits"`
	StopBits      int    `ini:"stopbits" yaml:"stopbits"`
	Parity        string `ini:"parity" yaml:"parity"`
	ReadTimeoutMs int    `ini:"read_timeout_ms" yaml:"read_timeout_ms"`
}

type Motor struct {
	TimeoutMs       int `ini:"timeout_ms" yaml:"timeout_ms"`
	MaxVelocity     int `ini:"max_velocity" yaml:"max_velocity"`
	MaxAcceleration int `ini:"max_acceleration" yaml:"max_acceleration"`
	MaxStatusReads  int `ini:"max_status_reads" yaml:"max_status_reads"`
}

type Config struct {
	Port  Port  `ini:"port" yaml:"port"`
	Motor Motor `ini:"motor" yaml:"motor"`
}

// Default returns the configuration of a controller on the first USB
// serial adapter
func Default() Config {
	settings := channel.DefaultSettings()
	return Config{
		Port: Port{
			Interface:     "serial",
			Channel:       "/dev/ttyUSB0",
			BaudRate:      settings.BaudRate,
			DataBits:      settings.DataBits,
			StopBits:      settings.StopBits,
			Parity:        settings.Parity,
			ReadTimeoutMs: settings.ReadTimeoutMs,
		},
		Motor: Motor{
			TimeoutMs:       1000,
			MaxVelocity:     8000,
			MaxAcceleration: 10000,
			MaxStatusReads:  16,
		},
	}
}

// Load reads the file at path, the format is given by its extension
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return Parse(data, format)
}

// Parse decodes data in format "ini", "yaml" or "yml" over the defaults
// and validates the result
func Parse(data []byte, format string) (Config, error) {
	cfg := Default()
	switch format {
	case "ini":
		file, err := ini.Load(data)
		if err != nil {
			return Config{}, err
		}
		if err := file.MapTo(&cfg); err != nil {
			return Config{}, err
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	default:
		return Config{}, fmt.Errorf("%w : unsupported config format %q", epos.ErrIllegalArgument, format)
	}
	return cfg, cfg.Validate()
}

// Validate checks every value is usable
func (c Config) Validate() error {
	checks := []struct {
		ok  bool
		msg string
	}{
		{c.Port.Interface != "", "port.interface is empty"},
		{c.Port.Interface != "serial" || c.Port.Channel != "", "port.channel is required for a serial port"},
		{c.Port.BaudRate > 0, "port.baudrate must be positive"},
		{c.Port.DataBits >= 5 && c.Port.DataBits <= 8, "port.databits must be between 5 and 8"},
		{c.Port.StopBits == 1 || c.Port.StopBits == 2, "port.stopbits must be 1 or 2"},
		{c.Port.Parity == "N" || c.Port.Parity == "E" || c.Port.Parity == "O", "port.parity must be N, E or O"},
		{c.Port.ReadTimeoutMs > 0, "port.read_timeout_ms must be positive"},
		{c.Motor.TimeoutMs > 0, "motor.timeout_ms must be positive"},
		{c.Motor.MaxVelocity > 0, "motor.max_velocity must be positive"},
		{c.Motor.MaxAcceleration > 0, "motor.max_acceleration must be positive"},
		{c.Motor.MaxStatusReads > 0, "motor.max_status_reads must be positive"},
	}
	for _, check := range checks {
		if !check.ok {
			return fmt.Errorf("%w : %s", epos.ErrIllegalArgument, check.msg)
		}
	}
	return nil
}

// Settings returns the line settings for [channel.New]
func (c Config) Settings() channel.Settings {
	return channel.Settings{
		BaudRate:      c.Port.BaudRate,
		DataBits:      c.Port.DataBits,
		StopBits:      c.Port.StopBits,
		Parity:        c.Port.Parity,
		ReadTimeoutMs: c.Port.ReadTimeoutMs,
	}
}

func (c Config) Timeout() time.Duration {
	return time.Duration(c.Motor.TimeoutMs) * time.Millisecond
}
