package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jwoglom/cgmbridge/pkg/cgm"
	"github.com/jwoglom/cgmbridge/pkg/state"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds the bridge configuration
type Config struct {
	// Transmitter
	Family        string `yaml:"family"`
	TransmitterID string `yaml:"transmitter_id"`

	// Transport
	Transport      string        `yaml:"transport"` // "hci", "bluez" or "serial"
	Address        string        `yaml:"address"`
	SerialPort     string        `yaml:"serial_port"`
	BaudRate       int           `yaml:"baud_rate"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// Session
	BatteryReadInterval time.Duration `yaml:"battery_read_interval"`
	PairingKeepAlive    time.Duration `yaml:"pairing_keep_alive"`

	// API
	APIListen string `yaml:"api_listen"`

	// Logging configuration
	LogLevel string `yaml:"log_level"`
}

var transports = map[string]bool{"hci": true, "bluez": true, "serial": true}

// Load reads a YAML configuration file. A missing path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		log.Debugf("Loaded configuration from %s", path)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	c.Family = strings.ToLower(c.Family)
	c.Transport = strings.ToLower(c.Transport)
	c.TransmitterID = strings.ToUpper(strings.TrimSpace(c.TransmitterID))

	if c.Family == "" {
		c.Family = "dexcomg5"
	}
	if c.Transport == "" {
		c.Transport = "hci"
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 30 * time.Second
	}
	if c.BatteryReadInterval == 0 {
		c.BatteryReadInterval = state.DefaultBatteryReadInterval
	}
	if c.PairingKeepAlive == 0 {
		c.PairingKeepAlive = state.DefaultKeepAlive
	}
	if c.APIListen == "" {
		c.APIListen = ":8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks the configuration can start a session
func (c *Config) Validate() error {
	known := false
	for _, f := range cgm.Families() {
		if f == c.Family {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("unknown family %q (registered: %s)", c.Family, strings.Join(cgm.Families(), ", "))
	}

	if c.TransmitterID == "" {
		return fmt.Errorf("transmitter_id is required")
	}

	if !transports[c.Transport] {
		return fmt.Errorf("invalid transport: %s (must be 'hci', 'bluez' or 'serial')", c.Transport)
	}
	if c.Transport == "serial" && c.SerialPort == "" {
		return fmt.Errorf("serial_port is required for the serial transport")
	}

	if c.PairingKeepAlive < time.Second || c.PairingKeepAlive > 255*time.Second {
		return fmt.Errorf("pairing_keep_alive must be between 1s and 255s, got %s", c.PairingKeepAlive)
	}
	if c.BatteryReadInterval < 0 || c.ConnectTimeout < 0 {
		return fmt.Errorf("durations must not be negative")
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}
	return nil
}
