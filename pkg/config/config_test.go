package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/jwoglom/cgmbridge/pkg/handler"
	_ "github.com/jwoglom/cgmbridge/pkg/xbridge"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cgmbridge.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Family != "dexcomg5" {
		t.Errorf("Expected family dexcomg5, got %s", cfg.Family)
	}
	if cfg.Transport != "hci" {
		t.Errorf("Expected transport hci, got %s", cfg.Transport)
	}
	if cfg.BatteryReadInterval != 12*time.Hour {
		t.Errorf("Expected battery interval 12h, got %s", cfg.BatteryReadInterval)
	}
	if cfg.PairingKeepAlive != 60*time.Second {
		t.Errorf("Expected keep alive 60s, got %s", cfg.PairingKeepAlive)
	}
	if cfg.APIListen != ":8080" {
		t.Errorf("Expected api_listen :8080, got %s", cfg.APIListen)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
family: XBridge
transmitter_id: " 6a1b2 "
transport: serial
serial_port: /dev/ttyACM0
battery_read_interval: 6h
log_level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Family != "xbridge" || cfg.TransmitterID != "6A1B2" {
		t.Errorf("Expected normalized family and id, got %s %s", cfg.Family, cfg.TransmitterID)
	}
	if cfg.BatteryReadInterval != 6*time.Hour {
		t.Errorf("Expected 6h, got %s", cfg.BatteryReadInterval)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for a missing file")
	}
	if _, err := Load(writeConfig(t, "family: [")); err == nil {
		t.Error("Expected error for invalid YAML")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, _ := Load("")
		cfg.TransmitterID = "4G1234"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"unknown family", func(c *Config) { c.Family = "libre" }, true},
		{"missing id", func(c *Config) { c.TransmitterID = "" }, true},
		{"bad transport", func(c *Config) { c.Transport = "usb" }, true},
		{"serial without port", func(c *Config) { c.Transport = "serial" }, true},
		{"keep alive too long", func(c *Config) { c.PairingKeepAlive = 5 * time.Minute }, true},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
