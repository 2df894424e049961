package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, "accessories:\n  - name: Lamp\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Web.Listen != "127.0.0.1:8080" {
		t.Errorf("listen = %q", cfg.Web.Listen)
	}
	if cfg.Store.Path != "hap-ble-bridge.db" {
		t.Errorf("store path = %q", cfg.Store.Path)
	}
	if cfg.ScriptsDir != "scripts" || cfg.MQTT.TopicPrefix != "hap-ble-bridge" {
		t.Errorf("scripts_dir = %q, topic_prefix = %q", cfg.ScriptsDir, cfg.MQTT.TopicPrefix)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("log = %+v", cfg.Log)
	}
	if got := cfg.scanRestart(); got != 5*time.Second {
		t.Errorf("scanRestart = %v", got)
	}
}

func TestLoadConfigAccessories(t *testing.T) {
	body := `
bluetooth:
  scan_restart: 2s
accessories:
  - name: Lamp
    address: aa:bb:cc:dd:ee:ff
    pin: 031-45-154
    reachability: false
    reachability_timeout: 60000
    rssi: true
  - name: Fan
    remove: true
`
	cfg, err := loadConfig(writeConfig(t, body))
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.validate(); err != nil {
		t.Fatal(err)
	}
	if got := cfg.scanRestart(); got != 2*time.Second {
		t.Errorf("scanRestart = %v", got)
	}

	cfgs := cfg.bridgeConfigs()
	if len(cfgs) != 2 {
		t.Fatalf("got %d accessory configs", len(cfgs))
	}
	lamp := cfgs[0]
	if lamp.Name != "Lamp" || lamp.Address != "aa:bb:cc:dd:ee:ff" || lamp.PIN != "031-45-154" {
		t.Errorf("lamp = %+v", lamp)
	}
	if lamp.Reachability == nil || *lamp.Reachability {
		t.Error("lamp reachability should be explicitly disabled")
	}
	if lamp.ReachabilityTimeout != time.Minute || !lamp.RSSI {
		t.Errorf("lamp timeout = %v, rssi = %v", lamp.ReachabilityTimeout, lamp.RSSI)
	}

	fan := cfgs[1]
	if fan.Reachability != nil || fan.ReachabilityTimeout != 0 || !fan.Remove {
		t.Errorf("fan = %+v", fan)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := loadConfig(writeConfig(t, "accessories: [")); err == nil {
		t.Error("expected error for malformed yaml")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"no accessories", "web:\n  listen: :80\n", "at least one accessory"},
		{"missing name", "accessories:\n  - address: x\n", "accessories[0].name"},
		{"duplicate", "accessories:\n  - name: A\n  - name: A\n", "duplicate"},
		{"bad pin", "accessories:\n  - name: A\n    pin: \"1234\"\n", "pin"},
		{"negative timeout", "accessories:\n  - name: A\n    reachability_timeout: -1\n", "reachability_timeout"},
		{"bad scan restart", "bluetooth:\n  scan_restart: soon\naccessories:\n  - name: A\n", "scan_restart"},
		{"mqtt without broker", "mqtt:\n  enabled: true\naccessories:\n  - name: A\n", "mqtt.broker"},
		{"valid", "accessories:\n  - name: A\n    pin: 111-22-333\n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := loadConfig(writeConfig(t, tt.body))
			if err != nil {
				t.Fatal(err)
			}
			err = cfg.validate()
			if tt.want == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestValidPIN(t *testing.T) {
	tests := []struct {
		pin  string
		want bool
	}{
		{"031-45-154", true},
		{"000-00-000", true},
		{"03145154", false},
		{"031-45-15a", false},
		{"031 45 154", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := validPIN(tt.pin); got != tt.want {
			t.Errorf("validPIN(%q) = %v, want %v", tt.pin, got, tt.want)
		}
	}
}
