package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"hap-ble-bridge/internal/bridge"
)

type Config struct {
	Bluetooth struct {
		ScanRestart string `yaml:"scan_restart"`
	} `yaml:"bluetooth"`
	Web struct {
		Listen         string   `yaml:"listen"`
		APIKey         string   `yaml:"api_key"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"web"`
	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`
	MQTT struct {
		Enabled     bool   `yaml:"enabled"`
		Broker      string `yaml:"broker"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		TopicPrefix string `yaml:"topic_prefix"`
	} `yaml:"mqtt"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	ScriptsDir  string            `yaml:"scripts_dir"`
	Accessories []AccessoryConfig `yaml:"accessories"`
}

// AccessoryConfig is one entry of the accessories list.
type AccessoryConfig struct {
	Name         string `yaml:"name"`
	Address      string `yaml:"address"`
	PIN          string `yaml:"pin"`
	Reachability *bool  `yaml:"reachability"`
	// ReachabilityTimeout is in milliseconds.
	ReachabilityTimeout int  `yaml:"reachability_timeout"`
	RSSI                bool `yaml:"rssi"`
	Remove              bool `yaml:"remove"`
}

func (a AccessoryConfig) bridgeConfig() bridge.Config {
	return bridge.Config{
		Name:                a.Name,
		Address:             a.Address,
		PIN:                 a.PIN,
		Reachability:        a.Reachability,
		ReachabilityTimeout: time.Duration(a.ReachabilityTimeout) * time.Millisecond,
		RSSI:                a.RSSI,
		Remove:              a.Remove,
	}
}

func (c *Config) bridgeConfigs() []bridge.Config {
	cfgs := make([]bridge.Config, 0, len(c.Accessories))
	for _, a := range c.Accessories {
		cfgs = append(cfgs, a.bridgeConfig())
	}
	return cfgs
}

// scanRestart is the pause before a failed scan is retried.
func (c *Config) scanRestart() time.Duration {
	d, err := time.ParseDuration(c.Bluetooth.ScanRestart)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

func (c *Config) validate() error {
	if len(c.Accessories) == 0 {
		return fmt.Errorf("at least one accessory is required")
	}
	seen := make(map[string]bool)
	for i, a := range c.Accessories {
		if a.Name == "" {
			return fmt.Errorf("accessories[%d].name is required", i)
		}
		if seen[a.Name] {
			return fmt.Errorf("duplicate accessory name %q", a.Name)
		}
		seen[a.Name] = true
		if a.PIN != "" && !validPIN(a.PIN) {
			return fmt.Errorf("accessory %q: pin must look like XXX-XX-XXX", a.Name)
		}
		if a.ReachabilityTimeout < 0 {
			return fmt.Errorf("accessory %q: reachability_timeout must not be negative", a.Name)
		}
	}
	if c.Bluetooth.ScanRestart != "" {
		if _, err := time.ParseDuration(c.Bluetooth.ScanRestart); err != nil {
			return fmt.Errorf("bluetooth.scan_restart: %w", err)
		}
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	return nil
}

func validPIN(pin string) bool {
	if len(pin) != 10 || pin[3] != '-' || pin[6] != '-' {
		return false
	}
	for i, r := range pin {
		if i == 3 || i == 6 {
			continue
		}
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Web.Listen == "" {
		cfg.Web.Listen = "127.0.0.1:8080"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "hap-ble-bridge.db"
	}
	if cfg.ScriptsDir == "" {
		cfg.ScriptsDir = "scripts"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "hap-ble-bridge"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	return &cfg, nil
}

func newLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
