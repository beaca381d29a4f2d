package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// ScanPolicy is the scan and connect filter bundle applied by the registry.
type ScanPolicy struct {
	// EndpointAllowList restricts staging to these endpoint identifiers when non-empty.
	EndpointAllowList []string `yaml:"endpoint_allow_list"`
	// ServiceUUIDs narrows both scanning and service discovery.
	ServiceUUIDs []string `yaml:"service_uuids"`
	// CharacteristicUUIDs narrows characteristic discovery inside every service.
	CharacteristicUUIDs []string `yaml:"characteristic_uuids"`
	MinimumRSSI         int      `yaml:"minimum_rssi" default:"-100"`
	AllowEmptyNames     bool     `yaml:"allow_empty_names" default:"false"`
	ConnectableOnly     bool     `yaml:"connectable_only" default:"false"`
	DuplicateFiltering  bool     `yaml:"duplicate_filtering" default:"true"`
}

// Config holds application configuration
type Config struct {
	LogLevel          logrus.Level  `yaml:"log_level"`
	ScanDuration      time.Duration `yaml:"scan_duration" default:"10s"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout" default:"10s"`
	DeliveryQueueSize int           `yaml:"delivery_queue_size" default:"256"`
	Scan              ScanPolicy    `yaml:"scan"`
}

// DefaultScanPolicy returns the scan policy defaults: -100 dBm floor, named and
// non-connectable endpoints accepted, duplicates filtered.
func DefaultScanPolicy() ScanPolicy {
	p := ScanPolicy{}
	defaults.SetDefaults(&p)
	return p
}

// Default returns default configuration values
func Default() *Config {
	cfg := &Config{LogLevel: logrus.InfoLevel}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML config file on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %q: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %q: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.ConnectTimeout <= 0 {
		errs = append(errs, fmt.Errorf("connect_timeout must be positive, got %s", c.ConnectTimeout))
	}
	if c.ScanDuration < 0 {
		errs = append(errs, fmt.Errorf("scan_duration must not be negative, got %s", c.ScanDuration))
	}
	if c.DeliveryQueueSize < 0 {
		errs = append(errs, fmt.Errorf("delivery_queue_size must not be negative, got %d", c.DeliveryQueueSize))
	}
	if c.Scan.MinimumRSSI > 0 || c.Scan.MinimumRSSI < -127 {
		errs = append(errs, fmt.Errorf("minimum_rssi must be within [-127, 0] dBm, got %d", c.Scan.MinimumRSSI))
	}
	return errors.Join(errs...)
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.LogLevel)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
