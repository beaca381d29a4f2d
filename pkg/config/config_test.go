package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.NotNil(t, cfg)
	assert.Equal(t, logrus.InfoLevel, cfg.LogLevel)
	assert.Equal(t, 10*time.Second, cfg.ScanDuration)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 256, cfg.DeliveryQueueSize)
	assert.Equal(t, DefaultScanPolicy(), cfg.Scan)
	assert.NoError(t, cfg.Validate())
}

func TestDefaultScanPolicy(t *testing.T) {
	p := DefaultScanPolicy()

	assert.Equal(t, -100, p.MinimumRSSI, "minimum RSSI MUST default to -100 dBm")
	assert.False(t, p.AllowEmptyNames, "empty names MUST be rejected by default")
	assert.False(t, p.ConnectableOnly, "non-connectable endpoints MUST be accepted by default")
	assert.True(t, p.DuplicateFiltering, "duplicate filtering MUST be on by default")
	assert.Empty(t, p.EndpointAllowList)
	assert.Empty(t, p.ServiceUUIDs)
	assert.Empty(t, p.CharacteristicUUIDs)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	t.Run("overrides defaults", func(t *testing.T) {
		path := filepath.Join(dir, "full.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
connect_timeout: 3s
scan:
  minimum_rssi: -70
  connectable_only: true
  duplicate_filtering: false
  service_uuids: ["180d", "180f"]
  endpoint_allow_list: ["AA:BB:CC:DD:EE:FF"]
`), 0o600))

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, logrus.DebugLevel, cfg.LogLevel)
		assert.Equal(t, 3*time.Second, cfg.ConnectTimeout)
		assert.Equal(t, 10*time.Second, cfg.ScanDuration, "unset keys MUST keep defaults")
		assert.Equal(t, -70, cfg.Scan.MinimumRSSI)
		assert.True(t, cfg.Scan.ConnectableOnly)
		assert.False(t, cfg.Scan.DuplicateFiltering)
		assert.Equal(t, []string{"180d", "180f"}, cfg.Scan.ServiceUUIDs)
		assert.Equal(t, []string{"AA:BB:CC:DD:EE:FF"}, cfg.Scan.EndpointAllowList)
	})

	t.Run("rejects invalid values", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("connect_timeout: 0s\n"), 0o600))

		_, err := Load(path)
		assert.ErrorContains(t, err, "connect_timeout")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(dir, "broken.yaml")
		require.NoError(t, os.WriteFile(path, []byte("scan: [unterminated"), 0o600))

		_, err := Load(path)
		assert.ErrorContains(t, err, "failed to parse")
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"negative scan duration", func(c *Config) { c.ScanDuration = -time.Second }, "scan_duration"},
		{"negative queue size", func(c *Config) { c.DeliveryQueueSize = -1 }, "delivery_queue_size"},
		{"positive rssi floor", func(c *Config) { c.Scan.MinimumRSSI = 5 }, "minimum_rssi"},
		{"rssi floor below range", func(c *Config) { c.Scan.MinimumRSSI = -200 }, "minimum_rssi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.wantErr)
		})
	}
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name     string
		logLevel logrus.Level
	}{
		{
			name:     "creates logger with debug level",
			logLevel: logrus.DebugLevel,
		},
		{
			name:     "creates logger with info level",
			logLevel: logrus.InfoLevel,
		},
		{
			name:     "creates logger with error level",
			logLevel: logrus.ErrorLevel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				LogLevel: tt.logLevel,
			}

			logger := cfg.NewLogger()

			assert.NotNil(t, logger)
			assert.Equal(t, tt.logLevel, logger.GetLevel())

			// Verify formatter is set correctly
			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			assert.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}
