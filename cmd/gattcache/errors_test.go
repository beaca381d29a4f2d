package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/srg/gattcache/internal/device"
	goble "github.com/srg/gattcache/internal/device/go-ble"
	"github.com/stretchr/testify/assert"
)

func TestFormatUserError(t *testing.T) {
	layered := device.WrapError(device.LevelPeripheral, "AA:01",
		device.WrapError(device.LevelService, "180f",
			device.WrapError(device.LevelCharacteristic, "2a19", errors.New("read not permitted"))))

	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{name: "nil", err: nil, expected: ""},
		{name: "plain", err: errors.New("boom"), expected: "boom"},
		{name: "bluetooth off", err: fmt.Errorf("failed to start scan: %w", goble.ErrBluetoothOff), expected: "Bluetooth is turned off or unavailable; enable it and try again"},
		{name: "deadline", err: fmt.Errorf("wait: %w", context.DeadlineExceeded), expected: "operation timed out"},
		{name: "not found", err: fmt.Errorf("%w: AA:01", ErrDeviceNotFound), expected: "device not found: AA:01"},
		{name: "timeout", err: device.NewTimeoutError("AA:01"), expected: "timeout\n  endpoint AA:01"},
		{
			name:     "layered chain",
			err:      fmt.Errorf("failed to read AA:01: %w", layered),
			expected: "internal error\n  peripheral AA:01\n  service 180f\n  characteristic 2a19: read not permitted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatUserError(tt.err))
		})
	}
}

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "v1.2.3", formatVersion("1.2.3"))
	assert.Equal(t, "dev", formatVersion("dev"))
	assert.Equal(t, "", formatVersion(""))
}
