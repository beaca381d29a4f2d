package goble

import (
	"errors"
	"testing"

	"github.com/go-ble/ble"
	"github.com/srg/gattcache/internal/device"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected error
	}{
		{name: "darwin powered off", err: errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?"), expected: ErrBluetoothOff},
		{name: "bluetooth off", err: errors.New("Bluetooth is turned OFF"), expected: ErrBluetoothOff},
		{name: "not connected", err: errors.New("device not connected"), expected: device.ErrNotConnected},
		{name: "disconnected", err: errors.New("peripheral disconnected"), expected: device.ErrNotConnected},
		{name: "already connected", err: errors.New("device already connected"), expected: device.ErrAlreadyConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeError(tt.err)
			assert.ErrorIs(t, got, tt.expected)
			assert.Contains(t, got.Error(), tt.err.Error(), "original message MUST be preserved")
		})
	}

	t.Run("passthrough", func(t *testing.T) {
		assert.NoError(t, NormalizeError(nil))
		other := errors.New("att: insufficient authentication")
		assert.Same(t, other, NormalizeError(other))
	})
}

func TestConvertProperties(t *testing.T) {
	tests := []struct {
		name     string
		input    ble.Property
		expected device.Properties
	}{
		{name: "none", input: 0, expected: 0},
		{name: "read notify", input: ble.CharRead | ble.CharNotify, expected: device.PropertyRead | device.PropertyNotify},
		{name: "writes", input: ble.CharWrite | ble.CharWriteNR | ble.CharSignedWrite, expected: device.PropertyWrite | device.PropertyWriteWithoutResponse | device.PropertyAuthenticatedSignedWrites},
		{name: "broadcast indicate extended", input: ble.CharBroadcast | ble.CharIndicate | ble.CharExtended, expected: device.PropertyBroadcast | device.PropertyIndicate | device.PropertyExtendedProperties},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ConvertProperties(tt.input))
		})
	}
}
