package device_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/srg/gattcache/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayeredDescription(t *testing.T) {
	// GOAL: Verify layered errors unwind into one fragment per level plus the kind
	//
	// TEST SCENARIO: Errors wrapped at various depths → LayeredDescription → expected fragments

	cause := errors.New("attribute not found")
	chain := device.WrapError(device.LevelPeripheral, "P1",
		device.WrapError(device.LevelService, "180f",
			device.WrapError(device.LevelCharacteristic, "2a19", cause)))

	tests := []struct {
		name     string
		err      error
		expected []string
	}{
		{
			name:     "nil",
			err:      nil,
			expected: nil,
		},
		{
			name:     "plain error",
			err:      cause,
			expected: []string{"attribute not found"},
		},
		{
			name:     "timeout",
			err:      device.NewTimeoutError("E1"),
			expected: []string{"timeout", "endpoint E1"},
		},
		{
			name:     "unexpected disconnection without cause",
			err:      device.NewUnexpectedDisconnectionError("P1", nil),
			expected: []string{"unexpected disconnection", "peripheral P1"},
		},
		{
			name: "peripheral service characteristic",
			err:  chain,
			expected: []string{
				"internal error",
				"peripheral P1",
				"service 180f",
				"characteristic 2a19: attribute not found",
			},
		},
		{
			name: "wrapped by fmt",
			err:  fmt.Errorf("operation failed: %w", device.WrapError(device.LevelEndpoint, "E1", cause)),
			expected: []string{
				"internal error",
				"endpoint E1: attribute not found",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, device.LayeredDescription(tt.err), "fragments MUST match")
		})
	}

	t.Run("error string joins fragments", func(t *testing.T) {
		assert.Equal(t, "internal error: peripheral P1: service 180f: characteristic 2a19: attribute not found", chain.Error())
	})
}

func TestErrorMatching(t *testing.T) {
	// GOAL: Verify errors.Is and errors.As see through every layer
	//
	// TEST SCENARIO: Layered errors → match kind sentinels, level ids and the transport cause

	cause := errors.New("link lost")
	timeout := device.WrapError(device.LevelPeripheral, "P1", device.NewTimeoutError("P1"))
	internal := device.WrapError(device.LevelPeripheral, "P1", device.WrapError(device.LevelService, "180f", cause))

	assert.ErrorIs(t, timeout, device.ErrTimeout, "wrapping MUST keep the timeout kind")
	assert.NotErrorIs(t, timeout, device.ErrInternal)
	assert.ErrorIs(t, internal, device.ErrInternal)
	assert.ErrorIs(t, internal, cause, "transport cause MUST stay reachable")
	assert.ErrorIs(t, internal, &device.Error{Kind: device.KindInternal, Level: device.LevelService, ID: "180f", Err: cause},
		"inner layer MUST match by kind, level and id")
	assert.NotErrorIs(t, internal, &device.Error{Kind: device.KindInternal, Level: device.LevelService, ID: "180a", Err: cause})

	var layered *device.Error
	require.ErrorAs(t, internal, &layered)
	assert.Equal(t, device.LevelPeripheral, layered.Level)
	assert.Equal(t, "P1", layered.ID)
}

func TestConnectionErrors(t *testing.T) {
	// GOAL: Verify connection state errors compare by state and format their message
	//
	// TEST SCENARIO: ConnectionError with message → errors.Is sentinel → message includes state

	err := fmt.Errorf("connect: %w", &device.ConnectionError{State: device.Connecting, Msg: "attempt in flight"})

	assert.ErrorIs(t, err, device.ErrConnecting, "MUST match the sentinel by state")
	assert.NotErrorIs(t, err, device.ErrNotConnected)
	assert.Equal(t, "connect: connecting: attempt in flight", err.Error())
	assert.Equal(t, "not_connected", device.ErrNotConnected.Error())
}

func TestNotFoundError(t *testing.T) {
	tests := []struct {
		err      *device.NotFoundError
		expected string
	}{
		{&device.NotFoundError{Resource: "endpoint"}, "endpoint not found"},
		{&device.NotFoundError{Resource: "service", IDs: []string{"180f"}}, `service "180f" not found`},
		{&device.NotFoundError{Resource: "descriptor", IDs: []string{"180f", "2a19", "2902"}}, `descriptor "2902" not found in "180f/2a19"`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.err.Error())
	}
}

func TestCapabilityError(t *testing.T) {
	err := &device.CapabilityError{Operation: "notify", UUID: "2a38"}

	assert.Equal(t, "notify not supported by 2a38", err.Error())
	assert.ErrorIs(t, err, device.ErrUnsupported)
}
