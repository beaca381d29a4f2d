package main

import (
	"context"
	"errors"
	"strings"

	"github.com/srg/gattcache/internal/device"
	goble "github.com/srg/gattcache/internal/device/go-ble"
)

// Command-level errors
var (
	// ErrDeviceNotFound means the requested address was never staged while scanning.
	ErrDeviceNotFound = errors.New("device not found")
)

// FormatUserError renders err for the terminal. Layered cache errors print one
// tree level per line, outermost first.
func FormatUserError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, goble.ErrBluetoothOff):
		return "Bluetooth is turned off or unavailable; enable it and try again"
	case errors.Is(err, context.DeadlineExceeded):
		return "operation timed out"
	}

	var cacheErr *device.Error
	if !errors.As(err, &cacheErr) {
		return err.Error()
	}

	parts := device.LayeredDescription(err)
	var b strings.Builder
	b.WriteString(parts[0])
	for _, part := range parts[1:] {
		b.WriteString("\n  ")
		b.WriteString(part)
	}
	return b.String()
}
