// Package bledb holds UUID normalization and the well-known Bluetooth SIG
// names for services, characteristics, descriptors and appearance categories.
package bledb

import (
	"strings"

	"github.com/google/uuid"
)

// sigBaseSuffix is the tail shared by every UUID derived from the Bluetooth SIG base UUID.
const sigBaseSuffix = "-0000-1000-8000-00805f9b34fb"

// NormalizeUUID converts a UUID string to the internal BLE library format (lowercase, no dashes).
// Strips braces and a 0x prefix. A full 128-bit UUID in Bluetooth SIG base format
// (0000xxxx-0000-1000-8000-00805f9b34fb) collapses to its 16-bit short form (xxxx).
// Returns "" for strings that are not valid UUIDs.
func NormalizeUUID(s string) string {
	u := strings.ToLower(strings.TrimSpace(s))
	u = strings.TrimPrefix(u, "0x")
	u = strings.Trim(u, "{}")

	switch len(strings.ReplaceAll(u, "-", "")) {
	case 4, 8:
		u = strings.ReplaceAll(u, "-", "")
		if !isHex(u) {
			return ""
		}
		if len(u) == 8 && strings.HasPrefix(u, "0000") {
			return u[4:]
		}
		return u
	case 32:
		parsed, err := uuid.Parse(u)
		if err != nil {
			return ""
		}
		full := parsed.String()
		if strings.HasSuffix(full, sigBaseSuffix) {
			short := full[:8]
			if strings.HasPrefix(short, "0000") {
				return short[4:]
			}
			return short
		}
		return strings.ReplaceAll(full, "-", "")
	default:
		return ""
	}
}

// NormalizeUUIDs normalizes a slice of UUID strings, dropping invalid entries.
func NormalizeUUIDs(uuids []string) []string {
	if len(uuids) == 0 {
		return nil
	}
	result := make([]string, 0, len(uuids))
	for _, u := range uuids {
		if n := NormalizeUUID(u); n != "" {
			result = append(result, n)
		}
	}
	return result
}

// CanonicalUUID returns the full dashed 128-bit form of a UUID, expanding 16 and 32-bit
// short forms over the Bluetooth SIG base.
func CanonicalUUID(s string) string {
	n := NormalizeUUID(s)
	switch len(n) {
	case 0:
		return ""
	case 4:
		return "0000" + n + sigBaseSuffix
	case 8:
		return n + sigBaseSuffix
	default:
		parsed, err := uuid.Parse(n)
		if err != nil {
			return ""
		}
		return parsed.String()
	}
}

// EqualUUID reports whether two UUID strings name the same attribute.
func EqualUUID(a, b string) bool {
	na := NormalizeUUID(a)
	return na != "" && na == NormalizeUUID(b)
}

func isHex(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}
