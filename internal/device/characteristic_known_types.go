package device

import (
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/srg/gattcache/internal/bledb"
)

// Well-known GATT characteristic UUIDs (16-bit short form)
const (
	CharacteristicDeviceName        = "2a00"
	CharacteristicAppearance        = "2a01"
	CharacteristicBatteryLevel      = "2a19"
	CharacteristicModelNumber       = "2a24"
	CharacteristicSerialNumber      = "2a25"
	CharacteristicFirmwareRevision  = "2a26"
	CharacteristicHardwareRevision  = "2a27"
	CharacteristicSoftwareRevision  = "2a28"
	CharacteristicManufacturerName  = "2a29"
	CharacteristicHeartRateMeasure  = "2a37"
	CharacteristicBodySensorLocator = "2a38"
)

// CharacteristicParser decodes a characteristic value into a display form.
type CharacteristicParser func([]byte) (any, error)

// parseAppearance returns the appearance category name, or nil if unknown.
func parseAppearance(value []byte) (any, error) {
	if len(value) != 2 {
		return nil, fmt.Errorf("appearance value must be 2 bytes, got %d", len(value))
	}
	name := bledb.LookupAppearanceCode(binary.LittleEndian.Uint16(value))
	if name == "" {
		return nil, nil
	}
	return name, nil
}

func parseBatteryLevel(value []byte) (any, error) {
	level, err := decodeBatteryLevel(value)
	if err != nil {
		return nil, err
	}
	return fmt.Sprintf("%d%%", level), nil
}

func decodeBatteryLevel(value []byte) (uint8, error) {
	if len(value) != 1 {
		return 0, fmt.Errorf("battery level must be 1 byte, got %d", len(value))
	}
	if value[0] > 100 {
		return 0, fmt.Errorf("battery level %d out of range", value[0])
	}
	return value[0], nil
}

// HeartRate is a decoded Heart Rate Measurement (0x2A37).
type HeartRate struct {
	BPM           uint16
	SensorContact *bool // nil when contact detection is unsupported
}

// decodeHeartRate reads the flags byte: bit 0 selects a 16-bit value, bits 1-2
// carry sensor contact status.
func decodeHeartRate(value []byte) (*HeartRate, error) {
	if len(value) < 2 {
		return nil, fmt.Errorf("heart rate measurement too short: %d bytes", len(value))
	}
	flags := value[0]
	hr := &HeartRate{}
	if flags&0x01 != 0 {
		if len(value) < 3 {
			return nil, fmt.Errorf("heart rate measurement too short for 16-bit value: %d bytes", len(value))
		}
		hr.BPM = binary.LittleEndian.Uint16(value[1:3])
	} else {
		hr.BPM = uint16(value[1])
	}
	if flags&0x04 != 0 {
		contact := flags&0x02 != 0
		hr.SensorContact = &contact
	}
	return hr, nil
}

func parseHeartRate(value []byte) (any, error) {
	hr, err := decodeHeartRate(value)
	if err != nil {
		return nil, err
	}
	return fmt.Sprintf("%d bpm", hr.BPM), nil
}

var bodySensorLocations = []string{"Other", "Chest", "Wrist", "Finger", "Hand", "Ear Lobe", "Foot"}

func parseBodySensorLocation(value []byte) (any, error) {
	if len(value) != 1 {
		return nil, fmt.Errorf("body sensor location must be 1 byte, got %d", len(value))
	}
	if int(value[0]) >= len(bodySensorLocations) {
		return nil, nil
	}
	return bodySensorLocations[value[0]], nil
}

func parseUTF8(value []byte) (any, error) {
	s := strings.TrimRight(string(value), "\x00")
	if !utf8.ValidString(s) {
		return nil, fmt.Errorf("invalid UTF-8 string value")
	}
	return s, nil
}

// characteristicParsers maps normalized characteristic UUIDs to their parsers
var characteristicParsers = map[string]CharacteristicParser{
	CharacteristicDeviceName:        parseUTF8,
	CharacteristicAppearance:        parseAppearance,
	CharacteristicBatteryLevel:      parseBatteryLevel,
	CharacteristicModelNumber:       parseUTF8,
	CharacteristicSerialNumber:      parseUTF8,
	CharacteristicFirmwareRevision:  parseUTF8,
	CharacteristicHardwareRevision:  parseUTF8,
	CharacteristicSoftwareRevision:  parseUTF8,
	CharacteristicManufacturerName:  parseUTF8,
	CharacteristicHeartRateMeasure:  parseHeartRate,
	CharacteristicBodySensorLocator: parseBodySensorLocation,
}

// IsParsableCharacteristic returns true if the characteristic UUID supports value parsing
func IsParsableCharacteristic(uuid string) bool {
	_, exists := characteristicParsers[NormalizeUUID(uuid)]
	return exists
}

// ParseCharacteristicValue decodes a well-known characteristic value.
// Unknown UUIDs return (nil, nil).
func ParseCharacteristicValue(uuid string, value []byte) (any, error) {
	parser, exists := characteristicParsers[NormalizeUUID(uuid)]
	if !exists {
		return nil, nil
	}
	return parser(value)
}
