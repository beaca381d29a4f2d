package device

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Well-known GATT descriptor UUIDs (16-bit short form)
const (
	DescriptorExtendedProperties = "2900"
	DescriptorUserDescription    = "2901"
	DescriptorClientConfig       = "2902"
	DescriptorServerConfig       = "2903"
	DescriptorPresentationFormat = "2904"
	DescriptorAggregateFormat    = "2905"
	DescriptorValidRange         = "2906"
)

// ExtendedProperties is the Characteristic Extended Properties descriptor (0x2900)
type ExtendedProperties struct {
	ReliableWrite       bool
	WritableAuxiliaries bool
}

func (e *ExtendedProperties) String() string {
	return flagString(map[string]bool{
		"reliable-write":       e.ReliableWrite,
		"writable-auxiliaries": e.WritableAuxiliaries,
	}, "reliable-write", "writable-auxiliaries")
}

// ClientConfig is the Client Characteristic Configuration descriptor (0x2902)
type ClientConfig struct {
	Notifications bool
	Indications   bool
}

func (c *ClientConfig) String() string {
	return flagString(map[string]bool{
		"notifications": c.Notifications,
		"indications":   c.Indications,
	}, "notifications", "indications")
}

// ServerConfig is the Server Characteristic Configuration descriptor (0x2903)
type ServerConfig struct {
	Broadcasts bool
}

func (s *ServerConfig) String() string {
	return flagString(map[string]bool{"broadcasts": s.Broadcasts}, "broadcasts")
}

// flagString lists the set flags in order, or "none".
func flagString(flags map[string]bool, order ...string) string {
	var set []string
	for _, name := range order {
		if flags[name] {
			set = append(set, name)
		}
	}
	if len(set) == 0 {
		return "none"
	}
	return strings.Join(set, ",")
}

// PresentationFormat is the Characteristic Presentation Format descriptor (0x2904)
type PresentationFormat struct {
	Format      uint8  // See Format* constants
	Exponent    int8   // value = raw * 10^Exponent
	Unit        uint16 // Unit UUID, 0x2700 = unitless
	Namespace   uint8  // 0x01 = Bluetooth SIG
	Description uint16
}

func (p *PresentationFormat) String() string {
	name, ok := formatNames[p.Format]
	if !ok {
		name = fmt.Sprintf("0x%02x", p.Format)
	}
	return fmt.Sprintf("format=%s exponent=%d unit=0x%04x", name, p.Exponent, p.Unit)
}

// AggregateFormat is the Characteristic Aggregate Format descriptor (0x2905): a
// list of attribute handles of presentation format descriptors.
type AggregateFormat struct {
	Handles []uint16
}

func (a *AggregateFormat) String() string {
	parts := make([]string, len(a.Handles))
	for i, h := range a.Handles {
		parts[i] = fmt.Sprintf("0x%04x", h)
	}
	return "handles=[" + strings.Join(parts, ",") + "]"
}

// ValidRange is the Valid Range descriptor (0x2906)
type ValidRange struct {
	MinValue []byte // Layout depends on the characteristic format
	MaxValue []byte
}

func (v *ValidRange) String() string {
	return fmt.Sprintf("min=%s max=%s", hex.EncodeToString(v.MinValue), hex.EncodeToString(v.MaxValue))
}

// Format types for PresentationFormat.Format
const (
	FormatBoolean  = 0x01
	FormatUint2    = 0x02
	FormatUint4    = 0x03
	FormatUint8    = 0x04
	FormatUint12   = 0x05
	FormatUint16   = 0x06
	FormatUint24   = 0x07
	FormatUint32   = 0x08
	FormatUint48   = 0x09
	FormatUint64   = 0x0A
	FormatUint128  = 0x0B
	FormatSint8    = 0x0C
	FormatSint12   = 0x0D
	FormatSint16   = 0x0E
	FormatSint24   = 0x0F
	FormatSint32   = 0x10
	FormatSint48   = 0x11
	FormatSint64   = 0x12
	FormatSint128  = 0x13
	FormatFloat32  = 0x14
	FormatFloat64  = 0x15
	FormatSFloat16 = 0x16
	FormatFloat16  = 0x17
	FormatDuint16  = 0x18
	FormatUTF8     = 0x19
	FormatUTF16    = 0x1A
	FormatStruct   = 0x1B
)

var formatNames = map[uint8]string{
	FormatBoolean: "boolean",
	FormatUint8:   "uint8",
	FormatUint16:  "uint16",
	FormatUint24:  "uint24",
	FormatUint32:  "uint32",
	FormatUint64:  "uint64",
	FormatSint8:   "sint8",
	FormatSint16:  "sint16",
	FormatSint32:  "sint32",
	FormatSint64:  "sint64",
	FormatFloat32: "float32",
	FormatFloat64: "float64",
	FormatUTF8:    "utf8s",
	FormatUTF16:   "utf16s",
	FormatStruct:  "struct",
}

// ParseExtendedProperties parses the 2-byte extended properties bitfield:
// bit 0 = Reliable Write, bit 1 = Writable Auxiliaries.
func ParseExtendedProperties(data []byte) (*ExtendedProperties, error) {
	if len(data) != 2 {
		return nil, fmt.Errorf("invalid length for extended properties: expected 2, got %d", len(data))
	}
	value := binary.LittleEndian.Uint16(data)
	return &ExtendedProperties{
		ReliableWrite:       (value & 0x0001) != 0,
		WritableAuxiliaries: (value & 0x0002) != 0,
	}, nil
}

// ParseClientConfig parses the 2-byte CCCD: bit 0 = Notifications, bit 1 = Indications.
func ParseClientConfig(data []byte) (*ClientConfig, error) {
	if len(data) != 2 {
		return nil, fmt.Errorf("invalid length for client config: expected 2, got %d", len(data))
	}
	value := binary.LittleEndian.Uint16(data)
	return &ClientConfig{
		Notifications: (value & 0x0001) != 0,
		Indications:   (value & 0x0002) != 0,
	}, nil
}

// ParseServerConfig parses the 2-byte SCCD: bit 0 = Broadcasts.
func ParseServerConfig(data []byte) (*ServerConfig, error) {
	if len(data) != 2 {
		return nil, fmt.Errorf("invalid length for server config: expected 2, got %d", len(data))
	}
	value := binary.LittleEndian.Uint16(data)
	return &ServerConfig{
		Broadcasts: (value & 0x0001) != 0,
	}, nil
}

// ParseUserDescription parses a UTF-8 user description, dropping NUL padding.
func ParseUserDescription(data []byte) (string, error) {
	str := strings.TrimRight(string(data), "\x00")
	if !utf8.ValidString(str) {
		return "", fmt.Errorf("invalid UTF-8 in user description")
	}
	return str, nil
}

// ParsePresentationFormat parses the 7-byte layout:
// Format(1), Exponent(1), Unit(2), Namespace(1), Description(2).
func ParsePresentationFormat(data []byte) (*PresentationFormat, error) {
	if len(data) != 7 {
		return nil, fmt.Errorf("invalid length for presentation format: expected 7, got %d", len(data))
	}
	return &PresentationFormat{
		Format:      data[0],
		Exponent:    int8(data[1]),
		Unit:        binary.LittleEndian.Uint16(data[2:4]),
		Namespace:   data[4],
		Description: binary.LittleEndian.Uint16(data[5:7]),
	}, nil
}

// ParseAggregateFormat parses a list of little-endian 16-bit handles.
func ParseAggregateFormat(data []byte) (*AggregateFormat, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("invalid length for aggregate format: %d is not a multiple of 2", len(data))
	}
	handles := make([]uint16, 0, len(data)/2)
	for i := 0; i < len(data); i += 2 {
		handles = append(handles, binary.LittleEndian.Uint16(data[i:i+2]))
	}
	return &AggregateFormat{Handles: handles}, nil
}

// ParseValidRange splits the value in half; the extra byte of an odd length goes to max.
func ParseValidRange(data []byte) (*ValidRange, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("invalid length for valid range: expected at least 2, got %d", len(data))
	}
	mid := len(data) / 2
	return &ValidRange{
		MinValue: append([]byte(nil), data[:mid]...),
		MaxValue: append([]byte(nil), data[mid:]...),
	}, nil
}

// ParseDescriptorValue decodes a well-known descriptor value. Unknown UUIDs return
// the raw bytes; empty data returns (nil, nil).
func ParseDescriptorValue(uuid string, data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}

	switch NormalizeUUID(uuid) {
	case DescriptorExtendedProperties:
		return ParseExtendedProperties(data)
	case DescriptorUserDescription:
		return ParseUserDescription(data)
	case DescriptorClientConfig:
		return ParseClientConfig(data)
	case DescriptorServerConfig:
		return ParseServerConfig(data)
	case DescriptorPresentationFormat:
		return ParsePresentationFormat(data)
	case DescriptorAggregateFormat:
		return ParseAggregateFormat(data)
	case DescriptorValidRange:
		return ParseValidRange(data)
	default:
		return data, nil
	}
}
