package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ----------------------------
// Flag descriptors
// ----------------------------

func TestParseClientConfig(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected *ClientConfig
		str      string
		wantErr  bool
	}{
		{name: "disabled", data: []byte{0x00, 0x00}, expected: &ClientConfig{}, str: "none"},
		{name: "notifications", data: []byte{0x01, 0x00}, expected: &ClientConfig{Notifications: true}, str: "notifications"},
		{name: "indications", data: []byte{0x02, 0x00}, expected: &ClientConfig{Indications: true}, str: "indications"},
		{name: "both", data: []byte{0x03, 0x00}, expected: &ClientConfig{Notifications: true, Indications: true}, str: "notifications,indications"},
		{name: "too short", data: []byte{0x01}, wantErr: true},
		{name: "too long", data: []byte{0x01, 0x00, 0x00}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseClientConfig(tt.data)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
			assert.Equal(t, tt.str, got.String())
		})
	}
}

func TestParseExtendedProperties(t *testing.T) {
	got, err := ParseExtendedProperties([]byte{0x03, 0x00})
	require.NoError(t, err)
	assert.Equal(t, &ExtendedProperties{ReliableWrite: true, WritableAuxiliaries: true}, got)
	assert.Equal(t, "reliable-write,writable-auxiliaries", got.String())

	_, err = ParseExtendedProperties([]byte{})
	assert.Error(t, err)
}

func TestParseServerConfig(t *testing.T) {
	got, err := ParseServerConfig([]byte{0x01, 0x00})
	require.NoError(t, err)
	assert.True(t, got.Broadcasts)
	assert.Equal(t, "broadcasts", got.String())

	got, err = ParseServerConfig([]byte{0x00, 0x00})
	require.NoError(t, err)
	assert.Equal(t, "none", got.String())
}

// ----------------------------
// Value descriptors
// ----------------------------

func TestParseUserDescription(t *testing.T) {
	s, err := ParseUserDescription([]byte("Battery\x00\x00"))
	require.NoError(t, err)
	assert.Equal(t, "Battery", s, "NUL padding MUST be dropped")

	_, err = ParseUserDescription([]byte{0xff, 0xfe})
	assert.Error(t, err)
}

func TestParsePresentationFormat(t *testing.T) {
	// uint16, exponent -2, unit 0x272f (Celsius), SIG namespace, description 0x0001
	got, err := ParsePresentationFormat([]byte{0x06, 0xfe, 0x2f, 0x27, 0x01, 0x01, 0x00})
	require.NoError(t, err)
	assert.Equal(t, &PresentationFormat{
		Format:      FormatUint16,
		Exponent:    -2,
		Unit:        0x272f,
		Namespace:   0x01,
		Description: 0x0001,
	}, got)
	assert.Equal(t, "format=uint16 exponent=-2 unit=0x272f", got.String())

	unknown := &PresentationFormat{Format: 0x03, Unit: 0x2700}
	assert.Equal(t, "format=0x03 exponent=0 unit=0x2700", unknown.String())

	_, err = ParsePresentationFormat([]byte{0x06})
	assert.Error(t, err)
}

func TestParseAggregateFormat(t *testing.T) {
	got, err := ParseAggregateFormat([]byte{0x10, 0x00, 0x20, 0x01})
	require.NoError(t, err)
	assert.Equal(t, []uint16{0x0010, 0x0120}, got.Handles)
	assert.Equal(t, "handles=[0x0010,0x0120]", got.String())

	_, err = ParseAggregateFormat([]byte{0x10, 0x00, 0x20})
	assert.Error(t, err)
}

func TestParseValidRange(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		min  []byte
		max  []byte
	}{
		{name: "even", data: []byte{0x00, 0x64}, min: []byte{0x00}, max: []byte{0x64}},
		{name: "odd puts extra byte in max", data: []byte{0x01, 0x02, 0x03}, min: []byte{0x01}, max: []byte{0x02, 0x03}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseValidRange(tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.min, got.MinValue)
			assert.Equal(t, tt.max, got.MaxValue)
		})
	}

	got, err := ParseValidRange([]byte{0x00, 0x64})
	require.NoError(t, err)
	assert.Equal(t, "min=00 max=64", got.String())

	_, err = ParseValidRange([]byte{0x01})
	assert.Error(t, err)
}

// ----------------------------
// ParseDescriptorValue
// ----------------------------

func TestParseDescriptorValue(t *testing.T) {
	tests := []struct {
		name     string
		uuid     string
		data     []byte
		expected any
	}{
		{name: "empty", uuid: "2902", data: nil, expected: nil},
		{name: "user description", uuid: "2901", data: []byte("Level"), expected: "Level"},
		{name: "client config full uuid", uuid: "00002902-0000-1000-8000-00805f9b34fb", data: []byte{0x01, 0x00}, expected: &ClientConfig{Notifications: true}},
		{name: "server config", uuid: "2903", data: []byte{0x01, 0x00}, expected: &ServerConfig{Broadcasts: true}},
		{name: "unknown returns raw", uuid: "ffe2", data: []byte{0xaa}, expected: []byte{0xaa}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDescriptorValue(tt.uuid, tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}

	_, err := ParseDescriptorValue("2904", []byte{0x01})
	assert.Error(t, err, "malformed known descriptor MUST fail")
}
