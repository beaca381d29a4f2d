package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateUUID(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
		wantErr  bool
	}{
		{
			name:     "mixed forms",
			input:    []string{"180F", "0x2a19", "6E400001-B5A3-F393-E0A9-E50E24DCCA9E"},
			expected: []string{"180f", "2a19", "6e400001b5a3f393e0a9e50e24dcca9e"},
		},
		{name: "none", input: nil, wantErr: true},
		{name: "empty entry", input: []string{"180f", ""}, wantErr: true},
		{name: "malformed entry", input: []string{"not-a-uuid"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateUUID(tt.input...)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestShortenUUID(t *testing.T) {
	assert.Equal(t, "180f", ShortenUUID("180f"))
	assert.Equal(t, "6e400001", ShortenUUID("6e400001b5a3f393e0a9e50e24dcca9e"))
}

func TestContainsUUID(t *testing.T) {
	list := []string{"180F", "6E400001-B5A3-F393-E0A9-E50E24DCCA9E"}

	assert.True(t, containsUUID(list, "0000180f-0000-1000-8000-00805f9b34fb"), "SIG-base form MUST match the short form")
	assert.True(t, containsUUID(list, "6e400001b5a3f393e0a9e50e24dcca9e"))
	assert.False(t, containsUUID(list, "180d"))
	assert.False(t, containsUUID(nil, "180f"))
}

func TestProperties(t *testing.T) {
	tests := []struct {
		input    string
		expected Properties
		str      string
	}{
		{input: "read,notify", expected: PropertyRead | PropertyNotify, str: "Read,Notify"},
		{input: " Write , WRITEWITHOUTRESPONSE ", expected: PropertyWrite | PropertyWriteWithoutResponse, str: "WriteWithoutResponse,Write"},
		{input: "indicate,bogus", expected: PropertyIndicate, str: "Indicate"},
		{input: "", expected: 0, str: ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			p := ParseProperties(tt.input)
			assert.Equal(t, tt.expected, p)
			assert.Equal(t, tt.str, p.String())
		})
	}

	p := PropertyRead | PropertyIndicate
	assert.True(t, p.CanRead())
	assert.True(t, p.CanNotify(), "indicate MUST count as notify capable")
	assert.False(t, p.CanWrite())
	assert.False(t, p.CanWriteWithoutResponse())
	assert.True(t, p.Has(PropertyRead|PropertyIndicate))
	assert.False(t, p.Has(PropertyRead|PropertyWrite))
}
