package goble

import (
	"strings"
	"unicode"

	"github.com/go-ble/ble"
	"github.com/srg/gattcache/internal/device"
)

// txPowerUnavailable is what go-ble reports when the advertisement carries no TX power.
const txPowerUnavailable = 127

// ConvertAdvertisement snapshots a go-ble advertisement.
func ConvertAdvertisement(adv ble.Advertisement) device.Advertisement {
	out := device.Advertisement{
		Name:             adv.LocalName(),
		Connectable:      adv.Connectable(),
		ManufacturerData: append([]byte(nil), adv.ManufacturerData()...),
	}

	for _, u := range adv.Services() {
		if n := device.NormalizeUUID(u.String()); n != "" {
			out.Services = append(out.Services, n)
		}
	}
	if sd := adv.ServiceData(); len(sd) > 0 {
		out.ServiceData = make(map[string][]byte, len(sd))
		for _, d := range sd {
			out.ServiceData[device.NormalizeUUID(d.UUID.String())] = append([]byte(nil), d.Data...)
		}
	}
	if tx := adv.TxPowerLevel(); tx != txPowerUnavailable {
		out.TxPower = &tx
	}

	fields := map[string]any{}
	if overflow := uuidStrings(adv.OverflowService()); len(overflow) > 0 {
		fields["overflow_services"] = overflow
	}
	if solicited := uuidStrings(adv.SolicitedService()); len(solicited) > 0 {
		fields["solicited_services"] = solicited
	}
	if out.Name == "" {
		if name := nameFromManufacturerData(out.ManufacturerData); name != "" {
			fields["manufacturer_name"] = name
		}
	}
	if len(fields) > 0 {
		out.Fields = fields
	}
	return out
}

func uuidStrings(uuids []ble.UUID) []string {
	var out []string
	for _, u := range uuids {
		if n := device.NormalizeUUID(u.String()); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// nameFromManufacturerData picks the first run of at least three printable ASCII
// characters out of manufacturer data. Many devices embed their model name there.
func nameFromManufacturerData(data []byte) string {
	if len(data) < 4 {
		return ""
	}
	for i := 0; i < len(data)-3; i++ {
		if !isReadableASCII(data[i]) {
			continue
		}
		var name []byte
		for j := i; j < len(data) && j < i+32; j++ {
			if !isReadableASCII(data[j]) {
				break
			}
			name = append(name, data[j])
		}
		s := strings.TrimSpace(string(name))
		if len(s) >= 3 && isValidDeviceName(s) {
			return s
		}
	}
	return ""
}

func isReadableASCII(b byte) bool {
	return b >= 0x20 && b <= 0x7e
}

// isValidDeviceName requires at least two letters so that random byte runs are rejected.
func isValidDeviceName(name string) bool {
	letters := 0
	for _, r := range name {
		if unicode.IsLetter(r) {
			letters++
		}
	}
	return letters >= 2
}
