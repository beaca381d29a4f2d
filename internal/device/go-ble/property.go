package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/gattcache/internal/device"
)

var propertyMap = []struct {
	ble  ble.Property
	prop device.Properties
}{
	{ble.CharBroadcast, device.PropertyBroadcast},
	{ble.CharRead, device.PropertyRead},
	{ble.CharWriteNR, device.PropertyWriteWithoutResponse},
	{ble.CharWrite, device.PropertyWrite},
	{ble.CharNotify, device.PropertyNotify},
	{ble.CharIndicate, device.PropertyIndicate},
	{ble.CharSignedWrite, device.PropertyAuthenticatedSignedWrites},
	{ble.CharExtended, device.PropertyExtendedProperties},
}

// ConvertProperties maps go-ble characteristic property flags to device.Properties.
// go-ble does not report the encryption-required variants.
func ConvertProperties(p ble.Property) device.Properties {
	var props device.Properties
	for _, m := range propertyMap {
		if p&m.ble != 0 {
			props |= m.prop
		}
	}
	return props
}
