package device

import "strings"

// Properties is the characteristic capability bitmask, fixed at discovery.
// The low byte matches the GATT characteristic properties field.
type Properties uint16

const (
	PropertyBroadcast                  Properties = 0x0001
	PropertyRead                       Properties = 0x0002
	PropertyWriteWithoutResponse       Properties = 0x0004
	PropertyWrite                      Properties = 0x0008
	PropertyNotify                     Properties = 0x0010
	PropertyIndicate                   Properties = 0x0020
	PropertyAuthenticatedSignedWrites  Properties = 0x0040
	PropertyExtendedProperties         Properties = 0x0080
	PropertyNotifyEncryptionRequired   Properties = 0x0100
	PropertyIndicateEncryptionRequired Properties = 0x0200
)

var propertyNames = []struct {
	prop Properties
	name string
}{
	{PropertyBroadcast, "Broadcast"},
	{PropertyRead, "Read"},
	{PropertyWriteWithoutResponse, "WriteWithoutResponse"},
	{PropertyWrite, "Write"},
	{PropertyNotify, "Notify"},
	{PropertyIndicate, "Indicate"},
	{PropertyAuthenticatedSignedWrites, "AuthenticatedSignedWrites"},
	{PropertyExtendedProperties, "ExtendedProperties"},
	{PropertyNotifyEncryptionRequired, "NotifyEncryptionRequired"},
	{PropertyIndicateEncryptionRequired, "IndicateEncryptionRequired"},
}

// Has reports whether every bit of p2 is set.
func (p Properties) Has(p2 Properties) bool {
	return p&p2 == p2
}

func (p Properties) CanRead() bool { return p.Has(PropertyRead) }
func (p Properties) CanWrite() bool { return p.Has(PropertyWrite) }
func (p Properties) CanWriteWithoutResponse() bool { return p.Has(PropertyWriteWithoutResponse) }
func (p Properties) CanNotify() bool { return p&(PropertyNotify|PropertyIndicate) != 0 }

// KnownNames returns the names of the set bits in declaration order.
func (p Properties) KnownNames() []string {
	names := make([]string, 0, len(propertyNames))
	for _, pn := range propertyNames {
		if p.Has(pn.prop) {
			names = append(names, pn.name)
		}
	}
	return names
}

func (p Properties) String() string {
	return strings.Join(p.KnownNames(), ",")
}

// ParseProperties parses a comma separated, case-insensitive list of property names,
// e.g. "read,notify". Unknown names are ignored.
func ParseProperties(s string) Properties {
	var p Properties
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		for _, pn := range propertyNames {
			if strings.EqualFold(part, pn.name) {
				p |= pn.prop
			}
		}
	}
	return p
}
