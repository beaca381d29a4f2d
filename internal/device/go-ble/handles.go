package goble

import (
	"fmt"

	"github.com/go-ble/ble"
	"github.com/srg/gattcache/internal/device"
)

// peripheralHandle is interned per address so that the registry sees the same
// pointer for every advertisement of one endpoint.
type peripheralHandle struct {
	addr string
}

func (h *peripheralHandle) ID() string { return h.addr }

func asPeripheral(p device.PeripheralHandle) (*peripheralHandle, error) {
	h, ok := p.(*peripheralHandle)
	if !ok || h == nil {
		return nil, fmt.Errorf("foreign peripheral handle %T", p)
	}
	return h, nil
}

type serviceHandle struct {
	svc  *ble.Service
	uuid string
}

func newServiceHandle(s *ble.Service) *serviceHandle {
	return &serviceHandle{svc: s, uuid: device.NormalizeUUID(s.UUID.String())}
}

func (h *serviceHandle) UUID() string { return h.uuid }

type characteristicHandle struct {
	char  *ble.Characteristic
	uuid  string
	props device.Properties
}

func newCharacteristicHandle(c *ble.Characteristic) *characteristicHandle {
	return &characteristicHandle{
		char:  c,
		uuid:  device.NormalizeUUID(c.UUID.String()),
		props: ConvertProperties(c.Property),
	}
}

func (h *characteristicHandle) UUID() string { return h.uuid }
func (h *characteristicHandle) Properties() device.Properties { return h.props }

type descriptorHandle struct {
	desc *ble.Descriptor
	uuid string
}

func newDescriptorHandle(d *ble.Descriptor) *descriptorHandle {
	return &descriptorHandle{desc: d, uuid: device.NormalizeUUID(d.UUID.String())}
}

func (h *descriptorHandle) UUID() string { return h.uuid }
