package testutils

import (
	"encoding/json"
	"fmt"

	"github.com/srg/gattcache/internal/device"
)

// FakePeripheral is a scripted remote endpoint served by FakeTransport. It is
// its own device.PeripheralHandle, as are its services, characteristics and
// descriptors for their levels.
type FakePeripheral struct {
	id       string
	Adv      device.Advertisement
	RSSI     int
	Services []*FakeService

	// HoldConnect leaves connect attempts unanswered until FakeTransport.ResolveConnect
	// or Disconnect answers them.
	HoldConnect bool
	ConnectErr  error
	ServicesErr error
}

type FakeService struct {
	uuid               string
	Characteristics    []*FakeCharacteristic
	CharacteristicsErr error
}

type FakeCharacteristic struct {
	uuid           string
	Props          device.Properties
	Value          []byte
	Descriptors    []*FakeDescriptor
	DescriptorsErr error
	ReadErr        error
	WriteErr       error
	// Written records every payload written, in order.
	Written [][]byte
}

type FakeDescriptor struct {
	uuid    string
	Value   []byte
	Written [][]byte
}

func (p *FakePeripheral) ID() string { return p.id }
func (s *FakeService) UUID() string { return s.uuid }
func (c *FakeCharacteristic) UUID() string { return c.uuid }
func (c *FakeCharacteristic) Properties() device.Properties { return c.Props }
func (d *FakeDescriptor) UUID() string { return d.uuid }

// NewFakePeripheral creates a connectable endpoint advertising name at -50 dBm.
func NewFakePeripheral(id, name string) *FakePeripheral {
	return &FakePeripheral{
		id:   id,
		Adv:  device.Advertisement{Name: name, Connectable: true},
		RSSI: -50,
	}
}

// WithRSSI sets the advertised signal strength.
func (p *FakePeripheral) WithRSSI(rssi int) *FakePeripheral {
	p.RSSI = rssi
	return p
}

// WithConnectable sets the advertised connectable flag.
func (p *FakePeripheral) WithConnectable(c bool) *FakePeripheral {
	p.Adv.Connectable = c
	return p
}

// WithAdvertisedServices sets the advertised service UUIDs.
func (p *FakePeripheral) WithAdvertisedServices(uuids ...string) *FakePeripheral {
	p.Adv.Services = device.NormalizeUUIDs(uuids)
	return p
}

// WithService adds a service to the GATT tree
func (p *FakePeripheral) WithService(uuid string) *FakePeripheral {
	p.Services = append(p.Services, &FakeService{uuid: uuid})
	return p
}

// WithCharacteristic adds a characteristic to the last added service
func (p *FakePeripheral) WithCharacteristic(uuid, properties string, value []byte) *FakePeripheral {
	if len(p.Services) == 0 {
		panic("WithCharacteristic: no service added yet, call WithService first")
	}
	s := p.Services[len(p.Services)-1]
	s.Characteristics = append(s.Characteristics, &FakeCharacteristic{
		uuid:  uuid,
		Props: device.ParseProperties(properties),
		Value: value,
	})
	return p
}

// WithDescriptor adds a descriptor to the last added characteristic
func (p *FakePeripheral) WithDescriptor(uuid string, value []byte) *FakePeripheral {
	if len(p.Services) == 0 {
		panic("WithDescriptor: no service added yet, call WithService first")
	}
	s := p.Services[len(p.Services)-1]
	if len(s.Characteristics) == 0 {
		panic("WithDescriptor: no characteristic added yet, call WithCharacteristic first")
	}
	c := s.Characteristics[len(s.Characteristics)-1]
	c.Descriptors = append(c.Descriptors, &FakeDescriptor{uuid: uuid, Value: value})
	return p
}

type descriptorConfig struct {
	UUID  string `json:"uuid"`
	Value []byte `json:"value,omitempty"`
}

type characteristicConfig struct {
	UUID        string             `json:"uuid"`
	Properties  string             `json:"properties,omitempty"` // e.g., "read,write,notify"
	Value       []byte             `json:"value,omitempty"`
	Descriptors []descriptorConfig `json:"descriptors,omitempty"`
}

type serviceConfig struct {
	UUID            string                 `json:"uuid"`
	Characteristics []characteristicConfig `json:"characteristics,omitempty"`
}

// FromJSON replaces the GATT tree with the one described by the JSON document:
//
//	{"services": [{"uuid": "180F", "characteristics": [
//	    {"uuid": "2A19", "properties": "read,notify", "value": [50],
//	     "descriptors": [{"uuid": "2902"}]}]}]}
func (p *FakePeripheral) FromJSON(jsonStrFmt string, args ...any) *FakePeripheral {
	var cfg struct {
		Services []serviceConfig `json:"services"`
	}
	if err := json.Unmarshal([]byte(fmt.Sprintf(jsonStrFmt, args...)), &cfg); err != nil {
		panic(fmt.Sprintf("FakePeripheral.FromJSON: failed to unmarshal: %v", err))
	}

	p.Services = nil
	for _, s := range cfg.Services {
		p.WithService(s.UUID)
		for _, c := range s.Characteristics {
			p.WithCharacteristic(c.UUID, c.Properties, c.Value)
			for _, d := range c.Descriptors {
				p.WithDescriptor(d.UUID, d.Value)
			}
		}
	}
	return p
}

// Service finds a service of the GATT tree by UUID, or panics.
func (p *FakePeripheral) Service(uuid string) *FakeService {
	for _, s := range p.Services {
		if device.NormalizeUUID(s.uuid) == device.NormalizeUUID(uuid) {
			return s
		}
	}
	panic(fmt.Sprintf("fake peripheral %s has no service %s", p.id, uuid))
}

// Characteristic finds a characteristic of the GATT tree by UUIDs, or panics.
func (p *FakePeripheral) Characteristic(serviceUUID, uuid string) *FakeCharacteristic {
	for _, c := range p.Service(serviceUUID).Characteristics {
		if device.NormalizeUUID(c.uuid) == device.NormalizeUUID(uuid) {
			return c
		}
	}
	panic(fmt.Sprintf("fake service %s has no characteristic %s", serviceUUID, uuid))
}

// Descriptor finds a descriptor of the GATT tree by UUIDs, or panics.
func (p *FakePeripheral) Descriptor(serviceUUID, charUUID, uuid string) *FakeDescriptor {
	for _, d := range p.Characteristic(serviceUUID, charUUID).Descriptors {
		if device.NormalizeUUID(d.uuid) == device.NormalizeUUID(uuid) {
			return d
		}
	}
	panic(fmt.Sprintf("fake characteristic %s has no descriptor %s", charUUID, uuid))
}
