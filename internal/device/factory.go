package device

import (
	"fmt"
	"sync"

	"github.com/srg/gattcache/internal/bledb"
)

// ServiceNode is a Service, possibly specialized by UUID.
type ServiceNode interface {
	Base() *Service
	DisplayName() string
}

// CharacteristicNode is a Characteristic, possibly specialized by UUID.
type CharacteristicNode interface {
	Base() *Characteristic
	DisplayName() string
	// DisplayValue renders the cached value; false when it cannot be decoded.
	DisplayValue() (string, bool)
}

// DescriptorNode is a Descriptor, possibly specialized by UUID.
type DescriptorNode interface {
	Base() *Descriptor
	DisplayName() string
	DisplayValue() (string, bool)
}

// Constructors wrap a freshly discovered base node into its specialized form.
type (
	ServiceConstructor        func(base *Service) ServiceNode
	CharacteristicConstructor func(base *Characteristic) CharacteristicNode
	DescriptorConstructor     func(base *Descriptor) DescriptorNode
)

type factoryEntry[C any] struct {
	uuid string
	ctor C
}

// Factories holds, per tree level, an ordered list of (uuid, constructor) entries.
// Entry 0 is the generic constructor; it carries no uuid and never matches.
type Factories struct {
	mu              sync.RWMutex
	services        []factoryEntry[ServiceConstructor]
	characteristics []factoryEntry[CharacteristicConstructor]
	descriptors     []factoryEntry[DescriptorConstructor]
}

// NewFactories returns a registry holding only the generic constructors.
func NewFactories() *Factories {
	return &Factories{
		services:        []factoryEntry[ServiceConstructor]{{ctor: func(s *Service) ServiceNode { return s }}},
		characteristics: []factoryEntry[CharacteristicConstructor]{{ctor: func(c *Characteristic) CharacteristicNode { return c }}},
		descriptors:     []factoryEntry[DescriptorConstructor]{{ctor: func(d *Descriptor) DescriptorNode { return d }}},
	}
}

// RegisterService appends a service specialization.
func (f *Factories) RegisterService(uuid string, ctor ServiceConstructor) error {
	key, err := factoryKey(uuid, ctor == nil)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.services = append(f.services, factoryEntry[ServiceConstructor]{uuid: key, ctor: ctor})
	return nil
}

// RegisterCharacteristic appends a characteristic specialization.
func (f *Factories) RegisterCharacteristic(uuid string, ctor CharacteristicConstructor) error {
	key, err := factoryKey(uuid, ctor == nil)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.characteristics = append(f.characteristics, factoryEntry[CharacteristicConstructor]{uuid: key, ctor: ctor})
	return nil
}

// RegisterDescriptor appends a descriptor specialization.
func (f *Factories) RegisterDescriptor(uuid string, ctor DescriptorConstructor) error {
	key, err := factoryKey(uuid, ctor == nil)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.descriptors = append(f.descriptors, factoryEntry[DescriptorConstructor]{uuid: key, ctor: ctor})
	return nil
}

// ResolveService builds the node for a discovered service: the first registered
// specialization whose uuid matches, else the generic Service.
func (f *Factories) ResolveService(uuid string, parent *Peripheral, h ServiceHandle) ServiceNode {
	f.mu.RLock()
	ctor := lookupFactory(f.services, uuid)
	f.mu.RUnlock()

	base := newService(parent, h)
	base.node = ctor(base)
	return base.node
}

// ResolveCharacteristic builds the node for a discovered characteristic.
func (f *Factories) ResolveCharacteristic(uuid string, parent *Service, h CharacteristicHandle) CharacteristicNode {
	f.mu.RLock()
	ctor := lookupFactory(f.characteristics, uuid)
	f.mu.RUnlock()

	base := newCharacteristic(parent, h)
	base.node = ctor(base)
	return base.node
}

// ResolveDescriptor builds the node for a discovered descriptor.
func (f *Factories) ResolveDescriptor(uuid string, parent *Characteristic, h DescriptorHandle) DescriptorNode {
	f.mu.RLock()
	ctor := lookupFactory(f.descriptors, uuid)
	f.mu.RUnlock()

	base := newDescriptor(parent, h)
	base.node = ctor(base)
	return base.node
}

func lookupFactory[C any](entries []factoryEntry[C], uuid string) C {
	key := bledb.NormalizeUUID(uuid)
	if key != "" {
		for _, e := range entries[1:] {
			if e.uuid == key {
				return e.ctor
			}
		}
	}
	return entries[0].ctor
}

func factoryKey(uuid string, nilCtor bool) (string, error) {
	if nilCtor {
		return "", fmt.Errorf("nil constructor for %q", uuid)
	}
	key := bledb.NormalizeUUID(uuid)
	if key == "" {
		return "", fmt.Errorf("invalid UUID %q", uuid)
	}
	return key, nil
}
