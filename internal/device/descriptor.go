package device

import (
	"encoding/hex"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/gattcache/internal/bledb"
)

// Descriptor is the generic descriptor wrapper; a leaf of the tree.
type Descriptor struct {
	handle         DescriptorHandle
	characteristic *Characteristic
	node           DescriptorNode
	uuid           string

	mu    sync.RWMutex
	value []byte
}

func newDescriptor(parent *Characteristic, h DescriptorHandle) *Descriptor {
	d := &Descriptor{
		handle:         h,
		characteristic: parent,
		uuid:           NormalizeUUID(h.UUID()),
	}
	d.node = d
	return d
}

func (d *Descriptor) Base() *Descriptor { return d }
func (d *Descriptor) UUID() string { return d.uuid }
func (d *Descriptor) Handle() DescriptorHandle { return d.handle }
func (d *Descriptor) Node() DescriptorNode { return d.node }
func (d *Descriptor) Characteristic() *Characteristic { return d.characteristic }

// DisplayName returns the SIG name, or the UUID when unknown.
func (d *Descriptor) DisplayName() string {
	if name := bledb.LookupDescriptor(d.uuid); name != "" {
		return name
	}
	return d.uuid
}

// Value returns a copy of the cached value.
func (d *Descriptor) Value() []byte {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.value == nil {
		return nil
	}
	return append([]byte(nil), d.value...)
}

// DisplayValue decodes well-known descriptors and falls back to hex.
func (d *Descriptor) DisplayValue() (string, bool) {
	value := d.Value()
	if len(value) == 0 {
		return "", false
	}
	parsed, err := ParseDescriptorValue(d.uuid, value)
	if err != nil {
		return "", false
	}
	switch v := parsed.(type) {
	case string:
		return v, true
	case interface{ String() string }:
		return v.String(), true
	default:
		return hex.EncodeToString(value), true
	}
}

// Read requests the descriptor value; the result arrives as a descriptor-changed event.
func (d *Descriptor) Read() error {
	p := d.peripheral()
	if !p.Attached() {
		return ErrNotConnected
	}
	return p.transport().ReadDescriptorValue(p.handle, d.handle)
}

// Write requests a descriptor write. The client configuration descriptor is
// owned by StartNotifying/StopNotifying and cannot be written directly.
func (d *Descriptor) Write(data []byte) error {
	if d.uuid == DescriptorClientConfig {
		return &CapabilityError{Operation: "write", UUID: d.uuid}
	}
	p := d.peripheral()
	if !p.Attached() {
		return ErrNotConnected
	}
	return p.transport().WriteDescriptorValue(p.handle, d.handle, append([]byte(nil), data...))
}

func (d *Descriptor) peripheral() *Peripheral {
	return d.characteristic.service.peripheral
}

func (d *Descriptor) didUpdateValue(data []byte, err error) {
	if err != nil {
		d.reportError(err)
		return
	}
	d.mu.Lock()
	d.value = append([]byte(nil), data...)
	d.mu.Unlock()

	d.peripheral().logger().WithFields(logrus.Fields{
		"descriptor": d.uuid,
		"length":     len(data),
	}).Debug("Descriptor value updated")
	d.characteristic.descriptorChanged(d.node)
}

func (d *Descriptor) didWriteValue(err error) {
	if err != nil {
		d.reportError(err)
		return
	}
	d.characteristic.descriptorChanged(d.node)
}

func (d *Descriptor) reportError(err error) {
	d.characteristic.reportError(WrapError(LevelDescriptor, d.uuid, err))
}
