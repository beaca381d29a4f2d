package device

import (
	"encoding/hex"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/gattcache/internal/bledb"
)

// Characteristic is the generic characteristic wrapper. Its descriptors arrive as a
// single batch and are attached as a whole; its properties never change after discovery.
type Characteristic struct {
	handle  CharacteristicHandle
	service *Service
	node    CharacteristicNode
	uuid    string
	props   Properties

	mu          sync.RWMutex
	descriptors []DescriptorNode
	resolved    bool
	value       []byte
	concatenate bool
	notifying   bool
}

func newCharacteristic(parent *Service, h CharacteristicHandle) *Characteristic {
	c := &Characteristic{
		handle:  h,
		service: parent,
		uuid:    NormalizeUUID(h.UUID()),
		props:   h.Properties(),
	}
	c.node = c
	return c
}

func (c *Characteristic) Base() *Characteristic { return c }
func (c *Characteristic) UUID() string { return c.uuid }
func (c *Characteristic) Handle() CharacteristicHandle { return c.handle }
func (c *Characteristic) Node() CharacteristicNode { return c.node }
func (c *Characteristic) Service() *Service { return c.service }
func (c *Characteristic) Peripheral() *Peripheral { return c.service.peripheral }
func (c *Characteristic) Properties() Properties { return c.props }

// DisplayName returns the SIG name, or the UUID when unknown.
func (c *Characteristic) DisplayName() string {
	if name := bledb.LookupCharacteristic(c.uuid); name != "" {
		return name
	}
	return c.uuid
}

// DisplayValue renders the cached value through the registered value parser for
// this UUID, falling back to hex.
func (c *Characteristic) DisplayValue() (string, bool) {
	value := c.Value()
	if len(value) == 0 {
		return "", false
	}
	if parsed, err := ParseCharacteristicValue(c.uuid, value); err == nil && parsed != nil {
		if s, ok := parsed.(string); ok {
			return s, true
		}
	}
	return hex.EncodeToString(value), true
}

// Value returns a copy of the cached value.
func (c *Characteristic) Value() []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.value == nil {
		return nil
	}
	return append([]byte(nil), c.value...)
}

// SetConcatenate selects whether value updates append to the cached buffer instead
// of replacing it. Choose the mode before the first fragment of a stream arrives.
func (c *Characteristic) SetConcatenate(enabled bool) {
	c.mu.Lock()
	c.concatenate = enabled
	c.mu.Unlock()
}

func (c *Characteristic) IsConcatenating() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.concatenate
}

// ClearValue drops the cached buffer so the next fragment starts a new value.
func (c *Characteristic) ClearValue() {
	c.mu.Lock()
	c.value = nil
	c.mu.Unlock()
}

// IsNotifying reflects the last confirmed notification state.
func (c *Characteristic) IsNotifying() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.notifying
}

// Descriptors returns the committed descriptors.
func (c *Characteristic) Descriptors() []DescriptorNode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]DescriptorNode(nil), c.descriptors...)
}

// Descriptor finds a committed descriptor by UUID.
func (c *Characteristic) Descriptor(uuid string) (DescriptorNode, error) {
	key := NormalizeUUID(uuid)
	for _, d := range c.Descriptors() {
		if d.Base().uuid == key {
			return d, nil
		}
	}
	return nil, &NotFoundError{Resource: "descriptor", IDs: []string{c.service.uuid, c.uuid, key}}
}

// Read requests the value; it arrives as a characteristic-changed event.
func (c *Characteristic) Read() error {
	if !c.props.CanRead() {
		return &CapabilityError{Operation: "read", UUID: c.uuid}
	}
	p := c.Peripheral()
	if !p.Attached() {
		return ErrNotConnected
	}
	return p.transport().ReadValue(p.handle, c.handle)
}

// Write requests a write, with response when supported and requested, otherwise
// without response when supported. Completion is reported through
// OnCharacteristicWriteComplete; the cached value is not updated by a write.
func (c *Characteristic) Write(data []byte, withResponseIfPossible bool) error {
	var mode WriteMode
	switch {
	case withResponseIfPossible && c.props.CanWrite():
		mode = WriteWithResponse
	case c.props.CanWriteWithoutResponse():
		mode = WriteWithoutResponse
	default:
		return &CapabilityError{Operation: "write", UUID: c.uuid}
	}

	p := c.Peripheral()
	if !p.Attached() {
		return ErrNotConnected
	}
	p.logger().WithFields(logrus.Fields{
		"characteristic": c.uuid,
		"mode":           mode,
		"length":         len(data),
	}).Debug("Writing characteristic")
	return p.transport().WriteValue(p.handle, c.handle, append([]byte(nil), data...), mode)
}

// StartNotifying subscribes to notifications or indications. The new state is
// confirmed by OnCharacteristicNotifyStateChanged.
func (c *Characteristic) StartNotifying() error {
	return c.setNotify(true)
}

// StopNotifying unsubscribes.
func (c *Characteristic) StopNotifying() error {
	return c.setNotify(false)
}

func (c *Characteristic) setNotify(enabled bool) error {
	if !c.props.CanNotify() {
		return &CapabilityError{Operation: "notify", UUID: c.uuid}
	}
	p := c.Peripheral()
	if !p.Attached() {
		return ErrNotConnected
	}
	return p.transport().SetNotify(p.handle, c.handle, enabled)
}

func (c *Characteristic) isResolved() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resolved
}

func (c *Characteristic) setDescriptors(descs []DescriptorNode) {
	c.mu.Lock()
	c.descriptors = descs
	c.resolved = true
	c.mu.Unlock()
}

func (c *Characteristic) descriptorByHandle(h DescriptorHandle) *Descriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, d := range c.descriptors {
		if d.Base().handle == h {
			return d.Base()
		}
	}
	return nil
}

func (c *Characteristic) clear() {
	c.mu.Lock()
	c.descriptors = nil
	c.resolved = false
	c.notifying = false
	c.mu.Unlock()
}

func (c *Characteristic) didUpdateValue(data []byte, err error) {
	if err != nil {
		c.reportError(err)
		return
	}

	c.mu.Lock()
	if c.concatenate && c.value != nil {
		c.value = append(c.value, data...)
	} else {
		c.value = append([]byte{}, data...)
	}
	size := len(c.value)
	c.mu.Unlock()

	c.Peripheral().logger().WithFields(logrus.Fields{
		"characteristic": c.uuid,
		"fragment":       len(data),
		"length":         size,
	}).Debug("Characteristic value updated")
	c.service.characteristicChanged(c.node)
}

func (c *Characteristic) didWriteValue(err error) {
	if err != nil {
		c.reportError(err)
		return
	}
	c.service.writeComplete(c.node)
}

func (c *Characteristic) didUpdateNotificationState(enabled bool, err error) {
	if err != nil {
		c.reportError(err)
		return
	}
	c.mu.Lock()
	c.notifying = enabled
	c.mu.Unlock()
	c.service.notifyStateChanged(c.node)
}

func (c *Characteristic) descriptorChanged(d DescriptorNode) {
	c.service.descriptorChanged(c.node, d)
}

func (c *Characteristic) reportError(err error) {
	c.service.reportError(WrapError(LevelCharacteristic, c.uuid, err))
}
