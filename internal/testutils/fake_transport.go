package testutils

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/srg/gattcache/internal/device"
)

// Call is one request received by FakeTransport.
type Call struct {
	Method     string
	Peripheral string
	UUID       string
}

// FakeTransport is a scripted device.Transport. Requests answer from the
// FakePeripheral trees, but every answer is queued and only delivered by Pump,
// so tests decide exactly when callbacks happen.
type FakeTransport struct {
	mu          sync.Mutex
	events      device.TransportEvents
	peripherals map[string]*FakePeripheral
	connected   map[string]bool
	held        map[string]int
	queue       []func(device.TransportEvents)
	calls       []Call
	failures    map[string]error
	scanning    bool
	scanFilter  []string
}

var _ device.Transport = (*FakeTransport)(nil)

func NewFakeTransport(peripherals ...*FakePeripheral) *FakeTransport {
	t := &FakeTransport{
		peripherals: make(map[string]*FakePeripheral),
		connected:   make(map[string]bool),
		held:        make(map[string]int),
		failures:    make(map[string]error),
	}
	for _, p := range peripherals {
		t.peripherals[p.id] = p
	}
	return t
}

// AddPeripheral makes p known to the transport.
func (t *FakeTransport) AddPeripheral(p *FakePeripheral) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peripherals[p.id] = p
}

// FailNext makes the next call of method return err synchronously.
func (t *FakeTransport) FailNext(method string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures[method] = err
}

// Calls returns every request received so far.
func (t *FakeTransport) Calls() []Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.calls)
}

// CallCount counts requests of the given method.
func (t *FakeTransport) CallCount(method string) int {
	n := 0
	for _, c := range t.Calls() {
		if c.Method == method {
			n++
		}
	}
	return n
}

// IsScanning reports whether Scan was called without a later StopScan.
func (t *FakeTransport) IsScanning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.scanning
}

// ScanFilter is the service filter of the last Scan call.
func (t *FakeTransport) ScanFilter() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.scanFilter)
}

// IsConnected reports whether the transport considers p connected.
func (t *FakeTransport) IsConnected(p *FakePeripheral) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected[p.id]
}

// Pending is the number of queued callbacks.
func (t *FakeTransport) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

// Emit queues an arbitrary callback, e.g. a late connect or a notification.
func (t *FakeTransport) Emit(fn func(events device.TransportEvents)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queue = append(t.queue, fn)
}

// Step delivers the oldest queued callback. Returns false when the queue is empty.
func (t *FakeTransport) Step() bool {
	t.mu.Lock()
	if len(t.queue) == 0 || t.events == nil {
		t.mu.Unlock()
		return false
	}
	fn := t.queue[0]
	t.queue = t.queue[1:]
	events := t.events
	t.mu.Unlock()

	fn(events)
	return true
}

// Pump delivers queued callbacks, including the ones they cause, until the queue
// drains. It returns how many were delivered.
func (t *FakeTransport) Pump() int {
	n := 0
	for t.Step() {
		n++
	}
	return n
}

// Advertise queues a discovery event for p with its current advertisement.
func (t *FakeTransport) Advertise(p *FakePeripheral) {
	adv, rssi := p.Adv.Clone(), p.RSSI
	t.Emit(func(e device.TransportEvents) { e.DidDiscover(p, adv, rssi) })
}

// ResolveConnect answers the oldest held attempt for p: connected when err is
// nil, failed otherwise. Returns false when no attempt is held.
func (t *FakeTransport) ResolveConnect(p *FakePeripheral, err error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.takeHeld(p.id) {
		return false
	}
	if err != nil {
		t.queue = append(t.queue, func(e device.TransportEvents) { e.DidFailToConnect(p, err) })
		return true
	}
	t.connected[p.id] = true
	t.queue = append(t.queue, func(e device.TransportEvents) { e.DidConnect(p) })
	return true
}

// DropConnection queues a disconnect nobody asked for.
func (t *FakeTransport) DropConnection(p *FakePeripheral, cause error) {
	t.mu.Lock()
	delete(t.connected, p.id)
	t.mu.Unlock()
	t.Emit(func(e device.TransportEvents) { e.DidDisconnect(p, cause) })
}

// Notify queues a value update as if the characteristic had notified data.
func (t *FakeTransport) Notify(p *FakePeripheral, c *FakeCharacteristic, data []byte) {
	t.Emit(func(e device.TransportEvents) { e.DidUpdateValue(p, c, data, nil) })
}

// ModifyServices queues a services-modified event for the given services.
func (t *FakeTransport) ModifyServices(p *FakePeripheral, services ...*FakeService) {
	handles := make([]device.ServiceHandle, 0, len(services))
	for _, s := range services {
		handles = append(handles, s)
	}
	t.Emit(func(e device.TransportEvents) { e.DidModifyServices(p, handles) })
}

func (t *FakeTransport) record(method string, p device.PeripheralHandle, uuid string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := ""
	if p != nil {
		id = p.ID()
	}
	t.calls = append(t.calls, Call{Method: method, Peripheral: id, UUID: uuid})
	if err, ok := t.failures[method]; ok {
		delete(t.failures, method)
		return err
	}
	return nil
}

func (t *FakeTransport) peripheral(h device.PeripheralHandle) (*FakePeripheral, error) {
	p, ok := h.(*FakePeripheral)
	if !ok {
		return nil, fmt.Errorf("foreign peripheral handle %T", h)
	}
	return p, nil
}

func (t *FakeTransport) SetDelegate(events device.TransportEvents) {
	t.mu.Lock()
	t.events = events
	t.mu.Unlock()
	t.Emit(func(e device.TransportEvents) { e.RadioStateChanged(device.RadioPoweredOn) })
}

func (t *FakeTransport) Scan(filterUUIDs []string, _ bool) error {
	if err := t.record("Scan", nil, ""); err != nil {
		return err
	}
	t.mu.Lock()
	t.scanning = true
	t.scanFilter = slices.Clone(filterUUIDs)
	t.mu.Unlock()
	return nil
}

func (t *FakeTransport) StopScan() error {
	if err := t.record("StopScan", nil, ""); err != nil {
		return err
	}
	t.mu.Lock()
	t.scanning = false
	t.mu.Unlock()
	return nil
}

func (t *FakeTransport) Connect(h device.PeripheralHandle) error {
	if err := t.record("Connect", h, ""); err != nil {
		return err
	}
	p, err := t.peripheral(h)
	if err != nil {
		return err
	}
	switch {
	case p.HoldConnect:
		t.mu.Lock()
		t.held[p.id]++
		t.mu.Unlock()
	case p.ConnectErr != nil:
		cause := p.ConnectErr
		t.Emit(func(e device.TransportEvents) { e.DidFailToConnect(p, cause) })
	default:
		t.mu.Lock()
		t.connected[p.id] = true
		t.mu.Unlock()
		t.Emit(func(e device.TransportEvents) { e.DidConnect(p) })
	}
	return nil
}

func (t *FakeTransport) Disconnect(h device.PeripheralHandle) error {
	if err := t.record("Disconnect", h, ""); err != nil {
		return err
	}
	p, err := t.peripheral(h)
	if err != nil {
		return err
	}
	t.mu.Lock()
	cancelled := t.takeHeld(p.id)
	was := t.connected[p.id]
	delete(t.connected, p.id)
	t.mu.Unlock()
	switch {
	case cancelled:
		t.Emit(func(e device.TransportEvents) { e.DidFailToConnect(p, context.Canceled) })
	case was:
		t.Emit(func(e device.TransportEvents) { e.DidDisconnect(p, nil) })
	}
	return nil
}

// takeHeld consumes the oldest held attempt for id. Callers hold t.mu.
func (t *FakeTransport) takeHeld(id string) bool {
	n := t.held[id]
	if n == 0 {
		return false
	}
	if n == 1 {
		delete(t.held, id)
	} else {
		t.held[id] = n - 1
	}
	return true
}

func (t *FakeTransport) DiscoverServices(h device.PeripheralHandle, uuids []string) error {
	if err := t.record("DiscoverServices", h, ""); err != nil {
		return err
	}
	p, err := t.peripheral(h)
	if err != nil {
		return err
	}
	if p.ServicesErr != nil {
		cause := p.ServicesErr
		t.Emit(func(e device.TransportEvents) { e.DidDiscoverServices(p, nil, cause) })
		return nil
	}
	filter := device.NormalizeUUIDs(uuids)
	var handles []device.ServiceHandle
	for _, s := range p.Services {
		if len(filter) == 0 || slices.Contains(filter, device.NormalizeUUID(s.uuid)) {
			handles = append(handles, s)
		}
	}
	t.Emit(func(e device.TransportEvents) { e.DidDiscoverServices(p, handles, nil) })
	return nil
}

func (t *FakeTransport) DiscoverCharacteristics(h device.PeripheralHandle, sh device.ServiceHandle) error {
	if err := t.record("DiscoverCharacteristics", h, sh.UUID()); err != nil {
		return err
	}
	s, ok := sh.(*FakeService)
	if !ok {
		return fmt.Errorf("foreign service handle %T", sh)
	}
	if s.CharacteristicsErr != nil {
		cause := s.CharacteristicsErr
		t.Emit(func(e device.TransportEvents) { e.DidDiscoverCharacteristics(h, s, nil, cause) })
		return nil
	}
	handles := make([]device.CharacteristicHandle, 0, len(s.Characteristics))
	for _, c := range s.Characteristics {
		handles = append(handles, c)
	}
	t.Emit(func(e device.TransportEvents) { e.DidDiscoverCharacteristics(h, s, handles, nil) })
	return nil
}

func (t *FakeTransport) DiscoverDescriptors(h device.PeripheralHandle, ch device.CharacteristicHandle) error {
	if err := t.record("DiscoverDescriptors", h, ch.UUID()); err != nil {
		return err
	}
	c, ok := ch.(*FakeCharacteristic)
	if !ok {
		return fmt.Errorf("foreign characteristic handle %T", ch)
	}
	if c.DescriptorsErr != nil {
		cause := c.DescriptorsErr
		t.Emit(func(e device.TransportEvents) { e.DidDiscoverDescriptors(h, c, nil, cause) })
		return nil
	}
	handles := make([]device.DescriptorHandle, 0, len(c.Descriptors))
	for _, d := range c.Descriptors {
		handles = append(handles, d)
	}
	t.Emit(func(e device.TransportEvents) { e.DidDiscoverDescriptors(h, c, handles, nil) })
	return nil
}

func (t *FakeTransport) ReadValue(h device.PeripheralHandle, ch device.CharacteristicHandle) error {
	if err := t.record("ReadValue", h, ch.UUID()); err != nil {
		return err
	}
	c := ch.(*FakeCharacteristic)
	value, cause := slices.Clone(c.Value), c.ReadErr
	if cause != nil {
		value = nil
	}
	t.Emit(func(e device.TransportEvents) { e.DidUpdateValue(h, c, value, cause) })
	return nil
}

// WriteValue stores the payload. Writes without response produce no callback.
func (t *FakeTransport) WriteValue(h device.PeripheralHandle, ch device.CharacteristicHandle, data []byte, mode device.WriteMode) error {
	if err := t.record("WriteValue", h, ch.UUID()); err != nil {
		return err
	}
	c := ch.(*FakeCharacteristic)
	t.mu.Lock()
	c.Written = append(c.Written, slices.Clone(data))
	t.mu.Unlock()
	if mode == device.WriteWithoutResponse && c.WriteErr == nil {
		return nil
	}
	cause := c.WriteErr
	t.Emit(func(e device.TransportEvents) { e.DidWriteValue(h, c, cause) })
	return nil
}

func (t *FakeTransport) SetNotify(h device.PeripheralHandle, ch device.CharacteristicHandle, enabled bool) error {
	if err := t.record("SetNotify", h, ch.UUID()); err != nil {
		return err
	}
	t.Emit(func(e device.TransportEvents) { e.DidUpdateNotificationState(h, ch, enabled, nil) })
	return nil
}

func (t *FakeTransport) ReadDescriptorValue(h device.PeripheralHandle, dh device.DescriptorHandle) error {
	if err := t.record("ReadDescriptorValue", h, dh.UUID()); err != nil {
		return err
	}
	d := dh.(*FakeDescriptor)
	value := slices.Clone(d.Value)
	t.Emit(func(e device.TransportEvents) { e.DidUpdateDescriptorValue(h, d, value, nil) })
	return nil
}

func (t *FakeTransport) WriteDescriptorValue(h device.PeripheralHandle, dh device.DescriptorHandle, data []byte) error {
	if err := t.record("WriteDescriptorValue", h, dh.UUID()); err != nil {
		return err
	}
	d := dh.(*FakeDescriptor)
	t.mu.Lock()
	d.Written = append(d.Written, slices.Clone(data))
	t.mu.Unlock()
	t.Emit(func(e device.TransportEvents) { e.DidWriteDescriptorValue(h, d, nil) })
	return nil
}

func (t *FakeTransport) ReadSignalStrength(h device.PeripheralHandle) error {
	if err := t.record("ReadSignalStrength", h, ""); err != nil {
		return err
	}
	p, err := t.peripheral(h)
	if err != nil {
		return err
	}
	rssi := p.RSSI
	t.Emit(func(e device.TransportEvents) { e.DidReadRSSI(h, rssi, nil) })
	return nil
}
