package testutils

import (
	"sync"

	"github.com/srg/gattcache/internal/device"
)

type EventKind string

const (
	EventError                 EventKind = "error"
	EventRecalculate           EventKind = "recalculate"
	EventRadioAvailable        EventKind = "radio-available"
	EventConnected             EventKind = "connected"
	EventWillDisconnect        EventKind = "will-disconnect"
	EventDeviceChanged         EventKind = "device-changed"
	EventServiceChanged        EventKind = "service-changed"
	EventCharacteristicChanged EventKind = "characteristic-changed"
	EventNotifyStateChanged    EventKind = "notify-state-changed"
	EventDescriptorChanged     EventKind = "descriptor-changed"
	EventWriteComplete         EventKind = "write-complete"
)

// Event is one delegate callback as seen by RecordingDelegate.
type Event struct {
	Kind           EventKind
	Peripheral     *device.Peripheral
	Service        device.ServiceNode
	Characteristic device.CharacteristicNode
	Descriptor     device.DescriptorNode
	Err            error
}

// RecordingDelegate stores every callback in arrival order.
type RecordingDelegate struct {
	mu     sync.Mutex
	events []Event

	// Hook, when set, runs after each event is recorded.
	Hook func(Event)
}

var _ device.Delegate = (*RecordingDelegate)(nil)

func NewRecordingDelegate() *RecordingDelegate {
	return &RecordingDelegate{}
}

func (d *RecordingDelegate) record(e Event) {
	d.mu.Lock()
	d.events = append(d.events, e)
	hook := d.Hook
	d.mu.Unlock()
	if hook != nil {
		hook(e)
	}
}

func (d *RecordingDelegate) Events() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Event(nil), d.events...)
}

// Kinds lists the recorded event kinds, skipping recalculate notifications.
func (d *RecordingDelegate) Kinds() []EventKind {
	var out []EventKind
	for _, e := range d.Events() {
		if e.Kind != EventRecalculate {
			out = append(out, e.Kind)
		}
	}
	return out
}

func (d *RecordingDelegate) Errors() []error {
	var out []error
	for _, e := range d.Events() {
		if e.Kind == EventError {
			out = append(out, e.Err)
		}
	}
	return out
}

func (d *RecordingDelegate) Count(kind EventKind) int {
	n := 0
	for _, e := range d.Events() {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Last returns the most recent event of kind.
func (d *RecordingDelegate) Last(kind EventKind) (Event, bool) {
	events := d.Events()
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Kind == kind {
			return events[i], true
		}
	}
	return Event{}, false
}

func (d *RecordingDelegate) Reset() {
	d.mu.Lock()
	d.events = nil
	d.mu.Unlock()
}

func (d *RecordingDelegate) OnError(err error) {
	d.record(Event{Kind: EventError, Err: err})
}

func (d *RecordingDelegate) OnRecalculate() {
	d.record(Event{Kind: EventRecalculate})
}

func (d *RecordingDelegate) OnRadioAvailable() {
	d.record(Event{Kind: EventRadioAvailable})
}

func (d *RecordingDelegate) OnConnected(p *device.Peripheral) {
	d.record(Event{Kind: EventConnected, Peripheral: p})
}

func (d *RecordingDelegate) OnWillDisconnect(p *device.Peripheral) {
	d.record(Event{Kind: EventWillDisconnect, Peripheral: p})
}

func (d *RecordingDelegate) OnDeviceChanged(p *device.Peripheral) {
	d.record(Event{Kind: EventDeviceChanged, Peripheral: p})
}

func (d *RecordingDelegate) OnServiceChanged(p *device.Peripheral, s device.ServiceNode) {
	d.record(Event{Kind: EventServiceChanged, Peripheral: p, Service: s})
}

func (d *RecordingDelegate) OnCharacteristicChanged(p *device.Peripheral, s device.ServiceNode, c device.CharacteristicNode) {
	d.record(Event{Kind: EventCharacteristicChanged, Peripheral: p, Service: s, Characteristic: c})
}

func (d *RecordingDelegate) OnCharacteristicNotifyStateChanged(p *device.Peripheral, s device.ServiceNode, c device.CharacteristicNode) {
	d.record(Event{Kind: EventNotifyStateChanged, Peripheral: p, Service: s, Characteristic: c})
}

func (d *RecordingDelegate) OnDescriptorChanged(p *device.Peripheral, s device.ServiceNode, c device.CharacteristicNode, desc device.DescriptorNode) {
	d.record(Event{Kind: EventDescriptorChanged, Peripheral: p, Service: s, Characteristic: c, Descriptor: desc})
}

func (d *RecordingDelegate) OnCharacteristicWriteComplete(p *device.Peripheral, s device.ServiceNode, c device.CharacteristicNode) {
	d.record(Event{Kind: EventWriteComplete, Peripheral: p, Service: s, Characteristic: c})
}
