package device

import (
	"github.com/sirupsen/logrus"
)

// transportEvents receives transport callbacks on whatever goroutine the transport
// uses and re-posts each of them onto the registry's owner executor, where the
// target node is resolved from its handle.
type transportEvents struct {
	r *Registry
}

var _ TransportEvents = (*transportEvents)(nil)

func (t *transportEvents) post(event string, fn func()) {
	if !t.r.owner.Post(fn) {
		t.r.logger.WithField("event", event).Debug("Dropping transport event after close")
	}
}

// onPeripheral runs fn with the live peripheral for h, dropping the event when the
// endpoint is unknown or not connected.
func (t *transportEvents) onPeripheral(event string, h PeripheralHandle, fn func(p *Peripheral)) {
	t.post(event, func() {
		p := t.r.peripheralFor(h)
		if p == nil || !p.Attached() {
			t.stale(event, h.ID(), "peripheral")
			return
		}
		fn(p)
	})
}

func (t *transportEvents) onService(event string, h PeripheralHandle, sh ServiceHandle, fn func(s *Service)) {
	t.onPeripheral(event, h, func(p *Peripheral) {
		s := p.serviceByHandle(sh)
		if s == nil {
			t.stale(event, h.ID(), "service")
			return
		}
		fn(s)
	})
}

func (t *transportEvents) onCharacteristic(event string, h PeripheralHandle, ch CharacteristicHandle, fn func(c *Characteristic)) {
	t.onPeripheral(event, h, func(p *Peripheral) {
		c := p.characteristicByHandle(ch)
		if c == nil {
			t.stale(event, h.ID(), "characteristic")
			return
		}
		fn(c)
	})
}

func (t *transportEvents) onDescriptor(event string, h PeripheralHandle, dh DescriptorHandle, fn func(d *Descriptor)) {
	t.onPeripheral(event, h, func(p *Peripheral) {
		d := p.descriptorByHandle(dh)
		if d == nil {
			t.stale(event, h.ID(), "descriptor")
			return
		}
		fn(d)
	})
}

func (t *transportEvents) stale(event, id, level string) {
	t.r.logger.WithFields(logrus.Fields{
		"event": event,
		"id":    id,
		"level": level,
	}).Debug("Dropping event for unknown node")
}

func (t *transportEvents) RadioStateChanged(state RadioState) {
	t.post("radio", func() { t.r.radioStateChanged(state) })
}

func (t *transportEvents) DidDiscover(h PeripheralHandle, adv Advertisement, rssi int) {
	adv = adv.Clone()
	t.post("discover", func() { t.r.didDiscover(h, adv, rssi) })
}

func (t *transportEvents) DidConnect(h PeripheralHandle) {
	t.post("connect", func() { t.r.didConnect(h) })
}

func (t *transportEvents) DidFailToConnect(h PeripheralHandle, err error) {
	t.post("connect-failed", func() { t.r.didFailToConnect(h, err) })
}

func (t *transportEvents) DidDisconnect(h PeripheralHandle, err error) {
	t.post("disconnect", func() { t.r.didDisconnect(h, err) })
}

func (t *transportEvents) DidDiscoverServices(h PeripheralHandle, services []ServiceHandle, err error) {
	t.onPeripheral("services", h, func(p *Peripheral) { p.didDiscoverServices(services, err) })
}

func (t *transportEvents) DidModifyServices(h PeripheralHandle, invalidated []ServiceHandle) {
	t.onPeripheral("services-modified", h, func(p *Peripheral) { p.didModifyServices(invalidated) })
}

func (t *transportEvents) DidDiscoverCharacteristics(h PeripheralHandle, sh ServiceHandle, chars []CharacteristicHandle, err error) {
	t.onService("characteristics", h, sh, func(s *Service) { s.didDiscoverCharacteristics(chars, err) })
}

func (t *transportEvents) DidDiscoverDescriptors(h PeripheralHandle, ch CharacteristicHandle, descs []DescriptorHandle, err error) {
	t.onCharacteristic("descriptors", h, ch, func(c *Characteristic) {
		c.service.didDiscoverDescriptors(c, descs, err)
	})
}

func (t *transportEvents) DidUpdateValue(h PeripheralHandle, ch CharacteristicHandle, data []byte, err error) {
	data = append([]byte(nil), data...)
	t.onCharacteristic("value", h, ch, func(c *Characteristic) { c.didUpdateValue(data, err) })
}

func (t *transportEvents) DidWriteValue(h PeripheralHandle, ch CharacteristicHandle, err error) {
	t.onCharacteristic("write", h, ch, func(c *Characteristic) { c.didWriteValue(err) })
}

func (t *transportEvents) DidUpdateNotificationState(h PeripheralHandle, ch CharacteristicHandle, enabled bool, err error) {
	t.onCharacteristic("notify-state", h, ch, func(c *Characteristic) { c.didUpdateNotificationState(enabled, err) })
}

func (t *transportEvents) DidUpdateDescriptorValue(h PeripheralHandle, dh DescriptorHandle, data []byte, err error) {
	data = append([]byte(nil), data...)
	t.onDescriptor("descriptor-value", h, dh, func(d *Descriptor) { d.didUpdateValue(data, err) })
}

func (t *transportEvents) DidWriteDescriptorValue(h PeripheralHandle, dh DescriptorHandle, err error) {
	t.onDescriptor("descriptor-write", h, dh, func(d *Descriptor) { d.didWriteValue(err) })
}

func (t *transportEvents) DidReadRSSI(h PeripheralHandle, rssi int, err error) {
	t.post("rssi", func() { t.r.didReadRSSI(h, rssi, err) })
}
