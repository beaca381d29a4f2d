package goble

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/gattcache/internal/device"
	"github.com/srg/gattcache/internal/dispatch"
	"github.com/srg/gattcache/internal/groutine"
)

// Central is the part of a BLE adapter the transport needs.
type Central interface {
	Scan(ctx context.Context, allowDup bool, h func(ble.Advertisement)) error
	Dial(ctx context.Context, addr string) (GATTClient, error)
}

// GATTClient is the part of ble.Client the transport needs.
type GATTClient interface {
	DiscoverServices(filter []ble.UUID) ([]*ble.Service, error)
	DiscoverCharacteristics(filter []ble.UUID, s *ble.Service) ([]*ble.Characteristic, error)
	DiscoverDescriptors(filter []ble.UUID, c *ble.Characteristic) ([]*ble.Descriptor, error)
	ReadCharacteristic(c *ble.Characteristic) ([]byte, error)
	WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error
	ReadDescriptor(d *ble.Descriptor) ([]byte, error)
	WriteDescriptor(d *ble.Descriptor, value []byte) error
	ReadRSSI() int
	Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error
	Unsubscribe(c *ble.Characteristic, ind bool) error
	CancelConnection() error
	Disconnected() <-chan struct{}
}

// deviceCentral adapts a ble.Device.
type deviceCentral struct {
	dev ble.Device
}

func (c *deviceCentral) Scan(ctx context.Context, allowDup bool, h func(ble.Advertisement)) error {
	return c.dev.Scan(ctx, allowDup, h)
}

func (c *deviceCentral) Dial(ctx context.Context, addr string) (GATTClient, error) {
	return c.dev.Dial(ctx, ble.NewAddr(addr))
}

// link is the per-peripheral connection state. Requests for one peripheral run in
// order on its queue.
type link struct {
	handle *peripheralHandle
	cancel context.CancelFunc
	queue  *dispatch.Queue

	// done is closed once the link has reported its last event: the failed connect
	// outcome, or the disconnection of an established link.
	done chan struct{}

	mu        sync.Mutex
	client    GATTClient
	requested bool
}

func (l *link) getClient() GATTClient {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.client
}

// Transport drives go-ble on behalf of the device registry. Every request returns
// immediately; its outcome is reported to the installed device.TransportEvents.
type Transport struct {
	central Central
	logger  *logrus.Logger

	mu         sync.Mutex
	events     device.TransportEvents
	scanCancel context.CancelFunc

	handles *hashmap.Map[string, *peripheralHandle]
	links   *hashmap.Map[string, *link]
	// attempts keeps the latest link per address, released or not, so that a new
	// attempt can wait for the previous one to finish reporting.
	attempts *hashmap.Map[string, *link]
}

var _ device.Transport = (*Transport)(nil)

// NewTransport opens the platform BLE adapter through DeviceFactory.
func NewTransport(logger *logrus.Logger) (*Transport, error) {
	dev, err := DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", NormalizeError(err))
	}
	return NewTransportWith(&deviceCentral{dev: dev}, logger), nil
}

// NewTransportWith builds a transport over an existing central.
func NewTransportWith(central Central, logger *logrus.Logger) *Transport {
	if logger == nil {
		logger = logrus.New()
	}
	return &Transport{
		central: central,
		logger:  logger,
		handles:  hashmap.New[string, *peripheralHandle](),
		links:    hashmap.New[string, *link](),
		attempts: hashmap.New[string, *link](),
	}
}

// SetDelegate installs the event sink. The adapter is open by the time a
// Transport exists, so the sink is told the radio is powered on.
func (t *Transport) SetDelegate(events device.TransportEvents) {
	t.mu.Lock()
	t.events = events
	t.mu.Unlock()
	if events != nil {
		events.RadioStateChanged(device.RadioPoweredOn)
	}
}

func (t *Transport) sink() device.TransportEvents {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.events
}

// Close stops scanning and drops every link.
func (t *Transport) Close() {
	_ = t.StopScan()
	t.links.Range(func(id string, l *link) bool {
		t.dropLink(id, l)
		if c := l.getClient(); c != nil {
			_ = c.CancelConnection()
		}
		return true
	})
}

func (t *Transport) handleFor(addr string) *peripheralHandle {
	h, _ := t.handles.GetOrInsert(addr, &peripheralHandle{addr: addr})
	return h
}

// ---------------------------------------------------------------------------
// Scanning
// ---------------------------------------------------------------------------

// Scan starts a background scan. A non-empty filter keeps only advertisements
// that list at least one of the given services.
func (t *Transport) Scan(filterUUIDs []string, allowDuplicates bool) error {
	filter := device.NormalizeUUIDs(filterUUIDs)

	t.mu.Lock()
	if t.scanCancel != nil {
		t.mu.Unlock()
		return fmt.Errorf("scan already in progress")
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.scanCancel = cancel
	t.mu.Unlock()

	groutine.GoSafe(ctx, "ble-scan", t.logger, func(ctx context.Context) {
		err := t.central.Scan(ctx, allowDuplicates, func(adv ble.Advertisement) {
			t.onAdvertisement(adv, filter)
		})
		t.mu.Lock()
		t.scanCancel = nil
		t.mu.Unlock()
		cancel()

		if err == nil || errors.Is(err, context.Canceled) {
			t.logger.Debug("Scan finished")
			return
		}
		err = NormalizeError(err)
		t.logger.WithField("error", err).Error("Scan failed")
		if errors.Is(err, ErrBluetoothOff) {
			if events := t.sink(); events != nil {
				events.RadioStateChanged(device.RadioPoweredOff)
			}
		}
	})
	return nil
}

func (t *Transport) onAdvertisement(adv ble.Advertisement, filter []string) {
	converted := ConvertAdvertisement(adv)
	if len(filter) > 0 && !advertisesAny(converted.Services, filter) {
		return
	}
	events := t.sink()
	if events == nil {
		return
	}
	events.DidDiscover(t.handleFor(adv.Addr().String()), converted, adv.RSSI())
}

func advertisesAny(services, filter []string) bool {
	for _, s := range services {
		for _, f := range filter {
			if s == f {
				return true
			}
		}
	}
	return false
}

// StopScan cancels the running scan, if any.
func (t *Transport) StopScan() error {
	t.mu.Lock()
	cancel := t.scanCancel
	t.scanCancel = nil
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// ---------------------------------------------------------------------------
// Connection
// ---------------------------------------------------------------------------

// Connect dials the peripheral in the background. The attempt lasts until it
// succeeds, fails or is cancelled by Disconnect, and is answered exactly once.
// Answers for one peripheral are reported in the order the attempts were made.
func (t *Transport) Connect(p device.PeripheralHandle) error {
	h, err := asPeripheral(p)
	if err != nil {
		return err
	}
	if cur, ok := t.links.Get(h.addr); ok {
		if cur.getClient() == nil {
			return device.ErrConnecting
		}
		return device.ErrAlreadyConnected
	}

	prev, _ := t.attempts.Get(h.addr)
	ctx, cancel := context.WithCancel(context.Background())
	l := &link{
		handle: h,
		cancel: cancel,
		queue:  dispatch.NewQueue(ctx, "ble-link-"+h.addr, 0, t.logger),
		done:   make(chan struct{}),
	}
	t.links.Set(h.addr, l)
	t.attempts.Set(h.addr, l)

	groutine.GoSafe(ctx, "ble-dial-"+h.addr, t.logger, func(ctx context.Context) {
		if prev != nil {
			<-prev.done
		}
		t.dial(ctx, l)
	})
	return nil
}

func (t *Transport) dial(ctx context.Context, l *link) {
	h := l.handle
	t.logger.WithField("address", h.addr).Debug("Dialing BLE device...")
	client, err := t.central.Dial(ctx, h.addr)
	if err != nil {
		t.failDial(l, NormalizeError(err))
		return
	}

	l.mu.Lock()
	if l.requested || ctx.Err() != nil {
		l.mu.Unlock()
		// Disconnect arrived while the dial was completing.
		if err := client.CancelConnection(); err != nil {
			t.logger.WithFields(logrus.Fields{
				"address": h.addr,
				"error":   err,
			}).Warn("Failed to cancel connection")
		}
		t.failDial(l, context.Canceled)
		return
	}
	l.client = client
	l.mu.Unlock()

	if events := t.sink(); events != nil {
		events.DidConnect(h)
	}
	t.monitor(l, client)
}

func (t *Transport) failDial(l *link, err error) {
	t.dropLink(l.handle.addr, l)
	if events := t.sink(); events != nil {
		events.DidFailToConnect(l.handle, err)
	}
	close(l.done)
}

// monitor reports the end of the link once go-ble closes Disconnected().
func (t *Transport) monitor(l *link, client GATTClient) {
	groutine.GoSafe(context.Background(), "ble-connection-monitor", t.logger, func(context.Context) {
		defer close(l.done)
		<-client.Disconnected()

		l.mu.Lock()
		requested := l.requested
		l.mu.Unlock()
		t.dropLink(l.handle.addr, l)

		var err error
		if !requested {
			err = device.ErrNotConnected
			t.logger.WithField("address", l.handle.addr).Warn("Peripheral reported disconnection")
		}
		if events := t.sink(); events != nil {
			events.DidDisconnect(l.handle, err)
		}
	})
}

func (t *Transport) dropLink(addr string, l *link) {
	if cur, ok := t.links.Get(addr); ok && cur == l {
		t.links.Del(addr)
	}
	l.queue.Close()
	l.cancel()
}

// Disconnect tears the link down. A pending dial is cancelled and answered with
// DidFailToConnect; an established link is closed and reported through DidDisconnect.
func (t *Transport) Disconnect(p device.PeripheralHandle) error {
	h, err := asPeripheral(p)
	if err != nil {
		return err
	}
	l, ok := t.links.Get(h.addr)
	if !ok {
		return device.ErrNotConnected
	}

	l.mu.Lock()
	client := l.client
	l.requested = true
	l.mu.Unlock()

	if client == nil {
		t.dropLink(h.addr, l)
		return nil
	}
	groutine.GoSafe(context.Background(), "ble-disconnect-"+h.addr, t.logger, func(context.Context) {
		if err := client.CancelConnection(); err != nil {
			t.logger.WithFields(logrus.Fields{
				"address": h.addr,
				"error":   err,
			}).Warn("Failed to cancel connection")
		}
	})
	return nil
}

// request runs fn on the peripheral's queue with its connected client.
func (t *Transport) request(p device.PeripheralHandle, name string, fn func(c GATTClient, events device.TransportEvents)) error {
	h, err := asPeripheral(p)
	if err != nil {
		return err
	}
	l, ok := t.links.Get(h.addr)
	if !ok {
		return device.ErrNotConnected
	}
	client := l.getClient()
	if client == nil {
		return device.ErrNotConnected
	}
	if !l.queue.Post(func() {
		events := t.sink()
		if events == nil {
			return
		}
		fn(client, events)
	}) {
		return device.ErrNotConnected
	}
	t.logger.WithFields(logrus.Fields{
		"address": h.addr,
		"request": name,
	}).Trace("Request queued")
	return nil
}

// ---------------------------------------------------------------------------
// Discovery
// ---------------------------------------------------------------------------

func (t *Transport) DiscoverServices(p device.PeripheralHandle, uuids []string) error {
	filter, err := parseUUIDs(uuids)
	if err != nil {
		return err
	}
	return t.request(p, "discover-services", func(c GATTClient, events device.TransportEvents) {
		svcs, err := c.DiscoverServices(filter)
		if err != nil {
			events.DidDiscoverServices(p, nil, NormalizeError(err))
			return
		}
		handles := make([]device.ServiceHandle, 0, len(svcs))
		for _, s := range svcs {
			handles = append(handles, newServiceHandle(s))
		}
		events.DidDiscoverServices(p, handles, nil)
	})
}

func (t *Transport) DiscoverCharacteristics(p device.PeripheralHandle, s device.ServiceHandle) error {
	sh, ok := s.(*serviceHandle)
	if !ok {
		return fmt.Errorf("foreign service handle %T", s)
	}
	return t.request(p, "discover-characteristics", func(c GATTClient, events device.TransportEvents) {
		chars, err := c.DiscoverCharacteristics(nil, sh.svc)
		if err != nil {
			events.DidDiscoverCharacteristics(p, s, nil, NormalizeError(err))
			return
		}
		handles := make([]device.CharacteristicHandle, 0, len(chars))
		for _, ch := range chars {
			handles = append(handles, newCharacteristicHandle(ch))
		}
		events.DidDiscoverCharacteristics(p, s, handles, nil)
	})
}

func (t *Transport) DiscoverDescriptors(p device.PeripheralHandle, ch device.CharacteristicHandle) error {
	h, ok := ch.(*characteristicHandle)
	if !ok {
		return fmt.Errorf("foreign characteristic handle %T", ch)
	}
	return t.request(p, "discover-descriptors", func(c GATTClient, events device.TransportEvents) {
		descs, err := c.DiscoverDescriptors(nil, h.char)
		if err != nil {
			events.DidDiscoverDescriptors(p, ch, nil, NormalizeError(err))
			return
		}
		handles := make([]device.DescriptorHandle, 0, len(descs))
		for _, d := range descs {
			handles = append(handles, newDescriptorHandle(d))
		}
		events.DidDiscoverDescriptors(p, ch, handles, nil)
	})
}

// ---------------------------------------------------------------------------
// Values
// ---------------------------------------------------------------------------

func (t *Transport) ReadValue(p device.PeripheralHandle, ch device.CharacteristicHandle) error {
	h, ok := ch.(*characteristicHandle)
	if !ok {
		return fmt.Errorf("foreign characteristic handle %T", ch)
	}
	return t.request(p, "read", func(c GATTClient, events device.TransportEvents) {
		data, err := c.ReadCharacteristic(h.char)
		events.DidUpdateValue(p, ch, data, NormalizeError(err))
	})
}

// WriteValue writes a characteristic. Writes without response only report failures.
func (t *Transport) WriteValue(p device.PeripheralHandle, ch device.CharacteristicHandle, data []byte, mode device.WriteMode) error {
	h, ok := ch.(*characteristicHandle)
	if !ok {
		return fmt.Errorf("foreign characteristic handle %T", ch)
	}
	noRsp := mode == device.WriteWithoutResponse
	return t.request(p, "write", func(c GATTClient, events device.TransportEvents) {
		err := NormalizeError(c.WriteCharacteristic(h.char, data, noRsp))
		if noRsp && err == nil {
			return
		}
		events.DidWriteValue(p, ch, err)
	})
}

// SetNotify subscribes with notifications when the characteristic supports them,
// otherwise with indications.
func (t *Transport) SetNotify(p device.PeripheralHandle, ch device.CharacteristicHandle, enabled bool) error {
	h, ok := ch.(*characteristicHandle)
	if !ok {
		return fmt.Errorf("foreign characteristic handle %T", ch)
	}
	ind := !h.props.Has(device.PropertyNotify) && h.props.Has(device.PropertyIndicate)
	return t.request(p, "set-notify", func(c GATTClient, events device.TransportEvents) {
		var err error
		if enabled {
			err = c.Subscribe(h.char, ind, func(data []byte) {
				if events := t.sink(); events != nil {
					events.DidUpdateValue(p, ch, data, nil)
				}
			})
		} else {
			err = c.Unsubscribe(h.char, ind)
		}
		events.DidUpdateNotificationState(p, ch, enabled, NormalizeError(err))
	})
}

func (t *Transport) ReadDescriptorValue(p device.PeripheralHandle, d device.DescriptorHandle) error {
	h, ok := d.(*descriptorHandle)
	if !ok {
		return fmt.Errorf("foreign descriptor handle %T", d)
	}
	return t.request(p, "read-descriptor", func(c GATTClient, events device.TransportEvents) {
		data, err := c.ReadDescriptor(h.desc)
		events.DidUpdateDescriptorValue(p, d, data, NormalizeError(err))
	})
}

func (t *Transport) WriteDescriptorValue(p device.PeripheralHandle, d device.DescriptorHandle, data []byte) error {
	h, ok := d.(*descriptorHandle)
	if !ok {
		return fmt.Errorf("foreign descriptor handle %T", d)
	}
	return t.request(p, "write-descriptor", func(c GATTClient, events device.TransportEvents) {
		events.DidWriteDescriptorValue(p, d, NormalizeError(c.WriteDescriptor(h.desc, data)))
	})
}

func (t *Transport) ReadSignalStrength(p device.PeripheralHandle) error {
	return t.request(p, "read-rssi", func(c GATTClient, events device.TransportEvents) {
		events.DidReadRSSI(p, c.ReadRSSI(), nil)
	})
}

func parseUUIDs(uuids []string) ([]ble.UUID, error) {
	if len(uuids) == 0 {
		return nil, nil
	}
	out := make([]ble.UUID, 0, len(uuids))
	for _, s := range uuids {
		u, err := ble.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid UUID %q: %w", s, err)
		}
		out = append(out, u)
	}
	return out, nil
}
