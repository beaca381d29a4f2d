package goble

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-ble/ble"
	"github.com/srg/gattcache/internal/device"
	"github.com/stretchr/testify/mock"
)

// MockCentral implements Central for testing
type MockCentral struct {
	mock.Mock
}

func (m *MockCentral) Scan(ctx context.Context, allowDup bool, h func(ble.Advertisement)) error {
	args := m.Called(ctx, allowDup, h)
	return args.Error(0)
}

func (m *MockCentral) Dial(ctx context.Context, addr string) (GATTClient, error) {
	args := m.Called(ctx, addr)
	client, _ := args.Get(0).(GATTClient)
	return client, args.Error(1)
}

// MockGATTClient implements GATTClient for testing
type MockGATTClient struct {
	mock.Mock
	disconnected chan struct{}
	drop         sync.Once
}

func NewMockGATTClient() *MockGATTClient {
	return &MockGATTClient{disconnected: make(chan struct{})}
}

// Drop closes the Disconnected channel as go-ble does when the link ends.
func (m *MockGATTClient) Drop() {
	m.drop.Do(func() { close(m.disconnected) })
}

func (m *MockGATTClient) DiscoverServices(filter []ble.UUID) ([]*ble.Service, error) {
	args := m.Called(filter)
	svcs, _ := args.Get(0).([]*ble.Service)
	return svcs, args.Error(1)
}

func (m *MockGATTClient) DiscoverCharacteristics(filter []ble.UUID, s *ble.Service) ([]*ble.Characteristic, error) {
	args := m.Called(filter, s)
	chars, _ := args.Get(0).([]*ble.Characteristic)
	return chars, args.Error(1)
}

func (m *MockGATTClient) DiscoverDescriptors(filter []ble.UUID, c *ble.Characteristic) ([]*ble.Descriptor, error) {
	args := m.Called(filter, c)
	descs, _ := args.Get(0).([]*ble.Descriptor)
	return descs, args.Error(1)
}

func (m *MockGATTClient) ReadCharacteristic(c *ble.Characteristic) ([]byte, error) {
	args := m.Called(c)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (m *MockGATTClient) WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error {
	args := m.Called(c, value, noRsp)
	return args.Error(0)
}

func (m *MockGATTClient) ReadDescriptor(d *ble.Descriptor) ([]byte, error) {
	args := m.Called(d)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (m *MockGATTClient) WriteDescriptor(d *ble.Descriptor, value []byte) error {
	args := m.Called(d, value)
	return args.Error(0)
}

func (m *MockGATTClient) ReadRSSI() int {
	args := m.Called()
	return args.Int(0)
}

func (m *MockGATTClient) Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
	args := m.Called(c, ind, h)
	return args.Error(0)
}

func (m *MockGATTClient) Unsubscribe(c *ble.Characteristic, ind bool) error {
	args := m.Called(c, ind)
	return args.Error(0)
}

func (m *MockGATTClient) CancelConnection() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockGATTClient) Disconnected() <-chan struct{} {
	return m.disconnected
}

// sinkEvent is one TransportEvents callback.
type sinkEvent struct {
	Name        string
	Peripheral  device.PeripheralHandle
	Advertising device.Advertisement
	Services    []device.ServiceHandle
	Chars       []device.CharacteristicHandle
	Descs       []device.DescriptorHandle
	Data        []byte
	Int         int
	Enabled     bool
	Err         error
}

// eventSink implements device.TransportEvents over a channel.
type eventSink struct {
	ch chan sinkEvent
}

var _ device.TransportEvents = (*eventSink)(nil)

func newEventSink() *eventSink {
	return &eventSink{ch: make(chan sinkEvent, 64)}
}

// next waits for the next callback.
func (s *eventSink) next(t testing.TB) sinkEvent {
	t.Helper()
	select {
	case e := <-s.ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no transport event within 2s")
		return sinkEvent{}
	}
}

// none asserts that nothing arrives within a short grace period.
func (s *eventSink) none(t testing.TB) {
	t.Helper()
	select {
	case e := <-s.ch:
		t.Fatalf("unexpected transport event %q", e.Name)
	case <-time.After(50 * time.Millisecond):
	}
}

func (s *eventSink) RadioStateChanged(state device.RadioState) {
	s.ch <- sinkEvent{Name: "RadioStateChanged", Int: int(state)}
}

func (s *eventSink) DidDiscover(p device.PeripheralHandle, adv device.Advertisement, rssi int) {
	s.ch <- sinkEvent{Name: "DidDiscover", Peripheral: p, Advertising: adv, Int: rssi}
}

func (s *eventSink) DidConnect(p device.PeripheralHandle) {
	s.ch <- sinkEvent{Name: "DidConnect", Peripheral: p}
}

func (s *eventSink) DidFailToConnect(p device.PeripheralHandle, err error) {
	s.ch <- sinkEvent{Name: "DidFailToConnect", Peripheral: p, Err: err}
}

func (s *eventSink) DidDisconnect(p device.PeripheralHandle, err error) {
	s.ch <- sinkEvent{Name: "DidDisconnect", Peripheral: p, Err: err}
}

func (s *eventSink) DidDiscoverServices(p device.PeripheralHandle, services []device.ServiceHandle, err error) {
	s.ch <- sinkEvent{Name: "DidDiscoverServices", Peripheral: p, Services: services, Err: err}
}

func (s *eventSink) DidModifyServices(p device.PeripheralHandle, invalidated []device.ServiceHandle) {
	s.ch <- sinkEvent{Name: "DidModifyServices", Peripheral: p, Services: invalidated}
}

func (s *eventSink) DidDiscoverCharacteristics(p device.PeripheralHandle, _ device.ServiceHandle, chars []device.CharacteristicHandle, err error) {
	s.ch <- sinkEvent{Name: "DidDiscoverCharacteristics", Peripheral: p, Chars: chars, Err: err}
}

func (s *eventSink) DidDiscoverDescriptors(p device.PeripheralHandle, _ device.CharacteristicHandle, descs []device.DescriptorHandle, err error) {
	s.ch <- sinkEvent{Name: "DidDiscoverDescriptors", Peripheral: p, Descs: descs, Err: err}
}

func (s *eventSink) DidUpdateValue(p device.PeripheralHandle, _ device.CharacteristicHandle, data []byte, err error) {
	s.ch <- sinkEvent{Name: "DidUpdateValue", Peripheral: p, Data: data, Err: err}
}

func (s *eventSink) DidWriteValue(p device.PeripheralHandle, _ device.CharacteristicHandle, err error) {
	s.ch <- sinkEvent{Name: "DidWriteValue", Peripheral: p, Err: err}
}

func (s *eventSink) DidUpdateNotificationState(p device.PeripheralHandle, _ device.CharacteristicHandle, enabled bool, err error) {
	s.ch <- sinkEvent{Name: "DidUpdateNotificationState", Peripheral: p, Enabled: enabled, Err: err}
}

func (s *eventSink) DidUpdateDescriptorValue(p device.PeripheralHandle, _ device.DescriptorHandle, data []byte, err error) {
	s.ch <- sinkEvent{Name: "DidUpdateDescriptorValue", Peripheral: p, Data: data, Err: err}
}

func (s *eventSink) DidWriteDescriptorValue(p device.PeripheralHandle, _ device.DescriptorHandle, err error) {
	s.ch <- sinkEvent{Name: "DidWriteDescriptorValue", Peripheral: p, Err: err}
}

func (s *eventSink) DidReadRSSI(p device.PeripheralHandle, rssi int, err error) {
	s.ch <- sinkEvent{Name: "DidReadRSSI", Peripheral: p, Int: rssi, Err: err}
}
