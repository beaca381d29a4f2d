package device

import (
	"slices"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/gattcache/internal/dispatch"
)

// PeripheralState tracks the discovery cascade of a connected endpoint.
type PeripheralState int

const (
	StateIdle PeripheralState = iota
	StateDiscoveringServices
	StateDiscoveringCharacteristics
	StateCommitted
)

func (s PeripheralState) String() string {
	switch s {
	case StateDiscoveringServices:
		return "discovering-services"
	case StateDiscoveringCharacteristics:
		return "discovering-characteristics"
	case StateCommitted:
		return "committed"
	default:
		return "idle"
	}
}

// Peripheral is the cache of one connected endpoint. Services are staged while
// their characteristic cascades run and are committed together once every staged
// service has completed.
type Peripheral struct {
	record               *Record
	registry             *Registry
	handle               PeripheralHandle
	serviceFilter        []string
	characteristicFilter []string

	mu         sync.RWMutex
	state      PeripheralState
	staged     []ServiceNode
	committed  []ServiceNode
	registered bool
	detached   bool
}

func newPeripheral(r *Registry, rec *Record) *Peripheral {
	return &Peripheral{
		record:               rec,
		registry:             r,
		handle:               rec.handle,
		serviceFilter:        NormalizeUUIDs(r.policy.ServiceUUIDs),
		characteristicFilter: NormalizeUUIDs(r.policy.CharacteristicUUIDs),
	}
}

func (p *Peripheral) ID() string { return p.handle.ID() }
func (p *Peripheral) Handle() PeripheralHandle { return p.handle }
func (p *Peripheral) Record() *Record { return p.record }
func (p *Peripheral) Name() string { return p.record.Name() }

func (p *Peripheral) State() PeripheralState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Services returns the committed services.
func (p *Peripheral) Services() []ServiceNode {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]ServiceNode(nil), p.committed...)
}

// Service finds a committed service by UUID.
func (p *Peripheral) Service(uuid string) (ServiceNode, error) {
	key := NormalizeUUID(uuid)
	for _, s := range p.Services() {
		if s.Base().uuid == key {
			return s, nil
		}
	}
	return nil, &NotFoundError{Resource: "service", IDs: []string{key}}
}

// Characteristic finds a committed characteristic by service and characteristic UUID.
func (p *Peripheral) Characteristic(serviceUUID, uuid string) (CharacteristicNode, error) {
	s, err := p.Service(serviceUUID)
	if err != nil {
		return nil, err
	}
	return s.Base().Characteristic(uuid)
}

// StagedCount is the number of services whose cascades are still running.
func (p *Peripheral) StagedCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.staged)
}

// IsRegistered reports whether the first cascade completed and the registry was told.
func (p *Peripheral) IsRegistered() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.registered
}

// Attached is false once the peripheral has been disconnected and cleared.
func (p *Peripheral) Attached() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.detached
}

// StartOver clears every cached service and rediscovers the whole tree.
func (p *Peripheral) StartOver() error {
	if !p.Attached() {
		return ErrNotConnected
	}
	return dispatch.Sync(p.registry.owner, p.startOver)
}

// ReadSignalStrength requests a fresh RSSI reading; it arrives as a device-changed event.
func (p *Peripheral) ReadSignalStrength() error {
	return p.registry.ReadSignalStrength(p.record)
}

func (p *Peripheral) transport() Transport { return p.registry.transport }
func (p *Peripheral) factories() *Factories { return p.registry.factories }
func (p *Peripheral) logger() *logrus.Logger { return p.registry.logger }

func (p *Peripheral) startOver() {
	p.mu.Lock()
	if p.detached {
		p.mu.Unlock()
		return
	}
	old := slices.Concat(p.staged, p.committed)
	p.staged, p.committed = nil, nil
	p.state = StateDiscoveringServices
	p.mu.Unlock()

	for _, s := range old {
		s.Base().clear()
	}

	p.logger().WithFields(logrus.Fields{
		"peripheral": p.ID(),
		"filter":     p.serviceFilter,
	}).Debug("Discovering services")
	if err := p.transport().DiscoverServices(p.handle, p.serviceFilter); err != nil {
		p.setState(StateIdle)
		p.reportError(err)
	}
}

func (p *Peripheral) setState(state PeripheralState) {
	p.mu.Lock()
	p.state = state
	p.mu.Unlock()
}

func (p *Peripheral) didDiscoverServices(handles []ServiceHandle, err error) {
	if err != nil {
		p.setState(StateIdle)
		p.reportError(err)
		return
	}

	nodes := make([]ServiceNode, 0, len(handles))
	for _, h := range handles {
		if len(p.serviceFilter) > 0 && !containsUUID(p.serviceFilter, h.UUID()) {
			continue
		}
		nodes = append(nodes, p.factories().ResolveService(h.UUID(), p, h))
	}

	p.mu.Lock()
	if p.detached {
		p.mu.Unlock()
		return
	}
	p.staged = nodes
	p.state = StateDiscoveringCharacteristics
	p.mu.Unlock()

	p.logger().WithFields(logrus.Fields{
		"peripheral": p.ID(),
		"services":   len(nodes),
	}).Debug("Services discovered")

	if len(nodes) == 0 {
		p.commit()
		return
	}
	for _, n := range nodes {
		n.Base().startOver()
	}
}

// didModifyServices restarts each invalidated service on its own; the rest of the
// committed tree stays visible.
func (p *Peripheral) didModifyServices(invalidated []ServiceHandle) {
	services := make([]*Service, 0, len(invalidated))
	for _, h := range invalidated {
		if s := p.serviceByHandle(h); s != nil {
			services = append(services, s)
		}
	}
	if len(services) == 0 {
		return
	}
	p.restartServices(services)
}

func (p *Peripheral) restartServices(services []*Service) {
	p.mu.Lock()
	if p.detached {
		p.mu.Unlock()
		return
	}
	for _, s := range services {
		if i := slices.Index(p.committed, s.node); i >= 0 {
			p.committed = slices.Delete(p.committed, i, i+1)
			p.staged = append(p.staged, s.node)
		}
	}
	p.state = StateDiscoveringCharacteristics
	registered := p.registered
	p.mu.Unlock()

	p.logger().WithFields(logrus.Fields{
		"peripheral": p.ID(),
		"services":   len(services),
	}).Info("Rediscovering invalidated services")
	if registered {
		p.registry.reportDeviceChanged(p)
	}
	for _, s := range services {
		s.startOver()
	}
}

// serviceCompleted commits the staged services once every one of them is complete.
func (p *Peripheral) serviceCompleted(s *Service) {
	p.mu.Lock()
	if p.detached || !slices.Contains(p.staged, s.node) {
		p.mu.Unlock()
		return
	}
	for _, n := range p.staged {
		if !n.Base().IsComplete() {
			p.mu.Unlock()
			return
		}
	}
	p.mu.Unlock()
	p.commit()
}

func (p *Peripheral) commit() {
	p.mu.Lock()
	promoted := p.staged
	p.committed = append(p.committed, promoted...)
	p.staged = nil
	p.state = StateCommitted
	first := !p.registered
	p.registered = true
	total := len(p.committed)
	p.mu.Unlock()

	p.logger().WithFields(logrus.Fields{
		"peripheral": p.ID(),
		"services":   total,
	}).Debug("Peripheral committed")

	if first {
		p.registry.register(p)
		return
	}
	for _, n := range promoted {
		p.registry.reportServiceChanged(p, n)
	}
	p.registry.reportDeviceChanged(p)
}

// clear drops the whole tree; the peripheral is unusable afterwards.
func (p *Peripheral) clear() {
	p.mu.Lock()
	old := slices.Concat(p.staged, p.committed)
	p.staged, p.committed = nil, nil
	p.state = StateIdle
	p.detached = true
	p.mu.Unlock()

	for _, s := range old {
		s.Base().clear()
	}
}

func (p *Peripheral) allServices() []ServiceNode {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Concat(p.staged, p.committed)
}

func (p *Peripheral) serviceByHandle(h ServiceHandle) *Service {
	for _, s := range p.allServices() {
		if s.Base().handle == h {
			return s.Base()
		}
	}
	return nil
}

func (p *Peripheral) characteristicByHandle(h CharacteristicHandle) *Characteristic {
	for _, s := range p.allServices() {
		if c := s.Base().characteristicByHandle(h); c != nil {
			return c
		}
	}
	return nil
}

func (p *Peripheral) descriptorByHandle(h DescriptorHandle) *Descriptor {
	for _, s := range p.allServices() {
		if d := s.Base().descriptorByHandle(h); d != nil {
			return d
		}
	}
	return nil
}

func (p *Peripheral) characteristicChanged(s ServiceNode, c CharacteristicNode) {
	p.registry.reportCharacteristicChanged(p, s, c)
}

func (p *Peripheral) notifyStateChanged(s ServiceNode, c CharacteristicNode) {
	p.registry.reportNotifyStateChanged(p, s, c)
}

func (p *Peripheral) writeComplete(s ServiceNode, c CharacteristicNode) {
	p.registry.reportWriteComplete(p, s, c)
}

func (p *Peripheral) descriptorChanged(s ServiceNode, c CharacteristicNode, d DescriptorNode) {
	p.registry.reportDescriptorChanged(p, s, c, d)
}

func (p *Peripheral) reportError(err error) {
	p.registry.reportError(WrapError(LevelPeripheral, p.ID(), err))
}
