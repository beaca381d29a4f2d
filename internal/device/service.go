package device

import (
	"slices"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/gattcache/internal/bledb"
	"github.com/srg/gattcache/internal/dispatch"
)

// Service is the generic service wrapper. Characteristics are staged while their
// descriptors are discovered and move to the committed list together.
type Service struct {
	handle     ServiceHandle
	peripheral *Peripheral
	node       ServiceNode
	uuid       string

	mu        sync.RWMutex
	staged    []CharacteristicNode
	committed []CharacteristicNode
	complete  bool
}

func newService(parent *Peripheral, h ServiceHandle) *Service {
	s := &Service{
		handle:     h,
		peripheral: parent,
		uuid:       NormalizeUUID(h.UUID()),
	}
	s.node = s
	return s
}

func (s *Service) Base() *Service { return s }
func (s *Service) UUID() string { return s.uuid }
func (s *Service) Handle() ServiceHandle { return s.handle }
func (s *Service) Node() ServiceNode { return s.node }
func (s *Service) Peripheral() *Peripheral { return s.peripheral }

// DisplayName returns the SIG name, or the UUID when unknown.
func (s *Service) DisplayName() string {
	if name := bledb.LookupService(s.uuid); name != "" {
		return name
	}
	return s.uuid
}

// Characteristics returns the committed characteristics.
func (s *Service) Characteristics() []CharacteristicNode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]CharacteristicNode(nil), s.committed...)
}

// Characteristic finds a committed characteristic by UUID.
func (s *Service) Characteristic(uuid string) (CharacteristicNode, error) {
	key := NormalizeUUID(uuid)
	for _, c := range s.Characteristics() {
		if c.Base().uuid == key {
			return c, nil
		}
	}
	return nil, &NotFoundError{Resource: "characteristic", IDs: []string{s.uuid, key}}
}

// IsComplete reports whether the characteristic cascade has committed.
func (s *Service) IsComplete() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.complete
}

// StagedCount is the number of characteristics still waiting for their descriptors.
func (s *Service) StagedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.staged)
}

// StartOver drops this service's characteristics and rediscovers them. The service
// leaves the peripheral's committed list until the new cascade completes.
func (s *Service) StartOver() error {
	p := s.peripheral
	if !p.Attached() {
		return ErrNotConnected
	}
	return dispatch.Sync(p.registry.owner, func() {
		p.restartServices([]*Service{s})
	})
}

func (s *Service) startOver() {
	s.clear()

	p := s.peripheral
	p.logger().WithFields(logrus.Fields{
		"peripheral": p.ID(),
		"service":    s.uuid,
	}).Debug("Discovering characteristics")
	if err := p.transport().DiscoverCharacteristics(p.handle, s.handle); err != nil {
		s.reportError(err)
	}
}

func (s *Service) clear() {
	s.mu.Lock()
	old := slices.Concat(s.staged, s.committed)
	s.staged, s.committed = nil, nil
	s.complete = false
	s.mu.Unlock()

	for _, c := range old {
		c.Base().clear()
	}
}

func (s *Service) didDiscoverCharacteristics(handles []CharacteristicHandle, err error) {
	if err != nil {
		s.reportError(err)
		return
	}

	p := s.peripheral
	nodes := make([]CharacteristicNode, 0, len(handles))
	for _, h := range handles {
		if len(p.characteristicFilter) > 0 && !containsUUID(p.characteristicFilter, h.UUID()) {
			continue
		}
		nodes = append(nodes, p.factories().ResolveCharacteristic(h.UUID(), s, h))
	}

	s.mu.Lock()
	s.staged = nodes
	s.mu.Unlock()

	p.logger().WithFields(logrus.Fields{
		"peripheral":      p.ID(),
		"service":         s.uuid,
		"characteristics": len(nodes),
		"filtered":        len(handles) - len(nodes),
	}).Debug("Characteristics discovered")

	if len(nodes) == 0 {
		s.promote()
		return
	}
	for _, n := range nodes {
		c := n.Base()
		if err := p.transport().DiscoverDescriptors(p.handle, c.handle); err != nil {
			c.reportError(err)
		}
	}
}

func (s *Service) didDiscoverDescriptors(c *Characteristic, handles []DescriptorHandle, err error) {
	if err != nil {
		c.reportError(err)
		return
	}

	factories := s.peripheral.factories()
	descs := make([]DescriptorNode, 0, len(handles))
	for _, h := range handles {
		descs = append(descs, factories.ResolveDescriptor(h.UUID(), c, h))
	}
	c.setDescriptors(descs)

	s.mu.RLock()
	staged := slices.Contains(s.staged, c.node)
	done := staged
	for _, n := range s.staged {
		if !n.Base().isResolved() {
			done = false
			break
		}
	}
	s.mu.RUnlock()

	if !staged {
		// Descriptors refreshed on an already committed characteristic.
		s.characteristicChanged(c.node)
		return
	}
	if done {
		s.promote()
	}
}

// promote moves every staged characteristic to committed at once.
func (s *Service) promote() {
	s.mu.Lock()
	s.committed = append(s.committed, s.staged...)
	s.staged = nil
	s.complete = true
	count := len(s.committed)
	s.mu.Unlock()

	s.peripheral.logger().WithFields(logrus.Fields{
		"peripheral":      s.peripheral.ID(),
		"service":         s.uuid,
		"characteristics": count,
	}).Debug("Service committed")
	s.peripheral.serviceCompleted(s)
}

func (s *Service) characteristicByHandle(h CharacteristicHandle) *Characteristic {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, list := range [][]CharacteristicNode{s.staged, s.committed} {
		for _, c := range list {
			if c.Base().handle == h {
				return c.Base()
			}
		}
	}
	return nil
}

func (s *Service) descriptorByHandle(h DescriptorHandle) *Descriptor {
	s.mu.RLock()
	chars := slices.Concat(s.staged, s.committed)
	s.mu.RUnlock()
	for _, c := range chars {
		if d := c.Base().descriptorByHandle(h); d != nil {
			return d
		}
	}
	return nil
}

func (s *Service) characteristicChanged(c CharacteristicNode) {
	s.peripheral.characteristicChanged(s.node, c)
}

func (s *Service) notifyStateChanged(c CharacteristicNode) {
	s.peripheral.notifyStateChanged(s.node, c)
}

func (s *Service) writeComplete(c CharacteristicNode) {
	s.peripheral.writeComplete(s.node, c)
}

func (s *Service) descriptorChanged(c CharacteristicNode, d DescriptorNode) {
	s.peripheral.descriptorChanged(s.node, c, d)
}

func (s *Service) reportError(err error) {
	s.peripheral.reportError(WrapError(LevelService, s.uuid, err))
}
