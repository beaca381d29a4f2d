package device

// Delegate is the application-facing callback surface. Every call arrives on the
// registry's delivery executor, one at a time. Implementations read the cache and
// issue requests through the public operations; they never mutate it directly.
type Delegate interface {
	OnError(err error)
	// OnRecalculate signals that the staged, ignored or committed lists changed.
	OnRecalculate()
	OnRadioAvailable()
	// OnConnected fires once per connection, when the discovery cascade has committed.
	OnConnected(p *Peripheral)
	OnWillDisconnect(p *Peripheral)
	OnDeviceChanged(p *Peripheral)
	OnServiceChanged(p *Peripheral, s ServiceNode)
	OnCharacteristicChanged(p *Peripheral, s ServiceNode, c CharacteristicNode)
	OnCharacteristicNotifyStateChanged(p *Peripheral, s ServiceNode, c CharacteristicNode)
	OnDescriptorChanged(p *Peripheral, s ServiceNode, c CharacteristicNode, d DescriptorNode)
	OnCharacteristicWriteComplete(p *Peripheral, s ServiceNode, c CharacteristicNode)
}

// NopDelegate ignores every callback. Embed it to implement only the callbacks you need.
type NopDelegate struct{}

func (NopDelegate) OnError(error) {}
func (NopDelegate) OnRecalculate() {}
func (NopDelegate) OnRadioAvailable() {}
func (NopDelegate) OnConnected(*Peripheral) {}
func (NopDelegate) OnWillDisconnect(*Peripheral) {}
func (NopDelegate) OnDeviceChanged(*Peripheral) {}
func (NopDelegate) OnServiceChanged(*Peripheral, ServiceNode) {}
func (NopDelegate) OnCharacteristicChanged(*Peripheral, ServiceNode, CharacteristicNode) {}
func (NopDelegate) OnCharacteristicNotifyStateChanged(*Peripheral, ServiceNode, CharacteristicNode) {}
func (NopDelegate) OnDescriptorChanged(*Peripheral, ServiceNode, CharacteristicNode, DescriptorNode) {}
func (NopDelegate) OnCharacteristicWriteComplete(*Peripheral, ServiceNode, CharacteristicNode) {}

var _ Delegate = NopDelegate{}
