package device

// PeripheralHandle is the transport's native reference to a remote endpoint.
// Handles are compared with ==, so implementations should be pointers.
type PeripheralHandle interface {
	ID() string
}

// ServiceHandle is the transport's native reference to a discovered service.
type ServiceHandle interface {
	UUID() string
}

// CharacteristicHandle is the transport's native reference to a discovered characteristic.
type CharacteristicHandle interface {
	UUID() string
	Properties() Properties
}

// DescriptorHandle is the transport's native reference to a discovered descriptor.
type DescriptorHandle interface {
	UUID() string
}

// WriteMode selects the ATT write procedure.
type WriteMode int

const (
	WriteWithResponse WriteMode = iota
	WriteWithoutResponse
)

func (m WriteMode) String() string {
	if m == WriteWithoutResponse {
		return "without-response"
	}
	return "with-response"
}

// RadioState is the adapter power state reported by the transport.
type RadioState int

const (
	RadioUnknown RadioState = iota
	RadioPoweredOff
	RadioUnauthorized
	RadioUnsupported
	RadioPoweredOn
)

func (s RadioState) String() string {
	switch s {
	case RadioPoweredOff:
		return "powered-off"
	case RadioUnauthorized:
		return "unauthorized"
	case RadioUnsupported:
		return "unsupported"
	case RadioPoweredOn:
		return "powered-on"
	default:
		return "unknown"
	}
}

// Transport is the native BLE stack. Every request is fire-and-forget: its
// outcome arrives exactly once later through the TransportEvents installed with
// SetDelegate. Discovery results always carry the complete batch for the scope.
//
// Every accepted Connect is answered by exactly one DidConnect or DidFailToConnect,
// including an attempt later cancelled by Disconnect, and the answers for one
// peripheral arrive in the order the attempts were made.
type Transport interface {
	SetDelegate(events TransportEvents)

	Scan(filterUUIDs []string, allowDuplicates bool) error
	StopScan() error

	Connect(p PeripheralHandle) error
	Disconnect(p PeripheralHandle) error

	DiscoverServices(p PeripheralHandle, uuids []string) error
	DiscoverCharacteristics(p PeripheralHandle, s ServiceHandle) error
	DiscoverDescriptors(p PeripheralHandle, c CharacteristicHandle) error

	ReadValue(p PeripheralHandle, c CharacteristicHandle) error
	WriteValue(p PeripheralHandle, c CharacteristicHandle, data []byte, mode WriteMode) error
	SetNotify(p PeripheralHandle, c CharacteristicHandle, enabled bool) error
	ReadDescriptorValue(p PeripheralHandle, d DescriptorHandle) error
	WriteDescriptorValue(p PeripheralHandle, d DescriptorHandle, data []byte) error

	ReadSignalStrength(p PeripheralHandle) error
}

// TransportEvents receives the transport's completions. Implementations must not
// block; the registry's implementation only enqueues onto its owner executor.
type TransportEvents interface {
	RadioStateChanged(state RadioState)

	DidDiscover(p PeripheralHandle, adv Advertisement, rssi int)
	DidConnect(p PeripheralHandle)
	DidFailToConnect(p PeripheralHandle, err error)
	DidDisconnect(p PeripheralHandle, err error)

	DidDiscoverServices(p PeripheralHandle, services []ServiceHandle, err error)
	DidModifyServices(p PeripheralHandle, invalidated []ServiceHandle)
	DidDiscoverCharacteristics(p PeripheralHandle, s ServiceHandle, chars []CharacteristicHandle, err error)
	DidDiscoverDescriptors(p PeripheralHandle, c CharacteristicHandle, descs []DescriptorHandle, err error)

	DidUpdateValue(p PeripheralHandle, c CharacteristicHandle, data []byte, err error)
	DidWriteValue(p PeripheralHandle, c CharacteristicHandle, err error)
	DidUpdateNotificationState(p PeripheralHandle, c CharacteristicHandle, enabled bool, err error)
	DidUpdateDescriptorValue(p PeripheralHandle, d DescriptorHandle, data []byte, err error)
	DidWriteDescriptorValue(p PeripheralHandle, d DescriptorHandle, err error)

	DidReadRSSI(p PeripheralHandle, rssi int, err error)
}

// Advertisement is a snapshot of one advertising report.
type Advertisement struct {
	Name             string
	Connectable      bool
	Services         []string
	ManufacturerData []byte
	ServiceData      map[string][]byte
	TxPower          *int
	// Fields holds any further key/value advertisement data the transport exposes.
	Fields map[string]any
}

// Clone returns a deep copy.
func (a Advertisement) Clone() Advertisement {
	out := a
	out.Services = append([]string(nil), a.Services...)
	out.ManufacturerData = append([]byte(nil), a.ManufacturerData...)
	if a.ServiceData != nil {
		out.ServiceData = make(map[string][]byte, len(a.ServiceData))
		for k, v := range a.ServiceData {
			out.ServiceData[k] = append([]byte(nil), v...)
		}
	}
	if a.TxPower != nil {
		tx := *a.TxPower
		out.TxPower = &tx
	}
	if a.Fields != nil {
		out.Fields = make(map[string]any, len(a.Fields))
		for k, v := range a.Fields {
			out.Fields[k] = v
		}
	}
	return out
}
