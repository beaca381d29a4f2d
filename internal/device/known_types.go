package device

// Well-known GATT service UUIDs (16-bit short form)
const (
	ServiceDeviceInformation = "180a"
	ServiceHeartRate         = "180d"
	ServiceBattery           = "180f"
)

// DefaultFactories returns the factory registry with every built-in specialization.
func DefaultFactories() *Factories {
	f := NewFactories()

	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}
	must(f.RegisterService(ServiceBattery, func(s *Service) ServiceNode { return &BatteryService{s} }))
	must(f.RegisterService(ServiceDeviceInformation, func(s *Service) ServiceNode { return &DeviceInformationService{s} }))
	must(f.RegisterService(ServiceHeartRate, func(s *Service) ServiceNode { return &HeartRateService{s} }))

	must(f.RegisterCharacteristic(CharacteristicBatteryLevel, func(c *Characteristic) CharacteristicNode { return &BatteryLevel{c} }))
	must(f.RegisterCharacteristic(CharacteristicAppearance, func(c *Characteristic) CharacteristicNode { return &Appearance{c} }))
	must(f.RegisterCharacteristic(CharacteristicHeartRateMeasure, func(c *Characteristic) CharacteristicNode { return &HeartRateMeasurement{c} }))
	for _, uuid := range stringCharacteristics {
		must(f.RegisterCharacteristic(uuid, func(c *Characteristic) CharacteristicNode { return &StringCharacteristic{c} }))
	}

	must(f.RegisterDescriptor(DescriptorUserDescription, func(d *Descriptor) DescriptorNode { return &UserDescription{d} }))
	must(f.RegisterDescriptor(DescriptorClientConfig, func(d *Descriptor) DescriptorNode { return &ClientConfiguration{d} }))
	must(f.RegisterDescriptor(DescriptorPresentationFormat, func(d *Descriptor) DescriptorNode { return &PresentationFormatDescriptor{d} }))
	return f
}

var stringCharacteristics = []string{
	CharacteristicDeviceName,
	CharacteristicModelNumber,
	CharacteristicSerialNumber,
	CharacteristicFirmwareRevision,
	CharacteristicHardwareRevision,
	CharacteristicSoftwareRevision,
	CharacteristicManufacturerName,
}

// ---------------------------------------------------------------------------
// Services
// ---------------------------------------------------------------------------

// BatteryService is the Battery Service (0x180F).
type BatteryService struct {
	*Service
}

// Level returns the cached battery level, false until it has been read.
func (b *BatteryService) Level() (uint8, bool) {
	c, err := b.Characteristic(CharacteristicBatteryLevel)
	if err != nil {
		return 0, false
	}
	if bl, ok := c.(*BatteryLevel); ok {
		return bl.Level()
	}
	return 0, false
}

// DeviceInformationService is the Device Information Service (0x180A).
type DeviceInformationService struct {
	*Service
}

// Info maps characteristic names to their cached string values.
func (d *DeviceInformationService) Info() map[string]string {
	info := make(map[string]string)
	for _, c := range d.Characteristics() {
		if s, ok := c.(*StringCharacteristic); ok {
			if text, ok := s.Text(); ok {
				info[s.DisplayName()] = text
			}
		}
	}
	return info
}

// HeartRateService is the Heart Rate Service (0x180D).
type HeartRateService struct {
	*Service
}

// Measurement returns the latest cached heart rate measurement.
func (h *HeartRateService) Measurement() (*HeartRate, bool) {
	c, err := h.Characteristic(CharacteristicHeartRateMeasure)
	if err != nil {
		return nil, false
	}
	if m, ok := c.(*HeartRateMeasurement); ok {
		return m.Measurement()
	}
	return nil, false
}

// ---------------------------------------------------------------------------
// Characteristics
// ---------------------------------------------------------------------------

// BatteryLevel is the Battery Level characteristic (0x2A19), a percentage.
type BatteryLevel struct {
	*Characteristic
}

func (b *BatteryLevel) Level() (uint8, bool) {
	level, err := decodeBatteryLevel(b.Value())
	return level, err == nil
}

// Appearance is the Appearance characteristic (0x2A01).
type Appearance struct {
	*Characteristic
}

// Category returns the appearance category name.
func (a *Appearance) Category() (string, bool) {
	v, err := parseAppearance(a.Value())
	if err != nil || v == nil {
		return "", false
	}
	return v.(string), true
}

// HeartRateMeasurement is the Heart Rate Measurement characteristic (0x2A37).
type HeartRateMeasurement struct {
	*Characteristic
}

func (h *HeartRateMeasurement) Measurement() (*HeartRate, bool) {
	hr, err := decodeHeartRate(h.Value())
	return hr, err == nil
}

// StringCharacteristic is any UTF-8 string characteristic such as Device Name or
// the Device Information strings.
type StringCharacteristic struct {
	*Characteristic
}

func (s *StringCharacteristic) Text() (string, bool) {
	value := s.Value()
	if value == nil {
		return "", false
	}
	v, err := parseUTF8(value)
	if err != nil {
		return "", false
	}
	return v.(string), true
}

// ---------------------------------------------------------------------------
// Descriptors
// ---------------------------------------------------------------------------

// UserDescription is the Characteristic User Description descriptor (0x2901).
type UserDescription struct {
	*Descriptor
}

func (u *UserDescription) Text() (string, bool) {
	value := u.Value()
	if value == nil {
		return "", false
	}
	s, err := ParseUserDescription(value)
	return s, err == nil
}

// ClientConfiguration is the Client Characteristic Configuration descriptor (0x2902).
type ClientConfiguration struct {
	*Descriptor
}

func (c *ClientConfiguration) Config() (*ClientConfig, bool) {
	cfg, err := ParseClientConfig(c.Value())
	return cfg, err == nil
}

// PresentationFormatDescriptor is the Characteristic Presentation Format descriptor (0x2904).
type PresentationFormatDescriptor struct {
	*Descriptor
}

func (p *PresentationFormatDescriptor) Format() (*PresentationFormat, bool) {
	f, err := ParsePresentationFormat(p.Value())
	return f, err == nil
}
