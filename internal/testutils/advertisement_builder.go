package testutils

import (
	"github.com/go-ble/ble"
	"github.com/srg/gattcache/internal/testutils/mocks"
)

// AdvertisementBuilder builds mocked go-ble advertisements.
// Every ble.Advertisement method gets an expectation; unset fields return empty values.
type AdvertisementBuilder struct {
	name        string
	address     string
	rssi        int
	services    []string
	overflow    []string
	solicited   []string
	manufData   []byte
	serviceData map[string][]byte
	txPower     *int
	connectable bool
}

// NewAdvertisementBuilder starts from a connectable advertisement with RSSI -50.
func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{
		rssi:        -50,
		serviceData: make(map[string][]byte),
		connectable: true,
	}
}

func (b *AdvertisementBuilder) WithName(name string) *AdvertisementBuilder {
	b.name = name
	return b
}

func (b *AdvertisementBuilder) WithAddress(addr string) *AdvertisementBuilder {
	b.address = addr
	return b
}

func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	b.rssi = rssi
	return b
}

// WithServices adds advertised service UUIDs, in short or full form.
func (b *AdvertisementBuilder) WithServices(uuids ...string) *AdvertisementBuilder {
	b.services = append(b.services, uuids...)
	return b
}

func (b *AdvertisementBuilder) WithOverflowServices(uuids ...string) *AdvertisementBuilder {
	b.overflow = append(b.overflow, uuids...)
	return b
}

func (b *AdvertisementBuilder) WithSolicitedServices(uuids ...string) *AdvertisementBuilder {
	b.solicited = append(b.solicited, uuids...)
	return b
}

func (b *AdvertisementBuilder) WithManufacturerData(data []byte) *AdvertisementBuilder {
	b.manufData = data
	return b
}

func (b *AdvertisementBuilder) WithServiceData(uuid string, data []byte) *AdvertisementBuilder {
	b.serviceData[uuid] = data
	return b
}

func (b *AdvertisementBuilder) WithTxPower(power int) *AdvertisementBuilder {
	b.txPower = &power
	return b
}

func (b *AdvertisementBuilder) WithConnectable(c bool) *AdvertisementBuilder {
	b.connectable = c
	return b
}

// Build creates the mock. Expectations are optional so tests that only look at
// part of the advertisement do not fail AssertExpectations.
func (b *AdvertisementBuilder) Build() *mocks.MockAdvertisement {
	adv := &mocks.MockAdvertisement{}

	var serviceData []ble.ServiceData
	for uuid, data := range b.serviceData {
		serviceData = append(serviceData, ble.ServiceData{UUID: ble.MustParse(uuid), Data: data})
	}
	txPower := 127 // go-ble's value for "not advertised"
	if b.txPower != nil {
		txPower = *b.txPower
	}
	manufData := b.manufData
	if manufData == nil {
		manufData = []byte{}
	}

	addr := &mocks.MockAddr{}
	addr.On("String").Return(b.address).Maybe()

	adv.On("Addr").Return(addr).Maybe()
	adv.On("LocalName").Return(b.name).Maybe()
	adv.On("RSSI").Return(b.rssi).Maybe()
	adv.On("ManufacturerData").Return(manufData).Maybe()
	adv.On("ServiceData").Return(serviceData).Maybe()
	adv.On("Services").Return(parseBLEUUIDs(b.services)).Maybe()
	adv.On("OverflowService").Return(parseBLEUUIDs(b.overflow)).Maybe()
	adv.On("SolicitedService").Return(parseBLEUUIDs(b.solicited)).Maybe()
	adv.On("Connectable").Return(b.connectable).Maybe()
	adv.On("TxPowerLevel").Return(txPower).Maybe()
	return adv
}

func parseBLEUUIDs(uuids []string) []ble.UUID {
	out := make([]ble.UUID, 0, len(uuids))
	for _, s := range uuids {
		out = append(out, ble.MustParse(s))
	}
	return out
}
