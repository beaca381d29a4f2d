package device

// RecordJSON is the serializable view of a discovery record.
type RecordJSON struct {
	ID               string         `json:"id"`
	Name             string         `json:"name"`
	RSSI             int            `json:"rssi"`
	TxPower          *int           `json:"tx_power,omitempty"`
	Connectable      bool           `json:"connectable"`
	Connected        bool           `json:"connected"`
	Services         []string       `json:"services"`
	ManufacturerData []int          `json:"manufacturer_data,omitempty"`
	ServiceData      map[string]any `json:"service_data,omitempty"`
	LastSeen         int64          `json:"last_seen"`
}

// PeripheralJSON is the serializable view of a connected peripheral's committed tree.
type PeripheralJSON struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	State    string        `json:"state"`
	Services []ServiceJSON `json:"services"`
}

type ServiceJSON struct {
	UUID            string               `json:"uuid"`
	Name            string               `json:"name"`
	Characteristics []CharacteristicJSON `json:"characteristics"`
}

type CharacteristicJSON struct {
	UUID        string           `json:"uuid"`
	Name        string           `json:"name"`
	Properties  string           `json:"properties"`
	Notifying   bool             `json:"notifying"`
	Value       string           `json:"value,omitempty"`
	Descriptors []DescriptorJSON `json:"descriptors"`
}

type DescriptorJSON struct {
	UUID  string `json:"uuid"`
	Name  string `json:"name"`
	Value string `json:"value,omitempty"`
}

// RecordSnapshot captures rec for display or serialization.
func RecordSnapshot(rec *Record) RecordJSON {
	adv := rec.Advertisement()
	out := RecordJSON{
		ID:          rec.ID(),
		Name:        adv.Name,
		RSSI:        rec.RSSI(),
		TxPower:     adv.TxPower,
		Connectable: adv.Connectable,
		Connected:   rec.IsConnected(),
		Services:    append([]string{}, adv.Services...),
		LastSeen:    rec.LastSeen().Unix(),
	}
	// Bytes as ints so the JSON stays readable instead of base64
	if adv.ManufacturerData != nil {
		out.ManufacturerData = bytesToInts(adv.ManufacturerData)
	}
	if len(adv.ServiceData) > 0 {
		out.ServiceData = make(map[string]any, len(adv.ServiceData))
		for k, v := range adv.ServiceData {
			out.ServiceData[k] = bytesToInts(v)
		}
	}
	return out
}

func bytesToInts(b []byte) []int {
	out := make([]int, len(b))
	for i, v := range b {
		out[i] = int(v)
	}
	return out
}

// PeripheralSnapshot captures the committed tree of p with display values.
func PeripheralSnapshot(p *Peripheral) PeripheralJSON {
	out := PeripheralJSON{
		ID:       p.ID(),
		Name:     p.Name(),
		State:    p.State().String(),
		Services: []ServiceJSON{},
	}
	for _, s := range p.Services() {
		sj := ServiceJSON{
			UUID:            s.Base().UUID(),
			Name:            s.DisplayName(),
			Characteristics: []CharacteristicJSON{},
		}
		for _, c := range s.Base().Characteristics() {
			base := c.Base()
			cj := CharacteristicJSON{
				UUID:        base.UUID(),
				Name:        c.DisplayName(),
				Properties:  base.Properties().String(),
				Notifying:   base.IsNotifying(),
				Descriptors: []DescriptorJSON{},
			}
			if v, ok := c.DisplayValue(); ok {
				cj.Value = v
			}
			for _, d := range base.Descriptors() {
				dj := DescriptorJSON{UUID: d.Base().UUID(), Name: d.DisplayName()}
				if v, ok := d.DisplayValue(); ok {
					dj.Value = v
				}
				cj.Descriptors = append(cj.Descriptors, dj)
			}
			sj.Characteristics = append(sj.Characteristics, cj)
		}
		out.Services = append(out.Services, sj)
	}
	return out
}
