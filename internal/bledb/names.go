package bledb

// Assigned numbers from the Bluetooth SIG registry, keyed by normalized UUID.
var (
	serviceNames = map[string]string{
		"1800": "Generic Access",
		"1801": "Generic Attribute",
		"1802": "Immediate Alert",
		"1803": "Link Loss",
		"1804": "Tx Power",
		"1805": "Current Time",
		"1809": "Health Thermometer",
		"180a": "Device Information",
		"180d": "Heart Rate",
		"180f": "Battery Service",
		"1810": "Blood Pressure",
		"1812": "Human Interface Device",
		"1816": "Cycling Speed and Cadence",
		"1818": "Cycling Power",
		"181a": "Environmental Sensing",
		"181c": "User Data",
		"6e400001b5a3f393e0a9e50e24dcca9e": "Nordic UART Service",
	}

	characteristicNames = map[string]string{
		"2a00": "Device Name",
		"2a01": "Appearance",
		"2a04": "Peripheral Preferred Connection Parameters",
		"2a05": "Service Changed",
		"2a06": "Alert Level",
		"2a07": "Tx Power Level",
		"2a19": "Battery Level",
		"2a1c": "Temperature Measurement",
		"2a23": "System ID",
		"2a24": "Model Number String",
		"2a25": "Serial Number String",
		"2a26": "Firmware Revision String",
		"2a27": "Hardware Revision String",
		"2a28": "Software Revision String",
		"2a29": "Manufacturer Name String",
		"2a37": "Heart Rate Measurement",
		"2a38": "Body Sensor Location",
		"2a39": "Heart Rate Control Point",
		"2a50": "PnP ID",
		"2a6e": "Temperature",
		"2a6f": "Humidity",
		"6e400002b5a3f393e0a9e50e24dcca9e": "Nordic UART RX",
		"6e400003b5a3f393e0a9e50e24dcca9e": "Nordic UART TX",
	}

	descriptorNames = map[string]string{
		"2900": "Characteristic Extended Properties",
		"2901": "Characteristic User Descriptor",
		"2902": "Client Characteristic Configuration",
		"2903": "Server Characteristic Configuration",
		"2904": "Characteristic Presentation Format",
		"2905": "Characteristic Aggregate Format",
		"2906": "Valid Range",
		"2907": "External Report Reference",
		"2908": "Report Reference",
	}

	// Appearance categories occupy bits 6-15 of the 16-bit appearance value.
	appearanceCategories = map[uint16]string{
		0x000: "Unknown",
		0x001: "Phone",
		0x002: "Computer",
		0x003: "Watch",
		0x004: "Clock",
		0x005: "Display",
		0x006: "Remote Control",
		0x007: "Eye-glasses",
		0x008: "Tag",
		0x009: "Keyring",
		0x00a: "Media Player",
		0x00b: "Barcode Scanner",
		0x00c: "Thermometer",
		0x00d: "Heart Rate Sensor",
		0x00e: "Blood Pressure",
		0x00f: "Human Interface Device",
		0x010: "Glucose Meter",
		0x011: "Running Walking Sensor",
		0x012: "Cycling",
		0x031: "Pulse Oximeter",
		0x032: "Weight Scale",
		0x051: "Outdoor Sports Activity",
	}
)

// LookupService returns the SIG name of a service UUID, or "" when unknown.
func LookupService(uuid string) string {
	return serviceNames[NormalizeUUID(uuid)]
}

// LookupCharacteristic returns the SIG name of a characteristic UUID, or "" when unknown.
func LookupCharacteristic(uuid string) string {
	return characteristicNames[NormalizeUUID(uuid)]
}

// LookupDescriptor returns the SIG name of a descriptor UUID, or "" when unknown.
func LookupDescriptor(uuid string) string {
	return descriptorNames[NormalizeUUID(uuid)]
}

// LookupAppearanceCode returns the category name for a 16-bit appearance value, or "" when unknown.
func LookupAppearanceCode(code uint16) string {
	return appearanceCategories[code>>6]
}
