// SPDX-License-Identifier: Apache-2.0
package zwmsg

// Generic device class bytes, carried in an APPLICATION_UPDATE "node info
// received" body (spec.md §4.4's NIF). Node.ApplyNodeInfo stores the raw
// byte; GenericTypeName turns it into the human-readable label the driver
// logs.
const (
	GenericTypeGenericController  uint8 = 0x01
	GenericTypeStaticController   uint8 = 0x02
	GenericTypeAVControlPoint     uint8 = 0x03
	GenericTypeDisplay            uint8 = 0x04
	GenericTypeNetworkExtender    uint8 = 0x05
	GenericTypeAppliance          uint8 = 0x06
	GenericTypeSensorNotification uint8 = 0x07
	GenericTypeSwitchThermostat   uint8 = 0x08
	GenericTypeWindowCovering     uint8 = 0x09
	GenericTypeRepeaterSlave      uint8 = 0x0F
	GenericTypeSwitchBinary       uint8 = 0x10
	GenericTypeSwitchMultiLevel   uint8 = 0x11
	GenericTypeSwitchRemote       uint8 = 0x12
	GenericTypeSwitchToggle       uint8 = 0x13
	GenericTypeZipNode            uint8 = 0x15
	GenericTypeVentilation        uint8 = 0x16
	GenericTypeSecurityPanel      uint8 = 0x17
	GenericTypeWallController     uint8 = 0x18
	GenericTypeSensorBinary       uint8 = 0x20
	GenericTypeSensorMultiLevel   uint8 = 0x21
	GenericTypeMeterPulse         uint8 = 0x30
	GenericTypeMeter              uint8 = 0x31
	GenericTypeEntryControl       uint8 = 0x40
	GenericTypeSemiInteroperable  uint8 = 0x50
	GenericTypeSensorAlarm        uint8 = 0xA1
	GenericTypeNonInteroperable   uint8 = 0xFF
)

var genericTypeNames = map[uint8]string{
	GenericTypeGenericController:  "Generic Controller",
	GenericTypeStaticController:   "Static Controller",
	GenericTypeAVControlPoint:     "AV Control Point",
	GenericTypeDisplay:            "Display",
	GenericTypeNetworkExtender:    "Network Extender",
	GenericTypeAppliance:          "Appliance",
	GenericTypeSensorNotification: "Sensor Notification",
	GenericTypeSwitchThermostat:   "Thermostat",
	GenericTypeWindowCovering:     "Window Covering",
	GenericTypeRepeaterSlave:      "Repeater Slave",
	GenericTypeSwitchBinary:       "Binary Switch",
	GenericTypeSwitchMultiLevel:   "Multilevel Switch",
	GenericTypeSwitchRemote:       "Remote Switch",
	GenericTypeSwitchToggle:       "Toggle Switch",
	GenericTypeZipNode:            "Z/IP Node",
	GenericTypeVentilation:        "Ventilation",
	GenericTypeSecurityPanel:      "Security Panel",
	GenericTypeWallController:     "Wall Controller",
	GenericTypeSensorBinary:       "Binary Sensor",
	GenericTypeSensorMultiLevel:   "Multilevel Sensor",
	GenericTypeMeterPulse:         "Pulse Meter",
	GenericTypeMeter:              "Meter",
	GenericTypeEntryControl:       "Entry Control",
	GenericTypeSemiInteroperable:  "Semi Interoperable",
	GenericTypeSensorAlarm:        "Alarm Sensor",
	GenericTypeNonInteroperable:   "Non-interoperable",
}

// GenericTypeName returns the human-readable label for a generic device
// class byte, or "Unknown" if the byte isn't in the registry.
func GenericTypeName(generic uint8) string {
	if name, ok := genericTypeNames[generic]; ok {
		return name
	}
	return "Unknown"
}
