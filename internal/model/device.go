// internal/model/device.go
package model

// DeviceStatus represents the link state with the meter interface
type DeviceStatus string

const (
	DeviceStatusOnline     DeviceStatus = "ONLINE"
	DeviceStatusOffline    DeviceStatus = "OFFLINE"
	DeviceStatusConnecting DeviceStatus = "CONNECTING"
)

// ConnectionType represents how the device is reached
type ConnectionType string

const (
	ConnectionTypeSerial ConnectionType = "SERIAL"
	ConnectionTypeTCP    ConnectionType = "TCP"
)

// JSONObject is free-form event data
type JSONObject map[string]interface{}
