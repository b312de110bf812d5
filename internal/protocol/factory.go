// internal/protocol/factory.go
package protocol

import (
	"fmt"

	"go.uber.org/zap"

	"linky-gateway/internal/model"
)

// Settings carries the transport configuration for every supported connection type
type Settings struct {
	ConnectionType model.ConnectionType
	TCP            TCPConfig
	Serial         SerialConfig
}

// CreateProtocol builds a fresh, unopened connection. Every call returns a new
// instance so that no state is shared with a previous connection.
func CreateProtocol(settings Settings, logger *zap.Logger) (DeviceProtocol, error) {
	switch settings.ConnectionType {
	case model.ConnectionTypeTCP:
		tcpConfig := settings.TCP
		if tcpConfig.Host == "" {
			return nil, fmt.Errorf("tcp host is required")
		}
		if tcpConfig.Port <= 0 || tcpConfig.Port > 65535 {
			return nil, fmt.Errorf("invalid tcp port: %d", tcpConfig.Port)
		}
		return NewTCPConnection(&tcpConfig, logger), nil

	case model.ConnectionTypeSerial:
		serialConfig := settings.Serial
		if serialConfig.Port == "" {
			return nil, fmt.Errorf("serial port is required")
		}
		return NewSerialConnection(&serialConfig, logger), nil

	default:
		return nil, fmt.Errorf("unsupported protocol type: %s", settings.ConnectionType)
	}
}
