// internal/protocol/connection.go
package protocol

import "time"

// SerialConfig represents serial connection configuration
type SerialConfig struct {
	Port       string `json:"port"`
	BaudRate   int    `json:"baud_rate"`
	DataBits   int    `json:"data_bits"`
	StopBits   int    `json:"stop_bits"`
	Parity     string `json:"parity"`
	BufferSize int    `json:"buffer_size"`
}

// TCPConfig represents TCP connection configuration
type TCPConfig struct {
	Host       string        `json:"host"`
	Port       int           `json:"port"`
	KeepAlive  bool          `json:"keep_alive"`
	BufferSize int           `json:"buffer_size"`
	Timeout    time.Duration `json:"timeout"`
}

// DefaultBufferSize is used when no receive buffer size is configured
const DefaultBufferSize = 4096
