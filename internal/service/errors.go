// internal/service/errors.go
package service

import (
	"errors"
	"net"

	"go.bug.st/serial"
)

var (
	// ErrReconnectExhausted is returned once every connect attempt failed with a socket error
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	// ErrConnectAborted is returned when connecting failed with an error that is not worth retrying
	ErrConnectAborted = errors.New("connect aborted")
)

// isSocketError reports whether err comes from the network or serial port layer
func isSocketError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var portErr *serial.PortError
	return errors.As(err, &portErr)
}
