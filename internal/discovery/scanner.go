// internal/discovery/scanner.go
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"linky-gateway/internal/model"
)

// ErrDiscoveryExhausted is returned when no scanner found a device
var ErrDiscoveryExhausted = errors.New("discovery exhausted: no device answered")

// DeviceScanner interface - Strategy Pattern
type DeviceScanner interface {
	Scan(ctx context.Context) (*DiscoveredDevice, error)
	GetScannerType() string
	IsAvailable() bool
}

// DiscoveredDevice represents a discovered device
type DiscoveredDevice struct {
	ConnectionType model.ConnectionType `json:"connection_type"`
	Address        net.IP               `json:"address"`
	LocalAddress   net.IP               `json:"local_address,omitempty"`
	Interface      string               `json:"interface,omitempty"`
	Scanner        string               `json:"scanner"`
	DiscoveredAt   time.Time            `json:"discovered_at"`
}

// ScannerManager runs the registered scanners in order - Facade Pattern
type ScannerManager struct {
	scanners []DeviceScanner
	logger   *zap.Logger
}

// NewScannerManager creates a new scanner manager
func NewScannerManager(logger *zap.Logger) *ScannerManager {
	return &ScannerManager{
		logger: logger.With(zap.String("component", "discovery")),
	}
}

// RegisterScanner registers a device scanner
func (sm *ScannerManager) RegisterScanner(scanner DeviceScanner) {
	sm.scanners = append(sm.scanners, scanner)
	sm.logger.Debug("Scanner registered", zap.String("type", scanner.GetScannerType()))
}

// Discover returns the first device found. The first responder wins.
func (sm *ScannerManager) Discover(ctx context.Context) (*DiscoveredDevice, error) {
	var lastErr error

	for _, scanner := range sm.scanners {
		scannerType := scanner.GetScannerType()
		if !scanner.IsAvailable() {
			sm.logger.Debug("Scanner not available, skipping", zap.String("type", scannerType))
			continue
		}

		device, err := scanner.Scan(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			sm.logger.Warn("Scanner found no device", zap.String("type", scannerType), zap.Error(err))
			lastErr = err
			continue
		}

		sm.logger.Info("Device discovered",
			zap.String("type", scannerType),
			zap.Stringer("address", device.Address),
			zap.String("interface", device.Interface),
		)
		return device, nil
	}

	if lastErr == nil {
		return nil, ErrDiscoveryExhausted
	}
	if errors.Is(lastErr, ErrDiscoveryExhausted) {
		return nil, lastErr
	}
	return nil, fmt.Errorf("%w: %w", ErrDiscoveryExhausted, lastErr)
}

// GetAvailableScanners returns list of available scanner types
func (sm *ScannerManager) GetAvailableScanners() []string {
	var available []string
	for _, scanner := range sm.scanners {
		if scanner.IsAvailable() {
			available = append(available, scanner.GetScannerType())
		}
	}
	return available
}
