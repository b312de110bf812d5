// internal/discovery/udp/scanner.go
package udp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"go.uber.org/zap"

	"linky-gateway/internal/discovery"
	"linky-gateway/internal/model"
)

// Defaults of the discovery exchange
const (
	DefaultPort     = 51
	DefaultProbe    = "LinkyPIC"
	DefaultAttempts = 5
	DefaultTimeout  = 1500 * time.Millisecond
)

// replyLength is the size of a reply carrying an IPv4 address
const replyLength = 4

var errNoReply = errors.New("no reply")

// Config for UDP broadcast scanner
type Config struct {
	Port     int           `json:"port"`
	Probe    string        `json:"probe"`
	Attempts int           `json:"attempts"`
	Timeout  time.Duration `json:"timeout"`
}

// Candidate is one local address probed together with its subnet broadcast address
type Candidate struct {
	Interface string
	Local     net.IP
	Broadcast net.IP
}

// Scanner finds the meter interface by broadcasting a probe on every local IPv4 subnet
type Scanner struct {
	logger     *zap.Logger
	config     *Config
	candidates func() ([]Candidate, error)
}

// NewScanner creates a new UDP broadcast scanner
func NewScanner(logger *zap.Logger, config *Config) *Scanner {
	if config == nil {
		config = &Config{}
	}
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	if config.Probe == "" {
		config.Probe = DefaultProbe
	}
	if config.Attempts <= 0 {
		config.Attempts = DefaultAttempts
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}

	return &Scanner{
		logger:     logger.With(zap.String("scanner", "udp")),
		config:     config,
		candidates: InterfaceCandidates,
	}
}

// GetScannerType returns scanner type
func (s *Scanner) GetScannerType() string {
	return "udp-broadcast"
}

// IsAvailable checks if UDP broadcast is available
func (s *Scanner) IsAvailable() bool {
	return true
}

// Scan probes each candidate address in turn and returns the first responder
func (s *Scanner) Scan(ctx context.Context) (*discovery.DiscoveredDevice, error) {
	candidates, err := s.candidates()
	if err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}

	s.logger.Info("Starting UDP discovery",
		zap.Int("candidates", len(candidates)),
		zap.Int("port", s.config.Port),
	)

	lastErr := errors.New("no IPv4 broadcast-capable interface")
	for _, candidate := range candidates {
		address, err := s.probe(ctx, candidate)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !errors.Is(err, errNoReply) {
				s.logger.Warn("Discovery aborted for address",
					zap.String("interface", candidate.Interface),
					zap.Stringer("local", candidate.Local),
					zap.Error(err),
				)
			}
			lastErr = err
			continue
		}

		return &discovery.DiscoveredDevice{
			ConnectionType: model.ConnectionTypeTCP,
			Address:        address,
			LocalAddress:   candidate.Local,
			Interface:      candidate.Interface,
			Scanner:        s.GetScannerType(),
			DiscoveredAt:   time.Now(),
		}, nil
	}

	return nil, fmt.Errorf("%w: %w", discovery.ErrDiscoveryExhausted, lastErr)
}

// probe runs the bounded probe/reply exchange from one local address
func (s *Scanner) probe(ctx context.Context, candidate Candidate) (net.IP, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: candidate.Local})
	if err != nil {
		return nil, fmt.Errorf("failed to bind %s: %w", candidate.Local, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()

	target := &net.UDPAddr{IP: candidate.Broadcast, Port: s.config.Port}
	probe := []byte(s.config.Probe)
	reply := make([]byte, 64)

	for attempt := 1; attempt <= s.config.Attempts; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if _, err := conn.WriteToUDP(probe, target); err != nil {
			return nil, fmt.Errorf("failed to send probe to %s: %w", target, err)
		}
		if err := conn.SetReadDeadline(time.Now().Add(s.config.Timeout)); err != nil {
			return nil, fmt.Errorf("failed to set read deadline: %w", err)
		}

		n, from, err := conn.ReadFromUDP(reply)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, os.ErrDeadlineExceeded) {
				s.logger.Debug("No discovery reply",
					zap.Stringer("broadcast", candidate.Broadcast),
					zap.Int("attempt", attempt),
				)
				continue
			}
			return nil, fmt.Errorf("failed to read reply: %w", err)
		}

		if n != replyLength {
			s.logger.Debug("Ignoring malformed discovery reply",
				zap.Stringer("from", from),
				zap.Int("bytes", n),
			)
			continue
		}

		return net.IPv4(reply[0], reply[1], reply[2], reply[3]).To4(), nil
	}

	return nil, fmt.Errorf("%w after %d attempts on %s", errNoReply, s.config.Attempts, candidate.Broadcast)
}

// InterfaceCandidates lists the IPv4 unicast addresses of every operational,
// broadcast-capable interface
func InterfaceCandidates() ([]Candidate, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var candidates []Candidate
	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagBroadcast == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			broadcast := BroadcastAddress(ipNet)
			if broadcast == nil {
				continue
			}
			candidates = append(candidates, Candidate{
				Interface: iface.Name,
				Local:     ipNet.IP.To4(),
				Broadcast: broadcast,
			})
		}
	}
	return candidates, nil
}

// BroadcastAddress returns the directed broadcast address of an IPv4 network, or nil
func BroadcastAddress(ipNet *net.IPNet) net.IP {
	ip := ipNet.IP.To4()
	if ip == nil {
		return nil
	}
	mask := ipNet.Mask
	if len(mask) == net.IPv6len {
		mask = mask[12:]
	}
	if len(mask) != net.IPv4len {
		return nil
	}
	broadcast := make(net.IP, net.IPv4len)
	for i := range ip {
		broadcast[i] = ip[i] | ^mask[i]
	}
	return broadcast
}
