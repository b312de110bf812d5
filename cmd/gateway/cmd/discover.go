// cmd/gateway/cmd/discover.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"linky-gateway/internal/config"
	"linky-gateway/internal/discovery"
	"linky-gateway/internal/discovery/udp"
	"linky-gateway/internal/utils"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Locate the meter interface on the local network and print its address",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		logger, err := utils.NewLogger(&cfg.Logging)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		defer utils.CloseLogger(logger)

		manager := newScannerManager(cfg, logger)
		logger.Info("Discovering meter interface", zap.Strings("scanners", manager.GetAvailableScanners()))

		device, err := manager.Discover(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), device.Address)
		return nil
	},
}

func newScannerManager(cfg *config.Config, logger *zap.Logger) *discovery.ScannerManager {
	manager := discovery.NewScannerManager(logger)
	manager.RegisterScanner(udp.NewScanner(logger, &udp.Config{
		Port:     cfg.Discovery.Port,
		Probe:    cfg.Discovery.Probe,
		Attempts: cfg.Discovery.Attempts,
		Timeout:  cfg.Discovery.Timeout,
	}))
	return manager
}
