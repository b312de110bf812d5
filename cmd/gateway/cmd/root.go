// cmd/gateway/cmd/root.go
package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"linky-gateway/internal/config"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "linky-gateway",
	Short: "Linky TIC telemetry gateway",
	Long: `Connects to a Linky TIC interface on the local network or a serial line,
decodes the teleinformation frames and forwards valid readings to a sink.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runGateway,
}

// Execute runs the command line; with no sub-command the gateway is started
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configFile, "config", "c", "", "config file (default ./config.yaml)")
	flags.StringP("device", "d", "", "meter interface address, discovered when empty")
	flags.String("transport", "", "meter transport: tcp or serial")
	flags.String("serial-port", "", "serial device for the serial transport")
	flags.String("sink", "", "sink type: elasticsearch, redis, postgres or log")
	flags.String("sink-url", "", "sink URL")
	flags.String("destination", "", "index, channel or table name")
	flags.String("log-level", "", "debug, info, warn or error")
	flags.String("log-format", "", "json or console")
	flags.Bool("http", true, "serve the status API")
	flags.String("http-port", "", "status API port")

	rootCmd.AddCommand(runCmd, discoverCmd, migrateCmd)
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(configFile, cmd.Flags())
}
