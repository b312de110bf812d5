// cmd/gateway/cmd/run.go
package cmd

import (
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Stream meter readings to the configured sink",
	RunE:  runGateway,
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	app, err := NewApplication(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	return app.Run(cmd.Context())
}
