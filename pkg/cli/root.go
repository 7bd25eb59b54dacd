// Package cli implements the fieldgate command-line interface.
package cli

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "fieldgate",
	Short: "Industrial protocol gateway",
	Long: `fieldgate bridges industrial field devices (Modbus/TCP, MQTT, and
simulated OPC UA, PROFINET, EtherNet/IP, CANopen, BACnet endpoints) to a
REST and WebSocket API with live monitoring, alerting, and lifecycle
control.`,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to gateway configuration file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}
