package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fieldgate/fieldgate/pkg/config"
	"github.com/fieldgate/fieldgate/pkg/protocol"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a gateway configuration file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if configPath == "" {
			return errors.New("--config is required")
		}

		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return err
		}

		// Surface unknown protocol types before boot does.
		known := map[protocol.Protocol]bool{
			protocol.ProtocolModbusTCP:  true,
			protocol.ProtocolMQTT:       true,
			protocol.ProtocolOPCUA:      true,
			protocol.ProtocolProfinet:   true,
			protocol.ProtocolEthernetIP: true,
			protocol.ProtocolCANopen:    true,
			protocol.ProtocolBACnet:     true,
		}
		for _, conn := range cfg.Connections {
			if !known[protocol.Protocol(conn.Type)] {
				return fmt.Errorf("connection %q: %w: %s", conn.ID, protocol.ErrUnknownProtocol, conn.Type)
			}
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s: OK (%d connections, %d alert rules)\n",
			configPath, len(cfg.Connections), len(cfg.AlertRules))
		return nil
	},
}
