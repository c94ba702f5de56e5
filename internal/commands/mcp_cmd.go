package commands

import (
	"github.com/spf13/cobra"

	mcpserver "github.com/benegessarit/skill-composer/internal/mcp"
)

// McpCmd serves the span tools over MCP.
var McpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve span status and gate tools over MCP (stdio)",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		return mcpserver.Run(commandContext(cmd), mcpserver.Deps{
			Tracker:    e.tracker,
			Gate:       e.gate,
			Loader:     e.loader,
			RootInputs: e.cfg.RootInputs,
			Version:    Version,
		})
	},
}
