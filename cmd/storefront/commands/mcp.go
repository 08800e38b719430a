package commands

import (
	"github.com/spf13/cobra"

	"github.com/livetemplate/storefront/internal/mcpserver"
)

func (a *app) mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run the layout editing MCP server on stdio",
		Long: `Mcp exposes draft editing, publish and discard as MCP tools over
stdin/stdout. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			cs, release, err := a.openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer release()
			return mcpserver.New(cs).ServeStdio()
		},
	}
}
