package cmd

import (
	"github.com/spf13/cobra"
)

func newServeCmd(root *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP tool-calling server over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*root)
			if err != nil {
				return err
			}
			defer a.close()

			server := a.mcpServer()
			return server.Run(cmd.Context())
		},
	}
}
