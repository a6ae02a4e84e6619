package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newIndexCmd(root *string) *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Run a full rebuild of the index for the source root",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*root)
			if err != nil {
				return err
			}
			defer a.close()

			result, err := a.orch.RunFullRebuild(cmd.Context(), "cli")
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d files, repaired %d, %d errors\n",
				result.IndexedFiles, result.Repaired, len(result.Errors))
			for _, e := range result.Errors {
				fmt.Fprintf(cmd.OutOrStdout(), "  error: %s\n", e)
			}
			return nil
		},
	}
}
