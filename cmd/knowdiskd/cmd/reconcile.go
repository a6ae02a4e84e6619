package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newReconcileCmd(root *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run a single scheduled reconcile pass, diffing the source tree against the index",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*root)
			if err != nil {
				return err
			}
			defer a.close()

			result, err := a.orch.RunScheduledReconcile(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reconciled: indexed %d, repaired %d, %d errors\n",
				result.IndexedFiles, result.Repaired, len(result.Errors))
			return nil
		},
	}
}
