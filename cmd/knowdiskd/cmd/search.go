package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/knowdisk/knowdisk/internal/retrieval"
)

func newSearchCmd(root *string) *cobra.Command {
	var topK int
	var titleOnly bool

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Run a hybrid (or title-only) search against the index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*root)
			if err != nil {
				return err
			}
			defer a.close()

			query := strings.Join(args, " ")
			results, err := a.pipeline.Search(cmd.Context(), query, retrieval.Options{TopK: topK, TitleOnly: titleOnly})
			if err != nil {
				return err
			}

			for i, r := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "%d. [%.4f] %s (%s)\n   %s\n", i+1, r.Score, r.SourcePath, r.ChunkID, truncatePreview(r.ChunkText, 200))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&topK, "top-k", 10, "maximum number of results")
	cmd.Flags().BoolVar(&titleOnly, "title-only", false, "restrict to a title-only lexical lookup")
	return cmd
}

func truncatePreview(text string, maxChars int) string {
	text = strings.ReplaceAll(text, "\n", " ")
	if len(text) <= maxChars {
		return text
	}
	return text[:maxChars] + "..."
}
