package main

import (
	"github.com/spf13/cobra"

	"github.com/rushteam/careerkit/core"
)

func newRecommendCmd(root *rootOptions) *cobra.Command {
	var (
		userID  string
		topK    int
		filters core.RetrievalFilters
	)
	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Recommend careers for a user and print them as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("tags") {
				filters.AllowedTokens = nil
			}
			a, err := root.build(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			defer a.Logger.Sync() //nolint:errcheck

			resp, err := a.Orchestrator.Recommend(cmd.Context(), userID, topK, filters)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "user id (required)")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 10, "number of careers to return")
	cmd.Flags().StringSliceVarP(&filters.AllowedTokens, "tags", "t", nil, "allowed tag tokens, comma separated")
	cmd.Flags().IntVar(&filters.MinTagMatch, "min-tag-match", 0, "minimum number of matching tags")
	cmd.Flags().StringVar(&filters.IDPrefix, "id-prefix", "", "only keep job ids with this prefix, e.g. 15-")
	cmd.Flags().BoolVar(&filters.ExcludeSeen, "exclude-seen", false, "drop careers already shown to the user (needs seen.enabled)")
	cmd.Flags().StringVar(&filters.Expr, "expr", "", "CEL expression over candidate, e.g. candidate.sim_score > 0.5")
	if err := cmd.MarkFlagRequired("user"); err != nil {
		panic(err)
	}
	return cmd
}
