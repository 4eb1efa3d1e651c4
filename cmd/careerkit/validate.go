package main

import (
	"github.com/spf13/cobra"

	"github.com/rushteam/careerkit/feature"
)

func newValidateCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load the config, catalog, profiles and model, then report what would be served",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := root.build(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			defer a.Logger.Sync() //nolint:errcheck

			size, err := a.Context.Store.Size(cmd.Context())
			if err != nil {
				return err
			}
			summary := map[string]any{
				"status":        "ok",
				"embedding_dim": a.Config.EmbeddingDim,
				"feature_dim":   feature.NewLayout(a.Config.EmbeddingDim).Dim(),
				"candidates":    size,
				"catalog":       a.Context.Store.Name(),
				"profiles":      a.Context.Profiles.Name(),
				"scorer":        a.Context.Scorer.Name(),
				"policy":        a.Orchestrator.Policy().Name(),
			}
			if a.Context.Outcomes != nil {
				summary["outcomes"] = a.Context.Outcomes.Name()
			}
			return writeJSON(cmd.OutOrStdout(), summary)
		},
	}
}
