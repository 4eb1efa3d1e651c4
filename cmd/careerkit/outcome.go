package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/rushteam/careerkit/core"
)

func newOutcomeCmd(root *rootOptions) *cobra.Command {
	var (
		outcome core.Outcome
		ts      string
	)
	cmd := &cobra.Command{
		Use:   "outcome",
		Short: "Record a shown/clicked event for the bandit statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			outcome.Timestamp = time.Now().UTC()
			if ts != "" {
				t, err := time.Parse(time.RFC3339, ts)
				if err != nil {
					return core.NewValidationError(core.ModuleStore, "invalid --timestamp %q: %v", ts, err)
				}
				outcome.Timestamp = t
			}
			a, err := root.build(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			defer a.Logger.Sync() //nolint:errcheck

			recorded, err := a.Orchestrator.RecordOutcome(cmd.Context(), outcome)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"job_id":   outcome.JobID,
				"recorded": recorded,
			})
		},
	}
	cmd.Flags().StringVar(&outcome.JobID, "job-id", "", "job id (required)")
	cmd.Flags().StringVarP(&outcome.UserID, "user", "u", "", "user the job was shown to (optional)")
	cmd.Flags().BoolVar(&outcome.Shown, "shown", true, "the job was shown")
	cmd.Flags().BoolVar(&outcome.Clicked, "clicked", false, "the job was clicked")
	cmd.Flags().StringVar(&ts, "timestamp", "", "event time in RFC3339; part of the idempotency key (default now)")
	if err := cmd.MarkFlagRequired("job-id"); err != nil {
		panic(err)
	}
	return cmd
}
