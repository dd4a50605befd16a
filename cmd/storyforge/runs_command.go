package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"storyforge/internal/api"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent playlist updates",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openLedger()
			if err != nil {
				return err
			}
			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, api.FromRuns(runs))
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			rows := make([][]string, 0, len(runs))
			for _, run := range api.FromRuns(runs) {
				outcome := run.ChapterKey
				if run.Status == "failed" {
					outcome = run.ErrorKind
				}
				rows = append(rows, []string{
					formatTimestamp(run.CreatedAt),
					run.ID,
					run.PlaylistTitle,
					run.Status,
					run.Phase,
					valueOrDash(outcome),
					valueOrDash(run.ArtifactID),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"When", "Run", "Playlist", "Status", "Phase", "Chapter/Error", "Story"},
				rows, nil, shouldColorize(out),
			))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show (0 for all)")
	return cmd
}
