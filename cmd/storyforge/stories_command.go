package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"storyforge/internal/api"
)

func newStoriesCommand(ctx *commandContext) *cobra.Command {
	storiesCmd := &cobra.Command{
		Use:   "stories",
		Short: "Manage locally saved stories",
	}
	storiesCmd.AddCommand(newStoriesListCommand(ctx))
	storiesCmd.AddCommand(newStoriesPruneCommand(ctx))
	return storiesCmd
}

func newStoriesListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved stories, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.artifactStore()
			if err != nil {
				return err
			}
			list, err := store.List()
			if err != nil {
				return err
			}
			artifacts := make([]api.Artifact, 0, len(list))
			for _, a := range list {
				artifacts = append(artifacts, api.FromArtifact(a))
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, artifacts)
			}
			out := cmd.OutOrStdout()
			if len(artifacts) == 0 {
				fmt.Fprintln(out, "No saved stories")
				return nil
			}
			rows := make([][]string, 0, len(artifacts))
			for _, a := range artifacts {
				published := "pending"
				if a.CardID != "" {
					published = fmt.Sprintf("chapter %s", a.ChapterKey)
				}
				rows = append(rows, []string{
					a.ID,
					a.Title,
					valueOrDash(a.HeroName),
					formatTimestamp(a.CreatedAt),
					published,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Title", "Hero", "Created", "Published"},
				rows, nil, shouldColorize(out),
			))
			return nil
		},
	}
}

func newStoriesPruneCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration
	var includePending bool

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete saved stories older than a cutoff",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan < 0 {
				return fmt.Errorf("--older-than must not be negative")
			}
			store, err := ctx.artifactStore()
			if err != nil {
				return err
			}
			result := store.Prune(cmd.Context(), olderThan, includePending)
			out := cmd.OutOrStdout()
			if ctx.jsonOutput() {
				payload := map[string]any{
					"removed": result.Removed,
					"kept":    result.Kept,
					"errors":  len(result.Errors),
				}
				if err := writeJSON(cmd, payload); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(out, "Removed %d stories, kept %d\n", len(result.Removed), result.Kept)
				for _, pruneErr := range result.Errors {
					fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %v\n", pruneErr.Path, pruneErr.Error)
				}
			}
			if len(result.Errors) > 0 {
				return fmt.Errorf("%d stories could not be removed", len(result.Errors))
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Remove stories created before this age")
	cmd.Flags().BoolVar(&includePending, "include-pending", false, "Also remove stories that were never published")
	return cmd
}
