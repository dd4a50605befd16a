package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newPlaylistCommand(ctx *commandContext) *cobra.Command {
	playlistCmd := &cobra.Command{
		Use:   "playlist",
		Short: "Inspect playlists on the platform",
	}
	playlistCmd.AddCommand(newPlaylistShowCommand(ctx))
	return playlistCmd
}

func newPlaylistShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show [title]",
		Short: "Show the chapters of a playlist",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := ctx.service()
			if err != nil {
				return err
			}
			signalCtx, cancel := signalContext(cmd)
			defer cancel()

			title := ""
			if len(args) == 1 {
				title = args[0]
			}
			view, err := svc.ShowPlaylist(signalCtx, title)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, view)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			fmt.Fprintln(out, renderStatusLine("Playlist", statusInfo, fmt.Sprintf("%s (%s)", view.Title, view.CardID), colorize))
			fmt.Fprintln(out, renderStatusLine("Totals", statusInfo, fmt.Sprintf("%d chapters, %s, %s",
				len(view.Chapters), formatSeconds(view.DurationSeconds), formatBytes(view.FileSizeBytes)), colorize))
			if view.Duplicates > 0 {
				fmt.Fprintln(out, renderStatusLine("Duplicates", statusWarn,
					fmt.Sprintf("%d other playlist(s) share this title; the oldest is shown", view.Duplicates), colorize))
			}
			if len(view.Chapters) == 0 {
				fmt.Fprintln(out, "No chapters yet")
				return nil
			}
			rows := make([][]string, 0, len(view.Chapters))
			for _, ch := range view.Chapters {
				rows = append(rows, []string{
					ch.Key,
					strings.TrimSpace(ch.Title),
					fmt.Sprintf("%d", ch.Tracks),
					formatSeconds(ch.DurationSeconds),
					formatBytes(ch.FileSizeBytes),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Key", "Title", "Tracks", "Duration", "Size"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight},
				colorize,
			))
			return nil
		},
	}
}
