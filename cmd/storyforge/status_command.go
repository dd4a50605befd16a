package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show session, ledger and configuration state",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := ctx.service()
			if err != nil {
				return err
			}
			status := svc.Status(cmd.Context())
			if ctx.jsonOutput() {
				return writeJSON(cmd, status)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			switch {
			case !status.Auth.SignedIn:
				fmt.Fprintln(out, renderStatusLine("Session", statusWarn, "Not signed in (run: storyforge auth login)", colorize))
			case status.Auth.Expired:
				fmt.Fprintln(out, renderStatusLine("Session", statusWarn, "Access token expired; it refreshes on next use", colorize))
			case status.Auth.ExpiresAt != "":
				fmt.Fprintln(out, renderStatusLine("Session", statusOK, "Signed in, token expires "+formatTimestamp(status.Auth.ExpiresAt), colorize))
			default:
				fmt.Fprintln(out, renderStatusLine("Session", statusOK, "Signed in", colorize))
			}
			fmt.Fprintln(out, renderStatusLine("Mode", statusInfo, status.Mode, colorize))
			fmt.Fprintln(out, renderStatusLine("Playlist", statusInfo, status.DefaultTitle, colorize))
			storyKind := statusInfo
			if status.StoryEnabled {
				storyKind = statusOK
			}
			fmt.Fprintln(out, renderStatusLine("Story pipeline", storyKind, yesNo(status.StoryEnabled), colorize))
			orphanKind := statusOK
			if status.Orphans > 0 {
				orphanKind = statusWarn
			}
			fmt.Fprintln(out, renderStatusLine("Orphaned media", orphanKind, fmt.Sprintf("%d", status.Orphans), colorize))
			fmt.Fprintln(out, renderStatusLine("Ledger", statusInfo, status.LedgerPath, colorize))
			fmt.Fprintln(out, renderStatusLine("Stories", statusInfo, status.StagingDir, colorize))
			return nil
		},
	}
}
