package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"storyforge/internal/api"
	"storyforge/internal/ledger"
)

func newMediaCommand(ctx *commandContext) *cobra.Command {
	mediaCmd := &cobra.Command{
		Use:   "media",
		Short: "Inspect media uploaded to the platform",
	}
	mediaCmd.AddCommand(newMediaOrphansCommand(ctx))
	return mediaCmd
}

func newMediaOrphansCommand(ctx *commandContext) *cobra.Command {
	var resolve bool

	cmd := &cobra.Command{
		Use:   "orphans [id...]",
		Short: "List media uploaded by failed runs",
		Long: "List media uploaded by runs that failed before the playlist was saved.\n" +
			"The platform offers no delete endpoint; --resolve marks the listed orphans\n" +
			"(or all of them when no IDs are given) as handled.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid orphan id %q", arg)
				}
				ids = append(ids, id)
			}
			if len(ids) > 0 && !resolve {
				return fmt.Errorf("orphan ids are only accepted with --resolve")
			}
			store, err := ctx.openLedger()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if resolve {
				n, err := store.ResolveOrphans(cmd.Context(), ids...)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]int64{"resolved": n})
				}
				fmt.Fprintf(out, "Resolved %d orphaned upload(s)\n", n)
				return nil
			}

			orphans, err := store.ListOrphans(cmd.Context())
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, api.FromUploads(orphans))
			}
			if len(orphans) == 0 {
				fmt.Fprintln(out, "No orphaned media")
				return nil
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Run", "Kind", "Locator / Upload", "Uploaded"},
				orphanRows(orphans),
				[]columnAlignment{alignRight},
				shouldColorize(out),
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&resolve, "resolve", false, "Mark orphans as handled")
	return cmd
}

func orphanRows(orphans []ledger.Upload) [][]string {
	rows := make([][]string, 0, len(orphans))
	for _, u := range api.FromUploads(orphans) {
		ref := u.Locator
		if ref == "" {
			ref = u.UploadID
		}
		rows = append(rows, []string{
			strconv.FormatInt(u.ID, 10),
			u.RunID,
			u.Kind,
			valueOrDash(ref),
			formatTimestamp(u.CreatedAt),
		})
	}
	return rows
}

