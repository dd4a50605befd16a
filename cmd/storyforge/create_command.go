package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"storyforge/internal/story"
)

func newCreateCommand(ctx *commandContext) *cobra.Command {
	var prompt story.Prompt
	var drawingPath, playlistTitle string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Write, narrate and add a new story",
		Example: `  storyforge create --hero Luna --setup "a lantern in the woods" --age 3-5
  storyforge create --hero Pip --setup "a lost kite" --drawing pip.png`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(drawingPath) != "" {
				data, mimeType, err := readMediaFile(drawingPath)
				if err != nil {
					return err
				}
				prompt.Image, prompt.ImageMIME = data, mimeType
			}
			svc, _, err := ctx.service()
			if err != nil {
				return err
			}
			signalCtx, cancel := signalContext(cmd)
			defer cancel()

			out := cmd.OutOrStdout()
			if !ctx.jsonOutput() {
				band := story.ResolveAgeBand(prompt.AgeBand)
				fmt.Fprintf(out, "Writing a ~%d word story for ages %s ...\n", band.TargetWords, band.Name)
			}
			result, err := svc.CreateStory(signalCtx, prompt, playlistTitle)
			if err != nil {
				return reportFailure(cmd.ErrOrStderr(), err)
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, result)
			}
			fmt.Fprintln(out, renderStatusLine("Story", statusOK, fmt.Sprintf("%q", result.Artifact.Title), shouldColorize(out)))
			renderChapter(out, result.Chapter)
			return nil
		},
	}

	cmd.Flags().StringVar(&prompt.HeroName, "hero", "", "Name of the story's hero (required)")
	cmd.Flags().StringVar(&prompt.Setup, "setup", "", "Where and how the story begins (required)")
	cmd.Flags().StringVar(&prompt.Rising, "rising", "", "What happens next")
	cmd.Flags().StringVar(&prompt.Climax, "climax", "", "The big moment")
	cmd.Flags().StringVar(&prompt.AgeBand, "age", story.DefaultAgeBand, "Listener age band: 3-5, 6-8 or 9-12")
	cmd.Flags().StringVar(&drawingPath, "drawing", "", "A drawing of the hero, used as inspiration and cover")
	cmd.Flags().StringVarP(&playlistTitle, "playlist", "p", "", "Playlist title (defaults to playlist.default_title)")
	return cmd
}
