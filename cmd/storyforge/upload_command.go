package main

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"storyforge/internal/api"
	"storyforge/internal/config"
)

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var audioPath, imagePath, title, hero, playlistTitle, artifactID string

	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Add an audio file (or a saved story) as a new chapter",
		Example: `  storyforge upload --audio owl.mp3 --title "The Owl" --image owl.png
  storyforge upload --artifact 6f1c1f5e-5c1a-4f0e-9d59-9f1d7d2f2a10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			audioPath = strings.TrimSpace(audioPath)
			artifactID = strings.TrimSpace(artifactID)
			switch {
			case audioPath == "" && artifactID == "":
				return errors.New("one of --audio or --artifact is required")
			case audioPath != "" && artifactID != "":
				return errors.New("--audio and --artifact are mutually exclusive")
			}

			svc, _, err := ctx.service()
			if err != nil {
				return err
			}
			signalCtx, cancel := signalContext(cmd)
			defer cancel()

			var chapter *api.Chapter
			if artifactID != "" {
				chapter, err = svc.PublishArtifact(signalCtx, artifactID, playlistTitle)
			} else {
				req := api.ChapterRequest{
					PlaylistTitle: playlistTitle,
					ChapterTitle:  title,
					HeroName:      hero,
				}
				if req.Audio, req.AudioMIME, err = readMediaFile(audioPath); err != nil {
					return err
				}
				if strings.TrimSpace(imagePath) != "" {
					if req.Image, req.ImageMIME, err = readMediaFile(imagePath); err != nil {
						return err
					}
				}
				chapter, err = svc.UploadChapter(signalCtx, req)
			}
			if err != nil {
				return reportFailure(cmd.ErrOrStderr(), err)
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, chapter)
			}
			renderChapter(cmd.OutOrStdout(), chapter)
			return nil
		},
	}

	cmd.Flags().StringVar(&audioPath, "audio", "", "Audio file to add")
	cmd.Flags().StringVar(&imagePath, "image", "", "Cover image for the playlist")
	cmd.Flags().StringVarP(&title, "title", "t", "", "Chapter title")
	cmd.Flags().StringVar(&hero, "hero", "", "Hero name, used when no title is given")
	cmd.Flags().StringVarP(&playlistTitle, "playlist", "p", "", "Playlist title (defaults to playlist.default_title)")
	cmd.Flags().StringVar(&artifactID, "artifact", "", "Retry a saved story by ID instead of reading --audio")
	return cmd
}

// readMediaFile loads path and reports its MIME type from the extension,
// falling back to content sniffing.
func readMediaFile(path string) ([]byte, string, error) {
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%s is empty", path)
	}
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(expanded)))
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	return data, mimeType, nil
}
