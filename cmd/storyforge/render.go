package main

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"storyforge/internal/api"
	"storyforge/internal/reconcile"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 16
	statusIndent     = "  "
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := fmt.Sprintf("[%s]", statusKindLabel(kind))
	if message != "" {
		statusText += " " + message
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func renderChapter(out io.Writer, chapter *api.Chapter) {
	colorize := shouldColorize(out)
	verb := "Added"
	if chapter.Created {
		verb = "Created playlist and added"
	}
	fmt.Fprintln(out, renderStatusLine("Chapter", statusOK,
		fmt.Sprintf("%s %s %q", verb, chapter.ChapterKey, chapter.ChapterTitle), colorize))
	fmt.Fprintln(out, renderStatusLine("Playlist", statusInfo,
		fmt.Sprintf("%s (%s)", chapter.Playlist, chapter.CardID), colorize))
	fmt.Fprintln(out, renderStatusLine("Totals", statusInfo,
		fmt.Sprintf("%d chapters, %s, %s", chapter.ChapterCount,
			formatSeconds(chapter.DurationSeconds), formatBytes(chapter.FileSizeBytes)), colorize))
	coverKind, coverText := statusInfo, "unchanged"
	if chapter.CoverSet {
		coverKind, coverText = statusOK, "updated"
	}
	fmt.Fprintln(out, renderStatusLine("Cover", coverKind, coverText, colorize))
	if chapter.ArtifactID != "" {
		fmt.Fprintln(out, renderStatusLine("Saved story", statusInfo, chapter.ArtifactID, colorize))
	}
}

// reportFailure prints the retry details of a failed workflow to w and
// returns err unchanged for the exit status.
func reportFailure(w io.Writer, err error) error {
	if err == nil {
		return nil
	}
	var failure *reconcile.Failure
	if !errors.As(err, &failure) {
		return err
	}
	rendered := api.FromError(err)
	colorize := shouldColorize(w)
	fmt.Fprintln(w, renderStatusLine("Failed phase", statusError, rendered.Phase, colorize))
	if rendered.RunID != "" {
		fmt.Fprintln(w, renderStatusLine("Run", statusInfo, rendered.RunID, colorize))
	}
	if rendered.ArtifactID != "" {
		fmt.Fprintln(w, renderStatusLine("Saved story", statusInfo, rendered.ArtifactID, colorize))
	}
	if rendered.Orphans > 0 {
		fmt.Fprintln(w, renderStatusLine("Orphaned media", statusWarn,
			fmt.Sprintf("%d upload(s); see 'storyforge media orphans'", rendered.Orphans), colorize))
	}
	if rendered.Hint != "" {
		fmt.Fprintln(w, renderStatusLine("Next step", statusWarn, rendered.Hint, colorize))
	}
	return err
}

func formatSeconds(seconds float64) string {
	if seconds <= 0 {
		return "0:00"
	}
	total := int(math.Round(seconds))
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func formatBytes(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	return humanize.Bytes(uint64(n))
}

// formatTimestamp renders an API timestamp relative to now.
func formatTimestamp(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "-"
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return value
	}
	return humanize.Time(t)
}

func valueOrDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
