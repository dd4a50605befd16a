package ledger

import (
	"database/sql"
	"time"
)

const runColumns = "id, playlist_title, mode, artifact_id, status, phase, error_kind, error_message, card_id, chapter_key, chapter_title, created_at, updated_at"

const uploadColumns = "id, run_id, kind, locator, upload_id, status, created_at, updated_at"

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		run          Run
		status       string
		artifactID   sql.NullString
		phase        sql.NullString
		errorKind    sql.NullString
		errorMessage sql.NullString
		cardID       sql.NullString
		chapterKey   sql.NullString
		chapterTitle sql.NullString
		createdRaw   string
		updatedRaw   string
	)
	if err := row.Scan(
		&run.ID,
		&run.PlaylistTitle,
		&run.Mode,
		&artifactID,
		&status,
		&phase,
		&errorKind,
		&errorMessage,
		&cardID,
		&chapterKey,
		&chapterTitle,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	run.Status = RunStatus(status)
	run.ArtifactID = artifactID.String
	run.Phase = phase.String
	run.ErrorKind = errorKind.String
	run.ErrorMessage = errorMessage.String
	run.CardID = cardID.String
	run.ChapterKey = chapterKey.String
	run.ChapterTitle = chapterTitle.String
	run.CreatedAt = parseTimestamp(createdRaw)
	run.UpdatedAt = parseTimestamp(updatedRaw)
	return &run, nil
}

func scanUpload(row scanner) (*Upload, error) {
	var (
		upload     Upload
		status     string
		locator    sql.NullString
		uploadID   sql.NullString
		createdRaw string
		updatedRaw string
	)
	if err := row.Scan(
		&upload.ID,
		&upload.RunID,
		&upload.Kind,
		&locator,
		&uploadID,
		&status,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	upload.Status = UploadStatus(status)
	upload.Locator = locator.String
	upload.UploadID = uploadID.String
	upload.CreatedAt = parseTimestamp(createdRaw)
	upload.UpdatedAt = parseTimestamp(updatedRaw)
	return &upload, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimestamp(value string) time.Time {
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts
	}
	return time.Time{}
}
