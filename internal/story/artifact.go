package story

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"storyforge/internal/fileutil"
	"storyforge/internal/logging"
	"storyforge/internal/services"
)

const (
	textFile     = "story.txt"
	manifestFile = "meta.json"
)

// ErrArtifactNotFound is returned when no saved artifact has the requested ID.
var ErrArtifactNotFound = errors.New("story artifact not found")

// Artifact is a story saved locally before it is pushed to the platform.
type Artifact struct {
	ID        string
	Title     string
	HeroName  string
	AgeBand   string
	Text      string
	Audio     []byte
	AudioMIME string
	Image     []byte
	ImageMIME string
	CreatedAt time.Time

	// Set once the story has been added to a playlist.
	CardID     string
	ChapterKey string
	UploadedAt time.Time
}

// Uploaded reports whether the artifact reached the platform.
func (a Artifact) Uploaded() bool {
	return a.CardID != ""
}

type fileEntry struct {
	Name   string `json:"name"`
	MIME   string `json:"mime"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
}

type manifest struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	HeroName   string     `json:"hero_name,omitempty"`
	AgeBand    string     `json:"age_band,omitempty"`
	Audio      fileEntry  `json:"audio"`
	Image      *fileEntry `json:"image,omitempty"`
	HasText    bool       `json:"has_text"`
	CreatedAt  time.Time  `json:"created_at"`
	CardID     string     `json:"card_id,omitempty"`
	ChapterKey string     `json:"chapter_key,omitempty"`
	UploadedAt *time.Time `json:"uploaded_at,omitempty"`
}

// ArtifactStore keeps one directory per story under the staging directory.
// meta.json is written last, so a directory without it is an interrupted save.
type ArtifactStore struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

// NewArtifactStore returns a store rooted at dir.
func NewArtifactStore(dir string, logger *slog.Logger) *ArtifactStore {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &ArtifactStore{
		dir:    strings.TrimSpace(dir),
		logger: logging.NewComponentLogger(logger, "artifacts"),
		now:    time.Now,
	}
}

// Dir returns the staging root.
func (s *ArtifactStore) Dir() string {
	return s.dir
}

// Path returns the directory holding the artifact with id.
func (s *ArtifactStore) Path(id string) string {
	return filepath.Join(s.dir, id)
}

// Save writes the artifact to disk, assigning an ID and creation time when
// missing. Audio is required.
func (s *ArtifactStore) Save(a *Artifact) error {
	if a == nil || len(a.Audio) == 0 {
		return services.Wrap(services.ErrValidation, "artifact", "save", "artifact has no audio", nil)
	}
	if s.dir == "" {
		return services.Wrap(services.ErrConfiguration, "artifact", "save", "paths.staging_dir is not set", nil)
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	} else if err := validateID(a.ID); err != nil {
		return err
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now().UTC()
	}
	if strings.TrimSpace(a.AudioMIME) == "" {
		a.AudioMIME = "audio/mpeg"
	}

	dir := s.Path(a.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}

	m := manifest{
		ID:         a.ID,
		Title:      strings.TrimSpace(a.Title),
		HeroName:   strings.TrimSpace(a.HeroName),
		AgeBand:    strings.TrimSpace(a.AgeBand),
		CreatedAt:  a.CreatedAt,
		CardID:     a.CardID,
		ChapterKey: a.ChapterKey,
	}
	if !a.UploadedAt.IsZero() {
		uploaded := a.UploadedAt
		m.UploadedAt = &uploaded
	}

	if strings.TrimSpace(a.Text) != "" {
		if err := fileutil.WriteFileAtomic(filepath.Join(dir, textFile), []byte(a.Text), 0o644); err != nil {
			return fmt.Errorf("write story text: %w", err)
		}
		m.HasText = true
	}

	audio, err := writeBlob(dir, "audio"+audioExtension(a.AudioMIME), a.AudioMIME, a.Audio)
	if err != nil {
		return fmt.Errorf("write audio: %w", err)
	}
	m.Audio = audio

	if len(a.Image) > 0 {
		image, err := writeBlob(dir, "cover"+imageExtension(a.ImageMIME), a.ImageMIME, a.Image)
		if err != nil {
			return fmt.Errorf("write cover: %w", err)
		}
		m.Image = &image
	}

	if err := writeManifest(dir, m); err != nil {
		return err
	}
	s.logger.Info("story artifact saved",
		logging.String("artifact_id", a.ID),
		logging.String("title", m.Title),
		logging.Int("audio_bytes", len(a.Audio)),
		logging.Bool("has_cover", m.Image != nil),
		logging.Event("artifact_saved"),
	)
	return nil
}

// Load reads the artifact with id, verifying stored media against meta.json.
func (s *ArtifactStore) Load(id string) (*Artifact, error) {
	id = strings.TrimSpace(id)
	if err := validateID(id); err != nil {
		return nil, err
	}
	dir := s.Path(id)
	m, err := readManifest(dir)
	if err != nil {
		return nil, err
	}
	a := m.artifact()

	if m.HasText {
		text, err := os.ReadFile(filepath.Join(dir, textFile))
		if err != nil {
			return nil, fmt.Errorf("read story text: %w", err)
		}
		a.Text = string(text)
	}
	a.Audio, err = fileutil.ReadFileVerified(filepath.Join(dir, m.Audio.Name), m.Audio.Size, m.Audio.SHA256)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "artifact", "load audio", "artifact "+id+" is damaged", err)
	}
	if m.Image != nil {
		a.Image, err = fileutil.ReadFileVerified(filepath.Join(dir, m.Image.Name), m.Image.Size, m.Image.SHA256)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "artifact", "load cover", "artifact "+id+" is damaged", err)
		}
	}
	return a, nil
}

// List returns metadata for every complete artifact, newest first. Media
// bytes and text are not loaded.
func (s *ArtifactStore) List() ([]Artifact, error) {
	if s.dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	var out []Artifact
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		m, err := readManifest(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}
		out = append(out, *m.artifact())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// MarkUploaded records where the artifact landed on the platform.
func (s *ArtifactStore) MarkUploaded(id, cardID, chapterKey string) error {
	if err := validateID(id); err != nil {
		return err
	}
	dir := s.Path(id)
	m, err := readManifest(dir)
	if err != nil {
		return err
	}
	uploaded := s.now().UTC()
	m.CardID = cardID
	m.ChapterKey = chapterKey
	m.UploadedAt = &uploaded
	return writeManifest(dir, *m)
}

func (m manifest) artifact() *Artifact {
	a := &Artifact{
		ID:         m.ID,
		Title:      m.Title,
		HeroName:   m.HeroName,
		AgeBand:    m.AgeBand,
		AudioMIME:  m.Audio.MIME,
		CreatedAt:  m.CreatedAt,
		CardID:     m.CardID,
		ChapterKey: m.ChapterKey,
	}
	if m.Image != nil {
		a.ImageMIME = m.Image.MIME
	}
	if m.UploadedAt != nil {
		a.UploadedAt = *m.UploadedAt
	}
	return a
}

func validateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return services.Wrap(services.ErrValidation, "artifact", "resolve", fmt.Sprintf("invalid artifact id %q", id), err)
	}
	return nil
}

func writeBlob(dir, name, mimeType string, data []byte) (fileEntry, error) {
	if err := fileutil.WriteFileAtomic(filepath.Join(dir, name), data, 0o644); err != nil {
		return fileEntry{}, err
	}
	return fileEntry{
		Name:   name,
		MIME:   mimeType,
		Size:   int64(len(data)),
		SHA256: fileutil.SHA256Hex(data),
	}, nil
}

func writeManifest(dir string, m manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode artifact manifest: %w", err)
	}
	if err := fileutil.WriteFileAtomic(filepath.Join(dir, manifestFile), data, 0o644); err != nil {
		return fmt.Errorf("write artifact manifest: %w", err)
	}
	return nil
}

func readManifest(dir string) (*manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, filepath.Base(dir))
		}
		return nil, fmt.Errorf("read artifact manifest: %w", err)
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode artifact manifest: %w", err)
	}
	return &m, nil
}

func audioExtension(mimeType string) string {
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/mp4", "audio/x-m4a", "audio/aac":
		return ".m4a"
	case "audio/ogg", "audio/opus":
		return ".ogg"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/flac", "audio/x-flac":
		return ".flac"
	default:
		return ".bin"
	}
}

func imageExtension(mimeType string) string {
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/svg+xml":
		return ".svg"
	default:
		return ".img"
	}
}
