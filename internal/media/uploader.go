package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"storyforge/internal/logging"
	"storyforge/internal/platform"
	"storyforge/internal/playlist"
	"storyforge/internal/services"
)

const (
	phaseCover = "cover"
	phaseAudio = "audio"

	// AudioContentType is the only raw audio format the platform ingests.
	AudioContentType = "audio/mpeg"
)

// ErrUnsupportedFormat marks an image the platform cannot convert into a
// cover. Callers skip the cover rather than fail.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// UploadAPI is the subset of the platform client the Uploader needs.
type UploadAPI interface {
	UploadCoverImage(ctx context.Context, data []byte, mimeType string) (string, error)
	RequestAudioSlot(ctx context.Context) (platform.AudioSlot, error)
	PutAudio(ctx context.Context, uploadURL string, data []byte, contentType string) error
}

// AudioUpload identifies raw audio handed to the platform for transcoding.
type AudioUpload struct {
	UploadID  string
	UploadURL string
}

// Uploader pushes cover images and raw audio to the platform.
type Uploader struct {
	api    UploadAPI
	logger *slog.Logger
}

// NewUploader constructs an Uploader.
func NewUploader(api UploadAPI, logger *slog.Logger) *Uploader {
	return &Uploader{api: api, logger: logging.NewComponentLogger(logger, "uploader")}
}

var supportedImageTypes = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
	"image/gif":  {},
	"image/webp": {},
	"image/bmp":  {},
}

// UploadImage uploads cover art. An empty mimeType is sniffed from data.
// Vector and non-image formats return ErrUnsupportedFormat without a request.
func (u *Uploader) UploadImage(ctx context.Context, data []byte, mimeType string) (playlist.MediaReference, error) {
	if len(data) == 0 {
		return playlist.MediaReference{}, services.Wrap(services.ErrValidation, phaseCover, "upload image", "image is empty", nil)
	}
	mimeType = NormalizeImageType(data, mimeType)
	if _, ok := supportedImageTypes[mimeType]; !ok {
		return playlist.MediaReference{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, mimeType)
	}

	mediaURL, err := u.api.UploadCoverImage(ctx, data, mimeType)
	if err != nil {
		return playlist.MediaReference{}, uploadError(phaseCover, "upload image", err)
	}
	u.logger.Debug("cover image uploaded",
		logging.String("mime_type", mimeType),
		logging.Int("bytes", len(data)),
	)
	return playlist.MediaReference{
		Kind:          playlist.MediaImage,
		Locator:       mediaURL,
		Format:        strings.TrimPrefix(mimeType, "image/"),
		FileSizeBytes: int64(len(data)),
	}, nil
}

// NormalizeImageType returns the canonical mime type of an image, sniffing
// data when declared is empty or generic.
func NormalizeImageType(data []byte, declared string) string {
	declared = strings.TrimSpace(declared)
	if declared != "" {
		if parsed, _, err := mime.ParseMediaType(declared); err == nil {
			declared = strings.ToLower(parsed)
		}
	}
	if declared == "" || declared == "application/octet-stream" {
		declared = http.DetectContentType(data)
		if parsed, _, err := mime.ParseMediaType(declared); err == nil {
			declared = parsed
		}
	}
	if declared == "image/jpg" {
		declared = "image/jpeg"
	}
	if declared == "text/xml" || declared == "text/plain" {
		if looksLikeSVG(data) {
			return "image/svg+xml"
		}
	}
	return declared
}

func looksLikeSVG(data []byte) bool {
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	return strings.Contains(strings.ToLower(string(head)), "<svg")
}

// UploadAudioRaw obtains an upload slot and sends data to it. There is no
// retry; any failure is an upload error.
func (u *Uploader) UploadAudioRaw(ctx context.Context, data []byte) (AudioUpload, error) {
	if len(data) == 0 {
		return AudioUpload{}, services.Wrap(services.ErrValidation, phaseAudio, "upload audio", "audio is empty", nil)
	}
	slot, err := u.api.RequestAudioSlot(ctx)
	if err != nil {
		return AudioUpload{}, uploadError(phaseAudio, "request upload slot", err)
	}
	if err := u.api.PutAudio(ctx, slot.UploadURL, data, AudioContentType); err != nil {
		return AudioUpload{}, uploadError(phaseAudio, "put audio", err)
	}
	u.logger.Info("raw audio uploaded",
		logging.String("upload_id", slot.UploadID),
		logging.Int("bytes", len(data)),
	)
	return AudioUpload{UploadID: slot.UploadID, UploadURL: slot.UploadURL}, nil
}

func uploadError(phase, operation string, err error) error {
	if errors.Is(err, services.ErrAuth) {
		return services.Wrap(services.ErrAuth, phase, operation, "", err)
	}
	if code := platform.StatusCode(err); code != 0 {
		return services.Wrap(services.ErrUpload, phase, operation, fmt.Sprintf("status %d", code), err)
	}
	return services.Wrap(services.ErrUpload, phase, operation, "", err)
}
