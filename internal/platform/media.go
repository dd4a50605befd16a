package platform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// AudioSlot is a pre-signed destination for raw audio bytes.
type AudioSlot struct {
	UploadID  string
	UploadURL string
}

// TranscodeStatus is the platform's view of an audio upload. SHA256 stays
// empty until transcoding completes.
type TranscodeStatus struct {
	SHA256   string
	Format   string
	Duration float64
	FileSize int64
	Channels string
}

// Done reports whether the transcoded artifact is available.
func (s TranscodeStatus) Done() bool {
	return strings.TrimSpace(s.SHA256) != ""
}

// UploadCoverImage posts raw image bytes and returns the hosted image URL.
func (c *Client) UploadCoverImage(ctx context.Context, data []byte, mimeType string) (string, error) {
	var resp struct {
		CoverImage struct {
			MediaURL string `json:"mediaUrl"`
		} `json:"coverImage"`
	}
	if err := c.do(ctx, http.MethodPost, "/media/coverImage/user/me/upload?autoconvert=true", mimeType, bytes.NewReader(data), &resp); err != nil {
		return "", err
	}
	if resp.CoverImage.MediaURL == "" {
		return "", fmt.Errorf("%w: cover upload missing mediaUrl", ErrUnexpectedResponse)
	}
	return resp.CoverImage.MediaURL, nil
}

// RequestAudioSlot asks for a pre-signed audio upload destination.
func (c *Client) RequestAudioSlot(ctx context.Context) (AudioSlot, error) {
	var resp struct {
		Upload struct {
			UploadURL string `json:"uploadUrl"`
			UploadID  string `json:"uploadId"`
		} `json:"upload"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/media/transcode/audio/uploadUrl", nil, &resp); err != nil {
		return AudioSlot{}, err
	}
	if resp.Upload.UploadURL == "" || resp.Upload.UploadID == "" {
		return AudioSlot{}, fmt.Errorf("%w: upload slot missing uploadUrl or uploadId", ErrUnexpectedResponse)
	}
	return AudioSlot{UploadID: resp.Upload.UploadID, UploadURL: resp.Upload.UploadURL}, nil
}

// PutAudio sends raw audio bytes to a pre-signed slot. The slot URL carries
// its own credentials, so no bearer token is attached.
func (c *Client) PutAudio(ctx context.Context, uploadURL string, data []byte, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = int64(len(data))

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upload audio: %w", redactURLError(err))
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Method: http.MethodPut, Path: redactQuery(uploadURL), StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// TranscodeStatus polls the transcode state of an upload once.
func (c *Client) TranscodeStatus(ctx context.Context, uploadID string) (TranscodeStatus, error) {
	var resp struct {
		Transcode struct {
			TranscodedSha256 string `json:"transcodedSha256"`
			TranscodedInfo   *struct {
				Format   string     `json:"format"`
				Duration float64    `json:"duration"`
				FileSize float64    `json:"fileSize"`
				Channels flexString `json:"channels"`
			} `json:"transcodedInfo"`
		} `json:"transcode"`
	}
	path := "/media/upload/" + url.PathEscape(uploadID) + "/transcoded?loudnorm=false"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return TranscodeStatus{}, err
	}
	status := TranscodeStatus{SHA256: strings.TrimSpace(resp.Transcode.TranscodedSha256)}
	if info := resp.Transcode.TranscodedInfo; info != nil {
		status.Format = info.Format
		status.Duration = info.Duration
		status.FileSize = int64(info.FileSize)
		status.Channels = string(info.Channels)
	}
	return status, nil
}

// redactURLError strips the signed query from a transport error's URL.
func redactURLError(err error) error {
	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		return err
	}
	return &url.Error{Op: urlErr.Op, URL: redactQuery(urlErr.URL), Err: urlErr.Err}
}

func redactQuery(raw string) string {
	if idx := strings.IndexByte(raw, '?'); idx >= 0 {
		return raw[:idx]
	}
	return raw
}
