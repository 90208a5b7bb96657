package concepto

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strconv"

	"github.com/avast/retry-go/v4"
	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"
)

// ImageRole selects which shot image an upload replaces.
type ImageRole string

const (
	ImageRoleMain  ImageRole = "mainImage"
	ImageRoleStart ImageRole = "startFrame"
	ImageRoleEnd   ImageRole = "endFrame"
)

const uploadAttempts = 3

type uploadPart struct {
	field    string
	filename string
	path     string
}

// buildMultipart assembles a multipart body from file parts plus plain
// fields. Content types are sniffed from file content, not extensions.
func buildMultipart(fs afero.Fs, parts []uploadPart, fields map[string]string) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for _, part := range parts {
		data, err := afero.ReadFile(fs, part.path)
		if err != nil {
			return nil, "", fmt.Errorf("read upload file %s: %w", part.path, err)
		}
		contentType := mimetype.Detect(data).String()

		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, part.field, part.filename))
		header.Set("Content-Type", contentType)
		fileWriter, err := writer.CreatePart(header)
		if err != nil {
			return nil, "", fmt.Errorf("create multipart part: %w", err)
		}
		if _, err := fileWriter.Write(data); err != nil {
			return nil, "", fmt.Errorf("write multipart part: %w", err)
		}
	}
	for field, value := range fields {
		if err := writer.WriteField(field, value); err != nil {
			return nil, "", fmt.Errorf("write multipart field %s: %w", field, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}

// doUpload POSTs a multipart body, retrying transient network failures.
// The Content-Type header carries the multipart boundary, so the JSON
// header set by do() does not apply here.
func (c *Client) doUpload(path string, parts []uploadPart, fields map[string]string, out any) error {
	fullURL := c.endpoint + path

	return retry.Do(
		func() error {
			body, contentType, err := buildMultipart(c.fs, parts, fields)
			if err != nil {
				return retry.Unrecoverable(&APIError{Code: CodeUnexpectedError, Message: err.Error()})
			}

			req, err := http.NewRequest(http.MethodPost, fullURL, body)
			if err != nil {
				return retry.Unrecoverable(&APIError{Code: CodeUnexpectedError, Message: "create request", Details: err.Error()})
			}
			c.setHeaders(req)
			req.Header.Set("Content-Type", contentType)

			resp, err := c.uploadClient.Do(req)
			if err != nil {
				return &APIError{Code: CodeNetworkError, Message: "network error: " + err.Error(), Details: "URL: " + fullURL}
			}
			defer resp.Body.Close()

			respBody, err := io.ReadAll(resp.Body)
			if err != nil {
				return &APIError{Code: CodeNetworkError, Message: "read response: " + err.Error(), Details: "URL: " + fullURL}
			}
			if err := decodeEnvelope(fullURL, resp, respBody, out); err != nil {
				return retry.Unrecoverable(err)
			}
			return nil
		},
		retry.Attempts(uploadAttempts),
		retry.LastErrorOnly(true),
	)
}

type shotImageResult struct {
	MainImage string `json:"mainImage"`
	URL       string `json:"url"`
}

// UploadShotImage replaces one of a shot's images and returns the stored
// URL. The filename sent to the service is derived from the role, matching
// how the web app names replacements.
func (c *Client) UploadShotImage(shotID string, role ImageRole, path, mode, episodeID, segmentID string) (string, error) {
	ext := filepath.Ext(path)
	if ext == "" {
		ext = ".png"
	}
	part := uploadPart{field: string(role), filename: roleFilename(role) + ext, path: path}
	fields := map[string]string{}
	if mode != "" {
		fields["mode"] = mode
	}
	if episodeID != "" {
		fields["episodeId"] = episodeID
	}
	if segmentID != "" {
		fields["segmentId"] = segmentID
	}

	var result shotImageResult
	if err := c.doUpload("/shots/"+shotID+"/images", []uploadPart{part}, fields, &result); err != nil {
		return "", err
	}
	if result.MainImage != "" {
		return result.MainImage, nil
	}
	return result.URL, nil
}

func roleFilename(role ImageRole) string {
	switch role {
	case ImageRoleStart:
		return "start"
	case ImageRoleEnd:
		return "end"
	default:
		return "main"
	}
}

type shotVideoResult struct {
	VideoURL string `json:"videoUrl"`
	URL      string `json:"url"`
}

// UploadShotVideo uploads a video onto a shot, optionally marking it as the
// shot's main asset.
func (c *Client) UploadShotVideo(shotID, path, mode string, setMain bool, episodeID, segmentID string) (string, error) {
	part := uploadPart{field: "video", filename: filepath.Base(path), path: path}
	fields := map[string]string{
		"setMain": strconv.FormatBool(setMain),
	}
	if mode != "" {
		fields["mode"] = mode
	}
	if episodeID != "" {
		fields["episodeId"] = episodeID
	}
	if segmentID != "" {
		fields["segmentId"] = segmentID
	}

	var result shotVideoResult
	if err := c.doUpload("/shots/"+shotID+"/videos", []uploadPart{part}, fields, &result); err != nil {
		return "", err
	}
	if result.VideoURL != "" {
		return result.VideoURL, nil
	}
	return result.URL, nil
}

type audioClipResult struct {
	URL string `json:"url"`
}

// UploadAudioClip uploads an audio file to the episode and returns its URL.
func (c *Client) UploadAudioClip(episodeID, path string) (string, error) {
	part := uploadPart{field: "audio", filename: filepath.Base(path), path: path}

	var result audioClipResult
	if err := c.doUpload("/episodes/"+episodeID+"/audio-clips", []uploadPart{part}, nil, &result); err != nil {
		return "", err
	}
	return result.URL, nil
}
