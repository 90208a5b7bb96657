// Package concepto is the synchronous client for the Concepto external API
// plus the data model it serves. All calls are plain request/response; the
// client holds no state beyond connection settings.
package concepto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// Error codes surfaced for transport failures.
const (
	CodeInvalidEndpoint = "INVALID_ENDPOINT"
	CodeInvalidJSON     = "INVALID_JSON"
	CodeHTTPError       = "HTTP_ERROR"
	CodeNetworkError    = "NETWORK_ERROR"
	CodeUnexpectedError = "UNEXPECTED_ERROR"
)

// APIError is the structured form every failed call returns.
type APIError struct {
	Code    string
	Message string
	Details string
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Client talks to the Concepto external API. Construct with NewClient.
type Client struct {
	endpoint string
	apiKey   string
	clientID string
	fs       afero.Fs

	httpClient   *http.Client
	uploadClient *http.Client
}

// NewClient trims a trailing slash off the endpoint. clientID may be empty;
// when set it is sent as X-Client-Id on every request.
func NewClient(endpoint, apiKey, clientID string) *Client {
	return &Client{
		endpoint:     strings.TrimRight(endpoint, "/"),
		apiKey:       apiKey,
		clientID:     clientID,
		fs:           afero.NewOsFs(),
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		uploadClient: &http.Client{Timeout: 180 * time.Second},
	}
}

// Endpoint returns the configured API base, without a trailing slash.
func (c *Client) Endpoint() string { return c.endpoint }

// ResolveURL resolves an asset reference from the service against the API
// host. Absolute URLs pass through; paths like "/uploads/x.png" resolve
// against the endpoint's scheme and host (not the /api/external prefix).
func (c *Client) ResolveURL(ref string) string {
	if ref == "" {
		return ""
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if parsed.IsAbs() {
		return ref
	}
	base, err := url.Parse(c.endpoint)
	if err != nil {
		return ref
	}
	base.Path = ""
	base.RawQuery = ""
	return base.ResolveReference(parsed).String()
}

// envelope is the standard {success, data} response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
	Details string          `json:"details"`
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("X-API-Key", c.apiKey)
	if c.clientID != "" {
		req.Header.Set("X-Client-Id", c.clientID)
	}
}

// do issues one API call and decodes the enveloped response data into out
// (which may be nil for calls that only report success).
func (c *Client) do(method, path string, body any, out any) error {
	return c.doWith(c.httpClient, method, path, body, out)
}

func (c *Client) doWith(client *http.Client, method, path string, body any, out any) error {
	fullURL := c.endpoint + path

	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &APIError{Code: CodeUnexpectedError, Message: "marshal request body", Details: err.Error()}
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, fullURL, reqBody)
	if err != nil {
		return &APIError{Code: CodeUnexpectedError, Message: "create request", Details: err.Error()}
	}
	c.setHeaders(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return &APIError{Code: CodeNetworkError, Message: "network error: " + err.Error(), Details: "URL: " + fullURL}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{Code: CodeNetworkError, Message: "read response: " + err.Error(), Details: "URL: " + fullURL}
	}

	return decodeEnvelope(fullURL, resp, respBody, out)
}

func decodeEnvelope(fullURL string, resp *http.Response, respBody []byte, out any) error {
	// An HTML body almost always means the endpoint is pointed at the web
	// app instead of /api/external.
	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	trimmed := strings.TrimSpace(string(respBody))
	if strings.Contains(contentType, "text/html") ||
		strings.HasPrefix(trimmed, "<!DOCTYPE") || strings.HasPrefix(trimmed, "<html") {
		return &APIError{
			Code:    CodeInvalidEndpoint,
			Message: "received HTML instead of JSON; the API endpoint may be incorrect",
			Details: "expected JSON from " + fullURL + "; the endpoint should end with /api/external",
		}
	}

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		var env envelope
		if err := json.Unmarshal(respBody, &env); err != nil {
			return &APIError{
				Code:    CodeInvalidJSON,
				Message: "invalid JSON response from server",
				Details: fmt.Sprintf("URL: %s, response preview: %s", fullURL, preview(respBody)),
			}
		}
		if !env.Success {
			return apiErrorFrom(env, resp.StatusCode)
		}
		if out != nil && len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, out); err != nil {
				return &APIError{
					Code:    CodeInvalidJSON,
					Message: "unexpected data shape in response",
					Details: fmt.Sprintf("URL: %s: %v", fullURL, err),
				}
			}
		}
		return nil
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err == nil && env.Error != "" {
		return apiErrorFrom(env, resp.StatusCode)
	}
	return &APIError{
		Code:    CodeHTTPError,
		Message: fmt.Sprintf("HTTP %d - non-JSON error response", resp.StatusCode),
		Details: fmt.Sprintf("URL: %s, response preview: %s", fullURL, preview(respBody)),
	}
}

func apiErrorFrom(env envelope, status int) *APIError {
	code := env.Code
	if code == "" {
		code = CodeHTTPError
	}
	msg := env.Error
	if msg == "" {
		msg = fmt.Sprintf("HTTP %d", status)
	}
	return &APIError{Code: code, Message: msg, Details: env.Details}
}

func preview(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max])
	}
	return string(body)
}

// GetEpisode fetches an episode with all its segments and shots.
func (c *Client) GetEpisode(episodeID string) (*Episode, error) {
	var ep Episode
	if err := c.do(http.MethodGet, "/episodes/"+episodeID, nil, &ep); err != nil {
		return nil, err
	}
	return &ep, nil
}

// GetShow fetches a show record.
func (c *Client) GetShow(showID string) (*Show, error) {
	var show Show
	if err := c.do(http.MethodGet, "/shows/"+showID, nil, &show); err != nil {
		return nil, err
	}
	return &show, nil
}

// GetShot fetches a single shot record.
func (c *Client) GetShot(shotID string) (*Shot, error) {
	var shot Shot
	if err := c.do(http.MethodGet, "/shots/"+shotID, nil, &shot); err != nil {
		return nil, err
	}
	return &shot, nil
}

// ShotUpdate carries the subset of shot fields to change; nil fields are
// omitted from the PUT body.
type ShotUpdate struct {
	Audio       *string  `json:"audio,omitempty"`
	Visual      *string  `json:"visual,omitempty"`
	WordCount   *int     `json:"wordCount,omitempty"`
	Runtime     *float64 `json:"runtime,omitempty"`
	Duration    *float64 `json:"duration,omitempty"`
	VideoOffset *float64 `json:"videoOffset,omitempty"`
}

// IsEmpty reports whether the update would change nothing.
func (u ShotUpdate) IsEmpty() bool {
	return u.Audio == nil && u.Visual == nil && u.WordCount == nil &&
		u.Runtime == nil && u.Duration == nil && u.VideoOffset == nil
}

// UpdateShot PUTs the given field subset onto a shot.
func (c *Client) UpdateShot(shotID string, update ShotUpdate) error {
	return c.do(http.MethodPut, "/shots/"+shotID, update, nil)
}

// AVPreviewUpdate carries the bulk override/audio-track update for an
// episode's AV preview.
type AVPreviewUpdate struct {
	VideoClipStartTimes map[string]float64 `json:"videoClipStartTimes,omitempty"`
	AudioTracks         []AudioTrack       `json:"audioTracks,omitempty"`
}

// UpdateAVPreview pushes clip start-time overrides and/or audio tracks.
func (c *Client) UpdateAVPreview(episodeID string, update AVPreviewUpdate) error {
	return c.do(http.MethodPut, "/episodes/"+episodeID+"/av-preview", update, nil)
}

// ScriptShot is one entry in an AV-script import.
type ScriptShot struct {
	TakeCode string  `json:"takeCode,omitempty"`
	Audio    string  `json:"audio,omitempty"`
	Visual   string  `json:"visual,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// ImportAVScript submits a shot list to the episode's script importer,
// falling back to the legacy route when the import route is missing.
func (c *Client) ImportAVScript(episodeID string, shots []ScriptShot, targetSegmentID string) error {
	body := map[string]any{"shots": shots}
	if targetSegmentID != "" {
		body["targetSegmentId"] = targetSegmentID
	}
	err := c.do(http.MethodPost, "/episodes/"+episodeID+"/av-script/import", body, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == CodeHTTPError {
		return c.do(http.MethodPost, "/episodes/"+episodeID+"/av-script", body, nil)
	}
	return err
}
