package concepto

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Minimal valid PNG header so mimetype sniffing sees an image.
var pngHeader = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}

// uploadTestClient backs the client with an in-memory fs holding one file.
func uploadTestClient(t *testing.T, serverURL, path string, content []byte) *Client {
	t.Helper()
	client := newTestClient(serverURL)
	client.fs = afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(client.fs, path, content, 0o644))
	return client
}

func TestUploadShotImage(t *testing.T) {
	var gotField, gotFilename, gotContentType, gotMode string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotMode = r.FormValue("mode")
		for field, headers := range r.MultipartForm.File {
			gotField = field
			gotFilename = headers[0].Filename
			gotContentType = headers[0].Header.Get("Content-Type")
		}
		w.Write([]byte(`{"success":true,"data":{"mainImage":"/uploads/main.png"}}`))
	}))
	defer server.Close()

	client := uploadTestClient(t, server.URL, "/renders/render.png", pngHeader)
	url, err := client.UploadShotImage("shot1", ImageRoleMain, "/renders/render.png", "replace", "ep1", "seg1")
	require.NoError(t, err)
	assert.Equal(t, "/uploads/main.png", url)
	assert.Equal(t, "mainImage", gotField)
	assert.Equal(t, "main.png", gotFilename)
	assert.Equal(t, "image/png", gotContentType)
	assert.Equal(t, "replace", gotMode)
}

func TestUploadShotImageRoleFilenames(t *testing.T) {
	var filenames []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		for _, headers := range r.MultipartForm.File {
			filenames = append(filenames, headers[0].Filename)
		}
		w.Write([]byte(`{"success":true,"data":{"url":"/uploads/x.png"}}`))
	}))
	defer server.Close()

	client := uploadTestClient(t, server.URL, "/renders/render.png", pngHeader)
	_, err := client.UploadShotImage("shot1", ImageRoleStart, "/renders/render.png", "", "", "")
	require.NoError(t, err)
	_, err = client.UploadShotImage("shot1", ImageRoleEnd, "/renders/render.png", "", "", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"start.png", "end.png"}, filenames)
}

func TestUploadShotVideoSetsMainFlag(t *testing.T) {
	var setMain string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		setMain = r.FormValue("setMain")
		w.Write([]byte(`{"success":true,"data":{"videoUrl":"/uploads/v.mp4"}}`))
	}))
	defer server.Close()

	client := uploadTestClient(t, server.URL, "/renders/clip.mp4", []byte("not really a video"))
	url, err := client.UploadShotVideo("shot1", "/renders/clip.mp4", "replace", true, "ep1", "seg1")
	require.NoError(t, err)
	assert.Equal(t, "/uploads/v.mp4", url)
	assert.Equal(t, "true", setMain)
}

func TestUploadRetriesOnNetworkError(t *testing.T) {
	attempts := 0
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			// Drop the connection so the client sees a transport error.
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			conn.Close()
			return
		}
		w.Write([]byte(`{"success":true,"data":{"url":"/uploads/a.wav"}}`))
	}))
	defer server.Close()

	client := uploadTestClient(t, server.URL, "/renders/a.wav", []byte("RIFF"))
	url, err := client.UploadAudioClip("ep1", "/renders/a.wav")
	require.NoError(t, err)
	assert.Equal(t, "/uploads/a.wav", url)
	assert.Equal(t, 2, attempts)
}

func TestUploadDoesNotRetryAPIErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"file too large","code":"TOO_LARGE"}`))
	}))
	defer server.Close()

	client := uploadTestClient(t, server.URL, "/renders/a.wav", []byte("RIFF"))
	_, err := client.UploadAudioClip("ep1", "/renders/a.wav")
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}
