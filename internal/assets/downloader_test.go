package assets

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchWritesFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("image-bytes"))
	}))
	defer server.Close()

	fs := afero.NewMemMapFs()
	d := NewDownloader(fs, "/cache", nil)

	path, cached, err := d.Fetch(server.URL+"/a.png", "SC01T01_MAIN_image.png")
	require.NoError(t, err)
	assert.False(t, cached)

	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.Equal(t, "image-bytes", string(data))
}

// Re-running a build must perform zero additional downloads for files that
// already exist on disk.
func TestFetchSkipsExistingFiles(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write([]byte("payload"))
	}))
	defer server.Close()

	fs := afero.NewMemMapFs()
	d := NewDownloader(fs, "/cache", nil)

	_, cached, err := d.Fetch(server.URL+"/a.png", "a.png")
	require.NoError(t, err)
	assert.False(t, cached)

	_, cached, err = d.Fetch(server.URL+"/a.png", "a.png")
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, int32(1), requests.Load())
}

func TestFetchResolvesRelativeURLs(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte("x"))
	}))
	defer server.Close()

	fs := afero.NewMemMapFs()
	d := NewDownloader(fs, "/cache", func(ref string) string { return server.URL + ref })

	_, _, err := d.Fetch("/uploads/b.mp4", "b.mp4")
	require.NoError(t, err)
	assert.Equal(t, "/uploads/b.mp4", gotPath)
}

func TestFetchClientErrorIsNotRetried(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	fs := afero.NewMemMapFs()
	d := NewDownloader(fs, "/cache", nil)

	_, _, err := d.Fetch(server.URL+"/gone.png", "gone.png")
	require.Error(t, err)
	assert.Equal(t, int32(1), requests.Load())

	// A failed download must not leave a file that would satisfy the cache.
	exists, _ := afero.Exists(fs, "/cache/gone.png")
	assert.False(t, exists)
}

func TestFetchServerErrorIsRetried(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	fs := afero.NewMemMapFs()
	d := NewDownloader(fs, "/cache", nil)

	_, cached, err := d.Fetch(server.URL+"/flaky.png", "flaky.png")
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, int32(2), requests.Load())
}
