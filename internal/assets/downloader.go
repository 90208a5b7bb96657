package assets

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/spf13/afero"
	"golang.org/x/sync/singleflight"
)

const (
	downloadTimeout  = 60 * time.Second
	downloadAttempts = 3
)

// Downloader mirrors service assets into a local root. Files already on
// disk are never re-fetched: content is assumed immutable once uploaded
// under a given URL/filename pair. That is a caching policy, not a
// correctness guarantee.
type Downloader struct {
	fs      afero.Fs
	root    string
	client  *http.Client
	resolve func(string) string
	group   singleflight.Group
}

// NewDownloader stores files under root. resolve maps service-relative URLs
// to absolute ones (usually concepto.Client.ResolveURL).
func NewDownloader(fs afero.Fs, root string, resolve func(string) string) *Downloader {
	if resolve == nil {
		resolve = func(s string) string { return s }
	}
	return &Downloader{
		fs:      fs,
		root:    root,
		client:  &http.Client{Timeout: downloadTimeout},
		resolve: resolve,
	}
}

// Root returns the download root directory.
func (d *Downloader) Root() string { return d.root }

// LocalPath returns where a named asset lives on disk, whether or not it
// has been downloaded yet.
func (d *Downloader) LocalPath(name string) string {
	return filepath.Join(d.root, name)
}

// Fetch downloads the URL to the given local name, skipping the network
// entirely when the destination already exists. The singleflight group
// collapses concurrent requests for the same destination.
func (d *Downloader) Fetch(rawURL, name string) (path string, cached bool, err error) {
	dest := d.LocalPath(name)

	if exists, _ := afero.Exists(d.fs, dest); exists {
		return dest, true, nil
	}

	_, err, _ = d.group.Do(dest, func() (any, error) {
		// Re-check inside the group: a concurrent caller may have finished.
		if exists, _ := afero.Exists(d.fs, dest); exists {
			return nil, nil
		}
		return nil, d.download(d.resolve(rawURL), dest)
	})
	if err != nil {
		return "", false, err
	}
	return dest, false, nil
}

// FetchAsset is Fetch keyed by an Asset's deterministic local name.
func (d *Downloader) FetchAsset(asset Asset) (string, bool, error) {
	return d.Fetch(asset.URL, asset.LocalName())
}

func (d *Downloader) download(fullURL, dest string) error {
	if err := d.fs.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create download dir: %w", err)
	}

	return retry.Do(
		func() error {
			resp, err := d.client.Get(fullURL)
			if err != nil {
				return fmt.Errorf("download %s: %w", fullURL, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				err := fmt.Errorf("download %s: HTTP %d", fullURL, resp.StatusCode)
				if resp.StatusCode >= 400 && resp.StatusCode < 500 {
					return retry.Unrecoverable(err)
				}
				return err
			}

			// Write to a temp name first so a partial download never
			// satisfies the exists-check above.
			tmp := dest + ".partial"
			out, err := d.fs.Create(tmp)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("create %s: %w", tmp, err))
			}
			if _, err := io.Copy(out, resp.Body); err != nil {
				out.Close()
				d.fs.Remove(tmp)
				return fmt.Errorf("write %s: %w", tmp, err)
			}
			if err := out.Close(); err != nil {
				d.fs.Remove(tmp)
				return fmt.Errorf("close %s: %w", tmp, err)
			}
			if err := d.fs.Rename(tmp, dest); err != nil {
				d.fs.Remove(tmp)
				return retry.Unrecoverable(fmt.Errorf("rename %s: %w", tmp, err))
			}
			log.Printf("Downloaded %s -> %s", fullURL, dest)
			return nil
		},
		retry.Attempts(downloadAttempts),
		retry.LastErrorOnly(true),
	)
}
