package fetch

import (
	// go-digest resolves algorithms through the crypto registry.
	_ "crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/opencontainers/go-digest"

	"github.com/lodepkg/lode/internal/core"
)

// ErrNoChecksum reports a download attempted for a (name, version) pair the
// index never recorded a checksum for. Downloading before querying is a
// programming error, not a recoverable condition.
var ErrNoChecksum = errors.New("no checksum recorded for package")

// StatusError reports a download response with a non-200 status.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("failed to get 200 response from %s: HTTP %d", e.URL, e.Status)
}

// MismatchError reports archive content whose hash differs from the
// index-recorded checksum. Nothing is written to the cache.
type MismatchError struct {
	Package  string
	Expected string
	Actual   string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("failed to verify the checksum of %s: expected %s, got %s",
		e.Package, e.Expected, e.Actual)
}

// Fetcher transfers package archives into a local cache directory. The
// HTTP client is created on first use and reused for the fetcher's
// lifetime; all transfers are blocking and sequential.
type Fetcher struct {
	cacheDir string
	client   *http.Client
}

// NewFetcher creates a fetcher caching archives under cacheDir.
func NewFetcher(cacheDir string) *Fetcher {
	return &Fetcher{cacheDir: cacheDir}
}

// CacheDir returns the cache directory.
func (f *Fetcher) CacheDir() string {
	return f.cacheDir
}

// CachePath returns the deterministic archive location for one package.
// The file's existence means a previous run downloaded and verified it.
func (f *Fetcher) CachePath(id core.PackageID) string {
	return filepath.Join(f.cacheDir, fmt.Sprintf("%s-%s.tar.gz", id.Name, id.Version))
}

// Fetch downloads url into the cache and returns the cached archive path.
// expected is the sha256 hex digest recorded by the index; the body is
// verified against it before anything reaches the cache path, so a cache
// file can never hold unverified content. If the cache file already exists
// the transfer is skipped entirely.
func (f *Fetcher) Fetch(id core.PackageID, url, expected string) (string, error) {
	dst := f.CachePath(id)
	if _, err := os.Stat(dst); err == nil {
		return dst, nil
	}
	if expected == "" {
		return "", fmt.Errorf("%w: %s", ErrNoChecksum, id)
	}

	if err := os.MkdirAll(f.cacheDir, 0755); err != nil {
		return "", fmt.Errorf("creating cache directory: %w", err)
	}

	if f.client == nil {
		// Redirect following is the default client behavior.
		f.client = &http.Client{}
	}
	resp, err := f.client.Get(url)
	if err != nil {
		return "", fmt.Errorf("downloading %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{URL: url, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response for %s: %w", id, err)
	}

	actual := digest.SHA256.FromBytes(body).Encoded()
	if !strings.EqualFold(actual, expected) {
		return "", &MismatchError{Package: id.String(), Expected: expected, Actual: actual}
	}

	// Write the verified bytes next to the destination, then rename, so a
	// crash mid-write cannot leave a partial file at the cache path.
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, body, 0644); err != nil {
		return "", fmt.Errorf("writing cache file for %s: %w", id, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("renaming cache file for %s: %w", id, err)
	}
	return dst, nil
}
