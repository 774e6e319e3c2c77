// Package binaryacquire locates and downloads the native llama.cpp and
// stable-diffusion.cpp release binaries a BinaryResolver hands back to a
// supervisor. Release pages are plain HTML (GitHub Releases), so asset
// discovery is done with goquery/cascadia selectors rather than hand-rolled
// string scanning.
package binaryacquire

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/forgebench/infersupervisor/internal/apierrors"
	"github.com/forgebench/infersupervisor/internal/applog"
)

// Asset is one downloadable release artifact discovered on a releases page.
type Asset struct {
	Name string
	URL  string
}

// LocalResolver satisfies supervisor.BinaryResolver by looking a named
// binary up directly inside a fixed directory (where a prior Download call,
// or an operator, is expected to have placed it).
type LocalResolver struct {
	dir string
}

// NewLocalResolver builds a LocalResolver rooted at dir.
func NewLocalResolver(dir string) *LocalResolver {
	return &LocalResolver{dir: dir}
}

// Resolve returns dir/binaryName's path if it exists and is executable.
func (l *LocalResolver) Resolve(ctx context.Context, binaryName string) (string, error) {
	path := filepath.Join(l.dir, binaryName)
	info, err := os.Stat(path)
	if err != nil {
		return "", apierrors.Wrap(apierrors.CodeBinaryError, "binary "+binaryName+" not found; acquire it first", err).
			WithSuggestion("place the binary in the configured bin directory, or fetch it via a release Finder")
	}
	if info.Mode()&0o111 == 0 {
		return "", apierrors.Newf(apierrors.CodeBinaryError, "binary %q is not executable", path)
	}
	return path, nil
}

// Finder locates a release asset matching pattern on a releases page.
type Finder interface {
	Find(ctx context.Context, pageURL string, pattern *regexp.Regexp) (Asset, error)
}

// PageFinder scrapes a GitHub-style releases HTML page for download links.
type PageFinder struct {
	HTTPClient *http.Client
}

// NewPageFinder builds a PageFinder using http.DefaultClient.
func NewPageFinder() *PageFinder {
	return &PageFinder{HTTPClient: http.DefaultClient}
}

// Find fetches pageURL and returns the first anchor href matching pattern.
// Release pages list multiple platform/arch assets per tag; pattern is the
// caller's way of picking the one it wants (e.g. `linux-x64\.tar\.gz$`).
func (f *PageFinder) Find(ctx context.Context, pageURL string, pattern *regexp.Regexp) (Asset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return Asset{}, apierrors.Wrap(apierrors.CodeDownloadFailed, "build releases page request", err)
	}

	resp, err := f.client().Do(req)
	if err != nil {
		return Asset{}, apierrors.Wrap(apierrors.CodeDownloadFailed, "fetch releases page", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Asset{}, apierrors.Newf(apierrors.CodeDownloadFailed, "releases page returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return Asset{}, apierrors.Wrap(apierrors.CodeDownloadFailed, "parse releases page", err)
	}

	var found Asset
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, ok := sel.Attr("href")
		if !ok || !pattern.MatchString(href) {
			return true
		}
		found = Asset{Name: filepath.Base(href), URL: resolveAssetURL(pageURL, href)}
		return false
	})

	if found.URL == "" {
		return Asset{}, apierrors.Newf(apierrors.CodeBinaryError, "no release asset on %s matches %s", pageURL, pattern.String())
	}
	return found, nil
}

func (f *PageFinder) client() *http.Client {
	if f.HTTPClient != nil {
		return f.HTTPClient
	}
	return http.DefaultClient
}

func resolveAssetURL(pageURL, href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if idx := strings.Index(pageURL, "://"); idx >= 0 && strings.HasPrefix(href, "/") {
		origin := pageURL
		if slash := strings.Index(pageURL[idx+3:], "/"); slash >= 0 {
			origin = pageURL[:idx+3+slash]
		}
		return origin + href
	}
	return href
}

// Download fetches asset to destPath, verifying its contents against
// expectedSHA256 when non-empty. A checksum mismatch removes the partial
// file and reports CodeChecksumError so callers never run an unverified
// binary.
func Download(ctx context.Context, client *http.Client, asset Asset, destPath, expectedSHA256 string) error {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset.URL, nil)
	if err != nil {
		return apierrors.Wrap(apierrors.CodeDownloadFailed, "build asset request", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return apierrors.Wrap(apierrors.CodeDownloadFailed, "download "+asset.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apierrors.Newf(apierrors.CodeDownloadFailed, "download %s returned %s", asset.Name, resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return apierrors.Wrap(apierrors.CodeFileSystemError, "create destination directory", err)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return apierrors.Wrap(apierrors.CodeFileSystemError, "create destination file", err)
	}

	hasher := sha256.New()
	if _, err := io.Copy(out, io.TeeReader(resp.Body, hasher)); err != nil {
		out.Close()
		os.Remove(destPath)
		return apierrors.Wrap(apierrors.CodeDownloadFailed, "write "+asset.Name, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(destPath)
		return apierrors.Wrap(apierrors.CodeFileSystemError, "close destination file", err)
	}

	if expectedSHA256 != "" {
		got := hex.EncodeToString(hasher.Sum(nil))
		if !strings.EqualFold(got, expectedSHA256) {
			os.Remove(destPath)
			return apierrors.Newf(apierrors.CodeChecksumError, "checksum mismatch for %s: got %s, want %s", asset.Name, got, expectedSHA256).
				WithSuggestion("re-download; the release asset or the expected checksum may be stale")
		}
	}

	if err := os.Chmod(destPath, 0o755); err != nil {
		return apierrors.Wrap(apierrors.CodeFileSystemError, "mark binary executable", err)
	}

	applog.Info().Str("asset", asset.Name).Str("dest", destPath).Msg("binary downloaded and verified")
	return nil
}
