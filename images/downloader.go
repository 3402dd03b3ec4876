// Package images materializes remote question images into a
// content-addressed local cache.
package images

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/use-agent/provas/config"
	"github.com/use-agent/provas/models"
)

const defaultExt = "jpg"

var signatures = [][]byte{
	{0xFF, 0xD8, 0xFF},                            // JPEG
	{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, // PNG
	[]byte("GIF87a"),                              // GIF
	[]byte("GIF89a"),                              // GIF
	[]byte("BM"),                                  // BMP
	{'I', 'I', 0x2A, 0x00},                        // TIFF, little endian
	{'M', 'M', 0x00, 0x2A},                        // TIFF, big endian
}

// FileName returns the cache file name for rawURL: img-<md5(url)>.<ext>.
// The extension comes from the last path segment, defaulting to jpg.
func FileName(rawURL string) string {
	sum := md5.Sum([]byte(rawURL))
	return "img-" + hex.EncodeToString(sum[:]) + "." + extension(rawURL)
}

func extension(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	ext := strings.TrimPrefix(path.Ext(path.Base(p)), ".")
	if ext == "" || len(ext) > 5 {
		return defaultExt
	}
	for _, r := range ext {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return defaultExt
		}
	}
	return strings.ToLower(ext)
}

// ValidateImage accepts buf only if it is at least minBytes long and starts
// with a known image signature.
func ValidateImage(buf []byte, minBytes int) error {
	if len(buf) < minBytes {
		return models.NewPipelineError(models.ErrCodeInvalidImageData,
			fmt.Sprintf("image too small: %d bytes", len(buf)), nil)
	}
	for _, sig := range signatures {
		if bytes.HasPrefix(buf, sig) {
			return nil
		}
	}
	return models.NewPipelineError(models.ErrCodeInvalidImageData, "unrecognized image signature", nil)
}

// Downloader fetches images into Dir. It is safe for concurrent use.
type Downloader struct {
	dir         string
	minBytes    int
	maxBytes    int64
	concurrency int
	limiter     *rate.Limiter
	client      *http.Client
	fetches     atomic.Int64
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithHTTPClient replaces the Chrome-fingerprint client.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Downloader) { d.client = c }
}

// NewDownloader creates a Downloader from cfg. proxy is applied to the
// default client.
func NewDownloader(cfg config.ImageConfig, proxy string, opts ...Option) *Downloader {
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 20 << 20
	}
	d := &Downloader{
		dir:         cfg.Dir,
		minBytes:    cfg.MinBytes,
		maxBytes:    maxBytes,
		concurrency: concurrency,
		limiter:     rate.NewLimiter(limit, concurrency),
	}
	for _, o := range opts {
		o(d)
	}
	if d.client == nil {
		d.client = newChromeClient(proxy, cfg.Timeout)
	}
	return d
}

// Dir returns the cache directory.
func (d *Downloader) Dir() string { return d.dir }

// Fetches returns how many network fetches this Downloader has issued.
func (d *Downloader) Fetches() int64 { return d.fetches.Load() }

// DownloadImage returns the local path of rawURL, fetching it only when it
// is not cached yet.
func (d *Downloader) DownloadImage(ctx context.Context, rawURL string) (string, error) {
	p, _, err := d.download(ctx, rawURL)
	return p, err
}

func (d *Downloader) download(ctx context.Context, rawURL string) (string, bool, error) {
	target := filepath.Join(d.dir, FileName(rawURL))

	// ── 1. Cache check ──
	if info, err := os.Stat(target); err == nil && info.Mode().IsRegular() && info.Size() > 0 {
		slog.Debug("image cached", "url", rawURL, "path", target)
		return target, true, nil
	}

	// ── 2. Fetch ──
	if err := d.limiter.Wait(ctx); err != nil {
		return "", false, models.NewPipelineError(models.ErrCodeDownloadFailed, "rate limiter", err)
	}
	d.fetches.Add(1)
	buf, err := fetch(ctx, d.client, rawURL, d.maxBytes)
	if err != nil {
		return "", false, err
	}

	// ── 3. Validate ──
	if err := ValidateImage(buf, d.minBytes); err != nil {
		slog.Debug("rejected image", "url", rawURL, "bytes", len(buf), "error", err)
		return "", false, err
	}

	// ── 4. Write atomically ──
	if err := writeAtomic(d.dir, target, buf); err != nil {
		return "", false, err
	}
	slog.Debug("image saved", "url", rawURL, "path", target, "bytes", len(buf))
	return target, false, nil
}

// writeAtomic writes buf to a .part file in dir and renames it onto target,
// so a partial file never satisfies the cache check.
func writeAtomic(dir, target string, buf []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return models.NewPipelineError(models.ErrCodeDownloadFailed, "create image dir", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(target)+".*.part")
	if err != nil {
		return models.NewPipelineError(models.ErrCodeDownloadFailed, "create temp file", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return models.NewPipelineError(models.ErrCodeDownloadFailed, "write temp file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return models.NewPipelineError(models.ErrCodeDownloadFailed, "close temp file", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return models.NewPipelineError(models.ErrCodeDownloadFailed, "rename temp file", err)
	}
	return nil
}

// DownloadBatch downloads each distinct URL once and returns one result per
// distinct URL in first-seen order. Failures are recorded per item; the
// batch itself never fails.
func (d *Downloader) DownloadBatch(ctx context.Context, urls []string) []models.DownloadResult {
	distinct := make([]string, 0, len(urls))
	seen := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		if _, ok := seen[u]; ok || u == "" {
			continue
		}
		seen[u] = struct{}{}
		distinct = append(distinct, u)
	}

	results := make([]models.DownloadResult, len(distinct))
	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i, u := range distinct {
		g.Go(func() error {
			p, cached, err := d.download(ctx, u)
			res := models.DownloadResult{URL: u, Success: err == nil, LocalPath: p, Cached: cached}
			if err != nil {
				res.Error = err.Error()
				slog.Warn("image download failed", "url", u, "error", err)
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	var ok, cached int
	for _, r := range results {
		if r.Success {
			ok++
		}
		if r.Cached {
			cached++
		}
	}
	slog.Info("image batch finished", "total", len(results), "succeeded", ok, "cached", cached, "failed", len(results)-ok)
	return results
}

// LocalPaths maps each successfully downloaded URL to its local path.
func LocalPaths(results []models.DownloadResult) map[string]string {
	m := make(map[string]string, len(results))
	for _, r := range results {
		if r.Success {
			m[r.URL] = r.LocalPath
		}
	}
	return m
}
