package images

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/provas/config"
	"github.com/use-agent/provas/models"
)

func pngBytes(n int) []byte {
	buf := make([]byte, n)
	copy(buf, []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A})
	return buf
}

type imageServer struct {
	*httptest.Server
	hits atomic.Int64
}

func newImageServer(t *testing.T) *imageServer {
	s := &imageServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		switch {
		case strings.HasPrefix(r.URL.Path, "/ok"):
			w.Write(pngBytes(2048))
		case strings.HasPrefix(r.URL.Path, "/small"):
			w.Write(pngBytes(512))
		case strings.HasPrefix(r.URL.Path, "/html"):
			w.Write(bytes.Repeat([]byte("<html>"), 400))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func newTestDownloader(t *testing.T, srv *imageServer) *Downloader {
	cfg := config.Defaults().Images
	cfg.Dir = filepath.Join(t.TempDir(), "images")
	cfg.RatePerSec = 0
	return NewDownloader(cfg, "", WithHTTPClient(srv.Client()))
}

func TestFileName(t *testing.T) {
	a := FileName("https://cdn.example.com/q/figura.PNG?v=2")
	assert.Equal(t, a, FileName("https://cdn.example.com/q/figura.PNG?v=2"))
	assert.True(t, strings.HasPrefix(a, "img-"))
	assert.True(t, strings.HasSuffix(a, ".png"))
	assert.Len(t, a, len("img-")+32+len(".png"))

	assert.NotEqual(t, a, FileName("https://cdn.example.com/q/figura.PNG?v=3"))
	assert.True(t, strings.HasSuffix(FileName("https://cdn.example.com/render/1234"), ".jpg"))
	assert.True(t, strings.HasSuffix(FileName("https://cdn.example.com/a.b/c"), ".jpg"))
}

func TestValidateImage(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
		ok   bool
	}{
		{"png", pngBytes(1024), true},
		{"jpeg", append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, make([]byte, 2000)...), true},
		{"gif", append([]byte("GIF89a"), make([]byte, 2000)...), true},
		{"bmp", append([]byte("BM"), make([]byte, 2000)...), true},
		{"tiff", append([]byte{'M', 'M', 0x00, 0x2A}, make([]byte, 2000)...), true},
		{"wrong signature", append([]byte("<!DOCTYPE html>"), make([]byte, 2000)...), false},
		{"too small with signature", pngBytes(1023), false},
		{"empty", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateImage(tt.buf, 1024)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, models.HasCode(err, models.ErrCodeInvalidImageData))
		})
	}
}

func TestDownloadImageFetchesOnce(t *testing.T) {
	srv := newImageServer(t)
	d := newTestDownloader(t, srv)
	u := srv.URL + "/ok/a.png"

	p1, err := d.DownloadImage(context.Background(), u)
	require.NoError(t, err)
	p2, err := d.DownloadImage(context.Background(), u)
	require.NoError(t, err)

	assert.Equal(t, p1, p2)
	assert.Equal(t, filepath.Join(d.Dir(), FileName(u)), p1)
	assert.Equal(t, int64(1), srv.hits.Load())
	assert.Equal(t, int64(1), d.Fetches())

	data, err := os.ReadFile(p1)
	require.NoError(t, err)
	assert.Len(t, data, 2048)
}

func TestInvalidImageIsNotWritten(t *testing.T) {
	srv := newImageServer(t)
	d := newTestDownloader(t, srv)

	for _, u := range []string{srv.URL + "/small/a.png", srv.URL + "/html/b.png"} {
		_, err := d.DownloadImage(context.Background(), u)
		require.Error(t, err)
		assert.True(t, models.HasCode(err, models.ErrCodeInvalidImageData))
	}

	// The directory is created only when there is something to write.
	_, err := os.Stat(d.Dir())
	assert.True(t, os.IsNotExist(err))
}

func TestHTTPErrorIsDownloadFailure(t *testing.T) {
	srv := newImageServer(t)
	d := newTestDownloader(t, srv)

	_, err := d.DownloadImage(context.Background(), srv.URL+"/missing.png")
	require.Error(t, err)
	assert.True(t, models.HasCode(err, models.ErrCodeDownloadFailed))
}

func TestDownloadBatch(t *testing.T) {
	srv := newImageServer(t)
	d := newTestDownloader(t, srv)
	good := srv.URL + "/ok/1.png"
	other := srv.URL + "/ok/2.gif"
	bad := srv.URL + "/missing.png"

	results := d.DownloadBatch(context.Background(), []string{good, bad, good, other, "", good})
	require.Len(t, results, 3)

	assert.Equal(t, good, results[0].URL)
	assert.True(t, results[0].Success)
	assert.Equal(t, bad, results[1].URL)
	assert.False(t, results[1].Success)
	assert.NotEmpty(t, results[1].Error)
	assert.True(t, results[2].Success)
	assert.Equal(t, int64(3), srv.hits.Load())

	local := LocalPaths(results)
	assert.Len(t, local, 2)
	assert.Equal(t, filepath.Join(d.Dir(), FileName(other)), local[other])

	again := d.DownloadBatch(context.Background(), []string{good, other})
	assert.True(t, again[0].Cached)
	assert.True(t, again[1].Cached)
	assert.Equal(t, int64(3), srv.hits.Load())
}

func TestNoPartFilesRemain(t *testing.T) {
	srv := newImageServer(t)
	d := newTestDownloader(t, srv)
	d.DownloadBatch(context.Background(), []string{srv.URL + "/ok/1.png", srv.URL + "/ok/2.png"})

	entries, err := os.ReadDir(d.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".part"), e.Name())
	}
}
