package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/envprep/internal/resilience"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestFetcher() *HTTPFetcher {
	return NewHTTPFetcher(HTTPOptions{
		PerHost: 1000,
		Retry:   resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond},
	})
}

func TestHTTPFetcher_Download(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "envprep/1.0", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`{"type":"FeatureCollection","features":[]}`))
	}))
	defer srv.Close()

	body, err := newTestFetcher().Download(context.Background(), srv.URL+"/area.geojson")
	require.NoError(t, err)
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "FeatureCollection")
}

func TestHTTPFetcher_Statuses(t *testing.T) {
	tests := []struct {
		name      string
		statuses  []int
		wantErr   string
		wantCalls int32
	}{
		{"recovers from 503", []int{503, 503, 200}, "", 3},
		{"recovers from 429", []int{429, 200}, "", 2},
		{"exhausted", []int{502, 502, 502, 502}, "status 502", 3},
		{"404 not retried", []int{404}, "status 404", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := int(calls.Add(1))
				w.WriteHeader(tt.statuses[min(n, len(tt.statuses))-1])
			}))
			defer srv.Close()

			body, err := newTestFetcher().Download(context.Background(), srv.URL)
			if tt.wantErr == "" {
				require.NoError(t, err)
				_ = body.Close()
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestHTTPFetcher_DownloadToFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("zipbytes"))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "area.zip")
	n, err := newTestFetcher().DownloadToFile(context.Background(), srv.URL, path)
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "zipbytes", string(data))
}

func TestHTTPFetcher_MaxBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer srv.Close()

	f := newTestFetcher()
	f.opts.MaxBytes = 16
	path := filepath.Join(t.TempDir(), "big.geojson")

	_, err := f.DownloadToFile(context.Background(), srv.URL, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds 16 bytes")
	assert.NoFileExists(t, path)
}

func TestHTTPFetcher_LimiterPerHost(t *testing.T) {
	f := NewHTTPFetcher(HTTPOptions{})
	a := f.limiter("data.chc.ucsb.edu")
	assert.Same(t, a, f.limiter("data.chc.ucsb.edu"))
	assert.NotSame(t, a, f.limiter("e4ftl01.cr.usgs.gov"))
}

func TestIsRemote(t *testing.T) {
	assert.True(t, IsRemote("https://example.com/a.geojson"))
	assert.True(t, IsRemote("HTTP://example.com/a.geojson"))
	assert.True(t, IsRemote("ftp://example.com/a.zip"))
	assert.False(t, IsRemote("/data/area.geojson"))
	assert.False(t, IsRemote("area.shp"))
	assert.False(t, IsRemote("s3://bucket/key"))
}

func TestRouter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	r := &Router{HTTP: newTestFetcher()}
	n, err := r.DownloadToFile(context.Background(), srv.URL, filepath.Join(t.TempDir(), "x"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	_, err = r.Download(context.Background(), "ftp://example.com/x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no ftp fetcher")

	_, err = r.Download(context.Background(), "s3://bucket/key")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported scheme")
}
