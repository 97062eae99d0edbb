// Package fetcher pulls study-area files from http(s) and ftp URLs and unpacks
// zipped shapefile bundles.
package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// DefaultMaxBytes caps a single download. Study areas are boundary files,
// not imagery.
const DefaultMaxBytes = 256 << 20

// Fetcher downloads one remote file.
type Fetcher interface {
	Download(ctx context.Context, url string) (io.ReadCloser, error)
	// DownloadToFile writes the body to path and returns the bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

func scheme(src string) string {
	u, err := url.Parse(src)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Scheme)
}

// IsRemote reports whether src is an http, https or ftp URL rather than a
// local path.
func IsRemote(src string) bool {
	switch scheme(src) {
	case "http", "https", "ftp":
		return true
	}
	return false
}

// Router picks the HTTP or FTP fetcher by URL scheme.
type Router struct {
	HTTP Fetcher
	FTP  Fetcher
}

// NewRouter returns a Router with default HTTP and FTP fetchers.
func NewRouter(userAgent string) *Router {
	return &Router{
		HTTP: NewHTTPFetcher(HTTPOptions{UserAgent: userAgent}),
		FTP:  NewFTPFetcher(FTPOptions{}),
	}
}

func (r *Router) route(rawURL string) (Fetcher, error) {
	var f Fetcher
	switch s := scheme(rawURL); s {
	case "http", "https":
		f = r.HTTP
	case "ftp":
		f = r.FTP
	default:
		return nil, eris.Errorf("fetcher: unsupported scheme %q in %q", s, rawURL)
	}
	if f == nil {
		return nil, eris.Errorf("fetcher: no %s fetcher configured", scheme(rawURL))
	}
	return f, nil
}

// Download implements Fetcher.
func (r *Router) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	f, err := r.route(rawURL)
	if err != nil {
		return nil, err
	}
	return f.Download(ctx, rawURL)
}

// DownloadToFile implements Fetcher.
func (r *Router) DownloadToFile(ctx context.Context, rawURL string, path string) (int64, error) {
	f, err := r.route(rawURL)
	if err != nil {
		return 0, err
	}
	return f.DownloadToFile(ctx, rawURL, path)
}

// saveBody writes at most max bytes of body to path. A larger body is an error
// and leaves no file behind.
func saveBody(body io.Reader, path string, max int64) (int64, error) {
	out, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrap(err, "fetcher: create file")
	}

	n, err := io.Copy(out, io.LimitReader(body, max+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > max {
		err = eris.Errorf("fetcher: download exceeds %d bytes", max)
	}
	if err != nil {
		_ = os.Remove(path)
		return 0, eris.Wrap(err, "fetcher: write file")
	}
	return n, nil
}
