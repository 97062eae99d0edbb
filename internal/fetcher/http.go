package fetcher

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/envprep/internal/resilience"
)

// HTTPOptions configures an HTTPFetcher. Zero fields take defaults.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration
	MaxBytes  int64
	Retry     resilience.RetryConfig
	// PerHost is the request rate allowed per host, with a burst of the same
	// size.
	PerHost rate.Limit
	Client  *http.Client
}

// HTTPFetcher downloads over HTTP with per-host rate limiting. 429 and 5xx
// responses and network failures are retried.
type HTTPFetcher struct {
	opts   HTTPOptions
	client *http.Client

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHTTPFetcher returns a fetcher with defaults applied to opts.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.UserAgent == "" {
		opts.UserAgent = "envprep/1.0"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.PerHost <= 0 {
		opts.PerHost = 5
	}
	if opts.Retry.OnRetry == nil {
		opts.Retry.OnRetry = resilience.RetryLogger("fetcher", "http_get")
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &HTTPFetcher{opts: opts, client: client, limiters: make(map[string]*rate.Limiter)}
}

func (f *HTTPFetcher) limiter(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		lim = rate.NewLimiter(f.opts.PerHost, max(1, int(f.opts.PerHost)))
		f.limiters[host] = lim
	}
	return lim
}

// Download returns the body of a 200 response.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: build request for %s", rawURL)
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	lim := f.limiter(req.URL.Host)

	var body io.ReadCloser
	err = resilience.Do(ctx, f.opts.Retry, func(ctx context.Context) error {
		if err := lim.Wait(ctx); err != nil {
			return err
		}
		resp, err := f.client.Do(req.Clone(ctx))
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusOK {
			body = resp.Body
			return nil
		}
		_ = resp.Body.Close()
		statusErr := eris.Errorf("fetcher: GET %s: status %d", rawURL, resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return statusErr
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// DownloadToFile implements Fetcher.
func (f *HTTPFetcher) DownloadToFile(ctx context.Context, rawURL string, path string) (int64, error) {
	body, err := f.Download(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer body.Close() //nolint:errcheck
	return saveBody(body, path, f.opts.MaxBytes)
}
