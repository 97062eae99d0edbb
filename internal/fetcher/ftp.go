package fetcher

import (
	"context"
	"io"
	"net"
	"net/url"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/envprep/internal/resilience"
)

// FTPOptions configures an FTPFetcher. Zero fields take defaults.
type FTPOptions struct {
	Timeout  time.Duration
	MaxBytes int64
	Retry    resilience.RetryConfig
}

// FTPFetcher retrieves files over FTP, logging in with the URL's credentials
// or anonymously.
type FTPFetcher struct {
	opts FTPOptions
}

// NewFTPFetcher returns a fetcher with defaults applied to opts.
func NewFTPFetcher(opts FTPOptions) *FTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.Retry.OnRetry == nil {
		opts.Retry.OnRetry = resilience.RetryLogger("fetcher", "ftp_retr")
	}
	return &FTPFetcher{opts: opts}
}

// ftpTarget is an ftp:// URL split into what Dial, Login and Retr need.
type ftpTarget struct {
	addr     string
	path     string
	user     string
	password string
}

func parseFTPURL(rawURL string) (ftpTarget, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ftpTarget{}, eris.Wrap(err, "fetcher: parse ftp url")
	}
	if u.Scheme != "ftp" {
		return ftpTarget{}, eris.Errorf("fetcher: expected ftp scheme, got %q", u.Scheme)
	}
	if u.Path == "" {
		return ftpTarget{}, eris.Errorf("fetcher: no file path in %q", rawURL)
	}

	port := u.Port()
	if port == "" {
		port = "21"
	}
	t := ftpTarget{
		addr:     net.JoinHostPort(u.Hostname(), port),
		path:     u.Path,
		user:     "anonymous",
		password: "anonymous@",
	}
	if name := u.User.Username(); name != "" {
		t.user = name
		t.password, _ = u.User.Password()
	}
	return t, nil
}

// retrieval is an open RETR transfer. Closing it ends the session.
type retrieval struct {
	*ftp.Response
	conn *ftp.ServerConn
}

func (r *retrieval) Close() error {
	err := r.Response.Close()
	if qerr := r.conn.Quit(); err == nil {
		err = qerr
	}
	return eris.Wrap(err, "fetcher: close ftp transfer")
}

// Download dials, logs in and starts the transfer. The caller must close the
// returned reader to release the connection.
func (f *FTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	t, err := parseFTPURL(rawURL)
	if err != nil {
		return nil, err
	}
	zap.L().Debug("ftp retrieve", zap.String("component", "fetcher"), zap.String("addr", t.addr), zap.String("path", t.path))

	var out io.ReadCloser
	err = resilience.Do(ctx, f.opts.Retry, func(ctx context.Context) error {
		conn, err := ftp.Dial(t.addr, ftp.DialWithTimeout(f.opts.Timeout), ftp.DialWithContext(ctx))
		if err != nil {
			return eris.Wrapf(err, "fetcher: ftp dial %s", t.addr)
		}
		if err := conn.Login(t.user, t.password); err != nil {
			_ = conn.Quit()
			return eris.Wrap(err, "fetcher: ftp login")
		}
		resp, err := conn.Retr(t.path)
		if err != nil {
			_ = conn.Quit()
			return eris.Wrapf(err, "fetcher: ftp retr %s", t.path)
		}
		out = &retrieval{Response: resp, conn: conn}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DownloadToFile implements Fetcher.
func (f *FTPFetcher) DownloadToFile(ctx context.Context, rawURL string, path string) (int64, error) {
	rc, err := f.Download(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer rc.Close() //nolint:errcheck
	return saveBody(rc, path, f.opts.MaxBytes)
}
