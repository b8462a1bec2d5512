package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	neturl "net/url"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rs/zerolog"
)

// FTPFetcher fetches over FTP using restart-offset RETR transfers. FTP
// servers here do not retain persistent connections, so every call dials and
// logs in on a fresh control connection.
type FTPFetcher struct {
	dialTimeout time.Duration
	logger      zerolog.Logger
}

// NewFTPFetcher creates an FTP fetcher.
func NewFTPFetcher(opts Options) *FTPFetcher {
	return &FTPFetcher{
		dialTimeout: 30 * time.Second,
		logger:      opts.Logger,
	}
}

// ftpTarget is a parsed ftp:// URL. Credentials may be embedded in the URL;
// anonymous login is used otherwise.
type ftpTarget struct {
	addr string
	path string
	user string
	pass string
}

func parseFTPURL(raw string) (ftpTarget, error) {
	u, err := neturl.Parse(raw)
	if err != nil {
		return ftpTarget{}, fmt.Errorf("invalid ftp url %q: %w", raw, err)
	}
	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "21")
	}
	target := ftpTarget{
		addr: host,
		path: u.Path,
		user: "anonymous",
		pass: "anonymous",
	}
	if u.User != nil {
		target.user = u.User.Username()
		if pass, ok := u.User.Password(); ok {
			target.pass = pass
		}
	}
	return target, nil
}

// connect dials the control connection and performs the login handshake.
func (f *FTPFetcher) connect(ctx context.Context, target ftpTarget) (*ftp.ServerConn, error) {
	conn, err := ftp.Dial(target.addr,
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(f.dialTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("ftp dial %s: %w", target.addr, err)
	}
	if err := conn.Login(target.user, target.pass); err != nil {
		conn.Quit()
		return nil, fmt.Errorf("ftp login %s: %w", target.addr, err)
	}
	return conn, nil
}

// Size resolves the object size via the SIZE command.
func (f *FTPFetcher) Size(ctx context.Context, url string) (int64, error) {
	target, err := parseFTPURL(url)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	conn, err := f.connect(ctx, target)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	defer conn.Quit()

	size, err := conn.FileSize(target.path)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrNotFound, url, err)
	}
	return size, nil
}

// Range fetches the inclusive byte range [start, end] via a RETR transfer
// restarted at start. Servers may close the stream before end when the file
// is shorter than requested; the remainder is zero-filled. Failures are
// retried with exponential backoff until success or caller cancellation.
func (f *FTPFetcher) Range(ctx context.Context, url string, start, end int64) ([]byte, error) {
	target, err := parseFTPURL(url)
	if err != nil {
		return nil, err
	}
	return retryRange(slowRetryPolicy(ctx), f.logger, url, func() ([]byte, error) {
		return f.fetchRange(ctx, target, start, end)
	})
}

func (f *FTPFetcher) fetchRange(ctx context.Context, target ftpTarget, start, end int64) ([]byte, error) {
	conn, err := f.connect(ctx, target)
	if err != nil {
		return nil, err
	}
	defer conn.Quit()

	resp, err := conn.RetrFrom(target.path, uint64(start))
	if err != nil {
		return nil, fmt.Errorf("ftp retr %s: %w", target.path, err)
	}
	defer resp.Close()

	data, err := readPadded(resp, end-start+1)
	if err != nil {
		return nil, fmt.Errorf("ftp read %s: %w", target.path, err)
	}
	return data, nil
}

// readPadded reads up to n bytes from r. A stream that ends early leaves
// the remainder of the result zero-filled.
func readPadded(r io.Reader, n int64) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	return buf, nil
}
