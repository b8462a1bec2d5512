package fetch

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var insecureWarning sync.Once

// HTTPFetcher fetches over HTTP or HTTPS using ranged GET requests.
// Response compression is disabled because transparent decompression would
// break byte-exact range semantics.
type HTTPFetcher struct {
	client *http.Client
	logger zerolog.Logger
}

// NewHTTPFetcher creates an HTTP/HTTPS fetcher.
func NewHTTPFetcher(opts Options) *HTTPFetcher {
	transport := &http.Transport{
		DisableCompression: true,
	}
	if opts.TLSInsecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		insecureWarning.Do(func() {
			opts.Logger.Warn().Msg("TLS certificate verification is disabled")
		})
	}
	return &HTTPFetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   60 * time.Second,
		},
		logger: opts.Logger,
	}
}

// Size resolves the object size via a HEAD request, falling back to a 2-byte
// ranged GET when the server does not support HEAD or omits Content-Length.
// Redirects are followed. Both strategies failing yields ErrNotFound.
func (f *HTTPFetcher) Size(ctx context.Context, url string) (int64, error) {
	if size, err := f.sizeFromHead(ctx, url); err == nil {
		return size, nil
	}
	size, err := f.sizeFromRangedGet(ctx, url)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrNotFound, url, err)
	}
	return size, nil
}

func (f *HTTPFetcher) sizeFromHead(ctx context.Context, url string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("HEAD returned status %d", resp.StatusCode)
	}
	cl := resp.Header.Get("Content-Length")
	if cl == "" {
		return 0, fmt.Errorf("no Content-Length header")
	}
	return strconv.ParseInt(cl, 10, 64)
}

func (f *HTTPFetcher) sizeFromRangedGet(ctx context.Context, url string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Range", "bytes=0-1")
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusPartialContent {
		return 0, fmt.Errorf("ranged GET returned status %d", resp.StatusCode)
	}
	return parseContentRangeTotal(resp.Header.Get("Content-Range"))
}

// parseContentRangeTotal extracts the total size from a Content-Range header
// of the form "bytes 0-1/12345".
func parseContentRangeTotal(header string) (int64, error) {
	if header == "" {
		return 0, fmt.Errorf("no Content-Range header")
	}
	idx := strings.LastIndex(header, "/")
	if idx < 0 {
		return 0, fmt.Errorf("malformed Content-Range header: %q", header)
	}
	total := header[idx+1:]
	if total == "*" {
		return 0, fmt.Errorf("server did not report total size: %q", header)
	}
	return strconv.ParseInt(total, 10, 64)
}

// Range fetches the inclusive byte range [start, end] via a ranged GET.
// Transient failures are retried once after a short backoff; each Range call
// carries a fresh retry budget.
func (f *HTTPFetcher) Range(ctx context.Context, url string, start, end int64) ([]byte, error) {
	return retryRange(fastRetryPolicy(ctx), f.logger, url, func() ([]byte, error) {
		return f.fetchRange(ctx, url, start, end)
	})
}

func (f *HTTPFetcher) fetchRange(ctx context.Context, url string, start, end int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
		return io.ReadAll(resp.Body)
	case http.StatusRequestedRangeNotSatisfiable:
		// The range starts past end-of-file. An empty block lets reads past
		// EOF degrade to zero-filled bytes instead of an I/O error.
		return nil, nil
	case http.StatusOK:
		// Server ignored the Range header and returned the whole object.
		// Discard up to start, then read the requested window.
		if _, err := io.CopyN(io.Discard, resp.Body, start); err != nil {
			if err == io.EOF {
				return nil, nil
			}
			return nil, err
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, end-start+1))
		if err != nil {
			return nil, err
		}
		return data, nil
	default:
		return nil, fmt.Errorf("range GET returned status %d", resp.StatusCode)
	}
}
