package fetch

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// ErrNotFound indicates the remote resource does not exist or its size could
// not be determined after exhausting all size-query fallbacks.
var ErrNotFound = errors.New("resource not found")

// Fetcher performs remote size queries and byte-range reads for one backend
// protocol. Implementations are selected once per mount by schema and must be
// safe for concurrent use.
type Fetcher interface {
	// Size returns the total byte size of the object at url. Size queries
	// are single-attempt: failures are not retried.
	Size(ctx context.Context, url string) (int64, error)

	// Range returns the bytes in the inclusive range [start, end]. The
	// result may be shorter than requested when the range extends past the
	// end of the object. Transient failures are retried per backend policy.
	Range(ctx context.Context, url string, start, end int64) ([]byte, error)
}

// Options configures fetcher construction.
type Options struct {
	// TLSInsecure disables TLS certificate verification for HTTPS fetches.
	TLSInsecure bool

	// AWSProfile names the shared-config credentials profile for S3.
	AWSProfile string

	Logger zerolog.Logger
}

// ForSchema returns the fetcher for the given schema. Schema is one of
// http, https, ftp, or s3.
func ForSchema(ctx context.Context, schema string, opts Options) (Fetcher, error) {
	switch schema {
	case "http", "https":
		return NewHTTPFetcher(opts), nil
	case "ftp":
		return NewFTPFetcher(opts), nil
	case "s3":
		return NewS3Fetcher(ctx, opts)
	default:
		return nil, fmt.Errorf("unsupported schema: %s", schema)
	}
}
