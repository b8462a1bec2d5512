package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
)

// S3Fetcher fetches objects from S3-compatible storage using ranged GETs.
type S3Fetcher struct {
	client *s3.Client
	logger zerolog.Logger
}

// NewS3Fetcher creates an S3 fetcher using the shared AWS configuration,
// optionally scoped to a named credentials profile.
func NewS3Fetcher(ctx context.Context, opts Options) (*S3Fetcher, error) {
	cfgOptions := []func(*awsconfig.LoadOptions) error{}
	if opts.AWSProfile != "" {
		cfgOptions = append(cfgOptions, awsconfig.WithSharedConfigProfile(opts.AWSProfile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, cfgOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &S3Fetcher{
		client: s3.NewFromConfig(cfg),
		logger: opts.Logger,
	}, nil
}

// parseS3URL splits an s3://bucket/key URL into bucket and key.
func parseS3URL(url string) (bucket, key string, err error) {
	rest := strings.TrimPrefix(url, "s3://")
	if rest == url {
		rest = strings.TrimPrefix(url, "s3:/")
	}
	rest = strings.TrimPrefix(rest, "/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid s3 url: %q", url)
	}
	return parts[0], parts[1], nil
}

// Size resolves the object size via a HeadObject call.
func (f *S3Fetcher) Size(ctx context.Context, url string) (int64, error) {
	bucket, key, err := parseS3URL(url)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	result, err := f.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrNotFound, url, err)
	}
	if result.ContentLength == nil {
		return 0, fmt.Errorf("%w: %s: no content length", ErrNotFound, url)
	}
	return *result.ContentLength, nil
}

// Range fetches the inclusive byte range [start, end] via a ranged
// GetObject. Failures are retried with exponential backoff until success or
// caller cancellation.
func (f *S3Fetcher) Range(ctx context.Context, url string, start, end int64) ([]byte, error) {
	bucket, key, err := parseS3URL(url)
	if err != nil {
		return nil, err
	}
	return retryRange(slowRetryPolicy(ctx), f.logger, url, func() ([]byte, error) {
		return f.fetchRange(ctx, bucket, key, start, end)
	})
}

func (f *S3Fetcher) fetchRange(ctx context.Context, bucket, key string, start, end int64) ([]byte, error) {
	result, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", start, end)),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidRange" {
			// The range starts past end-of-file; an empty block lets reads
			// past EOF degrade to zero-filled bytes.
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}
	return data, nil
}
