package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// S3Store implements ObjectStore on an S3 bucket with an optional key prefix.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

var _ ObjectStore = (*S3Store)(nil)

// NewS3Store builds a store using the default AWS credential chain.
func NewS3Store(ctx context.Context, bucket, prefix, region string) (*S3Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	return NewS3StoreWithClient(s3.NewFromConfig(cfg), bucket, prefix), nil
}

// NewS3StoreWithClient wraps an existing client, for tests.
func NewS3StoreWithClient(client *s3.Client, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (s *S3Store) fullKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

// Head checks existence via HeadObject. NotFound and Forbidden both map to
// "does not exist"; anything else is a real error the caller treats as
// unknown-and-proceed.
func (s *S3Store) Head(ctx context.Context, key string) (bool, *time.Time, error) {
	full := s.fullKey(key)
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &s.bucket,
		Key:    &full,
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case "NotFound", "NoSuchKey", "Forbidden", "AccessDenied":
				return false, nil, nil
			}
		}
		return false, nil, fmt.Errorf("head %s: %w", full, err)
	}
	var lastModified *time.Time
	if out.LastModified != nil {
		t := out.LastModified.UTC()
		lastModified = &t
	}
	return true, lastModified, nil
}

// PutMarkdown writes a report.
func (s *S3Store) PutMarkdown(ctx context.Context, key, body string) error {
	return s.put(ctx, key, []byte(body), "text/markdown; charset=utf-8")
}

// PutJSON writes an analysis dump.
func (s *S3Store) PutJSON(ctx context.Context, key string, body []byte) error {
	return s.put(ctx, key, body, "application/json")
}

func (s *S3Store) put(ctx context.Context, key string, body []byte, contentType string) error {
	full := s.fullKey(key)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &full,
		Body:        bytes.NewReader(body),
		ContentType: &contentType,
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", full, err)
	}
	return nil
}
