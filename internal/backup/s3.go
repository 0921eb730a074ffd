package backup

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, input *s3.HeadBucketInput, opts ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

// Configured reports whether the config is complete enough to build a client.
func (c S3Config) Configured() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// ObjectStoreAdapter is the primary-destination adapter backed by an
// S3-compatible object store.
type ObjectStoreAdapter struct {
	client s3Client
	bucket string
}

// NewObjectStoreAdapter builds the adapter from static credentials.
func NewObjectStoreAdapter(cfg S3Config) *ObjectStoreAdapter {
	return &ObjectStoreAdapter{client: newS3Client(cfg), bucket: cfg.Bucket}
}

// newObjectStoreAdapterWithClient is used by tests to inject a fake client.
func newObjectStoreAdapterWithClient(client s3Client, bucket string) *ObjectStoreAdapter {
	return &ObjectStoreAdapter{client: client, bucket: bucket}
}

func (a *ObjectStoreAdapter) Upload(ctx context.Context, item Item) (RemoteRef, error) {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(item.Key),
		Body:          bytes.NewReader(item.Data),
		ContentLength: aws.Int64(int64(len(item.Data))),
	}
	if item.MimeType != "" {
		input.ContentType = aws.String(item.MimeType)
	}
	if _, err := a.client.PutObject(ctx, input); err != nil {
		return RemoteRef{}, fmt.Errorf("upload to s3: %w", err)
	}
	return RemoteRef{
		ID:  item.Key,
		URL: fmt.Sprintf("s3://%s/%s", a.bucket, item.Key),
	}, nil
}

func (a *ObjectStoreAdapter) Delete(ctx context.Context, remoteID string) error {
	_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(remoteID),
	})
	if err != nil {
		return fmt.Errorf("delete from s3: %w", err)
	}
	return nil
}

func (a *ObjectStoreAdapter) Probe(ctx context.Context) error {
	if _, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)}); err != nil {
		return fmt.Errorf("head bucket: %w", err)
	}
	return nil
}

// Quota is not available for S3-compatible stores.
func (a *ObjectStoreAdapter) Quota(ctx context.Context) (int64, int64, error) {
	return 0, 0, nil
}
