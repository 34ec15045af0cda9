package store

import (
	"bytes"
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// Compile-time interface check.
var _ ObjectSink = (*S3Sink)(nil)

// S3Sink writes partition objects to an S3 bucket. A non-empty endpoint
// overrides the AWS endpoint and switches to path-style addressing, which
// is what MinIO-style S3-compatible stores expect.
type S3Sink struct {
	bucket string
	client s3iface.S3API
}

// NewS3Sink creates an S3Sink for the given bucket. Credentials come from
// the standard AWS credential chain (environment, shared config, instance
// role).
func NewS3Sink(bucket, endpoint, region string) (*S3Sink, error) {
	cfg := aws.NewConfig()
	if region != "" {
		cfg = cfg.WithRegion(region)
	}
	if endpoint != "" {
		cfg = cfg.WithEndpoint(endpoint).WithS3ForcePathStyle(true)
	}

	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, err
	}

	return &S3Sink{
		bucket: bucket,
		client: s3.New(sess),
	}, nil
}

// Bucket returns the destination bucket name.
func (s *S3Sink) Bucket() string { return s.bucket }

// Put uploads body to key, overwriting any existing object.
func (s *S3Sink) Put(ctx context.Context, key string, body []byte) error {
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return &SinkUnavailableError{Key: key, Err: err}
	}
	return nil
}
