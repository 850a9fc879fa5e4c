package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"imvqa/internal/errors"
	"imvqa/ports"
)

// S3Config holds the bucket settings. Credentials come from the default
// AWS chain unless set explicitly.
type S3Config struct {
	Region    string
	Bucket    string
	Endpoint  string // optional, e.g. MinIO
	PathStyle bool
}

// S3 stores exports in a single S3-compatible bucket; keys map directly to
// object keys
type S3 struct {
	client *s3.Client
	bucket string
}

// NewS3 creates an S3 store from cfg
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return NewS3FromConfig(awsCfg, cfg), nil
}

// NewS3FromConfig builds the store over an already loaded AWS config
func NewS3FromConfig(awsCfg aws.Config, cfg S3Config) *S3 {
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &S3{client: client, bucket: cfg.Bucket}
}

func (s *S3) Driver() ports.BlobDriver { return ports.BlobDriverS3 }

func (s *S3) Put(ctx context.Context, key string, r io.Reader, opts ports.PutOptions) (ports.BlobInfo, error) {
	if _, err := sanitizeKey(key); err != nil {
		return ports.BlobInfo{}, err
	}
	// Emulate create-only via Head first
	if _, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &s.bucket, Key: &key}); err == nil {
		return ports.BlobInfo{}, fmt.Errorf("blob %s already exists", key)
	}
	// PutObject needs a seekable body to compute its length
	body, ok := r.(io.ReadSeeker)
	if !ok {
		raw, err := io.ReadAll(r)
		if err != nil {
			return ports.BlobInfo{}, err
		}
		body = bytes.NewReader(raw)
	}
	size, err := body.Seek(0, io.SeekEnd)
	if err != nil {
		return ports.BlobInfo{}, err
	}
	if _, err := body.Seek(0, io.SeekStart); err != nil {
		return ports.BlobInfo{}, err
	}
	input := &s3.PutObjectInput{Bucket: &s.bucket, Key: &key, Body: body}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if len(opts.Metadata) > 0 {
		input.Metadata = cloneMetadata(opts.Metadata)
	}
	out, err := s.client.PutObject(ctx, input)
	if err != nil {
		return ports.BlobInfo{}, errors.ExternalServiceError("s3", err)
	}
	return ports.BlobInfo{
		Key:          key,
		Size:         size,
		ContentType:  opts.ContentType,
		ETag:         aws.ToString(out.ETag),
		Metadata:     cloneMetadata(opts.Metadata),
		LastModified: time.Now().UTC(),
		URL:          fmt.Sprintf("s3://%s/%s", s.bucket, key),
	}, nil
}

func (s *S3) Get(ctx context.Context, key string) (ports.BlobInfo, io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		return ports.BlobInfo{}, nil, errors.ExternalServiceError("s3", err)
	}
	info := ports.BlobInfo{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		ContentType:  aws.ToString(out.ContentType),
		ETag:         aws.ToString(out.ETag),
		Metadata:     out.Metadata,
		LastModified: aws.ToTime(out.LastModified),
		URL:          fmt.Sprintf("s3://%s/%s", s.bucket, key),
	}
	return info, out.Body, nil
}
