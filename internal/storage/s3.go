package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds the configuration for S3 storage.
type S3Config struct {
	Bucket          string
	Region          string
	Prefix          string // Optional: key prefix for published results
	Endpoint        string // Optional: for custom S3-compatible endpoints
	AccessKeyID     string // Optional: AWS access key ID
	SecretAccessKey string // Optional: AWS secret access key
}

// S3Storage keeps temporary files on local disk and publishes results to S3.
type S3Storage struct {
	*LocalStorage
	client *s3.Client
	bucket string
	region string
	prefix string
}

// NewS3Storage creates a new S3Storage instance with temporary files in tempDir.
func NewS3Storage(ctx context.Context, tempDir string, cfg S3Config) (*S3Storage, error) {
	local, err := NewLocalStorage(tempDir, "")
	if err != nil {
		return nil, err
	}

	configOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		configOpts = append(configOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Storage{
		LocalStorage: local,
		client:       s3.NewFromConfig(awsCfg, clientOpts...),
		bucket:       cfg.Bucket,
		region:       cfg.Region,
		prefix:       strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Publish uploads data to the bucket under the configured prefix and
// returns the object URL.
func (s *S3Storage) Publish(ctx context.Context, key string, data io.Reader) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	objectKey := key
	if s.prefix != "" {
		objectKey = path.Join(s.prefix, key)
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey),
		Body:        data,
		ContentType: aws.String(contentType(key)),
	})
	if err != nil {
		return "", fmt.Errorf("upload to S3: %w", err)
	}

	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, objectKey), nil
}

func contentType(key string) string {
	switch path.Ext(key) {
	case ".json":
		return "application/json"
	case ".wav":
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}

// Verify interface implementations at compile time.
var (
	_ Storage = (*LocalStorage)(nil)
	_ Storage = (*S3Storage)(nil)
)
