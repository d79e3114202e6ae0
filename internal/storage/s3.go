package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var ErrNotConfigured = errors.New("object storage is not configured")

// Uploader stores an object and returns a URL or path that refers to it.
type Uploader interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
}

type S3Config struct {
	// Endpoint is set for S3-compatible providers such as Cloudflare R2 and
	// left empty for AWS S3.
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	Region        string
	PublicBaseURL string
}

type S3Client struct {
	client        *s3.Client
	bucket        string
	region        string
	endpoint      string
	publicBaseURL string
}

func NewS3Client(cfg S3Config) (*S3Client, error) {
	cfg.Endpoint = strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	cfg.PublicBaseURL = strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")

	if cfg.AccessKey == "" || cfg.SecretKey == "" || cfg.Bucket == "" {
		return nil, ErrNotConfigured
	}
	if cfg.Region == "" {
		cfg.Region = "auto"
	}

	awsCfg := aws.Config{
		Region:      cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Client{
		client:        client,
		bucket:        cfg.Bucket,
		region:        cfg.Region,
		endpoint:      cfg.Endpoint,
		publicBaseURL: cfg.PublicBaseURL,
	}, nil
}

func (c *S3Client) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	if c == nil || c.client == nil {
		return "", ErrNotConfigured
	}
	if size <= 0 {
		return "", fmt.Errorf("empty file")
	}
	input := &s3.PutObjectInput{
		Bucket:        &c.bucket,
		Key:           &key,
		Body:          body,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(size),
	}
	if _, err := c.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("s3 upload failed: %w", err)
	}
	return c.objectURL(key), nil
}

func (c *S3Client) objectURL(key string) string {
	trimmedKey := strings.TrimLeft(key, "/")
	switch {
	case c.publicBaseURL != "":
		return fmt.Sprintf("%s/%s/%s", c.publicBaseURL, c.bucket, trimmedKey)
	case c.endpoint != "":
		return fmt.Sprintf("%s/%s/%s", c.endpoint, c.bucket, trimmedKey)
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", c.bucket, c.region, trimmedKey)
	}
}
