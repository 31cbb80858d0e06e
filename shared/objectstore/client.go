// Package objectstore persists result artifacts in S3-compatible storage.
// The rest of the system treats the returned locator strings as opaque.
package objectstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config holds object storage settings
type Config struct {
	Region        string
	Bucket        string
	Endpoint      string // optional, for S3-compatible stores
	PublicBaseURL string // optional, overrides the default public URL scheme
}

// Client wraps the S3 client for artifact uploads
type Client struct {
	s3     *s3.Client
	config *Config
	logger *slog.Logger
}

// NewClient creates an object storage client using the ambient AWS
// credential chain.
func NewClient(ctx context.Context, config *Config, logger *slog.Logger) (*Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(config.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if config.Endpoint != "" {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = true
		}
	})

	logger.Info("Object storage client initialized",
		slog.String("bucket", config.Bucket),
		slog.String("region", config.Region),
	)

	return &Client{
		s3:     client,
		config: config,
		logger: logger,
	}, nil
}

// Upload stores body under key and returns a retrievable locator URL.
func (c *Client) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	_, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.config.Bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload object %s: %w", key, err)
	}

	url := c.PublicURL(key)

	c.logger.Debug("Object uploaded",
		slog.String("key", key),
		slog.String("url", url),
	)

	return url, nil
}

// PublicURL maps a storage key to its retrievable URL.
func (c *Client) PublicURL(key string) string {
	if c.config.PublicBaseURL != "" {
		return strings.TrimRight(c.config.PublicBaseURL, "/") + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", c.config.Bucket, c.config.Region, key)
}
