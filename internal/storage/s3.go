package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds S3-compatible storage configuration (MinIO, R2, AWS)
type S3Config struct {
	Endpoint      string
	Region        string
	Bucket        string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
	UsePathStyle  bool
}

// S3Provider implements Provider on top of aws-sdk-go-v2
type S3Provider struct {
	client   *s3.Client
	uploader *manager.Uploader
	presign  *s3.PresignClient
	config   *S3Config
	logger   *slog.Logger
}

// NewS3Provider creates an S3-backed storage provider
func NewS3Provider(ctx context.Context, cfg *S3Config, logger *slog.Logger) (*S3Provider, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey, cfg.SecretKey, "",
		)),
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	logger.Info("Object storage client initialized",
		slog.String("endpoint", cfg.Endpoint),
		slog.String("bucket", cfg.Bucket),
	)

	return &S3Provider{
		client:   client,
		uploader: manager.NewUploader(client),
		presign:  s3.NewPresignClient(client),
		config:   cfg,
		logger:   logger,
	}, nil
}

// Upload stores the file under the folder and returns its key and URL
func (p *S3Provider) Upload(ctx context.Context, file File, folder string, opts UploadOptions) (*UploadResult, error) {
	key := BuildKey(folder, file.FileName, opts)

	_, err := p.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.config.Bucket),
		Key:         aws.String(key),
		Body:        file.Body,
		ContentType: aws.String(file.ContentType),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload %q: %w", key, err)
	}

	p.logger.Debug("Object uploaded",
		slog.String("key", key),
		slog.Int64("size", file.Size),
	)

	return &UploadResult{
		URL: PublicURL(p.config.PublicBaseURL, key),
		Key: key,
	}, nil
}

// Delete removes the object with the given key
func (p *S3Provider) Delete(ctx context.Context, key string) error {
	_, err := p.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(p.config.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %q: %w", key, err)
	}

	return nil
}

// SignedURL returns a presigned GET URL for the key
func (p *S3Provider) SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	req, err := p.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.config.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("failed to presign %q: %w", key, err)
	}

	return req.URL, nil
}

// BuildKey computes the object key for a file. Spaces are collapsed to
// dashes; unless PreserveFileName is set, a unix-millisecond prefix keeps
// repeated uploads of the same name from colliding.
func BuildKey(folder, fileName string, opts UploadOptions) string {
	name := strings.Join(strings.Fields(fileName), "-")

	if opts.PreserveFileName {
		return folder + "/" + name
	}

	return fmt.Sprintf("%s/%d-%s", folder, time.Now().UnixMilli(), name)
}

// PublicURL joins the public base URL and key. With no base configured the
// bare key is returned, matching deployments that front the bucket with a
// CDN rewriting paths.
func PublicURL(baseURL, key string) string {
	if baseURL == "" {
		return key
	}

	return strings.TrimRight(baseURL, "/") + "/" + key
}

// KeyFromURL is the inverse of PublicURL: it recovers the object key from
// a stored public URL. Returns the input unchanged when it does not start
// with the base, which covers rows written before a base URL change.
func KeyFromURL(baseURL, url string) string {
	if baseURL == "" {
		return url
	}

	base := strings.TrimRight(baseURL, "/") + "/"
	return strings.TrimPrefix(url, base)
}

var _ Provider = (*S3Provider)(nil)
