package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ckr-digital/ridgeline/internal/domain"
)

// S3ClientConfig holds configuration for S3Client
type S3ClientConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UsePathStyle    bool
}

// S3Client archives knowledge file versions to S3-compatible storage
// (e.g. MinIO). Every ingested version is kept under an immutable key so
// the raw source of any chunk can be recovered later.
type S3Client struct {
	client            *s3.Client
	presignClient     *s3.PresignClient
	bucket            string
	downloadURLExpiry time.Duration
}

// NewS3Client creates a new S3Client with the given configuration
func NewS3Client(ctx context.Context, cfg S3ClientConfig) (*S3Client, error) {
	// Create custom resolver for S3-compatible endpoints
	customResolver := aws.EndpointResolverWithOptionsFunc(
		func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			if cfg.Endpoint != "" {
				return aws.Endpoint{
					URL:               cfg.Endpoint,
					HostnameImmutable: true,
				}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		},
	)

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
		config.WithEndpointResolverWithOptions(customResolver),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Path-style addressing for S3-compatible services
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
	})

	presignClient := s3.NewPresignClient(client)

	return &S3Client{
		client:            client,
		presignClient:     presignClient,
		bucket:            cfg.Bucket,
		downloadURLExpiry: 1 * time.Hour,
	}, nil
}

// ArchiveKey returns the immutable object key for one file version.
func ArchiveKey(fileKey string, version int32) string {
	return fmt.Sprintf("files/%s/v%d", fileKey, version)
}

// ArchiveFile stores the raw content of a knowledge file version and
// returns the object key it was written under.
func (c *S3Client) ArchiveFile(ctx context.Context, f *domain.KnowledgeFile) (string, error) {
	key := ArchiveKey(f.FileKey, f.Version)

	contentType := "text/markdown"
	if f.Kind == domain.ContentKindJSON {
		contentType = "application/json"
	}

	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader([]byte(f.Content)),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"file-key": f.FileKey,
			"version":  fmt.Sprintf("%d", f.Version),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to archive file: %w", err)
	}

	return key, nil
}

// GetArchivedFile fetches the raw content of an archived version.
func (c *S3Client) GetArchivedFile(ctx context.Context, fileKey string, version int32) ([]byte, error) {
	output, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(ArchiveKey(fileKey, version)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get archived file: %w", err)
	}
	defer output.Body.Close()

	data, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read archived file: %w", err)
	}
	return data, nil
}

// GenerateDownloadURL creates a presigned URL for an archived version.
func (c *S3Client) GenerateDownloadURL(ctx context.Context, fileKey string, version int32) (string, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(ArchiveKey(fileKey, version)),
	}

	presignedReq, err := c.presignClient.PresignGetObject(ctx, input, func(opts *s3.PresignOptions) {
		opts.Expires = c.downloadURLExpiry
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate download URL: %w", err)
	}

	return presignedReq.URL, nil
}

// DeleteArchivedFile removes one archived version from storage
func (c *S3Client) DeleteArchivedFile(ctx context.Context, fileKey string, version int32) error {
	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(ArchiveKey(fileKey, version)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete archived file: %w", err)
	}

	return nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (c *S3Client) EnsureBucket(ctx context.Context) error {
	_, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err == nil {
		return nil // Bucket exists
	}

	_, err = c.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}

	return nil
}
