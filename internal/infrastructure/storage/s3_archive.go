package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/beautyops/backend/internal/domain/integration"
	infraconfig "github.com/beautyops/backend/internal/infrastructure/config"
)

const jsonLinesContentType = "application/x-ndjson"

// Ensure S3PayloadArchive implements PayloadArchive
var _ integration.PayloadArchive = (*S3PayloadArchive)(nil)

// S3PayloadArchive writes each reconciled page as one JSON-lines object.
// It is compatible with any S3-compatible storage (AWS S3, MinIO, etc.)
type S3PayloadArchive struct {
	client *s3.Client
	bucket string
	prefix string
	logger *zap.Logger
}

// S3PayloadArchiveOption is a functional option for configuring S3PayloadArchive
type S3PayloadArchiveOption func(*S3PayloadArchive)

// WithLogger sets a custom logger for S3PayloadArchive
func WithLogger(logger *zap.Logger) S3PayloadArchiveOption {
	return func(s *S3PayloadArchive) {
		s.logger = logger
	}
}

// NewS3PayloadArchive creates a new S3PayloadArchive from configuration.
// Without static keys the default AWS credential chain is used.
func NewS3PayloadArchive(ctx context.Context, cfg *infraconfig.ArchiveConfig, opts ...S3PayloadArchiveOption) (*S3PayloadArchive, error) {
	if cfg == nil {
		return nil, errors.New("archive configuration is required")
	}
	if cfg.S3Bucket == "" {
		return nil, errors.New("archive bucket is required")
	}
	if (cfg.S3AccessKey == "") != (cfg.S3SecretKey == "") {
		return nil, errors.New("archive access key and secret key must be set together")
	}

	region := cfg.S3Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.S3AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	endpoint := cfg.S3Endpoint
	if endpoint != "" && !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.S3ForcePathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	return NewS3PayloadArchiveWithClient(client, cfg.S3Bucket, cfg.S3Prefix, opts...), nil
}

// NewS3PayloadArchiveWithClient creates an archive with an existing S3 client
func NewS3PayloadArchiveWithClient(client *s3.Client, bucket, prefix string, opts ...S3PayloadArchiveOption) *S3PayloadArchive {
	a := &S3PayloadArchive{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// EnsureBucket creates the bucket if it doesn't exist.
// Call this during application startup to ensure the bucket is ready.
func (a *S3PayloadArchive) EnsureBucket(ctx context.Context) error {
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(a.bucket),
	})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	a.logger.Info("Creating archive bucket", zap.String("bucket", a.bucket))
	_, err = a.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(a.bucket),
	})
	if err != nil {
		// Ignore "BucketAlreadyOwnedByYou" error (race condition)
		var alreadyOwned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &alreadyOwned) {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Archive uploads the batch as one JSON-lines object. Empty batches are not written.
func (a *S3PayloadArchive) Archive(ctx context.Context, batch integration.PayloadBatch) error {
	payloads := payloadsOf(batch)
	if len(payloads) == 0 {
		return nil
	}

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for i := range payloads {
		if err := enc.Encode(&payloads[i]); err != nil {
			return fmt.Errorf("failed to encode payload %s: %w", payloads[i].OrderID, err)
		}
	}

	key := ArchiveKey(a.prefix, batch)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body.Bytes()),
		ContentType: aws.String(jsonLinesContentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload archive object: %w", err)
	}

	a.logger.Debug("Archived raw payloads",
		zap.String("run_id", batch.RunID),
		zap.String("key", key),
		zap.Int("records", len(payloads)))
	return nil
}

// GetBucket returns the bucket name
func (a *S3PayloadArchive) GetBucket() string {
	return a.bucket
}
