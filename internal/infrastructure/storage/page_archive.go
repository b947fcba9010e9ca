// Package storage archives raw vendor pages in S3-compatible object storage.
package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rosterlink/backend/internal/domain/integration"
	infraconfig "github.com/rosterlink/backend/internal/infrastructure/config"
)

// Ensure S3PageArchive implements PageArchive
var _ integration.PageArchive = (*S3PageArchive)(nil)

// S3PageArchive stores vendor pages that failed to parse. It works with any
// S3-compatible backend (AWS S3, MinIO, RustFS).
type S3PageArchive struct {
	client *s3.Client
	bucket string
	prefix string
	logger *zap.Logger
	now    func() time.Time
}

// S3PageArchiveOption is a functional option for configuring S3PageArchive
type S3PageArchiveOption func(*S3PageArchive)

// WithLogger sets a custom logger
func WithLogger(logger *zap.Logger) S3PageArchiveOption {
	return func(s *S3PageArchive) {
		s.logger = logger
	}
}

// NewS3PageArchive creates an archive from configuration
func NewS3PageArchive(cfg *infraconfig.ArchiveConfig, opts ...S3PageArchiveOption) (*S3PageArchive, error) {
	if cfg == nil {
		return nil, errors.New("archive configuration is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("archive bucket is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, errors.New("archive access key and secret key are required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "http://localhost:9000"
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		if cfg.UseSSL {
			endpoint = "https://" + endpoint
		} else {
			endpoint = "http://" + endpoint
		}
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("invalid archive endpoint: %w", err)
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		o.BaseEndpoint = aws.String(endpoint)
	})

	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix == "" {
		prefix = "raw-pages"
	}

	archive := &S3PageArchive{
		client: client,
		bucket: cfg.Bucket,
		prefix: prefix,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(archive)
	}
	return archive, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
// Call this during application startup.
func (s *S3PageArchive) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	s.logger.Info("Creating archive bucket", zap.String("bucket", s.bucket))
	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		var alreadyOwned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &alreadyOwned) {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Archive uploads one raw page. The key groups pages by platform and day.
func (s *S3PageArchive) Archive(ctx context.Context, platform integration.PlatformCode, ref string, body []byte) error {
	if len(body) == 0 {
		return errors.New("archive body is empty")
	}
	key := s.objectKey(platform, ref)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentTypeFor(body)),
		Metadata: map[string]string{
			"source-ref": ref,
			"platform":   string(platform),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to archive page: %w", err)
	}

	s.logger.Debug("raw page archived",
		zap.String("key", key),
		zap.Int("bytes", len(body)),
	)
	return nil
}

// objectKey builds prefix/platform/yyyy/mm/dd/<ref hash>-<uuid>.<ext>
func (s *S3PageArchive) objectKey(platform integration.PlatformCode, ref string) string {
	sum := sha256.Sum256([]byte(ref))
	name := hex.EncodeToString(sum[:6]) + "-" + uuid.NewString()
	return path.Join(
		s.prefix,
		strings.ToLower(string(platform)),
		s.now().UTC().Format("2006/01/02"),
		name,
	)
}

// GetBucket returns the bucket name
func (s *S3PageArchive) GetBucket() string {
	return s.bucket
}

func contentTypeFor(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return "application/json"
	}
	return "text/html; charset=utf-8"
}
