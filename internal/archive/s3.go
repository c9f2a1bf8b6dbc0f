package archive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/olcbioinformatics/sippr-launcher/internal/config"
	httpx "github.com/olcbioinformatics/sippr-launcher/internal/http"
	"github.com/olcbioinformatics/sippr-launcher/internal/logging"
)

// Environment variables holding archive-only S3 keys. When unset the default
// AWS credential chain (env, shared config, instance role) is used.
const (
	EnvS3AccessKey = "SIPPR_ARCHIVE_ACCESS_KEY_ID"
	EnvS3SecretKey = "SIPPR_ARCHIVE_SECRET_ACCESS_KEY"
)

// ObjectPutter is the part of *s3.Client the uploader needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader puts reports into an S3 bucket.
type S3Uploader struct {
	client ObjectPutter
	bucket string
	prefix string
	retry  httpx.Config
	logger *logging.Logger
}

// NewS3Uploader loads the AWS configuration for cfg.Region and routes SDK
// traffic through httpClient.
func NewS3Uploader(ctx context.Context, cfg config.ArchiveConfig, httpClient *http.Client, logger *logging.Logger) (*S3Uploader, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithHTTPClient(httpClient),
	}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if key, secret := os.Getenv(EnvS3AccessKey), os.Getenv(EnvS3SecretKey); key != "" && secret != "" {
		provider := awscreds.NewStaticCredentialsProvider(key, secret, "")
		opts = append(opts, awsconfig.WithCredentialsProvider(aws.NewCredentialsCache(provider)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return newS3Uploader(s3.NewFromConfig(awsCfg), cfg.Bucket, cfg.Prefix, logger), nil
}

func newS3Uploader(client ObjectPutter, bucket, prefix string, logger *logging.Logger) *S3Uploader {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	logger = logger.Component("archive-s3")
	return &S3Uploader{
		client: client,
		bucket: bucket,
		prefix: prefix,
		retry:  retryConfig(logger, "s3://"+bucket),
		logger: logger,
	}
}

// Upload puts localPath at <prefix>/<base name> and returns its s3:// URL.
func (u *S3Uploader) Upload(ctx context.Context, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", localPath, err)
	}

	key := objectKey(u.prefix, localPath)
	start := time.Now()

	err = httpx.ExecuteWithRetry(ctx, u.retry, func() error {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("failed to rewind %s: %w", localPath, err)
		}
		_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(u.bucket),
			Key:           aws.String(key),
			Body:          f,
			ContentLength: aws.Int64(info.Size()),
			ContentType:   aws.String(contentType(localPath)),
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s to s3://%s/%s: %w", localPath, u.bucket, key, err)
	}

	location := fmt.Sprintf("s3://%s/%s", u.bucket, key)
	u.logger.Info().
		Str("location", location).
		Int64("bytes", info.Size()).
		Dur("took", time.Since(start)).
		Msg("Report archived")
	return location, nil
}
