// Package publish mirrors composed snapshots to an S3-compatible bucket.
package publish

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"himawari-desktop/internal/snapshot"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// ErrBucketRequired is returned when publishing is configured without a bucket
var ErrBucketRequired = errors.New("publish bucket is required")

// Config describes the target bucket
type Config struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string // empty means AWS; otherwise host:port or URL of an S3-compatible store
	AccessKey string // empty means the default credential chain
	SecretKey string
}

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Publisher uploads snapshot JPEGs
type Publisher struct {
	api    objectPutter
	bucket string
	prefix string
	log    zerolog.Logger
}

// New initialises a Publisher from cfg
func New(ctx context.Context, cfg Config, log zerolog.Logger) (*Publisher, error) {
	if cfg.Bucket == "" {
		return nil, ErrBucketRequired
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
		awsconfig.WithHTTPClient(&http.Client{Timeout: 60 * time.Second}),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
				endpoint = "https://" + endpoint
			}
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return newPublisher(client, cfg, log), nil
}

func newPublisher(api objectPutter, cfg Config, log zerolog.Logger) *Publisher {
	return &Publisher{
		api:    api,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		log:    log,
	}
}

// Key mirrors the archive layout: <prefix>/<YYYYMMDD>/<YYYYMMDDHHMM>.jpg, where the
// day and file come from the last two elements of localPath
func (p *Publisher) Key(localPath string) string {
	return path.Join(p.prefix, filepath.Base(filepath.Dir(localPath)), filepath.Base(localPath))
}

// Publish uploads the composed snapshot at localPath
func (p *Publisher) Publish(ctx context.Context, ts snapshot.Timestamp, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat snapshot: %w", err)
	}

	key := p.Key(localPath)
	_, err = p.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String("image/jpeg"),
		CacheControl:  aws.String("public, max-age=600"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload snapshot: %w", err)
	}

	p.log.Info().Str("bucket", p.bucket).Str("key", key).Str("snapshot", ts.Compact()).Msg("snapshot published")
	return nil
}
