package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const presignExpiry = 24 * time.Hour

// S3Config selects the bucket songs are uploaded to.
type S3Config struct {
	Bucket string
	Region string
	Key    string
	Secret string
	// Endpoint targets an S3-compatible service instead of AWS.
	Endpoint string
	// Prefix is prepended to every object key.
	Prefix string
}

// Enabled reports whether a bucket is configured.
func (c S3Config) Enabled() bool {
	return strings.TrimSpace(c.Bucket) != ""
}

// S3Uploader uploads finished songs and returns shareable links.
type S3Uploader struct {
	cfg    S3Config
	client *s3.Client
}

// NewS3Uploader builds an uploader. Static credentials are used when Key
// and Secret are set; otherwise the default AWS credential chain applies.
func NewS3Uploader(ctx context.Context, cfg S3Config) (*S3Uploader, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("export: s3 bucket is not configured")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.Key != "" && cfg.Secret != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.Key, cfg.Secret, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("export: couldn't load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Uploader{cfg: cfg, client: client}, nil
}

// ObjectKey is the key a local file is stored under.
func (u *S3Uploader) ObjectKey(file string) string {
	name := filepath.Base(file)
	prefix := strings.Trim(u.cfg.Prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// Upload puts file in the bucket and returns a presigned GET URL.
func (u *S3Uploader) Upload(ctx context.Context, file string) (string, error) {
	contentType, err := contentTypeFor(file)
	if err != nil {
		return "", err
	}
	reader, err := os.Open(file)
	if err != nil {
		return "", fmt.Errorf("export: couldn't open %s: %w", file, err)
	}
	defer reader.Close()
	key := u.ObjectKey(file)
	if _, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.cfg.Bucket),
		Key:         aws.String(key),
		Body:        reader,
		ContentType: aws.String(contentType),
	}); err != nil {
		return "", fmt.Errorf("export: couldn't put object %s: %w", key, err)
	}
	presigned, err := s3.NewPresignClient(u.client).PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(u.cfg.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		return "", fmt.Errorf("export: couldn't presign object %s: %w", key, err)
	}
	return presigned.URL, nil
}

func contentTypeFor(file string) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(file)); ext {
	case ".mp3":
		return "audio/mpeg", nil
	case ".wav", ".wave":
		return "audio/wav", nil
	default:
		return "", fmt.Errorf("export: unknown content type for extension %s", ext)
	}
}
