package db

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of *s3.Client the adapter needs.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config locates the snapshot object.
type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Key       string `mapstructure:"key"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"` // e.g. a MinIO URL; empty uses AWS
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// S3 stores the snapshot as a single object. PutObject replaces the object
// in one request, so readers never see a partial snapshot.
type S3 struct {
	api    S3API
	bucket string
	key    string
	logger *log.Logger
}

// NewS3 wraps an existing client.
func NewS3(api S3API, bucket, key string, logger *log.Logger) (*S3, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket cannot be empty")
	}
	if key == "" {
		key = DefaultSnapshotName + ".snapshot"
	}
	return &S3{api: api, bucket: bucket, key: key, logger: defaultLogger(logger)}, nil
}

// OpenS3 builds an S3 client from cfg. Static credentials are used when
// both keys are set; otherwise the default AWS credential chain applies.
func OpenS3(ctx context.Context, cfg S3Config, logger *log.Logger) (*S3, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3(client, cfg.Bucket, cfg.Key, logger)
}

// Save implements Adapter.Save.
func (a *S3) Save(ctx context.Context, blob []byte) error {
	sealed := seal(blob)
	_, err := a.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(a.key),
		Body:          bytes.NewReader(sealed),
		ContentLength: aws.Int64(int64(len(sealed))),
		ContentType:   aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("failed to put s3://%s/%s: %w", a.bucket, a.key, err)
	}
	return nil
}

// Load implements Adapter.Load.
func (a *S3) Load(ctx context.Context) ([]byte, error) {
	raw, err := a.raw(ctx)
	if err != nil {
		return nil, err
	}
	return openSealed(a.logger, fmt.Sprintf("s3://%s/%s", a.bucket, a.key), raw), nil
}

func (a *S3) raw(ctx context.Context) ([]byte, error) {
	out, err := a.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get s3://%s/%s: %w", a.bucket, a.key, err)
	}
	defer out.Body.Close()

	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read s3://%s/%s: %w", a.bucket, a.key, err)
	}
	return raw, nil
}

// Close implements Adapter.Close.
func (a *S3) Close() error { return nil }

// Usage implements Inspector.Usage.
func (a *S3) Usage(ctx context.Context) (int64, error) {
	raw, err := a.raw(ctx)
	return int64(len(raw)), err
}

// Clear implements Inspector.Clear.
func (a *S3) Clear(ctx context.Context) error {
	_, err := a.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete s3://%s/%s: %w", a.bucket, a.key, err)
	}
	return nil
}
