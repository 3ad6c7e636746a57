package writer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "fundingflow/config"
	"fundingflow/logger"
	"fundingflow/models"
)

// s3API is the subset of the S3 client used by S3Writer.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Writer overwrites a single object with the latest snapshot so static
// hosting or other services can read it. No history is kept.
type S3Writer struct {
	client s3API
	bucket string
	key    string
	log    *logger.Log
}

// NewS3Writer loads the AWS configuration for cfg. Static credentials are
// used when both keys are set; otherwise the default chain applies.
func NewS3Writer(ctx context.Context, cfg appconfig.S3Config) (*S3Writer, error) {
	log := logger.GetLogger()

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				"",
			),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		log.WithComponent("s3_writer").WithError(err).Warn("failed to load AWS configuration")
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	log.WithComponent("s3_writer").WithFields(logger.Fields{
		"region": cfg.Region,
		"bucket": cfg.Bucket,
		"key":    cfg.Key,
	}).Info("s3 writer initialized")

	return &S3Writer{client: client, bucket: cfg.Bucket, key: cfg.Key, log: log}, nil
}

// Publish uploads snap as JSON, replacing the previous object.
func (w *S3Writer) Publish(ctx context.Context, snap models.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("s3: encode snapshot: %w", err)
	}

	_, err = w.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(w.bucket),
		Key:          aws.String(w.key),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String("application/json"),
		CacheControl: aws.String("no-cache"),
	})
	if err != nil {
		return fmt.Errorf("s3: put %s/%s: %w", w.bucket, w.key, err)
	}

	w.log.LogMetric("s3_writer", "snapshot_bytes", len(data), "gauge", logger.Fields{"sink": "s3"})
	return nil
}
