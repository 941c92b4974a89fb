package storage

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/raphaelgruber/voxchat/internal/config"
)

// New builds the blob store selected by cfg.StorageBackend.
// The S3 backend takes credentials from the default AWS chain; a custom
// endpoint switches to path-style addressing for MinIO and friends.
func New(ctx context.Context, cfg config.Config) (BlobStore, error) {
	switch cfg.StorageBackend {
	case config.StorageLocal, "":
		return NewLocal(cfg.StorageDir)
	case config.StorageS3:
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("storage: VOXCHAT_S3_BUCKET is required for the s3 backend")
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3Region))
		if err != nil {
			return nil, fmt.Errorf("storage: load aws config: %w", err)
		}
		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.S3Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.S3Endpoint)
				o.UsePathStyle = true
			}
		})
		return NewS3(client, cfg.S3Bucket, cfg.S3Prefix), nil
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", cfg.StorageBackend)
	}
}
