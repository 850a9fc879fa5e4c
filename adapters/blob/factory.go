package blob

import (
	"context"
	"fmt"

	"imvqa/internal/config"
	"imvqa/ports"
)

// Open selects the blob backend named by the configuration
func Open(ctx context.Context, cfg config.BlobConfig) (ports.BlobStore, error) {
	switch cfg.Driver {
	case string(ports.BlobDriverFilesystem), "":
		return NewFilesystem(cfg.Dir)
	case string(ports.BlobDriverS3):
		return NewS3(ctx, S3Config{
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}
