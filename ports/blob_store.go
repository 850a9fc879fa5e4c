package ports

import (
	"context"
	"io"
	"time"
)

// BlobDriver identifies a blob backend
type BlobDriver string

const (
	BlobDriverFilesystem BlobDriver = "fs"
	BlobDriverS3         BlobDriver = "s3"
)

// PutOptions configures a blob write
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// BlobInfo describes a stored export
type BlobInfo struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
	URL          string            `json:"url,omitempty"`
}

// BlobStore receives exported workbooks and reports. Keys are create-only.
type BlobStore interface {
	Driver() BlobDriver
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (BlobInfo, error)
	Get(ctx context.Context, key string) (BlobInfo, io.ReadCloser, error)
}
