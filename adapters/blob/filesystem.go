// Package blob holds the export destinations: a local directory or an
// S3-compatible bucket.
package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"imvqa/domain/core"
	"imvqa/internal/errors"
	"imvqa/ports"
)

// Filesystem stores blobs as files under root, with a JSON ".meta" sidecar
// holding content type and metadata.
type Filesystem struct {
	root string
}

// NewFilesystem returns a store rooted at root, creating the directory if needed
func NewFilesystem(root string) (*Filesystem, error) {
	if root == "" {
		root = "./exports"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Filesystem{root: root}, nil
}

func (s *Filesystem) Driver() ports.BlobDriver { return ports.BlobDriverFilesystem }

// sanitizeKey rejects empty, absolute and traversing keys
func sanitizeKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("empty key")
	}
	if strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid key contains '..'")
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("invalid absolute key")
	}
	return filepath.ToSlash(filepath.Clean(key)), nil
}

func (s *Filesystem) pathFor(key string) (dataPath, metaPath string, err error) {
	k, err := sanitizeKey(key)
	if err != nil {
		return "", "", err
	}
	dataPath = filepath.Join(s.root, k)
	metaPath = dataPath + ".meta"
	return
}

type metaFile struct {
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ETag        string            `json:"etag"`
	Size        int64             `json:"size"`
	CreatedAt   time.Time         `json:"created_at"`
}

func (s *Filesystem) Put(ctx context.Context, key string, r io.Reader, opts ports.PutOptions) (ports.BlobInfo, error) {
	if err := ctx.Err(); err != nil {
		return ports.BlobInfo{}, err
	}
	dataPath, metaPath, err := s.pathFor(key)
	if err != nil {
		return ports.BlobInfo{}, err
	}
	if _, err := os.Stat(dataPath); err == nil {
		return ports.BlobInfo{}, fmt.Errorf("blob %s already exists", key)
	}
	if err := os.MkdirAll(filepath.Dir(dataPath), 0o755); err != nil {
		return ports.BlobInfo{}, err
	}

	// stream to a temp file, then move into place
	tmp, err := os.CreateTemp(filepath.Dir(dataPath), ".tmp-*")
	if err != nil {
		return ports.BlobInfo{}, err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, h), r)
	if err != nil {
		_ = tmp.Close()
		return ports.BlobInfo{}, err
	}
	if err := tmp.Close(); err != nil {
		return ports.BlobInfo{}, err
	}
	if err := os.Rename(tmp.Name(), dataPath); err != nil {
		return ports.BlobInfo{}, err
	}

	now := time.Now().UTC()
	mf := metaFile{
		ContentType: opts.ContentType,
		Metadata:    cloneMetadata(opts.Metadata),
		ETag:        hex.EncodeToString(h.Sum(nil)),
		Size:        size,
		CreatedAt:   now,
	}
	raw, err := json.Marshal(mf)
	if err != nil {
		return ports.BlobInfo{}, err
	}
	if err := os.WriteFile(metaPath, raw, 0o644); err != nil {
		return ports.BlobInfo{}, err
	}
	return s.info(key, mf), nil
}

func (s *Filesystem) Get(ctx context.Context, key string) (ports.BlobInfo, io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return ports.BlobInfo{}, nil, err
	}
	dataPath, metaPath, err := s.pathFor(key)
	if err != nil {
		return ports.BlobInfo{}, nil, err
	}
	raw, err := os.ReadFile(metaPath)
	if os.IsNotExist(err) {
		return ports.BlobInfo{}, nil, errors.NotFound("blob "+key, core.ErrNotFound)
	}
	if err != nil {
		return ports.BlobInfo{}, nil, err
	}
	var mf metaFile
	if err := json.Unmarshal(raw, &mf); err != nil {
		return ports.BlobInfo{}, nil, fmt.Errorf("corrupt metadata for %s: %w", key, err)
	}
	file, err := os.Open(dataPath)
	if err != nil {
		return ports.BlobInfo{}, nil, err
	}
	return s.info(key, mf), file, nil
}

func (s *Filesystem) info(key string, mf metaFile) ports.BlobInfo {
	abs, err := filepath.Abs(filepath.Join(s.root, key))
	if err != nil {
		abs = filepath.Join(s.root, key)
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return ports.BlobInfo{
		Key:          key,
		Size:         mf.Size,
		ContentType:  mf.ContentType,
		ETag:         mf.ETag,
		Metadata:     cloneMetadata(mf.Metadata),
		LastModified: mf.CreatedAt,
		URL:          u.String(),
	}
}

func cloneMetadata(md map[string]string) map[string]string {
	if len(md) == 0 {
		return nil
	}
	out := make(map[string]string, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}
