package testkit

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"time"

	"imvqa/domain/core"
	"imvqa/domain/plate"
	"imvqa/ports"
)

// InMemoryPlateStore implements PlateStore with in-memory storage
type InMemoryPlateStore struct {
	records  []plate.DataRecord
	layout   plate.Layout
	analyses []plate.AnalysisRecord
	mu       sync.RWMutex
}

func NewInMemoryPlateStore() *InMemoryPlateStore {
	return &InMemoryPlateStore{}
}

func (s *InMemoryPlateStore) Save(ctx context.Context, snap plate.Snapshot) (*plate.AnalysisRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append([]plate.DataRecord(nil), snap.Records...)
	s.layout = plate.NewLayout(append([]plate.LayoutEntry(nil), snap.Layout.Entries...)...)

	rec := plate.AnalysisRecord{
		ID:          core.NewAnalysisID().String(),
		Feature:     snap.Feature,
		WellCount:   snap.Layout.Wells().Len(),
		RecordCount: len(snap.Records),
		SavedAt:     time.Now().UTC(),
	}
	if !math.IsNaN(snap.ControlMedian) {
		cm := snap.ControlMedian
		rec.ControlMedian = &cm
	}
	s.analyses = append(s.analyses, rec)
	return &rec, nil
}

func (s *InMemoryPlateStore) AboveThreshold(ctx context.Context, threshold float64) ([]plate.DataRecord, error) {
	if math.IsNaN(threshold) || math.IsInf(threshold, 0) {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidThreshold, threshold)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := []plate.DataRecord{}
	for _, r := range s.records {
		// NaN compares false, like NULL in SQL
		if r.Variation > threshold {
			results = append(results, r)
		}
	}
	return results, nil
}

func (s *InMemoryPlateStore) Assay(ctx context.Context) (plate.Layout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.layout, nil
}

func (s *InMemoryPlateStore) Analyses(ctx context.Context, limit int) ([]plate.AnalysisRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]plate.AnalysisRecord, 0, len(s.analyses))
	for i := len(s.analyses) - 1; i >= 0; i-- {
		out = append(out, s.analyses[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

var _ ports.PlateStore = (*InMemoryPlateStore)(nil)

// InMemoryBlobStore implements BlobStore with in-memory storage
type InMemoryBlobStore struct {
	blobs map[string][]byte
	infos map[string]ports.BlobInfo
	mu    sync.RWMutex
}

func NewInMemoryBlobStore() *InMemoryBlobStore {
	return &InMemoryBlobStore{
		blobs: make(map[string][]byte),
		infos: make(map[string]ports.BlobInfo),
	}
}

func (s *InMemoryBlobStore) Driver() ports.BlobDriver { return "memory" }

func (s *InMemoryBlobStore) Put(ctx context.Context, key string, r io.Reader, opts ports.PutOptions) (ports.BlobInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return ports.BlobInfo{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.blobs[key]; exists {
		return ports.BlobInfo{}, fmt.Errorf("blob %s already exists", key)
	}
	info := ports.BlobInfo{
		Key:          key,
		Size:         int64(len(data)),
		ContentType:  opts.ContentType,
		Metadata:     opts.Metadata,
		LastModified: time.Now().UTC(),
		URL:          "memory://" + key,
	}
	s.blobs[key] = data
	s.infos[key] = info
	return info, nil
}

func (s *InMemoryBlobStore) Get(ctx context.Context, key string) (ports.BlobInfo, io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[key]
	if !ok {
		return ports.BlobInfo{}, nil, fmt.Errorf("%w: blob %s", core.ErrNotFound, key)
	}
	return s.infos[key], io.NopCloser(bytes.NewReader(data)), nil
}

// Keys lists the stored keys in order
func (s *InMemoryBlobStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.blobs))
	for k := range s.blobs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var _ ports.BlobStore = (*InMemoryBlobStore)(nil)
