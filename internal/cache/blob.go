package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// BlobStore is a content-addressed blob store. The answering pipeline uses it
// to persist built vector indices across process restarts; the blob format is
// opaque to the store.
type BlobStore interface {
	// GetBlob returns the blob for key, or ErrCacheMiss.
	GetBlob(ctx context.Context, key string) ([]byte, error)

	// PutBlob stores the blob under key.
	PutBlob(ctx context.Context, key string, blob []byte) error
}

var blobKeyPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// FSBlobStore stores blobs as files under a directory, bounded by a
// max-entries sweep: once the directory exceeds maxEntries, the oldest
// files (by modification time) are removed.
type FSBlobStore struct {
	dir        string
	maxEntries int
	mu         sync.Mutex
	logger     *zap.Logger
}

// NewFSBlobStore creates a filesystem blob store rooted at dir.
// A maxEntries of 0 disables the sweep.
func NewFSBlobStore(dir string, maxEntries int, logger *zap.Logger) (*FSBlobStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &FSBlobStore{
		dir:        dir,
		maxEntries: maxEntries,
		logger:     logger.With(zap.String("component", "blob_store")),
	}, nil
}

func (s *FSBlobStore) path(key string) (string, error) {
	if !blobKeyPattern.MatchString(key) {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return filepath.Join(s.dir, key+".blob"), nil
}

// GetBlob returns the blob for key, or ErrCacheMiss.
func (s *FSBlobStore) GetBlob(ctx context.Context, key string) ([]byte, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return data, nil
}

// PutBlob stores the blob under key, then sweeps old entries if the
// directory has grown past the bound.
func (s *FSBlobStore) PutBlob(ctx context.Context, key string, blob []byte) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Write to a temp file first so readers never see a partial blob.
	tmp, err := os.CreateTemp(s.dir, key+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp blob: %w", err)
	}
	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename blob: %w", err)
	}

	s.sweep()
	return nil
}

// sweep removes the oldest blobs past the maxEntries bound.
// Caller must hold s.mu.
func (s *FSBlobStore) sweep() {
	if s.maxEntries <= 0 {
		return
	}

	matches, err := filepath.Glob(filepath.Join(s.dir, "*.blob"))
	if err != nil || len(matches) <= s.maxEntries {
		return
	}

	type fileAge struct {
		path    string
		modTime int64
	}
	files := make([]fileAge, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		files = append(files, fileAge{path: m, modTime: info.ModTime().UnixNano()})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].modTime < files[j].modTime })

	excess := len(files) - s.maxEntries
	for i := 0; i < excess; i++ {
		if err := os.Remove(files[i].path); err != nil {
			s.logger.Warn("failed to sweep blob", zap.String("path", files[i].path), zap.Error(err))
			continue
		}
	}
	if excess > 0 {
		s.logger.Debug("swept blob store", zap.Int("removed", excess), zap.Int("kept", s.maxEntries))
	}
}
