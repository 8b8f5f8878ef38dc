// Package blobfs implements the incident-photo blob store on the local
// filesystem. Keys map to files under the bucket root; each blob carries a
// JSON metadata sidecar with its content type. Writes are atomic
// (temp file + rename) so a reader never observes a partial blob.
package blobfs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fieldops/instalog/internal/common"
)

// Store is a filesystem-backed blob store.
type Store struct {
	basePath string
	logger   *common.Logger
}

// blobMeta is the sidecar written next to each blob.
type blobMeta struct {
	ContentType string `json:"content_type"`
}

// NewStore creates the bucket root if needed.
func NewStore(logger *common.Logger, path string) (*Store, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create bucket path %s: %w", path, err)
	}
	logger.Info().Str("path", path).Msg("Blob store opened")
	return &Store{basePath: path, logger: logger}, nil
}

// keyPath resolves a blob key to a path under the bucket root. Path
// traversal segments are collapsed; keys use "/" separators.
func (s *Store) keyPath(key string) string {
	clean := filepath.Clean("/" + strings.ReplaceAll(key, "\\", "_"))
	return filepath.Join(s.basePath, filepath.FromSlash(strings.TrimPrefix(clean, "/")))
}

// Put writes the blob and its metadata sidecar atomically.
func (s *Store) Put(_ context.Context, key string, data []byte, contentType string) error {
	target := s.keyPath(key)
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create blob directory %s: %w", dir, err)
	}

	if err := writeAtomic(dir, target, data); err != nil {
		return err
	}

	meta, err := json.Marshal(blobMeta{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("failed to marshal blob metadata: %w", err)
	}
	if err := writeAtomic(dir, target+".meta.json", meta); err != nil {
		return err
	}

	s.logger.Debug().Str("key", key).Int("bytes", len(data)).Msg("Blob written")
	return nil
}

// Get returns the blob bytes and stored content type.
func (s *Store) Get(_ context.Context, key string) ([]byte, string, error) {
	target := s.keyPath(key)
	data, err := os.ReadFile(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("blob '%s' not found", key)
		}
		return nil, "", fmt.Errorf("failed to read blob %s: %w", key, err)
	}

	contentType := ""
	if metaData, err := os.ReadFile(target + ".meta.json"); err == nil {
		var meta blobMeta
		if json.Unmarshal(metaData, &meta) == nil {
			contentType = meta.ContentType
		}
	}

	return data, contentType, nil
}

// Has reports whether a blob exists at key.
func (s *Store) Has(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(s.keyPath(key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat blob %s: %w", key, err)
}

func writeAtomic(dir, target string, data []byte) error {
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
