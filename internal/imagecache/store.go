package imagecache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/willf/bloom"
)

// BlobStore is the persistent tier: keyed read/write/delete of raw bytes by
// source URL. It has no fixed bound; the host platform manages its growth.
type BlobStore interface {
	Read(url string) ([]byte, error)
	Write(url string, data []byte) error
	Delete(url string) error
	Clear() error
}

// DiskStore keeps fetched blobs as files named by the hash of their URL,
// with a bloom filter in front so URLs never fetched skip the disk probe.
// The filter can only accumulate, so deletions leave harmless false
// positives that fall through to a miss on read.
type DiskStore struct {
	dir string

	mu   sync.Mutex
	seen *bloom.BloomFilter
}

const (
	bloomEstimateItems = 100000
	bloomFalsePositive = 0.01
)

func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	s := &DiskStore{
		dir:  dir,
		seen: bloom.NewWithEstimates(bloomEstimateItems, bloomFalsePositive),
	}
	// Re-seed the filter from whatever survived the last run.
	names, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan blob dir: %w", err)
	}
	for _, n := range names {
		if !n.IsDir() {
			s.seen.AddString(n.Name())
		}
	}
	return s, nil
}

func blobKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

func (s *DiskStore) path(url string) string {
	return filepath.Join(s.dir, blobKey(url))
}

// Read returns the stored bytes for url, or os.ErrNotExist.
func (s *DiskStore) Read(url string) ([]byte, error) {
	key := blobKey(url)

	s.mu.Lock()
	maybe := s.seen.TestString(key)
	s.mu.Unlock()
	if !maybe {
		return nil, os.ErrNotExist
	}

	data, err := os.ReadFile(filepath.Join(s.dir, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, os.ErrNotExist
		}
		return nil, fmt.Errorf("read blob %s: %w", key, err)
	}
	return data, nil
}

func (s *DiskStore) Write(url string, data []byte) error {
	key := blobKey(url)
	if err := os.WriteFile(filepath.Join(s.dir, key), data, 0o640); err != nil {
		return fmt.Errorf("write blob %s: %w", key, err)
	}
	s.mu.Lock()
	s.seen.AddString(key)
	s.mu.Unlock()
	return nil
}

func (s *DiskStore) Delete(url string) error {
	if err := os.Remove(s.path(url)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

// Clear wipes the persistent tier and resets the filter.
func (s *DiskStore) Clear() error {
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("clear blob dir: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("recreate blob dir: %w", err)
	}
	s.mu.Lock()
	s.seen = bloom.NewWithEstimates(bloomEstimateItems, bloomFalsePositive)
	s.mu.Unlock()
	return nil
}
