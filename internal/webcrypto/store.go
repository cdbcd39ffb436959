package webcrypto

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// Store persists key records keyed by UID. Deleted records remain in
// the store as tombstones; the registry decides what is resolvable.
type Store interface {
	// Save writes a record, overwriting any previous version.
	Save(ctx context.Context, rec *KeyRecord) error

	// LoadAll reads every stored record, including tombstones.
	LoadAll(ctx context.Context) ([]*KeyRecord, error)
}

// FileStore implements Store using the filesystem.
// Record layout:
//
//	{basePath}/{uid}.record    # CBOR-encoded KeyRecord
type FileStore struct {
	basePath string
	mu       sync.RWMutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a file-based record store rooted at basePath.
func NewFileStore(basePath string) *FileStore {
	return &FileStore{basePath: basePath}
}

// recordPath returns the path to a record file.
func (s *FileStore) recordPath(uid string) string {
	return filepath.Join(s.basePath, uid+".record")
}

// Save writes a record atomically (temp file + rename).
func (s *FileStore) Save(ctx context.Context, rec *KeyRecord) error {
	// Check for cancellation before acquiring lock
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	data, err := cbor.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.basePath, 0700); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.basePath, rec.UID+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp record: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to sync record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close temp record: %w", err)
	}

	if err := os.Rename(tmpName, s.recordPath(rec.UID)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to commit record: %w", err)
	}

	return nil
}

// LoadAll reads every record file in the store.
func (s *FileStore) LoadAll(ctx context.Context) ([]*KeyRecord, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read registry directory: %w", err)
	}

	var records []*KeyRecord
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".record") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.basePath, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read record %s: %w", entry.Name(), err)
		}

		var rec KeyRecord
		if err := cbor.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode record %s: %w", entry.Name(), err)
		}

		records = append(records, &rec)
	}

	return records, nil
}

// MemoryStore implements Store in memory. Used in tests and for
// ephemeral registries.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*KeyRecord
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*KeyRecord)}
}

func (s *MemoryStore) Save(_ context.Context, rec *KeyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.UID] = rec.Clone()
	return nil
}

func (s *MemoryStore) LoadAll(_ context.Context) ([]*KeyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make([]*KeyRecord, 0, len(s.records))
	for _, rec := range s.records {
		records = append(records, rec.Clone())
	}
	return records, nil
}
