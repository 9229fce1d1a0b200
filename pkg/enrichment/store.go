package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hervehildenbrand/threatsage/pkg/metrics"
	"github.com/hervehildenbrand/threatsage/pkg/models"
)

const (
	// DefaultCachePath is where the file store persists entries.
	DefaultCachePath = "./cache/ip_cache.json"

	// DefaultPersistEvery is the number of insertions between file flushes.
	DefaultPersistEvery = 10
)

// Entry is one cached intelligence record. Timestamp is Unix seconds.
type Entry struct {
	Timestamp float64                   `json:"timestamp"`
	Record    models.IntelligenceRecord `json:"record"`
}

// NewEntry stamps record with t.
func NewEntry(record models.IntelligenceRecord, t time.Time) Entry {
	return Entry{
		Timestamp: float64(t.UnixNano()) / float64(time.Second),
		Record:    record,
	}
}

// Fresh reports whether the entry is still within ttl at now.
func (e Entry) Fresh(now time.Time, ttl time.Duration) bool {
	created := time.Unix(0, int64(e.Timestamp*float64(time.Second)))
	return now.Sub(created) < ttl
}

// Store is the backing storage of the enrichment cache. Expiry is decided by
// the Enricher; stores only hold entries.
type Store interface {
	// Get returns the entry stored under key, if any.
	Get(ctx context.Context, key string) (Entry, bool)
	// Put stores entry under key.
	Put(ctx context.Context, key string, entry Entry) error
	// Flush writes any buffered state to durable storage.
	Flush() error
}

// FileStore keeps entries in memory and persists them to a JSON file every
// persistEvery insertions and on Flush. Concurrent processes sharing the same
// file overwrite each other (last writer wins).
type FileStore struct {
	path         string
	persistEvery int
	entries      map[string]Entry
	inserts      int
	mu           sync.Mutex
}

// OpenFileStore loads path. A missing or corrupt file yields an empty store.
func OpenFileStore(path string, persistEvery int) *FileStore {
	if path == "" {
		path = DefaultCachePath
	}
	if persistEvery <= 0 {
		persistEvery = DefaultPersistEvery
	}
	s := &FileStore{
		path:         path,
		persistEvery: persistEvery,
		entries:      make(map[string]Entry),
	}
	s.load()
	return s
}

func (s *FileStore) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("component", "cache").Str("path", s.path).Msg("Failed to read cache file, starting empty")
		}
		return
	}

	entries := make(map[string]Entry)
	if err := json.Unmarshal(data, &entries); err != nil {
		log.Warn().Err(err).Str("component", "cache").Str("path", s.path).Msg("Corrupt cache file, starting empty")
		return
	}
	s.entries = entries
	log.Debug().Str("component", "cache").Int("entries", len(entries)).Msg("Loaded cache file")
}

// Get implements Store.
func (s *FileStore) Get(_ context.Context, key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	return entry, ok
}

// Put implements Store. Every persistEvery-th insertion flushes the file.
func (s *FileStore) Put(_ context.Context, key string, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = entry
	s.inserts++
	if s.inserts%s.persistEvery != 0 {
		return nil
	}
	return s.writeLocked()
}

// Flush implements Store.
func (s *FileStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked()
}

// Len returns the number of stored entries, fresh or not.
func (s *FileStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *FileStore) writeLocked() error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache: %w", err)
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		metrics.PersistFailures.WithLabelValues("cache").Inc()
		return fmt.Errorf("write cache %s: %w", s.path, err)
	}
	return nil
}

// writeFileAtomic replaces path with data via a temp file in the same directory.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".ip_cache-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
