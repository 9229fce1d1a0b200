// Package memory provides the durable, bounded incident history: per-IP
// verdicts and a global incident log, persisted as JSON.
package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hervehildenbrand/threatsage/pkg/metrics"
	"github.com/hervehildenbrand/threatsage/pkg/models"
)

// DefaultPath is the memory file used when none is configured.
const DefaultPath = "memory_dump.txt"

// Store is the on-disk shape of the incident memory.
type Store struct {
	Incidents []models.IncidentLogEntry    `json:"incidents"`
	KnownIPs  map[string]*models.IPHistory `json:"known_ips"`
}

func emptyStore() Store {
	return Store{
		Incidents: []models.IncidentLogEntry{},
		KnownIPs:  make(map[string]*models.IPHistory),
	}
}

// Memory owns a Store and its file. Record is the only mutator and saves
// after every call. There is no cross-process locking: concurrent processes
// sharing the same file lose updates (last writer wins).
type Memory struct {
	path  string
	store Store
	mu    sync.Mutex
	now   func() time.Time
}

// Open creates a Memory bound to path and loads it.
func Open(path string) *Memory {
	if path == "" {
		path = DefaultPath
	}
	m := &Memory{path: path, store: emptyStore(), now: time.Now}
	m.Load()
	return m
}

// Load replaces the in-memory store with the file contents. A missing or
// malformed file yields an empty store; the failure is logged, not returned.
func (m *Memory) Load() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.store = emptyStore()

	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Debug().Str("component", "memory").Str("path", m.path).Msg("No memory file, starting empty")
		} else {
			log.Warn().Err(err).Str("component", "memory").Str("path", m.path).Msg("Failed to read memory file, starting empty")
		}
		return
	}

	var loaded Store
	if err := json.Unmarshal(data, &loaded); err != nil {
		log.Warn().Err(err).Str("component", "memory").Str("path", m.path).Msg("Malformed memory file, starting empty")
		return
	}

	if loaded.Incidents != nil {
		m.store.Incidents = keepNewest(loaded.Incidents, models.MaxIncidents)
	}
	for ip, h := range loaded.KnownIPs {
		if h == nil {
			continue
		}
		h.PreviousVerdicts = keepNewest(h.PreviousVerdicts, models.MaxVerdictsPerIP)
		m.store.KnownIPs[ip] = h
	}

	log.Debug().
		Str("component", "memory").
		Int("incidents", len(m.store.Incidents)).
		Int("known_ips", len(m.store.KnownIPs)).
		Msg("Loaded incident memory")
}

// HistoryFor returns a copy of the history for ip, or a zero history if the IP is unknown.
func (m *Memory) HistoryFor(ip string) models.IPHistory {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.store.KnownIPs[ip]
	if !ok {
		return models.IPHistory{PreviousVerdicts: []models.Verdict{}}
	}
	return models.IPHistory{
		SeenCount:        h.SeenCount,
		PreviousVerdicts: append([]models.Verdict{}, h.PreviousVerdicts...),
	}
}

// Record notes one scored incident for ip and saves the store. A failed save
// is logged and does not interrupt the caller.
func (m *Memory) Record(ip string, score int, verdictText string) {
	m.mu.Lock()
	now := m.now()
	score = min(max(score, 0), 100)

	h, ok := m.store.KnownIPs[ip]
	if !ok {
		h = &models.IPHistory{}
		m.store.KnownIPs[ip] = h
	}
	h.SeenCount++
	h.PreviousVerdicts = appendBounded(h.PreviousVerdicts, models.Verdict{
		Timestamp:   now,
		ThreatScore: score,
		Summary:     models.TruncateSummary(verdictText),
	}, models.MaxVerdictsPerIP)

	m.store.Incidents = appendBounded(m.store.Incidents, models.IncidentLogEntry{
		IP:          ip,
		Timestamp:   now,
		ThreatScore: score,
	}, models.MaxIncidents)

	err := m.saveLocked()
	m.mu.Unlock()

	metrics.IncidentsRecorded.Inc()
	if err != nil {
		log.Error().Err(err).Str("component", "memory").Str("ip", ip).Msg("Failed to save incident memory")
	}
}

// Save writes the whole store to disk.
func (m *Memory) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked()
}

func (m *Memory) saveLocked() error {
	data, err := json.MarshalIndent(m.store, "", "  ")
	if err != nil {
		return fmt.Errorf("encode memory: %w", err)
	}
	if dir := filepath.Dir(m.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			metrics.PersistFailures.WithLabelValues("memory").Inc()
			return fmt.Errorf("create memory dir: %w", err)
		}
	}
	if err := os.WriteFile(m.path, data, 0644); err != nil {
		metrics.PersistFailures.WithLabelValues("memory").Inc()
		return fmt.Errorf("write memory %s: %w", m.path, err)
	}
	return nil
}

// Incidents returns a copy of the global incident log, oldest first.
func (m *Memory) Incidents() []models.IncidentLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.IncidentLogEntry{}, m.store.Incidents...)
}

// KnownIPs returns every IP with history, sorted.
func (m *Memory) KnownIPs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ips := make([]string, 0, len(m.store.KnownIPs))
	for ip := range m.store.KnownIPs {
		ips = append(ips, ip)
	}
	sort.Strings(ips)
	return ips
}

// Path returns the backing file path.
func (m *Memory) Path() string {
	return m.path
}

// appendBounded appends v and drops the oldest elements beyond limit.
func appendBounded[T any](s []T, v T, limit int) []T {
	return keepNewest(append(s, v), limit)
}

// keepNewest drops the oldest elements of s beyond limit.
func keepNewest[T any](s []T, limit int) []T {
	if over := len(s) - limit; over > 0 {
		return append(s[:0:0], s[over:]...)
	}
	return s
}
