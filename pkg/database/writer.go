// Package database provides an optional PostgreSQL archive of scored
// incidents with batch support.
package database

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

const (
	batchSize     = 50
	batchInterval = 2 * time.Second
	queueSize     = 10000
)

// Schema creates the archive table when it is missing.
const Schema = `
CREATE TABLE IF NOT EXISTS threat_incidents (
	id           UUID PRIMARY KEY,
	ip           TEXT NOT NULL,
	threat_score INTEGER NOT NULL,
	severity     TEXT NOT NULL,
	summary      TEXT NOT NULL DEFAULT '',
	country      TEXT NOT NULL DEFAULT '',
	reputation   TEXT NOT NULL DEFAULT '',
	detected_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS threat_incidents_ip_idx ON threat_incidents (ip, detected_at DESC);
`

// Incident is one archived analysis outcome.
type Incident struct {
	ID          string
	IP          string
	ThreatScore int
	Severity    string
	Summary     string
	Country     string
	Reputation  string
	DetectedAt  time.Time
}

// IncidentWriter handles batch writing of incidents to PostgreSQL.
type IncidentWriter struct {
	db       *sql.DB
	queue    chan Incident
	interval time.Duration
	done     chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex

	// Stats
	written atomic.Uint64
	dropped atomic.Uint64
	batches atomic.Uint64
}

// NewIncidentWriter connects to databaseURL and makes sure the schema exists.
func NewIncidentWriter(ctx context.Context, databaseURL string) (*IncidentWriter, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		db.Close()
		return nil, err
	}

	log.Info().Str("component", "archive").Msg("Connected to PostgreSQL database")
	return newIncidentWriter(db, queueSize), nil
}

func newIncidentWriter(db *sql.DB, size int) *IncidentWriter {
	return &IncidentWriter{
		db:       db,
		queue:    make(chan Incident, size),
		interval: batchInterval,
		done:     make(chan struct{}),
	}
}

// Start begins the background writer goroutine.
func (w *IncidentWriter) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.writerLoop()
	log.Info().Str("component", "archive").Msg("Incident writer started")
}

// Stop flushes queued incidents and closes the database.
func (w *IncidentWriter) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.done)
	w.wg.Wait()
	w.db.Close()
	log.Info().
		Str("component", "archive").
		Uint64("written", w.written.Load()).
		Uint64("dropped", w.dropped.Load()).
		Uint64("batches", w.batches.Load()).
		Msg("Incident writer stopped")
}

// Write queues an incident. It never blocks; when the queue is full the
// incident is dropped.
func (w *IncidentWriter) Write(incident Incident) {
	if incident.ID == "" {
		incident.ID = uuid.NewString()
	}
	select {
	case w.queue <- incident:
	default:
		n := w.dropped.Add(1)
		if n%1000 == 1 {
			log.Warn().Str("component", "archive").Uint64("dropped", n).Msg("Incident queue full, dropping")
		}
	}
}

// Stats returns writer statistics.
func (w *IncidentWriter) Stats() map[string]interface{} {
	return map[string]interface{}{
		"incidents_written": w.written.Load(),
		"incidents_dropped": w.dropped.Load(),
		"batches_written":   w.batches.Load(),
		"queue_len":         len(w.queue),
		"queue_cap":         cap(w.queue),
	}
}

func (w *IncidentWriter) writerLoop() {
	defer w.wg.Done()

	batch := make([]Incident, 0, batchSize)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case incident := <-w.queue:
			batch = append(batch, incident)
			if len(batch) >= batchSize {
				w.writeBatch(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				w.writeBatch(batch)
				batch = batch[:0]
			}

		case <-w.done:
			// Write never blocks, so draining what is queued flushes everything accepted before Stop.
		drain:
			for {
				select {
				case incident := <-w.queue:
					batch = append(batch, incident)
					if len(batch) >= batchSize {
						w.writeBatch(batch)
						batch = batch[:0]
					}
				default:
					break drain
				}
			}
			if len(batch) > 0 {
				w.writeBatch(batch)
			}
			return
		}
	}
}

func (w *IncidentWriter) writeBatch(batch []Incident) {
	if len(batch) == 0 {
		return
	}

	tx, err := w.db.Begin()
	if err != nil {
		log.Error().Err(err).Str("component", "archive").Msg("Failed to begin transaction")
		return
	}
	defer tx.Rollback()

	written := 0
	for _, incident := range batch {
		_, err := tx.Exec(`
			INSERT INTO threat_incidents (
				id, ip, threat_score, severity, summary, country, reputation, detected_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO NOTHING
		`,
			incident.ID,
			incident.IP,
			incident.ThreatScore,
			incident.Severity,
			incident.Summary,
			incident.Country,
			incident.Reputation,
			incident.DetectedAt,
		)
		if err != nil {
			log.Error().Err(err).Str("component", "archive").Str("ip", incident.IP).Msg("Failed to insert incident")
			continue
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		log.Error().Err(err).Str("component", "archive").Msg("Failed to commit batch")
		return
	}

	w.written.Add(uint64(written))
	w.batches.Add(1)
}
