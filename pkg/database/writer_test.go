package database

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIncidentWriter_WriteAssignsID(t *testing.T) {
	w := newIncidentWriter(nil, 4)

	w.Write(Incident{IP: "185.107.56.21", ThreatScore: 60})

	require.Len(t, w.queue, 1)
	queued := <-w.queue
	_, err := uuid.Parse(queued.ID)
	assert.NoError(t, err)
	assert.Equal(t, "185.107.56.21", queued.IP)
}

func TestIncidentWriter_KeepsExistingID(t *testing.T) {
	w := newIncidentWriter(nil, 1)

	w.Write(Incident{ID: "fixed", IP: "8.8.8.8"})

	assert.Equal(t, "fixed", (<-w.queue).ID)
}

func TestIncidentWriter_DropsWhenFull(t *testing.T) {
	w := newIncidentWriter(nil, 2)

	for i := 0; i < 5; i++ {
		w.Write(Incident{IP: "8.8.8.8"})
	}

	stats := w.Stats()
	assert.Equal(t, uint64(3), stats["incidents_dropped"])
	assert.Equal(t, 2, stats["queue_len"])
	assert.Equal(t, 2, stats["queue_cap"])
}

func TestIncidentWriter_StopWithoutStart(t *testing.T) {
	w := newIncidentWriter(nil, 1)
	assert.NotPanics(t, w.Stop)
}

func TestIncidentWriter_StopDrainsQueue(t *testing.T) {
	db, fake := openFakeDB("")
	w := newIncidentWriter(db, 100)
	w.Start()

	w.Write(Incident{IP: "185.107.56.21", ThreatScore: 60, DetectedAt: time.Now()})
	w.Write(Incident{IP: "45.13.22.98", ThreatScore: 80, DetectedAt: time.Now()})
	w.Write(Incident{IP: "8.8.8.8", ThreatScore: 10, DetectedAt: time.Now()})
	w.Stop()

	assert.ElementsMatch(t, []string{"185.107.56.21", "45.13.22.98", "8.8.8.8"}, fake.inserted())
	assert.Equal(t, uint64(3), w.Stats()["incidents_written"])
	assert.Equal(t, uint64(1), w.Stats()["batches_written"])
}

func TestIncidentWriter_SplitsBatches(t *testing.T) {
	db, fake := openFakeDB("")
	w := newIncidentWriter(db, 200)

	for i := 0; i < 2*batchSize+20; i++ {
		w.Write(Incident{IP: fmt.Sprintf("203.0.113.%d", i), DetectedAt: time.Now()})
	}
	w.Start()
	w.Stop()

	assert.Len(t, fake.inserted(), 2*batchSize+20)
	assert.Equal(t, 3, fake.commitCount())
	assert.Equal(t, uint64(3), w.Stats()["batches_written"])
}

func TestIncidentWriter_FlushesOnTicker(t *testing.T) {
	db, fake := openFakeDB("")
	w := newIncidentWriter(db, 10)
	w.interval = 20 * time.Millisecond
	w.Start()
	defer w.Stop()

	w.Write(Incident{IP: "185.107.56.21", DetectedAt: time.Now()})

	require.Eventually(t, func() bool {
		return len(fake.inserted()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestIncidentWriter_SkipsFailedInserts(t *testing.T) {
	db, fake := openFakeDB("bad")
	w := newIncidentWriter(db, 10)

	w.Write(Incident{IP: "8.8.8.8", DetectedAt: time.Now()})
	w.Write(Incident{IP: "bad", DetectedAt: time.Now()})
	w.Write(Incident{IP: "1.1.1.1", DetectedAt: time.Now()})
	w.Start()
	w.Stop()

	assert.Equal(t, []string{"8.8.8.8", "1.1.1.1"}, fake.inserted())
	assert.Equal(t, uint64(2), w.Stats()["incidents_written"])
}
