package enrichment

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hervehildenbrand/threatsage/pkg/geo"
	"github.com/hervehildenbrand/threatsage/pkg/models"
)

type fakeGeo struct {
	calls int
	err   error
}

func (f *fakeGeo) Lookup(_ context.Context, ip string) (models.IntelligenceRecord, error) {
	f.calls++
	if f.err != nil {
		return models.IntelligenceRecord{}, f.err
	}
	return models.IntelligenceRecord{
		IP:           ip,
		Country:      "Netherlands",
		Organization: "Example Hosting",
		IsHosting:    true,
	}, nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestEnricher(t *testing.T, g *fakeGeo) (*Enricher, *clock) {
	t.Helper()
	store := OpenFileStore(filepath.Join(t.TempDir(), "ip_cache.json"), DefaultPersistEvery)
	e := NewEnricher(g, nil, store, DefaultTTL)
	c := &clock{t: time.Date(2024, 1, 15, 3, 44, 0, 0, time.UTC)}
	e.now = c.now
	return e, c
}

func TestEnrichIP_CacheRoundTrip(t *testing.T) {
	g := &fakeGeo{}
	e, c := newTestEnricher(t, g)
	ctx := context.Background()

	first := e.EnrichIP(ctx, "185.107.56.21")
	assert.Equal(t, 1, g.calls)
	assert.Equal(t, models.ReputationSuspicious, first.Reputation)
	assert.Equal(t, models.ConfidenceHigh, first.Confidence)
	assert.Equal(t, "Netherlands", first.Country)

	c.t = c.t.Add(30 * time.Minute)
	second := e.EnrichIP(ctx, "185.107.56.21")
	assert.Equal(t, 1, g.calls, "fresh entry must not hit the network")
	assert.Equal(t, first, second)

	c.t = c.t.Add(31 * time.Minute)
	e.EnrichIP(ctx, "185.107.56.21")
	assert.Equal(t, 2, g.calls, "expired entry triggers a new lookup")
}

func TestEnrichIP_TTLBoundaryIsExclusive(t *testing.T) {
	g := &fakeGeo{}
	e, c := newTestEnricher(t, g)
	ctx := context.Background()

	e.EnrichIP(ctx, "8.8.8.8")
	c.t = c.t.Add(DefaultTTL)
	e.EnrichIP(ctx, "8.8.8.8")

	assert.Equal(t, 2, g.calls)
}

func TestEnrichIP_PrivateAddresses(t *testing.T) {
	g := &fakeGeo{}
	e, _ := newTestEnricher(t, g)

	for _, ip := range []string{"10.0.0.5", "192.168.1.5", "172.16.4.4", "127.0.0.1", "fd00::1", "0.0.0.0", "::"} {
		t.Run(ip, func(t *testing.T) {
			rec := e.EnrichIP(context.Background(), ip)
			assert.True(t, rec.IsInternal)
			assert.Equal(t, models.PrivateIPType, rec.Type)
			assert.Equal(t, models.ReputationNotApplicable, rec.Reputation)
		})
	}

	assert.Equal(t, 0, g.calls)
	assert.Equal(t, 0, e.store.(*FileStore).Len(), "private addresses never populate the cache")
}

func TestEnrichIP_InvalidInput(t *testing.T) {
	g := &fakeGeo{}
	e, _ := newTestEnricher(t, g)

	for _, ip := range []string{"", "   ", "999.1.1.1", "not-an-ip"} {
		rec := e.EnrichIP(context.Background(), ip)
		assert.Equal(t, "no address", rec.Error)
	}
	assert.Equal(t, 0, g.calls)
}

func TestEnrichIP_ErrorsAreNotCached(t *testing.T) {
	g := &fakeGeo{err: fmt.Errorf("%w: dial tcp: connection refused", geo.ErrLookupFailed)}
	e, _ := newTestEnricher(t, g)
	ctx := context.Background()

	rec := e.EnrichIP(ctx, "45.13.22.98")
	assert.True(t, rec.HasError())
	assert.True(t, rec.Fallback)
	assert.Equal(t, "45.13.22.98", rec.IP)
	assert.Empty(t, rec.Reputation, "failed lookups are returned unchanged")

	e.EnrichIP(ctx, "45.13.22.98")
	assert.Equal(t, 2, g.calls, "errors are retried on the next call")
}

func TestEnrichIP_ServiceFailure(t *testing.T) {
	g := &fakeGeo{err: &geo.ServiceError{Message: "invalid query"}}
	e, _ := newTestEnricher(t, g)

	rec := e.EnrichIP(context.Background(), "8.8.4.4")
	assert.Equal(t, "IP lookup failed: invalid query", rec.Error)
	assert.False(t, rec.Fallback)
}

func TestEnrichIP_PersistsEveryTenthInsert(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "ip_cache.json")
	g := &fakeGeo{}
	e := NewEnricher(g, nil, OpenFileStore(path, DefaultPersistEvery), DefaultTTL)
	ctx := context.Background()

	for i := 1; i <= 9; i++ {
		e.EnrichIP(ctx, fmt.Sprintf("8.8.8.%d", i))
	}
	assert.NoFileExists(t, path)

	e.EnrichIP(ctx, "8.8.8.10")
	require.FileExists(t, path)

	reloaded := OpenFileStore(path, DefaultPersistEvery)
	assert.Equal(t, 10, reloaded.Len())

	e.EnrichIP(ctx, "8.8.8.11")
	require.NoError(t, e.Close())
	assert.Equal(t, 11, OpenFileStore(path, DefaultPersistEvery).Len())
}

func TestEnrichIP_ReloadedCacheServesHits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ip_cache.json")
	g := &fakeGeo{}
	e := NewEnricher(g, nil, OpenFileStore(path, DefaultPersistEvery), DefaultTTL)
	e.EnrichIP(context.Background(), "176.10.99.200")
	require.NoError(t, e.Close())

	g2 := &fakeGeo{err: errors.New("should not be called")}
	e2 := NewEnricher(g2, nil, OpenFileStore(path, DefaultPersistEvery), DefaultTTL)
	rec := e2.EnrichIP(context.Background(), "176.10.99.200")

	assert.Equal(t, 0, g2.calls)
	assert.Equal(t, models.ConfidenceLow, rec.Confidence)
	assert.Equal(t, []string{"Suspicious connections"}, rec.ReportedActivities)
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, CacheKey("ip", "1.2.3.4"), CacheKey("ip", "1.2.3.4"))
	assert.NotEqual(t, CacheKey("ip", "1.2.3.4"), CacheKey("domain", "1.2.3.4"))
	assert.Len(t, CacheKey("ip", "1.2.3.4"), 64)
}
