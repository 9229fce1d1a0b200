// Package enrichment implements the TTL cache in front of the geolocation
// client and the reputation classifier.
package enrichment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/netip"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hervehildenbrand/threatsage/pkg/geo"
	"github.com/hervehildenbrand/threatsage/pkg/metrics"
	"github.com/hervehildenbrand/threatsage/pkg/models"
	"github.com/hervehildenbrand/threatsage/pkg/reputation"
)

// DefaultTTL is how long a cached record stays valid.
const DefaultTTL = time.Hour

const (
	noAddressError = "no address"
	privateNote    = "Internal network address - no external intelligence available"
)

// Enricher resolves an IP to an intelligence record, serving repeat lookups
// from its Store while they are fresh.
type Enricher struct {
	geo        geo.Lookuper
	classifier *reputation.Classifier
	store      Store
	ttl        time.Duration
	now        func() time.Time
}

// NewEnricher creates an enricher. A nil classifier uses the default table and
// a zero ttl uses DefaultTTL.
func NewEnricher(lookup geo.Lookuper, classifier *reputation.Classifier, store Store, ttl time.Duration) *Enricher {
	if classifier == nil {
		classifier = reputation.NewClassifier(nil)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Enricher{
		geo:        lookup,
		classifier: classifier,
		store:      store,
		ttl:        ttl,
		now:        time.Now,
	}
}

// CacheKey hashes the indicator kind and value into an opaque key.
func CacheKey(kind, value string) string {
	sum := sha256.Sum256([]byte(kind + ":" + value))
	return hex.EncodeToString(sum[:])
}

// IsPrivate reports whether addr is private, loopback, link-local or
// unspecified (0.0.0.0, ::).
func IsPrivate(addr netip.Addr) bool {
	return addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() || addr.IsUnspecified()
}

// PrivateRecord is returned for internal addresses without any lookup.
func PrivateRecord(ip string) models.IntelligenceRecord {
	return models.IntelligenceRecord{
		IP:         ip,
		Type:       models.PrivateIPType,
		IsInternal: true,
		Reputation: models.ReputationNotApplicable,
		Note:       privateNote,
	}
}

// EnrichIP returns intelligence for ip. It never returns an error: failures
// are reported through the record's Error field. Failed lookups are not
// cached so the next call retries.
func (e *Enricher) EnrichIP(ctx context.Context, ip string) models.IntelligenceRecord {
	ip = strings.TrimSpace(ip)
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		metrics.EnrichRequests.WithLabelValues(metrics.ResultInvalid).Inc()
		return models.IntelligenceRecord{Error: noAddressError}
	}

	if IsPrivate(addr) {
		metrics.EnrichRequests.WithLabelValues(metrics.ResultPrivate).Inc()
		return PrivateRecord(ip)
	}

	key := CacheKey("ip", ip)
	if entry, ok := e.store.Get(ctx, key); ok && entry.Fresh(e.now(), e.ttl) {
		metrics.EnrichRequests.WithLabelValues(metrics.ResultHit).Inc()
		log.Debug().Str("component", "enrichment").Str("ip", ip).Msg("Cache hit")
		return entry.Record
	}

	start := time.Now()
	geoRecord, err := e.geo.Lookup(ctx, ip)
	metrics.GeoLookupDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.EnrichRequests.WithLabelValues(metrics.ResultError).Inc()
		log.Warn().Err(err).Str("component", "enrichment").Str("ip", ip).Msg("Geolocation lookup failed")
		return geo.FailureRecord(ip, err)
	}
	metrics.EnrichRequests.WithLabelValues(metrics.ResultMiss).Inc()

	record := models.Merge(geoRecord, e.classifier.Classify(ip))

	if err := e.store.Put(ctx, key, NewEntry(record, e.now())); err != nil {
		log.Warn().Err(err).Str("component", "enrichment").Str("ip", ip).Msg("Failed to persist cache")
	}

	return record
}

// Close flushes the store.
func (e *Enricher) Close() error {
	return e.store.Flush()
}
