package threat

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"blackwolf/core"
	"blackwolf/metrics"

	"go.uber.org/zap"
)

// Sentinel country codes for records that never came from the provider.
const (
	CountryLocal   = "LOCAL"
	CountryError   = "ERROR"
	CountryUnknown = "UNKNOWN"
)

// Store is the enrichment cache persistence surface.
type Store interface {
	GetEnrichment(ctx context.Context, ip string) (*core.ThreatEnrichment, error)
	UpsertEnrichment(ctx context.Context, e *core.ThreatEnrichment) error
}

// Enricher resolves IP reputation through a cache-aside store. Private and
// loopback addresses never reach the provider; provider failures are cached
// as ERROR records so a flapping intel source is not hammered once per event.
type Enricher struct {
	store    Store
	provider ReputationProvider
	ttl      time.Duration
	logger   *zap.SugaredLogger
	now      func() time.Time
}

// NewEnricher creates an enricher. provider may be nil when threat intel is
// disabled; lookups then degrade to UNKNOWN records.
func NewEnricher(store Store, provider ReputationProvider, logger *zap.SugaredLogger) *Enricher {
	return &Enricher{
		store:    store,
		provider: provider,
		ttl:      core.EnrichmentCacheTTL,
		logger:   logger,
		now:      time.Now,
	}
}

// EnrichIP returns reputation data for one IP, consulting the cache first.
// The returned record is always usable; provider failures surface as an
// ERROR record rather than an error.
func (e *Enricher) EnrichIP(ctx context.Context, ip string) (*core.ThreatEnrichment, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid IP address %q", core.ErrInvalidRequest, ip)
	}
	now := e.now().UTC()

	if isLocalAddr(addr) {
		record := &core.ThreatEnrichment{
			IP:          ip,
			CountryCode: CountryLocal,
			ISP:         "Private Network",
			EnrichedAt:  now,
		}
		metrics.EnrichmentLookups.WithLabelValues("local").Inc()
		if err := e.store.UpsertEnrichment(ctx, record); err != nil {
			e.logger.Warnw("Failed to cache local enrichment", "ip", ip, "error", err)
		}
		return record, nil
	}

	cached, err := e.store.GetEnrichment(ctx, ip)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return nil, err
	}
	if cached != nil && cached.Fresh(now, e.ttl) {
		metrics.EnrichmentLookups.WithLabelValues("cache_hit").Inc()
		return cached, nil
	}

	if e.provider == nil {
		metrics.EnrichmentLookups.WithLabelValues("unknown").Inc()
		// Keep stale data in preference to an empty record; it is still more
		// useful than UNKNOWN.
		if cached != nil {
			return cached, nil
		}
		return &core.ThreatEnrichment{IP: ip, CountryCode: CountryUnknown, EnrichedAt: now}, nil
	}

	record, err := e.provider.Lookup(ctx, ip)
	if err != nil {
		e.logger.Warnw("Reputation lookup failed", "ip", ip, "error", err)
		metrics.EnrichmentLookups.WithLabelValues("error").Inc()
		record = &core.ThreatEnrichment{IP: ip, CountryCode: CountryError, EnrichedAt: now}
		if err := e.store.UpsertEnrichment(ctx, record); err != nil {
			e.logger.Warnw("Failed to cache error enrichment", "ip", ip, "error", err)
		}
		return record, nil
	}

	record.EnrichedAt = now
	metrics.EnrichmentLookups.WithLabelValues("provider").Inc()
	if err := e.store.UpsertEnrichment(ctx, record); err != nil {
		e.logger.Warnw("Failed to cache enrichment", "ip", ip, "error", err)
	}
	return record, nil
}

// isLocalAddr reports whether the address can never have public reputation.
func isLocalAddr(addr netip.Addr) bool {
	return addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() || addr.IsUnspecified()
}
