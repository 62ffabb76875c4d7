package threat

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"blackwolf/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memStore struct {
	records map[string]*core.ThreatEnrichment
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]*core.ThreatEnrichment)}
}

func (s *memStore) GetEnrichment(_ context.Context, ip string) (*core.ThreatEnrichment, error) {
	e, ok := s.records[ip]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *memStore) UpsertEnrichment(_ context.Context, e *core.ThreatEnrichment) error {
	cp := *e
	s.records[e.IP] = &cp
	return nil
}

type fakeProvider struct {
	calls  int
	err    error
	record *core.ThreatEnrichment
}

func (p *fakeProvider) Lookup(_ context.Context, ip string) (*core.ThreatEnrichment, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	cp := *p.record
	cp.IP = ip
	return &cp, nil
}

func newTestEnricher(store Store, provider ReputationProvider) (*Enricher, time.Time) {
	e := NewEnricher(store, provider, zap.NewNop().Sugar())
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }
	return e, now
}

func TestEnricher_PrivateAndLoopbackAreLocal(t *testing.T) {
	store := newMemStore()
	provider := &fakeProvider{record: &core.ThreatEnrichment{AbuseScore: 50}}
	e, _ := newTestEnricher(store, provider)

	for _, ip := range []string{"127.0.0.1", "192.168.1.5", "10.0.0.8", "172.16.4.2"} {
		record, err := e.EnrichIP(context.Background(), ip)
		require.NoError(t, err)
		assert.Equal(t, CountryLocal, record.CountryCode, ip)
	}
	assert.Equal(t, 0, provider.calls)
}

func TestEnricher_CacheHitSkipsProvider(t *testing.T) {
	store := newMemStore()
	provider := &fakeProvider{record: &core.ThreatEnrichment{AbuseScore: 80, CountryCode: "RU"}}
	e, _ := newTestEnricher(store, provider)

	first, err := e.EnrichIP(context.Background(), "198.51.100.7")
	require.NoError(t, err)
	assert.Equal(t, 80, first.AbuseScore)
	assert.Equal(t, 1, provider.calls)

	second, err := e.EnrichIP(context.Background(), "198.51.100.7")
	require.NoError(t, err)
	assert.Equal(t, 80, second.AbuseScore)
	assert.Equal(t, 1, provider.calls)
}

func TestEnricher_StaleCacheTriggersSingleRefresh(t *testing.T) {
	store := newMemStore()
	store.records["198.51.100.7"] = &core.ThreatEnrichment{
		IP: "198.51.100.7", AbuseScore: 10,
		EnrichedAt: time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC),
	}
	provider := &fakeProvider{record: &core.ThreatEnrichment{AbuseScore: 90}}
	e, now := newTestEnricher(store, provider)

	record, err := e.EnrichIP(context.Background(), "198.51.100.7")
	require.NoError(t, err)
	assert.Equal(t, 90, record.AbuseScore)
	assert.Equal(t, 1, provider.calls)
	assert.Equal(t, now, store.records["198.51.100.7"].EnrichedAt)
}

func TestEnricher_ProviderFailureCachesErrorSentinel(t *testing.T) {
	store := newMemStore()
	provider := &fakeProvider{err: errors.New("rate limited")}
	e, _ := newTestEnricher(store, provider)

	record, err := e.EnrichIP(context.Background(), "203.0.113.9")
	require.NoError(t, err)
	assert.Equal(t, CountryError, record.CountryCode)
	assert.Equal(t, 1, provider.calls)

	// The cached sentinel absorbs repeat lookups inside the TTL.
	_, err = e.EnrichIP(context.Background(), "203.0.113.9")
	require.NoError(t, err)
	assert.Equal(t, 1, provider.calls)
}

func TestEnricher_NoProviderFallsBackToUnknownOrStale(t *testing.T) {
	store := newMemStore()
	e, _ := newTestEnricher(store, nil)

	record, err := e.EnrichIP(context.Background(), "203.0.113.9")
	require.NoError(t, err)
	assert.Equal(t, CountryUnknown, record.CountryCode)

	// A stale record beats UNKNOWN.
	store.records["203.0.113.10"] = &core.ThreatEnrichment{
		IP: "203.0.113.10", AbuseScore: 44, CountryCode: "CN",
		EnrichedAt: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
	}
	record, err = e.EnrichIP(context.Background(), "203.0.113.10")
	require.NoError(t, err)
	assert.Equal(t, "CN", record.CountryCode)
	assert.Equal(t, 44, record.AbuseScore)
}

func TestEnricher_InvalidIPRejected(t *testing.T) {
	e, _ := newTestEnricher(newMemStore(), nil)
	_, err := e.EnrichIP(context.Background(), "not-an-ip")
	assert.True(t, errors.Is(err, core.ErrInvalidRequest))
}

func TestAbuseIPDBProvider_Lookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("Key"))
		assert.Equal(t, "203.0.113.9", r.URL.Query().Get("ipAddress"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"ipAddress":"203.0.113.9","abuseConfidenceScore":75,
			"countryCode":"NL","isp":"Example Hosting","domain":"example.net","isTor":true,"totalReports":42}}`))
	}))
	defer srv.Close()

	p := NewAbuseIPDBProvider("test-key", srv.URL, srv.Client(), zap.NewNop().Sugar())
	record, err := p.Lookup(context.Background(), "203.0.113.9")
	require.NoError(t, err)
	assert.Equal(t, 75, record.AbuseScore)
	assert.Equal(t, "NL", record.CountryCode)
	assert.True(t, record.IsTor)
	assert.Equal(t, 42, record.TotalReports)
}

func TestAbuseIPDBProvider_Non200IsExternalDependencyError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewAbuseIPDBProvider("test-key", srv.URL, srv.Client(), zap.NewNop().Sugar())
	_, err := p.Lookup(context.Background(), "203.0.113.9")
	assert.True(t, errors.Is(err, core.ErrExternalDependency))
}
