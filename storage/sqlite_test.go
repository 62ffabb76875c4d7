package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"blackwolf/core"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestDB(t *testing.T) *SQLite {
	t.Helper()
	logger := zap.NewNop().Sugar()
	db, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedTenant(t *testing.T, db *SQLite) *core.Tenant {
	t.Helper()
	tenant := &core.Tenant{
		ID:        uuid.New().String(),
		Name:      "acme",
		APIKey:    uuid.New().String(),
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, NewTenantStorage(db, zap.NewNop().Sugar()).CreateTenant(context.Background(), tenant))
	return tenant
}

func makeEvent(tenantID, srcIP, threatType string, severity int, ts time.Time) *core.ThreatEvent {
	return &core.ThreatEvent{
		ID:         uuid.New().String(),
		TenantID:   tenantID,
		SensorID:   "sensor-1",
		ThreatType: threatType,
		Severity:   severity,
		SrcIP:      srcIP,
		DstIP:      "10.0.0.1",
		DstPort:    443,
		Timestamp:  ts,
		Status:     core.ThreatStatusDetected,
	}
}

func TestEventStorage_GetEvent_TenantIsolation(t *testing.T) {
	db := newTestDB(t)
	logger := zap.NewNop().Sugar()
	events := NewEventStorage(db, logger)
	ctx := context.Background()

	e := makeEvent("tenant-a", "1.2.3.4", "port_scan", 5, time.Now())
	require.NoError(t, events.InsertEvent(ctx, e))

	got, err := events.GetEvent(ctx, e.ID, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, core.ThreatStatusDetected, got.Status)

	// Another tenant referencing an existing id gets denied, not not-found.
	_, err = events.GetEvent(ctx, e.ID, "tenant-b")
	assert.True(t, errors.Is(err, core.ErrAccessDenied))

	_, err = events.GetEvent(ctx, "missing", "tenant-a")
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestEventStorage_UpdateEventStatus(t *testing.T) {
	db := newTestDB(t)
	events := NewEventStorage(db, zap.NewNop().Sugar())
	ctx := context.Background()

	e := makeEvent("tenant-a", "1.2.3.4", "port_scan", 5, time.Now())
	require.NoError(t, events.InsertEvent(ctx, e))

	err := events.UpdateEventStatus(ctx, e.ID, "tenant-a", core.ThreatStatus("bogus"))
	assert.True(t, errors.Is(err, core.ErrInvalidRequest))

	err = events.UpdateEventStatus(ctx, e.ID, "tenant-b", core.ThreatStatusResolved)
	assert.True(t, errors.Is(err, core.ErrAccessDenied))

	require.NoError(t, events.UpdateEventStatus(ctx, e.ID, "tenant-a", core.ThreatStatusResolved))
	got, err := events.GetEvent(ctx, e.ID, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, core.ThreatStatusResolved, got.Status)
}

func TestEventStorage_WindowCounts(t *testing.T) {
	db := newTestDB(t)
	events := NewEventStorage(db, zap.NewNop().Sugar())
	ctx := context.Background()
	now := time.Now().UTC()

	// Three port scans from one IP, one from another, one old, one other tenant.
	for i := 0; i < 3; i++ {
		require.NoError(t, events.InsertEvent(ctx, makeEvent("tenant-a", "1.2.3.4", "port_scan", 5, now.Add(-time.Duration(i)*time.Minute))))
	}
	require.NoError(t, events.InsertEvent(ctx, makeEvent("tenant-a", "5.6.7.8", "port_scan", 5, now)))
	require.NoError(t, events.InsertEvent(ctx, makeEvent("tenant-a", "1.2.3.4", "port_scan", 5, now.Add(-2*time.Hour))))
	require.NoError(t, events.InsertEvent(ctx, makeEvent("tenant-b", "1.2.3.4", "port_scan", 5, now)))
	require.NoError(t, events.InsertEvent(ctx, makeEvent("tenant-a", "1.2.3.4", "brute_force", 7, now)))

	since := now.Add(-time.Hour)

	n, err := events.CountBySrcIPAndType(ctx, "tenant-a", "1.2.3.4", "port_scan", since)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = events.CountByType(ctx, "tenant-a", "port_scan", since)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = events.CountDistinctTypesBySrcIP(ctx, "tenant-a", "1.2.3.4", since)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Other tenant's events never leak into counts.
	n, err = events.CountByType(ctx, "tenant-b", "port_scan", since)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEventStorage_ListEvents_Filters(t *testing.T) {
	db := newTestDB(t)
	events := NewEventStorage(db, zap.NewNop().Sugar())
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, events.InsertEvent(ctx, makeEvent("tenant-a", "1.2.3.4", "port_scan", 3, now)))
	require.NoError(t, events.InsertEvent(ctx, makeEvent("tenant-a", "9.9.9.9", "malware", 9, now)))
	require.NoError(t, events.InsertEvent(ctx, makeEvent("tenant-b", "1.2.3.4", "port_scan", 3, now)))

	got, err := events.ListEvents(ctx, "tenant-a", EventFilter{MinSeverity: 8})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "malware", got[0].ThreatType)

	got, err = events.ListEvents(ctx, "tenant-a", EventFilter{SearchIP: "1.2."})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "1.2.3.4", got[0].SrcIP)

	// Unknown sort column falls back to timestamp rather than erroring.
	got, err = events.ListEvents(ctx, "tenant-a", EventFilter{SortBy: "evil; DROP TABLE"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestTenantStorage_GetTenantByAPIKey(t *testing.T) {
	db := newTestDB(t)
	tenants := NewTenantStorage(db, zap.NewNop().Sugar())
	ctx := context.Background()

	tenant := seedTenant(t, db)

	got, err := tenants.GetTenantByAPIKey(ctx, tenant.APIKey)
	require.NoError(t, err)
	assert.Equal(t, tenant.ID, got.ID)

	_, err = tenants.GetTenantByAPIKey(ctx, "wrong-key")
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestTenantStorage_UpsertSensor_AccumulatesCounters(t *testing.T) {
	db := newTestDB(t)
	tenants := NewTenantStorage(db, zap.NewNop().Sugar())
	ctx := context.Background()
	tenant := seedTenant(t, db)

	now := time.Now().UTC()
	require.NoError(t, tenants.UpsertSensor(ctx, "sensor-1", tenant.ID, 100, 5, now))
	require.NoError(t, tenants.UpsertSensor(ctx, "sensor-1", tenant.ID, 50, 2, now.Add(time.Minute)))

	sensors, err := tenants.ListSensors(ctx, tenant.ID)
	require.NoError(t, err)
	require.Len(t, sensors, 1)
	assert.Equal(t, int64(150), sensors[0].PacketsProcessed)
	assert.Equal(t, int64(7), sensors[0].ThreatsDetected)
	assert.Equal(t, "online", sensors[0].Status)
}

func TestRuleStorage_CRUD(t *testing.T) {
	db := newTestDB(t)
	rules := NewRuleStorage(db, zap.NewNop().Sugar())
	ctx := context.Background()

	r := &core.CorrelationRule{
		ID:                uuid.New().String(),
		Name:              "brute force burst",
		RuleType:          core.RuleSameIPSameType,
		ThresholdCount:    3,
		TimeWindowMinutes: 10,
		ThreatType:        "brute_force",
		CreatesIncident:   true,
		IncidentSeverity:  core.SeverityHigh,
		Active:            true,
		CreatedAt:         time.Now().UTC(),
	}
	require.NoError(t, rules.CreateRule(ctx, r))

	err := rules.CreateRule(ctx, r)
	assert.ErrorIs(t, err, ErrDuplicateRule)

	got, err := rules.GetRule(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, core.RuleSameIPSameType, got.RuleType)
	assert.True(t, got.CreatesIncident)

	r.Active = false
	require.NoError(t, rules.UpdateRule(ctx, r.ID, r))

	active, err := rules.GetActiveRules(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	require.NoError(t, rules.DeleteRule(ctx, r.ID))
	assert.ErrorIs(t, rules.DeleteRule(ctx, r.ID), ErrRuleNotFound)
}

func TestIncidentStorage_CreateWithTimeline(t *testing.T) {
	db := newTestDB(t)
	incidents := NewIncidentStorage(db, zap.NewNop().Sugar())
	ctx := context.Background()
	now := time.Now().UTC()

	inc := &core.Incident{
		ID:          uuid.New().String(),
		TenantID:    "tenant-a",
		Title:       "Auto-generated: brute force burst",
		Severity:    core.SeverityHigh,
		Status:      core.IncidentStatusOpen,
		SLADeadline: now.Add(4 * time.Hour),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	entry := &core.TimelineEntry{
		ID:          uuid.New().String(),
		IncidentID:  inc.ID,
		Action:      "created",
		PerformedBy: "system",
		CreatedAt:   now,
	}
	require.NoError(t, incidents.CreateIncident(ctx, inc, entry))

	got, err := incidents.GetIncident(ctx, inc.ID)
	require.NoError(t, err)
	assert.Equal(t, core.IncidentStatusOpen, got.Status)
	assert.Nil(t, got.ResolvedAt)

	timeline, err := incidents.GetTimeline(ctx, inc.ID)
	require.NoError(t, err)
	require.Len(t, timeline, 1)
	assert.Equal(t, "created", timeline[0].Action)

	// Resolution persists the resolved_at stamp.
	resolved := now.Add(time.Hour)
	got.Status = core.IncidentStatusResolved
	got.UpdatedAt = resolved
	got.ResolvedAt = &resolved
	require.NoError(t, incidents.UpdateIncident(ctx, got, &core.TimelineEntry{
		ID:          uuid.New().String(),
		IncidentID:  inc.ID,
		Action:      "status_changed",
		PerformedBy: "analyst",
		CreatedAt:   resolved,
	}))

	got, err = incidents.GetIncident(ctx, inc.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ResolvedAt)
	assert.WithinDuration(t, resolved, *got.ResolvedAt, time.Second)
}

func TestAlertStorage_ActiveConfigsAndHistory(t *testing.T) {
	db := newTestDB(t)
	alerts := NewAlertStorage(db, zap.NewNop().Sugar())
	ctx := context.Background()
	now := time.Now().UTC()

	active := &core.AlertConfig{
		ID: uuid.New().String(), TenantID: "tenant-a", AlertType: core.AlertTypeSlack,
		Destination: "https://hooks.example.com/x", MinSeverity: 7, Active: true, CreatedAt: now,
	}
	inactive := &core.AlertConfig{
		ID: uuid.New().String(), TenantID: "tenant-a", AlertType: core.AlertTypeEmail,
		Destination: "soc@example.com", MinSeverity: 5, Active: false, CreatedAt: now,
	}
	require.NoError(t, alerts.CreateConfig(ctx, active))
	require.NoError(t, alerts.CreateConfig(ctx, inactive))

	got, err := alerts.ListActiveConfigs(ctx, "tenant-a")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, core.AlertTypeSlack, got[0].AlertType)

	_, err = alerts.GetConfig(ctx, active.ID, "tenant-b")
	assert.True(t, errors.Is(err, core.ErrAccessDenied))

	require.NoError(t, alerts.InsertRecord(ctx, &core.AlertRecord{
		ID: uuid.New().String(), TenantID: "tenant-a", ConfigID: active.ID,
		AlertType: core.AlertTypeSlack, Destination: active.Destination,
		Subject: "Security Alert: malware", Status: core.AlertOutcomeFailed, SentAt: now,
	}))

	history, err := alerts.ListHistory(ctx, "tenant-a", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, core.AlertOutcomeFailed, history[0].Status)
}

func TestBlocklistStorage_BlockIP_Idempotent(t *testing.T) {
	db := newTestDB(t)
	blocks := NewBlocklistStorage(db, zap.NewNop().Sugar())
	ctx := context.Background()
	now := time.Now().UTC()

	b := &core.BlockedIP{
		IP: "1.2.3.4", TenantID: "tenant-a", Reason: "Auto-block: malware",
		BlockedAt: now, ExpiresAt: now.Add(24 * time.Hour),
	}
	inserted, err := blocks.BlockIP(ctx, b)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = blocks.BlockIP(ctx, b)
	require.NoError(t, err)
	assert.False(t, inserted)

	// Same IP for another tenant is an independent block.
	other := *b
	other.TenantID = "tenant-b"
	inserted, err = blocks.BlockIP(ctx, &other)
	require.NoError(t, err)
	assert.True(t, inserted)

	list, err := blocks.ListBlockedIPs(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestBlocklistStorage_BlockIP_ConcurrentDuplicates(t *testing.T) {
	db := newTestDB(t)
	blocks := NewBlocklistStorage(db, zap.NewNop().Sugar())
	ctx := context.Background()
	now := time.Now().UTC()

	const workers = 8
	results := make([]bool, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = blocks.BlockIP(ctx, &core.BlockedIP{
				IP: "5.5.5.5", TenantID: "tenant-a", Reason: "Auto-block: ddos",
				BlockedAt: now, ExpiresAt: now.Add(24 * time.Hour),
			})
		}(i)
	}
	wg.Wait()

	insertions := 0
	for i := range results {
		require.NoError(t, errs[i])
		if results[i] {
			insertions++
		}
	}
	assert.Equal(t, 1, insertions)

	list, err := blocks.ListBlockedIPs(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestBlocklistStorage_PurgeExpired(t *testing.T) {
	db := newTestDB(t)
	blocks := NewBlocklistStorage(db, zap.NewNop().Sugar())
	ctx := context.Background()
	now := time.Now().UTC()

	expired := &core.BlockedIP{IP: "1.1.1.1", TenantID: "t", BlockedAt: now.Add(-48 * time.Hour), ExpiresAt: now.Add(-24 * time.Hour)}
	live := &core.BlockedIP{IP: "2.2.2.2", TenantID: "t", BlockedAt: now, ExpiresAt: now.Add(24 * time.Hour)}
	_, err := blocks.BlockIP(ctx, expired)
	require.NoError(t, err)
	_, err = blocks.BlockIP(ctx, live)
	require.NoError(t, err)

	// Until the sweep runs the expired row still appears.
	list, err := blocks.ListBlockedIPs(ctx, "t")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	n, err := blocks.PurgeExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	list, err = blocks.ListBlockedIPs(ctx, "t")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "2.2.2.2", list[0].IP)
}

func TestEnrichmentStorage_UpsertAndPurge(t *testing.T) {
	db := newTestDB(t)
	enrich := NewEnrichmentStorage(db, zap.NewNop().Sugar())
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := enrich.GetEnrichment(ctx, "8.8.8.8")
	assert.True(t, errors.Is(err, core.ErrNotFound))

	e := &core.ThreatEnrichment{
		IP: "8.8.8.8", AbuseScore: 12, CountryCode: "US", ISP: "Example ISP",
		TotalReports: 3, EnrichedAt: now.Add(-48 * time.Hour),
	}
	require.NoError(t, enrich.UpsertEnrichment(ctx, e))

	got, err := enrich.GetEnrichment(ctx, "8.8.8.8")
	require.NoError(t, err)
	assert.Equal(t, 12, got.AbuseScore)
	assert.False(t, got.Fresh(now, 24*time.Hour))

	// Refresh replaces the row in place.
	e.AbuseScore = 80
	e.EnrichedAt = now
	require.NoError(t, enrich.UpsertEnrichment(ctx, e))
	got, err = enrich.GetEnrichment(ctx, "8.8.8.8")
	require.NoError(t, err)
	assert.Equal(t, 80, got.AbuseScore)
	assert.True(t, got.Fresh(now, 24*time.Hour))

	n, err := enrich.PurgeStale(ctx, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}
