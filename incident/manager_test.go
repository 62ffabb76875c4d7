package incident

import (
	"context"
	"errors"
	"testing"
	"time"

	"blackwolf/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memStore is an in-memory Store.
type memStore struct {
	incidents map[string]*core.Incident
	timeline  map[string][]core.TimelineEntry
}

func newMemStore() *memStore {
	return &memStore{
		incidents: make(map[string]*core.Incident),
		timeline:  make(map[string][]core.TimelineEntry),
	}
}

func (s *memStore) CreateIncident(_ context.Context, inc *core.Incident, entry *core.TimelineEntry) error {
	cp := *inc
	s.incidents[inc.ID] = &cp
	s.timeline[inc.ID] = append(s.timeline[inc.ID], *entry)
	return nil
}

func (s *memStore) UpdateIncident(_ context.Context, inc *core.Incident, entry *core.TimelineEntry) error {
	if _, ok := s.incidents[inc.ID]; !ok {
		return errors.New("not found")
	}
	cp := *inc
	s.incidents[inc.ID] = &cp
	if entry != nil {
		s.timeline[inc.ID] = append(s.timeline[inc.ID], *entry)
	}
	return nil
}

func (s *memStore) GetIncident(_ context.Context, id string) (*core.Incident, error) {
	inc, ok := s.incidents[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *inc
	return &cp, nil
}

func (s *memStore) ListIncidents(_ context.Context, tenantID string) ([]core.Incident, error) {
	out := make([]core.Incident, 0)
	for _, inc := range s.incidents {
		if inc.TenantID == tenantID {
			out = append(out, *inc)
		}
	}
	return out, nil
}

func (s *memStore) AppendTimeline(_ context.Context, entry *core.TimelineEntry) error {
	s.timeline[entry.IncidentID] = append(s.timeline[entry.IncidentID], *entry)
	return nil
}

func (s *memStore) GetTimeline(_ context.Context, incidentID string) ([]core.TimelineEntry, error) {
	return s.timeline[incidentID], nil
}

func newTestManager(t *testing.T) (*Manager, *memStore, time.Time) {
	t.Helper()
	store := newMemStore()
	m := NewManager(store, zap.NewNop().Sugar())
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	return m, store, now
}

func TestManager_CreateIncident_SLAFromSeverity(t *testing.T) {
	tests := []struct {
		severity core.IncidentSeverity
		sla      time.Duration
	}{
		{core.SeverityCritical, 2 * time.Hour},
		{core.SeverityHigh, 4 * time.Hour},
		{core.SeverityMedium, 8 * time.Hour},
		{core.SeverityLow, 24 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(string(tt.severity), func(t *testing.T) {
			m, store, now := newTestManager(t)
			inc, err := m.CreateIncident(context.Background(), "tenant-a", CreateRequest{
				Title: "suspicious login burst", Severity: tt.severity, CreatedBy: "analyst",
			})
			require.NoError(t, err)
			assert.Equal(t, now.Add(tt.sla), inc.SLADeadline)
			assert.Equal(t, core.IncidentStatusOpen, inc.Status)

			timeline := store.timeline[inc.ID]
			require.Len(t, timeline, 1)
			assert.Equal(t, "created", timeline[0].Action)
			assert.Equal(t, "analyst", timeline[0].PerformedBy)
		})
	}
}

func TestManager_CreateIncident_RejectsUnknownSeverity(t *testing.T) {
	m, _, _ := newTestManager(t)
	_, err := m.CreateIncident(context.Background(), "tenant-a", CreateRequest{
		Title: "x", Severity: core.IncidentSeverity("catastrophic"),
	})
	assert.True(t, errors.Is(err, core.ErrInvalidRequest))
}

func TestManager_CreateFromThreat(t *testing.T) {
	m, store, now := newTestManager(t)
	rule := &core.CorrelationRule{ID: "r1", Name: "brute force burst", CreatesIncident: true, IncidentSeverity: core.SeverityHigh}
	event := &core.ThreatEvent{ID: "evt-1", TenantID: "tenant-a", ThreatType: "brute_force", Severity: 6, SrcIP: "1.2.3.4"}

	inc, err := m.CreateFromThreat(context.Background(), rule, event)
	require.NoError(t, err)
	assert.Equal(t, "Auto-generated: brute force burst", inc.Title)
	assert.Equal(t, core.SeverityHigh, inc.Severity)
	assert.Equal(t, "evt-1", inc.SourceThreatID)
	assert.Equal(t, now.Add(4*time.Hour), inc.SLADeadline)
	assert.Equal(t, "system", store.timeline[inc.ID][0].PerformedBy)
}

func TestManager_CreateFromThreat_SeverityBandFallback(t *testing.T) {
	m, _, _ := newTestManager(t)
	rule := &core.CorrelationRule{ID: "r1", Name: "no severity set", CreatesIncident: true}

	tests := []struct {
		eventSeverity int
		want          core.IncidentSeverity
	}{
		{10, core.SeverityCritical},
		{9, core.SeverityCritical},
		{7, core.SeverityHigh},
		{4, core.SeverityMedium},
		{3, core.SeverityLow},
	}
	for _, tt := range tests {
		inc, err := m.CreateFromThreat(context.Background(), rule,
			&core.ThreatEvent{ID: "e", TenantID: "t", Severity: tt.eventSeverity})
		require.NoError(t, err)
		assert.Equal(t, tt.want, inc.Severity, "event severity %d", tt.eventSeverity)
	}
}

func TestManager_UpdateIncident_TenantMismatchDenied(t *testing.T) {
	m, _, _ := newTestManager(t)
	inc, err := m.CreateIncident(context.Background(), "tenant-a", CreateRequest{Title: "x", Severity: core.SeverityLow})
	require.NoError(t, err)

	title := "hijack"
	_, err = m.UpdateIncident(context.Background(), inc.ID, "tenant-b", UpdateRequest{Title: &title})
	assert.True(t, errors.Is(err, core.ErrAccessDenied))
}

func TestManager_UpdateIncident_StatusTransitions(t *testing.T) {
	m, store, now := newTestManager(t)
	inc, err := m.CreateIncident(context.Background(), "tenant-a", CreateRequest{Title: "x", Severity: core.SeverityHigh})
	require.NoError(t, err)

	// Non-status edits leave the timeline alone.
	desc := "updated description"
	_, err = m.UpdateIncident(context.Background(), inc.ID, "tenant-a", UpdateRequest{Description: &desc})
	require.NoError(t, err)
	assert.Len(t, store.timeline[inc.ID], 1)

	// Resolution stamps ResolvedAt and appends an audit entry.
	resolved := core.IncidentStatusResolved
	got, err := m.UpdateIncident(context.Background(), inc.ID, "tenant-a", UpdateRequest{Status: &resolved, UpdatedBy: "analyst"})
	require.NoError(t, err)
	require.NotNil(t, got.ResolvedAt)
	assert.Equal(t, now, *got.ResolvedAt)
	require.Len(t, store.timeline[inc.ID], 2)
	assert.Equal(t, "status_changed", store.timeline[inc.ID][1].Action)

	// Reopening clears ResolvedAt.
	reopened := core.IncidentStatusInvestigating
	got, err = m.UpdateIncident(context.Background(), inc.ID, "tenant-a", UpdateRequest{Status: &reopened})
	require.NoError(t, err)
	assert.Nil(t, got.ResolvedAt)

	// Closing is final.
	closed := core.IncidentStatusClosed
	_, err = m.UpdateIncident(context.Background(), inc.ID, "tenant-a", UpdateRequest{Status: &closed})
	require.NoError(t, err)
	_, err = m.UpdateIncident(context.Background(), inc.ID, "tenant-a", UpdateRequest{Description: &desc})
	assert.True(t, errors.Is(err, core.ErrUnprocessableState))
}

func TestManager_UpdateIncident_SameStatusNoTimelineEntry(t *testing.T) {
	m, store, _ := newTestManager(t)
	inc, err := m.CreateIncident(context.Background(), "tenant-a", CreateRequest{Title: "x", Severity: core.SeverityLow})
	require.NoError(t, err)

	open := core.IncidentStatusOpen
	_, err = m.UpdateIncident(context.Background(), inc.ID, "tenant-a", UpdateRequest{Status: &open})
	require.NoError(t, err)
	assert.Len(t, store.timeline[inc.ID], 1)
}

func TestManager_GetDetail(t *testing.T) {
	m, _, _ := newTestManager(t)
	inc, err := m.CreateIncident(context.Background(), "tenant-a", CreateRequest{Title: "x", Severity: core.SeverityLow})
	require.NoError(t, err)

	_, err = m.AddTimeline(context.Background(), inc.ID, "tenant-a", "note", "checked firewall logs", "analyst")
	require.NoError(t, err)

	detail, err := m.GetDetail(context.Background(), inc.ID, "tenant-a")
	require.NoError(t, err)
	assert.Len(t, detail.Timeline, 2)

	_, err = m.GetDetail(context.Background(), inc.ID, "tenant-b")
	assert.True(t, errors.Is(err, core.ErrAccessDenied))
}
