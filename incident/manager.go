// Package incident manages the incident lifecycle: creation with SLA
// deadlines, status transitions with audit timeline entries, and escalation
// from correlation matches.
package incident

import (
	"context"
	"fmt"
	"time"

	"blackwolf/core"
	"blackwolf/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store is the persistence surface the manager needs.
type Store interface {
	CreateIncident(ctx context.Context, inc *core.Incident, entry *core.TimelineEntry) error
	UpdateIncident(ctx context.Context, inc *core.Incident, entry *core.TimelineEntry) error
	GetIncident(ctx context.Context, id string) (*core.Incident, error)
	ListIncidents(ctx context.Context, tenantID string) ([]core.Incident, error)
	AppendTimeline(ctx context.Context, entry *core.TimelineEntry) error
	GetTimeline(ctx context.Context, incidentID string) ([]core.TimelineEntry, error)
}

// CreateRequest carries the fields of a manually opened incident.
type CreateRequest struct {
	Title          string                `json:"title" validate:"required"`
	Description    string                `json:"description"`
	Severity       core.IncidentSeverity `json:"severity" validate:"required"`
	AssignedTo     string                `json:"assigned_to"`
	SourceThreatID string                `json:"source_threat_id"`
	CreatedBy      string                `json:"created_by"`
}

// UpdateRequest is a partial patch; nil fields are left unchanged.
type UpdateRequest struct {
	Title       *string                `json:"title"`
	Description *string                `json:"description"`
	Severity    *core.IncidentSeverity `json:"severity"`
	Status      *core.IncidentStatus   `json:"status"`
	AssignedTo  *string                `json:"assigned_to"`
	UpdatedBy   string                 `json:"updated_by"`
}

// Detail is an incident with its full audit timeline.
type Detail struct {
	Incident core.Incident       `json:"incident"`
	Timeline []core.TimelineEntry `json:"timeline"`
}

// Manager owns incident lifecycle rules. The SLA deadline is fixed at
// creation from the severity and never moves afterwards, even if the
// severity is edited later.
type Manager struct {
	store  Store
	logger *zap.SugaredLogger
	now    func() time.Time
}

// NewManager creates an incident manager.
func NewManager(store Store, logger *zap.SugaredLogger) *Manager {
	return &Manager{store: store, logger: logger, now: time.Now}
}

// CreateIncident opens an incident from an explicit request.
func (m *Manager) CreateIncident(ctx context.Context, tenantID string, req CreateRequest) (*core.Incident, error) {
	if !req.Severity.IsValid() {
		return nil, fmt.Errorf("%w: unknown incident severity %q", core.ErrInvalidRequest, req.Severity)
	}
	performedBy := req.CreatedBy
	if performedBy == "" {
		performedBy = "system"
	}

	now := m.now().UTC()
	inc := &core.Incident{
		ID:             uuid.New().String(),
		TenantID:       tenantID,
		Title:          req.Title,
		Description:    req.Description,
		Severity:       req.Severity,
		Status:         core.IncidentStatusOpen,
		AssignedTo:     req.AssignedTo,
		SourceThreatID: req.SourceThreatID,
		SLADeadline:    now.Add(req.Severity.SLA()),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	entry := &core.TimelineEntry{
		ID:          uuid.New().String(),
		IncidentID:  inc.ID,
		Action:      "created",
		Description: "Incident created",
		PerformedBy: performedBy,
		CreatedAt:   now,
	}
	if err := m.store.CreateIncident(ctx, inc, entry); err != nil {
		return nil, err
	}

	metrics.IncidentsCreated.WithLabelValues(string(inc.Severity), "manual").Inc()
	m.logger.Infow("Incident created",
		"incident_id", inc.ID, "tenant_id", tenantID, "severity", inc.Severity)
	return inc, nil
}

// CreateFromThreat escalates a matched correlation rule into an incident.
// The rule's configured severity wins; when the rule carries none, the
// severity is derived from the triggering event's numeric score.
func (m *Manager) CreateFromThreat(ctx context.Context, rule *core.CorrelationRule, event *core.ThreatEvent) (*core.Incident, error) {
	severity := rule.IncidentSeverity
	if !severity.IsValid() {
		severity = core.SeverityBand(event.Severity)
	}

	now := m.now().UTC()
	inc := &core.Incident{
		ID:       uuid.New().String(),
		TenantID: event.TenantID,
		Title:    "Auto-generated: " + rule.Name,
		Description: fmt.Sprintf("Correlation rule %q matched threat %s (type %s, severity %d) from %s",
			rule.Name, event.ID, event.ThreatType, event.Severity, event.SrcIP),
		Severity:       severity,
		Status:         core.IncidentStatusOpen,
		SourceThreatID: event.ID,
		SLADeadline:    now.Add(severity.SLA()),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	entry := &core.TimelineEntry{
		ID:          uuid.New().String(),
		IncidentID:  inc.ID,
		Action:      "created",
		Description: "Auto-created by correlation rule " + rule.Name,
		PerformedBy: "system",
		CreatedAt:   now,
	}
	if err := m.store.CreateIncident(ctx, inc, entry); err != nil {
		return nil, err
	}

	metrics.IncidentsCreated.WithLabelValues(string(inc.Severity), "correlation").Inc()
	m.logger.Infow("Incident auto-created from correlation match",
		"incident_id", inc.ID, "tenant_id", inc.TenantID, "rule_id", rule.ID, "event_id", event.ID)
	return inc, nil
}

// UpdateIncident applies a partial patch. A closed incident is final and
// rejects further edits. A timeline entry is appended only when the status
// actually changes; entering a terminal status stamps ResolvedAt.
func (m *Manager) UpdateIncident(ctx context.Context, id, tenantID string, req UpdateRequest) (*core.Incident, error) {
	inc, err := m.getOwned(ctx, id, tenantID)
	if err != nil {
		return nil, err
	}
	if inc.Status == core.IncidentStatusClosed {
		return nil, fmt.Errorf("%w: incident %s is closed", core.ErrUnprocessableState, id)
	}

	if req.Title != nil {
		inc.Title = *req.Title
	}
	if req.Description != nil {
		inc.Description = *req.Description
	}
	if req.Severity != nil {
		if !req.Severity.IsValid() {
			return nil, fmt.Errorf("%w: unknown incident severity %q", core.ErrInvalidRequest, *req.Severity)
		}
		inc.Severity = *req.Severity
	}
	if req.AssignedTo != nil {
		inc.AssignedTo = *req.AssignedTo
	}

	now := m.now().UTC()
	var entry *core.TimelineEntry
	if req.Status != nil && *req.Status != inc.Status {
		if !req.Status.IsValid() {
			return nil, fmt.Errorf("%w: unknown incident status %q", core.ErrInvalidRequest, *req.Status)
		}
		oldStatus := inc.Status
		inc.Status = *req.Status
		if inc.Status.IsTerminal() {
			inc.ResolvedAt = &now
		} else {
			inc.ResolvedAt = nil
		}

		performedBy := req.UpdatedBy
		if performedBy == "" {
			performedBy = "system"
		}
		entry = &core.TimelineEntry{
			ID:          uuid.New().String(),
			IncidentID:  inc.ID,
			Action:      "status_changed",
			Description: fmt.Sprintf("Status changed from %s to %s", oldStatus, inc.Status),
			PerformedBy: performedBy,
			CreatedAt:   now,
		}
	}

	inc.UpdatedAt = now
	if err := m.store.UpdateIncident(ctx, inc, entry); err != nil {
		return nil, err
	}
	return inc, nil
}

// AddTimeline appends a manual audit entry to an incident.
func (m *Manager) AddTimeline(ctx context.Context, id, tenantID, action, description, performedBy string) (*core.TimelineEntry, error) {
	if _, err := m.getOwned(ctx, id, tenantID); err != nil {
		return nil, err
	}
	if action == "" {
		return nil, fmt.Errorf("%w: timeline action is required", core.ErrInvalidRequest)
	}
	if performedBy == "" {
		performedBy = "system"
	}
	entry := &core.TimelineEntry{
		ID:          uuid.New().String(),
		IncidentID:  id,
		Action:      action,
		Description: description,
		PerformedBy: performedBy,
		CreatedAt:   m.now().UTC(),
	}
	if err := m.store.AppendTimeline(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// GetDetail returns an incident with its timeline.
func (m *Manager) GetDetail(ctx context.Context, id, tenantID string) (*Detail, error) {
	inc, err := m.getOwned(ctx, id, tenantID)
	if err != nil {
		return nil, err
	}
	timeline, err := m.store.GetTimeline(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Detail{Incident: *inc, Timeline: timeline}, nil
}

// ListIncidents returns the tenant's incidents.
func (m *Manager) ListIncidents(ctx context.Context, tenantID string) ([]core.Incident, error) {
	return m.store.ListIncidents(ctx, tenantID)
}

func (m *Manager) getOwned(ctx context.Context, id, tenantID string) (*core.Incident, error) {
	inc, err := m.store.GetIncident(ctx, id)
	if err != nil {
		return nil, err
	}
	if inc.TenantID != tenantID {
		return nil, fmt.Errorf("incident %s: %w", id, core.ErrAccessDenied)
	}
	return inc, nil
}
