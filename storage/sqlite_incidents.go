package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"blackwolf/core"

	"go.uber.org/zap"
)

// IncidentStorage handles incident and timeline persistence. An incident
// write and its timeline append always share one transaction.
type IncidentStorage struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewIncidentStorage creates an incident storage instance.
func NewIncidentStorage(sqlite *SQLite, logger *zap.SugaredLogger) *IncidentStorage {
	return &IncidentStorage{sqlite: sqlite, logger: logger}
}

const incidentColumns = `id, tenant_id, title, description, severity, status,
	assigned_to, source_threat_id, sla_deadline, created_at, updated_at, resolved_at`

// CreateIncident inserts an incident together with its creation timeline
// entry, atomically.
func (s *IncidentStorage) CreateIncident(ctx context.Context, inc *core.Incident, entry *core.TimelineEntry) error {
	return s.sqlite.WithTransaction(func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO incidents
				(id, tenant_id, title, description, severity, status, assigned_to,
				 source_threat_id, sla_deadline, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			inc.ID, inc.TenantID, inc.Title, inc.Description, string(inc.Severity),
			string(inc.Status), inc.AssignedTo, inc.SourceThreatID,
			inc.SLADeadline.UTC(), inc.CreatedAt.UTC(), inc.UpdatedAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to insert incident: %w", err)
		}
		return insertTimelineEntry(ctx, tx, entry)
	})
}

// UpdateIncident persists incident field changes; when entry is non-nil it is
// appended in the same transaction (status-change audit records).
func (s *IncidentStorage) UpdateIncident(ctx context.Context, inc *core.Incident, entry *core.TimelineEntry) error {
	return s.sqlite.WithTransaction(func(tx *sql.Tx) error {
		var resolvedAt interface{}
		if inc.ResolvedAt != nil {
			resolvedAt = inc.ResolvedAt.UTC()
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE incidents SET
				title = ?, description = ?, severity = ?, status = ?,
				assigned_to = ?, updated_at = ?, resolved_at = ?
			WHERE id = ? AND tenant_id = ?`,
			inc.Title, inc.Description, string(inc.Severity), string(inc.Status),
			inc.AssignedTo, inc.UpdatedAt.UTC(), resolvedAt, inc.ID, inc.TenantID)
		if err != nil {
			return fmt.Errorf("failed to update incident: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrIncidentNotFound
		}
		if entry != nil {
			return insertTimelineEntry(ctx, tx, entry)
		}
		return nil
	})
}

// GetIncident retrieves an incident by id without a tenant check; callers in
// the incident manager enforce ownership so mismatches surface as
// AccessDenied rather than NotFound.
func (s *IncidentStorage) GetIncident(ctx context.Context, id string) (*core.Incident, error) {
	row := s.sqlite.ReadDB.QueryRowContext(ctx,
		`SELECT `+incidentColumns+` FROM incidents WHERE id = ?`, id)
	inc, err := scanIncident(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrIncidentNotFound
		}
		return nil, fmt.Errorf("failed to scan incident: %w", err)
	}
	return inc, nil
}

// ListIncidents returns all incidents for a tenant, newest first.
func (s *IncidentStorage) ListIncidents(ctx context.Context, tenantID string) ([]core.Incident, error) {
	rows, err := s.sqlite.ReadDB.QueryContext(ctx,
		`SELECT `+incidentColumns+` FROM incidents WHERE tenant_id = ? ORDER BY created_at DESC`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query incidents: %w", err)
	}
	defer rows.Close()

	incidents := make([]core.Incident, 0)
	for rows.Next() {
		inc, err := scanIncident(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan incident: %w", err)
		}
		incidents = append(incidents, *inc)
	}
	return incidents, rows.Err()
}

// AppendTimeline appends one entry outside any incident write.
func (s *IncidentStorage) AppendTimeline(ctx context.Context, entry *core.TimelineEntry) error {
	return s.sqlite.WithTransaction(func(tx *sql.Tx) error {
		return insertTimelineEntry(ctx, tx, entry)
	})
}

// GetTimeline returns the incident's entries ordered by creation time.
func (s *IncidentStorage) GetTimeline(ctx context.Context, incidentID string) ([]core.TimelineEntry, error) {
	rows, err := s.sqlite.ReadDB.QueryContext(ctx, `
		SELECT id, incident_id, action, description, performed_by, created_at
		FROM incident_timeline WHERE incident_id = ? ORDER BY created_at`,
		incidentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query timeline: %w", err)
	}
	defer rows.Close()

	entries := make([]core.TimelineEntry, 0)
	for rows.Next() {
		var e core.TimelineEntry
		if err := rows.Scan(&e.ID, &e.IncidentID, &e.Action, &e.Description,
			&e.PerformedBy, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan timeline entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func insertTimelineEntry(ctx context.Context, tx *sql.Tx, entry *core.TimelineEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO incident_timeline (id, incident_id, action, description, performed_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.IncidentID, entry.Action, entry.Description,
		entry.PerformedBy, entry.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert timeline entry: %w", err)
	}
	return nil
}

func scanIncident(scan func(...interface{}) error) (*core.Incident, error) {
	var inc core.Incident
	var severity, status string
	var resolvedAt sql.NullTime
	err := scan(&inc.ID, &inc.TenantID, &inc.Title, &inc.Description, &severity,
		&status, &inc.AssignedTo, &inc.SourceThreatID, &inc.SLADeadline,
		&inc.CreatedAt, &inc.UpdatedAt, &resolvedAt)
	if err != nil {
		return nil, err
	}
	inc.Severity = core.IncidentSeverity(severity)
	inc.Status = core.IncidentStatus(status)
	if resolvedAt.Valid {
		t := resolvedAt.Time
		inc.ResolvedAt = &t
	}
	return &inc, nil
}
