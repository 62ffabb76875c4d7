package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"blackwolf/core"

	"go.uber.org/zap"
)

// EventFilter narrows a threat event listing. Zero values mean "no filter".
type EventFilter struct {
	ThreatType  string
	Status      core.ThreatStatus
	MinSeverity int
	MaxSeverity int
	From        time.Time
	To          time.Time
	SearchIP    string // matches src_ip or dst_ip by prefix
	SortBy      string
	SortDesc    bool
	Limit       int
	Offset      int
}

// ORDER BY columns are validated against this map; anything else falls back
// to timestamp.
var allowedEventSortFields = map[string]string{
	"timestamp":   "timestamp",
	"severity":    "severity",
	"threat_type": "threat_type",
	"src_ip":      "src_ip",
	"status":      "status",
}

// EventStorage persists and queries the tenant-partitioned threat event
// stream in SQLite.
type EventStorage struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewEventStorage creates an event storage instance.
func NewEventStorage(sqlite *SQLite, logger *zap.SugaredLogger) *EventStorage {
	return &EventStorage{sqlite: sqlite, logger: logger}
}

// InsertEvent durably appends one threat event.
func (s *EventStorage) InsertEvent(ctx context.Context, e *core.ThreatEvent) error {
	_, err := s.sqlite.WriteDB.ExecContext(ctx, `
		INSERT INTO threat_events
			(id, tenant_id, sensor_id, threat_type, severity, src_ip, dst_ip, dst_port, timestamp, status, description)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.TenantID, e.SensorID, e.ThreatType, e.Severity,
		e.SrcIP, e.DstIP, e.DstPort, e.Timestamp.UTC(), string(e.Status), e.Description)
	if err != nil {
		return fmt.Errorf("failed to insert threat event: %w", err)
	}
	return nil
}

// GetEvent retrieves one event, enforcing tenant ownership.
func (s *EventStorage) GetEvent(ctx context.Context, id, tenantID string) (*core.ThreatEvent, error) {
	row := s.sqlite.ReadDB.QueryRowContext(ctx, `
		SELECT id, tenant_id, sensor_id, threat_type, severity, src_ip, dst_ip, dst_port, timestamp, status, description
		FROM threat_events WHERE id = ?`, id)

	var e core.ThreatEvent
	var status string
	err := row.Scan(&e.ID, &e.TenantID, &e.SensorID, &e.ThreatType, &e.Severity,
		&e.SrcIP, &e.DstIP, &e.DstPort, &e.Timestamp, &status, &e.Description)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to scan threat event: %w", err)
	}
	e.Status = core.ThreatStatus(status)
	if e.TenantID != tenantID {
		return nil, fmt.Errorf("threat event %s: %w", id, core.ErrAccessDenied)
	}
	return &e, nil
}

// UpdateEventStatus changes the only mutable field of a threat event.
func (s *EventStorage) UpdateEventStatus(ctx context.Context, id, tenantID string, status core.ThreatStatus) error {
	if !status.IsValid() {
		return fmt.Errorf("%w: unknown threat status %q", core.ErrInvalidRequest, status)
	}
	// Ownership check first so a cross-tenant id yields AccessDenied, not a
	// silent zero-row update.
	if _, err := s.GetEvent(ctx, id, tenantID); err != nil {
		return err
	}
	_, err := s.sqlite.WriteDB.ExecContext(ctx,
		`UPDATE threat_events SET status = ? WHERE id = ? AND tenant_id = ?`,
		string(status), id, tenantID)
	if err != nil {
		return fmt.Errorf("failed to update threat event status: %w", err)
	}
	return nil
}

// ListEvents returns a filtered, paginated slice of the tenant's events.
func (s *EventStorage) ListEvents(ctx context.Context, tenantID string, f EventFilter) ([]core.ThreatEvent, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT id, tenant_id, sensor_id, threat_type, severity, src_ip, dst_ip, dst_port, timestamp, status, description
		FROM threat_events WHERE tenant_id = ?`)
	args := []interface{}{tenantID}

	if f.ThreatType != "" {
		sb.WriteString(" AND threat_type = ?")
		args = append(args, f.ThreatType)
	}
	if f.Status != "" {
		sb.WriteString(" AND status = ?")
		args = append(args, string(f.Status))
	}
	if f.MinSeverity > 0 {
		sb.WriteString(" AND severity >= ?")
		args = append(args, f.MinSeverity)
	}
	if f.MaxSeverity > 0 {
		sb.WriteString(" AND severity <= ?")
		args = append(args, f.MaxSeverity)
	}
	if !f.From.IsZero() {
		sb.WriteString(" AND timestamp >= ?")
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		sb.WriteString(" AND timestamp <= ?")
		args = append(args, f.To.UTC())
	}
	if f.SearchIP != "" {
		sb.WriteString(" AND (src_ip LIKE ? OR dst_ip LIKE ?)")
		pattern := f.SearchIP + "%"
		args = append(args, pattern, pattern)
	}

	sortCol, ok := allowedEventSortFields[f.SortBy]
	if !ok {
		sortCol = "timestamp"
	}
	sb.WriteString(" ORDER BY " + sortCol)
	if f.SortDesc {
		sb.WriteString(" DESC")
	}

	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	sb.WriteString(" LIMIT ? OFFSET ?")
	args = append(args, limit, f.Offset)

	rows, err := s.sqlite.ReadDB.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query threat events: %w", err)
	}
	defer rows.Close()

	events := make([]core.ThreatEvent, 0)
	for rows.Next() {
		var e core.ThreatEvent
		var status string
		if err := rows.Scan(&e.ID, &e.TenantID, &e.SensorID, &e.ThreatType, &e.Severity,
			&e.SrcIP, &e.DstIP, &e.DstPort, &e.Timestamp, &status, &e.Description); err != nil {
			return nil, fmt.Errorf("failed to scan threat event: %w", err)
		}
		e.Status = core.ThreatStatus(status)
		events = append(events, e)
	}
	return events, rows.Err()
}

// Window queries used by the correlation engine. Counting happens in SQL so
// the engine never loads the tenant's full event history. All three include
// the triggering event itself, which is inserted before evaluation.

// CountBySrcIPAndType counts window events sharing source IP and threat type.
func (s *EventStorage) CountBySrcIPAndType(ctx context.Context, tenantID, srcIP, threatType string, since time.Time) (int, error) {
	var count int
	err := s.sqlite.ReadDB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM threat_events
		WHERE tenant_id = ? AND src_ip = ? AND threat_type = ? AND timestamp >= ?`,
		tenantID, srcIP, threatType, since.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count events by src ip and type: %w", err)
	}
	return count, nil
}

// CountByType counts window events sharing the threat type.
func (s *EventStorage) CountByType(ctx context.Context, tenantID, threatType string, since time.Time) (int, error) {
	var count int
	err := s.sqlite.ReadDB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM threat_events
		WHERE tenant_id = ? AND threat_type = ? AND timestamp >= ?`,
		tenantID, threatType, since.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count events by type: %w", err)
	}
	return count, nil
}

// CountDistinctTypesBySrcIP counts distinct threat types seen from one
// source IP inside the window.
func (s *EventStorage) CountDistinctTypesBySrcIP(ctx context.Context, tenantID, srcIP string, since time.Time) (int, error) {
	var count int
	err := s.sqlite.ReadDB.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT threat_type) FROM threat_events
		WHERE tenant_id = ? AND src_ip = ? AND timestamp >= ?`,
		tenantID, srcIP, since.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count distinct threat types: %w", err)
	}
	return count, nil
}

// EventCount returns the total number of events for a tenant.
func (s *EventStorage) EventCount(ctx context.Context, tenantID string) (int64, error) {
	var count int64
	err := s.sqlite.ReadDB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM threat_events WHERE tenant_id = ?`, tenantID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count threat events: %w", err)
	}
	return count, nil
}
