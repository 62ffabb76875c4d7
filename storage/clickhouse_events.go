package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"blackwolf/core"

	"go.uber.org/zap"
)

// ClickHouseEventStorage persists the threat event stream in ClickHouse.
// Inserts are synchronous so correlation window counts see the triggering
// event immediately; batching is left to the server's own insert buffering.
//
// ReplacingMergeTree on (tenant_id, id) lets UpdateEventStatus work as an
// insert of the full row with the new status; queries take the latest
// version via FINAL.
type ClickHouseEventStorage struct {
	clickhouse *ClickHouse
	logger     *zap.SugaredLogger
}

// NewClickHouseEventStorage creates the backend and its table.
func NewClickHouseEventStorage(ctx context.Context, ch *ClickHouse, logger *zap.SugaredLogger) (*ClickHouseEventStorage, error) {
	s := &ClickHouseEventStorage{clickhouse: ch, logger: logger}
	if err := s.createTable(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ClickHouseEventStorage) createTable(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS threat_events (
		id String,
		tenant_id String,
		sensor_id String,
		threat_type String,
		severity UInt8,
		src_ip String,
		dst_ip String,
		dst_port UInt16,
		timestamp DateTime64(3, 'UTC'),
		status String,
		description String,
		version DateTime64(3, 'UTC')
	) ENGINE = ReplacingMergeTree(version)
	ORDER BY (tenant_id, id)`
	if err := s.clickhouse.Conn.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create threat_events table: %w", err)
	}
	return nil
}

// InsertEvent durably appends one threat event.
func (s *ClickHouseEventStorage) InsertEvent(ctx context.Context, e *core.ThreatEvent) error {
	err := s.clickhouse.Conn.Exec(ctx, `
		INSERT INTO threat_events
			(id, tenant_id, sensor_id, threat_type, severity, src_ip, dst_ip, dst_port, timestamp, status, description, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.TenantID, e.SensorID, e.ThreatType, uint8(e.Severity),
		e.SrcIP, e.DstIP, uint16(e.DstPort), e.Timestamp.UTC(),
		string(e.Status), e.Description, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert threat event: %w", err)
	}
	return nil
}

const clickhouseEventColumns = `id, tenant_id, sensor_id, threat_type, severity,
	src_ip, dst_ip, dst_port, timestamp, status, description`

// GetEvent retrieves one event, enforcing tenant ownership.
func (s *ClickHouseEventStorage) GetEvent(ctx context.Context, id, tenantID string) (*core.ThreatEvent, error) {
	rows, err := s.clickhouse.Conn.Query(ctx,
		`SELECT `+clickhouseEventColumns+` FROM threat_events FINAL WHERE id = ? LIMIT 1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query threat event: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ErrEventNotFound
	}
	e, err := scanClickHouseEvent(rows.Scan)
	if err != nil {
		return nil, err
	}
	if e.TenantID != tenantID {
		return nil, fmt.Errorf("threat event %s: %w", id, core.ErrAccessDenied)
	}
	return e, nil
}

// UpdateEventStatus rewrites the event row with the new status. The
// ReplacingMergeTree keeps the row with the highest version.
func (s *ClickHouseEventStorage) UpdateEventStatus(ctx context.Context, id, tenantID string, status core.ThreatStatus) error {
	if !status.IsValid() {
		return fmt.Errorf("%w: unknown threat status %q", core.ErrInvalidRequest, status)
	}
	e, err := s.GetEvent(ctx, id, tenantID)
	if err != nil {
		return err
	}
	e.Status = status
	return s.InsertEvent(ctx, e)
}

// ListEvents returns a filtered, paginated slice of the tenant's events.
func (s *ClickHouseEventStorage) ListEvents(ctx context.Context, tenantID string, f EventFilter) ([]core.ThreatEvent, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + clickhouseEventColumns + ` FROM threat_events FINAL WHERE tenant_id = ?`)
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
		sb.WriteString(" AND (startsWith(src_ip, ?) OR startsWith(dst_ip, ?))")
		args = append(args, f.SearchIP, f.SearchIP)
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

	rows, err := s.clickhouse.Conn.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query threat events: %w", err)
	}
	defer rows.Close()

	events := make([]core.ThreatEvent, 0)
	for rows.Next() {
		e, err := scanClickHouseEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// CountBySrcIPAndType counts window events sharing source IP and threat type.
func (s *ClickHouseEventStorage) CountBySrcIPAndType(ctx context.Context, tenantID, srcIP, threatType string, since time.Time) (int, error) {
	return s.count(ctx, `
		SELECT count() FROM threat_events FINAL
		WHERE tenant_id = ? AND src_ip = ? AND threat_type = ? AND timestamp >= ?`,
		tenantID, srcIP, threatType, since.UTC())
}

// CountByType counts window events sharing the threat type.
func (s *ClickHouseEventStorage) CountByType(ctx context.Context, tenantID, threatType string, since time.Time) (int, error) {
	return s.count(ctx, `
		SELECT count() FROM threat_events FINAL
		WHERE tenant_id = ? AND threat_type = ? AND timestamp >= ?`,
		tenantID, threatType, since.UTC())
}

// CountDistinctTypesBySrcIP counts distinct threat types from one source IP
// inside the window.
func (s *ClickHouseEventStorage) CountDistinctTypesBySrcIP(ctx context.Context, tenantID, srcIP string, since time.Time) (int, error) {
	return s.count(ctx, `
		SELECT uniqExact(threat_type) FROM threat_events FINAL
		WHERE tenant_id = ? AND src_ip = ? AND timestamp >= ?`,
		tenantID, srcIP, since.UTC())
}

// EventCount returns the total number of events for a tenant.
func (s *ClickHouseEventStorage) EventCount(ctx context.Context, tenantID string) (int64, error) {
	n, err := s.count(ctx,
		`SELECT count() FROM threat_events FINAL WHERE tenant_id = ?`, tenantID)
	return int64(n), err
}

func (s *ClickHouseEventStorage) count(ctx context.Context, query string, args ...interface{}) (int, error) {
	var count uint64
	if err := s.clickhouse.Conn.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count threat events: %w", err)
	}
	return int(count), nil
}

func scanClickHouseEvent(scan func(...interface{}) error) (*core.ThreatEvent, error) {
	var e core.ThreatEvent
	var severity uint8
	var dstPort uint16
	var status string
	err := scan(&e.ID, &e.TenantID, &e.SensorID, &e.ThreatType, &severity,
		&e.SrcIP, &e.DstIP, &dstPort, &e.Timestamp, &status, &e.Description)
	if err != nil {
		return nil, fmt.Errorf("failed to scan threat event: %w", err)
	}
	e.Severity = int(severity)
	e.DstPort = int(dstPort)
	e.Status = core.ThreatStatus(status)
	return &e, nil
}
