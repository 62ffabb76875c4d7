package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"blackwolf/core"

	"go.uber.org/zap"
)

// AlertStorage handles alert configurations and the append-only delivery
// history.
type AlertStorage struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewAlertStorage creates an alert storage instance.
func NewAlertStorage(sqlite *SQLite, logger *zap.SugaredLogger) *AlertStorage {
	return &AlertStorage{sqlite: sqlite, logger: logger}
}

const alertConfigColumns = `id, tenant_id, alert_type, destination, min_severity, active, created_at`

// CreateConfig inserts a new alert configuration.
func (s *AlertStorage) CreateConfig(ctx context.Context, c *core.AlertConfig) error {
	_, err := s.sqlite.WriteDB.ExecContext(ctx, `
		INSERT INTO alert_configs (id, tenant_id, alert_type, destination, min_severity, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.TenantID, string(c.AlertType), c.Destination, c.MinSeverity,
		boolToInt(c.Active), c.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert alert config: %w", err)
	}
	return nil
}

// GetConfig retrieves one configuration, enforcing tenant ownership.
func (s *AlertStorage) GetConfig(ctx context.Context, id, tenantID string) (*core.AlertConfig, error) {
	row := s.sqlite.ReadDB.QueryRowContext(ctx,
		`SELECT `+alertConfigColumns+` FROM alert_configs WHERE id = ?`, id)
	c, err := scanAlertConfig(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAlertConfigNotFound
		}
		return nil, fmt.Errorf("failed to scan alert config: %w", err)
	}
	if c.TenantID != tenantID {
		return nil, fmt.Errorf("alert config %s: %w", id, core.ErrAccessDenied)
	}
	return c, nil
}

// ListConfigs returns all configurations for a tenant.
func (s *AlertStorage) ListConfigs(ctx context.Context, tenantID string) ([]core.AlertConfig, error) {
	return s.listConfigs(ctx,
		`SELECT `+alertConfigColumns+` FROM alert_configs WHERE tenant_id = ? ORDER BY created_at`,
		tenantID)
}

// ListActiveConfigs returns the tenant's enabled configurations; this is the
// dispatcher's read path.
func (s *AlertStorage) ListActiveConfigs(ctx context.Context, tenantID string) ([]core.AlertConfig, error) {
	return s.listConfigs(ctx,
		`SELECT `+alertConfigColumns+` FROM alert_configs WHERE tenant_id = ? AND active = 1`,
		tenantID)
}

func (s *AlertStorage) listConfigs(ctx context.Context, query string, args ...interface{}) ([]core.AlertConfig, error) {
	rows, err := s.sqlite.ReadDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert configs: %w", err)
	}
	defer rows.Close()

	configs := make([]core.AlertConfig, 0)
	for rows.Next() {
		c, err := scanAlertConfig(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert config: %w", err)
		}
		configs = append(configs, *c)
	}
	return configs, rows.Err()
}

// UpdateConfig applies channel/destination/severity/active changes.
func (s *AlertStorage) UpdateConfig(ctx context.Context, c *core.AlertConfig) error {
	res, err := s.sqlite.WriteDB.ExecContext(ctx, `
		UPDATE alert_configs SET alert_type = ?, destination = ?, min_severity = ?, active = ?
		WHERE id = ? AND tenant_id = ?`,
		string(c.AlertType), c.Destination, c.MinSeverity, boolToInt(c.Active), c.ID, c.TenantID)
	if err != nil {
		return fmt.Errorf("failed to update alert config: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAlertConfigNotFound
	}
	return nil
}

// DeleteConfig removes a configuration.
func (s *AlertStorage) DeleteConfig(ctx context.Context, id, tenantID string) error {
	res, err := s.sqlite.WriteDB.ExecContext(ctx,
		`DELETE FROM alert_configs WHERE id = ? AND tenant_id = ?`, id, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete alert config: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAlertConfigNotFound
	}
	return nil
}

// InsertRecord appends one delivery outcome. Every dispatch attempt produces
// exactly one record, success or failure.
func (s *AlertStorage) InsertRecord(ctx context.Context, r *core.AlertRecord) error {
	_, err := s.sqlite.WriteDB.ExecContext(ctx, `
		INSERT INTO alert_history
			(id, tenant_id, config_id, threat_event_id, incident_id, alert_type,
			 destination, subject, message, status, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.TenantID, r.ConfigID, r.ThreatEventID, r.IncidentID,
		string(r.AlertType), r.Destination, r.Subject, r.Message,
		string(r.Status), r.SentAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert alert record: %w", err)
	}
	return nil
}

// ListHistory returns the tenant's delivery records, newest first.
func (s *AlertStorage) ListHistory(ctx context.Context, tenantID string, limit int) ([]core.AlertRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := s.sqlite.ReadDB.QueryContext(ctx, `
		SELECT id, tenant_id, config_id, threat_event_id, incident_id, alert_type,
		       destination, subject, message, status, sent_at
		FROM alert_history WHERE tenant_id = ? ORDER BY sent_at DESC LIMIT ?`,
		tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert history: %w", err)
	}
	defer rows.Close()

	records := make([]core.AlertRecord, 0)
	for rows.Next() {
		var r core.AlertRecord
		var alertType, status string
		if err := rows.Scan(&r.ID, &r.TenantID, &r.ConfigID, &r.ThreatEventID,
			&r.IncidentID, &alertType, &r.Destination, &r.Subject, &r.Message,
			&status, &r.SentAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert record: %w", err)
		}
		r.AlertType = core.AlertType(alertType)
		r.Status = core.AlertOutcome(status)
		records = append(records, r)
	}
	return records, rows.Err()
}

func scanAlertConfig(scan func(...interface{}) error) (*core.AlertConfig, error) {
	var c core.AlertConfig
	var alertType string
	var active int
	err := scan(&c.ID, &c.TenantID, &alertType, &c.Destination, &c.MinSeverity,
		&active, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.AlertType = core.AlertType(alertType)
	c.Active = active != 0
	return &c, nil
}
