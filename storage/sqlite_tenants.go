package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"blackwolf/core"

	"go.uber.org/zap"
)

// TenantStorage handles tenant and sensor persistence.
type TenantStorage struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewTenantStorage creates a tenant storage instance.
func NewTenantStorage(sqlite *SQLite, logger *zap.SugaredLogger) *TenantStorage {
	return &TenantStorage{sqlite: sqlite, logger: logger}
}

// CreateTenant inserts a new tenant.
func (s *TenantStorage) CreateTenant(ctx context.Context, t *core.Tenant) error {
	_, err := s.sqlite.WriteDB.ExecContext(ctx,
		`INSERT INTO tenants (id, name, api_key, created_at) VALUES (?, ?, ?, ?)`,
		t.ID, t.Name, t.APIKey, t.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert tenant: %w", err)
	}
	return nil
}

// GetTenant retrieves a tenant by id.
func (s *TenantStorage) GetTenant(ctx context.Context, id string) (*core.Tenant, error) {
	return s.scanTenant(s.sqlite.ReadDB.QueryRowContext(ctx,
		`SELECT id, name, api_key, created_at FROM tenants WHERE id = ?`, id))
}

// GetTenantByAPIKey resolves the tenant owning an upload API key.
func (s *TenantStorage) GetTenantByAPIKey(ctx context.Context, apiKey string) (*core.Tenant, error) {
	return s.scanTenant(s.sqlite.ReadDB.QueryRowContext(ctx,
		`SELECT id, name, api_key, created_at FROM tenants WHERE api_key = ?`, apiKey))
}

func (s *TenantStorage) scanTenant(row *sql.Row) (*core.Tenant, error) {
	var t core.Tenant
	err := row.Scan(&t.ID, &t.Name, &t.APIKey, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to scan tenant: %w", err)
	}
	return &t, nil
}

// UpsertSensor records a sensor check-in, accumulating the lifetime packet
// and threat counters.
func (s *TenantStorage) UpsertSensor(ctx context.Context, sensorID, tenantID string, packets, threats int64, seenAt time.Time) error {
	_, err := s.sqlite.WriteDB.ExecContext(ctx, `
		INSERT INTO sensors (id, tenant_id, status, last_seen, packets_processed, threats_detected)
		VALUES (?, ?, 'online', ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = 'online',
			last_seen = excluded.last_seen,
			packets_processed = sensors.packets_processed + excluded.packets_processed,
			threats_detected = sensors.threats_detected + excluded.threats_detected`,
		sensorID, tenantID, seenAt.UTC(), packets, threats)
	if err != nil {
		return fmt.Errorf("failed to upsert sensor: %w", err)
	}
	return nil
}

// ListSensors returns all sensors for a tenant.
func (s *TenantStorage) ListSensors(ctx context.Context, tenantID string) ([]core.Sensor, error) {
	rows, err := s.sqlite.ReadDB.QueryContext(ctx, `
		SELECT id, tenant_id, status, last_seen, packets_processed, threats_detected
		FROM sensors WHERE tenant_id = ? ORDER BY last_seen DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sensors: %w", err)
	}
	defer rows.Close()

	sensors := make([]core.Sensor, 0)
	for rows.Next() {
		var sn core.Sensor
		if err := rows.Scan(&sn.ID, &sn.TenantID, &sn.Status, &sn.LastSeen,
			&sn.PacketsProcessed, &sn.ThreatsDetected); err != nil {
			return nil, fmt.Errorf("failed to scan sensor: %w", err)
		}
		sensors = append(sensors, sn)
	}
	return sensors, rows.Err()
}
