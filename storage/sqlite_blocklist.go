package storage

import (
	"context"
	"fmt"
	"time"

	"blackwolf/core"

	"go.uber.org/zap"
)

// BlocklistStorage handles containment records. At most one row exists per
// (ip, tenant); inserts are atomic upserts so concurrent duplicate triggers
// for the same address cannot race.
type BlocklistStorage struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewBlocklistStorage creates a blocklist storage instance.
func NewBlocklistStorage(sqlite *SQLite, logger *zap.SugaredLogger) *BlocklistStorage {
	return &BlocklistStorage{sqlite: sqlite, logger: logger}
}

// BlockIP inserts a block if none exists for (ip, tenant). Returns true when
// a new row was inserted, false when an existing row already blocks the
// address. An existing row blocks regardless of its expires_at: expiry is
// enforced by the retention sweep, not by this check.
func (s *BlocklistStorage) BlockIP(ctx context.Context, b *core.BlockedIP) (bool, error) {
	res, err := s.sqlite.WriteDB.ExecContext(ctx, `
		INSERT INTO blocked_ips (ip, tenant_id, reason, blocked_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(ip, tenant_id) DO NOTHING`,
		b.IP, b.TenantID, b.Reason, b.BlockedAt.UTC(), b.ExpiresAt.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to insert blocked ip: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}
	return n > 0, nil
}

// ListBlockedIPs returns every block for a tenant, most recent first.
func (s *BlocklistStorage) ListBlockedIPs(ctx context.Context, tenantID string) ([]core.BlockedIP, error) {
	rows, err := s.sqlite.ReadDB.QueryContext(ctx, `
		SELECT ip, tenant_id, reason, blocked_at, expires_at
		FROM blocked_ips WHERE tenant_id = ? ORDER BY blocked_at DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query blocked ips: %w", err)
	}
	defer rows.Close()

	blocks := make([]core.BlockedIP, 0)
	for rows.Next() {
		var b core.BlockedIP
		if err := rows.Scan(&b.IP, &b.TenantID, &b.Reason, &b.BlockedAt, &b.ExpiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan blocked ip: %w", err)
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

// Unblock removes a block explicitly.
func (s *BlocklistStorage) Unblock(ctx context.Context, ip, tenantID string) error {
	res, err := s.sqlite.WriteDB.ExecContext(ctx,
		`DELETE FROM blocked_ips WHERE ip = ? AND tenant_id = ?`, ip, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete blocked ip: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrBlockNotFound
	}
	return nil
}

// PurgeExpired removes blocks whose expiry has passed. This is the explicit
// unblock step for auto-blocks; until it runs, an expired row still blocks.
func (s *BlocklistStorage) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.sqlite.WriteDB.ExecContext(ctx,
		`DELETE FROM blocked_ips WHERE expires_at < ?`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired blocks: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Infof("Purged %d expired IP blocks", n)
	}
	return n, nil
}
