// Package response contains the automated containment controller.
package response

import (
	"context"
	"time"

	"blackwolf/core"
	"blackwolf/metrics"

	"go.uber.org/zap"
)

// Blocklist is the containment persistence surface.
type Blocklist interface {
	BlockIP(ctx context.Context, b *core.BlockedIP) (bool, error)
	ListBlockedIPs(ctx context.Context, tenantID string) ([]core.BlockedIP, error)
}

// AutoBlocker turns sufficiently severe threats into tenant-scoped IP
// blocks. Blocking is idempotent per (ip, tenant); a repeat trigger while a
// block exists changes nothing, including the expiry.
type AutoBlocker struct {
	blocklist   Blocklist
	minSeverity int
	ttl         time.Duration
	logger      *zap.SugaredLogger
	now         func() time.Time
}

// NewAutoBlocker creates the response controller with the standard
// threshold and expiry.
func NewAutoBlocker(blocklist Blocklist, logger *zap.SugaredLogger) *AutoBlocker {
	return &AutoBlocker{
		blocklist:   blocklist,
		minSeverity: core.AutoBlockMinSeverity,
		ttl:         core.AutoBlockTTL,
		logger:      logger,
		now:         time.Now,
	}
}

// HandleThreat blocks the event's source IP when the severity threshold is
// met. Returns true when a new block was inserted.
func (a *AutoBlocker) HandleThreat(ctx context.Context, event *core.ThreatEvent) (bool, error) {
	if event.Severity < a.minSeverity {
		return false, nil
	}

	now := a.now().UTC()
	inserted, err := a.blocklist.BlockIP(ctx, &core.BlockedIP{
		IP:        event.SrcIP,
		TenantID:  event.TenantID,
		Reason:    "Auto-block: " + event.ThreatType,
		BlockedAt: now,
		ExpiresAt: now.Add(a.ttl),
	})
	if err != nil {
		return false, err
	}
	if inserted {
		metrics.IPsBlocked.Inc()
		a.logger.Infow("Source IP auto-blocked",
			"ip", event.SrcIP, "tenant_id", event.TenantID, "threat_type", event.ThreatType, "severity", event.Severity)
	}
	return inserted, nil
}

// ActiveBlocks returns the tenant's current block list, used to build the
// command set returned to sensors.
func (a *AutoBlocker) ActiveBlocks(ctx context.Context, tenantID string) ([]core.BlockedIP, error) {
	return a.blocklist.ListBlockedIPs(ctx, tenantID)
}
