package response

import (
	"context"
	"testing"
	"time"

	"blackwolf/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memBlocklist struct {
	blocks map[string]core.BlockedIP // keyed ip|tenant
}

func newMemBlocklist() *memBlocklist {
	return &memBlocklist{blocks: make(map[string]core.BlockedIP)}
}

func (m *memBlocklist) BlockIP(_ context.Context, b *core.BlockedIP) (bool, error) {
	key := b.IP + "|" + b.TenantID
	if _, exists := m.blocks[key]; exists {
		return false, nil
	}
	m.blocks[key] = *b
	return true, nil
}

func (m *memBlocklist) ListBlockedIPs(_ context.Context, tenantID string) ([]core.BlockedIP, error) {
	out := make([]core.BlockedIP, 0)
	for _, b := range m.blocks {
		if b.TenantID == tenantID {
			out = append(out, b)
		}
	}
	return out, nil
}

func newTestBlocker() (*AutoBlocker, *memBlocklist, time.Time) {
	blocklist := newMemBlocklist()
	b := NewAutoBlocker(blocklist, zap.NewNop().Sugar())
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }
	return b, blocklist, now
}

func event(severity int) *core.ThreatEvent {
	return &core.ThreatEvent{
		ID: "evt-1", TenantID: "tenant-a", ThreatType: "malware",
		Severity: severity, SrcIP: "1.2.3.4",
	}
}

func TestAutoBlocker_BlocksAtThreshold(t *testing.T) {
	b, blocklist, now := newTestBlocker()

	inserted, err := b.HandleThreat(context.Background(), event(5))
	require.NoError(t, err)
	assert.True(t, inserted)

	got := blocklist.blocks["1.2.3.4|tenant-a"]
	assert.Equal(t, "Auto-block: malware", got.Reason)
	assert.Equal(t, now.Add(24*time.Hour), got.ExpiresAt)
}

func TestAutoBlocker_BelowThresholdNoBlock(t *testing.T) {
	b, blocklist, _ := newTestBlocker()

	inserted, err := b.HandleThreat(context.Background(), event(4))
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Empty(t, blocklist.blocks)
}

func TestAutoBlocker_RepeatTriggerIsIdempotent(t *testing.T) {
	b, blocklist, now := newTestBlocker()

	inserted, err := b.HandleThreat(context.Background(), event(9))
	require.NoError(t, err)
	assert.True(t, inserted)

	// A later trigger changes nothing, including the expiry.
	b.now = func() time.Time { return now.Add(12 * time.Hour) }
	inserted, err = b.HandleThreat(context.Background(), event(10))
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, now.Add(24*time.Hour), blocklist.blocks["1.2.3.4|tenant-a"].ExpiresAt)
}
