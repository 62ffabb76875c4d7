package storage

import (
	"context"
	"time"

	"blackwolf/core"
)

// EventStore is the threat event stream. SQLite implements it for standard
// deployments and ClickHouse for high-volume ones; the ingestion pipeline and
// correlation engine depend only on this interface.
//
// InsertEvent must be synchronous: the correlation window counts include the
// triggering event, so it has to be visible to the count queries before
// evaluation starts.
type EventStore interface {
	InsertEvent(ctx context.Context, e *core.ThreatEvent) error
	GetEvent(ctx context.Context, id, tenantID string) (*core.ThreatEvent, error)
	UpdateEventStatus(ctx context.Context, id, tenantID string, status core.ThreatStatus) error
	ListEvents(ctx context.Context, tenantID string, f EventFilter) ([]core.ThreatEvent, error)
	CountBySrcIPAndType(ctx context.Context, tenantID, srcIP, threatType string, since time.Time) (int, error)
	CountByType(ctx context.Context, tenantID, threatType string, since time.Time) (int, error)
	CountDistinctTypesBySrcIP(ctx context.Context, tenantID, srcIP string, since time.Time) (int, error)
	EventCount(ctx context.Context, tenantID string) (int64, error)
}
