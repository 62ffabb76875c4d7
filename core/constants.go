package core

import "time"

// Timeouts for outbound calls. Every external channel carries a bounded
// timeout so one unreachable destination cannot stall an ingestion request.
const (
	// HTTPClientTimeout bounds Slack/webhook/provider calls.
	HTTPClientTimeout = 10 * time.Second

	// HTTPClientMaxIdleConns caps pooled connections for outbound clients.
	HTTPClientMaxIdleConns = 10

	// HTTPClientIdleConnTimeout closes idle outbound connections.
	HTTPClientIdleConnTimeout = 90 * time.Second

	// EnrichmentCacheTTL is the freshness window for cached IP reputation.
	EnrichmentCacheTTL = 24 * time.Hour

	// AutoBlockTTL is the default lifetime of an automatic IP block.
	AutoBlockTTL = 24 * time.Hour

	// AutoBlockMinSeverity is the lowest threat severity that triggers an
	// automatic block of the source address.
	AutoBlockMinSeverity = 5
)
