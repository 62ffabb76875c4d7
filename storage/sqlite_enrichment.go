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

// EnrichmentStorage caches third-party IP reputation lookups. Rows are keyed
// by IP alone; reputation is tenant-independent.
type EnrichmentStorage struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewEnrichmentStorage creates an enrichment storage instance.
func NewEnrichmentStorage(sqlite *SQLite, logger *zap.SugaredLogger) *EnrichmentStorage {
	return &EnrichmentStorage{sqlite: sqlite, logger: logger}
}

// GetEnrichment retrieves the cached record for an IP, fresh or stale.
// Callers decide freshness via core.ThreatEnrichment.Fresh.
func (s *EnrichmentStorage) GetEnrichment(ctx context.Context, ip string) (*core.ThreatEnrichment, error) {
	row := s.sqlite.ReadDB.QueryRowContext(ctx, `
		SELECT ip, abuse_score, country_code, isp, domain, is_tor, total_reports, enriched_at
		FROM threat_enrichment WHERE ip = ?`, ip)

	var e core.ThreatEnrichment
	var isTor int
	err := row.Scan(&e.IP, &e.AbuseScore, &e.CountryCode, &e.ISP, &e.Domain,
		&isTor, &e.TotalReports, &e.EnrichedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEnrichmentNotFound
		}
		return nil, fmt.Errorf("failed to scan enrichment: %w", err)
	}
	e.IsTor = isTor != 0
	return &e, nil
}

// UpsertEnrichment writes or refreshes the cached record for an IP.
func (s *EnrichmentStorage) UpsertEnrichment(ctx context.Context, e *core.ThreatEnrichment) error {
	_, err := s.sqlite.WriteDB.ExecContext(ctx, `
		INSERT INTO threat_enrichment
			(ip, abuse_score, country_code, isp, domain, is_tor, total_reports, enriched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ip) DO UPDATE SET
			abuse_score = excluded.abuse_score,
			country_code = excluded.country_code,
			isp = excluded.isp,
			domain = excluded.domain,
			is_tor = excluded.is_tor,
			total_reports = excluded.total_reports,
			enriched_at = excluded.enriched_at`,
		e.IP, e.AbuseScore, e.CountryCode, e.ISP, e.Domain,
		boolToInt(e.IsTor), e.TotalReports, e.EnrichedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert enrichment: %w", err)
	}
	return nil
}

// PurgeStale removes cached records older than the cutoff. Run by the
// retention sweep; an entry past the cache TTL but before the cutoff stays
// on disk and is simply refreshed on next lookup.
func (s *EnrichmentStorage) PurgeStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.sqlite.WriteDB.ExecContext(ctx,
		`DELETE FROM threat_enrichment WHERE enriched_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge stale enrichment: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Infof("Purged %d stale enrichment records", n)
	}
	return n, nil
}
