package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"blackwolf/core"

	"go.uber.org/zap"
)

// RuleStorage handles correlation rule persistence. Rules are global, not
// tenant-scoped: one rule set applies across all tenants with tenant-relative
// windows.
type RuleStorage struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewRuleStorage creates a rule storage instance.
func NewRuleStorage(sqlite *SQLite, logger *zap.SugaredLogger) *RuleStorage {
	return &RuleStorage{sqlite: sqlite, logger: logger}
}

const ruleColumns = `id, name, rule_type, threshold_count, time_window_minutes,
	threat_type, min_severity, creates_incident, incident_severity, active, created_at`

// GetActiveRules returns every active rule. Read fresh per evaluation (or
// through the engine's short-TTL snapshot) so rule edits take effect quickly.
func (s *RuleStorage) GetActiveRules(ctx context.Context) ([]core.CorrelationRule, error) {
	rows, err := s.sqlite.ReadDB.QueryContext(ctx,
		`SELECT `+ruleColumns+` FROM correlation_rules WHERE active = 1`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active rules: %w", err)
	}
	defer rows.Close()
	return scanRules(rows)
}

// GetRules returns all rules, active or not.
func (s *RuleStorage) GetRules(ctx context.Context) ([]core.CorrelationRule, error) {
	rows, err := s.sqlite.ReadDB.QueryContext(ctx,
		`SELECT `+ruleColumns+` FROM correlation_rules ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()
	return scanRules(rows)
}

// GetRule retrieves one rule by id.
func (s *RuleStorage) GetRule(ctx context.Context, id string) (*core.CorrelationRule, error) {
	row := s.sqlite.ReadDB.QueryRowContext(ctx,
		`SELECT `+ruleColumns+` FROM correlation_rules WHERE id = ?`, id)
	r, err := scanRule(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRuleNotFound
		}
		return nil, fmt.Errorf("failed to scan rule: %w", err)
	}
	return r, nil
}

// CreateRule inserts a new correlation rule.
func (s *RuleStorage) CreateRule(ctx context.Context, r *core.CorrelationRule) error {
	_, err := s.sqlite.WriteDB.ExecContext(ctx, `
		INSERT INTO correlation_rules
			(id, name, rule_type, threshold_count, time_window_minutes, threat_type,
			 min_severity, creates_incident, incident_severity, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Name, string(r.RuleType), r.ThresholdCount, r.TimeWindowMinutes,
		r.ThreatType, r.MinSeverity, boolToInt(r.CreatesIncident),
		string(r.IncidentSeverity), boolToInt(r.Active), r.CreatedAt.UTC())
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateRule
		}
		return fmt.Errorf("failed to insert rule: %w", err)
	}
	return nil
}

// UpdateRule replaces an existing rule's definition.
func (s *RuleStorage) UpdateRule(ctx context.Context, id string, r *core.CorrelationRule) error {
	res, err := s.sqlite.WriteDB.ExecContext(ctx, `
		UPDATE correlation_rules SET
			name = ?, rule_type = ?, threshold_count = ?, time_window_minutes = ?,
			threat_type = ?, min_severity = ?, creates_incident = ?,
			incident_severity = ?, active = ?
		WHERE id = ?`,
		r.Name, string(r.RuleType), r.ThresholdCount, r.TimeWindowMinutes,
		r.ThreatType, r.MinSeverity, boolToInt(r.CreatesIncident),
		string(r.IncidentSeverity), boolToInt(r.Active), id)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// DeleteRule removes a rule.
func (s *RuleStorage) DeleteRule(ctx context.Context, id string) error {
	res, err := s.sqlite.WriteDB.ExecContext(ctx,
		`DELETE FROM correlation_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRuleNotFound
	}
	return nil
}

func scanRule(scan func(...interface{}) error) (*core.CorrelationRule, error) {
	var r core.CorrelationRule
	var ruleType, incidentSeverity string
	var createsIncident, active int
	err := scan(&r.ID, &r.Name, &ruleType, &r.ThresholdCount, &r.TimeWindowMinutes,
		&r.ThreatType, &r.MinSeverity, &createsIncident, &incidentSeverity,
		&active, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	r.RuleType = core.RuleType(ruleType)
	r.IncidentSeverity = core.IncidentSeverity(incidentSeverity)
	r.CreatesIncident = createsIncident != 0
	r.Active = active != 0
	return &r, nil
}

func scanRules(rows *sql.Rows) ([]core.CorrelationRule, error) {
	rules := make([]core.CorrelationRule, 0)
	for rows.Next() {
		r, err := scanRule(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, *r)
	}
	return rules, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
