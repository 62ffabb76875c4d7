// Package core contains the shared domain model for the BlackWolf SOC
// backend. All persisted entities carry their owning tenant id except
// ThreatEnrichment, which is keyed by IP and tenant-independent.
package core

import "time"

// ThreatStatus represents the lifecycle state of a threat event.
type ThreatStatus string

const (
	ThreatStatusDetected      ThreatStatus = "detected"
	ThreatStatusInvestigating ThreatStatus = "investigating"
	ThreatStatusResolved      ThreatStatus = "resolved"
	ThreatStatusFalsePositive ThreatStatus = "false_positive"
)

// IsValid checks if the threat status is a known value.
func (s ThreatStatus) IsValid() bool {
	switch s {
	case ThreatStatusDetected, ThreatStatusInvestigating, ThreatStatusResolved, ThreatStatusFalsePositive:
		return true
	}
	return false
}

// IncidentStatus represents the lifecycle state of an incident.
type IncidentStatus string

const (
	IncidentStatusOpen          IncidentStatus = "open"
	IncidentStatusInvestigating IncidentStatus = "investigating"
	IncidentStatusResolved      IncidentStatus = "resolved"
	IncidentStatusClosed        IncidentStatus = "closed"
)

// IsValid checks if the incident status is a known value.
func (s IncidentStatus) IsValid() bool {
	switch s {
	case IncidentStatusOpen, IncidentStatusInvestigating, IncidentStatusResolved, IncidentStatusClosed:
		return true
	}
	return false
}

// IsTerminal reports whether the status stamps ResolvedAt on the incident.
func (s IncidentStatus) IsTerminal() bool {
	return s == IncidentStatusResolved || s == IncidentStatusClosed
}

// RuleType identifies which evaluator a correlation rule binds to.
type RuleType string

const (
	RuleSeverityThreshold RuleType = "severity_threshold"
	RuleSameIPSameType    RuleType = "same_ip_same_type"
	RuleSameTypeThreshold RuleType = "same_type_threshold"
	RuleSameIPMultiType   RuleType = "same_ip_multi_type"
)

// AlertType represents the delivery channel of an alert configuration.
type AlertType string

const (
	AlertTypeEmail   AlertType = "email"
	AlertTypeSlack   AlertType = "slack"
	AlertTypeWebhook AlertType = "webhook"
)

// IsValid checks if the alert type is a known channel.
func (t AlertType) IsValid() bool {
	switch t {
	case AlertTypeEmail, AlertTypeSlack, AlertTypeWebhook:
		return true
	}
	return false
}

// AlertOutcome is the recorded result of one delivery attempt.
type AlertOutcome string

const (
	AlertOutcomeSent   AlertOutcome = "sent"
	AlertOutcomeFailed AlertOutcome = "failed"
)

// Tenant is an isolated customer account. Sensors authenticate uploads with
// the tenant's API key.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	APIKey    string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Sensor is an external agent uploading detection batches. Counters are
// cumulative over the sensor's lifetime.
type Sensor struct {
	ID               string    `json:"id"`
	TenantID         string    `json:"tenant_id"`
	Status           string    `json:"status"`
	LastSeen         time.Time `json:"last_seen"`
	PacketsProcessed int64     `json:"packets_processed"`
	ThreatsDetected  int64     `json:"threats_detected"`
}

// ThreatEvent is one detection reported by a sensor. Immutable after
// ingestion except for Status; never deleted.
type ThreatEvent struct {
	ID          string       `json:"id"`
	TenantID    string       `json:"tenant_id"`
	SensorID    string       `json:"sensor_id"`
	ThreatType  string       `json:"threat_type"`
	Severity    int          `json:"severity"`
	SrcIP       string       `json:"src_ip"`
	DstIP       string       `json:"dst_ip"`
	DstPort     int          `json:"dst_port"`
	Timestamp   time.Time    `json:"timestamp"`
	Status      ThreatStatus `json:"status"`
	Description string       `json:"description"`
}

// CorrelationRule is a declarative condition over recent events. Rules are
// global across tenants; each evaluation counts only the triggering tenant's
// events inside the rule's trailing window.
type CorrelationRule struct {
	ID                string           `json:"id"`
	Name              string           `json:"name"`
	RuleType          RuleType         `json:"rule_type"`
	ThresholdCount    int              `json:"threshold_count"`
	TimeWindowMinutes int              `json:"time_window_minutes"`
	ThreatType        string           `json:"threat_type,omitempty"`
	MinSeverity       int              `json:"min_severity"`
	CreatesIncident   bool             `json:"creates_incident"`
	IncidentSeverity  IncidentSeverity `json:"incident_severity,omitempty"`
	Active            bool             `json:"active"`
	CreatedAt         time.Time        `json:"created_at"`
}

// Window returns the rule's trailing time window.
func (r *CorrelationRule) Window() time.Duration {
	return time.Duration(r.TimeWindowMinutes) * time.Minute
}

// Incident is an escalated security event with an SLA deadline fixed at
// creation from its severity.
type Incident struct {
	ID             string           `json:"id"`
	TenantID       string           `json:"tenant_id"`
	Title          string           `json:"title"`
	Description    string           `json:"description"`
	Severity       IncidentSeverity `json:"severity"`
	Status         IncidentStatus   `json:"status"`
	AssignedTo     string           `json:"assigned_to,omitempty"`
	SourceThreatID string           `json:"source_threat_id,omitempty"`
	SLADeadline    time.Time        `json:"sla_deadline"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	ResolvedAt     *time.Time       `json:"resolved_at,omitempty"`
}

// TimelineEntry is one append-only audit record on an incident. Entries are
// never edited or deleted.
type TimelineEntry struct {
	ID          string    `json:"id"`
	IncidentID  string    `json:"incident_id"`
	Action      string    `json:"action"`
	Description string    `json:"description"`
	PerformedBy string    `json:"performed_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// AlertConfig is one per-tenant delivery channel with a severity floor.
type AlertConfig struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	AlertType   AlertType `json:"alert_type"`
	Destination string    `json:"destination"`
	MinSeverity int       `json:"min_severity"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// AlertRecord is the append-only delivery outcome of one dispatch attempt.
type AlertRecord struct {
	ID            string       `json:"id"`
	TenantID      string       `json:"tenant_id"`
	ConfigID      string       `json:"config_id"`
	ThreatEventID string       `json:"threat_event_id,omitempty"`
	IncidentID    string       `json:"incident_id,omitempty"`
	AlertType     AlertType    `json:"alert_type"`
	Destination   string       `json:"destination"`
	Subject       string       `json:"subject"`
	Message       string       `json:"message"`
	Status        AlertOutcome `json:"status"`
	SentAt        time.Time    `json:"sent_at"`
}

// BlockedIP is an active containment record keyed by (ip, tenant). A row
// blocks as long as it exists; ExpiresAt is advisory until the retention
// sweep or an explicit unblock removes the row.
type BlockedIP struct {
	IP        string    `json:"ip"`
	TenantID  string    `json:"tenant_id"`
	Reason    string    `json:"reason"`
	BlockedAt time.Time `json:"blocked_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ThreatEnrichment is cached third-party reputation data for one IP.
// Tenant-independent: IP reputation does not vary per customer.
type ThreatEnrichment struct {
	IP           string    `json:"ip"`
	AbuseScore   int       `json:"abuse_score"`
	CountryCode  string    `json:"country_code"`
	ISP          string    `json:"isp"`
	Domain       string    `json:"domain,omitempty"`
	IsTor        bool      `json:"is_tor"`
	TotalReports int       `json:"total_reports"`
	EnrichedAt   time.Time `json:"enriched_at"`
}

// Fresh reports whether the record is inside the enrichment cache window.
func (e *ThreatEnrichment) Fresh(now time.Time, ttl time.Duration) bool {
	return e.EnrichedAt.After(now.Add(-ttl))
}
