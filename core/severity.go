package core

import "time"

// IncidentSeverity is the banded severity of an incident.
type IncidentSeverity string

const (
	SeverityLow      IncidentSeverity = "low"
	SeverityMedium   IncidentSeverity = "medium"
	SeverityHigh     IncidentSeverity = "high"
	SeverityCritical IncidentSeverity = "critical"
)

// IsValid checks if the severity is a known band.
func (s IncidentSeverity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Numeric maps a severity band onto the 1-10 threat scale used by alert
// configuration floors: critical=10, high=8, medium=5, low=3.
func (s IncidentSeverity) Numeric() int {
	switch s {
	case SeverityCritical:
		return 10
	case SeverityHigh:
		return 8
	case SeverityMedium:
		return 5
	default:
		return 3
	}
}

// SLA returns how long the response team has before the incident breaches
// its deadline: critical=2h, high=4h, medium=8h, everything else 24h.
func (s IncidentSeverity) SLA() time.Duration {
	switch s {
	case SeverityCritical:
		return 2 * time.Hour
	case SeverityHigh:
		return 4 * time.Hour
	case SeverityMedium:
		return 8 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// SeverityBand maps a numeric threat severity (1-10) to an incident band:
// >=9 critical, >=7 high, >=4 medium, else low.
func SeverityBand(severity int) IncidentSeverity {
	switch {
	case severity >= 9:
		return SeverityCritical
	case severity >= 7:
		return SeverityHigh
	case severity >= 4:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
