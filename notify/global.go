package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"blackwolf/core"

	"go.uber.org/zap"
)

// GlobalSlack mirrors every dispatched threat and incident to one
// operator-owned Slack webhook, independent of tenant alert configs. Used by
// the SOC team to watch the whole fleet in one channel.
type GlobalSlack struct {
	webhookURL string
	channel    *SlackChannel
	logger     *zap.SugaredLogger
}

// NewGlobalSlack creates the operator feed. Returns nil when no webhook is
// configured, which callers treat as disabled.
func NewGlobalSlack(webhookURL string, client *http.Client, logger *zap.SugaredLogger) *GlobalSlack {
	if webhookURL == "" {
		return nil
	}
	return &GlobalSlack{
		webhookURL: webhookURL,
		channel:    NewSlackChannel(client, logger),
		logger:     logger,
	}
}

// NotifyThreat posts a compact threat line with a severity bar.
func (g *GlobalSlack) NotifyThreat(ctx context.Context, event *core.ThreatEvent) {
	msg := &Message{
		Subject: fmt.Sprintf("[%s] %s %d/10 %s from %s",
			event.TenantID, severityBar(event.Severity), event.Severity,
			event.ThreatType, event.SrcIP),
	}
	if err := g.channel.Send(ctx, g.webhookURL, msg); err != nil {
		g.logger.Warnw("Global Slack threat notification failed", "error", err)
	}
}

// NotifyIncident posts the incident with a colour marker per severity.
func (g *GlobalSlack) NotifyIncident(ctx context.Context, incident *core.Incident) {
	msg := &Message{
		Subject: fmt.Sprintf("%s [%s] Incident: %s (severity %s, SLA %s)",
			severityEmoji(incident.Severity), incident.TenantID, incident.Title,
			incident.Severity, incident.SLADeadline.Format("2006-01-02 15:04 MST")),
	}
	if err := g.channel.Send(ctx, g.webhookURL, msg); err != nil {
		g.logger.Warnw("Global Slack incident notification failed", "error", err)
	}
}

// severityBar renders a 10-step bar, filled to the event's severity.
func severityBar(severity int) string {
	if severity < 0 {
		severity = 0
	}
	if severity > 10 {
		severity = 10
	}
	return strings.Repeat("█", severity) + strings.Repeat("░", 10-severity)
}

func severityEmoji(s core.IncidentSeverity) string {
	switch s {
	case core.SeverityCritical:
		return "🔴"
	case core.SeverityHigh:
		return "🟠"
	case core.SeverityMedium:
		return "🟡"
	default:
		return "🟢"
	}
}
