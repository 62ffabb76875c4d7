package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"blackwolf/core"
	"blackwolf/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ConfigSource supplies a tenant's enabled alert configurations.
type ConfigSource interface {
	ListActiveConfigs(ctx context.Context, tenantID string) ([]core.AlertConfig, error)
}

// RecordSink receives the outcome of every delivery attempt.
type RecordSink interface {
	InsertRecord(ctx context.Context, r *core.AlertRecord) error
}

// Dispatcher fans alerts out to a tenant's configured channels. Channels are
// independent: one failing delivery never suppresses the others, and every
// attempt leaves exactly one history record with its outcome.
type Dispatcher struct {
	configs  ConfigSource
	history  RecordSink
	channels map[core.AlertType]Channel
	global   *GlobalSlack
	logger   *zap.SugaredLogger
	now      func() time.Time
}

// NewDispatcher creates an alert dispatcher. global may be nil when no
// operator-wide Slack feed is configured.
func NewDispatcher(configs ConfigSource, history RecordSink, channels map[core.AlertType]Channel, global *GlobalSlack, logger *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{
		configs:  configs,
		history:  history,
		channels: channels,
		global:   global,
		logger:   logger,
		now:      time.Now,
	}
}

// FireForThreat dispatches a single high-severity threat event to every
// active config whose severity floor it meets. Failures are recorded and
// logged, never returned; alerting is strictly best-effort.
func (d *Dispatcher) FireForThreat(ctx context.Context, event *core.ThreatEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		d.logger.Errorw("Failed to marshal threat event for alerting", "event_id", event.ID, "error", err)
		return
	}
	msg := &Message{
		Subject: "Security Alert: " + event.ThreatType,
		Body: fmt.Sprintf("Threat detected by sensor %s\nType: %s\nSeverity: %d/10\nSource IP: %s\nTarget: %s:%d\n%s",
			event.SensorID, event.ThreatType, event.Severity, event.SrcIP,
			event.DstIP, event.DstPort, event.Description),
		Payload: payload,
	}

	d.dispatch(ctx, event.TenantID, event.Severity, msg, func(r *core.AlertRecord) {
		r.ThreatEventID = event.ID
	})

	if d.global != nil {
		d.global.NotifyThreat(ctx, event)
	}
}

// FireForIncident dispatches a newly created incident. The incident's
// severity label maps to a numeric score for the per-config severity floor.
func (d *Dispatcher) FireForIncident(ctx context.Context, incident *core.Incident) {
	payload, err := json.Marshal(incident)
	if err != nil {
		d.logger.Errorw("Failed to marshal incident for alerting", "incident_id", incident.ID, "error", err)
		return
	}
	msg := &Message{
		Subject: "New Incident: " + incident.Title,
		Body: fmt.Sprintf("Severity: %s\nStatus: %s\nSLA deadline: %s\n\n%s",
			incident.Severity, incident.Status,
			incident.SLADeadline.Format(time.RFC3339), incident.Description),
		Payload: payload,
	}

	d.dispatch(ctx, incident.TenantID, incident.Severity.Numeric(), msg, func(r *core.AlertRecord) {
		r.IncidentID = incident.ID
	})

	if d.global != nil {
		d.global.NotifyIncident(ctx, incident)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, tenantID string, severity int, msg *Message, tag func(*core.AlertRecord)) {
	configs, err := d.configs.ListActiveConfigs(ctx, tenantID)
	if err != nil {
		d.logger.Errorw("Failed to load alert configs", "tenant_id", tenantID, "error", err)
		return
	}

	for i := range configs {
		cfg := &configs[i]
		if severity < cfg.MinSeverity {
			continue
		}

		channel, ok := d.channels[cfg.AlertType]
		if !ok {
			channel = noopChannel{}
		}

		sendErr := channel.Send(ctx, cfg.Destination, msg)
		outcome := core.AlertOutcomeSent
		if sendErr != nil {
			outcome = core.AlertOutcomeFailed
			d.logger.Warnw("Alert delivery failed",
				"tenant_id", tenantID, "config_id", cfg.ID, "channel", cfg.AlertType, "error", sendErr)
		}
		metrics.AlertsDispatched.WithLabelValues(string(cfg.AlertType), string(outcome)).Inc()

		record := &core.AlertRecord{
			ID:          uuid.New().String(),
			TenantID:    tenantID,
			ConfigID:    cfg.ID,
			AlertType:   cfg.AlertType,
			Destination: cfg.Destination,
			Subject:     msg.Subject,
			Message:     msg.Body,
			Status:      outcome,
			SentAt:      d.now().UTC(),
		}
		tag(record)
		if err := d.history.InsertRecord(ctx, record); err != nil {
			d.logger.Errorw("Failed to record alert history",
				"tenant_id", tenantID, "config_id", cfg.ID, "error", err)
		}
	}
}
