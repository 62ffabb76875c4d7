// Package ingest implements the sensor upload pipeline: authenticate, store
// each threat, then run correlation, alerting, enrichment and auto-blocking
// per event. Downstream stages are best-effort; once an event is stored the
// upload cannot fail because of them.
package ingest

import (
	"context"
	"fmt"
	"time"

	"blackwolf/core"
	"blackwolf/correlate"
	"blackwolf/metrics"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Upload is one sensor batch on the wire.
type Upload struct {
	CompanyID        string       `json:"company_id" validate:"required"`
	SensorID         string       `json:"sensor_id" validate:"required"`
	APIKey           string       `json:"api_key" validate:"required"`
	PacketsProcessed int64        `json:"packets_processed" validate:"min=0"`
	Threats          []ThreatInfo `json:"threats" validate:"dive"`
}

// ThreatInfo is one detection inside an upload.
type ThreatInfo struct {
	ThreatType  string `json:"threat_type" validate:"required"`
	Severity    int    `json:"severity" validate:"required,min=1,max=10"`
	SrcIP       string `json:"src_ip" validate:"required,ip"`
	DstIP       string `json:"dst_ip" validate:"omitempty,ip"`
	DstPort     int    `json:"dst_port" validate:"min=0,max=65535"`
	Description string `json:"description"`
}

// Command is one action the sensor should apply locally.
type Command struct {
	Type   string `json:"type"`
	IP     string `json:"ip"`
	Reason string `json:"reason"`
}

// Result is the upload response: counters plus the tenant's full current
// block list rendered as commands.
type Result struct {
	Status           string    `json:"status"`
	ProcessedPackets int64     `json:"processed_packets"`
	ProcessedThreats int       `json:"processed_threats"`
	Commands         []Command `json:"commands"`
}

// TenantAuth resolves upload credentials and records sensor check-ins.
type TenantAuth interface {
	GetTenantByAPIKey(ctx context.Context, apiKey string) (*core.Tenant, error)
	UpsertSensor(ctx context.Context, sensorID, tenantID string, packets, threats int64, seenAt time.Time) error
}

// EventWriter persists ingested events.
type EventWriter interface {
	InsertEvent(ctx context.Context, e *core.ThreatEvent) error
}

// Correlator runs the rule engine for one stored event.
type Correlator interface {
	Evaluate(ctx context.Context, event *core.ThreatEvent) ([]correlate.Match, error)
}

// ThreatAlerter fans a stored event out to the tenant's alert channels.
type ThreatAlerter interface {
	FireForThreat(ctx context.Context, event *core.ThreatEvent)
}

// Enricher resolves reputation for the event's source IP.
type Enricher interface {
	EnrichIP(ctx context.Context, ip string) (*core.ThreatEnrichment, error)
}

// Responder applies automatic containment and reports active blocks.
type Responder interface {
	HandleThreat(ctx context.Context, event *core.ThreatEvent) (bool, error)
	ActiveBlocks(ctx context.Context, tenantID string) ([]core.BlockedIP, error)
}

// Pipeline wires the ingestion stages together.
type Pipeline struct {
	tenants   TenantAuth
	events    EventWriter
	engine    Correlator
	alerter   ThreatAlerter
	enricher  Enricher
	responder Responder
	validate  *validator.Validate
	logger    *zap.SugaredLogger
	now       func() time.Time
}

// NewPipeline creates the ingestion pipeline.
func NewPipeline(tenants TenantAuth, events EventWriter, engine Correlator, alerter ThreatAlerter, enricher Enricher, responder Responder, logger *zap.SugaredLogger) *Pipeline {
	return &Pipeline{
		tenants:   tenants,
		events:    events,
		engine:    engine,
		alerter:   alerter,
		enricher:  enricher,
		responder: responder,
		validate:  validator.New(),
		logger:    logger,
		now:       time.Now,
	}
}

// ProcessUpload handles one sensor batch. The API key must resolve to the
// tenant the upload claims; a valid key for a different tenant is denied.
// Threats are processed sequentially in upload order so correlation windows
// see earlier threats from the same batch.
func (p *Pipeline) ProcessUpload(ctx context.Context, upload *Upload) (*Result, error) {
	start := p.now()
	defer func() {
		metrics.UploadProcessingDuration.Observe(time.Since(start).Seconds())
	}()

	if err := p.validate.Struct(upload); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidRequest, err)
	}

	tenant, err := p.tenants.GetTenantByAPIKey(ctx, upload.APIKey)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid API key", core.ErrAccessDenied)
	}
	if tenant.ID != upload.CompanyID {
		return nil, fmt.Errorf("%w: API key does not belong to company %s", core.ErrAccessDenied, upload.CompanyID)
	}

	now := p.now().UTC()
	if err := p.tenants.UpsertSensor(ctx, upload.SensorID, tenant.ID, upload.PacketsProcessed, int64(len(upload.Threats)), now); err != nil {
		p.logger.Errorw("Failed to record sensor check-in",
			"sensor_id", upload.SensorID, "tenant_id", tenant.ID, "error", err)
	}

	processed := 0
	for i := range upload.Threats {
		info := &upload.Threats[i]
		event := &core.ThreatEvent{
			ID:          uuid.New().String(),
			TenantID:    tenant.ID,
			SensorID:    upload.SensorID,
			ThreatType:  info.ThreatType,
			Severity:    info.Severity,
			SrcIP:       info.SrcIP,
			DstIP:       info.DstIP,
			DstPort:     info.DstPort,
			Timestamp:   p.now().UTC(),
			Status:      core.ThreatStatusDetected,
			Description: info.Description,
		}

		if err := p.events.InsertEvent(ctx, event); err != nil {
			p.logger.Errorw("Failed to store threat event, skipping downstream stages",
				"tenant_id", tenant.ID, "threat_type", info.ThreatType, "error", err)
			continue
		}
		processed++
		metrics.EventsIngested.WithLabelValues(tenant.ID).Inc()

		p.guard(event, "correlation", func() error {
			_, err := p.engine.Evaluate(ctx, event)
			return err
		})
		p.guard(event, "alert dispatch", func() error {
			p.alerter.FireForThreat(ctx, event)
			return nil
		})
		p.guard(event, "enrichment", func() error {
			_, err := p.enricher.EnrichIP(ctx, event.SrcIP)
			return err
		})
		p.guard(event, "auto-block", func() error {
			_, err := p.responder.HandleThreat(ctx, event)
			return err
		})
	}

	commands := p.buildCommands(ctx, tenant.ID)
	return &Result{
		Status:           "ok",
		ProcessedPackets: upload.PacketsProcessed,
		ProcessedThreats: processed,
		Commands:         commands,
	}, nil
}

// guard runs one downstream stage, absorbing its error. The event is already
// durable at this point; nothing after the insert may fail the upload.
func (p *Pipeline) guard(event *core.ThreatEvent, stage string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorw("Panic in ingestion stage",
				"stage", stage, "event_id", event.ID, "panic", r)
		}
	}()
	if err := fn(); err != nil {
		p.logger.Errorw("Ingestion stage failed",
			"stage", stage, "event_id", event.ID, "tenant_id", event.TenantID, "error", err)
	}
}

func (p *Pipeline) buildCommands(ctx context.Context, tenantID string) []Command {
	blocks, err := p.responder.ActiveBlocks(ctx, tenantID)
	if err != nil {
		p.logger.Errorw("Failed to load block list for commands", "tenant_id", tenantID, "error", err)
		return []Command{}
	}
	commands := make([]Command, 0, len(blocks))
	for _, b := range blocks {
		commands = append(commands, Command{Type: "block_ip", IP: b.IP, Reason: b.Reason})
	}
	return commands
}
