package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"blackwolf/config"
	"blackwolf/core"
	"blackwolf/correlate"
	"blackwolf/incident"
	"blackwolf/ingest"
	"blackwolf/storage"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// TenantResolver authenticates admin requests by API key.
type TenantResolver interface {
	GetTenantByAPIKey(ctx context.Context, apiKey string) (*core.Tenant, error)
	ListSensors(ctx context.Context, tenantID string) ([]core.Sensor, error)
}

// RuleAdmin is the correlation rule CRUD surface.
type RuleAdmin interface {
	GetRules(ctx context.Context) ([]core.CorrelationRule, error)
	GetRule(ctx context.Context, id string) (*core.CorrelationRule, error)
	CreateRule(ctx context.Context, r *core.CorrelationRule) error
	UpdateRule(ctx context.Context, id string, r *core.CorrelationRule) error
	DeleteRule(ctx context.Context, id string) error
}

// AlertAdmin is the alert config CRUD and history surface.
type AlertAdmin interface {
	CreateConfig(ctx context.Context, c *core.AlertConfig) error
	GetConfig(ctx context.Context, id, tenantID string) (*core.AlertConfig, error)
	ListConfigs(ctx context.Context, tenantID string) ([]core.AlertConfig, error)
	UpdateConfig(ctx context.Context, c *core.AlertConfig) error
	DeleteConfig(ctx context.Context, id, tenantID string) error
	ListHistory(ctx context.Context, tenantID string, limit int) ([]core.AlertRecord, error)
}

// BlocklistAdmin exposes the containment records.
type BlocklistAdmin interface {
	ListBlockedIPs(ctx context.Context, tenantID string) ([]core.BlockedIP, error)
	Unblock(ctx context.Context, ip, tenantID string) error
}

// EnrichmentReader exposes cached reputation data.
type EnrichmentReader interface {
	EnrichIP(ctx context.Context, ip string) (*core.ThreatEnrichment, error)
}

// API is the HTTP server.
type API struct {
	router         *mux.Router
	server         *http.Server
	pipeline       *ingest.Pipeline
	tenants        TenantResolver
	events         storage.EventStore
	rules          RuleAdmin
	engine         *correlate.Engine
	incidents      *incident.Manager
	alerts         AlertAdmin
	blocklist      BlocklistAdmin
	enricher       EnrichmentReader
	config         *config.Config
	logger         *zap.SugaredLogger
	rateLimiters   map[string]*rateLimiterEntry
	rateLimitersMu sync.Mutex
	stopCh         chan struct{}
	stopOnce       sync.Once
}

// NewAPI creates the API server and registers all routes.
func NewAPI(pipeline *ingest.Pipeline, tenants TenantResolver, events storage.EventStore, rules RuleAdmin, engine *correlate.Engine, incidents *incident.Manager, alerts AlertAdmin, blocklist BlocklistAdmin, enricher EnrichmentReader, cfg *config.Config, logger *zap.SugaredLogger) *API {
	a := &API{
		router:       mux.NewRouter(),
		pipeline:     pipeline,
		tenants:      tenants,
		events:       events,
		rules:        rules,
		engine:       engine,
		incidents:    incidents,
		alerts:       alerts,
		blocklist:    blocklist,
		enricher:     enricher,
		config:       cfg,
		logger:       logger,
		rateLimiters: make(map[string]*rateLimiterEntry),
		stopCh:       make(chan struct{}),
	}
	a.setupRoutes()
	go a.cleanupRateLimiters()
	return a
}

func (a *API) setupRoutes() {
	a.router.Use(a.corsMiddleware)
	a.router.Use(a.rateLimitMiddleware)

	// Ingestion authenticates inside the body, not via header.
	a.router.HandleFunc("/api/upload", a.handleUpload).Methods("POST")

	a.router.HandleFunc("/health", a.healthCheck).Methods("GET")
	a.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	admin := a.router.PathPrefix("/api").Subrouter()
	admin.Use(a.tenantAuthMiddleware)

	admin.HandleFunc("/threats", a.listThreats).Methods("GET")
	admin.HandleFunc("/threats/{id}", a.getThreat).Methods("GET")
	admin.HandleFunc("/threats/{id}/status", a.updateThreatStatus).Methods("PUT")
	admin.HandleFunc("/threats/enrichment/{ip}", a.getEnrichment).Methods("GET")

	admin.HandleFunc("/rules", a.listRules).Methods("GET")
	admin.HandleFunc("/rules", a.createRule).Methods("POST")
	admin.HandleFunc("/rules/{id}", a.getRule).Methods("GET")
	admin.HandleFunc("/rules/{id}", a.updateRule).Methods("PUT")
	admin.HandleFunc("/rules/{id}", a.deleteRule).Methods("DELETE")

	admin.HandleFunc("/incidents", a.listIncidents).Methods("GET")
	admin.HandleFunc("/incidents", a.createIncident).Methods("POST")
	admin.HandleFunc("/incidents/{id}", a.getIncident).Methods("GET")
	admin.HandleFunc("/incidents/{id}", a.updateIncident).Methods("PUT")
	admin.HandleFunc("/incidents/{id}/timeline", a.addTimelineEntry).Methods("POST")

	admin.HandleFunc("/alert-configs", a.listAlertConfigs).Methods("GET")
	admin.HandleFunc("/alert-configs", a.createAlertConfig).Methods("POST")
	admin.HandleFunc("/alert-configs/{id}", a.getAlertConfig).Methods("GET")
	admin.HandleFunc("/alert-configs/{id}", a.updateAlertConfig).Methods("PUT")
	admin.HandleFunc("/alert-configs/{id}", a.deleteAlertConfig).Methods("DELETE")
	admin.HandleFunc("/alert-history", a.listAlertHistory).Methods("GET")

	admin.HandleFunc("/blocked-ips", a.listBlockedIPs).Methods("GET")
	admin.HandleFunc("/blocked-ips/{ip}", a.unblockIP).Methods("DELETE")

	admin.HandleFunc("/sensors", a.listSensors).Methods("GET")
}

// Start runs the server, with TLS when configured.
func (a *API) Start() error {
	addr := fmt.Sprintf(":%d", a.config.API.Port)
	a.server = &http.Server{
		Addr:              addr,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.logger.Infof("API server listening on %s", addr)
	if a.config.API.TLS {
		return a.server.ListenAndServeTLS(a.config.API.CertFile, a.config.API.KeyFile)
	}
	return a.server.ListenAndServe()
}

// Stop shuts the server down gracefully.
func (a *API) Stop(ctx context.Context) error {
	a.stopOnce.Do(func() { close(a.stopCh) })
	if a.server != nil {
		return a.server.Shutdown(ctx)
	}
	return nil
}

func (a *API) healthCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
