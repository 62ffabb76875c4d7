// Package bootstrap assembles the BlackWolf backend: logger, storage,
// pipeline stages, HTTP server and the retention sweep.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"blackwolf/api"
	"blackwolf/config"
	"blackwolf/core"
	"blackwolf/correlate"
	"blackwolf/incident"
	"blackwolf/ingest"
	"blackwolf/notify"
	"blackwolf/response"
	"blackwolf/storage"
	"blackwolf/threat"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// App holds every component of the running backend.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	Sugar  *zap.SugaredLogger

	SQLite     *storage.SQLite
	ClickHouse *storage.ClickHouse
	Events     storage.EventStore

	Tenants    *storage.TenantStorage
	Rules      *storage.RuleStorage
	Incidents  *storage.IncidentStorage
	Alerts     *storage.AlertStorage
	Blocklist  *storage.BlocklistStorage
	Enrichment *storage.EnrichmentStorage

	Engine     *correlate.Engine
	Manager    *incident.Manager
	Dispatcher *notify.Dispatcher
	Enricher   *threat.Enricher
	Blocker    *response.AutoBlocker
	Pipeline   *ingest.Pipeline
	APIServer  *api.API

	shutdownCh chan struct{}
}

// InitLogger builds the zap logger from the logging config.
func InitLogger(cfg *config.Config) (*zap.Logger, *zap.SugaredLogger, error) {
	level, err := zapcore.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
	}

	var encoderConfig zapcore.EncoderConfig
	var encoder zapcore.Encoder
	if cfg.Logging.Development {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	zapCore := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level)
	logger := zap.New(zapCore, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return logger, logger.Sugar(), nil
}

// NewApp loads configuration and wires every component together.
func NewApp(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, sugar, err := InitLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	sugar.Info("BlackWolf SOC backend starting...")

	app := &App{
		Config:     cfg,
		Logger:     logger,
		Sugar:      sugar,
		shutdownCh: make(chan struct{}),
	}

	app.SQLite, err = storage.NewSQLite(cfg.DataPaths.SQLitePath, sugar)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	app.Tenants = storage.NewTenantStorage(app.SQLite, sugar)
	app.Rules = storage.NewRuleStorage(app.SQLite, sugar)
	app.Incidents = storage.NewIncidentStorage(app.SQLite, sugar)
	app.Alerts = storage.NewAlertStorage(app.SQLite, sugar)
	app.Blocklist = storage.NewBlocklistStorage(app.SQLite, sugar)
	app.Enrichment = storage.NewEnrichmentStorage(app.SQLite, sugar)

	switch cfg.Storage.EventsBackend {
	case "clickhouse":
		app.ClickHouse, err = storage.NewClickHouse(cfg, sugar)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
		}
		app.Events, err = storage.NewClickHouseEventStorage(ctx, app.ClickHouse, sugar)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ClickHouse events: %w", err)
		}
	default:
		app.Events = storage.NewEventStorage(app.SQLite, sugar)
	}

	httpClient := notify.NewHTTPClient()

	var global *notify.GlobalSlack
	if cfg.Alerts.GlobalSlackEnabled {
		global = notify.NewGlobalSlack(cfg.Alerts.GlobalSlackWebhook, httpClient, sugar)
	}
	channels := map[core.AlertType]notify.Channel{
		core.AlertTypeEmail: notify.NewEmailChannel(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.Alerts.FromEmail,
		}, sugar),
		core.AlertTypeSlack:   notify.NewSlackChannel(httpClient, sugar),
		core.AlertTypeWebhook: notify.NewWebhookChannel(httpClient, sugar),
	}
	app.Dispatcher = notify.NewDispatcher(app.Alerts, app.Alerts, channels, global, sugar)

	var provider threat.ReputationProvider
	if cfg.ThreatIntel.Enabled {
		provider = threat.NewAbuseIPDBProvider(cfg.ThreatIntel.APIKey, cfg.ThreatIntel.BaseURL, httpClient, sugar)
	}
	app.Enricher = threat.NewEnricher(app.Enrichment, provider, sugar)

	app.Manager = incident.NewManager(app.Incidents, sugar)
	app.Blocker = response.NewAutoBlocker(app.Blocklist, sugar)
	app.Engine = correlate.NewEngine(app.Rules, app.Events, app.Manager, app.Dispatcher, cfg.Engine.RuleCacheTTL, sugar)
	app.Pipeline = ingest.NewPipeline(app.Tenants, app.Events, app.Engine, app.Dispatcher, app.Enricher, app.Blocker, sugar)

	app.APIServer = api.NewAPI(app.Pipeline, app.Tenants, app.Events, app.Rules, app.Engine,
		app.Manager, app.Alerts, app.Blocklist, app.Enricher, cfg, sugar)

	return app, nil
}

// Start launches the HTTP server and the retention sweep.
func (a *App) Start() error {
	go a.retentionSweep()

	go func() {
		if err := a.APIServer.Start(); err != nil && err != http.ErrServerClosed {
			a.Sugar.Fatalf("API server failed: %v", err)
		}
	}()
	return nil
}

// retentionSweep periodically purges expired IP blocks and stale enrichment
// rows. Expired blocks keep blocking until this runs.
func (a *App) retentionSweep() {
	ticker := time.NewTicker(a.Config.Retention.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			now := time.Now().UTC()
			if _, err := a.Blocklist.PurgeExpired(ctx, now); err != nil {
				a.Sugar.Errorw("Failed to purge expired IP blocks", "error", err)
			}
			cutoff := now.AddDate(0, 0, -a.Config.Retention.EnrichmentDays)
			if _, err := a.Enrichment.PurgeStale(ctx, cutoff); err != nil {
				a.Sugar.Errorw("Failed to purge stale enrichment", "error", err)
			}
			cancel()
		case <-a.shutdownCh:
			return
		}
	}
}

// WaitForShutdown blocks until SIGINT or SIGTERM.
func (a *App) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	a.Sugar.Infof("Received signal %s, shutting down", sig)
}

// Shutdown stops the server and closes storage.
func (a *App) Shutdown() {
	close(a.shutdownCh)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := a.APIServer.Stop(ctx); err != nil {
		a.Sugar.Errorw("API server shutdown failed", "error", err)
	}

	if a.ClickHouse != nil {
		if err := a.ClickHouse.Close(); err != nil {
			a.Sugar.Errorw("ClickHouse close failed", "error", err)
		}
	}
	if err := a.SQLite.Close(); err != nil {
		a.Sugar.Errorw("SQLite close failed", "error", err)
	}

	a.Sugar.Info("Shutdown complete")
	_ = a.Logger.Sync()
}
