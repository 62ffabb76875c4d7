// Package storage implements persistence for the BlackWolf backend. SQLite
// is the default store for every entity; a ClickHouse backend is available
// for the threat event stream on high-volume deployments.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLite holds the database connections. WAL mode allows many concurrent
// readers alongside a single writer, so reads and writes get separate pools.
type SQLite struct {
	WriteDB *sql.DB // single-writer pool (MaxOpenConns=1)
	ReadDB  *sql.DB // concurrent read pool
	Path    string
	Logger  *zap.SugaredLogger
}

func configureConnection(db *sql.DB, dbPath string) error {
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to query journal mode: %w", err)
	}
	// In-memory databases report "memory" instead of "wal".
	if dbPath != ":memory:" && journalMode != "wal" {
		return fmt.Errorf("WAL mode not enabled (got %q)", journalMode)
	}
	return nil
}

// NewSQLite opens the database, configures both pools and creates the schema.
func NewSQLite(dbPath string, logger *zap.SugaredLogger) (*SQLite, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" && dbPath != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// In-memory databases need shared cache so both pools see one database.
	actualPath := dbPath
	if dbPath == ":memory:" {
		actualPath = "file::memory:?cache=shared"
	}

	writeDB, err := sql.Open("sqlite", actualPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open write pool: %w", err)
	}
	if err := configureConnection(writeDB, dbPath); err != nil {
		_ = writeDB.Close()
		return nil, fmt.Errorf("failed to configure write pool: %w", err)
	}
	writeDB.SetMaxOpenConns(1)
	writeDB.SetMaxIdleConns(1)
	writeDB.SetConnMaxLifetime(0)

	readDB, err := sql.Open("sqlite", actualPath)
	if err != nil {
		_ = writeDB.Close()
		return nil, fmt.Errorf("failed to open read pool: %w", err)
	}
	if err := configureConnection(readDB, dbPath); err != nil {
		_ = writeDB.Close()
		_ = readDB.Close()
		return nil, fmt.Errorf("failed to configure read pool: %w", err)
	}
	if _, err := readDB.Exec("PRAGMA query_only=ON"); err != nil {
		_ = writeDB.Close()
		_ = readDB.Close()
		return nil, fmt.Errorf("failed to enable query_only on read pool: %w", err)
	}
	readDB.SetMaxOpenConns(10)
	readDB.SetMaxIdleConns(5)
	readDB.SetConnMaxLifetime(5 * time.Minute)

	s := &SQLite{
		WriteDB: writeDB,
		ReadDB:  readDB,
		Path:    dbPath,
		Logger:  logger,
	}

	if err := s.createTables(); err != nil {
		_ = writeDB.Close()
		_ = readDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Infof("SQLite database initialized at %s", dbPath)
	return s, nil
}

// WithTransaction runs fn inside a transaction on the write pool, rolling
// back on error or panic. Used for entity groups that must change together,
// e.g. an incident update plus its timeline append.
func (s *SQLite) WithTransaction(fn func(*sql.Tx) error) error {
	tx, err := s.WriteDB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("failed to rollback transaction (original error: %w, rollback error: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *SQLite) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tenants (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		api_key TEXT NOT NULL UNIQUE,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sensors (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL REFERENCES tenants(id),
		status TEXT NOT NULL DEFAULT 'online',
		last_seen TIMESTAMP NOT NULL,
		packets_processed INTEGER NOT NULL DEFAULT 0,
		threats_detected INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_sensors_tenant ON sensors(tenant_id);

	CREATE TABLE IF NOT EXISTS threat_events (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		sensor_id TEXT NOT NULL,
		threat_type TEXT NOT NULL,
		severity INTEGER NOT NULL CHECK(severity >= 1 AND severity <= 10),
		src_ip TEXT NOT NULL,
		dst_ip TEXT NOT NULL DEFAULT '',
		dst_port INTEGER NOT NULL DEFAULT 0,
		timestamp TIMESTAMP NOT NULL,
		status TEXT NOT NULL DEFAULT 'detected'
			CHECK(status IN ('detected','investigating','resolved','false_positive')),
		description TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_events_tenant_ts ON threat_events(tenant_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_events_tenant_src ON threat_events(tenant_id, src_ip);
	CREATE INDEX IF NOT EXISTS idx_events_tenant_type ON threat_events(tenant_id, threat_type);

	CREATE TABLE IF NOT EXISTS correlation_rules (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		rule_type TEXT NOT NULL,
		threshold_count INTEGER NOT NULL DEFAULT 1,
		time_window_minutes INTEGER NOT NULL DEFAULT 60,
		threat_type TEXT NOT NULL DEFAULT '',
		min_severity INTEGER NOT NULL DEFAULT 0,
		creates_incident INTEGER NOT NULL DEFAULT 0,
		incident_severity TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_rules_active ON correlation_rules(active);

	CREATE TABLE IF NOT EXISTS incidents (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		severity TEXT NOT NULL CHECK(severity IN ('low','medium','high','critical')),
		status TEXT NOT NULL DEFAULT 'open'
			CHECK(status IN ('open','investigating','resolved','closed')),
		assigned_to TEXT NOT NULL DEFAULT '',
		source_threat_id TEXT NOT NULL DEFAULT '',
		sla_deadline TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		resolved_at TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_incidents_tenant ON incidents(tenant_id);

	CREATE TABLE IF NOT EXISTS incident_timeline (
		id TEXT PRIMARY KEY,
		incident_id TEXT NOT NULL REFERENCES incidents(id),
		action TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		performed_by TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_timeline_incident ON incident_timeline(incident_id, created_at);

	CREATE TABLE IF NOT EXISTS alert_configs (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		alert_type TEXT NOT NULL CHECK(alert_type IN ('email','slack','webhook')),
		destination TEXT NOT NULL,
		min_severity INTEGER NOT NULL DEFAULT 7,
		active INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_alert_configs_tenant ON alert_configs(tenant_id, active);

	CREATE TABLE IF NOT EXISTS alert_history (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		config_id TEXT NOT NULL DEFAULT '',
		threat_event_id TEXT NOT NULL DEFAULT '',
		incident_id TEXT NOT NULL DEFAULT '',
		alert_type TEXT NOT NULL,
		destination TEXT NOT NULL,
		subject TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL CHECK(status IN ('sent','failed')),
		sent_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_alert_history_tenant ON alert_history(tenant_id, sent_at);

	CREATE TABLE IF NOT EXISTS blocked_ips (
		ip TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		blocked_at TIMESTAMP NOT NULL,
		expires_at TIMESTAMP NOT NULL,
		PRIMARY KEY (ip, tenant_id)
	);

	CREATE TABLE IF NOT EXISTS threat_enrichment (
		ip TEXT PRIMARY KEY,
		abuse_score INTEGER NOT NULL DEFAULT 0,
		country_code TEXT NOT NULL DEFAULT '',
		isp TEXT NOT NULL DEFAULT '',
		domain TEXT NOT NULL DEFAULT '',
		is_tor INTEGER NOT NULL DEFAULT 0,
		total_reports INTEGER NOT NULL DEFAULT 0,
		enriched_at TIMESTAMP NOT NULL
	);
	`

	if _, err := s.WriteDB.Exec(schema); err != nil {
		return fmt.Errorf("failed to exec schema: %w", err)
	}
	return nil
}

// Close shuts both connection pools down.
func (s *SQLite) Close() error {
	var firstErr error
	if err := s.ReadDB.Close(); err != nil {
		firstErr = err
	}
	if err := s.WriteDB.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
