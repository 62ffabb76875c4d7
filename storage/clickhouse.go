package storage

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"time"

	"blackwolf/config"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

var validDatabaseNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// ClickHouse holds the ClickHouse connection for the high-volume event
// backend. Only the threat event stream lives here; every other entity stays
// in SQLite regardless of backend choice.
type ClickHouse struct {
	Conn   driver.Conn
	Logger *zap.SugaredLogger
}

// NewClickHouse connects, verifies the server and ensures the database exists.
func NewClickHouse(cfg *config.Config, logger *zap.SugaredLogger) (*ClickHouse, error) {
	ch := cfg.Storage.ClickHouse
	options := &clickhouse.Options{
		Addr: []string{ch.Addr},
		Auth: clickhouse.Auth{
			Database: ch.Database,
			Username: ch.Username,
			Password: ch.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 10 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		DialContext: func(ctx context.Context, addr string) (net.Conn, error) {
			d := net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
			return d.DialContext(ctx, "tcp", addr)
		},
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	if err := ensureDatabase(ctx, conn, ch.Database); err != nil {
		return nil, err
	}

	logger.Infof("Connected to ClickHouse at %s", ch.Addr)
	return &ClickHouse{Conn: conn, Logger: logger}, nil
}

func ensureDatabase(ctx context.Context, conn driver.Conn, database string) error {
	if database == "" || len(database) > 64 || !validDatabaseNameRegex.MatchString(database) {
		return fmt.Errorf("invalid database name %q", database)
	}
	query := fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", database)
	if err := conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	return nil
}

// HealthCheck pings the server.
func (ch *ClickHouse) HealthCheck(ctx context.Context) error {
	return ch.Conn.Ping(ctx)
}

// Close closes the connection.
func (ch *ClickHouse) Close() error {
	return ch.Conn.Close()
}
