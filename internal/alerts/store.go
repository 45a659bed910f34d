// Package alerts persists advisory security signals (injection blocks,
// usage anomalies) to Postgres for out-of-band review. Writes are
// best-effort: the request path logs failures and moves on.
package alerts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/kuwago-ai/datagate/internal/config"
	"github.com/kuwago-ai/datagate/internal/logger"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Alert kinds.
const (
	KindInjection = "injection"
	KindAnomaly   = "anomaly"
	KindRateLimit = "rate_limit"
)

// Alert is one persisted security signal.
type Alert struct {
	ID        int64     `db:"id" json:"id"`
	Kind      string    `db:"kind" json:"kind"`
	Route     string    `db:"route" json:"route"`
	ClientIP  string    `db:"client_ip" json:"client_ip"`
	UserID    string    `db:"user_id" json:"user_id,omitempty"`
	Reason    string    `db:"reason" json:"reason"`
	Detail    string    `db:"detail" json:"detail,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Store writes alerts to Postgres.
type Store struct {
	db     *sqlx.DB
	logger *logger.Logger
}

// NewStore connects to Postgres and ensures the alerts table exists.
func NewStore(cfg config.AlertsConfig, log *logger.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	store := &Store{db: db, logger: log}

	if err := store.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize alert store: %w", err)
	}

	log.Info("Alert store initialized",
		zap.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		zap.Int("max_open_conns", cfg.MaxOpenConns),
	)

	return store, nil
}

// initialize checks the connection and creates the schema
func (s *Store) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS security_alerts (
			id BIGSERIAL PRIMARY KEY,
			kind TEXT NOT NULL,
			route TEXT NOT NULL DEFAULT '',
			client_ip TEXT NOT NULL DEFAULT '',
			user_id TEXT NOT NULL DEFAULT '',
			reason TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_security_alerts_kind_created
			ON security_alerts (kind, created_at DESC);`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("schema creation failed: %w", err)
	}

	return nil
}

// Insert persists one alert.
func (s *Store) Insert(ctx context.Context, alert Alert) error {
	query := `
		INSERT INTO security_alerts (kind, route, client_ip, user_id, reason, detail)
		VALUES ($1, $2, $3, $4, $5, $6)`

	if _, err := s.db.ExecContext(ctx, query,
		alert.Kind, alert.Route, alert.ClientIP, alert.UserID, alert.Reason, alert.Detail); err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}

	return nil
}

// Recent returns the newest alerts, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Alert, error) {
	if limit <= 0 {
		limit = 50
	}

	var alerts []Alert
	query := `
		SELECT id, kind, route, client_ip, user_id, reason, detail, created_at
		FROM security_alerts
		ORDER BY created_at DESC
		LIMIT $1`

	if err := s.db.SelectContext(ctx, &alerts, query, limit); err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}

	return alerts, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// maskDatabaseURL masks credentials in a database URL for logging
func maskDatabaseURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if idx := strings.LastIndex(userPart, ":"); idx > strings.Index(userPart, "//") {
				parts[0] = userPart[:idx] + ":***"
			}
			return strings.Join(parts, "@")
		}
	}
	return url
}
