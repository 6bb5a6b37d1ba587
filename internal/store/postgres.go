package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/socforge/sentinel/internal/model"
)

// PostgresStore persists alerts as incidents. Upsert is idempotent on
// alert_id, so deterministic reruns converge on one incident row.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore opens the incident database and ensures the schema.
func NewPostgresStore(dsn string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &PostgresStore{db: db, logger: logger}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) ensureSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS incidents (
			alert_id       TEXT PRIMARY KEY,
			threat_type    TEXT NOT NULL,
			severity       TEXT NOT NULL,
			entity         TEXT,
			incident_state TEXT DEFAULT 'OPEN',
			confidence     INTEGER,
			risk_score     INTEGER,
			first_seen     TIMESTAMPTZ,
			last_seen      TIMESTAMPTZ,
			created_at     TIMESTAMPTZ,
			updated_at     TIMESTAMPTZ
		)`)
	if err != nil {
		return fmt.Errorf("failed to create incidents table: %w", err)
	}

	for _, stmt := range []string{
		`CREATE INDEX IF NOT EXISTS idx_incidents_state ON incidents (incident_state)`,
		`CREATE INDEX IF NOT EXISTS idx_incidents_severity ON incidents (severity)`,
		`CREATE INDEX IF NOT EXISTS idx_incidents_threat ON incidents (threat_type)`,
	} {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// Upsert creates or refreshes the incident row for an alert.
func (s *PostgresStore) Upsert(ctx context.Context, alert *model.Alert) error {
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO incidents (
			alert_id, threat_type, severity, entity,
			incident_state, confidence, risk_score,
			first_seen, last_seen, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (alert_id) DO UPDATE SET
			severity   = EXCLUDED.severity,
			confidence = EXCLUDED.confidence,
			risk_score = EXCLUDED.risk_score,
			last_seen  = EXCLUDED.last_seen,
			updated_at = EXCLUDED.updated_at`,
		alert.ID,
		string(alert.ThreatType),
		string(alert.ThreatLevel),
		alert.Entity(),
		string(alert.State),
		alert.Confidence,
		alert.RiskScore,
		alert.FirstSeen,
		alert.LastSeen,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert incident: %w", err)
	}

	s.logger.Debug("Incident upserted", "alert_id", alert.ID, "threat_type", alert.ThreatType)
	return nil
}

// UpdateState moves an incident through its lifecycle (OPEN / ACK /
// CLOSED). The engine never calls this; it exists for downstream incident
// handling.
func (s *PostgresStore) UpdateState(ctx context.Context, alertID string, state model.IncidentState) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE incidents
		SET incident_state = $1, updated_at = $2
		WHERE alert_id = $3`,
		string(state), time.Now().UTC(), alertID)
	if err != nil {
		return fmt.Errorf("failed to update incident state: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("incident %s not found", alertID)
	}
	return nil
}

// OpenCount returns the number of open incidents, a basic SOC KPI.
func (s *PostgresStore) OpenCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM incidents WHERE incident_state = 'OPEN'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count open incidents: %w", err)
	}
	return n, nil
}
